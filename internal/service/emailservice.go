package service

import (
	"context"
	"fmt"
	"html"
	"strings"

	"fileshare/internal/domain"
	"fileshare/internal/email"
)

type EmailSettingsStore interface {
	Settings() domain.Settings
}

// EmailService renders and dispatches the application's outbound mail.
// SMTP settings live in the settings document so admins can change them
// at runtime; BaseURL is what emailed links are built from.
type EmailService struct {
	Store   EmailSettingsStore
	BaseURL string

	// Send is swappable for tests; nil means email.Send.
	Send func(domain.SMTPSettings, email.Message) error
}

func (s *EmailService) send(smtp domain.SMTPSettings, msg email.Message) error {
	if s.Send != nil {
		return s.Send(smtp, msg)
	}
	return email.Send(smtp, msg)
}

func (s *EmailService) appName() string {
	name := s.Store.Settings().AppName
	if name == "" {
		name = "FileShare"
	}
	return name
}

// SendPasswordReset mails a reset link valid for one hour.
func (s *EmailService) SendPasswordReset(ctx context.Context, toEmail, token string) error {
	_ = ctx
	appName := s.appName()
	resetURL := fmt.Sprintf("%s/reset_password/%s", strings.TrimRight(s.BaseURL, "/"), token)
	body := linkEmailBody(
		"Password Reset Request",
		fmt.Sprintf("We received a request to reset your password for your %s account.", appName),
		"Reset Password", resetURL,
		"This link will expire in 1 hour.",
		appName,
	)
	return s.send(s.Store.Settings().Email, email.Message{
		FromName:  appName,
		FromEmail: s.Store.Settings().Email.FromAddress,
		ToEmail:   toEmail,
		Subject:   fmt.Sprintf("Password Reset Request - %s", appName),
		HTMLBody:  body,
	})
}

// SendVerification mails an email-verification link valid for 24 hours.
func (s *EmailService) SendVerification(ctx context.Context, toEmail, username, token string) error {
	_ = ctx
	appName := s.appName()
	verifyURL := fmt.Sprintf("%s/verify_email/%s", strings.TrimRight(s.BaseURL, "/"), token)
	body := linkEmailBody(
		fmt.Sprintf("Welcome to %s, %s!", appName, html.EscapeString(username)),
		"Thank you for registering! Please verify your email address to start uploading files.",
		"Verify Email", verifyURL,
		"This link will expire in 24 hours.",
		appName,
	)
	return s.send(s.Store.Settings().Email, email.Message{
		FromName:  appName,
		FromEmail: s.Store.Settings().Email.FromAddress,
		ToEmail:   toEmail,
		Subject:   fmt.Sprintf("Verify Your Email - %s", appName),
		HTMLBody:  body,
	})
}

// SendTest exercises an SMTP configuration before it is saved, sending
// to the acting admin's own address.
func (s *EmailService) SendTest(ctx context.Context, smtp domain.SMTPSettings, toEmail string) error {
	_ = ctx
	toEmail = strings.TrimSpace(strings.ToLower(toEmail))
	if toEmail == "" {
		return domain.NewValidationError(map[string]string{"email": "recipient email is required"})
	}
	appName := s.appName()
	body := fmt.Sprintf(
		"<html><body><h1>Email Configuration Test</h1><p>This is a test email from <strong>%s</strong>.</p><p>If you received this message, your email configuration is working correctly.</p></body></html>",
		html.EscapeString(appName),
	)
	return s.send(smtp, email.Message{
		FromName:  appName,
		FromEmail: smtp.FromAddress,
		ToEmail:   toEmail,
		Subject:   fmt.Sprintf("Test Email from %s", appName),
		HTMLBody:  body,
	})
}

func linkEmailBody(heading, intro, action, link, expiry, appName string) string {
	link = html.EscapeString(link)
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; padding: 20px;">
  <h1>%s</h1>
  <p>%s</p>
  <p><a href="%s">%s</a></p>
  <p>Or copy and paste this link into your browser:</p>
  <p>%s</p>
  <p><strong>%s</strong></p>
  <p>If you didn't request this, you can safely ignore this email.</p>
  <p style="color:#666;font-size:12px;">This is an automated email from %s. Please do not reply.</p>
</body>
</html>`, heading, intro, link, action, link, expiry, html.EscapeString(appName))
}
