package jsonstore

import "fileshare/internal/domain"

// Settings returns the current application settings record.
func (s *Store) Settings() domain.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// SaveSettings replaces the settings record and persists it.
func (s *Store) SaveSettings(settings domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings = settings
	return s.saveLocked(settingsFile, s.settings)
}
