package jsonstore

import (
	"sort"
	"strings"

	"fileshare/internal/domain"
)

func cloneUser(u domain.User) domain.User {
	if u.DeletedAt != nil {
		t := *u.DeletedAt
		u.DeletedAt = &t
	}
	return u
}

// GetUser looks up a user by its normalized username.
func (s *Store) GetUser(username string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[domain.NormalizeUsername(username)]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return cloneUser(u), nil
}

// PutUser inserts or replaces a user record and persists the document.
func (s *Store) PutUser(u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u.Username = domain.NormalizeUsername(u.Username)
	s.users[u.Username] = cloneUser(u)
	return s.saveLocked(usersFile, s.users)
}

// DeleteUser removes a user record entirely (hard delete).
func (s *Store) DeleteUser(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := domain.NormalizeUsername(username)
	if _, ok := s.users[key]; !ok {
		return domain.ErrNotFound
	}
	delete(s.users, key)
	return s.saveLocked(usersFile, s.users)
}

// ListUsers returns all user records ordered by username.
func (s *Store) ListUsers() []domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, cloneUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

// FindUserByEmail performs a case-insensitive email lookup.
func (s *Store) FindUserByEmail(email string) (domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return domain.User{}, false
	}
	for _, u := range s.users {
		if strings.ToLower(u.Email) == email {
			return cloneUser(u), true
		}
	}
	return domain.User{}, false
}

// CountUsers reports the number of user records, deleted ones included.
func (s *Store) CountUsers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}
