package jsonstore

import "fileshare/internal/domain"

func cloneRequest(r domain.RecoveryRequest) domain.RecoveryRequest {
	if r.DeletedAt != nil {
		t := *r.DeletedAt
		r.DeletedAt = &t
	}
	return r
}

// GetRequest looks up a pending recovery request by its document key.
func (s *Store) GetRequest(key string) (domain.RecoveryRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.recovery[key]
	if !ok {
		return domain.RecoveryRequest{}, domain.ErrNotFound
	}
	return cloneRequest(r), nil
}

// PutRequest inserts or replaces a request under key and persists.
func (s *Store) PutRequest(key string, r domain.RecoveryRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recovery[key] = cloneRequest(r)
	return s.saveLocked(recoveryFile, s.recovery)
}

// DeleteRequest removes a request if present; removing an absent key is
// not an error, so one-shot consumption stays idempotent.
func (s *Store) DeleteRequest(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.recovery[key]; !ok {
		return nil
	}
	delete(s.recovery, key)
	return s.saveLocked(recoveryFile, s.recovery)
}

// ListRequests returns a copy of the whole recovery document.
func (s *Store) ListRequests() map[string]domain.RecoveryRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]domain.RecoveryRequest, len(s.recovery))
	for k, r := range s.recovery {
		out[k] = cloneRequest(r)
	}
	return out
}

// FindRequestByToken locates a token-bearing request of the given type.
func (s *Store) FindRequestByToken(typ domain.RequestType, token string) (string, domain.RecoveryRequest, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if token == "" {
		return "", domain.RecoveryRequest{}, false
	}
	for k, r := range s.recovery {
		if r.Type == typ && r.Token == token {
			return k, cloneRequest(r), true
		}
	}
	return "", domain.RecoveryRequest{}, false
}
