package refresh

import (
	"context"
	"sync"
	"time"
)

type memoryRecord struct {
	userID    string
	issuedAt  time.Time
	expiresAt time.Time
	revoked   bool
}

// MemoryStore is an in-process Store for tests and single-node deployments.
// All state is lost on restart, which also logs out every user.
//
// MemoryStore instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*memoryRecord
	byUser  map[string]map[string]struct{}
	now     func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
//
// NewMemoryStore may return an error when input validation, dependency calls, or security checks fail.
// NewMemoryStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*memoryRecord),
		byUser:  make(map[string]map[string]struct{}),
		now:     time.Now,
	}
}

// Save persists a new Active record keyed by the token hash.
func (s *MemoryStore) Save(_ context.Context, rec Record) error {
	key := HashToken(rec.Token)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[key]; exists {
		return ErrDuplicate
	}

	s.records[key] = &memoryRecord{
		userID:    rec.UserID,
		issuedAt:  rec.IssuedAt,
		expiresAt: rec.ExpiresAt,
	}

	if s.byUser[rec.UserID] == nil {
		s.byUser[rec.UserID] = make(map[string]struct{})
	}
	s.byUser[rec.UserID][key] = struct{}{}

	return nil
}

// Validate reports whether the token is currently Active.
func (s *MemoryStore) Validate(_ context.Context, token string) (bool, error) {
	key := HashToken(token)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	return ok && s.active(rec), nil
}

// Owner returns the holder of an unexpired token, revoked or not. Revoked
// records stay resolvable until expiry so that a later Revoke reporting
// false can be recognized as reuse of a rotated token.
func (s *MemoryStore) Owner(_ context.Context, token string) (string, error) {
	key := HashToken(token)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok || !rec.expiresAt.After(s.now()) {
		return "", ErrNotFound
	}
	return rec.userID, nil
}

// Revoke retires the token, reporting whether this call performed the
// Active to Revoked transition.
func (s *MemoryStore) Revoke(_ context.Context, token string) (bool, error) {
	key := HashToken(token)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok || !s.active(rec) {
		return false, nil
	}
	rec.revoked = true
	return true, nil
}

// RevokeAllForUser retires every Active token held by the user.
func (s *MemoryStore) RevokeAllForUser(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	revoked := 0
	for key := range s.byUser[userID] {
		rec, ok := s.records[key]
		if !ok || !s.active(rec) {
			continue
		}
		rec.revoked = true
		revoked++
	}
	return revoked, nil
}

// Sweep drops every record whose expiry has passed.
func (s *MemoryStore) Sweep(_ context.Context) (int, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, rec := range s.records {
		if rec.expiresAt.After(now) {
			continue
		}
		delete(s.records, key)
		if owned := s.byUser[rec.userID]; owned != nil {
			delete(owned, key)
			if len(owned) == 0 {
				delete(s.byUser, rec.userID)
			}
		}
		removed++
	}
	return removed, nil
}

// Len reports how many records the store currently holds, in any state.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *MemoryStore) active(rec *memoryRecord) bool {
	return !rec.revoked && rec.expiresAt.After(s.now())
}
