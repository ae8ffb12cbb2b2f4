package entitlement

import (
	"context"
	"strings"
	"sync"
	"time"
)

// InMemory implements Store with in-process concurrency safety.
// The single mutex gives ApplyEvent the per-user atomicity the
// monotonic-sequence invariant requires.
type InMemory struct {
	mu      sync.RWMutex
	records map[string]Entitlement
}

// NewInMemory creates an empty entitlement store.
func NewInMemory() *InMemory {
	return &InMemory{records: make(map[string]Entitlement)}
}

func (s *InMemory) Get(ctx context.Context, userID string) (Entitlement, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Entitlement{}, ErrInvalidInput
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rec, ok := s.records[userID]; ok {
		return rec, nil
	}
	return Default(userID), nil
}

func (s *InMemory) CreateDefault(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[userID]; ok {
		return nil
	}
	rec := Default(userID)
	rec.UpdatedAt = time.Now().UTC()
	s.records[userID] = rec
	return nil
}

func (s *InMemory) ApplyEvent(ctx context.Context, userID string, upd Update) (bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, ErrInvalidInput
	}
	if upd.Tier != "" && !upd.Tier.Valid() {
		return false, ErrInvalidInput
	}
	if !upd.Status.Valid() {
		return false, ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[userID]
	if !ok {
		rec = Default(userID)
	}
	if upd.Sequence <= rec.LastEventSequence {
		// Stale or duplicate delivery; acknowledged, never applied.
		return false, nil
	}

	if upd.Tier != "" {
		rec.Tier = upd.Tier
	}
	rec.Status = upd.Status
	if upd.ExternalID != "" {
		rec.ExternalSubscriptionID = upd.ExternalID
	}
	rec.LastEventSequence = upd.Sequence
	rec.UpdatedAt = time.Now().UTC()
	s.records[userID] = rec
	return true, nil
}
