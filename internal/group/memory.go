package group

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// InMemory implements Store for tests and single-node deployments.
type InMemory struct {
	mu      sync.RWMutex
	groups  map[string]Group
	members map[string]map[string]Member
}

// NewInMemory creates an empty group store.
func NewInMemory() *InMemory {
	return &InMemory{
		groups:  make(map[string]Group),
		members: make(map[string]map[string]Member),
	}
}

func (s *InMemory) CreateGroup(ctx context.Context, g *Group) error {
	if g == nil || strings.TrimSpace(g.ID) == "" || strings.TrimSpace(g.OwnerID) == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.groups {
		if existing.OwnerID == g.OwnerID && existing.Name == g.Name {
			return ErrConflict
		}
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	s.groups[g.ID] = *g
	s.members[g.ID] = make(map[string]Member)
	return nil
}

func (s *InMemory) FindGroup(ctx context.Context, id string) (Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[id]
	if !ok {
		return Group{}, ErrNotFound
	}
	return g, nil
}

func (s *InMemory) ListGroupsForUser(ctx context.Context, userID string) ([]Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Group
	for id, members := range s.members {
		if _, ok := members[userID]; ok {
			out = append(out, s.groups[id])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) AddMember(ctx context.Context, m *Member) error {
	if m == nil || strings.TrimSpace(m.GroupID) == "" || strings.TrimSpace(m.UserID) == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	members, ok := s.members[m.GroupID]
	if !ok {
		return ErrNotFound
	}
	if _, exists := members[m.UserID]; exists {
		return ErrConflict
	}
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now().UTC()
	}
	members[m.UserID] = *m
	return nil
}

func (s *InMemory) RemoveMember(ctx context.Context, groupID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	members, ok := s.members[groupID]
	if !ok {
		return ErrNotFound
	}
	if _, exists := members[userID]; !exists {
		return ErrNotFound
	}
	delete(members, userID)
	return nil
}

func (s *InMemory) FindMember(ctx context.Context, groupID, userID string) (Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[groupID][userID]
	if !ok {
		return Member{}, ErrNotFound
	}
	return m, nil
}

func (s *InMemory) ListMembers(ctx context.Context, groupID string) ([]Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	members, ok := s.members[groupID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]Member, 0, len(members))
	for _, m := range members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *InMemory) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.members[groupID][userID]
	return ok, nil
}
