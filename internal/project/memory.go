package project

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// InMemory implements Store for tests and single-node deployments.
type InMemory struct {
	mu        sync.RWMutex
	projects  map[string]Project
	incidents map[string]Incident
}

// NewInMemory creates an empty project store.
func NewInMemory() *InMemory {
	return &InMemory{
		projects:  make(map[string]Project),
		incidents: make(map[string]Incident),
	}
}

func (s *InMemory) CreateProject(ctx context.Context, p *Project) error {
	if p == nil || strings.TrimSpace(p.ID) == "" || strings.TrimSpace(p.OwnerID) == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	s.projects[p.ID] = *p
	return nil
}

func (s *InMemory) FindProject(ctx context.Context, id string) (Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return Project{}, ErrNotFound
	}
	return p, nil
}

func (s *InMemory) ListProjectsByOwner(ctx context.Context, ownerID string) ([]Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Project
	for _, p := range s.projects {
		if p.OwnerID == ownerID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) CountProjectsByOwner(ctx context.Context, ownerID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, p := range s.projects {
		if p.OwnerID == ownerID {
			count++
		}
	}
	return count, nil
}

func (s *InMemory) CreateIncident(ctx context.Context, in *Incident) error {
	if in == nil || strings.TrimSpace(in.ID) == "" || strings.TrimSpace(in.ProjectID) == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[in.ProjectID]; !ok {
		return ErrNotFound
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}
	s.incidents[in.ID] = *in
	return nil
}

func (s *InMemory) FindIncident(ctx context.Context, id string) (Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	in, ok := s.incidents[id]
	if !ok {
		return Incident{}, ErrNotFound
	}
	return in, nil
}

func (s *InMemory) ListIncidentsByProject(ctx context.Context, projectID string) ([]Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Incident
	for _, in := range s.incidents {
		if in.ProjectID == projectID {
			out = append(out, in)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) CountIncidentsByProject(ctx context.Context, projectID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, in := range s.incidents {
		if in.ProjectID == projectID {
			count++
		}
	}
	return count, nil
}

func (s *InMemory) ResolveIncident(ctx context.Context, id string, at time.Time) (Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.incidents[id]
	if !ok {
		return Incident{}, ErrNotFound
	}
	in.Resolved = true
	at = at.UTC()
	in.ResolvedAt = &at
	s.incidents[id] = in
	return in, nil
}
