package project

import (
	"context"
	"errors"
	"time"

	"statuswise.org/internal/entitlement"
)

var (
	ErrNotFound     = errors.New("project: not found")
	ErrInvalidInput = errors.New("project: invalid input")
)

// Project is a status page owned by exactly one user. Ownership is the
// primary input to non-admin authorization checks; a project attached
// to a group is additionally shared with that group's members.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"owner_id"`
	GroupID   string    `json:"group_id,omitempty"`
	Public    bool      `json:"public"`
	CreatedAt time.Time `json:"created_at"`
}

// Incident is a reported outage or maintenance window on a project.
type Incident struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Resolved    bool       `json:"resolved"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Store persists projects and incidents.
type Store interface {
	CreateProject(ctx context.Context, p *Project) error
	FindProject(ctx context.Context, id string) (Project, error)
	ListProjectsByOwner(ctx context.Context, ownerID string) ([]Project, error)
	CountProjectsByOwner(ctx context.Context, ownerID string) (int, error)

	CreateIncident(ctx context.Context, in *Incident) error
	FindIncident(ctx context.Context, id string) (Incident, error)
	ListIncidentsByProject(ctx context.Context, projectID string) ([]Incident, error)
	CountIncidentsByProject(ctx context.Context, projectID string) (int, error)
	ResolveIncident(ctx context.Context, id string, at time.Time) (Incident, error)
}

// Limits caps resource creation per subscription tier.
type Limits struct {
	MaxProjects            int `json:"max_projects"`
	MaxIncidentsPerProject int `json:"max_incidents_per_project"`
}

// LimitTable maps tiers to their quotas; configuration, not logic.
type LimitTable map[entitlement.Tier]Limits

// DefaultLimitTable mirrors the hosted plan quotas.
func DefaultLimitTable() LimitTable {
	return LimitTable{
		entitlement.TierFree: {MaxProjects: 1, MaxIncidentsPerProject: 5},
		entitlement.TierPro:  {MaxProjects: 10, MaxIncidentsPerProject: 100},
	}
}

// For returns the quotas for a tier, falling back to the FREE quotas for
// anything unknown so a corrupt entitlement never unlocks extra capacity.
func (lt LimitTable) For(tier entitlement.Tier) Limits {
	if l, ok := lt[tier]; ok {
		return l
	}
	return lt[entitlement.TierFree]
}
