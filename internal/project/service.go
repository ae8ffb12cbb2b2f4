package project

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"statuswise.org/internal/audit"
	"statuswise.org/internal/authz"
	"statuswise.org/internal/entitlement"
	"statuswise.org/internal/identity"
	"statuswise.org/internal/ids"
	"statuswise.org/internal/stream"
)

const resourceTypeProject = "project"

// Service runs every project and incident mutation through the
// authorization engine and the tier quota table.
type Service struct {
	store        Store
	engine       *authz.Engine
	entitlements entitlement.Store
	limits       LimitTable
	events       *stream.Stream
	members      authz.MembershipResolver
}

// NewService wires the project service. The event stream is optional;
// when nil, incident changes are simply not fanned out. The membership
// resolver is optional too; when nil, projects cannot attach to groups.
func NewService(store Store, engine *authz.Engine, entitlements entitlement.Store, limits LimitTable, events *stream.Stream, members authz.MembershipResolver) (*Service, error) {
	if store == nil || engine == nil || entitlements == nil {
		return nil, errors.New("store, engine and entitlement store are required")
	}
	if limits == nil {
		limits = DefaultLimitTable()
	}
	return &Service{
		store:        store,
		engine:       engine,
		entitlements: entitlements,
		limits:       limits,
		events:       events,
		members:      members,
	}, nil
}

// CreateProject creates a project owned by the actor, enforcing the
// per-tier project quota. Admin overrides bypass the quota. A non-empty
// groupID shares the project with that group; the actor must belong to
// it unless they are a platform admin.
func (s *Service) CreateProject(ctx context.Context, actor identity.User, name string, public bool, groupID string) (Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Project{}, ErrInvalidInput
	}

	dec, err := s.engine.Authorize(ctx, authz.Request{Actor: actor, Action: authz.ActionCreate})
	if err != nil {
		return Project{}, err
	}
	if err := dec.Err(); err != nil {
		return Project{}, err
	}

	groupID = strings.TrimSpace(groupID)
	if groupID != "" && !actor.IsAdmin {
		if err := s.requireMembership(ctx, groupID, actor.ID); err != nil {
			return Project{}, err
		}
	}

	if dec.Reason != authz.ReasonAdminOverride {
		if err := s.checkProjectQuota(ctx, actor.ID); err != nil {
			return Project{}, err
		}
	}

	p := Project{
		ID:        ids.New(),
		Name:      name,
		OwnerID:   actor.ID,
		GroupID:   groupID,
		Public:    public,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateProject(ctx, &p); err != nil {
		return Project{}, fmt.Errorf("create project: %w", err)
	}
	_ = audit.LogEvent(ctx, "project.created", map[string]any{
		"project_id": p.ID,
		"owner_id":   p.OwnerID,
		"group_id":   p.GroupID,
		"public":     p.Public,
	})
	return p, nil
}

// requireMembership denies group attachment for anyone outside the
// group, matching the engine's sharing rule for existing resources.
func (s *Service) requireMembership(ctx context.Context, groupID, userID string) error {
	if s.members == nil {
		return authz.Decision{Allow: false, Reason: authz.ReasonNotOwner}.Err()
	}
	member, err := s.members.IsMember(ctx, groupID, userID)
	if err != nil {
		return fmt.Errorf("resolve membership in %s: %w", groupID, err)
	}
	if !member {
		return authz.Decision{Allow: false, Reason: authz.ReasonNotOwner}.Err()
	}
	return nil
}

// ListProjects returns the actor's own projects.
func (s *Service) ListProjects(ctx context.Context, actor identity.User) ([]Project, error) {
	dec, err := s.engine.Authorize(ctx, authz.Request{Actor: actor, Action: authz.ActionRead})
	if err != nil {
		return nil, err
	}
	if err := dec.Err(); err != nil {
		return nil, err
	}
	return s.store.ListProjectsByOwner(ctx, actor.ID)
}

// GetProject returns one project after an ownership check.
func (s *Service) GetProject(ctx context.Context, actor identity.User, projectID string) (Project, error) {
	p, err := s.store.FindProject(ctx, projectID)
	if err != nil {
		return Project{}, err
	}
	dec, err := s.engine.Authorize(ctx, authz.Request{
		Actor:    actor,
		Action:   authz.ActionRead,
		Resource: &authz.Resource{Type: resourceTypeProject, ID: p.ID, OwnerID: p.OwnerID, GroupID: p.GroupID},
	})
	if err != nil {
		return Project{}, err
	}
	if err := dec.Err(); err != nil {
		return Project{}, err
	}
	return p, nil
}

// CreateIncident records a new incident on a project the actor owns,
// enforcing the per-project incident quota for the owner's tier.
func (s *Service) CreateIncident(ctx context.Context, actor identity.User, projectID, title, description string) (Incident, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Incident{}, ErrInvalidInput
	}

	p, err := s.store.FindProject(ctx, projectID)
	if err != nil {
		return Incident{}, err
	}
	dec, err := s.engine.Authorize(ctx, authz.Request{
		Actor:    actor,
		Action:   authz.ActionCreate,
		Resource: &authz.Resource{Type: resourceTypeProject, ID: p.ID, OwnerID: p.OwnerID, GroupID: p.GroupID},
	})
	if err != nil {
		return Incident{}, err
	}
	if err := dec.Err(); err != nil {
		return Incident{}, err
	}

	if dec.Reason != authz.ReasonAdminOverride {
		if err := s.checkIncidentQuota(ctx, p.OwnerID, p.ID); err != nil {
			return Incident{}, err
		}
	}

	in := Incident{
		ID:          ids.New(),
		ProjectID:   p.ID,
		Title:       title,
		Description: strings.TrimSpace(description),
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateIncident(ctx, &in); err != nil {
		return Incident{}, fmt.Errorf("create incident: %w", err)
	}
	s.publish("incident.created", in)
	_ = audit.LogEvent(ctx, "incident.created", map[string]any{
		"incident_id": in.ID,
		"project_id":  in.ProjectID,
	})
	return in, nil
}

// ListIncidents returns a project's incidents after an ownership check.
func (s *Service) ListIncidents(ctx context.Context, actor identity.User, projectID string) ([]Incident, error) {
	p, err := s.store.FindProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	dec, err := s.engine.Authorize(ctx, authz.Request{
		Actor:    actor,
		Action:   authz.ActionRead,
		Resource: &authz.Resource{Type: resourceTypeProject, ID: p.ID, OwnerID: p.OwnerID, GroupID: p.GroupID},
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Err(); err != nil {
		return nil, err
	}
	return s.store.ListIncidentsByProject(ctx, p.ID)
}

// ResolveIncident marks an incident resolved. Authorization is against
// the owning project, since incidents carry no owner of their own.
func (s *Service) ResolveIncident(ctx context.Context, actor identity.User, incidentID string) (Incident, error) {
	in, err := s.store.FindIncident(ctx, incidentID)
	if err != nil {
		return Incident{}, err
	}
	p, err := s.store.FindProject(ctx, in.ProjectID)
	if err != nil {
		return Incident{}, err
	}
	dec, err := s.engine.Authorize(ctx, authz.Request{
		Actor:    actor,
		Action:   authz.ActionUpdate,
		Resource: &authz.Resource{Type: resourceTypeProject, ID: p.ID, OwnerID: p.OwnerID, GroupID: p.GroupID},
	})
	if err != nil {
		return Incident{}, err
	}
	if err := dec.Err(); err != nil {
		return Incident{}, err
	}

	resolved, err := s.store.ResolveIncident(ctx, incidentID, time.Now().UTC())
	if err != nil {
		return Incident{}, fmt.Errorf("resolve incident: %w", err)
	}
	s.publish("incident.resolved", resolved)
	_ = audit.LogEvent(ctx, "incident.resolved", map[string]any{
		"incident_id": resolved.ID,
		"project_id":  resolved.ProjectID,
	})
	return resolved, nil
}

// PublicIncidents serves the unauthenticated status feed. Only projects
// flagged public are visible; private and unknown projects are
// indistinguishable to callers.
func (s *Service) PublicIncidents(ctx context.Context, projectID string) (Project, []Incident, error) {
	p, err := s.store.FindProject(ctx, projectID)
	if err != nil {
		return Project{}, nil, err
	}
	if !p.Public {
		return Project{}, nil, ErrNotFound
	}
	incidents, err := s.store.ListIncidentsByProject(ctx, p.ID)
	if err != nil {
		return Project{}, nil, err
	}
	return p, incidents, nil
}

func (s *Service) checkProjectQuota(ctx context.Context, ownerID string) error {
	ent, err := s.entitlements.Get(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("read entitlement for %s: %w", ownerID, err)
	}
	count, err := s.store.CountProjectsByOwner(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("count projects for %s: %w", ownerID, err)
	}
	if count >= s.limits.For(ent.Tier).MaxProjects {
		return quotaDenied(ent.Tier)
	}
	return nil
}

func (s *Service) checkIncidentQuota(ctx context.Context, ownerID, projectID string) error {
	ent, err := s.entitlements.Get(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("read entitlement for %s: %w", ownerID, err)
	}
	count, err := s.store.CountIncidentsByProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("count incidents for %s: %w", projectID, err)
	}
	if count >= s.limits.For(ent.Tier).MaxIncidentsPerProject {
		return quotaDenied(ent.Tier)
	}
	return nil
}

// quotaDenied builds the TIER_INSUFFICIENT denial for an exhausted
// quota, hinting at PRO when an upgrade would actually raise the cap.
func quotaDenied(tier entitlement.Tier) error {
	dec := authz.Decision{Allow: false, Reason: authz.ReasonTierInsufficient}
	if !tier.AtLeast(entitlement.TierPro) {
		dec.UpgradeHint = entitlement.TierPro
	}
	return dec.Err()
}

func (s *Service) publish(kind string, in Incident) {
	if s.events == nil {
		return
	}
	s.events.Publish(stream.IncidentEvent{
		Kind:       kind,
		ProjectID:  in.ProjectID,
		IncidentID: in.ID,
		Title:      in.Title,
		Timestamp:  time.Now().UTC(),
	})
}
