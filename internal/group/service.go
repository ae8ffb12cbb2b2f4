package group

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"statuswise.org/internal/audit"
	"statuswise.org/internal/authz"
	"statuswise.org/internal/identity"
	"statuswise.org/internal/ids"
)

const resourceTypeGroup = "group"

// Service owns the group lifecycle: creation, membership management and
// the lookups the HTTP layer exposes. Membership changes are restricted
// to group owners and group admins; platform admins pass via the
// engine's override.
type Service struct {
	store  Store
	users  identity.Store
	engine *authz.Engine
}

// NewService wires the group service.
func NewService(store Store, users identity.Store, engine *authz.Engine) (*Service, error) {
	if store == nil || users == nil || engine == nil {
		return nil, errors.New("store, identity store and engine are required")
	}
	return &Service{store: store, users: users, engine: engine}, nil
}

// CreateGroup creates a group owned by the actor, who joins as OWNER.
func (s *Service) CreateGroup(ctx context.Context, actor identity.User, name, description string) (Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Group{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}

	dec, err := s.engine.Authorize(ctx, authz.Request{Actor: actor, Action: authz.ActionCreate})
	if err != nil {
		return Group{}, err
	}
	if err := dec.Err(); err != nil {
		return Group{}, err
	}

	g := Group{
		ID:          ids.New(),
		Name:        name,
		Description: strings.TrimSpace(description),
		OwnerID:     actor.ID,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateGroup(ctx, &g); err != nil {
		return Group{}, err
	}
	owner := Member{GroupID: g.ID, UserID: actor.ID, Role: RoleOwner, JoinedAt: g.CreatedAt}
	if err := s.store.AddMember(ctx, &owner); err != nil {
		return Group{}, fmt.Errorf("add owner membership: %w", err)
	}
	_ = audit.LogEvent(ctx, "group.created", map[string]any{
		"group_id": g.ID,
		"owner_id": g.OwnerID,
	})
	return g, nil
}

// ListGroups returns the groups the actor belongs to.
func (s *Service) ListGroups(ctx context.Context, actor identity.User) ([]Group, error) {
	dec, err := s.engine.Authorize(ctx, authz.Request{Actor: actor, Action: authz.ActionRead})
	if err != nil {
		return nil, err
	}
	if err := dec.Err(); err != nil {
		return nil, err
	}
	return s.store.ListGroupsForUser(ctx, actor.ID)
}

// GetGroup returns one group with its member list. Any member may read;
// non-members are denied like non-owners of any resource.
func (s *Service) GetGroup(ctx context.Context, actor identity.User, groupID string) (Group, []Member, error) {
	g, err := s.store.FindGroup(ctx, groupID)
	if err != nil {
		return Group{}, nil, err
	}
	dec, err := s.engine.Authorize(ctx, authz.Request{
		Actor:    actor,
		Action:   authz.ActionRead,
		Resource: groupResource(g),
	})
	if err != nil {
		return Group{}, nil, err
	}
	if err := dec.Err(); err != nil {
		return Group{}, nil, err
	}
	members, err := s.store.ListMembers(ctx, g.ID)
	if err != nil {
		return Group{}, nil, err
	}
	return g, members, nil
}

// AddMember adds the user with the given email. Only group owners and
// group admins may add; granting ADMIN requires the group owner.
func (s *Service) AddMember(ctx context.Context, actor identity.User, groupID, email string, role Role) (Member, error) {
	if role == "" {
		role = RoleMember
	}
	if role != RoleMember && role != RoleAdmin {
		return Member{}, fmt.Errorf("%w: role %q is not assignable", ErrInvalidInput, role)
	}
	g, err := s.store.FindGroup(ctx, groupID)
	if err != nil {
		return Member{}, err
	}
	actorRole, err := s.manageRole(ctx, actor, g)
	if err != nil {
		return Member{}, err
	}
	if role == RoleAdmin && actorRole != RoleOwner {
		return Member{}, deniedNotOwner()
	}

	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return Member{}, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return Member{}, err
	}

	m := Member{GroupID: g.ID, UserID: u.ID, Role: role, JoinedAt: time.Now().UTC()}
	if err := s.store.AddMember(ctx, &m); err != nil {
		return Member{}, err
	}
	_ = audit.LogEvent(ctx, "group.member_added", map[string]any{
		"group_id": g.ID,
		"user_id":  u.ID,
		"role":     string(role),
		"added_by": actor.ID,
	})
	return m, nil
}

// RemoveMember drops a membership. The owner's own membership is fixed;
// a group without its owner would be unmanageable.
func (s *Service) RemoveMember(ctx context.Context, actor identity.User, groupID, userID string) error {
	g, err := s.store.FindGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if _, err := s.manageRole(ctx, actor, g); err != nil {
		return err
	}
	if userID == g.OwnerID {
		return fmt.Errorf("%w: the group owner cannot be removed", ErrInvalidInput)
	}
	if err := s.store.RemoveMember(ctx, g.ID, userID); err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "group.member_removed", map[string]any{
		"group_id":   g.ID,
		"user_id":    userID,
		"removed_by": actor.ID,
	})
	return nil
}

// manageRole authorizes a membership mutation and returns the actor's
// effective role. Platform admins act as the owner.
func (s *Service) manageRole(ctx context.Context, actor identity.User, g Group) (Role, error) {
	dec, err := s.engine.Authorize(ctx, authz.Request{
		Actor:    actor,
		Action:   authz.ActionUpdate,
		Resource: groupResource(g),
	})
	if err != nil {
		return "", err
	}
	if err := dec.Err(); err != nil {
		return "", err
	}
	if dec.Reason == authz.ReasonAdminOverride {
		return RoleOwner, nil
	}
	m, err := s.store.FindMember(ctx, g.ID, actor.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", deniedNotOwner()
		}
		return "", err
	}
	if !m.Role.CanManage() {
		return "", deniedNotOwner()
	}
	return m.Role, nil
}

func groupResource(g Group) *authz.Resource {
	return &authz.Resource{Type: resourceTypeGroup, ID: g.ID, OwnerID: g.OwnerID, GroupID: g.ID}
}

func deniedNotOwner() error {
	return authz.Decision{Allow: false, Reason: authz.ReasonNotOwner}.Err()
}
