package group

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound     = errors.New("group: not found")
	ErrConflict     = errors.New("group: already exists")
	ErrInvalidInput = errors.New("group: invalid input")
)

// Role is a member's standing inside one group. OWNER is held by exactly
// the creating user; ADMIN may manage membership; MEMBER only uses the
// group's shared resources.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// CanManage reports whether the role may add or remove members.
func (r Role) CanManage() bool {
	return r == RoleOwner || r == RoleAdmin
}

// ParseRole validates a wire-level role string. Empty defaults to
// MEMBER; OWNER is never assignable, it exists only through creation.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case "":
		return RoleMember, nil
	case RoleMember, RoleAdmin:
		return Role(s), nil
	default:
		return "", fmt.Errorf("%w: role %q is not assignable", ErrInvalidInput, s)
	}
}

// Group is a team sharing projects. Projects carrying its id are
// readable and writable by every member.
type Group struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	OwnerID     string    `json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Member is one user's membership in one group.
type Member struct {
	GroupID  string    `json:"group_id"`
	UserID   string    `json:"user_id"`
	Role     Role      `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// Store persists groups and memberships. IsMember doubles as the
// authorization engine's membership resolver.
type Store interface {
	CreateGroup(ctx context.Context, g *Group) error
	FindGroup(ctx context.Context, id string) (Group, error)
	ListGroupsForUser(ctx context.Context, userID string) ([]Group, error)

	AddMember(ctx context.Context, m *Member) error
	RemoveMember(ctx context.Context, groupID, userID string) error
	FindMember(ctx context.Context, groupID, userID string) (Member, error)
	ListMembers(ctx context.Context, groupID string) ([]Member, error)
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
}
