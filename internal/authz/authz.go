package authz

import (
	"context"
	"errors"
	"fmt"

	"statuswise.org/internal/audit"
	"statuswise.org/internal/entitlement"
	"statuswise.org/internal/identity"
	"statuswise.org/internal/obs"
)

// Action is the kind of privileged operation being attempted.
type Action string

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionAdmin  Action = "admin_action"
)

// Reason explains an authorization decision to the caller.
type Reason string

const (
	ReasonOwnerOK          Reason = "OWNER_OK"
	ReasonAdminOverride    Reason = "ADMIN_OVERRIDE"
	ReasonGroupMember      Reason = "GROUP_MEMBER"
	ReasonInactiveAccount  Reason = "INACTIVE_ACCOUNT"
	ReasonTierInsufficient Reason = "TIER_INSUFFICIENT"
	ReasonNotOwner         Reason = "NOT_OWNER"
)

// Decision is the ephemeral result of one authorization check. Denials
// are values, never errors; only infrastructure faults surface as errors
// so callers can tell "access denied" apart from "system degraded".
type Decision struct {
	Allow  bool   `json:"allow"`
	Reason Reason `json:"reason"`
	// UpgradeHint names the tier that would satisfy a TIER_INSUFFICIENT
	// denial, for surfacing to the user.
	UpgradeHint entitlement.Tier `json:"upgrade_hint,omitempty"`
}

// Resource identifies the target of an action. OwnerID is resolved by
// the owning storage component before the check; the engine itself
// performs no resource lookups. GroupID, when set, marks the resource
// as shared with a group, and active members pass the ownership rule.
type Resource struct {
	Type    string
	ID      string
	OwnerID string
	GroupID string
}

// MembershipResolver reports whether a user belongs to a group. Wired
// from the group store; a nil resolver disables group sharing and
// group-attached resources fall back to owner-only access.
type MembershipResolver interface {
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
}

// Request carries everything a decision needs. Feature, when set, names
// a tier-gated capability from the gate table.
type Request struct {
	Actor    identity.User
	Action   Action
	Resource *Resource
	Feature  string
}

// Engine is the single decision point for every privileged operation.
// It reads already-materialized entitlement state and never calls the
// billing provider.
type Engine struct {
	entitlements entitlement.Store
	gates        GateTable
	members      MembershipResolver
}

// NewEngine constructs the engine with an injected gate table; gating
// changes never touch the decision algorithm.
func NewEngine(entitlements entitlement.Store, gates GateTable) (*Engine, error) {
	if entitlements == nil {
		return nil, errors.New("entitlement store is required")
	}
	if gates == nil {
		gates = GateTable{}
	}
	return &Engine{entitlements: entitlements, gates: gates}, nil
}

// UseMembership wires the membership resolver. Engine and group store
// construct in either order, so this is a separate step from NewEngine.
func (e *Engine) UseMembership(m MembershipResolver) {
	e.members = m
}

// Authorize evaluates the decision rules in order, first match wins.
func (e *Engine) Authorize(ctx context.Context, req Request) (Decision, error) {
	dec, err := e.decide(ctx, req)
	if err != nil {
		return Decision{}, err
	}
	obs.ObserveAuthzDecision(dec.Allow, string(dec.Reason))
	if dec.Reason == ReasonAdminOverride {
		fields := map[string]any{
			"actor_id": req.Actor.ID,
			"action":   string(req.Action),
		}
		if req.Resource != nil {
			fields["resource_type"] = req.Resource.Type
			fields["resource_id"] = req.Resource.ID
			fields["resource_owner_id"] = req.Resource.OwnerID
		}
		_ = audit.LogEvent(ctx, "authz.admin_override", fields)
	}
	return dec, nil
}

func (e *Engine) decide(ctx context.Context, req Request) (Decision, error) {
	if !req.Actor.IsActive {
		return Decision{Allow: false, Reason: ReasonInactiveAccount}, nil
	}

	if req.Actor.IsAdmin && (req.Action == ActionAdmin || req.Resource != nil) {
		return Decision{Allow: true, Reason: ReasonAdminOverride}, nil
	}

	// Non-admins never reach admin-only operations, resource or not.
	if req.Action == ActionAdmin {
		return Decision{Allow: false, Reason: ReasonNotOwner}, nil
	}

	if req.Feature != "" {
		if gate, ok := e.gates[req.Feature]; ok {
			ent, err := e.entitlements.Get(ctx, req.Actor.ID)
			if err != nil {
				return Decision{}, fmt.Errorf("read entitlement for %s: %w", req.Actor.ID, err)
			}
			if !gate.Satisfied(ent) {
				return Decision{
					Allow:       false,
					Reason:      ReasonTierInsufficient,
					UpgradeHint: gate.MinTier,
				}, nil
			}
		}
	}

	if req.Resource != nil && req.Resource.OwnerID != req.Actor.ID {
		if req.Resource.GroupID != "" && e.members != nil {
			member, err := e.members.IsMember(ctx, req.Resource.GroupID, req.Actor.ID)
			if err != nil {
				return Decision{}, fmt.Errorf("resolve membership in %s: %w", req.Resource.GroupID, err)
			}
			if member {
				return Decision{Allow: true, Reason: ReasonGroupMember}, nil
			}
		}
		return Decision{Allow: false, Reason: ReasonNotOwner}, nil
	}

	return Decision{Allow: true, Reason: ReasonOwnerOK}, nil
}
