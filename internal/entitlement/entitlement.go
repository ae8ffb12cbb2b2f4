package entitlement

import (
	"context"
	"errors"
	"time"
)

// Tier is a named subscription level gating feature access.
type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
)

var tierRank = map[Tier]int{
	TierFree: 0,
	TierPro:  1,
}

// Valid reports whether the tier is a known subscription level.
func (t Tier) Valid() bool {
	_, ok := tierRank[t]
	return ok
}

// AtLeast reports whether the tier satisfies the given minimum.
func (t Tier) AtLeast(min Tier) bool {
	return tierRank[t] >= tierRank[min]
}

// Status is the billing-provider lifecycle state of a subscription.
type Status string

const (
	StatusActive   Status = "active"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
	StatusExpired  Status = "expired"
)

// Valid reports whether the status is a known subscription state.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusPastDue, StatusCanceled, StatusExpired:
		return true
	}
	return false
}

// Entitlement is the materialized record of what a user may access based
// on subscription state. One entitlement per user; mutated only by the
// billing reconciler.
type Entitlement struct {
	UserID                 string    `json:"user_id"`
	Tier                   Tier      `json:"tier"`
	Status                 Status    `json:"status"`
	ExternalSubscriptionID string    `json:"external_subscription_id,omitempty"`
	LastEventSequence      uint64    `json:"last_event_sequence"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// Default returns the entitlement a user holds before any billing event
// has been reconciled. Reads never fail because billing data is missing.
func Default(userID string) Entitlement {
	return Entitlement{
		UserID: userID,
		Tier:   TierFree,
		Status: StatusActive,
	}
}

// Update carries the reconciled state implied by one billing event.
// An empty Tier means "keep the stored tier" (payment failures demote
// status without touching the tier).
type Update struct {
	Tier       Tier
	Status     Status
	ExternalID string
	Sequence   uint64
}

var (
	ErrInvalidInput = errors.New("entitlement: invalid input")
	ErrUnavailable  = errors.New("entitlement: store unavailable")
)

// Store is the single source of truth for subscription tier. ApplyEvent
// must be atomic per user: concurrent deliveries for the same user may
// not interleave their read-modify-write.
type Store interface {
	// Get returns the user's entitlement, or Default when none exists.
	Get(ctx context.Context, userID string) (Entitlement, error)

	// CreateDefault materializes the FREE/ACTIVE row at signup. Calling
	// it for an existing user is a no-op.
	CreateDefault(ctx context.Context, userID string) error

	// ApplyEvent applies upd only when upd.Sequence is strictly greater
	// than the stored last_event_sequence. Returns applied=false (with a
	// nil error) for stale or duplicate events.
	ApplyEvent(ctx context.Context, userID string, upd Update) (applied bool, err error)
}
