package billing

import (
	"errors"

	"statuswise.org/internal/entitlement"
)

var (
	ErrInvalidSignature = errors.New("billing: invalid webhook signature")
	ErrMalformedEvent   = errors.New("billing: malformed event")
	ErrUnknownUser      = errors.New("billing: unknown user reference")
)

// Event is the decoded billing-provider webhook payload.
type Event struct {
	EventType              string `json:"event_type"`
	ExternalSubscriptionID string `json:"external_subscription_id"`
	UserReference          string `json:"user_reference"`
	Sequence               uint64 `json:"sequence"`
}

// Outcome tells the ingress handler how a verified event was resolved.
// All outcomes are acknowledged to the provider so it stops retrying.
type Outcome string

const (
	OutcomeApplied     Outcome = "applied"
	OutcomeStale       Outcome = "stale"
	OutcomeUnknownType Outcome = "unknown_type"
)

// stateChange is the entitlement update implied by one provider event
// type. An empty tier keeps the stored tier (payment failures demote
// status only).
type stateChange struct {
	tier   entitlement.Tier
	status entitlement.Status
}

// eventStates is the fixed provider-event → entitlement mapping. Event
// types absent from this table are acknowledged without a state change
// so new provider events never break ingestion.
var eventStates = map[string]stateChange{
	"subscription.created":  {tier: entitlement.TierPro, status: entitlement.StatusActive},
	"subscription.updated":  {tier: entitlement.TierPro, status: entitlement.StatusActive},
	"subscription.resumed":  {tier: entitlement.TierPro, status: entitlement.StatusActive},
	"subscription.canceled": {tier: entitlement.TierFree, status: entitlement.StatusCanceled},
	"subscription.expired":  {tier: entitlement.TierFree, status: entitlement.StatusExpired},
	"payment_failed":        {status: entitlement.StatusPastDue},
}
