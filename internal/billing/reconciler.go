package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"statuswise.org/internal/audit"
	"statuswise.org/internal/entitlement"
	"statuswise.org/internal/identity"
	"statuswise.org/internal/obs"
)

// UserLookup resolves a webhook user reference to an identity record.
type UserLookup interface {
	Find(ctx context.Context, id string) (identity.User, error)
}

// Reconciler translates verified billing-provider events into
// entitlement store updates. It is the only writer of tier data.
// Concurrent deliveries are safe: the store's monotonic-sequence check
// makes ApplyEvent idempotent and commutative for the same user.
type Reconciler struct {
	secret       []byte
	users        UserLookup
	entitlements entitlement.Store
}

// NewReconciler constructs the reconciler. The webhook secret is
// mandatory: without it no delivery can be authenticated.
func NewReconciler(secret string, users UserLookup, entitlements entitlement.Store) (*Reconciler, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("webhook secret is required")
	}
	if users == nil {
		return nil, errors.New("user lookup is required")
	}
	if entitlements == nil {
		return nil, errors.New("entitlement store is required")
	}
	return &Reconciler{secret: []byte(secret), users: users, entitlements: entitlements}, nil
}

// VerifySignature authenticates a raw delivery before anything is
// decoded or mutated. Failure is a hard rejection.
func (r *Reconciler) VerifySignature(payload []byte, signature string) error {
	if !verifySignature(r.secret, payload, strings.TrimSpace(signature)) {
		return ErrInvalidSignature
	}
	return nil
}

// Reconcile applies one verified event. Stale and unknown-type events
// return a nil error so the ingress acknowledges them and the provider
// stops retrying; unknown users and malformed events are rejected
// without side effects beyond the audit record.
func (r *Reconciler) Reconcile(ctx context.Context, evt Event) (Outcome, error) {
	evt.EventType = strings.TrimSpace(evt.EventType)
	evt.UserReference = strings.TrimSpace(evt.UserReference)
	if evt.EventType == "" || evt.UserReference == "" || evt.Sequence == 0 {
		obs.ObserveWebhookEvent("rejected")
		return "", fmt.Errorf("%w: event_type, user_reference and sequence are required", ErrMalformedEvent)
	}

	change, known := eventStates[evt.EventType]
	if !known {
		obs.ObserveWebhookEvent("unknown_type")
		_ = audit.LogEvent(ctx, "billing.webhook.unknown_type", map[string]any{
			"event_type": evt.EventType,
			"user_ref":   evt.UserReference,
			"sequence":   evt.Sequence,
		})
		return OutcomeUnknownType, nil
	}

	user, err := r.users.Find(ctx, evt.UserReference)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			obs.ObserveWebhookEvent("unknown_user")
			_ = audit.LogEvent(ctx, "billing.webhook.unknown_user", map[string]any{
				"event_type": evt.EventType,
				"user_ref":   evt.UserReference,
				"sequence":   evt.Sequence,
			})
			return "", fmt.Errorf("%w: %s", ErrUnknownUser, evt.UserReference)
		}
		return "", fmt.Errorf("resolve user %s: %w", evt.UserReference, err)
	}

	applied, err := r.entitlements.ApplyEvent(ctx, user.ID, entitlement.Update{
		Tier:       change.tier,
		Status:     change.status,
		ExternalID: evt.ExternalSubscriptionID,
		Sequence:   evt.Sequence,
	})
	if err != nil {
		return "", fmt.Errorf("apply event seq %d for %s: %w", evt.Sequence, user.ID, err)
	}

	if !applied {
		obs.ObserveWebhookEvent("stale")
		_ = audit.LogEvent(ctx, "billing.webhook.stale", map[string]any{
			"event_type": evt.EventType,
			"user_id":    user.ID,
			"sequence":   evt.Sequence,
		})
		return OutcomeStale, nil
	}

	obs.ObserveWebhookEvent("applied")
	_ = audit.LogEvent(ctx, "billing.webhook.applied", map[string]any{
		"event_type":  evt.EventType,
		"user_id":     user.ID,
		"sequence":    evt.Sequence,
		"external_id": evt.ExternalSubscriptionID,
	})
	return OutcomeApplied, nil
}
