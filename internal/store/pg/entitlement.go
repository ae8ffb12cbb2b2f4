package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"statuswise.org/internal/entitlement"
)

func (s *Store) Get(ctx context.Context, userID string) (entitlement.Entitlement, error) {
	if s.db == nil {
		return entitlement.Entitlement{}, errors.New("database connection unavailable")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return entitlement.Entitlement{}, entitlement.ErrInvalidInput
	}

	var (
		ent entitlement.Entitlement
		seq int64
	)
	err := s.db.QueryRowContext(ctx, `
		select user_id, tier, status, coalesce(external_subscription_id, ''), last_event_sequence, updated_at
		from entitlements
		where user_id = $1
	`, userID).Scan(&ent.UserID, &ent.Tier, &ent.Status, &ent.ExternalSubscriptionID, &seq, &ent.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		// Reads never fail because billing data is missing.
		return entitlement.Default(userID), nil
	}
	if err != nil {
		return entitlement.Entitlement{}, err
	}
	ent.LastEventSequence = uint64(seq)
	return ent, nil
}

func (s *Store) CreateDefault(ctx context.Context, userID string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return entitlement.ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx, `
		insert into entitlements (user_id, tier, status, last_event_sequence)
		values ($1, $2, $3, 0)
		on conflict (user_id) do nothing
	`, userID, entitlement.TierFree, entitlement.StatusActive)
	return err
}

// ApplyEvent is a single conditional upsert: the WHERE clause on the
// conflict arm enforces the monotonic sequence, so concurrent deliveries
// for the same user serialize on the row without an explicit
// transaction. RowsAffected 0 means the event was stale.
func (s *Store) ApplyEvent(ctx context.Context, userID string, upd entitlement.Update) (bool, error) {
	if s.db == nil {
		return false, errors.New("database connection unavailable")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, entitlement.ErrInvalidInput
	}
	if upd.Tier != "" && !upd.Tier.Valid() {
		return false, entitlement.ErrInvalidInput
	}
	if !upd.Status.Valid() {
		return false, entitlement.ErrInvalidInput
	}
	if upd.Sequence == 0 {
		// A fresh row starts at sequence 0, so 0 is always stale.
		return false, nil
	}

	res, err := s.db.ExecContext(ctx, `
		insert into entitlements (user_id, tier, status, external_subscription_id, last_event_sequence, updated_at)
		values ($1, coalesce(nullif($2, ''), $6), $3, nullif($4, ''), $5, now())
		on conflict (user_id) do update
		set tier                     = coalesce(nullif($2, ''), entitlements.tier),
		    status                   = excluded.status,
		    external_subscription_id = coalesce(excluded.external_subscription_id, entitlements.external_subscription_id),
		    last_event_sequence      = excluded.last_event_sequence,
		    updated_at               = now()
		where entitlements.last_event_sequence < excluded.last_event_sequence
	`, userID, string(upd.Tier), string(upd.Status), upd.ExternalID, int64(upd.Sequence), string(entitlement.TierFree))
	if err != nil {
		return false, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return aff > 0, nil
}
