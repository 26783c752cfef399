// Package idempotency deduplicates Pub/Sub redeliveries per consumer.
//
// A delivery first claims its event id with a short TTL. Finishing the work
// turns the claim into a long-lived done marker; a retryable failure releases
// it. A worker that dies mid-job leaves only the short claim behind, so the
// next redelivery after claimTTL runs the job again.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gamehost-backend/pkg/redis"
)

const (
	markerClaimed = "claimed"
	markerDone    = "done"

	DefaultClaimTTL = 5 * time.Minute
)

type ClaimState int

const (
	// Acquired means the caller owns the event and must Complete or Release it.
	Acquired ClaimState = iota
	// InFlight means another delivery holds the claim.
	InFlight
	// Done means the event already finished.
	Done
)

func (s ClaimState) String() string {
	switch s {
	case Acquired:
		return "acquired"
	case InFlight:
		return "in_flight"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// Manager keys markers as gh:idempotency:evt:<consumer>:<event_id>.
type Manager struct {
	store    redis.IdempotencyStore
	doneTTL  time.Duration
	claimTTL time.Duration
}

func NewManager(store redis.IdempotencyStore, doneTTL, claimTTL time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if doneTTL < 0 || claimTTL < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if claimTTL == 0 {
		claimTTL = DefaultClaimTTL
	}
	return &Manager{store: store, doneTTL: doneTTL, claimTTL: claimTTL}, nil
}

func (m *Manager) Claim(ctx context.Context, consumer string, eventID uuid.UUID) (ClaimState, error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return InFlight, err
	}
	ok, err := m.store.SetNX(ctx, key, markerClaimed, m.claimTTL)
	if err != nil {
		return InFlight, err
	}
	if ok {
		return Acquired, nil
	}
	current, err := m.store.Get(ctx, key)
	if err != nil {
		return InFlight, err
	}
	if current == markerDone {
		return Done, nil
	}
	// Still claimed, or the claim expired between SetNX and Get.
	return InFlight, nil
}

// Complete replaces the claim with the done marker.
func (m *Manager) Complete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	if err := m.store.Del(ctx, key); err != nil {
		return err
	}
	_, err = m.store.SetNX(ctx, key, markerDone, m.doneTTL)
	return err
}

func (m *Manager) Release(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) key(consumer string, eventID uuid.UUID) (string, error) {
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if eventID == uuid.Nil {
		return "", errors.New("event id is required")
	}
	return m.store.IdempotencyKey(fmt.Sprintf("evt:%s", consumer), eventID.String()), nil
}
