package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// dedupTTL bounds how long webhook event ids are remembered. Providers stop
// redelivering well inside this window.
const dedupTTL = 24 * time.Hour

// EventDeduper remembers webhook event ids in Redis so duplicate deliveries
// are dropped before they reach the state machine.
type EventDeduper struct {
	rdb *redis.Client
}

func NewEventDeduper(rdb *redis.Client) *EventDeduper {
	return &EventDeduper{rdb: rdb}
}

// Seen records eventID and reports whether it was already recorded. SETNX
// makes the record-and-check a single atomic step across instances.
func (d *EventDeduper) Seen(ctx context.Context, eventID string) (bool, error) {
	key := fmt.Sprintf("webhook:evt:%s", eventID)
	set, err := d.rdb.SetNX(ctx, key, 1, dedupTTL).Result()
	if err != nil {
		return false, fmt.Errorf("dedup setnx: %w", err)
	}
	return !set, nil
}
