// Package cachepolicy decides whether a stored snapshot can answer a live query.
package cachepolicy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"socialmetrics/internal/model"
)

// Store is the read side of the snapshot store the policy consults.
type Store interface {
	LatestSnapshot(ctx context.Context, profileID string) (model.CacheEntry, bool, error)
}

// Action is the outcome of a policy decision.
type Action int

const (
	Fetch Action = iota
	UseCache
)

func (a Action) String() string {
	if a == UseCache {
		return "use_cache"
	}
	return "fetch"
}

// Decision carries the action and, for UseCache, the entry to serve.
type Decision struct {
	Action Action
	Entry  model.CacheEntry
}

// Resolve serves from cache only when the latest snapshot is dated today (UTC).
// forceRefresh always fetches without reading the store. A failed store read is
// returned as an error and never treated as a miss.
func Resolve(ctx context.Context, store Store, profileID string, forceRefresh bool, now time.Time) (Decision, error) {
	if strings.TrimSpace(profileID) == "" {
		return Decision{}, fmt.Errorf("%w: empty profile id", model.ErrInvalidProfile)
	}
	if forceRefresh {
		return Decision{Action: Fetch}, nil
	}
	e, found, err := store.LatestSnapshot(ctx, profileID)
	if err != nil {
		return Decision{}, err
	}
	if found && model.SameDay(e.Snapshot.Date, now) {
		return Decision{Action: UseCache, Entry: e}, nil
	}
	return Decision{Action: Fetch}, nil
}
