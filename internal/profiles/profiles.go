// Package profiles answers live and history queries for a profile: it consults
// the cache policy, fetches and aggregates on a miss, persists the day's
// snapshot and assembles the response body.
package profiles

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"socialmetrics/internal/aggregate"
	"socialmetrics/internal/cachepolicy"
	"socialmetrics/internal/history"
	"socialmetrics/internal/logging"
	"socialmetrics/internal/metrics"
	"socialmetrics/internal/model"
	"socialmetrics/internal/response"
)

// Fetcher retrieves a profile and its most recent posts, newest first.
type Fetcher interface {
	Fetch(ctx context.Context, username string) (model.User, []model.Tweet, error)
}

// Store is everything the service needs from the snapshot store.
type Store interface {
	cachepolicy.Store
	history.Store
	WriteSnapshot(ctx context.Context, profileID string, e model.CacheEntry) error
}

type Options struct {
	Clock clockwork.Clock
	// Upper bound for one shared fetch-aggregate-write cycle.
	FetchTimeout time.Duration
	// History span used when a query has no lower bound.
	HistoryDays int
}

type Service struct {
	store        Store
	fetcher      Fetcher
	history      *history.Service
	clock        clockwork.Clock
	fetchTimeout time.Duration
	historyDays  int

	mu      sync.Mutex // guards flights only
	flights map[string]*flight
}

// flight is one in-progress refresh shared by every caller waiting on it.
type flight struct {
	done    chan struct{}
	entry   model.CacheEntry
	err     error
	waiters int
	cancel  context.CancelFunc
}

func New(store Store, fetcher Fetcher, opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 60 * time.Second
	}
	if opts.HistoryDays <= 0 {
		opts.HistoryDays = 30
	}
	return &Service{
		store:        store,
		fetcher:      fetcher,
		history:      history.NewService(store),
		clock:        opts.Clock,
		fetchTimeout: opts.FetchTimeout,
		historyDays:  opts.HistoryDays,
		flights:      make(map[string]*flight),
	}
}

// Live returns today's view of the profile, from cache when the latest snapshot
// is dated today and forceRefresh is false.
func (s *Service) Live(ctx context.Context, profileID string, forceRefresh bool) (response.Live, error) {
	id := model.NormalizeProfileID(profileID)
	d, err := cachepolicy.Resolve(ctx, s.store, id, forceRefresh, s.clock.Now())
	if err != nil {
		return response.Live{}, err
	}
	switch {
	case d.Action == cachepolicy.UseCache:
		metrics.IncCacheLookup("hit")
		logging.Debug("cache hit", map[string]any{"profile": id, "day": model.FormatDate(d.Entry.Snapshot.Date)})
		return response.NewLive(http.StatusOK, d.Entry, true), nil
	case forceRefresh:
		metrics.IncCacheLookup("forced")
	default:
		metrics.IncCacheLookup("miss")
	}

	entry, err := s.fetchShared(ctx, id)
	if err != nil {
		return response.Live{}, err
	}
	return response.NewLive(http.StatusOK, entry, false), nil
}

// fetchShared runs at most one refresh per profile at a time; late callers join
// the running one. The refresh is bounded by fetchTimeout and is cancelled once
// every caller waiting on it has given up.
func (s *Service) fetchShared(ctx context.Context, id string) (model.CacheEntry, error) {
	s.mu.Lock()
	f, ok := s.flights[id]
	if ok {
		f.waiters++
		s.mu.Unlock()
		metrics.SharedFetches.Inc()
	} else {
		// no single caller owns the refresh; only the last one leaving cancels it
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
		f = &flight{done: make(chan struct{}), waiters: 1, cancel: cancel}
		s.flights[id] = f
		s.mu.Unlock()
		go s.run(fctx, id, f)
	}

	select {
	case <-f.done:
		return f.entry, f.err
	case <-ctx.Done():
		s.leave(id, f)
		return model.CacheEntry{}, ctx.Err()
	}
}

func (s *Service) run(ctx context.Context, id string, f *flight) {
	defer f.cancel()
	f.entry, f.err = s.refresh(ctx, id)
	s.mu.Lock()
	if s.flights[id] == f {
		delete(s.flights, id)
	}
	s.mu.Unlock()
	close(f.done)
}

// leave drops one waiter; the last one out cancels the refresh and frees the
// slot so the next caller starts a new one.
func (s *Service) leave(id string, f *flight) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if s.flights[id] == f {
		delete(s.flights, id)
	}
}

// refresh fetches, aggregates and persists one profile. Nothing is written
// unless every step before the write succeeded.
func (s *Service) refresh(ctx context.Context, id string) (model.CacheEntry, error) {
	start := time.Now()
	defer metrics.ObserveFetchDuration(start)
	metrics.UpstreamFetches.Inc()

	u, tweets, err := s.fetcher.Fetch(ctx, id)
	if err != nil {
		return model.CacheEntry{}, s.failed(id, "fetch", err)
	}
	now := s.clock.Now()
	profile, snap, posts, err := aggregate.Aggregate(u, tweets, now)
	if err != nil {
		return model.CacheEntry{}, s.failed(id, "aggregate", err)
	}
	if err := ctx.Err(); err != nil {
		return model.CacheEntry{}, s.failed(id, "aggregate", err)
	}
	entry := model.CacheEntry{Snapshot: snap, Profile: profile, Posts: posts, FetchedAt: now.UTC()}
	if err := s.store.WriteSnapshot(ctx, id, entry); err != nil {
		if !errors.Is(err, model.ErrStoreUnavailable) && ctx.Err() == nil {
			err = fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
		}
		return model.CacheEntry{}, s.failed(id, "write", err)
	}
	logging.Info("snapshot stored", map[string]any{
		"profile":   id,
		"day":       model.FormatDate(snap.Date),
		"posts":     len(posts),
		"followers": snap.Stats.Followers,
		"took_ms":   time.Since(start).Milliseconds(),
	})
	return entry, nil
}

func (s *Service) failed(id, stage string, err error) error {
	kind := ErrorKind(err)
	metrics.IncFetchError(kind)
	logging.Warn("refresh failed", map[string]any{"profile": id, "stage": stage, "kind": kind, "error": err})
	return err
}

// History returns the stored daily points for the profile. Nil bounds default
// to today and HistoryDays before the upper bound.
func (s *Service) History(ctx context.Context, profileID string, from, to *time.Time) (response.History, error) {
	id := model.NormalizeProfileID(profileID)
	start, end := history.DefaultRange(from, to, s.clock.Now(), s.historyDays)
	points, err := s.history.History(ctx, id, start, end)
	if err != nil {
		return response.History{}, err
	}
	return response.NewHistory(http.StatusOK, id, points), nil
}

// ErrorKind names the failure class of err for metrics and logs.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, model.ErrProfileNotFound):
		return "not_found"
	case errors.Is(err, model.ErrMalformedUpstreamData):
		return "malformed"
	case errors.Is(err, model.ErrUpstreamUnavailable):
		return "upstream"
	case errors.Is(err, model.ErrStoreUnavailable):
		return "store"
	case errors.Is(err, model.ErrInvalidRange), errors.Is(err, model.ErrInvalidProfile):
		return "invalid"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "other"
	}
}
