package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"socialmetrics/internal/logging"
	"socialmetrics/internal/metrics"
	"socialmetrics/internal/model"
	"socialmetrics/internal/response"
)

const lastRunKey = "refresh:last_day"

// Refresher is the live query path; refreshes always force a fetch.
type Refresher interface {
	Live(ctx context.Context, profileID string, forceRefresh bool) (response.Live, error)
}

type CursorStore interface {
	SaveCursor(ctx context.Context, key, value string) error
	LoadCursor(ctx context.Context, key string) (string, error)
}

// Refresh takes a fresh snapshot of every tracked profile so history gets a
// point per day even for profiles nobody queried.
type Refresh struct {
	Service     Refresher
	Cursors     CursorStore
	Profiles    []string
	Parallelism int
	Clock       clockwork.Clock
}

// RunOnce refreshes all tracked profiles, at most Parallelism at a time. A
// failing profile does not stop the others; failures are joined into the
// returned error.
func (r *Refresh) RunOnce(ctx context.Context) error {
	clock := r.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	profiles := dedupe(r.Profiles)
	start := time.Now()
	metrics.RefreshRuns.Inc()

	errs := make([]error, len(profiles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(r.Parallelism, 1))
	for i, id := range profiles {
		g.Go(func() error {
			if _, err := r.Service.Live(gctx, id, true); err != nil {
				metrics.RefreshErrors.Inc()
				errs[i] = fmt.Errorf("%s: %w", id, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	err := errors.Join(errs...)
	failed := 0
	for _, e := range errs {
		if e != nil {
			failed++
		}
	}
	// a run where every profile failed leaves the day open for CatchUp
	if ctx.Err() == nil && (len(profiles) == 0 || failed < len(profiles)) {
		if serr := r.Cursors.SaveCursor(ctx, lastRunKey, model.FormatDate(clock.Now())); serr != nil {
			err = errors.Join(err, serr)
		}
	}
	logging.Info("refresh_once", map[string]any{
		"profiles": len(profiles),
		"failed":   failed,
		"took_ms":  time.Since(start).Milliseconds(),
	})
	return err
}

// CatchUp runs the refresh when no run has been recorded for today, e.g. after
// the process was down at the scheduled time.
func (r *Refresh) CatchUp(ctx context.Context) (bool, error) {
	clock := r.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	last, err := r.Cursors.LoadCursor(ctx, lastRunKey)
	if err != nil {
		return false, err
	}
	if last == model.FormatDate(clock.Now()) {
		return false, nil
	}
	return true, r.RunOnce(ctx)
}

// Schedule runs the refresh on a cron expression evaluated in UTC until ctx ends.
// Each run is bounded by jobTimeout.
func Schedule(ctx context.Context, expr string, r *Refresh, jobTimeout time.Duration) error {
	if jobTimeout <= 0 {
		jobTimeout = 30 * time.Minute
	}
	c := cron.New(cron.WithLocation(time.UTC))
	_, err := c.AddFunc(expr, func() {
		jctx, cancel := context.WithTimeout(ctx, jobTimeout)
		defer cancel()
		if err := r.RunOnce(jctx); err != nil {
			logging.Error("refresh_error", map[string]any{"error": err})
		}
	})
	if err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", expr, err)
	}
	logging.Info("refresh_scheduled", map[string]any{"schedule": expr, "profiles": len(r.Profiles)})

	if ran, err := r.CatchUp(ctx); err != nil {
		logging.Error("refresh_error", map[string]any{"error": err, "catch_up": true})
	} else if ran {
		logging.Info("refresh_caught_up", nil)
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	logging.Info("refresh_stop", nil)
	return ctx.Err()
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = model.NormalizeProfileID(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
