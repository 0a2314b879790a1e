// Package history answers date-range queries over stored daily snapshots.
package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"socialmetrics/internal/model"
)

// Store is the range-query side of the snapshot store.
type Store interface {
	SnapshotsInRange(ctx context.Context, profileID string, from, to time.Time) ([]model.StatSnapshot, error)
}

// Point is one day of history.
type Point struct {
	Date  time.Time
	Stats model.Stats
}

// Service shapes snapshot ranges into history points.
type Service struct {
	store Store
}

func NewService(store Store) *Service { return &Service{store: store} }

// History returns the profile's daily points with from <= date <= to, ascending.
// An empty range is a valid, empty answer.
func (s *Service) History(ctx context.Context, profileID string, from, to time.Time) ([]Point, error) {
	if strings.TrimSpace(profileID) == "" {
		return nil, fmt.Errorf("%w: empty profile id", model.ErrInvalidProfile)
	}
	from, to = model.Day(from), model.Day(to)
	if from.After(to) {
		return nil, fmt.Errorf("%w: from %s is after to %s", model.ErrInvalidRange, model.FormatDate(from), model.FormatDate(to))
	}
	snaps, err := s.store.SnapshotsInRange(ctx, profileID, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]Point, 0, len(snaps))
	for _, sn := range snaps {
		out = append(out, Point{Date: sn.Date, Stats: sn.Stats})
	}
	return out, nil
}

// DefaultRange fills missing bounds: to defaults to today, from to `days` days
// before to. Either pointer may be nil.
func DefaultRange(from, to *time.Time, now time.Time, days int) (time.Time, time.Time) {
	end := model.Day(now)
	if to != nil {
		end = model.Day(*to)
	}
	if days <= 0 {
		days = 30
	}
	start := end.AddDate(0, 0, -days)
	if from != nil {
		start = model.Day(*from)
	}
	return start, end
}
