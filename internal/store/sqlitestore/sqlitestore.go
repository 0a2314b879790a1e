package sqlitestore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"
	_ "modernc.org/sqlite"

	"socialmetrics/internal/metrics"
	"socialmetrics/internal/model"
)

//go:embed migrations/*.sql
var migrations embed.FS

// DB is the SQLite-backed snapshot store. Rows are keyed by (profile, day).
type DB struct{ sql *sql.DB }

// Open opens (or creates) the database at path and applies pending migrations.
// Pragmas go through the DSN so every pooled connection gets them.
func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	d, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// single writer; upserts for distinct keys queue here instead of failing with SQLITE_BUSY
	d.SetMaxOpenConns(1)
	db := &DB{sql: d}
	if err := db.migrate(context.Background()); err != nil {
		_ = d.Close()
		return nil, err
	}
	return db, nil
}

func (d *DB) Close() error { return d.sql.Close() }

// Ping checks the database is reachable.
func (d *DB) Ping(ctx context.Context) error {
	if err := d.sql.PingContext(ctx); err != nil {
		return d.fail(ctx, "ping", err)
	}
	return nil
}

func (d *DB) migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}
	p, err := goose.NewProvider(database.DialectSQLite3, d.sql, fsys)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	if _, err := p.Up(ctx); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	return nil
}

// WriteSnapshot upserts the entry for (profileID, entry day). A second write for
// the same day replaces the stored values.
func (d *DB) WriteSnapshot(ctx context.Context, profileID string, e model.CacheEntry) error {
	pb, err := json.Marshal(e.Profile)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	posts := e.Posts
	if posts == nil {
		posts = []model.Post{}
	}
	tb, err := json.Marshal(posts)
	if err != nil {
		return fmt.Errorf("encode posts: %w", err)
	}
	s := e.Snapshot.Stats
	_, err = d.sql.ExecContext(ctx, `
	INSERT INTO snapshots(profile, day, tweets, following, followers, likes, media,
	  avg_retweets, avg_likes, avg_comments, avg_quotes, profile_json, posts_json, fetched_at)
	VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	ON CONFLICT(profile, day) DO UPDATE SET
	  tweets=excluded.tweets, following=excluded.following, followers=excluded.followers,
	  likes=excluded.likes, media=excluded.media,
	  avg_retweets=excluded.avg_retweets, avg_likes=excluded.avg_likes,
	  avg_comments=excluded.avg_comments, avg_quotes=excluded.avg_quotes,
	  profile_json=excluded.profile_json, posts_json=excluded.posts_json,
	  fetched_at=excluded.fetched_at`,
		model.NormalizeProfileID(profileID), model.FormatDate(e.Snapshot.Date),
		s.Tweets, s.Following, s.Followers, s.Likes, s.Media,
		s.AvgRetweets, s.AvgLikes, s.AvgComments, s.AvgQuotes,
		string(pb), string(tb), e.FetchedAt.UTC().UnixMilli())
	if err != nil {
		return d.fail(ctx, "write snapshot", err)
	}
	return nil
}

// LatestSnapshot returns the most recent entry for profileID; found is false when
// the profile has never been stored.
func (d *DB) LatestSnapshot(ctx context.Context, profileID string) (e model.CacheEntry, found bool, err error) {
	row := d.sql.QueryRowContext(ctx, `
	SELECT day, tweets, following, followers, likes, media,
	  avg_retweets, avg_likes, avg_comments, avg_quotes, profile_json, posts_json, fetched_at
	FROM snapshots WHERE profile=? ORDER BY day DESC LIMIT 1`, model.NormalizeProfileID(profileID))
	var (
		day           string
		s             model.Stats
		pjson, tjson  string
		fetchedMillis int64
	)
	err = row.Scan(&day, &s.Tweets, &s.Following, &s.Followers, &s.Likes, &s.Media,
		&s.AvgRetweets, &s.AvgLikes, &s.AvgComments, &s.AvgQuotes, &pjson, &tjson, &fetchedMillis)
	if errors.Is(err, sql.ErrNoRows) {
		return e, false, nil
	}
	if err != nil {
		return e, false, d.fail(ctx, "latest snapshot", err)
	}
	date, err := model.ParseDate(day)
	if err != nil {
		return e, false, d.fail(ctx, "latest snapshot", err)
	}
	if err := json.Unmarshal([]byte(pjson), &e.Profile); err != nil {
		return e, false, d.fail(ctx, "decode profile", err)
	}
	if err := json.Unmarshal([]byte(tjson), &e.Posts); err != nil {
		return e, false, d.fail(ctx, "decode posts", err)
	}
	e.Snapshot = model.StatSnapshot{Date: date, Stats: s}
	e.FetchedAt = time.UnixMilli(fetchedMillis).UTC()
	return e, true, nil
}

// SnapshotsInRange returns snapshots with from <= day <= to in ascending day order.
func (d *DB) SnapshotsInRange(ctx context.Context, profileID string, from, to time.Time) ([]model.StatSnapshot, error) {
	rows, err := d.sql.QueryContext(ctx, `
	SELECT day, tweets, following, followers, likes, media,
	  avg_retweets, avg_likes, avg_comments, avg_quotes
	FROM snapshots WHERE profile=? AND day>=? AND day<=? ORDER BY day`,
		model.NormalizeProfileID(profileID), model.FormatDate(from), model.FormatDate(to))
	if err != nil {
		return nil, d.fail(ctx, "range query", err)
	}
	defer rows.Close()
	out := []model.StatSnapshot{}
	for rows.Next() {
		var day string
		var s model.Stats
		if err := rows.Scan(&day, &s.Tweets, &s.Following, &s.Followers, &s.Likes, &s.Media,
			&s.AvgRetweets, &s.AvgLikes, &s.AvgComments, &s.AvgQuotes); err != nil {
			return nil, d.fail(ctx, "range scan", err)
		}
		date, err := model.ParseDate(day)
		if err != nil {
			return nil, d.fail(ctx, "range scan", err)
		}
		out = append(out, model.StatSnapshot{Date: date, Stats: s})
	}
	if err := rows.Err(); err != nil {
		return nil, d.fail(ctx, "range query", err)
	}
	return out, nil
}

// SaveCursor stores a small named marker, e.g. the day of the last refresh run.
func (d *DB) SaveCursor(ctx context.Context, key, value string) error {
	_, err := d.sql.ExecContext(ctx, `INSERT INTO cursors(key, value) VALUES(?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`, key, value)
	if err != nil {
		return d.fail(ctx, "save cursor", err)
	}
	return nil
}

// LoadCursor returns the stored marker or "" when unset.
func (d *DB) LoadCursor(ctx context.Context, key string) (string, error) {
	var v string
	err := d.sql.QueryRowContext(ctx, `SELECT value FROM cursors WHERE key=?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", d.fail(ctx, "load cursor", err)
	}
	return v, nil
}

// fail classifies err: caller cancellation passes through, anything else is
// reported as the store being unavailable.
func (d *DB) fail(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	metrics.IncStoreError(op)
	return fmt.Errorf("%w: %s: %w", model.ErrStoreUnavailable, op, err)
}
