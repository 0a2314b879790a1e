package response

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"socialmetrics/internal/history"
	"socialmetrics/internal/model"
)

func sampleEntry() model.CacheEntry {
	day, _ := model.ParseDate("2024-08-26")
	return model.CacheEntry{
		Snapshot: model.StatSnapshot{Date: day, Stats: model.Stats{Tweets: 500, Followers: 1000, AvgLikes: 2}},
		Profile: model.Profile{
			ID: "42", Username: "gopher", Name: "Gopher", Image: "https://pbs.twimg.com/g.jpg",
			Joined: time.Date(2009, 11, 10, 23, 0, 0, 0, time.UTC),
		},
		Posts: []model.Post{{
			User:     model.PostAuthor{Name: "Gopher", Username: "gopher", ProfileID: "42"},
			URL:      "https://x.com/gopher/status/3",
			Text:     "hello",
			Datetime: time.Date(2024, 8, 26, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600)),
		}},
	}
}

func TestFreshBodyHasNullCacheDate(t *testing.T) {
	body := NewLive(200, sampleEntry(), false)
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(raw, &generic))
	assert.Equal(t, false, generic["cache_response"])
	v, present := generic["cache_date"]
	assert.True(t, present)
	assert.Nil(t, v)

	_, ok := body.CacheDay()
	assert.False(t, ok)
}

func TestCachedBodyCarriesSnapshotDay(t *testing.T) {
	body := NewLive(200, sampleEntry(), true)
	require.NotNil(t, body.CacheDate)
	assert.Equal(t, "2024-08-26", *body.CacheDate)

	raw, err := json.Marshal(body)
	require.NoError(t, err)
	var back Live
	require.NoError(t, json.Unmarshal(raw, &back))
	day, ok := back.CacheDay()
	require.True(t, ok)
	assert.Equal(t, "2024-08-26", model.FormatDate(day))
}

func TestLiveBodyShape(t *testing.T) {
	body := NewLive(200, sampleEntry(), false)
	p := body.Result.Profile
	assert.Equal(t, "2009-11-10T23:00:00+00:00", p.Joined)
	assert.Equal(t, 1000, p.Stats.Followers)
	require.Len(t, body.Result.Tweets, 1)
	tw := body.Result.Tweets[0]
	assert.Equal(t, "2024-08-26T12:00:00+02:00", tw.Datetime)
	assert.NotNil(t, tw.Video)
	assert.Empty(t, tw.Video)

	empty := sampleEntry()
	empty.Posts = nil
	raw, err := json.Marshal(NewLive(200, empty, false))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"tweets":[]`)
}

func TestHistoryBody(t *testing.T) {
	d1, _ := model.ParseDate("2024-08-22")
	d2, _ := model.ParseDate("2024-08-24")
	body := NewHistory(200, "gopher", []history.Point{
		{Date: d1, Stats: model.Stats{Followers: 1}},
		{Date: d2, Stats: model.Stats{Followers: 2}},
	})
	require.Len(t, body.Result, 2)
	assert.Equal(t, "2024-08-22", body.Result[0].Date)
	assert.Equal(t, 2, body.Result[1].Stats.Followers)

	raw, err := json.Marshal(NewHistory(200, "gopher", nil))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"result":[]`)
}

func TestErrorBody(t *testing.T) {
	body := NewError(404, errors.New("profile not found"))
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":404,"error":"profile not found"}`, string(raw))
}
