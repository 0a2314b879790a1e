package xclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"socialmetrics/internal/config"
	"socialmetrics/internal/model"
)

// helper to create client pointed at a test server
func newTestClient(ts *httptest.Server) *HTTPClient {
	up := config.Default().Upstream
	up.BaseURL = ts.URL
	up.BearerToken = "test"
	up.MaxAttempts = 3
	up.BaseBackoff = 10 * time.Millisecond
	up.RequestsPerSecond = 1000
	c := NewHTTPClient(up, 3)
	c.httpClient = ts.Client()
	return c
}

func TestDoWithRetryHandles429(t *testing.T) {
	var attempts int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer ts.Close()

	c := newTestClient(ts)
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/test", nil)
	resp, err := c.doWithRetry(context.Background(), "/test", req)
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if atomic.LoadInt32(&attempts) < 2 {
		t.Fatalf("expected at least 2 attempts, got %d", attempts)
	}
}

func TestDoWithRetryGivesUpAsUpstreamUnavailable(t *testing.T) {
	var attempts int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	c := newTestClient(ts)
	_, err := c.GetUserByUsername(context.Background(), "gopher")
	if !errors.Is(err, model.ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestFetchMapsProfileAndTweets(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test" {
			t.Errorf("missing bearer token")
		}
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasPrefix(r.URL.Path, "/users/by/username/gopher"):
			_, _ = w.Write([]byte(`{"data":{"id":"42","name":"Gopher","username":"gopher",
				"created_at":"2009-11-10T23:00:00.000Z","description":"go go","location":"Cloud",
				"url":"https://t.co/abc","profile_image_url":"https://pbs.twimg.com/g.jpg",
				"entities":{"url":{"urls":[{"expanded_url":"https://go.dev"}]}},
				"public_metrics":{"followers_count":1000,"following_count":10,"tweet_count":500,
				"listed_count":3,"like_count":77,"media_count":12}}}`))
		case r.URL.Path == "/users/42/tweets":
			if r.URL.Query().Get("max_results") != "5" {
				t.Errorf("expected max_results clamped to 5, got %s", r.URL.Query().Get("max_results"))
			}
			_, _ = w.Write([]byte(`{"data":[
				{"id":"3","text":"newest","created_at":"2024-08-26T10:00:00.000Z","attachments":{"media_keys":["m1","m2"]},
				 "public_metrics":{"like_count":10,"reply_count":1,"retweet_count":2,"quote_count":0}},
				{"id":"2","text":"middle","created_at":"2024-08-25T10:00:00.000Z",
				 "public_metrics":{"like_count":5,"reply_count":0,"retweet_count":1,"quote_count":1}},
				{"id":"1","text":"old","created_at":"2024-08-24T10:00:00.000Z",
				 "public_metrics":{"like_count":1,"reply_count":0,"retweet_count":0,"quote_count":0}},
				{"id":"0","text":"oldest","created_at":"2024-08-23T10:00:00.000Z",
				 "public_metrics":{"like_count":1,"reply_count":0,"retweet_count":0,"quote_count":0}}],
				"includes":{"media":[
				 {"media_key":"m1","type":"photo","url":"https://pbs.twimg.com/p.jpg"},
				 {"media_key":"m2","type":"video","preview_image_url":"https://pbs.twimg.com/v.jpg","variants":[
				   {"content_type":"application/x-mpegURL","url":"https://video.twimg.com/v.m3u8"},
				   {"content_type":"video/mp4","bit_rate":256000,"url":"https://video.twimg.com/low.mp4"},
				   {"content_type":"video/mp4","bit_rate":2176000,"url":"https://video.twimg.com/high.mp4"}]}]}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	c := newTestClient(ts)
	u, tweets, err := c.Fetch(context.Background(), "gopher")
	if err != nil {
		t.Fatal(err)
	}
	if u.ID != "42" || u.URL != "https://go.dev" || u.LikeCount != 77 || u.MediaCount != 12 {
		t.Fatalf("unexpected user %+v", u)
	}
	if len(tweets) != 3 {
		t.Fatalf("expected window of 3 tweets, got %d", len(tweets))
	}
	if tweets[0].ID != "3" || tweets[2].ID != "1" {
		t.Fatalf("order not preserved: %s..%s", tweets[0].ID, tweets[2].ID)
	}
	if len(tweets[0].Photos) != 1 || tweets[0].Videos[0] != "https://video.twimg.com/high.mp4" {
		t.Fatalf("media not mapped: %+v", tweets[0])
	}
}

func TestNotFoundProfile(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"errors":[{"title":"Not Found Error","type":"https://api.twitter.com/2/problems/resource-not-found","detail":"Could not find user with username: [ghost]."}]}`))
	}))
	defer ts.Close()

	c := newTestClient(ts)
	_, _, err := c.Fetch(context.Background(), "ghost")
	if !errors.Is(err, model.ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
}

func TestMalformedBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":`))
	}))
	defer ts.Close()

	c := newTestClient(ts)
	_, err := c.GetUserByUsername(context.Background(), "gopher")
	if !errors.Is(err, model.ErrMalformedUpstreamData) {
		t.Fatalf("expected ErrMalformedUpstreamData, got %v", err)
	}
}

func TestCancelledContextStopsRetries(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	c := newTestClient(ts)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := c.GetUserByUsername(ctx, "gopher")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("retry wait ignored cancellation")
	}
}
