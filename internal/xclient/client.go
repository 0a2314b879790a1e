package xclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"socialmetrics/internal/config"
	"socialmetrics/internal/logging"
	"socialmetrics/internal/metrics"
	"socialmetrics/internal/model"
)

const userFields = "public_metrics,created_at,verified,description,url,profile_image_url,location,entities"

// HTTPClient is a bearer-token client for X API v2 that fetches a profile and its
// most recent posts.
type HTTPClient struct {
	baseURL     string
	bearerToken string
	httpClient  *http.Client
	limiter     *rate.Limiter
	maxAttempts int
	baseBackoff time.Duration
	recentPosts int
}

func NewHTTPClient(up config.UpstreamConfig, recentPosts int) *HTTPClient {
	timeout := up.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	baseURL := strings.TrimRight(up.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.twitter.com/2"
	}
	maxAttempts := up.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	backoff := up.BaseBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	if recentPosts <= 0 {
		recentPosts = 20
	}
	return &HTTPClient{
		baseURL:     baseURL,
		bearerToken: up.BearerToken,
		httpClient:  &http.Client{Timeout: timeout},
		limiter:     newLimiter(up.RequestsPerSecond, up.Burst),
		maxAttempts: maxAttempts,
		baseBackoff: backoff,
		recentPosts: recentPosts,
	}
}

func (c *HTTPClient) auth(req *http.Request) {
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}
	req.Header.Set("Accept", "application/json")
}

// Fetch returns the profile and up to the configured number of its most recent
// posts, newest first.
func (c *HTTPClient) Fetch(ctx context.Context, username string) (model.User, []model.Tweet, error) {
	u, err := c.GetUserByUsername(ctx, username)
	if err != nil {
		return model.User{}, nil, err
	}
	tweets, err := c.GetUserTweets(ctx, u.ID, c.recentPosts)
	if err != nil {
		return model.User{}, nil, err
	}
	return u, tweets, nil
}

type apiError struct {
	Title  string `json:"title"`
	Type   string `json:"type"`
	Detail string `json:"detail"`
}

func notFound(errs []apiError) bool {
	for _, e := range errs {
		if e.Title == "Not Found Error" || strings.HasSuffix(e.Type, "/resource-not-found") {
			return true
		}
	}
	return false
}

func (c *HTTPClient) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	var out model.User
	if username == "" {
		return out, fmt.Errorf("%w: empty username", model.ErrInvalidProfile)
	}
	u := fmt.Sprintf("%s/users/by/username/%s?user.fields=%s", c.baseURL, url.PathEscape(username), userFields)
	var raw struct {
		Data struct {
			ID              string    `json:"id"`
			Name            string    `json:"name"`
			Username        string    `json:"username"`
			CreatedAt       time.Time `json:"created_at"`
			Verified        bool      `json:"verified"`
			Description     string    `json:"description"`
			Location        string    `json:"location"`
			URL             string    `json:"url"`
			ProfileImageURL string    `json:"profile_image_url"`
			Entities        struct {
				URL struct {
					URLs []struct {
						ExpandedURL string `json:"expanded_url"`
					} `json:"urls"`
				} `json:"url"`
			} `json:"entities"`
			PublicMetrics struct {
				FollowersCount int `json:"followers_count"`
				FollowingCount int `json:"following_count"`
				TweetCount     int `json:"tweet_count"`
				ListedCount    int `json:"listed_count"`
				LikeCount      int `json:"like_count"`
				MediaCount     int `json:"media_count"`
			} `json:"public_metrics"`
		} `json:"data"`
		Errors []apiError `json:"errors"`
	}
	if err := c.getJSON(ctx, "/users/by/username", u, &raw); err != nil {
		return out, err
	}
	if raw.Data.ID == "" {
		if notFound(raw.Errors) {
			return out, fmt.Errorf("%w: %s", model.ErrProfileNotFound, username)
		}
		if len(raw.Errors) > 0 {
			return out, fmt.Errorf("%w: %s", model.ErrUpstreamUnavailable, raw.Errors[0].Detail)
		}
		return out, fmt.Errorf("%w: user response without data", model.ErrMalformedUpstreamData)
	}
	website := raw.Data.URL
	if urls := raw.Data.Entities.URL.URLs; len(urls) > 0 && urls[0].ExpandedURL != "" {
		website = urls[0].ExpandedURL
	}
	out = model.User{
		ID:              raw.Data.ID,
		Username:        raw.Data.Username,
		Name:            raw.Data.Name,
		Description:     raw.Data.Description,
		Location:        raw.Data.Location,
		URL:             website,
		ProfileImageURL: raw.Data.ProfileImageURL,
		CreatedAt:       raw.Data.CreatedAt,
		Verified:        raw.Data.Verified,
		FollowersCount:  raw.Data.PublicMetrics.FollowersCount,
		FollowingCount:  raw.Data.PublicMetrics.FollowingCount,
		TweetCount:      raw.Data.PublicMetrics.TweetCount,
		ListedCount:     raw.Data.PublicMetrics.ListedCount,
		LikeCount:       raw.Data.PublicMetrics.LikeCount,
		MediaCount:      raw.Data.PublicMetrics.MediaCount,
	}
	return out, nil
}

// GetUserTweets returns recent original tweets (no retweets or replies) for a user.
func (c *HTTPClient) GetUserTweets(ctx context.Context, userID string, limit int) ([]model.Tweet, error) {
	u := fmt.Sprintf("%s/users/%s/tweets?max_results=%d&tweet.fields=created_at,public_metrics,lang,attachments"+
		"&expansions=attachments.media_keys&media.fields=type,url,preview_image_url,variants&exclude=retweets,replies",
		c.baseURL, url.PathEscape(userID), clamp(limit, 5, 100))
	var raw struct {
		Data []struct {
			ID          string    `json:"id"`
			Text        string    `json:"text"`
			CreatedAt   time.Time `json:"created_at"`
			Lang        string    `json:"lang"`
			Attachments struct {
				MediaKeys []string `json:"media_keys"`
			} `json:"attachments"`
			PublicMetrics struct {
				LikeCount    int `json:"like_count"`
				ReplyCount   int `json:"reply_count"`
				RetweetCount int `json:"retweet_count"`
				QuoteCount   int `json:"quote_count"`
			} `json:"public_metrics"`
		} `json:"data"`
		Includes struct {
			Media []media `json:"media"`
		} `json:"includes"`
		Errors []apiError `json:"errors"`
	}
	if err := c.getJSON(ctx, "/users/tweets", u, &raw); err != nil {
		return nil, err
	}
	if raw.Data == nil && notFound(raw.Errors) {
		return nil, fmt.Errorf("%w: user id %s", model.ErrProfileNotFound, userID)
	}
	byKey := make(map[string]media, len(raw.Includes.Media))
	for _, m := range raw.Includes.Media {
		byKey[m.MediaKey] = m
	}
	out := make([]model.Tweet, 0, len(raw.Data))
	for _, d := range raw.Data {
		t := model.Tweet{
			ID:           d.ID,
			AuthorID:     userID,
			Text:         d.Text,
			CreatedAt:    d.CreatedAt,
			Language:     d.Lang,
			LikeCount:    d.PublicMetrics.LikeCount,
			ReplyCount:   d.PublicMetrics.ReplyCount,
			RetweetCount: d.PublicMetrics.RetweetCount,
			QuoteCount:   d.PublicMetrics.QuoteCount,
		}
		for _, k := range d.Attachments.MediaKeys {
			m, ok := byKey[k]
			if !ok {
				continue
			}
			switch m.Type {
			case "photo":
				t.Photos = append(t.Photos, m.URL)
			case "video", "animated_gif":
				if v := m.bestVariant(); v != "" {
					t.Videos = append(t.Videos, v)
				}
			}
		}
		out = append(out, t)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type media struct {
	MediaKey        string `json:"media_key"`
	Type            string `json:"type"`
	URL             string `json:"url"`
	PreviewImageURL string `json:"preview_image_url"`
	Variants        []struct {
		BitRate     int    `json:"bit_rate"`
		ContentType string `json:"content_type"`
		URL         string `json:"url"`
	} `json:"variants"`
}

// bestVariant picks the highest bit-rate mp4, falling back to the preview image.
func (m media) bestVariant() string {
	best, bitRate := "", -1
	for _, v := range m.Variants {
		if v.ContentType == "video/mp4" && v.BitRate > bitRate {
			best, bitRate = v.URL, v.BitRate
		}
	}
	if best == "" {
		return m.PreviewImageURL
	}
	return best
}

// getJSON performs a rate-limited, retried GET and decodes the body into dst.
func (c *HTTPClient) getJSON(ctx context.Context, endpoint, u string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrUpstreamUnavailable, err)
	}
	c.auth(req)
	resp, err := c.doWithRetry(ctx, endpoint, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: x api status %d", model.ErrProfileNotFound, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: x api status %d", model.ErrUpstreamUnavailable, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: decode %s: %v", model.ErrMalformedUpstreamData, endpoint, err)
	}
	return nil
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func (c *HTTPClient) doWithRetry(ctx context.Context, endpoint string, req *http.Request) (*http.Response, error) {
	backoff := c.baseBackoff
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			metrics.IncAPIRetry(endpoint)
		}
		if err := c.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// the wait would outlast the deadline
			return nil, fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
		resp, err := c.httpClient.Do(req.Clone(ctx))
		if err == nil {
			if resp.StatusCode != http.StatusTooManyRequests && (resp.StatusCode < 500 || resp.StatusCode > 599) {
				return resp, nil
			}
			lastErr = fmt.Errorf("x api status %d", resp.StatusCode)
			ra := resp.Header.Get("Retry-After")
			_ = resp.Body.Close()
			wait := backoff
			if ra != "" {
				if secs, err := strconv.Atoi(ra); err == nil {
					wait = time.Duration(secs) * time.Second
				} else if t, err := http.ParseTime(ra); err == nil {
					if d := time.Until(t); d > 0 {
						wait = d
					}
				}
			}
			// jitter +/-20%
			jitter := time.Duration(float64(wait) * 0.2)
			if jitter > 0 {
				wait = wait - jitter + time.Duration(time.Now().UnixNano()%int64(2*jitter))
			}
			if attempt == c.maxAttempts {
				break
			}
			logging.Debug("x_api_retry", map[string]any{"endpoint": endpoint, "attempt": attempt, "wait": wait.String(), "error": lastErr})
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff *= 2
			continue
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		if attempt == c.maxAttempts {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
	if lastErr == nil {
		lastErr = errors.New("no attempts made")
	}
	return nil, fmt.Errorf("%w: request failed after %d attempts: %v", model.ErrUpstreamUnavailable, c.maxAttempts, lastErr)
}
