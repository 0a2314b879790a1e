// Package response builds the JSON bodies returned by the query API.
package response

import (
	"time"

	"socialmetrics/internal/history"
	"socialmetrics/internal/model"
)

// Live is the body of a live or cached profile query.
type Live struct {
	Status        int        `json:"status"`
	CacheResponse bool       `json:"cache_response"`
	CacheDate     *string    `json:"cache_date"`
	Result        LiveResult `json:"result"`
}

type LiveResult struct {
	Profile Profile `json:"profile"`
	Tweets  []Post  `json:"tweets"`
}

type Profile struct {
	Image    string      `json:"image"`
	Name     string      `json:"name"`
	Username string      `json:"username"`
	ID       string      `json:"id"`
	Bio      string      `json:"bio"`
	Location string      `json:"location"`
	Website  string      `json:"website"`
	Joined   string      `json:"joined"`
	Stats    model.Stats `json:"stats"`
}

type Post struct {
	User       model.PostAuthor `json:"user"`
	URL        string           `json:"url"`
	Text       string           `json:"text"`
	Picture    string           `json:"picture"`
	Video      []string         `json:"video"`
	Statistics model.PostStats  `json:"statistics"`
	Datetime   string           `json:"datetime"`
}

// History is the body of a history query.
type History struct {
	Status int            `json:"status"`
	User   string         `json:"user"`
	Result []HistoryPoint `json:"result"`
}

type HistoryPoint struct {
	Date  string      `json:"date"`
	Stats model.Stats `json:"stats"`
}

// Error is the body of any failed query.
type Error struct {
	Status int    `json:"status"`
	Error  string `json:"error"`
}

// NewLive assembles a live body. cache_date is the snapshot day when the entry
// was served from cache and null when it was freshly fetched.
func NewLive(status int, e model.CacheEntry, fromCache bool) Live {
	out := Live{Status: status, CacheResponse: fromCache}
	if fromCache {
		d := model.FormatDate(e.Snapshot.Date)
		out.CacheDate = &d
	}
	p := e.Profile
	out.Result.Profile = Profile{
		Image:    p.Image,
		Name:     p.Name,
		Username: p.Username,
		ID:       p.ID,
		Bio:      p.Bio,
		Location: p.Location,
		Website:  p.Website,
		Joined:   model.FormatTimestamp(p.Joined),
		Stats:    e.Snapshot.Stats,
	}
	out.Result.Tweets = make([]Post, 0, len(e.Posts))
	for _, t := range e.Posts {
		video := t.Video
		if video == nil {
			video = []string{}
		}
		out.Result.Tweets = append(out.Result.Tweets, Post{
			User:       t.User,
			URL:        t.URL,
			Text:       t.Text,
			Picture:    t.Picture,
			Video:      video,
			Statistics: t.Statistics,
			Datetime:   model.FormatTimestamp(t.Datetime),
		})
	}
	return out
}

// NewHistory assembles a history body; points keep their order.
func NewHistory(status int, user string, points []history.Point) History {
	out := History{Status: status, User: user, Result: make([]HistoryPoint, 0, len(points))}
	for _, p := range points {
		out.Result = append(out.Result, HistoryPoint{Date: model.FormatDate(p.Date), Stats: p.Stats})
	}
	return out
}

// NewError assembles an error body.
func NewError(status int, err error) Error {
	return Error{Status: status, Error: err.Error()}
}

// CacheDay parses a body's cache_date back into a day; ok is false for fresh bodies.
func (l Live) CacheDay() (day time.Time, ok bool) {
	if l.CacheDate == nil {
		return time.Time{}, false
	}
	d, err := model.ParseDate(*l.CacheDate)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}
