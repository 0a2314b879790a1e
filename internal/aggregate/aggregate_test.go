package aggregate

import (
	"errors"
	"testing"
	"time"

	"socialmetrics/internal/model"
)

var asOf = time.Date(2024, 8, 26, 18, 30, 0, 0, time.UTC)

func gopher() model.User {
	return model.User{
		ID: "42", Username: "gopher", Name: " The  Gopher ", Description: "builds\n\n\n\nthings",
		ProfileImageURL: "https://pbs.twimg.com/g.jpg", URL: "https://go.dev",
		CreatedAt:  time.Date(2009, 11, 10, 23, 0, 0, 0, time.FixedZone("PST", -8*3600)),
		TweetCount: 500, FollowingCount: 10, FollowersCount: 1000, LikeCount: 77, MediaCount: 12,
	}
}

func TestZeroPostsYieldZeroAverages(t *testing.T) {
	_, snap, posts, err := Aggregate(gopher(), nil, asOf)
	if err != nil {
		t.Fatal(err)
	}
	s := snap.Stats
	if s.AvgRetweets != 0 || s.AvgLikes != 0 || s.AvgComments != 0 || s.AvgQuotes != 0 {
		t.Fatalf("expected zero averages, got %+v", s)
	}
	if posts == nil || len(posts) != 0 {
		t.Fatalf("expected empty non-nil posts, got %v", posts)
	}
	if s.Tweets != 500 || s.Followers != 1000 || s.Following != 10 || s.Likes != 77 || s.Media != 12 {
		t.Fatalf("counts must come from profile totals, got %+v", s)
	}
}

func TestAveragesRoundHalfAwayFromZero(t *testing.T) {
	tweets := []model.Tweet{
		{ID: "2", LikeCount: 1, RetweetCount: 2, ReplyCount: 0, QuoteCount: 1},
		{ID: "1", LikeCount: 2, RetweetCount: 3, ReplyCount: 0, QuoteCount: 0},
	}
	_, snap, _, err := Aggregate(gopher(), tweets, asOf)
	if err != nil {
		t.Fatal(err)
	}
	// likes 1.5 -> 2, retweets 2.5 -> 3, comments 0, quotes 0.5 -> 1
	want := model.Stats{AvgLikes: 2, AvgRetweets: 3, AvgComments: 0, AvgQuotes: 1}
	got := snap.Stats
	if got.AvgLikes != want.AvgLikes || got.AvgRetweets != want.AvgRetweets ||
		got.AvgComments != want.AvgComments || got.AvgQuotes != want.AvgQuotes {
		t.Fatalf("expected %+v, got %+v", want, got)
	}

	tweets = append(tweets, model.Tweet{ID: "0", LikeCount: 1})
	_, snap, _, _ = Aggregate(gopher(), tweets, asOf)
	// likes 4/3 = 1.33 -> 1
	if snap.Stats.AvgLikes != 1 {
		t.Fatalf("expected 1, got %d", snap.Stats.AvgLikes)
	}
}

func TestPostsPreserveOrderAndShape(t *testing.T) {
	loc := time.FixedZone("CEST", 2*3600)
	tweets := []model.Tweet{
		{ID: "3", Text: "newest  post", CreatedAt: time.Date(2024, 8, 26, 12, 0, 0, 0, loc), Photos: []string{"p1", "p2"}, Videos: []string{"v1"}},
		{ID: "2", Text: "middle"},
		{ID: "1", Text: "oldest"},
	}
	profile, snap, posts, err := Aggregate(gopher(), tweets, asOf)
	if err != nil {
		t.Fatal(err)
	}
	if len(posts) != 3 || posts[0].URL != "https://x.com/gopher/status/3" || posts[2].URL != "https://x.com/gopher/status/1" {
		t.Fatalf("order or permalinks wrong: %+v", posts)
	}
	if posts[0].Picture != "p1" || len(posts[0].Video) != 1 || posts[1].Picture != "" || posts[1].Video == nil {
		t.Fatalf("media mapping wrong: %+v", posts[:2])
	}
	if posts[0].Text != "newest post" {
		t.Fatalf("text not normalized: %q", posts[0].Text)
	}
	if model.FormatTimestamp(posts[0].Datetime) != "2024-08-26T12:00:00+02:00" {
		t.Fatalf("post offset lost: %s", model.FormatTimestamp(posts[0].Datetime))
	}
	if posts[0].User.ProfileID != "42" || posts[0].User.Username != "gopher" {
		t.Fatalf("author not set: %+v", posts[0].User)
	}
	if profile.Name != "The Gopher" || profile.Bio != "builds\n\nthings" {
		t.Fatalf("profile text not normalized: %+v", profile)
	}
	if model.FormatTimestamp(profile.Joined) != "2009-11-11T07:00:00+00:00" {
		t.Fatalf("joined not normalized to UTC: %s", model.FormatTimestamp(profile.Joined))
	}
	if model.FormatDate(snap.Date) != "2024-08-26" {
		t.Fatalf("snapshot date wrong: %v", snap.Date)
	}
}

func TestMalformedUpstreamData(t *testing.T) {
	noID := gopher()
	noID.ID = ""
	noName := gopher()
	noName.Username = ""
	negative := gopher()
	negative.FollowersCount = -1

	cases := []struct {
		name   string
		user   model.User
		tweets []model.Tweet
	}{
		{"missing id", noID, nil},
		{"missing username", noName, nil},
		{"negative count", negative, nil},
		{"post without id", gopher(), []model.Tweet{{Text: "x"}}},
		{"negative post stats", gopher(), []model.Tweet{{ID: "1", LikeCount: -3}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, _, err := Aggregate(tc.user, tc.tweets, asOf)
			if !errors.Is(err, model.ErrMalformedUpstreamData) {
				t.Fatalf("expected ErrMalformedUpstreamData, got %v", err)
			}
		})
	}
}
