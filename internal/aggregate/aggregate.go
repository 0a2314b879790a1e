// Package aggregate turns a fetched profile and its recent posts into the
// canonical profile record, the day's statistics snapshot and the post list.
package aggregate

import (
	"fmt"
	"math"
	"time"

	"socialmetrics/internal/model"
	"socialmetrics/internal/util"
)

// PermalinkBase prefixes post permalinks.
const PermalinkBase = "https://x.com"

// Aggregate validates the upstream profile and computes the snapshot for asOf's
// UTC day. Counts come from the profile totals; averages are means over all
// posts, rounded half away from zero, and zero when there are no posts. Post
// order is preserved.
func Aggregate(u model.User, tweets []model.Tweet, asOf time.Time) (model.Profile, model.StatSnapshot, []model.Post, error) {
	if err := validate(u, tweets); err != nil {
		return model.Profile{}, model.StatSnapshot{}, nil, err
	}
	profile := model.Profile{
		ID:       u.ID,
		Name:     util.NormalizeWhitespace(u.Name),
		Username: u.Username,
		Bio:      util.NormalizeMultiline(u.Description),
		Location: util.NormalizeWhitespace(u.Location),
		Website:  u.URL,
		Image:    u.ProfileImageURL,
	}
	if !u.CreatedAt.IsZero() {
		profile.Joined = u.CreatedAt.UTC()
	}

	author := model.PostAuthor{Name: profile.Name, Username: u.Username, ProfileID: u.ID, Avatar: u.ProfileImageURL}
	posts := make([]model.Post, 0, len(tweets))
	var retweets, likes, comments, quotes int
	for _, t := range tweets {
		p := model.Post{
			User:     author,
			URL:      fmt.Sprintf("%s/%s/status/%s", PermalinkBase, u.Username, t.ID),
			Text:     util.NormalizeMultiline(t.Text),
			Video:    []string{},
			Datetime: t.CreatedAt,
			Statistics: model.PostStats{
				Comments: t.ReplyCount,
				Retweets: t.RetweetCount,
				Quotes:   t.QuoteCount,
				Likes:    t.LikeCount,
			},
		}
		if len(t.Photos) > 0 {
			p.Picture = t.Photos[0]
		}
		p.Video = append(p.Video, t.Videos...)
		posts = append(posts, p)

		retweets += t.RetweetCount
		likes += t.LikeCount
		comments += t.ReplyCount
		quotes += t.QuoteCount
	}

	snap := model.StatSnapshot{
		Date: model.Day(asOf),
		Stats: model.Stats{
			Tweets:      u.TweetCount,
			Following:   u.FollowingCount,
			Followers:   u.FollowersCount,
			Likes:       u.LikeCount,
			Media:       u.MediaCount,
			AvgRetweets: mean(retweets, len(tweets)),
			AvgLikes:    mean(likes, len(tweets)),
			AvgComments: mean(comments, len(tweets)),
			AvgQuotes:   mean(quotes, len(tweets)),
		},
	}
	return profile, snap, posts, nil
}

// mean rounds half away from zero, which is what math.Round does.
func mean(sum, n int) int {
	if n == 0 {
		return 0
	}
	return int(math.Round(float64(sum) / float64(n)))
}

func validate(u model.User, tweets []model.Tweet) error {
	if u.ID == "" {
		return fmt.Errorf("%w: profile id missing", model.ErrMalformedUpstreamData)
	}
	if u.Username == "" {
		return fmt.Errorf("%w: username missing", model.ErrMalformedUpstreamData)
	}
	for name, v := range map[string]int{
		"tweets": u.TweetCount, "following": u.FollowingCount, "followers": u.FollowersCount,
		"likes": u.LikeCount, "media": u.MediaCount,
	} {
		if v < 0 {
			return fmt.Errorf("%w: negative %s count", model.ErrMalformedUpstreamData, name)
		}
	}
	for i, t := range tweets {
		if t.ID == "" {
			return fmt.Errorf("%w: post %d has no id", model.ErrMalformedUpstreamData, i)
		}
		if t.LikeCount < 0 || t.ReplyCount < 0 || t.RetweetCount < 0 || t.QuoteCount < 0 {
			return fmt.Errorf("%w: post %s has negative statistics", model.ErrMalformedUpstreamData, t.ID)
		}
	}
	return nil
}
