package model

import "time"

// User is the subset of upstream account fields the fetcher returns.
type User struct {
	ID              string
	Username        string
	Name            string
	Description     string
	Location        string
	URL             string
	ProfileImageURL string
	CreatedAt       time.Time
	FollowersCount  int
	FollowingCount  int
	TweetCount      int
	ListedCount     int
	LikeCount       int
	MediaCount      int
	Verified        bool
}

// Tweet is the subset of upstream post fields the fetcher returns.
type Tweet struct {
	ID           string
	AuthorID     string
	Text         string
	CreatedAt    time.Time
	LikeCount    int
	ReplyCount   int
	RetweetCount int
	QuoteCount   int
	Language     string
	Photos       []string
	Videos       []string
}

// Stats is the canonical statistics block of a profile.
type Stats struct {
	Tweets      int `json:"tweets"`
	Following   int `json:"following"`
	Followers   int `json:"followers"`
	Likes       int `json:"likes"`
	Media       int `json:"media"`
	AvgRetweets int `json:"avgRetweets"`
	AvgLikes    int `json:"avgLikes"`
	AvgComments int `json:"avgComments"`
	AvgQuotes   int `json:"avgQuotes"`
}

// StatSnapshot is one day's statistics for a profile.
type StatSnapshot struct {
	Date  time.Time
	Stats Stats
}

// Profile is the normalized profile record, replaced wholesale on refresh.
type Profile struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Username string    `json:"username"`
	Bio      string    `json:"bio"`
	Location string    `json:"location"`
	Website  string    `json:"website"`
	Image    string    `json:"image"`
	Joined   time.Time `json:"joined"`
}

// PostAuthor references the author of a post.
type PostAuthor struct {
	Name      string `json:"name"`
	Username  string `json:"username"`
	ProfileID string `json:"profile_id"`
	Avatar    string `json:"avatar"`
}

// PostStats are the per-post engagement counters.
type PostStats struct {
	Comments int `json:"comments"`
	Retweets int `json:"retweets"`
	Quotes   int `json:"quotes"`
	Likes    int `json:"likes"`
}

// Post is a normalized recent post.
type Post struct {
	User       PostAuthor `json:"user"`
	URL        string     `json:"url"`
	Text       string     `json:"text"`
	Picture    string     `json:"picture"`
	Video      []string   `json:"video"`
	Statistics PostStats  `json:"statistics"`
	Datetime   time.Time  `json:"datetime"`
}

// CacheEntry is what a single successful fetch leaves behind in the store.
type CacheEntry struct {
	Snapshot  StatSnapshot
	Profile   Profile
	Posts     []Post
	FetchedAt time.Time
}
