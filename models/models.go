package models

// Author is a tracked account on the upstream platform
type Author struct {
	Id         int64   `json:"id"`
	PlatformId int64   `json:"platformId"`
	Name       string  `json:"name"`
	Username   string  `json:"username"`
	AvatarUrl  *string `json:"avatarUrl,omitempty"`
}

// AuthorProfile is what the feed source knows about an author
type AuthorProfile struct {
	PlatformId int64
	Name       string
	Username   string
	AvatarUrl  *string
}

// Post is an ingested upstream post. Immutable once stored.
type Post struct {
	Id         int64  `json:"id"`
	PlatformId int64  `json:"platformId"`
	AuthorId   int64  `json:"authorId"`
	Text       string `json:"text"`
	SourceUrl  string `json:"sourceUrl"`
	SourceText string `json:"sourceText"`
}

// Media is a resolved attachment of a stored post
type Media struct {
	Id     int64     `json:"id"`
	PostId int64     `json:"postId"`
	Kind   MediaKind `json:"mediaType"`
	Url    string    `json:"mediaUrl"`
}

// PostWithMedia pairs a post with its media rows
type PostWithMedia struct {
	Post  Post    `json:"post"`
	Media []Media `json:"media"`
}

// Follow is a subscription edge between a subscriber and an author
type Follow struct {
	UserId   int64 `json:"userId"`
	AuthorId int64 `json:"authorId"`
}

// ScheduledPost is a queued delivery to the subscriber's channel
type ScheduledPost struct {
	Id            int64    `json:"id"`
	UserId        int64    `json:"userId"`
	MediaIds      MediaIDs `json:"mediaIds"`
	PostText      string   `json:"postText"`
	PostSource    string   `json:"postSource"`
	PostSourceUrl string   `json:"postSourceUrl"`
}

// Subscriber is a chat platform user. Id is the chat platform user id.
type Subscriber struct {
	Id         int64  `json:"id"`
	Channel    *int64 `json:"channel,omitempty"`
	PowerLevel int    `json:"powerLevel"`
	LastFeedId int64  `json:"-"`
}

// ScheduledDelivery is a scheduled post joined with its (possibly missing) subscriber
type ScheduledDelivery struct {
	Post       ScheduledPost
	Subscriber *Subscriber
}

const (
	PowerUser  = 0
	PowerMod   = 50
	PowerAdmin = 100
)
