// Package feeds holds the subscriber facing operations: scheduling posts for
// delivery, reading the feed of followed authors and managing follows.
package feeds

import (
	"context"
	"errors"
	"nofuture/models"
)

var (
	ErrPostNotFound       = errors.New("post not found")
	ErrAuthorNotFound     = errors.New("author not found")
	ErrSubscriberNotFound = errors.New("subscriber not found")
	ErrScheduledNotFound  = errors.New("scheduled post not found")
	ErrTooManyExcluded    = errors.New("too many excluded media")
	ErrForbidden          = errors.New("insufficient power level")
)

const (
	// MaxExcludedMedia bounds the media a subscriber may drop from one post
	MaxExcludedMedia = 8
	// PostsPerAuthor is how many unread posts of each author the feed shows
	PostsPerAuthor = 15
)

type Store interface {
	UpsertAuthor(ctx context.Context, profile models.AuthorProfile) (models.Author, error)
	GetAuthorByID(ctx context.Context, id int64) (models.Author, error)
	GetAuthorByPlatformID(ctx context.Context, platformID int64) (models.Author, error)
	GetAuthorByUsername(ctx context.Context, username string) (models.Author, error)

	GetPost(ctx context.Context, id int64) (models.Post, error)
	ListPostMedia(ctx context.Context, postID int64) ([]models.Media, error)
	MediaByIDs(ctx context.Context, ids []int64) ([]models.Media, error)
	FeedPosts(ctx context.Context, authorID int64, afterID int64, limit int) ([]models.Post, error)
	RecentPosts(ctx context.Context, authorID int64, limit int) ([]models.Post, error)

	CreateScheduledPost(ctx context.Context, scheduled models.ScheduledPost) (models.ScheduledPost, error)
	ListScheduledPosts(ctx context.Context, subscriberID int64) ([]models.ScheduledPost, error)
	DeleteScheduledPost(ctx context.Context, subscriberID int64, id int64) (bool, error)

	GetSubscriber(ctx context.Context, id int64) (models.Subscriber, error)
	EnsureSubscriber(ctx context.Context, id int64) (models.Subscriber, error)
	SetSubscriberChannel(ctx context.Context, id int64, channel *int64) error
	SetLastFeedID(ctx context.Context, id int64, lastFeedID int64) error
	DeleteSubscriber(ctx context.Context, id int64) (bool, error)

	Follow(ctx context.Context, subscriberID int64, authorID int64) error
	Unfollow(ctx context.Context, subscriberID int64, authorID int64) (bool, error)
	ListFollowedAuthors(ctx context.Context, subscriberID int64) ([]models.Author, error)
}

// AuthorSource looks authors up on the upstream platform
type AuthorSource interface {
	FetchAuthor(ctx context.Context, platformID int64) (models.AuthorProfile, error)
	FetchAuthorByHandle(ctx context.Context, handle string) (models.AuthorProfile, error)
}

type Service struct {
	store  Store
	source AuthorSource
}

func NewService(store Store, source AuthorSource) *Service {
	return &Service{store: store, source: source}
}

// ScheduledView is a queued entry with its media resolved
type ScheduledView struct {
	models.ScheduledPost
	Media []models.Media `json:"media"`
}

// FeedResponse is a page of unread posts. Cursor is the id to pass to
// MarkRead once the page has been shown, nil when the page is empty.
type FeedResponse struct {
	Feed   []models.PostWithMedia `json:"feed"`
	Cursor *string                `json:"cursor,omitempty"`
}
