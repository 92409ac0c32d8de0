package feeds

import (
	"context"
	"errors"
	"nofuture/db"
	"nofuture/models"
	"slices"
	"strconv"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

// Feed returns the unread posts of the authors the subscriber follows, at
// most PostsPerAuthor each, ordered by platform id.
func (s *Service) Feed(ctx context.Context, subscriberID int64) (*FeedResponse, error) {
	subscriber, err := s.subscriber(ctx, subscriberID)
	if err != nil {
		return nil, err
	}

	authors, err := s.store.ListFollowedAuthors(ctx, subscriberID)
	if err != nil {
		log.Error("Error listing followed authors", err)
		return nil, err
	}

	var posts []models.Post
	for _, author := range authors {
		authorPosts, err := s.store.FeedPosts(ctx, author.Id, subscriber.LastFeedId, PostsPerAuthor)
		if err != nil {
			log.Error("Error getting feed", err)
			return nil, err
		}
		posts = append(posts, authorPosts...)
	}

	slices.SortFunc(posts, func(a, b models.Post) int {
		return cmpInt64(a.PlatformId, b.PlatformId)
	})

	feed, err := s.withMedia(ctx, posts)
	if err != nil {
		return nil, err
	}

	var nextCursor *string
	if len(posts) > 0 {
		last := lo.MaxBy(posts, func(a, b models.Post) bool { return a.Id > b.Id })
		parsed := strconv.FormatInt(last.Id, 10)
		nextCursor = &parsed
	}

	return &FeedResponse{Feed: feed, Cursor: nextCursor}, nil
}

// MarkRead advances the subscriber's feed cursor. It never moves backwards.
func (s *Service) MarkRead(ctx context.Context, subscriberID int64, cursor string) error {
	if _, err := s.subscriber(ctx, subscriberID); err != nil {
		return err
	}
	return s.store.SetLastFeedID(ctx, subscriberID, SafeParseCursor(cursor))
}

// AuthorPosts lists the newest stored posts of an author
func (s *Service) AuthorPosts(ctx context.Context, ref string, limit int) ([]models.PostWithMedia, error) {
	author, err := s.ResolveAuthor(ctx, ref)
	if err != nil {
		return nil, err
	}

	posts, err := s.store.RecentPosts(ctx, author.Id, limit)
	if err != nil {
		return nil, err
	}
	return s.withMedia(ctx, posts)
}

func (s *Service) withMedia(ctx context.Context, posts []models.Post) ([]models.PostWithMedia, error) {
	result := make([]models.PostWithMedia, 0, len(posts))
	for _, post := range posts {
		media, err := s.store.ListPostMedia(ctx, post.Id)
		if err != nil {
			return nil, err
		}
		result = append(result, models.PostWithMedia{Post: post, Media: media})
	}
	return result, nil
}

// SafeParseCursor parses the cursor string and returns the post id
// If the cursor is invalid, it returns 0
func SafeParseCursor(cursor string) int64 {
	id, err := strconv.ParseInt(cursor, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (s *Service) subscriber(ctx context.Context, id int64) (models.Subscriber, error) {
	subscriber, err := s.store.GetSubscriber(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return models.Subscriber{}, ErrSubscriberNotFound
	}
	return subscriber, err
}

// Subscriber returns the subscriber's settings
func (s *Service) Subscriber(ctx context.Context, id int64) (models.Subscriber, error) {
	return s.subscriber(ctx, id)
}

// Register creates the subscriber unless it already exists
func (s *Service) Register(ctx context.Context, id int64) (models.Subscriber, error) {
	return s.store.EnsureSubscriber(ctx, id)
}

// Unregister removes the subscriber together with follows and queued posts
func (s *Service) Unregister(ctx context.Context, id int64) error {
	ok, err := s.store.DeleteSubscriber(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSubscriberNotFound
	}
	return nil
}

// LinkChannel sets the channel scheduled posts are delivered to. A nil
// channel unlinks it and parks the queue.
func (s *Service) LinkChannel(ctx context.Context, subscriberID int64, channelID *int64) error {
	if _, err := s.store.EnsureSubscriber(ctx, subscriberID); err != nil {
		return err
	}
	if err := s.store.SetSubscriberChannel(ctx, subscriberID, channelID); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"userId":  subscriberID,
		"channel": channelID,
	}).Info("Linked channel")
	return nil
}
