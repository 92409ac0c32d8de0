package feeds

import (
	"context"
	"errors"
	"fmt"
	"nofuture/db"
	"nofuture/models"

	"github.com/samber/lo"
)

// CreateScheduledPost queues a stored post for delivery to the subscriber's
// channel. The media are the post's own minus excluded, in post order, and the
// text defaults to the post's text.
func (s *Service) CreateScheduledPost(ctx context.Context, subscriberID int64, postID int64, postText *string, excluded []int64) (models.ScheduledPost, error) {
	if len(excluded) > MaxExcludedMedia {
		return models.ScheduledPost{}, fmt.Errorf("%w: %d > %d", ErrTooManyExcluded, len(excluded), MaxExcludedMedia)
	}

	post, err := s.store.GetPost(ctx, postID)
	if errors.Is(err, db.ErrNotFound) {
		return models.ScheduledPost{}, ErrPostNotFound
	}
	if err != nil {
		return models.ScheduledPost{}, err
	}

	media, err := s.store.ListPostMedia(ctx, post.Id)
	if err != nil {
		return models.ScheduledPost{}, err
	}
	ids := models.MediaIDs(lo.Map(media, func(m models.Media, _ int) int64 { return m.Id }))

	if _, err := s.store.EnsureSubscriber(ctx, subscriberID); err != nil {
		return models.ScheduledPost{}, err
	}

	return s.store.CreateScheduledPost(ctx, models.ScheduledPost{
		UserId:        subscriberID,
		MediaIds:      ids.Without(excluded),
		PostText:      lo.FromPtrOr(postText, post.Text),
		PostSource:    post.SourceText,
		PostSourceUrl: post.SourceUrl,
	})
}

// ScheduledPosts lists the subscriber's queue with media resolved
func (s *Service) ScheduledPosts(ctx context.Context, subscriberID int64) ([]ScheduledView, error) {
	queue, err := s.store.ListScheduledPosts(ctx, subscriberID)
	if err != nil {
		return nil, err
	}

	views := make([]ScheduledView, 0, len(queue))
	for _, scheduled := range queue {
		media, err := s.store.MediaByIDs(ctx, scheduled.MediaIds)
		if err != nil {
			return nil, err
		}
		views = append(views, ScheduledView{ScheduledPost: scheduled, Media: media})
	}
	return views, nil
}

func (s *Service) CancelScheduledPost(ctx context.Context, subscriberID int64, id int64) error {
	ok, err := s.store.DeleteScheduledPost(ctx, subscriberID, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrScheduledNotFound
	}
	return nil
}
