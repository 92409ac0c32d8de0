package feeds

import (
	"context"
	"errors"
	"nofuture/db"
	"nofuture/models"
	"nofuture/twitter"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// ResolveAuthor finds a stored author. A positive number is a platform id, a
// negative one the internal id, anything else a handle.
func (s *Service) ResolveAuthor(ctx context.Context, ref string) (models.Author, error) {
	var (
		author models.Author
		err    error
	)

	if n, parseErr := strconv.ParseInt(ref, 10, 64); parseErr == nil {
		if n < 0 {
			author, err = s.store.GetAuthorByID(ctx, -n)
		} else {
			author, err = s.store.GetAuthorByPlatformID(ctx, n)
		}
	} else {
		author, err = s.store.GetAuthorByUsername(ctx, ref)
	}

	if errors.Is(err, db.ErrNotFound) {
		return models.Author{}, ErrAuthorNotFound
	}
	return author, err
}

// Track resolves an author upstream and stores or refreshes it. A numeric ref
// is a platform id, anything else a handle.
func (s *Service) Track(ctx context.Context, ref string) (models.Author, error) {
	var (
		profile models.AuthorProfile
		err     error
	)

	if n, parseErr := strconv.ParseInt(ref, 10, 64); parseErr == nil && n > 0 {
		profile, err = s.source.FetchAuthor(ctx, n)
	} else {
		profile, err = s.source.FetchAuthorByHandle(ctx, strings.TrimPrefix(ref, "@"))
	}
	if errors.Is(err, twitter.ErrNotFound) {
		return models.Author{}, ErrAuthorNotFound
	}
	if err != nil {
		return models.Author{}, err
	}

	author, err := s.store.UpsertAuthor(ctx, profile)
	if err != nil {
		return models.Author{}, err
	}

	log.WithFields(log.Fields{
		"id":       author.Id,
		"username": author.Username,
	}).Info("Tracking author")
	return author, nil
}

// TrackAuthor is Track on behalf of a subscriber, who needs moderator power
func (s *Service) TrackAuthor(ctx context.Context, subscriberID int64, ref string) (models.Author, error) {
	subscriber, err := s.subscriber(ctx, subscriberID)
	if err != nil {
		return models.Author{}, err
	}
	if subscriber.PowerLevel < models.PowerMod {
		return models.Author{}, ErrForbidden
	}
	return s.Track(ctx, ref)
}

func (s *Service) Follow(ctx context.Context, subscriberID int64, ref string) (models.Author, error) {
	author, err := s.ResolveAuthor(ctx, ref)
	if err != nil {
		return models.Author{}, err
	}
	if _, err := s.store.EnsureSubscriber(ctx, subscriberID); err != nil {
		return models.Author{}, err
	}
	if err := s.store.Follow(ctx, subscriberID, author.Id); err != nil {
		return models.Author{}, err
	}
	return author, nil
}

// Unfollow reports false when the subscriber was not following the author
func (s *Service) Unfollow(ctx context.Context, subscriberID int64, ref string) (bool, error) {
	author, err := s.ResolveAuthor(ctx, ref)
	if err != nil {
		return false, err
	}
	return s.store.Unfollow(ctx, subscriberID, author.Id)
}

func (s *Service) FollowedAuthors(ctx context.Context, subscriberID int64) ([]models.Author, error) {
	return s.store.ListFollowedAuthors(ctx, subscriberID)
}
