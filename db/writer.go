package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"nofuture/models"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

// InsertPost stores a post and its media in one transaction. The bool is
// false when a post with the same platform id already exists, in which case
// nothing is written and the returned post is the zero value.
func (db *DB) InsertPost(ctx context.Context, post models.Post, attachments []models.Attachment) (models.Post, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Post{}, false, fmt.Errorf("begin error: %w", err)
	}
	defer tx.Rollback()

	ib := db.flavor.NewInsertBuilder()
	ib.InsertInto("posts").
		Cols("platform_id", "author_id", "text", "source_url", "source_text").
		Values(post.PlatformId, post.AuthorId, post.Text, post.SourceUrl, post.SourceText)
	ib.SQL("ON CONFLICT (platform_id) DO NOTHING")
	ib.SQL("RETURNING id")

	query, args := ib.Build()
	err = tx.QueryRowContext(ctx, query, args...).Scan(&post.Id)
	if errors.Is(err, sql.ErrNoRows) {
		log.WithField("platformId", post.PlatformId).Debug("Post already stored")
		return models.Post{}, false, nil
	}
	if err != nil {
		return models.Post{}, false, fmt.Errorf("insert error: %w", err)
	}

	for _, attachment := range attachments {
		mb := db.flavor.NewInsertBuilder()
		mb.InsertInto("post_media").
			Cols("post_id", "media_type", "media_url").
			Values(post.Id, string(attachment.Kind()), attachment.URL())

		query, args := mb.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return models.Post{}, false, fmt.Errorf("insert media error: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return models.Post{}, false, fmt.Errorf("commit error: %w", err)
	}

	log.WithFields(log.Fields{
		"id":         post.Id,
		"platformId": post.PlatformId,
		"authorId":   post.AuthorId,
		"media":      len(attachments),
	}).Info("Created post")

	return post, true, nil
}

func (db *DB) CreateScheduledPost(ctx context.Context, scheduled models.ScheduledPost) (models.ScheduledPost, error) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	ib := db.flavor.NewInsertBuilder()
	ib.InsertInto("scheduled_posts").
		Cols("user_id", "media_ids", "post_text", "post_source", "post_source_url").
		Values(scheduled.UserId, scheduled.MediaIds.String(), scheduled.PostText, scheduled.PostSource, scheduled.PostSourceUrl)
	ib.SQL("RETURNING id")

	query, args := ib.Build()
	if err := db.db.QueryRowContext(ctx, query, args...).Scan(&scheduled.Id); err != nil {
		return models.ScheduledPost{}, fmt.Errorf("insert error: %w", err)
	}

	log.WithFields(log.Fields{
		"id":       scheduled.Id,
		"userId":   scheduled.UserId,
		"mediaIds": scheduled.MediaIds.String(),
	}).Info("Scheduled post")

	return scheduled, nil
}

// DeleteScheduledPost removes one of the subscriber's queued entries
func (db *DB) DeleteScheduledPost(ctx context.Context, subscriberID int64, id int64) (bool, error) {
	del := db.flavor.NewDeleteBuilder()
	del.DeleteFrom("scheduled_posts").
		Where(del.Equal("id", id), del.Equal("user_id", subscriberID))
	return db.execAffected(ctx, del)
}

// DeleteScheduledPosts removes a batch of queued entries and returns how many rows went away
func (db *DB) DeleteScheduledPosts(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	del := db.flavor.NewDeleteBuilder()
	del.DeleteFrom("scheduled_posts").Where(del.In("id", lo.ToAnySlice(ids)...))

	query, args := del.Build()
	res, err := db.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete error: %w", err)
	}
	return res.RowsAffected()
}

// EnsureSubscriber creates the subscriber with default settings unless it exists
func (db *DB) EnsureSubscriber(ctx context.Context, id int64) (models.Subscriber, error) {
	ib := db.flavor.NewInsertBuilder()
	ib.InsertInto("subscribers").Cols("id", "power_level", "last_feed_id").Values(id, models.PowerUser, 0)
	ib.SQL("ON CONFLICT (id) DO NOTHING")

	query, args := ib.Build()
	if _, err := db.db.ExecContext(ctx, query, args...); err != nil {
		return models.Subscriber{}, fmt.Errorf("insert error: %w", err)
	}
	return db.GetSubscriber(ctx, id)
}

// SetSubscriberChannel links (or with nil unlinks) the subscriber's destination channel
func (db *DB) SetSubscriberChannel(ctx context.Context, id int64, channel *int64) error {
	ub := db.flavor.NewUpdateBuilder()
	ub.Update("subscribers").Set(ub.Assign("channel", channel)).Where(ub.Equal("id", id))
	return db.requireAffected(db.execAffected(ctx, ub))
}

func (db *DB) SetPowerLevel(ctx context.Context, id int64, level int) error {
	ub := db.flavor.NewUpdateBuilder()
	ub.Update("subscribers").Set(ub.Assign("power_level", level)).Where(ub.Equal("id", id))
	return db.requireAffected(db.execAffected(ctx, ub))
}

// SetLastFeedID moves the feed cursor forward. Lower values are ignored.
func (db *DB) SetLastFeedID(ctx context.Context, id int64, lastFeedID int64) error {
	ub := db.flavor.NewUpdateBuilder()
	ub.Update("subscribers").
		Set(ub.Assign("last_feed_id", lastFeedID)).
		Where(ub.Equal("id", id), ub.LessThan("last_feed_id", lastFeedID))
	_, err := db.execAffected(ctx, ub)
	return err
}

// DeleteSubscriber removes the subscriber with its follows and queued entries
func (db *DB) DeleteSubscriber(ctx context.Context, id int64) (bool, error) {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin error: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"follows", "scheduled_posts"} {
		del := db.flavor.NewDeleteBuilder()
		del.DeleteFrom(table).Where(del.Equal("user_id", id))
		query, args := del.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return false, fmt.Errorf("delete error: %w", err)
		}
	}

	del := db.flavor.NewDeleteBuilder()
	del.DeleteFrom("subscribers").Where(del.Equal("id", id))
	query, args := del.Build()
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("delete error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit error: %w", err)
	}
	return affected > 0, nil
}

func (db *DB) Follow(ctx context.Context, subscriberID int64, authorID int64) error {
	ib := db.flavor.NewInsertBuilder()
	ib.InsertInto("follows").Cols("user_id", "author_id").Values(subscriberID, authorID)
	ib.SQL("ON CONFLICT (user_id, author_id) DO NOTHING")

	query, args := ib.Build()
	if _, err := db.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert error: %w", err)
	}
	return nil
}

func (db *DB) Unfollow(ctx context.Context, subscriberID int64, authorID int64) (bool, error) {
	del := db.flavor.NewDeleteBuilder()
	del.DeleteFrom("follows").Where(del.Equal("user_id", subscriberID), del.Equal("author_id", authorID))
	return db.execAffected(ctx, del)
}

func (db *DB) execAffected(ctx context.Context, builder sqlbuilder.Builder) (bool, error) {
	query, args := builder.Build()
	res, err := db.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("exec error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (db *DB) requireAffected(ok bool, err error) error {
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}
