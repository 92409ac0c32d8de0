package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"nofuture/models"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
	"github.com/samber/lo"
)

var postColumns = []string{
	"posts.id", "posts.platform_id", "posts.author_id", "posts.text", "posts.source_url", "posts.source_text",
}

var mediaColumns = []string{
	"post_media.id", "post_media.post_id", "post_media.media_type", "post_media.media_url",
}

var scheduledColumns = []string{
	"scheduled_posts.id", "scheduled_posts.user_id", "scheduled_posts.media_ids",
	"scheduled_posts.post_text", "scheduled_posts.post_source", "scheduled_posts.post_source_url",
}

var subscriberColumns = []string{
	"subscribers.id", "subscribers.channel", "subscribers.power_level", "subscribers.last_feed_id",
}

func scanPost(row scanner) (models.Post, error) {
	var post models.Post
	err := row.Scan(&post.Id, &post.PlatformId, &post.AuthorId, &post.Text, &post.SourceUrl, &post.SourceText)
	return post, err
}

func scanMedia(row scanner) (models.Media, error) {
	var media models.Media
	var kind string
	if err := row.Scan(&media.Id, &media.PostId, &kind, &media.Url); err != nil {
		return media, err
	}
	parsed, err := models.ParseMediaKind(kind)
	media.Kind = parsed
	return media, err
}

// LatestPostPlatformID returns the highest stored platform id of the author's
// posts. The bool is false when nothing has been ingested yet.
func (db *DB) LatestPostPlatformID(ctx context.Context, authorID int64) (int64, bool, error) {
	sb := db.flavor.NewSelectBuilder()
	sb.Select("MAX(posts.platform_id)").From("posts").Where(sb.Equal("posts.author_id", authorID))

	query, args := sb.Build()
	var cursor sql.NullInt64
	if err := db.db.QueryRowContext(ctx, query, args...).Scan(&cursor); err != nil {
		return 0, false, fmt.Errorf("query error: %w", err)
	}
	return cursor.Int64, cursor.Valid, nil
}

func (db *DB) GetPost(ctx context.Context, id int64) (models.Post, error) {
	sb := db.flavor.NewSelectBuilder()
	sb.Select(postColumns...).From("posts").Where(sb.Equal("posts.id", id))

	query, args := sb.Build()
	post, err := scanPost(db.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Post{}, ErrNotFound
	}
	if err != nil {
		return models.Post{}, fmt.Errorf("query error: %w", err)
	}
	return post, nil
}

// ListPostMedia returns the media of a post in insertion order
func (db *DB) ListPostMedia(ctx context.Context, postID int64) ([]models.Media, error) {
	sb := db.flavor.NewSelectBuilder()
	sb.Select(mediaColumns...).From("post_media").
		Where(sb.Equal("post_media.post_id", postID)).
		OrderBy("post_media.id").Asc()
	return db.queryMedia(ctx, sb)
}

// MediaByIDs resolves media rows by id. The result follows the order of ids;
// unknown ids are left out.
func (db *DB) MediaByIDs(ctx context.Context, ids []int64) ([]models.Media, error) {
	if len(ids) == 0 {
		return []models.Media{}, nil
	}

	sb := db.flavor.NewSelectBuilder()
	sb.Select(mediaColumns...).From("post_media").Where(sb.In("post_media.id", lo.ToAnySlice(ids)...))

	media, err := db.queryMedia(ctx, sb)
	if err != nil {
		return nil, err
	}

	byID := lo.KeyBy(media, func(m models.Media) int64 { return m.Id })
	return lo.FilterMap(ids, func(id int64, _ int) (models.Media, bool) {
		m, ok := byID[id]
		return m, ok
	}), nil
}

func (db *DB) queryMedia(ctx context.Context, sb *sqlbuilder.SelectBuilder) ([]models.Media, error) {
	query, args := sb.Build()
	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	media := []models.Media{}
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		media = append(media, m)
	}
	return media, rows.Err()
}

// FeedPosts returns up to limit of the author's posts with an internal id
// above afterID, oldest first, so a reader can page forward through a backlog.
func (db *DB) FeedPosts(ctx context.Context, authorID int64, afterID int64, limit int) ([]models.Post, error) {
	sb := db.flavor.NewSelectBuilder()
	sb.Select(postColumns...).From("posts").
		Where(sb.Equal("posts.author_id", authorID), sb.GreaterThan("posts.id", afterID)).
		OrderBy("posts.id").Asc().
		Limit(limit)

	return db.queryPosts(ctx, sb)
}

// RecentPosts returns up to limit of the author's newest posts, newest first.
func (db *DB) RecentPosts(ctx context.Context, authorID int64, limit int) ([]models.Post, error) {
	sb := db.flavor.NewSelectBuilder()
	sb.Select(postColumns...).From("posts").
		Where(sb.Equal("posts.author_id", authorID)).
		OrderBy("posts.platform_id").Desc().
		Limit(limit)

	return db.queryPosts(ctx, sb)
}

func (db *DB) queryPosts(ctx context.Context, sb *sqlbuilder.SelectBuilder) ([]models.Post, error) {
	query, args := sb.Build()
	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	posts := []models.Post{}
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func scanScheduled(dest *models.ScheduledPost) []interface{} {
	return []interface{}{&dest.Id, &dest.UserId, (*mediaIDsColumn)(&dest.MediaIds), &dest.PostText, &dest.PostSource, &dest.PostSourceUrl}
}

// mediaIDsColumn scans the comma-joined media_ids column
type mediaIDsColumn models.MediaIDs

func (c *mediaIDsColumn) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*c = mediaIDsColumn{}
	case string:
		*c = mediaIDsColumn(models.ParseMediaIDs(v))
	case []byte:
		*c = mediaIDsColumn(models.ParseMediaIDs(string(v)))
	default:
		return fmt.Errorf("unsupported media_ids value %T", src)
	}
	return nil
}

// ListScheduledWithSubscribers returns every queued entry with its subscriber,
// which is nil when the subscriber row is gone.
func (db *DB) ListScheduledWithSubscribers(ctx context.Context) ([]models.ScheduledDelivery, error) {
	sb := db.flavor.NewSelectBuilder()
	sb.Select(append(append([]string{}, scheduledColumns...), subscriberColumns...)...).
		From("scheduled_posts").
		JoinWithOption(sqlbuilder.LeftJoin, "subscribers", "subscribers.id = scheduled_posts.user_id").
		OrderBy("scheduled_posts.id").Asc()

	query, args := sb.Build()
	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	deliveries := []models.ScheduledDelivery{}
	for rows.Next() {
		var delivery models.ScheduledDelivery
		var subscriberID, powerLevel, lastFeedID sql.NullInt64
		var channel *int64

		dest := append(scanScheduled(&delivery.Post), &subscriberID, &channel, &powerLevel, &lastFeedID)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}

		if subscriberID.Valid {
			delivery.Subscriber = &models.Subscriber{
				Id:         subscriberID.Int64,
				Channel:    channel,
				PowerLevel: int(powerLevel.Int64),
				LastFeedId: lastFeedID.Int64,
			}
		}
		deliveries = append(deliveries, delivery)
	}
	return deliveries, rows.Err()
}

func (db *DB) ListScheduledPosts(ctx context.Context, subscriberID int64) ([]models.ScheduledPost, error) {
	sb := db.flavor.NewSelectBuilder()
	sb.Select(scheduledColumns...).From("scheduled_posts").
		Where(sb.Equal("scheduled_posts.user_id", subscriberID)).
		OrderBy("scheduled_posts.id").Asc()

	query, args := sb.Build()
	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	posts := []models.ScheduledPost{}
	for rows.Next() {
		var post models.ScheduledPost
		if err := rows.Scan(scanScheduled(&post)...); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func (db *DB) GetSubscriber(ctx context.Context, id int64) (models.Subscriber, error) {
	sb := db.flavor.NewSelectBuilder()
	sb.Select(subscriberColumns...).From("subscribers").Where(sb.Equal("subscribers.id", id))

	query, args := sb.Build()
	var subscriber models.Subscriber
	err := db.db.QueryRowContext(ctx, query, args...).
		Scan(&subscriber.Id, &subscriber.Channel, &subscriber.PowerLevel, &subscriber.LastFeedId)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Subscriber{}, ErrNotFound
	}
	if err != nil {
		return models.Subscriber{}, fmt.Errorf("query error: %w", err)
	}
	return subscriber, nil
}

func (db *DB) ListFollowedAuthors(ctx context.Context, subscriberID int64) ([]models.Author, error) {
	sb := db.flavor.NewSelectBuilder()
	sb.Select(authorColumns...).From("authors").
		Join("follows", "follows.author_id = authors.id").
		Where(sb.Equal("follows.user_id", subscriberID)).
		OrderBy("authors.id").Asc()
	return db.queryAuthors(ctx, sb)
}
