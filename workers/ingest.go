package workers

import (
	"context"
	"nofuture/models"
	"nofuture/twitter"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type IngestStore interface {
	ListAuthors(ctx context.Context) ([]models.Author, error)
	LatestPostPlatformID(ctx context.Context, authorID int64) (int64, bool, error)
	InsertPost(ctx context.Context, post models.Post, attachments []models.Attachment) (models.Post, bool, error)
}

// FeedSource fetches the posts of an author newer than a cursor
type FeedSource interface {
	FetchTimeline(ctx context.Context, authorID int64, sinceID *int64) ([]twitter.RawPost, error)
}

// Ingester polls the feed source for every tracked author and stores new posts
type Ingester struct {
	store    IngestStore
	source   FeedSource
	interval time.Duration
}

func NewIngester(store IngestStore, source FeedSource, interval time.Duration) *Ingester {
	return &Ingester{store: store, source: source, interval: interval}
}

// Run repeats passes until ctx is cancelled. Store failures end the loop.
func (w *Ingester) Run(ctx context.Context) error {
	log.WithField("interval", w.interval).Info("Starting ingestion worker")
	for {
		if err := w.Pass(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if !sleep(ctx, w.interval) {
			log.Info("Ingestion worker stopped")
			return nil
		}
	}
}

// Pass ingests new posts of all tracked authors once. A failing author is
// skipped; only store errors abort the pass.
func (w *Ingester) Pass(ctx context.Context) error {
	start := time.Now()
	logger := log.WithFields(log.Fields{"worker": "ingest", "pass": uuid.NewString()})
	defer func() {
		passDuration.WithLabelValues("ingest").Observe(time.Since(start).Seconds())
	}()

	authors, err := w.store.ListAuthors(ctx)
	if err != nil {
		logger.Errorf("Error listing authors: %s", err)
		return err
	}

	stored := 0
	for _, author := range authors {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := w.ingestAuthor(ctx, logger.WithField("author", author.Username), author)
		if err != nil {
			return err
		}
		stored += n
	}

	logger.WithFields(log.Fields{
		"authors":  len(authors),
		"posts":    stored,
		"duration": time.Since(start),
	}).Info("Ingestion pass finished")
	return nil
}

func (w *Ingester) ingestAuthor(ctx context.Context, logger *log.Entry, author models.Author) (int, error) {
	cursor, ok, err := w.store.LatestPostPlatformID(ctx, author.Id)
	if err != nil {
		logger.Errorf("Error reading cursor: %s", err)
		return 0, err
	}

	var since *int64
	if ok {
		since = &cursor
	}

	posts, err := w.source.FetchTimeline(ctx, author.PlatformId, since)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		authorErrors.WithLabelValues(errorReason(err)).Inc()
		logger.Warnf("Error fetching timeline: %s", err)
		return 0, nil
	}

	stored := 0
	for _, raw := range posts {
		source := raw.Author
		if source.Username == "" {
			source = models.AuthorProfile{Name: author.Name, Username: author.Username}
		}

		_, created, err := w.store.InsertPost(ctx, models.Post{
			PlatformId: raw.PlatformId,
			AuthorId:   author.Id,
			Text:       raw.Text,
			SourceUrl:  twitter.SourceURL(source.Username, raw.PlatformId),
			SourceText: source.Name,
		}, raw.Media)
		if err != nil {
			logger.WithField("platformId", raw.PlatformId).Errorf("Error storing post: %s", err)
			return stored, err
		}
		if created {
			stored++
			ingestedPosts.Inc()
		}
	}
	return stored, nil
}

// sleep waits for d and reports false if ctx was cancelled first
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
