package workers

import (
	"context"
	"errors"
	"fmt"
	"nofuture/models"
	"nofuture/telegram"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const cleanupTimeout = 30 * time.Second

type PublishStore interface {
	ListScheduledWithSubscribers(ctx context.Context) ([]models.ScheduledDelivery, error)
	MediaByIDs(ctx context.Context, ids []int64) ([]models.Media, error)
	DeleteScheduledPosts(ctx context.Context, ids []int64) (int64, error)
}

// Messenger is the chat transport. Throttling is reported as *telegram.RateLimitError.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, html string) error
	SendMediaGroup(ctx context.Context, chatID int64, caption string, media []models.Media) error
}

// Publisher delivers scheduled posts to the linked channels of their subscribers.
// Every entry gets at most one attempt and is dequeued whatever the outcome.
type Publisher struct {
	store     PublishStore
	messenger Messenger
	interval  time.Duration
}

func NewPublisher(store PublishStore, messenger Messenger, interval time.Duration) *Publisher {
	return &Publisher{store: store, messenger: messenger, interval: interval}
}

// Run repeats passes until ctx is cancelled. Store failures end the loop.
func (w *Publisher) Run(ctx context.Context) error {
	log.WithField("interval", w.interval).Info("Starting publishing worker")
	for {
		if err := w.Pass(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if !sleep(ctx, w.interval) {
			log.Info("Publishing worker stopped")
			return nil
		}
	}
}

// Pass attempts every deliverable entry once, then removes the attempted
// entries in one batch. The removal also runs when the pass is cut short.
func (w *Publisher) Pass(ctx context.Context) error {
	start := time.Now()
	logger := log.WithFields(log.Fields{"worker": "publish", "pass": uuid.NewString()})
	defer func() {
		passDuration.WithLabelValues("publish").Observe(time.Since(start).Seconds())
	}()

	queue, err := w.store.ListScheduledWithSubscribers(ctx)
	if err != nil {
		logger.Errorf("Error listing scheduled posts: %s", err)
		return err
	}

	attempted, deliverErr := w.deliverAll(ctx, logger, queue)

	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	removed, err := w.store.DeleteScheduledPosts(cleanupCtx, attempted)
	if err != nil {
		logger.WithField("ids", attempted).Errorf("Error removing scheduled posts: %s", err)
		return errors.Join(deliverErr, err)
	}

	logger.WithFields(log.Fields{
		"queued":   len(queue),
		"removed":  removed,
		"duration": time.Since(start),
	}).Info("Publishing pass finished")
	return deliverErr
}

func (w *Publisher) deliverAll(ctx context.Context, logger *log.Entry, queue []models.ScheduledDelivery) ([]int64, error) {
	attempted := []int64{}
	for _, entry := range queue {
		if err := ctx.Err(); err != nil {
			return attempted, err
		}

		if entry.Subscriber == nil || entry.Subscriber.Channel == nil {
			continue
		}
		entryLog := logger.WithFields(log.Fields{
			"scheduledId": entry.Post.Id,
			"userId":      entry.Post.UserId,
			"channel":     *entry.Subscriber.Channel,
		})

		media, err := w.store.MediaByIDs(ctx, entry.Post.MediaIds)
		if err != nil {
			entryLog.Errorf("Error resolving media: %s", err)
			return attempted, err
		}

		attempted = append(attempted, entry.Post.Id)
		body := RenderMessage(entry.Post.PostText, entry.Post.PostSource, entry.Post.PostSourceUrl)

		if len(media) == 0 {
			err = w.messenger.SendText(ctx, *entry.Subscriber.Channel, body)
		} else {
			err = w.messenger.SendMediaGroup(ctx, *entry.Subscriber.Channel, body, media)
		}

		var limited *telegram.RateLimitError
		switch {
		case err == nil:
			deliveries.WithLabelValues("sent").Inc()
			entryLog.WithField("media", len(media)).Info("Delivered scheduled post")
		case errors.As(err, &limited):
			rateLimited.Inc()
			deliveries.WithLabelValues("rate_limited").Inc()
			entryLog.Warnf("Rate limited, pausing for %s", limited.RetryAfter)
			if !sleep(ctx, limited.RetryAfter) {
				return attempted, ctx.Err()
			}
		default:
			deliveries.WithLabelValues("failed").Inc()
			entryLog.Warnf("Error delivering scheduled post, dropping it: %s", err)
		}
	}
	return attempted, nil
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// EscapeHTML escapes the characters reserved by the chat platform's HTML mode
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

// RenderMessage is the post body followed by a bold link to its source
func RenderMessage(text, sourceText, sourceURL string) string {
	return fmt.Sprintf("%s\n\n<b><a href=\"%s\">%s</a></b>", EscapeHTML(text), sourceURL, EscapeHTML(sourceText))
}
