package workers

import (
	"errors"
	"nofuture/twitter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ingestedPosts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nofuture_ingest_posts_total",
		Help: "The total number of posts stored by the ingestion worker",
	})

	authorErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nofuture_ingest_author_errors_total",
		Help: "Timeline fetches that failed for one author, by reason",
	}, []string{"reason"})

	deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nofuture_publish_deliveries_total",
		Help: "Delivery attempts of scheduled posts, by result",
	}, []string{"result"})

	rateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nofuture_publish_rate_limited_total",
		Help: "The number of times the chat platform asked the publisher to back off",
	})

	passDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nofuture_worker_pass_duration_seconds",
		Help:    "Duration of one worker pass",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms up to ~20s
	}, []string{"worker"})
)

func errorReason(err error) string {
	switch {
	case errors.Is(err, twitter.ErrTransport):
		return "transport"
	case errors.Is(err, twitter.ErrNotFound):
		return "not_found"
	case errors.Is(err, twitter.ErrUpstreamFormat):
		return "format"
	}
	return "other"
}
