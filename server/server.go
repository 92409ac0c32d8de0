package server

import (
	"context"
	"errors"
	"nofuture/feeds"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// SubscriberHeader carries the caller's chat platform user id. It is set by
// the authenticating proxy in front of the server.
const SubscriberHeader = "X-Subscriber-Id"

type Pinger interface {
	Ping(ctx context.Context) error
}

type ServerConfig struct {
	// Subscriber facing operations
	Service *feeds.Service

	// Used by the health check
	Store Pinger
}

type userRequest struct {
	Channel *int64 `json:"channel"`
}

type scheduleRequest struct {
	PostId        int64   `json:"postId"`
	PostText      *string `json:"postText"`
	ExcludedMedia []int64 `json:"excludedMedia"`
}

type markReadRequest struct {
	Cursor string `json:"cursor"`
}

// Returns a fiber.App instance serving the intake and admin API
func Server(config *ServerConfig) *fiber.App {
	service := config.Service

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return fail(c, err)
		},
	})

	// Middleware to track the latency of each request
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		log.WithFields(log.Fields{
			"method":    c.Method(),
			"route":     c.Route().Path,
			"status":    c.Response().StatusCode(),
			"latency":   time.Since(start),
			"requestId": c.GetRespHeader(fiber.HeaderXRequestID),
		}).Info("Request")
		return err
	})

	app.Use(requestid.New(requestid.ConfigDefault))
	app.Use(compress.New())

	metrics := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	app.Get("/metrics", func(c *fiber.Ctx) error {
		metrics(c.Context())
		return nil
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		if err := config.Store.Ping(c.UserContext()); err != nil {
			log.Errorf("Health check failed: %s", err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Get("/author/:ref", func(c *fiber.Ctx) error {
		author, err := service.ResolveAuthor(c.UserContext(), c.Params("ref"))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(author)
	})

	app.Get("/author/:ref/posts", func(c *fiber.Ctx) error {
		limit := c.QueryInt("limit", feeds.PostsPerAuthor)
		if limit < 1 || limit > 100 {
			limit = feeds.PostsPerAuthor
		}
		posts, err := service.AuthorPosts(c.UserContext(), c.Params("ref"), limit)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(posts)
	})

	// Everything below acts on behalf of a subscriber
	app.Use(subscriberMiddleware)

	app.Put("/author/:ref", func(c *fiber.Ctx) error {
		author, err := service.TrackAuthor(c.UserContext(), subscriberID(c), c.Params("ref"))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(author)
	})

	app.Post("/author/:ref/follow", func(c *fiber.Ctx) error {
		author, err := service.Follow(c.UserContext(), subscriberID(c), c.Params("ref"))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(author)
	})

	app.Delete("/author/:ref/follow", func(c *fiber.Ctx) error {
		ok, err := service.Unfollow(c.UserContext(), subscriberID(c), c.Params("ref"))
		if err != nil {
			return fail(c, err)
		}
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not following"})
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	app.Get("/user", func(c *fiber.Ctx) error {
		subscriber, err := service.Subscriber(c.UserContext(), subscriberID(c))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(subscriber)
	})

	app.Post("/user", func(c *fiber.Ctx) error {
		var req userRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
			}
		}

		id := subscriberID(c)
		if _, err := service.Register(c.UserContext(), id); err != nil {
			return fail(c, err)
		}
		if req.Channel != nil {
			if err := service.LinkChannel(c.UserContext(), id, req.Channel); err != nil {
				return fail(c, err)
			}
		}

		subscriber, err := service.Subscriber(c.UserContext(), id)
		if err != nil {
			return fail(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(subscriber)
	})

	app.Delete("/user", func(c *fiber.Ctx) error {
		if err := service.Unregister(c.UserContext(), subscriberID(c)); err != nil {
			return fail(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	app.Get("/user/follows", func(c *fiber.Ctx) error {
		authors, err := service.FollowedAuthors(c.UserContext(), subscriberID(c))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(authors)
	})

	app.Get("/feed", func(c *fiber.Ctx) error {
		feed, err := service.Feed(c.UserContext(), subscriberID(c))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(feed)
	})

	app.Patch("/feed", func(c *fiber.Ctx) error {
		req := markReadRequest{Cursor: c.Query("cursor")}
		if req.Cursor == "" {
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
			}
		}
		if err := service.MarkRead(c.UserContext(), subscriberID(c), req.Cursor); err != nil {
			return fail(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	app.Get("/feed/scheduled", func(c *fiber.Ctx) error {
		queue, err := service.ScheduledPosts(c.UserContext(), subscriberID(c))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(queue)
	})

	app.Put("/feed/scheduled", func(c *fiber.Ctx) error {
		var req scheduleRequest
		if err := c.BodyParser(&req); err != nil || req.PostId == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "postId is required"})
		}

		scheduled, err := service.CreateScheduledPost(c.UserContext(), subscriberID(c), req.PostId, req.PostText, req.ExcludedMedia)
		if err != nil {
			return fail(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(scheduled)
	})

	app.Delete("/feed/scheduled/:id", func(c *fiber.Ctx) error {
		id, err := strconv.ParseInt(c.Params("id"), 10, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid id"})
		}
		if err := service.CancelScheduledPost(c.UserContext(), subscriberID(c), id); err != nil {
			return fail(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	return app
}

func subscriberMiddleware(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Get(SubscriberHeader), 10, 64)
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing or invalid " + SubscriberHeader})
	}
	c.Locals("subscriber", id)
	return c.Next()
}

func subscriberID(c *fiber.Ctx) int64 {
	id, _ := c.Locals("subscriber").(int64)
	return id
}

func fail(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError

	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &fiberErr):
		status = fiberErr.Code
	case errors.Is(err, feeds.ErrPostNotFound),
		errors.Is(err, feeds.ErrAuthorNotFound),
		errors.Is(err, feeds.ErrSubscriberNotFound),
		errors.Is(err, feeds.ErrScheduledNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, feeds.ErrForbidden):
		status = fiber.StatusForbidden
	case errors.Is(err, feeds.ErrTooManyExcluded):
		status = fiber.StatusUnprocessableEntity
	}

	if status == fiber.StatusInternalServerError {
		log.WithFields(log.Fields{
			"path":  c.Path(),
			"error": err,
		}).Error("Request failed")
		return c.Status(status).JSON(fiber.Map{"error": "internal error"})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
