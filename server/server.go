package server

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"moments/db"
	"moments/models"
)

var (
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "moments_server_request_duration_seconds",
		Help:    "Duration of requests handled by the development server",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	momentsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "moments_server_moments_created_total",
		Help: "Number of moments stored by the development server",
	})
)

type ServerConfig struct {
	// The store moments are read from and written to
	Store *db.Store

	// Page size used when the limit parameter is missing or invalid
	DefaultLimit int

	// Largest accepted limit parameter
	MaxLimit int

	// Clock used to stamp new moments. Defaults to time.Now.
	Now func() time.Time
}

// Returns a fiber.App instance serving the moments REST API
func Server(config *ServerConfig) *fiber.App {
	if config.DefaultLimit <= 0 {
		config.DefaultLimit = 10
	}
	if config.MaxLimit < config.DefaultLimit {
		config.MaxLimit = config.DefaultLimit
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	// Middleware to track the latency of each request
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		latency := time.Since(start)
		status := c.Response().StatusCode()
		requestDuration.WithLabelValues(c.Method(), c.Route().Path, strconv.Itoa(status)).Observe(latency.Seconds())

		log.WithFields(log.Fields{
			"method":  c.Method(),
			"route":   c.Route().Path,
			"status":  status,
			"latency": latency,
		}).Info("Request")
		return err
	})

	app.Use(requestid.New(requestid.ConfigDefault))
	app.Use(compress.New())

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api/v1")

	api.Get("/moments", func(c *fiber.Ctx) error {
		limit, err := strconv.Atoi(c.Query("limit"))
		if err != nil || limit < 1 || limit > config.MaxLimit {
			limit = config.DefaultLimit
		}

		if fromTime := c.Query("from_time"); fromTime != "" {
			from, err := models.ParseTime(fromTime)
			if err != nil {
				return errorResponse(c, fiber.StatusBadRequest, "invalid from_time")
			}

			moments, err := config.Store.ListSince(c.UserContext(), from, limit)
			if err != nil {
				log.WithField("error", err).Error("Error listing moments")
				return errorResponse(c, fiber.StatusInternalServerError, "")
			}

			log.WithFields(log.Fields{
				"from_time": fromTime,
				"limit":     limit,
				"count":     len(moments),
			}).Info("List moments since")

			return c.JSON(listResponse(moments, nil))
		}

		var before int64
		if cursor := c.Query("cursor"); cursor != "" {
			before, err = strconv.ParseInt(cursor, 10, 64)
			if err != nil || before < 1 {
				return errorResponse(c, fiber.StatusBadRequest, "invalid cursor")
			}
		}

		// Fetch one extra row to know whether another page exists
		moments, err := config.Store.ListBefore(c.UserContext(), before, limit+1)
		if err != nil {
			log.WithField("error", err).Error("Error listing moments")
			return errorResponse(c, fiber.StatusInternalServerError, "")
		}

		var next *string
		if len(moments) > limit {
			moments = moments[:limit]
			next = lo.ToPtr(strconv.FormatInt(moments[limit-1].Id, 10))
		}

		log.WithFields(log.Fields{
			"cursor": before,
			"limit":  limit,
			"count":  len(moments),
			"next":   lo.FromPtr(next),
		}).Info("List moments by cursor")

		return c.JSON(listResponse(moments, next))
	})

	api.Post("/moments", func(c *fiber.Ctx) error {
		var request models.CreateRequest
		if err := c.BodyParser(&request); err != nil {
			return errorResponse(c, fiber.StatusBadRequest, "invalid request body")
		}

		text := strings.TrimSpace(request.Text)
		if text == "" {
			return errorResponse(c, fiber.StatusBadRequest, "text is required")
		}

		moment, err := config.Store.CreateMoment(c.UserContext(), text, strings.TrimSpace(request.AuthorName), config.Now())
		if err != nil {
			log.WithField("error", err).Error("Error creating moment")
			return errorResponse(c, fiber.StatusInternalServerError, "")
		}
		momentsCreated.Inc()

		return c.JSON(moment.ToPayload())
	})

	return app
}

func listResponse(moments []models.Moment, cursor *string) models.ListResponse {
	return models.ListResponse{
		Cursor: cursor,
		Moments: lo.Map(moments, func(m models.Moment, _ int) models.MomentPayload {
			return m.ToPayload()
		}),
	}
}

// errorResponse writes the error envelope. An empty message leaves the body
// without one, as clients treat the message as optional.
func errorResponse(c *fiber.Ctx, status int, message string) error {
	if message == "" {
		return c.Status(status).JSON(fiber.Map{})
	}
	return c.Status(status).JSON(models.ErrorResponse{Error: models.ErrorBody{Message: message}})
}
