package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"nfce/internal/categorize"
	"nfce/internal/config"
	"nfce/internal/fetch"
	"nfce/internal/logger"
	"nfce/internal/pipeline"
)

const (
	proxyTimeout  = 15 * time.Second
	maxProxyBytes = 8 << 20
)

// Handlers carries the collaborators behind the HTTP API.
type Handlers struct {
	ingest      *pipeline.Service
	categorizer *categorize.Categorizer
	client      *http.Client
	userAgent   string
	origins     string
	timeout     time.Duration
	log         *zap.Logger
}

// NewHandlers binds the collaborators. A nil client gets the fetch package's
// cookie-less one.
func NewHandlers(cfg config.Config, ingest *pipeline.Service, categorizer *categorize.Categorizer, client *http.Client, log *zap.Logger) *Handlers {
	if client == nil {
		client = fetch.NewHTTPClient()
	}
	ua := cfg.FetchUserAgent
	if strings.TrimSpace(ua) == "" {
		ua = config.DefaultUserAgent
	}
	return &Handlers{
		ingest:      ingest,
		categorizer: categorizer,
		client:      client,
		userAgent:   ua,
		origins:     cfg.HTTPCORSOrigins,
		timeout:     proxyTimeout,
		log:         logger.OrNop(log),
	}
}

func New(cfg config.Config, ingest *pipeline.Service, categorizer *categorize.Categorizer, client *http.Client, log *zap.Logger) *fiber.App {
	return NewHandlers(cfg, ingest, categorizer, client, log).App()
}

// App wires the middleware and routes.
func (h *Handlers) App() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	origins := h.origins
	if strings.TrimSpace(origins) == "" {
		origins = "*"
	}
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: "GET,OPTIONS",
		AllowHeaders: "Content-Type,Accept",
	}))
	app.Use(fiberlogger.New())

	app.Get("/healthz", h.Health)

	api := app.Group("/api")
	api.Get("/nfce-proxy", h.Proxy)
	api.Get("/receipts/parse", h.ParseReceipt)
	api.Get("/categorize", h.Categorize)

	return app
}

func (h *Handlers) Health(c *fiber.Ctx) error {
	ready := false
	if h.categorizer != nil {
		select {
		case <-h.categorizer.Ready():
			ready = true
		default:
		}
	}
	return c.JSON(fiber.Map{"status": "ok", "categorizerReady": ready})
}

// Proxy fetches a public receipt page on behalf of a browser and returns it
// inside a JSON envelope.
func (h *Handlers) Proxy(c *fiber.Ctx) error {
	c.Set(fiber.HeaderCacheControl, "no-store")

	target, err := fetch.ValidateTargetURL(c.Query("url"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing_or_invalid_url"})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing_or_invalid_url"})
	}
	req.Header.Set("User-Agent", h.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := h.client.Do(req)
	if err != nil {
		msg := "proxy_failed"
		if errors.Is(err, context.DeadlineExceeded) {
			msg = "timeout"
		}
		h.log.Warn("proxy request failed", zap.String("host", target.Host), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": msg})
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "upstream_error", "status": resp.StatusCode})
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProxyBytes))
	if err != nil {
		msg := "proxy_failed"
		if errors.Is(err, context.DeadlineExceeded) {
			msg = "timeout"
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": msg})
	}

	return c.JSON(fiber.Map{"html": string(body), "source": target.Hostname()})
}

// ParseReceipt runs the full ingest for ?url= and returns the parse result.
func (h *Handlers) ParseReceipt(c *fiber.Ctx) error {
	if h.ingest == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "ingest not configured")
	}
	opts := pipeline.Options{Categorize: truthy(c.Query("categorize"))}

	res, err := h.ingest.Ingest(c.UserContext(), c.Query("url"), opts)
	switch {
	case errors.Is(err, fetch.ErrInvalidURL):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing_or_invalid_url"})
	case errors.Is(err, fetch.ErrFetchFailed):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	case err != nil:
		return fmt.Errorf("ingest: %w", err)
	}
	return c.JSON(res)
}

func (h *Handlers) Categorize(c *fiber.Ctx) error {
	name := strings.TrimSpace(c.Query("name"))
	if name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing_name"})
	}
	if h.categorizer == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "categorizer not configured")
	}
	category, stage := h.categorizer.Lookup(name)
	return c.JSON(fiber.Map{"name": name, "category": category, "stage": stage})
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
