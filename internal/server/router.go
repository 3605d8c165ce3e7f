package server

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/any-asset/internal/cache"
	"github.com/any-hub/any-asset/internal/fetch"
	"github.com/any-hub/any-asset/internal/registry"
	"github.com/any-hub/any-asset/internal/scheduler"
)

// AppOptions controls which pipeline the Fiber application serves.
type AppOptions struct {
	Logger   *logrus.Logger
	Pipeline *fetch.Pipeline
	// Gatherer 为 nil 时不暴露 /metrics。
	Gatherer prometheus.Gatherer
}

const contextKeyRequestID = "_anyasset_request_id"

// NewApp builds a Fiber application with request-id middleware, asset and
// bundle endpoints, and the Prometheus exposition endpoint.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Pipeline == nil {
		return nil, errors.New("pipeline is required")
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware())

	h := &assetHandler{logger: opts.Logger, pipeline: opts.Pipeline}
	app.Get("/-/asset", h.loadAsset)
	app.Get("/-/bundles/:name", h.loadBundle)

	if opts.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	return app, nil
}

// requestContextMiddleware 负责生成请求 ID 并写入响应头。
func requestContextMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

type assetHandler struct {
	logger   *logrus.Logger
	pipeline *fetch.Pipeline
}

func (h *assetHandler) loadAsset(c fiber.Ctx) error {
	url := strings.TrimSpace(c.Query("url"))
	if url == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "url_required"})
	}
	if !allowedAssetSource(url) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "local_path_forbidden"})
	}
	opts := requestOptions(c)

	started := time.Now()
	out, err := h.pipeline.Load(requestContext(c), url, opts)
	fields := logrus.Fields{
		"action":     "asset_request",
		"url":        url,
		"preset":     opts.Preset,
		"request_id": RequestID(c),
		"elapsed_ms": time.Since(started).Milliseconds(),
	}
	if err != nil {
		h.logger.WithFields(fields).WithError(err).Warn("asset_request_failed")
		return renderError(c, err)
	}
	h.logger.WithFields(fields).Info("asset_request")

	payload := fiber.Map{
		"url":    url,
		"ext":    fetch.Ext(url),
		"result": describe(out),
	}
	if entry, ok := h.pipeline.Store().Lookup(url); ok {
		payload["local_path"] = entry.LocalPath
	}
	return c.JSON(payload)
}

func (h *assetHandler) loadBundle(c fiber.Ctx) error {
	name, err := url.PathUnescape(c.Params("name"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_bundle_name"})
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bundle_name_required"})
	}
	if !allowedBundleName(name) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "local_path_forbidden"})
	}
	opts := requestOptions(c)

	manifest, err := h.pipeline.LoadBundle(requestContext(c), name, opts)
	fields := logrus.Fields{
		"action":     "bundle_request",
		"bundle":     name,
		"request_id": RequestID(c),
	}
	if err != nil {
		h.logger.WithFields(fields).WithError(err).Warn("bundle_request_failed")
		return renderError(c, err)
	}
	h.logger.WithFields(fields).Info("bundle_request")
	return c.JSON(manifest)
}

func requestContext(c fiber.Ctx) context.Context {
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx
}

func requestOptions(c fiber.Ctx) registry.Options {
	reload, _ := strconv.ParseBool(c.Query("reload"))
	return registry.Options{
		Reload:  reload,
		Version: strings.TrimSpace(c.Query("version")),
		Preset:  strings.TrimSpace(c.Query("preset")),
	}
}

// renderError 将错误分类映射为 HTTP 状态码。
func renderError(c fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	code := "internal_error"
	switch {
	case errors.Is(err, fetch.ErrManifest):
		status, code = fiber.StatusBadGateway, "manifest_failed"
	case errors.Is(err, fetch.ErrScriptLoad):
		status, code = fiber.StatusBadGateway, "script_load_failed"
	case errors.Is(err, fetch.ErrTransport):
		status, code = fiber.StatusBadGateway, "transport_failed"
	case errors.Is(err, fetch.ErrParse):
		status, code = fiber.StatusUnprocessableEntity, "parse_failed"
	case errors.Is(err, registry.ErrNoStrategy):
		status, code = fiber.StatusNotImplemented, "no_strategy"
	case errors.Is(err, cache.ErrInvalidBundleName):
		status, code = fiber.StatusBadRequest, "invalid_bundle_name"
	case errors.Is(err, scheduler.ErrStopped):
		status, code = fiber.StatusServiceUnavailable, "scheduler_stopped"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		status, code = fiber.StatusGatewayTimeout, "timeout"
	}
	return c.Status(status).JSON(fiber.Map{
		"error":   code,
		"message": err.Error(),
	})
}
