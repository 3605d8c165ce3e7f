package routes

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/any-asset/internal/cache"
	"github.com/any-hub/any-asset/internal/fetch"
)

// RegisterDiagnosticsRoutes 暴露缓存、调度队列与分派表的诊断接口。
func RegisterDiagnosticsRoutes(app *fiber.App, pipeline *fetch.Pipeline) {
	if app == nil || pipeline == nil {
		return
	}

	app.Get("/-/cache", func(c fiber.Ctx) error {
		entries, err := pipeline.Store().Entries()
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "cache_unavailable"})
		}
		return c.JSON(fiber.Map{
			"root":    pipeline.Store().Root(),
			"entries": entries,
			"bundles": groupByBundle(entries),
		})
	})

	app.Delete("/-/cache/bundles/:name", func(c fiber.Ctx) error {
		name := strings.TrimSpace(c.Params("name"))
		removed, err := pipeline.Store().RemoveBundle(name)
		switch {
		case errors.Is(err, cache.ErrInvalidBundleName):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_bundle_name"})
		case err != nil:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "cache_remove_failed"})
		}
		return c.JSON(fiber.Map{"bundle": name, "removed": removed})
	})

	app.Get("/-/scheduler", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"profiles": pipeline.Scheduler().Stats()})
	})

	app.Get("/-/extensions", func(c fiber.Ctx) error {
		downloads, parses := pipeline.Registry().Snapshot()
		return c.JSON(fiber.Map{
			"download": downloads,
			"parse":    parses,
		})
	})
}

// groupByBundle 统计每个 bundle 目录下的条目数，未归属 bundle 的条目计入空键。
func groupByBundle(entries []cache.Entry) map[string]int {
	if len(entries) == 0 {
		return nil
	}
	counts := make(map[string]int)
	for _, entry := range entries {
		counts[entry.BundleRoot]++
	}
	return counts
}
