package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/any-hub/any-asset/internal/cache"
	"github.com/any-hub/any-asset/internal/config"
	"github.com/any-hub/any-asset/internal/fetch"
	"github.com/any-hub/any-asset/internal/metrics"
	"github.com/any-hub/any-asset/internal/registry"
	"github.com/any-hub/any-asset/internal/scheduler"
	"github.com/any-hub/any-asset/internal/transport"
)

// assetRuntime 持有进程内共享的缓存、调度器与管线实例。
type assetRuntime struct {
	store           cache.Store
	scheduler       *scheduler.Scheduler
	pipeline        *fetch.Pipeline
	metricsRegistry *prometheus.Registry
	cancel          context.CancelFunc
}

func newRuntime(cfg *config.Config, logger *logrus.Logger) (*assetRuntime, error) {
	storeOpts := []cache.Option{cache.WithLRUSize(cfg.Global.IndexLRUSize)}
	if cfg.Global.IndexInMemory {
		storeOpts = append(storeOpts, cache.WithInMemoryIndex())
	}
	store, err := cache.NewStore(cfg.Global.CacheRoot, storeOpts...)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	profiles := make([]scheduler.Profile, 0)
	for _, p := range cfg.EffectiveProfiles() {
		profiles = append(profiles, scheduler.Profile{
			Name:           p.Name,
			MaxConcurrency: p.MaxConcurrency,
			MaxPerTick:     p.MaxPerTick,
		})
	}
	sched, err := scheduler.New(profiles,
		scheduler.WithInterval(cfg.Global.TickInterval.DurationValue()),
		scheduler.WithLogger(logger),
		scheduler.WithObserver(m),
	)
	if err != nil {
		return nil, multierr.Append(err, store.Close())
	}

	pipeline, err := fetch.NewPipeline(fetch.Deps{
		Store:     store,
		Transport: transport.NewHTTPTransport(cfg.Global.DownloadTimeout.DurationValue()),
		Scheduler: sched,
		Registry:  registry.New(),
		Logger:    logger,
		Metrics:   m,
	})
	if err != nil {
		return nil, multierr.Append(err, store.Close())
	}
	pipeline.RegisterBuiltins(fetch.Hosts{
		Scripts: newFileScriptEngine(logger),
		Fonts:   newFileFontRegistry(logger),
	}, cfg.Global)

	return &assetRuntime{
		store:           store,
		scheduler:       sched,
		pipeline:        pipeline,
		metricsRegistry: reg,
	}, nil
}

// Start 在后台驱动调度节拍，直到 ctx 结束或 Close。
func (r *assetRuntime) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	go r.scheduler.Run(ctx)
}

// Close 停止调度器并关闭缓存索引。尚未派发的下载以 scheduler.ErrStopped 结束。
func (r *assetRuntime) Close() error {
	if r.cancel != nil {
		r.cancel()
	}
	r.scheduler.Stop()
	return r.store.Close()
}
