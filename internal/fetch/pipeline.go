// Package fetch resolves asset identifiers to usable content. A request is
// routed (local, cached or network), downloaded under scheduler admission when
// needed, parsed by the strategy registered for its extension, and only then
// recorded in the cache. Bundles, scripts and fonts are built on the same
// pipeline through the strategies in this package.
package fetch

import (
	"context"
	"errors"
	"fmt"
	neturl "net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/any-hub/any-asset/internal/cache"
	"github.com/any-hub/any-asset/internal/config"
	"github.com/any-hub/any-asset/internal/formats"
	"github.com/any-hub/any-asset/internal/logging"
	"github.com/any-hub/any-asset/internal/metrics"
	"github.com/any-hub/any-asset/internal/registry"
	"github.com/any-hub/any-asset/internal/scheduler"
	"github.com/any-hub/any-asset/internal/transport"
)

// storageCounter 在进程内单调递增，与毫秒时间戳一起保证存储路径不冲突。
var storageCounter atomic.Uint64

// Deps 汇总管线依赖。Store/Transport/Scheduler/Registry 必填。
type Deps struct {
	Store     cache.Store
	Transport transport.Transport
	Scheduler *scheduler.Scheduler
	Registry  *registry.Registry
	Logger    *logrus.Logger
	Metrics   *metrics.Metrics
	Clock     clock.Clock
}

// Pipeline 是资源获取入口，实现 registry.Fetcher。
type Pipeline struct {
	store     cache.Store
	transport transport.Transport
	scheduler *scheduler.Scheduler
	registry  *registry.Registry
	router    *Router
	logger    *logrus.Logger
	metrics   *metrics.Metrics
	clock     clock.Clock
}

// NewPipeline 校验依赖并构建管线。
func NewPipeline(deps Deps) (*Pipeline, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("cache store required")
	case deps.Transport == nil:
		return nil, errors.New("transport required")
	case deps.Scheduler == nil:
		return nil, errors.New("scheduler required")
	case deps.Registry == nil:
		return nil, errors.New("registry required")
	}
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	return &Pipeline{
		store:     deps.Store,
		transport: deps.Transport,
		scheduler: deps.Scheduler,
		registry:  deps.Registry,
		router:    NewRouter(deps.Store),
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		clock:     deps.Clock,
	}, nil
}

// Hosts 是宿主提供的协作者，为 nil 时对应能力退化（脚本加载报错，字体只返回名称）。
type Hosts struct {
	Scripts ScriptEngine
	Fonts   FontRegistry
}

// RegisterBuiltins 写入内置分派表，并把脚本、字体与 bundle 策略接到本管线上。
func (p *Pipeline) RegisterBuiltins(hosts Hosts, global config.GlobalConfig) *BundleLoader {
	scripts := NewScriptLoader(hosts.Scripts, p.logger)
	fonts := NewFontLoader(hosts.Fonts, p.logger)
	bundles := NewBundleLoader(p, p.store, global, p.logger, p.metrics)
	formats.RegisterDefaults(p.registry, formats.Builtins{
		Script:       scripts,
		ScriptParser: scripts.Parser(),
		Bundle:       bundles,
		Font:         fonts,
		FontParser:   fonts.Parser(),
	})
	return bundles
}

// Registry 返回管线使用的分派表。
func (p *Pipeline) Registry() *registry.Registry { return p.registry }

// Store 返回管线使用的缓存。
func (p *Pipeline) Store() cache.Store { return p.store }

// Scheduler 返回管线使用的调度器。
func (p *Pipeline) Scheduler() *scheduler.Scheduler { return p.scheduler }

// Load 按 url 的扩展名选择下载与解析策略并获取单个资源。
func (p *Pipeline) Load(ctx context.Context, url string, opts registry.Options) (any, error) {
	return p.dispatch(ctx, url, Ext(url), opts)
}

// LoadBundle 通过 "bundle" 策略加载 bundle，返回注入 base 后的清单。
func (p *Pipeline) LoadBundle(ctx context.Context, nameOrURL string, opts registry.Options) (*BundleManifest, error) {
	out, err := p.dispatch(ctx, nameOrURL, registry.KeyBundle, opts)
	if err != nil {
		return nil, err
	}
	manifest, ok := out.(*BundleManifest)
	if !ok {
		return nil, fmt.Errorf("bundle strategy returned %T", out)
	}
	return manifest, nil
}

// LoadFont 加载字体并返回可用的字体族名称。
func (p *Pipeline) LoadFont(ctx context.Context, url string, opts registry.Options) (string, error) {
	out, err := p.Load(ctx, url, opts)
	if err != nil {
		return "", err
	}
	family, ok := out.(string)
	if !ok {
		return "", fmt.Errorf("font strategy returned %T", out)
	}
	return family, nil
}

// Preload 在 preload 流量类别下并发获取多个资源，结果与 urls 顺序一致。
func (p *Pipeline) Preload(ctx context.Context, urls []string, opts registry.Options) ([]any, error) {
	if opts.Preset == "" {
		opts.Preset = config.ProfilePreload
	}
	results := make([]any, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	for i, url := range urls {
		g.Go(func() error {
			out, err := p.Load(gctx, url, opts)
			if err != nil {
				return err
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *Pipeline) dispatch(ctx context.Context, url, key string, opts registry.Options) (any, error) {
	downloader, err := p.registry.ResolveDownload(key)
	if err != nil {
		return nil, err
	}
	parser, err := p.registry.ResolveParse(key)
	if err != nil {
		return nil, err
	}
	return downloader.Download(ctx, registry.Request{
		URL:     url,
		Ext:     key,
		Options: opts,
		Parser:  parser,
		Fetcher: p,
	})
}

// FetchFile 实现缓存感知的下载与解析：本地路径直接解析；缓存命中时刷新访问时间后
// 解析，解析失败会驱逐条目；否则在调度器准入下回源，解析成功后才写入缓存。
func (p *Pipeline) FetchFile(ctx context.Context, url string, opts registry.Options, parser registry.Parser) (any, error) {
	ext := Ext(url)
	if parser == nil {
		resolved, err := p.registry.ResolveParse(ext)
		if err != nil {
			return nil, err
		}
		parser = resolved
	}

	start := p.clock.Now()
	decision := p.router.Route(url, opts)

	var (
		out any
		err error
	)
	switch {
	case decision.IsLocal:
		out, err = p.parse(ctx, parser, decision.Source, opts)
	case decision.IsCached:
		out, err = p.fromCache(ctx, url, decision.Source, parser, opts)
	default:
		out, err = p.fromNetwork(ctx, url, ext, parser, opts)
	}

	source := decision.SourceLabel()
	p.metrics.ObserveFetch(source, err, p.clock.Since(start))
	entry := p.logger.WithFields(logging.FetchFields(url, ext, source, opts.Preset))
	if err != nil {
		entry.WithError(err).Warn("fetch_failed")
		return nil, err
	}
	entry.WithField("elapsed_ms", p.clock.Since(start).Milliseconds()).Debug("fetch")
	return out, nil
}

func (p *Pipeline) fromCache(ctx context.Context, url, localPath string, parser registry.Parser, opts registry.Options) (any, error) {
	if err := p.store.Touch(url); err != nil && !errors.Is(err, cache.ErrNotFound) {
		p.logger.WithFields(logrus.Fields{"action": "cache_touch", "url": url}).WithError(err).Warn("cache_touch_failed")
	}

	out, err := p.parse(ctx, parser, localPath, opts)
	if err == nil {
		return out, nil
	}
	// 损坏或截断的缓存文件不能再被静默使用，下次请求将重新回源。
	if rmErr := p.store.Remove(url); rmErr != nil {
		p.logger.WithFields(logrus.Fields{"action": "cache_evict", "url": url}).WithError(rmErr).Error("cache_evict_failed")
	} else {
		p.metrics.ObserveEviction()
		p.logger.WithFields(logrus.Fields{"action": "cache_evict", "url": url, "path": localPath}).Warn("cache_evict")
	}
	return nil, err
}

// fromNetwork 的下载、解析与写缓存都在调度任务内完成：任务一旦被派发就会执行到底，
// 调用方取消只会停止等待，结果仍会进入缓存。
func (p *Pipeline) fromNetwork(ctx context.Context, url, ext string, parser registry.Parser, opts registry.Options) (any, error) {
	dir := p.store.Root()
	if opts.BundleRoot != "" {
		folder, err := p.store.EnsureBundleFolder(opts.BundleRoot)
		if err != nil {
			return nil, err
		}
		dir = folder
	}
	dest := filepath.Join(dir, storageName(p.clock.Now(), ext))

	profile := opts.Preset
	if profile == "" {
		profile = scheduler.DefaultProfile
	}

	var out any
	err := p.scheduler.Do(ctx, profile, func(taskCtx context.Context) error {
		local, err := p.transport.DownloadToFile(taskCtx, url, dest, opts.Header, opts.OnFileProgress)
		if err != nil {
			return fmt.Errorf("%w %s: %w", ErrTransport, url, err)
		}

		parsed, err := p.parse(taskCtx, parser, local, opts)
		if err != nil {
			_ = os.Remove(local)
			return err
		}

		if err := p.store.Insert(url, local, opts.BundleRoot); err != nil {
			p.logger.WithFields(logrus.Fields{"action": "cache_insert", "url": url}).WithError(err).Warn("cache_insert_failed")
		}
		out = parsed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Pipeline) parse(ctx context.Context, parser registry.Parser, source string, opts registry.Options) (any, error) {
	out, err := parser.Parse(ctx, source, opts)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrParse, source, err)
	}
	return out, nil
}

func storageName(now time.Time, ext string) string {
	return fmt.Sprintf("%d%d%s", now.UnixMilli(), storageCounter.Add(1), ext)
}

// Ext 返回 url 路径部分的扩展名（不含查询串与片段）。
func Ext(raw string) string {
	p := raw
	if u, err := neturl.Parse(raw); err == nil && u.Path != "" {
		p = u.Path
	} else if i := strings.IndexAny(raw, "?#"); i >= 0 {
		p = raw[:i]
	}
	return path.Ext(p)
}
