package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/any-asset/internal/cache"
	"github.com/any-hub/any-asset/internal/config"
	"github.com/any-hub/any-asset/internal/logging"
	"github.com/any-hub/any-asset/internal/metrics"
	"github.com/any-hub/any-asset/internal/registry"
)

// BundleState 是 bundle 加载状态机的位置。
type BundleState int

const (
	StateResolvingRoot BundleState = iota
	StateFetchingManifest
	StateFetchingEntryScript
	StateReady
	StateFailed
)

func (s BundleState) String() string {
	switch s {
	case StateResolvingRoot:
		return "resolving_root"
	case StateFetchingManifest:
		return "fetching_manifest"
	case StateFetchingEntryScript:
		return "fetching_entry_script"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal 报告状态是否为 Ready 或 Failed。
func (s BundleState) Terminal() bool {
	return s == StateReady || s == StateFailed
}

// BundleManifest 是 bundle 的 config JSON。Fields 保留原始字段，Base 由加载器注入。
type BundleManifest struct {
	Name      string
	Base      string
	Encrypted bool
	Fields    map[string]any
}

// MarshalJSON 输出原始字段并覆盖 base 与 encrypted。
func (m *BundleManifest) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Fields)+2)
	for k, v := range m.Fields {
		out[k] = v
	}
	out["base"] = m.Base
	out["encrypted"] = m.Encrypted
	return json.Marshal(out)
}

// Loader 是加载器依赖的单资源获取入口，Pipeline 实现该接口。
type Loader interface {
	Load(ctx context.Context, url string, opts registry.Options) (any, error)
}

// TransitionFunc 在每次状态迁移后被调用。
type TransitionFunc func(bundle string, from, to BundleState)

// BundleLoader 是 "bundle" 键的下载策略：先取清单，再按清单加载入口脚本。
type BundleLoader struct {
	loader  Loader
	store   cache.Store
	global  config.GlobalConfig
	logger  *logrus.Logger
	metrics *metrics.Metrics
	hook    TransitionFunc
}

// NewBundleLoader 创建 bundle 加载器。global 提供远程服务器、远程 bundle 集合与版本表，只在此读取一次。
func NewBundleLoader(loader Loader, store cache.Store, global config.GlobalConfig, logger *logrus.Logger, m *metrics.Metrics) *BundleLoader {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	global.RemoteServer = config.NormalizeServerRoot(global.RemoteServer)
	return &BundleLoader{
		loader:  loader,
		store:   store,
		global:  global,
		logger:  logger,
		metrics: m,
	}
}

// OnTransition 设置状态迁移回调，需在加载开始前调用。
func (b *BundleLoader) OnTransition(fn TransitionFunc) {
	b.hook = fn
}

// Download 实现 registry.Downloader，req.URL 为 bundle 名称或绝对 URL。
func (b *BundleLoader) Download(ctx context.Context, req registry.Request) (any, error) {
	return b.Load(ctx, req.URL, req.Options)
}

type bundleRun struct {
	input    string
	name     string
	version  string
	root     string
	opts     registry.Options
	manifest *BundleManifest
	state    BundleState
	err      error
}

// Load 驱动状态机直到 Ready 或 Failed。清单失败时不会请求入口脚本。
func (b *BundleLoader) Load(ctx context.Context, nameOrURL string, opts registry.Options) (*BundleManifest, error) {
	run := &bundleRun{
		input: nameOrURL,
		name:  path.Base(strings.TrimSuffix(nameOrURL, "/")),
		opts:  opts,
		state: StateResolvingRoot,
	}

	for !run.state.Terminal() {
		var next BundleState
		switch run.state {
		case StateResolvingRoot:
			next = b.resolveRoot(run)
		case StateFetchingManifest:
			next = b.fetchManifest(ctx, run)
		case StateFetchingEntryScript:
			next = b.fetchEntryScript(ctx, run)
		}
		b.transition(run, next)
	}

	b.metrics.ObserveBundle(run.state.String())
	if run.state == StateFailed {
		return nil, run.err
	}
	return run.manifest, nil
}

func (b *BundleLoader) transition(run *bundleRun, next BundleState) {
	from := run.state
	run.state = next
	entry := b.logger.WithFields(logging.BundleFields(run.name, next.String())).WithField("from", from.String())
	if next == StateFailed {
		entry.WithError(run.err).Warn("bundle_transition")
	} else {
		entry.Debug("bundle_transition")
	}
	if b.hook != nil {
		b.hook(run.name, from, next)
	}
}

// resolveRoot 依次尝试：绝对 URL、已声明的远程 bundle、同源本地 bundle。
func (b *BundleLoader) resolveRoot(run *bundleRun) BundleState {
	if run.name == "" || run.name == "." || run.name == ".." || run.name == "/" {
		run.err = fmt.Errorf("%w: invalid bundle %q", ErrManifest, run.input)
		return StateFailed
	}

	run.version = run.opts.Version
	if run.version == "" {
		run.version = b.global.BundleVersion(run.name)
	}
	run.opts.BundleRoot = run.name
	if run.opts.Preset == "" {
		run.opts.Preset = config.ProfileBundle
	}

	switch {
	case IsRemote(run.input):
		run.root = strings.TrimSuffix(run.input, "/")
	case b.global.IsRemoteBundle(run.name):
		run.root = b.global.RemoteServer + "remote/" + run.name
	default:
		run.root = "assets/" + run.name
		return StateFetchingManifest
	}

	if b.store != nil {
		if _, err := b.store.EnsureBundleFolder(run.name); err != nil {
			run.err = fmt.Errorf("%w %s: %w", ErrManifest, run.name, err)
			return StateFailed
		}
	}
	return StateFetchingManifest
}

func (b *BundleLoader) fetchManifest(ctx context.Context, run *bundleRun) BundleState {
	url := run.root + "/config." + versionSegment(run.version) + "json"
	out, err := b.loader.Load(ctx, url, run.opts)
	if err != nil {
		run.err = fmt.Errorf("%w %s: %w", ErrManifest, url, err)
		return StateFailed
	}
	fields, ok := out.(map[string]any)
	if !ok {
		run.err = fmt.Errorf("%w %s: manifest is %T, want object", ErrManifest, url, out)
		return StateFailed
	}

	encrypted, _ := fields["encrypted"].(bool)
	run.manifest = &BundleManifest{
		Name:      run.name,
		Base:      run.root + "/",
		Encrypted: encrypted,
		Fields:    fields,
	}
	fields["base"] = run.manifest.Base
	return StateFetchingEntryScript
}

func (b *BundleLoader) fetchEntryScript(ctx context.Context, run *bundleRun) BundleState {
	ext := "js"
	if run.manifest.Encrypted {
		ext = "jsc"
	}
	url := run.root + "/index." + versionSegment(run.version) + ext
	if _, err := b.loader.Load(ctx, url, run.opts); err != nil {
		run.err = fmt.Errorf("%w %s: %w", ErrScriptLoad, url, err)
		return StateFailed
	}
	return StateReady
}

func versionSegment(version string) string {
	if version == "" {
		return ""
	}
	return version + "."
}
