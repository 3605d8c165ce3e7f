package fetch

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/any-hub/any-asset/internal/cache"
	"github.com/any-hub/any-asset/internal/config"
	"github.com/any-hub/any-asset/internal/logging"
	"github.com/any-hub/any-asset/internal/registry"
	"github.com/any-hub/any-asset/internal/scheduler"
	"github.com/any-hub/any-asset/internal/transport"
)

type countingStore struct {
	cache.Store
	lookups atomic.Int64
}

func (s *countingStore) Lookup(url string) (cache.Entry, bool) {
	s.lookups.Add(1)
	return s.Store.Lookup(url)
}

// fakeTransport 按 URL 返回预设内容，未登记的 URL 返回 404。
type fakeTransport struct {
	mu        sync.Mutex
	responses map[string]string
	requested []string
}

func newFakeTransport(responses map[string]string) *fakeTransport {
	if responses == nil {
		responses = map[string]string{}
	}
	return &fakeTransport{responses: responses}
}

func (f *fakeTransport) DownloadToFile(_ context.Context, url, destPath string, _ http.Header, onProgress transport.ProgressFunc) (string, error) {
	f.mu.Lock()
	f.requested = append(f.requested, url)
	body, ok := f.responses[url]
	f.mu.Unlock()

	if !ok {
		return "", &transport.StatusError{URL: url, StatusCode: http.StatusNotFound}
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(destPath, []byte(body), 0o644); err != nil {
		return "", err
	}
	if onProgress != nil {
		onProgress(int64(len(body)), int64(len(body)))
	}
	return destPath, nil
}

func (f *fakeTransport) set(url, body string) {
	f.mu.Lock()
	f.responses[url] = body
	f.mu.Unlock()
}

func (f *fakeTransport) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requested...)
}

type recordingEngine struct {
	mu    sync.Mutex
	paths []string
}

func (e *recordingEngine) Exec(_ context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	e.mu.Lock()
	e.paths = append(e.paths, path)
	e.mu.Unlock()
	return nil
}

func (e *recordingEngine) executed() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.paths...)
}

type failingFonts struct {
	mu       sync.Mutex
	families []string
	sources  []string
}

func (f *failingFonts) Register(_ context.Context, family, source string) error {
	f.mu.Lock()
	f.families = append(f.families, family)
	f.sources = append(f.sources, source)
	f.mu.Unlock()
	return errors.New("font face rejected")
}

type testEnv struct {
	pipeline  *Pipeline
	store     *countingStore
	transport *fakeTransport
	engine    *recordingEngine
	bundles   *BundleLoader
	scheduler *scheduler.Scheduler
	root      string
}

type envConfig struct {
	global config.GlobalConfig
	hosts  Hosts
	clock  clock.Clock
}

type envOption func(*envConfig)

func withGlobal(fn func(*config.GlobalConfig)) envOption {
	return func(c *envConfig) { fn(&c.global) }
}

func withFonts(fonts FontRegistry) envOption {
	return func(c *envConfig) { c.hosts.Fonts = fonts }
}

// withClock 让缓存与管线共享同一个时钟，便于断言访问时间。
func withClock(clk clock.Clock) envOption {
	return func(c *envConfig) { c.clock = clk }
}

func newTestEnv(t *testing.T, ft *fakeTransport, opts ...envOption) *testEnv {
	t.Helper()

	engine := &recordingEngine{}
	cfg := envConfig{hosts: Hosts{Scripts: engine}, clock: clock.New()}
	for _, opt := range opts {
		opt(&cfg)
	}

	root := t.TempDir()
	base, err := cache.NewStore(root, cache.WithInMemoryIndex(), cache.WithClock(cfg.clock))
	if err != nil {
		t.Fatalf("store init error: %v", err)
	}
	store := &countingStore{Store: base}
	t.Cleanup(func() { _ = store.Close() })

	profiles := make([]scheduler.Profile, 0, 4)
	for _, p := range config.DefaultProfiles() {
		profiles = append(profiles, scheduler.Profile{Name: p.Name, MaxConcurrency: p.MaxConcurrency, MaxPerTick: p.MaxPerTick})
	}
	sched, err := scheduler.New(profiles, scheduler.WithInterval(time.Millisecond), scheduler.WithLogger(logging.Discard()))
	if err != nil {
		t.Fatalf("scheduler init error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go sched.Run(ctx)
	t.Cleanup(func() {
		cancel()
		sched.Stop()
	})

	if ft == nil {
		ft = newFakeTransport(nil)
	}
	p, err := NewPipeline(Deps{
		Store:     store,
		Transport: ft,
		Scheduler: sched,
		Registry:  registry.New(),
		Logger:    logging.Discard(),
		Clock:     cfg.clock,
	})
	if err != nil {
		t.Fatalf("pipeline init error: %v", err)
	}
	bundles := p.RegisterBuiltins(cfg.hosts, cfg.global)

	return &testEnv{
		pipeline:  p,
		store:     store,
		transport: ft,
		engine:    engine,
		bundles:   bundles,
		scheduler: sched,
		root:      root,
	}
}

func writeLocal(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
