package fetch

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/any-hub/any-asset/internal/registry"
)

// ScriptEngine 在宿主脚本环境中执行本地脚本文件。
type ScriptEngine interface {
	Exec(ctx context.Context, path string) error
}

// ErrNoScriptEngine 表示没有注入脚本引擎。
var ErrNoScriptEngine = errors.New("script engine not configured")

// ScriptLoader 是 .js/.jsc 的下载策略。每个 URL 只执行一次，并发请求合并为一次执行。
type ScriptLoader struct {
	engine ScriptEngine
	logger *logrus.Logger
	loaded sync.Map
	group  singleflight.Group
}

// NewScriptLoader 创建脚本加载器。
func NewScriptLoader(engine ScriptEngine, logger *logrus.Logger) *ScriptLoader {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ScriptLoader{engine: engine, logger: logger}
}

// Loaded 报告 url 是否已执行过。
func (l *ScriptLoader) Loaded(url string) bool {
	_, ok := l.loaded.Load(url)
	return ok
}

// Parser 返回执行脚本的解析策略。
func (l *ScriptLoader) Parser() registry.Parser {
	return registry.ParseFunc(func(ctx context.Context, source string, _ registry.Options) (any, error) {
		if l.engine == nil {
			return nil, ErrNoScriptEngine
		}
		if err := l.engine.Exec(ctx, source); err != nil {
			return nil, err
		}
		return nil, nil
	})
}

// Download 实现 registry.Downloader。已加载的 URL 直接成功返回。
// 并发请求共享同一次获取，但各自只等待到自己的 ctx 结束。
func (l *ScriptLoader) Download(ctx context.Context, req registry.Request) (any, error) {
	if l.Loaded(req.URL) {
		return nil, nil
	}
	if req.Fetcher == nil {
		return nil, errors.New("fetcher required")
	}
	parser := l.markLoaded(req.URL, req.Parser)
	fetchCtx := context.WithoutCancel(ctx)

	ch := l.group.DoChan(req.URL, func() (any, error) {
		if l.Loaded(req.URL) {
			return nil, nil
		}
		_, err := req.Fetcher.FetchFile(fetchCtx, req.URL, req.Options, parser)
		return nil, err
	})

	select {
	case res := <-ch:
		if res.Shared {
			l.logger.WithFields(logrus.Fields{"action": "script", "url": req.URL}).Debug("script_load_shared")
		}
		return nil, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// markLoaded 在执行成功的同一步记录 url，调用方提前放弃等待也不会导致重复执行。
func (l *ScriptLoader) markLoaded(url string, parser registry.Parser) registry.Parser {
	if parser == nil {
		parser = l.Parser()
	}
	return registry.ParseFunc(func(ctx context.Context, source string, opts registry.Options) (any, error) {
		out, err := parser.Parse(ctx, source, opts)
		if err != nil {
			return nil, err
		}
		l.loaded.Store(url, struct{}{})
		return out, nil
	})
}
