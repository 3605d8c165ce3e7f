package fetch

import (
	"regexp"

	"github.com/any-hub/any-asset/internal/cache"
	"github.com/any-hub/any-asset/internal/registry"
)

var networkURL = regexp.MustCompile(`^\w+://.*`)

// IsRemote 判断 url 是否为绝对网络地址（scheme://...）。
func IsRemote(url string) bool {
	return networkURL.MatchString(url)
}

// RouteDecision 是一次请求的来源判定，仅在调用期间有效。
type RouteDecision struct {
	Source   string
	IsLocal  bool
	IsCached bool
}

// SourceLabel 返回日志与指标使用的来源名称。
func (d RouteDecision) SourceLabel() string {
	switch {
	case d.IsLocal:
		return "local"
	case d.IsCached:
		return "cache"
	default:
		return "network"
	}
}

// Router 根据缓存状态决定资源来源，本身没有副作用。
type Router struct {
	store cache.Store
}

// NewRouter 创建 Router。
func NewRouter(store cache.Store) *Router {
	return &Router{store: store}
}

// Route 判定 url 的来源：本地路径直接使用；reload 跳过缓存；命中缓存时返回本地副本路径。
func (r *Router) Route(url string, opts registry.Options) RouteDecision {
	if !IsRemote(url) {
		return RouteDecision{Source: url, IsLocal: true}
	}
	if opts.Reload || r.store == nil {
		return RouteDecision{Source: url}
	}
	if entry, ok := r.store.Lookup(url); ok {
		return RouteDecision{Source: entry.LocalPath, IsCached: true}
	}
	return RouteDecision{Source: url}
}
