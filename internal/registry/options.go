package registry

import (
	"net/http"

	"github.com/any-hub/any-asset/internal/transport"
)

// Options 是一次请求的可选参数。管线按值传递，只有 bundle 加载器会在私有副本上
// 填充 BundleRoot 与 Preset。
type Options struct {
	// Reload 跳过缓存，强制回源。
	Reload bool
	// Header 为回源请求附加的头。
	Header http.Header
	// OnFileProgress 报告下载进度。
	OnFileProgress transport.ProgressFunc
	// Version 是 bundle 清单版本号。
	Version string
	// Preset 选择调度流量类别（default/preload/scene/bundle）。
	Preset string
	// BundleRoot 让本次下载的缓存文件归入 <CacheRoot>/<BundleRoot>/。
	BundleRoot string
}
