package server

import (
	"strings"

	"github.com/any-hub/any-asset/internal/fetch"
)

const assetsRoot = "assets"

// allowedAssetSource 判断 HTTP 调用方给出的 url 是否可加载：
// 远程地址仅限 http/https，本地路径必须是 assets/ 下的相对路径且不含 ".." 段。
func allowedAssetSource(raw string) bool {
	if fetch.IsRemote(raw) {
		return isHTTPURL(raw)
	}
	if raw == "" || strings.HasPrefix(raw, "/") || strings.Contains(raw, `\`) || strings.Contains(raw, ":") {
		return false
	}
	segments := strings.Split(raw, "/")
	if segments[0] != assetsRoot || len(segments) < 2 {
		return false
	}
	for _, seg := range segments[1:] {
		if seg == "" || seg == "." || seg == ".." {
			return false
		}
	}
	return true
}

// allowedBundleName 接受 http/https 的 bundle 根地址或单段 bundle 名称。
func allowedBundleName(name string) bool {
	if fetch.IsRemote(name) {
		return isHTTPURL(name)
	}
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\:`)
}

func isHTTPURL(raw string) bool {
	lower := strings.ToLower(raw)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
