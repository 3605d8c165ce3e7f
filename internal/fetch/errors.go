package fetch

import "errors"

// 错误分类。具体错误以 fmt.Errorf("%w ...: %w") 同时包装分类与底层原因，
// 调用方可用 errors.Is 判断任一层。
var (
	// ErrTransport 表示网络或文件获取失败，不会自动重试。
	ErrTransport = errors.New("transport failed")
	// ErrParse 表示内容已获取但无法按声明格式解析；若来源是缓存命中，条目已被驱逐。
	ErrParse = errors.New("parse failed")
	// ErrManifest 表示 bundle 清单获取或解析失败，入口脚本不会被请求。
	ErrManifest = errors.New("bundle manifest failed")
	// ErrScriptLoad 表示 bundle 入口脚本获取或执行失败。
	ErrScriptLoad = errors.New("bundle script load failed")
)
