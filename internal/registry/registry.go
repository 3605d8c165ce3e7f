// Package registry maps file-extension tokens to download and parse
// strategies. Two parallel tables are kept: the download strategy decides how
// raw content becomes locally available, the parse strategy turns a local
// source into a usable object. Lookups fall back to the "default" entry, and
// the literal "bundle" key routes bundle requests. Registration is
// last-write-wins so the host can override any built-in format.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

const (
	// KeyDefault 是未识别扩展名回退使用的键。
	KeyDefault = "default"
	// KeyBundle 是 bundle 请求使用的伪扩展名。
	KeyBundle = "bundle"
)

// ErrNoStrategy 表示扩展名与 default 均未注册策略。
var ErrNoStrategy = errors.New("no strategy registered")

// Parser 将本地来源（路径）转换为可用对象。
type Parser interface {
	Parse(ctx context.Context, source string, opts Options) (any, error)
}

// ParseFunc adapts a function to the Parser interface.
type ParseFunc func(ctx context.Context, source string, opts Options) (any, error)

// Parse makes ParseFunc satisfy Parser.
func (f ParseFunc) Parse(ctx context.Context, source string, opts Options) (any, error) {
	return f(ctx, source, opts)
}

// Fetcher 是下载策略可复用的管线入口：路由 → 下载 → 解析 → 写缓存。
type Fetcher interface {
	FetchFile(ctx context.Context, url string, opts Options, parser Parser) (any, error)
}

// Request 描述一次下载策略调用。Parser 为同一扩展名解析出的解析策略。
type Request struct {
	URL     string
	Ext     string
	Options Options
	Parser  Parser
	Fetcher Fetcher
}

// Downloader 让原始内容在本地可用，并通常通过 Request.Fetcher 完成解析与缓存。
type Downloader interface {
	Download(ctx context.Context, req Request) (any, error)
}

// DownloadFunc adapts a function to the Downloader interface.
type DownloadFunc func(ctx context.Context, req Request) (any, error)

// Download makes DownloadFunc satisfy Downloader.
func (f DownloadFunc) Download(ctx context.Context, req Request) (any, error) {
	return f(ctx, req)
}

// CachedDownload 是普通文件的下载策略：交给管线完成缓存感知的下载与解析。
var CachedDownload = DownloadFunc(func(ctx context.Context, req Request) (any, error) {
	if req.Fetcher == nil {
		return nil, errors.New("fetcher required")
	}
	return req.Fetcher.FetchFile(ctx, req.URL, req.Options, req.Parser)
})

// Registry 持有两张并行的分派表，可安全并发读写。
type Registry struct {
	mu          sync.RWMutex
	downloaders map[string]Downloader
	parsers     map[string]Parser
}

// New 返回空注册表；调用方负责至少注册 default 条目。
func New() *Registry {
	return &Registry{
		downloaders: make(map[string]Downloader),
		parsers:     make(map[string]Parser),
	}
}

// RegisterDownload 为扩展名注册下载策略，重复注册时后者覆盖前者。
func (r *Registry) RegisterDownload(ext string, d Downloader) {
	key := normalizeKey(ext)
	if key == "" || d == nil {
		return
	}
	r.mu.Lock()
	r.downloaders[key] = d
	r.mu.Unlock()
}

// RegisterParse 为扩展名注册解析策略，重复注册时后者覆盖前者。
func (r *Registry) RegisterParse(ext string, p Parser) {
	key := normalizeKey(ext)
	if key == "" || p == nil {
		return
	}
	r.mu.Lock()
	r.parsers[key] = p
	r.mu.Unlock()
}

// RegisterDownloads 批量注册下载策略。
func (r *Registry) RegisterDownloads(table map[string]Downloader) {
	for ext, d := range table {
		r.RegisterDownload(ext, d)
	}
}

// RegisterParsers 批量注册解析策略。
func (r *Registry) RegisterParsers(table map[string]Parser) {
	for ext, p := range table {
		r.RegisterParse(ext, p)
	}
}

// ResolveDownload 返回扩展名对应的下载策略，未注册时回退到 default。
func (r *Registry) ResolveDownload(ext string) (Downloader, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if d, ok := r.downloaders[normalizeKey(ext)]; ok {
		return d, nil
	}
	if d, ok := r.downloaders[KeyDefault]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("%w: download %q", ErrNoStrategy, ext)
}

// ResolveParse 返回扩展名对应的解析策略，未注册时回退到 default。
func (r *Registry) ResolveParse(ext string) (Parser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.parsers[normalizeKey(ext)]; ok {
		return p, nil
	}
	if p, ok := r.parsers[KeyDefault]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: parse %q", ErrNoStrategy, ext)
}

// Snapshot 列出两张表中已注册的键，供诊断接口使用。
func (r *Registry) Snapshot() (downloads []string, parses []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	downloads = sortedKeys(r.downloaders)
	parses = sortedKeys(r.parsers)
	return downloads, parses
}

// 扩展名保持大小写敏感（如 .ExportJson），只去除首尾空白。
func normalizeKey(ext string) string {
	return strings.TrimSpace(ext)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
