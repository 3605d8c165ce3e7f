package cache

import (
	"errors"
	"time"
)

// Store 负责管理远程资源的本地缓存索引。磁盘布局遵循：
//
//	<CacheRoot>/.index/                # badger 索引
//	<CacheRoot>/<file>                 # 普通下载
//	<CacheRoot>/<bundle>/<file>        # 归属某个 bundle 的下载
//
// 条目只在下载且解析成功后写入；解析失败时由调用方 Remove，因此条目是“暂时有效”的。
type Store interface {
	// Lookup 返回 url 对应的缓存条目，不存在时第二个返回值为 false。
	Lookup(url string) (Entry, bool)

	// Touch 刷新条目的最近访问时间，条目不存在时返回 ErrNotFound。
	Touch(url string) error

	// Insert 记录一次成功的远程获取，bundleRoot 非空时条目归属该 bundle。
	Insert(url, localPath, bundleRoot string) error

	// Remove 删除条目及其本地文件；条目不存在时不报错。
	Remove(url string) error

	// RemoveBundle 批量删除归属 bundle 的所有条目与 bundle 目录，返回删除的条目数。
	RemoveBundle(name string) (int, error)

	// EnsureBundleFolder 确保 <CacheRoot>/<name> 目录存在并返回其路径。
	EnsureBundleFolder(name string) (string, error)

	// Entries 返回按 URL 排序的全部条目，供诊断接口使用。
	Entries() ([]Entry, error)

	// Root 返回缓存根目录。
	Root() string

	// Close 关闭索引，之后的写操作返回 ErrStoreClosed。
	Close() error
}

// Entry 描述一个远程 URL 与本地副本的映射。
type Entry struct {
	URL        string    `json:"url"`
	LocalPath  string    `json:"local_path"`
	BundleRoot string    `json:"bundle_root,omitempty"`
	LastAccess time.Time `json:"last_access"`
}

var (
	// ErrNotFound 表示缓存不存在。
	ErrNotFound = errors.New("cache entry not found")
	// ErrStoreClosed 表示 Store 已关闭。
	ErrStoreClosed = errors.New("cache store closed")
	// ErrInvalidBundleName 表示 bundle 名称无法作为缓存子目录。
	ErrInvalidBundleName = errors.New("invalid bundle name")
)
