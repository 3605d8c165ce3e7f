package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/benbjohnson/clock"
	badgerdb "github.com/dgraph-io/badger/v4"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	indexDirName     = ".index"
	entryKeyPrefix   = "entry:"
	defaultLRUSize   = 1024
	defaultDirPerm   = 0o755
	bundleNameMaxLen = 255
)

// Option 调整 NewStore 的行为。
type Option func(*storeOptions)

type storeOptions struct {
	inMemory bool
	lruSize  int
	clock    clock.Clock
}

// WithInMemoryIndex 让索引只保存在内存中，进程退出即丢失，适合测试与一次性 CLI。
func WithInMemoryIndex() Option {
	return func(o *storeOptions) { o.inMemory = true }
}

// WithLRUSize 设置热点条目缓存容量。
func WithLRUSize(size int) Option {
	return func(o *storeOptions) {
		if size > 0 {
			o.lruSize = size
		}
	}
}

// WithClock 注入时钟，LastAccess 使用该时钟生成。
func WithClock(c clock.Clock) Option {
	return func(o *storeOptions) {
		if c != nil {
			o.clock = c
		}
	}
}

// NewStore 以 root 为根目录构建缓存，整进程复用一份实例。
func NewStore(root string, opts ...Option) (Store, error) {
	if root == "" {
		return nil, errors.New("cache root required")
	}

	options := storeOptions{lruSize: defaultLRUSize, clock: clock.New()}
	for _, opt := range opts {
		opt(&options)
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve cache root: %w", err)
	}
	if err := os.MkdirAll(abs, defaultDirPerm); err != nil {
		return nil, fmt.Errorf("create cache root: %w", err)
	}

	dbOpts := badgerdb.DefaultOptions(filepath.Join(abs, indexDirName)).WithLogger(nil)
	if options.inMemory {
		dbOpts = badgerdb.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	db, err := badgerdb.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("open cache index: %w", err)
	}

	hot, err := lru.New[string, Entry](options.lruSize)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create cache lru: %w", err)
	}

	return &fileStore{
		root:  abs,
		db:    db,
		hot:   hot,
		clock: options.clock,
	}, nil
}

// fileStore 用单个互斥锁串行化所有读写，保证同一时刻的查找与写入不会交错。
type fileStore struct {
	root  string
	db    *badgerdb.DB
	hot   *lru.Cache[string, Entry]
	clock clock.Clock

	mu     sync.Mutex
	closed bool
}

func (s *fileStore) Root() string {
	return s.root
}

func (s *fileStore) Lookup(url string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || url == "" {
		return Entry{}, false
	}
	entry, err := s.load(url)
	if err != nil {
		return Entry{}, false
	}
	return entry, true
}

func (s *fileStore) Touch(url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	entry, err := s.load(url)
	if err != nil {
		return err
	}
	entry.LastAccess = s.clock.Now().UTC()
	return s.save(entry)
}

func (s *fileStore) Insert(url, localPath, bundleRoot string) error {
	if url == "" || localPath == "" {
		return errors.New("url and local path required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	return s.save(Entry{
		URL:        url,
		LocalPath:  localPath,
		BundleRoot: bundleRoot,
		LastAccess: s.clock.Now().UTC(),
	})
}

func (s *fileStore) Remove(url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	entry, err := s.load(url)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(entryKey(url))
	}); err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	s.hot.Remove(url)
	return removeFile(entry.LocalPath)
}

func (s *fileStore) RemoveBundle(name string) (int, error) {
	if err := validateBundleName(name); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}
	entries, err := s.scan()
	if err != nil {
		return 0, err
	}

	removed := 0
	err = s.db.Update(func(txn *badgerdb.Txn) error {
		for _, entry := range entries {
			if entry.BundleRoot != name {
				continue
			}
			if err := txn.Delete(entryKey(entry.URL)); err != nil {
				return err
			}
			s.hot.Remove(entry.URL)
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete bundle entries: %w", err)
	}

	if err := os.RemoveAll(filepath.Join(s.root, name)); err != nil {
		return removed, fmt.Errorf("remove bundle folder: %w", err)
	}
	return removed, nil
}

func (s *fileStore) EnsureBundleFolder(name string) (string, error) {
	if err := validateBundleName(name); err != nil {
		return "", err
	}
	dir := filepath.Join(s.root, name)
	if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
		return "", fmt.Errorf("create bundle folder: %w", err)
	}
	return dir, nil
}

func (s *fileStore) Entries() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	entries, err := s.scan()
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].URL < entries[j].URL
	})
	return entries, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.hot.Purge()
	return s.db.Close()
}

// load 先查 LRU，未命中时读取 badger 并回填。调用方需持有 s.mu。
func (s *fileStore) load(url string) (Entry, error) {
	if entry, ok := s.hot.Get(url); ok {
		return entry, nil
	}

	var entry Entry
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(entryKey(url))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("read cache entry: %w", err)
	}

	s.hot.Add(url, entry)
	return entry, nil
}

// save 写入 badger 并同步 LRU。调用方需持有 s.mu。
func (s *fileStore) save(entry Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(entryKey(entry.URL), payload)
	}); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	s.hot.Add(entry.URL, entry)
	return nil
}

func (s *fileStore) scan() ([]Entry, error) {
	var entries []Entry
	err := s.db.View(func(txn *badgerdb.Txn) error {
		prefix := []byte(entryKeyPrefix)
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var entry Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan cache index: %w", err)
	}
	return entries, nil
}

func entryKey(url string) []byte {
	return []byte(entryKeyPrefix + url)
}

func validateBundleName(name string) error {
	switch {
	case name == "", len(name) > bundleNameMaxLen:
		return ErrInvalidBundleName
	case strings.HasPrefix(name, "."):
		return fmt.Errorf("%w: %s", ErrInvalidBundleName, name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%w: %s", ErrInvalidBundleName, name)
	}
	return nil
}

func removeFile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove cached file: %w", err)
	}
	return nil
}
