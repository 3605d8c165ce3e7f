// Package cache records which remote asset URLs already have a verified local
// copy under the cache root. The index (url -> local path, bundle root, last
// access time) is persisted in badger and fronted by a small LRU so repeated
// lookups during a scene load stay off disk. Files themselves live directly
// under <CacheRoot>/[<bundle>/]<name>; bundle folders allow a whole bundle's
// downloads to be evicted in one call. All mutation is serialized by the store.
package cache
