package sync

import (
	"hash/fnv"
	"sync"
)

const shardCount = 32

// ShardedMap is a concurrent map split across fixed shards, each guarded by
// its own mutex. Operations on keys in different shards never contend, and
// Update gives callers an atomic read-modify-write for a single key.
type ShardedMap[V any] struct {
	shards [shardCount]shard[V]
}

type shard[V any] struct {
	mu    sync.Mutex
	items map[string]V
}

// NewShardedMap creates an empty ShardedMap with 32 shards.
func NewShardedMap[V any]() *ShardedMap[V] {
	m := &ShardedMap[V]{}
	for i := range m.shards {
		m.shards[i].items = make(map[string]V)
	}
	return m
}

// Get returns the value stored for key.
func (m *ShardedMap[V]) Get(key string) (V, bool) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[key]
	return v, ok
}

// Update runs fn under the key's shard lock. fn receives the current value
// (zero value and false when absent) and returns the value to store.
// The stored value is returned.
func (m *ShardedMap[V]) Update(key string, fn func(current V, exists bool) V) V {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.items[key]
	next := fn(current, ok)
	s.items[key] = next
	return next
}

// Delete removes key. Missing keys are ignored.
func (m *ShardedMap[V]) Delete(key string) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
}

// DeleteFunc removes every entry for which pred returns true, one shard at a
// time, and reports how many entries were removed.
func (m *ShardedMap[V]) DeleteFunc(pred func(key string, v V) bool) int {
	removed := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		for k, v := range s.items {
			if pred(k, v) {
				delete(s.items, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Len returns the total entry count. The result is a snapshot; shards are
// locked one after another, not together.
func (m *ShardedMap[V]) Len() int {
	n := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		n += len(s.items)
		s.mu.Unlock()
	}
	return n
}

func (m *ShardedMap[V]) shardFor(key string) *shard[V] {
	return &m.shards[shardIndex(key)]
}

// shardIndex maps a key to a shard. Empty keys default to shard 0.
func shardIndex(key string) int {
	if key == "" {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % shardCount)
}
