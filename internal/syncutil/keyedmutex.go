// Package syncutil provides concurrency primitives shared across subsystems.
package syncutil

import (
	"hash/fnv"
	"sync"
)

// KeyedMutex provides a fixed-size pool of mutexes keyed by string. It guards
// the per-customer read-then-append sequences on the fraud windows: two
// concurrent transactions for the same customer identity serialize, while
// different customers proceed independently. Memory stays bounded regardless
// of how many customer keys are seen, at the cost of occasional false sharing
// between keys that hash to the same shard.
type KeyedMutex struct {
	shards [256]sync.Mutex
}

// Lock acquires the mutex for the given key and returns an unlock function.
func (m *KeyedMutex) Lock(key string) func() {
	mu := m.shard(key)
	mu.Lock()
	return mu.Unlock
}

func (m *KeyedMutex) shard(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &m.shards[h.Sum32()%256]
}
