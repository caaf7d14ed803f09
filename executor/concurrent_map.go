// Copyright 2023 CascadeDB, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package executor

import (
	"sync"

	"github.com/cascadedb/cascade/util/hack"
)

// ShardCount controls the shard maps within the concurrent map
var ShardCount = 320

// A "thread" safe map of type uint64:*entry.
// To avoid lock bottlenecks this map is dived to several (ShardCount) map shards.
type concurrentMap []*concurrentMapShared

// A "thread" safe uint64 to *entry map shard.
type concurrentMapShared struct {
	items map[uint64]*entry
	sync.RWMutex // Read Write mutex, guards access to internal map.
	bInMap int64 // indicate there are 2^bInMap buckets in items
}

// newConcurrentMap creates a new concurrent map.
func newConcurrentMap() concurrentMap {
	m := make(concurrentMap, ShardCount)
	for i := 0; i < ShardCount; i++ {
		m[i] = &concurrentMapShared{items: make(map[uint64]*entry)}
	}
	return m
}

// getShard returns shard under given key
func (m concurrentMap) getShard(hashKey uint64) *concurrentMapShared {
	return m[hashKey%uint64(ShardCount)]
}

// Insert inserts a value in a shard safely and returns the memory usage delta
// caused by map bucket growth.
func (m concurrentMap) Insert(key uint64, value *entry) (memDelta int64) {
	shard := m.getShard(key)
	shard.Lock()
	oldValue := shard.items[key]
	value.next = oldValue
	shard.items[key] = value
	if len(shard.items) > (1<<shard.bInMap)*hack.LoadFactorNum/hack.LoadFactorDen {
		memDelta = hack.DefBucketMemoryUsageForMapIntToPtr * (1 << shard.bInMap)
		shard.bInMap++
	}
	shard.Unlock()
	return memDelta
}

// Get retrieves an element from map under given key.
// Note that it requires the whole build phase to be finished before calling,
// the map is read-only during probing so no read lock is taken.
func (m concurrentMap) Get(key uint64) (*entry, bool) {
	shard := m.getShard(key)
	val, ok := shard.items[key]
	return val, ok
}

// IterCb is the iterator callback, called for every key/value found in the
// map. RLock is held for all calls in a given shard, therefore the callback
// sees a consistent view of a shard, but not across the shards.
type IterCb func(key uint64, e *entry)

// IterCb iterates the map using a callback, cheapest way to read
// all elements in a map.
func (m concurrentMap) IterCb(fn IterCb) {
	for idx := range m {
		shard := (m)[idx]
		shard.RLock()
		for key, value := range shard.items {
			fn(key, value)
		}
		shard.RUnlock()
	}
}
