// Package extendiblehash implements a concurrent, dynamically-resizing
// hash index that grows by splitting individual buckets rather than
// rehashing the whole table: an ExtendibleHashTable mapping K to V with
// directory doubling and per-bucket local depth.
//
// The algorithm follows the classic extendible-hashing scheme: a
// directory of 2^globalDepth slots, each pointing at a bucket whose
// localDepth is at most globalDepth. A bucket that overflows either
// splits in place (if its local depth is below the global depth) or
// forces the whole directory to double (if local depth has caught up
// to global depth).
package extendiblehash

import (
	"encoding/binary"
	"fmt"
	"reflect"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Table is a mutable K -> V mapping with amortized O(1) Find/Insert/
// Remove, safe for concurrent use. The zero value is not usable; use
// New.
type Table[K comparable, V any] struct {
	mu sync.Mutex

	globalDepth int
	bucketSize  int
	numBuckets  int
	dir         []*bucket[K, V]
}

type entry[K comparable, V any] struct {
	key   K
	value V
}

type bucket[K comparable, V any] struct {
	localDepth int
	capacity   int
	items      []entry[K, V]
}

func newBucket[K comparable, V any](capacity, localDepth int) *bucket[K, V] {
	return &bucket[K, V]{capacity: capacity, localDepth: localDepth}
}

func (b *bucket[K, V]) isFull() bool {
	return len(b.items) >= b.capacity
}

func (b *bucket[K, V]) find(key K) (V, bool) {
	for _, e := range b.items {
		if e.key == key {
			return e.value, true
		}
	}
	var zero V
	return zero, false
}

// insert returns true if the key was written (either an overwrite of
// an existing key, or an append into spare capacity). It returns false
// only when the bucket is full and the key is new — the caller must
// split and retry.
func (b *bucket[K, V]) insert(key K, value V) bool {
	for i := range b.items {
		if b.items[i].key == key {
			b.items[i].value = value
			return true
		}
	}
	if b.isFull() {
		return false
	}
	b.items = append(b.items, entry[K, V]{key, value})
	return true
}

func (b *bucket[K, V]) remove(key K) bool {
	for i, e := range b.items {
		if e.key == key {
			b.items = append(b.items[:i], b.items[i+1:]...)
			return true
		}
	}
	return false
}

// New constructs a table with a single bucket of the given capacity
// and global/local depth 0.
func New[K comparable, V any](bucketSize int) *Table[K, V] {
	t := &Table[K, V]{
		bucketSize: bucketSize,
		numBuckets: 1,
		dir:        make([]*bucket[K, V], 1),
	}
	t.dir[0] = newBucket[K, V](bucketSize, 0)
	return t
}

// hashKey hashes a key of any comparable type. Integer-kind keys
// (including named types over them, such as page.ID) are hashed by
// their raw bits; strings by their bytes; everything else falls back
// to its formatted representation. Reflection here is the price of a
// single generic table serving both int64-keyed (page id -> frame)
// and string-keyed (as in other_examples' CacheManager) callers
// without duplicating the algorithm per key type.
func hashKey[K comparable](key K) uint64 {
	if s, ok := any(key).(string); ok {
		return xxhash.Sum64String(s)
	}
	v := reflect.ValueOf(key)
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return hashInt64(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return hashInt64(int64(v.Uint()))
	case reflect.String:
		return xxhash.Sum64String(v.String())
	default:
		return xxhash.Sum64String(fmt.Sprintf("%v", key))
	}
}

func hashInt64(v int64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	return xxhash.Sum64(buf[:])
}

// indexOf computes hash(key) & ((1 << globalDepth) - 1). Callers must
// hold t.mu.
func (t *Table[K, V]) indexOf(key K) int {
	mask := uint64(1<<uint(t.globalDepth)) - 1
	return int(hashKey(key) & mask)
}

// Find returns the current binding for key, if any.
func (t *Table[K, V]) Find(key K) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b := t.dir[t.indexOf(key)]
	return b.find(key)
}

// Remove deletes the binding for key if present and reports whether a
// removal occurred. Empty sibling buckets at equal local depth are
// merged back together as an optimization (spec.md §9 marks this
// optional); it never reduces below local depth 0.
func (t *Table[K, V]) Remove(key K) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := t.indexOf(key)
	b := t.dir[idx]
	removed := b.remove(key)
	if removed {
		t.tryMerge(idx)
	}
	return removed
}

// tryMerge collapses bucket dir[idx] into its buddy (the bucket
// sharing all but the top bit of its local-depth prefix) when the
// bucket is empty and the buddy has the same local depth. This never
// changes globalDepth; it only ever reduces the number of distinct
// buckets, which Remove's caller may call repeatedly in principle but
// in practice converges in one step per removal.
func (t *Table[K, V]) tryMerge(idx int) {
	b := t.dir[idx]
	if len(b.items) != 0 || b.localDepth == 0 {
		return
	}
	buddyBit := 1 << uint(b.localDepth-1)
	buddyIdx := idx ^ buddyBit
	buddy := t.dir[buddyIdx]
	if buddy == b || buddy.localDepth != b.localDepth {
		return
	}
	buddy.localDepth--
	t.numBuckets--
	lowMask := (1 << uint(buddy.localDepth)) - 1
	pattern := buddyIdx & lowMask
	for i := range t.dir {
		if i&lowMask == pattern {
			t.dir[i] = buddy
		}
	}
}

// Insert inserts or overwrites the binding for key. It always
// succeeds — the table grows (splitting buckets, and doubling the
// directory when necessary) to make room.
//
// Pathological input (more than bucketSize keys that are permanently
// indistinguishable under the hash function, i.e. share every bit of
// their hash) makes this loop non-terminating; callers must not do
// that. See spec.md §4.1's "Correctness corner case".
func (t *Table[K, V]) Insert(key K, value V) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for {
		idx := t.indexOf(key)
		b := t.dir[idx]
		if b.insert(key, value) {
			return
		}

		if b.localDepth == t.globalDepth {
			t.globalDepth++
			doubled := make([]*bucket[K, V], len(t.dir)*2)
			copy(doubled, t.dir)
			copy(doubled[len(t.dir):], t.dir)
			t.dir = doubled
		} else {
			b.localDepth++
			t.redistribute(idx)
		}
	}
}

// redistribute splits dir[idx]'s bucket: allocates a sibling at the
// bucket's (already incremented) local depth, moves entries whose
// low-localDepth-bits pattern changed under the wider mask into the
// sibling, and repoints every directory slot that now maps to the
// sibling's pattern. Callers must hold t.mu.
func (t *Table[K, V]) redistribute(idx int) {
	old := t.dir[idx]
	depth := old.localDepth
	t.numBuckets++
	sibling := newBucket[K, V](t.bucketSize, depth)

	oldMask := (1 << uint(depth-1)) - 1
	curMask := (1 << uint(depth)) - 1
	oldPattern := int(hashKey(old.items[0].key)) & oldMask

	kept := old.items[:0:0]
	for _, e := range old.items {
		if int(hashKey(e.key))&curMask != oldPattern {
			sibling.items = append(sibling.items, e)
		} else {
			kept = append(kept, e)
		}
	}
	old.items = kept

	for i := range t.dir {
		if i&oldMask == oldPattern && i&curMask != oldPattern {
			t.dir[i] = sibling
		}
	}
}

// GlobalDepth returns the number of low-order hash bits indexing the
// directory.
func (t *Table[K, V]) GlobalDepth() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.globalDepth
}

// LocalDepth returns the local depth of the bucket at the given
// directory index.
func (t *Table[K, V]) LocalDepth(dirIndex int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dir[dirIndex].localDepth
}

// NumBuckets returns the number of distinct buckets currently
// allocated (directory length can exceed this once localDepth <
// globalDepth for any bucket).
func (t *Table[K, V]) NumBuckets() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.numBuckets
}
