// Package bufferpool implements the coordinator that composes the
// extendible hash table and the LRU-K replacer over a fixed array of
// frames: the public surface higher layers use to pin, fetch, and
// evict pages (spec.md §4.3).
package bufferpool

import (
	"sync"

	"pagecache/disk"
	"pagecache/extendiblehash"
	"pagecache/lruk"
	"pagecache/page"
	"pagecache/wal"
)

// Manager owns the fixed frame array, the free-frame list, and
// composes the hash table and replacer under a single pool-wide mutex.
// No operation on Manager may complete without holding that mutex; it
// is acquired first and alone, and is held across disk/log calls, per
// spec.md §5.
type Manager struct {
	mu sync.Mutex

	frames    []*page.Page               // dense frame array, [0, capacity)
	freeList  []int                      // free frame indices
	pageTable *extendiblehash.Table[page.ID, int] // page id -> frame id
	replacer  *lruk.Replacer

	disk disk.Manager
	log  wal.LogManager
}

// Stats summarizes pool occupancy for monitoring.
type Stats struct {
	TotalPages  int
	PinnedPages int
	DirtyPages  int
	Capacity    int
}
