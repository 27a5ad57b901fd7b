package bufferpool

import (
	"github.com/pkg/errors"

	"pagecache/page"
)

/*
This file holds helper functions for the bufferpool: inspection and
convenience wrappers that aren't part of the core operation table in
spec.md §4.3.
*/

// Stats returns current buffer pool occupancy.
func (bp *Manager) Stats() Stats {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	stats := Stats{Capacity: len(bp.frames)}
	for _, pg := range bp.frames {
		pg.RLock()
		if pg.ID != page.InvalidID {
			stats.TotalPages++
			if pg.PinCount > 0 {
				stats.PinnedPages++
			}
			if pg.IsDirty {
				stats.DirtyPages++
			}
		}
		pg.RUnlock()
	}
	return stats
}

// Size returns the current number of resident pages.
func (bp *Manager) Size() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	n := 0
	for _, pg := range bp.frames {
		if pg.ID != page.InvalidID {
			n++
		}
	}
	return n
}

// Capacity returns the pool's fixed frame count.
func (bp *Manager) Capacity() int {
	return len(bp.frames)
}

// GetPage returns the page for id without touching disk or the
// replacer. Returns nil if id is not resident. Does not pin.
func (bp *Manager) GetPage(id page.ID) *page.Page {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	frameID, ok := bp.pageTable.Find(id)
	if !ok {
		return nil
	}
	return bp.frames[frameID]
}

// MarkDirty marks a resident page dirty without going through Unpin,
// stamping it with a fresh WAL LSN so the log gate can later decide
// whether it is safe to flush.
func (bp *Manager) MarkDirty(id page.ID) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	frameID, ok := bp.pageTable.Find(id)
	if !ok {
		return errors.Errorf("bufferpool: page %d not resident", id)
	}
	pg := bp.frames[frameID]
	pg.Lock()
	defer pg.Unlock()
	pg.IsDirty = true
	lsn, err := bp.log.Append(id)
	if err != nil {
		return errors.Wrapf(err, "bufferpool: wal append for page %d", id)
	}
	pg.LSN = lsn
	return nil
}
