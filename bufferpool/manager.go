package bufferpool

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"pagecache/config"
	"pagecache/disk"
	"pagecache/extendiblehash"
	"pagecache/lruk"
	"pagecache/page"
	"pagecache/wal"
)

/*
This is the coordinator described in spec.md §4.3. It works on LRU-K
based caching mechanism, holds a reference to a disk manager for
flushing evicted/dirty pages to disk, and to a log manager for the
opaque pre-flush sink. If a page isn't resident, the disk manager loads
it from disk and the manager pins it and adds it to the pool.

Pages are identified by page.ID; frames are identified by their dense
index into the pool.
*/

// ErrNoFreeFrame is returned (wrapped, so match it with errors.Is) by
// NewPage/FetchPage when no frame is free and the replacer has nothing
// evictable — spec.md §7's "resource exhaustion" category.
var ErrNoFreeFrame = errors.New("bufferpool: no free or evictable frame")

// New builds a pool of cfg.PoolSize frames on top of dm, gating dirty
// writes through lm.
func New(cfg config.Config, dm disk.Manager, lm wal.LogManager) *Manager {
	if lm == nil {
		lm = wal.NoopLog{}
	}
	bp := &Manager{
		frames:    make([]*page.Page, cfg.PoolSize),
		freeList:  make([]int, cfg.PoolSize),
		pageTable: extendiblehash.New[page.ID, int](cfg.BucketSize),
		replacer:  lruk.New(cfg.PoolSize, cfg.ReplacerK),
		disk:      dm,
		log:       lm,
	}
	for i := 0; i < cfg.PoolSize; i++ {
		bp.frames[i] = page.New(page.InvalidID)
		bp.freeList[i] = i
	}
	return bp
}

// NewPage allocates a fresh page id from the disk manager, binds it to
// an acquired frame, and returns it pinned and zeroed. The out-param
// style of spec.md §4.3 ("new_page(out: page_id)") is expressed here
// as a second return value.
func (bp *Manager) NewPage() (*page.Page, page.ID, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	frameID, ok := bp.acquireFrame()
	if !ok {
		return nil, page.InvalidID, errors.Wrap(ErrNoFreeFrame, "bufferpool: new page")
	}

	id := bp.disk.AllocatePage()
	bp.bindFrame(frameID, id)

	logrus.WithFields(logrus.Fields{"page_id": id, "frame_id": frameID}).Debug("bufferpool: new page")
	return bp.frames[frameID], id, nil
}

// FetchPage returns the page for id, pinned, loading it from disk if
// it isn't already resident.
func (bp *Manager) FetchPage(id page.ID) (*page.Page, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if frameID, ok := bp.pageTable.Find(id); ok {
		pg := bp.frames[frameID]
		pg.Lock()
		pg.PinCount++
		pg.Unlock()
		bp.replacer.RecordAccess(frameID)
		bp.replacer.SetEvictable(frameID, false)
		logrus.WithFields(logrus.Fields{"page_id": id, "frame_id": frameID}).Debug("bufferpool: hit")
		return pg, nil
	}

	frameID, ok := bp.acquireFrame()
	if !ok {
		logrus.WithField("page_id", id).Debug("bufferpool: miss, no frame available")
		return nil, errors.Wrapf(ErrNoFreeFrame, "bufferpool: fetch page %d", id)
	}
	bp.bindFrame(frameID, id)

	pg := bp.frames[frameID]
	if err := bp.disk.ReadPage(id, pg.Data); err != nil {
		bp.unbindFrame(frameID)
		return nil, errors.Wrapf(err, "bufferpool: read page %d", id)
	}

	logrus.WithFields(logrus.Fields{"page_id": id, "frame_id": frameID}).Debug("bufferpool: miss, loaded from disk")
	return pg, nil
}

// UnpinPage decrements id's pin count and ORs isDirty into the dirty
// flag. When the pin count reaches zero the frame becomes an eviction
// candidate. Returns false if the page is not resident or already
// unpinned.
func (bp *Manager) UnpinPage(id page.ID, isDirty bool) bool {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	frameID, ok := bp.pageTable.Find(id)
	if !ok {
		return false
	}

	pg := bp.frames[frameID]
	pg.Lock()
	if pg.PinCount == 0 {
		pg.Unlock()
		return false
	}
	pg.PinCount--
	if isDirty {
		pg.IsDirty = true
		if lsn, err := bp.log.Append(id); err != nil {
			logrus.WithField("page_id", id).WithError(err).Warn("bufferpool: wal append failed, dirty flag retained without lsn advance")
		} else {
			pg.LSN = lsn
		}
	}
	nowUnpinned := pg.PinCount == 0
	pg.Unlock()

	if nowUnpinned {
		bp.replacer.SetEvictable(frameID, true)
	}
	return true
}

// FlushPage writes id's contents to disk unconditionally and clears
// its dirty flag. Pin state is unaffected. Returns false if id is not
// resident or the write failed.
func (bp *Manager) FlushPage(id page.ID) bool {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	frameID, ok := bp.pageTable.Find(id)
	if !ok {
		return false
	}
	return bp.flushFrame(frameID) == nil
}

// FlushAllPages writes every resident page to disk unconditionally.
// Pages whose flush fails are logged (by flushFrame) and left dirty;
// FlushAllPages keeps going rather than aborting on the first failure.
func (bp *Manager) FlushAllPages() {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	for frameID, pg := range bp.frames {
		if pg.ID == page.InvalidID {
			continue
		}
		_ = bp.flushFrame(frameID)
	}
}

// flushFrame writes the frame at frameID unconditionally and clears
// its dirty flag, returning an error and leaving the dirty flag set if
// either the log gate or the disk write rejects it. Callers must hold
// bp.mu. This corrects the reference implementation's bug of clearing
// frame 0's dirty flag regardless of which frame was flushed (spec.md
// §9's Open Question resolution).
func (bp *Manager) flushFrame(frameID int) error {
	pg := bp.frames[frameID]
	pg.Lock()
	defer pg.Unlock()

	if err := bp.log.SinkBeforeFlush(pg.ID, pg.LSN); err != nil {
		logrus.WithFields(logrus.Fields{"page_id": pg.ID}).WithError(err).Warn("bufferpool: log sink rejected flush")
		return errors.Wrapf(err, "bufferpool: flush page %d blocked by log", pg.ID)
	}
	if err := bp.disk.WritePage(pg.ID, pg.Data); err != nil {
		logrus.WithFields(logrus.Fields{"page_id": pg.ID}).WithError(err).Error("bufferpool: flush failed, dirty flag retained")
		return errors.Wrapf(err, "bufferpool: flush page %d", pg.ID)
	}
	pg.IsDirty = false
	return nil
}

// DeletePage removes id from the pool. Vacuously succeeds if id isn't
// resident. Fails if id is resident and pinned, or if it is dirty and
// the pre-delete flush fails — the frame is left bound and dirty
// rather than discarding unwritten data.
func (bp *Manager) DeletePage(id page.ID) bool {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	frameID, ok := bp.pageTable.Find(id)
	if !ok {
		return true
	}

	pg := bp.frames[frameID]
	pg.RLock()
	pinned := pg.PinCount > 0
	dirty := pg.IsDirty
	pg.RUnlock()
	if pinned {
		return false
	}

	if dirty {
		if err := bp.flushFrame(frameID); err != nil {
			return false
		}
	}

	bp.replacer.Remove(frameID)
	bp.pageTable.Remove(id)
	pg.ID = page.InvalidID
	bp.freeList = append(bp.freeList, frameID)
	bp.disk.DeallocatePage(id)

	logrus.WithFields(logrus.Fields{"page_id": id, "frame_id": frameID}).Debug("bufferpool: deleted")
	return true
}

// acquireFrame implements the frame acquisition protocol shared by
// NewPage and FetchPage-on-miss (spec.md §4.3): free list first,
// replacer eviction second, flushing and unbinding the victim if
// necessary. Callers must hold bp.mu.
func (bp *Manager) acquireFrame() (int, bool) {
	if n := len(bp.freeList); n > 0 {
		frameID := bp.freeList[n-1]
		bp.freeList = bp.freeList[:n-1]
		return frameID, true
	}

	frameID, ok := bp.replacer.Evict()
	if !ok {
		return 0, false
	}

	victim := bp.frames[frameID]
	victim.RLock()
	dirty := victim.IsDirty
	oldID := victim.ID
	victim.RUnlock()

	if dirty {
		if err := bp.flushFrame(frameID); err != nil {
			// Victim's data would be lost if we reused this frame now.
			// Restore it to the evictable pool (its access history is
			// gone, so it re-enters as freshly accessed) and report no
			// frame available rather than clobber unwritten bytes.
			logrus.WithFields(logrus.Fields{"page_id": oldID, "frame_id": frameID}).WithError(err).Warn("bufferpool: evict flush failed, keeping frame resident")
			bp.replacer.RecordAccess(frameID)
			bp.replacer.SetEvictable(frameID, true)
			return 0, false
		}
	}
	bp.pageTable.Remove(oldID)

	logrus.WithFields(logrus.Fields{"page_id": oldID, "frame_id": frameID}).Debug("bufferpool: evicted")
	return frameID, true
}

// bindFrame initializes frameID for a new binding to id: zeroed
// buffer, pin count 1, clean, no LSN, registered in the hash table,
// recorded as accessed and non-evictable in the replacer. Callers must
// hold bp.mu.
func (bp *Manager) bindFrame(frameID int, id page.ID) {
	pg := bp.frames[frameID]
	pg.Lock()
	pg.ID = id
	pg.ResetMemory()
	pg.PinCount = 1
	pg.IsDirty = false
	pg.LSN = 0
	pg.Unlock()

	bp.pageTable.Insert(id, frameID)
	bp.replacer.RecordAccess(frameID)
	bp.replacer.SetEvictable(frameID, false)
}

// unbindFrame reverses a bindFrame that must not stick — used when a
// disk read fails on a freshly bound frame. It unregisters the frame
// from the hash table and replacer and returns it to the free list, so
// the failed fetch does not leak a permanently pinned frame.
func (bp *Manager) unbindFrame(frameID int) {
	pg := bp.frames[frameID]
	pg.Lock()
	id := pg.ID
	pg.ID = page.InvalidID
	pg.PinCount = 0
	pg.IsDirty = false
	pg.LSN = 0
	pg.Unlock()

	bp.pageTable.Remove(id)
	bp.replacer.SetEvictable(frameID, true)
	bp.replacer.Remove(frameID)
	bp.freeList = append(bp.freeList, frameID)
}
