// Package disk implements the disk manager collaborator: a blocking,
// random-access store of fixed-size pages backed by a single OS file.
// This is out of the page cache core's scope per spec.md §1 ("Disk
// manager: a blocking random-access interface..."), but a concrete
// implementation lets the buffer pool be exercised against something
// real rather than a bare interface stub.
package disk

import (
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"pagecache/page"
)

// New opens (creating if necessary) the file at path as the backing
// store. The next page id is derived from the file's current size, so
// reopening a database picks up where it left off.
func New(path string) (*FileManager, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "disk: open %s", path)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "disk: stat %s", path)
	}

	dm := &FileManager{file: f}
	dm.nextPageID.Store(stat.Size() / page.Size)
	return dm, nil
}

// ReadPage fills dst (page.Size bytes) with id's on-disk contents.
// Reading a page beyond the current end of file yields a zeroed
// buffer, which is what a freshly-allocated page looks like before its
// first flush.
func (dm *FileManager) ReadPage(id page.ID, dst []byte) error {
	dm.mu.RLock()
	defer dm.mu.RUnlock()

	n, err := dm.file.ReadAt(dst, int64(id)*page.Size)
	if err != nil && n == 0 {
		if errors.Is(err, os.ErrClosed) {
			return errors.Wrapf(err, "disk: read page %d", id)
		}
		// Short/EOF read on a page never written yet: treat as zeros.
		for i := range dst {
			dst[i] = 0
		}
		return nil
	}
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
	return nil
}

// WritePage persists src as the on-disk contents of id.
func (dm *FileManager) WritePage(id page.ID, src []byte) error {
	dm.mu.RLock()
	defer dm.mu.RUnlock()

	if len(src) != page.Size {
		return errors.Errorf("disk: write page %d: buffer size %d != page size %d", id, len(src), page.Size)
	}
	if _, err := dm.file.WriteAt(src, int64(id)*page.Size); err != nil {
		logrus.WithFields(logrus.Fields{"page_id": id}).WithError(err).Error("disk: write failed")
		return errors.Wrapf(err, "disk: write page %d", id)
	}
	return nil
}

// AllocatePage reserves and returns the next page id. The core owns
// this counter; it is never reused, even after DeallocatePage. The
// file is extended to cover the new page so that New, which derives
// the counter from the file size, does not hand the id out again after
// a reopen.
func (dm *FileManager) AllocatePage() page.ID {
	id := page.ID(dm.nextPageID.Add(1) - 1)

	dm.mu.Lock()
	defer dm.mu.Unlock()
	end := (int64(id) + 1) * page.Size
	stat, err := dm.file.Stat()
	if err == nil && stat.Size() < end {
		err = dm.file.Truncate(end)
	}
	if err != nil {
		logrus.WithField("page_id", id).WithError(err).Error("disk: extend file for allocated page failed")
	}
	return id
}

// DeallocatePage is informational: spec.md §6 notes "the disk manager
// is notified of deallocations only". A real implementation might add
// the block to a free list for reuse by AllocatePage; this one simply
// records the event for observability.
func (dm *FileManager) DeallocatePage(id page.ID) {
	logrus.WithField("page_id", id).Debug("disk: page deallocated")
}

// Close syncs and closes the backing file.
func (dm *FileManager) Close() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if err := dm.file.Sync(); err != nil {
		return errors.Wrap(err, "disk: sync on close")
	}
	return dm.file.Close()
}
