package bufferpool

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"pagecache/page"
)

// fakeDisk is an in-memory disk.Manager stand-in used across this
// package's tests so they don't touch the filesystem. It also counts
// WritePage calls per page id so tests can assert on writeback
// behavior (spec.md §8 scenario 2).
type fakeDisk struct {
	mu       sync.Mutex
	pages    map[page.ID][]byte
	next     atomic.Int64
	failRead bool

	writes map[page.ID]int
}

func newFakeDisk() *fakeDisk {
	return &fakeDisk{
		pages:  make(map[page.ID][]byte),
		writes: make(map[page.ID]int),
	}
}

func (d *fakeDisk) ReadPage(id page.ID, dst []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failRead {
		return errors.New("fakeDisk: simulated read failure")
	}
	if buf, ok := d.pages[id]; ok {
		copy(dst, buf)
		return nil
	}
	for i := range dst {
		dst[i] = 0
	}
	return nil
}

func (d *fakeDisk) WritePage(id page.ID, src []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf := make([]byte, len(src))
	copy(buf, src)
	d.pages[id] = buf
	d.writes[id]++
	return nil
}

func (d *fakeDisk) AllocatePage() page.ID {
	return page.ID(d.next.Add(1) - 1)
}

func (d *fakeDisk) DeallocatePage(page.ID) {}

func (d *fakeDisk) writeCount(id page.ID) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writes[id]
}

// fakeLog is a wal.LogManager stand-in. With gate left false (the
// zero value) it always allows the flush, matching the old
// always-succeeds sink. Setting gate true switches on a durable-LSN
// horizon check like wal.SegmentLog's, letting tests exercise the
// pre-flush gate without touching a filesystem.
type fakeLog struct {
	appends atomic.Int64
	sinks   atomic.Int64

	mu      sync.Mutex
	lsn     uint64
	gate    bool
	durable uint64
}

func (l *fakeLog) Append(page.ID) (uint64, error) {
	l.appends.Add(1)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lsn++
	return l.lsn, nil
}

func (l *fakeLog) SinkBeforeFlush(id page.ID, pageLSN uint64) error {
	l.sinks.Add(1)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.gate && pageLSN > l.durable {
		return errors.Errorf("wal: page %d lsn %d exceeds durable horizon %d", id, pageLSN, l.durable)
	}
	return nil
}

func (l *fakeLog) DurableLSN() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.durable
}

// advanceDurable catches the durable horizon up to the highest
// appended LSN, mirroring wal.SegmentLog.Sync.
func (l *fakeLog) advanceDurable() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.durable = l.lsn
}
