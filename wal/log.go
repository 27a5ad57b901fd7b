// Package wal implements the log manager collaborator: spec.md §1
// describes it as "an opaque sink invoked before dirty writes", out of
// the page cache core's scope. LogManager is the interface the buffer
// pool calls into; NoopLog and SegmentLog are two implementations of
// it, the latter grounded in the teacher's WAL segment writer.
package wal

import (
	"encoding/binary"
	"os"
	"sync"

	"github.com/pkg/errors"

	"pagecache/page"
)

// LogManager is the opaque write-ahead-log sink the buffer pool
// invokes before writing a dirty page to disk (on eviction, explicit
// flush, flush-all, or delete). The core never inspects log records;
// it calls Append when it dirties a page to obtain the LSN the page
// should be stamped with, and SinkBeforeFlush before the write itself,
// propagating whatever error comes back as an I/O failure (spec.md
// §7). This mirrors the teacher's `WALFlushedLSNGetter` gate: a dirty
// page may not reach disk until the log's durable horizon has caught
// up to the page's own LSN.
type LogManager interface {
	Append(id page.ID) (uint64, error)
	SinkBeforeFlush(id page.ID, pageLSN uint64) error
	DurableLSN() uint64
}

// NoopLog is a LogManager that never blocks a flush and never assigns
// meaningful LSNs. It is the default collaborator when no durability
// is required (e.g. tests).
type NoopLog struct{}

func (NoopLog) Append(page.ID) (uint64, error)       { return 0, nil }
func (NoopLog) SinkBeforeFlush(page.ID, uint64) error { return nil }
func (NoopLog) DurableLSN() uint64                    { return 0 }

// SegmentLog is a minimal append-only log grounded in the teacher's
// pageLSN > flushedLSN gate (`storage_engine/bufferpool.WALFlushedLSNGetter`):
// Append buffers a 16-byte record (LSN, page id) without forcing it to
// disk, and SinkBeforeFlush rejects any page whose LSN hasn't yet been
// covered by a Sync. This gives the buffer pool a genuine write-ahead
// guarantee without implementing replay (spec.md's non-goals exclude
// crash recovery; this is a sink and a gate, not a recovery log).
type SegmentLog struct {
	mu      sync.Mutex
	file    *os.File
	lsn     uint64
	durable uint64
}

// OpenSegmentLog creates or appends to the log file at path.
func OpenSegmentLog(path string) (*SegmentLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "wal: open %s", path)
	}
	return &SegmentLog{file: f}, nil
}

// Append writes a record for id and returns the LSN it was assigned.
// The record is buffered in the OS file but not fsynced; it becomes
// durable only on the next Sync.
func (s *SegmentLog) Append(id page.ID) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lsn++
	lsn := s.lsn
	var rec [16]byte
	binary.LittleEndian.PutUint64(rec[0:8], lsn)
	binary.LittleEndian.PutUint64(rec[8:16], uint64(id))

	if _, err := s.file.Write(rec[:]); err != nil {
		s.lsn--
		return 0, errors.Wrapf(err, "wal: append record for page %d", id)
	}
	return lsn, nil
}

// Sync fsyncs the log file, advancing the durable LSN horizon to the
// highest LSN appended so far.
func (s *SegmentLog) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.file.Sync(); err != nil {
		return errors.Wrap(err, "wal: fsync")
	}
	s.durable = s.lsn
	return nil
}

// SinkBeforeFlush blocks a dirty write until the log's durable LSN
// horizon covers pageLSN, mirroring the teacher's
// `pageLSN > flushedLSN` check.
func (s *SegmentLog) SinkBeforeFlush(id page.ID, pageLSN uint64) error {
	s.mu.Lock()
	durable := s.durable
	s.mu.Unlock()

	if pageLSN > durable {
		return errors.Errorf("wal: page %d lsn %d not yet covered by durable lsn %d", id, pageLSN, durable)
	}
	return nil
}

// DurableLSN returns the highest log sequence number guaranteed to
// survive a crash.
func (s *SegmentLog) DurableLSN() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.durable
}

// Close closes the underlying log file.
func (s *SegmentLog) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
