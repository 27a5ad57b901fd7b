// Command pagecachebench wires together a disk manager, a log
// manager, and a buffer pool, drives a small new/unpin/flush
// workload, and reports occupancy. It is not a query-facing CLI —
// spec.md places that out of scope — just a runnable smoke test for
// the core.
package main

import (
	"flag"
	"os"

	"github.com/sirupsen/logrus"

	"pagecache/bufferpool"
	"pagecache/config"
	"pagecache/disk"
	"pagecache/page"
	"pagecache/wal"
)

func main() {
	dbPath := flag.String("db", "pagecachebench.db", "backing file for the disk manager")
	walPath := flag.String("wal", "pagecachebench.wal", "backing file for the log sink")
	poolSize := flag.Int("pool-size", 8, "number of frames in the buffer pool")
	numPages := flag.Int("pages", 32, "number of pages to allocate")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	dm, err := disk.New(*dbPath)
	if err != nil {
		logrus.WithError(err).Fatal("open disk manager")
	}
	defer dm.Close()

	lm, err := wal.OpenSegmentLog(*walPath)
	if err != nil {
		logrus.WithError(err).Fatal("open log manager")
	}
	defer lm.Close()

	cfg := config.Default(*poolSize)
	bp := bufferpool.New(cfg, dm, lm)

	var ids []page.ID
	for i := 0; i < *numPages; i++ {
		pg, id, err := bp.NewPage()
		if err != nil {
			logrus.WithError(err).Warn("pool exhausted, syncing log and unpinning oldest half")
			// Dirty victims cannot be flushed until the log covers
			// their LSNs.
			if err := lm.Sync(); err != nil {
				logrus.WithError(err).Fatal("sync log")
			}
			for _, older := range ids[:len(ids)/2] {
				bp.UnpinPage(older, false)
			}
			pg, id, err = bp.NewPage()
			if err != nil {
				logrus.WithError(err).Fatal("still exhausted after unpinning")
			}
		}
		copy(pg.Data, []byte("page-"))
		bp.UnpinPage(id, true)
		ids = append(ids, id)
	}

	if err := lm.Sync(); err != nil {
		logrus.WithError(err).Fatal("sync log before flush")
	}
	bp.FlushAllPages()

	stats := bp.Stats()
	logrus.WithFields(logrus.Fields{
		"total":    stats.TotalPages,
		"pinned":   stats.PinnedPages,
		"dirty":    stats.DirtyPages,
		"capacity": stats.Capacity,
		"pages":    len(ids),
	}).Info("pagecachebench: done")

	os.Exit(0)
}
