package bufferpool

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagecache/page"
)

// checkInvariants verifies spec.md §8 invariants 1-5 against the
// pool's current state. Invariant 6 (directory low-bit consistency)
// is exercised directly in extendiblehash_test.go.
func checkInvariants(t *testing.T, bp *Manager) {
	t.Helper()
	bp.mu.Lock()
	defer bp.mu.Unlock()

	bound := make(map[int]bool)
	evictableBound := 0
	freeSet := make(map[int]bool)
	for _, f := range bp.freeList {
		freeSet[f] = true
	}

	for frameID, pg := range bp.frames {
		pg.RLock()
		id := pg.ID
		pinCount := pg.PinCount
		pg.RUnlock()

		assert.GreaterOrEqual(t, pinCount, int32(0), "frame %d pin count must never go negative", frameID)

		if id == page.InvalidID {
			assert.True(t, freeSet[frameID], "unbound frame %d must be on the free list", frameID)
			continue
		}
		bound[frameID] = true
		assert.False(t, freeSet[frameID], "bound frame %d must not be on the free list", frameID)

		got, ok := bp.pageTable.Find(id)
		require.True(t, ok, "bound frame %d's page %d must be in the hash table", frameID, id)
		assert.Equal(t, frameID, got, "hash_table[pages[f].page_id] == f")

		if pinCount == 0 {
			evictableBound++
		}
	}

	assert.Equal(t, len(bp.frames), len(bound)+len(freeSet), "free list and bound frames partition [0, POOL_SIZE)")
	assert.Equal(t, evictableBound, bp.replacer.Size(), "replacer size equals count of bound, unpinned frames")
}

func TestInvariantsUnderRandomWorkload(t *testing.T) {
	bp, _ := newTestPool(8, 2, 4)
	checkInvariants(t, bp)

	rng := rand.New(rand.NewSource(1))
	var resident []page.ID

	for i := 0; i < 500; i++ {
		switch rng.Intn(4) {
		case 0:
			if _, id, err := bp.NewPage(); err == nil {
				resident = append(resident, id)
			}
		case 1:
			if len(resident) > 0 {
				id := resident[rng.Intn(len(resident))]
				bp.FetchPage(id)
				bp.UnpinPage(id, rng.Intn(2) == 0)
			}
		case 2:
			if len(resident) > 0 {
				id := resident[rng.Intn(len(resident))]
				bp.UnpinPage(id, rng.Intn(2) == 0)
			}
		case 3:
			if len(resident) > 0 {
				idx := rng.Intn(len(resident))
				bp.DeletePage(resident[idx])
			}
		}
		checkInvariants(t, bp)
	}
}
