package extendiblehash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindInsertRemove(t *testing.T) {
	tbl := New[int64, string](4)

	_, ok := tbl.Find(1)
	assert.False(t, ok, "empty table has no bindings")

	tbl.Insert(1, "a")
	tbl.Insert(2, "b")

	v, ok := tbl.Find(1)
	require.True(t, ok)
	assert.Equal(t, "a", v)

	tbl.Insert(1, "overwritten")
	v, ok = tbl.Find(1)
	require.True(t, ok)
	assert.Equal(t, "overwritten", v)

	assert.True(t, tbl.Remove(2))
	_, ok = tbl.Find(2)
	assert.False(t, ok)
	assert.False(t, tbl.Remove(2), "second remove is a no-op")
}

func TestSplitOnOverflow(t *testing.T) {
	tbl := New[int64, int](2)

	// Insert enough distinct keys to force at least one split; every
	// key inserted must remain findable regardless of how many splits
	// or directory doublings occurred underneath.
	const n = 200
	for i := int64(0); i < n; i++ {
		tbl.Insert(i, int(i))
	}
	for i := int64(0); i < n; i++ {
		v, ok := tbl.Find(i)
		require.True(t, ok, "key %d must be found after inserts", i)
		assert.Equal(t, int(i), v)
	}

	assert.Greater(t, tbl.NumBuckets(), 1, "inserting many keys must split at least once")
	assert.GreaterOrEqual(t, tbl.GlobalDepth(), 1)
}

// TestDirectoryInvariant checks spec.md §8 invariant 6: every entry in
// dir[i] must share i's low local-depth bits.
func TestDirectoryInvariant(t *testing.T) {
	tbl := New[int64, int](2)
	for i := int64(0); i < 64; i++ {
		tbl.Insert(i, int(i))
	}

	gd := tbl.GlobalDepth()
	for i := 0; i < 1<<uint(gd); i++ {
		ld := tbl.LocalDepth(i)
		require.LessOrEqual(t, ld, gd)
		mask := (1 << uint(ld)) - 1
		for _, e := range tbl.dir[i].items {
			assert.Equal(t, i&mask, int(hashKey(e.key))&mask, "key %d in dir[%d] must share its low %d bits", e.key, i, ld)
		}
	}
}

// TestBucketSizePlusOneDistinctHashesTriggersOneSplit mirrors spec.md
// §8's boundary scenario: BUCKET_SIZE+1 keys with distinct hashes
// trigger exactly one split, and global depth grows only when local
// depth had caught up to global depth.
func TestBucketSizePlusOneDistinctHashesTriggersOneSplit(t *testing.T) {
	tbl := New[int64, int](2)
	assert.Equal(t, 0, tbl.GlobalDepth())
	assert.Equal(t, 1, tbl.NumBuckets())

	tbl.Insert(0, 0)
	tbl.Insert(1, 1)
	assert.Equal(t, 1, tbl.NumBuckets(), "bucket not yet full")

	tbl.Insert(2, 2)
	assert.Equal(t, 2, tbl.NumBuckets(), "third insert must have split exactly once")
	assert.Equal(t, 1, tbl.GlobalDepth())
}

func TestStringKeys(t *testing.T) {
	tbl := New[string, int](4)
	tbl.Insert("alpha", 1)
	tbl.Insert("beta", 2)

	v, ok := tbl.Find("alpha")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}
