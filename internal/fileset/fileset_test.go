package fileset

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func file(id string, ts int64) FileInfo {
	return FileInfo{ID: id, Timestamp: ts, Weight: -1, DisplayPath: id}
}

func TestExpiredChangedTimestamp(t *testing.T) {
	current := []FileInfo{file("foo.js", 11)}
	previous := []FileInfo{file("foo.js", 10)}

	assert.Equal(t, current, Expired(current, previous))
}

func TestExpiredEmptyPreviousReturnsAll(t *testing.T) {
	current := []FileInfo{file("foo.js", 11), file("bar.js", 3)}

	assert.Equal(t, current, Expired(current, nil))
	assert.Equal(t, current, Expired(current, []FileInfo{}))
}

func TestExpiredUnchanged(t *testing.T) {
	current := []FileInfo{file("foo.js", 10)}
	previous := []FileInfo{file("foo.js", 10)}

	assert.Empty(t, Expired(current, previous))
}

func TestExpiredIgnoresNonIdentityFields(t *testing.T) {
	cur := file("foo.js", 10)
	cur.Weight = 7
	cur.IsPatch = true
	cur.ServeOnly = true
	cur.Data = "var x = 1;"
	cur.DisplayPath = "/abs/foo.js"
	prev := file("foo.js", 10)

	require.False(t, cur.Equal(prev))
	require.True(t, cur.SameVersion(prev))
	assert.Empty(t, Expired([]FileInfo{cur}, []FileInfo{prev}))
}

func TestExpiredReportsCurrentValuesOnce(t *testing.T) {
	cur := file("foo.js", 12)
	cur.Data = "new"
	prev := file("foo.js", 9)
	prev.Data = "old"

	got := Expired([]FileInfo{cur}, []FileInfo{prev})
	require.Len(t, got, 1)
	assert.Equal(t, cur, got[0])
}

func TestExpiredIgnoresRemovedFiles(t *testing.T) {
	current := []FileInfo{file("a.js", 1)}
	previous := []FileInfo{file("a.js", 1), file("gone.js", 4)}

	assert.Empty(t, Expired(current, previous))
}

func TestExpiredIsSubsetOfCurrent(t *testing.T) {
	current := []FileInfo{file("a.js", 1), file("b.js", 2), file("c.js", 3)}
	previous := []FileInfo{file("a.js", 1), file("b.js", 5), file("z.js", 9)}

	got := Expired(current, previous)
	for _, f := range got {
		assert.Contains(t, current, f)
	}
	assert.Equal(t, []FileInfo{file("b.js", 2), file("c.js", 3)}, got)
}

func TestCacheExpiredAgainstStoredVersions(t *testing.T) {
	cache := NewCache(file("a.js", 1))
	cache.Put(file("b.js", 2))

	got := cache.Expired([]FileInfo{file("a.js", 1), file("b.js", 3), file("c.js", 1)})
	assert.Equal(t, []FileInfo{file("b.js", 3), file("c.js", 1)}, got)

	cache.Put(got...)
	assert.Empty(t, cache.Expired([]FileInfo{file("b.js", 3), file("c.js", 1)}))
	assert.Equal(t, 3, cache.Len())

	f, ok := cache.Get("b.js")
	require.True(t, ok)
	assert.Equal(t, int64(3), f.Timestamp)
}

func TestCacheSnapshotOrdersByWeightThenID(t *testing.T) {
	a := file("a.js", 1)
	a.Weight = 5
	b := file("b.js", 1)
	b.Weight = 1
	c := file("c.js", 1)
	c.Weight = 1
	cache := NewCache(a, c, b)

	assert.Equal(t, []FileInfo{b, c, a}, cache.Snapshot())

	cache.Clear()
	assert.Zero(t, cache.Len())
}

func TestCacheConcurrentPutAndExpired(t *testing.T) {
	cache := NewCache()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			f := file(fmt.Sprintf("f%d.js", n), int64(n))
			cache.Put(f)
			cache.Expired([]FileInfo{f})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 8, cache.Len())
	_, ok := cache.Get("missing.js")
	assert.False(t, ok)
}
