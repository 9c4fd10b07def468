//go:build linux

package proc

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"runtime"
	"testing"

	"github.com/ja7ad/memstats/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeEntries(es ...PagemapEntry) []byte {
	b := make([]byte, 8*len(es))
	for i, e := range es {
		binary.LittleEndian.PutUint64(b[i*8:], uint64(e))
	}
	return b
}

func TestPagemapEntry(t *testing.T) {
	t.Run("present", func(t *testing.T) {
		e := NewPresentEntry(0x1234)
		assert.True(t, e.Present())
		assert.False(t, e.Swapped())
		assert.Equal(t, types.PFN(0x1234), e.PFN())
	})

	t.Run("swapped", func(t *testing.T) {
		slot := types.SwapSlot{Type: 3, Offset: 0xbeef}
		e := NewSwappedEntry(slot)
		assert.False(t, e.Present())
		assert.True(t, e.Swapped())
		assert.Equal(t, slot, e.SwapSlot())
		assert.Equal(t, types.PFN(0), e.PFN())
	})

	t.Run("flag_bits", func(t *testing.T) {
		e := PagemapEntry(1<<63 | 1<<61 | 1<<56 | 1<<55 | 42)
		assert.True(t, e.FileShared())
		assert.True(t, e.Exclusive())
		assert.True(t, e.SoftDirty())
		assert.Equal(t, types.PFN(42), e.PFN())
	})

	t.Run("not_present", func(t *testing.T) {
		e := PagemapEntry(0)
		assert.False(t, e.Present())
		assert.False(t, e.Swapped())
	})
}

func collectPagemap(t *testing.T, r io.ReaderAt, first, last uint64) ([]PagemapEntry, error) {
	t.Helper()
	var out []PagemapEntry
	err := WalkPagemap(r, first, last, func(e PagemapEntry) { out = append(out, e) })
	return out, err
}

func TestWalkPagemap(t *testing.T) {
	entries := make([]PagemapEntry, 0, 3000)
	for i := 0; i < 3000; i++ {
		entries = append(entries, NewPresentEntry(types.PFN(i+1)))
	}
	r := bytes.NewReader(encodeEntries(entries...))

	t.Run("spans_batches", func(t *testing.T) {
		got, err := collectPagemap(t, r, 10, 2500)
		require.NoError(t, err)
		require.Len(t, got, 2490)
		assert.Equal(t, types.PFN(11), got[0].PFN())
		assert.Equal(t, types.PFN(2500), got[len(got)-1].PFN())
	})

	t.Run("empty_range", func(t *testing.T) {
		got, err := collectPagemap(t, r, 5, 5)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("past_end", func(t *testing.T) {
		_, err := collectPagemap(t, r, 2990, 3010)
		assert.ErrorIs(t, err, ErrShortRead)
	})
}

// zeroPagemap reads as an endless run of not-present entries, like a large
// PROT_NONE reservation.
type zeroPagemap struct{}

func (zeroPagemap) ReadAt(p []byte, _ int64) (int, error) {
	clear(p)
	return len(p), nil
}

func TestWalkPagemap_LargeReservation(t *testing.T) {
	const pages = (16 << 30) / 4096 // 16 GiB of 4k pages

	var seen, present uint64
	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	err := WalkPagemap(zeroPagemap{}, 0, pages, func(e PagemapEntry) {
		seen++
		if e.Present() {
			present++
		}
	})
	runtime.ReadMemStats(&after)
	require.NoError(t, err)
	assert.Equal(t, uint64(pages), seen)
	assert.Zero(t, present)
	assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(1<<20),
		"allocation must not grow with the mapping size")

	t.Run("allocs_per_walk", func(t *testing.T) {
		allocs := testing.AllocsPerRun(3, func() {
			_ = WalkPagemap(zeroPagemap{}, 0, pages/16, func(PagemapEntry) {})
		})
		assert.LessOrEqual(t, allocs, 2.0)
	})
}

func TestFS_WalkPages_Self(t *testing.T) {
	fs, err := NewFS("")
	require.NoError(t, err)

	maps, err := fs.Maps(os.Getpid())
	require.NoError(t, err)

	ps := uint64(PageSize())
	for _, m := range maps {
		if m.Kind != Heap && m.Kind != Stack {
			continue
		}
		var n uint64
		require.NoError(t, fs.WalkPages(os.Getpid(), m, func(PagemapEntry) { n++ }))
		assert.Equal(t, m.Pages(ps), n)
		return
	}
	t.Skip("skipping: no heap or stack mapping found")
}
