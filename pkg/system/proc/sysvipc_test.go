//go:build linux

package proc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleShm = `       key      shmid perms                  size  cpid  lpid nattch   uid   gid  cuid  cgid      atime      dtime      ctime                   rss                  swap
         0          3  1600                524288  2312  4120      2  1000  1000  1000  1000 1700000000 1700000001 1700000002                524288                     0
  43981     32769   640             2097152  5000  5001      1    54    54    54    54 1700000000          0 1700000002                  8192               2088960
`

func TestParseShm(t *testing.T) {
	segs, err := ParseShm(strings.NewReader(sampleShm))
	require.NoError(t, err)
	require.Len(t, segs, 2)

	assert.Equal(t, ShmSegment{
		Key: 0, ID: 3, Size: 524288, RSS: 524288, Swap: 0,
		CPID: 2312, LPID: 4120, Nattch: 2, UID: 1000,
	}, segs[0])

	assert.Equal(t, ShmID{Key: 0xabcd, ID: 32769}, segs[1].Identity())
	assert.Equal(t, uint64(2088960), segs[1].Swap)
	assert.Equal(t, "43981/32769", segs[1].Identity().String())
}

func TestParseShm_Errors(t *testing.T) {
	t.Run("old_kernel_without_rss", func(t *testing.T) {
		_, err := ParseShm(strings.NewReader("key shmid perms size\n1 2 600 4096\n"))
		assert.ErrorIs(t, err, ErrBadShmLine)
	})
	t.Run("short_row", func(t *testing.T) {
		_, err := ParseShm(strings.NewReader("key shmid size rss swap\n1 2 3\n"))
		assert.ErrorIs(t, err, ErrBadShmLine)
	})
	t.Run("empty_file", func(t *testing.T) {
		segs, err := ParseShm(strings.NewReader(""))
		assert.NoError(t, err)
		assert.Empty(t, segs)
	})
}
