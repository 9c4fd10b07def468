//go:build linux

package proc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleIOMem = `00000000-00000fff : Reserved
00001000-0009fbff : System RAM
000a0000-000bffff : PCI Bus 0000:00
00100000-bffdffff : System RAM
  01000000-01e0306e : Kernel code
  01e0306f-0251f3ff : Kernel data
feb00000-febfffff : PCI Bus 0000:00
100000000-23fffffff : System RAM
`

func TestParseIOMem(t *testing.T) {
	segs, err := ParseIOMem(strings.NewReader(sampleIOMem))
	require.NoError(t, err)
	require.Len(t, segs, 8)

	assert.Equal(t, MemorySegment{Start: 0x1000, End: 0x9fbff, Name: SystemRAM}, segs[1])
	assert.Equal(t, 1, segs[4].Depth)
	assert.Equal(t, "Kernel code", segs[4].Name)

	ram := RAMRanges(segs, 4096)
	require.Len(t, ram, 3)
	assert.Equal(t, PFNRange{Start: 1, End: 0x9f}, ram[0])
	assert.Equal(t, PFNRange{Start: 0x100, End: 0xbffe0}, ram[1])
	assert.Equal(t, PFNRange{Start: 0x100000, End: 0x240000}, ram[2])
	assert.Equal(t, uint64(0x140000), ram[2].Len())

	r, ok := ramRange(ram, 0x100)
	assert.True(t, ok)
	assert.Equal(t, ram[0], r)
	_, ok = ramRange(ram, 0xbffe0)
	assert.False(t, ok)
}

func TestParseIOMem_Malformed(t *testing.T) {
	_, err := ParseIOMem(strings.NewReader("00000000-00000fff Reserved\n"))
	assert.ErrorIs(t, err, ErrBadIOMem)

	_, err = ParseIOMem(strings.NewReader("zzzz-00000fff : Reserved\n"))
	assert.ErrorIs(t, err, ErrBadIOMem)
}
