package types

import (
	"strconv"

	"github.com/dustin/go-humanize"
)

// Bytes is a uint64 wrapper representing a size in bytes.
type Bytes uint64

// Humanized returns a human-readable string with a binary unit (B, KiB, MiB, ...).
func (b Bytes) Humanized() string {
	return humanize.IBytes(uint64(b))
}

// KB returns the number of kilobytes (1024 base).
func (b Bytes) KB() float64 { return float64(b) / 1024 }

// MB returns the number of megabytes (1024 base).
func (b Bytes) MB() float64 { return float64(b) / (1024 * 1024) }

// GB returns the number of gigabytes (1024 base).
func (b Bytes) GB() float64 { return float64(b) / (1024 * 1024 * 1024) }

// MiB truncates to whole mebibytes, the unit every memory table is printed in.
func (b Bytes) MiB() uint64 { return uint64(b) >> 20 }

// ToUint64 returns the raw byte count.
func (b Bytes) ToUint64() uint64 { return uint64(b) }

// String formats the raw byte count.
func (b Bytes) String() string { return strconv.FormatUint(uint64(b), 10) }

// Pages converts a page count into Bytes.
func Pages(n int, pageSize uint64) Bytes {
	return Bytes(uint64(n) * pageSize)
}
