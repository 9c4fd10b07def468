//go:build linux

package util

import (
	"os"
	"runtime"
	"strconv"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"
)

// SystemSummary returns hostname, kernel release, CPU count and total RAM
// for report headers. Unreadable fields are "?".
func SystemSummary() (host, kernel, cpus, mem string) {
	host, kernel, mem = "?", "?", "?"
	if h, err := os.Hostname(); err == nil {
		host = h
	}
	var uts unix.Utsname
	if err := unix.Uname(&uts); err == nil {
		kernel = unix.ByteSliceToString(uts.Release[:])
	}
	cpus = strconv.Itoa(runtime.NumCPU())
	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err == nil {
		mem = humanize.IBytes(uint64(si.Totalram) * uint64(si.Unit))
	}
	return host, kernel, cpus, mem
}
