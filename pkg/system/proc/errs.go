package proc

import "errors"

var (
	// ErrNotRoot indicates that the effective user is not root; other users'
	// pagemap entries read as zero PFNs without it.
	ErrNotRoot = errors.New("proc: must run as root")

	// ErrNoRSS indicates that the resident set size of a process could not be read.
	ErrNoRSS = errors.New("proc: no rss")

	// ErrNoMemAvailable indicates that /proc/meminfo had no MemAvailable line.
	ErrNoMemAvailable = errors.New("proc: no MemAvailable in meminfo")

	// ErrBadMapsLine indicates a /proc/<pid>/maps entry that could not be classified.
	ErrBadMapsLine = errors.New("proc: malformed maps entry")

	// ErrShortRead indicates that pagemap or kpageflags returned fewer
	// bytes than the requested range.
	ErrShortRead = errors.New("proc: short read")

	// ErrBadIOMem indicates a malformed /proc/iomem line.
	ErrBadIOMem = errors.New("proc: malformed iomem line")

	// ErrBadShmLine indicates a malformed /proc/sysvipc/shm line.
	ErrBadShmLine = errors.New("proc: malformed sysvipc shm line")
)
