package procinfo

import "errors"

var (
	// ErrKernelProcess is returned for kernel threads, which have no cmdline
	// and no user mappings.
	ErrKernelProcess = errors.New("procinfo: kernel process")

	// ErrVanished wraps any read failure of a process that was listed but
	// could not be read afterwards, usually because it exited.
	ErrVanished = errors.New("procinfo: process vanished")
)
