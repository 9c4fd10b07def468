package shm

import "errors"

var (
	// ErrMappingNotFound indicates that the attached segment could not be
	// found in the scanner's own memory maps.
	ErrMappingNotFound = errors.New("shm: attached segment not found in own maps")

	// ErrEmptySegment indicates that attaching returned no memory.
	ErrEmptySegment = errors.New("shm: empty attachment")
)
