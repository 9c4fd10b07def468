package groups

import "errors"

// ErrDuplicateGroup is returned when a splitter would produce two groups
// with the same name.
var ErrDuplicateGroup = errors.New("groups: duplicate group name")
