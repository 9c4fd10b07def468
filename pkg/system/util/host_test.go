//go:build linux

package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSystemSummary(t *testing.T) {
	host, kernel, cpus, mem := SystemSummary()
	assert.NotEmpty(t, host)
	assert.NotEqual(t, "?", kernel)
	assert.NotEqual(t, "0", cpus)
	t.Logf("host=%s kernel=%s cpus=%s mem=%s", host, kernel, cpus, mem)
}
