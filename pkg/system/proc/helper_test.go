//go:build linux

package proc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseEnviron(t *testing.T) {
	t.Run("key_value_pairs", func(t *testing.T) {
		env := parseEnviron([]string{"HOME=/root", "SHELL=/bin/bash"})
		assert.Equal(t, map[string]string{"HOME": "/root", "SHELL": "/bin/bash"}, env)
	})
	t.Run("value_with_equals", func(t *testing.T) {
		env := parseEnviron([]string{"OPTS=a=b=c"})
		assert.Equal(t, "a=b=c", env["OPTS"])
	})
	t.Run("first_duplicate_wins", func(t *testing.T) {
		env := parseEnviron([]string{"A=1", "A=2"})
		assert.Equal(t, "1", env["A"])
	})
	t.Run("no_equals_and_empty", func(t *testing.T) {
		env := parseEnviron([]string{"", "FLAG"})
		assert.Len(t, env, 1)
		v, ok := env["FLAG"]
		assert.True(t, ok)
		assert.Empty(t, v)
	})
}

func TestPermString(t *testing.T) {
	assert.Equal(t, "r-xp", permString(true, false, true, false))
	assert.Equal(t, "rw-s", permString(true, true, false, true))
	assert.Equal(t, "---p", permString(false, false, false, false))
}
