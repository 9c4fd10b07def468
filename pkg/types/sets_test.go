package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPFNSet(t *testing.T) {
	t.Run("zero_is_never_stored", func(t *testing.T) {
		s := NewPFNSet(0, 1, 2, 0)
		assert.Len(t, s, 2)
		assert.False(t, s.Has(0))
	})

	t.Run("extend_and_difference", func(t *testing.T) {
		a := NewPFNSet(10, 11, 12)
		b := NewPFNSet(12, 13)
		assert.Equal(t, 2, a.DifferenceLen(b))
		assert.Equal(t, 1, b.DifferenceLen(a))

		u := a.Clone()
		u.Extend(b)
		assert.Len(t, u, 4)
		assert.Len(t, a, 3, "clone must not alias")
	})
}

func TestSwapSet(t *testing.T) {
	a := NewSwapSet(SwapSlot{0, 1}, SwapSlot{0, 2}, SwapSlot{1, 1})
	b := NewSwapSet(SwapSlot{0, 2})
	assert.True(t, a.Has(SwapSlot{Type: 1, Offset: 1}))
	assert.False(t, a.Has(SwapSlot{Type: 1, Offset: 2}))
	assert.Equal(t, 2, a.DifferenceLen(b))
	assert.Equal(t, 0, b.DifferenceLen(a))

	c := b.Clone()
	c.Extend(a)
	assert.Len(t, c, 3)
	assert.Len(t, b, 1)
}
