package tree

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeProc struct {
	pid, ppid int
	err       error
}

func (p fakeProc) PID() int           { return p.pid }
func (p fakeProc) PPID() (int, error) { return p.ppid, p.err }

func set(pids ...int) map[int]struct{} {
	s := map[int]struct{}{}
	for _, p := range pids {
		s[p] = struct{}{}
	}
	return s
}

func sample() *Tree {
	return FromEdges([]Edge{{1, 2}, {2, 3}, {2, 4}, {5, 6}})
}

func TestDescendants(t *testing.T) {
	tr := sample()

	t.Run("exclude_self", func(t *testing.T) {
		assert.Equal(t, set(3, 4), tr.Descendants(2, false))
	})
	t.Run("include_self", func(t *testing.T) {
		assert.Equal(t, set(2, 3, 4), tr.Descendants(2, true))
	})
	t.Run("separate_subtree", func(t *testing.T) {
		assert.Equal(t, set(6), tr.Descendants(5, false))
	})
	t.Run("no_children", func(t *testing.T) {
		assert.Empty(t, tr.Descendants(99, false))
	})
	t.Run("transitive", func(t *testing.T) {
		assert.Equal(t, set(2, 3, 4), tr.Descendants(1, false))
	})
	t.Run("cycle_terminates", func(t *testing.T) {
		cyc := FromEdges([]Edge{{7, 8}, {8, 7}, {8, 9}})
		assert.Equal(t, set(7, 8, 9), cyc.Descendants(7, true))
	})
}

func TestAncestors(t *testing.T) {
	tr := sample()

	assert.Equal(t, []int{2, 1}, tr.Ancestors(3, false))
	assert.Equal(t, []int{3, 2, 1}, tr.Ancestors(3, true))
	assert.Empty(t, tr.Ancestors(1, false))

	t.Run("partial_chain_when_parent_vanished", func(t *testing.T) {
		// 5 has no recorded parent, so the walk stops there
		assert.Equal(t, []int{5}, tr.Ancestors(6, false))
		assert.Empty(t, tr.Ancestors(42, false))
	})
}

func TestNew(t *testing.T) {
	procs := []fakeProc{
		{pid: 2, ppid: 1},
		{pid: 3, ppid: 2},
		{pid: 4, err: errors.New("gone")},
	}
	tr := New(procs)
	assert.Equal(t, []Edge{{1, 2}, {2, 3}}, tr.Edges())
	assert.True(t, tr.IsDescendant(1, 3))
	assert.True(t, tr.IsDescendant(3, 3))
	assert.False(t, tr.IsDescendant(3, 1))
}

func TestIsDescendant_Cached(t *testing.T) {
	const n = 2000
	edges := make([]Edge, 0, n)
	for pid := 2; pid <= n; pid++ {
		edges = append(edges, Edge{Parent: pid - 1, Child: pid})
	}
	tr := FromEdges(edges)

	for pid := 1; pid <= n; pid++ {
		assert.True(t, tr.IsDescendant(1, pid))
	}
	assert.False(t, tr.IsDescendant(1, n+1))
	assert.Len(t, tr.closures, 1, "one closure per root")

	t.Run("callers_cannot_corrupt_cache", func(t *testing.T) {
		d := tr.Descendants(1, true)
		delete(d, 3)
		assert.True(t, tr.IsDescendant(1, 3))
	})

	t.Run("concurrent", func(t *testing.T) {
		var wg sync.WaitGroup
		for root := 1; root <= 8; root++ {
			wg.Add(1)
			go func(root int) {
				defer wg.Done()
				assert.True(t, tr.IsDescendant(root, n))
				assert.False(t, tr.IsDescendant(root, root-1))
			}(root)
		}
		wg.Wait()
		assert.Len(t, tr.closures, 8)
	})
}
