// Package tree indexes parent/child relations between processes.
package tree

import (
	"log/slog"
	"sync"
)

// InitPID is the root of every ancestry chain.
const InitPID = 1

// Edge is a (parent, child) PID pair.
type Edge struct {
	Parent, Child int
}

// Process is anything with a PID and a readable parent PID.
type Process interface {
	PID() int
	PPID() (int, error)
}

// Tree is an immutable list of parent/child edges captured once per scan.
type Tree struct {
	edges    []Edge
	children map[int][]int
	parent   map[int]int

	mu       sync.Mutex
	closures map[int]map[int]struct{} // root -> root and its descendants
}

// New builds the tree from a process listing. Processes whose parent cannot
// be read have exited since the listing and are left out.
func New[P Process](procs []P) *Tree {
	edges := make([]Edge, 0, len(procs))
	for _, p := range procs {
		ppid, err := p.PPID()
		if err != nil {
			slog.Debug("skipping process without readable parent", "pid", p.PID(), "err", err)
			continue
		}
		edges = append(edges, Edge{Parent: ppid, Child: p.PID()})
	}
	return FromEdges(edges)
}

// FromEdges builds a tree from explicit edges.
func FromEdges(edges []Edge) *Tree {
	t := &Tree{
		edges:    append([]Edge(nil), edges...),
		children: make(map[int][]int, len(edges)),
		parent:   make(map[int]int, len(edges)),
	}
	for _, e := range t.edges {
		t.children[e.Parent] = append(t.children[e.Parent], e.Child)
		if _, ok := t.parent[e.Child]; !ok {
			t.parent[e.Child] = e.Parent
		}
	}
	return t
}

// Edges returns a copy of the edge list.
func (t *Tree) Edges() []Edge { return append([]Edge(nil), t.edges...) }

// Ancestors walks from pid up to InitPID. When a link is missing (a process
// vanished mid-scan) the partial chain is returned.
func (t *Tree) Ancestors(pid int, includeSelf bool) []int {
	var out []int
	if includeSelf {
		out = append(out, pid)
	}
	seen := map[int]struct{}{pid: {}}
	for cur := pid; cur != InitPID; {
		ppid, ok := t.parent[cur]
		if !ok {
			return out
		}
		out = append(out, ppid)
		if _, loop := seen[ppid]; loop {
			return out
		}
		seen[ppid] = struct{}{}
		cur = ppid
	}
	return out
}

// Descendants returns every PID reachable from pid through child edges.
func (t *Tree) Descendants(pid int, includeSelf bool) map[int]struct{} {
	out := map[int]struct{}{}
	if includeSelf {
		out[pid] = struct{}{}
	}
	visited := map[int]struct{}{pid: {}}
	stack := []int{pid}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, child := range t.children[cur] {
			if _, ok := visited[child]; ok {
				continue
			}
			visited[child] = struct{}{}
			out[child] = struct{}{}
			stack = append(stack, child)
		}
	}
	return out
}

// IsDescendant reports whether pid is root itself or one of its descendants.
// The closure of each root is computed once and reused.
func (t *Tree) IsDescendant(root, pid int) bool {
	_, ok := t.closure(root)[pid]
	return ok
}

func (t *Tree) closure(root int) map[int]struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.closures[root]; ok {
		return c
	}
	if t.closures == nil {
		t.closures = map[int]map[int]struct{}{}
	}
	c := t.Descendants(root, true)
	t.closures[root] = c
	return c
}
