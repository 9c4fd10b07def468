//go:build linux

package groups

import (
	"fmt"
	"os/user"
	"slices"
	"strconv"

	"github.com/ja7ad/memstats/pkg/filter"
	"github.com/ja7ad/memstats/pkg/procinfo"
	"github.com/ja7ad/memstats/pkg/system/util"
	"github.com/ja7ad/memstats/pkg/tree"
)

const (
	OtherGroup     = "Other"
	OtherPIDsGroup = "Others PIDs"
	UnsetGroup     = "<unset>"
	NoCgroupGroup  = "<none>"
)

// Splitter partitions processes into named groups.
type Splitter interface {
	Name() string
	Split(infos []*procinfo.Info) *Split
}

// UID groups processes by owner, named by username when it resolves.
type UID struct {
	// Lookup resolves a uid to a username; nil uses the passwd database.
	Lookup func(uid uint32) (string, bool)
}

func lookupUser(uid uint32) (string, bool) {
	u, err := user.LookupId(strconv.FormatUint(uint64(uid), 10))
	if err != nil {
		return "", false
	}
	return u.Username, true
}

func (UID) Name() string { return "UID" }

func (s UID) Split(infos []*procinfo.Info) *Split {
	lookup := s.Lookup
	if lookup == nil {
		lookup = lookupUser
	}

	byUID := map[uint32][]*procinfo.Info{}
	for _, info := range infos {
		byUID[info.Owner()] = append(byUID[info.Owner()], info)
	}
	uids := make([]uint32, 0, len(byUID))
	for uid := range byUID {
		uids = append(uids, uid)
	}
	slices.Sort(uids)

	out := &Split{By: s.Name()}
	seen := map[string]bool{}
	for _, uid := range uids {
		name, ok := lookup(uid)
		if !ok {
			name = strconv.FormatUint(uint64(uid), 10)
		}
		if seen[name] {
			name = fmt.Sprintf("%s(%d)", name, uid)
		}
		seen[name] = true
		out.Groups = append(out.Groups, NewGroup(name, byUID[uid]))
	}
	return out
}

// Env groups processes by the value of one environment variable. Processes
// without the variable form their own group.
type Env struct {
	Var string
}

func (s Env) Name() string { return "environment variable " + s.Var }

func (s Env) Split(infos []*procinfo.Info) *Split {
	var unset []*procinfo.Info
	byValue := map[string][]*procinfo.Info{}
	for _, info := range infos {
		v, ok := info.Env(s.Var)
		if !ok {
			unset = append(unset, info)
			continue
		}
		byValue[v] = append(byValue[v], info)
	}

	out := &Split{By: s.Name()}
	if len(unset) > 0 {
		out.Groups = append(out.Groups, NewGroup(UnsetGroup, unset))
	}
	values := make([]string, 0, len(byValue))
	for v := range byValue {
		values = append(values, v)
	}
	slices.Sort(values)
	for _, v := range values {
		out.Groups = append(out.Groups, NewGroup(strconv.Quote(v), byValue[v]))
	}
	return out
}

// PIDs splits the listed processes from all others.
type PIDs struct {
	PIDs util.PIDSet
}

func (PIDs) Name() string { return "PID list" }

func (s PIDs) Split(infos []*procinfo.Info) *Split {
	var listed, others []*procinfo.Info
	for _, info := range infos {
		if s.PIDs.Contains(info.PID()) {
			listed = append(listed, info)
		} else {
			others = append(others, info)
		}
	}
	return &Split{By: s.Name(), Groups: []*Group{
		NewGroup(s.PIDs.String(), listed),
		NewGroup(OtherPIDsGroup, others),
	}}
}

// Custom drains processes through filters in order: a process belongs to
// the first filter that matches it, or to Other.
type Custom struct {
	Expr    string
	Filters []filter.Named
	Tree    *tree.Tree
}

// NewCustom parses a chain of adjacent filters, e.g. "uid(0),comm(sshd)".
// Each filter names its group by its own text.
func NewCustom(expr string, t *tree.Tree) (*Custom, error) {
	named, err := filter.ParseChain(expr)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{OtherGroup: true}
	for _, n := range named {
		if seen[n.Name] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateGroup, n.Name)
		}
		seen[n.Name] = true
	}
	return &Custom{Expr: expr, Filters: named, Tree: t}, nil
}

func (s *Custom) Name() string { return "custom splitter " + s.Expr }

func (s *Custom) Split(infos []*procinfo.Info) *Split {
	rest := slices.Clone(infos)
	out := &Split{By: s.Name()}
	for _, n := range s.Filters {
		var matched, remaining []*procinfo.Info
		for _, info := range rest {
			if filter.Eval(n.Filter, info, s.Tree) {
				matched = append(matched, info)
			} else {
				remaining = append(remaining, info)
			}
		}
		rest = remaining
		out.Groups = append(out.Groups, NewGroup(n.Name, matched))
	}
	out.Groups = append(out.Groups, NewGroup(OtherGroup, rest))
	return out
}

// Cgroup groups processes by their memory cgroup path.
type Cgroup struct{}

func (Cgroup) Name() string { return "cgroup" }

func (s Cgroup) Split(infos []*procinfo.Info) *Split {
	byPath := map[string][]*procinfo.Info{}
	for _, info := range infos {
		path := info.Cgroup
		if path == "" {
			path = NoCgroupGroup
		}
		byPath[path] = append(byPath[path], info)
	}
	paths := make([]string, 0, len(byPath))
	for p := range byPath {
		paths = append(paths, p)
	}
	slices.Sort(paths)

	out := &Split{By: s.Name()}
	for _, p := range paths {
		out.Groups = append(out.Groups, NewGroup(p, byPath[p]))
	}
	return out
}
