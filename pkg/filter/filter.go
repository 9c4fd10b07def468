// Package filter implements the process selection language used by
// --filter and the custom splitters.
//
// Grammar, every operator takes trailing parenthesis:
//
//	true()  false()
//	and(<f><sep><f>...)  or(<f><sep><f>...)  not(<f>)
//	uid(<uid>)  pid(<pid>)  descendants(<pid>)  comm(<comm>)
//	env_k(<key>)  env_kv(<key>,<value>)
//
// Siblings inside and/or are delimited by exactly one character after the
// closing parenthesis of the previous sibling, usually a comma. Characters
// cannot be escaped and values cannot contain parenthesis.
package filter

import (
	"strconv"
	"strings"

	"github.com/ja7ad/memstats/pkg/tree"
)

// Process is the view of a process that filters evaluate. Accessors may
// fail when the process vanished; the predicate then evaluates to false.
type Process interface {
	PID() int
	UID() (uint32, error)
	Comm() (string, error)
	Environ() (map[string]string, error)
}

// Filter is a parsed predicate. The set of implementations is closed:
// True, False, And, Or, Not, UID, PID, Comm, Descendants, EnvKey, EnvKeyValue.
type Filter interface {
	String() string
	filter()
}

type (
	True  struct{}
	False struct{}
	And   []Filter
	Or    []Filter
	Not   struct{ Inner Filter }

	UID         uint32
	PID         int
	Comm        string
	Descendants int
	EnvKey      string
	EnvKeyValue struct{ Key, Value string }
)

func (True) filter()        {}
func (False) filter()       {}
func (And) filter()         {}
func (Or) filter()          {}
func (Not) filter()         {}
func (UID) filter()         {}
func (PID) filter()         {}
func (Comm) filter()        {}
func (Descendants) filter() {}
func (EnvKey) filter()      {}
func (EnvKeyValue) filter() {}

func (True) String() string  { return "true()" }
func (False) String() string { return "false()" }
func (f And) String() string { return "and(" + join(f) + ")" }
func (f Or) String() string  { return "or(" + join(f) + ")" }
func (f Not) String() string { return "not(" + f.Inner.String() + ")" }

func (f UID) String() string         { return "uid(" + strconv.FormatUint(uint64(f), 10) + ")" }
func (f PID) String() string         { return "pid(" + strconv.Itoa(int(f)) + ")" }
func (f Comm) String() string        { return "comm(" + string(f) + ")" }
func (f Descendants) String() string { return "descendants(" + strconv.Itoa(int(f)) + ")" }
func (f EnvKey) String() string      { return "env_k(" + string(f) + ")" }
func (f EnvKeyValue) String() string { return "env_kv(" + f.Key + "," + f.Value + ")" }

func join(fs []Filter) string {
	parts := make([]string, len(fs))
	for i, f := range fs {
		parts[i] = f.String()
	}
	return strings.Join(parts, ",")
}

// Eval evaluates f against p. t is consulted by Descendants only and may be
// nil otherwise.
func Eval(f Filter, p Process, t *tree.Tree) bool {
	switch f := f.(type) {
	case True:
		return true
	case False:
		return false
	case And:
		for _, c := range f {
			if !Eval(c, p, t) {
				return false
			}
		}
		return true
	case Or:
		for _, c := range f {
			if Eval(c, p, t) {
				return true
			}
		}
		return false
	case Not:
		return !Eval(f.Inner, p, t)
	case UID:
		uid, err := p.UID()
		return err == nil && uid == uint32(f)
	case PID:
		return p.PID() == int(f)
	case Comm:
		comm, err := p.Comm()
		return err == nil && comm == string(f)
	case Descendants:
		if t == nil {
			return false
		}
		return t.IsDescendant(int(f), p.PID())
	case EnvKey:
		env, err := p.Environ()
		if err != nil {
			return false
		}
		_, ok := env[string(f)]
		return ok
	case EnvKeyValue:
		env, err := p.Environ()
		if err != nil {
			return false
		}
		v, ok := env[f.Key]
		return ok && v == f.Value
	default:
		return false
	}
}
