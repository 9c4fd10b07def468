package filter

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrParse is matched by every parse failure.
var ErrParse = errors.New("filter: parse error")

// Parse parses one filter expression from the start of s and returns it with
// the number of characters it consumed. Trailing input is left to the caller.
func Parse(s string) (Filter, int, error) {
	if err := checkASCII(s); err != nil {
		return nil, 0, err
	}
	return parse([]rune(s))
}

// ParseAll parses s as one expression. Unconsumed trailing input is logged
// and ignored.
func ParseAll(s string) (Filter, error) {
	f, ate, err := Parse(s)
	if err != nil {
		return nil, err
	}
	if n := len([]rune(s)); ate != n {
		slog.Warn("filter not fully consumed", "filter", s, "consumed", ate, "length", n)
	}
	return f, nil
}

// MustParse is like ParseAll but panics on error. Intended for tests and
// package-level filters.
func MustParse(s string) Filter {
	f, err := ParseAll(s)
	if err != nil {
		panic(err)
	}
	return f
}

// Named is a filter together with the source text it was parsed from.
type Named struct {
	Name   string
	Filter Filter
}

// ParseChain parses filters written one after the other, each separated from
// the next by a single character: "uid(0),comm(sshd)". Names are the source
// text of each filter.
func ParseChain(s string) ([]Named, error) {
	if err := checkASCII(s); err != nil {
		return nil, err
	}
	in := []rune(s)
	var out []Named
	counter := 0
	for {
		f, ate, err := parse(in[counter:])
		if err != nil {
			return nil, errors.Wrapf(err, "invalid filter %q", string(in[counter:]))
		}
		out = append(out, Named{Name: string(in[counter : counter+ate]), Filter: f})
		counter += ate
		if counter+1 > len(in) {
			break
		}
		counter++
	}
	return out, nil
}

func checkASCII(s string) error {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return errors.Wrapf(ErrParse, "filter must be ASCII: %q", s)
		}
	}
	return nil
}

// matchParen returns the index of the parenthesis closing the one at open.
func matchParen(in []rune, open int) (int, error) {
	depth := 0
	for i := open; i < len(in); i++ {
		switch in[i] {
		case '(':
			depth++
		case ')':
			depth--
		}
		if depth < 0 {
			return 0, errors.Wrap(ErrParse, "too many closing parenthesis")
		}
		if depth == 0 {
			return i, nil
		}
	}
	return 0, errors.Wrapf(ErrParse, "unbalanced parenthesis in %q", string(in))
}

func parse(in []rune) (Filter, int, error) {
	open := -1
	for i, r := range in {
		if r == '(' {
			open = i
			break
		}
	}
	if open < 0 {
		return nil, 0, errors.Wrapf(ErrParse, "missing opening parenthesis in %q", string(in))
	}
	name := string(in[:open])

	closing, err := matchParen(in, open)
	if err != nil {
		return nil, 0, err
	}
	inner := in[open+1 : closing]
	ate := closing + 1

	switch name {
	case "and", "or":
		var children []Filter
		for from := 0; ; {
			child, n, err := parse(inner[from:])
			if err != nil {
				return nil, 0, errors.Wrapf(err, "can't parse %q", string(inner[from:]))
			}
			children = append(children, child)
			from += n + 1
			if from > len(inner) {
				break
			}
		}
		if name == "and" {
			return And(children), ate, nil
		}
		return Or(children), ate, nil

	case "not":
		child, n, err := parse(inner)
		if err != nil {
			return nil, 0, err
		}
		if n < len(inner) {
			slog.Warn("ignored trailing garbage in not()", "garbage", string(inner[n:]))
		}
		return Not{Inner: child}, ate, nil

	case "descendants":
		pid, err := strconv.Atoi(string(inner))
		if err != nil {
			return nil, 0, errors.Wrapf(ErrParse, "argument of 'descendants' must be a number, got %q", string(inner))
		}
		return Descendants(pid), ate, nil

	case "pid":
		pid, err := strconv.Atoi(string(inner))
		if err != nil {
			return nil, 0, errors.Wrapf(ErrParse, "argument of 'pid' must be a number, got %q", string(inner))
		}
		return PID(pid), ate, nil

	case "uid":
		uid, err := strconv.ParseUint(string(inner), 10, 32)
		if err != nil {
			return nil, 0, errors.Wrapf(ErrParse, "argument of 'uid' must be a number, got %q", string(inner))
		}
		return UID(uid), ate, nil

	case "comm":
		return Comm(string(inner)), ate, nil

	case "env_kv":
		k, v, ok := strings.Cut(string(inner), ",")
		if !ok {
			return nil, 0, errors.Wrapf(ErrParse, "missing value for env_kv(%s)", string(inner))
		}
		return EnvKeyValue{Key: strings.TrimSpace(k), Value: strings.TrimSpace(v)}, ate, nil

	case "env_k":
		return EnvKey(string(inner)), ate, nil

	case "true":
		return True{}, ate, nil

	case "false":
		return False{}, ate, nil

	default:
		return nil, 0, errors.Wrapf(ErrParse, "unknown filter %q", name)
	}
}
