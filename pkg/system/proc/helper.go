//go:build linux

package proc

import "strings"

func parseEnviron(vars []string) map[string]string {
	env := make(map[string]string, len(vars))
	for _, kv := range vars {
		if kv == "" {
			continue
		}
		k, v, _ := strings.Cut(kv, "=")
		if _, dup := env[k]; dup {
			continue
		}
		env[k] = v
	}
	return env
}

func permString(r, w, x, shared bool) string {
	b := []byte("---p")
	if r {
		b[0] = 'r'
	}
	if w {
		b[1] = 'w'
	}
	if x {
		b[2] = 'x'
	}
	if shared {
		b[3] = 's'
	}
	return string(b)
}
