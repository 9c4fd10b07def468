//go:build linux

// Package instance finds database instances by their monitor process and
// asks a helper, running as the instance owner, to describe them.
package instance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/ja7ad/memstats/pkg/system/proc"
)

const (
	EnvSID  = "ORACLE_SID"
	EnvHome = "ORACLE_HOME"
)

// MonitorPrefixes are the cmdline prefixes of instance monitor processes.
var MonitorPrefixes = []string{"ora_smon_", "asm_smon_"}

var ErrNoSID = errors.New("instance: ORACLE_SID is not set")

// Record describes one instance as reported by the helper.
type Record struct {
	PID        int    `json:"pid"`
	SID        string `json:"sid"`
	SGASize    uint64 `json:"sga_size"`
	LargePages string `json:"large_pages"`
	Processes  uint64 `json:"processes"`
	PGASize    uint64 `json:"pga_size"`
}

// Monitor is a monitor process with the context needed to query its
// instance.
type Monitor struct {
	PID  int
	UID  uint32
	SID  string
	Home string
}

// Process is what FindMonitors reads. *proc.Proc implements it.
type Process interface {
	PID() int
	Cmdline() ([]string, error)
	UID() (uint32, error)
	Environ() (map[string]string, error)
}

// FindMonitors returns the monitor processes among procs. A monitor has a
// single cmdline argument with a known prefix and both ORACLE_SID and
// ORACLE_HOME in its environment; unreadable processes are skipped.
func FindMonitors[P Process](procs []P) []Monitor {
	var out []Monitor
	for _, p := range procs {
		cmdline, err := p.Cmdline()
		if err != nil || len(cmdline) != 1 || !hasMonitorPrefix(cmdline[0]) {
			continue
		}
		slog.Info("found instance monitor", "pid", p.PID(), "cmd", cmdline[0])

		uid, err := p.UID()
		if err != nil {
			continue
		}
		env, err := p.Environ()
		if err != nil {
			continue
		}
		sid, okSID := env[EnvSID]
		home, okHome := env[EnvHome]
		if !okSID || !okHome {
			continue
		}
		out = append(out, Monitor{PID: p.PID(), UID: uid, SID: sid, Home: home})
	}
	return out
}

func hasMonitorPrefix(arg string) bool {
	for _, prefix := range MonitorPrefixes {
		if strings.HasPrefix(arg, prefix) {
			return true
		}
	}
	return false
}

// Describer reports the record of the instance behind m.
type Describer interface {
	Describe(ctx context.Context, m Monitor) (Record, error)
}

// Discover describes every monitor. Failures are aggregated and the
// remaining records returned sorted by descending SGA size.
func Discover(ctx context.Context, d Describer, monitors []Monitor) ([]Record, error) {
	var (
		merr    *multierror.Error
		records []Record
	)
	for _, m := range monitors {
		r, err := d.Describe(ctx, m)
		if err != nil {
			merr = multierror.Append(merr, fmt.Errorf("instance %s (pid %d): %w", m.SID, m.PID, err))
			continue
		}
		records = append(records, r)
	}
	slices.SortStableFunc(records, func(a, b Record) int {
		switch {
		case a.SGASize > b.SGASize:
			return -1
		case a.SGASize < b.SGASize:
			return 1
		default:
			return 0
		}
	})
	return records, merr.ErrorOrNil()
}

// Label maps each segment to the SIDs whose monitor process attaches it.
func Label(records []Record, maps func(pid int) ([]proc.Mapping, error)) map[proc.ShmID][]string {
	out := map[proc.ShmID][]string{}
	for _, r := range records {
		ms, err := maps(r.PID)
		if err != nil {
			slog.Debug("read monitor maps", "pid", r.PID, "sid", r.SID, "err", err)
			continue
		}
		seen := map[proc.ShmID]bool{}
		for _, m := range ms {
			if m.Kind != proc.SysV || seen[m.ShmID()] {
				continue
			}
			seen[m.ShmID()] = true
			out[m.ShmID()] = append(out[m.ShmID()], r.SID)
		}
	}
	return out
}
