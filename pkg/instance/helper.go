//go:build linux

package instance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// Helper environment carrying the values db-info reports. They are set by
// whatever wraps the database query.
const (
	EnvSGASize    = "MEMSTATS_SGA_SIZE"
	EnvPGASize    = "MEMSTATS_PGA_SIZE"
	EnvProcesses  = "MEMSTATS_PROCESSES"
	EnvLargePages = "MEMSTATS_LARGE_PAGES"
)

// Command runs a helper as the monitor's owner with the instance
// environment and decodes one Record from its stdout. The monitor pid is
// passed as "--pid <pid>" after Args.
type Command struct {
	Path string
	Args []string
}

// SelfCommand runs this executable's db-info subcommand.
func SelfCommand() (Command, error) {
	exe, err := os.Executable()
	if err != nil {
		return Command{}, err
	}
	return Command{Path: exe, Args: []string{"db-info"}}, nil
}

func (c Command) Describe(ctx context.Context, m Monitor) (Record, error) {
	args := append(append([]string{}, c.Args...), "--pid", strconv.Itoa(m.PID))
	cmd := exec.CommandContext(ctx, c.Path, args...)
	cmd.Env = []string{
		"LD_LIBRARY_PATH=" + filepath.Join(m.Home, "lib"),
		EnvSID + "=" + m.SID,
		EnvHome + "=" + m.Home,
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Credential: &syscall.Credential{Uid: m.UID, Gid: primaryGID(m.UID)},
	}

	out, err := cmd.Output()
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return Record{}, fmt.Errorf("helper %s: %w: %s", c.Path, err, strings.TrimSpace(string(ee.Stderr)))
		}
		return Record{}, fmt.Errorf("helper %s: %w", c.Path, err)
	}

	var r Record
	if err := json.Unmarshal(out, &r); err != nil {
		return Record{}, fmt.Errorf("decode helper output: %w", err)
	}
	return r, nil
}

func primaryGID(uid uint32) uint32 {
	u, err := user.LookupId(strconv.FormatUint(uint64(uid), 10))
	if err != nil {
		return uint32(os.Getgid())
	}
	gid, err := strconv.ParseUint(u.Gid, 10, 32)
	if err != nil {
		return uint32(os.Getgid())
	}
	return uint32(gid)
}

// RecordFromEnv builds the record db-info prints for pid.
func RecordFromEnv(pid int, getenv func(string) string) (Record, error) {
	sid := getenv(EnvSID)
	if sid == "" {
		return Record{}, ErrNoSID
	}
	r := Record{PID: pid, SID: sid, LargePages: getenv(EnvLargePages)}
	for key, dst := range map[string]*uint64{
		EnvSGASize:   &r.SGASize,
		EnvPGASize:   &r.PGASize,
		EnvProcesses: &r.Processes,
	} {
		v := getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return Record{}, fmt.Errorf("instance: %s=%q: %w", key, v, err)
		}
		*dst = n
	}
	return r, nil
}
