//go:build linux

package proc

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"
)

// DefaultRoot is the procfs mount point.
const DefaultRoot = procfs.DefaultMountPoint

// PageSize returns the system memory page size in bytes.
// It first checks an env override (PAGE_SIZE) to ease testing,
// then falls back to os.Getpagesize().
func PageSize() int {
	if ps := os.Getenv("PAGE_SIZE"); ps != "" {
		if v, _ := strconv.Atoi(ps); v > 0 {
			return v
		}
	}
	return os.Getpagesize()
}

// RequireRoot fails with ErrNotRoot unless the effective uid is 0.
func RequireRoot() error {
	if unix.Geteuid() != 0 {
		return ErrNotRoot
	}
	return nil
}

// FS is the snapshot source: every reader the attribution engine needs,
// rooted at one procfs mount.
type FS struct {
	root string
	fs   procfs.FS
}

// NewFS opens the procfs mounted at root ("" means /proc).
func NewFS(root string) (*FS, error) {
	if root == "" {
		root = DefaultRoot
	}
	fs, err := procfs.NewFS(root)
	if err != nil {
		return nil, fmt.Errorf("proc: open %s: %w", root, err)
	}
	return &FS{root: root, fs: fs}, nil
}

// Root returns the procfs mount point.
func (f *FS) Root() string { return f.root }

func (f *FS) path(elem ...string) string {
	return filepath.Join(append([]string{f.root}, elem...)...)
}

// AllProcs lists every process currently visible. Failing to list /proc is
// fatal for a scan, so the error is returned as is.
func (f *FS) AllProcs() ([]*Proc, error) {
	ps, err := f.fs.AllProcs()
	if err != nil {
		return nil, fmt.Errorf("proc: list processes: %w", err)
	}
	out := make([]*Proc, 0, len(ps))
	for _, p := range ps {
		out = append(out, &Proc{pid: p.PID, root: f.root, p: p})
	}
	return out, nil
}

// Proc returns a handle on pid.
func (f *FS) Proc(pid int) (*Proc, error) {
	p, err := f.fs.Proc(pid)
	if err != nil {
		return nil, err
	}
	return &Proc{pid: pid, root: f.root, p: p}, nil
}

// Self returns a handle on the running process.
func (f *FS) Self() (*Proc, error) {
	return f.Proc(os.Getpid())
}

// SelfRSS returns the resident set size of the running process in bytes.
// It is re-read on every call.
func (f *FS) SelfRSS() (uint64, error) {
	self, err := f.fs.Self()
	if err != nil {
		return 0, err
	}
	st, err := self.NewStatus()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNoRSS, err)
	}
	return st.VmRSS, nil
}

// MemAvailable returns MemAvailable from /proc/meminfo in bytes.
func (f *FS) MemAvailable() (uint64, error) {
	mi, err := f.fs.Meminfo()
	if err != nil {
		return 0, fmt.Errorf("proc: meminfo: %w", err)
	}
	if mi.MemAvailable == nil {
		return 0, ErrNoMemAvailable
	}
	return *mi.MemAvailable * 1024, nil
}

// Proc is a handle on one /proc/<pid> entry. It carries no cached state:
// every accessor re-reads procfs, and any failure means the process is gone
// or unreadable.
type Proc struct {
	pid  int
	root string
	p    procfs.Proc
}

func (p *Proc) PID() int { return p.pid }

// Cmdline returns the argv of the process. Kernel threads have none.
func (p *Proc) Cmdline() ([]string, error) { return p.p.CmdLine() }

// Comm returns the command name from /proc/<pid>/comm.
func (p *Proc) Comm() (string, error) { return p.p.Comm() }

// UID returns the real owner of the process, taken from the owner of its
// /proc directory.
func (p *Proc) UID() (uint32, error) {
	var st unix.Stat_t
	if err := unix.Stat(filepath.Join(p.root, strconv.Itoa(p.pid)), &st); err != nil {
		return 0, err
	}
	return st.Uid, nil
}

// Environ returns the process environment as a map. A variable without
// '=' maps to the empty string.
func (p *Proc) Environ() (map[string]string, error) {
	vars, err := p.p.Environ()
	if err != nil {
		return nil, err
	}
	return parseEnviron(vars), nil
}

// PPID returns the parent PID from /proc/<pid>/stat.
func (p *Proc) PPID() (int, error) {
	st, err := p.p.Stat()
	if err != nil {
		return 0, err
	}
	return st.PPID, nil
}

// Status holds the /proc/<pid>/status fields the engine reports, in bytes.
type Status struct {
	RSS     uint64
	HWM     uint64
	RSSAnon uint64
	PTE     uint64
	Swap    uint64
}

func (p *Proc) Status() (Status, error) {
	st, err := p.p.NewStatus()
	if err != nil {
		return Status{}, err
	}
	return Status{
		RSS:     st.VmRSS,
		HWM:     st.VmHWM,
		RSSAnon: st.RssAnon,
		PTE:     st.VmPTE,
		Swap:    st.VmSwap,
	}, nil
}

// FDCount returns the number of open file descriptors.
func (p *Proc) FDCount() (int, error) { return p.p.FileDescriptorsLen() }

// Cgroups returns the cgroup membership lines of the process.
func (p *Proc) Cgroups() ([]procfs.Cgroup, error) { return p.p.Cgroups() }
