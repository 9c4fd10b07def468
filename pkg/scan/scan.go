//go:build linux

// Package scan drives the collection of process info, either folded into
// one running set (single) or kept per process for splitting (groups).
//
// Both modes re-read the scanner's own RSS before every process and stop
// admitting work once it exceeds the configured ceiling.
package scan

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ja7ad/memstats/pkg/consumption"
	"github.com/ja7ad/memstats/pkg/procinfo"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

// Collector turns a live process into a snapshot.
type Collector interface {
	Collect(p procinfo.Process) (*procinfo.Info, error)
}

// Options configure a Scanner.
type Options struct {
	// MemLimit is the ceiling on SelfRSS in bytes, 0 disables it.
	MemLimit uint64
	// Workers bounds concurrent collection in groups mode.
	Workers int
	// SelfPID is skipped in groups mode.
	SelfPID int
	// SelfRSS reads the scanner's current resident size in bytes.
	SelfRSS func() (uint64, error)
	Logger  *slog.Logger
}

// Stats summarize one scan pass.
type Stats struct {
	Listed      int           `json:"listed"`
	Scanned     int           `json:"scanned"`
	Vanished    int           `json:"vanished"`
	Kernel      int           `json:"kernel"`
	HitLimit    bool          `json:"hit_limit"`
	Interrupted bool          `json:"interrupted"`
	Elapsed     time.Duration `json:"elapsed"`
}

type Scanner struct {
	collector Collector
	opts      Options

	hit      atomic.Bool
	scanned  atomic.Int64
	vanished atomic.Int64
	kernel   atomic.Int64
}

func New(c Collector, opts Options) *Scanner {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Scanner{collector: c, opts: opts}
}

// overLimit re-reads SelfRSS and reports whether the ceiling is exceeded.
// The first breach is logged once, whichever worker sees it.
func (s *Scanner) overLimit() bool {
	if s.hit.Load() {
		return true
	}
	if s.opts.MemLimit == 0 || s.opts.SelfRSS == nil {
		return false
	}
	rss, err := s.opts.SelfRSS()
	if err != nil {
		s.opts.Logger.Debug("read self rss", "err", err)
		return false
	}
	if rss <= s.opts.MemLimit {
		return false
	}
	if s.hit.CAS(false, true) {
		s.opts.Logger.Warn("hit memory limit, try increasing limit or filtering processes",
			"limit_mib", s.opts.MemLimit>>20, "rss_mib", rss>>20)
	}
	return true
}

// HitLimit reports whether any scan of s stopped on the memory ceiling.
func (s *Scanner) HitLimit() bool { return s.hit.Load() }

func (s *Scanner) collect(p procinfo.Process) *procinfo.Info {
	info, err := s.collector.Collect(p)
	switch {
	case errors.Is(err, procinfo.ErrKernelProcess):
		s.kernel.Inc()
		return nil
	case err != nil:
		s.opts.Logger.Debug("process vanished", "pid", p.PID(), "err", err)
		s.vanished.Inc()
		return nil
	}
	s.scanned.Inc()
	return info
}

func (s *Scanner) stats(ctx context.Context, listed int, start time.Time) Stats {
	return Stats{
		Listed:      listed,
		Scanned:     int(s.scanned.Swap(0)),
		Vanished:    int(s.vanished.Swap(0)),
		Kernel:      int(s.kernel.Swap(0)),
		HitLimit:    s.hit.Load(),
		Interrupted: ctx.Err() != nil,
		Elapsed:     time.Since(start),
	}
}

// Groups collects every process concurrently and returns the snapshots in
// listing order. Collection stops admitting processes when ctx is done or
// the memory ceiling is hit; work already started completes.
func (s *Scanner) Groups(ctx context.Context, procs []procinfo.Process) ([]*procinfo.Info, Stats) {
	start := time.Now()
	results := make([]*procinfo.Info, len(procs))

	var g errgroup.Group
	g.SetLimit(s.opts.Workers)
	for i, p := range procs {
		if ctx.Err() != nil || s.hit.Load() {
			break
		}
		i, p := i, p
		g.Go(func() error {
			if ctx.Err() != nil || s.overLimit() {
				return nil
			}
			if p.PID() == s.opts.SelfPID {
				return nil
			}
			results[i] = s.collect(p)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]*procinfo.Info, 0, len(procs))
	for _, info := range results {
		if info != nil {
			out = append(out, info)
		}
	}
	return out, s.stats(ctx, len(procs), start)
}

// Single folds processes one at a time into acc.
func (s *Scanner) Single(ctx context.Context, procs []procinfo.Process, acc *consumption.Accumulator) Stats {
	start := time.Now()
	for _, p := range procs {
		if ctx.Err() != nil || s.overLimit() {
			break
		}
		if info := s.collect(p); info != nil {
			acc.Add(info)
		}
	}
	return s.stats(ctx, len(procs), start)
}
