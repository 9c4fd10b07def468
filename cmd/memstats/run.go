//go:build linux

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ja7ad/memstats/pkg/consumption"
	"github.com/ja7ad/memstats/pkg/filter"
	"github.com/ja7ad/memstats/pkg/groups"
	"github.com/ja7ad/memstats/pkg/instance"
	"github.com/ja7ad/memstats/pkg/metrics"
	"github.com/ja7ad/memstats/pkg/procinfo"
	"github.com/ja7ad/memstats/pkg/scan"
	"github.com/ja7ad/memstats/pkg/shm"
	"github.com/ja7ad/memstats/pkg/system/cgroup"
	"github.com/ja7ad/memstats/pkg/system/proc"
	"github.com/ja7ad/memstats/pkg/system/util"
	"github.com/ja7ad/memstats/pkg/tree"
	"github.com/ja7ad/memstats/pkg/types"
)

type mode int

const (
	modeSingle mode = iota
	modeGroups
)

type report struct {
	Host      string              `json:"host"`
	Kernel    string              `json:"kernel"`
	At        time.Time           `json:"time"`
	Config    *consumption.Config `json:"config"`
	PageStats []pageStat          `json:"page_stats,omitempty"`
	Instances []instance.Record   `json:"instances,omitempty"`
	Shm       []shmRow            `json:"shm,omitempty"`
	Scan      scan.Stats          `json:"scan"`
	Single    *consumption.Totals `json:"single,omitempty"`
	Splits    []metrics.Split     `json:"splits,omitempty"`
	SelfRSS   types.Bytes         `json:"self_rss"`
	SelfHWM   types.Bytes         `json:"self_hwm"`
}

type pageStat struct {
	Flag  string      `json:"flag"`
	Pages uint64      `json:"pages"`
	Size  types.Bytes `json:"size"`
}

type shmRow struct {
	Key     int32       `json:"key"`
	ID      uint64      `json:"id"`
	Size    types.Bytes `json:"size"`
	RSS     types.Bytes `json:"rss"`
	Swap    types.Bytes `json:"swap"`
	Pages4K *int        `json:"pages_4k"`
	Pages2M *int        `json:"pages_2m"`
	Used    float64     `json:"used_percent"`
	SIDs    []string    `json:"sids,omitempty"`
}

func setupLogger(level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("log level %q: %w", level, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
	return nil
}

// loadConfig reads the config file, then applies the flags given explicitly.
func loadConfig(cmd *cobra.Command, o opts) (*consumption.Config, error) {
	cfg := &consumption.Config{}
	if o.configPath != "" {
		c, err := consumption.LoadConfig(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = c
	}

	flags := cmd.Flags()
	if flags.Changed("mem-limit") {
		cfg.MemLimit = o.memLimitMiB << 20
	}
	if flags.Changed("threads") {
		cfg.Workers = o.threads
	}
	if flags.Changed("filter") {
		cfg.Filter = o.filter
	}
	if flags.Changed("force-read-shm") {
		cfg.ForceReadShm = o.forceReadShm
	}
	if flags.Changed("instance-helper") {
		cfg.InstanceHelper = o.instanceHelper
	}
	if flags.Changed("split-env") {
		cfg.SplitEnv = o.splitEnv
	}
	if flags.Changed("split-uid") {
		cfg.SplitUID = o.splitUID
	}
	if flags.Changed("split-cgroup") {
		cfg.SplitCgroup = o.splitCgroup
	}
	if flags.Changed("split-custom") {
		cfg.SplitCustom = o.splitCustom
	}
	if flags.Changed("split-pids") {
		cfg.SplitPIDs = o.splitPIDs
	}
	return cfg, nil
}

// splitters builds the chain in its fixed order: custom chains, uid, env,
// cgroup, pids. Without any, processes are split by uid.
func splitters(cfg *consumption.Config, t *tree.Tree) ([]groups.Splitter, error) {
	var out []groups.Splitter
	for _, expr := range cfg.SplitCustom {
		c, err := groups.NewCustom(expr, t)
		if err != nil {
			return nil, fmt.Errorf("split %q: %w", expr, err)
		}
		out = append(out, c)
	}
	if cfg.SplitUID {
		out = append(out, groups.UID{})
	}
	if cfg.SplitEnv != "" {
		out = append(out, groups.Env{Var: cfg.SplitEnv})
	}
	if cfg.SplitCgroup {
		out = append(out, groups.Cgroup{})
	}
	if len(cfg.SplitPIDs) > 0 {
		pids, err := util.ParsePIDs(cfg.SplitPIDs)
		if err != nil {
			return nil, fmt.Errorf("split pids: %w", err)
		}
		if !pids.Empty() {
			out = append(out, groups.PIDs{PIDs: pids})
		}
	}
	if len(out) == 0 {
		slog.Info("no split requested, splitting by uid")
		out = append(out, groups.UID{})
	}
	return out, nil
}

func run(ctx context.Context, cmd *cobra.Command, o opts, m mode) error {
	start := time.Now()

	if err := proc.RequireRoot(); err != nil {
		return err
	}
	fs, err := proc.NewFS(proc.DefaultRoot)
	if err != nil {
		return err
	}
	raw, err := loadConfig(cmd, o)
	if err != nil {
		return err
	}
	cfg, err := consumption.New(raw, fs.MemAvailable)
	if err != nil {
		return fmt.Errorf("memory limit: %w", err)
	}
	slog.Debug("config", "mem_limit_mib", cfg.MemLimit>>20, "workers", cfg.Workers, "force_read_shm", cfg.ForceReadShm)

	// parse everything user supplied before the long scans
	var match filter.Filter
	if cfg.Filter != "" {
		if match, err = filter.ParseAll(cfg.Filter); err != nil {
			return err
		}
	}

	ps := uint64(proc.PageSize())
	out := newPrinter(os.Stdout, o.human)

	host, kernel, cpus, mem := util.SystemSummary()
	fmt.Printf(_console, host, kernel, cpus, mem, start.Format("2006-01-02 15:04:05"))
	rep := &report{Host: host, Kernel: kernel, At: start, Config: cfg}

	segs, err := fs.ReadIOMem()
	if err != nil {
		return err
	}
	ram := proc.RAMRanges(segs, ps)
	kpf, err := fs.OpenKPageFlags()
	if err != nil {
		return err
	}
	defer func() {
		_ = kpf.Close()
	}()

	if o.globalStats {
		counts, err := kpf.Counters(ram)
		if err != nil {
			return err
		}
		rep.PageStats = pageStats(counts, ps)
		out.pageStats(rep.PageStats)
	}

	all, err := fs.AllProcs()
	if err != nil {
		return err
	}
	t := tree.New(all)
	procs, kernelCount := excludeKernel(all)
	slog.Info("processes listed", "total", len(all), "kernel", kernelCount)

	var chain []groups.Splitter
	if m == modeGroups {
		if chain, err = splitters(cfg, t); err != nil {
			return err
		}
	}

	rep.Instances = discoverInstances(ctx, cfg, procs)
	out.instances(rep.Instances)
	labels := instance.Label(rep.Instances, fs.Maps)

	shmScanner := &shm.Scanner{Memory: fs, Flags: proc.NewFlagTable(ram, kpf), PageSize: int(ps), ForceRead: cfg.ForceReadShm}
	meta, err := shmScanner.Build(fs)
	if meta == nil {
		return err
	}
	if err != nil {
		slog.Warn("some shm segments could not be scanned", "err", err)
	}
	rep.Shm = shmRows(meta, labels)
	out.shm(rep.Shm)

	if match != nil {
		before := len(procs)
		procs = filterProcs(procs, match, t)
		if len(procs) == 0 {
			slog.Warn("filter excluded all processes", "filter", match.String())
			return nil
		}
		slog.Info("filter applied", "excluded", before-len(procs), "remaining", len(procs))
	}
	if o.listProcesses {
		out.processes(procs)
	}

	version, _, err := cgroup.Detect()
	if err != nil {
		slog.Debug("cgroup detection", "err", err)
	}
	collector := &procinfo.Collector{Memory: fs, Shm: meta, PageSize: int(ps), CgroupVersion: version}
	scanner := scan.New(collector, scan.Options{
		MemLimit: cfg.MemLimit,
		Workers:  cfg.Workers,
		SelfPID:  os.Getpid(),
		SelfRSS:  fs.SelfRSS,
	})
	handles := make([]procinfo.Process, len(procs))
	for i, p := range procs {
		handles[i] = p
	}

	switch m {
	case modeSingle:
		acc := consumption.NewAccumulator(ps)
		rep.Scan = scanner.Single(ctx, handles, acc)
		totals := acc.Totals()
		rep.Single = &totals
		out.scanned(rep.Scan)
		out.totals(totals)
		rep.Splits = append(rep.Splits, metrics.Split{By: "single", Rows: []groups.Row{singleRow(totals)}})

	case modeGroups:
		infos, st := scanner.Groups(ctx, handles)
		rep.Scan = st
		out.scanned(st)
		for _, s := range chain {
			split := s.Split(infos)
			rows := split.Rows(meta, ps)
			out.split(split.By, rows)
			rep.Splits = append(rep.Splits, metrics.Split{By: split.By, Rows: rows})
			infos = split.Collect()
		}
	}

	finalize(rep, fs, scanner, cfg, start)
	return writeOutputs(o, rep, meta)
}

// excludeKernel drops kernel threads, which have an empty cmdline.
// Unreadable processes are kept; the collector counts them as vanished.
func excludeKernel(all []*proc.Proc) ([]*proc.Proc, int) {
	out := make([]*proc.Proc, 0, len(all))
	kernel := 0
	for _, p := range all {
		if cmd, err := p.Cmdline(); err == nil && len(cmd) == 0 {
			kernel++
			continue
		}
		out = append(out, p)
	}
	return out, kernel
}

func filterProcs(procs []*proc.Proc, f filter.Filter, t *tree.Tree) []*proc.Proc {
	out := procs[:0:0]
	for _, p := range procs {
		if filter.Eval(f, p, t) {
			out = append(out, p)
		}
	}
	return out
}

func discoverInstances(ctx context.Context, cfg *consumption.Config, procs []*proc.Proc) []instance.Record {
	monitors := instance.FindMonitors(procs)
	if len(monitors) == 0 {
		slog.Info("no database instance found")
		return nil
	}

	var d instance.Command
	if fields := strings.Fields(cfg.InstanceHelper); len(fields) > 0 {
		d = instance.Command{Path: fields[0], Args: fields[1:]}
	} else {
		self, err := instance.SelfCommand()
		if err != nil {
			slog.Warn("can't locate own executable for instance discovery", "err", err)
			return nil
		}
		d = self
	}

	records, err := instance.Discover(ctx, d, monitors)
	if err != nil {
		slog.Warn("can't describe some database instances", "err", err)
	}
	return records
}

func pageStats(counts [len(proc.FlagNames)]uint64, pageSize uint64) []pageStat {
	out := make([]pageStat, 0, len(counts))
	for i, n := range counts {
		out = append(out, pageStat{Flag: proc.FlagNames[i], Pages: n, Size: types.Bytes(n * pageSize)})
	}
	return out
}

func shmRows(meta shm.Metadata, labels map[proc.ShmID][]string) []shmRow {
	entries := meta.BySize()
	out := make([]shmRow, 0, len(entries))
	for _, e := range entries {
		s := e.Segment
		r := shmRow{
			Key:  s.Key,
			ID:   s.ID,
			Size: types.Bytes(s.Size),
			RSS:  types.Bytes(s.RSS),
			Swap: types.Bytes(s.Swap),
			Used: shm.UsedPercent(s),
			SIDs: labels[s.Identity()],
		}
		if e.Pages != nil {
			p4k, p2m := e.Pages.Pages4K, e.Pages.Pages2M
			r.Pages4K, r.Pages2M = &p4k, &p2m
		}
		out = append(out, r)
	}
	return out
}

// singleRow reports the single fold as one group, which owns all it touches.
func singleRow(t consumption.Totals) groups.Row {
	return groups.Row{
		Group:     "all",
		Processes: t.Processes,
		MemRSS:    t.MemRSS,
		MemAnon:   t.MemAnon,
		MemUSS:    t.MemRSS,
		SwapRSS:   t.SwapRSS,
		SwapAnon:  t.SwapAnon,
		SwapUSS:   t.SwapRSS,
		ShmMem:    t.ShmMem,
		ShmSwap:   t.ShmSwap,
		PTE:       t.PTE,
		FDs:       t.FDs,
	}
}

func finalize(rep *report, fs *proc.FS, scanner *scan.Scanner, cfg *consumption.Config, start time.Time) {
	if self, err := fs.Self(); err == nil {
		if st, err := self.Status(); err == nil {
			rep.SelfRSS, rep.SelfHWM = types.Bytes(st.RSS), types.Bytes(st.HWM)
		}
	}
	if scanner.HitLimit() {
		slog.Warn("hit memory limit, results are partial", "limit_mib", cfg.MemLimit>>20)
	}
	if rep.Scan.Interrupted {
		slog.Warn("interrupted, results are partial")
	}
	fmt.Printf("memstats RSS %s, HWM %s, finished in %s\n",
		rep.SelfRSS.Humanized(), rep.SelfHWM.Humanized(), time.Since(start).Round(time.Millisecond))
}

func writeOutputs(o opts, rep *report, meta shm.Metadata) error {
	var errs []error
	if o.jsonPath != "" {
		errs = append(errs, writeJSON(o.jsonPath, rep))
	}
	if o.promPath != "" {
		if err := os.MkdirAll(filepath.Dir(o.promPath), 0o755); err != nil {
			errs = append(errs, err)
		} else {
			errs = append(errs, metrics.WriteTextfile(o.promPath, rep.Splits, meta))
		}
	}
	return errors.Join(errs...)
}

func writeJSON(path string, rep *report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}

func runDBInfo(w io.Writer, pid int) error {
	// the database refuses OS authentication as root
	if os.Geteuid() == 0 {
		return errors.New("db-info must run as the instance owner, not root")
	}
	r, err := instance.RecordFromEnv(pid, os.Getenv)
	if err != nil {
		return err
	}
	return json.NewEncoder(w).Encode(r)
}

const _console = `memstats - Process Memory Attribution Tool

* GitHub: https://github.com/ja7ad/memstats

       Host: %s
       Kernel: %s
       CPUs: %s
       Mem: %s

Memory report as of %s:

`
