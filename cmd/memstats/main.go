//go:build linux

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

type opts struct {
	// engine
	configPath   string
	memLimitMiB  uint64
	threads      int
	filter       string
	forceReadShm bool

	// splits
	splitEnv    string
	splitUID    bool
	splitPIDs   []string
	splitCustom []string
	splitCgroup bool

	// reports
	listProcesses  bool
	globalStats    bool
	instanceHelper string
	human          bool
	logLevel       string

	// outputs
	jsonPath string
	promPath string

	// db-info
	pid int
}

func main() {
	var o opts

	root := &cobra.Command{
		Use:   "memstats",
		Short: "Process memory attribution by group",
		Long: `The memstats tool attributes physical memory to groups of Linux processes.
It walks every process page table, resolves pages to physical frames and
reports per group the memory it touches (RSS) and the memory no other group
touches (USS), with SysV shared memory and huge pages accounted once per
segment.

Must run as root.

Examples:
  memstats single --filter 'not(uid(0))'
  memstats groups --split-uid --split-env ORACLE_SID
  memstats groups --split-custom 'descendants(1234),uid(1000)' --prom-textfile /var/lib/node_exporter/memstats.prom`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogger(o.logLevel)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&o.configPath, "config", "", "YAML config file; flags given explicitly override it")
	pf.Uint64Var(&o.memLimitMiB, "mem-limit", 0, "stop scanning when memstats RSS exceeds this many MiB (0 = half of MemAvailable)")
	pf.IntVar(&o.threads, "threads", 0, "workers collecting processes in groups mode (0 = half the CPUs)")
	pf.StringVar(&o.filter, "filter", "", "only scan processes matching this filter, e.g. 'and(uid(1000),not(comm(bash)))'")
	pf.BoolVar(&o.forceReadShm, "force-read-shm", false, "scan shm segments even when partly swapped (pulls them back into RAM)")
	pf.BoolVar(&o.listProcesses, "list-processes", false, "print the processes that will be scanned")
	pf.BoolVar(&o.globalStats, "global-stats", false, "print physical page statistics from /proc/kpageflags")
	pf.StringVar(&o.instanceHelper, "instance-helper", "", "command describing a database instance (default: this binary's db-info)")
	pf.BoolVar(&o.human, "human", false, "print sizes with binary units instead of MiB")
	pf.StringVar(&o.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	pf.StringVar(&o.jsonPath, "json", "", "write the report to a JSON file")
	pf.StringVar(&o.promPath, "prom-textfile", "", "write the report as Prometheus gauges to a textfile")

	single := &cobra.Command{
		Use:   "single",
		Short: "Fold every scanned process into one total",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd, o, modeSingle)
		},
	}

	grps := &cobra.Command{
		Use:   "groups",
		Short: "Split scanned processes into groups and report each",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd, o, modeGroups)
		},
	}
	grps.Flags().StringVar(&o.splitEnv, "split-env", "", "group by the value of this environment variable")
	grps.Flags().BoolVar(&o.splitUID, "split-uid", false, "group by owner")
	grps.Flags().StringSliceVar(&o.splitPIDs, "split-pids", nil, "split these PIDs (or a..b ranges) from the others")
	grps.Flags().StringArrayVar(&o.splitCustom, "split-custom", nil, "group by a chain of filters, first match wins; repeatable")
	grps.Flags().BoolVar(&o.splitCgroup, "split-cgroup", false, "group by memory cgroup")

	dbInfo := &cobra.Command{
		Use:    "db-info",
		Short:  "Print the instance record of the current environment as JSON",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInfo(cmd.OutOrStdout(), o.pid)
		},
	}
	dbInfo.Flags().IntVar(&o.pid, "pid", 0, "pid of the instance monitor process")
	_ = dbInfo.MarkFlagRequired("pid")

	root.AddCommand(single, grps, dbInfo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		slog.Error(err.Error())
		stop()
		os.Exit(1)
	}
}
