//go:build linux

// Package metrics exposes split rows and shm segments as Prometheus gauges,
// for node_exporter's textfile collector.
package metrics

import (
	"fmt"
	"strconv"

	"github.com/ja7ad/memstats/pkg/groups"
	"github.com/ja7ad/memstats/pkg/shm"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "memstats"

// Split is the rows of one splitter run.
type Split struct {
	By   string       `json:"by"`
	Rows []groups.Row `json:"rows"`
}

type groupMetric struct {
	desc  *prometheus.Desc
	value func(groups.Row) float64
}

func groupDesc(name, help string) *prometheus.Desc {
	return prometheus.NewDesc(prometheus.BuildFQName(namespace, "group", name), help, []string{"split", "group"}, nil)
}

func shmDesc(name, help string) *prometheus.Desc {
	return prometheus.NewDesc(prometheus.BuildFQName(namespace, "shm", name), help, []string{"key", "id"}, nil)
}

var groupMetrics = []groupMetric{
	{groupDesc("processes", "Number of processes in the group."), func(r groups.Row) float64 { return float64(r.Processes) }},
	{groupDesc("mem_rss_bytes", "Resident memory touched by the group, shm included."), func(r groups.Row) float64 { return float64(r.MemRSS) }},
	{groupDesc("mem_anon_bytes", "Resident anonymous memory of the group."), func(r groups.Row) float64 { return float64(r.MemAnon) }},
	{groupDesc("mem_uss_bytes", "Resident memory touched by no other group."), func(r groups.Row) float64 { return float64(r.MemUSS) }},
	{groupDesc("swap_rss_bytes", "Swapped memory of the group."), func(r groups.Row) float64 { return float64(r.SwapRSS) }},
	{groupDesc("swap_anon_bytes", "Swapped anonymous memory of the group."), func(r groups.Row) float64 { return float64(r.SwapAnon) }},
	{groupDesc("swap_uss_bytes", "Swapped memory referenced by no other group."), func(r groups.Row) float64 { return float64(r.SwapUSS) }},
	{groupDesc("shm_mem_bytes", "Resident size of the shm segments the group attaches."), func(r groups.Row) float64 { return float64(r.ShmMem) }},
	{groupDesc("shm_swap_bytes", "Swapped size of the shm segments the group attaches."), func(r groups.Row) float64 { return float64(r.ShmSwap) }},
}

var (
	shmSize   = shmDesc("size_bytes", "Size of the SysV segment.")
	shmRSS    = shmDesc("rss_bytes", "Resident size of the SysV segment.")
	shmSwap   = shmDesc("swap_bytes", "Swapped size of the SysV segment.")
	shmPages  = prometheus.NewDesc(prometheus.BuildFQName(namespace, "shm", "pages"), "Scanned pages of the SysV segment by page size.", []string{"key", "id", "size"}, nil)
	shmAttach = shmDesc("attached", "Number of processes attaching the SysV segment.")
)

// Collector reports a finished scan. It holds no live state.
type Collector struct {
	splits []Split
	shm    shm.Metadata
}

func NewCollector(splits []Split, meta shm.Metadata) *Collector {
	return &Collector{splits: splits, shm: meta}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range groupMetrics {
		ch <- m.desc
	}
	ch <- shmSize
	ch <- shmRSS
	ch <- shmSwap
	ch <- shmPages
	ch <- shmAttach
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.splits {
		for _, r := range s.Rows {
			for _, m := range groupMetrics {
				ch <- prometheus.MustNewConstMetric(m.desc, prometheus.GaugeValue, m.value(r), s.By, r.Group)
			}
		}
	}
	for id, e := range c.shm {
		key, sid := strconv.FormatInt(int64(id.Key), 10), strconv.FormatUint(id.ID, 10)
		ch <- prometheus.MustNewConstMetric(shmSize, prometheus.GaugeValue, float64(e.Segment.Size), key, sid)
		ch <- prometheus.MustNewConstMetric(shmRSS, prometheus.GaugeValue, float64(e.Segment.RSS), key, sid)
		ch <- prometheus.MustNewConstMetric(shmSwap, prometheus.GaugeValue, float64(e.Segment.Swap), key, sid)
		ch <- prometheus.MustNewConstMetric(shmAttach, prometheus.GaugeValue, float64(e.Segment.Nattch), key, sid)
		if e.Pages != nil {
			ch <- prometheus.MustNewConstMetric(shmPages, prometheus.GaugeValue, float64(e.Pages.Pages4K), key, sid, "4k")
			ch <- prometheus.MustNewConstMetric(shmPages, prometheus.GaugeValue, float64(e.Pages.Pages2M), key, sid, "2M")
		}
	}
}

// WriteTextfile writes the scan to path in the text exposition format.
func WriteTextfile(path string, splits []Split, meta shm.Metadata) error {
	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(NewCollector(splits, meta)); err != nil {
		return fmt.Errorf("register collector: %w", err)
	}
	return prometheus.WriteToTextfile(path, reg)
}
