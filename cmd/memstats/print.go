//go:build linux

package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/term"

	"github.com/ja7ad/memstats/pkg/consumption"
	"github.com/ja7ad/memstats/pkg/groups"
	"github.com/ja7ad/memstats/pkg/instance"
	"github.com/ja7ad/memstats/pkg/scan"
	"github.com/ja7ad/memstats/pkg/system/proc"
	"github.com/ja7ad/memstats/pkg/types"
)

type printer struct {
	w     io.Writer
	human bool
	width int
}

func newPrinter(f *os.File, human bool) *printer {
	p := &printer{w: f, human: human}
	if fd := int(f.Fd()); term.IsTerminal(fd) {
		if w, _, err := term.GetSize(fd); err == nil {
			p.width = w
		}
	}
	return p
}

func (p *printer) size(b types.Bytes) string {
	if p.human {
		return b.Humanized()
	}
	return strconv.FormatUint(b.MiB(), 10)
}

func (p *printer) title(s string) string {
	if p.human {
		return s
	}
	return s + " (MiB)"
}

// table returns a writer whose columns from rightFrom on are right aligned.
func (p *printer) table(title string, rightFrom int, header ...any) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(p.w)
	t.SetStyle(table.StyleLight)
	t.SetTitle(title)
	t.AppendHeader(table.Row(header))
	if p.width > 0 {
		t.SetAllowedRowLength(p.width)
	}
	var cfgs []table.ColumnConfig
	for i := rightFrom; i <= len(header); i++ {
		cfgs = append(cfgs, table.ColumnConfig{Number: i, Align: text.AlignRight})
	}
	t.SetColumnConfigs(cfgs)
	return t
}

func (p *printer) pageStats(stats []pageStat) {
	t := p.table(p.title("Physical pages by flag"), 2, "FLAG", "PAGES", "SIZE")
	for _, s := range stats {
		t.AppendRow(table.Row{s.Flag, s.Pages, p.size(s.Size)})
	}
	t.Render()
	fmt.Fprintln(p.w)
}

func (p *printer) instances(records []instance.Record) {
	if len(records) == 0 {
		return
	}
	t := p.table(p.title("Database instances"), 2, "SID", "SGA", "PGA", "PROCESSES", "LARGE_PAGES")
	for _, r := range records {
		t.AppendRow(table.Row{r.SID, p.size(types.Bytes(r.SGASize)), p.size(types.Bytes(r.PGASize)), r.Processes, r.LargePages})
	}
	t.Render()
	fmt.Fprintln(p.w)
}

func (p *printer) shm(rows []shmRow) {
	if len(rows) == 0 {
		fmt.Fprintln(p.w, "No shared memory segment")
		fmt.Fprintln(p.w)
		return
	}
	t := p.table(p.title("Shared memory segments"), 1, "KEY", "ID", "SIZE", "RSS", "4K/2M", "SWAP", "USED%", "SID")
	for _, r := range rows {
		pages := "-/-"
		if r.Pages4K != nil {
			pages = fmt.Sprintf("%d/%d", *r.Pages4K, *r.Pages2M)
		}
		t.AppendRow(table.Row{
			r.Key, r.ID, p.size(r.Size), p.size(r.RSS), pages, p.size(r.Swap),
			fmt.Sprintf("%.2f", r.Used), strings.Join(r.SIDs, " "),
		})
	}
	t.Render()
	fmt.Fprintln(p.w)
}

func (p *printer) processes(procs []*proc.Proc) {
	t := p.table("Processes to scan", 1, "UID", "PID", "COMM")
	for _, pr := range procs {
		uid, err := pr.UID()
		if err != nil {
			continue
		}
		comm, err := pr.Comm()
		if err != nil {
			continue
		}
		t.AppendRow(table.Row{uid, pr.PID(), comm})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 2, Align: text.AlignRight},
	})
	t.Render()
	fmt.Fprintln(p.w)
}

func (p *printer) scanned(st scan.Stats) {
	fmt.Fprintf(p.w, "Scanned %d processes in %s (%d vanished, %d kernel)\n\n",
		st.Scanned, st.Elapsed.Round(time.Millisecond), st.Vanished, st.Kernel)
}

func (p *printer) totals(t consumption.Totals) {
	tw := p.table(p.title("All scanned processes"), 2, "", "SIZE")
	tw.AppendRows([]table.Row{
		{"mem RSS", p.size(t.MemRSS)},
		{"mem anon", p.size(t.MemAnon)},
		{"swap RSS", p.size(t.SwapRSS)},
		{"swap anon", p.size(t.SwapAnon)},
		{"shm mem", p.size(t.ShmMem)},
		{"shm swap", p.size(t.ShmSwap)},
		{"page tables", p.size(t.PTE)},
	})
	tw.AppendFooter(table.Row{"processes", t.Processes})
	tw.Render()
	fmt.Fprintln(p.w)
}

func (p *printer) split(by string, rows []groups.Row) {
	t := p.table(p.title("Process groups by "+by), 2,
		"GROUP", "#PROCS", "RSS", "ANON", "USS", "SWAP RSS", "SWAP ANON", "SWAP USS", "SHM MEM", "SHM SWAP")
	for _, r := range rows {
		t.AppendRow(table.Row{
			r.Group, r.Processes,
			p.size(r.MemRSS), p.size(r.MemAnon), p.size(r.MemUSS),
			p.size(r.SwapRSS), p.size(r.SwapAnon), p.size(r.SwapUSS),
			p.size(r.ShmMem), p.size(r.ShmSwap),
		})
	}
	t.Render()
	fmt.Fprintln(p.w)
}
