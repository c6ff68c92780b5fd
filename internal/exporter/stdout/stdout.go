// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package stdout

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/prometheus/procfs"
	"github.com/sustainable-computing-io/raplstat/internal/monitor"
	"github.com/sustainable-computing-io/raplstat/internal/service"
	"golang.org/x/term"
)

type (
	Initializer = service.Initializer
	Shutdowner  = service.Shutdowner
)

const (
	unknownCPU = "unknown CPU"

	// ANSI: move the cursor up n lines, then clear to the end of screen
	eraseLinesFmt = "\033[%dA\033[J"
)

// Exporter renders every monitor snapshot as a table
type Exporter struct {
	logger     *slog.Logger
	out        io.WriteCloser
	procfsPath string
	redraw     bool

	mu       sync.Mutex
	tty      bool
	cpuModel string
	lines    int // lines written by the previous table
	closed   bool
}

var (
	_ Initializer  = (*Exporter)(nil)
	_ Shutdowner   = (*Exporter)(nil)
	_ monitor.Sink = (*Exporter)(nil)
)

type Opts struct {
	logger     *slog.Logger
	out        io.WriteCloser
	procfsPath string
	redraw     bool
}

// DefaultOpts() returns a new Opts with defaults set
func DefaultOpts() Opts {
	return Opts{
		logger:     slog.Default(),
		out:        os.Stdout,
		procfsPath: "/proc",
		redraw:     true,
	}
}

// OptionFn is a function sets one more more options in Opts struct
type OptionFn func(*Opts)

// WithLogger sets the logger for the Exporter
func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) {
		o.logger = logger
	}
}

func WithOutput(out io.WriteCloser) OptionFn {
	return func(o *Opts) {
		o.out = out
	}
}

// WithProcFSPath sets the procfs mount used to look up the CPU model
func WithProcFSPath(path string) OptionFn {
	return func(o *Opts) {
		o.procfsPath = path
	}
}

// WithRedraw enables redrawing the table in place when the output is a
// terminal
func WithRedraw(enabled bool) OptionFn {
	return func(o *Opts) {
		o.redraw = enabled
	}
}

func NewExporter(applyOpts ...OptionFn) *Exporter {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}

	exporter := &Exporter{
		logger:     opts.logger.With("service", "stdout"),
		out:        opts.out,
		procfsPath: opts.procfsPath,
		redraw:     opts.redraw,
		cpuModel:   unknownCPU,
	}

	return exporter
}

func (e *Exporter) Init() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.tty = isTerminal(e.out)
	e.cpuModel = cpuModel(e.procfsPath, e.logger)
	e.logger.Debug("Initialized table output", "tty", e.tty, "redraw", e.redraw, "cpu", e.cpuModel)
	return nil
}

// isTerminal reports whether out is a file descriptor attached to a terminal
func isTerminal(out io.Writer) bool {
	f, ok := out.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// width returns the column count of the terminal, or 0 when unknown
func (e *Exporter) width() int {
	if !e.tty {
		return 0
	}
	f, ok := e.out.(interface{ Fd() uintptr })
	if !ok {
		return 0
	}
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return w
}

// screenLines counts the terminal rows taken by text, including lines
// wrapped at width. A width of 0 counts newlines only.
func screenLines(text []byte, width int) int {
	rows := 0
	for _, line := range strings.SplitAfter(string(text), "\n") {
		if line == "" {
			continue
		}
		rows++
		if width <= 0 {
			continue
		}
		if w := runewidth.StringWidth(strings.TrimSuffix(line, "\n")); w > width {
			rows += (w - 1) / width
		}
	}
	return rows
}

func cpuModel(procfsPath string, logger *slog.Logger) string {
	fs, err := procfs.NewFS(procfsPath)
	if err != nil {
		logger.Warn("Failed to open procfs", "path", procfsPath, "error", err)
		return unknownCPU
	}
	info, err := fs.CPUInfo()
	if err != nil || len(info) == 0 {
		logger.Warn("Failed to read cpuinfo", "path", procfsPath, "error", err)
		return unknownCPU
	}
	if model := strings.TrimSpace(info[0].ModelName); model != "" {
		return model
	}
	return unknownCPU
}

// Present writes the snapshot to the output, replacing the previous table
// when redrawing in place
func (e *Exporter) Present(snapshot *monitor.Snapshot) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return fmt.Errorf("output closed")
	}

	buf := &bytes.Buffer{}
	if e.redraw && e.tty && e.lines > 0 {
		fmt.Fprintf(buf, eraseLinesFmt, e.lines)
	}
	start := buf.Len()
	write(buf, e.cpuModel, snapshot)
	e.lines = screenLines(buf.Bytes()[start:], e.width())

	if _, err := e.out.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write table: %w", err)
	}
	return nil
}

func write(out io.Writer, cpu string, snapshot *monitor.Snapshot) {
	fmt.Fprintf(out, "%s  %s\n", snapshot.Timestamp.Format(time.DateTime), cpu)
	writeDomains(out, snapshot.Domains)
}

func writeDomains(out io.Writer, domains []monitor.DomainSnapshot) {
	rows := make([][]string, 0, len(domains))
	for _, d := range domains {
		rows = append(rows, domainRow(d))
	}

	table := tablewriter.NewWriter(out)
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Formatting.Alignment = tw.AlignRight
	})
	table.Header([]string{"Domain", "Power(W)", "Energy(Wh)", "Avg(W)", "Max(W)", "Status"})
	_ = table.Bulk(rows)
	_ = table.Render()
}

func domainRow(d monitor.DomainSnapshot) []string {
	status := "ok"
	if !d.Available {
		status = "stale"
	}

	power, avg, maxPower := "-", "-", "-"
	if d.HasPower() {
		power = watts(d.Power)
		avg = watts(d.AveragePower)
		maxPower = watts(d.MaxPower)
	}

	return []string{
		d.Name,
		power,
		fmt.Sprintf("%.6f", d.EnergyTotal.WattHours()),
		avg,
		maxPower,
		status,
	}
}

func watts(p monitor.Power) string {
	return fmt.Sprintf("%.3f", p.Watts())
}

func (e *Exporter) Shutdown() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	return e.out.Close()
}

// Name implements service.Name
func (e *Exporter) Name() string {
	return "stdout"
}
