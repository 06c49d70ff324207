// Package dashboard renders a live terminal view of a running load test.
package dashboard

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/0x-wen/rlt/metrics"
)

// RunInfo holds load test parameters for display.
type RunInfo struct {
	Workload    string        // Workload name or target
	Concurrency int           // Number of workers
	Duration    time.Duration // Run duration (0 = unlimited)
	Iterations  int           // Iteration budget (0 = unlimited)
	Rate        float64       // Iterations per second (0 = unlimited)
	RateScope   string        // global or per-worker
	Arrival     string        // uniform or poisson
	Patterns    int           // Number of load patterns
	ConfigFile  string        // Path to config file if used
}

// SnapshotFunc returns the live statistics of a run.
type SnapshotFunc func() metrics.Summary

// Dashboard renders a live terminal UI for load test metrics.
type Dashboard struct {
	snapshot     SnapshotFunc
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownFunc func()
	wg           sync.WaitGroup
	mu           sync.Mutex

	// Widgets
	grid           *ui.Grid
	latencySparkle *widgets.SparklineGroup
	latencyPara    *widgets.Paragraph
	rateGauge      *widgets.Gauge
	statusList     *widgets.List
	workerList     *widgets.List
	summaryPara    *widgets.Paragraph
	metricsPara    *widgets.Paragraph
	errorKindsPara *widgets.Paragraph
	latencyHistory []float64
	peakRate       float64
	startTime      time.Time
	info           RunInfo
}

// New creates a new Dashboard. shutdownFunc is called when the user presses q or Ctrl-C.
func New(snapshot SnapshotFunc, info RunInfo, shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}

	d := newDashboard(snapshot, info, shutdownFunc)
	d.setupGrid()
	return d, nil
}

func newDashboard(snapshot SnapshotFunc, info RunInfo, shutdownFunc func()) *Dashboard {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dashboard{
		snapshot:       snapshot,
		ctx:            ctx,
		cancel:         cancel,
		shutdownFunc:   shutdownFunc,
		latencyHistory: make([]float64, 0, 100),
		startTime:      time.Now(),
		info:           info,
	}
	d.initWidgets()
	return d
}

// initWidgets initializes all dashboard widgets.
func (d *Dashboard) initWidgets() {
	sparkline := widgets.NewSparkline()
	sparkline.Title = "P99 latency (ms)"
	sparkline.LineColor = ui.ColorGreen
	sparkline.Data = []float64{0}

	d.latencySparkle = widgets.NewSparklineGroup(sparkline)
	d.latencySparkle.Title = "Real-time Latency"
	d.latencySparkle.BorderStyle.Fg = ui.ColorCyan

	d.latencyPara = widgets.NewParagraph()
	d.latencyPara.Title = "Latency Stats"
	d.latencyPara.Text = "Min: 0ms\nMean: 0ms\nP50: 0ms\nP90: 0ms\nP99: 0ms"
	d.latencyPara.BorderStyle.Fg = ui.ColorCyan

	d.rateGauge = widgets.NewGauge()
	d.rateGauge.Title = "Iterations Per Second"
	d.rateGauge.Percent = 0
	d.rateGauge.BarColor = ui.ColorBlue
	d.rateGauge.BorderStyle.Fg = ui.ColorCyan
	d.rateGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	d.statusList = widgets.NewList()
	d.statusList.Title = "Status Buckets"
	d.statusList.Rows = []string{"No failures"}
	d.statusList.TextStyle = ui.NewStyle(ui.ColorYellow)
	d.statusList.BorderStyle.Fg = ui.ColorCyan

	d.workerList = widgets.NewList()
	d.workerList.Title = "Workers"
	d.workerList.Rows = []string{"Awaiting data"}
	d.workerList.TextStyle = ui.NewStyle(ui.ColorCyan)
	d.workerList.BorderStyle.Fg = ui.ColorCyan

	d.summaryPara = widgets.NewParagraph()
	d.summaryPara.Title = "Test Summary"
	d.summaryPara.Text = "Initializing..."
	d.summaryPara.BorderStyle.Fg = ui.ColorCyan

	d.metricsPara = widgets.NewParagraph()
	d.metricsPara.Title = "Metrics"
	d.metricsPara.Text = "Waiting for data..."
	d.metricsPara.BorderStyle.Fg = ui.ColorCyan

	d.errorKindsPara = widgets.NewParagraph()
	d.errorKindsPara.Title = "Error Kinds"
	d.errorKindsPara.Text = "No errors"
	d.errorKindsPara.TextStyle = ui.NewStyle(ui.ColorGreen)
	d.errorKindsPara.BorderStyle.Fg = ui.ColorCyan
}

// setupGrid configures the layout grid.
func (d *Dashboard) setupGrid() {
	termWidth, termHeight := ui.TerminalDimensions()

	d.grid = ui.NewGrid()
	d.grid.SetRect(0, 0, termWidth, termHeight)

	d.grid.Set(
		ui.NewRow(0.14,
			ui.NewCol(1.0, d.summaryPara),
		),
		ui.NewRow(0.18,
			ui.NewCol(0.5, d.rateGauge),
			ui.NewCol(0.5, d.metricsPara),
		),
		ui.NewRow(0.26,
			ui.NewCol(0.65, d.latencySparkle),
			ui.NewCol(0.35, d.latencyPara),
		),
		ui.NewRow(0.14,
			ui.NewCol(1.0, d.errorKindsPara),
		),
		ui.NewRow(0.28,
			ui.NewCol(0.5, d.workerList),
			ui.NewCol(0.5, d.statusList),
		),
	)
}

// Start begins the dashboard update loop.
func (d *Dashboard) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop stops the dashboard and restores the terminal.
func (d *Dashboard) Stop() {
	d.cancel()
	d.wg.Wait()
	ui.Close()
	// Give terminal time to restore
	time.Sleep(100 * time.Millisecond)
}

func (d *Dashboard) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()

	d.render()

	for {
		select {
		case <-d.ctx.Done():
			for len(uiEvents) > 0 {
				<-uiEvents
			}
			return
		case e := <-uiEvents:
			select {
			case <-d.ctx.Done():
				return
			default:
			}

			switch e.ID {
			case "q", "<C-c>":
				if d.shutdownFunc != nil {
					d.shutdownFunc()
				}
				// Stop() cancels the context once the run has drained.
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				ui.Clear()
				d.render()
			}
		case <-ticker.C:
			d.apply(d.snapshot(), time.Since(d.startTime))
			d.render()
		}
	}
}

// apply refreshes all widget data from a snapshot.
func (d *Dashboard) apply(s metrics.Summary, elapsed time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if s.Iterations > 0 {
		d.latencyHistory = append(d.latencyHistory, s.Latency.P99Ms)
		if len(d.latencyHistory) > 100 {
			d.latencyHistory = d.latencyHistory[1:]
		}
		d.latencySparkle.Sparklines[0].Data = d.latencyHistory
		d.latencySparkle.Title = fmt.Sprintf(
			"Real-time Latency | P99: %.2fms | Min: %.2fms | Max: %.2fms",
			s.Latency.P99Ms,
			s.Latency.MinMs,
			s.Latency.MaxMs,
		)
	}

	d.rateGauge.Percent = d.gaugePercent(s.IterationsPerSec)
	d.rateGauge.Label = fmt.Sprintf("%.1f it/s", s.IterationsPerSec)

	successRate := 0.0
	if s.Iterations > 0 {
		successRate = (1 - s.ErrorRate) * 100
	}

	d.summaryPara.Text = fmt.Sprintf(
		"Workload: %s\n%s\nElapsed: %s | Iterations: %d | Success Rate: %.1f%%",
		d.info.Workload,
		d.formatRunParams(),
		elapsed.Round(time.Second),
		s.Iterations,
		successRate,
	)

	d.metricsPara.Text = fmt.Sprintf(
		"Iterations:        %d\nErrors:            %d\nItems:             %d\nBytes:             %d\nIterations/sec:    %.2f\nItems/sec:         %.2f\nBytes/sec:         %.2f\nWorker faults:     %d",
		s.Iterations,
		s.Errors,
		s.Items,
		s.Bytes,
		s.IterationsPerSec,
		s.ItemsPerSec,
		s.BytesPerSec,
		len(s.WorkerFaults),
	)

	d.latencyPara.Text = fmt.Sprintf(
		"Min:  %.2fms\nMean: %.2fms\nP50:  %.2fms\nP90:  %.2fms\nP99:  %.2fms",
		s.Latency.MinMs,
		s.Latency.MeanMs,
		s.Latency.P50Ms,
		s.Latency.P90Ms,
		s.Latency.P99Ms,
	)

	d.statusList.Rows = formatStatusListRows(s.Statuses)
	d.workerList.Rows = formatWorkerRows(s)
	d.errorKindsPara.Text = formatErrorKinds(s.ErrorKinds, 4)
}

// gaugePercent scales rate against the configured target, or the peak seen so far.
func (d *Dashboard) gaugePercent(rate float64) int {
	ceiling := d.info.Rate
	if ceiling <= 0 {
		if rate > d.peakRate {
			d.peakRate = rate
		}
		ceiling = d.peakRate
	}
	if ceiling <= 0 {
		return 0
	}
	pct := int(rate / ceiling * 100)
	if pct > 100 {
		pct = 100
	}
	return pct
}

func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	ui.Render(d.grid)
}

func formatWorkerRows(s metrics.Summary) []string {
	if len(s.Workers) == 0 {
		return []string{"[No worker data](fg:green)"}
	}
	rows := make([]string, 0, len(s.Workers))
	for _, ws := range s.Workers {
		share := 0.0
		if s.Iterations > 0 {
			share = float64(ws.Iterations) / float64(s.Iterations) * 100
		}
		state := "[ok](fg:green)"
		if ws.Faulted {
			state = "[faulted](fg:red)"
		}
		rows = append(rows, fmt.Sprintf("[#%d](fg:cyan) | %5.1f%% | %d it | busy %s | %s",
			ws.ID, share, ws.Iterations, ws.Busy.Round(time.Millisecond), state))
	}
	return rows
}

func formatErrorKinds(kinds map[string]int64, limit int) string {
	if len(kinds) == 0 {
		return "[No errors](fg:green)"
	}
	names := make([]string, 0, len(kinds))
	for name := range kinds {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if kinds[names[i]] == kinds[names[j]] {
			return names[i] < names[j]
		}
		return kinds[names[i]] > kinds[names[j]]
	})
	if limit > 0 && len(names) > limit {
		names = names[:limit]
	}
	lines := make([]string, 0, len(names))
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("  [%s:](fg:white) [%d](fg:yellow)", name, kinds[name]))
	}
	return strings.Join(lines, "\n")
}

func formatStatusListRows(buckets []metrics.StatusBucket) []string {
	rows := metrics.ErrorBuckets(buckets)
	if len(rows) == 0 {
		return []string{"[No failures](fg:green)"}
	}
	if len(rows) > 10 {
		rows = rows[:10]
	}
	formatted := make([]string, 0, len(rows))
	for _, row := range rows {
		formatted = append(formatted, fmt.Sprintf("[%s %d](fg:red) %d", strings.ToUpper(row.Kind), row.Code, row.Count))
	}
	return formatted
}

// formatRunParams formats the run configuration for display.
func (d *Dashboard) formatRunParams() string {
	var parts []string

	if d.info.Concurrency > 0 {
		parts = append(parts, fmt.Sprintf("Workers: %d", d.info.Concurrency))
	}

	if d.info.Rate > 0 {
		scope := d.info.RateScope
		if scope == "" {
			scope = "global"
		}
		parts = append(parts, fmt.Sprintf("Rate: %g/s (%s)", d.info.Rate, scope))
	} else if d.info.Patterns == 0 {
		parts = append(parts, "Rate: unlimited")
	}

	if d.info.Arrival != "" && d.info.Arrival != "uniform" {
		parts = append(parts, fmt.Sprintf("Arrival: %s", d.info.Arrival))
	}

	if d.info.Patterns > 0 {
		parts = append(parts, fmt.Sprintf("Load patterns: %d", d.info.Patterns))
	}

	if d.info.Duration > 0 {
		parts = append(parts, fmt.Sprintf("Duration: %s", d.info.Duration))
	}

	if d.info.Iterations > 0 {
		parts = append(parts, fmt.Sprintf("Iterations: %d", d.info.Iterations))
	}

	if d.info.ConfigFile != "" {
		parts = append(parts, fmt.Sprintf("Config: %s", d.info.ConfigFile))
	}

	return strings.Join(parts, " | ")
}
