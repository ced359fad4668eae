// Package monitor watches running subagents and stops when one needs the
// operator: its log has gone quiet for longer than the heartbeat threshold
// (marked "!") or it has run longer than the runtime threshold (marked "^").
// It also stops once nothing is running.
//
// The registry directory is watched with fsnotify so launches and cleanups
// are noticed immediately; a ticker re-evaluates log ages in between.
package monitor

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/gorewood/parallelus/internal/lifecycle"
)

// Default thresholds and poll interval.
const (
	DefaultHeartbeat = 3 * time.Minute
	DefaultRuntime   = 10 * time.Minute
	DefaultInterval  = 30 * time.Second
)

// Outcome says whether monitoring should continue.
type Outcome int

// Outcomes.
const (
	Continue  Outcome = iota // subagents running, none over a threshold
	Idle                     // nothing running
	Attention                // a running subagent crossed a threshold
)

// Thresholds bound log silence and total run time. Zero disables a check.
type Thresholds struct {
	Heartbeat time.Duration
	Runtime   time.Duration
}

// Alert flags a running subagent that crossed a threshold.
type Alert struct {
	ID        string `json:"id"`
	Heartbeat bool   `json:"heartbeat"`
	Runtime   bool   `json:"runtime"`
}

// Marker returns "!" for a heartbeat alert, "^" for a runtime alert, or both.
func (a Alert) Marker() string {
	m := ""
	if a.Heartbeat {
		m += "!"
	}
	if a.Runtime {
		m += "^"
	}
	return m
}

// Report is one evaluation of the registry.
type Report struct {
	Rows    []lifecycle.Row `json:"rows"`
	Alerts  []Alert         `json:"alerts"`
	Running int             `json:"running"`
	Outcome Outcome         `json:"-"`
}

// AlertFor returns the alert for id, if any.
func (r Report) AlertFor(id string) (Alert, bool) {
	for _, a := range r.Alerts {
		if a.ID == id {
			return a, true
		}
	}
	return Alert{}, false
}

// Evaluate applies the thresholds to rows. A running subagent that has never
// written its log is judged on run time against the heartbeat threshold.
func Evaluate(rows []lifecycle.Row, th Thresholds) Report {
	report := Report{Rows: rows, Alerts: []Alert{}}
	for _, row := range rows {
		if !row.Running {
			continue
		}
		report.Running++
		alert := Alert{ID: row.ID}
		if th.Runtime > 0 && row.RunTime > th.Runtime {
			alert.Runtime = true
		}
		if th.Heartbeat > 0 {
			quiet := row.RunTime
			if row.LogAge != nil {
				quiet = *row.LogAge
			}
			alert.Heartbeat = quiet > th.Heartbeat
		}
		if alert.Heartbeat || alert.Runtime {
			report.Alerts = append(report.Alerts, alert)
		}
	}
	switch {
	case report.Running == 0:
		report.Outcome = Idle
	case len(report.Alerts) > 0:
		report.Outcome = Attention
	default:
		report.Outcome = Continue
	}
	return report
}

// Source supplies the current status rows.
type Source interface {
	Rows(all bool) ([]lifecycle.Row, error)
}

// Monitor re-evaluates the registry until an outcome other than Continue.
type Monitor struct {
	source        Source
	registryPath  string
	thresholds    Thresholds
	interval      time.Duration
	maxIterations int
	onReport      func(Report)
	logger        *slog.Logger
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithThresholds sets the alert thresholds.
func WithThresholds(th Thresholds) Option { return func(m *Monitor) { m.thresholds = th } }

// WithInterval sets the poll interval. Non-positive values keep the default.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithMaxIterations stops after n evaluations even if subagents are healthy.
func WithMaxIterations(n int) Option { return func(m *Monitor) { m.maxIterations = n } }

// WithReportFunc registers a callback invoked after every evaluation.
func WithReportFunc(fn func(Report)) Option { return func(m *Monitor) { m.onReport = fn } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

// New creates a Monitor over source, watching the registry at registryPath.
func New(source Source, registryPath string, opts ...Option) *Monitor {
	m := &Monitor{
		source:       source,
		registryPath: filepath.Clean(registryPath),
		thresholds:   Thresholds{Heartbeat: DefaultHeartbeat, Runtime: DefaultRuntime},
		interval:     DefaultInterval,
		onReport:     func(Report) {},
		logger:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run evaluates immediately, then again on every registry change and tick,
// returning the first report whose outcome is not Continue.
func (m *Monitor) Run(ctx context.Context) (Report, error) {
	events, closeWatch := m.watch()
	defer closeWatch()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	var last Report
	for iteration := 1; ; iteration++ {
		rows, err := m.source.Rows(false)
		if err != nil {
			return last, err
		}
		last = Evaluate(rows, m.thresholds)
		m.onReport(last)
		m.logger.Debug("monitor evaluated", "running", last.Running, "alerts", len(last.Alerts))
		if last.Outcome != Continue {
			return last, nil
		}
		if m.maxIterations > 0 && iteration >= m.maxIterations {
			return last, nil
		}

		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-ticker.C:
		case <-events:
		}
	}
}

// watch returns a channel that fires when the registry file changes. If the
// watcher cannot be set up the channel never fires and polling carries on.
func (m *Monitor) watch() (<-chan struct{}, func()) {
	changed := make(chan struct{}, 1)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		m.logger.Warn("registry watch unavailable, polling only", "error", err)
		return changed, func() {}
	}
	if err := watcher.Add(filepath.Dir(m.registryPath)); err != nil {
		m.logger.Warn("registry watch unavailable, polling only", "path", m.registryPath, "error", err)
		_ = watcher.Close()
		return changed, func() {}
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				if filepath.Clean(event.Name) != m.registryPath {
					continue
				}
				select {
				case changed <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				m.logger.Warn("registry watch error", "error", err)
			}
		}
	}()
	return changed, func() {
		close(done)
		_ = watcher.Close()
	}
}
