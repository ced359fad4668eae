package lifecycle

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/gorewood/parallelus/internal/registry"
	"github.com/gorewood/parallelus/internal/sandbox"
)

// Row is the monitoring view of one entry.
type Row struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Slug         string         `json:"slug"`
	Status       string         `json:"status"`
	Running      bool           `json:"running"`
	Deliverables string         `json:"deliverables"`
	RunTime      time.Duration  `json:"run_time_ns"`
	LogAge       *time.Duration `json:"log_age_ns,omitempty"`
	LastLog      *time.Time     `json:"last_log,omitempty"`
	Handle       string         `json:"handle"`
	Path         string         `json:"path"`
}

// Rows summarises entries for status and monitoring. Cleaned entries are
// skipped unless all is set.
func (c *Controller) Rows(all bool) ([]Row, error) {
	entries, err := c.List()
	if err != nil {
		return nil, err
	}
	now := c.now().UTC()
	rows := make([]Row, 0, len(entries))
	for _, e := range entries {
		if !all && e.Status.State == registry.StateCleaned {
			continue
		}
		rows = append(rows, c.row(e, now))
	}
	return rows, nil
}

func (c *Controller) row(e *registry.Entry, now time.Time) Row {
	r := Row{
		ID:           e.ID,
		Type:         e.Type,
		Slug:         e.Slug,
		Status:       e.Status.String(),
		Running:      e.Status.State == registry.StateRunning,
		Deliverables: deliverableSummary(e),
		RunTime:      runTime(e, now),
		Handle:       handleLabel(e),
		Path:         e.Path,
	}
	logPath := e.LogPath
	if logPath == "" && e.Path != "" {
		logPath = filepath.Join(e.Path, sandbox.LogFile)
	}
	if logPath != "" {
		if info, err := c.fs.Stat(logPath); err == nil {
			mod := info.ModTime().UTC()
			age := max(now.Sub(mod), 0)
			r.LastLog = &mod
			r.LogAge = &age
		}
	}
	return r
}

func deliverableSummary(e *registry.Entry) string {
	if len(e.Deliverables) == 0 {
		return "-"
	}
	return fmt.Sprintf("%d/%d %s", e.HarvestedCount(), len(e.Deliverables), e.DeliverablesStatus)
}

// runTime is measured from launch to now while running, else to the latest
// recorded transition.
func runTime(e *registry.Entry, now time.Time) time.Duration {
	if e.LaunchedAt == nil {
		return 0
	}
	end := now
	if e.Status.State != registry.StateRunning {
		end = *e.LaunchedAt
		for _, t := range []*time.Time{e.VerifiedAt, e.AbortedAt, e.CleanedAt} {
			if t != nil && t.After(end) {
				end = *t
			}
		}
	}
	return max(end.Sub(*e.LaunchedAt), 0)
}

// handleLabel renders "pane/window" from current or legacy handle keys.
func handleLabel(e *registry.Entry) string {
	h := e.LauncherHandle
	pane := firstNonEmpty(h["pane"], h["pane_id"])
	window := firstNonEmpty(h["window"], h["window_id"])
	switch {
	case pane != "" && window != "":
		return pane + "/" + window
	case pane != "" || window != "":
		return pane + window
	case e.LauncherKind != "":
		return e.LauncherKind
	default:
		return "-"
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
