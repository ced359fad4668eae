// Package registry defines the subagent registry document and its store.
//
// The registry is a single JSON array of Entry objects. Entries are appended
// at launch and afterwards only mutated; an entry is never removed, so the
// document doubles as the history of subagent activity.
package registry

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// State is the lifecycle state of an entry.
type State string

// Lifecycle states.
const (
	StateLaunching State = "launching"
	StateRunning   State = "running"
	StateVerified  State = "verified"
	StateAborted   State = "aborted"
	StateCleaned   State = "cleaned"
)

// abortedPrefix is the on-disk encoding of the aborted state.
const abortedPrefix = "aborted_"

// Status is an entry's lifecycle state plus the abort reason when the state
// is StateAborted. It is stored as a single string ("running",
// "aborted_timeout") for compatibility with existing registry documents.
type Status struct {
	State  State
	Reason string
}

// Running, Verified, Cleaned and Launching are the payload-free statuses.
var (
	Launching = Status{State: StateLaunching}
	Running   = Status{State: StateRunning}
	Verified  = Status{State: StateVerified}
	Cleaned   = Status{State: StateCleaned}
)

// Aborted returns the aborted status for reason.
func Aborted(reason string) Status {
	return Status{State: StateAborted, Reason: reason}
}

// String returns the on-disk form of the status.
func (s Status) String() string {
	if s.State == StateAborted {
		slug := reasonSlug(s.Reason)
		if slug == "" {
			return string(StateAborted)
		}
		return abortedPrefix + slug
	}
	return string(s.State)
}

// Terminal reports whether no further lifecycle transition except cleanup applies.
func (s Status) Terminal() bool {
	return s.State == StateAborted || s.State == StateCleaned
}

// reasonSlug folds whitespace so the reason fits a single status token.
func reasonSlug(reason string) string {
	return strings.Join(strings.Fields(reason), "-")
}

// ParseStatus parses the on-disk form of a status.
func ParseStatus(raw string) (Status, error) {
	switch State(raw) {
	case StateLaunching, StateRunning, StateVerified, StateCleaned:
		return Status{State: State(raw)}, nil
	case StateAborted:
		return Status{State: StateAborted}, nil
	}
	if reason, ok := strings.CutPrefix(raw, abortedPrefix); ok && reason != "" {
		return Aborted(reason), nil
	}
	return Status{}, fmt.Errorf("unknown status %q", raw)
}

// MarshalJSON implements json.Marshaler.
func (s Status) MarshalJSON() ([]byte, error) {
	if s.State == "" {
		return nil, fmt.Errorf("status has no state")
	}
	return json.Marshal(s.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("status must be a string: %w", err)
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// DeliverableStatus tracks whether a deliverable has been harvested.
type DeliverableStatus string

// Deliverable statuses. The aggregate Entry.DeliverablesStatus uses the same values.
const (
	DeliverableWaiting   DeliverableStatus = "waiting"
	DeliverableHarvested DeliverableStatus = "harvested"
)

// Deliverable is one expected output artifact of a subagent.
type Deliverable struct {
	ID                   string            `json:"id"`
	Kind                 string            `json:"kind,omitempty"`
	SourceGlob           string            `json:"source_glob"`
	Baseline             []string          `json:"baseline,omitempty"`
	BaselineFingerprints map[string]string `json:"baseline_fingerprints,omitempty"`
	Status               DeliverableStatus `json:"status"`
}

// AddBaseline records paths as known, keeping Baseline sorted and unique.
func (d *Deliverable) AddBaseline(paths ...string) {
	seen := make(map[string]bool, len(d.Baseline)+len(paths))
	merged := make([]string, 0, len(d.Baseline)+len(paths))
	for _, p := range append(append([]string{}, d.Baseline...), paths...) {
		if seen[p] {
			continue
		}
		seen[p] = true
		merged = append(merged, p)
	}
	sort.Strings(merged)
	d.Baseline = merged
}

// Entry is one subagent invocation.
type Entry struct {
	ID                 string            `json:"id"`
	Type               string            `json:"type"`
	Slug               string            `json:"slug"`
	Role               string            `json:"role,omitempty"`
	Status             Status            `json:"status"`
	Path               string            `json:"path"`
	ScopePath          string            `json:"scope_path,omitempty"`
	LogPath            string            `json:"log_path,omitempty"`
	LauncherKind       string            `json:"launcher_kind,omitempty"`
	LauncherHandle     map[string]string `json:"launcher_handle,omitempty"`
	SourceBranch       string            `json:"source_branch,omitempty"`
	SourceCommit       string            `json:"source_commit,omitempty"`
	Deliverables       []*Deliverable    `json:"deliverables,omitempty"`
	DeliverablesStatus DeliverableStatus `json:"deliverables_status,omitempty"`
	LaunchedAt         *time.Time        `json:"launched_at,omitempty"`
	VerifiedAt         *time.Time        `json:"verified_at,omitempty"`
	HarvestedAt        *time.Time        `json:"harvested_at,omitempty"`
	AbortedReason      string            `json:"aborted_reason,omitempty"`
	AbortedAt          *time.Time        `json:"aborted_at,omitempty"`
	CleanedAt          *time.Time        `json:"cleaned_at,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler. The status token only carries
// the slugged abort reason, so the verbatim aborted_reason is restored into
// Status when the two agree.
func (e *Entry) UnmarshalJSON(data []byte) error {
	type plain Entry
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*e = Entry(decoded)
	if e.Status.State == StateAborted && e.AbortedReason != "" &&
		reasonSlug(e.AbortedReason) == reasonSlug(e.Status.Reason) {
		e.Status.Reason = e.AbortedReason
	}
	return nil
}

// DeliverablesHarvested reports whether every deliverable has been harvested.
// An entry without deliverables has nothing left to retrieve.
func (e *Entry) DeliverablesHarvested() bool {
	for _, d := range e.Deliverables {
		if d.Status != DeliverableHarvested {
			return false
		}
	}
	return true
}

// HarvestedCount returns how many deliverables have been harvested.
func (e *Entry) HarvestedCount() int {
	n := 0
	for _, d := range e.Deliverables {
		if d.Status == DeliverableHarvested {
			n++
		}
	}
	return n
}

// RefreshDeliverablesStatus recomputes the aggregate deliverables_status.
func (e *Entry) RefreshDeliverablesStatus() {
	if e.DeliverablesHarvested() {
		e.DeliverablesStatus = DeliverableHarvested
		return
	}
	e.DeliverablesStatus = DeliverableWaiting
}

// Registry is the ordered collection of entries.
type Registry struct {
	Entries []*Entry
}

// Find returns the entry with id, or nil.
func (r *Registry) Find(id string) *Entry {
	for _, e := range r.Entries {
		if e.ID == id {
			return e
		}
	}
	return nil
}

// Append adds an entry. It fails if the id is empty or already present.
func (r *Registry) Append(e *Entry) error {
	if e.ID == "" {
		return fmt.Errorf("entry has no id")
	}
	if r.Find(e.ID) != nil {
		return fmt.Errorf("entry id %s already exists", e.ID)
	}
	r.Entries = append(r.Entries, e)
	return nil
}

// IDs returns entry ids in document order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.Entries))
	for i, e := range r.Entries {
		ids[i] = e.ID
	}
	return ids
}

func (r *Registry) validate() error {
	seen := make(map[string]bool, len(r.Entries))
	for i, e := range r.Entries {
		if e == nil {
			return fmt.Errorf("entry %d is null", i)
		}
		if e.ID == "" {
			return fmt.Errorf("entry %d has no id", i)
		}
		if seen[e.ID] {
			return fmt.Errorf("duplicate entry id %s", e.ID)
		}
		if e.Status.State == "" {
			return fmt.Errorf("entry %s has no status", e.ID)
		}
		seen[e.ID] = true
	}
	return nil
}
