// Package harvest decides which sandbox files are new deliverable output and
// copies them into the main workspace.
//
// A deliverable's source_glob is expanded against the sandbox root; each
// candidate is fingerprinted and compared with the deliverable's
// baseline_fingerprints. A candidate is changed when it has no recorded
// fingerprint or the recorded one differs. Listing paths in baseline without
// a fingerprint does not shield them: they are treated as new.
package harvest

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/gorewood/parallelus/internal/fingerprint"
	"github.com/gorewood/parallelus/internal/registry"
)

// Result is the outcome of matching one deliverable.
type Result struct {
	// NewPaths are the changed candidates, sorted, relative to the sandbox root.
	NewPaths []string
	// Fingerprints holds the current fingerprint of every candidate.
	Fingerprints map[string]string
}

// Matcher matches deliverables against a sandbox.
type Matcher struct {
	fs     afero.Fs
	engine fingerprint.Engine
	lister Lister
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithLister replaces the filesystem glob lister.
func WithLister(l Lister) Option {
	return func(m *Matcher) { m.lister = l }
}

// NewMatcher creates a Matcher reading sandbox files from fsys.
// A nil engine selects the content strategy.
func NewMatcher(fsys afero.Fs, engine fingerprint.Engine, opts ...Option) *Matcher {
	if engine == nil {
		engine = fingerprint.Content{}
	}
	m := &Matcher{fs: fsys, engine: engine, lister: FsLister{Fs: fsys}}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Engine returns the fingerprint engine in use.
func (m *Matcher) Engine() fingerprint.Engine {
	return m.engine
}

// Match expands the deliverable's glob under sandboxRoot and reports which
// candidates differ from the stored baseline. Zero candidates is not an error.
// The deliverable is not modified.
func (m *Matcher) Match(sandboxRoot string, d *registry.Deliverable) (Result, error) {
	result := Result{NewPaths: []string{}, Fingerprints: map[string]string{}}
	candidates, err := m.lister.ListMatches(sandboxRoot, d.SourceGlob)
	if err != nil {
		return result, fmt.Errorf("deliverable %s: %w", d.ID, err)
	}

	for _, rel := range candidates {
		current, err := m.engine.Fingerprint(m.fs, filepath.Join(sandboxRoot, filepath.FromSlash(rel)))
		if err != nil {
			return result, fmt.Errorf("deliverable %s: %w", d.ID, err)
		}
		if current == fingerprint.Absent {
			// Removed between listing and hashing.
			continue
		}
		result.Fingerprints[rel] = current
		if stored, ok := d.BaselineFingerprints[rel]; !ok || stored != current {
			result.NewPaths = append(result.NewPaths, rel)
		}
	}
	return result, nil
}

// Baseline snapshots the files already matching glob under root, so a
// deliverable seeded at launch does not report pre-existing files as output.
func (m *Matcher) Baseline(root, glob string) ([]string, map[string]string, error) {
	result, err := m.Match(root, &registry.Deliverable{ID: glob, SourceGlob: glob})
	if err != nil {
		return nil, nil, err
	}
	return result.NewPaths, result.Fingerprints, nil
}

// Collect copies the deliverable's changed files from sandboxRoot to the same
// relative path under workspaceRoot and records them in the baseline. It
// returns the copied paths. The deliverable becomes harvested once any file
// has been copied and stays harvested afterwards.
func (m *Matcher) Collect(sandboxRoot, workspaceRoot string, d *registry.Deliverable) ([]string, error) {
	result, err := m.Match(sandboxRoot, d)
	if err != nil {
		return nil, err
	}

	for _, rel := range result.NewPaths {
		if err := m.copyFile(sandboxRoot, workspaceRoot, rel); err != nil {
			return nil, fmt.Errorf("deliverable %s: %w", d.ID, err)
		}
	}

	if d.BaselineFingerprints == nil {
		d.BaselineFingerprints = make(map[string]string, len(result.Fingerprints))
	}
	for rel, fp := range result.Fingerprints {
		d.BaselineFingerprints[rel] = fp
	}
	d.AddBaseline(result.NewPaths...)
	if len(result.NewPaths) > 0 {
		d.Status = registry.DeliverableHarvested
	} else if d.Status == "" {
		d.Status = registry.DeliverableWaiting
	}
	return result.NewPaths, nil
}

func (m *Matcher) copyFile(sandboxRoot, workspaceRoot, rel string) error {
	if !filepath.IsLocal(filepath.FromSlash(rel)) || path.Clean(rel) != rel {
		return fmt.Errorf("refusing to copy non-local path %q", rel)
	}
	src := filepath.Join(sandboxRoot, filepath.FromSlash(rel))
	dst := filepath.Join(workspaceRoot, filepath.FromSlash(rel))
	if src == dst {
		return nil
	}
	data, err := afero.ReadFile(m.fs, src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s vanished before copy: %w", rel, err)
		}
		return fmt.Errorf("reading %s: %w", src, err)
	}
	if err := registry.WriteFileAtomic(m.fs, dst, data); err != nil {
		return fmt.Errorf("copying %s: %w", rel, err)
	}
	return nil
}
