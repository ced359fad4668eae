package sandbox

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
)

type fakeWorktrees struct {
	fs        afero.Fs
	added     []string
	removed   []string
	addErr    error
	removeErr error
}

func (f *fakeWorktrees) AddWorktree(_ context.Context, path, _ string) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.added = append(f.added, path)
	return afero.WriteFile(f.fs, filepath.Join(path, "README.md"), []byte("checkout"), 0o644)
}

func (f *fakeWorktrees) RemoveWorktree(_ context.Context, path string) error {
	f.removed = append(f.removed, path)
	if f.removeErr != nil {
		return f.removeErr
	}
	return f.fs.RemoveAll(path)
}

func newTestManager(t *testing.T) (*Manager, afero.Fs, *fakeWorktrees) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	wt := &fakeWorktrees{fs: fsys}
	if err := afero.WriteFile(fsys, "/ws/docs/scopes/review.md", []byte("# Scope"), 0o644); err != nil {
		t.Fatal(err)
	}
	return NewManager(fsys, "/ws", "", wt, nil), fsys, wt
}

func TestManager_CreateThrowaway(t *testing.T) {
	m, fsys, wt := newTestManager(t)

	path, err := m.Create(context.Background(), Request{
		ID: "20260207-160000-ab12cd34", Slug: "senior-review", Type: TypeThrowaway,
		ScopePath: "docs/scopes/review.md",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	want := "/ws/.parallelus/subagents/sandboxes/senior-review-20260207-160000-ab12cd34"
	if path != want {
		t.Errorf("path = %q, want %q", path, want)
	}
	scope, err := afero.ReadFile(fsys, filepath.Join(path, ScopeFile))
	if err != nil || string(scope) != "# Scope" {
		t.Errorf("scope copy = %q, %v", scope, err)
	}
	if len(wt.added) != 0 {
		t.Errorf("throwaway sandbox created a worktree: %v", wt.added)
	}
	if _, err := m.Create(context.Background(), Request{ID: "20260207-160000-ab12cd34", Slug: "senior-review", Type: TypeThrowaway}); err == nil {
		t.Error("Create() reused an existing sandbox directory")
	}
}

func TestManager_CreateWorktree(t *testing.T) {
	m, fsys, wt := newTestManager(t)

	path, err := m.Create(context.Background(), Request{ID: "1", Slug: "impl", Type: TypeWorktree, Commit: "abc"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if len(wt.added) != 1 || wt.added[0] != path {
		t.Errorf("worktrees added = %v", wt.added)
	}
	if ok, _ := afero.Exists(fsys, filepath.Join(path, "README.md")); !ok {
		t.Error("worktree checkout missing")
	}
}

func TestManager_CreateRejects(t *testing.T) {
	m, _, wt := newTestManager(t)
	wt.addErr = errors.New("not a repository")

	tests := []struct {
		name string
		req  Request
	}{
		{name: "unknown type", req: Request{ID: "1", Slug: "s", Type: "container"}},
		{name: "slug with separator", req: Request{ID: "1", Slug: "a/b", Type: TypeThrowaway}},
		{name: "missing scope", req: Request{ID: "1", Slug: "s", Type: TypeThrowaway, ScopePath: "nope.md"}},
		{name: "worktree failure", req: Request{ID: "2", Slug: "s", Type: TypeWorktree}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, err := m.Create(context.Background(), tt.req)
			if err == nil {
				t.Fatalf("Create() = %q, want error", path)
			}
			if m.Exists(m.PathFor(tt.req)) {
				t.Error("failed Create() left a sandbox behind")
			}
		})
	}
}

func TestManager_Remove(t *testing.T) {
	m, fsys, wt := newTestManager(t)
	ctx := context.Background()

	throwaway, err := m.Create(ctx, Request{ID: "1", Slug: "a", Type: TypeThrowaway})
	if err != nil {
		t.Fatal(err)
	}
	_ = afero.WriteFile(fsys, filepath.Join(throwaway, LogFile), []byte("done\n"), 0o644)
	if err := m.Remove(ctx, TypeThrowaway, throwaway); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if m.Exists(throwaway) {
		t.Error("throwaway sandbox still exists")
	}

	worktree, err := m.Create(ctx, Request{ID: "2", Slug: "b", Type: TypeWorktree})
	if err != nil {
		t.Fatal(err)
	}
	wt.removeErr = errors.New("worktree is locked")
	if err := m.Remove(ctx, TypeWorktree, worktree); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if m.Exists(worktree) || len(wt.removed) != 1 {
		t.Errorf("worktree removal: exists=%v removed=%v", m.Exists(worktree), wt.removed)
	}

	if err := m.Remove(ctx, TypeThrowaway, throwaway); err != nil {
		t.Errorf("Remove() of a missing sandbox error = %v", err)
	}
}

func TestManager_RemoveRefusesDangerousPaths(t *testing.T) {
	m, _, _ := newTestManager(t)
	for _, path := range []string{"", "relative/dir", "/", "/ws", "/ws/", "/"} {
		if err := m.Remove(context.Background(), TypeThrowaway, path); err == nil {
			t.Errorf("Remove(%q) succeeded, want refusal", path)
		}
	}
}

func TestManager_RemoveFailureIsReported(t *testing.T) {
	base := afero.NewMemMapFs()
	if err := base.MkdirAll("/ws/.parallelus/subagents/sandboxes/x-1", 0o755); err != nil {
		t.Fatal(err)
	}
	m := NewManager(afero.NewReadOnlyFs(base), "/ws", "", nil, nil)
	if err := m.Remove(context.Background(), TypeThrowaway, "/ws/.parallelus/subagents/sandboxes/x-1"); err == nil {
		t.Fatal("Remove() on a read-only filesystem succeeded")
	}
}
