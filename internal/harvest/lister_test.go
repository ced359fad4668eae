package harvest

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/spf13/afero"
)

func seedFiles(t *testing.T, fsys afero.Fs, files map[string]string) {
	t.Helper()
	for path, content := range files {
		if err := afero.WriteFile(fsys, path, []byte(content), 0o644); err != nil {
			t.Fatalf("writing %s: %v", path, err)
		}
	}
}

func TestFsLister_ListMatches(t *testing.T) {
	fsys := afero.NewMemMapFs()
	seedFiles(t, fsys, map[string]string{
		"/sb/docs/reviews/feature-demo-2.md":   "b",
		"/sb/docs/reviews/feature-demo-1.md":   "a",
		"/sb/docs/reviews/other-1.md":          "c",
		"/sb/docs/reviews/nested/deep/note.md": "d",
		"/sb/notes.txt":                        "e",
	})
	if err := fsys.MkdirAll("/sb/docs/reviews/feature-demo-dir.md", 0o755); err != nil {
		t.Fatal(err)
	}
	lister := FsLister{Fs: fsys}

	tests := []struct {
		name    string
		pattern string
		want    []string
		wantErr bool
	}{
		{
			name:    "star pattern sorted, directories skipped",
			pattern: "docs/reviews/feature-demo-*.md",
			want:    []string{"docs/reviews/feature-demo-1.md", "docs/reviews/feature-demo-2.md"},
		},
		{name: "no matches", pattern: "docs/reviews/missing-*.md", want: []string{}},
		{name: "leading dot slash", pattern: "./notes.txt", want: []string{"notes.txt"}},
		{
			name:    "double star",
			pattern: "docs/**/*.md",
			want: []string{
				"docs/reviews/feature-demo-1.md",
				"docs/reviews/feature-demo-2.md",
				"docs/reviews/nested/deep/note.md",
				"docs/reviews/other-1.md",
			},
		},
		{name: "double star zero dirs", pattern: "**/notes.txt", want: []string{"notes.txt"}},
		{
			name:    "alternation",
			pattern: "docs/reviews/{feature-demo-1,other-1}.md",
			want:    []string{"docs/reviews/feature-demo-1.md", "docs/reviews/other-1.md"},
		},
		{name: "star stays in one directory", pattern: "docs/*/note.md", want: []string{}},
		{name: "escapes root", pattern: "../etc/*", wantErr: true},
		{name: "absolute", pattern: "/etc/*", wantErr: true},
		{name: "malformed", pattern: "docs/[", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := lister.ListMatches("/sb", tt.pattern)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ListMatches(%q) = %v, want error", tt.pattern, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ListMatches(%q) error = %v", tt.pattern, err)
			}
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ListMatches(%q) = %v, want %v", tt.pattern, got, tt.want)
			}
		})
	}
}

func TestFsLister_MissingRoot(t *testing.T) {
	lister := FsLister{Fs: afero.NewMemMapFs()}
	for _, pattern := range []string{"*.md", "**/*.md"} {
		got, err := lister.ListMatches("/nowhere", pattern)
		if err != nil {
			t.Errorf("ListMatches(%q) error = %v", pattern, err)
		}
		if len(got) != 0 {
			t.Errorf("ListMatches(%q) = %v, want none", pattern, got)
		}
	}
}

func TestFsLister_SymlinksStayOutside(t *testing.T) {
	dir := t.TempDir()
	sandbox := filepath.Join(dir, "sb")
	outside := filepath.Join(dir, "outside")
	for _, d := range []string{filepath.Join(sandbox, "out"), outside} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	fsys := afero.NewOsFs()
	seedFiles(t, fsys, map[string]string{
		filepath.Join(dir, "outside-secret.txt"): "SECRET",
		filepath.Join(outside, "leak.md"):        "SECRET",
		filepath.Join(sandbox, "out", "real.md"): "report",
	})
	links := map[string]string{
		filepath.Join(sandbox, "out", "report.md"): filepath.Join("..", "..", "outside-secret.txt"),
		filepath.Join(sandbox, "linked"):           outside,
	}
	for link, target := range links {
		if err := os.Symlink(target, link); err != nil {
			t.Skipf("symlinks unavailable: %v", err)
		}
	}

	lister := FsLister{Fs: fsys}
	for _, pattern := range []string{"out/*.md", "**/*.md", "linked/*.md", "linked/**"} {
		t.Run(pattern, func(t *testing.T) {
			got, err := lister.ListMatches(sandbox, pattern)
			if err != nil {
				t.Fatalf("ListMatches(%q) error = %v", pattern, err)
			}
			for _, rel := range got {
				if rel != "out/real.md" {
					t.Errorf("ListMatches(%q) returned %s, which resolves outside the sandbox", pattern, rel)
				}
			}
		})
	}
}
