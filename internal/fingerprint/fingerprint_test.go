package fingerprint

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
)

func writeFile(t *testing.T, fsys afero.Fs, path, content string) {
	t.Helper()
	if err := afero.WriteFile(fsys, path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		strategy string
		want     string
		wantErr  bool
	}{
		{strategy: "", want: StrategyContent},
		{strategy: "blake3", want: StrategyContent},
		{strategy: "stat", want: StrategyStat},
		{strategy: "md5", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.strategy, func(t *testing.T) {
			engine, err := New(tt.strategy)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if engine.Name() != tt.want {
				t.Errorf("Name() = %q, want %q", engine.Name(), tt.want)
			}
		})
	}
}

func TestContent_Sensitivity(t *testing.T) {
	fsys := afero.NewMemMapFs()
	engine := Content{}
	writeFile(t, fsys, "/sb/review.md", "Decision: approved\n")

	first, err := engine.Fingerprint(fsys, "/sb/review.md")
	if err != nil {
		t.Fatalf("Fingerprint() error = %v", err)
	}
	if !strings.HasPrefix(first, "blake3:") {
		t.Errorf("fingerprint %q missing blake3 prefix", first)
	}

	again, err := engine.Fingerprint(fsys, "/sb/review.md")
	if err != nil {
		t.Fatalf("Fingerprint() error = %v", err)
	}
	if again != first {
		t.Errorf("unchanged content gave %q then %q", first, again)
	}

	writeFile(t, fsys, "/sb/review.md", "Decision: changes requested\n")
	changed, err := engine.Fingerprint(fsys, "/sb/review.md")
	if err != nil {
		t.Fatalf("Fingerprint() error = %v", err)
	}
	if changed == first {
		t.Error("changed content produced the same fingerprint")
	}
}

func TestContent_IgnoresMtime(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "/sb/a.md", "same")
	before, _ := Content{}.Fingerprint(fsys, "/sb/a.md")

	later := time.Now().Add(time.Hour)
	if err := fsys.Chtimes("/sb/a.md", later, later); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	after, _ := Content{}.Fingerprint(fsys, "/sb/a.md")
	if before != after {
		t.Errorf("touch changed content fingerprint: %q -> %q", before, after)
	}
}

func TestStat_Format(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "/sb/a.md", "12345")
	mtime := time.Date(2026, 2, 7, 16, 0, 0, 0, time.UTC)
	if err := fsys.Chtimes("/sb/a.md", mtime, mtime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	got, err := Stat{}.Fingerprint(fsys, "/sb/a.md")
	if err != nil {
		t.Fatalf("Fingerprint() error = %v", err)
	}
	want := "file:5:1770480000000000000"
	if got != want {
		t.Errorf("Fingerprint() = %q, want %q", got, want)
	}
}

func TestAbsent(t *testing.T) {
	fsys := afero.NewMemMapFs()
	for _, engine := range []Engine{Content{}, Stat{}} {
		got, err := engine.Fingerprint(fsys, "/missing.md")
		if err != nil {
			t.Fatalf("%s: Fingerprint() error = %v", engine.Name(), err)
		}
		if got != Absent {
			t.Errorf("%s: Fingerprint(missing) = %q, want %q", engine.Name(), got, Absent)
		}
	}
}

func TestStrategiesNeverCollide(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "/a", "x")
	content, _ := Content{}.Fingerprint(fsys, "/a")
	stat, _ := Stat{}.Fingerprint(fsys, "/a")
	if content == stat {
		t.Error("content and stat fingerprints compare equal")
	}
}
