package harvest

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
)

// Lister expands a glob pattern relative to root. Results are slash-separated
// paths relative to root, regular files only, in lexicographic order.
type Lister interface {
	ListMatches(root, pattern string) ([]string, error)
}

// FsLister lists matches on an afero filesystem using doublestar syntax:
// "*" stays within a directory and "**" matches zero or more directories.
// Symlinks are never followed, so a match always lives inside root.
type FsLister struct {
	Fs afero.Fs
}

// ListMatches implements Lister.
func (l FsLister) ListMatches(root, pattern string) ([]string, error) {
	pattern = strings.TrimPrefix(filepath.ToSlash(pattern), "./")
	if pattern == "" {
		return nil, nil
	}
	if path.IsAbs(pattern) || pattern == ".." || strings.HasPrefix(pattern, "../") {
		return nil, fmt.Errorf("glob %q must stay inside the sandbox", pattern)
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid glob %q: %w", pattern, doublestar.ErrBadPattern)
	}

	base, _ := doublestar.SplitPattern(pattern)
	sandboxFS := afero.NewIOFS(afero.NewBasePathFs(l.Fs, root))

	var matches []string
	err := fs.WalkDir(sandboxFS, ".", func(rel string, d fs.DirEntry, err error) error {
		if err != nil {
			if rel == "." && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() {
			if rel != "." && !onBasePath(rel, base) {
				return fs.SkipDir
			}
			return nil
		}
		// Symlinks report their own type here; only plain files qualify.
		if !d.Type().IsRegular() {
			return nil
		}
		ok, err := doublestar.Match(pattern, rel)
		if err != nil {
			return err
		}
		if ok {
			matches = append(matches, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("expanding %q under %s: %w", pattern, root, err)
	}
	sort.Strings(matches)
	return matches, nil
}

// onBasePath reports whether dir is worth descending for a pattern whose
// literal prefix is base: dir is an ancestor of base, base itself, or below it.
func onBasePath(dir, base string) bool {
	if base == "." || dir == base {
		return true
	}
	return strings.HasPrefix(base, dir+"/") || strings.HasPrefix(dir, base+"/")
}
