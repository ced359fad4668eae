// Package fingerprint computes content-derived identifiers for sandbox files.
//
// A fingerprint is a string whose prefix names the strategy that produced it
// ("blake3:" or "file:"). Fingerprints from different strategies never compare
// equal, so a baseline recorded under one strategy is re-harvested once and
// then re-recorded under the current one.
package fingerprint

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strconv"

	"github.com/spf13/afero"
	"github.com/zeebo/blake3"
)

// Absent is the fingerprint of a path that does not exist.
// No strategy produces it for a real file.
const Absent = "absent"

// Strategy names accepted by New.
const (
	StrategyContent = "blake3"
	StrategyStat    = "stat"
)

// Engine produces fingerprints for files on a filesystem.
// Implementations are pure functions of the file state at call time.
type Engine interface {
	Name() string
	Fingerprint(fsys afero.Fs, path string) (string, error)
}

// New returns the engine for a strategy name. An empty name selects the
// content strategy.
func New(strategy string) (Engine, error) {
	switch strategy {
	case "", StrategyContent:
		return Content{}, nil
	case StrategyStat:
		return Stat{}, nil
	default:
		return nil, fmt.Errorf("unknown fingerprint strategy %q (want %q or %q)",
			strategy, StrategyContent, StrategyStat)
	}
}

// Content fingerprints a file by the BLAKE3 digest of its bytes.
type Content struct{}

// Name implements Engine.
func (Content) Name() string { return StrategyContent }

// Fingerprint streams the file through BLAKE3 and returns "blake3:<hex>".
func (Content) Fingerprint(fsys afero.Fs, path string) (string, error) {
	file, err := fsys.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Absent, nil
		}
		return "", fmt.Errorf("opening %s for fingerprint: %w", path, err)
	}
	defer file.Close() //nolint:errcheck // read-only

	hasher := blake3.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return StrategyContent + ":" + hex.EncodeToString(hasher.Sum(nil)), nil
}

// Stat fingerprints a file by size and modification time. Cheaper than
// Content but blind to same-size rewrites within the mtime resolution.
type Stat struct{}

// Name implements Engine.
func (Stat) Name() string { return StrategyStat }

// Fingerprint returns "file:<size>:<mtime unix nanos>".
func (Stat) Fingerprint(fsys afero.Fs, path string) (string, error) {
	info, err := fsys.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Absent, nil
		}
		return "", fmt.Errorf("stat %s for fingerprint: %w", path, err)
	}
	return "file:" + strconv.FormatInt(info.Size(), 10) + ":" +
		strconv.FormatInt(info.ModTime().UnixNano(), 10), nil
}
