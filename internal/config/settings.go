package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// File names and locations.
const (
	FileName             = "subagents.yaml"
	WorkspaceConfigPath  = "parallelus/engine/" + FileName
	DefaultRegistryPath  = "parallelus/manuals/subagent-registry.json"
	RegistryEnvVar       = "SUBAGENT_REGISTRY_FILE"
	DefaultLaunchCommand = "codex"
)

// Duplicate launch policies.
const (
	DuplicateReject = "reject"
	DuplicateAllow  = "allow"
)

// DeliverableTemplate declares a deliverable seeded into entries at launch.
// SourceGlob may reference {branch_slug}, {slug} and {id}.
type DeliverableTemplate struct {
	ID         string `yaml:"id"`
	Kind       string `yaml:"kind,omitempty"`
	SourceGlob string `yaml:"source_glob"`
}

// Profile holds per-slug launch defaults. RequireMarker is a pointer so a
// workspace file can switch the gate off for a profile that enables it.
type Profile struct {
	Role          string                `yaml:"role,omitempty"`
	Command       string                `yaml:"command,omitempty"`
	RequireMarker *bool                 `yaml:"require_marker,omitempty"`
	Deliverables  []DeliverableTemplate `yaml:"deliverables,omitempty"`
}

// MarkerRequired reports whether launches need a current retrospective marker.
func (p Profile) MarkerRequired() bool {
	return p.RequireMarker != nil && *p.RequireMarker
}

func (p Profile) merge(o Profile) Profile {
	if o.Role != "" {
		p.Role = o.Role
	}
	if o.Command != "" {
		p.Command = o.Command
	}
	if o.RequireMarker != nil {
		p.RequireMarker = o.RequireMarker
	}
	if len(o.Deliverables) > 0 {
		p.Deliverables = o.Deliverables
	}
	return p
}

// Settings is the merged subagent configuration.
type Settings struct {
	RegistryPath    string             `yaml:"registry_path,omitempty"`
	SandboxRoot     string             `yaml:"sandbox_root,omitempty"`
	LockTimeout     time.Duration      `yaml:"lock_timeout,omitempty"`
	DuplicateLaunch string             `yaml:"duplicate_launch,omitempty"`
	Fingerprint     string             `yaml:"fingerprint,omitempty"`
	DefaultCommand  string             `yaml:"default_command,omitempty"`
	Profiles        map[string]Profile `yaml:"profiles,omitempty"`
}

// Defaults returns the built-in settings. The senior-review profile expects
// a branch review report and refuses to launch until the branch's
// retrospective marker matches HEAD.
func Defaults() Settings {
	requireMarker := true
	return Settings{
		RegistryPath:    DefaultRegistryPath,
		SandboxRoot:     ".parallelus/subagents/sandboxes",
		LockTimeout:     10 * time.Second,
		DuplicateLaunch: DuplicateReject,
		Fingerprint:     "blake3",
		DefaultCommand:  DefaultLaunchCommand,
		Profiles: map[string]Profile{
			"senior-review": {
				Role:          "senior_architect",
				RequireMarker: &requireMarker,
				Deliverables: []DeliverableTemplate{{
					ID:         "senior-review-report",
					Kind:       "review_markdown",
					SourceGlob: "docs/parallelus/reviews/{branch_slug}-*.md",
				}},
			},
		},
	}
}

// Load merges the defaults, the user-wide file and the workspace file.
// Missing files are skipped; malformed ones are errors.
func Load(workspace string) (Settings, error) {
	settings := Defaults()
	paths := []string{}
	if dir := Dir(); dir != "" {
		paths = append(paths, filepath.Join(dir, FileName))
	}
	if workspace != "" {
		paths = append(paths, filepath.Join(workspace, filepath.FromSlash(WorkspaceConfigPath)))
	}

	for _, path := range paths {
		overlay, err := readFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return Settings{}, err
		}
		settings.merge(overlay)
	}
	if err := settings.Validate(); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

func readFile(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, err
	}
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return s, nil
}

func (s *Settings) merge(o Settings) {
	if o.RegistryPath != "" {
		s.RegistryPath = o.RegistryPath
	}
	if o.SandboxRoot != "" {
		s.SandboxRoot = o.SandboxRoot
	}
	if o.LockTimeout > 0 {
		s.LockTimeout = o.LockTimeout
	}
	if o.DuplicateLaunch != "" {
		s.DuplicateLaunch = o.DuplicateLaunch
	}
	if o.Fingerprint != "" {
		s.Fingerprint = o.Fingerprint
	}
	if o.DefaultCommand != "" {
		s.DefaultCommand = o.DefaultCommand
	}
	if s.Profiles == nil {
		s.Profiles = map[string]Profile{}
	}
	for slug, p := range o.Profiles {
		s.Profiles[slug] = s.Profiles[slug].merge(p)
	}
}

// Validate checks enumerated fields.
func (s Settings) Validate() error {
	switch s.DuplicateLaunch {
	case "", DuplicateReject, DuplicateAllow:
	default:
		return fmt.Errorf("duplicate_launch must be %q or %q, got %q", DuplicateReject, DuplicateAllow, s.DuplicateLaunch)
	}
	switch s.Fingerprint {
	case "", "blake3", "stat":
	default:
		return fmt.Errorf("fingerprint must be \"blake3\" or \"stat\", got %q", s.Fingerprint)
	}
	for _, slug := range s.ProfileNames() {
		seen := map[string]bool{}
		for _, d := range s.Profiles[slug].Deliverables {
			if d.ID == "" || d.SourceGlob == "" {
				return fmt.Errorf("profile %s: deliverables need id and source_glob", slug)
			}
			if seen[d.ID] {
				return fmt.Errorf("profile %s: duplicate deliverable id %s", slug, d.ID)
			}
			seen[d.ID] = true
		}
	}
	return nil
}

// ProfileNames returns the configured profile slugs, sorted.
func (s Settings) ProfileNames() []string {
	names := make([]string, 0, len(s.Profiles))
	for name := range s.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Profile returns the profile for slug, or the zero profile.
func (s Settings) Profile(slug string) Profile {
	return s.Profiles[slug]
}

// AllowDuplicates reports whether a slug and type may run twice at once.
func (s Settings) AllowDuplicates() bool {
	return s.DuplicateLaunch == DuplicateAllow
}

// ExpandGlob substitutes launch variables into a deliverable glob.
func ExpandGlob(glob, branchSlug, slug, id string) string {
	return strings.NewReplacer(
		"{branch_slug}", branchSlug,
		"{slug}", slug,
		"{id}", id,
	).Replace(glob)
}

// ResolveRegistryPath picks the registry file: the flag, then
// $SUBAGENT_REGISTRY_FILE, then the configured path. Relative paths are
// resolved against workspace.
func ResolveRegistryPath(flag, workspace string, s Settings) string {
	path := flag
	if path == "" {
		path = os.Getenv(RegistryEnvVar)
	}
	if path == "" {
		path = s.RegistryPath
	}
	if path == "" {
		path = DefaultRegistryPath
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(workspace, filepath.FromSlash(path))
	}
	return filepath.Clean(path)
}
