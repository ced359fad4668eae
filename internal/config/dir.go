// Package config resolves the subagent manager's settings, profiles and
// registry location.
//
// Settings come from YAML files, later files overriding earlier ones:
//
//	<Dir()>/subagents.yaml                      (user-wide)
//	<workspace>/parallelus/engine/subagents.yaml (repository)
//
// Environment files (.env.local, .env, parallelus/engine/agentrc) are loaded
// first and never override variables already set.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Dir returns the user-wide parallelus configuration directory.
//
// Resolution:
//   - $PARALLELUS_CONFIG_HOME if set (explicit override)
//   - $XDG_CONFIG_HOME/parallelus if set (respects XDG on any platform)
//   - %AppData%/parallelus on Windows
//   - ~/.config/parallelus on macOS and Linux
func Dir() string {
	if dir := os.Getenv("PARALLELUS_CONFIG_HOME"); dir != "" {
		return dir
	}

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "parallelus")
	}

	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "parallelus")
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "parallelus")
}
