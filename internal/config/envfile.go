package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// EnvFiles are the workspace-relative environment files, in load order.
// A variable set by an earlier file wins over later ones.
var EnvFiles = []string{".env.local", ".env", "parallelus/engine/agentrc"}

// LoadEnv loads every EnvFiles entry under workspace. Missing files are skipped.
func LoadEnv(workspace string) error {
	for _, name := range EnvFiles {
		if err := LoadEnvFile(filepath.Join(workspace, filepath.FromSlash(name))); err != nil {
			return err
		}
	}
	return nil
}

// LoadEnvFile reads KEY=VALUE lines from path and sets any variable not
// already in the environment. Returns nil if the file doesn't exist.
func LoadEnvFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("opening env file %s: %w", path, err)
	}
	defer file.Close() //nolint:errcheck // best-effort close on read-only file

	vars, err := ParseEnv(file)
	if err != nil {
		return fmt.Errorf("reading env file %s: %w", path, err)
	}
	for _, kv := range vars {
		if _, set := os.LookupEnv(kv[0]); !set {
			_ = os.Setenv(kv[0], kv[1])
		}
	}
	return nil
}

// ParseEnv parses env-file lines into ordered key/value pairs. Blank lines,
// comments and lines that are not assignments (shell code in agentrc) are
// skipped. Unquoted and double-quoted values expand $VAR references against
// earlier pairs and the environment.
func ParseEnv(r io.Reader) ([][2]string, error) {
	var pairs [][2]string
	local := map[string]string{}
	lookup := func(name string) string {
		if v, ok := local[name]; ok {
			return v
		}
		return os.Getenv(name)
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := parseEnvLine(line)
		if !ok {
			continue
		}
		if !strings.HasPrefix(strings.TrimSpace(line[strings.Index(line, "=")+1:]), "'") {
			value = os.Expand(value, lookup)
		}
		local[key] = value
		pairs = append(pairs, [2]string{key, value})
	}
	return pairs, scanner.Err()
}

// parseEnvLine extracts KEY=VALUE from a line.
// Handles an export prefix and optional single or double quotes around the value.
func parseEnvLine(line string) (key, value string, ok bool) {
	key, value, found := strings.Cut(line, "=")
	if !found {
		return "", "", false
	}

	key = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(key), "export "))
	value = strings.TrimSpace(value)
	if !validEnvKey(key) {
		return "", "", false
	}

	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			return key, value[1 : len(value)-1], true
		}
	}
	if i := strings.Index(value, " #"); i >= 0 {
		value = strings.TrimSpace(value[:i])
	}
	return key, value, true
}

func validEnvKey(key string) bool {
	if key == "" {
		return false
	}
	for i, r := range key {
		switch {
		case r == '_', r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
