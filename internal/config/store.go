package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Store holds file-level settings keyed by dotted name. Lookup hands back the
// raw text; parsing happens against the key table.
type Store interface {
	Lookup(key string) (string, bool)
	Put(key string, value any) error
}

// FilePath is where the YAML settings live.
func FilePath() string {
	return xdgPath("XDG_CONFIG_HOME", ".config", "trendsync", "config.yaml")
}

func defaultDataDir() string {
	return xdgPath("XDG_DATA_HOME", filepath.Join(".local", "share"), "trendsync")
}

// xdgPath resolves elem under $env, falling back to ~/homeRel and finally to
// the working directory.
func xdgPath(env, homeRel string, elem ...string) string {
	base := os.Getenv(env)
	if base == "" {
		base = "."
		if home, err := os.UserHomeDir(); err == nil {
			base = filepath.Join(home, homeRel)
		}
	}
	return filepath.Join(append([]string{base}, elem...)...)
}

// yamlStore is a flat YAML mapping, e.g. "server.port: 4100".
type yamlStore struct {
	path   string
	values map[string]any
}

func openYAMLStore(path string) *yamlStore {
	s := &yamlStore{path: path, values: map[string]any{}}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return s
	case err != nil:
		slog.Warn("config file unreadable, using defaults", "path", path, "err", err)
		return s
	}

	if err := yaml.Unmarshal(raw, &s.values); err != nil || s.values == nil {
		if err != nil {
			slog.Warn("config file is not valid YAML, using defaults", "path", path, "err", err)
		}
		s.values = map[string]any{}
	}
	return s
}

func (s *yamlStore) Lookup(key string) (string, bool) {
	switch v := s.values[key].(type) {
	case nil:
		return "", false
	case string:
		return v, true
	default:
		return fmt.Sprint(v), true
	}
}

func (s *yamlStore) Put(key string, value any) error {
	s.values[key] = value

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	out, err := yaml.Marshal(s.values)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", s.path, err)
	}
	return os.WriteFile(s.path, out, 0o600)
}
