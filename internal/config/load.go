package config

import (
	"errors"
	"fmt"
	"os"
)

// Loaded is the outcome of one config resolution: where the file was looked
// up, the effective values, and anything worth surfacing to the user.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
}

// Load reads the config at explicitPath, or the default location when empty,
// and merges it over built-in defaults. A missing file is not an error: the
// defaults apply, with a warning attached so the user knows.
func Load(explicitPath string) (Loaded, error) {
	path, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	content, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return loadedDefaults(path), nil
	case err != nil:
		return Loaded{}, fmt.Errorf("read config %q: %w", path, err)
	}

	cfg, warnings, err := Parse(string(content), Default())
	if err != nil {
		return Loaded{}, fmt.Errorf("parse config %q: %w", path, err)
	}

	return Loaded{Path: path, Config: cfg, Warnings: warnings, Exists: true}, nil
}

func loadedDefaults(path string) Loaded {
	return Loaded{
		Path:   path,
		Config: Default(),
		Warnings: []Warning{
			{Message: fmt.Sprintf("config file %q not found; defaults in effect", path)},
		},
	}
}
