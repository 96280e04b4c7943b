package configuration

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

// Read reads a JSON5 configuration file. If a sibling file named
// `<name>.local.<ext>` exists, its values override the base file.
// Returns os.ErrNotExist when neither file is present.
func Read[T any](path string) (T, error) {
	var out T

	base, err := readInto(path, &out)
	if err != nil {
		return out, err
	}

	ext := filepath.Ext(path)
	localPath := strings.TrimSuffix(path, ext) + ".local" + ext

	var override T
	local, err := readInto(localPath, &override)
	if err != nil {
		return out, err
	}
	if local {
		err = mergo.Merge(&out, override, mergo.WithOverride)
		if err != nil {
			return out, err
		}
		slog.Info("merging config with local overrides", "local", localPath)
	}

	if !base && !local {
		return out, os.ErrNotExist
	}
	return out, nil
}

func readInto[T any](path string, out *T) (found bool, err error) {
	contents, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	err = json5.Unmarshal(contents, out)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", path, err)
	}
	return true, nil
}

// ReadRecursively walks up from the working directory to the filesystem
// root looking for a configuration file with the given name.
func ReadRecursively[T any](name string) (T, error) {
	var zero T

	current, err := os.Getwd()
	if err != nil {
		return zero, err
	}

	for {
		config, err := Read[T](filepath.Join(current, name))
		if !os.IsNotExist(err) {
			return config, err
		}
		parent := filepath.Dir(current)
		if parent == current {
			return zero, os.ErrNotExist
		}
		current = parent
	}
}
