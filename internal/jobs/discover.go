package jobs

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Discover enumerates the manifests under dir and registers every job type it finds.
// A missing directory is an error; an empty one yields an empty registry.
func Discover(dir string, logger *slog.Logger) (*Registry, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("jobs path missing (%s)", dir)
		}
		return nil, fmt.Errorf("failed to stat jobs path (%s): %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("jobs path is not a directory (%s)", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read jobs path (%s): %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	registry := NewRegistry()
	for _, file := range files {
		m, err := LoadManifest(file)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(m); err != nil {
			return nil, err
		}

		logger.Debug("Job type registered",
			slog.String("name", m.Name),
			slog.String("kind", m.Kind),
			slog.String("source", file),
		)
	}

	logger.Info("Job types discovered",
		slog.String("jobs_path", dir),
		slog.Int("count", registry.Len()),
		slog.Any("types", registry.Names()),
	)

	return registry, nil
}
