package migration

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/nnaka2992/peaceful-postgresql/internal/logger"
)

// ErrMigrationNotFound is returned when no file matches an app and name
var ErrMigrationNotFound = errors.New("migration not found")

// ID identifies a migration by app label and migration name
type ID struct {
	App  string
	Name string
}

func (id ID) String() string {
	return id.App + "." + id.Name
}

// Source lists migrations that still have to run and yields their SQL
type Source interface {
	Pending(ctx context.Context) ([]ID, error)
	SQL(ctx context.Context, id ID) (string, error)
}

// DirSource reads migrations laid out as <dir>/<app>/<name>.sql. Files named
// <name>.up.sql are accepted too; <name>.down.sql files are ignored.
type DirSource struct {
	dir      string
	recorder *Recorder
	paths    map[ID]string
}

// NewDirSource creates a source rooted at dir. With a nil recorder every
// migration on disk is pending.
func NewDirSource(dir string, recorder *Recorder) *DirSource {
	return &DirSource{dir: dir, recorder: recorder}
}

// List returns every migration on disk sorted by app, then name
func (s *DirSource) List() ([]ID, error) {
	if err := s.scan(); err != nil {
		return nil, err
	}
	ids := make([]ID, 0, len(s.paths))
	for id := range s.paths {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b ID) int {
		return cmp.Or(cmp.Compare(a.App, b.App), cmp.Compare(a.Name, b.Name))
	})
	return ids, nil
}

// Pending returns the migrations on disk the recorder has not seen applied
func (s *DirSource) Pending(ctx context.Context) ([]ID, error) {
	ids, err := s.List()
	if err != nil {
		return nil, err
	}
	if s.recorder == nil {
		return ids, nil
	}

	applied, err := s.recorder.Applied(ctx)
	if err != nil {
		return nil, err
	}
	pending := ids[:0]
	for _, id := range ids {
		if !applied[id] {
			pending = append(pending, id)
		}
	}
	logger.Debug("Resolved pending migrations", "on_disk", len(ids), "pending", len(pending))
	return pending, nil
}

// Find returns the migration matching app and name
func (s *DirSource) Find(app, name string) (ID, error) {
	if err := s.scan(); err != nil {
		return ID{}, err
	}
	id := ID{App: app, Name: strings.TrimSuffix(strings.TrimSuffix(name, ".sql"), ".up")}
	if _, ok := s.paths[id]; !ok {
		return ID{}, fmt.Errorf("%w: %s", ErrMigrationNotFound, id)
	}
	return id, nil
}

// SQL reads the migration file
func (s *DirSource) SQL(_ context.Context, id ID) (string, error) {
	if err := s.scan(); err != nil {
		return "", err
	}
	path, ok := s.paths[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMigrationNotFound, id)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read migration %s: %w", id, err)
	}
	return string(content), nil
}

func (s *DirSource) scan() error {
	if s.paths != nil {
		return nil
	}

	apps, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	paths := make(map[ID]string)
	for _, app := range apps {
		if !app.IsDir() || strings.HasPrefix(app.Name(), ".") {
			continue
		}
		files, err := os.ReadDir(filepath.Join(s.dir, app.Name()))
		if err != nil {
			return fmt.Errorf("failed to read migrations for %s: %w", app.Name(), err)
		}
		for _, f := range files {
			name, ok := migrationName(f)
			if !ok {
				continue
			}
			id := ID{App: app.Name(), Name: name}
			// <name>.sql wins over <name>.up.sql
			if _, dup := paths[id]; dup && strings.HasSuffix(f.Name(), ".up.sql") {
				continue
			}
			paths[id] = filepath.Join(s.dir, app.Name(), f.Name())
		}
	}
	s.paths = paths
	return nil
}

func migrationName(f os.DirEntry) (string, bool) {
	if f.IsDir() {
		return "", false
	}
	base := f.Name()
	switch {
	case strings.HasSuffix(base, ".down.sql"):
		return "", false
	case strings.HasSuffix(base, ".up.sql"):
		return strings.TrimSuffix(base, ".up.sql"), true
	case strings.HasSuffix(base, ".sql"):
		return strings.TrimSuffix(base, ".sql"), true
	}
	return "", false
}
