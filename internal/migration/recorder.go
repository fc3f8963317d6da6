package migration

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nnaka2992/peaceful-postgresql/internal/analyzer"
	"github.com/nnaka2992/peaceful-postgresql/internal/logger"
)

// Recorder reads applied migrations from a table with app and name columns,
// the layout Django's django_migrations uses
type Recorder struct {
	db    *sql.DB
	table string
}

// NewRecorder creates a recorder over table, which may be schema-qualified
func NewRecorder(db *sql.DB, table string) *Recorder {
	return &Recorder{db: db, table: table}
}

func (r *Recorder) query() string {
	return fmt.Sprintf("SELECT app, name FROM %s", analyzer.QuoteQualifiedName(r.table))
}

// Applied returns the set of recorded migrations
func (r *Recorder) Applied(ctx context.Context) (map[ID]bool, error) {
	rows, err := r.db.QueryContext(ctx, r.query())
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[ID]bool)
	for rows.Next() {
		var id ID
		if err := rows.Scan(&id.App, &id.Name); err != nil {
			return nil, fmt.Errorf("failed to scan applied migration: %w", err)
		}
		applied[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read applied migrations: %w", err)
	}

	logger.Debug("Loaded applied migrations", "table", r.table, "count", len(applied))
	return applied, nil
}
