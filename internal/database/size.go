package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/nnaka2992/peaceful-postgresql/internal/analyzer"
	"github.com/nnaka2992/peaceful-postgresql/internal/logger"
)

// $1 is the name as written, $2 its case-folded form, so an unquoted
// Users in a migration still finds users. NULL means neither resolved.
const tableSizeQuery = "SELECT pg_total_relation_size(COALESCE(to_regclass($1), to_regclass($2)))"

// DefaultThreshold is the size above which a blocking lock is considered
// disruptive
const DefaultThreshold int64 = 1 << 30

// SizeProbe reports on-disk table sizes, indexes and TOAST included
type SizeProbe struct {
	db          *sql.DB
	concurrency int
	threshold   int64
}

// NewSizeProbe creates a probe issuing at most concurrency queries at once.
// A non-positive threshold falls back to DefaultThreshold.
func NewSizeProbe(db *sql.DB, concurrency int, threshold int64) *SizeProbe {
	if concurrency < 1 {
		concurrency = 1
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &SizeProbe{db: db, concurrency: concurrency, threshold: threshold}
}

// Threshold returns the byte threshold used by ExceedsThreshold
func (p *SizeProbe) Threshold() int64 {
	return p.threshold
}

// TableSize returns the total relation size of one table. Relations that
// do not exist yet, such as an index a migration is about to create,
// report zero.
func (p *SizeProbe) TableSize(ctx context.Context, table string) (int64, error) {
	var size sql.NullInt64
	err := p.db.QueryRowContext(ctx, tableSizeQuery,
		analyzer.QuoteQualifiedName(table),
		analyzer.QuoteQualifiedName(strings.ToLower(table)),
	).Scan(&size)
	if err != nil {
		return 0, fmt.Errorf("failed to query size of %s: %w", table, err)
	}
	if !size.Valid {
		logger.Debug("Relation did not resolve", "table", table)
		return 0, nil
	}
	return size.Int64, nil
}

// TableSizes probes every table and returns sizes keyed by name. The first
// failing query cancels the rest.
func (p *SizeProbe) TableSizes(ctx context.Context, tables []string) (map[string]int64, error) {
	sizes := make(map[string]int64, len(tables))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	seen := make(map[string]bool, len(tables))
	for _, table := range tables {
		if seen[table] {
			continue
		}
		seen[table] = true

		g.Go(func() error {
			size, err := p.TableSize(ctx, table)
			if err != nil {
				return err
			}
			logger.Debug("Probed table size", "table", table, "bytes", size)
			mu.Lock()
			sizes[table] = size
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sizes, nil
}

// ExceedsThreshold reports whether any size is strictly greater than the
// probe's threshold
func (p *SizeProbe) ExceedsThreshold(sizes map[string]int64) bool {
	for _, size := range sizes {
		if size > p.threshold {
			return true
		}
	}
	return false
}

// FormatSize renders bytes with binary units, e.g. "1.5 GiB"
func FormatSize(bytes int64) string {
	if bytes < 0 {
		return "-" + humanize.IBytes(uint64(-bytes))
	}
	return humanize.IBytes(uint64(bytes))
}
