package analyzer

import (
	"slices"
	"testing"

	"github.com/nnaka2992/peaceful-postgresql/internal/parser"
)

func extractSQL(sql string) extraction {
	tokens := parser.Tokenize(sql)
	st, lead := Classify(tokens)
	return extract(tokens, st, lead)
}

func TestExtractQueryTargets(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want []target
	}{
		{
			name: "reads",
			sql:  "SELECT * FROM a JOIN b ON a.id = b.id",
			want: []target{{"a", roleRead}, {"b", roleRead}},
		},
		{
			name: "lateral subquery",
			sql:  "SELECT * FROM a, LATERAL (SELECT * FROM b WHERE b.a_id = a.id) x",
			want: []target{{"a", roleRead}, {"b", roleRead}},
		},
		{
			name: "subquery in FROM list",
			sql:  "SELECT * FROM (SELECT * FROM b) AS sub, c",
			want: []target{{"c", roleRead}, {"b", roleRead}},
		},
		{
			name: "insert target then source",
			sql:  "INSERT INTO a (x) SELECT x FROM b",
			want: []target{{"a", roleWrite}, {"b", roleRead}},
		},
		{
			name: "update target and FROM",
			sql:  "UPDATE a SET x = b.x FROM b WHERE a.id = b.id",
			want: []target{{"a", roleWrite}, {"b", roleWrite}},
		},
		{
			name: "delete with nested read",
			sql:  "DELETE FROM a WHERE id IN (SELECT a_id FROM b)",
			want: []target{{"a", roleWrite}, {"b", roleRead}},
		},
		{
			name: "recursive CTE",
			sql:  "WITH RECURSIVE tree (id) AS (SELECT id FROM nodes UNION ALL SELECT n.id FROM nodes n JOIN tree ON true) SELECT * FROM tree",
			want: []target{{"nodes", roleRead}, {"nodes", roleRead}},
		},
		{
			name: "keyword alias in FROM list",
			sql:  "SELECT * FROM users data, orders o",
			want: []target{{"users", roleRead}, {"orders", roleRead}},
		},
		{
			name: "keyword aliases name type key",
			sql:  "SELECT * FROM a name, b type, c key",
			want: []target{{"a", roleRead}, {"b", roleRead}, {"c", roleRead}},
		},
		{
			name: "keyword alias in USING list",
			sql:  "DELETE FROM t USING a value, b WHERE t.id = a.id AND a.id = b.id",
			want: []target{{"t", roleWrite}, {"a", roleWrite}, {"b", roleWrite}},
		},
		{
			name: "join words are not aliases",
			sql:  "SELECT * FROM a LEFT OUTER JOIN b ON a.id = b.id NATURAL JOIN c CROSS JOIN d",
			want: []target{{"a", roleRead}, {"b", roleRead}, {"c", roleRead}, {"d", roleRead}},
		},
		{
			name: "FOR UPDATE does not add a target",
			sql:  "SELECT * FROM a FOR UPDATE",
			want: []target{{"a", roleRead}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractSQL(tt.sql).targets
			if !slices.Equal(got, tt.want) {
				t.Errorf("targets = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtractObjectTargets(t *testing.T) {
	tests := []struct {
		name       string
		sql        string
		wantOp     string
		wantObject ObjectType
		wantNames  []string
	}{
		{"create table", "CREATE TABLE a (id int)", "CREATE TABLE", ObjectTable, []string{"a"}},
		{"create temp table", "CREATE TEMP TABLE a (id int)", "CREATE TABLE", ObjectTable, []string{"a"}},
		{"create index concurrently", "CREATE INDEX CONCURRENTLY i ON a (id)", "CREATE INDEX CONCURRENTLY", ObjectIndex, []string{"i"}},
		{"create schema qualified", "CREATE TABLE s.a (id int)", "CREATE TABLE", ObjectTable, []string{"s.a"}},
		{"drop sequence list", "DROP SEQUENCE a, b", "DROP SEQUENCE", ObjectSequence, []string{"a", "b"}},
		{"drop materialized view", "DROP MATERIALIZED VIEW IF EXISTS mv", "DROP MATERIALIZED VIEW", ObjectMaterializedView, []string{"mv"}},
		{"drop view", "DROP VIEW v RESTRICT", "DROP VIEW", ObjectView, []string{"v"}},
		{"truncate list", "TRUNCATE a, ONLY b CASCADE", "TRUNCATE", ObjectNone, []string{"a", "b"}},
		{"drop trigger", "DROP TRIGGER trg ON a", "DROP", ObjectNone, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := extractSQL(tt.sql)
			if ex.operation != tt.wantOp {
				t.Errorf("operation = %q, want %q", ex.operation, tt.wantOp)
			}
			if ex.object != tt.wantObject {
				t.Errorf("object = %v, want %v", ex.object, tt.wantObject)
			}
			var names []string
			for _, tg := range ex.targets {
				if tg.role != roleObject {
					t.Errorf("target %q has role %v, want object", tg.name, tg.role)
				}
				names = append(names, tg.name)
			}
			if !slices.Equal(names, tt.wantNames) {
				t.Errorf("names = %v, want %v", names, tt.wantNames)
			}
		})
	}
}

func TestExtractLockTargets(t *testing.T) {
	tests := []struct {
		name       string
		sql        string
		wantNames  []string
		wantClause bool
		wantModes  []LockModeKeyword
	}{
		{"bare", "LOCK TABLE a", []string{"a"}, false, nil},
		{"share", "LOCK a IN SHARE MODE", []string{"a"}, true, []LockModeKeyword{ModeShare}},
		{"row exclusive list", "LOCK TABLE a, s.b IN ROW EXCLUSIVE MODE", []string{"a", "s.b"}, true, []LockModeKeyword{ModeRow, ModeExclusive}},
		{"nowait only", "LOCK TABLE a NOWAIT", []string{"a"}, false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := extractSQL(tt.sql)
			var names []string
			for _, tg := range ex.targets {
				names = append(names, tg.name)
			}
			if !slices.Equal(names, tt.wantNames) {
				t.Errorf("names = %v, want %v", names, tt.wantNames)
			}
			if ex.modeClause != tt.wantClause {
				t.Errorf("modeClause = %v, want %v", ex.modeClause, tt.wantClause)
			}
			if len(ex.modes) != len(tt.wantModes) {
				t.Errorf("modes = %v, want %v", ex.modes, tt.wantModes)
			}
			for _, m := range tt.wantModes {
				if !ex.modes[m] {
					t.Errorf("mode %v missing from %v", m, ex.modes)
				}
			}
		})
	}
}

func TestExtractMaintenanceTargets(t *testing.T) {
	tests := []struct {
		name      string
		sql       string
		wantOp    string
		wantNames []string
	}{
		{"vacuum full", "VACUUM FULL a", "VACUUM FULL", []string{"a"}},
		{"vacuum full columns", "VACUUM (FULL) a (x, y), b", "VACUUM FULL", []string{"a", "b"}},
		{"vacuum full on", "VACUUM (FULL on, VERBOSE) a", "VACUUM FULL", []string{"a"}},
		{"vacuum analyze", "VACUUM ANALYZE a", "VACUUM", nil},
		{"cluster", "CLUSTER a", "CLUSTER", []string{"a"}},
		{"cluster index on table", "CLUSTER idx ON s.a", "CLUSTER", []string{"s.a"}},
		{"reindex table", "REINDEX TABLE CONCURRENTLY a", "REINDEX TABLE", []string{"a"}},
		{"reindex database", "REINDEX DATABASE app", "REINDEX DATABASE", []string{"app"}},
		{"reindex bare", "REINDEX", "REINDEX", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := extractSQL(tt.sql)
			if ex.operation != tt.wantOp {
				t.Errorf("operation = %q, want %q", ex.operation, tt.wantOp)
			}
			var names []string
			for _, tg := range ex.targets {
				names = append(names, tg.name)
			}
			if !slices.Equal(names, tt.wantNames) {
				t.Errorf("names = %v, want %v", names, tt.wantNames)
			}
		})
	}
}

func TestSkipParens(t *testing.T) {
	tokens := parser.Tokenize("(a, (b)) c")
	if got := skipParens(tokens, 0); got != 7 {
		t.Errorf("skipParens() = %d, want 7", got)
	}
	unclosed := parser.Tokenize("(a, (b)")
	if got := skipParens(unclosed, 0); got != len(unclosed) {
		t.Errorf("skipParens() on unclosed group = %d, want %d", got, len(unclosed))
	}
}
