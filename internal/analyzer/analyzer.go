package analyzer

import "github.com/nnaka2992/peaceful-postgresql/internal/parser"

// Analyzer infers the table-level locks SQL statements take
type Analyzer interface {
	// AnalyzeStatement analyzes a single parsed statement
	AnalyzeStatement(stmt parser.Statement) *Result

	// Analyze analyzes all statements in a parsed result, in order
	Analyze(parsed *parser.ParseResult) []*Result
}

// analyzer is the main implementation of the Analyzer interface
type analyzer struct {
	rules Rules
}

// Option configures an Analyzer
type Option func(*analyzer)

// WithRules replaces the default rule set
func WithRules(rules Rules) Option {
	return func(a *analyzer) {
		a.rules = rules
	}
}

// New creates a new analyzer instance
func New(opts ...Option) Analyzer {
	a := &analyzer{rules: DefaultRules()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AnalyzeStatement analyzes a single parsed statement. Statements that
// cannot be classified produce a Result without locks.
func (a *analyzer) AnalyzeStatement(stmt parser.Statement) *Result {
	tokens := stmt.Tokens
	if tokens == nil {
		tokens = parser.Tokenize(stmt.SQL)
	}

	st, lead := Classify(tokens)
	ex := extract(tokens, st, lead)

	result := &Result{
		SQL:        stmt.SQL,
		LineNumber: stmt.LineNumber,
		Type:       st,
		Object:     ex.object,
		operation:  ex.operation,
	}
	for _, t := range ex.targets {
		lock, ok := a.rules.lockFor(st, ex, t)
		if !ok {
			continue
		}
		result.locks = append(result.locks, TargetLock{Name: t.name, Lock: lock})
	}
	return result
}

// Analyze analyzes all statements in a parsed result
func (a *analyzer) Analyze(parsed *parser.ParseResult) []*Result {
	if parsed == nil {
		return nil
	}
	results := make([]*Result, 0, len(parsed.Statements))
	for _, stmt := range parsed.Statements {
		results = append(results, a.AnalyzeStatement(stmt))
	}
	return results
}

// Aggregate folds per-statement lock maps in batch order. A name seen in
// several statements keeps the lock of the last one, whatever its strength.
func Aggregate(maps []LockMap) LockMap {
	out := make(LockMap)
	for _, m := range maps {
		for name, lock := range m {
			out[name] = lock
		}
	}
	return out
}

// Summarize aggregates the locks of analyzed statements
func Summarize(results []*Result) LockMap {
	maps := make([]LockMap, 0, len(results))
	for _, r := range results {
		maps = append(maps, r.Locks())
	}
	return Aggregate(maps)
}

// DetectLocks splits sql into statements and returns the aggregated lock
// map for the whole batch. It never fails: unparseable input yields an
// empty map.
func DetectLocks(sql string, opts ...Option) LockMap {
	parsed := parser.NewParser().ParseSQL(sql)
	return Summarize(New(opts...).Analyze(parsed))
}
