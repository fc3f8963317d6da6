package analyzer

import (
	"fmt"
	"strings"
)

// StatementType is the kind of SQL statement, derived from its leading keyword
type StatementType int

const (
	Unknown StatementType = iota
	Select
	Insert
	Update
	Delete
	Create
	Alter
	Drop
	Truncate
	Lock
	Vacuum
	Cluster
	Reindex
)

// statementKeywords maps a leading keyword to its statement type
var statementKeywords = map[string]StatementType{
	"SELECT":   Select,
	"INSERT":   Insert,
	"UPDATE":   Update,
	"DELETE":   Delete,
	"CREATE":   Create,
	"ALTER":    Alter,
	"DROP":     Drop,
	"TRUNCATE": Truncate,
	"LOCK":     Lock,
	"VACUUM":   Vacuum,
	"CLUSTER":  Cluster,
	"REINDEX":  Reindex,
}

func (s StatementType) String() string {
	switch s {
	case Select:
		return "SELECT"
	case Insert:
		return "INSERT"
	case Update:
		return "UPDATE"
	case Delete:
		return "DELETE"
	case Create:
		return "CREATE"
	case Alter:
		return "ALTER"
	case Drop:
		return "DROP"
	case Truncate:
		return "TRUNCATE"
	case Lock:
		return "LOCK"
	case Vacuum:
		return "VACUUM"
	case Cluster:
		return "CLUSTER"
	case Reindex:
		return "REINDEX"
	default:
		return "UNKNOWN"
	}
}

// ObjectType is the kind of object a DDL clause introduces
type ObjectType int

const (
	ObjectNone ObjectType = iota
	ObjectTable
	ObjectIndex
	ObjectSequence
	ObjectView
	ObjectMaterializedView
)

func (o ObjectType) String() string {
	switch o {
	case ObjectTable:
		return "TABLE"
	case ObjectIndex:
		return "INDEX"
	case ObjectSequence:
		return "SEQUENCE"
	case ObjectView:
		return "VIEW"
	case ObjectMaterializedView:
		return "MATERIALIZED VIEW"
	default:
		return ""
	}
}

// LockType represents the PostgreSQL table-level lock modes the analyzer
// can emit, ordered from least to most disruptive as PostgreSQL ranks them
type LockType int

const (
	RowShare LockType = iota + 1
	RowExclusive
	ShareUpdateExclusive
	Share
	AccessExclusive
)

func (l LockType) String() string {
	switch l {
	case RowShare:
		return "RowShareLock"
	case RowExclusive:
		return "RowExclusiveLock"
	case Share:
		return "ShareLock"
	case ShareUpdateExclusive:
		return "ShareUpdateExclusiveLock"
	case AccessExclusive:
		return "AccessExclusiveLock"
	default:
		return "UnknownLock"
	}
}

// MarshalText renders the canonical lock label
func (l LockType) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText accepts any form ParseLockType accepts
func (l *LockType) UnmarshalText(text []byte) error {
	parsed, err := ParseLockType(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseLockType parses a lock label such as "ShareLock", "share",
// "ROW_EXCLUSIVE" or "AccessExclusiveLock"
func ParseLockType(s string) (LockType, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("_", "", " ", "", "-", "").Replace(key)
	key = strings.TrimSuffix(key, "lock")

	switch key {
	case "rowshare":
		return RowShare, nil
	case "rowexclusive":
		return RowExclusive, nil
	case "share":
		return Share, nil
	case "shareupdateexclusive":
		return ShareUpdateExclusive, nil
	case "accessexclusive":
		return AccessExclusive, nil
	}
	return 0, fmt.Errorf("unknown lock type %q", s)
}

// LockModeKeyword is a word allowed in a LOCK ... IN <mode> MODE clause
type LockModeKeyword int

const (
	ModeShare LockModeKeyword = iota
	ModeUpdate
	ModeRow
	ModeExclusive
	ModeAccess
)

var lockModeKeywords = map[string]LockModeKeyword{
	"SHARE":     ModeShare,
	"UPDATE":    ModeUpdate,
	"ROW":       ModeRow,
	"EXCLUSIVE": ModeExclusive,
	"ACCESS":    ModeAccess,
}

// LockMap maps a target name to the lock a statement (or batch) takes on it
type LockMap map[string]LockType

// Strings renders the map with canonical lock labels
func (m LockMap) Strings() map[string]string {
	out := make(map[string]string, len(m))
	for name, lock := range m {
		out[name] = lock.String()
	}
	return out
}

// TargetLock is one (name, lock) pair in the order it was found
type TargetLock struct {
	Name string
	Lock LockType
}

// Result represents the analysis result of a single SQL statement
type Result struct {
	// SQL and LineNumber identify the statement
	SQL        string
	LineNumber int

	Type StatementType

	// Object is the object kind named by a DDL statement, if any
	Object ObjectType

	operation string
	locks     []TargetLock
}

// Operation returns a short label such as "ALTER TABLE" or "VACUUM FULL"
func (r *Result) Operation() string {
	return r.operation
}

// TargetLocks returns the lock pairs in source order, duplicates included
func (r *Result) TargetLocks() []TargetLock {
	return r.locks
}

// Locks returns the per-statement lock map. A name seen twice keeps the
// later pair.
func (r *Result) Locks() LockMap {
	m := make(LockMap, len(r.locks))
	for _, tl := range r.locks {
		m[tl.Name] = tl.Lock
	}
	return m
}

// StrongestLock returns the most disruptive lock in the result, or false
// if the statement locks nothing
func (r *Result) StrongestLock() (LockType, bool) {
	var strongest LockType
	for _, tl := range r.locks {
		if tl.Lock > strongest {
			strongest = tl.Lock
		}
	}
	return strongest, strongest != 0
}
