// Package peaceful infers the table-level PostgreSQL locks that SQL takes
// without running it.
//
//	locks := peaceful.DetectLocks("ALTER TABLE users ADD COLUMN age int; SELECT * FROM orders")
//	// map[orders:RowShareLock users:AccessExclusiveLock]
package peaceful

import "github.com/nnaka2992/peaceful-postgresql/internal/analyzer"

// Lock labels as they appear in DetectLocks results
const (
	AccessExclusiveLock      = "AccessExclusiveLock"
	RowExclusiveLock         = "RowExclusiveLock"
	RowShareLock             = "RowShareLock"
	ShareLock                = "ShareLock"
	ShareUpdateExclusiveLock = "ShareUpdateExclusiveLock"
)

// DetectLocks returns the lock each table, index, sequence or view named in
// sql would be locked with. Statements are separated by semicolons; when a
// name appears in several statements the last one decides its lock.
// Unrecognized statements contribute nothing, so the result may be empty but
// is never nil.
func DetectLocks(sql string) map[string]string {
	return analyzer.DetectLocks(sql).Strings()
}

// DetectLocksWithSelectLock is DetectLocks with a different lock recorded for
// plain reads. lock is a label such as "ShareLock".
func DetectLocksWithSelectLock(sql, lock string) (map[string]string, error) {
	l, err := analyzer.ParseLockType(lock)
	if err != nil {
		return nil, err
	}
	return analyzer.DetectLocks(sql, analyzer.WithRules(analyzer.Rules{Select: l})).Strings(), nil
}
