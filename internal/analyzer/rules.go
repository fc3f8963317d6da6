package analyzer

// Rules holds the lock choices that are policy rather than fixed
// PostgreSQL behavior
type Rules struct {
	// Select is the lock recorded for tables a query reads. PostgreSQL takes
	// AccessShareLock for a plain SELECT; RowShareLock is reported by default
	// so that reads show up next to writes on the same table.
	Select LockType
}

// DefaultRules returns the canonical rule set
func DefaultRules() Rules {
	return Rules{Select: RowShare}
}

func (r Rules) selectLock() LockType {
	if r.Select == 0 {
		return RowShare
	}
	return r.Select
}

// lockFor decides the lock a statement takes on one of its targets. It
// returns false when the target should not be recorded.
func (r Rules) lockFor(st StatementType, ex extraction, t target) (LockType, bool) {
	switch st {
	case Select:
		return r.selectLock(), true
	case Insert, Update, Delete:
		if t.role == roleRead {
			return r.selectLock(), true
		}
		return RowExclusive, true
	case Create, Alter, Drop, Truncate:
		return AccessExclusive, true
	case Lock:
		return lockModeFor(ex.modeClause, ex.modes)
	case Vacuum, Cluster, Reindex:
		return AccessExclusive, true
	case Unknown:
		return 0, false
	}
	return 0, false
}

// lockModeFor maps the words of a LOCK ... IN <mode> MODE clause to a lock.
// A clause with none of SHARE, UPDATE or EXCLUSIVE yields no entry.
func lockModeFor(hasClause bool, modes map[LockModeKeyword]bool) (LockType, bool) {
	if !hasClause {
		// LOCK TABLE without a mode is ACCESS EXCLUSIVE
		return AccessExclusive, true
	}

	// checked in precedence order, so SHARE ROW EXCLUSIVE reports ShareLock
	switch {
	case modes[ModeShare] && modes[ModeUpdate]:
		return ShareUpdateExclusive, true
	case modes[ModeShare]:
		return Share, true
	case modes[ModeExclusive]:
		// ROW EXCLUSIVE, EXCLUSIVE and ACCESS EXCLUSIVE
		return AccessExclusive, true
	}
	return 0, false
}
