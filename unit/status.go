package unit

// transitions is the legal lifecycle table. Opening a new inspection
// attempt moves any state to QC_IN_PROGRESS; stage failures escalate an
// in-progress unit to REWORK or QUARANTINE; a fully passed inspection
// promotes to STORE_READY, including from REWORK when the failing stages
// were re-submitted as passing within the same attempt. A HIGH-severity
// defect may escalate a unit already in REWORK to QUARANTINE, and leaving
// QUARANTINE always requires a fresh attempt. STORE_READY is terminal in
// practice but a further inspection attempt is not structurally forbidden.
var transitions = map[Status][]Status{
	StatusReceived:     {StatusQCInProgress},
	StatusQCInProgress: {StatusRework, StatusQuarantine, StatusStoreReady},
	StatusRework:       {StatusQCInProgress, StatusQuarantine, StatusStoreReady},
	StatusRetest:       {StatusQCInProgress},
	StatusQuarantine:   {StatusQCInProgress},
	StatusStoreReady:   {StatusQCInProgress},
}

// CanTransition reports whether moving from one status to another is legal.
// Staying in the same status is always allowed; anything outside the table
// must be rejected with a conflict, leaving state unchanged.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
