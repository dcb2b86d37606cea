package rework

import "time"

// Status represents the lifecycle of a rework ticket.
type Status string

const (
	StatusOpen       Status = "OPEN"
	StatusInProgress Status = "IN_PROGRESS"
	StatusDone       Status = "DONE"
	StatusClosed     Status = "CLOSED"
)

// statusRank orders the lifecycle. Tickets only move forward; a closed
// ticket documents a remediation that already happened and is never
// reopened. A repeated failure opens a fresh ticket instead.
var statusRank = map[Status]int{
	StatusOpen:       0,
	StatusInProgress: 1,
	StatusDone:       2,
	StatusClosed:     3,
}

// ValidStatus reports whether s is a known ticket status.
func ValidStatus(s Status) bool {
	_, ok := statusRank[s]
	return ok
}

// CanAdvance reports whether a ticket may move from one status to another.
func CanAdvance(from, to Status) bool {
	fromRank, okFrom := statusRank[from]
	toRank, okTo := statusRank[to]
	return okFrom && okTo && toRank > fromRank
}

// Ticket mirrors the rework_tickets table. A ticket's lifecycle is
// independent of the inspection that produced it.
type Ticket struct {
	ID            string
	UnitPK        string
	UnitRef       string
	InspectionID  *string
	FailedStage   string
	ReasonSummary string
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
