package unit

import "time"

// Priority encodes how quickly a unit must clear inspection.
type Priority string

const (
	PriorityNormal Priority = "NORMAL"
	PriorityUrgent Priority = "URGENT"
)

// Status is the lifecycle state of a physical unit.
type Status string

const (
	StatusReceived     Status = "RECEIVED"
	StatusQCInProgress Status = "QC_IN_PROGRESS"
	StatusStoreReady   Status = "STORE_READY"
	StatusRework       Status = "REWORK"
	StatusQuarantine   Status = "QUARANTINE"
	StatusRetest       Status = "RETEST"
)

// Unit mirrors the units table. UnitRef is the externally assigned
// identifier; ID is the internal primary key. Units are never deleted,
// only transitioned.
type Unit struct {
	ID         string
	UnitRef    string
	OrderID    *string
	FrameModel string
	Lab        string
	Priority   Priority
	Status     Status
	StoreID    *string
	ReceivedAt time.Time
	UpdatedAt  time.Time
}

// ValidPriority reports whether p is a known priority value.
func ValidPriority(p Priority) bool {
	return p == PriorityNormal || p == PriorityUrgent
}

// ValidStatus reports whether s is a known lifecycle status.
func ValidStatus(s Status) bool {
	switch s {
	case StatusReceived, StatusQCInProgress, StatusStoreReady,
		StatusRework, StatusQuarantine, StatusRetest:
		return true
	}
	return false
}
