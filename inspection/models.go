package inspection

import "time"

// Result is the outcome of a stage or of a whole inspection attempt.
type Result string

const (
	ResultPass Result = "PASS"
	ResultFail Result = "FAIL"
)

// Severity grades a defect. HIGH always quarantines the unit.
type Severity string

const (
	SeverityLow  Severity = "LOW"
	SeverityMed  Severity = "MED"
	SeverityHigh Severity = "HIGH"
)

// Inspection is one attempt at walking a unit through the stage pipeline.
// AttemptNumber is gapless per unit, starting at 1.
type Inspection struct {
	ID            string
	UnitPK        string
	AttemptNumber int
	TrainingMode  bool
	StartedAt     time.Time
	CompletedAt   *time.Time
	FinalResult   *Result
}

// StageResult records the outcome of one stage within an inspection. At
// most one row exists per (inspection, stage); re-submission overwrites.
type StageResult struct {
	ID           string
	InspectionID string
	Stage        string
	Status       Result
	Notes        string
	Data         map[string]any
	StartedAt    time.Time
	CompletedAt  *time.Time
}

// Defect is a recorded failure reason attached to a failed stage result.
type Defect struct {
	ID            string
	StageResultID string
	Category      string
	ReasonCode    string
	Severity      Severity
	Notes         string
	CreatedAt     time.Time
}

// DefectInput is the payload a caller supplies when failing a stage.
type DefectInput struct {
	Category   string
	ReasonCode string
	Severity   Severity
	Notes      string
}

func ValidResult(r Result) bool {
	return r == ResultPass || r == ResultFail
}

func ValidSeverity(s Severity) bool {
	return s == SeverityLow || s == SeverityMed || s == SeverityHigh
}
