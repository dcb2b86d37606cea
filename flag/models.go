package flag

import "time"

// Type selects the grouping dimension a flag watches.
type Type string

const (
	TypeModel Type = "MODEL"
	TypeLab   Type = "LAB"
)

// Types lists every grouping dimension the engine evaluates per run.
var Types = []Type{TypeModel, TypeLab}

// Flag is a standing alert that one grouping key's defect rate crossed the
// threshold within a time window. Flags are created and refreshed only by
// the engine, never by user action, and are deactivated rather than
// deleted.
type Flag struct {
	ID          string
	Type        Type
	Key         string
	WindowStart time.Time
	WindowEnd   time.Time
	SampleSize  int
	DefectRate  float64
	Threshold   float64
	IsActive    bool
	CreatedAt   time.Time
	ResolvedAt  *time.Time
}

// GroupStat is one grouping key's evidence within the window: how many
// inspections completed for it and how many distinct units among them had
// at least one defect raised in the window.
type GroupStat struct {
	Key         string
	SampleSize  int
	DefectCount int
}

// Params tunes one engine run. All values are passed explicitly; there is
// no process-wide mutable policy.
type Params struct {
	WindowDays int
	MinSample  int
	Threshold  float64
}
