package inspection

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"qcflow/fault"
	"qcflow/unit"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store defines the inspection data access required by the service.
type Store interface {
	NextAttemptNumber(ctx context.Context, tx pgx.Tx, unitPK string) (int, error)
	Insert(ctx context.Context, tx pgx.Tx, ins Inspection) error
	GetWithUnitForUpdate(ctx context.Context, tx pgx.Tx, inspectionID string) (Inspection, unit.Status, error)
	UpsertStageResult(ctx context.Context, tx pgx.Tx, inspectionID, stage string, status Result, notes string, data map[string]any, completedAt time.Time) (string, error)
	DeleteDefects(ctx context.Context, tx pgx.Tx, stageResultID string) error
	InsertDefect(ctx context.Context, tx pgx.Tx, stageResultID string, in DefectInput, createdAt time.Time) (Defect, error)
	InsertReworkTicket(ctx context.Context, tx pgx.Tx, unitPK, inspectionID, failedStage, reasonSummary string) (string, error)
	StageStatuses(ctx context.Context, tx pgx.Tx, inspectionID string) (map[string]Result, error)
	StampCompletion(ctx context.Context, tx pgx.Tx, inspectionID string, result Result, completedAt time.Time) error
}

// UnitStore defines the unit registry access required by the service.
type UnitStore interface {
	GetOrCreateForUpdate(ctx context.Context, tx pgx.Tx, unitRef string, meta unit.MetadataParams) (unit.Unit, bool, error)
	ApplyMetadata(ctx context.Context, tx pgx.Tx, unitPK string, meta unit.MetadataParams) error
	Transition(ctx context.Context, tx pgx.Tx, unitPK string, next unit.Status) (unit.Status, error)
}

// Service drives the inspection state machine. Every public operation runs
// as a single transaction holding the unit row lock, so concurrent stage
// completions for the same unit cannot interleave partial writes.
type Service struct {
	pool     TxBeginner
	repo     Store
	units    UnitStore
	required []string
	now      func() time.Time
	idGen    func() string
}

func NewService(pool TxBeginner, repo Store, units UnitStore, requiredStages []string) *Service {
	return &Service{
		pool:     pool,
		repo:     repo,
		units:    units,
		required: requiredStages,
		now:      time.Now,
		idGen:    func() string { return uuid.NewString() },
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGen = gen
	return s
}

// StartParams carries the unit reference and optional metadata supplied
// when an inspection attempt is opened.
type StartParams struct {
	UnitRef      string
	OrderID      *string
	FrameModel   string
	Lab          string
	Priority     unit.Priority
	TrainingMode bool
}

type StartResult struct {
	InspectionID  string
	AttemptNumber int
	UnitCreated   bool
	UnitStatus    unit.Status
}

// StartInspection idempotently resolves or creates the unit, applies any
// provided metadata, forces the unit to QC_IN_PROGRESS and opens the next
// inspection attempt for it.
func (s *Service) StartInspection(ctx context.Context, params StartParams) (StartResult, error) {
	if params.UnitRef == "" {
		return StartResult{}, fault.Validationf("inspection: unit_id required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return StartResult{}, fault.Storagew(err, "inspection: begin tx")
	}
	defer tx.Rollback(ctx)

	meta := unit.MetadataParams{
		OrderID:    params.OrderID,
		FrameModel: params.FrameModel,
		Lab:        params.Lab,
		Priority:   params.Priority,
	}
	u, created, err := s.units.GetOrCreateForUpdate(ctx, tx, params.UnitRef, meta)
	if err != nil {
		return StartResult{}, err
	}
	if !created {
		if err := s.units.ApplyMetadata(ctx, tx, u.ID, meta); err != nil {
			return StartResult{}, err
		}
	}

	status, err := s.units.Transition(ctx, tx, u.ID, unit.StatusQCInProgress)
	if err != nil {
		return StartResult{}, err
	}

	attempt, err := s.repo.NextAttemptNumber(ctx, tx, u.ID)
	if err != nil {
		return StartResult{}, err
	}

	ins := Inspection{
		ID:            s.idGen(),
		UnitPK:        u.ID,
		AttemptNumber: attempt,
		TrainingMode:  params.TrainingMode,
		StartedAt:     s.now(),
	}
	if err := s.repo.Insert(ctx, tx, ins); err != nil {
		return StartResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return StartResult{}, fault.Storagew(err, "inspection: commit start")
	}

	return StartResult{
		InspectionID:  ins.ID,
		AttemptNumber: attempt,
		UnitCreated:   created,
		UnitStatus:    status,
	}, nil
}

// CompleteStageParams carries one stage submission. Defect is mandatory
// when Status is FAIL.
type CompleteStageParams struct {
	InspectionID string
	Stage        string
	Status       Result
	Notes        string
	Data         map[string]any
	Defect       *DefectInput
}

type CompleteStageResult struct {
	StageResultID string
	UnitStatus    unit.Status
}

// CompleteStage upserts the stage result for (inspection, stage). A FAIL
// records the defect, opens a rework ticket and escalates the unit to
// REWORK or QUARANTINE depending on severity.
func (s *Service) CompleteStage(ctx context.Context, params CompleteStageParams) (CompleteStageResult, error) {
	if params.InspectionID == "" || params.Stage == "" {
		return CompleteStageResult{}, fault.Validationf("inspection: inspection_id and stage required")
	}
	if !ValidResult(params.Status) {
		return CompleteStageResult{}, fault.Validationf("inspection: status must be PASS or FAIL")
	}

	var defect DefectInput
	if params.Status == ResultFail {
		if params.Defect == nil {
			return CompleteStageResult{}, fault.Validationf("inspection: defect required when stage fails")
		}
		defect = normalizeDefect(*params.Defect, params.Stage)
		if !ValidSeverity(defect.Severity) {
			return CompleteStageResult{}, fault.Validationf("inspection: invalid severity %q", defect.Severity)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return CompleteStageResult{}, fault.Storagew(err, "inspection: begin tx")
	}
	defer tx.Rollback(ctx)

	ins, unitStatus, err := s.repo.GetWithUnitForUpdate(ctx, tx, params.InspectionID)
	if err != nil {
		return CompleteStageResult{}, err
	}

	now := s.now()
	stageResultID, err := s.repo.UpsertStageResult(ctx, tx, ins.ID, params.Stage, params.Status, params.Notes, params.Data, now)
	if err != nil {
		return CompleteStageResult{}, err
	}

	newStatus := unitStatus
	if params.Status == ResultPass {
		// A re-submitted stage that previously failed must not keep its
		// defects: a passing stage has none.
		if err := s.repo.DeleteDefects(ctx, tx, stageResultID); err != nil {
			return CompleteStageResult{}, err
		}
	} else {
		d, err := s.repo.InsertDefect(ctx, tx, stageResultID, defect, now)
		if err != nil {
			return CompleteStageResult{}, err
		}

		summary := fmt.Sprintf("%s (%s)", d.ReasonCode, d.Severity)
		if _, err := s.repo.InsertReworkTicket(ctx, tx, ins.UnitPK, ins.ID, params.Stage, summary); err != nil {
			return CompleteStageResult{}, err
		}

		target := escalationTarget(unitStatus, d.Severity)
		if target != unitStatus {
			newStatus, err = s.units.Transition(ctx, tx, ins.UnitPK, target)
			if err != nil {
				return CompleteStageResult{}, err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return CompleteStageResult{}, fault.Storagew(err, "inspection: commit stage")
	}

	return CompleteStageResult{StageResultID: stageResultID, UnitStatus: newStatus}, nil
}

type FinalizeResult struct {
	FinalResult Result
	UnitStatus  unit.Status
	Stages      map[string]Result
}

// FinalizeInspection evaluates all recorded stage results against the
// required stage set and stamps the attempt's final result. A full pass
// promotes the unit to STORE_READY; a fail leaves the unit wherever the
// failing stage already placed it.
func (s *Service) FinalizeInspection(ctx context.Context, inspectionID string) (FinalizeResult, error) {
	if inspectionID == "" {
		return FinalizeResult{}, fault.Validationf("inspection: inspection_id required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return FinalizeResult{}, fault.Storagew(err, "inspection: begin tx")
	}
	defer tx.Rollback(ctx)

	ins, unitStatus, err := s.repo.GetWithUnitForUpdate(ctx, tx, inspectionID)
	if err != nil {
		return FinalizeResult{}, err
	}

	stages, err := s.repo.StageStatuses(ctx, tx, ins.ID)
	if err != nil {
		return FinalizeResult{}, err
	}

	result := evaluateStages(s.required, stages)
	if err := s.repo.StampCompletion(ctx, tx, ins.ID, result, s.now()); err != nil {
		return FinalizeResult{}, err
	}

	newStatus := unitStatus
	if result == ResultPass {
		newStatus, err = s.units.Transition(ctx, tx, ins.UnitPK, unit.StatusStoreReady)
		if err != nil {
			return FinalizeResult{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return FinalizeResult{}, fault.Storagew(err, "inspection: commit finalize")
	}

	return FinalizeResult{FinalResult: result, UnitStatus: newStatus, Stages: stages}, nil
}

// escalationTarget decides where a stage failure sends the unit. HIGH
// severity always quarantines; a unit already in QUARANTINE is never
// demoted by a later LOW/MED failure.
func escalationTarget(current unit.Status, severity Severity) unit.Status {
	if severity == SeverityHigh {
		return unit.StatusQuarantine
	}
	if current == unit.StatusQuarantine {
		return unit.StatusQuarantine
	}
	return unit.StatusRework
}

// evaluateStages is PASS iff every required stage is present and passing.
func evaluateStages(required []string, stages map[string]Result) Result {
	for _, stage := range required {
		status, ok := stages[stage]
		if !ok || status != ResultPass {
			return ResultFail
		}
	}
	return ResultPass
}

func normalizeDefect(in DefectInput, stage string) DefectInput {
	if in.Category == "" {
		in.Category = stage
	}
	if in.ReasonCode == "" {
		in.ReasonCode = "UNKNOWN"
	}
	if in.Severity == "" {
		in.Severity = SeverityLow
	}
	return in
}
