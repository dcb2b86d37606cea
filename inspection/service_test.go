package inspection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"qcflow/fault"
	"qcflow/unit"
)

var testStages = []string{"INTAKE", "COSMETIC", "FIT", "DECISION"}

func newTestService(repo *fakeRepo, units *fakeUnits) (*Service, *fakePool) {
	pool := &fakePool{}
	svc := NewService(pool, repo, units, testStages).
		WithClock(func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }).
		WithIDGenerator(func() string { return "ins-1" })
	return svc, pool
}

func TestStartInspection_RequiresUnitRef(t *testing.T) {
	svc, pool := newTestService(&fakeRepo{}, &fakeUnits{})

	_, err := svc.StartInspection(context.Background(), StartParams{})
	if !fault.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if pool.tx != nil {
		t.Errorf("expected no transaction for invalid input")
	}
}

func TestStartInspection_NewUnit(t *testing.T) {
	repo := &fakeRepo{nextAttempt: 1}
	units := &fakeUnits{created: true, status: unit.StatusQCInProgress}
	svc, pool := newTestService(repo, units)

	res, err := svc.StartInspection(context.Background(), StartParams{UnitRef: "U-0001", FrameModel: "Model 100"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.InspectionID != "ins-1" || res.AttemptNumber != 1 || !res.UnitCreated {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.UnitStatus != unit.StatusQCInProgress {
		t.Errorf("unit status = %s, want QC_IN_PROGRESS", res.UnitStatus)
	}
	if units.metadataApplied {
		t.Errorf("metadata must not be re-applied to a freshly created unit")
	}
	if repo.inserted == nil || repo.inserted.AttemptNumber != 1 {
		t.Errorf("expected inspection insert with attempt 1, got %+v", repo.inserted)
	}
	if !pool.tx.committed {
		t.Errorf("expected commit")
	}
}

func TestStartInspection_ExistingUnitIncrementsAttempt(t *testing.T) {
	repo := &fakeRepo{nextAttempt: 3}
	units := &fakeUnits{created: false, status: unit.StatusQCInProgress}
	svc, _ := newTestService(repo, units)

	res, err := svc.StartInspection(context.Background(), StartParams{UnitRef: "U-0001", Lab: "Lab B"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.AttemptNumber != 3 {
		t.Errorf("attempt = %d, want 3", res.AttemptNumber)
	}
	if res.UnitCreated {
		t.Errorf("unit should not be reported as created")
	}
	if !units.metadataApplied {
		t.Errorf("expected metadata update for existing unit")
	}
	if units.transitionedTo != unit.StatusQCInProgress {
		t.Errorf("expected transition to QC_IN_PROGRESS, got %s", units.transitionedTo)
	}
}

func TestCompleteStage_FailWithoutDefect(t *testing.T) {
	svc, pool := newTestService(&fakeRepo{}, &fakeUnits{})

	_, err := svc.CompleteStage(context.Background(), CompleteStageParams{
		InspectionID: "ins-1",
		Stage:        "COSMETIC",
		Status:       ResultFail,
	})
	if !fault.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if pool.tx != nil {
		t.Errorf("expected validation to reject before opening a transaction")
	}
}

func TestCompleteStage_UnknownInspection(t *testing.T) {
	repo := &fakeRepo{getErr: fault.NotFoundf("inspection nope")}
	svc, pool := newTestService(repo, &fakeUnits{})

	_, err := svc.CompleteStage(context.Background(), CompleteStageParams{
		InspectionID: "nope",
		Stage:        "FIT",
		Status:       ResultPass,
	})
	if !fault.IsNotFound(err) {
		t.Fatalf("expected not-found error, got %v", err)
	}
	if pool.tx.committed {
		t.Errorf("expected rollback on missing inspection")
	}
}

func TestCompleteStage_FailMedGoesToRework(t *testing.T) {
	repo := &fakeRepo{unitStatus: unit.StatusQCInProgress}
	units := &fakeUnits{status: unit.StatusRework}
	svc, pool := newTestService(repo, units)

	res, err := svc.CompleteStage(context.Background(), CompleteStageParams{
		InspectionID: "ins-1",
		Stage:        "COSMETIC",
		Status:       ResultFail,
		Defect:       &DefectInput{ReasonCode: "SCRATCH", Severity: SeverityMed},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.UnitStatus != unit.StatusRework {
		t.Errorf("unit status = %s, want REWORK", res.UnitStatus)
	}
	if repo.defect == nil || repo.defect.Severity != SeverityMed {
		t.Errorf("expected MED defect recorded, got %+v", repo.defect)
	}
	if repo.ticketSummary != "SCRATCH (MED)" {
		t.Errorf("ticket summary = %q", repo.ticketSummary)
	}
	if units.transitionedTo != unit.StatusRework {
		t.Errorf("expected transition to REWORK, got %s", units.transitionedTo)
	}
	if !pool.tx.committed {
		t.Errorf("expected commit")
	}
}

func TestCompleteStage_FailHighQuarantinesFromRework(t *testing.T) {
	repo := &fakeRepo{unitStatus: unit.StatusRework}
	units := &fakeUnits{status: unit.StatusQuarantine}
	svc, _ := newTestService(repo, units)

	res, err := svc.CompleteStage(context.Background(), CompleteStageParams{
		InspectionID: "ins-1",
		Stage:        "FIT",
		Status:       ResultFail,
		Defect:       &DefectInput{ReasonCode: "CRACK", Severity: SeverityHigh},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.UnitStatus != unit.StatusQuarantine {
		t.Errorf("unit status = %s, want QUARANTINE", res.UnitStatus)
	}
	if units.transitionedTo != unit.StatusQuarantine {
		t.Errorf("expected escalation to QUARANTINE, got %s", units.transitionedTo)
	}
}

func TestCompleteStage_MedFailNeverDemotesQuarantine(t *testing.T) {
	repo := &fakeRepo{unitStatus: unit.StatusQuarantine}
	units := &fakeUnits{}
	svc, _ := newTestService(repo, units)

	res, err := svc.CompleteStage(context.Background(), CompleteStageParams{
		InspectionID: "ins-1",
		Stage:        "DECISION",
		Status:       ResultFail,
		Defect:       &DefectInput{ReasonCode: "SMUDGE", Severity: SeverityMed},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.UnitStatus != unit.StatusQuarantine {
		t.Errorf("unit status = %s, want QUARANTINE to stick", res.UnitStatus)
	}
	if units.transitionCalled {
		t.Errorf("no transition should be attempted when QUARANTINE already holds")
	}
	if repo.ticketSummary == "" {
		t.Errorf("a rework ticket must still be opened for the failure")
	}
}

func TestCompleteStage_PassClearsStaleDefects(t *testing.T) {
	repo := &fakeRepo{unitStatus: unit.StatusRework}
	units := &fakeUnits{}
	svc, _ := newTestService(repo, units)

	_, err := svc.CompleteStage(context.Background(), CompleteStageParams{
		InspectionID: "ins-1",
		Stage:        "COSMETIC",
		Status:       ResultPass,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !repo.defectsDeleted {
		t.Errorf("expected defects of the re-submitted stage to be deleted")
	}
	if repo.defect != nil || repo.ticketSummary != "" {
		t.Errorf("a PASS must not create defects or tickets")
	}
	if units.transitionCalled {
		t.Errorf("a PASS stage must not move the unit")
	}
}

func TestFinalize_AllRequiredPass(t *testing.T) {
	repo := &fakeRepo{
		unitStatus: unit.StatusQCInProgress,
		stages: map[string]Result{
			"INTAKE": ResultPass, "COSMETIC": ResultPass, "FIT": ResultPass, "DECISION": ResultPass,
		},
	}
	units := &fakeUnits{status: unit.StatusStoreReady}
	svc, pool := newTestService(repo, units)

	res, err := svc.FinalizeInspection(context.Background(), "ins-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.FinalResult != ResultPass {
		t.Errorf("final result = %s, want PASS", res.FinalResult)
	}
	if res.UnitStatus != unit.StatusStoreReady {
		t.Errorf("unit status = %s, want STORE_READY", res.UnitStatus)
	}
	if repo.stamped == nil || *repo.stamped != ResultPass {
		t.Errorf("expected completion stamped PASS")
	}
	if !pool.tx.committed {
		t.Errorf("expected commit")
	}
}

func TestFinalize_PromotesFromReworkAfterResubmission(t *testing.T) {
	// A MED fail parked the unit in REWORK, then the stage was re-submitted
	// as PASS within the same attempt. Finalize must still promote.
	repo := &fakeRepo{
		unitStatus: unit.StatusRework,
		stages: map[string]Result{
			"INTAKE": ResultPass, "COSMETIC": ResultPass, "FIT": ResultPass, "DECISION": ResultPass,
		},
	}
	units := &fakeUnits{current: unit.StatusRework}
	svc, pool := newTestService(repo, units)

	res, err := svc.FinalizeInspection(context.Background(), "ins-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.FinalResult != ResultPass {
		t.Errorf("final result = %s, want PASS", res.FinalResult)
	}
	if res.UnitStatus != unit.StatusStoreReady {
		t.Errorf("unit status = %s, want STORE_READY", res.UnitStatus)
	}
	if !pool.tx.committed {
		t.Errorf("expected commit")
	}
}

func TestFinalize_MissingStageFails(t *testing.T) {
	repo := &fakeRepo{
		unitStatus: unit.StatusQCInProgress,
		stages: map[string]Result{
			"INTAKE": ResultPass, "COSMETIC": ResultPass, "DECISION": ResultPass,
		},
	}
	units := &fakeUnits{}
	svc, _ := newTestService(repo, units)

	res, err := svc.FinalizeInspection(context.Background(), "ins-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.FinalResult != ResultFail {
		t.Errorf("final result = %s, want FAIL when FIT is missing", res.FinalResult)
	}
	if units.transitionCalled {
		t.Errorf("finalize must never move the unit on FAIL")
	}
	if res.UnitStatus != unit.StatusQCInProgress {
		t.Errorf("unit status = %s, want unchanged", res.UnitStatus)
	}
}

func TestFinalize_FailedStagePresentFails(t *testing.T) {
	repo := &fakeRepo{
		unitStatus: unit.StatusRework,
		stages: map[string]Result{
			"INTAKE": ResultPass, "COSMETIC": ResultFail, "FIT": ResultPass, "DECISION": ResultPass,
		},
	}
	units := &fakeUnits{}
	svc, _ := newTestService(repo, units)

	res, err := svc.FinalizeInspection(context.Background(), "ins-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.FinalResult != ResultFail {
		t.Errorf("final result = %s, want FAIL", res.FinalResult)
	}
	if res.UnitStatus != unit.StatusRework {
		t.Errorf("unit stays in REWORK, got %s", res.UnitStatus)
	}
}

func TestEscalationTarget(t *testing.T) {
	cases := []struct {
		current  unit.Status
		severity Severity
		want     unit.Status
	}{
		{unit.StatusQCInProgress, SeverityLow, unit.StatusRework},
		{unit.StatusQCInProgress, SeverityMed, unit.StatusRework},
		{unit.StatusQCInProgress, SeverityHigh, unit.StatusQuarantine},
		{unit.StatusRework, SeverityHigh, unit.StatusQuarantine},
		{unit.StatusQuarantine, SeverityMed, unit.StatusQuarantine},
		{unit.StatusQuarantine, SeverityLow, unit.StatusQuarantine},
	}
	for _, tc := range cases {
		if got := escalationTarget(tc.current, tc.severity); got != tc.want {
			t.Errorf("escalationTarget(%s, %s) = %s, want %s", tc.current, tc.severity, got, tc.want)
		}
	}
}

func TestEvaluateStages(t *testing.T) {
	required := []string{"A", "B", "C"}

	all := map[string]Result{"A": ResultPass, "B": ResultPass, "C": ResultPass}
	if evaluateStages(required, all) != ResultPass {
		t.Error("all required passing should be PASS")
	}

	missing := map[string]Result{"A": ResultPass, "C": ResultPass}
	if evaluateStages(required, missing) != ResultFail {
		t.Error("missing required stage should be FAIL")
	}

	failed := map[string]Result{"A": ResultPass, "B": ResultFail, "C": ResultPass}
	if evaluateStages(required, failed) != ResultFail {
		t.Error("failed required stage should be FAIL")
	}

	extra := map[string]Result{"A": ResultPass, "B": ResultPass, "C": ResultPass, "X": ResultFail}
	if evaluateStages(required, extra) != ResultPass {
		t.Error("a failed optional stage must not block a pass")
	}
}

// --- fakes -----------------------------------------------------------------

type fakeRepo struct {
	nextAttempt    int
	getErr         error
	unitStatus     unit.Status
	stages         map[string]Result
	inserted       *Inspection
	defect         *Defect
	defectsDeleted bool
	ticketSummary  string
	stamped        *Result
}

func (f *fakeRepo) NextAttemptNumber(ctx context.Context, tx pgx.Tx, unitPK string) (int, error) {
	if f.nextAttempt == 0 {
		f.nextAttempt = 1
	}
	return f.nextAttempt, nil
}

func (f *fakeRepo) Insert(ctx context.Context, tx pgx.Tx, ins Inspection) error {
	f.inserted = &ins
	return nil
}

func (f *fakeRepo) GetWithUnitForUpdate(ctx context.Context, tx pgx.Tx, inspectionID string) (Inspection, unit.Status, error) {
	if f.getErr != nil {
		return Inspection{}, "", f.getErr
	}
	return Inspection{ID: inspectionID, UnitPK: "unit-pk", AttemptNumber: 1, StartedAt: time.Now()}, f.unitStatus, nil
}

func (f *fakeRepo) UpsertStageResult(ctx context.Context, tx pgx.Tx, inspectionID, stage string, status Result, notes string, data map[string]any, completedAt time.Time) (string, error) {
	return "sr-1", nil
}

func (f *fakeRepo) DeleteDefects(ctx context.Context, tx pgx.Tx, stageResultID string) error {
	f.defectsDeleted = true
	return nil
}

func (f *fakeRepo) InsertDefect(ctx context.Context, tx pgx.Tx, stageResultID string, in DefectInput, createdAt time.Time) (Defect, error) {
	d := Defect{
		ID:            "def-1",
		StageResultID: stageResultID,
		Category:      in.Category,
		ReasonCode:    in.ReasonCode,
		Severity:      in.Severity,
		Notes:         in.Notes,
		CreatedAt:     createdAt,
	}
	f.defect = &d
	return d, nil
}

func (f *fakeRepo) InsertReworkTicket(ctx context.Context, tx pgx.Tx, unitPK, inspectionID, failedStage, reasonSummary string) (string, error) {
	f.ticketSummary = reasonSummary
	return "rt-1", nil
}

func (f *fakeRepo) StageStatuses(ctx context.Context, tx pgx.Tx, inspectionID string) (map[string]Result, error) {
	return f.stages, nil
}

func (f *fakeRepo) StampCompletion(ctx context.Context, tx pgx.Tx, inspectionID string, result Result, completedAt time.Time) error {
	f.stamped = &result
	return nil
}

type fakeUnits struct {
	created          bool
	status           unit.Status
	current          unit.Status
	metadataApplied  bool
	transitionCalled bool
	transitionedTo   unit.Status
}

func (f *fakeUnits) GetOrCreateForUpdate(ctx context.Context, tx pgx.Tx, unitRef string, meta unit.MetadataParams) (unit.Unit, bool, error) {
	return unit.Unit{ID: "unit-pk", UnitRef: unitRef, Status: unit.StatusReceived}, f.created, nil
}

func (f *fakeUnits) ApplyMetadata(ctx context.Context, tx pgx.Tx, unitPK string, meta unit.MetadataParams) error {
	f.metadataApplied = true
	return nil
}

// Transition enforces the lifecycle table when current is set, matching
// the real repository's conflict behavior.
func (f *fakeUnits) Transition(ctx context.Context, tx pgx.Tx, unitPK string, next unit.Status) (unit.Status, error) {
	f.transitionCalled = true
	f.transitionedTo = next
	if f.current != "" && !unit.CanTransition(f.current, next) {
		return f.current, fault.Conflictf("unit %s: cannot move %s to %s", unitPK, f.current, next)
	}
	if f.status == "" {
		return next, nil
	}
	return f.status, nil
}

type fakePool struct {
	tx *fakeTx
}

func (f *fakePool) Begin(ctx context.Context) (pgx.Tx, error) {
	f.tx = &fakeTx{}
	return f.tx, nil
}

type fakeTx struct {
	rolled    bool
	committed bool
}

func (f *fakeTx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("fakeTx does not support nested transactions")
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	f.rolled = true
	return nil
}

func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}

func (f *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}

func (f *fakeTx) LargeObjects() pgx.LargeObjects {
	panic("not implemented")
}

func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}

func (f *fakeTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}

func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not implemented")
}

func (f *fakeTx) Conn() *pgx.Conn {
	return nil
}
