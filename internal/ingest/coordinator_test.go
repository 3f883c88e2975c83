package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goodpartydata/voterflow/internal/domain"
)

type stubVoterRepo struct {
	rows map[string]domain.VoterRecord
	// failAfter, when >= 0, persists that many new rows and then fails,
	// simulating a load interrupted mid-batch.
	failAfter int
}

func newStubVoterRepo() *stubVoterRepo {
	return &stubVoterRepo{rows: map[string]domain.VoterRecord{}, failAfter: -1}
}

func (s *stubVoterRepo) InsertNew(_ context.Context, records []domain.VoterRecord, fileHash string, loadedAt time.Time) (int64, error) {
	var inserted int64
	for _, rec := range records {
		if _, found := s.rows[rec.ID]; found {
			continue
		}
		if s.failAfter >= 0 && inserted >= int64(s.failAfter) {
			return 0, domain.ErrLoad
		}
		rec.LoadTimestamp = loadedAt
		rec.SourceFileHash = fileHash
		s.rows[rec.ID] = rec
		inserted++
	}
	return inserted, nil
}

func (s *stubVoterRepo) Count(context.Context) (int64, error) {
	return int64(len(s.rows)), nil
}

type stubAuditRepo struct {
	records   []domain.AuditRecord
	recordErr error
	latestErr error
}

func (s *stubAuditRepo) Record(_ context.Context, rec domain.AuditRecord) error {
	if s.recordErr != nil {
		return s.recordErr
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *stubAuditRepo) LatestSuccess(context.Context) (*domain.AuditRecord, error) {
	if s.latestErr != nil {
		return nil, s.latestErr
	}
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].LoadStatus == domain.LoadStatusSuccess {
			rec := s.records[i]
			return &rec, nil
		}
	}
	return nil, nil
}

func (s *stubAuditRepo) List(_ context.Context, limit int) ([]domain.AuditRecord, error) {
	if limit <= 0 || limit > len(s.records) {
		limit = len(s.records)
	}
	out := make([]domain.AuditRecord, 0, limit)
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}

type stubSchema struct {
	calls int
	err   error
}

func (s *stubSchema) EnsureSchema(context.Context) error {
	s.calls++
	return s.err
}

type stubTransform struct {
	calls int
	err   error
}

func (s *stubTransform) Run(context.Context) error {
	s.calls++
	return s.err
}

type fixture struct {
	path        string
	voters      *stubVoterRepo
	audits      *stubAuditRepo
	schema      *stubSchema
	transformer *stubTransform
	coordinator *Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		path:        filepath.Join(t.TempDir(), "voters.csv"),
		voters:      newStubVoterRepo(),
		audits:      &stubAuditRepo{},
		schema:      &stubSchema{},
		transformer: &stubTransform{},
	}
	f.coordinator = NewCoordinator(f.path, f.voters, f.audits, f.schema, f.transformer)
	return f
}

func (f *fixture) writeSource(t *testing.T, content string) {
	t.Helper()
	if err := os.WriteFile(f.path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write source file: %v", err)
	}
}

const headerLine = "id,first_name,last_name,age,gender,state,party,email,registered_date,last_voted_date,updated_at\n"

func voterLine(id string) string {
	return id + ",Ada,Lovelace,36,F,CA,IND,ada@example.com,2020-01-01,2024-11-05,2024-12-01\n"
}

func TestRunScenarioFreshThenNoOpThenAppendThenSubset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Fresh table, three rows.
	f.writeSource(t, headerLine+voterLine("1")+voterLine("2")+voterLine("3"))
	result, err := f.coordinator.Run(ctx, "run-1")
	if err != nil {
		t.Fatalf("first run returned error: %v", err)
	}
	if result.State != StateTransformTriggered {
		t.Fatalf("expected TRANSFORM_TRIGGERED, got %s", result.State)
	}
	if result.Status != domain.LoadStatusSuccess || result.InsertedRowCount != 3 {
		t.Fatalf("unexpected first run result: %+v", result)
	}
	if result.Fingerprint.RowCount != 3 {
		t.Fatalf("expected file row count 3, got %d", result.Fingerprint.RowCount)
	}
	if f.schema.calls != 1 || f.transformer.calls != 1 {
		t.Fatalf("expected schema and transform invoked once, got %d/%d", f.schema.calls, f.transformer.calls)
	}

	// Byte-identical re-run is a no-op that never touches the raw table.
	result, err = f.coordinator.Run(ctx, "run-2")
	if err != nil {
		t.Fatalf("second run returned error: %v", err)
	}
	if result.State != StateSkipped || result.Status != domain.LoadStatusNoOp {
		t.Fatalf("expected no-op, got %+v", result)
	}
	if result.InsertedRowCount != 0 {
		t.Fatalf("no-op must insert nothing, got %d", result.InsertedRowCount)
	}
	if len(f.voters.rows) != 3 {
		t.Fatalf("raw table changed on a no-op: %d rows", len(f.voters.rows))
	}
	if f.transformer.calls != 1 {
		t.Fatalf("transform ran on a no-op")
	}

	// Appended id: only the delta lands.
	f.writeSource(t, headerLine+voterLine("1")+voterLine("2")+voterLine("3")+voterLine("4"))
	result, err = f.coordinator.Run(ctx, "run-3")
	if err != nil {
		t.Fatalf("third run returned error: %v", err)
	}
	if result.Status != domain.LoadStatusSuccess || result.InsertedRowCount != 1 {
		t.Fatalf("expected delta of 1, got %+v", result)
	}
	if len(f.voters.rows) != 4 {
		t.Fatalf("expected 4 raw rows, got %d", len(f.voters.rows))
	}

	// Subset with new bytes: new hash so the gate proceeds, but every id is
	// already persisted, so success with zero inserts.
	f.writeSource(t, headerLine+voterLine("2")+voterLine("1"))
	result, err = f.coordinator.Run(ctx, "run-4")
	if err != nil {
		t.Fatalf("fourth run returned error: %v", err)
	}
	if result.Status != domain.LoadStatusSuccess || result.InsertedRowCount != 0 {
		t.Fatalf("expected success with 0 inserts, got %+v", result)
	}
	if len(f.voters.rows) != 4 {
		t.Fatalf("subset run must not change the raw table, got %d rows", len(f.voters.rows))
	}

	// Audit completeness: one record per run.
	if len(f.audits.records) != 4 {
		t.Fatalf("expected 4 audit records, got %d", len(f.audits.records))
	}
	statuses := []domain.LoadStatus{}
	for _, rec := range f.audits.records {
		statuses = append(statuses, rec.LoadStatus)
	}
	want := []domain.LoadStatus{
		domain.LoadStatusSuccess,
		domain.LoadStatusNoOp,
		domain.LoadStatusSuccess,
		domain.LoadStatusSuccess,
	}
	for i, status := range want {
		if statuses[i] != status {
			t.Fatalf("audit record %d: expected %s, got %s", i, status, statuses[i])
		}
	}
}

func TestRunRetryAfterPartialLoad(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.writeSource(t, headerLine+voterLine("1")+voterLine("2")+voterLine("3"))

	// First attempt persists one row, then the load blows up.
	f.voters.failAfter = 1
	result, err := f.coordinator.Run(ctx, "attempt-1")
	if err == nil {
		t.Fatalf("expected failure from interrupted load")
	}
	if !errors.Is(err, domain.ErrLoad) {
		t.Fatalf("expected load error, got %v", err)
	}
	if result.State != StateFailed || result.Status != domain.LoadStatusFailed {
		t.Fatalf("unexpected result after failure: %+v", result)
	}

	if len(f.audits.records) != 1 {
		t.Fatalf("expected one audit record for the failed attempt, got %d", len(f.audits.records))
	}
	failed := f.audits.records[0]
	if failed.LoadStatus != domain.LoadStatusFailed || failed.InsertedRowCount != 0 {
		t.Fatalf("failed audit must carry status failed and zero inserts: %+v", failed)
	}

	// Retry with the same file: the failed record does not block the gate,
	// and only the not-yet-persisted ids are inserted.
	f.voters.failAfter = -1
	result, err = f.coordinator.Run(ctx, "attempt-2")
	if err != nil {
		t.Fatalf("retry returned error: %v", err)
	}
	if result.Status != domain.LoadStatusSuccess {
		t.Fatalf("expected success on retry, got %+v", result)
	}
	if result.InsertedRowCount != 2 {
		t.Fatalf("retry must insert only the remaining ids, got %d", result.InsertedRowCount)
	}
	if len(f.voters.rows) != 3 {
		t.Fatalf("expected 3 raw rows after retry, got %d", len(f.voters.rows))
	}

	// A further run is a clean no-op.
	result, err = f.coordinator.Run(ctx, "attempt-3")
	if err != nil {
		t.Fatalf("third run returned error: %v", err)
	}
	if result.Status != domain.LoadStatusNoOp {
		t.Fatalf("expected no-op after recovery, got %+v", result)
	}
	if len(f.audits.records) != 3 {
		t.Fatalf("expected 3 audit records, got %d", len(f.audits.records))
	}
}

func TestRunUnreadableSourceWritesNoAudit(t *testing.T) {
	f := newFixture(t)

	result, err := f.coordinator.Run(context.Background(), "run-1")
	if !errors.Is(err, domain.ErrUnreadableSource) {
		t.Fatalf("expected unreadable source error, got %v", err)
	}
	if result.State != StateFailed {
		t.Fatalf("expected FAILED, got %s", result.State)
	}
	if len(f.audits.records) != 0 {
		t.Fatalf("no audit record is possible without a fingerprint, got %d", len(f.audits.records))
	}
}

func TestRunSchemaFailureRecordsFailedAudit(t *testing.T) {
	f := newFixture(t)
	f.writeSource(t, headerLine+voterLine("1"))
	f.schema.err = domain.ErrSchemaInit

	result, err := f.coordinator.Run(context.Background(), "run-1")
	if !errors.Is(err, domain.ErrSchemaInit) {
		t.Fatalf("expected schema init error, got %v", err)
	}
	if result.State != StateFailed {
		t.Fatalf("expected FAILED, got %s", result.State)
	}
	if len(f.audits.records) != 1 || f.audits.records[0].LoadStatus != domain.LoadStatusFailed {
		t.Fatalf("expected one failed audit record, got %+v", f.audits.records)
	}
	if len(f.voters.rows) != 0 {
		t.Fatalf("load must not run after schema failure")
	}
}

func TestRunTransformFailureKeepsSuccess(t *testing.T) {
	f := newFixture(t)
	f.writeSource(t, headerLine+voterLine("1"))
	f.transformer.err = errors.New("dbt exited 1")

	result, err := f.coordinator.Run(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("transform failure must not fail the run: %v", err)
	}
	if result.Status != domain.LoadStatusSuccess {
		t.Fatalf("expected recorded success, got %+v", result)
	}
	if result.State != StateAudited {
		t.Fatalf("expected run to stop at AUDITED, got %s", result.State)
	}
	if result.TransformError == "" {
		t.Fatalf("expected transform error to be reported")
	}
	if len(f.audits.records) != 1 || f.audits.records[0].LoadStatus != domain.LoadStatusSuccess {
		t.Fatalf("success audit must survive a transform failure: %+v", f.audits.records)
	}
}

func TestRunAuditWriteFailureSurfacesBothErrors(t *testing.T) {
	f := newFixture(t)
	f.writeSource(t, headerLine+voterLine("1"))
	f.schema.err = domain.ErrSchemaInit
	f.audits.recordErr = domain.ErrAuditWrite

	_, err := f.coordinator.Run(context.Background(), "run-1")
	if !errors.Is(err, domain.ErrSchemaInit) {
		t.Fatalf("expected cause to be surfaced, got %v", err)
	}
	if !errors.Is(err, domain.ErrAuditWrite) {
		t.Fatalf("expected audit write failure to be surfaced, got %v", err)
	}
}

func TestRunGateConsultFailureRecordsFailedAudit(t *testing.T) {
	f := newFixture(t)
	f.writeSource(t, headerLine+voterLine("1"))
	f.audits.latestErr = errors.New("connection reset")

	result, err := f.coordinator.Run(context.Background(), "run-1")
	if err == nil {
		t.Fatalf("expected error when audit history is unreadable")
	}
	if result.State != StateFailed {
		t.Fatalf("expected FAILED, got %s", result.State)
	}
	if len(f.audits.records) != 1 || f.audits.records[0].LoadStatus != domain.LoadStatusFailed {
		t.Fatalf("expected one failed audit record, got %+v", f.audits.records)
	}
}

func TestRunRejectsRowsWithoutID(t *testing.T) {
	f := newFixture(t)
	f.writeSource(t, headerLine+voterLine("1")+",Bob,NoID,50,M,TX,DEM,bob@example.com,2019-01-01,,\n"+voterLine("2"))

	result, err := f.coordinator.Run(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	if result.InsertedRowCount != 2 {
		t.Fatalf("rows without id must not be inserted, got %d", result.InsertedRowCount)
	}
	if result.RejectedRows != 1 {
		t.Fatalf("expected 1 rejected row, got %d", result.RejectedRows)
	}
	// The id-less row still counts as a row seen in the source.
	if result.Fingerprint.RowCount != 3 {
		t.Fatalf("expected file row count 3, got %d", result.Fingerprint.RowCount)
	}
}
