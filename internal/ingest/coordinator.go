// Package ingest implements the ingestion control pipeline: fingerprint the
// source file, decide whether anything changed, delta-load new rows into the
// raw table, record an audit trail entry, and hand off to the downstream
// transformation run.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/goodpartydata/voterflow/internal/domain"
	"github.com/goodpartydata/voterflow/internal/repository"
	"github.com/goodpartydata/voterflow/internal/source"
)

// State names the coordinator's position in a run.
type State string

const (
	StateStart              State = "START"
	StateFingerprinted      State = "FINGERPRINTED"
	StateSkipped            State = "SKIPPED"
	StateSchemaReady        State = "SCHEMA_READY"
	StateLoaded             State = "LOADED"
	StateAudited            State = "AUDITED"
	StateTransformTriggered State = "TRANSFORM_TRIGGERED"
	StateFailed             State = "FAILED"
)

// SchemaInitializer idempotently ensures the destination tables exist.
type SchemaInitializer interface {
	EnsureSchema(ctx context.Context) error
}

// SchemaInitializerFunc adapts a plain function to SchemaInitializer.
type SchemaInitializerFunc func(ctx context.Context) error

func (f SchemaInitializerFunc) EnsureSchema(ctx context.Context) error { return f(ctx) }

// TransformRunner triggers the downstream transformation pipeline. The
// coordinator only cares whether the invocation itself succeeded.
type TransformRunner interface {
	Run(ctx context.Context) error
}

// RunResult reports the outcome of one coordinated run.
type RunResult struct {
	State            State              `json:"state"`
	Status           domain.LoadStatus  `json:"status"`
	IngestionID      uuid.UUID          `json:"ingestion_id"`
	Fingerprint      domain.Fingerprint `json:"fingerprint"`
	InsertedRowCount int64              `json:"inserted_row_count"`
	RejectedRows     int                `json:"rejected_rows"`
	TransformError   string             `json:"transform_error,omitempty"`
}

// Coordinator sequences one ingestion run. The external scheduler serializes
// runs; nothing here assumes more than the raw table's primary key for
// concurrency safety.
type Coordinator struct {
	sourcePath  string
	voters      repository.VoterRepository
	audits      repository.AuditRepository
	schema      SchemaInitializer
	transformer TransformRunner

	now   func() time.Time
	newID func() uuid.UUID
}

// NewCoordinator wires a coordinator over its collaborators.
func NewCoordinator(
	sourcePath string,
	voters repository.VoterRepository,
	audits repository.AuditRepository,
	schema SchemaInitializer,
	transformer TransformRunner,
) *Coordinator {
	return &Coordinator{
		sourcePath:  sourcePath,
		voters:      voters,
		audits:      audits,
		schema:      schema,
		transformer: transformer,
		now:         time.Now,
		newID:       uuid.New,
	}
}

// FingerprintSource reads the source file and computes its fingerprint.
func (c *Coordinator) FingerprintSource() ([]byte, domain.Fingerprint, error) {
	return ReadAndFingerprint(c.sourcePath)
}

// Decide runs the change gate against the most recent successful audit
// record.
func (c *Coordinator) Decide(ctx context.Context, fp domain.Fingerprint) (Decision, error) {
	lastSuccess, err := c.audits.LatestSuccess(ctx)
	if err != nil {
		return Proceed, fmt.Errorf("failed to consult audit history: %w", err)
	}
	return Decide(fp, lastSuccess), nil
}

// Load parses the payload and delta-loads rows whose id is not yet
// persisted, stamped with the load time and the file digest.
func (c *Coordinator) Load(ctx context.Context, payload []byte, fp domain.Fingerprint) (int64, int, error) {
	parsed, err := source.Parse(c.sourcePath, payload)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: parsing %s: %v", domain.ErrLoad, c.sourcePath, err)
	}
	if parsed.RejectedRows > 0 {
		log.Printf("Rejected %d rows with missing id from %s", parsed.RejectedRows, c.sourcePath)
	}

	inserted, err := c.voters.InsertNew(ctx, parsed.Records, fp.Digest, c.now())
	if err != nil {
		return 0, parsed.RejectedRows, err
	}
	return inserted, parsed.RejectedRows, nil
}

// Run drives the full state machine for one scheduler invocation. Every
// attempt that gets past fingerprinting leaves exactly one audit record.
func (c *Coordinator) Run(ctx context.Context, runID string) (RunResult, error) {
	res := RunResult{State: StateStart}

	payload, fp, err := c.FingerprintSource()
	if err != nil {
		// No fingerprint means no audit record is possible for this attempt.
		res.State = StateFailed
		res.Status = domain.LoadStatusFailed
		return res, err
	}
	res.State = StateFingerprinted
	res.Fingerprint = fp

	decision, err := c.Decide(ctx, fp)
	if err != nil {
		return c.fail(ctx, res, runID, fp, err)
	}

	if decision == Skip {
		rec := c.newAudit(fp, runID, 0, domain.LoadStatusNoOp)
		if auditErr := c.audits.Record(ctx, rec); auditErr != nil {
			res.State = StateFailed
			res.Status = domain.LoadStatusFailed
			return res, auditErr
		}
		log.Printf("Hash %s already loaded; skipping (run %s)", fp.Digest, runID)
		res.State = StateSkipped
		res.Status = domain.LoadStatusNoOp
		res.IngestionID = rec.IngestionID
		return res, nil
	}

	if err := c.schema.EnsureSchema(ctx); err != nil {
		return c.fail(ctx, res, runID, fp, err)
	}
	res.State = StateSchemaReady

	inserted, rejected, err := c.Load(ctx, payload, fp)
	if err != nil {
		return c.fail(ctx, res, runID, fp, err)
	}
	res.State = StateLoaded
	res.InsertedRowCount = inserted
	res.RejectedRows = rejected
	log.Printf("Loaded %d new voter rows from %s using hash %s", inserted, c.sourcePath, fp.Digest)

	rec := c.newAudit(fp, runID, inserted, domain.LoadStatusSuccess)
	if auditErr := c.audits.Record(ctx, rec); auditErr != nil {
		// The batch is committed but unaudited; the next run re-evaluates
		// this hash and the id constraint keeps the re-load duplicate-free.
		res.State = StateFailed
		res.Status = domain.LoadStatusFailed
		return res, auditErr
	}
	res.State = StateAudited
	res.Status = domain.LoadStatusSuccess
	res.IngestionID = rec.IngestionID

	if err := c.transformer.Run(ctx); err != nil {
		// The load is durably recorded; only the downstream transformation
		// needs re-running, which its own tooling manages.
		wrapped := fmt.Errorf("%w: %v", domain.ErrTransformInvocation, err)
		log.Printf("Transformation trigger failed after successful load of hash %s: %v", fp.Digest, wrapped)
		res.TransformError = wrapped.Error()
		return res, nil
	}
	res.State = StateTransformTriggered

	return res, nil
}

// fail records a best-effort failed audit entry before surfacing the cause.
// If even the audit write fails, both errors go to the scheduler rather
// than being swallowed.
func (c *Coordinator) fail(ctx context.Context, res RunResult, runID string, fp domain.Fingerprint, cause error) (RunResult, error) {
	res.State = StateFailed
	res.Status = domain.LoadStatusFailed

	rec := c.newAudit(fp, runID, 0, domain.LoadStatusFailed)
	if auditErr := c.audits.Record(ctx, rec); auditErr != nil {
		return res, errors.Join(cause, auditErr)
	}
	res.IngestionID = rec.IngestionID
	return res, cause
}

func (c *Coordinator) newAudit(fp domain.Fingerprint, runID string, inserted int64, status domain.LoadStatus) domain.AuditRecord {
	return domain.AuditRecord{
		IngestionID:      c.newID(),
		FileHash:         fp.Digest,
		SourcePath:       c.sourcePath,
		FileRowCount:     fp.RowCount,
		InsertedRowCount: inserted,
		LoadStatus:       status,
		DagRunID:         runID,
		IngestedAt:       c.now(),
	}
}
