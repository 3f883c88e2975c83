package domain

import "errors"

// Error taxonomy for the ingestion core. Callers classify failures with
// errors.Is; the wrapped chain carries the underlying cause.
var (
	// ErrUnreadableSource means the source file is missing or unreadable.
	// Fatal for the run; no fingerprint is produced.
	ErrUnreadableSource = errors.New("source file unreadable")

	// ErrSchemaInit means the destination tables could not be created.
	ErrSchemaInit = errors.New("schema initialization failed")

	// ErrSchemaMismatch means the destination tables exist but are
	// structurally incompatible with the expected layout.
	ErrSchemaMismatch = errors.New("destination schema mismatch")

	// ErrLoad means the raw table insert failed. Fatal for the attempt but
	// safe to retry wholesale: already-persisted ids are skipped next run.
	ErrLoad = errors.New("raw load failed")

	// ErrAuditWrite means the audit record itself could not be persisted.
	// Escalated, since it breaks the pipeline's self-reporting guarantee.
	ErrAuditWrite = errors.New("audit write failed")

	// ErrTransformInvocation means the downstream transformation run could
	// not be started or exited non-zero. Reported, but never retracts a
	// recorded successful load.
	ErrTransformInvocation = errors.New("transformation invocation failed")
)
