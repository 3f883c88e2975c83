package repository

import (
	"context"
	"time"

	"github.com/goodpartydata/voterflow/internal/domain"
)

// VoterRepository defines the append-only operations against the raw table.
type VoterRepository interface {
	// InsertNew persists only records whose id is not already present,
	// stamping each with loadedAt and fileHash. The id-set difference and
	// the insert happen inside one transaction, so an interrupted load
	// leaves either all of the difference or none of it.
	InsertNew(ctx context.Context, records []domain.VoterRecord, fileHash string, loadedAt time.Time) (int64, error)
	Count(ctx context.Context) (int64, error)
}

// AuditRepository defines the append-only audit trail operations.
type AuditRepository interface {
	Record(ctx context.Context, rec domain.AuditRecord) error
	// LatestSuccess returns the most recent success record, or nil when no
	// run has ever succeeded (including when the audit table does not exist
	// yet on a first run).
	LatestSuccess(ctx context.Context) (*domain.AuditRecord, error)
	List(ctx context.Context, limit int) ([]domain.AuditRecord, error)
}
