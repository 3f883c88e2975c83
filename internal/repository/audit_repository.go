package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/goodpartydata/voterflow/internal/domain"
)

const auditSelectColumns = `ingestion_id, file_hash, source_path, file_row_count,
	 inserted_row_count, load_status, dag_run_id, ingested_at`

type auditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository wires a repository backed by pgxpool.
func NewAuditRepository(pool *pgxpool.Pool) AuditRepository {
	return &auditRepository{pool: pool}
}

func (r *auditRepository) Record(ctx context.Context, rec domain.AuditRecord) error {
	if r.pool == nil {
		return fmt.Errorf("%w: audit repository not initialized", domain.ErrAuditWrite)
	}

	var runID any
	if rec.DagRunID != "" {
		runID = rec.DagRunID
	}

	_, err := r.pool.Exec(
		ctx,
		`INSERT INTO voter_ingestion_audit (
			 ingestion_id, file_hash, source_path, file_row_count,
			 inserted_row_count, load_status, dag_run_id, ingested_at
		 )
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.IngestionID,
		rec.FileHash,
		rec.SourcePath,
		rec.FileRowCount,
		rec.InsertedRowCount,
		string(rec.LoadStatus),
		runID,
		rec.IngestedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrAuditWrite, err)
	}

	return nil
}

func (r *auditRepository) LatestSuccess(ctx context.Context) (*domain.AuditRecord, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("audit repository not initialized")
	}

	row := r.pool.QueryRow(
		ctx,
		`SELECT `+auditSelectColumns+`
		 FROM voter_ingestion_audit
		 WHERE load_status = $1
		 ORDER BY ingested_at DESC
		 LIMIT 1`,
		string(domain.LoadStatusSuccess),
	)

	rec, err := scanAuditRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		// First run against a fresh warehouse: the audit table does not
		// exist until the schema initializer has run, which happens after
		// the gate. Treat it as no prior record.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "42P01" {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read latest successful audit record: %w", err)
	}

	return &rec, nil
}

func (r *auditRepository) List(ctx context.Context, limit int) ([]domain.AuditRecord, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("audit repository not initialized")
	}

	if limit <= 0 {
		limit = 50
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT `+auditSelectColumns+`
		 FROM voter_ingestion_audit
		 ORDER BY ingested_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	defer rows.Close()

	records := []domain.AuditRecord{}
	for rows.Next() {
		rec, scanErr := scanAuditRecord(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", scanErr)
		}
		records = append(records, rec)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate audit records: %w", rowsErr)
	}

	return records, nil
}

func scanAuditRecord(row pgx.Row) (domain.AuditRecord, error) {
	var (
		rec        domain.AuditRecord
		status     string
		runID      pgtype.Text
		ingestedAt pgtype.Timestamptz
	)

	if err := row.Scan(
		&rec.IngestionID,
		&rec.FileHash,
		&rec.SourcePath,
		&rec.FileRowCount,
		&rec.InsertedRowCount,
		&status,
		&runID,
		&ingestedAt,
	); err != nil {
		return domain.AuditRecord{}, err
	}

	rec.LoadStatus = domain.LoadStatus(status)
	if runID.Valid {
		rec.DagRunID = runID.String
	}
	if ingestedAt.Valid {
		rec.IngestedAt = ingestedAt.Time
	}

	return rec, nil
}
