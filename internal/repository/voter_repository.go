package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/goodpartydata/voterflow/internal/db"
	"github.com/goodpartydata/voterflow/internal/domain"
)

var voterColumns = []string{
	"id",
	"first_name",
	"last_name",
	"age",
	"gender",
	"state",
	"party",
	"email",
	"registered_date",
	"last_voted_date",
	"updated_at",
	"load_timestamp",
	"source_file_hash",
}

type voterRepository struct {
	conn *db.Connection
}

// NewVoterRepository wires a repository backed by the shared connection.
func NewVoterRepository(conn *db.Connection) VoterRepository {
	return &voterRepository{conn: conn}
}

func (r *voterRepository) InsertNew(ctx context.Context, records []domain.VoterRecord, fileHash string, loadedAt time.Time) (int64, error) {
	if r.conn == nil {
		return 0, fmt.Errorf("voter repository not initialized")
	}
	if len(records) == 0 {
		return 0, nil
	}

	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
	}

	var inserted int64
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT id FROM raw_voters WHERE id = ANY($1)`, ids)
		if err != nil {
			return classifyLoadError("failed to query existing ids", err)
		}

		existing := make(map[string]struct{})
		for rows.Next() {
			var id string
			if scanErr := rows.Scan(&id); scanErr != nil {
				rows.Close()
				return classifyLoadError("failed to scan existing id", scanErr)
			}
			existing[id] = struct{}{}
		}
		rows.Close()
		if rowsErr := rows.Err(); rowsErr != nil {
			return classifyLoadError("failed to iterate existing ids", rowsErr)
		}

		fresh := make([]domain.VoterRecord, 0, len(records))
		for _, rec := range records {
			if _, found := existing[rec.ID]; found {
				continue
			}
			fresh = append(fresh, rec)
		}
		if len(fresh) == 0 {
			return nil
		}

		copied, err := tx.CopyFrom(
			ctx,
			pgx.Identifier{"raw_voters"},
			voterColumns,
			pgx.CopyFromSlice(len(fresh), func(i int) ([]any, error) {
				rec := fresh[i]
				return []any{
					rec.ID,
					rec.FirstName,
					rec.LastName,
					rec.Age,
					rec.Gender,
					rec.State,
					rec.Party,
					rec.Email,
					rec.RegisteredDate,
					rec.LastVotedDate,
					rec.UpdatedAt,
					loadedAt,
					fileHash,
				}, nil
			}),
		)
		if err != nil {
			return classifyLoadError("failed to copy new voter rows", err)
		}

		inserted = copied
		return nil
	})
	if err != nil {
		return 0, err
	}

	return inserted, nil
}

func (r *voterRepository) Count(ctx context.Context) (int64, error) {
	if r.conn == nil {
		return 0, fmt.Errorf("voter repository not initialized")
	}

	var count int64
	if err := r.conn.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM raw_voters`).Scan(&count); err != nil {
		return 0, classifyLoadError("failed to count voter rows", err)
	}
	return count, nil
}

// classifyLoadError maps Postgres failures onto the ingestion taxonomy.
// Missing or structurally altered destination objects surface as a schema
// mismatch; everything else is a load failure, retryable wholesale because
// the id primary key makes re-runs skip already-persisted rows.
func classifyLoadError(msg string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "42P01", "42703", "42804": // undefined table/column, datatype mismatch
			return fmt.Errorf("%w: %s: %v", domain.ErrSchemaMismatch, msg, err)
		}
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrLoad, msg, err)
}
