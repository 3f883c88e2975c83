package domain

import (
	"time"

	"github.com/google/uuid"
)

// LoadStatus enumerates the outcome recorded for an ingestion attempt.
type LoadStatus string

const (
	LoadStatusSuccess LoadStatus = "success"
	LoadStatusNoOp    LoadStatus = "no-op"
	LoadStatusFailed  LoadStatus = "failed"
)

// AuditRecord captures one ingestion attempt. Records are append-only: the
// core inserts them and reads them back, never mutates or deletes them.
type AuditRecord struct {
	IngestionID      uuid.UUID  `json:"ingestion_id"`
	FileHash         string     `json:"file_hash"`
	SourcePath       string     `json:"source_path"`
	FileRowCount     int64      `json:"file_row_count"`
	InsertedRowCount int64      `json:"inserted_row_count"`
	LoadStatus       LoadStatus `json:"load_status"`
	DagRunID         string     `json:"dag_run_id"`
	IngestedAt       time.Time  `json:"ingested_at"`
}
