package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/goodpartydata/voterflow/internal/domain"
)

func TestDecide(t *testing.T) {
	fp := domain.Fingerprint{Digest: "abc123", RowCount: 10}

	t.Run("no prior success proceeds", func(t *testing.T) {
		assert.Equal(t, Proceed, Decide(fp, nil))
	})

	t.Run("matching success skips", func(t *testing.T) {
		last := &domain.AuditRecord{FileHash: "abc123", LoadStatus: domain.LoadStatusSuccess}
		assert.Equal(t, Skip, Decide(fp, last))
	})

	t.Run("different success proceeds", func(t *testing.T) {
		last := &domain.AuditRecord{FileHash: "def456", LoadStatus: domain.LoadStatusSuccess}
		assert.Equal(t, Proceed, Decide(fp, last))
	})

	t.Run("row count never affects the decision", func(t *testing.T) {
		last := &domain.AuditRecord{FileHash: "abc123", FileRowCount: 999}
		assert.Equal(t, Skip, Decide(fp, last))
	})
}
