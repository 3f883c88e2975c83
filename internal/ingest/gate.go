package ingest

import "github.com/goodpartydata/voterflow/internal/domain"

// Decision is the change gate's verdict for a run.
type Decision string

const (
	Proceed Decision = "PROCEED"
	Skip    Decision = "SKIP"
)

// Decide compares the new fingerprint against the most recent successful
// audit record. Only a success record can short-circuit a run; failed and
// no-op attempts never block a retry. With no prior success the answer is
// always Proceed.
func Decide(fp domain.Fingerprint, lastSuccess *domain.AuditRecord) Decision {
	if lastSuccess != nil && lastSuccess.FileHash == fp.Digest {
		return Skip
	}
	return Proceed
}
