package domain

// Fingerprint summarizes source file content for change detection. RowCount
// is informational (reporting); equality is decided by the digest alone.
type Fingerprint struct {
	Digest   string `json:"digest"`
	RowCount int64  `json:"row_count"`
}

// Equal reports whether both fingerprints describe identical file content.
func (f Fingerprint) Equal(other Fingerprint) bool {
	return f.Digest == other.Digest
}
