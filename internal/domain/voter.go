package domain

import "time"

// VoterRecord is one row of the source roll. The id comes from the source
// and is stable across files; payload fields are carried verbatim as text.
// LoadTimestamp and SourceFileHash are stamped at load time, not parsed
// from the file.
type VoterRecord struct {
	ID             string    `json:"id"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	Age            string    `json:"age"`
	Gender         string    `json:"gender"`
	State          string    `json:"state"`
	Party          string    `json:"party"`
	Email          string    `json:"email"`
	RegisteredDate string    `json:"registered_date"`
	LastVotedDate  string    `json:"last_voted_date"`
	UpdatedAt      string    `json:"updated_at"`
	LoadTimestamp  time.Time `json:"load_timestamp"`
	SourceFileHash string    `json:"source_file_hash"`
}
