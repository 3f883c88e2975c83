// Package source parses the voter roll file into raw records. Values are
// carried verbatim as text; no typing or validation happens here beyond the
// id presence filter.
package source

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/goodpartydata/voterflow/internal/domain"
)

// ErrUnsupportedFormat is returned when the source file is not CSV or XLSX.
var ErrUnsupportedFormat = errors.New("unsupported file format")

var byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

// Result carries the parsed rows plus data-quality counters.
type Result struct {
	Records []domain.VoterRecord
	// RejectedRows counts rows dropped for a missing id. Not fatal; they are
	// excluded from both the record set and any inserted count.
	RejectedRows int
}

// Parse reads the payload into voter records, dispatching on the file
// extension.
func Parse(fileName string, payload []byte) (Result, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv":
		return parseCSV(payload)
	case ".xlsx":
		return parseExcel(payload)
	default:
		return Result{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

func parseCSV(payload []byte) (Result, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return Result{}, fmt.Errorf("failed to read csv: %w", err)
	}

	return buildRecords(records)
}

func parseExcel(payload []byte) (Result, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Result{}, errors.New("excel file has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return Result{}, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}

	return buildRecords(rows)
}

func buildRecords(rows [][]string) (Result, error) {
	var result Result

	var headers []string
	for _, row := range rows {
		if len(cleanRow(row)) == 0 {
			continue
		}
		if headers == nil {
			headers = sanitizeHeaders(row)
			continue
		}

		row = padRow(row, len(headers))
		var rec domain.VoterRecord
		for idx, header := range headers {
			assignField(&rec, header, strings.TrimSpace(row[idx]))
		}

		if rec.ID == "" {
			result.RejectedRows++
			continue
		}
		result.Records = append(result.Records, rec)
	}

	if headers == nil {
		return Result{}, errors.New("header row could not be detected")
	}

	return result, nil
}

func assignField(rec *domain.VoterRecord, header, value string) {
	switch header {
	case "id":
		rec.ID = value
	case "first_name":
		rec.FirstName = value
	case "last_name":
		rec.LastName = value
	case "age":
		rec.Age = value
	case "gender":
		rec.Gender = value
	case "state":
		rec.State = value
	case "party":
		rec.Party = value
	case "email":
		rec.Email = value
	case "registered_date":
		rec.RegisteredDate = value
	case "last_voted_date":
		rec.LastVotedDate = value
	case "updated_at":
		rec.UpdatedAt = value
	}
	// Unknown columns are ignored rather than failing the parse.
}

func cleanRow(row []string) []string {
	var cleaned []string
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			cleaned = append(cleaned, cell)
		}
	}
	return cleaned
}

func sanitizeHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	for idx, value := range raw {
		name := strings.ToLower(strings.TrimSpace(value))
		name = strings.ReplaceAll(name, " ", "_")
		name = strings.ReplaceAll(name, ".", "_")
		name = strings.ReplaceAll(name, "-", "_")
		headers[idx] = strings.Trim(name, "_")
	}
	return headers
}

func padRow(row []string, length int) []string {
	if len(row) >= length {
		return row[:length]
	}
	padded := make([]string, length)
	copy(padded, row)
	return padded
}
