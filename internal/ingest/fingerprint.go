package ingest

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/goodpartydata/voterflow/internal/domain"
	"github.com/goodpartydata/voterflow/internal/source"
)

// ReadAndFingerprint reads the source file once and returns the raw payload
// alongside its fingerprint. A file that cannot be opened or parsed yields
// domain.ErrUnreadableSource; no partial fingerprint is produced.
func ReadAndFingerprint(path string) ([]byte, domain.Fingerprint, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.Fingerprint{}, fmt.Errorf("%w: %s: %v", domain.ErrUnreadableSource, path, err)
	}

	fp, err := ComputeFingerprint(path, payload)
	if err != nil {
		return nil, domain.Fingerprint{}, err
	}
	return payload, fp, nil
}

// ComputeFingerprint derives the content digest and data row count.
// Identical bytes always produce an identical digest; the row count excludes
// the header line, so a header-only file counts zero.
func ComputeFingerprint(fileName string, payload []byte) (domain.Fingerprint, error) {
	sum := sha256.Sum256(payload)

	rows, err := countDataRows(fileName, payload)
	if err != nil {
		return domain.Fingerprint{}, fmt.Errorf("%w: counting rows in %s: %w", domain.ErrUnreadableSource, fileName, err)
	}

	return domain.Fingerprint{
		Digest:   hex.EncodeToString(sum[:]),
		RowCount: rows,
	}, nil
}

func countDataRows(fileName string, payload []byte) (int64, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv":
		return countCSVRows(payload)
	case ".xlsx":
		return countExcelRows(payload)
	default:
		return 0, fmt.Errorf("%w: %s", source.ErrUnsupportedFormat, ext)
	}
}

func countCSVRows(payload []byte) (int64, error) {
	reader := csv.NewReader(bytes.NewReader(payload))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	var count int64
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, err
		}
		if rowEmpty(record) {
			continue
		}
		count++
	}

	// Exclude the header line.
	if count > 0 {
		count--
	}
	return count, nil
}

func countExcelRows(payload []byte) (int64, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return 0, errors.New("excel file has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return 0, err
	}

	var count int64
	for _, row := range rows {
		if !rowEmpty(row) {
			count++
		}
	}
	if count > 0 {
		count--
	}
	return count, nil
}

func rowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
