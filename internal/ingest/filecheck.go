package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/regdata-io/cmsload/internal/catalog"
)

// typeSampleRows is how many data rows the type sanity check inspects.
const typeSampleRows = 100

// FileCheck is the outcome of pre-ingest validation. Errors block ingestion;
// warnings are advisory and never do.
type FileCheck struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (c FileCheck) OK() bool { return len(c.Errors) == 0 }

// FileHash returns the SHA-256 of the file contents as lowercase hex, plus
// the file size.
func FileHash(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// ValidateExtension checks the filename against the accepted extensions.
func ValidateExtension(filename string, allowed []string) error {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, a := range allowed {
		if ext == strings.ToLower(a) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s (accepted: %s)", ErrUnsupportedFormat, ext, strings.Join(allowed, ", "))
}

// ValidateFile runs file-level sanity checks once the header is located:
// the file must hold at least one data row, the row count should be in line
// with the previous load, and typed columns should mostly coerce on a sample
// of leading rows.
func ValidateFile(grid RawGrid, match *HeaderMatch, posIdx map[string]int, columns []catalog.CanonicalColumn, emptyThreshold float64, prevCount int64, havePrev bool) FileCheck {
	var check FileCheck

	dataRows := 0
	for i := match.RowIndex + 1; i < grid.NumRows(); i++ {
		if !IsEmptyRow(grid.Row(i), emptyThreshold) {
			dataRows++
		}
	}
	if dataRows == 0 {
		check.Errors = append(check.Errors, "no data rows found after the header row")
		return check
	}

	if havePrev && prevCount > 0 {
		ratio := float64(dataRows) / float64(prevCount)
		if ratio < 0.5 {
			check.Warnings = append(check.Warnings, fmt.Sprintf(
				"row count %d is under half the previous load (%d)", dataRows, prevCount))
		} else if ratio > 1.5 {
			check.Warnings = append(check.Warnings, fmt.Sprintf(
				"row count %d is over 150%% of the previous load (%d)", dataRows, prevCount))
		}
	}

	check.Warnings = append(check.Warnings, sampleTypeWarnings(grid, match, posIdx, columns, emptyThreshold)...)
	return check
}

// sampleTypeWarnings coerces a leading sample of rows and flags any typed
// column where most non-blank values fail to parse, which usually means the
// header matched the wrong column.
func sampleTypeWarnings(grid RawGrid, match *HeaderMatch, posIdx map[string]int, columns []catalog.CanonicalColumn, emptyThreshold float64) []string {
	type tally struct{ seen, bad int }
	counts := make(map[string]*tally)
	for _, col := range columns {
		if col.DataType != catalog.TypeText {
			counts[col.InternalName] = &tally{}
		}
	}

	sampled := 0
	for i := match.RowIndex + 1; i < grid.NumRows() && sampled < typeSampleRows; i++ {
		row := grid.Row(i)
		if IsEmptyRow(row, emptyThreshold) {
			continue
		}
		sampled++
		for _, col := range columns {
			t, ok := counts[col.InternalName]
			if !ok {
				continue
			}
			idx, ok := posIdx[col.InternalName]
			if !ok || idx >= len(row) {
				continue
			}
			raw := strings.TrimSpace(row[idx])
			if raw == "" || raw == "*" {
				continue
			}
			t.seen++
			if transformValue(raw, col.DataType, col.InternalName).IsNull() {
				t.bad++
			}
		}
	}

	var warnings []string
	for _, col := range columns {
		t, ok := counts[col.InternalName]
		if !ok || t.seen == 0 {
			continue
		}
		if t.bad*2 > t.seen {
			warnings = append(warnings, fmt.Sprintf(
				"column %s: %d of %d sampled values do not parse as %s",
				col.InternalName, t.bad, t.seen, col.DataType))
		}
	}
	return warnings
}
