package ingest

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/regdata-io/cmsload/internal/catalog"
)

// ErrHeaderNotFound is returned when no scanned row maps every required column.
var ErrHeaderNotFound = errors.New("header row not found")

// minPrefixLen is the shortest cell fragment allowed to match as a prefix of
// a known header; shorter fragments produce too many false positives.
const minPrefixLen = 3

// HeaderMatch describes the detected header row.
type HeaderMatch struct {
	// RowIndex is the zero-based grid row holding the header.
	RowIndex int
	// Columns maps canonical column names to the literal header cell text
	// that matched them.
	Columns map[string]string
	// UnmappedColumns lists the non-empty header cells no mapping claimed,
	// in row order.
	UnmappedColumns []string
}

// LocateHeader scans the first maxScanRows rows of the grid for a row whose
// cells satisfy every required column mapping. Mappings are tried in
// declaration order and each cell may satisfy at most one mapping within a
// row. The first qualifying row wins.
func LocateHeader(grid RawGrid, mappings []catalog.ColumnMapping, maxScanRows int) (*HeaderMatch, error) {
	limit := grid.NumRows()
	if limit > maxScanRows {
		limit = maxScanRows
	}

	var bestMissing []string
	for i := 0; i < limit; i++ {
		row := grid.Row(i)
		cols, claimed := matchHeaderRow(row, mappings)
		missing := missingRequired(cols, mappings)
		if len(missing) == 0 && len(cols) > 0 {
			return &HeaderMatch{
				RowIndex:        i,
				Columns:         cols,
				UnmappedColumns: unmappedCells(row, claimed),
			}, nil
		}
		if bestMissing == nil || len(missing) < len(bestMissing) {
			bestMissing = missing
		}
	}

	sort.Strings(bestMissing)
	return nil, fmt.Errorf("%w in first %d rows, missing required columns: %s",
		ErrHeaderNotFound, limit, strings.Join(bestMissing, ", "))
}

// matchHeaderRow maps canonical names to cell text for a single candidate
// row and reports which cell indexes were claimed. Cells already claimed by
// an earlier mapping are skipped.
func matchHeaderRow(row []string, mappings []catalog.ColumnMapping) (map[string]string, map[int]bool) {
	cols := make(map[string]string)
	claimed := make(map[int]bool)

	for _, m := range mappings {
		for idx, cell := range row {
			if claimed[idx] {
				continue
			}
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			if headerMatches(cell, m.Headers) {
				cols[m.InternalName] = cell
				claimed[idx] = true
				break
			}
		}
	}
	return cols, claimed
}

// unmappedCells returns the non-empty cells of the header row that no
// mapping claimed, in row order.
func unmappedCells(row []string, claimed map[int]bool) []string {
	var unmapped []string
	for idx, cell := range row {
		cell = strings.TrimSpace(cell)
		if cell == "" || claimed[idx] {
			continue
		}
		unmapped = append(unmapped, cell)
	}
	return unmapped
}

// headerMatches reports whether a cell matches any of the candidate header
// spellings: exact, the known spelling as a prefix of the cell, or the cell
// as a prefix of the known spelling when the cell is long enough to be
// distinctive. All comparisons are case-insensitive.
func headerMatches(cell string, headers []string) bool {
	lc := strings.ToLower(cell)
	for _, h := range headers {
		lh := strings.ToLower(strings.TrimSpace(h))
		if lh == "" {
			continue
		}
		if strings.HasPrefix(lc, lh) {
			return true
		}
		if len(lc) >= minPrefixLen && strings.HasPrefix(lh, lc) {
			return true
		}
	}
	return false
}

func missingRequired(cols map[string]string, mappings []catalog.ColumnMapping) []string {
	var missing []string
	for _, m := range mappings {
		if !m.Required {
			continue
		}
		if _, ok := cols[m.InternalName]; !ok {
			missing = append(missing, m.InternalName)
		}
	}
	return missing
}

// PositionIndex resolves each matched canonical column to a cell position in
// the header row. The row is indexed by literal cell text with later
// duplicates overwriting earlier ones, so a repeated header label resolves to
// its last occurrence.
func (h *HeaderMatch) PositionIndex(grid RawGrid) map[string]int {
	textToIdx := make(map[string]int)
	for idx, cell := range grid.Row(h.RowIndex) {
		cell = strings.TrimSpace(cell)
		if cell != "" {
			textToIdx[cell] = idx
		}
	}

	pos := make(map[string]int, len(h.Columns))
	for name, literal := range h.Columns {
		if idx, ok := textToIdx[literal]; ok {
			pos[name] = idx
		}
	}
	return pos
}
