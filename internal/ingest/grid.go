// Package ingest implements the file ingestion pipeline: decoding raw files
// into string grids, locating the header row, transforming rows into typed
// records, filtering duplicates, and batch-loading into the target table.
package ingest

import "strings"

// RawGrid is a rectangular view of a decoded file: rows of literal string
// cells. No header is assumed and no null coercion has happened, so leading
// zeros and placeholder text survive exactly as written. Rows may have
// differing lengths; Cell treats out-of-range positions as empty.
type RawGrid [][]string

// NumRows returns the number of rows in the grid.
func (g RawGrid) NumRows() int { return len(g) }

// Row returns the cells of row i, or nil if out of range.
func (g RawGrid) Row(i int) []string {
	if i < 0 || i >= len(g) {
		return nil
	}
	return g[i]
}

// Cell returns the trimmed cell at (row, col), or "" if out of range.
func (g RawGrid) Cell(row, col int) string {
	r := g.Row(row)
	if col < 0 || col >= len(r) {
		return ""
	}
	return strings.TrimSpace(r[col])
}

// emptyCellMarkers are cell texts that count as blank when deciding whether a
// row carries data. "nan"/"None" show up in files round-tripped through
// spreadsheet tools.
func isBlankCell(s string) bool {
	switch strings.TrimSpace(s) {
	case "", "nan", "NaN", "None":
		return true
	}
	return false
}

// IsEmptyRow reports whether at least threshold (0..1) of the row's cells are
// blank. Such rows are metadata or padding and are skipped before transform.
func IsEmptyRow(row []string, threshold float64) bool {
	if len(row) == 0 {
		return true
	}
	blank := 0
	for _, cell := range row {
		if isBlankCell(cell) {
			blank++
		}
	}
	return float64(blank)/float64(len(row)) >= threshold
}
