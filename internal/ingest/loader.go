package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/regdata-io/cmsload/internal/store"
)

// DefaultBatchSize is the number of rows per multi-row INSERT.
const DefaultBatchSize = 1000

// FailedRow records a row the loader could not insert.
type FailedRow struct {
	RowNumber int    `json:"row_number"`
	Error     string `json:"error"`
}

// BatchLoader inserts transformed records with multi-row statements, falling
// back to row-at-a-time inserts when a batch is rejected so one bad row
// cannot sink its batch.
type BatchLoader struct {
	db        store.DBTX
	batchSize int
}

func NewBatchLoader(db store.DBTX, batchSize int) *BatchLoader {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &BatchLoader{db: db, batchSize: batchSize}
}

// Load inserts records into table, tagging each row with the data version.
// It returns the inserted count and the rows that failed; it does not return
// an error, load problems surface only as failed rows.
func (l *BatchLoader) Load(ctx context.Context, table string, columns []string, records []RecordRow, versionID int64) (int, []FailedRow) {
	inserted := 0
	var failed []FailedRow

	for start := 0; start < len(records); start += l.batchSize {
		end := start + l.batchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		sql, args := buildInsert(table, columns, batch, versionID)
		if _, err := l.db.Exec(ctx, sql, args...); err == nil {
			inserted += len(batch)
			continue
		}

		// Batch rejected; retry each row so only the offenders are lost.
		for _, rr := range batch {
			sql, args := buildInsert(table, columns, []RecordRow{rr}, versionID)
			if _, err := l.db.Exec(ctx, sql, args...); err != nil {
				failed = append(failed, FailedRow{RowNumber: rr.Row, Error: err.Error()})
				continue
			}
			inserted++
		}
	}
	return inserted, failed
}

// buildInsert renders a multi-row INSERT with numbered placeholders. The
// version column comes first, then the canonical columns in order.
func buildInsert(table string, columns []string, batch []RecordRow, versionID int64) (string, []any) {
	width := len(columns) + 1
	args := make([]any, 0, len(batch)*width)
	rows := make([]string, 0, len(batch))

	for i, rr := range batch {
		ph := make([]string, width)
		for j := 0; j < width; j++ {
			ph[j] = fmt.Sprintf("$%d", i*width+j+1)
		}
		rows = append(rows, "("+strings.Join(ph, ", ")+")")

		args = append(args, versionID)
		for _, col := range columns {
			args = append(args, rr.Record.Get(col).Arg())
		}
	}

	sql := fmt.Sprintf("INSERT INTO %s (data_version_id, %s) VALUES %s",
		table, strings.Join(columns, ", "), strings.Join(rows, ", "))
	return sql, args
}
