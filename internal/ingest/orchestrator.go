package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/regdata-io/cmsload/internal/catalog"
	"github.com/regdata-io/cmsload/internal/store"
	"github.com/regdata-io/cmsload/internal/version"
)

// Options tunes the pipeline. Zero values fall back to the defaults.
type Options struct {
	BatchSize         int
	HeaderScanRows    int
	EmptyRowThreshold float64
}

const (
	DefaultHeaderScanRows    = 15
	DefaultEmptyRowThreshold = 0.8
)

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.HeaderScanRows <= 0 {
		o.HeaderScanRows = DefaultHeaderScanRows
	}
	if o.EmptyRowThreshold <= 0 {
		o.EmptyRowThreshold = DefaultEmptyRowThreshold
	}
	return o
}

// Request identifies one file load.
type Request struct {
	SourceCode  string
	Variant     *string
	Year        int
	Quarter     int
	FilePath    string
	FileName    string
	MakeCurrent bool
}

// Result reports the outcome of one file load.
type Result struct {
	Success           bool                   `json:"success"`
	VersionID         int64                  `json:"version_id"`
	VersionLabel      string                 `json:"version_label"`
	Appended          bool                   `json:"appended"`
	PartNumber        int32                  `json:"part_number"`
	RowsProcessed     int                    `json:"rows_processed"`
	RowsInserted      int                    `json:"rows_inserted"`
	RowsSkipped       int                    `json:"rows_skipped"`
	DuplicatesSkipped int                    `json:"duplicates_skipped"`
	Errors            []string               `json:"errors,omitempty"`
	Warnings          []string               `json:"warnings,omitempty"`
	FailedRows        []FailedRow            `json:"failed_rows,omitempty"`
	ColumnStats       map[string]ColumnStats `json:"column_stats,omitempty"`

	// pending carries deduplicated records from the transform stage to the
	// loader within one run.
	pending []RecordRow
}

// Validation is the outcome of pre-ingest inspection of an uploaded file.
type Validation struct {
	SourceCode     string            `json:"source_code"`
	FileHash       string            `json:"file_hash"`
	FileSizeBytes  int64             `json:"file_size_bytes"`
	HeaderRowIndex int               `json:"header_row_index"`
	Columns        map[string]string `json:"columns"`
	Unmapped       []string          `json:"unmapped_columns,omitempty"`
	DataRows       int               `json:"data_rows"`
	Check          FileCheck         `json:"check"`
}

// Orchestrator runs the load pipeline for one file: decode, locate the
// header, transform and validate rows, drop duplicates, batch-insert, and
// bracket the whole thing with version bookkeeping under the version lock.
type Orchestrator struct {
	st     *store.Store
	cat    catalog.Catalog
	logger *slog.Logger
	opts   Options
}

func NewOrchestrator(st *store.Store, cat catalog.Catalog, logger *slog.Logger, opts Options) *Orchestrator {
	return &Orchestrator{st: st, cat: cat, logger: logger, opts: opts.withDefaults()}
}

// sourceContext resolves everything the pipeline needs to know about a
// source before touching the file.
type sourceContext struct {
	source   catalog.DataSource
	cfg      catalog.TableConfig
	columns  []catalog.CanonicalColumn
	mappings []catalog.ColumnMapping
}

func (o *Orchestrator) resolveSource(ctx context.Context, code string, variant *string) (*sourceContext, error) {
	src, err := o.cat.Source(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("look up source %s: %w", code, err)
	}
	cfg, ok := catalog.Config(src.Code)
	if !ok {
		return nil, fmt.Errorf("no table configuration for source %s", src.Code)
	}

	if len(cfg.Variants) > 0 {
		if variant == nil {
			return nil, fmt.Errorf("source %s requires a variant (one of %v)", src.Code, cfg.Variants)
		}
		if !slices.Contains(cfg.Variants, *variant) {
			return nil, fmt.Errorf("source %s: unknown variant %q (one of %v)", src.Code, *variant, cfg.Variants)
		}
	} else if variant != nil {
		return nil, fmt.Errorf("source %s does not take a variant", src.Code)
	}

	columns, err := o.cat.Columns(ctx, src.ID)
	if err != nil {
		return nil, fmt.Errorf("load columns for %s: %w", src.Code, err)
	}
	mappings, err := o.cat.Mappings(ctx, src.ID)
	if err != nil {
		return nil, fmt.Errorf("load mappings for %s: %w", src.Code, err)
	}
	return &sourceContext{source: src, cfg: cfg, columns: columns, mappings: mappings}, nil
}

// Validate inspects a file without writing anything: it decodes, locates the
// header, and runs the file-level checks. The returned hash lets a later
// ingest confirm it is loading the same bytes.
func (o *Orchestrator) Validate(ctx context.Context, req Request) (*Validation, error) {
	sc, err := o.resolveSource(ctx, req.SourceCode, req.Variant)
	if err != nil {
		return nil, err
	}

	hash, size, err := FileHash(req.FilePath)
	if err != nil {
		return nil, err
	}
	grid, err := Decode(req.FilePath)
	if err != nil {
		return nil, err
	}
	match, err := LocateHeader(grid, sc.mappings, o.opts.HeaderScanRows)
	if err != nil {
		return nil, err
	}
	posIdx := match.PositionIndex(grid)

	prevCount, havePrev, err := o.st.LatestCompletedCount(ctx, sc.source.ID)
	if err != nil {
		return nil, err
	}
	check := ValidateFile(grid, match, posIdx, sc.columns, o.opts.EmptyRowThreshold, prevCount, havePrev)

	dataRows := 0
	for i := match.RowIndex + 1; i < grid.NumRows(); i++ {
		if !IsEmptyRow(grid.Row(i), o.opts.EmptyRowThreshold) {
			dataRows++
		}
	}

	return &Validation{
		SourceCode:     sc.source.Code,
		FileHash:       hash,
		FileSizeBytes:  size,
		HeaderRowIndex: match.RowIndex,
		Columns:        match.Columns,
		Unmapped:       match.UnmappedColumns,
		DataRows:       dataRows,
		Check:          check,
	}, nil
}

// IngestFile loads one file end to end. Pre-flight failures (unreadable
// file, no header, invalid source) return an error without creating a
// version; once the version is claimed, failures are recorded on it and the
// result explains what happened.
func (o *Orchestrator) IngestFile(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	sc, err := o.resolveSource(ctx, req.SourceCode, req.Variant)
	if err != nil {
		return nil, err
	}

	label, err := version.BuildLabel(req.Year, req.Quarter)
	if err != nil {
		return nil, err
	}
	logger := o.logger.With(
		slog.String("source", sc.source.Code),
		slog.String("version", label),
		slog.String("file", req.FileName),
	)

	hash, size, err := FileHash(req.FilePath)
	if err != nil {
		return nil, err
	}
	grid, err := Decode(req.FilePath)
	if err != nil {
		return nil, err
	}
	match, err := LocateHeader(grid, sc.mappings, o.opts.HeaderScanRows)
	if err != nil {
		return nil, err
	}
	posIdx := match.PositionIndex(grid)

	prevCount, havePrev, err := o.st.LatestCompletedCount(ctx, sc.source.ID)
	if err != nil {
		return nil, err
	}
	check := ValidateFile(grid, match, posIdx, sc.columns, o.opts.EmptyRowThreshold, prevCount, havePrev)
	if !check.OK() {
		return nil, fmt.Errorf("file validation failed: %v", check.Errors)
	}

	result := &Result{VersionLabel: label, Warnings: check.Warnings}
	vreq := version.Request{
		SourceID:       sc.source.ID,
		Label:          label,
		Variant:        req.Variant,
		EffectiveDate:  version.EffectiveDate(req.Year, req.Quarter),
		FileName:       req.FileName,
		FileHash:       hash,
		FileSizeBytes:  size,
		HeaderRowIndex: match.RowIndex,
		MultiPart:      sc.cfg.MultiPart,
	}

	err = o.st.InVersionTx(ctx, sc.source.ID, label, req.Variant, func(tx *store.Store) error {
		mgr := version.NewManager(tx)
		if err := mgr.CheckDuplicateFile(ctx, sc.source.ID, hash, sc.cfg.MultiPart); err != nil {
			return err
		}
		acq, err := mgr.Acquire(ctx, vreq)
		if err != nil {
			return err
		}
		result.VersionID = acq.VersionID
		result.Appended = acq.Appending
		result.PartNumber = acq.PartNumber

		o.runPipeline(grid, match, posIdx, sc, result)

		loader := NewBatchLoader(tx.DB(), o.opts.BatchSize)
		inserted, failedRows := loader.Load(ctx, sc.cfg.Table, sc.cfg.Columns, result.pending, acq.VersionID)
		result.pending = nil
		result.RowsInserted = inserted
		result.FailedRows = failedRows
		for _, fr := range failedRows {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %s", fr.RowNumber, fr.Error))
		}
		result.Success = inserted > 0

		if !result.Success {
			msg := "no rows inserted"
			if len(result.Errors) > 0 {
				msg = result.Errors[0]
			}
			if err := mgr.Fail(ctx, acq, msg); err != nil {
				return err
			}
		} else {
			if err := mgr.Complete(ctx, acq, vreq, int64(inserted)); err != nil {
				return err
			}
			if req.MakeCurrent {
				if err := mgr.MakeCurrent(ctx, sc.source.ID, acq.VersionID, req.Variant); err != nil {
					return err
				}
			}
		}

		level, msg := "INFO", "ingestion completed"
		if !result.Success {
			level, msg = "ERROR", "ingestion failed"
		}
		return tx.LogEvent(ctx, result.VersionID, level, msg, map[string]any{
			"file_name":          req.FileName,
			"rows_processed":     result.RowsProcessed,
			"rows_inserted":      result.RowsInserted,
			"rows_skipped":       result.RowsSkipped,
			"duplicates_skipped": result.DuplicatesSkipped,
			"failed_rows":        len(result.FailedRows),
			"part_number":        result.PartNumber,
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Info("ingestion finished",
		slog.Bool("success", result.Success),
		slog.Int("rows_inserted", result.RowsInserted),
		slog.Int("rows_skipped", result.RowsSkipped),
		slog.Int("duplicates_skipped", result.DuplicatesSkipped),
		slog.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

// runPipeline transforms the data rows into records ready for loading,
// filling the row counters and column statistics on the result.
func (o *Orchestrator) runPipeline(grid RawGrid, match *HeaderMatch, posIdx map[string]int, sc *sourceContext, result *Result) {
	strat := StrategyFor(sc.source.Code)
	stats := newStatsCollector(sc.cfg.Columns)

	var records []RecordRow
	for i := match.RowIndex + 1; i < grid.NumRows(); i++ {
		row := grid.Row(i)
		if IsEmptyRow(row, o.opts.EmptyRowThreshold) {
			result.RowsSkipped++
			continue
		}
		// 1-based file row, so errors point at the actual line.
		rowNumber := i + 1

		rec := TransformRow(row, sc.columns, posIdx, strat)
		if err := ValidateRecord(rec, sc.cfg.UniqueKeys, rowNumber); err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		result.RowsProcessed++
		stats.Observe(rec)
		records = append(records, RecordRow{Record: rec, Row: rowNumber})
	}

	kept, dups := FilterDuplicates(records, sc.cfg.UniqueKeys)
	result.DuplicatesSkipped = dups
	result.ColumnStats = stats.Result()
	result.pending = kept
}
