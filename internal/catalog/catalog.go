// Package catalog exposes the read-only ingestion metadata: data sources,
// their canonical columns, and the header-text variants that identify those
// columns in uploaded files. The metadata lives in the meta schema and is
// treated as immutable for the duration of an ingestion run.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/regdata-io/cmsload/internal/store"
)

// ErrSourceNotFound means no active data source matches the requested code.
var ErrSourceNotFound = errors.New("data source not found")

// ColumnType is the canonical data type of a column as declared in the catalog.
type ColumnType int

const (
	TypeText ColumnType = iota
	TypeNumeric
	TypeInteger
	TypeDate
	TypeBoolean
)

// ParseColumnType converts the catalog's TEXT/NUMERIC/INTEGER/DATE/BOOLEAN
// declaration to a ColumnType. Unknown declarations fall back to TypeText,
// matching the loader's lenient coercion policy.
func ParseColumnType(s string) ColumnType {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NUMERIC":
		return TypeNumeric
	case "INTEGER":
		return TypeInteger
	case "DATE":
		return TypeDate
	case "BOOLEAN":
		return TypeBoolean
	default:
		return TypeText
	}
}

// String returns the catalog declaration for the type.
func (t ColumnType) String() string {
	switch t {
	case TypeNumeric:
		return "NUMERIC"
	case TypeInteger:
		return "INTEGER"
	case TypeDate:
		return "DATE"
	case TypeBoolean:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

// DataSource describes one upstream file family (e.g. NCCI_PTP).
type DataSource struct {
	ID          int64
	Code        string
	Name        string
	Category    string
	TargetTable string
	Active      bool
}

// CanonicalColumn is one fixed internal field of a source.
type CanonicalColumn struct {
	InternalName string
	DataType     ColumnType
	Required     bool
}

// ColumnMapping holds the accepted literal header spellings for one canonical
// column, in catalog declaration order. Order matters: earlier-declared
// columns claim header cells first when a file's headers are ambiguous.
type ColumnMapping struct {
	InternalName string
	Headers      []string
	Required     bool
}

// Catalog provides read-only access to ingestion metadata.
type Catalog interface {
	// Source looks up an active data source by code (case-insensitive).
	Source(ctx context.Context, code string) (DataSource, error)

	// Columns returns the canonical columns of a source in declaration order.
	Columns(ctx context.Context, sourceID int64) ([]CanonicalColumn, error)

	// Mappings returns the header variants per canonical column, in the same
	// declaration order as Columns.
	Mappings(ctx context.Context, sourceID int64) ([]ColumnMapping, error)

	// ListSources returns all active data sources.
	ListSources(ctx context.Context) ([]DataSource, error)
}

// PG is the Postgres-backed Catalog reading the meta schema.
type PG struct {
	db store.DBTX
}

// NewPG returns a Catalog backed by the given database handle.
func NewPG(db store.DBTX) *PG {
	return &PG{db: db}
}

// Source implements Catalog.
func (c *PG) Source(ctx context.Context, code string) (DataSource, error) {
	var src DataSource
	err := c.db.QueryRow(ctx, `
		SELECT id, source_code, source_name, category, target_table, is_active
		FROM meta.data_sources
		WHERE source_code = $1 AND is_active = TRUE`,
		strings.ToUpper(strings.TrimSpace(code)),
	).Scan(&src.ID, &src.Code, &src.Name, &src.Category, &src.TargetTable, &src.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return DataSource{}, fmt.Errorf("%w: %s", ErrSourceNotFound, code)
	}
	if err != nil {
		return DataSource{}, fmt.Errorf("lookup source %q: %w", code, err)
	}
	return src, nil
}

// ListSources returns all active data sources ordered by code.
func (c *PG) ListSources(ctx context.Context) ([]DataSource, error) {
	rows, err := c.db.Query(ctx, `
		SELECT id, source_code, source_name, category, target_table, is_active
		FROM meta.data_sources
		WHERE is_active = TRUE
		ORDER BY source_code`,
	)
	if err != nil {
		return nil, fmt.Errorf("query data sources: %w", err)
	}
	defer rows.Close()

	var sources []DataSource
	for rows.Next() {
		var src DataSource
		if err := rows.Scan(&src.ID, &src.Code, &src.Name, &src.Category, &src.TargetTable, &src.Active); err != nil {
			return nil, fmt.Errorf("scan data source: %w", err)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// Columns implements Catalog.
func (c *PG) Columns(ctx context.Context, sourceID int64) ([]CanonicalColumn, error) {
	rows, err := c.db.Query(ctx, `
		SELECT internal_name, data_type, is_required
		FROM meta.canonical_columns
		WHERE source_id = $1
		ORDER BY id`,
		sourceID,
	)
	if err != nil {
		return nil, fmt.Errorf("query canonical columns: %w", err)
	}
	defer rows.Close()

	var cols []CanonicalColumn
	for rows.Next() {
		var (
			col      CanonicalColumn
			dataType string
		)
		if err := rows.Scan(&col.InternalName, &dataType, &col.Required); err != nil {
			return nil, fmt.Errorf("scan canonical column: %w", err)
		}
		col.DataType = ParseColumnType(dataType)
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

// Mappings implements Catalog.
func (c *PG) Mappings(ctx context.Context, sourceID int64) ([]ColumnMapping, error) {
	rows, err := c.db.Query(ctx, `
		SELECT cc.internal_name, cc.is_required, cm.source_headers
		FROM meta.canonical_columns cc
		JOIN meta.column_mappings cm ON cm.canonical_column_id = cc.id
		WHERE cc.source_id = $1
		ORDER BY cc.id`,
		sourceID,
	)
	if err != nil {
		return nil, fmt.Errorf("query column mappings: %w", err)
	}
	defer rows.Close()

	var mappings []ColumnMapping
	for rows.Next() {
		var m ColumnMapping
		if err := rows.Scan(&m.InternalName, &m.Required, &m.Headers); err != nil {
			return nil, fmt.Errorf("scan column mapping: %w", err)
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

// TypeMap builds an internal_name -> ColumnType lookup from canonical columns.
func TypeMap(cols []CanonicalColumn) map[string]ColumnType {
	m := make(map[string]ColumnType, len(cols))
	for _, col := range cols {
		m[col.InternalName] = col.DataType
	}
	return m
}
