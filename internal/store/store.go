package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// DataVersion is one logical release of a source's data, keyed by
// (source_id, version_label, variant).
type DataVersion struct {
	ID             int64
	SourceID       int64
	VersionLabel   string
	Variant        *string
	EffectiveDate  time.Time
	Status         string
	RecordCount    int64
	PartCount      int32
	IsCurrent      bool
	FileName       string
	FileHash       string
	FileSizeBytes  int64
	HeaderRowIndex int32
	ErrorMessage   *string
	ImportedAt     *time.Time
}

// Version statuses.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// VersionPart is one physical file appended to a multi-part version.
type VersionPart struct {
	ID            int64
	VersionID     int64
	PartNumber    int32
	FileName      string
	FileHash      string
	FileSizeBytes int64
	RecordCount   int64
	VersionLabel  string
	Variant       *string
}

// NewVersion carries the fields needed to create a version in processing state.
type NewVersion struct {
	SourceID       int64
	VersionLabel   string
	Variant        *string
	EffectiveDate  time.Time
	FileName       string
	FileHash       string
	FileSizeBytes  int64
	HeaderRowIndex int32
}

// TxBeginner is a DBTX that can also open transactions. *pgxpool.Pool
// satisfies it.
type TxBeginner interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store reads and writes versioning metadata. The zero value is not usable;
// construct with New. Within InVersionTx the returned Store is scoped to the
// open transaction.
type Store struct {
	db   DBTX
	pool TxBeginner
}

// New returns a Store backed by the given pool or connection.
func New(db TxBeginner) *Store {
	return &Store{db: db, pool: db}
}

// DB exposes the underlying query surface, pool or transaction scoped, for
// callers that issue their own statements inside a version transaction.
func (s *Store) DB() DBTX { return s.db }

// InVersionTx runs fn inside a transaction that holds an advisory lock on the
// (source_id, version_label, variant) key. Two concurrent ingestions for the
// same key serialize here; different keys proceed in parallel. The lock is
// released on commit or rollback.
func (s *Store) InVersionTx(ctx context.Context, sourceID int64, label string, variant *string, fn func(tx *Store) error) error {
	if s.pool == nil {
		return errors.New("store: transactions require a pool-backed store")
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin version tx: %w", err)
	}
	defer tx.Rollback(ctx)

	v := ""
	if variant != nil {
		v = *variant
	}
	lockKey := fmt.Sprintf("%d/%s/%s", sourceID, label, v)
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lockKey); err != nil {
		return fmt.Errorf("acquire version lock: %w", err)
	}

	if err := fn(&Store{db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit version tx: %w", err)
	}
	return nil
}

// CreateVersion inserts a new data version in processing state with part_count 1.
func (s *Store) CreateVersion(ctx context.Context, nv NewVersion) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO meta.data_versions (
			source_id, version_label, variant, effective_date,
			file_name, file_hash, file_size_bytes, header_row_index,
			status, part_count, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'processing', 1, NOW())
		RETURNING id`,
		nv.SourceID, nv.VersionLabel, nv.Variant, nv.EffectiveDate,
		nv.FileName, nv.FileHash, nv.FileSizeBytes, nv.HeaderRowIndex,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create version: %w", err)
	}
	return id, nil
}

// GetCompletedVersion returns the completed version for a key, or nil if none.
func (s *Store) GetCompletedVersion(ctx context.Context, sourceID int64, label string, variant *string) (*DataVersion, error) {
	var v DataVersion
	err := s.db.QueryRow(ctx, `
		SELECT id, record_count, part_count
		FROM meta.data_versions
		WHERE source_id = $1 AND version_label = $2 AND variant IS NOT DISTINCT FROM $3
		  AND status = 'completed'`,
		sourceID, label, variant,
	).Scan(&v.ID, &v.RecordCount, &v.PartCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get completed version: %w", err)
	}
	v.SourceID = sourceID
	v.VersionLabel = label
	v.Variant = variant
	v.Status = StatusCompleted
	return &v, nil
}

// DeleteFailedVersion removes a failed version for the key so the caller can
// retry the upload. Returns true if a row was deleted.
func (s *Store) DeleteFailedVersion(ctx context.Context, sourceID int64, label string, variant *string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM meta.data_versions
		WHERE source_id = $1 AND version_label = $2 AND variant IS NOT DISTINCT FROM $3
		  AND status = 'failed'`,
		sourceID, label, variant,
	)
	if err != nil {
		return false, fmt.Errorf("delete failed version: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// AddPart records one appended file for a multi-part version. The unique
// constraints on (version_id, part_number) and (version_id, file_hash) back
// up the duplicate checks done before parsing.
func (s *Store) AddPart(ctx context.Context, versionID int64, partNumber int32, fileName, fileHash string, fileSize, recordCount int64) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO meta.data_version_parts (
			data_version_id, part_number, file_name, file_hash,
			file_size_bytes, record_count, imported_at
		) VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		versionID, partNumber, fileName, fileHash, fileSize, recordCount,
	)
	if err != nil {
		return fmt.Errorf("add version part: %w", err)
	}
	return nil
}

// AddPartTotals bumps part_count and adds the part's records to record_count.
func (s *Store) AddPartTotals(ctx context.Context, versionID int64, additionalRecords int64) error {
	_, err := s.db.Exec(ctx, `
		UPDATE meta.data_versions
		SET record_count = COALESCE(record_count, 0) + $2,
		    part_count = COALESCE(part_count, 1) + 1,
		    imported_at = NOW()
		WHERE id = $1`,
		versionID, additionalRecords,
	)
	if err != nil {
		return fmt.Errorf("update version totals: %w", err)
	}
	return nil
}

// SetCompleted transitions a version to completed with its final record count.
func (s *Store) SetCompleted(ctx context.Context, versionID int64, recordCount int64) error {
	_, err := s.db.Exec(ctx, `
		UPDATE meta.data_versions
		SET status = 'completed', record_count = $2, imported_at = NOW()
		WHERE id = $1`,
		versionID, recordCount,
	)
	if err != nil {
		return fmt.Errorf("set version completed: %w", err)
	}
	return nil
}

// SetFailed transitions a version to failed with an error message.
func (s *Store) SetFailed(ctx context.Context, versionID int64, message string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE meta.data_versions
		SET status = 'failed', error_message = $2
		WHERE id = $1`,
		versionID, message,
	)
	if err != nil {
		return fmt.Errorf("set version failed: %w", err)
	}
	return nil
}

// MarkCurrent flags a version as current, unflagging any previously current
// version for the same (source, variant) first.
func (s *Store) MarkCurrent(ctx context.Context, sourceID, versionID int64, variant *string) error {
	var err error
	if variant != nil {
		_, err = s.db.Exec(ctx, `
			UPDATE meta.data_versions
			SET is_current = FALSE
			WHERE source_id = $1 AND variant = $2 AND is_current = TRUE`,
			sourceID, *variant,
		)
	} else {
		_, err = s.db.Exec(ctx, `
			UPDATE meta.data_versions
			SET is_current = FALSE
			WHERE source_id = $1 AND is_current = TRUE`,
			sourceID,
		)
	}
	if err != nil {
		return fmt.Errorf("unset current version: %w", err)
	}

	if _, err := s.db.Exec(ctx, `UPDATE meta.data_versions SET is_current = TRUE WHERE id = $1`, versionID); err != nil {
		return fmt.Errorf("set current version: %w", err)
	}
	return nil
}

// FindCompletedByHash returns the completed version that was loaded from a
// file with the given content hash, or nil. Failed uploads are ignored so the
// same file can be retried after a failure.
func (s *Store) FindCompletedByHash(ctx context.Context, sourceID int64, fileHash string) (*DataVersion, error) {
	var (
		v        DataVersion
		imported time.Time
	)
	err := s.db.QueryRow(ctx, `
		SELECT id, version_label, variant, file_name, imported_at
		FROM meta.data_versions
		WHERE source_id = $1 AND file_hash = $2 AND status = 'completed'`,
		sourceID, fileHash,
	).Scan(&v.ID, &v.VersionLabel, &v.Variant, &v.FileName, &imported)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find version by hash: %w", err)
	}
	v.SourceID = sourceID
	v.FileHash = fileHash
	v.Status = StatusCompleted
	v.ImportedAt = &imported
	return &v, nil
}

// FindPartByHash returns the recorded part matching a file hash for any of
// the source's versions, or nil.
func (s *Store) FindPartByHash(ctx context.Context, sourceID int64, fileHash string) (*VersionPart, error) {
	var p VersionPart
	err := s.db.QueryRow(ctx, `
		SELECT vp.id, vp.data_version_id, vp.part_number, v.version_label, v.variant
		FROM meta.data_version_parts vp
		JOIN meta.data_versions v ON v.id = vp.data_version_id
		WHERE v.source_id = $1 AND vp.file_hash = $2`,
		sourceID, fileHash,
	).Scan(&p.ID, &p.VersionID, &p.PartNumber, &p.VersionLabel, &p.Variant)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find part by hash: %w", err)
	}
	p.FileHash = fileHash
	return &p, nil
}

// LatestCompletedCount returns the record count of the most recent completed
// version for a source. ok is false when the source has no completed version.
func (s *Store) LatestCompletedCount(ctx context.Context, sourceID int64) (count int64, ok bool, err error) {
	err = s.db.QueryRow(ctx, `
		SELECT record_count
		FROM meta.data_versions
		WHERE source_id = $1 AND status = 'completed'
		ORDER BY effective_date DESC
		LIMIT 1`,
		sourceID,
	).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("latest completed count: %w", err)
	}
	return count, true, nil
}

// ListVersions returns versions for a source, newest label first.
func (s *Store) ListVersions(ctx context.Context, sourceID int64, limit int) ([]DataVersion, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, version_label, variant, status, COALESCE(record_count, 0),
		       COALESCE(part_count, 1), is_current, file_name, imported_at
		FROM meta.data_versions
		WHERE source_id = $1
		ORDER BY version_label DESC, variant
		LIMIT $2`,
		sourceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var versions []DataVersion
	for rows.Next() {
		var v DataVersion
		if err := rows.Scan(&v.ID, &v.VersionLabel, &v.Variant, &v.Status, &v.RecordCount,
			&v.PartCount, &v.IsCurrent, &v.FileName, &v.ImportedAt); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		v.SourceID = sourceID
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// GetVersion fetches one version by id, or nil when it does not exist.
func (s *Store) GetVersion(ctx context.Context, versionID int64) (*DataVersion, error) {
	var v DataVersion
	err := s.db.QueryRow(ctx, `
		SELECT id, source_id, version_label, variant, status, COALESCE(record_count, 0),
		       COALESCE(part_count, 1), is_current, file_name, imported_at
		FROM meta.data_versions
		WHERE id = $1`,
		versionID,
	).Scan(&v.ID, &v.SourceID, &v.VersionLabel, &v.Variant, &v.Status, &v.RecordCount,
		&v.PartCount, &v.IsCurrent, &v.FileName, &v.ImportedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get version %d: %w", versionID, err)
	}
	return &v, nil
}

// IngestionEvent is one entry of a version's ingestion event log.
type IngestionEvent struct {
	ID        int64
	VersionID int64
	Level     string
	Message   string
	Details   map[string]any
	CreatedAt *time.Time
}

// ListEvents returns the event log for a version, oldest first.
func (s *Store) ListEvents(ctx context.Context, versionID int64, limit int) ([]IngestionEvent, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, data_version_id, log_level, message, details, created_at
		FROM meta.ingestion_logs
		WHERE data_version_id = $1
		ORDER BY id
		LIMIT $2`,
		versionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list ingestion events: %w", err)
	}
	defer rows.Close()

	var events []IngestionEvent
	for rows.Next() {
		var e IngestionEvent
		var details []byte
		if err := rows.Scan(&e.ID, &e.VersionID, &e.Level, &e.Message, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ingestion event: %w", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("decode event details: %w", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// LogEvent appends an entry to the ingestion event log. Details are stored as
// JSON; a nil map stores NULL.
func (s *Store) LogEvent(ctx context.Context, versionID int64, level, message string, details map[string]any) error {
	var payload any
	if details != nil {
		b, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("marshal event details: %w", err)
		}
		payload = b
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO meta.ingestion_logs (data_version_id, log_level, message, details)
		VALUES ($1, $2, $3, $4)`,
		versionID, level, message, payload,
	)
	if err != nil {
		return fmt.Errorf("log ingestion event: %w", err)
	}
	return nil
}
