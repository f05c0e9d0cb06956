package version

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/regdata-io/cmsload/internal/store"
)

var (
	// ErrVersionExists means a completed version already holds this label
	// for a source that does not accept additional parts.
	ErrVersionExists = errors.New("version already ingested")
	// ErrDuplicateFile means this exact file was already loaded as a
	// completed version of the source.
	ErrDuplicateFile = errors.New("file already ingested")
	// ErrDuplicatePart means this exact file was already loaded as a part
	// of a multi-part version.
	ErrDuplicatePart = errors.New("file already ingested as a part")
)

// Store is the persistence surface the manager drives. *store.Store
// implements it, both pool-backed and transaction-scoped.
type Store interface {
	CreateVersion(ctx context.Context, nv store.NewVersion) (int64, error)
	GetCompletedVersion(ctx context.Context, sourceID int64, label string, variant *string) (*store.DataVersion, error)
	DeleteFailedVersion(ctx context.Context, sourceID int64, label string, variant *string) (bool, error)
	AddPart(ctx context.Context, versionID int64, partNumber int32, fileName, fileHash string, fileSize, recordCount int64) error
	AddPartTotals(ctx context.Context, versionID int64, additionalRecords int64) error
	SetCompleted(ctx context.Context, versionID int64, recordCount int64) error
	SetFailed(ctx context.Context, versionID int64, message string) error
	MarkCurrent(ctx context.Context, sourceID, versionID int64, variant *string) error
	FindCompletedByHash(ctx context.Context, sourceID int64, fileHash string) (*store.DataVersion, error)
	FindPartByHash(ctx context.Context, sourceID int64, fileHash string) (*store.VersionPart, error)
}

// Manager brackets an ingestion run with version bookkeeping. Construct one
// per run, over the transaction-scoped store, so all of its writes commit or
// roll back together under the version's advisory lock.
type Manager struct {
	st Store
}

func NewManager(st Store) *Manager {
	return &Manager{st: st}
}

// Request identifies the version a file belongs to.
type Request struct {
	SourceID       int64
	Label          string
	Variant        *string
	EffectiveDate  time.Time
	FileName       string
	FileHash       string
	FileSizeBytes  int64
	HeaderRowIndex int
	MultiPart      bool
}

// Acquisition is an open claim on a version row. Appending means the version
// was already completed and this file extends it as an additional part.
type Acquisition struct {
	VersionID  int64
	Appending  bool
	PartNumber int32
	MultiPart  bool
}

// CheckDuplicateFile rejects a file whose content hash was already loaded for
// this source. Multi-part sources are guarded per part, everything else
// against completed versions.
func (m *Manager) CheckDuplicateFile(ctx context.Context, sourceID int64, fileHash string, multiPart bool) error {
	if multiPart {
		p, err := m.st.FindPartByHash(ctx, sourceID, fileHash)
		if err != nil {
			return err
		}
		if p != nil {
			return fmt.Errorf("%w: part %d of version %s", ErrDuplicatePart, p.PartNumber, p.VersionLabel)
		}
		return nil
	}

	v, err := m.st.FindCompletedByHash(ctx, sourceID, fileHash)
	if err != nil {
		return err
	}
	if v != nil {
		return fmt.Errorf("%w: version %s (%s)", ErrDuplicateFile, v.VersionLabel, v.FileName)
	}
	return nil
}

// Acquire claims the version row for req. A completed version blocks the
// claim unless the source is multi-part, in which case the file appends as
// the next part. A failed earlier attempt is deleted so the load can retry
// clean.
func (m *Manager) Acquire(ctx context.Context, req Request) (*Acquisition, error) {
	existing, err := m.st.GetCompletedVersion(ctx, req.SourceID, req.Label, req.Variant)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if !req.MultiPart {
			return nil, fmt.Errorf("%w: %s", ErrVersionExists, req.Label)
		}
		return &Acquisition{
			VersionID:  existing.ID,
			Appending:  true,
			PartNumber: existing.PartCount + 1,
			MultiPart:  true,
		}, nil
	}

	if _, err := m.st.DeleteFailedVersion(ctx, req.SourceID, req.Label, req.Variant); err != nil {
		return nil, err
	}

	id, err := m.st.CreateVersion(ctx, store.NewVersion{
		SourceID:       req.SourceID,
		VersionLabel:   req.Label,
		Variant:        req.Variant,
		EffectiveDate:  req.EffectiveDate,
		FileName:       req.FileName,
		FileHash:       req.FileHash,
		FileSizeBytes:  req.FileSizeBytes,
		HeaderRowIndex: int32(req.HeaderRowIndex),
	})
	if err != nil {
		return nil, err
	}
	return &Acquisition{VersionID: id, PartNumber: 1, MultiPart: req.MultiPart}, nil
}

// Complete finalizes a successful load. Appended parts are recorded without
// touching the completed status; a fresh version flips to completed, or
// failed when nothing was inserted.
func (m *Manager) Complete(ctx context.Context, acq *Acquisition, req Request, recordCount int64) error {
	if acq.Appending {
		if err := m.st.AddPart(ctx, acq.VersionID, acq.PartNumber, req.FileName, req.FileHash, req.FileSizeBytes, recordCount); err != nil {
			return err
		}
		return m.st.AddPartTotals(ctx, acq.VersionID, recordCount)
	}

	if recordCount == 0 {
		return m.st.SetFailed(ctx, acq.VersionID, "no rows inserted")
	}
	if err := m.st.SetCompleted(ctx, acq.VersionID, recordCount); err != nil {
		return err
	}
	if acq.MultiPart {
		return m.st.AddPart(ctx, acq.VersionID, acq.PartNumber, req.FileName, req.FileHash, req.FileSizeBytes, recordCount)
	}
	return nil
}

// Fail marks the claimed version failed. Appending claims do not fail the
// already-completed version they extend.
func (m *Manager) Fail(ctx context.Context, acq *Acquisition, message string) error {
	if acq.Appending {
		return nil
	}
	return m.st.SetFailed(ctx, acq.VersionID, message)
}

// MakeCurrent promotes the version to the active one for its source and
// variant.
func (m *Manager) MakeCurrent(ctx context.Context, sourceID, versionID int64, variant *string) error {
	return m.st.MarkCurrent(ctx, sourceID, versionID, variant)
}
