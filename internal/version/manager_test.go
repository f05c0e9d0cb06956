package version

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/regdata-io/cmsload/internal/store"
)

// fakeStore is an in-memory version.Store.
type fakeStore struct {
	nextID    int64
	versions  map[int64]*store.DataVersion
	parts     []store.VersionPart
	deleted   []string
	failedMsg map[int64]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nextID:    1,
		versions:  make(map[int64]*store.DataVersion),
		failedMsg: make(map[int64]string),
	}
}

func (f *fakeStore) addCompleted(sourceID int64, label string, variant *string, count int64, parts int32, hash string) *store.DataVersion {
	v := &store.DataVersion{
		ID: f.nextID, SourceID: sourceID, VersionLabel: label, Variant: variant,
		Status: store.StatusCompleted, RecordCount: count, PartCount: parts, FileHash: hash,
	}
	f.versions[f.nextID] = v
	f.nextID++
	return v
}

func (f *fakeStore) CreateVersion(ctx context.Context, nv store.NewVersion) (int64, error) {
	id := f.nextID
	f.nextID++
	f.versions[id] = &store.DataVersion{
		ID: id, SourceID: nv.SourceID, VersionLabel: nv.VersionLabel, Variant: nv.Variant,
		EffectiveDate: nv.EffectiveDate, Status: store.StatusProcessing,
		FileName: nv.FileName, FileHash: nv.FileHash, PartCount: 1,
	}
	return id, nil
}

func variantEq(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (f *fakeStore) GetCompletedVersion(ctx context.Context, sourceID int64, label string, variant *string) (*store.DataVersion, error) {
	for _, v := range f.versions {
		if v.SourceID == sourceID && v.VersionLabel == label && variantEq(v.Variant, variant) &&
			v.Status == store.StatusCompleted {
			return v, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) DeleteFailedVersion(ctx context.Context, sourceID int64, label string, variant *string) (bool, error) {
	for id, v := range f.versions {
		if v.SourceID == sourceID && v.VersionLabel == label && variantEq(v.Variant, variant) &&
			v.Status == store.StatusFailed {
			delete(f.versions, id)
			f.deleted = append(f.deleted, label)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) AddPart(ctx context.Context, versionID int64, partNumber int32, fileName, fileHash string, fileSize, recordCount int64) error {
	f.parts = append(f.parts, store.VersionPart{
		VersionID: versionID, PartNumber: partNumber, FileName: fileName,
		FileHash: fileHash, RecordCount: recordCount,
	})
	return nil
}

func (f *fakeStore) AddPartTotals(ctx context.Context, versionID int64, additionalRecords int64) error {
	v := f.versions[versionID]
	v.RecordCount += additionalRecords
	v.PartCount++
	return nil
}

func (f *fakeStore) SetCompleted(ctx context.Context, versionID int64, recordCount int64) error {
	v := f.versions[versionID]
	v.Status = store.StatusCompleted
	v.RecordCount = recordCount
	return nil
}

func (f *fakeStore) SetFailed(ctx context.Context, versionID int64, message string) error {
	f.versions[versionID].Status = store.StatusFailed
	f.failedMsg[versionID] = message
	return nil
}

func (f *fakeStore) MarkCurrent(ctx context.Context, sourceID, versionID int64, variant *string) error {
	for _, v := range f.versions {
		if v.SourceID == sourceID && variantEq(v.Variant, variant) {
			v.IsCurrent = v.ID == versionID
		}
	}
	return nil
}

func (f *fakeStore) FindCompletedByHash(ctx context.Context, sourceID int64, fileHash string) (*store.DataVersion, error) {
	for _, v := range f.versions {
		if v.SourceID == sourceID && v.FileHash == fileHash && v.Status == store.StatusCompleted {
			return v, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) FindPartByHash(ctx context.Context, sourceID int64, fileHash string) (*store.VersionPart, error) {
	for i, p := range f.parts {
		v, ok := f.versions[p.VersionID]
		if ok && v.SourceID == sourceID && p.FileHash == fileHash {
			out := f.parts[i]
			out.VersionLabel = v.VersionLabel
			return &out, nil
		}
	}
	return nil, nil
}

func req(multiPart bool) Request {
	return Request{
		SourceID:      1,
		Label:         "2026-Q1",
		EffectiveDate: EffectiveDate(2026, 1),
		FileName:      "mue_q1.csv",
		FileHash:      "hash-a",
		MultiPart:     multiPart,
	}
}

func TestAcquireFresh(t *testing.T) {
	fs := newFakeStore()
	m := NewManager(fs)

	acq, err := m.Acquire(context.Background(), req(false))
	if err != nil {
		t.Fatal(err)
	}
	if acq.Appending || acq.PartNumber != 1 {
		t.Errorf("acq = %+v, want fresh part 1", acq)
	}
	if fs.versions[acq.VersionID].Status != store.StatusProcessing {
		t.Errorf("status = %s, want processing", fs.versions[acq.VersionID].Status)
	}
}

func TestAcquireCompletedBlocks(t *testing.T) {
	fs := newFakeStore()
	fs.addCompleted(1, "2026-Q1", nil, 100, 1, "old-hash")
	m := NewManager(fs)

	_, err := m.Acquire(context.Background(), req(false))
	if !errors.Is(err, ErrVersionExists) {
		t.Fatalf("err = %v, want ErrVersionExists", err)
	}
}

func TestAcquireMultiPartAppends(t *testing.T) {
	fs := newFakeStore()
	existing := fs.addCompleted(1, "2026-Q1", nil, 100, 2, "old-hash")
	m := NewManager(fs)

	acq, err := m.Acquire(context.Background(), req(true))
	if err != nil {
		t.Fatal(err)
	}
	if !acq.Appending || acq.VersionID != existing.ID || acq.PartNumber != 3 {
		t.Errorf("acq = %+v, want appending part 3 on version %d", acq, existing.ID)
	}
}

func TestAcquireRetriesAfterFailure(t *testing.T) {
	fs := newFakeStore()
	id, _ := fs.CreateVersion(context.Background(), store.NewVersion{
		SourceID: 1, VersionLabel: "2026-Q1", FileHash: "old-hash",
	})
	fs.versions[id].Status = store.StatusFailed
	m := NewManager(fs)

	acq, err := m.Acquire(context.Background(), req(false))
	if err != nil {
		t.Fatal(err)
	}
	if acq.VersionID == id {
		t.Error("failed version should be replaced, not reused")
	}
	if len(fs.deleted) != 1 {
		t.Errorf("deleted = %v, want the failed attempt removed", fs.deleted)
	}
}

func TestVariantsAreIndependent(t *testing.T) {
	fs := newFakeStore()
	hosp := "HOSPITAL"
	prac := "PRACTITIONER"
	fs.addCompleted(1, "2026-Q1", &hosp, 100, 1, "h-hash")
	m := NewManager(fs)

	r := req(true)
	r.Variant = &prac
	acq, err := m.Acquire(context.Background(), r)
	if err != nil {
		t.Fatal(err)
	}
	if acq.Appending {
		t.Error("different variant must not append to the hospital version")
	}
}

func TestCompleteFresh(t *testing.T) {
	fs := newFakeStore()
	m := NewManager(fs)
	r := req(false)

	acq, _ := m.Acquire(context.Background(), r)
	if err := m.Complete(context.Background(), acq, r, 500); err != nil {
		t.Fatal(err)
	}

	v := fs.versions[acq.VersionID]
	if v.Status != store.StatusCompleted || v.RecordCount != 500 {
		t.Errorf("version = %+v", v)
	}
	if len(fs.parts) != 0 {
		t.Errorf("single-file source should not record parts: %v", fs.parts)
	}
}

func TestCompleteMultiPartFirstFile(t *testing.T) {
	fs := newFakeStore()
	m := NewManager(fs)
	r := req(true)

	acq, _ := m.Acquire(context.Background(), r)
	if err := m.Complete(context.Background(), acq, r, 500); err != nil {
		t.Fatal(err)
	}

	if len(fs.parts) != 1 || fs.parts[0].PartNumber != 1 {
		t.Fatalf("parts = %v, want part 1 recorded", fs.parts)
	}
	if fs.versions[acq.VersionID].Status != store.StatusCompleted {
		t.Errorf("status = %s", fs.versions[acq.VersionID].Status)
	}
}

func TestCompleteAppendedPart(t *testing.T) {
	fs := newFakeStore()
	existing := fs.addCompleted(1, "2026-Q1", nil, 100, 1, "old-hash")
	m := NewManager(fs)
	r := req(true)

	acq, _ := m.Acquire(context.Background(), r)
	if err := m.Complete(context.Background(), acq, r, 50); err != nil {
		t.Fatal(err)
	}

	if existing.RecordCount != 150 || existing.PartCount != 2 {
		t.Errorf("totals = %d records %d parts, want 150/2", existing.RecordCount, existing.PartCount)
	}
	if existing.Status != store.StatusCompleted {
		t.Errorf("appending must not flip status, got %s", existing.Status)
	}
	if len(fs.parts) != 1 || fs.parts[0].PartNumber != 2 {
		t.Errorf("parts = %v", fs.parts)
	}
}

func TestCompleteZeroRowsFails(t *testing.T) {
	fs := newFakeStore()
	m := NewManager(fs)
	r := req(false)

	acq, _ := m.Acquire(context.Background(), r)
	if err := m.Complete(context.Background(), acq, r, 0); err != nil {
		t.Fatal(err)
	}
	if fs.versions[acq.VersionID].Status != store.StatusFailed {
		t.Errorf("status = %s, want failed", fs.versions[acq.VersionID].Status)
	}
}

func TestFailSkipsAppending(t *testing.T) {
	fs := newFakeStore()
	existing := fs.addCompleted(1, "2026-Q1", nil, 100, 1, "old-hash")
	m := NewManager(fs)

	acq, _ := m.Acquire(context.Background(), req(true))
	if err := m.Fail(context.Background(), acq, "boom"); err != nil {
		t.Fatal(err)
	}
	if existing.Status != store.StatusCompleted {
		t.Errorf("appending failure must not fail the completed version, got %s", existing.Status)
	}
}

func TestCheckDuplicateFile(t *testing.T) {
	fs := newFakeStore()
	fs.addCompleted(1, "2026-Q1", nil, 100, 1, "dup-hash")
	m := NewManager(fs)

	err := m.CheckDuplicateFile(context.Background(), 1, "dup-hash", false)
	if !errors.Is(err, ErrDuplicateFile) {
		t.Fatalf("err = %v, want ErrDuplicateFile", err)
	}
	if err := m.CheckDuplicateFile(context.Background(), 1, "new-hash", false); err != nil {
		t.Fatalf("new hash should pass: %v", err)
	}
	// A different source may load the same bytes.
	if err := m.CheckDuplicateFile(context.Background(), 2, "dup-hash", false); err != nil {
		t.Fatalf("other source should pass: %v", err)
	}
}

func TestCheckDuplicatePart(t *testing.T) {
	fs := newFakeStore()
	v := fs.addCompleted(1, "2026-Q1", nil, 100, 1, "first-hash")
	fs.AddPart(context.Background(), v.ID, 1, "ptp_part1.csv", "part-hash", 0, 100)
	m := NewManager(fs)

	err := m.CheckDuplicateFile(context.Background(), 1, "part-hash", true)
	if !errors.Is(err, ErrDuplicatePart) {
		t.Fatalf("err = %v, want ErrDuplicatePart", err)
	}
	if !strings.Contains(err.Error(), "part 1") {
		t.Errorf("error should name the part: %v", err)
	}
	if err := m.CheckDuplicateFile(context.Background(), 1, "new-hash", true); err != nil {
		t.Fatalf("new hash should pass: %v", err)
	}
}

func TestMakeCurrent(t *testing.T) {
	fs := newFakeStore()
	old := fs.addCompleted(1, "2025-Q4", nil, 90, 1, "old")
	old.IsCurrent = true
	cur := fs.addCompleted(1, "2026-Q1", nil, 100, 1, "new")
	m := NewManager(fs)

	if err := m.MakeCurrent(context.Background(), 1, cur.ID, nil); err != nil {
		t.Fatal(err)
	}
	if old.IsCurrent || !cur.IsCurrent {
		t.Errorf("current flags: old=%v new=%v", old.IsCurrent, cur.IsCurrent)
	}
}

func TestBuildLabel(t *testing.T) {
	label, err := BuildLabel(2026, 1)
	if err != nil || label != "2026-Q1" {
		t.Errorf("BuildLabel = %q, %v", label, err)
	}
	if _, err := BuildLabel(2026, 5); err == nil {
		t.Error("quarter 5 should fail")
	}
	if _, err := BuildLabel(1800, 1); err == nil {
		t.Error("implausible year should fail")
	}
}

func TestEffectiveDate(t *testing.T) {
	tests := []struct {
		quarter int
		want    time.Month
	}{
		{1, time.January}, {2, time.April}, {3, time.July}, {4, time.October},
	}
	for _, tt := range tests {
		got := EffectiveDate(2026, tt.quarter)
		if got.Month() != tt.want || got.Day() != 1 || got.Year() != 2026 {
			t.Errorf("EffectiveDate(2026, %d) = %v", tt.quarter, got)
		}
	}
}
