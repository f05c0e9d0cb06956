package web

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/regdata-io/cmsload/internal/catalog"
	"github.com/regdata-io/cmsload/internal/ingest"
	"github.com/regdata-io/cmsload/internal/logging"
	"github.com/regdata-io/cmsload/internal/store"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := s.st.DB().Exec(r.Context(), `SELECT 1`); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// sourceView is the API shape of one data source.
type sourceView struct {
	Code      string   `json:"code"`
	Name      string   `json:"name"`
	Category  string   `json:"category"`
	Table     string   `json:"table"`
	MultiPart bool     `json:"multi_part"`
	Variants  []string `json:"variants,omitempty"`
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.cat.ListSources(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	views := make([]sourceView, 0, len(sources))
	for _, src := range sources {
		v := sourceView{Code: src.Code, Name: src.Name, Category: src.Category, Table: src.TargetTable}
		if cfg, ok := catalog.Config(src.Code); ok {
			v.MultiPart = cfg.MultiPart
			v.Variants = cfg.Variants
		}
		views = append(views, v)
	}
	respondJSON(w, http.StatusOK, map[string]any{"sources": views})
}

type columnView struct {
	InternalName string   `json:"internal_name"`
	DataType     string   `json:"data_type"`
	Required     bool     `json:"required"`
	Headers      []string `json:"headers"`
}

func (s *Server) handleSourceColumns(w http.ResponseWriter, r *http.Request) {
	src, err := s.cat.Source(r.Context(), chi.URLParam(r, "sourceCode"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	columns, err := s.cat.Columns(r.Context(), src.ID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	mappings, err := s.cat.Mappings(r.Context(), src.ID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	headers := make(map[string][]string, len(mappings))
	for _, m := range mappings {
		headers[m.InternalName] = m.Headers
	}

	views := make([]columnView, 0, len(columns))
	for _, col := range columns {
		views = append(views, columnView{
			InternalName: col.InternalName,
			DataType:     col.DataType.String(),
			Required:     col.Required,
			Headers:      headers[col.InternalName],
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"source": src.Code, "columns": views})
}

// versionView is the API shape of one data version.
type versionView struct {
	ID           int64      `json:"id"`
	VersionLabel string     `json:"version_label"`
	Variant      *string    `json:"variant,omitempty"`
	Status       string     `json:"status"`
	RecordCount  int64      `json:"record_count"`
	PartCount    int32      `json:"part_count"`
	IsCurrent    bool       `json:"is_current"`
	FileName     string     `json:"file_name"`
	ImportedAt   *time.Time `json:"imported_at,omitempty"`
}

func viewOfVersion(v store.DataVersion) versionView {
	return versionView{
		ID:           v.ID,
		VersionLabel: v.VersionLabel,
		Variant:      v.Variant,
		Status:       v.Status,
		RecordCount:  v.RecordCount,
		PartCount:    v.PartCount,
		IsCurrent:    v.IsCurrent,
		FileName:     v.FileName,
		ImportedAt:   v.ImportedAt,
	}
}

func (s *Server) handleSourceVersions(w http.ResponseWriter, r *http.Request) {
	src, err := s.cat.Source(r.Context(), chi.URLParam(r, "sourceCode"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	limit := 50
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 || n > 500 {
			s.respondError(w, r, badRequestf("limit must be 1-500"))
			return
		}
		limit = n
	}

	versions, err := s.st.ListVersions(r.Context(), src.ID, limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	views := make([]versionView, 0, len(versions))
	for _, v := range versions {
		views = append(views, viewOfVersion(v))
	}
	respondJSON(w, http.StatusOK, map[string]any{"source": src.Code, "versions": views})
}

// handleValidate receives a file, inspects it without writing any rows, and
// parks it in the temp directory. The returned upload_id and file_hash feed
// the subsequent ingest call.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	sourceCode := strings.ToUpper(chi.URLParam(r, "sourceCode"))
	variant := variantParam(r)

	path, fileName, err := s.saveUpload(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	v, err := s.orch.Validate(r.Context(), ingest.Request{
		SourceCode: sourceCode,
		Variant:    variant,
		FilePath:   path,
		FileName:   fileName,
	})
	if err != nil {
		os.Remove(path)
		s.respondError(w, r, err)
		return
	}

	uploadID := uuid.NewString()
	s.addPending(uploadID, pendingUpload{
		Path:       path,
		FileName:   fileName,
		FileHash:   v.FileHash,
		SourceCode: sourceCode,
		Created:    time.Now(),
	})

	logging.FromContext(r.Context()).Info("upload validated",
		"upload_id", uploadID, "source", sourceCode, "file", fileName,
		"data_rows", v.DataRows, "warnings", len(v.Check.Warnings))

	respondJSON(w, http.StatusOK, map[string]any{
		"upload_id":  uploadID,
		"validation": v,
	})
}

// handleIngest loads a previously validated upload into its versioned table.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	sourceCode := strings.ToUpper(chi.URLParam(r, "sourceCode"))

	if err := r.ParseForm(); err != nil {
		s.respondError(w, r, badRequestf("parse form: %v", err))
		return
	}

	uploadID := r.FormValue("upload_id")
	if uploadID == "" {
		s.respondError(w, r, badRequestf("upload_id is required"))
		return
	}
	year, quarter, err := yearQuarterParams(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	up, ok := s.takePending(uploadID)
	if !ok {
		s.respondError(w, r, fmt.Errorf("%w: %s", errUploadNotFound, uploadID))
		return
	}
	defer os.Remove(up.Path)

	if up.SourceCode != sourceCode {
		s.respondError(w, r, badRequestf("upload %s was validated for source %s", uploadID, up.SourceCode))
		return
	}
	if h := r.FormValue("file_hash"); h != "" && h != up.FileHash {
		s.respondError(w, r, badRequestf("file_hash does not match the validated upload"))
		return
	}
	// The file waited on disk between validate and ingest; make sure it is
	// still the same bytes.
	hash, _, err := ingest.FileHash(up.Path)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if hash != up.FileHash {
		s.respondError(w, r, badRequestf("upload changed on disk since validation"))
		return
	}

	result, err := s.orch.IngestFile(r.Context(), ingest.Request{
		SourceCode:  sourceCode,
		Variant:     variantParam(r),
		Year:        year,
		Quarter:     quarter,
		FilePath:    up.Path,
		FileName:    up.FileName,
		MakeCurrent: r.FormValue("make_current") == "true",
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	respondJSON(w, status, result)
}

// eventView is the API shape of one ingestion log entry.
type eventView struct {
	ID        int64          `json:"id"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt *time.Time     `json:"created_at,omitempty"`
}

func (s *Server) handleVersionLogs(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "versionID"), 10, 64)
	if err != nil {
		s.respondError(w, r, badRequestf("invalid version id"))
		return
	}

	v, err := s.st.GetVersion(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if v == nil {
		s.respondError(w, r, fmt.Errorf("%w: %d", errVersionNotFound, id))
		return
	}

	limit := 200
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 || n > 1000 {
			s.respondError(w, r, badRequestf("limit must be 1-1000"))
			return
		}
		limit = n
	}

	events, err := s.st.ListEvents(r.Context(), id, limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	views := make([]eventView, 0, len(events))
	for _, e := range events {
		views = append(views, eventView{
			ID:        e.ID,
			Level:     e.Level,
			Message:   e.Message,
			Details:   e.Details,
			CreatedAt: e.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"version_id": id, "logs": views})
}

func (s *Server) handleMakeCurrent(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "versionID"), 10, 64)
	if err != nil {
		s.respondError(w, r, badRequestf("invalid version id"))
		return
	}

	v, err := s.st.GetVersion(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if v == nil {
		s.respondError(w, r, fmt.Errorf("%w: %d", errVersionNotFound, id))
		return
	}
	if v.Status != store.StatusCompleted {
		s.respondError(w, r, badRequestf("version %d is %s, only completed versions can be current", id, v.Status))
		return
	}

	if err := s.st.MarkCurrent(r.Context(), v.SourceID, v.ID, v.Variant); err != nil {
		s.respondError(w, r, err)
		return
	}
	v.IsCurrent = true
	respondJSON(w, http.StatusOK, viewOfVersion(*v))
}

// saveUpload streams the multipart file to the temp directory and returns
// the stored path and the client's file name.
func (s *Server) saveUpload(w http.ResponseWriter, r *http.Request) (string, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize)

	file, header, err := r.FormFile("file")
	if err != nil {
		return "", "", badRequestf("read file field: %v", err)
	}
	defer file.Close()

	fileName := filepath.Base(header.Filename)
	if err := ingest.ValidateExtension(fileName, s.cfg.Upload.AllowedExtensions); err != nil {
		return "", "", err
	}

	dir := s.tempDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create upload dir: %w", err)
	}

	path := filepath.Join(dir, uuid.NewString()+strings.ToLower(filepath.Ext(fileName)))
	out, err := os.Create(path)
	if err != nil {
		return "", "", fmt.Errorf("create upload file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, file); err != nil {
		os.Remove(path)
		return "", "", fmt.Errorf("store upload: %w", err)
	}
	return path, fileName, nil
}

func variantParam(r *http.Request) *string {
	v := strings.TrimSpace(r.FormValue("variant"))
	if v == "" {
		return nil
	}
	v = strings.ToUpper(v)
	return &v
}

func yearQuarterParams(r *http.Request) (int, int, error) {
	year, err := strconv.Atoi(r.FormValue("year"))
	if err != nil {
		return 0, 0, badRequestf("year is required and must be an integer")
	}
	quarter, err := strconv.Atoi(r.FormValue("quarter"))
	if err != nil {
		return 0, 0, badRequestf("quarter is required and must be an integer")
	}
	return year, quarter, nil
}
