package http

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/marmos91/dittofiles/internal/logger"
	"github.com/marmos91/dittofiles/pkg/files"
	"github.com/marmos91/dittofiles/pkg/service"
	"github.com/marmos91/dittofiles/pkg/store/content"
)

// maxRenameBody caps PATCH bodies.
const maxRenameBody = 16 << 10

// handleUpload streams a multipart upload into the service. The "metadata"
// part must come first so the body can be consumed without buffering.
func (a *Adapter) handleUpload(w http.ResponseWriter, r *http.Request) {
	mr, err := r.MultipartReader()
	if err != nil {
		writeValidationError(w, "expected a multipart/form-data body")
		return
	}

	part, err := mr.NextPart()
	if err != nil || part.FormName() != "metadata" {
		writeValidationError(w, `first part must be "metadata"`)
		return
	}

	var meta uploadMetadata
	dec := json.NewDecoder(io.LimitReader(part, a.config.MaxMetadataSize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&meta); err != nil {
		writeValidationError(w, "invalid metadata JSON: "+err.Error())
		return
	}
	if err := a.validate.Struct(meta); err != nil {
		writeValidationError(w, validationMessage(err))
		return
	}
	visibility, err := files.ParseVisibility(meta.Visibility)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	filePart, err := mr.NextPart()
	if err != nil || filePart.FormName() != "file" {
		writeValidationError(w, `second part must be "file"`)
		return
	}
	defer func() { _ = filePart.Close() }()

	filename := meta.Filename
	if filename == "" {
		filename = filePart.FileName()
	}

	// Clients send application/octet-stream when they know nothing better;
	// treat that as undeclared so the service can detect the type.
	contentType := meta.ContentType
	if contentType == "" {
		if ct := filePart.Header.Get("Content-Type"); ct != files.DefaultContentType {
			contentType = ct
		}
	}

	size := content.UnknownSize
	if meta.Size != nil {
		size = *meta.Size
	}

	body := &countingReader{r: filePart}
	rec, err := a.svc.Upload(r.Context(), service.UploadRequest{
		OwnerID:     ownerFrom(r.Context()),
		Filename:    filename,
		Visibility:  visibility,
		Tags:        meta.Tags,
		ContentType: contentType,
		Size:        size,
		Body:        body,
	})
	a.metrics.RecordBytesTransferred("upload", body.n)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/v1/files/"+rec.ID)
	writeJSON(w, http.StatusCreated, newFileResponse(*rec))
}

func (a *Adapter) handleListOwned(w http.ResponseWriter, r *http.Request) {
	page, err := a.svc.ListOwned(r.Context(), ownerFrom(r.Context()), rawQuery(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPageResponse(page))
}

func (a *Adapter) handleListPublic(w http.ResponseWriter, r *http.Request) {
	page, err := a.svc.ListPublic(r.Context(), rawQuery(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPageResponse(page))
}

func rawQuery(r *http.Request) files.RawQuery {
	q := r.URL.Query()
	return files.RawQuery{
		Tag:  q.Get("tag"),
		Q:    q.Get("q"),
		Sort: q.Get("sort"),
		Dir:  q.Get("dir"),
		Page: q.Get("page"),
		Size: q.Get("size"),
	}
}

func (a *Adapter) handleStat(w http.ResponseWriter, r *http.Request) {
	rec, err := a.svc.Stat(r.Context(), ownerFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newFileResponse(*rec))
}

func (a *Adapter) handleRename(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRenameBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeValidationError(w, "invalid JSON body: "+err.Error())
		return
	}
	if err := a.validate.Struct(req); err != nil {
		writeValidationError(w, validationMessage(err))
		return
	}

	rec, err := a.svc.Rename(r.Context(), ownerFrom(r.Context()), chi.URLParam(r, "id"), req.Filename)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newFileResponse(*rec))
}

func (a *Adapter) handleDelete(w http.ResponseWriter, r *http.Request) {
	deleted, err := a.svc.Delete(r.Context(), ownerFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !deleted {
		writeServiceError(w, r, files.ErrNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDownload streams the content behind a link. Links need no identity.
func (a *Adapter) handleDownload(w http.ResponseWriter, r *http.Request) {
	d, body, err := a.svc.OpenLink(r.Context(), chi.URLParam(r, "linkId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	defer func() { _ = body.Close() }()

	h := w.Header()
	h.Set("Content-Type", d.ContentType)
	h.Set("Content-Length", strconv.FormatInt(d.Size, 10))
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": d.Record.Filename}))
	h.Set("X-Content-Type-Options", "nosniff")
	if d.Record.ContentHash != "" {
		h.Set("ETag", `"`+d.Record.ContentHash+`"`)
	}
	w.WriteHeader(http.StatusOK)

	n, err := io.Copy(w, body)
	a.metrics.RecordBytesTransferred("download", n)
	if err != nil && !errors.Is(err, r.Context().Err()) {
		logger.Warn("HTTP download of link %s aborted after %d bytes: %v", d.Record.LinkID, n, err)
	}
}

func (a *Adapter) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Healthcheck(r.Context()); err != nil {
		logger.Warn("Healthcheck failed: %v", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// countingReader counts bytes read through it.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
