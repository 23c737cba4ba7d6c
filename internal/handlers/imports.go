package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"finflow/internal/importfile"
	"finflow/internal/middleware"
	"finflow/internal/services"
)

// ImportTransactions takes a multipart "file" field holding a CSV or XLSX
// sheet. Row-level problems come back as skipped rows with a 200.
func (h *Handler) ImportTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Import.MaxBytes)
	if err := r.ParseMultipartForm(h.cfg.Import.MaxBytes); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_upload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "file_required")
		return
	}
	defer file.Close()

	format, err := importfile.ParseFormat(header.Filename)
	if err != nil {
		respondError(w, http.StatusBadRequest, "unsupported_format")
		return
	}
	rows, err := importfile.Decode(file, format)
	if err != nil {
		if errors.Is(err, importfile.ErrMissingColumns) || errors.Is(err, importfile.ErrEmptyFile) {
			respondError(w, http.StatusBadRequest, "invalid_file")
			return
		}
		log.Printf("warning: decode import %s: %v", header.Filename, err)
		respondError(w, http.StatusBadRequest, "unreadable_file")
		return
	}
	result, err := h.imports.Import(r.Context(), userID, rows)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "import_failed")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// ExportSkipped turns a skippedRows payload back into a downloadable sheet.
func (h *Handler) ExportSkipped(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.UserIDFromContext(r.Context()); !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	format := importfile.CSV
	if raw := r.URL.Query().Get("format"); raw != "" {
		parsed, err := importfile.ParseFormat(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "unsupported_format")
			return
		}
		format = parsed
	}
	var rows []services.SkippedRow
	if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"skipped_%s.%s\"", time.Now().UTC().Format("20060102"), format))
	if err := importfile.ExportSkipped(w, rows, format); err != nil {
		log.Printf("warning: export skipped rows: %v", err)
	}
}
