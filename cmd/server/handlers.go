package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/brunobiangulo/legalrag"
)

type handler struct {
	engine *legalrag.Engine
}

func newHandler(e *legalrag.Engine) *handler {
	return &handler{engine: e}
}

// POST /cases/{caseID}/documents
// Accepts a multipart file upload, saves it under the case directory, and
// ingests it through the chunking/embedding/indexing pipeline.
func (h *handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
	defer cancel()

	caseID := r.PathValue("case_id")

	if err := r.ParseMultipartForm(50 << 20); err != nil { // 50MB max
		writeError(w, http.StatusBadRequest, "expected multipart file upload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	safeName := filepath.Base(header.Filename)
	dstPath, err := h.engine.PreparePath(caseID, safeName)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid case or file name")
		slog.Error("preparing upload path", "case", caseID, "error", err)
		return
	}

	dst, err := os.Create(dstPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save upload")
		slog.Error("creating uploaded file", "case", caseID, "error", err)
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		writeError(w, http.StatusInternalServerError, "failed to save upload")
		slog.Error("writing uploaded file", "case", caseID, "error", err)
		return
	}
	dst.Close()

	doc, err := h.engine.Ingest(ctx, caseID, dstPath)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "ingestion failed")
		slog.Error("ingest error", "case", caseID, "file", safeName, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

// POST /cases/{caseID}/ask
func (h *handler) handleAsk(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	caseID := r.PathValue("case_id")

	var req struct {
		Question string `json:"question"`
		Quick    bool   `json:"quick,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	if req.Quick {
		text, err := h.engine.QuickAsk(ctx, caseID, req.Question)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "question failed")
			slog.Error("quick ask error", "case", caseID, "error", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"answer": text})
		return
	}

	resp, err := h.engine.Ask(ctx, caseID, req.Question)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "question failed")
		slog.Error("ask error", "case", caseID, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// DELETE /cases/{caseID}/documents/{file_name}
func (h *handler) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	caseID := r.PathValue("case_id")
	fileName := r.PathValue("file_name")

	if err := h.engine.Delete(r.Context(), caseID, fileName); err != nil {
		writeError(w, http.StatusNotFound, "delete failed")
		slog.Error("delete error", "case", caseID, "file", fileName, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// GET /cases/{caseID}/documents
func (h *handler) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	caseID := r.PathValue("case_id")

	docs, err := h.engine.ListDocuments(caseID)
	if err != nil {
		writeError(w, http.StatusNotFound, "failed to list documents")
		slog.Error("list documents error", "case", caseID, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"documents": docs})
}

// GET /legal-sources
func (h *handler) handleListLegalSources(w http.ResponseWriter, r *http.Request) {
	snaps, err := h.engine.ListLegalSnapshots()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list legal sources")
		slog.Error("list legal sources error", "error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"legal_sources": snaps})
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": fmt.Sprintf("%s", msg)})
}
