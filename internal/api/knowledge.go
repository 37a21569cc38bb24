package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// maxUploadBytes bounds multipart uploads.
const maxUploadBytes = 32 << 20 // 32 MiB

// handleUpload ingests a document into the shared knowledge base. PDFs
// go through text extraction; everything else is treated as UTF-8 text.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "reading upload failed")
		return
	}

	s.archiveUpload(header.Filename, content)

	var chunks int
	if isPDF(header.Header.Get("Content-Type"), header.Filename) {
		chunks, err = s.engine.AddPDF(r.Context(), content, header.Filename)
	} else {
		chunks, err = s.engine.AddDocument(r.Context(), string(content), map[string]string{"filename": header.Filename})
	}
	if err != nil {
		s.logger.Error("upload ingest failed", "filename", header.Filename, "error", err)
		writeError(w, s.logger, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, s.logger, http.StatusOK, map[string]string{
		"message":  fmt.Sprintf("Added %d chunks from document", chunks),
		"filename": header.Filename,
	})
}

func isPDF(contentType, filename string) bool {
	return contentType == "application/pdf" ||
		strings.EqualFold(filepath.Ext(filename), ".pdf")
}

// archiveUpload keeps the raw upload on disk. Best effort: a failed
// archive never fails the ingest.
func (s *Server) archiveUpload(filename string, content []byte) {
	if s.cfg.UploadDir == "" {
		return
	}
	path := filepath.Join(s.cfg.UploadDir, filepath.Base(filename))
	if err := os.WriteFile(path, content, 0o644); err != nil {
		s.logger.Warn("archiving upload failed", "path", path, "error", err)
	}
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, s.logger, http.StatusBadRequest, "Question is required")
		return
	}

	answer, err := s.engine.Query(r.Context(), req.Question)
	if err != nil {
		s.logger.Error("query failed", "error", err)
		writeError(w, s.logger, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, s.logger, http.StatusOK, map[string]string{
		"question": req.Question,
		"answer":   answer,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.logger, http.StatusOK, s.engine.Stats())
}
