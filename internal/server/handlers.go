package server

import (
	"errors"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/goccy/go-json"

	"github.com/truthguard/truthguard/internal/logging"
	"github.com/truthguard/truthguard/internal/metrics"
)

// Error codes in the {"error":{"code","message"}} body.
const (
	codeInvalidJSON = "invalid_json"
	codeValidation  = "validation_failed"
	codeTextTooLong = "text_too_long"
	codeMissingFile = "missing_file"
	codeTooLarge    = "body_too_large"
	codeBusy        = "too_many_in_flight"
	codeRateLimited = "rate_limited"
	codeNotReady    = "not_ready"
)

const uploadField = "file"

// multipartMemory is the in-memory part of ParseMultipartForm; larger files
// spill to temp files and are still bounded by MaxBytesReader.
const multipartMemory = 32 << 20

type textRequest struct {
	// Pointer so a missing field is rejected while "" reaches the analyzer.
	Text *string `json:"text" validate:"required"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handleAnalyzeText(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if isTooLarge(err) {
			metrics.RecordRejection("body_size")
			writeError(w, http.StatusRequestEntityTooLarge, codeTooLarge, "request body too large")
			return
		}
		metrics.RecordRejection("invalid")
		writeError(w, http.StatusBadRequest, codeInvalidJSON, "invalid JSON body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		metrics.RecordRejection("invalid")
		writeError(w, http.StatusBadRequest, codeValidation, "field 'text' is required")
		return
	}
	if s.cfg.MaxTextChars > 0 && utf8.RuneCountInString(*req.Text) > s.cfg.MaxTextChars {
		metrics.RecordRejection("invalid")
		writeError(w, http.StatusRequestEntityTooLarge, codeTextTooLong, "text exceeds max_text_chars")
		return
	}

	res := s.analyzer.AnalyzeText(r.Context(), *req.Text)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAnalyzeImage(w http.ResponseWriter, r *http.Request) {
	data, name, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	res := s.analyzer.AnalyzeImage(r.Context(), data)
	res.Filename = name
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAnalyzeVideo(w http.ResponseWriter, r *http.Request) {
	data, name, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	res := s.analyzer.AnalyzeVideo(r.Context(), data)
	res.Filename = name
	writeJSON(w, http.StatusOK, res)
}

// readUpload reads the multipart "file" field. It writes the error response
// itself and reports ok=false on failure.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if isTooLarge(err) {
			metrics.RecordRejection("body_size")
			writeError(w, http.StatusRequestEntityTooLarge, codeTooLarge, "request body too large")
			return nil, "", false
		}
		metrics.RecordRejection("invalid")
		writeError(w, http.StatusBadRequest, codeMissingFile, "expected multipart/form-data with a 'file' field")
		return nil, "", false
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	f, hdr, err := r.FormFile(uploadField)
	if err != nil {
		metrics.RecordRejection("invalid")
		writeError(w, http.StatusBadRequest, codeMissingFile, "missing 'file' field")
		return nil, "", false
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("read upload failed")
		writeError(w, http.StatusBadRequest, codeMissingFile, "could not read uploaded file")
		return nil, "", false
	}
	return data, hdr.Filename, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady reports analyzer capabilities. It returns 503 while draining.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.draining.Load() {
		writeError(w, http.StatusServiceUnavailable, codeNotReady, "shutting down")
		return
	}
	writeJSON(w, http.StatusOK, s.analyzer.Status())
}

func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn().Err(err).Msg("failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}
