package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dokflow/api/internal/export"
	"dokflow/api/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type HTTPServer struct {
	service        *Service
	corsOrigin     string
	maxUploadBytes int64
	log            *zap.Logger
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	maxUpload := service.cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	return &HTTPServer{
		service:        service,
		corsOrigin:     corsOrigin,
		maxUploadBytes: maxUpload,
		log:            service.log.Named("http"),
	}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.URL.Path == "/api/companies" {
		s.handleCompanies(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/document" {
		var body RegisterNDAInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		progress, document, err := s.service.RegisterNDA(r.Context(), body)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"progress": progress, "document": document})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/nda" {
		progresses, err := s.service.ListNDA(r.Context())
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": progresses})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/upload" {
		s.handleUpload(w, r)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) >= 2 && parts[0] == "api" && parts[1] == store.KindMom {
		s.handleMom(w, r, parts)
		return
	}
	if len(parts) >= 2 && parts[0] == "api" && parts[1] == store.KindJik {
		s.handleJik(w, r, parts)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
}

func (s *HTTPServer) handleCompanies(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		companies, err := s.service.ListCompanies(r.Context())
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": companies})
	case http.MethodPost:
		var body CreateCompanyInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		company, err := s.service.CreateCompany(r.Context(), body)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, company)
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleMom(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) == 2 {
		switch r.Method {
		case http.MethodGet:
			moms, err := s.service.ListMoms(r.Context(), r.URL.Query().Get("q"))
			if err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"items": moms})
		case http.MethodPost:
			var body MomInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			mom, err := s.service.CreateMom(r.Context(), body)
			if err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, mom)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	switch {
	case len(parts) == 3 && parts[2] == "generate-pdf" && r.Method == http.MethodGet:
		id, ok := parseID(w, r.URL.Query().Get("id"))
		if !ok {
			return
		}
		result, err := s.service.ExportMomPDF(r.Context(), id)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		result.Filename = "page.pdf"
		writeFile(w, result)
		return

	case len(parts) == 3 && parts[2] == "generate-docx" && r.Method == http.MethodPost:
		var body struct {
			MomID *uint `json:"momId" validate:"required"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := checkInput(body, nil); err != nil {
			s.writeMappedError(w, err)
			return
		}
		result, err := s.service.ExportMomDOCX(r.Context(), *body.MomID)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeFile(w, result)
		return

	case len(parts) == 3 && parts[2] == "actions" && r.Method == http.MethodGet:
		s.writeInFlight(w, r, store.KindMom)
		return
	}

	id, ok := parseID(w, parts[2])
	if !ok {
		return
	}

	if len(parts) == 3 {
		switch r.Method {
		case http.MethodGet:
			mom, err := s.service.GetMom(r.Context(), id)
			if err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, mom)
		case http.MethodPut, http.MethodPatch:
			var body MomInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			mom, err := s.service.UpdateMom(r.Context(), id, body)
			if err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, mom)
		case http.MethodDelete:
			if err := s.service.DeleteMom(r.Context(), id); err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(parts) == 4 && r.Method == http.MethodGet {
		s.handleRevisions(w, r, store.KindMom, id, parts[3])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
}

func (s *HTTPServer) handleJik(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) == 2 {
		switch r.Method {
		case http.MethodGet:
			jiks, err := s.service.ListJiks(r.Context(), r.URL.Query().Get("q"))
			if err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"items": jiks})
		case http.MethodPost:
			var body JikInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			jik, err := s.service.CreateJik(r.Context(), body)
			if err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, jik)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	switch {
	case len(parts) == 3 && parts[2] == "generate-docx" && r.Method == http.MethodPost:
		var body struct {
			JikID *uint `json:"jikId" validate:"required"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := checkInput(body, nil); err != nil {
			s.writeMappedError(w, err)
			return
		}
		result, err := s.service.ExportJikDOCX(r.Context(), *body.JikID)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeFile(w, result)
		return

	case len(parts) == 3 && parts[2] == "actions" && r.Method == http.MethodGet:
		s.writeInFlight(w, r, store.KindJik)
		return
	}

	id, ok := parseID(w, parts[2])
	if !ok {
		return
	}

	if len(parts) == 3 {
		switch r.Method {
		case http.MethodGet:
			jik, err := s.service.GetJik(r.Context(), id)
			if err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, jik)
		case http.MethodPut, http.MethodPatch:
			var body JikInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			jik, err := s.service.UpdateJik(r.Context(), id, body)
			if err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, jik)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(parts) == 4 && r.Method == http.MethodGet {
		s.handleRevisions(w, r, store.KindJik, id, parts[3])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
}

func (s *HTTPServer) handleRevisions(w http.ResponseWriter, r *http.Request, kind string, id uint, action string) {
	switch action {
	case "history":
		limit := 50
		if rawLimit := strings.TrimSpace(r.URL.Query().Get("limit")); rawLimit != "" {
			if parsedLimit, err := strconv.Atoi(rawLimit); err == nil && parsedLimit > 0 {
				limit = parsedLimit
			}
		}
		commits, err := s.service.History(r.Context(), kind, id, limit)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"commits": commits})
	case "compare":
		from := strings.TrimSpace(r.URL.Query().Get("from"))
		to := strings.TrimSpace(r.URL.Query().Get("to"))
		if from == "" || to == "" {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "from and to commit hashes are required", nil)
			return
		}
		payload, err := s.service.Compare(r.Context(), kind, id, from, to)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	}
}

func (s *HTTPServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !s.service.UploadEnabled() {
		writeError(w, http.StatusServiceUnavailable, "UPLOAD_UNAVAILABLE", "Object storage not configured", nil)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes*8)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid multipart body", nil)
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	files, err := s.service.Upload(r.Context(), r.MultipartForm.File["files"])
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"files": files})
}

func (s *HTTPServer) writeInFlight(w http.ResponseWriter, r *http.Request, kind string) {
	entries, err := s.service.InFlight(r.Context(), kind)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": entries})
}

func (s *HTTPServer) writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err, s.service.cfg.Production())
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("code", code), zap.Error(err))
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.log.Info("request",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", writer.status),
			zap.Int64("duration_ms", time.Since(started).Milliseconds()),
		)
	})
}

type requestIDKey struct{}

// RequestID returns the id the middleware attached to ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
	header.Set("Access-Control-Expose-Headers", "Content-Disposition, X-Request-ID")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeFile(w http.ResponseWriter, result *export.Result) {
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func parseID(w http.ResponseWriter, raw string) (uint, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", map[string]string{"id": "numeric"})
		return 0, false
	}
	return uint(id), true
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
