package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/cel-labs/cel-translate/internal/config"
	"github.com/cel-labs/cel-translate/internal/content"
	"github.com/cel-labs/cel-translate/internal/jobs"
	"github.com/cel-labs/cel-translate/pkg/icron"
)

type jobResponse struct {
	*jobs.Job
	Progress jobs.Progress `json:"progress"`
}

func toJobResponse(job *jobs.Job) jobResponse {
	return jobResponse{Job: job, Progress: job.Progress()}
}

func toJobResponses(list []*jobs.Job) []jobResponse {
	ret := make([]jobResponse, 0, len(list))
	for _, job := range list {
		ret = append(ret, toJobResponse(job))
	}
	return ret
}

type translateRequest struct {
	DocumentID     string    `json:"document_id"`
	TargetLanguage string    `json:"target_language"`
	Mode           jobs.Mode `json:"mode"`
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req translateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.DocumentID == "" {
		writeError(w, http.StatusBadRequest, "document_id is required")
		return
	}
	if req.TargetLanguage == "" {
		writeError(w, http.StatusBadRequest, "target_language is required")
		return
	}

	job, err := s.queue.Enqueue(r.Context(), req.DocumentID, req.TargetLanguage, req.Mode)
	if err != nil {
		if errors.Is(err, content.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, toJobResponse(job))
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	list, err := s.queue.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toJobResponses(list))
}

func (s *Server) handleClearJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	deleted, err := s.queue.ClearTerminal(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"deleted": deleted,
	})
}

func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	// /api/jobs/{id} and /api/jobs/{id}/{action}
	rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing job id")
		return
	}

	switch action {
	case "":
		switch r.Method {
		case http.MethodGet:
			job, err := s.queue.Get(r.Context(), id)
			if err != nil {
				writeJobError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, toJobResponse(job))
		case http.MethodDelete:
			if err := s.queue.Delete(r.Context(), id); err != nil {
				writeJobError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	case "cancel":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if err := s.queue.Cancel(r.Context(), id); err != nil {
			writeJobError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	case "retry":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if err := s.queue.Retry(r.Context(), id); err != nil {
			writeJobError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// writeJobError maps queue errors onto HTTP statuses: unknown job is 404,
// an invalid state transition (cancel a finished job, retry a running one)
// is 409, anything else is 500.
func writeJobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, jobs.ErrStaleJob):
		writeError(w, http.StatusConflict, err.Error())
	case strings.Contains(err.Error(), "already"), strings.Contains(err.Error(), "only failed jobs"):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := s.queue.Tick(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.tester == nil {
		writeError(w, http.StatusNotImplemented, "connection tester is not configured")
		return
	}
	if err := s.tester.TestConnection(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"message": "Connected",
	})
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusNotImplemented, "settings store is not configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		settings, err := s.settings.GetRuntimeSettings()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, settings)
	case http.MethodPut:
		var req config.RuntimeSettings
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if err := req.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		saved, err := s.settings.UpdateRuntimeSettings(req)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if s.apply != nil {
			if err := s.apply(saved); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
		}
		writeJSON(w, http.StatusOK, saved)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type statusResponse struct {
	Jobs          map[jobs.Status]int `json:"jobs"`
	TotalJobs     int                 `json:"total_jobs"`
	Schedule      *icron.TickSchedule `json:"schedule,omitempty"`
	UptimeSeconds int64               `json:"uptime_seconds"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	list, err := s.queue.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	counts := make(map[jobs.Status]int)
	for _, job := range list {
		counts[job.Status]++
	}
	resp := statusResponse{
		Jobs:          counts,
		TotalJobs:     len(list),
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	}
	if s.cronExpr != nil {
		if schedule, err := icron.Describe(s.cronExpr(), time.Now()); err == nil {
			resp.Schedule = schedule
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type createDocumentRequest struct {
	Title   string `json:"title"`
	Body    string `json:"body"`
	Excerpt string `json:"excerpt"`
	Type    string `json:"type"`
	Status  string `json:"status"`
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list, err := s.docs.List(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, list)
	case http.MethodPost:
		var req createDocumentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if strings.TrimSpace(req.Title) == "" && strings.TrimSpace(req.Body) == "" {
			writeError(w, http.StatusBadRequest, "title or body is required")
			return
		}
		id, err := s.docs.Create(r.Context(), &content.Document{
			Title:   req.Title,
			Body:    req.Body,
			Excerpt: req.Excerpt,
			Type:    req.Type,
			Status:  req.Status,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		doc, err := s.docs.Get(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, doc)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleDocumentByID(w http.ResponseWriter, r *http.Request) {
	// /api/documents/{id} and /api/documents/{id}/translations
	rest := strings.TrimPrefix(r.URL.Path, "/api/documents/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing document id")
		return
	}

	switch action {
	case "":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		doc, err := s.docs.Get(r.Context(), id)
		if err != nil {
			if errors.Is(err, content.ErrNotFound) {
				writeError(w, http.StatusNotFound, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, doc)
	case "translations":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if _, err := s.docs.Get(r.Context(), id); err != nil {
			if errors.Is(err, content.ErrNotFound) {
				writeError(w, http.StatusNotFound, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		translations, err := content.Translations(r.Context(), s.docs, id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, translations)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}
