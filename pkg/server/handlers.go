package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/zen-systems/flowroute/pkg/capability"
	"github.com/zen-systems/flowroute/pkg/document"
	"github.com/zen-systems/flowroute/pkg/gateway"
	"github.com/zen-systems/flowroute/pkg/orchestrator"
	"github.com/zen-systems/flowroute/pkg/router"
)

// multipart overhead allowed on top of the upload cap
const formOverhead = 1 << 20

type queryRequest struct {
	Query   string        `json:"query"`
	History []router.Turn `json:"history,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	State string `json:"state,omitempty"`
}

type backendInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Model       string `json:"model"`
	Default     bool   `json:"default"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"backends": len(s.backends.Names()),
		"tools":    len(s.caps.Specs()),
	})
}

func (s *Server) handleBackends(w http.ResponseWriter, r *http.Request) {
	var out []backendInfo
	for _, b := range s.backends.Backends() {
		out = append(out, backendInfo{
			Name:        b.Name,
			Description: b.Description,
			Model:       b.Model,
			Default:     b.Name == s.backends.Default(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"backends": out})
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": capability.Statuses(s.caps)})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	q, status, err := s.parseQuery(w, r)
	if err != nil {
		writeError(w, status, err.Error(), "")
		return
	}
	q.Identity = identityFrom(r.Context())

	resp, err := s.router.RouteQuery(r.Context(), q)
	if err != nil {
		status := statusFor(err)
		state := ""
		var oe *orchestrator.Error
		if errors.As(err, &oe) {
			state = string(oe.State)
		}
		s.logf("[server] %s query failed (%d): %v", requestIDFrom(r.Context()), status, err)
		writeError(w, status, err.Error(), state)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) parseQuery(w http.ResponseWriter, r *http.Request) (orchestrator.Query, int, error) {
	var q orchestrator.Query
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return q, http.StatusUnsupportedMediaType, fmt.Errorf("unsupported content type")
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+formOverhead)

	switch mediaType {
	case "application/json":
		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return q, bodyStatus(err), fmt.Errorf("invalid JSON body: %w", err)
		}
		q.Text = req.Query
		q.History = req.History
		return q, 0, nil

	case "multipart/form-data":
		if err := r.ParseMultipartForm(s.maxUpload); err != nil {
			return q, bodyStatus(err), fmt.Errorf("invalid form: %w", err)
		}
		q.Text = r.FormValue("query")
		if raw := r.FormValue("history"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &q.History); err != nil {
				return q, http.StatusBadRequest, fmt.Errorf("invalid history: %w", err)
			}
		}

		file, header, err := r.FormFile("file")
		if errors.Is(err, http.ErrMissingFile) {
			return q, 0, nil
		}
		if err != nil {
			return q, http.StatusBadRequest, fmt.Errorf("invalid file: %w", err)
		}
		defer file.Close()

		if header.Size > s.maxUpload {
			return q, http.StatusRequestEntityTooLarge, document.ErrTooLarge
		}
		data, err := io.ReadAll(file)
		if err != nil {
			return q, bodyStatus(err), fmt.Errorf("read file: %w", err)
		}
		if data == nil {
			data = []byte{}
		}
		q.Document = data
		q.Filename = header.Filename
		return q, 0, nil

	default:
		return q, http.StatusUnsupportedMediaType, fmt.Errorf("unsupported content type %s", mediaType)
	}
}

func bodyStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

// statusFor maps request errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, orchestrator.ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, document.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, document.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, document.ErrCorruptDocument):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, gateway.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, gateway.ErrInvalidCredentials):
		return http.StatusInternalServerError
	case errors.Is(err, gateway.ErrProviderUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message, state string) {
	writeJSON(w, status, errorResponse{Error: message, State: state})
}
