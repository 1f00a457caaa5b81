package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/gorilla/mux"
	"github.com/raaihank/llm-anonymizer/internal/audit"
	"github.com/raaihank/llm-anonymizer/internal/privacy"
	"github.com/raaihank/llm-anonymizer/internal/websocket"
	"go.uber.org/zap"
)

// HideRequest is the body of POST /v1/hide. Without a session ID a new
// session is created; Categories may only be set then.
type HideRequest struct {
	Text       string   `json:"text"`
	SessionID  string   `json:"session_id,omitempty"`
	Categories []string `json:"categories,omitempty"`
}

// HideResponse is returned by POST /v1/hide
type HideResponse struct {
	SessionID  string            `json:"session_id"`
	MaskedText string            `json:"masked_text"`
	Findings   []privacy.Finding `json:"findings"`
	Degraded   []string          `json:"degraded,omitempty"`
}

// FillRequest is the body of POST /v1/fill
type FillRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

// FillResponse is returned by POST /v1/fill
type FillResponse struct {
	Text string `json:"text"`
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	cfg := s.currentConfig()
	info := map[string]any{
		"name":             "llm-anonymizer",
		"version":          Version,
		"categories":       cfg.Privacy.Categories,
		"preserve_grammar": cfg.Privacy.PreserveGrammar,
		"parallel":         cfg.Privacy.ParallelDetectors,
		"sessions":         s.sessions.Len(),
		"ner_enabled":      cfg.NER.Enabled,
		"cache_enabled":    cfg.Cache.Enabled,
		"audit_enabled":    cfg.Audit.Enabled,
	}
	if s.deps.Hub != nil {
		info["websocket"] = s.deps.Hub.Stats()
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	engine, err := s.newEngine(nil)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"available": s.deps.Registry.Categories(),
		"active":    engine.Categories(),
	})
}

func (s *Server) handleHide(w http.ResponseWriter, r *http.Request) {
	var req HideRequest
	if !s.decode(w, r, &req) {
		return
	}

	requestID := RequestID(r.Context())
	created := false

	var sess *Session
	if req.SessionID != "" {
		if len(req.Categories) > 0 {
			writeError(w, r, http.StatusBadRequest, "categories can only be chosen when a session is created")
			return
		}
		var err error
		if sess, err = s.sessions.Get(req.SessionID); err != nil {
			writeError(w, r, http.StatusNotFound, err.Error())
			return
		}
	} else {
		engine, err := s.newEngine(req.Categories)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, privacy.ErrUnknownCategory) {
				status = http.StatusBadRequest
			}
			writeError(w, r, status, err.Error())
			return
		}
		sess = s.sessions.Create(engine)
		created = true
	}

	start := time.Now()
	res := sess.Engine.Process(r.Context(), req.Text)
	elapsed := time.Since(start)

	if created {
		if m := s.deps.Metrics; m != nil {
			m.ActiveSessions.Set(float64(s.sessions.Len()))
		}
		s.broadcast(websocket.EventTypeSession, requestID, websocket.SessionEvent{Action: "created", SessionID: sess.ID})
	}

	s.record(audit.NewHideRecord(requestID, sess.ID, res, elapsed))
	s.broadcast(websocket.EventTypeMasking, requestID, websocket.MaskingEvent{
		SessionID:         sess.ID,
		Findings:          res.Findings,
		TotalPlaceholders: len(sess.Engine.Substitutions().Forward),
		Degraded:          res.Degraded,
		TextLength:        utf8.RuneCountInString(req.Text),
		ProcessingMS:      milliseconds(elapsed),
	})

	if len(res.Degraded) > 0 {
		s.logger.WithRequestID(requestID).WithSession(sess.ID).Warn("Masking ran with degraded detectors",
			zap.Strings("degraded", res.Degraded))
	}

	writeJSON(w, http.StatusOK, HideResponse{
		SessionID:  sess.ID,
		MaskedText: res.MaskedText,
		Findings:   res.Findings,
		Degraded:   res.Degraded,
	})
}

func (s *Server) handleFill(w http.ResponseWriter, r *http.Request) {
	var req FillRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		writeError(w, r, http.StatusBadRequest, "session_id is required")
		return
	}

	sess, err := s.sessions.Get(req.SessionID)
	if err != nil {
		writeError(w, r, http.StatusNotFound, err.Error())
		return
	}

	requestID := RequestID(r.Context())
	start := time.Now()
	text := sess.Engine.Fill(req.Text)
	elapsed := time.Since(start)

	s.record(&audit.Record{
		RequestID:  requestID,
		SessionID:  sess.ID,
		Operation:  audit.OperationFill,
		TextLength: utf8.RuneCountInString(req.Text),
		DurationMs: milliseconds(elapsed),
	})
	s.broadcast(websocket.EventTypeRestore, requestID, websocket.RestoreEvent{
		SessionID:    sess.ID,
		TextLength:   utf8.RuneCountInString(req.Text),
		ProcessingMS: milliseconds(elapsed),
	})

	writeJSON(w, http.StatusOK, FillResponse{Text: text})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(mux.Vars(r)["id"]); err != nil {
		writeError(w, r, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decode reads a size-limited JSON body; it writes the error response and
// returns false on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	limit := s.currentConfig().Server.MaxBodyBytes
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, r, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, RequestID: RequestID(r.Context())})
}

func milliseconds(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
