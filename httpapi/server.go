// Package httpapi implements the callback and scheduler HTTP surface: a
// small single-host listener offering a callback endpoint for proactive
// sends, and full CRUD over scheduled jobs, authenticated by a
// shared-secret token. Grounded on govega/serve/server.go's use of
// net/http.ServeMux with Go 1.22+ pattern routing and log/slog.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/clawlessdev/clawless/scheduler"
)

// ChatSender resolves and sends a proactive message to a chat.
type ChatSender interface {
	// SendToBoundChat sends text to chatID, or the bound chat if chatID is
	// empty, and returns the chat id it actually sent to.
	SendToBoundChat(ctx context.Context, chatID, text string) (string, error)
}

// RecallEntry is one semantic-recall search hit.
type RecallEntry struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chatId,omitempty"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// SemanticRecall is the optional §4.8/§12.4 recall endpoint backend.
type SemanticRecall interface {
	Recall(ctx context.Context, input, chatID string, topK int) ([]RecallEntry, error)
}

// Config configures the HTTP surface.
type Config struct {
	Addr            string // default "localhost:8788"
	AuthToken       string // empty disables auth
	MaxBodyBytes    int64  // default 65536
}

func (c *Config) applyDefaults() {
	if c.Addr == "" {
		c.Addr = "localhost:8788"
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = 65536
	}
}

// Server is the HTTP callback + scheduler API.
type Server struct {
	cfg       Config
	log       *slog.Logger
	chat      ChatSender
	scheduler *scheduler.Scheduler
	recall    SemanticRecall // may be nil

	httpServer *http.Server
}

// New constructs a Server. recall may be nil if no semantic store is
// wired; in that case POST /api/memory/semantic-recall 404s.
func New(cfg Config, chat ChatSender, sched *scheduler.Scheduler, recall SemanticRecall, log *slog.Logger) *Server {
	cfg.applyDefaults()
	return &Server{
		cfg:       cfg,
		log:       log.With("component", "http"),
		chat:      chat,
		scheduler: sched,
		recall:    recall,
	}
}

// Start listens and serves until ctx is cancelled. A port-in-use error is
// non-fatal: it is logged as a warning and Start returns nil so the rest
// of the bridge keeps running without the HTTP surface.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	s.routes(mux)

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		if isAddrInUse(err) {
			s.log.Warn("http callback server port in use, continuing without it", "addr", s.cfg.Addr, "error", err)
			return nil
		}
		return fmt.Errorf("clawless: http listen: %w", err)
	}

	s.httpServer = &http.Server{Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}()

	s.log.Info("http callback server listening", "addr", s.cfg.Addr)
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("clawless: http serve: %w", err)
	}
	return nil
}

func isAddrInUse(err error) bool {
	return strings.Contains(err.Error(), "address already in use")
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("POST /callback/{platform}", s.auth(s.handleCallback))
	mux.HandleFunc("POST /api/schedule", s.auth(s.handleScheduleCreate))
	mux.HandleFunc("GET /api/schedule", s.auth(s.handleScheduleList))
	mux.HandleFunc("GET /api/schedule/{id}", s.auth(s.handleScheduleGet))
	mux.HandleFunc("PATCH /api/schedule/{id}", s.auth(s.handleScheduleUpdate))
	mux.HandleFunc("DELETE /api/schedule/{id}", s.auth(s.handleScheduleDelete))
	mux.HandleFunc("POST /api/memory/semantic-recall", s.auth(s.handleSemanticRecall))
	mux.HandleFunc("/", s.handleNotFound)
}

// auth wraps handler with the shared-secret check: empty AuthToken
// disables auth entirely; otherwise require x-callback-token or an
// Authorization: Bearer header.
func (s *Server) auth(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AuthToken == "" {
			handler(w, r)
			return
		}
		token := r.Header.Get("x-callback-token")
		if token == "" {
			if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				token = strings.TrimPrefix(auth, "Bearer ")
			}
		}
		if token != s.cfg.AuthToken {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		handler(w, r)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "not found")
}

type callbackRequest struct {
	Text   string `json:"text"`
	ChatID string `json:"chatId"`
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	var req callbackRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	// body.chatId takes precedence over the query string when both are
	// present.
	chatID := req.ChatID
	if chatID == "" {
		chatID = r.URL.Query().Get("chatId")
	}

	resolved, err := s.chat.SendToBoundChat(r.Context(), chatID, req.Text)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "chatId": resolved})
}

type scheduleCreateRequest struct {
	Message        string              `json:"message"`
	Description    string              `json:"description"`
	CronExpression string              `json:"cronExpression"`
	OneTime        bool                `json:"oneTime"`
	RunAt          *time.Time          `json:"runAt"`
	Type           scheduler.JobType   `json:"type"`
	Metadata       scheduler.Metadata  `json:"metadata"`
}

func (s *Server) handleScheduleCreate(w http.ResponseWriter, r *http.Request) {
	var req scheduleCreateRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	cfg, err := s.scheduler.Create(scheduler.CreateRequest{
		Message:        req.Message,
		Description:    req.Description,
		CronExpression: req.CronExpression,
		OneTime:        req.OneTime,
		RunAt:          req.RunAt,
		Type:           req.Type,
		Metadata:       req.Metadata,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, cfg)
}

func (s *Server) handleScheduleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"schedules": s.scheduler.List()})
}

func (s *Server) handleScheduleGet(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.scheduler.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "schedule not found")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

type scheduleUpdateRequest struct {
	Message        *string             `json:"message"`
	Description    *string             `json:"description"`
	CronExpression *string             `json:"cronExpression"`
	RunAt          *time.Time          `json:"runAt"`
	Active         *bool               `json:"active"`
	Metadata       *scheduler.Metadata `json:"metadata"`
}

func (s *Server) handleScheduleUpdate(w http.ResponseWriter, r *http.Request) {
	var req scheduleUpdateRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Message == nil && req.Description == nil && req.CronExpression == nil &&
		req.RunAt == nil && req.Active == nil && req.Metadata == nil {
		writeError(w, http.StatusBadRequest, "at least one updatable field is required")
		return
	}

	cfg, err := s.scheduler.Update(r.PathValue("id"), scheduler.UpdatePatch{
		Message:        req.Message,
		Description:    req.Description,
		CronExpression: req.CronExpression,
		RunAt:          req.RunAt,
		Active:         req.Active,
		Metadata:       req.Metadata,
	})
	if errors.Is(err, scheduler.ErrNotFound) {
		writeError(w, http.StatusNotFound, "schedule not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleScheduleDelete(w http.ResponseWriter, r *http.Request) {
	err := s.scheduler.Remove(r.PathValue("id"))
	if errors.Is(err, scheduler.ErrNotFound) {
		writeError(w, http.StatusNotFound, "schedule not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type semanticRecallRequest struct {
	Input  string `json:"input"`
	ChatID string `json:"chatId"`
	TopK   int    `json:"topK"`
}

func (s *Server) handleSemanticRecall(w http.ResponseWriter, r *http.Request) {
	if s.recall == nil {
		writeError(w, http.StatusNotFound, "semantic recall is not configured")
		return
	}
	var req semanticRecallRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.TopK <= 0 {
		req.TopK = 5
	}
	entries, err := s.recall.Recall(r.Context(), req.Input, req.ChatID, req.TopK)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// decodeBody reads and decodes a JSON body bounded by MaxBodyBytes,
// writing a 413 JSON error on overflow or a 400 JSON error on malformed
// JSON, and returning false in either case.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	data, err := io.ReadAll(body)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}
	if len(data) == 0 {
		return true
	}
	if err := json.Unmarshal(data, v); err != nil {
		writeError(w, http.StatusBadRequest, "malformed json: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": msg})
}
