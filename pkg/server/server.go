// Package server exposes the orchestrator over HTTP. It decodes JSON requests,
// relays the event stream of a turn or a plan execution as server-sent events
// (or NDJSON), and serves the tool catalog.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-go-golems/steward/pkg/agent"
	"github.com/go-go-golems/steward/pkg/events"
	"github.com/go-go-golems/steward/pkg/inference/tools"
	"github.com/go-go-golems/steward/pkg/plan"
	"github.com/go-go-golems/steward/pkg/stream"
	"github.com/go-go-golems/steward/pkg/threads"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const defaultHeartbeat = 15 * time.Second

type Server struct {
	agent     *agent.Orchestrator
	threads   threads.Store
	router    *events.EventRouter
	heartbeat time.Duration
}

type Option func(*Server)

// WithThreads enables DELETE /api/threads/{id}.
func WithThreads(s threads.Store) Option {
	return func(srv *Server) {
		srv.threads = s
	}
}

// WithRouter also publishes every event on the router, which enables
// GET /api/threads/{id}/events for watchers of a thread.
func WithRouter(r *events.EventRouter) Option {
	return func(srv *Server) {
		srv.router = r
	}
}

func WithHeartbeat(d time.Duration) Option {
	return func(srv *Server) {
		srv.heartbeat = d
	}
}

func New(a *agent.Orchestrator, opts ...Option) *Server {
	s := &Server{agent: a, heartbeat: defaultHeartbeat}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/plan/execute", s.handleExecutePlan)
	mux.HandleFunc("POST /api/plan/cancel", s.handleCancelPlan)
	mux.HandleFunc("POST /api/action/execute", s.handleExecuteAction)
	mux.HandleFunc("POST /api/action/cancel", s.handleCancelAction)
	mux.HandleFunc("GET /api/tools", s.handleListTools)
	mux.HandleFunc("GET /api/tools/{name}", s.handleDescribeTool)
	mux.HandleFunc("GET /api/threads/{id}/events", s.handleWatchThread)
	mux.HandleFunc("DELETE /api/threads/{id}", s.handleDeleteThread)
	return logRequests(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "tools": s.agent.Registry().Count()})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req agent.Request
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, errors.New("message is required"))
		return
	}
	s.streamOperation(w, r, func(ctx context.Context) error {
		_, err := s.agent.Run(ctx, req)
		return err
	})
}

type executePlanRequest struct {
	Plan plan.ExecutionPlan `json:"plan"`
}

func (s *Server) handleExecutePlan(w http.ResponseWriter, r *http.Request) {
	var req executePlanRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.streamOperation(w, r, func(ctx context.Context) error {
		_, err := s.agent.ExecutePlan(ctx, req.Plan)
		return err
	})
}

func (s *Server) handleCancelPlan(w http.ResponseWriter, r *http.Request) {
	var req executePlanRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.agent.CancelPlan(req.Plan)
	w.WriteHeader(http.StatusNoContent)
}

type executeActionRequest struct {
	Action plan.PendingTaskAction `json:"action"`
}

func (s *Server) handleExecuteAction(w http.ResponseWriter, r *http.Request) {
	var req executeActionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.streamOperation(w, r, func(ctx context.Context) error {
		_, err := s.agent.ExecuteAction(ctx, req.Action)
		return err
	})
}

func (s *Server) handleCancelAction(w http.ResponseWriter, r *http.Request) {
	var req executeActionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.agent.CancelAction(req.Action)
	w.WriteHeader(http.StatusNoContent)
}

type toolEntry struct {
	Name     string             `json:"name"`
	Metadata tools.ToolMetadata `json:"metadata"`
}

// handleListTools accepts ?filter=<glob or substring>, ?category=<name> and ?all=true
// to include disabled tools.
func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := tools.NewQueryFilter()
	filter.NamePattern = q.Get("filter")
	if c := q.Get("category"); c != "" {
		filter.Categories = []tools.Category{tools.Category(c)}
	}
	if q.Get("all") == "true" {
		filter.EnabledOnly = false
	}
	registered := s.agent.Registry().Query(filter)
	out := make([]toolEntry, 0, len(registered))
	for _, t := range registered {
		out = append(out, toolEntry{Name: t.Name, Metadata: t.Metadata})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": out, "stats": s.agent.Registry().Stats()})
}

func (s *Server) handleDescribeTool(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.agent.Registry().Describe(r.PathValue("name"))
	if !ok {
		writeError(w, http.StatusNotFound, errors.Errorf("unknown tool %q", r.PathValue("name")))
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write([]byte(doc))
}

func (s *Server) handleWatchThread(w http.ResponseWriter, r *http.Request) {
	if s.router == nil {
		writeError(w, http.StatusNotImplemented, errors.New("event router not configured"))
		return
	}
	ch, err := s.router.Subscribe(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	sw, err := stream.NewResponseWriter(w, stream.FormatFromRequest(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	_, err = stream.Relay(r.Context(), ch, sw, stream.WithHeartbeat(s.heartbeat))
	if err != nil && r.Context().Err() == nil {
		log.Warn().Err(err).Str("thread_id", r.PathValue("id")).Msg("server: watch stream ended")
	}
}

func (s *Server) handleDeleteThread(w http.ResponseWriter, r *http.Request) {
	if s.threads == nil {
		writeError(w, http.StatusNotImplemented, errors.New("thread store not configured"))
		return
	}
	if err := s.threads.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// streamOperation runs op with the response stream attached as an event sink. The
// stream is only opened once op has published its first event, so that an error
// returned before any event (an invalid plan) becomes a plain JSON error response.
func (s *Server) streamOperation(w http.ResponseWriter, r *http.Request, op func(ctx context.Context) error) {
	reqCtx := r.Context()
	ch := make(chan events.Event, 64)
	sinks := []events.EventSink{events.NewChannelSink(reqCtx, ch)}
	if s.router != nil {
		sinks = append(sinks, s.router.Sink())
	}
	ctx := events.WithEventSinks(reqCtx, sinks...)

	errc := make(chan error, 1)
	go func() {
		defer close(ch)
		errc <- op(ctx)
	}()
	defer func() {
		for range ch {
		}
	}()

	first, ok := <-ch
	if !ok {
		if err := <-errc; err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	sw, err := stream.NewResponseWriter(w, stream.FormatFromRequest(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := sw.WriteEvent(first); err != nil || events.IsTerminal(first) {
		return
	}
	n, err := stream.Relay(reqCtx, ch, sw, stream.WithHeartbeat(s.heartbeat))
	if err != nil {
		log.Warn().Err(err).Int("written", n+1).Msg("server: stream interrupted")
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, agent.ErrInvalidPlan):
		return http.StatusUnprocessableEntity
	case errors.Is(err, agent.ErrProviderUnavailable), errors.Is(err, agent.ErrNoReply):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

const maxBody = 1 << 20

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(err, "decode request"))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("server: failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Flush keeps the wrapped writer usable for streaming.
func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("server: request")
	})
}
