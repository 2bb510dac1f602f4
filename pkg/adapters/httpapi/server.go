// Package httpapi exposes an engine over HTTP in a webhook style: the
// caller posts an activity and the response body carries the replies,
// so no return channel has to be registered.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/activity"
	"github.com/aretw0/arbor/pkg/dialog"
	"github.com/aretw0/arbor/pkg/state"
	"github.com/aretw0/arbor/pkg/turn"
)

// DefaultChannel is stamped on inbound activities that carry no channel id.
const DefaultChannel = "http"

// Server routes HTTP requests into an engine.
type Server struct {
	engine *arbor.Engine
	logger *slog.Logger
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewHandler builds the router:
//
//	POST /api/messages                      run one turn, reply in body
//	GET  /api/conversations/{id}/trace      active dialog stack
//	GET  /healthz                           liveness
func NewHandler(engine *arbor.Engine, opts ...Option) http.Handler {
	s := &Server{engine: engine}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)
	r.Route("/api", func(r chi.Router) {
		r.Post("/messages", s.postMessage)
		r.Get("/conversations/{conversationID}/trace", s.trace)
	})
	return r
}

// turnSummary mirrors the dialog result in the response body.
type turnSummary struct {
	Status dialog.TurnStatus `json:"status"`
	Result any               `json:"result,omitempty"`
}

type messageResponse struct {
	Activities []*activity.Activity `json:"activities"`
	Turn       turnSummary          `json:"turn"`
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	var act activity.Activity
	if err := json.NewDecoder(r.Body).Decode(&act); err != nil {
		http.Error(w, "invalid activity document", http.StatusBadRequest)
		return
	}
	if act.Type == "" {
		act.Type = activity.TypeMessage
	}
	if act.ChannelID == "" {
		act.ChannelID = DefaultChannel
	}

	sender := &bufferSender{}
	res, err := s.engine.RunTurn(r.Context(), turn.New(sender, &act))
	if err != nil {
		if errors.Is(err, state.ErrBadReference) {
			http.Error(w, "activity missing conversation or from", http.StatusBadRequest)
			return
		}
		s.logger.Error("turn failed", "conversation", act.ConversationID(), "err", err)
		http.Error(w, "turn failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, s.logger, messageResponse{
		Activities: sender.replies(),
		Turn:       turnSummary{Status: res.Status, Result: res.Result},
	})
}

type traceResponse struct {
	Conversation string                `json:"conversation"`
	Stack        []dialog.InstanceInfo `json:"stack"`
}

func (s *Server) trace(w http.ResponseWriter, r *http.Request) {
	convID := chi.URLParam(r, "conversationID")
	channel := r.URL.Query().Get("channel")
	if channel == "" {
		channel = DefaultChannel
	}

	act := &activity.Activity{
		Type:         activity.TypeEvent,
		ChannelID:    channel,
		Conversation: &activity.ConversationAccount{ID: convID},
		From:         &activity.ChannelAccount{ID: "trace"},
	}
	infos, err := s.engine.Trace(r.Context(), turn.New(&bufferSender{}, act))
	if err != nil {
		s.logger.Error("trace failed", "conversation", convID, "err", err)
		http.Error(w, "trace failed", http.StatusInternalServerError)
		return
	}
	if infos == nil {
		infos = []dialog.InstanceInfo{}
	}
	writeJSON(w, s.logger, traceResponse{Conversation: convID, Stack: infos})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.logger, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("response encode failed", "err", err)
	}
}

// bufferSender collects the turn's replies for the response body.
type bufferSender struct {
	mu   sync.Mutex
	sent []*activity.Activity
}

func (b *bufferSender) Send(_ context.Context, _ *activity.ConversationReference, a *activity.Activity) (*activity.ResourceResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, a)
	return &activity.ResourceResponse{ID: fmt.Sprintf("reply-%d", len(b.sent))}, nil
}

func (b *bufferSender) replies() []*activity.Activity {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sent == nil {
		return []*activity.Activity{}
	}
	return b.sent
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
