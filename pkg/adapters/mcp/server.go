// Package mcp exposes an engine to MCP clients. Conversations map to tool
// calls: send_message drives one turn, conversation_trace inspects the
// active stack, reset_conversation clears it.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/activity"
	"github.com/aretw0/arbor/pkg/dialog"
	"github.com/aretw0/arbor/pkg/turn"
)

// DefaultChannel is stamped on activities fabricated from tool calls.
const DefaultChannel = "mcp"

// DefaultUser stands in when a tool call names no user.
const DefaultUser = "mcp-user"

// TurnResponse is the structured result of a send_message call.
type TurnResponse struct {
	Replies []string          `json:"replies" jsonschema_description:"Reply texts, in send order"`
	Status  dialog.TurnStatus `json:"status" jsonschema_description:"Dialog stack status after the turn"`
	Result  any               `json:"result,omitempty" jsonschema_description:"Result of the completed dialog, if any"`
}

// TraceResponse is the structured result of a conversation_trace call.
type TraceResponse struct {
	Conversation string                `json:"conversation"`
	Stack        []dialog.InstanceInfo `json:"stack" jsonschema_description:"Active dialogs, innermost first"`
}

// ResetResponse is the structured result of a reset_conversation call.
type ResetResponse struct {
	Conversation string `json:"conversation"`
	Reset        bool   `json:"reset"`
}

// Server wraps an engine and exposes it as an MCP server.
type Server struct {
	engine    *arbor.Engine
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets the server log destination.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewServer creates an MCP server around the engine.
func NewServer(engine *arbor.Engine, opts ...Option) *Server {
	s := &Server{
		engine:    engine,
		mcpServer: server.NewMCPServer("arbor-mcp", strings.TrimSpace(arbor.Version)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}
	s.registerTools()
	return s
}

// ServeStdio starts the server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves MCP over SSE on addr until ctx is cancelled, then drains
// with a five second grace window.
func (s *Server) ServeSSE(ctx context.Context, addr string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL(addr)))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("mcp server listening", "addr", addr, "mode", "sse")
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("mcp shutdown: %w", err)
		}
		return nil
	}
}

func baseURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	sendTool := mcp.NewTool("send_message",
		mcp.WithDescription("Send a user message into a conversation and return the replies."),
		mcp.WithString("conversation_id", mcp.Required(), mcp.Description("Stable conversation identifier")),
		mcp.WithString("user_id", mcp.Description("User identifier (defaults to mcp-user)")),
		mcp.WithString("text", mcp.Required(), mcp.Description("The message text")),
		mcp.WithOutputSchema[TurnResponse](),
	)
	s.mcpServer.AddTool(sendTool, mcp.NewStructuredToolHandler(s.handleSendMessage))

	traceTool := mcp.NewTool("conversation_trace",
		mcp.WithDescription("List the conversation's active dialogs, innermost first."),
		mcp.WithString("conversation_id", mcp.Required(), mcp.Description("Conversation to inspect")),
		mcp.WithOutputSchema[TraceResponse](),
	)
	s.mcpServer.AddTool(traceTool, mcp.NewStructuredToolHandler(s.handleTrace))

	resetTool := mcp.NewTool("reset_conversation",
		mcp.WithDescription("Drop the conversation's dialog stack and state."),
		mcp.WithString("conversation_id", mcp.Required(), mcp.Description("Conversation to reset")),
		mcp.WithOutputSchema[ResetResponse](),
	)
	s.mcpServer.AddTool(resetTool, mcp.NewStructuredToolHandler(s.handleReset))
}

func (s *Server) handleSendMessage(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (TurnResponse, error) {
	convID, _ := args["conversation_id"].(string)
	if convID == "" {
		return TurnResponse{}, fmt.Errorf("conversation_id is required")
	}
	text, _ := args["text"].(string)
	userID, _ := args["user_id"].(string)
	if userID == "" {
		userID = DefaultUser
	}

	act := userActivity(convID, userID)
	act.Text = text

	sender := &bufferSender{}
	res, err := s.engine.RunTurn(ctx, turn.New(sender, act))
	if err != nil {
		s.logger.Error("turn failed", "conversation", convID, "err", err)
		return TurnResponse{}, fmt.Errorf("turn failed: %w", err)
	}

	return TurnResponse{
		Replies: sender.texts(),
		Status:  res.Status,
		Result:  res.Result,
	}, nil
}

func (s *Server) handleTrace(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (TraceResponse, error) {
	convID, _ := args["conversation_id"].(string)
	if convID == "" {
		return TraceResponse{}, fmt.Errorf("conversation_id is required")
	}

	infos, err := s.engine.Trace(ctx, turn.New(&bufferSender{}, userActivity(convID, DefaultUser)))
	if err != nil {
		return TraceResponse{}, fmt.Errorf("trace failed: %w", err)
	}
	if infos == nil {
		infos = []dialog.InstanceInfo{}
	}
	return TraceResponse{Conversation: convID, Stack: infos}, nil
}

func (s *Server) handleReset(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (ResetResponse, error) {
	convID, _ := args["conversation_id"].(string)
	if convID == "" {
		return ResetResponse{}, fmt.Errorf("conversation_id is required")
	}

	if err := s.engine.Reset(ctx, turn.New(&bufferSender{}, userActivity(convID, DefaultUser))); err != nil {
		return ResetResponse{}, fmt.Errorf("reset failed: %w", err)
	}
	return ResetResponse{Conversation: convID, Reset: true}, nil
}

func userActivity(convID, userID string) *activity.Activity {
	return &activity.Activity{
		Type:         activity.TypeMessage,
		ID:           activity.NewID(),
		ChannelID:    DefaultChannel,
		Conversation: &activity.ConversationAccount{ID: convID},
		From:         &activity.ChannelAccount{ID: userID},
		Recipient:    &activity.ChannelAccount{ID: "bot"},
	}
}

// bufferSender collects reply texts for the tool result.
type bufferSender struct {
	sent []*activity.Activity
}

func (b *bufferSender) Send(_ context.Context, _ *activity.ConversationReference, a *activity.Activity) (*activity.ResourceResponse, error) {
	b.sent = append(b.sent, a)
	return &activity.ResourceResponse{ID: fmt.Sprintf("reply-%d", len(b.sent))}, nil
}

func (b *bufferSender) texts() []string {
	out := make([]string, 0, len(b.sent))
	for _, a := range b.sent {
		if a.IsMessage() && a.Text != "" {
			out = append(out, a.Text)
		}
	}
	return out
}
