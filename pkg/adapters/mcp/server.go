package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aretw0/weave"
	"github.com/aretw0/weave/internal/logging"
	"github.com/aretw0/weave/pkg/domain"
	"github.com/aretw0/weave/pkg/session"
)

// SessionsURI lists the stored session IDs.
const SessionsURI = "weave://sessions"

// ExecuteResponse is the structured result of the execute tool.
type ExecuteResponse struct {
	Messages []string          `json:"messages" jsonschema_description:"Human-readable event lines, in execution order"`
	Events   []domain.Event    `json:"events" jsonschema_description:"Events emitted during the tick"`
	State    *domain.State     `json:"state" jsonschema_description:"Session state after the tick"`
	Diff     *domain.StateDiff `json:"diff,omitempty" jsonschema_description:"What the tick changed"`
}

// CheckResponse is the structured result of the check tool.
type CheckResponse struct {
	Valid      bool   `json:"valid" jsonschema_description:"Whether the program parses"`
	Statements int    `json:"statements" jsonschema_description:"Number of top-level statements"`
	Error      string `json:"error,omitempty" jsonschema_description:"Syntax diagnostics with a caret snippet"`
}

// Server exposes a session.Manager as an MCP server.
type Server struct {
	manager   *session.Manager
	maxDepth  int
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the server logger. It must not write to stdout under stdio transport.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMaxDepth sets the loop nesting limit used by the check tool.
func WithMaxDepth(depth int) Option {
	return func(s *Server) {
		s.maxDepth = depth
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(mgr *session.Manager, opts ...Option) *Server {
	s := &Server{
		manager:   mgr,
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("weave-mcp", strings.TrimSpace(weave.Version)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server, e.g. for custom transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves over Server-Sent Events on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())

	httpServer := &http.Server{Addr: addr, Handler: mux}
	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func (s *Server) registerTools() {
	executeTool := mcp.NewTool("execute",
		mcp.WithDescription("Run one tick of a WeaveLang program against a session, creating it if needed."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session to run against")),
		mcp.WithString("source", mcp.Required(), mcp.Description("WeaveLang program text")),
		mcp.WithOutputSchema[ExecuteResponse](),
	)
	s.mcpServer.AddTool(executeTool, mcp.NewStructuredToolHandler(s.handleExecute))

	checkTool := mcp.NewTool("check",
		mcp.WithDescription("Parse a WeaveLang program without running it."),
		mcp.WithString("source", mcp.Required(), mcp.Description("WeaveLang program text")),
		mcp.WithOutputSchema[CheckResponse](),
	)
	s.mcpServer.AddTool(checkTool, mcp.NewStructuredToolHandler(s.handleCheck))

	stateTool := mcp.NewTool("get_state",
		mcp.WithDescription("Get the stored state of a session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
		mcp.WithOutputSchema[domain.State](),
	)
	s.mcpServer.AddTool(stateTool, mcp.NewStructuredToolHandler(s.handleGetState))
}

func (s *Server) handleExecute(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (ExecuteResponse, error) {
	id, _ := args["session_id"].(string)
	src, _ := args["source"].(string)
	if id == "" {
		return ExecuteResponse{}, errors.New("session_id is required")
	}

	res, err := s.manager.Execute(ctx, id, src)
	if err != nil {
		s.logger.Warn("MCP execute failed", "session_id", id, "err", err)
		return ExecuteResponse{}, errors.New(domain.FormatSyntaxError(err, src))
	}

	msgs := make([]string, len(res.Events))
	for i, ev := range res.Events {
		msgs[i] = ev.Message()
	}
	return ExecuteResponse{Messages: msgs, Events: res.Events, State: res.State, Diff: res.Diff}, nil
}

func (s *Server) handleCheck(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (CheckResponse, error) {
	src, _ := args["source"].(string)
	prog, err := weave.New(weave.WithMaxDepth(s.maxDepth)).Parse(src)
	if err != nil {
		return CheckResponse{Valid: false, Error: domain.FormatSyntaxError(err, src)}, nil
	}
	return CheckResponse{Valid: true, Statements: len(prog.Statements)}, nil
}

func (s *Server) handleGetState(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (domain.State, error) {
	id, _ := args["session_id"].(string)
	st, err := s.manager.Load(ctx, id)
	if err != nil {
		return domain.State{}, fmt.Errorf("load session %q: %w", id, err)
	}
	return *st, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(SessionsURI, "Stored Sessions",
		mcp.WithMIMEType("application/json"),
	), s.readSessions)
}

func (s *Server) readSessions(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	ids, err := s.manager.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	jsonBytes, _ := json.Marshal(ids)

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      SessionsURI,
			MIMEType: "application/json",
			Text:     string(jsonBytes),
		},
	}, nil
}
