// Package mcp exposes the workflow engine and its tool registry over the
// Model Context Protocol, on stdio or SSE transports.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/epivigil/epivigil"
	"github.com/epivigil/epivigil/internal/workflows"
	"github.com/epivigil/epivigil/pkg/domain"
	"github.com/epivigil/epivigil/pkg/registry"
)

// Engine is the slice of the workflow engine the MCP surface needs.
type Engine interface {
	Report(ctx context.Context, req workflows.ReportRequest) (*workflows.ReportResult, error)
	Chat(ctx context.Context, req workflows.ChatRequest) (*workflows.ChatResult, error)
}

// Server wraps the engine and its tool registry as an MCP server. The five
// domain tools are registered dynamically from their specs; the two workflow
// operations are exposed as tools of their own.
type Server struct {
	engine     Engine
	registry   *registry.Registry
	dispatcher *registry.Dispatcher
	mcpServer  *server.MCPServer
	logger     *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewServer creates the MCP server over the engine and registry.
func NewServer(engine Engine, reg *registry.Registry, opts ...Option) *Server {
	s := &Server{
		engine:   engine,
		registry: reg,
		logger:   slog.New(slog.DiscardHandler),
		mcpServer: server.NewMCPServer("epivigil-mcp", strings.TrimSpace(epivigil.Version),
			server.WithToolCapabilities(true),
			server.WithResourceCapabilities(true, true),
		),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.dispatcher = registry.NewDispatcher(reg, registry.WithLogger(s.logger))

	s.registerWorkflowTools()
	s.registerDomainTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("mcp server listening (sse)", "address", addr)
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

// getArgs extracts arguments from a request as map[string]any.
func getArgs(request mcp.CallToolRequest) map[string]any {
	if args, ok := request.Params.Arguments.(map[string]any); ok {
		return args
	}
	return make(map[string]any)
}

func (s *Server) registerWorkflowTools() {
	// TOOL: generate_report
	reportTool := mcp.NewTool("generate_report",
		mcp.WithDescription("Generate the full SRAG situation report in Markdown, with metrics, chart data, news citations and an audit trail."),
		mcp.WithNumber("days", mcp.Description("Analysis window in days (default 30)")),
		mcp.WithString("state", mcp.Description("Optional UF filter, e.g. SP")),
		mcp.WithString("thread_id", mcp.Description("Optional thread to checkpoint the run under")),
	)
	s.mcpServer.AddTool(reportTool, s.handleGenerateReport)

	// TOOL: chat
	chatTool := mcp.NewTool("chat",
		mcp.WithDescription("Ask the SRAG data assistant a question in natural language. Answers in Portuguese, grounded on the surveillance database."),
		mcp.WithString("message", mcp.Required(), mcp.Description("The question or instruction")),
		mcp.WithString("thread_id", mcp.Description("Thread to continue; omit to start a new conversation")),
	)
	s.mcpServer.AddTool(chatTool, s.handleChat)
}

// registerDomainTools mirrors every registry tool as an MCP tool, reusing the
// JSON Schema the model surface already carries.
func (s *Server) registerDomainTools() {
	for _, spec := range s.registry.Specs() {
		schema := json.RawMessage(`{"type":"object"}`)
		if spec.Parameters != nil {
			if raw, err := json.Marshal(spec.Parameters); err == nil {
				schema = raw
			}
		}

		name := spec.Name
		tool := mcp.NewToolWithRawSchema(name, spec.Description, schema)
		s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			call := domain.ToolCall{ID: uuid.NewString(), Name: name, Args: getArgs(request)}
			result, _ := s.dispatcher.Dispatch(ctx, call)
			if result.IsError {
				return mcp.NewToolResultError(result.Error), nil
			}
			return mcp.NewToolResultText(renderPayload(result.Result)), nil
		})
	}
}

func (s *Server) handleGenerateReport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)

	days, _ := args["days"].(float64)
	region, _ := args["state"].(string)
	threadID, _ := args["thread_id"].(string)

	result, err := s.engine.Report(ctx, workflows.ReportRequest{
		Days:     int(days),
		Region:   region,
		ThreadID: threadID,
	})
	if err != nil {
		s.logger.Error("mcp report failed", "err", err)
		return mcp.NewToolResultError(fmt.Sprintf("report failed: %v", err)), nil
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode report: %v", err)), nil
	}
	return mcp.NewToolResultText(string(raw)), nil
}

func (s *Server) handleChat(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)

	message, ok := args["message"].(string)
	if !ok || message == "" {
		return mcp.NewToolResultError("message parameter is required"), nil
	}
	threadID, _ := args["thread_id"].(string)

	result, err := s.engine.Chat(ctx, workflows.ChatRequest{Message: message, ThreadID: threadID})
	if err != nil {
		s.logger.Error("mcp chat failed", "thread", threadID, "err", err)
		return mcp.NewToolResultError(fmt.Sprintf("chat failed: %v", err)), nil
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode reply: %v", err)), nil
	}
	return mcp.NewToolResultText(string(raw)), nil
}

func (s *Server) registerResources() {
	// EXPOSE: epivigil://tools
	s.mcpServer.AddResource(mcp.NewResource("epivigil://tools", "Registered Tool Catalogue",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		raw, err := json.Marshal(s.registry.Specs())
		if err != nil {
			return nil, fmt.Errorf("failed to encode tool specs: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "epivigil://tools",
				MIMEType: "application/json",
				Text:     string(raw),
			},
		}, nil
	})
}

// renderPayload flattens a tool result into text the MCP client reads back.
func renderPayload(payload any) string {
	switch v := payload.(type) {
	case string:
		return v
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(raw)
	}
}
