// Package mcp exposes the engine as Model Context Protocol tools over stdio.
//
// Every tool takes a flat argument object. Argument shape is checked here,
// before the engine applies its own rules; any failure is returned as a tool
// result flagged as an error whose body carries the JSON-RPC error code, the
// business reason and the message, so the calling agent can read and react.
package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"taskqueue/internal/apperr"
	"taskqueue/internal/engine"
	"taskqueue/internal/llm"
)

const (
	Name = "taskqueue"

	// JSON-RPC 2.0 error codes.
	codeInvalidRequest = -32600
	codeInvalidParams  = -32602
	codeInternal       = -32603
)

// Version is overridden at build time.
var Version = "dev"

type Config struct {
	Engine    engine.Engine
	Generator llm.Generator
	Logger    *slog.Logger
}

// New builds the MCP server with one tool per engine operation.
func New(cfg Config) *server.MCPServer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := server.NewMCPServer(
		Name,
		Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)
	h := &handlers{engine: cfg.Engine, gen: cfg.Generator, logger: logger}
	for _, t := range h.tools() {
		s.AddTool(t.def, h.wrap(t.def.Name, t.fn))
	}
	return s
}

// Serve speaks the protocol on in/out until ctx is done or in is closed.
// Nothing but protocol frames is ever written to out.
func Serve(ctx context.Context, s *server.MCPServer, in io.Reader, out io.Writer, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	stdio := server.NewStdioServer(s)
	stdio.SetErrorLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError))
	logger.InfoContext(ctx, "mcp server listening on stdio", "version", Version)
	return stdio.Listen(ctx, in, out)
}

const instructions = `Track work as projects made of ordered tasks.
Create a project, then repeatedly call get_next_task, move the task to "in progress",
and mark it "done" with completedDetails. A done task must be approved by a human
(approve_task) before the next one is handed out, unless the project auto-approves.
When every task is done and approved, call finalize_project.`

type toolFunc func(ctx context.Context, a args) (any, error)

type tool struct {
	def mcp.Tool
	fn  toolFunc
}

// wrap turns a tool function into an mcp-go handler, rendering the result as
// indented JSON and failures as error results.
func (h *handlers) wrap(name string, fn toolFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		out, err := fn(ctx, args(req.GetArguments()))
		if err != nil {
			ae := apperr.As(err)
			level := slog.LevelDebug
			if rpcCode(ae.Code) == codeInternal {
				level = slog.LevelWarn
			}
			h.logger.Log(ctx, level, "tool failed", "tool", name, "code", ae.Code, "error", err)
			return errorResult(ae), nil
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}

// rpcCode joins the business error codes to the JSON-RPC code space. It is the
// only place the two meet.
func rpcCode(code apperr.Code) int {
	switch code.Category() {
	case apperr.CategoryValidation:
		return codeInvalidParams
	case apperr.CategoryNotFound:
		return codeInvalidRequest
	case apperr.CategoryStateTransition:
		if code == apperr.InvalidStatusTransition {
			return codeInvalidParams
		}
		return codeInvalidRequest
	}
	return codeInternal
}

type toolError struct {
	Code     int            `json:"code"`
	Reason   apperr.Code    `json:"reason"`
	Category string         `json:"category"`
	Message  string         `json:"message"`
	Details  map[string]any `json:"details,omitempty"`
}

func errorResult(ae *apperr.Error) *mcp.CallToolResult {
	msg := ae.Error()
	if ae.Code == apperr.Unknown {
		msg = "internal error: " + msg
	}
	body, err := json.MarshalIndent(map[string]toolError{"error": {
		Code:     rpcCode(ae.Code),
		Reason:   ae.Code,
		Category: string(ae.Category()),
		Message:  msg,
		Details:  ae.Details,
	}}, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(msg)
	}
	return mcp.NewToolResultError(string(body))
}
