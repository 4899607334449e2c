package mcp

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/a3tai/mcp-form-filler/internal/config"
	"github.com/a3tai/mcp-form-filler/internal/descriptions"
	"github.com/a3tai/mcp-form-filler/internal/document"
	ferrors "github.com/a3tai/mcp-form-filler/internal/errors"
	"github.com/a3tai/mcp-form-filler/internal/filler"
	"github.com/a3tai/mcp-form-filler/internal/session"
)

const shutdownTimeout = 5 * time.Second

// Server represents the MCP server instance
type Server struct {
	config    *config.Config
	service   *filler.Service
	mcpServer *server.MCPServer
	logger    *slog.Logger

	// stdio transport streams, replaced in tests
	stdin  io.Reader
	stdout io.Writer
}

// NewServer creates a new MCP server instance
func NewServer(cfg *config.Config, service *filler.Service, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if service == nil {
		return nil, fmt.Errorf("form service cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	mcpServer := server.NewMCPServer(
		cfg.ServerName,
		cfg.Version,
		server.WithToolCapabilities(false),
	)

	s := &Server{
		config:    cfg,
		service:   service,
		mcpServer: mcpServer,
		logger:    logger,
		stdin:     os.Stdin,
		stdout:    os.Stdout,
	}

	s.registerTools()

	return s, nil
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	intake := mcp.NewTool(
		descriptions.ToolIntake,
		mcp.WithDescription(descriptions.FormIntakeDescription),
		mcp.WithString("path",
			mcp.Description("Path to the PDF or image form inside the document directory"),
		),
		mcp.WithString("content_base64",
			mcp.Description("Document bytes, base64 encoded, when the file is not on the server"),
		),
		mcp.WithString("name",
			mcp.Description("File name for content_base64 uploads"),
		),
	)
	s.mcpServer.AddTool(intake, s.handleIntake)

	answer := mcp.NewTool(
		descriptions.ToolAnswer,
		mcp.WithDescription(descriptions.FormAnswerDescription),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session returned by form_intake")),
		mcp.WithString("answer", mcp.Required(), mcp.Description("The user's answer to the current question")),
	)
	s.mcpServer.AddTool(answer, s.handleAnswer)

	status := mcp.NewTool(
		descriptions.ToolStatus,
		mcp.WithDescription(descriptions.FormStatusDescription),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session returned by form_intake")),
	)
	s.mcpServer.AddTool(status, s.handleStatus)

	export := mcp.NewTool(
		descriptions.ToolExport,
		mcp.WithDescription(descriptions.FormExportDescription),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Completed session to export")),
		mcp.WithString("output",
			mcp.Description("Output PDF path, relative paths are placed in the output directory"),
		),
		mcp.WithBoolean("summary",
			mcp.Description("Also write an .xlsx sheet of the answers next to the PDF"),
		),
	)
	s.mcpServer.AddTool(export, s.handleExport)

	dispose := mcp.NewTool(
		descriptions.ToolDispose,
		mcp.WithDescription(descriptions.FormDisposeDescription),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session to discard")),
	)
	s.mcpServer.AddTool(dispose, s.handleDispose)

	info := mcp.NewTool(
		descriptions.ToolServerInfo,
		mcp.WithDescription(descriptions.FormServerInfoDescription),
	)
	s.mcpServer.AddTool(info, s.handleServerInfo)
}

// toolError reports err to the client as a tool-result error carrying its reason
func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	reason := ferrors.ReasonOf(err)
	s.logger.Warn("tool failed", "tool", tool, "reason", reason, "error", err)

	msg := err.Error()
	if reason != ferrors.KindUnknown.String() && !strings.HasPrefix(msg, "["+reason+"]") {
		msg = fmt.Sprintf("[%s] %s", reason, msg)
	}
	return mcp.NewToolResultError(msg)
}

func stringArg(request mcp.CallToolRequest, key string) string {
	if v, ok := request.GetArguments()[key].(string); ok {
		return v
	}
	return ""
}

func boolArg(request mcp.CallToolRequest, key string) bool {
	switch v := request.GetArguments()[key].(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "1" || v == "yes"
	default:
		return false
	}
}

// Handler functions
func (s *Server) handleIntake(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := stringArg(request, "path")
	content := stringArg(request, "content_base64")

	var (
		result *filler.IntakeResult
		err    error
	)
	switch {
	case path != "" && content != "":
		return mcp.NewToolResultError("provide either path or content_base64, not both"), nil
	case path != "":
		result, err = s.service.Intake(ctx, path)
	case content != "":
		name := stringArg(request, "name")
		if name == "" {
			return mcp.NewToolResultError("name is required with content_base64"), nil
		}
		data, decodeErr := base64.StdEncoding.DecodeString(content)
		if decodeErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("content_base64 is not valid base64: %v", decodeErr)), nil
		}
		result, err = s.service.IntakeReader(ctx, bytes.NewReader(data), name)
	default:
		return mcp.NewToolResultError("path or content_base64 is required"), nil
	}
	if err != nil {
		return s.toolError(descriptions.ToolIntake, err), nil
	}

	return mcp.NewToolResultText(formatIntakeResult(result)), nil
}

func (s *Server) handleAnswer(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	answer, err := request.RequireString("answer")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	reply, err := s.service.Answer(ctx, id, answer)
	if err != nil {
		return s.toolError(descriptions.ToolAnswer, err), nil
	}

	return mcp.NewToolResultText(formatReply(reply)), nil
}

func (s *Server) handleStatus(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	status, err := s.service.Status(id)
	if err != nil {
		return s.toolError(descriptions.ToolStatus, err), nil
	}

	return mcp.NewToolResultText(formatStatusResult(status)), nil
}

func (s *Server) handleExport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.service.Export(ctx, id, filler.ExportRequest{
		Output:  stringArg(request, "output"),
		Summary: boolArg(request, "summary"),
	})
	if err != nil {
		return s.toolError(descriptions.ToolExport, err), nil
	}

	return mcp.NewToolResultText(formatExportResult(result)), nil
}

func (s *Server) handleDispose(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := s.service.Dispose(id); err != nil {
		return s.toolError(descriptions.ToolDispose, err), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Session %s disposed", id)), nil
}

func (s *Server) handleServerInfo(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(s.formatServerInfo()), nil
}

// Formatting functions
func formatIntakeResult(result *filler.IntakeResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session: %s\n", result.SessionID)
	fmt.Fprintf(&b, "Document: %s (%s)\n", result.Document, result.Kind)
	if result.IsNativeForm {
		b.WriteString("Form type: interactive PDF form\n")
	} else {
		fmt.Fprintf(&b, "Form type: detected from text (%s)\n", result.Method)
	}

	fmt.Fprintf(&b, "\nFields (%d):\n", len(result.Fields))
	for i, f := range result.Fields {
		required := ""
		if f.Required {
			required = ", required"
		}
		fmt.Fprintf(&b, "%d. %s [%s%s]\n", i+1, f.Label, f.Type, required)
	}

	fmt.Fprintf(&b, "\nNext question (%s):\n%s", result.FieldID, result.Question)
	return b.String()
}

func formatReply(reply *session.Reply) string {
	var b strings.Builder
	switch {
	case reply.Complete:
		b.WriteString("Status: complete\n")
	case reply.Accepted:
		fmt.Fprintf(&b, "Status: accepted (%d/%d answered)\n", reply.Cursor, reply.Total)
	default:
		fmt.Fprintf(&b, "Status: rejected (%s)\n", reply.Reason)
	}
	if reply.FieldID != "" && !reply.Complete {
		fmt.Fprintf(&b, "Field: %s\n", reply.FieldID)
	}
	b.WriteString("\n")
	b.WriteString(reply.Message)
	if reply.Complete {
		b.WriteString("\n\nUse form_export to write the filled document.")
	}
	return b.String()
}

func formatStatusResult(status *filler.StatusResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session: %s\n", status.SessionID)
	if status.Document != "" {
		fmt.Fprintf(&b, "Document: %s\n", status.Document)
	}
	fmt.Fprintf(&b, "Progress: %d/%d\n", status.Cursor, status.Total)
	if status.Complete {
		b.WriteString("Complete: yes\n")
	} else {
		b.WriteString("Complete: no\n")
		if status.Current != nil {
			fmt.Fprintf(&b, "Current field: %s (%s)\n", status.Current.Label, status.Current.ID)
		}
	}

	b.WriteString("\nFields:\n")
	for i, f := range status.Fields {
		value, ok := status.Values[f.ID]
		switch {
		case ok:
			fmt.Fprintf(&b, "%d. %s: %s\n", i+1, f.Label, value)
		default:
			fmt.Fprintf(&b, "%d. %s: -\n", i+1, f.Label)
		}
	}
	fmt.Fprintf(&b, "\nConversation turns: %d\n", len(status.History))
	return b.String()
}

func formatExportResult(result *filler.ExportResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Filled document written: %s\n", result.Path)
	fmt.Fprintf(&b, "Strategy: %s\n", result.Strategy)
	fmt.Fprintf(&b, "Size: %d bytes\n", result.Bytes)
	fmt.Fprintf(&b, "Fields written: %d\n", len(result.Written))
	if len(result.Skipped) > 0 {
		fmt.Fprintf(&b, "Fields not placed: %s\n", strings.Join(result.Skipped, ", "))
	}
	if result.SummaryPath != "" {
		fmt.Fprintf(&b, "Answer sheet: %s\n", result.SummaryPath)
	}
	fmt.Fprintf(&b, "Session %s has ended.", result.SessionID)
	return b.String()
}

func (s *Server) formatServerInfo() string {
	svc := s.service.Config()

	var b strings.Builder
	fmt.Fprintf(&b, "📋 %s v%s - Server Information\n", s.config.ServerName, s.config.Version)
	fmt.Fprintf(&b, "📁 Document Directory: %s\n", svc.DocumentDir)
	fmt.Fprintf(&b, "📤 Output Directory: %s\n", svc.OutputDir)
	fmt.Fprintf(&b, "📏 Max File Size: %d MB\n", svc.MaxFileSize/(1024*1024))
	fmt.Fprintf(&b, "🗂️  Active Sessions: %d (idle sessions expire after %s)\n", s.service.Sessions(), svc.SessionTTL)

	b.WriteString("\n🛠️  Available Tools:\n")
	for _, name := range descriptions.GetAllToolNames() {
		desc := descriptions.GetToolDescription(name)
		if i := strings.IndexByte(desc, '\n'); i > 0 {
			desc = desc[:i]
		}
		fmt.Fprintf(&b, "\n• %s\n", name)
		fmt.Fprintf(&b, "  Description: %s\n", desc)
		fmt.Fprintf(&b, "  Usage: %s\n", descriptions.ToolUsage[name])
	}

	b.WriteString("\n🖼️  Supported Document Formats:\n")
	for _, mt := range document.SupportedMediaTypes() {
		fmt.Fprintf(&b, "  • %s\n", mt)
	}

	b.WriteString("\nStart with form_intake, relay each question to the user, send their reply with " +
		"form_answer, and call form_export once the form is complete.")
	return b.String()
}

// Run starts the MCP server in the configured mode and returns when ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	switch s.config.Mode {
	case config.ModeServer:
		return s.runServerMode(ctx)
	case config.ModeStdio:
		return s.runStdioMode(ctx)
	default:
		return fmt.Errorf("unsupported mode: %s", s.config.Mode)
	}
}

// runStdioMode runs the server in stdio mode
func (s *Server) runStdioMode(ctx context.Context) error {
	s.logger.Debug("starting MCP server in stdio mode", "documents", s.config.DocumentDirectory)

	stdio := server.NewStdioServer(s.mcpServer)
	stdio.SetErrorLogger(log.New(io.Discard, "", 0))
	if s.config.IsDebug() {
		stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	}

	err := stdio.Listen(ctx, s.stdin, s.stdout)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	return nil
}

// runServerMode serves MCP over SSE until ctx is cancelled, then shuts down gracefully
func (s *Server) runServerMode(ctx context.Context) error {
	addr := s.config.Address()
	sse := server.NewSSEServer(s.mcpServer, server.WithBaseURL("http://"+addr))

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting MCP server", "mode", "sse", "address", addr)
		errCh <- sse.Start(addr)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to serve sse: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := sse.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down sse server: %w", err)
	}
	s.logger.Info("MCP server stopped")
	return nil
}
