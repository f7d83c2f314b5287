// Package mcp exposes complaint search, intent classification and statistics as MCP tools
// over stdio.
package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/hyperjump/civicrag/internal/assistant"
	"github.com/hyperjump/civicrag/pkg/utils"
)

const (
	// ServerName is the MCP server name
	ServerName = "civicrag"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with the search services.
type Server struct {
	mcp        *server.MCPServer
	search     assistant.Searcher
	classifier assistant.Classifier
	analyzer   assistant.Analyzer
	logger     *zap.Logger
}

// NewServer creates an MCP server and registers its tools.
func NewServer(search assistant.Searcher, classifier assistant.Classifier, analyzer assistant.Analyzer, logger *zap.Logger) *Server {
	s := &Server{
		mcp:        server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false)),
		search:     search,
		classifier: classifier,
		analyzer:   analyzer,
		logger:     utils.LoggerOrNop(logger),
	}
	s.registerTools()
	return s
}

// Serve runs the server on stdio and blocks until stdin closes.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("serving MCP on stdio")
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(searchComplaintsTool(), s.handleSearchComplaints)
	s.mcp.AddTool(classifyQueryTool(), s.handleClassifyQuery)
	s.mcp.AddTool(complaintStatsTool(), s.handleComplaintStats)
}
