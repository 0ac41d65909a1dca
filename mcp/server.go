// Package mcp exposes the stored agenda and its recorded segments to MCP
// clients over stdio. It reads from the store only and never drives a
// recording.
package mcp

import (
	"context"
	"io"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/meetline/server/store"
)

type Server struct {
	store store.Store
	mcp   *server.MCPServer
}

func NewServer(st store.Store, version string) *Server {
	s := &Server{store: st}
	s.mcp = server.NewMCPServer("meetline", version, server.WithToolCapabilities(false))
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("agenda_tree",
		mcp.WithDescription("Return the agenda as a numbered tree with every item's recorded time ranges."),
	), s.handleAgendaTree)

	s.mcp.AddTool(mcp.NewTool("item_segments",
		mcp.WithDescription("Return one agenda item with its time ranges, total dwell in seconds and legacy started_at_seconds anchor."),
		mcp.WithString("item_id", mcp.Required(), mcp.Description("Agenda item ID")),
	), s.handleItemSegments)

	s.mcp.AddTool(mcp.NewTool("dwell_report",
		mcp.WithDescription("Return seconds spent per agenda item in display order, with totals rolled up to parents."),
	), s.handleDwellReport)

	s.mcp.AddTool(mcp.NewTool("attribute_transcript",
		mcp.WithDescription("Assign transcript fragments to the agenda item being discussed at each fragment's midpoint."),
		mcp.WithArray("fragments",
			mcp.Required(),
			mcp.Description("Fragments as objects with start and end in elapsed seconds and text"),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"start": map[string]any{"type": "number"},
					"end":   map[string]any{"type": "number"},
					"text":  map[string]any{"type": "string"},
				},
				"required": []string{"start", "text"},
			}),
		),
	), s.handleAttributeTranscript)
}

// ServeStdio runs the server until ctx is done or in is closed.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}
