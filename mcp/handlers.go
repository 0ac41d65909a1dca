package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/meetline/server/agenda"
	"github.com/meetline/server/rpc"
	"github.com/meetline/server/segment"
	"github.com/meetline/server/store"
)

func (s *Server) loadTree(ctx context.Context) (*agenda.Tree, error) {
	records, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	return agenda.NewTree(store.Items(records))
}

// openItem returns the item whose last range is still open, as a crashed or
// running recording leaves it.
func openItem(tree *agenda.Tree) string {
	var id string
	tree.Walk(func(n *agenda.Node) bool {
		segs := n.TimeSegments
		if len(segs) > 0 && segs[len(segs)-1].IsOpen() {
			id = n.ID
			return false
		}
		return true
	})
	return id
}

func (s *Server) handleAgendaTree(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tree, err := s.loadTree(ctx)
	if err != nil {
		return InternalError(err), nil
	}
	active := openItem(tree)
	return jsonResult(rpc.NewAgendaTree(tree, active, tree.RootIndexOf(active)))
}

type itemSegments struct {
	ID               string             `json:"id"`
	Number           string             `json:"number"`
	Title            string             `json:"title"`
	Status           agenda.Status      `json:"status"`
	TimeSegments     []agenda.TimeRange `json:"time_segments"`
	StartedAtSeconds *int               `json:"started_at_seconds"`
	Seconds          int                `json:"seconds"`
	Version          uint64             `json:"version"`
}

func (s *Server) handleItemSegments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("item_id")
	if err != nil {
		return ValidationError("item_id is required"), nil
	}

	rec, found, err := s.store.Get(ctx, id)
	if err != nil {
		return InternalError(err), nil
	}
	if !found {
		return NotFound("item", id), nil
	}

	tree, err := s.loadTree(ctx)
	if err != nil {
		return InternalError(err), nil
	}
	return jsonResult(itemSegments{
		ID:               rec.ID,
		Number:           tree.Number(rec.ID),
		Title:            rec.Title,
		Status:           rec.Status,
		TimeSegments:     rec.TimeSegments,
		StartedAtSeconds: rec.StartedAtSeconds,
		Seconds:          segment.Dwell(rec.TimeSegments),
		Version:          rec.Version,
	})
}

func (s *Server) handleDwellReport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tree, err := s.loadTree(ctx)
	if err != nil {
		return InternalError(err), nil
	}
	return jsonResult(segment.DwellReport(tree))
}

func (s *Server) handleAttributeTranscript(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fragments, err := parseFragments(req.GetArguments()["fragments"])
	if err != nil {
		return ValidationError(err.Error()), nil
	}

	tree, err := s.loadTree(ctx)
	if err != nil {
		return InternalError(err), nil
	}
	return jsonResult(segment.Attribute(tree, fragments))
}

// parseFragments accepts the array itself or the array encoded as a string.
func parseFragments(v any) ([]segment.Fragment, error) {
	var raw []byte
	switch v := v.(type) {
	case nil:
		return nil, fmt.Errorf("fragments is required")
	case string:
		raw = []byte(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("fragments: %w", err)
		}
		raw = b
	}
	var out []segment.Fragment
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("fragments must be an array of {start, end, text}: %w", err)
	}
	return out, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(data)), nil
}
