// Package rpc defines the JSON-RPC 2.0 params and results exchanged over
// the WebSocket connection.
package rpc

import (
	"github.com/meetline/server/agenda"
	"github.com/meetline/server/persist"
	"github.com/meetline/server/recording"
	"github.com/meetline/server/segment"
)

// Client → Server

type AuthParams struct {
	Token string `json:"token"`
}

type AuthResult struct {
	Version string `json:"version"`
	Title   string `json:"title"`
}

type ItemParams struct {
	ItemID string `json:"item_id"`
}

type AttributeParams struct {
	Fragments []segment.Fragment `json:"fragments"`
}

type UnsubscribeParams struct {
	ID string `json:"id"`
}

// Server → Client

type AgendaNode struct {
	agenda.Item
	Number   string       `json:"number"`
	Depth    int          `json:"depth"`
	Children []AgendaNode `json:"children,omitempty"`
}

type AgendaTreeResult struct {
	ActiveItemID string       `json:"active_item_id,omitempty"`
	DisplayIndex int          `json:"display_index"`
	Roots        []AgendaNode `json:"roots"`
}

type SessionResult = recording.Snapshot

type SegmentsSubscribeResult struct {
	ID           string        `json:"id"`
	Seq          uint64        `json:"seq"`
	ActiveItemID string        `json:"active_item_id,omitempty"`
	Items        []agenda.Item `json:"items"`
}

type SessionSubscribeResult struct {
	ID string `json:"id"`
	recording.Snapshot
}

type AttributeResult = segment.Attribution

type PendingResult struct {
	Entries []persist.Entry `json:"entries"`
}

// NewAgendaTree converts a tree into its wire form.
func NewAgendaTree(tree *agenda.Tree, activeID string, displayIndex int) AgendaTreeResult {
	numbers := tree.Numbering()
	var build func(nodes []*agenda.Node) []AgendaNode
	build = func(nodes []*agenda.Node) []AgendaNode {
		out := make([]AgendaNode, 0, len(nodes))
		for _, n := range nodes {
			out = append(out, AgendaNode{
				Item:     n.Item.Clone(),
				Number:   numbers[n.ID],
				Depth:    n.Depth,
				Children: build(n.Children),
			})
		}
		return out
	}
	return AgendaTreeResult{
		ActiveItemID: activeID,
		DisplayIndex: displayIndex,
		Roots:        build(tree.Roots()),
	}
}
