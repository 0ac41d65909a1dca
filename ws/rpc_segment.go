package ws

import (
	"context"
	"errors"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/meetline/server/agenda"
	"github.com/meetline/server/recording"
	"github.com/meetline/server/rpc"
	"github.com/meetline/server/segment"
)

// replyEngineError classifies tracker and session errors into JSON-RPC
// error codes.
func (h *rpcMethodHandler) replyEngineError(ctx context.Context, conn *jsonrpc2.Conn, id jsonrpc2.ID, err error, fallbackMsg string) {
	switch {
	case errors.Is(err, agenda.ErrItemNotFound):
		h.replyError(ctx, conn, id, jsonrpc2.CodeInvalidParams, "item not found")
	case errors.Is(err, recording.ErrInvalidTransition),
		errors.Is(err, recording.ErrNotRecording),
		errors.Is(err, segment.ErrEmptyAgenda):
		h.replyError(ctx, conn, id, jsonrpc2.CodeInvalidRequest, err.Error())
	default:
		h.log.Error(fallbackMsg, "error", err)
		h.replyError(ctx, conn, id, jsonrpc2.CodeInternalError, fallbackMsg)
	}
}

func (h *rpcMethodHandler) handleAgendaTree(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	tree, err := h.engine.Mirror.Tree()
	if err != nil {
		h.replyEngineError(ctx, conn, req.ID, err, "failed to build agenda")
		return
	}

	result := rpc.NewAgendaTree(tree, h.engine.Mirror.ActiveID(), h.engine.Tracker.DisplayIndex())
	if err := conn.Reply(ctx, req.ID, result); err != nil {
		h.log.Error("failed to send agenda tree response", "error", err)
	}
}

func (h *rpcMethodHandler) handleSegmentSwitch(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.ItemParams
	if err := unmarshalParams(req, &params); err != nil || params.ItemID == "" {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "item_id is required")
		return
	}

	if err := h.engine.Session.Switch(params.ItemID); err != nil {
		h.replyEngineError(ctx, conn, req.ID, err, "failed to switch item")
		return
	}

	h.log.Info("switched item", "itemId", params.ItemID)

	if err := conn.Reply(ctx, req.ID, h.engine.Session.Snapshot()); err != nil {
		h.log.Error("failed to send segment switch response", "error", err)
	}
}

func (h *rpcMethodHandler) handleSegmentComplete(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.ItemParams
	if err := unmarshalParams(req, &params); err != nil || params.ItemID == "" {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "item_id is required")
		return
	}

	if err := h.engine.Session.Complete(params.ItemID); err != nil {
		h.replyEngineError(ctx, conn, req.ID, err, "failed to complete item")
		return
	}

	h.log.Info("completed item", "itemId", params.ItemID)

	if err := conn.Reply(ctx, req.ID, struct{}{}); err != nil {
		h.log.Error("failed to send segment complete response", "error", err)
	}
}

func (h *rpcMethodHandler) handleSegmentsSubscribe(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	id, snap := h.engine.Segments.Subscribe(h.state.getNotifier())
	h.state.trackSubscription(id, h.engine.Segments)

	h.log.Debug("subscribed", "watcher", "segments", "watchId", id)

	result := rpc.SegmentsSubscribeResult{
		ID:           id,
		Seq:          snap.Seq,
		ActiveItemID: snap.ActiveItemID,
		Items:        snap.Items,
	}
	if err := conn.Reply(ctx, req.ID, result); err != nil {
		h.log.Error("failed to send segments subscribe response", "error", err)
	}
}
