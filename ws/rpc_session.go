package ws

import (
	"context"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/meetline/server/rpc"
)

func (h *rpcMethodHandler) handleSessionGet(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	if err := conn.Reply(ctx, req.ID, h.engine.Session.Snapshot()); err != nil {
		h.log.Error("failed to send session response", "error", err)
	}
}

// handleSessionTransition runs one lifecycle step and replies with the
// resulting snapshot.
func (h *rpcMethodHandler) handleSessionTransition(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request, step func() error) {
	if err := step(); err != nil {
		h.replyEngineError(ctx, conn, req.ID, err, "failed to change session state")
		return
	}

	var result rpc.SessionResult = h.engine.Session.Snapshot()
	if err := conn.Reply(ctx, req.ID, result); err != nil {
		h.log.Error("failed to send "+req.Method+" response", "error", err)
	}
}

func (h *rpcMethodHandler) handleSessionSubscribe(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	id, snap := h.engine.Sessions.Subscribe(h.state.getNotifier())
	h.state.trackSubscription(id, h.engine.Sessions)

	h.log.Debug("subscribed", "watcher", "session", "watchId", id)

	if err := conn.Reply(ctx, req.ID, rpc.SessionSubscribeResult{ID: id, Snapshot: snap}); err != nil {
		h.log.Error("failed to send session subscribe response", "error", err)
	}
}
