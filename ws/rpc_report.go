package ws

import (
	"context"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/meetline/server/rpc"
	"github.com/meetline/server/segment"
)

func (h *rpcMethodHandler) handleReportDwell(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	report, err := h.engine.Report()
	if err != nil {
		h.replyEngineError(ctx, conn, req.ID, err, "failed to build report")
		return
	}
	if err := conn.Reply(ctx, req.ID, report); err != nil {
		h.log.Error("failed to send dwell report response", "error", err)
	}
}

func (h *rpcMethodHandler) handleTranscriptAttribute(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.AttributeParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}

	tree, err := h.engine.Mirror.Tree()
	if err != nil {
		h.replyEngineError(ctx, conn, req.ID, err, "failed to build agenda")
		return
	}

	var result rpc.AttributeResult = segment.Attribute(tree, params.Fragments)
	if err := conn.Reply(ctx, req.ID, result); err != nil {
		h.log.Error("failed to send attribution response", "error", err)
	}
}

func (h *rpcMethodHandler) handlePersistPending(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	result := rpc.PendingResult{Entries: h.engine.Gateway.Pending()}
	if err := conn.Reply(ctx, req.ID, result); err != nil {
		h.log.Error("failed to send pending response", "error", err)
	}
}
