package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/sourcegraph/jsonrpc2"

	"github.com/meetline/server/agenda"
	"github.com/meetline/server/app"
	"github.com/meetline/server/clock"
	"github.com/meetline/server/recording"
	"github.com/meetline/server/rpc"
	"github.com/meetline/server/segment"
	"github.com/meetline/server/store"
)

const testToken = "test-token"

type rpcMessage struct {
	ID     *uint64         `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Result json.RawMessage `json:"result"`
	Error  *jsonrpc2.Error `json:"error"`
}

type testEnv struct {
	t       *testing.T
	engine  *app.Engine
	clock   *clock.Manual
	server  *httptest.Server
	conn    *websocket.Conn
	ctx     context.Context
	nextID  uint64
	notifs  []rpcMessage
	baseURL string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	s, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	err = s.Replace(context.Background(), []agenda.Item{
		{ID: "R1", Title: "Opening"},
		{ID: "C1", ParentID: "R1", Title: "Budget"},
		{ID: "R2", Order: 1, Title: "Roadmap"},
	})
	if err != nil {
		t.Fatalf("failed to seed store: %v", err)
	}

	clk := &clock.Manual{}
	engine, err := app.New(context.Background(), app.Options{Store: s, Clock: clk})
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	if err := engine.Start(); err != nil {
		t.Fatalf("failed to start engine: %v", err)
	}

	rpcHandler := NewRPCHandler(testToken, "test", "Weekly sync", true, engine)
	server := httptest.NewServer(NewHandler(rpcHandler, testToken, engine))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		cancel()
		server.Close()
		t.Fatalf("failed to connect: %v", err)
	}

	t.Cleanup(func() {
		conn.Close(websocket.StatusNormalClosure, "")
		cancel()
		server.Close()
		engine.Stop()
	})

	return &testEnv{
		t:       t,
		engine:  engine,
		clock:   clk,
		server:  server,
		conn:    conn,
		ctx:     ctx,
		baseURL: server.URL,
	}
}

// newAuthedEnv is newTestEnv after a successful auth call.
func newAuthedEnv(t *testing.T) *testEnv {
	env := newTestEnv(t)
	if resp := env.call("auth", rpc.AuthParams{Token: testToken}); resp.Error != nil {
		t.Fatalf("auth failed: %s", resp.Error.Message)
	}
	return env
}

func (e *testEnv) read() rpcMessage {
	e.t.Helper()
	_, data, err := e.conn.Read(e.ctx)
	if err != nil {
		e.t.Fatalf("failed to read: %v", err)
	}
	var msg rpcMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		e.t.Fatalf("failed to unmarshal: %v", err)
	}
	return msg
}

// call sends a request and returns its response. Notifications that arrive
// first are kept for notification().
func (e *testEnv) call(method string, params any) rpcMessage {
	e.t.Helper()
	e.nextID++
	id := e.nextID

	req := map[string]any{"jsonrpc": "2.0", "id": id, "method": method}
	if params != nil {
		req["params"] = params
	}
	data, _ := json.Marshal(req)
	if err := e.conn.Write(e.ctx, websocket.MessageText, data); err != nil {
		e.t.Fatalf("failed to send: %v", err)
	}

	for {
		msg := e.read()
		if msg.ID == nil {
			e.notifs = append(e.notifs, msg)
			continue
		}
		if *msg.ID != id {
			e.t.Fatalf("response id %d, want %d", *msg.ID, id)
		}
		return msg
	}
}

// notification returns the next notification with the given method.
func (e *testEnv) notification(method string) rpcMessage {
	e.t.Helper()
	for {
		for i, n := range e.notifs {
			if n.Method == method {
				e.notifs = append(e.notifs[:i], e.notifs[i+1:]...)
				return n
			}
		}
		msg := e.read()
		if msg.ID == nil {
			e.notifs = append(e.notifs, msg)
		}
	}
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("failed to unmarshal %s: %v", raw, err)
	}
	return v
}

func expectOK(t *testing.T, resp rpcMessage) {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("unexpected error: %d %s", resp.Error.Code, resp.Error.Message)
	}
}

func expectCode(t *testing.T, resp rpcMessage, code int64) {
	t.Helper()
	if resp.Error == nil {
		t.Fatalf("expected error code %d, got result %s", code, resp.Result)
	}
	if resp.Error.Code != code {
		t.Errorf("error code = %d (%s), want %d", resp.Error.Code, resp.Error.Message, code)
	}
}

// --- auth ---

func TestRPC_FirstRequestMustBeAuth(t *testing.T) {
	env := newTestEnv(t)
	expectCode(t, env.call("agenda.tree", nil), jsonrpc2.CodeInvalidRequest)
}

func TestRPC_InvalidToken(t *testing.T) {
	env := newTestEnv(t)
	expectCode(t, env.call("auth", rpc.AuthParams{Token: "wrong"}), jsonrpc2.CodeInvalidRequest)
}

func TestRPC_Auth(t *testing.T) {
	env := newTestEnv(t)
	resp := env.call("auth", rpc.AuthParams{Token: testToken})
	expectOK(t, resp)

	result := decode[rpc.AuthResult](t, resp.Result)
	if result.Title != "Weekly sync" || result.Version != "test" {
		t.Errorf("auth result = %+v", result)
	}
}

func TestRPC_MethodNotFound(t *testing.T) {
	env := newAuthedEnv(t)
	expectCode(t, env.call("nope", nil), jsonrpc2.CodeMethodNotFound)
}

// --- agenda and segments ---

func TestRPC_AgendaTree(t *testing.T) {
	env := newAuthedEnv(t)

	resp := env.call("agenda.tree", nil)
	expectOK(t, resp)

	result := decode[rpc.AgendaTreeResult](t, resp.Result)
	if len(result.Roots) != 2 || result.Roots[0].ID != "R1" || result.Roots[1].Number != "2" {
		t.Fatalf("roots = %+v", result.Roots)
	}
	if len(result.Roots[0].Children) != 1 || result.Roots[0].Children[0].Number != "1.1" {
		t.Errorf("children = %+v", result.Roots[0].Children)
	}
	if result.DisplayIndex != -1 {
		t.Errorf("display index = %d, want -1", result.DisplayIndex)
	}
}

func TestRPC_SwitchRequiresRecording(t *testing.T) {
	env := newAuthedEnv(t)
	expectCode(t, env.call("segment.switch", rpc.ItemParams{ItemID: "R2"}), jsonrpc2.CodeInvalidRequest)
}

func TestRPC_SwitchValidatesParams(t *testing.T) {
	env := newAuthedEnv(t)
	expectOK(t, env.call("session.start", nil))

	expectCode(t, env.call("segment.switch", rpc.ItemParams{}), jsonrpc2.CodeInvalidParams)
	expectCode(t, env.call("segment.switch", rpc.ItemParams{ItemID: "missing"}), jsonrpc2.CodeInvalidParams)
}

func TestRPC_MeetingScenario(t *testing.T) {
	env := newAuthedEnv(t)

	expectOK(t, env.call("session.start", nil))
	env.clock.Set(15)
	expectOK(t, env.call("segment.switch", rpc.ItemParams{ItemID: "C1"}))
	env.clock.Set(40)
	expectOK(t, env.call("segment.switch", rpc.ItemParams{ItemID: "R2"}))
	env.clock.Set(70)
	resp := env.call("segment.switch", rpc.ItemParams{ItemID: "R1"})
	expectOK(t, resp)

	snap := decode[recording.Snapshot](t, resp.Result)
	if snap.ActiveItemID != "R1" || snap.DisplayIndex != 0 || snap.Elapsed != 70 {
		t.Errorf("snapshot = %+v", snap)
	}

	env.clock.Set(90)
	resp = env.call("session.stop", nil)
	expectOK(t, resp)
	if got := decode[recording.Snapshot](t, resp.Result); got.State != recording.StateStopped {
		t.Errorf("state = %s", got.State)
	}

	resp = env.call("report.dwell", nil)
	expectOK(t, resp)
	report := decode[segment.Report](t, resp.Result)
	if report.TotalSeconds != 90 {
		t.Errorf("total = %d, want 90", report.TotalSeconds)
	}
	if report.Entries[0].ItemID != "R1" || report.Entries[0].Seconds != 35 || report.Entries[0].RollupSeconds != 60 {
		t.Errorf("R1 entry = %+v", report.Entries[0])
	}

	env.engine.Gateway.Wait()
	resp = env.call("persist.pending", nil)
	expectOK(t, resp)
	if pending := decode[rpc.PendingResult](t, resp.Result); len(pending.Entries) != 0 {
		t.Errorf("pending = %+v", pending.Entries)
	}
}

func TestRPC_SessionTransitionsRejected(t *testing.T) {
	env := newAuthedEnv(t)
	expectCode(t, env.call("session.pause", nil), jsonrpc2.CodeInvalidRequest)
	expectCode(t, env.call("session.resume", nil), jsonrpc2.CodeInvalidRequest)

	resp := env.call("session.get", nil)
	expectOK(t, resp)
	if got := decode[recording.Snapshot](t, resp.Result); got.State != recording.StateIdle {
		t.Errorf("state = %s", got.State)
	}
}

func TestRPC_Complete(t *testing.T) {
	env := newAuthedEnv(t)
	expectOK(t, env.call("segment.complete", rpc.ItemParams{ItemID: "C1"}))
	expectCode(t, env.call("segment.complete", rpc.ItemParams{ItemID: "missing"}), jsonrpc2.CodeInvalidParams)

	it, _ := env.engine.Mirror.Get("C1")
	if it.Status != agenda.StatusCompleted {
		t.Errorf("status = %s", it.Status)
	}
}

func TestRPC_TranscriptAttribute(t *testing.T) {
	env := newAuthedEnv(t)
	expectOK(t, env.call("session.start", nil))
	env.clock.Set(10)
	expectOK(t, env.call("segment.switch", rpc.ItemParams{ItemID: "R2"}))

	resp := env.call("transcript.attribute", rpc.AttributeParams{Fragments: []segment.Fragment{
		{Start: 2, End: 4, Text: "hello"},
		{Start: 12, End: 14, Text: "roadmap"},
	}})
	expectOK(t, resp)

	result := decode[rpc.AttributeResult](t, resp.Result)
	if len(result.ByItem["R1"]) != 1 || len(result.ByItem["R2"]) != 1 {
		t.Errorf("attribution = %+v", result)
	}
}

// --- subscriptions ---

func TestRPC_SegmentsSubscribe(t *testing.T) {
	env := newAuthedEnv(t)

	resp := env.call("segments.subscribe", nil)
	expectOK(t, resp)
	sub := decode[rpc.SegmentsSubscribeResult](t, resp.Result)
	if sub.ID == "" || len(sub.Items) != 3 {
		t.Fatalf("subscribe result = %+v", sub)
	}

	expectOK(t, env.call("session.start", nil))

	n := env.notification("segments.changed")
	params := decode[rpc.SegmentsSubscribeResult](t, n.Params)
	if params.ID != sub.ID || params.ActiveItemID != "R1" || len(params.Items) != 1 {
		t.Errorf("notification = %+v", params)
	}

	expectOK(t, env.call("segments.unsubscribe", rpc.UnsubscribeParams{ID: sub.ID}))
	if env.engine.Segments.HasSubscriptions() {
		t.Error("subscription survived unsubscribe")
	}
}

func TestRPC_SessionSubscribe(t *testing.T) {
	env := newAuthedEnv(t)

	resp := env.call("session.subscribe", nil)
	expectOK(t, resp)
	sub := decode[rpc.SessionSubscribeResult](t, resp.Result)
	if sub.ID == "" || sub.State != recording.StateIdle {
		t.Fatalf("subscribe result = %+v", sub)
	}

	expectOK(t, env.call("session.start", nil))

	n := env.notification("session.changed")
	params := decode[rpc.SessionSubscribeResult](t, n.Params)
	if params.State != recording.StateRecording {
		t.Errorf("notification = %+v", params)
	}
}

func TestRPC_UnsubscribeRequiresID(t *testing.T) {
	env := newAuthedEnv(t)
	expectCode(t, env.call("session.unsubscribe", rpc.UnsubscribeParams{}), jsonrpc2.CodeInvalidParams)
}

func TestRPC_DisconnectDropsSubscriptions(t *testing.T) {
	env := newAuthedEnv(t)
	expectOK(t, env.call("segments.subscribe", nil))

	env.conn.Close(websocket.StatusNormalClosure, "")

	deadline := time.Now().Add(2 * time.Second)
	for env.engine.Segments.HasSubscriptions() {
		if time.Now().After(deadline) {
			t.Fatal("subscription not cleaned up after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// --- HTTP ---

func TestHTTP_ReportRequiresToken(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.baseURL + "/api/report")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, env.baseURL+"/api/report", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var report segment.Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatal(err)
	}
	if len(report.Entries) != 3 {
		t.Errorf("entries = %+v", report.Entries)
	}
}

func TestHTTP_Health(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.baseURL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}
