package clawless

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// clientResponder answers the four requests/notifications the agent may
// send us: requestPermission, sessionUpdate, readTextFile, writeTextFile.
// The ACP runtime implements this interface; the transport dispatches to
// it without itself knowing the runtime's semantics.
type clientResponder interface {
	RequestPermission(params RequestPermissionParams) RequestPermissionResult
	SessionUpdate(params SessionUpdateParams)
	ReadTextFile(params json.RawMessage) json.RawMessage
	WriteTextFile(params json.RawMessage) json.RawMessage
}

// transport implements JSON-RPC 2.0 over NDJSON framing around a child
// agent's stdio: one UTF-8 JSON object per line, requests correlated by a
// monotonic integer id, and notifications dispatched to the registered
// client responder. The transport is the only component that touches the
// raw byte streams; everything above it works with typed Go values.
type transport struct {
	cp  *childProcess
	log *slog.Logger

	writeMu sync.Mutex
	nextID  int64

	pendingMu sync.Mutex
	pending   map[int64]chan rpcResponse

	client clientResponder

	closed atomic.Bool
}

func newTransport(cp *childProcess, client clientResponder, log *slog.Logger) *transport {
	return &transport{
		cp:      cp,
		log:     log,
		pending: make(map[int64]chan rpcResponse),
		client:  client,
	}
}

// run reads lines from the child's stdout until EOF or the process exits.
// It must be started in its own goroutine; it returns when the stream
// closes, which callers treat as a transport/process-level failure.
func (t *transport) run() {
	scanner := bufio.NewScanner(t.cp.stdout)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		t.handleLine(line)
	}
	t.closed.Store(true)
	t.failAllPending(fmt.Errorf("clawless: transport closed"))
}

func (t *transport) handleLine(line []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(line, &frame); err != nil {
		t.log.Warn("malformed ACP frame, skipping", "error", err)
		return
	}

	switch {
	case frame.ID != nil && frame.Method == "":
		// A response to one of our requests.
		t.pendingMu.Lock()
		ch, ok := t.pending[*frame.ID]
		if ok {
			delete(t.pending, *frame.ID)
		}
		t.pendingMu.Unlock()
		if ok {
			ch <- rpcResponse{ID: *frame.ID, Result: frame.Result, Error: frame.Error}
		}

	case frame.ID != nil && frame.Method != "":
		// The agent is calling us.
		t.handleInboundRequest(*frame.ID, frame.Method, frame.Params)

	case frame.ID == nil && frame.Method != "":
		// A one-way notification.
		t.handleNotification(frame.Method, frame.Params)

	default:
		t.log.Warn("malformed ACP frame: neither response nor request nor notification, skipping")
	}
}

func (t *transport) handleNotification(method string, params json.RawMessage) {
	if method != methodSessionUpdate || t.client == nil {
		return
	}
	var p SessionUpdateParams
	if err := json.Unmarshal(params, &p); err != nil {
		t.log.Warn("malformed sessionUpdate params, skipping", "error", err)
		return
	}
	t.client.SessionUpdate(p)
}

func (t *transport) handleInboundRequest(id int64, method string, params json.RawMessage) {
	if t.client == nil {
		t.writeError(id, rpcMethodNotFound, "no client responder installed")
		return
	}

	switch method {
	case methodRequestPerm:
		var p RequestPermissionParams
		if err := json.Unmarshal(params, &p); err != nil {
			t.writeError(id, rpcInvalidParams, err.Error())
			return
		}
		result := t.client.RequestPermission(p)
		t.writeResult(id, result)

	case methodReadTextFile:
		t.writeResult(id, t.client.ReadTextFile(params))

	case methodWriteTextFile:
		t.writeResult(id, t.client.WriteTextFile(params))

	default:
		t.writeError(id, rpcMethodNotFound, "unknown method: "+method)
	}
}

func (t *transport) writeResult(id int64, result any) {
	b, err := json.Marshal(result)
	if err != nil {
		t.writeError(id, rpcInternalError, err.Error())
		return
	}
	t.writeFrame(rpcResponse{JSONRPC: "2.0", ID: id, Result: b})
}

func (t *transport) writeError(id int64, code int, message string) {
	t.writeFrame(rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message}})
}

func (t *transport) writeFrame(v any) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	b, err := json.Marshal(v)
	if err != nil {
		t.log.Error("failed to marshal ACP frame", "error", err)
		return
	}
	b = append(b, '\n')
	if _, err := t.cp.stdin.Write(b); err != nil {
		t.log.Warn("failed to write ACP frame, broken pipe", "error", err)
	}
}

// call sends a request and blocks until the response arrives, the context
// is cancelled, or the transport closes. result may be nil.
func (t *transport) call(ctx context.Context, method string, params any, result any) error {
	if t.closed.Load() {
		return fmt.Errorf("clawless: transport closed")
	}

	id := atomic.AddInt64(&t.nextID, 1)
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("clawless: marshal params for %s: %w", method, err)
	}

	ch := make(chan rpcResponse, 1)
	t.pendingMu.Lock()
	t.pending[id] = ch
	t.pendingMu.Unlock()

	t.writeFrame(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: paramsJSON})

	select {
	case <-ctx.Done():
		t.pendingMu.Lock()
		delete(t.pending, id)
		t.pendingMu.Unlock()
		return ctx.Err()
	case resp := <-ch:
		if resp.Error != nil {
			return fmt.Errorf("clawless: %s: %s", method, resp.Error.Message)
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("clawless: unmarshal result for %s: %w", method, err)
			}
		}
		return nil
	}
}

// notify sends a one-way request we do not wait on a response for (cancel).
func (t *transport) notify(method string, params any) {
	id := atomic.AddInt64(&t.nextID, 1)
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		t.log.Warn("failed to marshal notify params", "method", method, "error", err)
		return
	}
	t.writeFrame(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: paramsJSON})
}

func (t *transport) failAllPending(err error) {
	t.pendingMu.Lock()
	defer t.pendingMu.Unlock()
	for id, ch := range t.pending {
		ch <- rpcResponse{ID: id, Error: &rpcError{Code: rpcInternalError, Message: err.Error()}}
		delete(t.pending, id)
	}
}

