// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"sync"
)

// =============================================================================
// STATUS
// =============================================================================

// Status is the observable connection state of a Transport.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

// =============================================================================
// OPTIONS
// =============================================================================

// Options configures one Connect call.
type Options struct {
	// Method is "GET" for a long-lived event-stream connection or "POST" for
	// a streamed request body. Defaults to "POST" when empty.
	Method string

	// Body is the JSON-serializable request payload (POST only).
	Body any

	// Headers are caller-supplied headers, passed through opaquely. Credential
	// headers arrive this way; the transport never inspects them.
	Headers map[string]string
}

// =============================================================================
// TRANSPORT
// =============================================================================

// Transport owns a single active streaming connection and turns its byte
// stream into ordered, typed event callbacks.
//
// Connect blocks on the calling goroutine until the stream terminates, so all
// handler callbacks run on that one goroutine in wire order. Disconnect may
// be called from any goroutine and promptly unblocks a pending read.
type Transport struct {
	mu     sync.Mutex
	status Status
	cancel context.CancelFunc
	gen    uint64 // bumped per Connect; stale connections may not set status

	client *http.Client
	debug  *DebugBuffer
}

// NewTransport creates a disconnected transport. Streaming reads have no
// client-level timeout; lifetime is controlled by the Connect context and
// Disconnect.
func NewTransport() *Transport {
	return &Transport{
		status: StatusDisconnected,
		client: &http.Client{},
		debug:  NewDebugBuffer(DefaultDebugCapacity),
	}
}

// Status returns the current connection status.
func (t *Transport) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Debug returns the transport's debug event buffer.
func (t *Transport) Debug() *DebugBuffer {
	return t.debug
}

// Disconnect cancels any pending read and releases the connection. Idempotent;
// safe to call from any goroutine, including when already disconnected. An
// explicit disconnect never invokes the error handler.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	cancel := t.cancel
	t.cancel = nil
	t.status = StatusDisconnected
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// =============================================================================
// CONNECT
// =============================================================================

// Connect opens a streaming connection to endpoint and dispatches framed
// events to h until a terminal event, a connection failure, or Disconnect.
//
// Setup failures (invalid request construction, payload marshaling) are
// returned without touching the handlers. Connection-level failures after
// setup - refused connection, non-2xx status, missing body, truncated stream -
// are surfaced as a synthetic error event with Retryable=true and a nil
// return. An explicit Disconnect returns nil without invoking any handler.
//
// Calling Connect while a stream is active tears the prior connection down
// first.
func (t *Transport) Connect(ctx context.Context, endpoint string, opts Options, h Handlers) error {
	t.Disconnect()

	ctx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.gen++
	gen := t.gen
	t.cancel = cancel
	t.status = StatusConnecting
	t.mu.Unlock()

	req, err := t.buildRequest(ctx, endpoint, opts)
	if err != nil {
		t.finish(gen, StatusDisconnected, cancel)
		return err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			t.finish(gen, StatusDisconnected, cancel)
			return nil
		}
		t.synthesizeError(h, "CONNECTION_FAILED", err.Error())
		t.finish(gen, StatusError, cancel)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := readErrorBody(resp.Body)
		if msg == "" {
			msg = "request failed: " + resp.Status
		}
		t.synthesizeError(h, "HTTP_"+strconv.Itoa(resp.StatusCode), msg)
		t.finish(gen, StatusError, cancel)
		return nil
	}
	if resp.Body == http.NoBody {
		t.synthesizeError(h, "EMPTY_BODY", "response carried no body")
		t.finish(gen, StatusError, cancel)
		return nil
	}

	t.setStatus(gen, StatusConnected)
	return t.readLoop(ctx, resp.Body, h, gen, cancel)
}

// readLoop pulls byte chunks from body and dispatches completed events.
func (t *Transport) readLoop(ctx context.Context, body io.Reader, h Handlers, gen uint64, cancel context.CancelFunc) error {
	p := &parser{}
	buf := make([]byte, 32*1024)

	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			for _, raw := range p.feed(buf[:n]) {
				if t.dispatch(raw, h) {
					// Terminal event: stop without touching buffered bytes.
					status := StatusDisconnected
					if raw.Type == EventError {
						status = StatusError
					}
					t.finish(gen, status, cancel)
					return nil
				}
			}
		}

		if readErr != nil {
			if ctx.Err() != nil {
				// Explicit cancellation: clean return, no error handler.
				t.finish(gen, StatusDisconnected, cancel)
				return nil
			}
			if errors.Is(readErr, io.EOF) {
				t.synthesizeError(h, "STREAM_TRUNCATED", "stream ended without a terminal event")
			} else {
				t.synthesizeError(h, "CONNECTION_LOST", readErr.Error())
			}
			t.finish(gen, StatusError, cancel)
			return nil
		}
	}
}

// dispatch decodes one framed event, records it, and invokes its handler.
// Returns true for terminal events. Malformed payloads are logged and dropped
// without terminating the stream; unrecognized event types are ignored.
func (t *Transport) dispatch(raw rawEvent, h Handlers) bool {
	payload, known, err := decodeEvent(raw.Type, raw.Data)
	if !known {
		return false
	}
	if err != nil {
		log.Printf("stream: dropping malformed %s event: %v", raw.Type, err)
		return false
	}

	t.debug.Record(string(raw.Type), raw.Data, payload)

	switch ev := payload.(type) {
	case TokenEvent:
		if h.Token != nil {
			h.Token(ev)
		}
	case ThinkingEvent:
		if h.Thinking != nil {
			h.Thinking(ev)
		}
	case ToolCallEvent:
		if h.ToolCall != nil {
			h.ToolCall(ev)
		}
	case ToolResultEvent:
		if h.ToolResult != nil {
			h.ToolResult(ev)
		}
	case CompleteEvent:
		if h.Complete != nil {
			h.Complete(ev)
		}
	case ErrorEvent:
		if h.Error != nil {
			h.Error(ev)
		}
	case PingEvent:
		if h.Ping != nil {
			h.Ping(ev)
		}
	}

	return raw.Type.IsTerminal()
}

// synthesizeError delivers a transport-level failure through the same error
// handler used for application error events, and records it for diagnostics.
func (t *Transport) synthesizeError(h Handlers, code, message string) {
	ev := ErrorEvent{Code: code, Message: message, Retryable: true}
	raw, _ := json.Marshal(ev)
	t.debug.Record(string(EventError), raw, ev)
	if h.Error != nil {
		h.Error(ev)
	}
}

// =============================================================================
// REQUEST CONSTRUCTION
// =============================================================================

// buildRequest assembles the streaming HTTP request for one Connect call.
func (t *Transport) buildRequest(ctx context.Context, endpoint string, opts Options) (*http.Request, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodPost
	}

	var body io.Reader
	if method == http.MethodPost && opts.Body != nil {
		encoded, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

// =============================================================================
// STATE HELPERS
// =============================================================================

// finish releases the connection handle and records the final status, unless
// a newer Connect or an explicit Disconnect has already taken over.
func (t *Transport) finish(gen uint64, status Status, cancel context.CancelFunc) {
	cancel()
	t.mu.Lock()
	if t.gen == gen && t.cancel != nil {
		t.cancel = nil
		t.status = status
	}
	t.mu.Unlock()
}

func (t *Transport) setStatus(gen uint64, s Status) {
	t.mu.Lock()
	if t.gen == gen && t.cancel != nil {
		t.status = s
	}
	t.mu.Unlock()
}

// readErrorBody extracts a short error message from a failed response.
func readErrorBody(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}

	// Backends report errors as {"error": "..."} when they can.
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	return string(bytes.TrimSpace(data))
}
