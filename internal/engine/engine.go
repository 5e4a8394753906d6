// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/tidechat/internal/model"
	"github.com/jeranaias/tidechat/internal/stream"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrGenerationActive is returned when a send is attempted while a
	// generation is already streaming. At most one generation runs per engine.
	ErrGenerationActive = errors.New("a generation is already in progress")

	// ErrRateLimited is returned when sends arrive faster than the configured
	// limit allows.
	ErrRateLimited = errors.New("too many requests, slow down")
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// Store persists conversations. The engine saves after every mutation; a nil
// store disables persistence.
type Store interface {
	Save(conv *model.Conversation) error
}

// UsageRecorder receives token accounting for completed generations.
type UsageRecorder interface {
	Record(conversationID, model string, promptTokens, completionTokens int) error
}

// Canceler asks the backend to stop an in-flight generation server-side.
type Canceler interface {
	CancelGeneration(ctx context.Context, conversationID string) error
}

// Observer receives streaming progress for display. Every field is optional.
// Callbacks run on the goroutine that called SendMessage, in event order.
type Observer struct {
	Token      func(delta, cumulative string)
	Thinking   func(delta string)
	ToolCall   func(id, name string)
	ToolResult func(id string, isError bool)
	Complete   func(msg *model.Message)
	Error      func(msg *model.Message)
}

// =============================================================================
// ENGINE
// =============================================================================

// Options configures a new Engine.
type Options struct {
	Endpoint     string            // streaming chat endpoint URL
	Headers      map[string]string // opaque pass-through headers (credentials etc.)
	Model        string
	SystemPrompt string
	EnableTools  bool

	Store    Store           // optional
	Usage    UsageRecorder   // optional
	Canceler Canceler        // optional
	Limiter  *rate.Limiter   // optional send rate limit
	Observer Observer
}

// Engine owns one conversation and the single streaming connection that feeds
// it. It translates user intent (send, cancel, retry, truncate) into transport
// operations and folds stream events into the conversation's message list.
//
// SendMessage blocks until the generation terminates; CancelGeneration may be
// called concurrently from another goroutine. All other methods are safe to
// call between generations.
type Engine struct {
	mu    sync.Mutex
	conv  *model.Conversation
	sess  *session
	epoch uint64 // bumped on every send and cancel; stale events no-op

	transport *stream.Transport
	opts      Options
}

// New creates an engine with a fresh conversation.
func New(opts Options) *Engine {
	return &Engine{
		conv:      model.NewConversation(opts.Model),
		transport: stream.NewTransport(),
		opts:      opts,
	}
}

// Conversation returns the engine's conversation. Callers must treat it as
// read-only; all mutation goes through the engine's operations.
func (e *Engine) Conversation() *model.Conversation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conv
}

// Streaming reports whether a generation is in progress.
func (e *Engine) Streaming() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess != nil
}

// Transport exposes the underlying stream transport for diagnostics.
func (e *Engine) Transport() *stream.Transport {
	return e.transport
}

// SetModel changes the model used for subsequent sends.
func (e *Engine) SetModel(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.opts.Model = name
	e.conv.Model = name
}

// SetSystemPrompt changes the system prompt used for subsequent sends.
func (e *Engine) SetSystemPrompt(prompt string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.opts.SystemPrompt = prompt
	e.conv.SystemPrompt = prompt
}

// Reset abandons the current conversation and starts a fresh one. No-op while
// a generation is streaming.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess != nil {
		return
	}
	e.conv = model.NewConversation(e.opts.Model)
	e.conv.SystemPrompt = e.opts.SystemPrompt
}

// SetConversation replaces the engine's conversation, e.g. when resuming a
// saved session. No-op while a generation is streaming.
func (e *Engine) SetConversation(conv *model.Conversation) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess != nil || conv == nil {
		return
	}
	e.conv = conv
	if conv.Model != "" {
		e.opts.Model = conv.Model
	}
	if conv.SystemPrompt != "" {
		e.opts.SystemPrompt = conv.SystemPrompt
	}
}

// =============================================================================
// SEND
// =============================================================================

// chatRequest is the outbound payload for the streaming endpoint.
type chatRequest struct {
	UserMessage  string       `json:"user_message"`
	Messages     []model.Turn `json:"messages"`
	SystemPrompt *string      `json:"system_prompt"`
	Model        *string      `json:"model"`
	EnableTools  bool         `json:"enable_tools"`
}

// SendMessage appends a user message and streams the assistant's reply into
// the conversation, blocking until the generation terminates. The user message
// is appended optimistically before the connection is attempted; every failure
// mode after that point surfaces as exactly one error-status assistant message.
//
// Returns ErrGenerationActive without touching the conversation if a
// generation is already streaming.
func (e *Engine) SendMessage(ctx context.Context, content string, modelOverride string) error {
	e.mu.Lock()
	if e.sess != nil {
		e.mu.Unlock()
		return ErrGenerationActive
	}
	if e.opts.Limiter != nil && !e.opts.Limiter.Allow() {
		e.mu.Unlock()
		return ErrRateLimited
	}

	modelName := e.opts.Model
	if modelOverride != "" {
		modelName = modelOverride
	}

	// Replay history excludes the message being sent; it travels separately.
	history := e.conv.History()

	userMsg := model.NewUserMessage(content)
	e.conv.Append(userMsg)

	e.epoch++
	epoch := e.epoch
	e.sess = newSession(userMsg.ID, modelName)

	payload := chatRequest{
		UserMessage: content,
		Messages:    history,
		EnableTools: e.opts.EnableTools,
	}
	if e.opts.SystemPrompt != "" {
		payload.SystemPrompt = &e.opts.SystemPrompt
	}
	if modelName != "" {
		payload.Model = &modelName
	}

	endpoint := e.opts.Endpoint
	headers := e.opts.Headers
	e.mu.Unlock()

	e.save()

	err := e.transport.Connect(ctx, endpoint, stream.Options{
		Body:    payload,
		Headers: headers,
	}, e.handlers(epoch))
	if err != nil {
		// Setup failure: fold into the same error-message path as a
		// mid-stream error so callers see one uniform failure surface.
		e.failGeneration(epoch, err.Error())
		return nil
	}

	// A terminal event or a failure clears the session through the
	// handlers before Connect returns. If it is still live here, the
	// caller's context was cancelled externally; fold that as a
	// cancellation so the engine returns to idle.
	e.mu.Lock()
	if e.epoch == epoch && e.sess != nil {
		e.sess = nil
		e.epoch++
	}
	e.mu.Unlock()
	return nil
}

// handlers builds the transport callback table for one generation. Every
// callback re-checks the generation epoch so events landing after a cancel
// or a newer send are dropped.
//
// Observer callbacks are always invoked after e.mu is released, so an
// observer may call back into any engine method. Handlers run serially on
// the SendMessage goroutine, which keeps observers in wire order.
func (e *Engine) handlers(epoch uint64) stream.Handlers {
	return stream.Handlers{
		Token: func(ev stream.TokenEvent) {
			var cumulative string
			if !e.withSession(epoch, func(s *session) {
				s.response.WriteString(ev.Token)
				cumulative = s.response.String()
			}) {
				return
			}
			if e.opts.Observer.Token != nil {
				e.opts.Observer.Token(ev.Token, cumulative)
			}
		},
		Thinking: func(ev stream.ThinkingEvent) {
			if !e.withSession(epoch, func(s *session) {
				s.thinking.WriteString(ev.Content)
			}) {
				return
			}
			if e.opts.Observer.Thinking != nil {
				e.opts.Observer.Thinking(ev.Content)
			}
		},
		ToolCall: func(ev stream.ToolCallEvent) {
			if !e.withSession(epoch, func(s *session) {
				s.upsertToolCall(ev.ID, ev.ToolName, ev.Arguments, ev.Status)
			}) {
				return
			}
			if e.opts.Observer.ToolCall != nil {
				e.opts.Observer.ToolCall(ev.ID, ev.ToolName)
			}
		},
		ToolResult: func(ev stream.ToolResultEvent) {
			matched := false
			if !e.withSession(epoch, func(s *session) {
				// Results for unknown calls are dropped; backend ordering
				// anomalies must not crash the stream.
				matched = s.resolveToolCall(ev.ToolCallID, ev.Result, ev.IsError, ev.LatencyMs)
			}) {
				return
			}
			if !matched {
				log.Printf("engine: dropping tool_result for unknown call %s", ev.ToolCallID)
				return
			}
			if e.opts.Observer.ToolResult != nil {
				e.opts.Observer.ToolResult(ev.ToolCallID, ev.IsError)
			}
		},
		Complete: func(ev stream.CompleteEvent) {
			e.completeGeneration(epoch, ev)
		},
		Error: func(ev stream.ErrorEvent) {
			e.failGeneration(epoch, ev.Message)
		},
	}
}

// withSession runs fn with the live session if the generation identified by
// epoch is still current, reporting whether it ran.
func (e *Engine) withSession(epoch uint64, fn func(*session)) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.epoch != epoch || e.sess == nil {
		return false
	}
	fn(e.sess)
	return true
}

// completeGeneration folds a successful terminal event into the conversation:
// one tool_call/tool_result pair per pending tool in first-seen order, then
// the assistant message. Tool execution causally precedes the answer that
// used its results, so the pairs go first even though complete arrives after
// the token stream.
func (e *Engine) completeGeneration(epoch uint64, ev stream.CompleteEvent) {
	e.mu.Lock()
	if e.epoch != epoch || e.sess == nil {
		e.mu.Unlock()
		return
	}
	s := e.sess
	e.sess = nil

	for _, t := range s.orderedTools() {
		e.conv.Append(model.NewToolCallMessage(t.ID, t.Name, t.Arguments))
		if t.Resolved {
			e.conv.Append(model.NewToolResultMessage(t.ID, t.Result, t.IsError, t.LatencyMs))
		}
	}

	content := ev.Response
	if content == "" {
		content = s.response.String()
	}
	var usage *model.Usage
	if ev.Usage != nil {
		usage = &model.Usage{
			PromptTokens:     ev.Usage.PromptTokens,
			CompletionTokens: ev.Usage.CompletionTokens,
		}
	}
	msg := model.NewAssistantMessage(content, s.thinking.String(), usage, s.model)
	e.conv.Append(msg)
	if usage != nil {
		e.conv.AddUsage(usage)
	}

	convID := e.conv.ID
	e.mu.Unlock()

	e.save()
	if usage != nil && e.opts.Usage != nil {
		if err := e.opts.Usage.Record(convID, s.model, usage.PromptTokens, usage.CompletionTokens); err != nil {
			log.Printf("engine: failed to record usage: %v", err)
		}
	}
	if e.opts.Observer.Complete != nil {
		e.opts.Observer.Complete(msg)
	}
}

// failGeneration folds a terminal error into the conversation: exactly one
// error-status assistant message, no partial tool-call materialization.
func (e *Engine) failGeneration(epoch uint64, message string) {
	e.mu.Lock()
	if e.epoch != epoch || e.sess == nil {
		e.mu.Unlock()
		return
	}
	e.sess = nil

	msg := model.NewErrorMessage(message)
	e.conv.Append(msg)
	e.mu.Unlock()

	e.save()
	if e.opts.Observer.Error != nil {
		e.opts.Observer.Error(msg)
	}
}

// =============================================================================
// CANCEL / RETRY / TRUNCATE
// =============================================================================

// CancelGeneration aborts the in-flight generation. The session accumulators
// are discarded synchronously; no partial assistant message is recorded and
// the triggering user message stays in place. No-op when nothing is streaming.
func (e *Engine) CancelGeneration() {
	e.mu.Lock()
	if e.sess == nil {
		e.mu.Unlock()
		return
	}
	e.sess = nil
	e.epoch++ // events still in flight must land as no-ops
	convID := e.conv.ID
	e.mu.Unlock()

	e.transport.Disconnect()

	if e.opts.Canceler != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.opts.Canceler.CancelGeneration(ctx, convID); err != nil {
			log.Printf("engine: backend cancel failed: %v", err)
		}
	}
}

// RetryFromMessage truncates the conversation back to the nearest user
// message at or before index and resends that message. Silently does nothing
// if no user message exists at or before index, or while a generation is
// streaming.
func (e *Engine) RetryFromMessage(ctx context.Context, index int) error {
	e.mu.Lock()
	if e.sess != nil {
		e.mu.Unlock()
		return nil
	}
	userIdx := e.conv.LastUserIndexAtOrBefore(index)
	if userIdx < 0 {
		e.mu.Unlock()
		return nil
	}
	content := e.conv.Messages[userIdx].Content
	e.conv.TruncateFrom(userIdx)
	e.mu.Unlock()

	e.save()
	return e.SendMessage(ctx, content, "")
}

// DeleteMessagesFrom truncates the message list to length index. Token totals
// are left alone: usage reflects spend already incurred and is not reversed.
func (e *Engine) DeleteMessagesFrom(index int) {
	e.mu.Lock()
	e.conv.TruncateFrom(index)
	e.mu.Unlock()
	e.save()
}

// save persists the conversation if a store is configured.
func (e *Engine) save() {
	if e.opts.Store == nil {
		return
	}
	e.mu.Lock()
	conv := e.conv
	e.mu.Unlock()
	if err := e.opts.Store.Save(conv); err != nil {
		log.Printf("engine: failed to save conversation: %v", err)
	}
}
