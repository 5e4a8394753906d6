// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/peterh/liner"

	"github.com/jeranaias/tidechat/internal/config"
	"github.com/jeranaias/tidechat/internal/engine"
	"github.com/jeranaias/tidechat/internal/export"
	"github.com/jeranaias/tidechat/internal/model"
	"github.com/jeranaias/tidechat/internal/storage"
)

// =============================================================================
// LINE INPUT
// =============================================================================

// ChatCLI wraps liner with persistent history.
type ChatCLI struct {
	line        *liner.State
	historyPath string
}

// NewChatCLI creates a line editor with history loaded from the config dir.
func NewChatCLI() (*ChatCLI, error) {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	c := &ChatCLI{line: line}
	if dir, err := config.ConfigDir(); err == nil {
		c.historyPath = filepath.Join(dir, "chat_history")
		if f, err := os.Open(c.historyPath); err == nil {
			line.ReadHistory(f)
			f.Close()
		}
	}
	return c, nil
}

// ReadLine prompts for one line of input.
func (c *ChatCLI) ReadLine(prompt string) (string, error) {
	text, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) != "" {
		c.line.AppendHistory(text)
	}
	return text, nil
}

// Close saves history and restores the terminal.
func (c *ChatCLI) Close() {
	if c.historyPath != "" {
		if f, err := os.OpenFile(c.historyPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600); err == nil {
			c.line.WriteHistory(f)
			f.Close()
		}
	}
	c.line.Close()
}

// =============================================================================
// CHAT SESSION
// =============================================================================

// ChatSession drives the interactive REPL: reads input, dispatches slash
// commands, and streams generations to the terminal.
//
// cfg is guarded by mu: the config watcher swaps it from its own goroutine
// while the REPL and the streaming observer read it.
type ChatSession struct {
	app   *app
	eng   *engine.Engine
	input *ChatCLI
	quiet bool

	mu  sync.Mutex
	cfg *config.Config
}

func (s *ChatSession) config() *config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// runChat starts the interactive chat loop.
func runChat(a *app, args *Args) error {
	input, err := NewChatCLI()
	if err != nil {
		return err
	}
	defer input.Close()

	sess := &ChatSession{app: a, input: input, quiet: args.Quiet, cfg: a.cfg}
	sess.eng = a.newEngine(sess.observer())

	// Edits to config.toml take effect mid-session.
	if path, err := config.ConfigPath(); err == nil {
		if w, err := config.NewWatcher(path, sess.applyConfig); err == nil {
			if err := w.Watch(); err == nil {
				defer w.Close()
			}
		}
	}

	if !sess.quiet {
		sess.printBanner()
	}

	for {
		// liner counts prompt bytes as columns, so no ANSI styling here.
		line, err := input.ReadLine("you> ")
		if err == liner.ErrPromptAborted {
			fmt.Println(styleDim.Render("(ctrl+c again on an empty prompt does nothing; use /quit to exit)"))
			continue
		}
		if err == io.EOF {
			fmt.Println()
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := sess.handleCommand(line); quit {
				return nil
			}
			continue
		}

		sess.send(line)
	}
}

// applyConfig folds a reloaded config into the running session. Runs on
// the watcher goroutine.
func (s *ChatSession) applyConfig(cfg *config.Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	s.eng.SetModel(cfg.Chat.DefaultModel)
	s.eng.SetSystemPrompt(cfg.Chat.SystemPrompt)
	log.Printf("config reloaded: model=%s", cfg.Chat.DefaultModel)
}

func (s *ChatSession) printBanner() {
	fmt.Println(styleHeader.Render("tidechat ") + styleDim.Render(Version))
	cfg := s.config()
	fmt.Printf("%s %s  %s %s\n",
		styleDim.Render("backend:"), cfg.Backend.URL,
		styleDim.Render("model:"), styleModel.Render(cfg.Chat.DefaultModel))
	fmt.Println(styleDim.Render("Type /help for commands, /quit to exit."))
	fmt.Println()
}

// send runs one generation. Ctrl+C during streaming cancels it without
// leaving the session.
func (s *ChatSession) send(text string) {
	sigCh := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		select {
		case <-sigCh:
			fmt.Println()
			fmt.Println(styleDim.Render("(cancelling...)"))
			s.eng.CancelGeneration()
		case <-done:
		}
	}()

	err := s.eng.SendMessage(context.Background(), text, "")

	close(done)
	signal.Stop(sigCh)

	if err != nil {
		fmt.Println(styleError.Render("Error: ") + err.Error())
	}
}

// =============================================================================
// STREAMING DISPLAY
// =============================================================================

func (s *ChatSession) observer() (obs engine.Observer) {
	thinkingShown := false

	obs.Thinking = func(delta string) {
		if !s.config().UI.ShowThinking {
			return
		}
		if !thinkingShown {
			fmt.Println(styleDim.Render("[thinking]"))
			thinkingShown = true
		}
		fmt.Print(styleDim.Render(delta))
	}
	obs.Token = func(delta, cumulative string) {
		if thinkingShown {
			fmt.Println()
			thinkingShown = false
		}
		fmt.Print(delta)
	}
	obs.ToolCall = func(id, name string) {
		fmt.Println(styleTool.Render("[tool] ") + name)
	}
	obs.ToolResult = func(id string, isError bool) {
		if isError {
			fmt.Println(styleTool.Render("[tool] ") + styleError.Render("failed"))
		}
	}
	obs.Complete = func(msg *model.Message) {
		fmt.Println()
		if !s.quiet && msg.Usage != nil {
			fmt.Println(styleDim.Render(fmt.Sprintf("(%d prompt + %d completion tokens)",
				msg.Usage.PromptTokens, msg.Usage.CompletionTokens)))
		}
		fmt.Println()
		thinkingShown = false
	}
	obs.Error = func(msg *model.Message) {
		fmt.Println()
		fmt.Println(styleError.Render("Error: ") + msg.Content)
		fmt.Println()
		thinkingShown = false
	}
	return obs
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleCommand runs a slash command and reports whether to exit the REPL.
func (s *ChatSession) handleCommand(line string) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/quit", "/exit":
		return true
	case "/help":
		s.cmdHelp()
	case "/clear":
		s.eng.Reset()
		fmt.Println(styleDim.Render("Conversation cleared."))
	case "/model":
		s.cmdModel(arg)
	case "/system":
		s.cmdSystem(arg)
	case "/status":
		s.cmdStatus()
	case "/history":
		s.cmdHistory()
	case "/sessions":
		s.cmdSessions(arg)
	case "/load":
		s.cmdLoad(arg)
	case "/retry":
		s.cmdRetry(arg)
	case "/delete":
		s.cmdDelete(arg)
	case "/export":
		s.cmdExport(arg)
	case "/debug":
		s.cmdDebug()
	default:
		fmt.Println(styleError.Render("Unknown command: ") + cmd)
	}
	return false
}

func (s *ChatSession) cmdHelp() {
	fmt.Print(`Commands:
  /help             Show this help
  /clear            Start a fresh conversation
  /model [name]     Show or change the model
  /system [prompt]  Show or change the system prompt
  /status           Backend health and conversation stats
  /history          Show the current conversation
  /sessions [q]     List or search saved conversations
  /load <n>         Load the n-th most recent conversation (0 = latest)
  /retry [n]        Regenerate from message n (default: last)
  /delete <n>       Delete messages from index n onward
  /export [json]    Export this conversation to a file
  /debug            Dump recent stream events
  /quit             Exit
`)
}

func (s *ChatSession) cmdModel(arg string) {
	if arg == "" {
		fmt.Println(styleDim.Render("model: ") + styleModel.Render(s.config().Chat.DefaultModel))
		return
	}
	s.mu.Lock()
	s.cfg.Chat.DefaultModel = arg
	s.mu.Unlock()
	s.eng.SetModel(arg)
	fmt.Println(styleDim.Render("model set to ") + styleModel.Render(arg))
}

func (s *ChatSession) cmdSystem(arg string) {
	if arg == "" {
		prompt := s.config().Chat.SystemPrompt
		if prompt == "" {
			prompt = "(none)"
		}
		fmt.Println(styleDim.Render("system prompt: ") + prompt)
		return
	}
	s.mu.Lock()
	s.cfg.Chat.SystemPrompt = arg
	s.mu.Unlock()
	s.eng.SetSystemPrompt(arg)
	fmt.Println(styleDim.Render("system prompt updated"))
}

func (s *ChatSession) cmdStatus() {
	ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
	defer cancel()

	health, err := s.app.client.Health(ctx)
	if err != nil {
		fmt.Println(styleError.Render("backend: ") + err.Error())
	} else {
		fmt.Printf("%s %s (version %s)\n", styleDim.Render("backend:"), health.Status, health.Version)
	}

	conv := s.eng.Conversation()
	fmt.Printf("%s %d messages, %d tokens\n",
		styleDim.Render("conversation:"), len(conv.Messages), conv.TotalTokens)
}

func (s *ChatSession) cmdHistory() {
	conv := s.eng.Conversation()
	if conv.IsEmpty() {
		fmt.Println(styleDim.Render("No messages yet."))
		return
	}
	for i, msg := range conv.Messages {
		label := fmt.Sprintf("[%d] %s", i, msg.Role.DisplayName())
		switch msg.Role {
		case model.RoleUser:
			fmt.Println(stylePrompt.Render(label))
		case model.RoleToolCall, model.RoleToolResult:
			fmt.Println(styleTool.Render(label))
		default:
			fmt.Println(styleModel.Render(label))
		}
		fmt.Println(msg.Preview(200))
	}
}

func (s *ChatSession) cmdSessions(query string) {
	var (
		sessions []model.ConversationMeta
		err      error
	)
	if query == "" {
		sessions, err = s.app.store.List()
	} else {
		sessions, err = s.app.store.SearchMessages(query)
	}
	if err != nil {
		fmt.Println(styleError.Render("Error: ") + err.Error())
		return
	}
	fmt.Print(storage.FormatSessionList(sessions))
}

func (s *ChatSession) cmdLoad(arg string) {
	index, err := strconv.Atoi(arg)
	if err != nil {
		fmt.Println(styleError.Render("usage: ") + "/load <n>")
		return
	}
	conv, err := s.app.store.LoadByIndex(index)
	if err != nil {
		fmt.Println(styleError.Render("Error: ") + err.Error())
		return
	}
	s.eng.SetConversation(conv)
	fmt.Printf("%s %q (%d messages)\n", styleDim.Render("loaded"), conv.GetTitle(), len(conv.Messages))
}

func (s *ChatSession) cmdRetry(arg string) {
	conv := s.eng.Conversation()
	index := len(conv.Messages) - 1
	if arg != "" {
		n, err := strconv.Atoi(arg)
		if err != nil {
			fmt.Println(styleError.Render("usage: ") + "/retry [n]")
			return
		}
		index = n
	}
	if index < 0 {
		fmt.Println(styleDim.Render("Nothing to retry."))
		return
	}
	if err := s.eng.RetryFromMessage(context.Background(), index); err != nil {
		fmt.Println(styleError.Render("Error: ") + err.Error())
	}
}

func (s *ChatSession) cmdDelete(arg string) {
	index, err := strconv.Atoi(arg)
	if err != nil {
		fmt.Println(styleError.Render("usage: ") + "/delete <n>")
		return
	}
	before := len(s.eng.Conversation().Messages)
	s.eng.DeleteMessagesFrom(index)
	removed := before - len(s.eng.Conversation().Messages)
	fmt.Printf("%s %d message(s)\n", styleDim.Render("deleted"), removed)
}

func (s *ChatSession) cmdExport(arg string) {
	conv := s.eng.Conversation()
	if conv.IsEmpty() {
		fmt.Println(styleDim.Render("Nothing to export."))
		return
	}
	opts := export.DefaultOptions()
	opts.IncludeThinking = s.config().UI.ShowThinking

	var (
		path string
		err  error
	)
	if arg == "json" {
		path, err = export.ExportJSON(conv, opts)
	} else {
		path, err = export.ExportMarkdown(conv, opts)
	}
	if err != nil {
		fmt.Println(styleError.Render("Error: ") + err.Error())
		return
	}
	fmt.Println(styleDim.Render("exported to ") + path)
}

func (s *ChatSession) cmdDebug() {
	events := s.eng.Transport().Debug().Events()
	if len(events) == 0 {
		fmt.Println(styleDim.Render("No stream events recorded."))
		return
	}
	for _, ev := range events {
		fmt.Printf("%s %s %s\n",
			styleDim.Render(ev.Timestamp.Format("15:04:05.000")),
			styleTool.Render(ev.Type),
			truncateLine(ev.Raw, 120))
	}
}

func truncateLine(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
