// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jeranaias/tidechat/internal/config"
	"github.com/jeranaias/tidechat/internal/export"
	"github.com/jeranaias/tidechat/internal/model"
	"github.com/jeranaias/tidechat/internal/storage"
)

const healthTimeout = 5 * time.Second

// =============================================================================
// SESSIONS COMMAND
// =============================================================================

// runSessions manages saved conversations:
//
//	sessions                 list
//	sessions search <query>  search message content
//	sessions show <n>        print one conversation
//	sessions delete <n>      delete one conversation
//	sessions clear           delete all conversations
func runSessions(a *app, args *Args) error {
	if len(args.Positional) == 0 {
		return listSessions(a, "")
	}

	sub := args.Positional[0]
	rest := strings.Join(args.Positional[1:], " ")

	switch sub {
	case "list":
		return listSessions(a, "")
	case "search":
		if rest == "" {
			return fmt.Errorf("usage: tidechat sessions search <query>")
		}
		return listSessions(a, rest)
	case "show":
		conv, err := loadSessionArg(a, rest)
		if err != nil {
			return err
		}
		printConversation(conv)
		return nil
	case "delete":
		conv, err := loadSessionArg(a, rest)
		if err != nil {
			return err
		}
		if err := a.store.Delete(conv.ID); err != nil {
			return err
		}
		fmt.Printf("deleted %q\n", conv.GetTitle())
		return nil
	case "clear":
		if err := a.store.Clear(); err != nil {
			return err
		}
		fmt.Println("all conversations deleted")
		return nil
	default:
		// Bare words search, matching the REPL's /sessions behavior.
		return listSessions(a, args.Prompt())
	}
}

func listSessions(a *app, query string) error {
	var (
		sessions []model.ConversationMeta
		err      error
	)
	if query != "" {
		sessions, err = a.store.SearchMessages(query)
	} else {
		sessions, err = a.store.List()
	}
	if err != nil {
		return err
	}
	fmt.Print(storage.FormatSessionList(sessions))
	return nil
}

// loadSessionArg resolves a list index argument (0 = most recent).
func loadSessionArg(a *app, arg string) (*model.Conversation, error) {
	if arg == "" {
		return nil, fmt.Errorf("expected a session number (0 = most recent)")
	}
	index, err := strconv.Atoi(arg)
	if err != nil {
		return nil, fmt.Errorf("expected a session number, got %q", arg)
	}
	return a.store.LoadByIndex(index)
}

func printConversation(conv *model.Conversation) {
	fmt.Println(styleHeader.Render(conv.GetTitle()) + " " + styleDim.Render(conv.ID))
	fmt.Println(styleDim.Render(fmt.Sprintf("model %s, %d messages, %d tokens",
		conv.Model, len(conv.Messages), conv.TotalTokens)))
	fmt.Println()
	for _, msg := range conv.Messages {
		switch msg.Role {
		case model.RoleUser:
			fmt.Println(stylePrompt.Render(msg.Role.DisplayName()))
		case model.RoleToolCall, model.RoleToolResult:
			fmt.Println(styleTool.Render(msg.Role.DisplayName()))
		default:
			fmt.Println(styleModel.Render(msg.Role.DisplayName()))
		}
		fmt.Println(msg.Preview(500))
		fmt.Println()
	}
}

// =============================================================================
// USAGE COMMAND
// =============================================================================

// runUsage prints aggregate token usage from the telemetry store.
func runUsage(a *app) error {
	if a.usage == nil {
		return fmt.Errorf("telemetry is disabled; enable it in config.toml to track usage")
	}

	totals, err := a.usage.Totals()
	if err != nil {
		return err
	}
	fmt.Println(styleHeader.Render("Token usage"))
	fmt.Printf("  generations: %d\n", totals.Generations)
	fmt.Printf("  prompt:      %d\n", totals.PromptTokens)
	fmt.Printf("  completion:  %d\n", totals.CompletionTokens)
	fmt.Printf("  total:       %d\n", totals.Total())

	byModel, err := a.usage.TotalsByModel()
	if err != nil {
		return err
	}
	if len(byModel) > 0 {
		fmt.Println()
		fmt.Println(styleHeader.Render("By model"))
		for _, mt := range byModel {
			fmt.Printf("  %s %d tokens over %d generations\n",
				styleModel.Render(formatPadded(mt.Model, 24)), mt.Total(), mt.Generations)
		}
	}

	week, err := a.usage.Since(time.Now().AddDate(0, 0, -7))
	if err == nil && week.Generations > 0 {
		fmt.Println()
		fmt.Println(styleDim.Render(fmt.Sprintf("last 7 days: %d tokens over %d generations",
			week.Total(), week.Generations)))
	}
	return nil
}

func formatPadded(s string, width int) string {
	for len(s) < width {
		s += " "
	}
	return s
}

// =============================================================================
// EXPORT COMMAND
// =============================================================================

// runExport writes a saved conversation to a file. With no argument the
// most recent conversation is exported; n counts from the top of the
// sessions list (0 = most recent).
func runExport(a *app, args *Args) error {
	index := 0
	if arg := args.Prompt(); arg != "" {
		n, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("usage: tidechat export [n] [--json]")
		}
		index = n
	}

	conv, err := a.store.LoadByIndex(index)
	if err != nil {
		return err
	}

	opts := export.DefaultOptions()
	opts.IncludeThinking = a.cfg.UI.ShowThinking

	var path string
	if args.JSON {
		path, err = export.ExportJSON(conv, opts)
	} else {
		path, err = export.ExportMarkdown(conv, opts)
	}
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

// =============================================================================
// STATUS COMMAND
// =============================================================================

// runStatus checks backend health and reports local store stats.
func runStatus(a *app) error {
	fmt.Println(styleHeader.Render("tidechat status"))
	fmt.Printf("  backend: %s\n", a.cfg.Backend.URL)

	ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
	defer cancel()

	health, err := a.client.Health(ctx)
	if err != nil {
		fmt.Printf("  health:  %s\n", styleError.Render(err.Error()))
	} else {
		line := health.Status
		if health.Version != "" {
			line += " (version " + health.Version + ")"
		}
		fmt.Printf("  health:  %s\n", styleModel.Render(line))
	}

	sessions, err := a.store.List()
	if err == nil {
		fmt.Printf("  saved conversations: %d\n", len(sessions))
	}
	if a.usage != nil {
		if totals, err := a.usage.Totals(); err == nil {
			fmt.Printf("  recorded tokens: %d\n", totals.Total())
		}
	}
	return nil
}

// =============================================================================
// CONFIG COMMAND
// =============================================================================

// runConfig shows the active configuration, or writes a default config
// file when invoked as "config init".
func runConfig(a *app, args *Args) error {
	path, err := config.ConfigPath()
	if err != nil {
		return err
	}

	if len(args.Positional) > 0 && args.Positional[0] == "init" {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists at %s", path)
		}
		if err := config.Save(config.Default()); err != nil {
			return err
		}
		fmt.Println("wrote " + path)
		return nil
	}

	fmt.Println(styleHeader.Render("Configuration ") + styleDim.Render(path))
	fmt.Printf("  backend.url:           %s\n", a.cfg.Backend.URL)
	fmt.Printf("  backend.timeout_secs:  %d\n", a.cfg.Backend.TimeoutSecs)
	fmt.Printf("  chat.default_model:    %s\n", a.cfg.Chat.DefaultModel)
	fmt.Printf("  chat.enable_tools:     %t\n", a.cfg.Chat.EnableTools)
	fmt.Printf("  chat.rate_limit_per_min: %d\n", a.cfg.Chat.RateLimitPerMin)
	fmt.Printf("  storage.max_conversations: %d\n", a.cfg.Storage.MaxConversations)
	fmt.Printf("  telemetry.enabled:     %t\n", a.cfg.Telemetry.Enabled)
	fmt.Printf("  ui.render_markdown:    %t\n", a.cfg.UI.RenderMarkdown)
	return nil
}
