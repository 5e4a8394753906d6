// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"log"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/tidechat/internal/api"
	"github.com/jeranaias/tidechat/internal/config"
	"github.com/jeranaias/tidechat/internal/engine"
	"github.com/jeranaias/tidechat/internal/storage"
	"github.com/jeranaias/tidechat/internal/telemetry"
)

// =============================================================================
// VERSION INFO
// =============================================================================

// Set at build time via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// =============================================================================
// COMMANDS
// =============================================================================

// Command identifies a top-level subcommand.
type Command int

const (
	CmdChat Command = iota
	CmdAsk
	CmdSessions
	CmdUsage
	CmdExport
	CmdStatus
	CmdConfig
	CmdVersion
	CmdHelp
)

var commandNames = map[string]Command{
	"chat":     CmdChat,
	"ask":      CmdAsk,
	"sessions": CmdSessions,
	"usage":    CmdUsage,
	"export":   CmdExport,
	"status":   CmdStatus,
	"config":   CmdConfig,
	"version":  CmdVersion,
	"help":     CmdHelp,
}

// Parse determines the subcommand and parses the remaining arguments.
// A bare invocation or one that starts with a flag defaults to chat.
func Parse(argv []string) (Command, *Args, error) {
	cmd := CmdChat
	if len(argv) > 0 {
		switch argv[0] {
		case "--version", "-v":
			return CmdVersion, &Args{}, nil
		case "--help", "-h":
			return CmdHelp, &Args{}, nil
		}
		if c, ok := commandNames[argv[0]]; ok {
			cmd = c
			argv = argv[1:]
		}
	}
	args, err := parseArgs(argv)
	if err != nil {
		return cmd, nil, err
	}
	return cmd, args, nil
}

// =============================================================================
// APP WIRING
// =============================================================================

// app holds the shared dependencies a command needs. The engine is built
// per command because each attaches its own observer.
type app struct {
	cfg    *config.Config
	client *api.Client
	store  *storage.ConversationStore
	usage  *telemetry.UsageStore
}

// newApp loads configuration, applies flag overrides, and connects the
// backend client, conversation store, and telemetry store.
func newApp(args *Args) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if args.Backend != "" {
		cfg.Backend.URL = args.Backend
	}
	if args.Model != "" {
		cfg.Chat.DefaultModel = args.Model
	}
	if args.SystemPrompt != "" {
		cfg.Chat.SystemPrompt = args.SystemPrompt
	}
	if args.NoColor || !cfg.UI.Color || !ColorsEnabled() {
		disableColors()
	}

	client := api.NewClientWithConfig(&api.ClientConfig{
		BaseURL: cfg.Backend.URL,
		Timeout: time.Duration(cfg.Backend.TimeoutSecs) * time.Second,
		Headers: cfg.Backend.Headers,
	})

	convDir, err := cfg.ConversationsDir()
	if err != nil {
		return nil, err
	}
	store, err := storage.NewConversationStoreWithDir(convDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open conversation store: %w", err)
	}
	store.MaxConversations = cfg.Storage.MaxConversations

	a := &app{cfg: cfg, client: client, store: store}

	if cfg.Telemetry.Enabled {
		dbPath, err := cfg.UsageDBPath()
		if err != nil {
			return nil, err
		}
		usage, err := telemetry.Open(dbPath)
		if err != nil {
			// Telemetry is best-effort; chat works without it.
			log.Printf("telemetry disabled: %v", err)
		} else {
			a.usage = usage
		}
	}

	return a, nil
}

// close releases the app's persistent resources.
func (a *app) close() {
	if a.usage != nil {
		a.usage.Close()
	}
}

// newEngine builds a generation engine wired to the app's backend and
// stores, with the given observer receiving streaming progress.
func (a *app) newEngine(obs engine.Observer) *engine.Engine {
	opts := engine.Options{
		Endpoint:     a.client.StreamEndpoint(),
		Headers:      a.client.Headers(),
		Model:        a.cfg.Chat.DefaultModel,
		SystemPrompt: a.cfg.Chat.SystemPrompt,
		EnableTools:  a.cfg.Chat.EnableTools,
		Store:        a.store,
		Canceler:     a.client,
		Observer:     obs,
	}
	if a.usage != nil {
		opts.Usage = a.usage
	}
	if n := a.cfg.Chat.RateLimitPerMin; n > 0 {
		opts.Limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), n)
	}
	return engine.New(opts)
}

// =============================================================================
// DISPATCH
// =============================================================================

// Run executes the parsed command and returns the process exit code.
func Run(cmd Command, args *Args) int {
	switch cmd {
	case CmdVersion:
		fmt.Printf("tidechat %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
		return 0
	case CmdHelp:
		printHelp()
		return 0
	}

	a, err := newApp(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, styleError.Render("Error: ")+err.Error())
		return 1
	}
	defer a.close()

	switch cmd {
	case CmdChat:
		err = runChat(a, args)
	case CmdAsk:
		err = runAsk(a, args)
	case CmdSessions:
		err = runSessions(a, args)
	case CmdUsage:
		err = runUsage(a)
	case CmdExport:
		err = runExport(a, args)
	case CmdStatus:
		err = runStatus(a)
	case CmdConfig:
		err = runConfig(a, args)
	default:
		err = fmt.Errorf("unknown command")
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, styleError.Render("Error: ")+err.Error())
		return 1
	}
	return 0
}

func printHelp() {
	fmt.Println(styleHeader.Render("tidechat") + " - streaming chat client")
	fmt.Print(`
Usage:
  tidechat [chat]              Start an interactive chat session
  tidechat ask <prompt>        One-shot question, answer to stdout
  tidechat sessions            List saved conversations
  tidechat sessions search <q> Search saved conversation content
  tidechat sessions show <n>   Print a saved conversation
  tidechat sessions delete <n> Delete a saved conversation
  tidechat export [n]          Export a conversation (latest by default)
  tidechat usage               Show token usage totals
  tidechat status              Check backend health
  tidechat config [init]       Show or initialize configuration
  tidechat version             Show version information

Flags:
  -m, --model <name>    Model to use for this invocation
  --backend <url>       Backend base URL
  --system <prompt>     System prompt override
  --json                Export as JSON instead of Markdown
  --no-color            Disable styled output
  -q, --quiet           Suppress informational output

Environment:
  TIDECHAT_BACKEND_URL, TIDECHAT_MODEL, TIDECHAT_SYSTEM_PROMPT,
  TIDECHAT_API_KEY, TIDECHAT_ENABLE_TOOLS, TIDECHAT_TELEMETRY
`)
}
