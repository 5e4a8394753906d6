// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"io"
	"log"
	"testing"

	"github.com/jeranaias/tidechat/internal/config"
	"github.com/jeranaias/tidechat/internal/engine"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name string
		argv []string
		want Args
	}{
		{
			name: "empty",
			argv: nil,
			want: Args{},
		},
		{
			name: "flag with separate value",
			argv: []string{"--model", "tide-large"},
			want: Args{Model: "tide-large"},
		},
		{
			name: "flag with equals value",
			argv: []string{"--model=tide-large"},
			want: Args{Model: "tide-large"},
		},
		{
			name: "short flag",
			argv: []string{"-m", "tide-large"},
			want: Args{Model: "tide-large"},
		},
		{
			name: "bool flags",
			argv: []string{"--json", "--no-color", "-q"},
			want: Args{JSON: true, NoColor: true, Quiet: true},
		},
		{
			name: "positionals around flags",
			argv: []string{"what", "--model", "tide-large", "is", "Go"},
			want: Args{Model: "tide-large", Positional: []string{"what", "is", "Go"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseArgs(tt.argv)
			if err != nil {
				t.Fatalf("parseArgs(%v) error: %v", tt.argv, err)
			}
			if got.Model != tt.want.Model || got.JSON != tt.want.JSON ||
				got.NoColor != tt.want.NoColor || got.Quiet != tt.want.Quiet {
				t.Errorf("parseArgs(%v) = %+v, want %+v", tt.argv, got, tt.want)
			}
			if got.Prompt() != (&tt.want).Prompt() {
				t.Errorf("Prompt() = %q, want %q", got.Prompt(), (&tt.want).Prompt())
			}
		})
	}
}

func TestParseArgsErrors(t *testing.T) {
	tests := []struct {
		name string
		argv []string
	}{
		{"unknown flag", []string{"--bogus"}},
		{"missing value", []string{"--model"}},
		{"value on bool flag", []string{"--json=true"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseArgs(tt.argv); err == nil {
				t.Errorf("parseArgs(%v) expected error", tt.argv)
			}
		})
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		argv []string
		want Command
	}{
		{nil, CmdChat},
		{[]string{"chat"}, CmdChat},
		{[]string{"--model", "tide-large"}, CmdChat},
		{[]string{"ask", "hello"}, CmdAsk},
		{[]string{"sessions"}, CmdSessions},
		{[]string{"usage"}, CmdUsage},
		{[]string{"export", "2", "--json"}, CmdExport},
		{[]string{"status"}, CmdStatus},
		{[]string{"config", "init"}, CmdConfig},
		{[]string{"version"}, CmdVersion},
		{[]string{"--version"}, CmdVersion},
		{[]string{"-h"}, CmdHelp},
	}
	for _, tt := range tests {
		cmd, _, err := Parse(tt.argv)
		if err != nil {
			t.Fatalf("Parse(%v) error: %v", tt.argv, err)
		}
		if cmd != tt.want {
			t.Errorf("Parse(%v) = %v, want %v", tt.argv, cmd, tt.want)
		}
	}
}

func TestParseCommandKeepsPositionals(t *testing.T) {
	_, args, err := Parse([]string{"ask", "what", "is", "Go"})
	if err != nil {
		t.Fatal(err)
	}
	if got := args.Prompt(); got != "what is Go" {
		t.Errorf("Prompt() = %q, want %q", got, "what is Go")
	}
}

func TestChatSessionConfigReload(t *testing.T) {
	orig := log.Writer()
	log.SetOutput(io.Discard)
	defer log.SetOutput(orig)

	base := config.Default()
	sess := &ChatSession{app: &app{cfg: base}, cfg: base}
	sess.eng = engine.New(engine.Options{Model: base.Chat.DefaultModel})

	next := config.Default()
	next.Chat.DefaultModel = "tide-large"
	next.Chat.SystemPrompt = "be brief"

	// The watcher swaps the config from its own goroutine while the REPL
	// reads it; concurrent access must stay safe.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			_ = sess.config().UI.ShowThinking
		}
	}()
	for i := 0; i < 100; i++ {
		sess.applyConfig(next)
	}
	<-done

	if got := sess.config().Chat.DefaultModel; got != "tide-large" {
		t.Errorf("model after reload = %q, want %q", got, "tide-large")
	}
	if got := sess.eng.Conversation().Model; got != "tide-large" {
		t.Errorf("engine model after reload = %q, want %q", got, "tide-large")
	}
	if got := sess.eng.Conversation().SystemPrompt; got != "be brief" {
		t.Errorf("system prompt after reload = %q, want %q", got, "be brief")
	}
}

func TestTruncateLine(t *testing.T) {
	if got := truncateLine("short", 10); got != "short" {
		t.Errorf("got %q", got)
	}
	if got := truncateLine("line\nbreak", 20); got != "line break" {
		t.Errorf("got %q", got)
	}
	long := truncateLine("aaaaaaaaaaaaaaaaaaaa", 10)
	if len(long) != 10 || long[7:] != "..." {
		t.Errorf("got %q", long)
	}
}

func TestFormatPadded(t *testing.T) {
	if got := formatPadded("ab", 5); got != "ab   " {
		t.Errorf("got %q", got)
	}
	if got := formatPadded("abcdef", 4); got != "abcdef" {
		t.Errorf("got %q", got)
	}
}
