// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the tidechat command-line interface: argument
// parsing, the interactive chat REPL with slash commands, one-shot asks,
// and the sessions, usage, export, status, and config subcommands.
//
// Output styling adapts to the terminal. Markdown rendering and colors
// are disabled automatically when stdout is not a TTY, and NO_COLOR is
// respected.
package cli
