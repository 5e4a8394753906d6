// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"

	"github.com/charmbracelet/glamour"
)

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

// renderMarkdown renders markdown for terminal display. Falls back to the
// raw text when the renderer cannot be constructed.
func renderMarkdown(text string) string {
	width := TerminalWidth()
	if width > 100 {
		width = 100
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return text
	}
	out, err := r.Render(text)
	if err != nil {
		return text
	}
	return out
}

// displayResponse prints a completed response, rendering markdown only when
// writing to an interactive terminal with rendering enabled.
func displayResponse(text string, markdown bool) {
	if markdown && IsStdoutTTY() {
		fmt.Print(renderMarkdown(text))
		return
	}
	fmt.Println(text)
}
