// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// =============================================================================
// COLOR PALETTE
// =============================================================================

// Adaptive colors pick the right variant for light and dark terminals.
var (
	colorPurple = lipgloss.AdaptiveColor{Light: "#7C3AED", Dark: "#A78BFA"}
	colorCyan   = lipgloss.AdaptiveColor{Light: "#0891B2", Dark: "#22D3EE"}
	colorGreen  = lipgloss.AdaptiveColor{Light: "#059669", Dark: "#34D399"}
	colorAmber  = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#FBBF24"}
	colorRose   = lipgloss.AdaptiveColor{Light: "#E11D48", Dark: "#FB7185"}
	colorGray   = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"}
)

// =============================================================================
// STYLES
// =============================================================================

var (
	styleHeader = lipgloss.NewStyle().Bold(true).Foreground(colorPurple)
	stylePrompt = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	styleModel  = lipgloss.NewStyle().Foreground(colorGreen)
	styleTool   = lipgloss.NewStyle().Foreground(colorAmber)
	styleError  = lipgloss.NewStyle().Bold(true).Foreground(colorRose)
	styleDim    = lipgloss.NewStyle().Foreground(colorGray)
)

// disableColors forces plain output for the rest of the process.
func disableColors() {
	lipgloss.DefaultRenderer().SetColorProfile(termenv.Ascii)
}
