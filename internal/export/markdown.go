// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/tidechat/internal/model"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports conversations to Markdown format.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export converts a conversation to Markdown format.
func (e *MarkdownExporter) Export(conv *model.Conversation) ([]byte, error) {
	if conv == nil {
		return nil, fmt.Errorf("conversation is nil")
	}
	if len(conv.Messages) == 0 {
		return nil, fmt.Errorf("conversation has no messages")
	}

	var sb strings.Builder

	// YAML frontmatter with metadata
	if e.options.IncludeMetadata {
		sb.WriteString("---\n")
		sb.WriteString(fmt.Sprintf("title: %s\n", escapeYAML(conv.GetTitle())))
		sb.WriteString(fmt.Sprintf("model: %s\n", conv.Model))
		sb.WriteString(fmt.Sprintf("date: %s\n", conv.CreatedAt.Format(time.RFC3339)))
		sb.WriteString(fmt.Sprintf("updated: %s\n", conv.UpdatedAt.Format(time.RFC3339)))
		sb.WriteString(fmt.Sprintf("messages: %d\n", conv.MessageCount))
		if conv.TotalTokens > 0 {
			sb.WriteString(fmt.Sprintf("tokens: %d\n", conv.TotalTokens))
		}
		sb.WriteString(fmt.Sprintf("exported: %s\n", time.Now().Format(time.RFC3339)))
		sb.WriteString("generator: tidechat\n")
		sb.WriteString("---\n\n")
	}

	sb.WriteString(fmt.Sprintf("# %s\n\n", conv.GetTitle()))

	for _, msg := range conv.Messages {
		e.writeMessage(&sb, msg)
	}

	return []byte(sb.String()), nil
}

// writeMessage renders one message of any role.
func (e *MarkdownExporter) writeMessage(sb *strings.Builder, msg *model.Message) {
	switch msg.Role {
	case model.RoleUser:
		sb.WriteString("## User")
		e.writeTimestamp(sb, msg)
		sb.WriteString("\n\n")
		sb.WriteString(msg.Content)
		sb.WriteString("\n\n")

	case model.RoleAssistant:
		sb.WriteString("## Assistant")
		if msg.Model != "" {
			sb.WriteString(" (" + msg.Model + ")")
		}
		e.writeTimestamp(sb, msg)
		sb.WriteString("\n\n")

		if msg.Status == model.StatusError {
			sb.WriteString("> **Error**: " + msg.Content + "\n\n")
			return
		}
		if e.options.IncludeThinking && msg.Thinking != "" {
			sb.WriteString("<details><summary>Thinking</summary>\n\n")
			sb.WriteString(msg.Thinking)
			sb.WriteString("\n\n</details>\n\n")
		}
		sb.WriteString(msg.Content)
		sb.WriteString("\n\n")
		if msg.Usage != nil {
			sb.WriteString(fmt.Sprintf("*Tokens: %d prompt + %d completion*\n\n",
				msg.Usage.PromptTokens, msg.Usage.CompletionTokens))
		}

	case model.RoleToolCall:
		sb.WriteString(fmt.Sprintf("### Tool Call: `%s`\n\n", msg.ToolName))
		sb.WriteString("```json\n")
		sb.WriteString(string(msg.Arguments))
		sb.WriteString("\n```\n\n")

	case model.RoleToolResult:
		label := "Tool Result"
		if msg.IsError {
			label = "Tool Result (error)"
		}
		sb.WriteString(fmt.Sprintf("### %s\n\n", label))
		sb.WriteString("```\n")
		sb.WriteString(msg.ResultString())
		sb.WriteString("\n```\n\n")
		if msg.LatencyMs > 0 {
			sb.WriteString(fmt.Sprintf("*Took %s*\n\n", formatDuration(msg.LatencyMs)))
		}
	}
}

func (e *MarkdownExporter) writeTimestamp(sb *strings.Builder, msg *model.Message) {
	if e.options.IncludeTimestamps && !msg.Timestamp.IsZero() {
		sb.WriteString(" - " + msg.Timestamp.Format("2006-01-02 15:04:05"))
	}
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

// escapeYAML keeps titles from breaking the frontmatter block.
func escapeYAML(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", "")
	if strings.ContainsAny(s, ":#[]{}\"'") {
		s = "\"" + strings.ReplaceAll(s, "\"", "\\\"") + "\""
	}
	return s
}
