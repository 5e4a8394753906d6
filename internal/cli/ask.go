// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jeranaias/tidechat/internal/engine"
	"github.com/jeranaias/tidechat/internal/model"
)

// =============================================================================
// ASK COMMAND
// =============================================================================

// runAsk sends a single prompt and prints the response. When stdout is a
// terminal and markdown rendering is on, the response is buffered and
// rendered at the end; otherwise tokens stream straight through.
func runAsk(a *app, args *Args) error {
	prompt := args.Prompt()

	// Piped input becomes context for the question.
	if !IsTTY() {
		stdin, err := io.ReadAll(os.Stdin)
		if err == nil && len(stdin) > 0 {
			if prompt == "" {
				prompt = string(stdin)
			} else {
				prompt = prompt + "\n\n" + string(stdin)
			}
		}
	}
	if strings.TrimSpace(prompt) == "" {
		return fmt.Errorf("usage: tidechat ask <prompt>")
	}

	buffered := a.cfg.UI.RenderMarkdown && IsStdoutTTY()

	var genErr error
	obs := newAskObserver(buffered, &genErr)
	eng := a.newEngine(obs.observer())

	if err := eng.SendMessage(context.Background(), prompt, ""); err != nil {
		return err
	}
	return genErr
}

// askObserver collects or streams a single response.
type askObserver struct {
	buffered bool
	genErr   *error
}

func newAskObserver(buffered bool, genErr *error) *askObserver {
	return &askObserver{buffered: buffered, genErr: genErr}
}

func (o *askObserver) observer() (obs engine.Observer) {
	obs.Token = func(delta, cumulative string) {
		if !o.buffered {
			fmt.Print(delta)
		}
	}
	obs.ToolCall = func(id, name string) {
		fmt.Fprintln(os.Stderr, styleTool.Render("[tool] ")+name)
	}
	obs.Complete = func(msg *model.Message) {
		if o.buffered {
			displayResponse(msg.Content, true)
		} else {
			fmt.Println()
		}
	}
	obs.Error = func(msg *model.Message) {
		if !o.buffered {
			fmt.Println()
		}
		*o.genErr = fmt.Errorf("%s", msg.Content)
	}
	return obs
}
