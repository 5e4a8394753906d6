// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strings"
)

// =============================================================================
// ARGUMENT PARSING
// =============================================================================

// Args holds parsed command-line flags and positional arguments.
type Args struct {
	Model        string // --model, -m
	Backend      string // --backend
	SystemPrompt string // --system
	JSON         bool   // --json
	NoColor      bool   // --no-color
	Quiet        bool   // --quiet, -q

	// Positional arguments after the subcommand, flags removed.
	Positional []string
}

// Prompt joins the positional arguments into a single prompt string.
func (a *Args) Prompt() string {
	return strings.Join(a.Positional, " ")
}

// flagsWithValue maps flag names to the Args field setter for flags that
// consume the following argument.
var flagsWithValue = map[string]func(*Args, string){
	"--model":   func(a *Args, v string) { a.Model = v },
	"-m":        func(a *Args, v string) { a.Model = v },
	"--backend": func(a *Args, v string) { a.Backend = v },
	"--system":  func(a *Args, v string) { a.SystemPrompt = v },
}

// boolFlags maps flag names to the Args field setter for bare flags.
var boolFlags = map[string]func(*Args){
	"--json":     func(a *Args) { a.JSON = true },
	"--no-color": func(a *Args) { a.NoColor = true },
	"--quiet":    func(a *Args) { a.Quiet = true },
	"-q":         func(a *Args) { a.Quiet = true },
}

// parseArgs parses argv into flags and positionals. Supports both
// "--flag value" and "--flag=value" forms.
func parseArgs(argv []string) (*Args, error) {
	args := &Args{}
	for i := 0; i < len(argv); i++ {
		arg := argv[i]

		if !strings.HasPrefix(arg, "-") {
			args.Positional = append(args.Positional, arg)
			continue
		}

		name, value, hasValue := strings.Cut(arg, "=")

		if set, ok := boolFlags[name]; ok {
			if hasValue {
				return nil, fmt.Errorf("flag %s does not take a value", name)
			}
			set(args)
			continue
		}

		set, ok := flagsWithValue[name]
		if !ok {
			return nil, fmt.Errorf("unknown flag: %s", name)
		}
		if !hasValue {
			i++
			if i >= len(argv) {
				return nil, fmt.Errorf("flag %s requires a value", name)
			}
			value = argv[i]
		}
		set(args, value)
	}
	return args, nil
}
