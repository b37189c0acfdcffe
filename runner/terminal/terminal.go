// Package terminal provides the interactive REPL over a running agent:
// read a line, submit it as a turn, print the streamed output.
package terminal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/m4xw311/acpcap/acp"
	"github.com/m4xw311/acpcap/runner"
)

// Terminal handles the terminal/CLI interaction mode.
type Terminal struct {
	runner       *runner.Runner
	in           io.Reader
	out          io.Writer
	ShowThoughts bool
	Includes     []string
}

// New creates a new Terminal over an already started runner.
func New(r *runner.Runner) *Terminal {
	return &Terminal{
		runner: r,
		in:     os.Stdin,
		out:    os.Stdout,
	}
}

// Run starts the interactive loop. An optional initial prompt from the
// command line is submitted first.
func (t *Terminal) Run(ctx context.Context, initialPrompt string) error {
	t.runner.SetCallbacks(runner.Callbacks{
		OnAgentMessage: func(text string) {
			fmt.Fprint(t.out, text)
		},
		OnAgentThought: func(text string) {
			if t.ShowThoughts {
				fmt.Fprintf(t.out, "[thinking] %s\n", text)
			}
		},
		OnToolCall: func(title, kind string) {
			if title == "" {
				title = kind
			}
			fmt.Fprintf(t.out, "\n[tool:%s] %s\n", kind, title)
		},
		OnPlan: func(entries []acp.PlanEntry) {
			fmt.Fprintln(t.out, "\n[plan]")
			for _, e := range entries {
				fmt.Fprintf(t.out, "  - %s\n", e.Content)
			}
		},
		OnWarning: func(warning string) {
			fmt.Fprintf(t.out, "Warning: %s\n", warning)
		},
	})

	if initialPrompt != "" {
		if err := t.processTurn(ctx, initialPrompt); err != nil {
			return err
		}
	}

	scanner := bufio.NewScanner(t.in)
	for {
		fmt.Fprint(t.out, "You: ")
		if !scanner.Scan() {
			// EOF or read error ends the session
			break
		}

		userInput := strings.TrimSpace(scanner.Text())
		if userInput == "" {
			continue
		}

		// Exit commands
		if userInput == "/quit" || userInput == "/exit" {
			break
		}

		if err := t.processTurn(ctx, userInput); err != nil {
			fmt.Fprintf(t.out, "Error: %v\n", err)
		}
	}

	return scanner.Err()
}

// processTurn submits a single user input turn and waits for it.
func (t *Terminal) processTurn(ctx context.Context, userInput string) error {
	stop, err := t.runner.Prompt(ctx, userInput, t.Includes)
	if err != nil {
		return err
	}
	fmt.Fprintln(t.out)
	if stop != acp.StopEndTurn {
		fmt.Fprintf(t.out, "(turn ended: %s)\n", stop)
	}
	return nil
}

// AskPolicy prompts on the terminal for each permission request and
// selects the option whose number the user enters. An unparseable
// answer rejects.
func AskPolicy(in io.Reader, out io.Writer) runner.Policy {
	reader := bufio.NewReader(in)
	return func(req *acp.RequestPermissionRequest) acp.RequestPermissionOutcome {
		title := req.ToolCall.Title
		if title == "" {
			title = req.ToolCall.ToolCallID
		}
		fmt.Fprintf(out, "\nAgent wants to run `%s` [%s]\n", title, req.ToolCall.Kind)
		for i, opt := range req.Options {
			fmt.Fprintf(out, "  %d) %s (%s)\n", i+1, opt.Name, opt.Kind)
		}
		fmt.Fprint(out, "Choose: ")

		answer, err := reader.ReadString('\n')
		if err != nil {
			return acp.CancelledOutcome()
		}
		answer = strings.TrimSpace(answer)
		var n int
		if _, err := fmt.Sscanf(answer, "%d", &n); err == nil && n >= 1 && n <= len(req.Options) {
			return acp.SelectedOutcome(req.Options[n-1].OptionID)
		}
		return runner.AlwaysReject(req)
	}
}
