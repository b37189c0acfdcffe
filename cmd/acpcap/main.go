package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/m4xw311/acpcap/config"
	"github.com/m4xw311/acpcap/digest"
	"github.com/m4xw311/acpcap/llm"
	"github.com/m4xw311/acpcap/mcpprobe"
	"github.com/m4xw311/acpcap/runner"
	"github.com/m4xw311/acpcap/runner/terminal"
	"github.com/m4xw311/acpcap/session"
)

func main() {
	// Define flags
	agentFlag := flag.String("agent", "", "Agent to launch (name from config, defaults to the first)")
	modeFlag := flag.String("m", "", "Permission mode: 'ask', 'first-allow' or 'reject'")
	includeFlag := flag.String("include", "", "Comma-separated glob patterns of files to attach to each prompt")
	ctxFlag := flag.String("ctx", "", "Comma-separated capture names to emit as context XML for the first prompt")
	emitFlag := flag.String("emit-context", "", "Render saved captures (comma-separated names) as context XML and exit")
	titleFlag := flag.Bool("title", false, "Generate titles for captures with the configured model")
	thoughtsFlag := flag.Bool("thoughts", false, "Print agent thought chunks")
	traceFlag := flag.Bool("trace", false, "Enable protocol tracing to .acpcap/trace.log")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %+v\n", err)
		os.Exit(1)
	}

	log := zerolog.Nop()
	if *traceFlag {
		logFile, err := openTraceLog()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening trace log: %+v\n", err)
			os.Exit(1)
		}
		defer logFile.Close()
		log = zerolog.New(logFile).With().Timestamp().Logger()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Pure serialization mode: no agent is launched.
	if *emitFlag != "" {
		if err := emitContext(ctx, cfg, strings.Split(*emitFlag, ","), *titleFlag); err != nil {
			fmt.Fprintf(os.Stderr, "Error emitting context: %+v\n", err)
			os.Exit(1)
		}
		return
	}

	agentCfg, err := cfg.GetAgent(*agentFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error selecting agent: %+v\n", err)
		os.Exit(1)
	}

	// Probe configured MCP servers before handing them to the agent.
	if len(cfg.MCPServers) > 0 {
		results, err := mcpprobe.ProbeAll(ctx, cfg.MCPServers)
		for _, r := range results {
			fmt.Printf("MCP server '%s' ready with %d tools\n", r.Name, r.ToolCount)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error probing MCP servers: %+v\n", err)
			os.Exit(1)
		}
	}

	wd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error getting working directory: %+v\n", err)
		os.Exit(1)
	}

	rec := session.NewRecorder(agentCfg.Name)
	run := runner.New(*agentCfg, wd, rec)
	run.MCPServers = cfg.MCPServers
	run.Log = log

	mode := *modeFlag
	if mode == "" {
		mode = cfg.PermissionMode
	}
	if mode == "ask" {
		run.Policy = terminal.AskPolicy(os.Stdin, os.Stdout)
	} else {
		run.Policy = runner.PolicyByName(mode)
	}

	if err := run.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting agent '%s': %+v\n", agentCfg.Command, err)
		os.Exit(1)
	}
	defer run.Close()

	// Build the initial prompt: prior-session context first, then any
	// prompt text from the command line.
	initialPrompt := strings.Join(flag.Args(), " ")
	if *ctxFlag != "" {
		xml, err := contextFromCaptures(strings.Split(*ctxFlag, ","), cfg.Digest)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading context captures: %+v\n", err)
			os.Exit(1)
		}
		if xml != "" {
			initialPrompt = xml + "\n\n" + initialPrompt
		}
	}

	fmt.Printf("Connected to '%s' (session %s). Type your prompt.\n", agentCfg.Name, run.SessionID())
	term := terminal.New(run)
	term.ShowThoughts = *thoughtsFlag
	if *includeFlag != "" {
		term.Includes = strings.Split(*includeFlag, ",")
	}
	if err := term.Run(ctx, strings.TrimSpace(initialPrompt)); err != nil {
		fmt.Fprintf(os.Stderr, "Session stopped with an error: %+v\n", err)
	}

	// Flush everything that was recorded, titling first if asked.
	saveCaptures(ctx, cfg, rec, *titleFlag)
}

// saveCaptures persists every recorded session on the way out.
func saveCaptures(ctx context.Context, cfg *config.Config, rec *session.Recorder, title bool) {
	var titler llm.Client
	if title {
		var err error
		titler, err = llm.NewClient(ctx, cfg.Titler.LLMClient, cfg.Titler.Model)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: titling disabled: %+v\n", err)
			titler = nil
		}
	}

	for _, cap := range rec.Captures() {
		if titler != nil && cap.Title == "" {
			d := digest.Compress(cap.SessionID, "", cap.Notifications, digestOptions(cfg.Digest))
			if t, err := titler.Title(ctx, d.Summary); err == nil {
				cap.Title = t
			} else {
				fmt.Fprintf(os.Stderr, "Warning: failed to title capture %s: %+v\n", cap.Name, err)
			}
		}
		if err := cap.Save(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to save capture %s: %+v\n", cap.Name, err)
			continue
		}
		fmt.Printf("Saved capture %s (session %s)\n", cap.Name, cap.SessionID)
	}
}

// contextFromCaptures compresses saved captures into one XML block.
func contextFromCaptures(names []string, dcfg config.Digest) (string, error) {
	var compressed []digest.CompressedSession
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		cap, err := session.Load(name)
		if err != nil {
			return "", err
		}
		compressed = append(compressed, digest.Compress(cap.SessionID, cap.Title, cap.Notifications, digestOptions(dcfg)))
	}
	return digest.ToContextXML(compressed), nil
}

// emitContext prints the context XML for saved captures, optionally
// titling untitled ones first.
func emitContext(ctx context.Context, cfg *config.Config, names []string, title bool) error {
	var titler llm.Client
	if title {
		var err error
		titler, err = llm.NewClient(ctx, cfg.Titler.LLMClient, cfg.Titler.Model)
		if err != nil {
			return err
		}
	}

	var compressed []digest.CompressedSession
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		cap, err := session.Load(name)
		if err != nil {
			return err
		}
		d := digest.Compress(cap.SessionID, cap.Title, cap.Notifications, digestOptions(cfg.Digest))
		if titler != nil && d.Title == "" {
			if t, err := titler.Title(ctx, d.Summary); err == nil {
				d.Title = t
			}
		}
		compressed = append(compressed, d)
	}
	fmt.Print(digest.ToContextXML(compressed))
	return nil
}

func digestOptions(dcfg config.Digest) digest.Options {
	return digest.Options{KeepMessagePrefix: dcfg.KeepMessagePrefix}
}

func openTraceLog() (*os.File, error) {
	dir := ".acpcap"
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(filepath.Join(dir, "trace.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}
