// Package runner owns the lifecycle of one child agent process: spawn,
// protocol handshake, prompting, capture and teardown.
package runner

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"

	"github.com/m4xw311/acpcap/acp"
	"github.com/m4xw311/acpcap/config"
	"github.com/m4xw311/acpcap/errors"
	"github.com/m4xw311/acpcap/session"
)

// Callbacks lets an interaction mode react to streamed output while a
// turn is in flight. Nil funcs are skipped. Recording happens
// regardless of callbacks; these are for display only.
type Callbacks struct {
	OnAgentMessage func(text string)
	OnAgentThought func(text string)
	OnToolCall     func(title, kind string)
	OnPlan         func(entries []acp.PlanEntry)
	OnWarning      func(warning string)
}

// Runner drives one agent subprocess over its stdio pipes.
type Runner struct {
	Agent      config.Agent
	Cwd        string
	MCPServers []config.MCPServer
	Policy     Policy
	Recorder   *session.Recorder
	Log        zerolog.Logger

	cmd       *exec.Cmd
	client    *acp.Client
	sessionID string
	callbacks Callbacks

	// Pipe transport for tests; when set the runner talks over these
	// instead of spawning a process.
	testIn  io.Reader
	testOut io.WriteCloser
}

// New builds a runner for the configured agent. The zero Policy means
// FirstAllow.
func New(agent config.Agent, cwd string, rec *session.Recorder) *Runner {
	return &Runner{
		Agent:    agent,
		Cwd:      cwd,
		Policy:   FirstAllow,
		Recorder: rec,
		Log:      zerolog.Nop(),
	}
}

// SessionID returns the id of the active session, or "" before Start.
func (r *Runner) SessionID() string { return r.sessionID }

// SetCallbacks installs display callbacks. Call before Start.
func (r *Runner) SetCallbacks(cb Callbacks) { r.callbacks = cb }

// Start launches the agent process and runs the handshake: initialize,
// then session/new scoped to the working directory. On any failure the
// child process is killed before returning.
func (r *Runner) Start(ctx context.Context) error {
	var stdin io.WriteCloser
	var stdout io.Reader

	if r.testIn != nil {
		stdin, stdout = r.testOut, r.testIn
	} else {
		cmd := exec.CommandContext(ctx, r.Agent.Command, r.Agent.Args...)
		cmd.Dir = r.Cwd
		// The agent's own diagnostics pass straight through.
		cmd.Stderr = os.Stderr
		cmd.Env = os.Environ()
		for k, v := range r.Agent.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}

		var err error
		stdin, err = cmd.StdinPipe()
		if err != nil {
			return errors.Wrapf(err, "failed to open agent stdin")
		}
		stdout, err = cmd.StdoutPipe()
		if err != nil {
			return errors.Wrapf(err, "failed to open agent stdout")
		}
		if err := cmd.Start(); err != nil {
			return errors.Wrapf(err, "failed to start agent '%s'", r.Agent.Command)
		}
		r.cmd = cmd
	}

	r.client = acp.NewClient(stdout, stdin)
	r.client.SetLogger(r.Log)
	r.client.OnSessionUpdate(r.handleUpdate)
	r.client.OnRequestPermission(r.handlePermission)
	r.client.Start()

	if err := r.handshake(ctx); err != nil {
		r.Close()
		return err
	}
	return nil
}

func (r *Runner) handshake(ctx context.Context) error {
	init, err := r.client.Initialize(ctx, &acp.InitializeRequest{
		ProtocolVersion: acp.ProtocolVersion,
		ClientCapabilities: &acp.ClientCapabilities{
			Fs: &acp.FileSystemCapability{},
		},
	})
	if err != nil {
		return errors.Wrapf(err, "initialize failed")
	}
	if init.ProtocolVersion > acp.ProtocolVersion {
		return errors.New("agent negotiated unsupported protocol version %d", init.ProtocolVersion)
	}

	cwd := r.Cwd
	if cwd == "" {
		cwd, err = os.Getwd()
		if err != nil {
			return errors.Wrapf(err, "could not get working directory")
		}
	}
	servers := make([]acp.MCPServer, 0, len(r.MCPServers))
	for _, s := range r.MCPServers {
		srv := acp.MCPServer{Name: s.Name, Command: s.Command, Args: s.Args}
		for k, v := range s.Env {
			srv.Env = append(srv.Env, acp.EnvVariable{Name: k, Value: v})
		}
		servers = append(servers, srv)
	}

	sess, err := r.client.NewSession(ctx, &acp.NewSessionRequest{Cwd: cwd, MCPServers: servers})
	if err != nil {
		return errors.Wrapf(err, "session/new failed")
	}
	r.sessionID = sess.SessionID
	r.Log.Info().Str("sessionId", r.sessionID).Msg("session established")
	return nil
}

func (r *Runner) handleUpdate(n acp.SessionNotification) {
	if r.Recorder != nil {
		r.Recorder.Handle(n)
	}
	u := n.Update
	switch u.Type {
	case acp.UpdateAgentMessageChunk:
		if r.callbacks.OnAgentMessage != nil {
			r.callbacks.OnAgentMessage(u.Text())
		}
	case acp.UpdateAgentThoughtChunk:
		if r.callbacks.OnAgentThought != nil {
			r.callbacks.OnAgentThought(u.Text())
		}
	case acp.UpdateToolCall:
		if r.callbacks.OnToolCall != nil {
			r.callbacks.OnToolCall(u.Title, u.Kind)
		}
	case acp.UpdatePlan:
		if r.callbacks.OnPlan != nil {
			r.callbacks.OnPlan(u.Entries)
		}
	}
}

func (r *Runner) handlePermission(ctx context.Context, req *acp.RequestPermissionRequest) (*acp.RequestPermissionResponse, error) {
	policy := r.Policy
	if policy == nil {
		policy = FirstAllow
	}

	done := make(chan acp.RequestPermissionOutcome, 1)
	go func() { done <- policy(req) }()

	select {
	case outcome := <-done:
		r.Log.Info().
			Str("toolCallId", req.ToolCall.ToolCallID).
			Str("outcome", outcome.Outcome).
			Str("optionId", outcome.OptionID).
			Msg("permission decided")
		return &acp.RequestPermissionResponse{Outcome: outcome}, nil
	case <-ctx.Done():
		// Connection is going away; tell the agent the request died
		// with the turn rather than leaving it unanswered.
		return &acp.RequestPermissionResponse{Outcome: acp.CancelledOutcome()}, nil
	}
}

// Prompt submits one user turn and blocks until the agent resolves it.
// Each include pattern expands to resource links for the matching files
// relative to the working directory.
func (r *Runner) Prompt(ctx context.Context, text string, includes []string) (string, error) {
	blocks := []acp.ContentBlock{acp.TextBlock(text)}
	for _, pattern := range includes {
		matches, err := r.expandInclude(pattern)
		if err != nil {
			if r.callbacks.OnWarning != nil {
				r.callbacks.OnWarning(err.Error())
			}
			continue
		}
		blocks = append(blocks, matches...)
	}

	resp, err := r.client.Prompt(ctx, r.sessionID, blocks)
	if err != nil {
		return "", errors.Wrapf(err, "prompt failed")
	}
	return resp.StopReason, nil
}

func (r *Runner) expandInclude(pattern string) ([]acp.ContentBlock, error) {
	base := r.Cwd
	if base == "" {
		base = "."
	}
	matches, err := doublestar.Glob(os.DirFS(base), pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "bad include pattern %q", pattern)
	}
	var blocks []acp.ContentBlock
	for _, m := range matches {
		abs, err := filepath.Abs(filepath.Join(base, m))
		if err != nil {
			continue
		}
		blocks = append(blocks, acp.ResourceLinkBlock(filepath.Base(m), "file://"+abs))
	}
	return blocks, nil
}

// Cancel asks the agent to stop the in-flight turn.
func (r *Runner) Cancel() error {
	if r.client == nil || r.sessionID == "" {
		return nil
	}
	return r.client.Cancel(r.sessionID)
}

// Close tears down the connection and terminates the agent process.
// The process is killed on every path; a clean protocol shutdown is
// not required first.
func (r *Runner) Close() error {
	if r.client != nil {
		r.client.Close()
	}
	if r.testOut != nil {
		r.testOut.Close()
	}
	if r.cmd != nil && r.cmd.Process != nil {
		r.cmd.Process.Kill()
		r.cmd.Wait()
	}
	return nil
}
