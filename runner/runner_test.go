package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m4xw311/acpcap/acp"
	"github.com/m4xw311/acpcap/config"
	"github.com/m4xw311/acpcap/session"
)

type rpcMsg struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

// fakeAgent scripts the far side of the runner's pipe transport.
type fakeAgent struct {
	t *testing.T
	r *bufio.Reader
	w io.Writer
}

func (a *fakeAgent) read() rpcMsg {
	a.t.Helper()
	line, err := a.r.ReadBytes('\n')
	if err != nil {
		a.t.Fatalf("fake agent read: %v", err)
	}
	var msg rpcMsg
	if err := json.Unmarshal(line, &msg); err != nil {
		a.t.Fatalf("fake agent decode %q: %v", line, err)
	}
	return msg
}

func (a *fakeAgent) write(msg rpcMsg) {
	a.t.Helper()
	msg.JSONRPC = "2.0"
	data, err := json.Marshal(msg)
	if err != nil {
		a.t.Fatalf("fake agent marshal: %v", err)
	}
	if _, err := a.w.Write(append(data, '\n')); err != nil {
		a.t.Fatalf("fake agent write: %v", err)
	}
}

func (a *fakeAgent) respond(id any, result any) {
	raw, _ := json.Marshal(result)
	a.write(rpcMsg{ID: id, Result: raw})
}

func (a *fakeAgent) update(sessionID string, u acp.SessionUpdate) {
	raw, _ := json.Marshal(acp.SessionNotification{SessionID: sessionID, Update: u})
	a.write(rpcMsg{Method: acp.MethodSessionUpdate, Params: raw})
}

// serveHandshake answers initialize and session/new.
func (a *fakeAgent) serveHandshake(sessionID string) {
	init := a.read()
	a.respond(init.ID, acp.InitializeResponse{ProtocolVersion: 1})
	sess := a.read()
	a.respond(sess.ID, acp.NewSessionResponse{SessionID: sessionID})
}

func newPipeRunner(t *testing.T, rec *session.Recorder) (*Runner, *fakeAgent) {
	t.Helper()
	agentToRunnerR, agentToRunnerW := io.Pipe()
	runnerToAgentR, runnerToAgentW := io.Pipe()

	r := New(config.Agent{Name: "fake"}, t.TempDir(), rec)
	r.testIn = agentToRunnerR
	r.testOut = runnerToAgentW

	agent := &fakeAgent{t: t, r: bufio.NewReader(runnerToAgentR), w: agentToRunnerW}
	t.Cleanup(func() {
		r.Close()
		agentToRunnerW.Close()
		runnerToAgentR.Close()
	})
	return r, agent
}

func TestRunnerHandshakeAndPrompt(t *testing.T) {
	rec := session.NewRecorder("fake")
	r, agent := newPipeRunner(t, rec)

	var messages []string
	r.SetCallbacks(Callbacks{
		OnAgentMessage: func(text string) { messages = append(messages, text) },
	})

	go func() {
		agent.serveHandshake("sess-1")
		prompt := agent.read()
		if prompt.Method != acp.MethodSessionPrompt {
			t.Errorf("expected prompt, got %q", prompt.Method)
		}
		agent.update("sess-1", acp.SessionUpdate{
			Type:    acp.UpdateAgentMessageChunk,
			Content: &acp.ContentBlock{Type: "text", Text: "hello"},
		})
		agent.respond(prompt.ID, acp.PromptResponse{StopReason: acp.StopEndTurn})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if r.SessionID() != "sess-1" {
		t.Errorf("session id %q", r.SessionID())
	}

	stop, err := r.Prompt(ctx, "do the thing", nil)
	if err != nil {
		t.Fatalf("Prompt: %v", err)
	}
	if stop != acp.StopEndTurn {
		t.Errorf("stop reason %q", stop)
	}

	cap := rec.Capture("sess-1")
	if cap == nil || len(cap.Notifications) != 1 {
		t.Fatalf("capture %+v", cap)
	}
	if len(messages) != 1 || messages[0] != "hello" {
		t.Errorf("callback saw %v", messages)
	}
}

func TestRunnerAnswersPermissionWithPolicy(t *testing.T) {
	r, agent := newPipeRunner(t, nil)
	r.Policy = FirstAllow

	go func() {
		agent.serveHandshake("sess-2")
		prompt := agent.read()

		raw, _ := json.Marshal(acp.RequestPermissionRequest{
			SessionID: "sess-2",
			ToolCall:  acp.ToolCallRef{ToolCallID: "tc1", Kind: acp.ToolKindExecute},
			Options: []acp.PermissionOption{
				{OptionID: "reject", Name: "Reject", Kind: acp.PermissionRejectOnce},
				{OptionID: "allow", Name: "Allow", Kind: acp.PermissionAllowOnce},
			},
		})
		agent.write(rpcMsg{ID: 77, Method: acp.MethodRequestPermission, Params: raw})

		perm := agent.read()
		var resp acp.RequestPermissionResponse
		if err := json.Unmarshal(perm.Result, &resp); err != nil {
			t.Errorf("decode permission response: %v", err)
		}
		if resp.Outcome.OptionID != "allow" {
			t.Errorf("policy picked %+v, want the allow_once option", resp.Outcome)
		}

		agent.respond(prompt.ID, acp.PromptResponse{StopReason: acp.StopEndTurn})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := r.Prompt(ctx, "run it", nil); err != nil {
		t.Fatalf("Prompt: %v", err)
	}
}

func TestRunnerCancelNotifies(t *testing.T) {
	r, agent := newPipeRunner(t, nil)

	got := make(chan string, 1)
	go func() {
		agent.serveHandshake("sess-3")
		msg := agent.read()
		got <- msg.Method
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	select {
	case method := <-got:
		if method != acp.MethodSessionCancel {
			t.Errorf("agent saw %q", method)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancel notification never arrived")
	}
}

func TestCancelDuringInFlightTurn(t *testing.T) {
	r, agent := newPipeRunner(t, nil)

	agentDone := make(chan struct{})
	turnStarted := make(chan struct{})
	go func() {
		defer close(agentDone)
		agent.serveHandshake("sess-4")
		prompt := agent.read()
		close(turnStarted)

		// The turn stays open until a cancel arrives.
		msg := agent.read()
		if msg.Method != acp.MethodSessionCancel {
			t.Errorf("agent saw %q while the turn was in flight, want %q", msg.Method, acp.MethodSessionCancel)
		}
		agent.respond(prompt.ID, acp.PromptResponse{StopReason: acp.StopCancelled})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	stopCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		stop, err := r.Prompt(ctx, "long running work", nil)
		stopCh <- stop
		errCh <- err
	}()

	// Cancel only once the prompt is on the wire, so it lands mid-turn.
	select {
	case <-turnStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("prompt never reached the agent")
	}
	if err := r.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	select {
	case stop := <-stopCh:
		if err := <-errCh; err != nil {
			t.Fatalf("Prompt: %v", err)
		}
		if stop != acp.StopCancelled {
			t.Errorf("stop reason %q, want %q", stop, acp.StopCancelled)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled turn never resolved")
	}
	<-agentDone
}

func TestExpandInclude(t *testing.T) {
	dir := t.TempDir()
	os.MkdirAll(filepath.Join(dir, "pkg"), 0755)
	os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main"), 0644)
	os.WriteFile(filepath.Join(dir, "pkg", "util.go"), []byte("package pkg"), 0644)
	os.WriteFile(filepath.Join(dir, "README.md"), []byte("# hi"), 0644)

	r := New(config.Agent{}, dir, nil)
	blocks, err := r.expandInclude("**/*.go")
	if err != nil {
		t.Fatal(err)
	}
	if len(blocks) != 2 {
		t.Fatalf("matched %d blocks, want 2: %+v", len(blocks), blocks)
	}
	for _, b := range blocks {
		if b.Type != "resource_link" {
			t.Errorf("block type %q", b.Type)
		}
		if b.URI == "" || b.URI[:7] != "file://" {
			t.Errorf("uri %q", b.URI)
		}
	}
}

func TestPolicies(t *testing.T) {
	req := &acp.RequestPermissionRequest{Options: []acp.PermissionOption{
		{OptionID: "ra", Kind: acp.PermissionRejectAlways},
		{OptionID: "aa", Kind: acp.PermissionAllowAlways},
		{OptionID: "ro", Kind: acp.PermissionRejectOnce},
	}}

	if got := FirstAllow(req); got.OptionID != "aa" {
		t.Errorf("FirstAllow picked %+v", got)
	}
	if got := AlwaysReject(req); got.OptionID != "ro" {
		t.Errorf("AlwaysReject picked %+v", got)
	}

	empty := &acp.RequestPermissionRequest{}
	if got := FirstAllow(empty); got.Outcome != "cancelled" {
		t.Errorf("FirstAllow on empty options: %+v", got)
	}
	if got := AlwaysReject(empty); got.Outcome != "cancelled" {
		t.Errorf("AlwaysReject on empty options: %+v", got)
	}
}
