package acp

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rs/zerolog"
)

// UpdateHandler receives session/update notifications in arrival order.
type UpdateHandler func(n SessionNotification)

// PermissionHandler answers a session/request_permission call. It may
// block on user input; other traffic keeps flowing while it decides.
// When ctx is done (connection teardown) it should return a cancelled
// outcome promptly.
type PermissionHandler func(ctx context.Context, req *RequestPermissionRequest) (*RequestPermissionResponse, error)

// Client is the typed client side of the protocol over a Conn. It owns
// the outgoing call surface (initialize, session lifecycle, prompting)
// and routes the agent-initiated traffic to the registered handlers.
type Client struct {
	conn *Conn
}

// NewClient builds a client over the agent's stdout/stdin pipe pair.
// Register handlers with OnSessionUpdate and OnRequestPermission before
// calling Start.
func NewClient(r io.Reader, w io.Writer) *Client {
	c := &Client{conn: NewConn(r, w)}
	// Permission requests must get a response even before a handler is
	// registered, otherwise the agent's turn hangs forever.
	c.OnRequestPermission(func(ctx context.Context, req *RequestPermissionRequest) (*RequestPermissionResponse, error) {
		return &RequestPermissionResponse{Outcome: CancelledOutcome()}, nil
	})
	return c
}

// SetLogger installs a trace logger on the underlying connection.
func (c *Client) SetLogger(log zerolog.Logger) { c.conn.SetLogger(log) }

// OnSessionUpdate registers the sink for session/update notifications.
func (c *Client) OnSessionUpdate(h UpdateHandler) {
	c.conn.HandleNotify(MethodSessionUpdate, func(params json.RawMessage) {
		var n SessionNotification
		if err := json.Unmarshal(params, &n); err != nil {
			return
		}
		h(n)
	})
}

// OnRequestPermission registers the handler for permission requests.
func (c *Client) OnRequestPermission(h PermissionHandler) {
	c.conn.HandleCall(MethodRequestPermission, func(ctx context.Context, params json.RawMessage) (any, error) {
		var req RequestPermissionRequest
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, err
		}
		return h(ctx, &req)
	})
}

// Start begins reading from the agent.
func (c *Client) Start() { c.conn.Start() }

// Close tears down the connection; see Conn.Close.
func (c *Client) Close() error { return c.conn.Close() }

// Done is closed when the connection is torn down.
func (c *Client) Done() <-chan struct{} { return c.conn.Done() }

// Err reports the terminal read error; see Conn.Err.
func (c *Client) Err() error { return c.conn.Err() }

// Initialize negotiates protocol version and capabilities. It must be
// the first call on a fresh connection.
func (c *Client) Initialize(ctx context.Context, req *InitializeRequest) (*InitializeResponse, error) {
	var resp InitializeResponse
	if err := c.conn.Call(ctx, MethodInitialize, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// NewSession creates a session scoped to a working directory.
func (c *Client) NewSession(ctx context.Context, req *NewSessionRequest) (*NewSessionResponse, error) {
	if req.MCPServers == nil {
		req.MCPServers = []MCPServer{}
	}
	var resp NewSessionResponse
	if err := c.conn.Call(ctx, MethodSessionNew, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Prompt submits one user turn and blocks until the agent finishes it.
// Streaming output for the turn arrives through the update handler while
// Prompt waits.
func (c *Client) Prompt(ctx context.Context, sessionID string, blocks []ContentBlock) (*PromptResponse, error) {
	var resp PromptResponse
	req := &PromptRequest{SessionID: sessionID, Prompt: blocks}
	if err := c.conn.Call(ctx, MethodSessionPrompt, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Cancel asks the agent to stop the ongoing turn. The turn's prompt call
// still resolves normally, with a cancelled stop reason.
func (c *Client) Cancel(sessionID string) error {
	return c.conn.Notify(MethodSessionCancel, &CancelNotification{SessionID: sessionID})
}
