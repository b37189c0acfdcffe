package acp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// ErrConnClosed is returned from Call when the connection is torn down
// (process exit, transport EOF or explicit Close) while the call is
// still waiting for its response.
var ErrConnClosed = stderrors.New("acp: connection closed")

// RemoteError is an error payload reported by the agent in a response.
// It only affects the call it answers; other in-flight calls continue.
type RemoteError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("agent error %d: %s", e.Code, e.Message)
}

// JSON-RPC error codes used for incoming calls, matching the agent side.
const (
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// CallHandler serves an incoming call from the agent. The returned value
// is marshalled into the result of the response; a non-nil error becomes
// an error response instead.
type CallHandler func(ctx context.Context, params json.RawMessage) (any, error)

// NotifyHandler serves an incoming notification. Handlers run inline on
// the read loop so notification order is preserved; they must not block.
type NotifyHandler func(params json.RawMessage)

// Conn multiplexes calls, responses and notifications in both directions
// over one newline-delimited JSON-RPC byte stream.
//
// Outgoing calls are correlated to their responses by id; responses may
// arrive in any order. Incoming calls run on their own goroutine so a
// slow handler (a permission prompt waiting on the user) never stalls
// delivery of other messages. Incoming notifications dispatch inline, in
// arrival order.
type Conn struct {
	enc *encoder
	dec *decoder
	log zerolog.Logger

	nextID atomic.Int64

	mu       sync.Mutex
	pending  map[string]chan *message
	calls    map[string]CallHandler
	notes    map[string]NotifyHandler
	closed   bool
	closeErr error

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewConn wraps a read/write stream pair, typically the stdout and stdin
// pipes of a child agent process. Register handlers, then call Start.
func NewConn(r io.Reader, w io.Writer) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		enc:     newEncoder(w),
		dec:     newDecoder(r),
		log:     zerolog.Nop(),
		pending: make(map[string]chan *message),
		calls:   make(map[string]CallHandler),
		notes:   make(map[string]NotifyHandler),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// SetLogger installs a trace logger. Must be called before Start.
func (c *Conn) SetLogger(log zerolog.Logger) { c.log = log }

// HandleCall registers a handler for an incoming call method. Incoming
// calls always get a response: with no handler registered the connection
// answers with a "Method not found" error response.
func (c *Conn) HandleCall(method string, h CallHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[method] = h
}

// HandleNotify registers a handler for an incoming notification method.
// Notifications with no registered handler are dropped silently.
func (c *Conn) HandleNotify(method string, h NotifyHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notes[method] = h
}

// Start launches the read loop. Handlers registered after Start may miss
// messages that already arrived.
func (c *Conn) Start() {
	go c.readLoop()
}

// Call writes a call message and suspends the caller until the matching
// response arrives, ctx is done, or the connection closes. On an error
// response it returns the *RemoteError; on teardown it returns
// ErrConnClosed. Concurrent calls are tracked independently.
func (c *Conn) Call(ctx context.Context, method string, params, result any) error {
	raw, err := marshalParams(params)
	if err != nil {
		return err
	}

	id := c.nextID.Add(1)
	key := strconv.FormatInt(id, 10)
	ch := make(chan *message, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrConnClosed
	}
	c.pending[key] = ch
	c.mu.Unlock()

	c.log.Debug().Str("method", method).Int64("id", id).Msg("call")
	if err := c.enc.encode(&message{JSONRPC: "2.0", ID: id, Method: method, Params: raw}); err != nil {
		c.forget(key)
		return fmt.Errorf("acp: write %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		c.forget(key)
		return ctx.Err()
	case <-c.done:
		return ErrConnClosed
	case resp := <-ch:
		if resp.Error != nil {
			return resp.Error
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("acp: decode %s result: %w", method, err)
			}
		}
		return nil
	}
}

// Notify writes a notification; there is no correlation and no result.
func (c *Conn) Notify(method string, params any) error {
	raw, err := marshalParams(params)
	if err != nil {
		return err
	}
	c.log.Debug().Str("method", method).Msg("notify")
	return c.enc.encode(&message{JSONRPC: "2.0", Method: method, Params: raw})
}

// Close tears the connection down: every pending call fails with
// ErrConnClosed and incoming dispatch stops. Close is idempotent. The
// owner of the underlying streams must still close them (and kill the
// child process) to unblock the read loop.
func (c *Conn) Close() error {
	c.closeWith(nil)
	return nil
}

// Err reports the terminal read error after the connection is done:
// io.EOF for a clean end of stream, a *FramingError for a corrupt line,
// nil when closed locally.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeErr
}

// Done is closed when the connection is torn down.
func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) closeWith(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.closeErr = err
	c.pending = make(map[string]chan *message)
	c.mu.Unlock()

	c.cancel()
	close(c.done)
}

func (c *Conn) forget(key string) {
	c.mu.Lock()
	delete(c.pending, key)
	c.mu.Unlock()
}

func (c *Conn) readLoop() {
	for {
		msg, err := c.dec.next()
		if err != nil {
			if err == io.EOF {
				c.log.Debug().Msg("read loop: end of stream")
			} else {
				c.log.Error().Err(err).Msg("read loop: fatal read error")
			}
			c.closeWith(err)
			return
		}

		// Teardown check comes before dispatch: nothing read after
		// Close may reach a handler.
		select {
		case <-c.done:
			return
		default:
		}

		switch {
		case msg.Method != "" && msg.ID != nil:
			c.dispatchCall(msg)
		case msg.Method != "":
			c.dispatchNotify(msg)
		default:
			c.dispatchResponse(msg)
		}
	}
}

func (c *Conn) dispatchResponse(msg *message) {
	key := idKey(msg.ID)
	c.mu.Lock()
	ch, ok := c.pending[key]
	delete(c.pending, key)
	c.mu.Unlock()
	if !ok {
		// Protocol violation, but local to this message: the agent
		// answered an id we are not waiting on. Other calls survive.
		c.log.Warn().Str("id", key).Msg("response with no matching call")
		return
	}
	ch <- msg
}

func (c *Conn) dispatchCall(msg *message) {
	c.mu.Lock()
	h := c.calls[msg.Method]
	c.mu.Unlock()

	// Each incoming call runs independently so a slow handler does not
	// stall delivery of notifications or other calls.
	go func() {
		if h == nil {
			c.log.Warn().Str("method", msg.Method).Msg("incoming call: method not found")
			c.respondError(msg.ID, codeMethodNotFound, "Method not found", nil)
			return
		}
		result, err := h(c.ctx, msg.Params)
		if err != nil {
			c.respondError(msg.ID, codeInternalError, "Internal error", err.Error())
			return
		}
		raw, err := json.Marshal(result)
		if err != nil {
			c.respondError(msg.ID, codeInternalError, "Internal error", err.Error())
			return
		}
		if err := c.enc.encode(&message{JSONRPC: "2.0", ID: msg.ID, Result: raw}); err != nil {
			c.log.Error().Err(err).Str("method", msg.Method).Msg("write response")
		}
	}()
}

func (c *Conn) dispatchNotify(msg *message) {
	c.mu.Lock()
	h := c.notes[msg.Method]
	c.mu.Unlock()
	if h == nil {
		c.log.Debug().Str("method", msg.Method).Msg("notification dropped: no handler")
		return
	}
	h(msg.Params)
}

func (c *Conn) respondError(id any, code int, text string, data any) {
	err := c.enc.encode(&message{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &RemoteError{Code: code, Message: text, Data: data},
	})
	if err != nil {
		c.log.Error().Err(err).Msg("write error response")
	}
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("acp: cannot serialize params: %w", err)
	}
	return raw, nil
}

// idKey canonicalizes a message id for correlation. Agents may echo ids
// as JSON numbers (which decode as float64) or strings.
func idKey(id any) string {
	switch v := id.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(v, 10)
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
