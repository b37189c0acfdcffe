package acp

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// message is one JSON-RPC 2.0 unit on the wire. A non-empty Method marks
// a call (ID present) or a notification (ID absent); otherwise the
// message is a response carrying Result or Error for an earlier call.
type message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RemoteError    `json:"error,omitempty"`
}

// FramingError reports a line that could not be decoded as a message.
// Once framing is broken there is no safe way to resynchronize, so the
// connection treats it as fatal. It is distinct from a clean end of
// stream, which surfaces as io.EOF.
type FramingError struct {
	Line []byte
	Err  error
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("acp: cannot decode frame %q: %v", e.Line, e.Err)
}

func (e *FramingError) Unwrap() error { return e.Err }

// decoder splits the incoming byte stream into newline-delimited JSON
// messages. Partial trailing lines are buffered until more bytes arrive.
type decoder struct {
	r *bufio.Reader
}

func newDecoder(r io.Reader) *decoder {
	return &decoder{r: bufio.NewReader(r)}
}

// next reads one message. It skips blank lines, returns io.EOF on a
// clean end of stream and *FramingError on an undecodable line.
func (d *decoder) next() (*message, error) {
	for {
		line, err := d.r.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return nil, err
		}
		line = trimLine(line)
		if len(line) == 0 {
			if err == io.EOF {
				return nil, io.EOF
			}
			continue
		}
		var msg message
		if uerr := json.Unmarshal(line, &msg); uerr != nil {
			return nil, &FramingError{Line: line, Err: uerr}
		}
		return &msg, nil
	}
}

func trimLine(line []byte) []byte {
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line
}

// encoder writes one message per newline-terminated line. Writes are
// serialized so concurrent calls and responses never interleave bytes.
type encoder struct {
	mu sync.Mutex
	w  *bufio.Writer
}

func newEncoder(w io.Writer) *encoder {
	return &encoder{w: bufio.NewWriter(w)}
}

func (e *encoder) encode(msg *message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("acp: cannot serialize message: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.w.Write(data); err != nil {
		return err
	}
	// The newline tells the peer the message is complete.
	if err := e.w.WriteByte('\n'); err != nil {
		return err
	}
	return e.w.Flush()
}
