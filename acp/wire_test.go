package acp

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestDecoderReadsMessages(t *testing.T) {
	input := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}` + "\n" +
		"\n" +
		`{"jsonrpc":"2.0","method":"session/update","params":{}}` + "\r\n"
	d := newDecoder(strings.NewReader(input))

	msg, err := d.next()
	if err != nil {
		t.Fatalf("first message: %v", err)
	}
	if msg.Method != "initialize" || msg.ID == nil {
		t.Errorf("got method=%q id=%v, want a call to initialize", msg.Method, msg.ID)
	}

	msg, err = d.next()
	if err != nil {
		t.Fatalf("second message: %v", err)
	}
	if msg.Method != "session/update" || msg.ID != nil {
		t.Errorf("got method=%q id=%v, want a notification", msg.Method, msg.ID)
	}

	if _, err := d.next(); err != io.EOF {
		t.Errorf("after last line: got %v, want io.EOF", err)
	}
}

func TestDecoderUnterminatedFinalLine(t *testing.T) {
	d := newDecoder(strings.NewReader(`{"jsonrpc":"2.0","id":7}`))
	msg, err := d.next()
	if err != nil {
		t.Fatalf("unterminated line: %v", err)
	}
	if idKey(msg.ID) != "7" {
		t.Errorf("got id %v, want 7", msg.ID)
	}
}

func TestDecoderFramingError(t *testing.T) {
	d := newDecoder(strings.NewReader("this is not json\n"))
	_, err := d.next()
	var fe *FramingError
	if !errors.As(err, &fe) {
		t.Fatalf("got %v, want *FramingError", err)
	}
	if err == io.EOF {
		t.Error("framing error must not be io.EOF")
	}
	if string(fe.Line) != "this is not json" {
		t.Errorf("got line %q", fe.Line)
	}
}

func TestEncoderTerminatesLines(t *testing.T) {
	var buf bytes.Buffer
	e := newEncoder(&buf)
	if err := e.encode(&message{JSONRPC: "2.0", Method: "session/cancel"}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.HasSuffix(out, "\n") {
		t.Errorf("output %q lacks trailing newline", out)
	}
	if strings.Count(out, "\n") != 1 {
		t.Errorf("output %q should be a single line", out)
	}
	var msg message
	if err := json.Unmarshal([]byte(out), &msg); err != nil {
		t.Errorf("output is not valid JSON: %v", err)
	}
}

func TestIDKeyCanonicalForms(t *testing.T) {
	// Number and string forms of the same id must correlate the same way
	// a JSON round trip would produce them.
	if idKey(float64(42)) != "42" {
		t.Errorf("float64: got %q", idKey(float64(42)))
	}
	if idKey(int64(42)) != "42" {
		t.Errorf("int64: got %q", idKey(int64(42)))
	}
	if idKey("42") != "42" {
		t.Errorf("string: got %q", idKey("42"))
	}
}
