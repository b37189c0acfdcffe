// Package digest reduces recorded session streams to bounded text
// summaries and serializes sets of summaries into an XML context block
// suitable for prepending to a later prompt.
package digest

import (
	"strings"

	"github.com/m4xw311/acpcap/acp"
)

// MaxSummaryChars caps the raw summary length, measured in runes.
const MaxSummaryChars = 2000

// TruncationSuffix is appended when the raw summary exceeds the cap.
const TruncationSuffix = "... (truncated)"

// CompressedSession is the bounded digest of one session. Immutable
// after creation.
type CompressedSession struct {
	SessionID string
	Title     string
	Summary   string
}

// Options tune compression. The zero value applies the defaults.
type Options struct {
	// KeepMessagePrefix repeats the "Message: " prefix on every message
	// chunk instead of flowing consecutive fragments into one line.
	KeepMessagePrefix bool
}

// Compress walks the notifications in order and builds a summary line
// per recognized update variant. Unrecognized variants are skipped.
// Title is supplied by the caller; it is never derived from the stream.
func Compress(sessionID, title string, notes []acp.SessionNotification, opts Options) CompressedSession {
	var lines []string
	prevMessage := "" // variant of the preceding chunk when it was a message

	for _, n := range notes {
		u := n.Update
		switch u.Type {
		case acp.UpdateAgentThoughtChunk:
			lines = append(lines, "Thinking: "+u.Text())
			prevMessage = ""
		case acp.UpdateAgentMessageChunk, acp.UpdateUserMessageChunk:
			// Streamed fragments of one message arrive as consecutive
			// chunks; flow them into the previous line so the summary
			// reads as a paragraph rather than one line per fragment.
			if !opts.KeepMessagePrefix && prevMessage == u.Type && len(lines) > 0 {
				lines[len(lines)-1] += u.Text()
			} else {
				lines = append(lines, "Message: "+u.Text())
			}
			prevMessage = u.Type
		case acp.UpdateToolCall:
			kind := u.Kind
			if kind == "" {
				kind = acp.ToolKindOther
			}
			lines = append(lines, "Tool ["+kind+"]")
			prevMessage = ""
		default:
			prevMessage = ""
		}
	}

	return CompressedSession{
		SessionID: sessionID,
		Title:     title,
		Summary:   truncate(strings.Join(lines, "\n")),
	}
}

// truncate caps the summary at MaxSummaryChars runes, marking the cut.
// Already-short summaries pass through verbatim.
func truncate(raw string) string {
	runes := []rune(raw)
	if len(runes) <= MaxSummaryChars {
		return raw
	}
	return string(runes[:MaxSummaryChars]) + TruncationSuffix
}
