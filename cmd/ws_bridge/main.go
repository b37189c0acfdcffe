// ws_bridge exposes an agent session over a WebSocket: each connection
// spawns its own agent process, browser messages become prompt turns,
// and streamed session updates go back as JSON events. When a turn
// ends the bridge also sends the compressed digest of the session so
// far.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/m4xw311/acpcap/config"
	"github.com/m4xw311/acpcap/digest"
	"github.com/m4xw311/acpcap/runner"
	"github.com/m4xw311/acpcap/session"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// event is one message from bridge to browser.
type event struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	Kind       string `json:"kind,omitempty"`
	Title      string `json:"title,omitempty"`
	StopReason string `json:"stopReason,omitempty"`
	Digest     string `json:"digest,omitempty"`
	Error      string `json:"error,omitempty"`
}

// clientMsg is one message from browser to bridge.
type clientMsg struct {
	Type   string `json:"type"` // "prompt" or "cancel"
	Prompt string `json:"prompt,omitempty"`
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: ws_bridge <agent-command> [args...]")
		os.Exit(1)
	}
	agent := config.Agent{Name: "ws", Command: os.Args[1], Args: os.Args[2:]}

	http.HandleFunc("/ws", handleWS(agent))

	fmt.Println("WebSocket server running on ws://localhost:8080/ws")
	log.Fatal(http.ListenAndServe(":8080", nil))
}

func handleWS(agent config.Agent) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("Upgrade error:", err)
			return
		}
		defer conn.Close()

		// Websocket writes come from the update callbacks and the turn
		// loop concurrently.
		var writeMu sync.Mutex
		send := func(e event) {
			writeMu.Lock()
			defer writeMu.Unlock()
			if err := conn.WriteJSON(e); err != nil {
				log.Println("WS write error:", err)
			}
		}

		wd, err := os.Getwd()
		if err != nil {
			send(event{Type: "error", Error: err.Error()})
			return
		}

		rec := session.NewRecorder(agent.Name)
		run := runner.New(agent, wd, rec)
		run.SetCallbacks(runner.Callbacks{
			OnAgentMessage: func(text string) { send(event{Type: "message", Text: text}) },
			OnAgentThought: func(text string) { send(event{Type: "thought", Text: text}) },
			OnToolCall:     func(title, kind string) { send(event{Type: "tool", Title: title, Kind: kind}) },
		})

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		if err := run.Start(ctx); err != nil {
			send(event{Type: "error", Error: err.Error()})
			return
		}
		defer run.Close()
		send(event{Type: "ready", Text: run.SessionID()})

		// Turns run on their own goroutine so the read loop keeps
		// servicing cancel messages while a prompt is in flight.
		var turnMu sync.Mutex
		turnActive := false

		for {
			var msg clientMsg
			if err := conn.ReadJSON(&msg); err != nil {
				log.Println("WS read error:", err)
				return
			}
			switch msg.Type {
			case "cancel":
				if err := run.Cancel(); err != nil {
					send(event{Type: "error", Error: err.Error()})
				}
			case "prompt":
				turnMu.Lock()
				if turnActive {
					turnMu.Unlock()
					send(event{Type: "error", Error: "a turn is already in flight"})
					continue
				}
				turnActive = true
				turnMu.Unlock()

				go func(prompt string) {
					defer func() {
						turnMu.Lock()
						turnActive = false
						turnMu.Unlock()
					}()
					stop, err := run.Prompt(ctx, prompt, nil)
					if err != nil {
						send(event{Type: "error", Error: err.Error()})
						return
					}
					send(event{Type: "turn_end", StopReason: stop, Digest: sessionDigest(rec, run.SessionID())})
				}(msg.Prompt)
			default:
				send(event{Type: "error", Error: "unknown message type: " + msg.Type})
			}
		}
	}
}

func sessionDigest(rec *session.Recorder, sessionID string) string {
	cap := rec.Capture(sessionID)
	if cap == nil {
		return ""
	}
	d := digest.Compress(cap.SessionID, cap.Title, cap.Notifications, digest.Options{})
	return digest.ToContextXML([]digest.CompressedSession{d})
}
