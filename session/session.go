// Package session records the streamed output of agent sessions and
// persists the recordings as JSON captures under the .acpcap dotdir.
package session

import (
	"encoding/json"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/m4xw311/acpcap/acp"
	"github.com/m4xw311/acpcap/errors"
)

const capturesDir = ".acpcap/captures"

// Capture is one recorded session: its id, an optional human title and
// the full ordered stream of update notifications received for it.
type Capture struct {
	Name          string                    `json:"name"`
	SessionID     string                    `json:"sessionId"`
	Title         string                    `json:"title,omitempty"`
	Agent         string                    `json:"agent,omitempty"`
	CreatedAt     time.Time                 `json:"createdAt"`
	Notifications []acp.SessionNotification `json:"notifications"`
}

// Recorder accumulates session/update notifications per session id. It
// is safe for concurrent use; the connection's notification dispatch
// and a snapshot reader may run at the same time.
type Recorder struct {
	mu       sync.Mutex
	order    []string
	sessions map[string]*Capture
	agent    string
}

// NewRecorder creates an empty recorder. agent labels which agent
// command produced the captures.
func NewRecorder(agent string) *Recorder {
	return &Recorder{
		sessions: make(map[string]*Capture),
		agent:    agent,
	}
}

// Handle appends one notification to its session's capture, creating
// the capture on first sight of the session id. Pass it to
// acp.Client.OnSessionUpdate.
func (r *Recorder) Handle(n acp.SessionNotification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.sessions[n.SessionID]
	if !ok {
		c = &Capture{
			Name:      NewCaptureName(),
			SessionID: n.SessionID,
			Agent:     r.agent,
			CreatedAt: time.Now().UTC(),
		}
		r.sessions[n.SessionID] = c
		r.order = append(r.order, n.SessionID)
	}
	c.Notifications = append(c.Notifications, n)
}

// SetTitle attaches a title to a session's capture. Unknown ids create
// an empty capture so a title set before the first update is not lost.
func (r *Recorder) SetTitle(sessionID, title string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.sessions[sessionID]
	if !ok {
		c = &Capture{
			Name:      NewCaptureName(),
			SessionID: sessionID,
			Agent:     r.agent,
			CreatedAt: time.Now().UTC(),
		}
		r.sessions[sessionID] = c
		r.order = append(r.order, sessionID)
	}
	c.Title = title
}

// Capture returns a copy of the capture for a session id, or nil if the
// session was never seen.
func (r *Recorder) Capture(sessionID string) *Capture {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.sessions[sessionID]
	if !ok {
		return nil
	}
	return c.clone()
}

// Captures returns copies of all captures in first-seen order.
func (r *Recorder) Captures() []*Capture {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Capture, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.sessions[id].clone())
	}
	return out
}

func (c *Capture) clone() *Capture {
	dup := *c
	dup.Notifications = make([]acp.SessionNotification, len(c.Notifications))
	copy(dup.Notifications, c.Notifications)
	return &dup
}

var entropy = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)

// NewCaptureName generates a sortable unique capture name.
func NewCaptureName() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

func capturePath(name string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrapf(err, "failed to get user home directory")
	}
	return filepath.Join(homeDir, capturesDir, name+".json"), nil
}

// Save writes the capture to ~/.acpcap/captures/<name>.json, creating
// the directory if needed.
func (c *Capture) Save() error {
	path, err := capturePath(c.Name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrapf(err, "failed to create captures directory")
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "failed to serialize capture %s", c.Name)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, "failed to write capture %s", c.Name)
	}
	return nil
}

// Load reads a previously saved capture by name.
func Load(name string) (*Capture, error) {
	path, err := capturePath(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read capture %s", name)
	}
	var c Capture
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrapf(err, "failed to parse capture %s", name)
	}
	if c.Name == "" {
		c.Name = name
	}
	return &c, nil
}

// List returns the names of all saved captures, sorted. An absent
// captures directory yields an empty list.
func List() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get user home directory")
	}
	entries, err := os.ReadDir(filepath.Join(homeDir, capturesDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to list captures")
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		names = append(names, e.Name()[:len(e.Name())-len(".json")])
	}
	sort.Strings(names)
	return names, nil
}
