package acp

import "encoding/json"

// Protocol version supported by this client. The version is only bumped
// for breaking protocol changes; everything else is negotiated through
// capabilities.
const ProtocolVersion = 1

// Methods the client calls on the agent.
const (
	MethodInitialize    = "initialize"
	MethodAuthenticate  = "authenticate"
	MethodSessionNew    = "session/new"
	MethodSessionLoad   = "session/load"
	MethodSessionPrompt = "session/prompt"
	MethodSessionCancel = "session/cancel"
)

// Methods the agent calls (or notifies) on the client.
const (
	MethodSessionUpdate     = "session/update"
	MethodRequestPermission = "session/request_permission"
)

// Session update variants carried in session/update notifications.
// Variants not listed here are passed through untouched; consumers skip
// what they do not recognize.
const (
	UpdateUserMessageChunk  = "user_message_chunk"
	UpdateAgentMessageChunk = "agent_message_chunk"
	UpdateAgentThoughtChunk = "agent_thought_chunk"
	UpdateToolCall          = "tool_call"
	UpdateToolCallUpdate    = "tool_call_update"
	UpdatePlan              = "plan"
)

// Tool kinds reported with tool_call updates.
const (
	ToolKindRead    = "read"
	ToolKindEdit    = "edit"
	ToolKindDelete  = "delete"
	ToolKindMove    = "move"
	ToolKindSearch  = "search"
	ToolKindExecute = "execute"
	ToolKindThink   = "think"
	ToolKindFetch   = "fetch"
	ToolKindOther   = "other"
)

// Permission option kinds presented with session/request_permission.
const (
	PermissionAllowOnce    = "allow_once"
	PermissionAllowAlways  = "allow_always"
	PermissionRejectOnce   = "reject_once"
	PermissionRejectAlways = "reject_always"
)

// Stop reasons returned from session/prompt.
const (
	StopEndTurn   = "end_turn"
	StopMaxTokens = "max_tokens"
	StopRefusal   = "refusal"
	StopCancelled = "cancelled"
)

// ContentBlock is one unit of prompt or streamed output content. Only the
// fields matching the Type are populated; text and resource_link are the
// baseline every agent must accept.
type ContentBlock struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	URI         string `json:"uri,omitempty"`
	Name        string `json:"name,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Size        *int64 `json:"size,omitempty"`
}

// TextBlock builds a plain text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: "text", Text: text}
}

// ResourceLinkBlock builds a resource_link content block pointing at uri.
func ResourceLinkBlock(name, uri string) ContentBlock {
	return ContentBlock{Type: "resource_link", Name: name, URI: uri}
}

// FileSystemCapability advertises which client file system methods the
// agent may call.
type FileSystemCapability struct {
	ReadTextFile  bool `json:"readTextFile,omitempty"`
	WriteTextFile bool `json:"writeTextFile,omitempty"`
}

// ClientCapabilities is advertised by the client during initialize.
type ClientCapabilities struct {
	Fs       *FileSystemCapability `json:"fs,omitempty"`
	Terminal bool                  `json:"terminal,omitempty"`
}

// PromptCapabilities lists content types beyond text and resource links
// the agent can accept in prompts.
type PromptCapabilities struct {
	Audio           bool `json:"audio,omitempty"`
	EmbeddedContext bool `json:"embeddedContext,omitempty"`
	Image           bool `json:"image,omitempty"`
}

// AgentCapabilities is returned by the agent from initialize.
type AgentCapabilities struct {
	LoadSession        bool                `json:"loadSession,omitempty"`
	PromptCapabilities *PromptCapabilities `json:"promptCapabilities,omitempty"`
}

// AuthMethod describes an authentication method offered by the agent.
type AuthMethod struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// InitializeRequest negotiates the protocol version and capability set.
type InitializeRequest struct {
	ProtocolVersion    int                 `json:"protocolVersion"`
	ClientCapabilities *ClientCapabilities `json:"clientCapabilities,omitempty"`
}

// InitializeResponse carries the agent's negotiated version and
// capabilities.
type InitializeResponse struct {
	ProtocolVersion   int                `json:"protocolVersion"`
	AgentCapabilities *AgentCapabilities `json:"agentCapabilities,omitempty"`
	AuthMethods       []AuthMethod       `json:"authMethods,omitempty"`
}

// EnvVariable is an environment variable to set when the agent launches
// an MCP server.
type EnvVariable struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// MCPServer configures one MCP server the agent should connect to for
// the session.
type MCPServer struct {
	Name    string        `json:"name"`
	Command string        `json:"command"`
	Args    []string      `json:"args,omitempty"`
	Env     []EnvVariable `json:"env,omitempty"`
}

// NewSessionRequest creates a fresh session scoped to a working
// directory. MCPServers may be empty but must be present on the wire.
type NewSessionRequest struct {
	Cwd        string      `json:"cwd"`
	MCPServers []MCPServer `json:"mcpServers"`
}

// NewSessionResponse returns the id for the created session.
type NewSessionResponse struct {
	SessionID string `json:"sessionId"`
}

// PromptRequest submits one user turn. The agent streams zero or more
// session/update notifications before the response resolves.
type PromptRequest struct {
	SessionID string         `json:"sessionId"`
	Prompt    []ContentBlock `json:"prompt"`
}

// PromptResponse resolves when the turn is over; no further updates for
// the turn arrive after it.
type PromptResponse struct {
	StopReason string `json:"stopReason"`
}

// CancelNotification asks the agent to stop the ongoing turn.
type CancelNotification struct {
	SessionID string `json:"sessionId"`
}

// PlanEntry is one task in an agent-reported execution plan.
type PlanEntry struct {
	Content  string `json:"content"`
	Priority string `json:"priority,omitempty"`
	Status   string `json:"status,omitempty"`
}

// SessionUpdate is the tagged payload of a session/update notification.
// One flat struct covers all variants; which fields are meaningful
// depends on Type, and unknown variants keep their Type so consumers can
// skip them.
type SessionUpdate struct {
	Type       string          `json:"sessionUpdate"`
	Content    *ContentBlock   `json:"content,omitempty"`
	ToolCallID string          `json:"toolCallId,omitempty"`
	Title      string          `json:"title,omitempty"`
	Kind       string          `json:"kind,omitempty"`
	Status     string          `json:"status,omitempty"`
	RawInput   json.RawMessage `json:"rawInput,omitempty"`
	RawOutput  json.RawMessage `json:"rawOutput,omitempty"`
	Entries    []PlanEntry     `json:"entries,omitempty"`
}

// Text returns the content text of a chunk update, or "" when the update
// carries no text content.
func (u *SessionUpdate) Text() string {
	if u.Content == nil {
		return ""
	}
	return u.Content.Text
}

// SessionNotification is the parameter payload of session/update.
type SessionNotification struct {
	SessionID string        `json:"sessionId"`
	Update    SessionUpdate `json:"update"`
}

// PermissionOption is one labeled choice in a permission request.
type PermissionOption struct {
	OptionID string `json:"optionId"`
	Name     string `json:"name"`
	Kind     string `json:"kind"`
}

// ToolCallRef describes the tool call a permission request is about.
type ToolCallRef struct {
	ToolCallID string          `json:"toolCallId"`
	Title      string          `json:"title,omitempty"`
	Kind       string          `json:"kind,omitempty"`
	RawInput   json.RawMessage `json:"rawInput,omitempty"`
}

// RequestPermissionRequest is sent by the agent mid-call when it needs
// authorization before running a tool. The agent's call does not proceed
// until the client responds.
type RequestPermissionRequest struct {
	SessionID string             `json:"sessionId"`
	ToolCall  ToolCallRef        `json:"toolCall"`
	Options   []PermissionOption `json:"options"`
}

// RequestPermissionOutcome is either selected (with the chosen option id)
// or cancelled.
type RequestPermissionOutcome struct {
	Outcome  string `json:"outcome"`
	OptionID string `json:"optionId,omitempty"`
}

// SelectedOutcome reports that the user picked the given option.
func SelectedOutcome(optionID string) RequestPermissionOutcome {
	return RequestPermissionOutcome{Outcome: "selected", OptionID: optionID}
}

// CancelledOutcome reports that the turn was cancelled before a choice
// was made.
func CancelledOutcome() RequestPermissionOutcome {
	return RequestPermissionOutcome{Outcome: "cancelled"}
}

// RequestPermissionResponse answers a permission request.
type RequestPermissionResponse struct {
	Outcome RequestPermissionOutcome `json:"outcome"`
}
