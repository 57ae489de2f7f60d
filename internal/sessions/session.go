// Package sessions tracks per-conversation state: history, context, and
// the authenticated principal behind each conversation.
package sessions

import (
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/kessler-labs/switchboard/internal/channel"
)

// State is the lifecycle state of a Session.
type State string

const (
	StateActive  State = "active"
	StatePaused  State = "paused"
	StateExpired State = "expired"
	StateClosed  State = "closed"
)

// Principal is the authenticated actor behind a session.
type Principal struct {
	Identity        channel.ChannelIdentity
	TenantID        string
	Roles           map[string]struct{}
	Permissions     map[string]struct{}
	AuthenticatedAt time.Time
	ExpiresAt       *time.Time
}

// HasPermission reports whether p is granted, honoring the "*" wildcard.
func (pr Principal) HasPermission(p string) bool {
	if _, ok := pr.Permissions["*"]; ok {
		return true
	}
	_, ok := pr.Permissions[p]
	return ok
}

// Message roles a SessionMessage can carry.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// ToolCall is one tool invocation an assistant turn requested mid-generation.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw, provider-specific encoding (commonly JSON)
}

// ToolResult is the outcome of one ToolCall, carried by the tool-role
// SessionMessage that answers it.
type ToolResult struct {
	ToolCallID string
	Content    string
	Error      string // non-empty if the tool invocation failed
}

// SessionMessage is a single turn in a session's history. EventID is set
// on user messages to the ChannelEvent it was derived from; ToolCalls is
// set on assistant messages that requested tool use; ToolResult is set on
// tool messages answering one of those calls.
type SessionMessage struct {
	Role       string
	Content    string
	Ts         time.Time
	EventID    string
	ToolCalls  []ToolCall
	ToolResult *ToolResult
}

// ToSchemaMessage converts a SessionMessage to an Eino schema.Message.
func (m SessionMessage) ToSchemaMessage() *schema.Message {
	msg := &schema.Message{
		Role:    schema.RoleType(m.Role),
		Content: m.Content,
	}
	for _, tc := range m.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, schema.ToolCall{
			ID: tc.ID,
			Function: schema.FunctionCall{
				Name:      tc.Name,
				Arguments: tc.Arguments,
			},
		})
	}
	if m.ToolResult != nil {
		msg.ToolCallID = m.ToolResult.ToolCallID
	}
	return msg
}

// NewMessageFromSchema converts an Eino schema.Message to a SessionMessage.
func NewMessageFromSchema(msg *schema.Message) SessionMessage {
	sm := SessionMessage{
		Role:    string(msg.Role),
		Content: msg.Content,
		Ts:      time.Now(),
	}
	for _, tc := range msg.ToolCalls {
		sm.ToolCalls = append(sm.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	if msg.Role == schema.Tool && msg.ToolCallID != "" {
		sm.ToolResult = &ToolResult{ToolCallID: msg.ToolCallID, Content: msg.Content}
	}
	return sm
}

// Session holds the durable state of one conversation.
type Session struct {
	ID             string
	Conversation   channel.ConversationKey
	Principal      Principal
	State          State
	CreatedAt      time.Time
	LastActivityAt time.Time
	ExpiresAt      *time.Time
	Context        map[string]any
	History        []SessionMessage // oldest first
}

// IsActive reports whether the session is usable: state active and,
// if ExpiresAt is set, not yet elapsed.
func (s *Session) IsActive(now time.Time) bool {
	if s.State != StateActive {
		return false
	}
	return s.ExpiresAt == nil || now.Before(*s.ExpiresAt)
}

// IsExpired reports whether ExpiresAt has elapsed regardless of State.
func (s *Session) IsExpired(now time.Time) bool {
	return s.ExpiresAt != nil && !now.Before(*s.ExpiresAt)
}

// trimHistory drops the oldest entries so at most maxSize remain. This is
// enforced at the store level, not only by callers going through the
// manager's addMessage, so a direct mutation can never leave a session
// over budget.
func trimHistory(history []SessionMessage, maxSize int) []SessionMessage {
	if maxSize <= 0 || len(history) <= maxSize {
		return history
	}
	drop := len(history) - maxSize
	trimmed := make([]SessionMessage, maxSize)
	copy(trimmed, history[drop:])
	return trimmed
}

// clone returns a deep-enough copy for copy-on-write mutation: History,
// Context and the Principal's set fields get fresh backing storage so a
// caller cannot observe a later in-place mutation through an old handle.
func (s *Session) clone() *Session {
	cp := *s
	if s.ExpiresAt != nil {
		t := *s.ExpiresAt
		cp.ExpiresAt = &t
	}
	if s.Context != nil {
		cp.Context = make(map[string]any, len(s.Context))
		for k, v := range s.Context {
			cp.Context[k] = v
		}
	}
	cp.History = append([]SessionMessage(nil), s.History...)
	cp.Principal = s.Principal.clone()
	return &cp
}

func (pr Principal) clone() Principal {
	cp := pr
	if pr.ExpiresAt != nil {
		t := *pr.ExpiresAt
		cp.ExpiresAt = &t
	}
	cp.Roles = cloneSet(pr.Roles)
	cp.Permissions = cloneSet(pr.Permissions)
	return cp
}

func cloneSet(s map[string]struct{}) map[string]struct{} {
	if s == nil {
		return nil
	}
	out := make(map[string]struct{}, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}
