// Package channel defines the ChannelPort contract every platform adapter
// must satisfy, and the platform-agnostic envelope types (ChannelEvent,
// ChannelResponse, ChannelIdentity, ConversationKey) the runtime passes
// through it. The wire encoding per platform is the adapter's concern;
// this package specifies only the data model and the contract.
package channel

import "time"

// ConversationKey uniquely addresses a conversation on a platform.
type ConversationKey struct {
	Platform string
	Tenant   string
	Room     string
	Thread   string // empty when the conversation has no thread
}

// ChannelIdentity identifies a user, bot, or system actor on a platform.
type ChannelIdentity struct {
	Platform    string
	ID          string
	DisplayName string
}

// EventKind classifies a ChannelEvent.
type EventKind string

const (
	KindMessage  EventKind = "message"
	KindCommand  EventKind = "command"
	KindButton   EventKind = "button"
	KindFile     EventKind = "file"
	KindReaction EventKind = "reaction"
	KindMention  EventKind = "mention"
	KindJoin     EventKind = "join"
	KindLeave    EventKind = "leave"
	KindWebhook  EventKind = "webhook"
	KindUnknown  EventKind = "unknown"
)

// ChannelEvent is the normalized inbound event every adapter emits.
// EventID is the idempotency key: adapters must supply a value stable
// across redelivery of the same underlying platform event.
type ChannelEvent struct {
	EventID      string
	Kind         EventKind
	Conversation ConversationKey
	Identity     ChannelIdentity
	Timestamp    time.Time
	Text         string         // present for message/command/mention kinds
	Payload      map[string]any // kind-specific data (button id, reaction emoji, file ref, ...)
}

// ResponseKind classifies a ChannelResponse's payload shape.
type ResponseKind string

const (
	ResponseText       ResponseKind = "text"
	ResponseRichBlocks ResponseKind = "rich_blocks"
	ResponseFile       ResponseKind = "file"
	ResponseUpdate     ResponseKind = "update"
	ResponseDelete     ResponseKind = "delete"
	ResponseEphemeral  ResponseKind = "ephemeral"
	ResponseReaction   ResponseKind = "reaction"
	ResponseTyping     ResponseKind = "typing"
)

// ChannelResponse is the normalized outbound response the runtime dispatches
// to the originating adapter.
type ChannelResponse struct {
	Conversation ConversationKey
	Kind         ResponseKind
	Text         string
	Blocks       []map[string]any // rich-message blocks, shape is adapter-defined
	ReplyToID    string           // message this responds to, if any
	TargetID     string           // message/reaction target for update/delete/reaction kinds
	Payload      map[string]any
}

// SendResult is the universal success/failure envelope adapter.Send must
// return; adapters never silently swallow a send error (Open Question #1).
type SendResult struct {
	Success      bool
	MessageID    string
	Error        error
	Timestamp    time.Time
	PlatformData map[string]any
}
