package channel

import (
	"context"

	"github.com/kessler-labs/switchboard/internal/errs"
)

// ConnectionState tracks an adapter's link health with its platform.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
	StateFailed       ConnectionState = "failed"
)

// Capabilities declares what an adapter's platform supports so the runtime
// and upstream processors can degrade gracefully instead of attempting an
// operation doomed to fail with errs.Unsupported.
type Capabilities struct {
	Text         bool
	RichMessages bool
	Attachments  bool
	Reactions    bool
	Threads      bool
	Editing      bool
	Deleting     bool
	Typing       bool
	Files        bool
	Buttons      bool
	Menus        bool
	Modals       bool
	Ephemeral    bool
	Commands     bool

	MaxMessageLength    int // 0 means unbounded
	MaxFileSize         int64
	MaxBlocksPerMessage int
}

// Port is the contract every platform adapter implements. The runtime
// never imports a concrete adapter type; it depends only on this
// interface, so a new platform is added by writing a new Port and nothing
// else in the runtime changes.
type Port interface {
	// Platform is a stable lowercase identifier, e.g. "discord", "ws".
	Platform() string

	// Capabilities describes what this adapter's platform can do.
	Capabilities() Capabilities

	// IsRunning reports whether Start has been called and Stop has not.
	IsRunning() bool

	// Events returns the channel of inbound events. The adapter owns and
	// closes this channel when Stop completes.
	Events() <-chan ChannelEvent

	// ConnectionStates returns a channel of connection-state transitions.
	// The adapter owns and closes this channel when Stop completes.
	ConnectionStates() <-chan ConnectionState

	// Start connects to the platform and begins delivering events. Start
	// must not block past initial connection setup; ongoing work happens
	// on adapter-owned goroutines.
	Start(ctx context.Context) error

	// Stop disconnects and releases adapter resources. Stop must be safe
	// to call after a failed or partial Start.
	Stop(ctx context.Context) error

	// Send dispatches a response to the platform. Send must never swallow
	// a delivery failure: a non-nil error always accompanies
	// SendResult.Success == false.
	Send(ctx context.Context, resp ChannelResponse) (SendResult, error)
}

// IdentityProvider is an optional Port extension for adapters that can
// resolve a platform user id to a ChannelIdentity.
type IdentityProvider interface {
	GetIdentity(ctx context.Context, userID string) (ChannelIdentity, error)
}

// FileTransferer is an optional Port extension for adapters whose platform
// supports file upload/download.
type FileTransferer interface {
	UploadFile(ctx context.Context, conv ConversationKey, name string, data []byte) (SendResult, error)
	DownloadFile(ctx context.Context, fileRef string) ([]byte, error)
}

// MessageEditor is an optional Port extension for adapters whose platform
// supports editing or deleting a previously sent message.
type MessageEditor interface {
	Edit(ctx context.Context, conv ConversationKey, messageID string, resp ChannelResponse) (SendResult, error)
	Delete(ctx context.Context, conv ConversationKey, messageID string) error
}

// Reactor is an optional Port extension for adapters whose platform
// supports reacting to messages.
type Reactor interface {
	React(ctx context.Context, conv ConversationKey, messageID, emoji string) error
}

// TypingNotifier is an optional Port extension for adapters whose platform
// supports a typing indicator.
type TypingNotifier interface {
	SendTyping(ctx context.Context, conv ConversationKey) error
}

// Unsupported builds the standard error an adapter returns from an
// optional capability it does not implement for a given call.
func Unsupported(platform, operation string) error {
	return errs.Newf(errs.Unsupported, "%s does not support %s", platform, operation)
}
