// Package discordchannel is a thin channel.Port wrapping bwmarrin/discordgo.
// It only bridges connect/disconnect and plain text message send/receive;
// it does not build slash commands, embeds, or any Discord-specific UI.
package discordchannel

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/kessler-labs/switchboard/internal/channel"
)

// Config wires a discordchannel.Adapter to a bot token and guild scope.
type Config struct {
	Token string
	// TenantID labels every conversation this adapter produces, typically
	// the guild ID the bot serves.
	TenantID string
}

var (
	_ channel.Port           = (*Adapter)(nil)
	_ channel.MessageEditor  = (*Adapter)(nil)
	_ channel.Reactor        = (*Adapter)(nil)
	_ channel.TypingNotifier = (*Adapter)(nil)
)

// Adapter is a channel.Port backed by a single Discord bot session.
type Adapter struct {
	cfg     Config
	session *discordgo.Session

	mu      sync.RWMutex
	running bool
	events  chan channel.ChannelEvent
	states  chan channel.ConnectionState
}

// New builds an Adapter. The session is created but not opened until Start.
func New(cfg Config) (*Adapter, error) {
	sess, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, err
	}
	sess.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent

	a := &Adapter{cfg: cfg, session: sess}
	sess.AddHandler(a.onMessageCreate)
	sess.AddHandler(a.onDisconnect)
	return a, nil
}

func (a *Adapter) Platform() string { return "discord" }

func (a *Adapter) Capabilities() channel.Capabilities {
	return channel.Capabilities{
		Text:             true,
		RichMessages:     true,
		Attachments:      true,
		Reactions:        true,
		Threads:          true,
		Editing:          true,
		Deleting:         true,
		Typing:           true,
		MaxMessageLength: 2000,
	}
}

func (a *Adapter) IsRunning() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.running
}

// Events returns the current event stream. Only valid between a Start and
// its matching Stop; a restart replaces the channel.
func (a *Adapter) Events() <-chan channel.ChannelEvent {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.events
}

func (a *Adapter) ConnectionStates() <-chan channel.ConnectionState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.states
}

// Start is idempotent and (re)opens the event and state streams, so a
// Start following a prior Stop works without a fresh Adapter.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return nil
	}
	a.mu.Unlock()

	if err := a.session.Open(); err != nil {
		return err
	}

	a.mu.Lock()
	a.running = true
	a.events = make(chan channel.ChannelEvent, 256)
	a.states = make(chan channel.ConnectionState, 8)
	states := a.states
	a.mu.Unlock()

	states <- channel.StateConnected
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	events, states := a.events, a.states
	a.mu.Unlock()

	err := a.session.Close()
	states <- channel.StateDisconnected
	close(events)
	close(states)
	return err
}

func (a *Adapter) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}

	a.mu.RLock()
	running, events := a.running, a.events
	a.mu.RUnlock()
	if !running {
		return
	}

	events <- channel.ChannelEvent{
		EventID: m.ID,
		Kind:    channel.KindMessage,
		Conversation: channel.ConversationKey{
			Platform: a.Platform(),
			Tenant:   a.cfg.TenantID,
			Room:     m.ChannelID,
		},
		Identity: channel.ChannelIdentity{
			Platform:    a.Platform(),
			ID:          m.Author.ID,
			DisplayName: m.Author.Username,
		},
		Timestamp: time.Now(),
		Text:      m.Content,
	}
}

func (a *Adapter) onDisconnect(s *discordgo.Session, d *discordgo.Disconnect) {
	a.mu.RLock()
	running, states := a.running, a.states
	a.mu.RUnlock()
	if !running {
		return
	}
	select {
	case states <- channel.StateReconnecting:
	default:
	}
}

// Send posts resp's text as a plain message in resp's conversation room
// (the Discord channel ID).
func (a *Adapter) Send(ctx context.Context, resp channel.ChannelResponse) (channel.SendResult, error) {
	msg, err := a.session.ChannelMessageSend(resp.Conversation.Room, resp.Text)
	if err != nil {
		slog.Error("discordchannel send", "error", err, "channel", resp.Conversation.Room)
		return channel.SendResult{Success: false, Error: err, Timestamp: time.Now()}, err
	}
	return channel.SendResult{
		Success:   true,
		MessageID: msg.ID,
		Timestamp: time.Now(),
	}, nil
}

// Edit satisfies channel.MessageEditor.
func (a *Adapter) Edit(ctx context.Context, conv channel.ConversationKey, messageID string, resp channel.ChannelResponse) (channel.SendResult, error) {
	msg, err := a.session.ChannelMessageEdit(conv.Room, messageID, resp.Text)
	if err != nil {
		return channel.SendResult{Success: false, Error: err, Timestamp: time.Now()}, err
	}
	return channel.SendResult{Success: true, MessageID: msg.ID, Timestamp: time.Now()}, nil
}

// Delete satisfies channel.MessageEditor.
func (a *Adapter) Delete(ctx context.Context, conv channel.ConversationKey, messageID string) error {
	return a.session.ChannelMessageDelete(conv.Room, messageID)
}

// React satisfies channel.Reactor.
func (a *Adapter) React(ctx context.Context, conv channel.ConversationKey, messageID, emoji string) error {
	return a.session.MessageReactionAdd(conv.Room, messageID, emoji)
}

// SendTyping satisfies channel.TypingNotifier.
func (a *Adapter) SendTyping(ctx context.Context, conv channel.ConversationKey) error {
	return a.session.ChannelTyping(conv.Room)
}
