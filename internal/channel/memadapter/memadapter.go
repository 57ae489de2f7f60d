// Package memadapter is an in-process channel.Port used by tests and by
// scenarios that exercise the runtime without a real platform connection.
// Events are injected directly via Inject; sends are recorded for
// assertion instead of going over a wire.
package memadapter

import (
	"context"
	"sync"
	"time"

	"github.com/kessler-labs/switchboard/internal/channel"
)

var _ channel.Port = (*Adapter)(nil)

// Adapter is an in-memory channel.Port.
type Adapter struct {
	platform string
	caps     channel.Capabilities

	mu      sync.Mutex
	running bool

	events       chan channel.ChannelEvent
	states       chan channel.ConnectionState
	sent         []channel.ChannelResponse
	failNextSend error
}

// New builds an Adapter identifying itself as platform.
func New(platform string, caps channel.Capabilities) *Adapter {
	return &Adapter{platform: platform, caps: caps}
}

func (a *Adapter) Platform() string                   { return a.platform }
func (a *Adapter) Capabilities() channel.Capabilities { return a.caps }

func (a *Adapter) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Events returns the current event stream. It is only valid between a
// Start and the matching Stop; callers must re-fetch it after a restart
// since Start replaces the channel rather than reopening the old one.
func (a *Adapter) Events() <-chan channel.ChannelEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.events
}

func (a *Adapter) ConnectionStates() <-chan channel.ConnectionState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.states
}

// Start (re)opens the event and state streams, making the adapter safe to
// restart after Stop closed the previous pair.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return nil
	}
	a.events = make(chan channel.ChannelEvent, 64)
	a.states = make(chan channel.ConnectionState, 8)
	a.running = true
	a.states <- channel.StateConnected
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.running {
		return nil
	}
	a.running = false
	a.states <- channel.StateDisconnected
	close(a.events)
	close(a.states)
	return nil
}

// Inject delivers evt as if it arrived from the platform.
func (a *Adapter) Inject(evt channel.ChannelEvent) {
	a.mu.Lock()
	events := a.events
	a.mu.Unlock()
	events <- evt
}

// FailNextSend makes the next Send call return err instead of succeeding.
func (a *Adapter) FailNextSend(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failNextSend = err
}

func (a *Adapter) Send(ctx context.Context, resp channel.ChannelResponse) (channel.SendResult, error) {
	a.mu.Lock()
	err := a.failNextSend
	a.failNextSend = nil
	a.mu.Unlock()

	if err != nil {
		return channel.SendResult{Success: false, Error: err, Timestamp: time.Now()}, err
	}

	a.mu.Lock()
	a.sent = append(a.sent, resp)
	a.mu.Unlock()

	return channel.SendResult{Success: true, Timestamp: time.Now()}, nil
}

// Sent returns every response recorded by Send, in order.
func (a *Adapter) Sent() []channel.ChannelResponse {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]channel.ChannelResponse, len(a.sent))
	copy(out, a.sent)
	return out
}
