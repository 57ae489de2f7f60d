// Package wsadapter is a channel.Port implementation that accepts inbound
// WebSocket connections and treats each connection as one conversation.
// Text frames from the client become channel.ChannelEvent messages; Send
// writes a frame back to every client currently registered for the
// response's conversation.
package wsadapter

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/kessler-labs/switchboard/internal/channel"
)

// Config controls how the adapter's HTTP listener is brought up.
type Config struct {
	// Addr is the listen address, e.g. ":8081". Required.
	Addr string
	// Path is the HTTP path the WebSocket upgrade is served on.
	// Defaults to "/ws".
	Path string
	// TenantID is stamped onto every conversation this adapter produces.
	TenantID string
}

type client struct {
	id   string
	conv channel.ConversationKey
	conn *websocket.Conn
	send chan []byte
}

var _ channel.Port = (*Adapter)(nil)

// Adapter is a channel.Port serving WebSocket connections over HTTP.
type Adapter struct {
	cfg Config

	mu      sync.RWMutex
	running bool
	clients map[string]*client

	events chan channel.ChannelEvent
	states chan channel.ConnectionState

	server *http.Server
}

// New builds an Adapter. The platform identity is always "ws".
func New(cfg Config) *Adapter {
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}
	return &Adapter{cfg: cfg, clients: make(map[string]*client)}
}

func (a *Adapter) Platform() string { return "ws" }

func (a *Adapter) Capabilities() channel.Capabilities {
	return channel.Capabilities{
		Text:             true,
		RichMessages:     false,
		Attachments:      false,
		MaxMessageLength: 1 << 20,
	}
}

func (a *Adapter) IsRunning() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.running
}

// Events returns the current event stream. Only valid between a Start and
// its matching Stop; a restart replaces the channel, so callers must
// re-fetch it rather than caching the value across a Stop/Start cycle.
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

// Start is idempotent: calling it while already running is a no-op. It
// (re)opens the event and state streams so a Start after a prior Stop
// works without constructing a new Adapter.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = true
	a.events = make(chan channel.ChannelEvent, 256)
	a.states = make(chan channel.ConnectionState, 8)
	mux := http.NewServeMux()
	mux.HandleFunc(a.cfg.Path, a.serveWS)
	a.server = &http.Server{Addr: a.cfg.Addr, Handler: mux}
	states := a.states
	a.mu.Unlock()

	ln := a.server
	go func() {
		if err := ln.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("wsadapter listen", "error", err)
		}
	}()

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
	clients := make([]*client, 0, len(a.clients))
	for _, c := range a.clients {
		clients = append(clients, c)
	}
	a.clients = make(map[string]*client)
	srv := a.server
	events, states := a.events, a.states
	a.mu.Unlock()

	for _, c := range clients {
		c.conn.Close(websocket.StatusGoingAway, "server shutdown")
	}

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}

	states <- channel.StateDisconnected
	close(events)
	close(states)
	return err
}

func (a *Adapter) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		slog.Error("wsadapter accept", "error", err)
		return
	}

	id := uuid.NewString()
	c := &client{
		id:   id,
		conn: conn,
		send: make(chan []byte, 64),
		conv: channel.ConversationKey{
			Platform: a.Platform(),
			Tenant:   a.cfg.TenantID,
			Room:     id,
		},
	}

	a.mu.Lock()
	a.clients[id] = c
	a.mu.Unlock()

	ctx := r.Context()
	go a.writePump(ctx, c)
	a.readPump(ctx, c)
}

func (a *Adapter) readPump(ctx context.Context, c *client) {
	defer func() {
		a.mu.Lock()
		delete(a.clients, c.id)
		a.mu.Unlock()
		close(c.send)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 {
				slog.Debug("wsadapter read error", "error", err)
			}
			return
		}

		frame, err := unmarshalFrame(data)
		if err != nil {
			slog.Error("wsadapter unmarshal frame", "error", err)
			continue
		}
		if frame.Type != FrameTypeRequest {
			continue
		}

		a.mu.RLock()
		running := a.running
		events := a.events
		a.mu.RUnlock()
		if !running {
			return
		}

		events <- channel.ChannelEvent{
			EventID:      uuid.NewString(),
			Kind:         channel.KindMessage,
			Conversation: c.conv,
			Identity:     channel.ChannelIdentity{Platform: a.Platform(), ID: c.id},
			Timestamp:    time.Now(),
			Text:         string(frame.Params),
		}

		if ack, err := responseFrame(frame.ID, true, nil, ""); err == nil {
			select {
			case c.send <- ack:
			default:
			}
		}
	}
}

func (a *Adapter) writePump(ctx context.Context, c *client) {
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// Send writes resp to every client registered for its conversation's room.
func (a *Adapter) Send(ctx context.Context, resp channel.ChannelResponse) (channel.SendResult, error) {
	a.mu.RLock()
	var target *client
	for _, c := range a.clients {
		if c.conv == resp.Conversation {
			target = c
			break
		}
	}
	a.mu.RUnlock()

	if target == nil {
		err := errors.New("wsadapter: no client for conversation")
		return channel.SendResult{Success: false, Error: err, Timestamp: time.Now()}, err
	}

	data, err := eventFrame(resp)
	if err != nil {
		return channel.SendResult{Success: false, Error: err, Timestamp: time.Now()}, err
	}

	select {
	case target.send <- data:
	default:
		err := errors.New("wsadapter: client send buffer full")
		return channel.SendResult{Success: false, Error: err, Timestamp: time.Now()}, err
	}

	return channel.SendResult{Success: true, Timestamp: time.Now()}, nil
}
