// Package dashboard is a Bubble Tea operator view over a running runtime's
// event bus: it renders the live channel.event / response.sent /
// runtime.error streams as a scrolling log, without any chat or prompt
// input surface.
package dashboard

import (
	"fmt"
	"strings"
	"time"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/kessler-labs/switchboard/internal/events"
)

const maxRows = 500

// row is one rendered line of the dashboard's scrollback.
type row struct {
	at    time.Time
	style lipgloss.Style
	text  string
}

// eventMsg wraps a bus event delivered to the Bubble Tea program.
type eventMsg events.Event

// ShutdownMsg tells the dashboard its embedding runtime is stopping, so it
// should quit instead of waiting for more events.
type ShutdownMsg struct{}

// Model is the dashboard's Bubble Tea model. It owns no mutable state the
// runtime depends on; it only observes.
type Model struct {
	bus    *events.Bus
	ch     <-chan events.Event
	unsub  func()
	rows   []row
	width  int
	height int

	counts struct {
		events    int
		responses int
		errors    int
	}
}

// New builds a dashboard Model subscribed to bus. Subscribe happens inside
// Init so the model can be constructed before the program starts running.
func New(bus *events.Bus) Model {
	return Model{bus: bus}
}

func (m Model) Init() tea.Cmd {
	ch, unsub := m.bus.SubscribeChan(256,
		events.EventChannelEvent,
		events.EventResponseSent,
		events.EventRuntimeError,
		events.EventIdempotencyHit,
		events.EventIdempotencyLocked,
		events.EventConnectionStateChanged,
	)
	m.ch = ch
	m.unsub = unsub
	return waitForEvent(ch)
}

func waitForEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		evt, ok := <-ch
		if !ok {
			return nil
		}
		return eventMsg(evt)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.unsub != nil {
				m.unsub()
			}
			return m, tea.Quit
		}
		return m, nil

	case eventMsg:
		m.appendRow(events.Event(msg))
		return m, waitForEvent(m.ch)

	case ShutdownMsg:
		if m.unsub != nil {
			m.unsub()
		}
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) appendRow(evt events.Event) {
	style := EventStyle
	switch evt.Type {
	case events.EventResponseSent:
		style = ResponseStyle
	case events.EventRuntimeError:
		style = ErrorStyle
		m.counts.errors++
	case events.EventChannelEvent:
		m.counts.events++
	}
	if evt.Type == events.EventResponseSent {
		m.counts.responses++
	}

	m.rows = append(m.rows, row{
		at:    evt.Timestamp,
		style: style,
		text:  fmt.Sprintf("%-28s source=%-16s %s", evt.Type, evt.Source, summarizePayload(evt)),
	})
	if len(m.rows) > maxRows {
		m.rows = m.rows[len(m.rows)-maxRows:]
	}
}

func summarizePayload(evt events.Event) string {
	if evt.Payload == nil {
		return ""
	}
	return fmt.Sprintf("%+v", evt.Payload)
}

func (m Model) View() string {
	height := m.height - 1 // status bar
	if height < 1 {
		height = 1
	}

	visible := m.rows
	if len(visible) > height {
		visible = visible[len(visible)-height:]
	}

	var b strings.Builder
	for _, r := range visible {
		b.WriteString(r.style.Render(fmt.Sprintf("[%s] %s", r.at.Format("15:04:05"), r.text)))
		b.WriteByte('\n')
	}
	for i := len(visible); i < height; i++ {
		b.WriteByte('\n')
	}

	status := StatusBarStyle.Width(m.width).Render(
		fmt.Sprintf("events=%d responses=%d errors=%d  (q to quit)",
			m.counts.events, m.counts.responses, m.counts.errors),
	)

	return b.String() + status
}
