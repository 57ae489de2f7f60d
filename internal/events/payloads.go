package events

import (
	"encoding/json"
	"time"
)

// EventPayload is the interface all typed payloads implement.
type EventPayload interface {
	EventType() EventType
}

// ChannelEventPayload mirrors the ChannelEvent observed by the runtime
// Observability only, no flow-control impact.
type ChannelEventPayload struct {
	Platform string `json:"platform"`
	Kind     string `json:"kind"`
	EventID  string `json:"event_id"`
}

func (ChannelEventPayload) EventType() EventType { return EventChannelEvent }

// ResponseSentPayload records a dispatched ChannelResponse and its SendResult.
type ResponseSentPayload struct {
	Platform  string `json:"platform"`
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (ResponseSentPayload) EventType() EventType { return EventResponseSent }

// RuntimeErrorPayload mirrors the runtime's terminal error event shape.
type RuntimeErrorPayload struct {
	EventID string `json:"event_id"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

func (RuntimeErrorPayload) EventType() EventType { return EventRuntimeError }

// IdempotencyHitPayload describes the guard returning a cached result without
// invoking the processor (status was completed or failed-no-retry). The
// runtime pipeline does not publish it: Guard.Process does not report
// whether its result came from a cached record.
type IdempotencyHitPayload struct {
	EventID string `json:"event_id"`
	Status  string `json:"status"`
}

func (IdempotencyHitPayload) EventType() EventType { return EventIdempotencyHit }

// IdempotencyLockedPayload fires when tryAcquire fails because another
// instance currently holds the lock.
type IdempotencyLockedPayload struct {
	EventID string `json:"event_id"`
	Holder  string `json:"holder,omitempty"`
}

func (IdempotencyLockedPayload) EventType() EventType { return EventIdempotencyLocked }

// SessionLifecyclePayload covers created/paused/resumed/closed/expired.
// It does not implement EventPayload itself since one struct shape serves
// several EventTypes; use NewSessionLifecycleEvent to build the Event.
type SessionLifecyclePayload struct {
	SessionID string `json:"session_id"`
	Platform  string `json:"platform"`
	Room      string `json:"room"`
}

// NewSessionLifecycleEvent builds a session lifecycle Event for the given type.
func NewSessionLifecycleEvent(evtType EventType, payload SessionLifecyclePayload) Event {
	return Event{
		ID:        generateEventID(),
		SessionID: payload.SessionID,
		Type:      evtType,
		Timestamp: time.Now(),
		Source:    SourceSessions,
		Payload:   toMap(payload),
	}
}

// CircuitStateChangedPayload reports a C3 breaker transition.
type CircuitStateChangedPayload struct {
	Name  string `json:"name"`
	From  string `json:"from"`
	To    string `json:"to"`
}

func (CircuitStateChangedPayload) EventType() EventType { return EventCircuitStateChanged }

// RateLimitedPayload reports a C1 admission denial.
type RateLimitedPayload struct {
	Scope      string        `json:"scope"`
	RetryAfter time.Duration `json:"retry_after"`
}

func (RateLimitedPayload) EventType() EventType { return EventRateLimited }

// ConnectionStateChangedPayload reports a C9 adapter connection transition.
type ConnectionStateChangedPayload struct {
	Platform string `json:"platform"`
	State    string `json:"state"`
}

func (ConnectionStateChangedPayload) EventType() EventType { return EventConnectionStateChanged }

// NewTypedEvent builds an Event from a payload that knows its own EventType.
func NewTypedEvent(source EventSource, payload EventPayload) Event {
	return Event{
		ID:        generateEventID(),
		Type:      payload.EventType(),
		Timestamp: time.Now(),
		Source:    source,
		Payload:   toMap(payload),
	}
}

// NewTypedEventWithSession is NewTypedEvent plus a session id tag stored in
// Event.SessionID.
func NewTypedEventWithSession(source EventSource, payload EventPayload, sessionID string) Event {
	return Event{
		ID:        generateEventID(),
		SessionID: sessionID,
		Type:      payload.EventType(),
		Timestamp: time.Now(),
		Source:    source,
		Payload:   toMap(payload),
	}
}

func toMap(v any) map[string]any {
	var result map[string]any
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

// ExtractPayload decodes an Event's generic payload map back into a typed struct.
func ExtractPayload[T EventPayload](e Event) (T, bool) {
	var result T
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return result, false
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, false
	}
	return result, true
}
