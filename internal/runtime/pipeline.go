package runtime

import (
	"context"
	"time"

	"github.com/kessler-labs/switchboard/internal/channel"
	"github.com/kessler-labs/switchboard/internal/errs"
	"github.com/kessler-labs/switchboard/internal/events"
	"github.com/kessler-labs/switchboard/internal/idempotency"
	"github.com/kessler-labs/switchboard/internal/policy"
	"github.com/kessler-labs/switchboard/internal/sessions"
)

// pipelineResult is what the guard-wrapped, policy-executed inner step
// returns: the response to dispatch, or nil if the event produced none.
type pipelineResult struct {
	response *channel.ChannelResponse
}

// pipeline runs the per-event algorithm: emit observability, guard,
// policy-execute the inner processor, dispatch the response, and surface
// any error on the errors stream.
type pipeline struct {
	bus       *events.Bus
	guard     *idempotency.Guard // nil disables idempotency
	executor  *policy.Executor
	processor *Processor
	sendFn    func(ctx context.Context, resp channel.ChannelResponse) (channel.SendResult, error)
}

func (p *pipeline) run(ctx context.Context, evt channel.ChannelEvent, principal sessions.Principal) {
	p.bus.Publish(events.NewTypedEvent(events.SourceRuntime, events.ChannelEventPayload{
		Platform: evt.Conversation.Platform,
		Kind:     string(evt.Kind),
		EventID:  evt.EventID,
	}))

	roomKey := policy.RoomKey(evt.Conversation.Platform, evt.Conversation.Tenant, evt.Conversation.Room)
	convKey := evt.Conversation.Platform + "/" + evt.Conversation.Tenant + "/" + evt.Conversation.Room
	userKey := evt.Identity.ID

	invoke := func() (any, error) {
		result, err := p.executor.Execute(ctx, roomKey, convKey, userKey, func(ctx context.Context) (any, error) {
			resp, err := p.processor.Process(ctx, evt, principal)
			return pipelineResult{response: resp}, err
		})
		if err != nil {
			return nil, err
		}
		return result, nil
	}

	var result any
	var err error
	if p.guard != nil {
		result, _, err = p.guard.Process(evt.EventID, invoke)
		if errs.CodeOf(err) == errs.AlreadyProcessing {
			p.bus.Publish(events.NewTypedEvent(events.SourceGuard, events.IdempotencyLockedPayload{
				EventID: evt.EventID,
			}))
		}
	} else {
		result, err = invoke()
	}

	if err != nil {
		p.bus.Publish(events.NewTypedEvent(events.SourceRuntime, events.RuntimeErrorPayload{
			EventID: evt.EventID,
			Error:   err.Error(),
			Code:    string(errs.CodeOf(err)),
		}))
		return
	}

	pr, ok := result.(pipelineResult)
	if !ok || pr.response == nil {
		return
	}

	p.dispatch(ctx, evt.EventID, *pr.response)
}

func (p *pipeline) dispatch(ctx context.Context, eventID string, resp channel.ChannelResponse) {
	sendCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	sendResult, err := p.sendFn(sendCtx, resp)

	payload := events.ResponseSentPayload{
		Platform: resp.Conversation.Platform,
		Success:  sendResult.Success,
	}
	if sendResult.MessageID != "" {
		payload.MessageID = sendResult.MessageID
	}
	if err != nil {
		payload.Error = err.Error()
		payload.Success = false
	} else if sendResult.Error != nil {
		payload.Error = sendResult.Error.Error()
	}
	p.bus.Publish(events.NewTypedEvent(events.SourceRuntime, payload))

	if err != nil {
		p.bus.Publish(events.NewTypedEvent(events.SourceRuntime, events.RuntimeErrorPayload{
			EventID: eventID,
			Error:   err.Error(),
			Code:    string(errs.CodeOf(err)),
		}))
	}
}
