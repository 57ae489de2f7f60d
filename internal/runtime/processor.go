package runtime

import (
	"context"
	"strings"

	"github.com/kessler-labs/switchboard/internal/channel"
	"github.com/kessler-labs/switchboard/internal/errs"
	"github.com/kessler-labs/switchboard/internal/sessions"
)

// Mode selects how an inbound event is turned into a response.
type Mode string

const (
	ModeLLM        Mode = "llm"
	ModeDirectTool Mode = "directTool"
	ModeCustom     Mode = "custom"
)

// ToolProvider invokes a named tool with positional arguments and returns
// its textual result. The concrete tool backend is never part of this
// module; only the contract is.
type ToolProvider interface {
	InvokeTool(ctx context.Context, name string, args []string) (string, error)
}

// GenerateResult is one round of generation. ToolCalls is non-empty when
// the model wants to invoke tools before producing a final response; in
// that case Response is the round's partial output (commonly empty) and
// processLLM owes the generator another round once the calls are resolved.
type GenerateResult struct {
	Response  channel.ChannelResponse
	ToolCalls []sessions.ToolCall
}

// ResponseGenerator produces a GenerateResult from an event and its
// session, optionally seeded with tool results from a prior round. It may
// be invoked more than once per event when a tool roundtrip is needed.
type ResponseGenerator interface {
	Generate(ctx context.Context, evt channel.ChannelEvent, sess *sessions.Session, toolResults []sessions.ToolResult) (GenerateResult, error)
}

// CustomProcessor handles ModeCustom events; the runtime does not
// interpret the result, the processor owns the full response lifecycle.
type CustomProcessor interface {
	Process(ctx context.Context, evt channel.ChannelEvent, sess *sessions.Session) (*channel.ChannelResponse, error)
}

// ProcessorConfig wires the dispatch mode and its collaborators.
type ProcessorConfig struct {
	Mode      Mode
	Generator ResponseGenerator // required for ModeLLM
	Tools     ToolProvider      // required for ModeDirectTool and LLM tool calls
	Custom    CustomProcessor   // required for ModeCustom
}

// Processor implements the inner-processor step of the pipeline: get or
// create a session, append the user message, dispatch by mode, append the
// assistant message, and construct the response.
type Processor struct {
	cfg     ProcessorConfig
	manager *sessions.Manager
}

// NewProcessor builds a Processor over manager using cfg's dispatch mode.
func NewProcessor(manager *sessions.Manager, cfg ProcessorConfig) *Processor {
	return &Processor{cfg: cfg, manager: manager}
}

// Process runs the inner-processor algorithm for one event and returns the
// response to dispatch, or nil if the event produced none (e.g. ModeCustom
// choosing to stay silent).
func (p *Processor) Process(ctx context.Context, evt channel.ChannelEvent, principal sessions.Principal) (*channel.ChannelResponse, error) {
	sess, err := p.manager.GetOrCreateSession(evt, principal)
	if err != nil {
		return nil, err
	}

	if evt.Text != "" {
		if _, err := p.manager.AddMessage(sess.ID, sessions.SessionMessage{Role: sessions.RoleUser, Content: evt.Text, EventID: evt.EventID}); err != nil {
			return nil, err
		}
		sess, err = p.manager.GetSession(sess.ID)
		if err != nil {
			return nil, err
		}
	}

	switch p.cfg.Mode {
	case ModeCustom:
		return p.cfg.Custom.Process(ctx, evt, sess)

	case ModeDirectTool:
		return p.processDirectTool(ctx, evt, sess)

	default: // ModeLLM
		return p.processLLM(ctx, evt, sess)
	}
}

// processDirectTool parses the event text as "<tool> <args...>", splitting
// only on whitespace — no quoting or escaping support.
func (p *Processor) processDirectTool(ctx context.Context, evt channel.ChannelEvent, sess *sessions.Session) (*channel.ChannelResponse, error) {
	fields := strings.Fields(evt.Text)
	if len(fields) == 0 {
		return nil, nil
	}
	name, args := fields[0], fields[1:]

	result, err := p.cfg.Tools.InvokeTool(ctx, name, args)
	if err != nil {
		return nil, err
	}

	if _, err := p.manager.AddMessage(sess.ID, sessions.SessionMessage{Role: sessions.RoleAssistant, Content: result}); err != nil {
		return nil, err
	}

	return &channel.ChannelResponse{
		Conversation: evt.Conversation,
		Kind:         channel.ResponseText,
		Text:         result,
		ReplyToID:    evt.EventID,
	}, nil
}

// maxToolRounds bounds the generate/invoke/continue loop so a misbehaving
// model that keeps requesting tool calls can't spin the processor forever.
const maxToolRounds = 5

// processLLM accumulates generation rounds: each round may either produce a
// final response or request tool calls. Requested calls are run through
// ToolProvider, their results appended to history as tool messages, and
// generation continues with those results fed back in, until a round comes
// back with no further tool calls or maxToolRounds is reached.
func (p *Processor) processLLM(ctx context.Context, evt channel.ChannelEvent, sess *sessions.Session) (*channel.ChannelResponse, error) {
	var toolResults []sessions.ToolResult

	for round := 0; round < maxToolRounds; round++ {
		result, err := p.cfg.Generator.Generate(ctx, evt, sess, toolResults)
		if err != nil {
			return nil, err
		}

		if len(result.ToolCalls) == 0 {
			if result.Response.Text != "" {
				if _, err := p.manager.AddMessage(sess.ID, sessions.SessionMessage{Role: sessions.RoleAssistant, Content: result.Response.Text}); err != nil {
					return nil, err
				}
			}
			return &result.Response, nil
		}

		if _, err := p.manager.AddMessage(sess.ID, sessions.SessionMessage{
			Role:      sessions.RoleAssistant,
			Content:   result.Response.Text,
			ToolCalls: result.ToolCalls,
		}); err != nil {
			return nil, err
		}

		toolResults = make([]sessions.ToolResult, 0, len(result.ToolCalls))
		for _, tc := range result.ToolCalls {
			tr, err := p.invokeTool(ctx, sess, tc)
			if err != nil {
				return nil, err
			}
			toolResults = append(toolResults, tr)
		}

		sess, err = p.manager.GetSession(sess.ID)
		if err != nil {
			return nil, err
		}
	}

	return nil, errs.Newf(errs.ToolRoundLimitExceeded, "exceeded %d tool call rounds for conversation %s", maxToolRounds, evt.Conversation.Room)
}

// invokeTool runs one tool call and records a tool-role message with its
// result (or error) in the session's history. A tool invocation failure is
// recorded in the result, not returned as an error: the model gets a
// chance to react to it on the next round rather than aborting the turn.
func (p *Processor) invokeTool(ctx context.Context, sess *sessions.Session, tc sessions.ToolCall) (sessions.ToolResult, error) {
	content, invokeErr := p.cfg.Tools.InvokeTool(ctx, tc.Name, []string{tc.Arguments})
	tr := sessions.ToolResult{ToolCallID: tc.ID, Content: content}
	if invokeErr != nil {
		tr.Error = invokeErr.Error()
	}
	_, err := p.manager.AddMessage(sess.ID, sessions.SessionMessage{
		Role:       sessions.RoleTool,
		Content:    content,
		ToolResult: &tr,
	})
	return tr, err
}
