package aiflow

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/aiflow-go/aiflow/events"
	"github.com/aiflow-go/aiflow/internal/decoder"
	"github.com/aiflow-go/aiflow/messages"
	"github.com/aiflow-go/aiflow/pkg/slogx"
	"github.com/aiflow-go/aiflow/pkg/uuidx"
	"github.com/aiflow-go/aiflow/provider"
	"github.com/aiflow-go/aiflow/tool"
	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
)

// ResponsesStream runs a conversation turn loop against prov and yields
// session updates as they happen: assistant text deltas, tool calls, tool
// results, usage totals. The sequence is lazy, single-pass, and not
// restartable; create a new stream per request.
//
// The session's exclusive lease is acquired before the first yield and held
// across every suspension point, so anyone inspecting the session mid-stream
// sees a consistent transcript. Tool executions from one turn run
// concurrently; their results append in the order the provider completed the
// calls. Server-side tool results are fed back to the model in the next turn
// within the same stream, until a turn produces no tool calls, a client tool
// is left pending, or cfg.MaxTurns is reached. Breaking out of the iteration
// cancels in-flight executions and releases the lease.
//
// A non-nil error yield is terminal. Errors from tools are not yielded here;
// they travel in-band as failure tool results.
func ResponsesStream(
	ctx context.Context,
	session *Session,
	prov provider.Provider,
	tools *tool.Set,
	cfg *GenerateConfig,
) iter.Seq2[events.Event, error] {
	return func(yield func(events.Event, error) bool) {
		if err := cfg.validate(); err != nil {
			yield(nil, err)
			return
		}
		if session == nil {
			yield(nil, fmt.Errorf("session is required"))
			return
		}
		if prov == nil {
			yield(nil, fmt.Errorf("provider is required"))
			return
		}
		if tools == nil {
			tools = tool.NewSet()
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		lease, err := session.Acquire(ctx)
		if err != nil {
			yield(nil, err)
			return
		}
		defer lease.Release()

		s := stream{
			runID: session.ID(),
			lease: lease,
			prov:  prov,
			tools: tools,
			cfg:   cfg,
			yield: yield,
		}
		s.run(ctx)
	}
}

type stream struct {
	runID uuid.UUID
	lease *Lease
	prov  provider.Provider
	tools *tool.Set
	cfg   *GenerateConfig
	yield func(events.Event, error) bool
}

func (s *stream) run(ctx context.Context) {
	for turn := 0; turn < s.cfg.maxTurns(); turn++ {
		again, ok := s.turn(ctx)
		if !ok || !again {
			return
		}
	}
}

// emit publishes ev to the configured topic and hook, then yields it.
// A false return means the consumer stopped the iteration.
func (s *stream) emit(ctx context.Context, ev events.Event) bool {
	if s.cfg.Topic != nil {
		if err := s.cfg.Topic.Publish(ctx, ev); err != nil {
			slog.WarnContext(ctx, "failed to publish event", slogx.Error(err))
		}
	}
	events.Dispatch(ctx, s.cfg.Hook, ev)
	return s.yield(ev, nil)
}

// fail yields a terminal error event. The session keeps whatever was
// committed before the failure.
func (s *stream) fail(ctx context.Context, turnID uuid.UUID, err error) {
	ev := events.Error{RunID: s.runID, TurnID: turnID, Err: err, Timestamp: now()}
	if s.cfg.Topic != nil {
		if perr := s.cfg.Topic.Publish(ctx, ev); perr != nil {
			slog.WarnContext(ctx, "failed to publish event", slogx.Error(perr))
		}
	}
	events.Dispatch(ctx, s.cfg.Hook, ev)
	s.yield(ev, err)
}

// turn runs one model turn. again reports whether the loop should issue a
// follow-up request with the appended tool results; ok is false when the
// stream ended, by error or consumer break.
func (s *stream) turn(ctx context.Context) (again, ok bool) {
	turnID := uuidx.New()
	if !s.emit(ctx, events.Delim{RunID: s.runID, TurnID: turnID, Delim: "start"}) {
		return false, false
	}

	ch, err := s.prov.Responses(ctx, provider.Request{
		Model:              string(s.cfg.Model),
		Thread:             s.lease.Snapshot(),
		Tools:              s.tools.Definitions(),
		ToolChoice:         string(s.cfg.ToolChoice),
		PreviousResponseID: s.lease.Cursor(),
	})
	if err != nil {
		s.fail(ctx, turnID, err)
		return false, false
	}

	dec := decoder.New(nil)
	var (
		results       []chan messages.ToolResult
		clientPending bool
		completed     *decoder.TurnFrame
	)

	for event := range ch {
		frame, err := dec.Feed(event)
		if err != nil {
			s.fail(ctx, turnID, err)
			return false, false
		}
		if frame == nil {
			continue
		}

		switch f := frame.(type) {
		case decoder.TextFrame:
			ev := events.Text{RunID: s.runID, TurnID: turnID, Text: f.Delta, Timestamp: now()}
			if !s.emit(ctx, ev) {
				return false, false
			}

		case decoder.UsageFrame:
			totals := s.lease.AddUsage(s.cfg.Model, Usage{
				InputTokens:       f.Usage.InputTokens,
				CachedInputTokens: f.Usage.CachedInputTokens,
				OutputTokens:      f.Usage.OutputTokens,
			})
			ev := events.Usage{
				RunID:             s.runID,
				TurnID:            turnID,
				InputTokens:       totals.InputTokens,
				CachedInputTokens: totals.CachedInputTokens,
				OutputTokens:      totals.OutputTokens,
				Timestamp:         now(),
			}
			if !s.emit(ctx, ev) {
				return false, false
			}

		case decoder.CallFrame:
			slot, pending, yielded := s.dispatch(ctx, turnID, f.Call)
			if !yielded {
				return false, false
			}
			if pending {
				clientPending = true
			}
			if slot != nil {
				results = append(results, slot)
			}

		case decoder.TurnFrame:
			tf := f
			completed = &tf
		}
	}

	if completed == nil {
		if ctx.Err() != nil {
			s.fail(ctx, turnID, ctx.Err())
			return false, false
		}
		s.fail(ctx, turnID, fmt.Errorf("%w: stream ended without turn completion", decoder.ErrProtocol))
		return false, false
	}

	s.commit(*completed)

	// Collect results in the order the decoder completed the calls,
	// regardless of which execution finished first.
	for _, slot := range results {
		select {
		case res := <-slot:
			s.lease.Append(res.Message())
			ev := events.ToolResult{RunID: s.runID, TurnID: turnID, Result: res, Timestamp: now()}
			if !s.emit(ctx, ev) {
				return false, false
			}
		case <-ctx.Done():
			s.fail(ctx, turnID, ctx.Err())
			return false, false
		}
	}

	if !s.emit(ctx, events.Delim{RunID: s.runID, TurnID: turnID, Delim: "end"}) {
		return false, false
	}

	// The turn loop continues only when there are server-side results for
	// the model to react to and no client call is awaiting the caller.
	return len(results) > 0 && !clientPending, true
}

// dispatch routes one completed call. Executable tools run on their own
// goroutine and deliver into the returned slot; unknown tools and argument
// decode failures resolve immediately as failure results; client tools yield
// a pending call and produce no slot. A client call whose arguments could
// not be decoded is not surfaced as pending; the decode failure goes back to
// the model like any other.
func (s *stream) dispatch(ctx context.Context, turnID uuid.UUID, call decoder.CompletedCall) (slot chan messages.ToolResult, pending, yielded bool) {
	def, known := s.tools.Get(call.Name)
	isClient := known && def.Client && call.Err == nil

	ev := events.ToolCall{
		RunID:     s.runID,
		TurnID:    turnID,
		Call:      callData(call),
		Pending:   isClient,
		Timestamp: now(),
	}
	if !s.emit(ctx, ev) {
		return nil, false, false
	}

	switch {
	case call.Err != nil:
		return resolved(messages.ToolResult{
			CallID:   call.ID,
			ToolName: call.Name,
			Err:      call.Err.Error(),
		}), false, true

	case isClient:
		return nil, true, true

	case !known:
		return resolved(messages.ToolResult{
			CallID:   call.ID,
			ToolName: call.Name,
			Err:      fmt.Sprintf("%v: %s", tool.ErrUnknownTool, call.Name),
		}), false, true

	default:
		slot = make(chan messages.ToolResult, 1)
		go func() {
			value, err := def.Execute(ctx, tool.Call{ID: call.ID, Name: call.Name, Args: call.Args})
			res := messages.ToolResult{CallID: call.ID, ToolName: call.Name}
			if err != nil {
				res.Err = err.Error()
			} else {
				res.Value = value
			}
			slot <- res
		}()
		return slot, false, true
	}
}

// commit appends the turn's assistant output: the text message, if any, then
// the tool-call record.
func (s *stream) commit(turn decoder.TurnFrame) {
	b := messages.New()
	if turn.Text != "" {
		s.lease.Append(b.AssistantMessage(turn.Text))
	}
	if len(turn.Calls) > 0 {
		calls := make([]messages.ToolCallData, 0, len(turn.Calls))
		for _, call := range turn.Calls {
			calls = append(calls, callData(call))
		}
		s.lease.Append(b.ToolCall(calls...))
	}
	s.lease.SetCursor(turn.ResponseID)
}

func callData(call decoder.CompletedCall) messages.ToolCallData {
	return messages.ToolCallData{ID: call.ID, Name: call.Name, Arguments: string(call.Args)}
}

func resolved(res messages.ToolResult) chan messages.ToolResult {
	slot := make(chan messages.ToolResult, 1)
	slot <- res
	return slot
}

func now() strfmt.DateTime {
	return strfmt.DateTime(time.Now())
}
