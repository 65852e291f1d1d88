package aiflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aiflow-go/aiflow/events"
	"github.com/aiflow-go/aiflow/internal/decoder"
	"github.com/aiflow-go/aiflow/messages"
	"github.com/aiflow-go/aiflow/provider"
	"github.com/aiflow-go/aiflow/tool"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedProvider replays canned event sequences, one per expected turn.
type scriptedProvider struct {
	mu       sync.Mutex
	turns    [][]provider.StreamEvent
	requests []provider.Request
}

func (p *scriptedProvider) Responses(ctx context.Context, req provider.Request) (<-chan provider.StreamEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requests) >= len(p.turns) {
		return nil, fmt.Errorf("unexpected request %d", len(p.requests)+1)
	}
	script := p.turns[len(p.requests)]
	p.requests = append(p.requests, req)

	ch := make(chan provider.StreamEvent)
	go func() {
		defer close(ch)
		for _, ev := range script {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (p *scriptedProvider) requestCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

func collect(t *testing.T, seq func(func(events.Event, error) bool)) []events.Event {
	t.Helper()
	var got []events.Event
	for event, err := range seq {
		require.NoError(t, err)
		got = append(got, event)
	}
	return got
}

type addArgs struct {
	A int `json:"a"`
	B int `json:"b"`
}

func addTool(t *testing.T) *tool.Set {
	t.Helper()
	set := tool.NewSet()
	require.NoError(t, set.Add(tool.Must(func(args tool.Args[addArgs]) int {
		return args.Value.A + args.Value.B
	}, tool.Name("add"))))
	return set
}

func TestResponsesStreamEndToEnd(t *testing.T) {
	prov := &scriptedProvider{turns: [][]provider.StreamEvent{
		{
			provider.TextDelta{Text: "Let me add those."},
			provider.ToolCallStarted{CallID: "call_1", Name: "add"},
			provider.ToolCallArgumentsDelta{CallID: "call_1", Delta: `{"a":2,`},
			provider.ToolCallArgumentsDelta{CallID: "call_1", Delta: `"b":3}`},
			provider.ToolCallCompleted{CallID: "call_1"},
			provider.UsageUpdate{InputTokens: 40, OutputTokens: 12},
			provider.TurnCompleted{ResponseID: "resp_1"},
		},
		{
			provider.TextDelta{Text: "The sum is 5."},
			provider.UsageUpdate{InputTokens: 60, CachedInputTokens: 30, OutputTokens: 8},
			provider.TurnCompleted{ResponseID: "resp_2"},
		},
	}}

	session := NewSession(messages.New().UserPrompt("what is 2+3?"))
	got := collect(t, ResponsesStream(context.Background(), session, prov, addTool(t), &GenerateConfig{Model: GPT41Mini}))

	var calls []events.ToolCall
	var results []events.ToolResult
	var text string
	for _, ev := range got {
		switch ev := ev.(type) {
		case events.ToolCall:
			calls = append(calls, ev)
		case events.ToolResult:
			results = append(results, ev)
		case events.Text:
			text += ev.Text
		}
	}

	require.Len(t, calls, 1)
	assert.Equal(t, "add", calls[0].Call.Name)
	assert.False(t, calls[0].Pending)

	require.Len(t, results, 1)
	assert.JSONEq(t, `5`, string(results[0].Result.Value))
	assert.Contains(t, text, "The sum is 5.")

	// user prompt, assistant text, tool-call record, tool result, final text
	transcript := session.Messages()
	require.Len(t, transcript, 5)
	assert.Equal(t, messages.User, transcript[0].Role)
	assert.Equal(t, "Let me add those.", transcript[1].Content)
	require.True(t, transcript[2].IsToolCall())
	assert.Equal(t, "add", transcript[2].ToolCalls[0].Name)
	assert.Equal(t, messages.Tool, transcript[3].Role)
	assert.Equal(t, "call_1", transcript[3].CallID)
	assert.JSONEq(t, `5`, transcript[3].Content)
	assert.Equal(t, "The sum is 5.", transcript[4].Content)

	assert.Equal(t, "resp_2", session.Cursor())
	assert.Equal(t, Usage{InputTokens: 100, CachedInputTokens: 30, OutputTokens: 20}, session.Usage())
	assert.True(t, session.Cost().IsPositive())

	// the follow-up request threads the cursor and the tool result
	require.Equal(t, 2, prov.requestCount())
	assert.Empty(t, prov.requests[0].PreviousResponseID)
	assert.Equal(t, "resp_1", prov.requests[1].PreviousResponseID)
	last := prov.requests[1].Thread[len(prov.requests[1].Thread)-1]
	assert.Equal(t, messages.Tool, last.Role)
}

func TestToolFailureContinuesStream(t *testing.T) {
	set := tool.NewSet()
	require.NoError(t, set.Add(tool.Must(func() (string, error) {
		return "", errors.New("boom")
	}, tool.Name("say_hello"))))

	prov := &scriptedProvider{turns: [][]provider.StreamEvent{
		{
			provider.ToolCallStarted{CallID: "call_1", Name: "say_hello"},
			provider.ToolCallCompleted{CallID: "call_1"},
			provider.TurnCompleted{ResponseID: "resp_1"},
		},
		{
			provider.TextDelta{Text: "Something went wrong with the greeting."},
			provider.TurnCompleted{ResponseID: "resp_2"},
		},
	}}

	session := NewSession(messages.New().UserPrompt("greet me"))
	got := collect(t, ResponsesStream(context.Background(), session, prov, set, &GenerateConfig{Model: GPT41}))

	var result *events.ToolResult
	for _, ev := range got {
		if ev, ok := ev.(events.ToolResult); ok {
			result = &ev
		}
	}
	require.NotNil(t, result)
	assert.Equal(t, "boom", result.Result.Err)

	var toolMsg *messages.Message
	for _, msg := range session.Messages() {
		if msg.Role == messages.Tool {
			m := msg
			toolMsg = &m
		}
	}
	require.NotNil(t, toolMsg)
	assert.Equal(t, "call_1", toolMsg.CallID)
	assert.JSONEq(t, `{"error":"boom"}`, toolMsg.Content)

	// the model got to react in a second turn
	assert.Equal(t, 2, prov.requestCount())
}

func TestUnknownToolBecomesFailureResult(t *testing.T) {
	prov := &scriptedProvider{turns: [][]provider.StreamEvent{
		{
			provider.ToolCallStarted{CallID: "call_1", Name: "vanish"},
			provider.ToolCallCompleted{CallID: "call_1"},
			provider.TurnCompleted{},
		},
		{
			provider.TextDelta{Text: "I cannot do that."},
			provider.TurnCompleted{},
		},
	}}

	session := NewSession(messages.New().UserPrompt("use a tool I do not have"))
	got := collect(t, ResponsesStream(context.Background(), session, prov, tool.NewSet(), &GenerateConfig{Model: GPT41}))

	var result *events.ToolResult
	for _, ev := range got {
		if ev, ok := ev.(events.ToolResult); ok {
			result = &ev
		}
	}
	require.NotNil(t, result)
	assert.True(t, result.Result.Failed())
	assert.Contains(t, result.Result.Err, "vanish")
}

func TestClientToolEndsStreamWithoutBlocking(t *testing.T) {
	set := tool.NewSet()
	client, err := tool.NewClient("confirm", tool.Description("ask the user"))
	require.NoError(t, err)
	require.NoError(t, set.Add(client))

	prov := &scriptedProvider{turns: [][]provider.StreamEvent{
		{
			provider.ToolCallStarted{CallID: "call_1", Name: "confirm"},
			provider.ToolCallArgumentsDelta{CallID: "call_1", Delta: `{"question":"proceed?"}`},
			provider.ToolCallCompleted{CallID: "call_1"},
			provider.TurnCompleted{ResponseID: "resp_1"},
		},
	}}

	session := NewSession(messages.New().UserPrompt("do the thing"))
	done := make(chan []events.Event, 1)
	go func() {
		done <- collect(t, ResponsesStream(context.Background(), session, prov, set, &GenerateConfig{Model: GPT41}))
	}()

	var got []events.Event
	select {
	case got = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream blocked on a client tool")
	}

	var pending *events.ToolCall
	for _, ev := range got {
		if ev, ok := ev.(events.ToolCall); ok {
			pending = &ev
		}
	}
	require.NotNil(t, pending)
	assert.True(t, pending.Pending)
	assert.Equal(t, "confirm", pending.Call.Name)

	// no result was fabricated and no second request issued
	for _, msg := range session.Messages() {
		assert.NotEqual(t, messages.Tool, msg.Role)
	}
	assert.Equal(t, 1, prov.requestCount())

	// the caller resolves it out of band
	session.Append(messages.ToolResult{CallID: "call_1", ToolName: "confirm", Value: json.RawMessage(`true`)}.Message())
	last := session.Messages()[len(session.Messages())-1]
	assert.Equal(t, messages.Tool, last.Role)
}

func TestClientToolDecodeFailureResolvesInBand(t *testing.T) {
	set := tool.NewSet()
	client, err := tool.NewClient("confirm", tool.Description("ask the user"))
	require.NoError(t, err)
	require.NoError(t, set.Add(client))

	prov := &scriptedProvider{turns: [][]provider.StreamEvent{
		{
			provider.ToolCallStarted{CallID: "call_1", Name: "confirm"},
			provider.ToolCallArgumentsDelta{CallID: "call_1", Delta: "\x00\x01\x02"},
			provider.ToolCallCompleted{CallID: "call_1"},
			provider.TurnCompleted{ResponseID: "resp_1"},
		},
		{
			provider.TextDelta{Text: "I could not read that request."},
			provider.TurnCompleted{ResponseID: "resp_2"},
		},
	}}

	session := NewSession(messages.New().UserPrompt("do the thing"))
	got := collect(t, ResponsesStream(context.Background(), session, prov, set, &GenerateConfig{Model: GPT41}))

	// the broken call is never surfaced as pending
	var call *events.ToolCall
	var result *events.ToolResult
	for _, ev := range got {
		switch ev := ev.(type) {
		case events.ToolCall:
			call = &ev
		case events.ToolResult:
			result = &ev
		}
	}
	require.NotNil(t, call)
	assert.False(t, call.Pending)

	// the decode failure goes back to the model as a failure result
	require.NotNil(t, result)
	assert.True(t, result.Result.Failed())
	assert.Contains(t, result.Result.Err, "call_1")

	var toolMsg *messages.Message
	for _, msg := range session.Messages() {
		if msg.Role == messages.Tool {
			m := msg
			toolMsg = &m
		}
	}
	require.NotNil(t, toolMsg)
	assert.Equal(t, "call_1", toolMsg.CallID)
	assert.Contains(t, toolMsg.Content, "error")

	// the model got to react in a second turn
	assert.Equal(t, 2, prov.requestCount())
}

func TestResultsAppendInDecoderCompletionOrder(t *testing.T) {
	release := make(chan struct{})
	set := tool.NewSet()
	require.NoError(t, set.Add(tool.Must(func() string {
		<-release
		return "slow done"
	}, tool.Name("slow"))))
	require.NoError(t, set.Add(tool.Must(func() string {
		defer close(release)
		return "fast done"
	}, tool.Name("fast"))))

	prov := &scriptedProvider{turns: [][]provider.StreamEvent{
		{
			provider.ToolCallStarted{CallID: "call_slow", Name: "slow"},
			provider.ToolCallStarted{CallID: "call_fast", Name: "fast"},
			provider.ToolCallCompleted{CallID: "call_slow"},
			provider.ToolCallCompleted{CallID: "call_fast"},
			provider.TurnCompleted{},
		},
		{
			provider.TextDelta{Text: "done"},
			provider.TurnCompleted{},
		},
	}}

	session := NewSession(messages.New().UserPrompt("race"))
	collect(t, ResponsesStream(context.Background(), session, prov, set, &GenerateConfig{Model: GPT41}))

	var order []string
	for _, msg := range session.Messages() {
		if msg.Role == messages.Tool {
			order = append(order, msg.CallID)
		}
	}
	assert.Equal(t, []string{"call_slow", "call_fast"}, order)
}

func TestMaxTurnsBoundsTheLoop(t *testing.T) {
	loopTurn := []provider.StreamEvent{
		provider.ToolCallStarted{CallID: "call_1", Name: "add"},
		provider.ToolCallArgumentsDelta{CallID: "call_1", Delta: `{"a":1,"b":1}`},
		provider.ToolCallCompleted{CallID: "call_1"},
		provider.TurnCompleted{},
	}
	prov := &scriptedProvider{turns: [][]provider.StreamEvent{loopTurn, loopTurn, loopTurn}}

	session := NewSession(messages.New().UserPrompt("loop forever"))
	collect(t, ResponsesStream(context.Background(), session, prov, addTool(t), &GenerateConfig{Model: GPT41, MaxTurns: 2}))

	assert.Equal(t, 2, prov.requestCount())
}

func TestProtocolErrorIsFatalAndSessionStaysConsistent(t *testing.T) {
	prov := &scriptedProvider{turns: [][]provider.StreamEvent{
		{
			provider.TextDelta{Text: "partial"},
			provider.ToolCallArgumentsDelta{CallID: "ghost", Delta: "{"},
		},
	}}

	session := NewSession(messages.New().UserPrompt("hi"))
	var terminal error
	for _, err := range ResponsesStream(context.Background(), session, prov, tool.NewSet(), &GenerateConfig{Model: GPT41}) {
		if err != nil {
			terminal = err
		}
	}
	require.ErrorIs(t, terminal, decoder.ErrProtocol)

	// nothing half-written: the uncommitted turn never reached the transcript
	require.Len(t, session.Messages(), 1)

	// the lease was released
	lease, err := session.Acquire(context.Background())
	require.NoError(t, err)
	lease.Release()
}

func TestCancellationReleasesLease(t *testing.T) {
	prov := &scriptedProvider{turns: [][]provider.StreamEvent{
		{
			provider.TextDelta{Text: "thinking"},
			// the script ends here without turn completion; the producer
			// waits on ctx and closes the channel when canceled
		},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	session := NewSession(messages.New().UserPrompt("hi"))

	var terminal error
	for event, err := range ResponsesStream(ctx, session, prov, tool.NewSet(), &GenerateConfig{Model: GPT41}) {
		if err != nil {
			terminal = err
			continue
		}
		if _, ok := event.(events.Text); ok {
			cancel()
		}
	}
	require.ErrorIs(t, terminal, context.Canceled)

	lease, err := session.Acquire(context.Background())
	require.NoError(t, err)
	lease.Release()
}

func TestStreamValidatesInputs(t *testing.T) {
	session := NewSession()
	prov := &scriptedProvider{}

	for _, seq := range []func(func(events.Event, error) bool){
		ResponsesStream(context.Background(), session, prov, nil, nil),
		ResponsesStream(context.Background(), session, prov, nil, &GenerateConfig{}),
		ResponsesStream(context.Background(), nil, prov, nil, &GenerateConfig{Model: GPT41}),
		ResponsesStream(context.Background(), session, nil, nil, &GenerateConfig{Model: GPT41}),
	} {
		var terminal error
		for _, err := range seq {
			terminal = err
		}
		require.Error(t, terminal)
	}
}
