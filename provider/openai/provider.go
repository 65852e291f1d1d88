package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/aiflow-go/aiflow/messages"
	"github.com/aiflow-go/aiflow/pkg/jsonx"
	"github.com/aiflow-go/aiflow/provider"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// Provider streams chat completions from the OpenAI API (or any compatible
// endpoint configured through request options).
type Provider struct {
	client *openai.Client
}

func New(options ...option.RequestOption) *Provider {
	return &Provider{
		client: openai.NewClient(options...),
	}
}

func (p *Provider) buildRequest(req *provider.Request) (openai.ChatCompletionNewParams, error) {
	tools := make([]openai.ChatCompletionToolParam, 0, len(req.Tools))
	for _, def := range req.Tools {
		fn := openai.FunctionDefinitionParam{
			Name: openai.String(def.Name),
		}
		if strings.TrimSpace(def.Description) != "" {
			fn.Description = openai.String(def.Description)
		}
		if def.Parameters != nil {
			jv, err := jsonx.ToDynamicJSON(def.Parameters)
			if err != nil {
				return openai.ChatCompletionNewParams{}, fmt.Errorf("converting schema of tool %s: %w", def.Name, err)
			}
			fn.Parameters = openai.F(shared.FunctionParameters(jv))
		}
		tools = append(tools, openai.ChatCompletionToolParam{
			Type:     openai.F(openai.ChatCompletionToolTypeFunction),
			Function: openai.F(fn),
		})
	}

	params := openai.ChatCompletionNewParams{
		Messages: openai.F(messagesToOpenAI(req.Thread)),
		Model:    openai.F(req.Model),
		N:        openai.Int(1),
		StreamOptions: openai.F(openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		}),
	}
	if len(tools) > 0 {
		params.Tools = openai.F(tools)
		params.ParallelToolCalls = openai.Bool(true)
	}
	if req.ToolChoice != "" {
		choice, err := toolChoiceToOpenAI(req.ToolChoice)
		if err != nil {
			return openai.ChatCompletionNewParams{}, err
		}
		params.ToolChoice = openai.F(choice)
	}

	return params, nil
}

// Responses opens one streamed turn. Chat completions carry no response
// cursor, the full thread travels with every request, so
// req.PreviousResponseID is not sent; TurnCompleted still reports the
// completion id for session bookkeeping.
func (p *Provider) Responses(ctx context.Context, req provider.Request) (<-chan provider.StreamEvent, error) {
	params, err := p.buildRequest(&req)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	events := make(chan provider.StreamEvent, 10)
	go func() {
		defer close(events)
		p.runStream(ctx, params, events)
	}()
	return events, nil
}

func (p *Provider) runStream(ctx context.Context, params openai.ChatCompletionNewParams, events chan<- provider.StreamEvent) {
	strm := p.client.Chat.Completions.NewStreaming(ctx, params)
	defer strm.Close()

	if strm.Err() != nil {
		send(ctx, events, provider.Error{Err: strm.Err()})
		return
	}

	var tr translator
	for strm.Next() {
		if ctx.Err() != nil {
			send(ctx, events, provider.Error{Err: ctx.Err()})
			return
		}

		chunk := strm.Current()
		for _, ev := range tr.translate(&chunk) {
			if !send(ctx, events, ev) {
				return
			}
		}
	}
	if err := strm.Err(); err != nil {
		send(ctx, events, provider.Error{Err: err})
		return
	}
	if err := ctx.Err(); err != nil {
		send(ctx, events, provider.Error{Err: err})
		return
	}

	for _, ev := range tr.finish() {
		if !send(ctx, events, ev) {
			return
		}
	}
}

// send delivers ev unless ctx ends first, so an abandoned consumer never
// strands the streaming goroutine on a full channel.
func send(ctx context.Context, events chan<- provider.StreamEvent, ev provider.StreamEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// translator folds the chunk stream into engine events. Tool-call deltas
// arrive keyed by index, with the call id and name only on the first delta
// of each call; completions for every opened call are emitted once the
// stream ends, after any trailing usage chunk.
type translator struct {
	byIndex    map[int64]string
	callOrder  []string
	responseID string
}

func (t *translator) translate(chunk *openai.ChatCompletionChunk) []provider.StreamEvent {
	var out []provider.StreamEvent

	if t.responseID == "" && chunk.ID != "" {
		t.responseID = chunk.ID
	}

	if chunk.Usage.PromptTokens > 0 || chunk.Usage.CompletionTokens > 0 {
		out = append(out, provider.UsageUpdate{
			InputTokens:       chunk.Usage.PromptTokens,
			CachedInputTokens: chunk.Usage.PromptTokensDetails.CachedTokens,
			OutputTokens:      chunk.Usage.CompletionTokens,
		})
	}

	if len(chunk.Choices) == 0 {
		return out
	}
	delta := chunk.Choices[0].Delta

	if delta.Content != "" {
		out = append(out, provider.TextDelta{Text: delta.Content})
	}

	for _, tc := range delta.ToolCalls {
		if tc.ID != "" {
			if t.byIndex == nil {
				t.byIndex = make(map[int64]string)
			}
			t.byIndex[tc.Index] = tc.ID
			t.callOrder = append(t.callOrder, tc.ID)
			out = append(out, provider.ToolCallStarted{CallID: tc.ID, Name: tc.Function.Name})
		}
		if tc.Function.Arguments != "" {
			out = append(out, provider.ToolCallArgumentsDelta{
				CallID: t.byIndex[tc.Index],
				Delta:  tc.Function.Arguments,
			})
		}
	}

	return out
}

func (t *translator) finish() []provider.StreamEvent {
	out := make([]provider.StreamEvent, 0, len(t.callOrder)+1)
	for _, id := range t.callOrder {
		out = append(out, provider.ToolCallCompleted{CallID: id})
	}
	out = append(out, provider.TurnCompleted{ResponseID: t.responseID})
	return out
}

func messagesToOpenAI(thread []messages.Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(thread))
	for _, msg := range thread {
		switch {
		case msg.Role == messages.System:
			result = append(result, openai.SystemMessage(msg.Content))
		case msg.Role == messages.User:
			result = append(result, openai.UserMessage(msg.Content))
		case msg.Role == messages.Tool:
			result = append(result, openai.ToolMessage(msg.CallID, msg.Content))
		case msg.IsToolCall():
			tcd := make([]openai.ChatCompletionMessageToolCallParam, len(msg.ToolCalls))
			for i, tc := range msg.ToolCalls {
				tcd[i] = openai.ChatCompletionMessageToolCallParam{
					ID:   openai.String(tc.ID),
					Type: openai.F(openai.ChatCompletionMessageToolCallTypeFunction),
					Function: openai.F(openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      openai.String(tc.Name),
						Arguments: openai.String(tc.Arguments),
					}),
				}
			}
			result = append(result, openai.ChatCompletionMessageParam{
				Role:      openai.F(openai.ChatCompletionMessageParamRoleAssistant),
				ToolCalls: openai.F[any](tcd),
			})
		case msg.Role == messages.Assistant:
			result = append(result, openai.AssistantMessage(msg.Content))
		}
	}
	return result
}

func toolChoiceToOpenAI(choice string) (openai.ChatCompletionToolChoiceOptionUnionParam, error) {
	switch choice {
	case "auto":
		return openai.ChatCompletionToolChoiceOptionBehaviorAuto, nil
	case "required":
		return openai.ChatCompletionToolChoiceOptionBehaviorRequired, nil
	case "none":
		return openai.ChatCompletionToolChoiceOptionBehaviorNone, nil
	default:
		return nil, fmt.Errorf("unsupported tool choice %q", choice)
	}
}
