package openai

import (
	"context"
	"testing"
	"time"

	"github.com/aiflow-go/aiflow/messages"
	"github.com/aiflow-go/aiflow/provider"
	"github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textChunk(id, content string) openai.ChatCompletionChunk {
	return openai.ChatCompletionChunk{
		ID: id,
		Choices: []openai.ChatCompletionChunkChoice{{
			Delta: openai.ChatCompletionChunkChoicesDelta{Content: content},
		}},
	}
}

func toolCallChunk(index int64, callID, name, args string) openai.ChatCompletionChunk {
	return openai.ChatCompletionChunk{
		ID: "chatcmpl-1",
		Choices: []openai.ChatCompletionChunkChoice{{
			Delta: openai.ChatCompletionChunkChoicesDelta{
				ToolCalls: []openai.ChatCompletionChunkChoicesDeltaToolCall{{
					Index: index,
					ID:    callID,
					Function: openai.ChatCompletionChunkChoicesDeltaToolCallsFunction{
						Name:      name,
						Arguments: args,
					},
				}},
			},
		}},
	}
}

func TestTranslatorTextAndUsage(t *testing.T) {
	var tr translator

	got := tr.translate(&openai.ChatCompletionChunk{
		ID: "chatcmpl-1",
		Choices: []openai.ChatCompletionChunkChoice{{
			Delta: openai.ChatCompletionChunkChoicesDelta{Content: "Hello"},
		}},
	})
	require.Equal(t, []provider.StreamEvent{provider.TextDelta{Text: "Hello"}}, got)

	// trailing usage chunk has no choices
	got = tr.translate(&openai.ChatCompletionChunk{
		ID: "chatcmpl-1",
		Usage: openai.CompletionUsage{
			PromptTokens:     120,
			CompletionTokens: 15,
			PromptTokensDetails: openai.CompletionUsagePromptTokensDetails{
				CachedTokens: 48,
			},
		},
	})
	require.Equal(t, []provider.StreamEvent{provider.UsageUpdate{
		InputTokens:       120,
		CachedInputTokens: 48,
		OutputTokens:      15,
	}}, got)

	assert.Equal(t, []provider.StreamEvent{provider.TurnCompleted{ResponseID: "chatcmpl-1"}}, tr.finish())
}

func TestTranslatorToolCallLifecycle(t *testing.T) {
	var tr translator

	got := tr.translate(ptr(toolCallChunk(0, "call_1", "add", "")))
	require.Equal(t, []provider.StreamEvent{
		provider.ToolCallStarted{CallID: "call_1", Name: "add"},
	}, got)

	// later deltas identify the call by index only
	got = tr.translate(ptr(toolCallChunk(0, "", "", `{"a":2,`)))
	require.Equal(t, []provider.StreamEvent{
		provider.ToolCallArgumentsDelta{CallID: "call_1", Delta: `{"a":2,`},
	}, got)

	// a second parallel call interleaves under its own index
	got = tr.translate(ptr(toolCallChunk(1, "call_2", "weather", "")))
	require.Equal(t, []provider.StreamEvent{
		provider.ToolCallStarted{CallID: "call_2", Name: "weather"},
	}, got)

	got = tr.translate(ptr(toolCallChunk(0, "", "", `"b":3}`)))
	require.Equal(t, []provider.StreamEvent{
		provider.ToolCallArgumentsDelta{CallID: "call_1", Delta: `"b":3}`},
	}, got)

	finish := tr.finish()
	require.Equal(t, []provider.StreamEvent{
		provider.ToolCallCompleted{CallID: "call_1"},
		provider.ToolCallCompleted{CallID: "call_2"},
		provider.TurnCompleted{ResponseID: "chatcmpl-1"},
	}, finish)
}

func TestTranslatorFirstChunkWithIDAndArguments(t *testing.T) {
	var tr translator

	got := tr.translate(ptr(toolCallChunk(0, "call_1", "add", `{"a":`)))
	require.Equal(t, []provider.StreamEvent{
		provider.ToolCallStarted{CallID: "call_1", Name: "add"},
		provider.ToolCallArgumentsDelta{CallID: "call_1", Delta: `{"a":`},
	}, got)
}

func TestMessagesToOpenAICoversAllRoles(t *testing.T) {
	b := messages.New()
	thread := []messages.Message{
		b.SystemPrompt("be useful"),
		b.UserPrompt("add 2 and 3"),
		b.AssistantMessage("let me check"),
		b.ToolCall(messages.ToolCallData{ID: "call_1", Name: "add", Arguments: `{"a":2,"b":3}`}),
		b.ToolResponse("call_1", "add", "5"),
	}

	params := messagesToOpenAI(thread)
	require.Len(t, params, 5)
}

func TestToolChoiceMapping(t *testing.T) {
	for _, choice := range []string{"auto", "required", "none"} {
		got, err := toolChoiceToOpenAI(choice)
		require.NoError(t, err)
		assert.NotNil(t, got)
	}

	_, err := toolChoiceToOpenAI("always")
	require.Error(t, err)
}

func TestSendGivesUpWhenContextEnds(t *testing.T) {
	full := make(chan provider.StreamEvent)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan bool, 1)
	go func() {
		done <- send(ctx, full, provider.TextDelta{Text: "stranded"})
	}()
	select {
	case delivered := <-done:
		assert.False(t, delivered)
	case <-time.After(2 * time.Second):
		t.Fatal("send blocked on an abandoned consumer")
	}

	ready := make(chan provider.StreamEvent, 1)
	assert.True(t, send(context.Background(), ready, provider.TextDelta{Text: "through"}))
	assert.Equal(t, provider.TextDelta{Text: "through"}, <-ready)
}

func ptr[T any](v T) *T { return &v }
