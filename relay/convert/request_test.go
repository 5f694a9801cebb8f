package convert

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	relaymodel "github.com/NodeNestor/CodeGate/relay/model"
)

func parseClaudeRequest(t *testing.T, body string) *relaymodel.ClaudeRequest {
	t.Helper()
	var req relaymodel.ClaudeRequest
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	return &req
}

func parseOpenAIRequest(t *testing.T, body string) *relaymodel.OpenAIRequest {
	t.Helper()
	var req relaymodel.OpenAIRequest
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	return &req
}

func TestClaudeToOpenAIRequestBasic(t *testing.T) {
	req := parseClaudeRequest(t, `{
		"model": "claude-sonnet-4-20250514",
		"system": "Be terse.",
		"messages": [{"role": "user", "content": "Hello"}],
		"max_tokens": 1024,
		"temperature": 0.5,
		"stop_sequences": ["END"]
	}`)

	out := ClaudeToOpenAIRequest(req, "gpt-4o")
	assert.Equal(t, "gpt-4o", out.Model)
	require.Len(t, out.Messages, 2)
	assert.Equal(t, "system", out.Messages[0].Role)
	assert.Equal(t, "Be terse.", out.Messages[0].Content)
	assert.Equal(t, "user", out.Messages[1].Role)
	assert.Equal(t, "Hello", out.Messages[1].Content)
	assert.Equal(t, 1024, out.MaxTokens)
	assert.Equal(t, 0.5, *out.Temperature)
	assert.Equal(t, []string{"END"}, out.Stop)
	assert.False(t, out.Stream)
	assert.Nil(t, out.StreamOptions)
}

func TestClaudeToOpenAIRequestSystemBlocks(t *testing.T) {
	req := parseClaudeRequest(t, `{
		"model": "claude-sonnet-4-20250514",
		"system": [{"type":"text","text":"one"},{"type":"text","text":"two"}],
		"messages": [{"role":"user","content":"hi"}],
		"max_tokens": 10
	}`)

	out := ClaudeToOpenAIRequest(req, "gpt-4o")
	require.NotEmpty(t, out.Messages)
	assert.Equal(t, "one\ntwo", out.Messages[0].Content)
}

func TestClaudeToOpenAIRequestStreamSetsIncludeUsage(t *testing.T) {
	req := parseClaudeRequest(t, `{
		"model": "claude-sonnet-4-20250514",
		"messages": [{"role":"user","content":"hi"}],
		"max_tokens": 10,
		"stream": true
	}`)

	out := ClaudeToOpenAIRequest(req, "gpt-4o")
	assert.True(t, out.Stream)
	require.NotNil(t, out.StreamOptions)
	assert.True(t, out.StreamOptions.IncludeUsage)
}

func TestClaudeToOpenAIRequestToolUse(t *testing.T) {
	req := parseClaudeRequest(t, `{
		"model": "claude-sonnet-4-20250514",
		"messages": [
			{"role": "assistant", "content": [
				{"type": "tool_use", "id": "toolu_123", "name": "get_weather", "input": {"city": "NYC"}}
			]},
			{"role": "user", "content": [
				{"type": "tool_result", "tool_use_id": "toolu_123", "content": "sunny"}
			]}
		],
		"max_tokens": 100
	}`)

	out := ClaudeToOpenAIRequest(req, "gpt-4o")
	require.Len(t, out.Messages, 2)

	assistant := out.Messages[0]
	require.Len(t, assistant.ToolCalls, 1)
	assert.Equal(t, "toolu_123", assistant.ToolCalls[0].ID)
	assert.Equal(t, "function", assistant.ToolCalls[0].Type)
	assert.Equal(t, "get_weather", assistant.ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"city":"NYC"}`, assistant.ToolCalls[0].Function.Arguments)
	assert.Nil(t, assistant.Content, "tool-call-only message carries null content")

	tool := out.Messages[1]
	assert.Equal(t, "tool", tool.Role)
	assert.Equal(t, "toolu_123", tool.ToolCallID)
	assert.Equal(t, "sunny", tool.Content)
}

func TestClaudeToOpenAIRequestToolResultArrayContent(t *testing.T) {
	req := parseClaudeRequest(t, `{
		"model": "claude-sonnet-4-20250514",
		"messages": [
			{"role": "user", "content": [
				{"type": "tool_result", "tool_use_id": "toolu_1", "content": [
					{"type":"text","text":"line1"},
					{"type":"text","text":"line2"},
					{"type":"data","value":42}
				]}
			]}
		],
		"max_tokens": 100
	}`)

	out := ClaudeToOpenAIRequest(req, "gpt-4o")
	require.Len(t, out.Messages, 1)
	content, ok := out.Messages[0].Content.(string)
	require.True(t, ok)
	assert.Contains(t, content, "line1\nline2")
	assert.Contains(t, content, `"value":42`)
}

func TestClaudeToOpenAIRequestThinkingDropped(t *testing.T) {
	req := parseClaudeRequest(t, `{
		"model": "claude-sonnet-4-20250514",
		"messages": [
			{"role": "assistant", "content": [
				{"type": "thinking", "thinking": "secret chain", "signature": "sig"},
				{"type": "text", "text": "visible"}
			]}
		],
		"max_tokens": 100
	}`)

	out := ClaudeToOpenAIRequest(req, "gpt-4o")
	require.Len(t, out.Messages, 1)
	assert.Equal(t, "visible", out.Messages[0].Content)
}

func TestClaudeToOpenAIRequestImageBlocks(t *testing.T) {
	req := parseClaudeRequest(t, `{
		"model": "claude-sonnet-4-20250514",
		"messages": [
			{"role": "user", "content": [
				{"type": "text", "text": "what is this"},
				{"type": "image", "source": {"type": "base64", "media_type": "image/png", "data": "AAAA"}}
			]}
		],
		"max_tokens": 100
	}`)

	out := ClaudeToOpenAIRequest(req, "gpt-4o")
	parts, ok := out.Messages[0].Content.([]any)
	require.True(t, ok)
	require.Len(t, parts, 2)
	img := parts[1].(map[string]any)
	assert.Equal(t, "image_url", img["type"])
	iu := img["image_url"].(map[string]any)
	assert.Equal(t, "data:image/png;base64,AAAA", iu["url"])
}

func TestClaudeToOpenAIRequestToolChoice(t *testing.T) {
	for _, tc := range []struct {
		choice string
		want   any
	}{
		{`{"type":"auto"}`, "auto"},
		{`{"type":"any"}`, "required"},
	} {
		req := parseClaudeRequest(t, `{
			"model":"claude-sonnet-4-20250514",
			"messages":[{"role":"user","content":"hi"}],
			"max_tokens":10,
			"tool_choice": `+tc.choice+`
		}`)
		out := ClaudeToOpenAIRequest(req, "gpt-4o")
		assert.Equal(t, tc.want, out.ToolChoice)
	}

	req := parseClaudeRequest(t, `{
		"model":"claude-sonnet-4-20250514",
		"messages":[{"role":"user","content":"hi"}],
		"max_tokens":10,
		"tool_choice": {"type":"tool","name":"get_weather"}
	}`)
	out := ClaudeToOpenAIRequest(req, "gpt-4o")
	m, ok := out.ToolChoice.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "function", m["type"])
	assert.Equal(t, map[string]any{"name": "get_weather"}, m["function"])
}

func TestClaudeToOpenAIRequestDeepSeekReasoner(t *testing.T) {
	req := parseClaudeRequest(t, `{
		"model": "claude-sonnet-4-20250514",
		"messages": [
			{"role": "assistant", "content": [
				{"type": "tool_use", "id": "t1", "name": "f", "input": {}}
			]}
		],
		"max_tokens": 100
	}`)

	out := ClaudeToOpenAIRequest(req, "deepseek-reasoner")
	require.Len(t, out.Messages, 1)
	require.NotNil(t, out.Messages[0].ReasoningContent)
	assert.Equal(t, "", *out.Messages[0].ReasoningContent)

	out = ClaudeToOpenAIRequest(req, "gpt-4o")
	assert.Nil(t, out.Messages[0].ReasoningContent)
}

func TestOpenAIToClaudeRequestBasic(t *testing.T) {
	req := parseOpenAIRequest(t, `{
		"model": "gpt-4o",
		"messages": [
			{"role": "system", "content": "Be terse."},
			{"role": "user", "content": "Hello"}
		],
		"max_tokens": 256,
		"stop": "END"
	}`)

	out := OpenAIToClaudeRequest(req)
	system, ok := out.System.([]any)
	require.True(t, ok)
	require.Len(t, system, 1)
	require.Len(t, out.Messages, 1)
	assert.Equal(t, "Hello", out.Messages[0].Content)
	assert.Equal(t, 256, out.MaxTokens)
	assert.Equal(t, []string{"END"}, out.StopSequences)
}

func TestOpenAIToClaudeRequestDefaultsMaxTokens(t *testing.T) {
	req := parseOpenAIRequest(t, `{
		"model": "gpt-4o",
		"messages": [{"role":"user","content":"hi"}]
	}`)
	out := OpenAIToClaudeRequest(req)
	assert.Equal(t, 4096, out.MaxTokens)

	req = parseOpenAIRequest(t, `{
		"model": "gpt-4o",
		"max_completion_tokens": 99,
		"messages": [{"role":"user","content":"hi"}]
	}`)
	out = OpenAIToClaudeRequest(req)
	assert.Equal(t, 99, out.MaxTokens)
}

func TestOpenAIToClaudeRequestToolMessages(t *testing.T) {
	req := parseOpenAIRequest(t, `{
		"model": "gpt-4o",
		"messages": [
			{"role": "assistant", "content": "calling", "tool_calls": [
				{"id": "call_1", "type": "function", "function": {"name": "f", "arguments": "{\"a\":1}"}}
			]},
			{"role": "tool", "tool_call_id": "call_1", "content": "result text"}
		],
		"max_tokens": 100
	}`)

	out := OpenAIToClaudeRequest(req)
	require.Len(t, out.Messages, 2)

	blocks, ok := out.Messages[0].Content.([]any)
	require.True(t, ok)
	require.Len(t, blocks, 2)
	text := blocks[0].(map[string]any)
	assert.Equal(t, "text", text["type"])
	toolUse := blocks[1].(map[string]any)
	assert.Equal(t, "tool_use", toolUse["type"])
	assert.Equal(t, "call_1", toolUse["id"])
	assert.Equal(t, map[string]any{"a": float64(1)}, toolUse["input"])

	toolResult := out.Messages[1]
	assert.Equal(t, "user", toolResult.Role)
	resultBlocks := toolResult.Content.([]any)
	rb := resultBlocks[0].(map[string]any)
	assert.Equal(t, "tool_result", rb["type"])
	assert.Equal(t, "call_1", rb["tool_use_id"])
	assert.Equal(t, "result text", rb["content"])
}

func TestOpenAIToClaudeRequestBadToolArgumentsFallBack(t *testing.T) {
	req := parseOpenAIRequest(t, `{
		"model": "gpt-4o",
		"messages": [
			{"role": "assistant", "tool_calls": [
				{"id": "call_1", "type": "function", "function": {"name": "f", "arguments": "not json"}}
			]}
		],
		"max_tokens": 100
	}`)
	out := OpenAIToClaudeRequest(req)
	blocks := out.Messages[0].Content.([]any)
	toolUse := blocks[0].(map[string]any)
	assert.Equal(t, map[string]any{}, toolUse["input"])
}

func TestOpenAIToClaudeRequestImageURL(t *testing.T) {
	req := parseOpenAIRequest(t, `{
		"model": "gpt-4o",
		"messages": [{"role": "user", "content": [
			{"type": "text", "text": "look"},
			{"type": "image_url", "image_url": {"url": "data:image/jpeg;base64,QUJD"}},
			{"type": "image_url", "image_url": {"url": "https://example.com/x.png"}}
		]}],
		"max_tokens": 10
	}`)

	out := OpenAIToClaudeRequest(req)
	blocks := out.Messages[0].Content.([]any)
	require.Len(t, blocks, 3)

	inline := blocks[1].(map[string]any)["source"].(map[string]any)
	assert.Equal(t, "base64", inline["type"])
	assert.Equal(t, "image/jpeg", inline["media_type"])
	assert.Equal(t, "QUJD", inline["data"])

	remote := blocks[2].(map[string]any)["source"].(map[string]any)
	assert.Equal(t, "url", remote["type"])
	assert.Equal(t, "https://example.com/x.png", remote["url"])
}

func TestOpenAIToClaudeRequestToolChoice(t *testing.T) {
	base := `{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}],"max_tokens":10,"tool_choice":`

	out := OpenAIToClaudeRequest(parseOpenAIRequest(t, base+`"auto"}`))
	require.NotNil(t, out.ToolChoice)
	assert.Equal(t, "auto", out.ToolChoice.Type)

	out = OpenAIToClaudeRequest(parseOpenAIRequest(t, base+`"required"}`))
	require.NotNil(t, out.ToolChoice)
	assert.Equal(t, "any", out.ToolChoice.Type)

	out = OpenAIToClaudeRequest(parseOpenAIRequest(t, base+`"none"}`))
	assert.Nil(t, out.ToolChoice)

	out = OpenAIToClaudeRequest(parseOpenAIRequest(t, base+`{"type":"function","function":{"name":"f"}}}`))
	require.NotNil(t, out.ToolChoice)
	assert.Equal(t, "tool", out.ToolChoice.Type)
	assert.Equal(t, "f", out.ToolChoice.Name)
}

// Round-trip: OpenAI -> Anthropic -> OpenAI preserves visible text and roles.
func TestRequestRoundTripTextOnly(t *testing.T) {
	req := parseOpenAIRequest(t, `{
		"model": "gpt-4o",
		"messages": [
			{"role": "user", "content": "first"},
			{"role": "assistant", "content": "second"},
			{"role": "user", "content": "third"}
		],
		"max_tokens": 128
	}`)

	claude := OpenAIToClaudeRequest(req)
	back := ClaudeToOpenAIRequest(claude, "gpt-4o")

	require.Len(t, back.Messages, 3)
	for i, want := range []string{"first", "second", "third"} {
		assert.Equal(t, req.Messages[i].Role, back.Messages[i].Role)
		assert.Equal(t, want, back.Messages[i].Content)
	}
	assert.Equal(t, 128, back.MaxTokens)
}

// Round-trip: tool_use ids and inputs survive both directions.
func TestRequestRoundTripToolUse(t *testing.T) {
	claude := parseClaudeRequest(t, `{
		"model": "claude-sonnet-4-20250514",
		"messages": [
			{"role": "assistant", "content": [
				{"type": "tool_use", "id": "toolu_abc", "name": "lookup", "input": {"q": "x", "n": 2}}
			]},
			{"role": "user", "content": [
				{"type": "tool_result", "tool_use_id": "toolu_abc", "content": "found"}
			]}
		],
		"max_tokens": 64
	}`)

	openai := ClaudeToOpenAIRequest(claude, "gpt-4o")
	back := OpenAIToClaudeRequest(openai)

	blocks := back.Messages[0].Content.([]any)
	toolUse := blocks[0].(map[string]any)
	assert.Equal(t, "toolu_abc", toolUse["id"])
	assert.Equal(t, "lookup", toolUse["name"])
	assert.Equal(t, map[string]any{"q": "x", "n": float64(2)}, toolUse["input"])

	resultBlocks := back.Messages[1].Content.([]any)
	rb := resultBlocks[0].(map[string]any)
	assert.Equal(t, "toolu_abc", rb["tool_use_id"])
	assert.Equal(t, "found", rb["content"])
}
