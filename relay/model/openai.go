// Package model defines the wire shapes relayed between clients and
// upstreams: OpenAI Chat Completions, Anthropic Messages, and the error
// envelopes of both.
package model

// OpenAIRequest mirrors the Chat Completions request body. Fields the
// converter never touches are carried opaquely so pass-through keeps them.
type OpenAIRequest struct {
	Model               string          `json:"model"`
	Messages            []OpenAIMessage `json:"messages"`
	MaxTokens           int             `json:"max_tokens,omitempty"`
	MaxCompletionTokens *int            `json:"max_completion_tokens,omitempty"`
	Temperature         *float64        `json:"temperature,omitempty"`
	TopP                *float64        `json:"top_p,omitempty"`
	Stream              bool            `json:"stream,omitempty"`
	StreamOptions       *StreamOptions  `json:"stream_options,omitempty"`
	Stop                any             `json:"stop,omitempty"`
	Tools               []OpenAITool    `json:"tools,omitempty"`
	ToolChoice          any             `json:"tool_choice,omitempty"`
	User                string          `json:"user,omitempty"`
}

// StreamOptions requests usage chunks on streaming responses.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// OpenAIMessage is a chat message. Content is either a string or an array of
// content parts; it stays dynamic so both encodings round-trip.
type OpenAIMessage struct {
	Role             string     `json:"role"`
	Content          any        `json:"content"`
	Name             string     `json:"name,omitempty"`
	ToolCalls        []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID       string     `json:"tool_call_id,omitempty"`
	ReasoningContent *string    `json:"reasoning_content,omitempty"`
}

// StringContent flattens message content to plain text. Array content joins
// the text parts; non-text parts are ignored.
func (m *OpenAIMessage) StringContent() string {
	switch v := m.Content.(type) {
	case string:
		return v
	case []any:
		text := ""
		for _, part := range v {
			pm, ok := part.(map[string]any)
			if !ok {
				continue
			}
			if t, _ := pm["type"].(string); t == "text" {
				if s, ok := pm["text"].(string); ok {
					text += s
				}
			}
		}
		return text
	}
	return ""
}

// ContentParts returns the content as a slice of part maps, or nil for
// string/absent content.
func (m *OpenAIMessage) ContentParts() []map[string]any {
	arr, ok := m.Content.([]any)
	if !ok {
		return nil
	}
	parts := make([]map[string]any, 0, len(arr))
	for _, p := range arr {
		if pm, ok := p.(map[string]any); ok {
			parts = append(parts, pm)
		}
	}
	return parts
}

// ToolCall is an assistant function invocation.
type ToolCall struct {
	Index    *int         `json:"index,omitempty"`
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the function name and raw JSON arguments.
type FunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments"`
}

// OpenAITool declares a callable function.
type OpenAITool struct {
	Type     string       `json:"type"`
	Function *FunctionDef `json:"function,omitempty"`
}

// FunctionDef is a function declaration with a JSON-schema parameter object.
type FunctionDef struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
}

// OpenAIResponse is a non-streaming chat completion.
type OpenAIResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []OpenAIChoice `json:"choices"`
	Usage   *OpenAIUsage   `json:"usage,omitempty"`
}

// OpenAIChoice is a single completion choice.
type OpenAIChoice struct {
	Index        int           `json:"index"`
	Message      OpenAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason,omitempty"`
}

// OpenAIUsage carries token accounting in OpenAI terms.
type OpenAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// OpenAIStreamChunk is one `data:` payload of a Chat Completions stream.
type OpenAIStreamChunk struct {
	ID      string               `json:"id"`
	Object  string               `json:"object,omitempty"`
	Created int64                `json:"created,omitempty"`
	Model   string               `json:"model,omitempty"`
	Choices []OpenAIStreamChoice `json:"choices"`
	Usage   *OpenAIUsage         `json:"usage,omitempty"`
}

// OpenAIStreamChoice is a delta frame within a stream chunk.
type OpenAIStreamChoice struct {
	Index        int          `json:"index"`
	Delta        OpenAIDelta  `json:"delta"`
	FinishReason *string      `json:"finish_reason"`
}

// OpenAIDelta is the incremental payload of a stream choice.
type OpenAIDelta struct {
	Role             string     `json:"role,omitempty"`
	Content          any        `json:"content,omitempty"`
	ReasoningContent string     `json:"reasoning_content,omitempty"`
	ToolCalls        []ToolCall `json:"tool_calls,omitempty"`
}

// ContentString flattens the delta content to text.
func (d *OpenAIDelta) ContentString() string {
	switch v := d.Content.(type) {
	case string:
		return v
	case []any:
		text := ""
		for _, part := range v {
			if pm, ok := part.(map[string]any); ok {
				if t, _ := pm["type"].(string); t == "text" {
					if s, ok := pm["text"].(string); ok {
						text += s
					}
				}
			}
		}
		return text
	}
	return ""
}
