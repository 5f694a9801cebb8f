package model

import "encoding/json"

// ClaudeRequest mirrors the Anthropic Messages request body.
type ClaudeRequest struct {
	Model         string            `json:"model"`
	System        any               `json:"system,omitempty"`
	Messages      []ClaudeMessage   `json:"messages"`
	MaxTokens     int               `json:"max_tokens,omitempty"`
	Temperature   *float64          `json:"temperature,omitempty"`
	TopP          *float64          `json:"top_p,omitempty"`
	Stream        *bool             `json:"stream,omitempty"`
	StopSequences []string          `json:"stop_sequences,omitempty"`
	Tools         []ClaudeTool      `json:"tools,omitempty"`
	ToolChoice    *ClaudeToolChoice `json:"tool_choice,omitempty"`
	Metadata      any               `json:"metadata,omitempty"`
}

// IsStream reports whether the client requested SSE delivery.
func (r *ClaudeRequest) IsStream() bool {
	return r.Stream != nil && *r.Stream
}

// SystemText flattens the system prompt. A block array joins the text of each
// text block with newlines.
func (r *ClaudeRequest) SystemText() string {
	switch v := r.System.(type) {
	case string:
		return v
	case []any:
		text := ""
		for _, blk := range v {
			bm, ok := blk.(map[string]any)
			if !ok {
				continue
			}
			if t, _ := bm["type"].(string); t != "text" {
				continue
			}
			s, _ := bm["text"].(string)
			if text != "" {
				text += "\n"
			}
			text += s
		}
		return text
	}
	return ""
}

// ClaudeMessage is one conversation turn. Content is a string or an array of
// content blocks.
type ClaudeMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// ParseContent decodes array content into typed blocks. String content and
// unknown shapes yield nil.
func (m *ClaudeMessage) ParseContent() []ClaudeContent {
	arr, ok := m.Content.([]any)
	if !ok {
		return nil
	}
	raw, err := json.Marshal(arr)
	if err != nil {
		return nil
	}
	var blocks []ClaudeContent
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return nil
	}
	return blocks
}

// StringContent returns the content when it is a plain string.
func (m *ClaudeMessage) StringContent() (string, bool) {
	s, ok := m.Content.(string)
	return s, ok
}

// ClaudeContent is a single content block of any Anthropic block type.
type ClaudeContent struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// image
	Source *ClaudeImageSource `json:"source,omitempty"`

	// tool_use
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Input any    `json:"input,omitempty"`

	// tool_result; Content is a string or an array of nested blocks
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   any    `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`

	// thinking
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`
}

// ClaudeImageSource references image bytes either inline or by URL.
type ClaudeImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

// ClaudeTool declares a tool in Anthropic terms.
type ClaudeTool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	InputSchema any    `json:"input_schema,omitempty"`
}

// ClaudeToolChoice selects tool invocation behavior.
type ClaudeToolChoice struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

// ClaudeResponse is a non-streaming Messages response.
type ClaudeResponse struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	Role         string          `json:"role"`
	Model        string          `json:"model"`
	Content      []ClaudeContent `json:"content"`
	StopReason   string          `json:"stop_reason,omitempty"`
	StopSequence *string         `json:"stop_sequence"`
	Usage        ClaudeUsage     `json:"usage"`
}

// ClaudeUsage carries token accounting in Anthropic terms.
type ClaudeUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
}
