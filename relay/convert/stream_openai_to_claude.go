package convert

import (
	"encoding/json"

	"github.com/Laisky/errors/v2"

	"github.com/NodeNestor/CodeGate/common/helper"
	relaymodel "github.com/NodeNestor/CodeGate/relay/model"
)

// ClaudeEvent is one Anthropic SSE frame: `event: <Name>\ndata: <Data>\n\n`.
type ClaudeEvent struct {
	Name string
	Data []byte
}

func claudeEvent(name string, payload any) ClaudeEvent {
	data, _ := json.Marshal(payload)
	return ClaudeEvent{Name: name, Data: data}
}

// OpenAIToClaudeStream converts a Chat Completions SSE stream into Anthropic
// Messages events. Feed one `data:` payload at a time; call Done on `[DONE]`
// or upstream EOF.
type OpenAIToClaudeStream struct {
	clientModel string

	started       bool
	messageID     string
	nextIndex     int
	startedBlocks []int

	textIndex   int
	textStarted bool

	thinkingIndex   int
	thinkingStarted bool

	// upstream tool-call index -> Anthropic block index
	toolBlocks map[int]int

	lastFinishReason string
	outputTokens     int
	usageSeen        bool
}

// NewOpenAIToClaudeStream returns a converter that reports clientModel in
// message_start.
func NewOpenAIToClaudeStream(clientModel string) *OpenAIToClaudeStream {
	return &OpenAIToClaudeStream{
		clientModel: clientModel,
		toolBlocks:  make(map[int]int),
	}
}

// Feed consumes one upstream data payload and returns the Anthropic events it
// produces. Unparseable payloads are skipped without error propagation being
// fatal to the stream.
func (s *OpenAIToClaudeStream) Feed(payload []byte) ([]ClaudeEvent, error) {
	var chunk relaymodel.OpenAIStreamChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return nil, errors.Wrap(err, "parse upstream stream chunk")
	}

	var events []ClaudeEvent
	if !s.started {
		s.started = true
		s.messageID = chunk.ID
		if s.messageID == "" {
			s.messageID = helper.SynthesizeMessageID()
		}
		events = append(events, claudeEvent("message_start", map[string]any{
			"type": "message_start",
			"message": map[string]any{
				"id":            s.messageID,
				"type":          "message",
				"role":          "assistant",
				"model":         s.clientModel,
				"content":       []any{},
				"stop_reason":   nil,
				"stop_sequence": nil,
				"usage":         map[string]any{"input_tokens": 0, "output_tokens": 0},
			},
		}))
	}

	if chunk.Usage != nil && chunk.Usage.CompletionTokens > 0 {
		s.outputTokens = chunk.Usage.CompletionTokens
		s.usageSeen = true
	}

	for _, choice := range chunk.Choices {
		if choice.FinishReason != nil && *choice.FinishReason != "" {
			s.lastFinishReason = *choice.FinishReason
		}

		if choice.Delta.ReasoningContent != "" {
			events = append(events, s.feedThinking(choice.Delta.ReasoningContent)...)
		}
		if text := choice.Delta.ContentString(); text != "" {
			events = append(events, s.feedText(text)...)
		}
		for _, tc := range choice.Delta.ToolCalls {
			events = append(events, s.feedToolCall(tc)...)
		}
	}

	return events, nil
}

func (s *OpenAIToClaudeStream) feedThinking(fragment string) []ClaudeEvent {
	var events []ClaudeEvent
	if !s.thinkingStarted {
		s.thinkingStarted = true
		s.thinkingIndex = s.openBlock()
		events = append(events, claudeEvent("content_block_start", map[string]any{
			"type":          "content_block_start",
			"index":         s.thinkingIndex,
			"content_block": map[string]any{"type": "thinking", "thinking": ""},
		}))
	}
	if !s.usageSeen {
		s.outputTokens++
	}
	events = append(events, claudeEvent("content_block_delta", map[string]any{
		"type":  "content_block_delta",
		"index": s.thinkingIndex,
		"delta": map[string]any{"type": "thinking_delta", "thinking": fragment},
	}))
	return events
}

func (s *OpenAIToClaudeStream) feedText(text string) []ClaudeEvent {
	var events []ClaudeEvent
	if !s.textStarted {
		events = append(events, s.openTextBlock()...)
	}
	if !s.usageSeen {
		s.outputTokens++
	}
	events = append(events, claudeEvent("content_block_delta", map[string]any{
		"type":  "content_block_delta",
		"index": s.textIndex,
		"delta": map[string]any{"type": "text_delta", "text": text},
	}))
	return events
}

func (s *OpenAIToClaudeStream) feedToolCall(tc relaymodel.ToolCall) []ClaudeEvent {
	var events []ClaudeEvent
	upstreamIdx := 0
	if tc.Index != nil {
		upstreamIdx = *tc.Index
	}

	if tc.Function.Name != "" {
		// A tool call before any text keeps the text block at index 0, so
		// open a placeholder first.
		if !s.textStarted {
			events = append(events, s.openTextBlock()...)
		}
		id := tc.ID
		if id == "" {
			id = helper.SynthesizeToolCallID()
		}
		blockIdx := s.openBlock()
		s.toolBlocks[upstreamIdx] = blockIdx
		events = append(events, claudeEvent("content_block_start", map[string]any{
			"type":  "content_block_start",
			"index": blockIdx,
			"content_block": map[string]any{
				"type":  "tool_use",
				"id":    id,
				"name":  tc.Function.Name,
				"input": map[string]any{},
			},
		}))
	}

	if tc.Function.Arguments != "" {
		blockIdx, ok := s.toolBlocks[upstreamIdx]
		if !ok {
			return events
		}
		if !s.usageSeen {
			s.outputTokens++
		}
		events = append(events, claudeEvent("content_block_delta", map[string]any{
			"type":  "content_block_delta",
			"index": blockIdx,
			"delta": map[string]any{"type": "input_json_delta", "partial_json": tc.Function.Arguments},
		}))
	}
	return events
}

func (s *OpenAIToClaudeStream) openTextBlock() []ClaudeEvent {
	s.textStarted = true
	s.textIndex = s.openBlock()
	return []ClaudeEvent{claudeEvent("content_block_start", map[string]any{
		"type":          "content_block_start",
		"index":         s.textIndex,
		"content_block": map[string]any{"type": "text", "text": ""},
	})}
}

func (s *OpenAIToClaudeStream) openBlock() int {
	idx := s.nextIndex
	s.nextIndex++
	s.startedBlocks = append(s.startedBlocks, idx)
	return idx
}

// Done closes every started block in index order and emits the trailing
// message_delta and message_stop. Safe to call once, on `[DONE]` or EOF.
func (s *OpenAIToClaudeStream) Done() []ClaudeEvent {
	var events []ClaudeEvent
	for _, idx := range s.startedBlocks {
		events = append(events, claudeEvent("content_block_stop", map[string]any{
			"type":  "content_block_stop",
			"index": idx,
		}))
	}
	events = append(events, claudeEvent("message_delta", map[string]any{
		"type": "message_delta",
		"delta": map[string]any{
			"stop_reason":   FinishReasonToStopReason(s.lastFinishReason),
			"stop_sequence": nil,
		},
		"usage": map[string]any{"output_tokens": s.outputTokens},
	}))
	events = append(events, claudeEvent("message_stop", map[string]any{"type": "message_stop"}))
	return events
}
