package convert

import (
	"encoding/json"
	"time"

	"github.com/Laisky/errors/v2"

	"github.com/NodeNestor/CodeGate/common/helper"
	relaymodel "github.com/NodeNestor/CodeGate/relay/model"
)

// ClaudeToOpenAIStream converts an Anthropic Messages SSE stream into Chat
// Completions chunks. Feed one event (name + data payload) at a time; the
// returned done flag signals that `data: [DONE]` should terminate the client
// stream.
type ClaudeToOpenAIStream struct {
	clientModel string
	chatID      string
	created     int64
}

// NewClaudeToOpenAIStream returns a converter that reports clientModel in
// every chunk.
func NewClaudeToOpenAIStream(clientModel string) *ClaudeToOpenAIStream {
	return &ClaudeToOpenAIStream{
		clientModel: clientModel,
		created:     time.Now().Unix(),
	}
}

// claudeStreamEvent is the superset of fields the converter reads from
// Anthropic stream events.
type claudeStreamEvent struct {
	Type  string `json:"type"`
	Index *int   `json:"index"`

	Message *struct {
		ID string `json:"id"`
	} `json:"message"`

	ContentBlock *struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block"`

	Delta *struct {
		Type        string  `json:"type"`
		Text        string  `json:"text"`
		PartialJSON string  `json:"partial_json"`
		StopReason  *string `json:"stop_reason"`
	} `json:"delta"`

	Usage *struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Feed consumes one upstream Anthropic event and returns zero or more OpenAI
// chunk payloads (without the `data: ` framing).
func (s *ClaudeToOpenAIStream) Feed(eventName string, payload []byte) (chunks [][]byte, done bool, err error) {
	var event claudeStreamEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, false, errors.Wrap(err, "parse upstream claude event")
	}
	if event.Type == "" {
		event.Type = eventName
	}

	switch event.Type {
	case "message_start":
		id := ""
		if event.Message != nil {
			id = event.Message.ID
		}
		if id == "" {
			id = helper.SynthesizeMessageID()
		}
		s.chatID = "chatcmpl-" + id
		return [][]byte{s.chunk(relaymodel.OpenAIDelta{Role: "assistant", Content: ""}, nil, nil)}, false, nil

	case "content_block_start":
		if event.ContentBlock == nil || event.ContentBlock.Type != "tool_use" {
			return nil, false, nil
		}
		blockIdx := 1
		if event.Index != nil {
			blockIdx = *event.Index
		}
		toolIdx := blockIdx - 1
		if toolIdx < 0 {
			toolIdx = 0
		}
		id := event.ContentBlock.ID
		if id == "" {
			id = helper.SynthesizeToolCallID()
		}
		delta := relaymodel.OpenAIDelta{ToolCalls: []relaymodel.ToolCall{{
			Index: &toolIdx,
			ID:    id,
			Type:  "function",
			Function: relaymodel.FunctionCall{
				Name:      event.ContentBlock.Name,
				Arguments: "",
			},
		}}}
		return [][]byte{s.chunk(delta, nil, nil)}, false, nil

	case "content_block_delta":
		if event.Delta == nil {
			return nil, false, nil
		}
		switch event.Delta.Type {
		case "text_delta":
			return [][]byte{s.chunk(relaymodel.OpenAIDelta{Content: event.Delta.Text}, nil, nil)}, false, nil
		case "input_json_delta":
			toolIdx := 0
			if event.Index != nil {
				toolIdx = *event.Index
			}
			delta := relaymodel.OpenAIDelta{ToolCalls: []relaymodel.ToolCall{{
				Index:    &toolIdx,
				Function: relaymodel.FunctionCall{Arguments: event.Delta.PartialJSON},
			}}}
			return [][]byte{s.chunk(delta, nil, nil)}, false, nil
		}
		return nil, false, nil

	case "message_delta":
		if event.Delta == nil || event.Delta.StopReason == nil {
			return nil, false, nil
		}
		finish := StopReasonToFinishReason(*event.Delta.StopReason)
		var usage *relaymodel.OpenAIUsage
		if event.Usage != nil {
			usage = &relaymodel.OpenAIUsage{
				PromptTokens:     0,
				CompletionTokens: event.Usage.OutputTokens,
				TotalTokens:      event.Usage.OutputTokens,
			}
		}
		return [][]byte{s.chunk(relaymodel.OpenAIDelta{}, &finish, usage)}, false, nil

	case "message_stop":
		return nil, true, nil
	}

	return nil, false, nil
}

func (s *ClaudeToOpenAIStream) chunk(delta relaymodel.OpenAIDelta, finishReason *string, usage *relaymodel.OpenAIUsage) []byte {
	id := s.chatID
	if id == "" {
		id = "chatcmpl-" + helper.SynthesizeMessageID()
	}
	payload := relaymodel.OpenAIStreamChunk{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: s.created,
		Model:   s.clientModel,
		Choices: []relaymodel.OpenAIStreamChoice{{
			Index:        0,
			Delta:        delta,
			FinishReason: finishReason,
		}},
		Usage: usage,
	}
	data, _ := json.Marshal(payload)
	return data
}
