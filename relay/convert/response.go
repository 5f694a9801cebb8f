package convert

import (
	"encoding/json"
	"time"

	"github.com/NodeNestor/CodeGate/common/helper"
	relaymodel "github.com/NodeNestor/CodeGate/relay/model"
)

// StopReasonToFinishReason maps Anthropic stop reasons to OpenAI finish reasons.
func StopReasonToFinishReason(stopReason string) string {
	switch stopReason {
	case "end_turn":
		return "stop"
	case "max_tokens":
		return "length"
	case "tool_use":
		return "tool_calls"
	default:
		return "stop"
	}
}

// FinishReasonToStopReason maps OpenAI finish reasons to Anthropic stop reasons.
func FinishReasonToStopReason(finishReason string) string {
	switch finishReason {
	case "stop":
		return "end_turn"
	case "length":
		return "max_tokens"
	case "tool_calls":
		return "tool_use"
	default:
		return "end_turn"
	}
}

// OpenAIToClaudeResponse converts a buffered Chat Completions response into
// the Anthropic Messages shape. clientModel is the caller-visible model id.
func OpenAIToClaudeResponse(resp *relaymodel.OpenAIResponse, clientModel string) *relaymodel.ClaudeResponse {
	out := &relaymodel.ClaudeResponse{
		ID:    resp.ID,
		Type:  "message",
		Role:  "assistant",
		Model: clientModel,
	}
	if out.ID == "" {
		out.ID = helper.SynthesizeMessageID()
	}

	if len(resp.Choices) == 0 {
		out.Content = []relaymodel.ClaudeContent{}
		out.StopReason = "end_turn"
		return out
	}

	choice := resp.Choices[0]
	if text := choice.Message.StringContent(); text != "" {
		out.Content = append(out.Content, relaymodel.ClaudeContent{Type: "text", Text: text})
	}
	for _, tc := range choice.Message.ToolCalls {
		id := tc.ID
		if id == "" {
			id = helper.SynthesizeToolCallID()
		}
		var input any
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil || input == nil {
			input = map[string]any{"_raw": tc.Function.Arguments}
		}
		out.Content = append(out.Content, relaymodel.ClaudeContent{
			Type:  "tool_use",
			ID:    id,
			Name:  tc.Function.Name,
			Input: input,
		})
	}

	out.StopReason = FinishReasonToStopReason(choice.FinishReason)
	if resp.Usage != nil {
		out.Usage = relaymodel.ClaudeUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
	}
	return out
}

// ClaudeToOpenAIResponse converts a buffered Anthropic Messages response into
// the Chat Completions shape. clientModel is the caller-visible model id.
func ClaudeToOpenAIResponse(resp *relaymodel.ClaudeResponse, clientModel string) *relaymodel.OpenAIResponse {
	id := resp.ID
	if id == "" {
		id = helper.SynthesizeMessageID()
	}

	message := relaymodel.OpenAIMessage{Role: "assistant"}
	text := ""
	for _, blk := range resp.Content {
		switch blk.Type {
		case "text":
			text += blk.Text
		case "tool_use":
			input := blk.Input
			if input == nil {
				input = map[string]any{}
			}
			args, err := json.Marshal(input)
			if err != nil {
				args = []byte("{}")
			}
			message.ToolCalls = append(message.ToolCalls, relaymodel.ToolCall{
				ID:   blk.ID,
				Type: "function",
				Function: relaymodel.FunctionCall{
					Name:      blk.Name,
					Arguments: string(args),
				},
			})
		}
	}
	if text != "" {
		message.Content = text
	}

	usage := &relaymodel.OpenAIUsage{
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
		TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}

	return &relaymodel.OpenAIResponse{
		ID:      "chatcmpl-" + id,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   clientModel,
		Choices: []relaymodel.OpenAIChoice{{
			Index:        0,
			Message:      message,
			FinishReason: StopReasonToFinishReason(resp.StopReason),
		}},
		Usage: usage,
	}
}
