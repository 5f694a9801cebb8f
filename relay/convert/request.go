// Package convert implements the bidirectional translation between the
// Anthropic Messages and OpenAI Chat Completions wire formats, for request
// bodies, buffered responses, and SSE streams.
package convert

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/NodeNestor/CodeGate/common/config"
	"github.com/NodeNestor/CodeGate/relay/modelcap"
	relaymodel "github.com/NodeNestor/CodeGate/relay/model"
)

var deepseekReasonerRe = regexp.MustCompile(`(?i)deepseek-reasoner|deepseek-r1`)

// IsDeepSeekReasoner reports whether the target model follows DeepSeek's
// reasoner dialect, which requires reasoning_content on assistant tool-call
// messages.
func IsDeepSeekReasoner(model string) bool {
	return deepseekReasonerRe.MatchString(model)
}

// ClaudeToOpenAIRequest converts an Anthropic Messages request into the Chat
// Completions shape for the given resolver-selected target model. The
// client-requested model is never forwarded.
func ClaudeToOpenAIRequest(req *relaymodel.ClaudeRequest, targetModel string) *relaymodel.OpenAIRequest {
	out := &relaymodel.OpenAIRequest{
		Model:       targetModel,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stream:      req.IsStream(),
	}

	if system := req.SystemText(); system != "" {
		out.Messages = append(out.Messages, relaymodel.OpenAIMessage{Role: "system", Content: system})
	}

	for i := range req.Messages {
		out.Messages = append(out.Messages, convertClaudeMessage(&req.Messages[i])...)
	}

	if req.MaxTokens > 0 {
		out.MaxTokens = modelcap.ClampMaxTokens(req.MaxTokens, targetModel)
	}
	if len(req.StopSequences) > 0 {
		out.Stop = req.StopSequences
	}
	if out.Stream {
		// Some OpenAI-compatible upstreams only emit usage when asked;
		// the ones that don't understand the option ignore it.
		out.StreamOptions = &relaymodel.StreamOptions{IncludeUsage: true}
	}

	for _, tool := range req.Tools {
		params := tool.InputSchema
		if params == nil {
			params = map[string]any{}
		}
		out.Tools = append(out.Tools, relaymodel.OpenAITool{
			Type: "function",
			Function: &relaymodel.FunctionDef{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  params,
			},
		})
	}

	if req.ToolChoice != nil {
		switch req.ToolChoice.Type {
		case "auto":
			out.ToolChoice = "auto"
		case "any":
			out.ToolChoice = "required"
		case "tool":
			out.ToolChoice = map[string]any{
				"type":     "function",
				"function": map[string]any{"name": req.ToolChoice.Name},
			}
		}
	}

	if IsDeepSeekReasoner(targetModel) {
		empty := ""
		for i := range out.Messages {
			if out.Messages[i].Role == "assistant" && len(out.Messages[i].ToolCalls) > 0 {
				out.Messages[i].ReasoningContent = &empty
			}
		}
	}

	return out
}

// convertClaudeMessage maps one Anthropic message to one or more OpenAI
// messages. A tool_result block turns the whole message into a single
// role=tool message.
func convertClaudeMessage(msg *relaymodel.ClaudeMessage) []relaymodel.OpenAIMessage {
	if s, ok := msg.StringContent(); ok {
		return []relaymodel.OpenAIMessage{{Role: msg.Role, Content: s}}
	}

	blocks := msg.ParseContent()
	if blocks == nil {
		return []relaymodel.OpenAIMessage{{Role: msg.Role, Content: msg.Content}}
	}

	var textParts []any
	var toolCalls []relaymodel.ToolCall
	for i := range blocks {
		blk := &blocks[i]
		switch blk.Type {
		case "text":
			textParts = append(textParts, map[string]any{"type": "text", "text": blk.Text})
		case "image":
			if part := imageBlockToOpenAIPart(blk.Source); part != nil {
				textParts = append(textParts, part)
			}
		case "tool_use":
			args, err := json.Marshal(blk.Input)
			if err != nil {
				args = []byte("{}")
			}
			toolCalls = append(toolCalls, relaymodel.ToolCall{
				ID:   blk.ID,
				Type: "function",
				Function: relaymodel.FunctionCall{
					Name:      blk.Name,
					Arguments: string(args),
				},
			})
		case "tool_result":
			return []relaymodel.OpenAIMessage{{
				Role:       "tool",
				ToolCallID: blk.ToolUseID,
				Content:    flattenToolResultContent(blk.Content),
			}}
		case "thinking":
			// dropped: upstream chat formats have no thinking slot on requests
		default:
			if blk.Text != "" {
				textParts = append(textParts, map[string]any{"type": "text", "text": blk.Text})
			}
		}
	}

	out := relaymodel.OpenAIMessage{Role: msg.Role, ToolCalls: toolCalls}
	switch {
	case len(toolCalls) > 0 && len(textParts) > 0:
		text := ""
		for _, p := range textParts {
			if pm, ok := p.(map[string]any); ok {
				if s, ok := pm["text"].(string); ok {
					text += s
				}
			}
		}
		out.Content = text
	case len(textParts) == 0:
		out.Content = nil
	case len(textParts) == 1:
		if pm, ok := textParts[0].(map[string]any); ok {
			if t, _ := pm["type"].(string); t == "text" {
				out.Content = pm["text"]
				break
			}
		}
		out.Content = textParts
	default:
		out.Content = textParts
	}
	return []relaymodel.OpenAIMessage{out}
}

func imageBlockToOpenAIPart(source *relaymodel.ClaudeImageSource) map[string]any {
	if source == nil {
		return nil
	}
	switch source.Type {
	case "base64":
		return map[string]any{
			"type": "image_url",
			"image_url": map[string]any{
				"url": "data:" + source.MediaType + ";base64," + source.Data,
			},
		}
	case "url":
		return map[string]any{
			"type":      "image_url",
			"image_url": map[string]any{"url": source.URL},
		}
	}
	return nil
}

// flattenToolResultContent renders tool_result content as a string: strings
// pass through, block arrays join text parts with newlines (non-text parts
// JSON-stringified), anything else is JSON-stringified.
func flattenToolResultContent(content any) string {
	switch v := content.(type) {
	case nil:
		return ""
	case string:
		return v
	case []any:
		var parts []string
		for _, item := range v {
			if im, ok := item.(map[string]any); ok {
				if t, _ := im["type"].(string); t == "text" {
					if s, ok := im["text"].(string); ok {
						parts = append(parts, s)
						continue
					}
				}
			}
			b, err := json.Marshal(item)
			if err != nil {
				continue
			}
			parts = append(parts, string(b))
		}
		return strings.Join(parts, "\n")
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// OpenAIToClaudeRequest converts a Chat Completions request into the
// Anthropic Messages shape. The model field is preserved for routing; the
// orchestrator overrides it with the resolved target before forwarding.
func OpenAIToClaudeRequest(req *relaymodel.OpenAIRequest) *relaymodel.ClaudeRequest {
	out := &relaymodel.ClaudeRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	}
	if req.Stream {
		stream := true
		out.Stream = &stream
	}

	var systemBlocks []any
	for i := range req.Messages {
		msg := &req.Messages[i]
		switch {
		case msg.Role == "system":
			systemBlocks = append(systemBlocks, map[string]any{"type": "text", "text": msg.StringContent()})
		case msg.Role == "tool":
			out.Messages = append(out.Messages, relaymodel.ClaudeMessage{
				Role: "user",
				Content: []any{map[string]any{
					"type":        "tool_result",
					"tool_use_id": msg.ToolCallID,
					"content":     msg.Content,
				}},
			})
		case len(msg.ToolCalls) > 0:
			var blocks []any
			if text := msg.StringContent(); text != "" {
				blocks = append(blocks, map[string]any{"type": "text", "text": text})
			}
			for _, tc := range msg.ToolCalls {
				var input any = map[string]any{}
				if tc.Function.Arguments != "" {
					var parsed any
					if err := json.Unmarshal([]byte(tc.Function.Arguments), &parsed); err == nil {
						input = parsed
					}
				}
				blocks = append(blocks, map[string]any{
					"type":  "tool_use",
					"id":    tc.ID,
					"name":  tc.Function.Name,
					"input": input,
				})
			}
			out.Messages = append(out.Messages, relaymodel.ClaudeMessage{Role: msg.Role, Content: blocks})
		default:
			out.Messages = append(out.Messages, relaymodel.ClaudeMessage{
				Role:    msg.Role,
				Content: openAIContentToClaude(msg.Content),
			})
		}
	}
	if len(systemBlocks) > 0 {
		out.System = systemBlocks
	}

	switch {
	case req.MaxTokens > 0:
		out.MaxTokens = req.MaxTokens
	case req.MaxCompletionTokens != nil && *req.MaxCompletionTokens > 0:
		out.MaxTokens = *req.MaxCompletionTokens
	default:
		out.MaxTokens = config.DefaultMaxTokens
	}

	switch stop := req.Stop.(type) {
	case string:
		out.StopSequences = []string{stop}
	case []any:
		for _, s := range stop {
			if sv, ok := s.(string); ok {
				out.StopSequences = append(out.StopSequences, sv)
			}
		}
	}

	for _, tool := range req.Tools {
		if tool.Function == nil {
			continue
		}
		schema := tool.Function.Parameters
		if schema == nil {
			schema = map[string]any{}
		}
		out.Tools = append(out.Tools, relaymodel.ClaudeTool{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
			InputSchema: schema,
		})
	}

	switch tc := req.ToolChoice.(type) {
	case string:
		switch tc {
		case "auto":
			out.ToolChoice = &relaymodel.ClaudeToolChoice{Type: "auto"}
		case "required":
			out.ToolChoice = &relaymodel.ClaudeToolChoice{Type: "any"}
		case "none":
			// omitted: Anthropic has no direct equivalent
		}
	case map[string]any:
		if fn, ok := tc["function"].(map[string]any); ok {
			if name, ok := fn["name"].(string); ok {
				out.ToolChoice = &relaymodel.ClaudeToolChoice{Type: "tool", Name: name}
			}
		}
	}

	return out
}

// openAIContentToClaude maps message content parts to Anthropic blocks.
// String content passes through unchanged.
func openAIContentToClaude(content any) any {
	arr, ok := content.([]any)
	if !ok {
		return content
	}
	var blocks []any
	for _, part := range arr {
		pm, ok := part.(map[string]any)
		if !ok {
			continue
		}
		switch pm["type"] {
		case "text":
			blocks = append(blocks, map[string]any{"type": "text", "text": pm["text"]})
		case "image_url":
			iu, _ := pm["image_url"].(map[string]any)
			url, _ := iu["url"].(string)
			if mediaType, data, ok := parseDataURL(url); ok {
				blocks = append(blocks, map[string]any{
					"type": "image",
					"source": map[string]any{
						"type":       "base64",
						"media_type": mediaType,
						"data":       data,
					},
				})
			} else if url != "" {
				blocks = append(blocks, map[string]any{
					"type":   "image",
					"source": map[string]any{"type": "url", "url": url},
				})
			}
		}
	}
	return blocks
}

// parseDataURL splits "data:<mediatype>;base64,<data>" into its parts.
func parseDataURL(url string) (mediaType, data string, ok bool) {
	if !strings.HasPrefix(url, "data:") {
		return "", "", false
	}
	rest := url[len("data:"):]
	sep := strings.Index(rest, ";base64,")
	if sep < 0 {
		return "", "", false
	}
	return rest[:sep], rest[sep+len(";base64,"):], true
}
