package guardrail

import (
	"encoding/json"

	"github.com/Laisky/errors/v2"
)

// AnonymizeJSON anonymizes an Anthropic-shaped request body. It walks the
// parsed object graph rather than typed structs so unknown block shapes pass
// through untouched. Returns the rewritten body and the total detection
// count.
func (e *Engine) AnonymizeJSON(raw []byte) ([]byte, int, error) {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, 0, errors.Wrap(err, "parse request body")
	}
	n := e.AnonymizeBody(body)
	if n == 0 {
		return raw, 0, nil
	}
	out, err := json.Marshal(body)
	if err != nil {
		return nil, 0, errors.Wrap(err, "marshal anonymized body")
	}
	return out, n, nil
}

// AnonymizeBody mutates body in place, anonymizing system text, message
// text blocks and tool_result text. Thinking blocks are never modified
// because upstream signatures cover their exact bytes.
func (e *Engine) AnonymizeBody(body map[string]any) int {
	total := 0

	switch system := body["system"].(type) {
	case string:
		out, n := e.AnonymizeText(system)
		if n > 0 {
			body["system"] = out
			total += n
		}
	case []any:
		for _, raw := range system {
			block, ok := raw.(map[string]any)
			if !ok || block["type"] != "text" {
				continue
			}
			total += e.anonymizeTextField(block)
		}
	}

	messages, _ := body["messages"].([]any)
	for _, raw := range messages {
		msg, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		switch content := msg["content"].(type) {
		case string:
			out, n := e.AnonymizeText(content)
			if n > 0 {
				msg["content"] = out
				total += n
			}
		case []any:
			for _, rawBlock := range content {
				block, ok := rawBlock.(map[string]any)
				if !ok {
					continue
				}
				total += e.anonymizeBlock(block)
			}
		}
	}
	return total
}

func (e *Engine) anonymizeBlock(block map[string]any) int {
	switch block["type"] {
	case "thinking":
		return 0
	case "text":
		return e.anonymizeTextField(block)
	case "tool_result":
		switch content := block["content"].(type) {
		case string:
			out, n := e.AnonymizeText(content)
			if n > 0 {
				block["content"] = out
			}
			return n
		case []any:
			total := 0
			for _, raw := range content {
				nested, ok := raw.(map[string]any)
				if !ok || nested["type"] != "text" {
					continue
				}
				total += e.anonymizeTextField(nested)
			}
			return total
		}
	}
	return 0
}

func (e *Engine) anonymizeTextField(block map[string]any) int {
	text, ok := block["text"].(string)
	if !ok || text == "" {
		return 0
	}
	out, n := e.AnonymizeText(text)
	if n > 0 {
		block["text"] = out
	}
	return n
}
