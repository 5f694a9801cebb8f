package controller

import (
	"bufio"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/NodeNestor/CodeGate/common"
	"github.com/NodeNestor/CodeGate/common/helper"
	"github.com/NodeNestor/CodeGate/guardrail"
	"github.com/NodeNestor/CodeGate/model"
	adaptor "github.com/NodeNestor/CodeGate/relay/adaptor/common"
	"github.com/NodeNestor/CodeGate/relay/convert"
	relaymodel "github.com/NodeNestor/CodeGate/relay/model"
	"github.com/NodeNestor/CodeGate/relay/route"
)

// sseWriter emits client-facing SSE frames, flushing after each one so
// deltas reach the client as they arrive.
type sseWriter struct {
	w gin.ResponseWriter
}

func (s *sseWriter) event(name string, data []byte) {
	if name != "" {
		_, _ = s.w.WriteString("event: " + name + "\n")
	}
	_, _ = s.w.WriteString("data: ")
	_, _ = s.w.Write(data)
	_, _ = s.w.WriteString("\n\n")
	s.w.Flush()
}

func (s *sseWriter) data(payload []byte) {
	s.event("", payload)
}

func (s *sseWriter) done() {
	s.data([]byte("[DONE]"))
}

// relayStream pipes the upstream SSE body to the client, inserting the
// format converter when the wire formats differ and the deanonymizer when
// guardrails are on. Chunks are emitted strictly in upstream arrival order.
func (r *Relay) relayStream(c *gin.Context, format relaymodel.InboundFormat, cand *route.Candidate,
	result *adaptor.ForwardResult, guardOn bool, clientModel string) {
	defer result.Close()
	common.SetEventStreamHeaders(c)

	w := &sseWriter{w: c.Writer}
	upstreamClaude := cand.Account.Provider == model.ProviderAnthropic

	switch {
	case upstreamClaude && format == relaymodel.FormatClaude:
		r.pumpClaudePassthrough(result.Body, guardOn, w)
	case upstreamClaude && format == relaymodel.FormatOpenAI:
		r.pumpClaudeToOpenAI(result.Body, guardOn, clientModel, w)
	case !upstreamClaude && format == relaymodel.FormatClaude:
		r.pumpOpenAIToClaude(result.Body, guardOn, clientModel, w)
	default:
		r.pumpOpenAIPassthrough(result.Body, guardOn, w)
	}
}

// forEachSSE walks the upstream stream invoking fn per data payload with the
// preceding event name (empty for OpenAI-style streams).
func forEachSSE(body io.Reader, fn func(eventName string, payload []byte)) {
	scanner := bufio.NewScanner(body)
	helper.ConfigureScannerBuffer(scanner)

	eventName := ""
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(line[len("event:"):])
		case strings.HasPrefix(line, "data:"):
			payload := strings.TrimSpace(line[len("data:"):])
			if payload != "" {
				fn(eventName, []byte(payload))
			}
			eventName = ""
		}
	}
}

func (r *Relay) pumpClaudePassthrough(body io.Reader, guardOn bool, w *sseWriter) {
	var guard *guardrail.Stream
	if guardOn {
		guard = r.guard.NewStream()
	}
	forEachSSE(body, func(name string, payload []byte) {
		if guard == nil {
			w.event(name, payload)
			return
		}
		for _, frame := range guard.Feed(name, payload) {
			w.event(frame.Name, frame.Data)
		}
	})
	if guard != nil {
		for _, frame := range guard.Done() {
			w.event(frame.Name, frame.Data)
		}
	}
}

func (r *Relay) pumpClaudeToOpenAI(body io.Reader, guardOn bool, clientModel string, w *sseWriter) {
	var guard *guardrail.Stream
	if guardOn {
		guard = r.guard.NewStream()
	}
	conv := convert.NewClaudeToOpenAIStream(clientModel)

	emit := func(name string, payload []byte) {
		chunks, done, err := conv.Feed(name, payload)
		if err != nil {
			return
		}
		for _, chunk := range chunks {
			w.data(chunk)
		}
		if done {
			w.done()
		}
	}

	forEachSSE(body, func(name string, payload []byte) {
		if guard == nil {
			emit(name, payload)
			return
		}
		for _, frame := range guard.Feed(name, payload) {
			emit(frame.Name, frame.Data)
		}
	})
	if guard != nil {
		for _, frame := range guard.Done() {
			emit(frame.Name, frame.Data)
		}
	}
}

func (r *Relay) pumpOpenAIToClaude(body io.Reader, guardOn bool, clientModel string, w *sseWriter) {
	var guard *guardrail.Stream
	if guardOn {
		guard = r.guard.NewStream()
	}
	conv := convert.NewOpenAIToClaudeStream(clientModel)

	writeEvents := func(events []convert.ClaudeEvent) {
		for _, ev := range events {
			if guard == nil {
				w.event(ev.Name, ev.Data)
				continue
			}
			// block stops inside the converted stream flush the guard
			// buffers, so no residue survives past message_stop
			for _, frame := range guard.Feed(ev.Name, ev.Data) {
				w.event(frame.Name, frame.Data)
			}
		}
	}

	doneSeen := false
	forEachSSE(body, func(_ string, payload []byte) {
		if doneSeen {
			return
		}
		if string(payload) == "[DONE]" {
			doneSeen = true
			writeEvents(conv.Done())
			return
		}
		events, err := conv.Feed(payload)
		if err != nil {
			return
		}
		writeEvents(events)
	})
	if !doneSeen {
		writeEvents(conv.Done())
	}
}

func (r *Relay) pumpOpenAIPassthrough(body io.Reader, guardOn bool, w *sseWriter) {
	var scrub *guardrail.TextScrubber
	if guardOn {
		scrub = r.guard.NewTextScrubber()
	}

	lastChunkID := ""
	doneSeen := false
	forEachSSE(body, func(_ string, payload []byte) {
		if doneSeen {
			return
		}
		if string(payload) == "[DONE]" {
			doneSeen = true
			if scrub != nil {
				if rest := scrub.Flush(); rest != "" {
					w.data(syntheticOpenAIChunk(lastChunkID, rest))
				}
			}
			w.done()
			return
		}
		if scrub == nil {
			w.data(payload)
			return
		}
		out, id := scrubOpenAIChunk(scrub, payload)
		if id != "" {
			lastChunkID = id
		}
		w.data(out)
	})
	if !doneSeen && scrub != nil {
		if rest := scrub.Flush(); rest != "" {
			w.data(syntheticOpenAIChunk(lastChunkID, rest))
		}
	}
}

// scrubOpenAIChunk deanonymizes the delta content of one Chat Completions
// chunk, leaving every other field untouched.
func scrubOpenAIChunk(scrub *guardrail.TextScrubber, payload []byte) (out []byte, chunkID string) {
	var chunk map[string]any
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return payload, ""
	}
	chunkID, _ = chunk["id"].(string)

	choices, _ := chunk["choices"].([]any)
	changed := false
	for _, choice := range choices {
		cm, ok := choice.(map[string]any)
		if !ok {
			continue
		}
		delta, ok := cm["delta"].(map[string]any)
		if !ok {
			continue
		}
		if content, ok := delta["content"].(string); ok && content != "" {
			delta["content"] = scrub.Feed(content)
			changed = true
		}
	}
	if !changed {
		return payload, chunkID
	}
	rewritten, err := json.Marshal(chunk)
	if err != nil {
		return payload, chunkID
	}
	return rewritten, chunkID
}

// syntheticOpenAIChunk carries held-back scrubber text in a minimal chunk.
func syntheticOpenAIChunk(id, content string) []byte {
	data, _ := json.Marshal(map[string]any{
		"id":     id,
		"object": "chat.completion.chunk",
		"choices": []map[string]any{{
			"index": 0,
			"delta": map[string]any{"content": content},
		}},
	})
	return data
}

// relayBuffered converts and returns a non-streaming upstream body. The
// returned string is the assistant-visible text, used for fallback token
// estimation.
func (r *Relay) relayBuffered(c *gin.Context, format relaymodel.InboundFormat, cand *route.Candidate,
	result *adaptor.ForwardResult, guardOn bool, clientModel string) string {
	defer result.Close()

	payload, err := io.ReadAll(result.Body)
	if err != nil {
		c.Status(http.StatusBadGateway)
		return ""
	}

	upstreamClaude := cand.Account.Provider == model.ProviderAnthropic
	converted := payload
	switch {
	case upstreamClaude && format == relaymodel.FormatOpenAI:
		var resp relaymodel.ClaudeResponse
		if json.Unmarshal(payload, &resp) == nil {
			if out, merr := json.Marshal(convert.ClaudeToOpenAIResponse(&resp, clientModel)); merr == nil {
				converted = out
			}
		}
	case !upstreamClaude && format == relaymodel.FormatClaude:
		var resp relaymodel.OpenAIResponse
		if json.Unmarshal(payload, &resp) == nil {
			if out, merr := json.Marshal(convert.OpenAIToClaudeResponse(&resp, clientModel)); merr == nil {
				converted = out
			}
		}
	}

	if guardOn {
		converted = []byte(r.guard.Deanonymize(string(converted)))
	}

	contentType := result.Headers.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(result.StatusCode, contentType, converted)

	return extractCompletionText(format, converted)
}

// extractCompletionText pulls the assistant text out of a client-format body.
func extractCompletionText(format relaymodel.InboundFormat, body []byte) string {
	if format == relaymodel.FormatOpenAI {
		var resp relaymodel.OpenAIResponse
		if json.Unmarshal(body, &resp) != nil || len(resp.Choices) == 0 {
			return ""
		}
		return resp.Choices[0].Message.StringContent()
	}

	var resp relaymodel.ClaudeResponse
	if json.Unmarshal(body, &resp) != nil {
		return ""
	}
	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return text.String()
}
