package guardrail

import (
	"encoding/json"
	"sort"
	"strings"
)

// StreamFrame is one Anthropic SSE frame produced by the deanonymize stream.
type StreamFrame struct {
	Name string
	Data []byte
}

// flushWindow is how far back an unclosed bracket holds up emission.
const flushWindow = 200

// Stream incrementally deanonymizes an Anthropic SSE stream. Text and JSON
// deltas are buffered per content block because a replacement token can
// straddle event boundaries; buffered text is emitted only up to the safe
// flush point.
type Stream struct {
	engine  *Engine
	buffers map[int]*blockBuffer
}

type blockBuffer struct {
	text      string
	deltaType string
}

// NewStream returns a deanonymizer for one response stream.
func (e *Engine) NewStream() *Stream {
	return &Stream{
		engine:  e,
		buffers: make(map[int]*blockBuffer),
	}
}

// Feed consumes one upstream event and returns the frames to emit. Events
// other than text/JSON deltas and block stops pass through with whole-event
// deanonymization applied.
func (s *Stream) Feed(eventName string, data []byte) []StreamFrame {
	var event map[string]any
	if err := json.Unmarshal(data, &event); err != nil {
		return []StreamFrame{{Name: eventName, Data: data}}
	}

	eventType, _ := event["type"].(string)
	switch eventType {
	case "content_block_delta":
		if frames, handled := s.feedDelta(eventName, event, data); handled {
			return frames
		}
	case "content_block_stop":
		idx := eventIndex(event)
		frames := s.flushBlock(idx)
		return append(frames, StreamFrame{Name: eventName, Data: data})
	}

	return []StreamFrame{{Name: eventName, Data: []byte(s.engine.Deanonymize(string(data)))}}
}

func (s *Stream) feedDelta(eventName string, event map[string]any, data []byte) ([]StreamFrame, bool) {
	delta, _ := event["delta"].(map[string]any)
	if delta == nil {
		return nil, false
	}
	deltaType, _ := delta["type"].(string)

	var field string
	switch deltaType {
	case "text_delta":
		field = "text"
	case "input_json_delta":
		field = "partial_json"
	default:
		return nil, false
	}
	fragment, _ := delta[field].(string)

	idx := eventIndex(event)
	buf := s.buffers[idx]
	if buf == nil {
		buf = &blockBuffer{deltaType: deltaType}
		s.buffers[idx] = buf
	}
	buf.deltaType = deltaType
	buf.text += fragment

	safe := s.safeFlushPoint(buf.text)
	if safe == 0 {
		return nil, true
	}

	out := s.engine.Deanonymize(buf.text[:safe])
	buf.text = buf.text[safe:]

	delta[field] = out
	rewritten, err := json.Marshal(event)
	if err != nil {
		return []StreamFrame{{Name: eventName, Data: data}}, true
	}
	return []StreamFrame{{Name: eventName, Data: rewritten}}, true
}

// flushBlock drains the buffer for one block, emitting a final delta if
// anything is still held back.
func (s *Stream) flushBlock(idx int) []StreamFrame {
	buf := s.buffers[idx]
	if buf == nil || buf.text == "" {
		delete(s.buffers, idx)
		return nil
	}
	delete(s.buffers, idx)
	return []StreamFrame{s.syntheticDelta(idx, buf)}
}

// Done flushes every remaining buffer; call it at stream end.
func (s *Stream) Done() []StreamFrame {
	indexes := make([]int, 0, len(s.buffers))
	for idx := range s.buffers {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	var frames []StreamFrame
	for _, idx := range indexes {
		buf := s.buffers[idx]
		if buf.text != "" {
			frames = append(frames, s.syntheticDelta(idx, buf))
		}
	}
	s.buffers = make(map[int]*blockBuffer)
	return frames
}

func (s *Stream) syntheticDelta(idx int, buf *blockBuffer) StreamFrame {
	field := "text"
	if buf.deltaType == "input_json_delta" {
		field = "partial_json"
	}
	data, _ := json.Marshal(map[string]any{
		"type":  "content_block_delta",
		"index": idx,
		"delta": map[string]any{
			"type": buf.deltaType,
			field:  s.engine.Deanonymize(buf.text),
		},
	})
	return StreamFrame{Name: "content_block_delta", Data: data}
}

// safeFlushPoint returns how much of buf can be emitted without risking a
// split replacement: everything before an unclosed bracket in the recent
// window, else everything before the longest tail that is still a proper
// prefix of a known replacement.
func (s *Stream) safeFlushPoint(buf string) int {
	return s.engine.safeFlushPoint(buf)
}

func (e *Engine) safeFlushPoint(buf string) int {
	offset := 0
	window := buf
	if len(buf) > flushWindow {
		offset = len(buf) - flushWindow
		window = buf[offset:]
	}

	searchFrom := strings.LastIndexByte(window, ']') + 1
	if open := strings.IndexByte(window[searchFrom:], '['); open >= 0 {
		return offset + searchFrom + open
	}

	if k := e.reverse.MaxOverlap(buf); k > 0 {
		return len(buf) - k
	}
	return len(buf)
}

// TextScrubber deanonymizes one plain text stream, for responses that carry
// text outside the Anthropic event framing (OpenAI delta content). The same
// safe flush rule applies: bytes that could be the head of a replacement are
// held back until more text arrives or Flush is called.
type TextScrubber struct {
	engine *Engine
	buf    string
}

// NewTextScrubber returns a scrubber for one response stream.
func (e *Engine) NewTextScrubber() *TextScrubber {
	return &TextScrubber{engine: e}
}

// Feed appends text and returns the deanonymized part that is safe to emit.
func (t *TextScrubber) Feed(text string) string {
	t.buf += text
	safe := t.engine.safeFlushPoint(t.buf)
	if safe == 0 {
		return ""
	}
	out := t.engine.Deanonymize(t.buf[:safe])
	t.buf = t.buf[safe:]
	return out
}

// Flush drains whatever is still held back; call it at stream end.
func (t *TextScrubber) Flush() string {
	if t.buf == "" {
		return ""
	}
	out := t.engine.Deanonymize(t.buf)
	t.buf = ""
	return out
}

func eventIndex(event map[string]any) int {
	if f, ok := event["index"].(float64); ok {
		return int(f)
	}
	return 0
}
