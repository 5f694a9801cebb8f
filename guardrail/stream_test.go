package guardrail

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textDelta(index int, text string) []byte {
	data, _ := json.Marshal(map[string]any{
		"type":  "content_block_delta",
		"index": index,
		"delta": map[string]any{"type": "text_delta", "text": text},
	})
	return data
}

func jsonDelta(index int, partial string) []byte {
	data, _ := json.Marshal(map[string]any{
		"type":  "content_block_delta",
		"index": index,
		"delta": map[string]any{"type": "input_json_delta", "partial_json": partial},
	})
	return data
}

func emittedText(t *testing.T, frames []StreamFrame) string {
	t.Helper()
	var sb strings.Builder
	for _, f := range frames {
		var event struct {
			Delta struct {
				Text        string `json:"text"`
				PartialJSON string `json:"partial_json"`
			} `json:"delta"`
		}
		require.NoError(t, json.Unmarshal(f.Data, &event))
		sb.WriteString(event.Delta.Text)
		sb.WriteString(event.Delta.PartialJSON)
	}
	return sb.String()
}

func TestStreamReassemblesSplitEnvelope(t *testing.T) {
	e := testEngine(t)
	original := "server lives at 203.0.113.7 today"
	anonymized, n := e.AnonymizeText(original)
	require.Equal(t, 1, n)

	open := strings.Index(anonymized, "[IP-")
	require.GreaterOrEqual(t, open, 0)
	cut := open + 6 // split inside the envelope

	s := e.NewStream()
	frames := s.Feed("content_block_delta", textDelta(0, anonymized[:cut]))
	firstEmit := emittedText(t, frames)
	assert.Equal(t, anonymized[:open], firstEmit, "text before the open bracket flushes, the envelope is held")

	frames = s.Feed("content_block_delta", textDelta(0, anonymized[cut:]))
	total := firstEmit + emittedText(t, frames)
	total += emittedText(t, s.Done())

	assert.Equal(t, original, total)
}

func TestStreamNeverEmitsStrictTokenPrefix(t *testing.T) {
	e := testEngine(t)
	original := "ping 203.0.113.7 ok"
	anonymized, n := e.AnonymizeText(original)
	require.Equal(t, 1, n)

	open := strings.Index(anonymized, "[")
	close_ := strings.Index(anonymized, "]")
	envelope := anonymized[open : close_+1]

	s := e.NewStream()
	var emitted strings.Builder
	for i := 0; i < len(anonymized); i++ {
		frames := s.Feed("content_block_delta", textDelta(0, anonymized[i:i+1]))
		emitted.WriteString(emittedText(t, frames))
		for k := 1; k < len(envelope); k++ {
			assert.False(t, strings.HasSuffix(emitted.String(), envelope[:k]),
				"emitted prefix %q ends in strict prefix of %q", emitted.String(), envelope)
		}
	}
	emitted.WriteString(emittedText(t, s.Done()))
	assert.Equal(t, original, emitted.String())
}

func TestStreamFakeEmailOverlapHoldback(t *testing.T) {
	e := testEngine(t)
	anonymized, n := e.AnonymizeText("write to jane.doe@acme.com")
	require.Equal(t, 1, n)
	fake := strings.TrimPrefix(anonymized, "write to ")

	s := e.NewStream()
	frames := s.Feed("content_block_delta", textDelta(0, "mail "+fake[:8]))
	assert.Equal(t, "mail ", emittedText(t, frames), "partial fake email must be held back")

	frames = s.Feed("content_block_delta", textDelta(0, fake[8:]+" done"))
	rest := emittedText(t, frames) + emittedText(t, s.Done())
	assert.Equal(t, "jane.doe@acme.com done", rest)
}

func TestStreamBlockStopFlushes(t *testing.T) {
	e := testEngine(t)
	s := e.NewStream()

	frames := s.Feed("content_block_delta", textDelta(0, "tail [IP-12."))
	assert.Equal(t, "tail ", emittedText(t, frames))

	stop, _ := json.Marshal(map[string]any{"type": "content_block_stop", "index": 0})
	frames = s.Feed("content_block_stop", stop)
	require.Len(t, frames, 2, "synthetic flush delta then the stop event")
	assert.Equal(t, "content_block_delta", frames[0].Name)
	assert.Equal(t, "[IP-12.", emittedText(t, frames[:1]), "incomplete envelope passes through on stop")
	assert.Equal(t, "content_block_stop", frames[1].Name)

	assert.Empty(t, s.Done(), "stop already drained the buffer")
}

func TestStreamBuffersBlocksIndependently(t *testing.T) {
	e := testEngine(t)
	anonymized, _ := e.AnonymizeText("host 203.0.113.7")
	open := strings.Index(anonymized, "[")

	s := e.NewStream()
	frames := s.Feed("content_block_delta", textDelta(0, anonymized[:open+4]))
	assert.Equal(t, anonymized[:open], emittedText(t, frames))

	// a different block flushes freely while block 0 holds its envelope
	frames = s.Feed("content_block_delta", jsonDelta(1, `{"city":"NYC"}`))
	assert.Equal(t, `{"city":"NYC"}`, emittedText(t, frames))

	frames = s.Feed("content_block_delta", textDelta(0, anonymized[open+4:]))
	got := emittedText(t, frames) + emittedText(t, s.Done())
	assert.Equal(t, "203.0.113.7", got)
}

func TestStreamToolInputDeanonymized(t *testing.T) {
	e := testEngine(t)
	anonymized, n := e.AnonymizeText("203.0.113.7")
	require.Equal(t, 1, n)

	s := e.NewStream()
	half := len(anonymized) / 2
	var out strings.Builder
	out.WriteString(emittedText(t, s.Feed("content_block_delta", jsonDelta(1, `{"host":"`+anonymized[:half]))))
	out.WriteString(emittedText(t, s.Feed("content_block_delta", jsonDelta(1, anonymized[half:]+`"}`))))
	out.WriteString(emittedText(t, s.Done()))

	assert.Equal(t, `{"host":"203.0.113.7"}`, out.String())
}

func TestStreamPassthroughEvents(t *testing.T) {
	e := testEngine(t)
	s := e.NewStream()

	data := []byte(`{"type":"message_start","message":{"id":"msg_1"}}`)
	frames := s.Feed("message_start", data)
	require.Len(t, frames, 1)
	assert.Equal(t, "message_start", frames[0].Name)
	assert.JSONEq(t, string(data), string(frames[0].Data))
}

func TestStreamLongTextManyTokens(t *testing.T) {
	e := testEngine(t)

	var parts []string
	for i := 0; i < 5; i++ {
		parts = append(parts, fmt.Sprintf("host%d at 203.0.113.%d", i, i+1))
	}
	original := strings.Join(parts, ", ")
	anonymized, n := e.AnonymizeText(original)
	require.Equal(t, 5, n)

	s := e.NewStream()
	var out strings.Builder
	for i := 0; i < len(anonymized); i += 7 {
		end := i + 7
		if end > len(anonymized) {
			end = len(anonymized)
		}
		out.WriteString(emittedText(t, s.Feed("content_block_delta", textDelta(0, anonymized[i:end]))))
	}
	out.WriteString(emittedText(t, s.Done()))
	assert.Equal(t, original, out.String())
}

func TestTextScrubberRoundTrip(t *testing.T) {
	e := testEngine(t)
	original := "reach me at 10.1.2.3 or 192.168.0.77 thanks"
	anonymized, n := e.AnonymizeText(original)
	require.Equal(t, 2, n)

	scrub := e.NewTextScrubber()
	var out strings.Builder
	for i := 0; i < len(anonymized); i += 5 {
		end := i + 5
		if end > len(anonymized) {
			end = len(anonymized)
		}
		out.WriteString(scrub.Feed(anonymized[i:end]))
	}
	out.WriteString(scrub.Flush())
	assert.Equal(t, original, out.String())
}

func TestTextScrubberHoldsEnvelopeHead(t *testing.T) {
	e := testEngine(t)
	scrub := e.NewTextScrubber()

	// an unclosed bracket in the window must not be emitted yet
	assert.Equal(t, "checking ", scrub.Feed("checking [IP-10."))
	assert.Equal(t, "", scrub.Feed("9.9.9-"))
	flushed := scrub.Flush()
	assert.Contains(t, flushed, "[IP-10.9.9.9-")
}
