package anthropic

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NodeNestor/CodeGate/model"
	"github.com/NodeNestor/CodeGate/relay/adaptor/common"
)

func TestBuildHeadersAPIKey(t *testing.T) {
	req := &common.ForwardRequest{
		Headers:  http.Header{},
		APIKey:   "sk-ant-test",
		AuthType: model.AuthTypeAPIKey,
	}
	h := buildHeaders(req)

	assert.Equal(t, "sk-ant-test", h.Get("X-Api-Key"))
	assert.Empty(t, h.Get("Authorization"))
	assert.Equal(t, "2023-06-01", h.Get("Anthropic-Version"))
	assert.Equal(t, "application/json", h.Get("Content-Type"))
}

func TestBuildHeadersOAuth(t *testing.T) {
	inbound := http.Header{}
	inbound.Set("Anthropic-Beta", "prompt-caching-2024-07-31, oauth-2025-04-20")
	inbound.Set("User-Agent", "claude-cli/1.0")
	inbound.Set("X-App", "cli")

	req := &common.ForwardRequest{
		Headers:  inbound,
		APIKey:   "oauth-access",
		AuthType: model.AuthTypeOAuth,
	}
	h := buildHeaders(req)

	assert.Equal(t, "Bearer oauth-access", h.Get("Authorization"))
	assert.Empty(t, h.Get("X-Api-Key"))
	assert.Equal(t, "true", h.Get("Anthropic-Dangerous-Direct-Browser-Access"))
	assert.Equal(t, "claude-cli/1.0", h.Get("User-Agent"))
	assert.Equal(t, "cli", h.Get("X-App"))
	// client extras preserved, required flags appended once
	assert.Equal(t, "prompt-caching-2024-07-31,oauth-2025-04-20,claude-code-20250219", h.Get("Anthropic-Beta"))
}

func TestBuildHeadersVersionOverride(t *testing.T) {
	inbound := http.Header{}
	inbound.Set("Anthropic-Version", "2024-01-01")
	h := buildHeaders(&common.ForwardRequest{Headers: inbound, AuthType: model.AuthTypeAPIKey})
	assert.Equal(t, "2024-01-01", h.Get("Anthropic-Version"))
}

func TestForwardNonStreamingUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"msg_1","type":"message","model":"claude-sonnet-4-20250514",
			"content":[{"type":"text","text":"Hello!"}],"stop_reason":"end_turn",
			"usage":{"input_tokens":12,"output_tokens":7,"cache_read_input_tokens":3,"cache_creation_input_tokens":1}}`)
	}))
	defer srv.Close()

	result, err := Forward(context.Background(), &common.ForwardRequest{
		Method:   http.MethodPost,
		Path:     "/v1/messages",
		Headers:  http.Header{},
		Body:     []byte(`{}`),
		APIKey:   "sk-ant-x",
		BaseURL:  srv.URL,
		AuthType: model.AuthTypeAPIKey,
	})
	require.NoError(t, err)
	defer result.Close()

	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.False(t, result.IsStream)

	body, err := io.ReadAll(result.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Hello!")

	usage := result.Usage.Snapshot()
	assert.Equal(t, 12, usage.PromptTokens)
	assert.Equal(t, 7, usage.CompletionTokens)
	assert.Equal(t, 3, usage.CacheReadTokens)
	assert.Equal(t, 1, usage.CacheCreationTokens)
	assert.Equal(t, "claude-sonnet-4-20250514", usage.Model)
}

func TestForwardStreamingUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: message_start\n")
		fmt.Fprint(w, `data: {"type":"message_start","message":{"model":"claude-opus-4-20250514","usage":{"input_tokens":40,"output_tokens":1}}}`+"\n\n")
		fmt.Fprint(w, "event: message_delta\n")
		fmt.Fprint(w, `data: {"type":"message_delta","usage":{"output_tokens":55}}`+"\n\n")
		fmt.Fprint(w, "event: message_stop\n")
		fmt.Fprint(w, `data: {"type":"message_stop"}`+"\n\n")
	}))
	defer srv.Close()

	result, err := Forward(context.Background(), &common.ForwardRequest{
		Method:   http.MethodPost,
		Path:     "/v1/messages",
		Headers:  http.Header{},
		Body:     []byte(`{"stream":true}`),
		APIKey:   "sk-ant-x",
		BaseURL:  srv.URL,
		AuthType: model.AuthTypeAPIKey,
	})
	require.NoError(t, err)
	defer result.Close()

	require.True(t, result.IsStream)
	raw, err := io.ReadAll(result.Body)
	require.NoError(t, err)
	// the tee must not alter the passthrough bytes
	assert.Contains(t, string(raw), "event: message_delta")

	usage := result.Usage.Snapshot()
	assert.Equal(t, 40, usage.PromptTokens)
	assert.Equal(t, 55, usage.CompletionTokens)
	assert.Equal(t, "claude-opus-4-20250514", usage.Model)
}
