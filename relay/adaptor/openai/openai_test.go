package openai

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

func TestResolveTarget(t *testing.T) {
	tests := []struct {
		name     string
		req      *common.ForwardRequest
		wantBase string
		wantPath string
	}{
		{
			name:     "default base",
			req:      &common.ForwardRequest{Path: "/v1/chat/completions"},
			wantBase: "https://api.openai.com",
			wantPath: "/v1/chat/completions",
		},
		{
			name:     "versioned base drops v1 prefix",
			req:      &common.ForwardRequest{Path: "/v1/chat/completions", BaseURL: "https://api.deepseek.com/v1"},
			wantBase: "https://api.deepseek.com/v1",
			wantPath: "/chat/completions",
		},
		{
			name:     "gemini compatibility layer",
			req:      &common.ForwardRequest{Path: "/v1/chat/completions", BaseURL: "https://generativelanguage.googleapis.com"},
			wantBase: "https://generativelanguage.googleapis.com",
			wantPath: "/v1beta/openai/chat/completions",
		},
		{
			name:     "openrouter api prefix",
			req:      &common.ForwardRequest{Path: "/v1/chat/completions", BaseURL: "https://openrouter.ai", Provider: model.ProviderOpenRouter},
			wantBase: "https://openrouter.ai",
			wantPath: "/api/v1/chat/completions",
		},
		{
			name:     "trailing slash trimmed",
			req:      &common.ForwardRequest{Path: "/v1/chat/completions", BaseURL: "https://api.cerebras.ai/"},
			wantBase: "https://api.cerebras.ai",
			wantPath: "/v1/chat/completions",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base, path := resolveTarget(tt.req)
			assert.Equal(t, tt.wantBase, base)
			assert.Equal(t, tt.wantPath, path)
		})
	}
}

func TestBuildHeaders(t *testing.T) {
	inbound := http.Header{}
	inbound.Set("OpenAI-Organization", "org-1")

	h := buildHeaders(&common.ForwardRequest{Headers: inbound, APIKey: "sk-x"})
	assert.Equal(t, "Bearer sk-x", h.Get("Authorization"))
	assert.Equal(t, "org-1", h.Get("OpenAI-Organization"))
	assert.Empty(t, h.Get("ChatGPT-Account-ID"))
}

func TestBuildHeadersSubscription(t *testing.T) {
	h := buildHeaders(&common.ForwardRequest{
		Headers:           http.Header{},
		APIKey:            "oauth-access",
		ExternalAccountId: "acct_42",
	})
	assert.Equal(t, "acct_42", h.Get("ChatGPT-Account-ID"))
	assert.Equal(t, "codex_cli_rs/0.1.0", h.Get("User-Agent"))
	assert.Equal(t, "codex_cli_rs", h.Get("Originator"))
}

func TestBuildHeadersOpenRouter(t *testing.T) {
	h := buildHeaders(&common.ForwardRequest{
		Headers:  http.Header{},
		APIKey:   "sk-or",
		Provider: model.ProviderOpenRouter,
	})
	assert.NotEmpty(t, h.Get("HTTP-Referer"))
	assert.Equal(t, "CodeGate", h.Get("X-Title"))
}

func TestForwardStreamingUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"id":"chatcmpl-1","model":"gpt-4o","choices":[{"index":0,"delta":{"content":"Hi"}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"id":"chatcmpl-1","choices":[],"usage":{"prompt_tokens":9,"completion_tokens":4}}`+"\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	result, err := Forward(context.Background(), &common.ForwardRequest{
		Method:  http.MethodPost,
		Path:    "/v1/chat/completions",
		Headers: http.Header{},
		Body:    []byte(`{"stream":true}`),
		APIKey:  "sk-x",
		BaseURL: srv.URL,
	})
	require.NoError(t, err)
	defer result.Close()

	require.True(t, result.IsStream)
	raw, err := io.ReadAll(result.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "[DONE]")

	usage := result.Usage.Snapshot()
	assert.Equal(t, 9, usage.PromptTokens)
	assert.Equal(t, 4, usage.CompletionTokens)
	assert.Equal(t, "gpt-4o", usage.Model)
}

func TestForwardNonStreamingUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-x", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"chatcmpl-2","model":"gpt-4o","choices":[{"index":0,"message":{"role":"assistant","content":"ok"},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`)
	}))
	defer srv.Close()

	result, err := Forward(context.Background(), &common.ForwardRequest{
		Method:  http.MethodPost,
		Path:    "/v1/chat/completions",
		Headers: http.Header{},
		Body:    []byte(`{}`),
		APIKey:  "sk-x",
		BaseURL: srv.URL,
	})
	require.NoError(t, err)
	defer result.Close()

	usage := result.Usage.Snapshot()
	assert.Equal(t, 10, usage.PromptTokens)
	assert.Equal(t, 5, usage.CompletionTokens)
}
