// Package openai forwards requests to OpenAI-compatible endpoints: OpenAI
// itself, OpenRouter, DeepSeek, Cerebras, GLM, MiniMax, Gemini's OpenAI
// compatibility layer, and user-defined bases.
package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"

	"github.com/NodeNestor/CodeGate/model"
	"github.com/NodeNestor/CodeGate/relay/adaptor/common"
	relaymodel "github.com/NodeNestor/CodeGate/relay/model"
)

const defaultBaseURL = "https://api.openai.com"

// Referer/title sent to OpenRouter for app attribution.
const (
	openRouterReferer = "https://github.com/NodeNestor/CodeGate"
	openRouterTitle   = "CodeGate"
)

var versionSuffixRe = regexp.MustCompile(`/v\d+$`)

// Forward sends the request to an OpenAI-compatible upstream.
func Forward(ctx context.Context, req *common.ForwardRequest) (*common.ForwardResult, error) {
	base, path := resolveTarget(req)

	resp, err := common.Do(ctx, req.Method, common.JoinURL(base, path), buildHeaders(req), req.Body)
	if err != nil {
		return nil, err
	}
	return common.BuildResult(resp, parseStreamEvent, parseBody), nil
}

// resolveTarget applies the per-base path rewrites: bases already pinned to a
// version drop the /v1 prefix, Gemini's compatibility layer lives under
// /v1beta/openai, OpenRouter expects an /api prefix.
func resolveTarget(req *common.ForwardRequest) (base, path string) {
	base = strings.TrimRight(req.BaseURL, "/")
	path = req.Path
	if base == "" {
		base = defaultBaseURL
	}

	switch {
	case versionSuffixRe.MatchString(base):
		path = strings.TrimPrefix(path, "/v1")
	case strings.Contains(base, "generativelanguage.googleapis.com"):
		path = "/v1beta/openai" + strings.TrimPrefix(path, "/v1")
	case req.Provider == model.ProviderOpenRouter && !strings.HasPrefix(path, "/api"):
		path = "/api" + path
	}
	return base, path
}

func buildHeaders(req *common.ForwardRequest) http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Authorization", "Bearer "+req.APIKey)

	if org := req.Headers.Get("OpenAI-Organization"); org != "" {
		h.Set("OpenAI-Organization", org)
	}
	if req.ExternalAccountId != "" {
		h.Set("ChatGPT-Account-ID", req.ExternalAccountId)
		h.Set("User-Agent", "codex_cli_rs/0.1.0")
		h.Set("Originator", "codex_cli_rs")
	}
	if req.Provider == model.ProviderOpenRouter {
		h.Set("HTTP-Referer", openRouterReferer)
		h.Set("X-Title", openRouterTitle)
	}
	return h
}

type streamChunk struct {
	Model string                  `json:"model"`
	Usage *relaymodel.OpenAIUsage `json:"usage"`
}

func parseStreamEvent(usage *common.UsageRecorder, data []byte) {
	var chunk streamChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return
	}
	usage.SetModel(chunk.Model)
	if chunk.Usage != nil {
		usage.SetPrompt(chunk.Usage.PromptTokens, 0, 0)
		usage.SetCompletion(chunk.Usage.CompletionTokens)
	}
}

func parseBody(usage *common.UsageRecorder, payload []byte) {
	var resp relaymodel.OpenAIResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return
	}
	usage.SetModel(resp.Model)
	if resp.Usage != nil {
		usage.SetPrompt(resp.Usage.PromptTokens, 0, 0)
		usage.SetCompletion(resp.Usage.CompletionTokens)
	}
}
