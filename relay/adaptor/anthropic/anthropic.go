// Package anthropic forwards requests to the Anthropic Messages API,
// covering both API-key and OAuth (subscription) credentials.
package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/NodeNestor/CodeGate/common/config"
	"github.com/NodeNestor/CodeGate/model"
	"github.com/NodeNestor/CodeGate/relay/adaptor/common"
	relaymodel "github.com/NodeNestor/CodeGate/relay/model"
)

const defaultBaseURL = "https://api.anthropic.com"

// Beta flags the subscription backend requires on OAuth calls.
const (
	betaOAuth      = "oauth-2025-04-20"
	betaClaudeCode = "claude-code-20250219"
)

// Forward sends the request to Anthropic and returns the uniform result with
// usage extraction wired in.
func Forward(ctx context.Context, req *common.ForwardRequest) (*common.ForwardResult, error) {
	base := req.BaseURL
	if base == "" {
		base = defaultBaseURL
	}

	resp, err := common.Do(ctx, req.Method, common.JoinURL(base, req.Path), buildHeaders(req), req.Body)
	if err != nil {
		return nil, err
	}
	return common.BuildResult(resp, parseStreamEvent, parseBody), nil
}

func buildHeaders(req *common.ForwardRequest) http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")

	version := req.Headers.Get("Anthropic-Version")
	if version == "" {
		version = config.AnthropicVersion
	}
	h.Set("Anthropic-Version", version)

	if req.AuthType == model.AuthTypeOAuth {
		h.Set("Authorization", "Bearer "+req.APIKey)
		h.Set("Anthropic-Beta", mergeBeta(req.Headers.Get("Anthropic-Beta")))
		h.Set("Anthropic-Dangerous-Direct-Browser-Access", "true")
		if ua := req.Headers.Get("User-Agent"); ua != "" {
			h.Set("User-Agent", ua)
		}
		if app := req.Headers.Get("X-App"); app != "" {
			h.Set("X-App", app)
		}
	} else {
		h.Set("X-Api-Key", req.APIKey)
	}
	return h
}

// mergeBeta ensures the OAuth beta flags are present while preserving any
// client-supplied extras.
func mergeBeta(existing string) string {
	flags := []string{}
	seen := map[string]bool{}
	for _, f := range strings.Split(existing, ",") {
		f = strings.TrimSpace(f)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		flags = append(flags, f)
	}
	for _, required := range []string{betaOAuth, betaClaudeCode} {
		if !seen[required] {
			flags = append(flags, required)
		}
	}
	return strings.Join(flags, ",")
}

type streamEvent struct {
	Type    string `json:"type"`
	Message *struct {
		Model string                  `json:"model"`
		Usage *relaymodel.ClaudeUsage `json:"usage"`
	} `json:"message"`
	Usage *relaymodel.ClaudeUsage `json:"usage"`
}

func parseStreamEvent(usage *common.UsageRecorder, data []byte) {
	var event streamEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return
	}
	switch event.Type {
	case "message_start":
		if event.Message == nil {
			return
		}
		usage.SetModel(event.Message.Model)
		if u := event.Message.Usage; u != nil {
			usage.SetPrompt(u.InputTokens, u.CacheReadInputTokens, u.CacheCreationInputTokens)
			usage.SetCompletion(u.OutputTokens)
		}
	case "message_delta":
		if event.Usage != nil {
			usage.SetCompletion(event.Usage.OutputTokens)
		}
	}
}

func parseBody(usage *common.UsageRecorder, payload []byte) {
	var resp relaymodel.ClaudeResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return
	}
	usage.SetModel(resp.Model)
	usage.SetPrompt(resp.Usage.InputTokens, resp.Usage.CacheReadInputTokens, resp.Usage.CacheCreationInputTokens)
	usage.SetCompletion(resp.Usage.OutputTokens)
}
