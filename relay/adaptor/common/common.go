// Package common holds the forwarder contract shared by the provider
// adaptors: the uniform request/result shapes, the outbound HTTP client, and
// the SSE tee that feeds usage extraction.
package common

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/Laisky/errors/v2"
)

// HTTPClient is the outbound client for relay calls. No global timeout: LLM
// streams legitimately run for minutes; cancellation comes from the request
// context.
var HTTPClient = &http.Client{}

// ForwardRequest is the provider-neutral outbound call description.
type ForwardRequest struct {
	Method string
	Path   string
	// Headers are the inbound client headers; adaptors copy selected entries.
	Headers http.Header
	Body    []byte

	APIKey  string
	BaseURL string
	// AuthType is api_key or oauth (model.AuthType* values).
	AuthType string
	// ExternalAccountId binds ChatGPT subscription requests to a workspace.
	ExternalAccountId string
	// Provider tag of the target account; used for provider-family quirks.
	Provider string
}

// ForwardResult is the provider-neutral upstream outcome. Body is always a
// stream; for non-SSE responses it is the buffered payload. Usage is safe to
// read once Body has been fully consumed or closed.
type ForwardResult struct {
	StatusCode int
	Headers    http.Header
	Body       io.ReadCloser
	IsStream   bool
	Usage      *UsageRecorder
}

// Close releases the upstream body.
func (r *ForwardResult) Close() error {
	if r.Body == nil {
		return nil
	}
	return r.Body.Close()
}

// Do issues the outbound request with the shared client.
func Do(ctx context.Context, method, url string, headers http.Header, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrapf(err, "build request %s %s", method, url)
	}
	if headers != nil {
		req.Header = headers
	}
	resp, err := HTTPClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "request %s failed", url)
	}
	return resp, nil
}

// IsEventStream reports whether the response is SSE.
func IsEventStream(headers http.Header) bool {
	return strings.Contains(strings.ToLower(headers.Get("Content-Type")), "text/event-stream")
}

// BuildResult wraps an upstream response. Streaming bodies are teed through
// the event parser; successful buffered bodies go through the body parser so
// usage is populated either way.
func BuildResult(resp *http.Response, parseEvent, parseBody func(*UsageRecorder, []byte)) *ForwardResult {
	result := &ForwardResult{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Usage:      NewUsageRecorder(),
	}

	if IsEventStream(resp.Header) {
		result.IsStream = true
		result.Body = newSSETee(resp.Body, func(data []byte) {
			parseEvent(result.Usage, data)
		})
		return result
	}

	payload, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		result.Body = io.NopCloser(bytes.NewReader(nil))
		return result
	}
	if resp.StatusCode < 300 && parseBody != nil {
		parseBody(result.Usage, payload)
	}
	result.Body = io.NopCloser(bytes.NewReader(payload))
	return result
}

// JoinURL glues a base URL and path without doubling slashes.
func JoinURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}
