package common

import (
	"sync/atomic"

	relaymodel "github.com/NodeNestor/CodeGate/relay/model"
)

// UsageRecorder accumulates token counts extracted from an in-flight
// response. Writers are the SSE tee or the buffered-body parser; readers are
// the orchestrator after the response completes. All access is atomic.
type UsageRecorder struct {
	prompt        atomic.Int64
	completion    atomic.Int64
	cacheRead     atomic.Int64
	cacheCreation atomic.Int64
	model         atomic.Value
}

// NewUsageRecorder returns an empty recorder.
func NewUsageRecorder() *UsageRecorder {
	return &UsageRecorder{}
}

// SetPrompt records the prompt-side counts. Later writes win; providers emit
// these once per response.
func (u *UsageRecorder) SetPrompt(prompt, cacheRead, cacheCreation int) {
	u.prompt.Store(int64(prompt))
	u.cacheRead.Store(int64(cacheRead))
	u.cacheCreation.Store(int64(cacheCreation))
}

// SetCompletion records the completion-side count. Providers send cumulative
// values, so later writes win.
func (u *UsageRecorder) SetCompletion(completion int) {
	u.completion.Store(int64(completion))
}

// SetModel records the upstream-reported model id.
func (u *UsageRecorder) SetModel(model string) {
	if model != "" {
		u.model.Store(model)
	}
}

// Snapshot returns the counts accumulated so far.
func (u *UsageRecorder) Snapshot() relaymodel.Usage {
	usage := relaymodel.Usage{
		PromptTokens:        int(u.prompt.Load()),
		CompletionTokens:    int(u.completion.Load()),
		CacheReadTokens:     int(u.cacheRead.Load()),
		CacheCreationTokens: int(u.cacheCreation.Load()),
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	if m, ok := u.model.Load().(string); ok {
		usage.Model = m
	}
	return usage
}
