// Package modelcap classifies model names into capability tiers and clamps
// requested output tokens to per-model limits.
package modelcap

import (
	"regexp"
	"strings"
	"sync"

	gocache "github.com/patrickmn/go-cache"
)

// Tier is the coarse capability band inferred from a model name.
type Tier string

const (
	TierOpus   Tier = "opus"
	TierSonnet Tier = "sonnet"
	TierHaiku  Tier = "haiku"
	// TierNone marks non-Claude model names.
	TierNone Tier = ""
)

var (
	opusRe   = regexp.MustCompile(`(?i)opus`)
	sonnetRe = regexp.MustCompile(`(?i)sonnet`)
	haikuRe  = regexp.MustCompile(`(?i)haiku`)
)

// DetectTier returns the tier for a model name, or TierNone when the name
// matches no Claude tier.
func DetectTier(model string) Tier {
	switch {
	case opusRe.MatchString(model):
		return TierOpus
	case sonnetRe.MatchString(model):
		return TierSonnet
	case haikuRe.MatchString(model):
		return TierHaiku
	default:
		return TierNone
	}
}

// Limits describes per-model capabilities used by the relay.
type Limits struct {
	MaxOutputTokens     int
	SupportsToolCalling bool
	SupportsReasoning   bool
}

var (
	limitsMu sync.RWMutex

	// limitsTable holds known per-model output caps. Keys are matched exactly
	// first, then by bidirectional prefix.
	limitsTable = map[string]Limits{
		"claude-opus-4":     {MaxOutputTokens: 32000, SupportsToolCalling: true, SupportsReasoning: true},
		"claude-sonnet-4":   {MaxOutputTokens: 64000, SupportsToolCalling: true, SupportsReasoning: true},
		"claude-3-5-haiku":  {MaxOutputTokens: 8192, SupportsToolCalling: true},
		"claude-3-5-sonnet": {MaxOutputTokens: 8192, SupportsToolCalling: true},
		"claude-3-opus":     {MaxOutputTokens: 4096, SupportsToolCalling: true},
		"gpt-4o":            {MaxOutputTokens: 16384, SupportsToolCalling: true},
		"gpt-4o-mini":       {MaxOutputTokens: 16384, SupportsToolCalling: true},
		"gpt-4.1":           {MaxOutputTokens: 32768, SupportsToolCalling: true},
		"o3":                {MaxOutputTokens: 100000, SupportsToolCalling: true, SupportsReasoning: true},
		"o4-mini":           {MaxOutputTokens: 100000, SupportsToolCalling: true, SupportsReasoning: true},
		"deepseek-chat":     {MaxOutputTokens: 8192, SupportsToolCalling: true},
		"deepseek-reasoner": {MaxOutputTokens: 65536, SupportsReasoning: true},
		"glm-4.5":           {MaxOutputTokens: 98304, SupportsToolCalling: true, SupportsReasoning: true},
		"gemini-2.5-pro":    {MaxOutputTokens: 65536, SupportsToolCalling: true, SupportsReasoning: true},
		"gemini-2.5-flash":  {MaxOutputTokens: 65536, SupportsToolCalling: true},
	}

	// lookupCache memoizes resolved limits per model id; invalidated on reload.
	lookupCache = gocache.New(gocache.NoExpiration, 0)
)

// LookupLimits resolves the limits entry for a model id using exact match,
// then bidirectional prefix match. Returns false when nothing matches.
func LookupLimits(modelID string) (Limits, bool) {
	if modelID == "" {
		return Limits{}, false
	}
	if cached, ok := lookupCache.Get(modelID); ok {
		if lim, ok := cached.(Limits); ok {
			return lim, lim != (Limits{})
		}
	}

	limitsMu.RLock()
	defer limitsMu.RUnlock()

	if lim, ok := limitsTable[modelID]; ok {
		lookupCache.SetDefault(modelID, lim)
		return lim, true
	}
	lower := strings.ToLower(modelID)
	for key, lim := range limitsTable {
		if strings.HasPrefix(lower, key) || strings.HasPrefix(key, lower) {
			lookupCache.SetDefault(modelID, lim)
			return lim, true
		}
	}
	lookupCache.SetDefault(modelID, Limits{})
	return Limits{}, false
}

// ReplaceLimits swaps the table (dynamic catalog reload) and drops memoized
// lookups.
func ReplaceLimits(table map[string]Limits) {
	limitsMu.Lock()
	limitsTable = table
	limitsMu.Unlock()
	lookupCache.Flush()
}

// ClampMaxTokens caps value by the model's configured max output tokens.
// Unknown models and zero caps leave the value unchanged.
func ClampMaxTokens(value int, modelID string) int {
	lim, ok := LookupLimits(modelID)
	if !ok || lim.MaxOutputTokens <= 0 {
		return value
	}
	if value > lim.MaxOutputTokens {
		return lim.MaxOutputTokens
	}
	return value
}
