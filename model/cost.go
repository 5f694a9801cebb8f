package model

import "strings"

// modelRate is USD per million tokens.
type modelRate struct {
	Input  float64
	Output float64
}

// rateTable is keyed by model id prefix; longest prefix wins. Unknown models
// cost zero, the spend-based strategies then simply see no pressure from
// them.
var rateTable = map[string]modelRate{
	"claude-opus-4":     {Input: 15, Output: 75},
	"claude-sonnet-4":   {Input: 3, Output: 15},
	"claude-haiku":      {Input: 0.8, Output: 4},
	"claude-3-5-haiku":  {Input: 0.8, Output: 4},
	"gpt-4o-mini":       {Input: 0.15, Output: 0.6},
	"gpt-4o":            {Input: 2.5, Output: 10},
	"gpt-4.1":           {Input: 2, Output: 8},
	"o3":                {Input: 2, Output: 8},
	"deepseek-chat":     {Input: 0.27, Output: 1.1},
	"deepseek-reasoner": {Input: 0.55, Output: 2.19},
	"glm-4.5":           {Input: 0.6, Output: 2.2},
	"gemini-2.5-pro":    {Input: 1.25, Output: 10},
	"gemini-2.5-flash":  {Input: 0.3, Output: 2.5},
}

// CostUSD estimates the cost of one call from its token counts. Cache reads
// bill at a tenth of the input rate, cache writes at 1.25x, matching the
// published Anthropic ratios.
func CostUSD(model string, promptTokens, completionTokens, cacheReadTokens, cacheCreationTokens int) float64 {
	rate, ok := lookupRate(model)
	if !ok {
		return 0
	}
	const million = 1_000_000
	cost := float64(promptTokens) / million * rate.Input
	cost += float64(completionTokens) / million * rate.Output
	cost += float64(cacheReadTokens) / million * rate.Input * 0.1
	cost += float64(cacheCreationTokens) / million * rate.Input * 1.25
	return cost
}

func lookupRate(model string) (modelRate, bool) {
	model = strings.ToLower(model)
	if rate, ok := rateTable[model]; ok {
		return rate, true
	}
	bestLen := 0
	var best modelRate
	for prefix, rate := range rateTable {
		if strings.HasPrefix(model, prefix) && len(prefix) > bestLen {
			bestLen = len(prefix)
			best = rate
		}
	}
	return best, bestLen > 0
}
