package guardrail

import (
	"math"
	"regexp"
	"strings"
)

// knownKeyPrefixes are provider prefixes that identify a credential on sight,
// without the entropy test. Longer prefixes first so the emitted replacement
// keeps the most specific prefix.
var knownKeyPrefixes = []string{
	"github_pat_", "sk-ant-", "sk_live_", "pk_live_", "glpat-",
	"xoxb-", "xoxp-", "ghp_", "gho_", "ghu_", "sk-", "AIza", "AKIA",
}

// apiKeyCandidate matches word-shaped runs long enough to be a credential.
// URLs and JWTs use characters outside this class and are handled by their
// own detectors.
var apiKeyCandidate = regexp.MustCompile(`[A-Za-z0-9_\-]{20,}`)

// fakePhonePrefix recognizes the emitted phone replacement so its token part
// is never re-detected as an API key.
var fakePhonePrefix = regexp.MustCompile(`^\d{3}-\d{3}-\d{4}-`)

// shannonEntropy returns bits per character.
func shannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	freq := make(map[rune]int, len(s))
	for _, r := range s {
		freq[r]++
	}
	entropy := 0.0
	n := float64(len(s))
	for _, c := range freq {
		p := float64(c) / n
		entropy -= p * math.Log2(p)
	}
	return entropy
}

func charClasses(s string) int {
	var lower, upper, digit, symbol bool
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		default:
			symbol = true
		}
	}
	n := 0
	for _, b := range []bool{lower, upper, digit, symbol} {
		if b {
			n++
		}
	}
	return n
}

func matchKnownPrefix(s string) string {
	for _, p := range knownKeyPrefixes {
		if strings.HasPrefix(s, p) && len(s) > len(p)+8 {
			return p
		}
	}
	return ""
}

// apiKeyGuardrail flags generic credentials either by a known provider
// prefix or by entropy: at least 4.0 bits per character over at least three
// character classes.
type apiKeyGuardrail struct {
	engine *Engine
}

func newAPIKeyGuardrail(e *Engine) Guardrail { return &apiKeyGuardrail{engine: e} }

func (g *apiKeyGuardrail) ID() string { return "api_key" }

func (g *apiKeyGuardrail) Config() Config {
	return Config{
		Name:        "API key",
		Description: "High-entropy or provider-prefixed credentials",
		Enabled:     true,
		Category:    CategoryCredentials,
		Priority:    50,
		Lifecycles:  []Lifecycle{LifecyclePreCall},
	}
}

func (g *apiKeyGuardrail) ShouldRun(ctx *Context) bool {
	return ctx.Lifecycle == LifecyclePreCall && ctx.Text != ""
}

func (g *apiKeyGuardrail) Execute(ctx *Context) Result {
	text := ctx.Text
	locs := apiKeyCandidate.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return Result{ModifiedText: text, Action: ActionAllow}
	}

	var sb strings.Builder
	last := 0
	count := 0
	for _, loc := range locs {
		start, end := loc[0], loc[1]
		word := text[start:end]

		if withinReplacement(text, start) || fakePhonePrefix.MatchString(word) {
			continue
		}

		prefix := matchKnownPrefix(word)
		if prefix == "" {
			if shannonEntropy(word) < 4.0 || charClasses(word) < 3 {
				continue
			}
		}

		var repl string
		if prefix != "" {
			repl = prefix + "[" + g.engine.codec.Encode("APIKEY", word) + "]"
		} else {
			// bucket doubles as the codec category so decoding stays
			// self-contained
			repl = "[SECRET-KEY-" + g.engine.codec.Encode("KEY", word) + "]"
		}
		g.engine.reverse.Put(repl, word)
		g.engine.auditReplacement(CategoryCredentials, repl)

		sb.WriteString(text[last:start])
		sb.WriteString(repl)
		last = end
		count++
	}
	if count == 0 {
		return Result{ModifiedText: text, Action: ActionAllow}
	}
	sb.WriteString(text[last:])
	return Result{ModifiedText: sb.String(), DetectionCount: count, Action: ActionMask}
}

// secretBuckets normalizes an assignment key to the bucket embedded in the
// SECRET envelope. Buckets are a closed set so the envelope stays parseable.
var secretBuckets = map[string]string{
	"password": "PASSWORD", "passwd": "PASSWORD", "pwd": "PASSWORD", "pass": "PASSWORD",
	"secret": "SECRET", "token": "TOKEN", "auth": "AUTH",
	"api_key": "APIKEY", "apikey": "APIKEY", "access_key": "KEY", "key": "KEY",
}

var passwordAssign = regexp.MustCompile(`(?i)\b(password|passwd|pwd|pass|secret|token|api_key|apikey|access_key|auth)\b\s*[:=]\s*("[^"\s]{6,}"|'[^'\s]{6,}'|[^\s,;'"]{6,})`)

// passwordGuardrail flags password-like values in key=value or key: value
// context, keeping the key and separator intact.
type passwordGuardrail struct {
	engine *Engine
}

func newPasswordGuardrail(e *Engine) Guardrail { return &passwordGuardrail{engine: e} }

func (g *passwordGuardrail) ID() string { return "password" }

func (g *passwordGuardrail) Config() Config {
	return Config{
		Name:        "Password assignment",
		Description: "Values assigned to password-like keys",
		Enabled:     true,
		Category:    CategoryCredentials,
		Priority:    55,
		Lifecycles:  []Lifecycle{LifecyclePreCall},
	}
}

func (g *passwordGuardrail) ShouldRun(ctx *Context) bool {
	return ctx.Lifecycle == LifecyclePreCall && ctx.Text != ""
}

func (g *passwordGuardrail) Execute(ctx *Context) Result {
	text := ctx.Text
	locs := passwordAssign.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return Result{ModifiedText: text, Action: ActionAllow}
	}

	var sb strings.Builder
	last := 0
	count := 0
	for _, loc := range locs {
		valStart, valEnd := loc[4], loc[5]
		value := text[valStart:valEnd]

		// strip quoting
		if len(value) >= 2 && (value[0] == '"' || value[0] == '\'') {
			valStart++
			valEnd--
			value = value[1 : len(value)-1]
		}
		if withinReplacement(text, valStart) || strings.ContainsAny(value, "[]") {
			continue
		}

		bucket := secretBuckets[strings.ToLower(text[loc[2]:loc[3]])]
		if bucket == "" {
			bucket = "SECRET"
		}
		repl := "[SECRET-" + bucket + "-" + g.engine.codec.Encode(bucket, value) + "]"
		g.engine.reverse.Put(repl, value)
		g.engine.auditReplacement(CategoryCredentials, repl)

		sb.WriteString(text[last:valStart])
		sb.WriteString(repl)
		last = valEnd
		count++
	}
	if count == 0 {
		return Result{ModifiedText: text, Action: ActionAllow}
	}
	sb.WriteString(text[last:])
	return Result{ModifiedText: sb.String(), DetectionCount: count, Action: ActionMask}
}

var (
	capWordRe  = regexp.MustCompile(`\b[A-Z][a-z]+\b`)
	authorRe   = regexp.MustCompile(`(?i)\b(?:author|owner|assignee|reviewer):\s*([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)`)
	greetingRe = regexp.MustCompile(`\b(?:Hi|Hello|Dear|Thanks|Regards|Best|Sincerely|Cheers),?\s+([A-Z][a-z]+)\b`)
	homePathRe = regexp.MustCompile(`/(?:home|Users)/([a-z][a-z0-9]{2,})/`)
)

// nameGuardrail detects person names by dictionary-validated "First Last"
// pairs, context keywords, greetings, and home-directory path segments, and
// substitutes deterministic fake identities.
type nameGuardrail struct {
	engine *Engine
}

func newNameGuardrail(e *Engine) Guardrail { return &nameGuardrail{engine: e} }

func (g *nameGuardrail) ID() string { return "person_name" }

func (g *nameGuardrail) Config() Config {
	return Config{
		Name:        "Person name",
		Description: "Dictionary and context based person-name detection",
		Enabled:     true,
		Category:    CategoryPII,
		Priority:    100,
		Lifecycles:  []Lifecycle{LifecyclePreCall},
	}
}

func (g *nameGuardrail) ShouldRun(ctx *Context) bool {
	return ctx.Lifecycle == LifecyclePreCall && ctx.Text != ""
}

func (g *nameGuardrail) Execute(ctx *Context) Result {
	text := ctx.Text
	count := 0

	text, n := g.replaceFullNames(text)
	count += n

	for _, re := range []*regexp.Regexp{authorRe, greetingRe} {
		text, n = g.replaceMatches(text, re, 1, func(name string) (string, bool) {
			parts := strings.Fields(name)
			if !knownFirstNames[strings.ToLower(parts[0])] {
				return "", false
			}
			if len(parts) == 2 {
				return g.fullNameReplacement(name), true
			}
			fake := g.engine.fakeFirstName(name)
			g.engine.reverse.Put(fake, name)
			return fake, true
		})
		count += n
	}

	text, n = g.replaceMatches(text, homePathRe, 1, func(name string) (string, bool) {
		if !knownFirstNames[name] {
			return "", false
		}
		fake := strings.ToLower(g.engine.fakeFirstName(name))
		g.engine.reverse.Put(fake, name)
		return fake, true
	})
	count += n

	action := ActionAllow
	if count > 0 {
		action = ActionMask
	}
	return Result{ModifiedText: text, DetectionCount: count, Action: action}
}

// replaceFullNames scans adjacent capitalized word pairs so a preceding
// capitalized word (a greeting, a sentence start) cannot shadow the name.
func (g *nameGuardrail) replaceFullNames(text string) (string, int) {
	locs := capWordRe.FindAllStringIndex(text, -1)
	if len(locs) < 2 {
		return text, 0
	}

	var sb strings.Builder
	last := 0
	count := 0
	for i := 0; i+1 < len(locs); i++ {
		s1, e1 := locs[i][0], locs[i][1]
		s2, e2 := locs[i+1][0], locs[i+1][1]
		if s1 < last || s2 != e1+1 || text[e1] != ' ' {
			continue
		}
		first, family := text[s1:e1], text[s2:e2]
		if !knownFirstNames[strings.ToLower(first)] || !knownLastNames[strings.ToLower(family)] {
			continue
		}
		if withinReplacement(text, s1) {
			continue
		}
		sb.WriteString(text[last:s1])
		sb.WriteString(g.fullNameReplacement(first + " " + family))
		last = e2
		count++
	}
	if count == 0 {
		return text, 0
	}
	sb.WriteString(text[last:])
	return sb.String(), count
}

func (g *nameGuardrail) fullNameReplacement(name string) string {
	fake := g.engine.fakeFullName(name)
	g.engine.reverse.Put(fake, name)
	g.engine.auditReplacement(CategoryPII, fake)
	return fake
}

// replaceMatches rewrites capture group idx of every match through fn,
// skipping matches inside emitted envelopes.
func (g *nameGuardrail) replaceMatches(text string, re *regexp.Regexp, group int, fn func(string) (string, bool)) (string, int) {
	locs := re.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return text, 0
	}

	var sb strings.Builder
	last := 0
	count := 0
	for _, loc := range locs {
		start, end := loc[2*group], loc[2*group+1]
		if start < last || withinReplacement(text, start) {
			continue
		}
		repl, ok := fn(text[start:end])
		if !ok {
			continue
		}
		sb.WriteString(text[last:start])
		sb.WriteString(repl)
		last = end
		count++
	}
	if count == 0 {
		return text, 0
	}
	sb.WriteString(text[last:])
	return sb.String(), count
}
