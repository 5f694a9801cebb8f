package guardrail

import (
	"regexp"
	"strings"
)

// PatternDef describes one regex-driven detector: the regex list, an optional
// nearby-context gate, an optional match validator, and the replacement
// generator that emits the wire envelope and records reverse-map entries.
type PatternDef struct {
	ID          string
	Name        string
	Description string
	Category    Category
	Priority    int

	Patterns    []*regexp.Regexp
	ContextGate *regexp.Regexp
	Validate    func(match string) bool
	Replace     func(e *Engine, match string) string
}

// patternGuardrail adapts a PatternDef to the Guardrail interface.
type patternGuardrail struct {
	engine *Engine
	def    *PatternDef
}

func (g *patternGuardrail) ID() string { return g.def.ID }

func (g *patternGuardrail) Config() Config {
	return Config{
		Name:        g.def.Name,
		Description: g.def.Description,
		Enabled:     true,
		Category:    g.def.Category,
		Priority:    g.def.Priority,
		Lifecycles:  []Lifecycle{LifecyclePreCall},
	}
}

func (g *patternGuardrail) ShouldRun(ctx *Context) bool {
	return ctx.Lifecycle == LifecyclePreCall && ctx.Text != ""
}

func (g *patternGuardrail) Execute(ctx *Context) Result {
	text := ctx.Text
	count := 0
	for _, re := range g.def.Patterns {
		var n int
		text, n = applyPattern(g.engine, text, re, g.def)
		count += n
	}
	action := ActionAllow
	if count > 0 {
		action = ActionMask
	}
	return Result{ModifiedText: text, DetectionCount: count, Action: action}
}

// contextWindow is how far around a match the context gate looks.
const contextWindow = 60

// envelopeLookback bounds the scan for an enclosing replacement bracket.
const envelopeLookback = 160

// withinReplacement reports whether position start sits inside an emitted
// `[TAG-…]` envelope, so detectors never re-match their own output.
func withinReplacement(text string, start int) bool {
	from := start - envelopeLookback
	if from < 0 {
		from = 0
	}
	open := strings.LastIndexByte(text[from:start], '[')
	if open < 0 {
		return false
	}
	return !strings.ContainsRune(text[from+open:start], ']')
}

// tokenTail matches the `-<token>` suffix that follows fake phone digits.
var tokenTail = regexp.MustCompile(`^-[A-Za-z0-9_-]{20,}`)

// followedByToken reports whether an attached anonymization token starts at
// end, meaning the match is part of an already-emitted replacement.
func followedByToken(text string, end int) bool {
	return tokenTail.MatchString(text[end:])
}

func applyPattern(e *Engine, text string, re *regexp.Regexp, def *PatternDef) (string, int) {
	locs := re.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return text, 0
	}

	var sb strings.Builder
	last := 0
	count := 0
	for _, loc := range locs {
		start, end := loc[0], loc[1]
		if start < last {
			continue
		}
		match := text[start:end]

		if withinReplacement(text, start) || followedByToken(text, end) {
			continue
		}
		if def.Validate != nil && !def.Validate(match) {
			continue
		}
		if def.ContextGate != nil {
			wFrom, wTo := start-contextWindow, end+contextWindow
			if wFrom < 0 {
				wFrom = 0
			}
			if wTo > len(text) {
				wTo = len(text)
			}
			if !def.ContextGate.MatchString(text[wFrom:wTo]) {
				continue
			}
		}

		repl := def.Replace(e, match)
		if repl == match {
			continue
		}
		e.auditReplacement(def.Category, repl)
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

// bracketed builds `[TAG-<token>]`, records it in the reverse map, and
// returns it.
func bracketed(e *Engine, tag, value string) string {
	repl := "[" + tag + "-" + e.codec.Encode(tag, value) + "]"
	e.reverse.Put(repl, value)
	return repl
}

func validSSN(match string) bool {
	area := match[0:3]
	group := match[4:6]
	serial := match[7:11]
	if area == "000" || area == "666" || area[0] == '9' {
		return false
	}
	if group == "00" || serial == "0000" {
		return false
	}
	return true
}

// validIBAN runs the mod-97 check, which eliminates nearly every random
// uppercase-alphanumeric false positive.
func validIBAN(match string) bool {
	if len(match) < 15 || len(match) > 34 {
		return false
	}
	rearranged := match[4:] + match[:4]
	rem := 0
	for _, r := range rearranged {
		switch {
		case r >= '0' && r <= '9':
			rem = (rem*10 + int(r-'0')) % 97
		case r >= 'A' && r <= 'Z':
			v := int(r-'A') + 10
			rem = (rem*100 + v) % 97
		default:
			return false
		}
	}
	return rem == 1
}

func validIPv4(match string) bool {
	if match == "0.0.0.0" || strings.HasPrefix(match, "127.") {
		return false
	}
	for _, part := range strings.Split(match, ".") {
		if len(part) > 1 && part[0] == '0' {
			return false
		}
		n := 0
		for _, r := range part {
			n = n*10 + int(r-'0')
		}
		if n > 255 {
			return false
		}
	}
	return true
}

func cardTag(match string) string {
	switch {
	case strings.HasPrefix(match, "4"):
		return "VISA"
	case strings.HasPrefix(match, "5"):
		return "MC"
	case strings.HasPrefix(match, "3"):
		return "AMEX"
	case strings.HasPrefix(match, "6"):
		return "DISC"
	default:
		return "CARD"
	}
}

// registerDefaults installs the built-in detector set. Priority order is the
// execution order; structured credentials run before the generic entropy
// detectors so multi-part secrets are captured whole.
func registerDefaults(r *Registry) {
	defs := []*PatternDef{
		{
			ID:          "private_key",
			Name:        "Private key block",
			Description: "PEM-framed private key material",
			Category:    CategoryCredentials,
			Priority:    10,
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?s)-----BEGIN [A-Z ]*PRIVATE KEY-----.*?-----END [A-Z ]*PRIVATE KEY-----`),
			},
			Replace: func(e *Engine, m string) string { return bracketed(e, "PRIVATE-KEY", m) },
		},
		{
			ID:          "aws_access_key",
			Name:        "AWS access key id",
			Description: "AKIA-prefixed access key ids",
			Category:    CategoryCredentials,
			Priority:    20,
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
			},
			Replace: func(e *Engine, m string) string { return bracketed(e, "AKIA", m) },
		},
		{
			ID:          "aws_secret_key",
			Name:        "AWS secret key assignment",
			Description: "*_SECRET_KEY=value lines",
			Category:    CategoryCredentials,
			Priority:    21,
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`\b[A-Za-z0-9_]*SECRET[A-Za-z0-9_]*KEY[A-Za-z0-9_]*\s*=\s*[^\s'",;]+`),
			},
			Replace: func(e *Engine, m string) string {
				eq := strings.IndexByte(m, '=')
				value := strings.TrimSpace(m[eq+1:])
				if strings.HasPrefix(value, "[") {
					return m
				}
				return m[:eq+1] + bracketed(e, "AWS-SECRET", value)
			},
		},
		{
			ID:          "jwt",
			Name:        "JSON web token",
			Description: "Three-part eyJ tokens",
			Category:    CategoryCredentials,
			Priority:    30,
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`\beyJ[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{4,}\b`),
			},
			Replace: func(e *Engine, m string) string { return bracketed(e, "JWT", m) },
		},
		{
			ID:          "url_basic_auth",
			Name:        "URL basic auth",
			Description: "user:pass credentials embedded in URLs",
			Category:    CategoryCredentials,
			Priority:    40,
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`//[^/\s:@\[\]]+:[^/\s:@\[\]]+@`),
			},
			Replace: func(e *Engine, m string) string {
				creds := m[2 : len(m)-1]
				return "//[redacted-" + e.codec.Encode("REDACTED", creds) + "]@"
			},
		},
		{
			ID:          "credit_card",
			Name:        "Credit card number",
			Description: "Visa, Mastercard, Amex and Discover card numbers",
			Category:    CategoryFinancial,
			Priority:    60,
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`\b4\d{12}(?:\d{3})?\b`),
				regexp.MustCompile(`\b5[1-5]\d{14}\b`),
				regexp.MustCompile(`\b3[47]\d{13}\b`),
				regexp.MustCompile(`\b6(?:011|5\d{2})\d{12}\b`),
			},
			Replace: func(e *Engine, m string) string { return bracketed(e, cardTag(m), m) },
		},
		{
			ID:          "iban",
			Name:        "IBAN",
			Description: "International bank account numbers (mod-97 validated)",
			Category:    CategoryFinancial,
			Priority:    65,
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`\b[A-Z]{2}\d{2}[A-Z0-9]{11,30}\b`),
			},
			Validate: validIBAN,
			Replace:  func(e *Engine, m string) string { return bracketed(e, "IBAN", m) },
		},
		{
			ID:          "ssn",
			Name:        "US social security number",
			Description: "AAA-GG-SSSS with area/group/serial validation",
			Category:    CategoryPII,
			Priority:    70,
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
			},
			Validate: validSSN,
			Replace:  func(e *Engine, m string) string { return bracketed(e, "SSN", m) },
		},
		{
			ID:          "passport",
			Name:        "Passport number",
			Description: "Letter-prefixed document numbers near passport context",
			Category:    CategoryPII,
			Priority:    75,
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`\b[A-Z]{1,2}\d{6,9}\b`),
			},
			ContextGate: regexp.MustCompile(`(?i)\b(passport|document|travel)\b`),
			Replace:     func(e *Engine, m string) string { return bracketed(e, "PASSPORT", m) },
		},
		{
			ID:          "phone",
			Name:        "Phone number",
			Description: "US-formatted and E.164 phone numbers",
			Category:    CategoryPII,
			Priority:    80,
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`\b\d{3}[-.]\d{3}[-.]\d{4}\b`),
				regexp.MustCompile(`\+[1-9]\d{1,2}[-.\s]?\d{3,4}[-.\s]?\d{3,4}[-.\s]?\d{2,4}\b`),
			},
			Replace: func(e *Engine, m string) string {
				digits := e.fakePhoneDigits(m)
				repl := digits + "-" + e.codec.Encode("PHONE", m)
				e.reverse.Put(repl, m)
				e.reverse.Put(digits, m)
				return repl
			},
		},
		{
			ID:          "ip_address",
			Name:        "IP address",
			Description: "IPv4 and IPv6 addresses",
			Category:    CategoryNetwork,
			Priority:    85,
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
				regexp.MustCompile(`\b(?:[0-9a-fA-F]{1,4}:){2,7}[0-9a-fA-F]{1,4}\b`),
			},
			Validate: func(m string) bool {
				if strings.Contains(m, ":") {
					return true
				}
				return validIPv4(m)
			},
			Replace: func(e *Engine, m string) string {
				if strings.Contains(m, ":") {
					return bracketed(e, "IPv6", m)
				}
				fake := e.fakeIPv4(m)
				repl := "[IP-" + fake + "-" + e.codec.Encode("IP", m) + "]"
				e.reverse.Put(repl, m)
				e.reverse.Put(fake, m)
				return repl
			},
		},
		{
			ID:          "street_address",
			Name:        "Street address",
			Description: "Number + street-name + suffix addresses",
			Category:    CategoryPII,
			Priority:    90,
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`\b\d{1,5}\s+(?:[A-Z][a-z]+\s+){1,3}(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Dr|Court|Ct|Place|Pl|Way|Terrace|Ter)\b`),
			},
			Replace: func(e *Engine, m string) string { return bracketed(e, "ADDR", m) },
		},
		{
			ID:          "email",
			Name:        "Email address",
			Description: "Addresses outside the anon.com replacement domain",
			Category:    CategoryPII,
			Priority:    95,
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
			},
			Validate: func(m string) bool {
				return !strings.HasSuffix(strings.ToLower(m), "@anon.com")
			},
			Replace: func(e *Engine, m string) string {
				fake := e.fakeEmail(m)
				e.reverse.Put(fake, m)
				return fake
			},
		},
	}

	for _, def := range defs {
		def := def
		r.Register(def.ID, func(e *Engine) Guardrail {
			return &patternGuardrail{engine: e, def: def}
		})
	}

	r.Register("api_key", newAPIKeyGuardrail)
	r.Register("password", newPasswordGuardrail)
	r.Register("person_name", newNameGuardrail)
}
