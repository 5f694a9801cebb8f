package guardrail

import (
	"regexp"
	"strings"
)

var (
	// prefix alternatives ordered longest first so sk-ant- wins over sk-
	rePrefixedKey = regexp.MustCompile(`(github_pat_|sk-ant-|sk_live_|pk_live_|glpat-|xoxb-|xoxp-|ghp_|gho_|ghu_|AIza|AKIA|sk-)\[([A-Za-z0-9_-]{20,})\]`)

	reSecret = regexp.MustCompile(`\[SECRET-([A-Z]+)-([A-Za-z0-9_-]{20,})\]`)

	reCategorized = regexp.MustCompile(`\[(PRIVATE-KEY|AWS-SECRET|PASSPORT|IPv6|SSN|VISA|AMEX|DISC|CARD|MC|IBAN|AKIA|ADDR|JWT|REDACTED)-([A-Za-z0-9_-]{20,})\]`)

	reIPEnvelope = regexp.MustCompile(`\[IP-((?:\d{1,3}\.){3}\d{1,3})-([A-Za-z0-9_-]{20,})\]`)

	reFakeEmail = regexp.MustCompile(`\b[a-z]+\.[a-z]+\d{2}@anon\.com\b`)

	rePlainIPv4  = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	rePlainPhone = regexp.MustCompile(`\b\d{3}-\d{3}-\d{4}\b`)

	reRedactedAuth = regexp.MustCompile(`\[redacted-([A-Za-z0-9_-]{20,})\]`)

	rePhoneToken = regexp.MustCompile(`\b\d{3}-\d{3}-\d{4}-([A-Za-z0-9_-]{20,})`)
)

// Deanonymize restores original values in a response text. Tokens that this
// process's key did not produce pass through unchanged, so the function is
// safe on arbitrary model output.
func (e *Engine) Deanonymize(text string) string {
	if text == "" {
		return text
	}

	// 1. prefixed API keys: the plaintext already carries the prefix
	text = rePrefixedKey.ReplaceAllStringFunc(text, func(m string) string {
		sub := rePrefixedKey.FindStringSubmatch(m)
		if value, ok := e.codec.Decode("APIKEY", sub[2]); ok {
			return value
		}
		return m
	})

	// 2. bucketed secrets
	text = reSecret.ReplaceAllStringFunc(text, func(m string) string {
		sub := reSecret.FindStringSubmatch(m)
		if value, ok := e.codec.Decode(sub[1], sub[2]); ok {
			return value
		}
		return m
	})

	// 3. bracketed categorized tokens; the IP envelope carries an inner fake
	// address and is matched first
	text = reIPEnvelope.ReplaceAllStringFunc(text, func(m string) string {
		sub := reIPEnvelope.FindStringSubmatch(m)
		if value, ok := e.codec.Decode("IP", sub[2]); ok {
			return value
		}
		return m
	})
	text = reCategorized.ReplaceAllStringFunc(text, func(m string) string {
		sub := reCategorized.FindStringSubmatch(m)
		if value, ok := e.codec.Decode(sub[1], sub[2]); ok {
			return value
		}
		return m
	})

	// 4. fake emails via the reverse map
	text = reFakeEmail.ReplaceAllStringFunc(text, func(m string) string {
		if original, ok := e.reverse.Get(m); ok {
			return original
		}
		return m
	})

	// 5. bare fake IPv4s and phone digit groups the model extracted from an
	// envelope
	text = rePlainIPv4.ReplaceAllStringFunc(text, func(m string) string {
		if original, ok := e.reverse.Get(m); ok {
			return original
		}
		return m
	})
	text = e.replaceBarePhones(text)

	// 6. fake names, whole-word
	text = e.replaceFakeNames(text)

	// 7. URL basic-auth: decrypt to recover the username but keep the
	// password redacted
	text = reRedactedAuth.ReplaceAllStringFunc(text, func(m string) string {
		sub := reRedactedAuth.FindStringSubmatch(m)
		creds, ok := e.codec.Decode("REDACTED", sub[1])
		if !ok {
			return m
		}
		user := creds
		if i := strings.IndexByte(creds, ':'); i >= 0 {
			user = creds[:i]
		}
		return user + ":[REDACTED]"
	})

	// 8. full phone replacements
	text = rePhoneToken.ReplaceAllStringFunc(text, func(m string) string {
		sub := rePhoneToken.FindStringSubmatch(m)
		if value, ok := e.codec.Decode("PHONE", sub[1]); ok {
			return value
		}
		return m
	})

	return text
}

// replaceBarePhones resolves NNN-NNN-NNNN through the reverse map, skipping
// occurrences that still carry their token suffix (those belong to step 8).
func (e *Engine) replaceBarePhones(text string) string {
	locs := rePlainPhone.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return text
	}

	var sb strings.Builder
	last := 0
	changed := false
	for _, loc := range locs {
		start, end := loc[0], loc[1]
		if followedByToken(text, end) {
			continue
		}
		original, ok := e.reverse.Get(text[start:end])
		if !ok {
			continue
		}
		sb.WriteString(text[last:start])
		sb.WriteString(original)
		last = end
		changed = true
	}
	if !changed {
		return text
	}
	sb.WriteString(text[last:])
	return sb.String()
}

// nameKey reports whether a reverse-map key is a fake-name entry eligible
// for whole-word substitution.
func nameKey(key string) bool {
	if len(key) < 3 || strings.ContainsAny(key, "@[") {
		return false
	}
	if rePlainIPv4.MatchString(key) || rePlainPhone.MatchString(key) {
		return false
	}
	for _, r := range key {
		if !(r == ' ' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')) {
			return false
		}
	}
	return true
}

func (e *Engine) replaceFakeNames(text string) string {
	for _, key := range e.reverse.Keys() {
		if !nameKey(key) || !strings.Contains(text, key) {
			continue
		}
		original, ok := e.reverse.Get(key)
		if !ok {
			continue
		}
		re, err := regexp.Compile(`\b` + regexp.QuoteMeta(key) + `\b`)
		if err != nil {
			continue
		}
		text = re.ReplaceAllString(text, original)
	}
	return text
}
