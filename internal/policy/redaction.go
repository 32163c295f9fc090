package policy

import "regexp"

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)

	groqKeyPattern  = regexp.MustCompile(`\bgsk_[A-Za-z0-9]{8,}`)
	bearerPattern   = regexp.MustCompile(`(?i)\b(bearer|token)\s+[A-Za-z0-9._\-]{12,}`)
	keyParamPattern = regexp.MustCompile(`(?i)\b(api[_-]?key|access[_-]?token|secret)(["']?\s*[:=]\s*["']?)[^\s"'&,]+`)
	hexKeyPattern   = regexp.MustCompile(`\b[a-f0-9]{40}\b`)
)

// RedactPII masks common high-risk PII patterns.
func RedactPII(input string) (redacted string, changed bool) {
	out := input

	next := emailPattern.ReplaceAllString(out, "[REDACTED_EMAIL]")
	changed = changed || next != out
	out = next

	// Card before phone, otherwise card numbers match the phone pattern.
	next = cardPattern.ReplaceAllString(out, "[REDACTED_CARD]")
	changed = changed || next != out
	out = next

	next = phonePattern.ReplaceAllString(out, "[REDACTED_PHONE]")
	changed = changed || next != out
	out = next

	return out, changed
}

// RedactSecrets masks provider credentials in text that may reach logs or the UI.
func RedactSecrets(input string) string {
	out := groqKeyPattern.ReplaceAllString(input, "[REDACTED_KEY]")
	out = bearerPattern.ReplaceAllString(out, "$1 [REDACTED_KEY]")
	out = keyParamPattern.ReplaceAllString(out, "$1$2[REDACTED_KEY]")
	out = hexKeyPattern.ReplaceAllString(out, "[REDACTED_KEY]")
	return out
}
