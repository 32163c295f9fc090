package voice

import (
	"regexp"
	"strings"
	"unicode"
)

type speechRewrite struct {
	pattern *regexp.Regexp
	repl    string
}

// Applied in order: code blocks go before inline code, links before bare URLs.
var speechRewrites = []speechRewrite{
	{regexp.MustCompile("(?s)```.*?```"), " "},
	{regexp.MustCompile("`([^`\n]*)`"), "$1"},
	{regexp.MustCompile(`(?mi)^\s*(?:sam|assistant)\s*:\s*`), ""},
	{regexp.MustCompile(`(?i)[*(\[]\s*(?:laugh|chuckl|smil|sigh|paus|grin)[^*)\]\n]*[*)\]]`), " "},
	{regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`), "$1"},
	{regexp.MustCompile(`https?://\S+`), " "},
	{regexp.MustCompile(`(?m)^\s*(?:[-*+•]|\d+[.)])\s+`), ""},
}

var spaceBeforePunct = regexp.MustCompile(`\s+([.,!?;:])`)

// SanitizeSpeechText turns a chat reply into plain sentences for TTS. Code, links,
// markdown, stage directions like "*laughs*" and emoji are dropped; inline code keeps its words.
func SanitizeSpeechText(raw string) string {
	text := strings.TrimSpace(raw)
	for _, rw := range speechRewrites {
		text = rw.pattern.ReplaceAllString(text, rw.repl)
	}
	text = strings.Join(strings.Fields(strings.Map(speakableRune, text)), " ")
	return spaceBeforePunct.ReplaceAllString(text, "$1")
}

// speakableRune keeps what a TTS voice reads naturally, drops emoji and maps other markup to a space.
func speakableRune(r rune) rune {
	switch {
	case r == '\u200d' || r == '\ufe0f' || r == '\u20e3':
		return -1
	case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsMark(r):
		return r
	case unicode.IsSpace(r):
		return ' '
	case strings.ContainsRune(".,!?;:'\"-()%&$", r), unicode.In(r, unicode.Pi, unicode.Pf):
		return r
	case unicode.In(r, unicode.So, unicode.Sk, unicode.Cs), unicode.IsControl(r):
		return -1
	default:
		return ' '
	}
}
