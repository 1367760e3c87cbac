// Package textclean provides email-body hygiene for the deterministic
// matching layers of the negotiation engine.
//
// # Why this exists
//
// Inbound email bodies routinely carry quoted history ("> we agreed on
// 2025-12-10"), reply headers ("On Tue, ... wrote:"), signatures, URLs and
// mail addresses.  Any keyword or pattern rule that operates on the raw body
// will false-positive on text the client never wrote in this turn.  All
// pattern rules in the engine therefore run on the output of Strip, and all
// keyword checks use word-boundary matching via ContainsWord/ContainsPhrase.
//
// Stripping is best-effort: it operates line-by-line on common quoting
// conventions and does not attempt full MIME parsing (the gateway already
// delivers plain text bodies).
package textclean

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	// replyHeaderRe matches "On <date>, <name> wrote:" style reply headers,
	// including localised "Am ... schrieb:" variants.
	replyHeaderRe = regexp.MustCompile(`(?i)^(on|am)\s.{0,120}\b(wrote|schrieb):\s*$`)

	// forwardMarkerRe matches forwarded-message separators.
	forwardMarkerRe = regexp.MustCompile(`(?i)^-{2,}\s*(forwarded message|original message|ursprüngliche nachricht)\s*-{2,}`)

	urlRe  = regexp.MustCompile(`https?://\S+`)
	mailRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
)

// signatureMarkers are line prefixes that start a signature block; everything
// from the marker to the end of the body is dropped.
var signatureMarkers = []string{
	"--",
	"__",
	"best regards",
	"kind regards",
	"with kind regards",
	"mit freundlichen grüßen",
	"sent from my",
}

// Strip returns body with quoted history, reply headers, forwarded blocks,
// signatures, URLs and mail addresses removed.  The result preserves the
// client's own words for this turn and nothing else.
//
// Mail addresses are redacted so keyword rules never fire on a signature
// address; extraction that legitimately needs an address (billing capture)
// must use StripQuoted instead.
func Strip(body string) string {
	out := StripQuoted(body)
	out = urlRe.ReplaceAllString(out, " ")
	out = mailRe.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// StripQuoted removes quoted history, reply headers, forwarded blocks and
// signatures, but keeps URLs and mail addresses intact.
func StripQuoted(body string) string {
	lines := strings.Split(body, "\n")
	kept := make([]string, 0, len(lines))

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		// Quoted history: any ">"-prefixed line, at any nesting depth.
		if strings.HasPrefix(trimmed, ">") {
			continue
		}

		// A reply header or forward separator means everything below is
		// quoted history, even when the mail client did not ">"-prefix it.
		if replyHeaderRe.MatchString(trimmed) || forwardMarkerRe.MatchString(trimmed) {
			break
		}

		if isSignatureStart(trimmed) {
			break
		}

		kept = append(kept, line)
	}

	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// QuotedOnly returns the parts of body that Strip removes as quoted history
// (">"-lines and everything below a reply header).  The out-of-context gate
// uses this to decide whether a date or price appears only in quoted text.
func QuotedOnly(body string) string {
	lines := strings.Split(body, "\n")
	var quoted []string
	inQuotedTail := false

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case inQuotedTail:
			quoted = append(quoted, line)
		case strings.HasPrefix(trimmed, ">"):
			quoted = append(quoted, strings.TrimSpace(strings.TrimPrefix(trimmed, ">")))
		case replyHeaderRe.MatchString(trimmed) || forwardMarkerRe.MatchString(trimmed):
			inQuotedTail = true
		}
	}

	return strings.Join(quoted, "\n")
}

// isSignatureStart reports whether a line opens a signature block.
func isSignatureStart(trimmed string) bool {
	lower := strings.ToLower(trimmed)
	for _, marker := range signatureMarkers {
		if lower == marker || strings.HasPrefix(lower, marker+" ") || strings.HasPrefix(lower, marker+",") {
			return true
		}
	}
	return false
}

// ContainsWord reports whether text contains word as a whole word
// (case-insensitive).  "ok" does not match inside "broker".
func ContainsWord(text, word string) bool {
	text = strings.ToLower(text)
	word = strings.ToLower(word)

	idx := 0
	for {
		i := strings.Index(text[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		if boundaryBefore(text, start) && boundaryAfter(text, end) {
			return true
		}
		idx = start + 1
	}
}

// ContainsPhrase reports whether text contains the multi-word phrase with
// word boundaries on both ends (case-insensitive).  Interior whitespace in
// the phrase matches any run of whitespace in text.
func ContainsPhrase(text, phrase string) bool {
	fields := strings.Fields(strings.ToLower(phrase))
	if len(fields) == 0 {
		return false
	}
	if len(fields) == 1 {
		return ContainsWord(text, fields[0])
	}

	words := strings.Fields(strings.ToLower(text))
	for i := 0; i+len(fields) <= len(words); i++ {
		match := true
		for j, f := range fields {
			if trimPunct(words[i+j]) != f {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// ContainsAnyWord reports whether text contains any of the given words or
// phrases (phrases may include spaces) with word-boundary matching.
func ContainsAnyWord(text string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(w, " ") {
			if ContainsPhrase(text, w) {
				return true
			}
		} else if ContainsWord(text, w) {
			return true
		}
	}
	return false
}

func boundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r := rune(text[i-1])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func boundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	r := rune(text[i])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func trimPunct(w string) string {
	return strings.TrimFunc(w, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
