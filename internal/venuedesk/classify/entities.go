package classify

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Entity extraction operates exclusively on cleaned text so values quoted
// from prior messages are never bound.

var (
	isoDateRe     = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	dottedDateRe  = regexp.MustCompile(`\b(\d{1,2})\.(\d{1,2})\.(\d{4})\b`)
	monthDayRe    = regexp.MustCompile(`(?i)\b(january|february|march|april|may|june|july|august|september|october|november|december)\s+(\d{1,2})(?:st|nd|rd|th)?(?:,?\s+(\d{4}))?\b`)
	dayMonthRe    = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?(january|february|march|april|may|june|july|august|september|october|november|december)(?:,?\s+(\d{4}))?\b`)
	headcountRe   = regexp.MustCompile(`(?i)\b(\d{1,4})\s*(?:people|persons|person|guests|guest|pax|attendees|participants)\b`)
	headcountOfRe = regexp.MustCompile(`(?i)\b(?:headcount|party|group)\s+of\s+(\d{1,4})\b`)
	priceRe       = regexp.MustCompile(`(?i)\b\d[\d.,]*\s*(?:€|eur|euro|euros|usd|\$|chf)|\b(?:€|\$)\s*\d[\d.,]*`)
	taxIDRe       = regexp.MustCompile(`(?i)\b(?:vat|tax)\s*(?:id|no|number)?\s*[:\s]\s*([A-Z]{0,2}\s?[A-Z0-9\-]{6,14})`)
	billEmailRe   = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
)

var monthNumbers = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June, "july": time.July,
	"august": time.August, "september": time.September, "october": time.October,
	"november": time.November, "december": time.December,
}

// ExtractDate returns the first date bound in text as an ISO 8601 string.
// Year-less mentions ("December 20") resolve to the next occurrence relative
// to now.  Returns "" when no date is present.
func ExtractDate(text string, now time.Time) string {
	if m := isoDateRe.FindStringSubmatch(text); m != nil {
		if canonical, ok := canonicalDate(m[1], m[2], m[3]); ok {
			return canonical
		}
	}
	if m := dottedDateRe.FindStringSubmatch(text); m != nil {
		if canonical, ok := canonicalDate(m[3], m[2], m[1]); ok {
			return canonical
		}
	}
	if m := monthDayRe.FindStringSubmatch(text); m != nil {
		return resolveNamedMonth(m[1], m[2], m[3], now)
	}
	if m := dayMonthRe.FindStringSubmatch(text); m != nil {
		return resolveNamedMonth(m[2], m[1], m[3], now)
	}
	return ""
}

func canonicalDate(year, month, day string) (string, bool) {
	y, _ := strconv.Atoi(year)
	mo, _ := strconv.Atoi(month)
	d, _ := strconv.Atoi(day)
	if mo < 1 || mo > 12 || d < 1 || d > 31 {
		return "", false
	}
	t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
	// time.Date normalises overflow (Feb 30 → Mar 2); reject those.
	if int(t.Month()) != mo || t.Day() != d {
		return "", false
	}
	return t.Format("2006-01-02"), true
}

func resolveNamedMonth(monthName, day, year string, now time.Time) string {
	month, ok := monthNumbers[strings.ToLower(monthName)]
	if !ok {
		return ""
	}
	d, _ := strconv.Atoi(day)
	if d < 1 || d > 31 {
		return ""
	}

	if year != "" {
		y, _ := strconv.Atoi(year)
		if canonical, ok := canonicalDate(strconv.Itoa(y), fmt.Sprintf("%02d", month), fmt.Sprintf("%02d", d)); ok {
			return canonical
		}
		return ""
	}

	// No year given: the next occurrence of that month/day.
	candidate := time.Date(now.Year(), month, d, 0, 0, 0, 0, time.UTC)
	if int(candidate.Month()) != int(month) || candidate.Day() != d {
		return ""
	}
	if candidate.Before(now.Truncate(24 * time.Hour)) {
		candidate = candidate.AddDate(1, 0, 0)
	}
	return candidate.Format("2006-01-02")
}

// ExtractHeadcount returns a bound guest count or 0 when absent.
func ExtractHeadcount(text string) int {
	if m := headcountRe.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	if m := headcountOfRe.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	return 0
}

// ContainsPrice reports whether text mentions a money amount.  The
// out-of-context gate uses this on the quoted portion of the body.
func ContainsPrice(text string) bool {
	return priceRe.MatchString(text)
}

// ExtractBilling scans for invoicing fields offered as "key: value" lines or
// recognisable inline patterns.  Absent fields stay empty.
func ExtractBilling(text string) (company, address, taxID, email string) {
	for _, line := range strings.Split(text, "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		switch {
		case key == "company" || key == "company name" || strings.HasSuffix(key, "invoice to"):
			company = value
		case strings.Contains(key, "billing address") || key == "address" || key == "invoice address":
			address = value
		case strings.Contains(key, "billing email") || strings.Contains(key, "invoice email"):
			email = value
		}
	}

	if m := taxIDRe.FindStringSubmatch(text); m != nil {
		taxID = strings.TrimSpace(m[1])
	}
	if email == "" {
		lower := strings.ToLower(text)
		if strings.Contains(lower, "invoice") || strings.Contains(lower, "billing") {
			if m := billEmailRe.FindString(text); m != "" {
				email = m
			}
		}
	}
	return company, address, taxID, email
}

// MatchName resolves a free-text mention against a list of known names/IDs
// with word-boundary matching.  Hyphenated names also match their spaced
// form.  Returns the matched known name and true, or "" and false.
func MatchName(text string, known []string) (string, bool) {
	lower := strings.ToLower(text)
	for _, name := range known {
		needle := strings.ToLower(name)
		if matchesToken(lower, needle) {
			return name, true
		}
		if strings.Contains(needle, "-") && matchesToken(lower, strings.ReplaceAll(needle, "-", " ")) {
			return name, true
		}
	}
	return "", false
}

func matchesToken(haystack, needle string) bool {
	idx := 0
	for {
		i := strings.Index(haystack[idx:], needle)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(needle)
		beforeOK := start == 0 || !isWordByte(haystack[start-1])
		afterOK := end >= len(haystack) || !isWordByte(haystack[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}
