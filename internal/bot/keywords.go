package bot

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// descriptionThreshold is the length above which free text is treated as a
// listing description (publishers) or a search query (searchers).
const descriptionThreshold = 40

var (
	affirmativeWords = wordSet("כן", "מאשר", "אוקיי", "yes", "ok", "confirm")
	negativeWords    = wordSet("לא", "בטל", "ביטול", "no", "cancel")
	availabilityHint = []string{"פנוי", "זמינות", "available", "availability"}

	lookupPrefixes = []string{"/start ", "start ", "listing ", "דירה "}
	idLike         = regexp.MustCompile(`(?i)^[0-9a-f]{8}(-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})?$`)
)

func wordSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func containsWord(text string, set map[string]bool) bool {
	for _, w := range words(text) {
		if set[w] {
			return true
		}
	}
	return false
}

// IsAffirmative reports whether text contains a confirmation word.
func IsAffirmative(text string) bool { return containsWord(text, affirmativeWords) }

// IsNegative reports whether text contains a cancellation word.
func IsNegative(text string) bool { return containsWord(text, negativeWords) }

// MentionsAvailability reports whether text talks about viewing times.
func MentionsAvailability(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range availabilityHint {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func isLong(text string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(text)) > descriptionThreshold
}

// lookupTarget extracts a listing id from a deep link, an explicit
// "listing <id>" request or a bare id-like token.
func lookupTarget(text string) (string, bool) {
	t := strings.TrimSpace(text)
	lower := strings.ToLower(t)
	for _, p := range lookupPrefixes {
		if strings.HasPrefix(lower, p) {
			id := strings.TrimSpace(t[len(p):])
			if id == "" || strings.HasPrefix(id, "link_") || strings.ContainsAny(id, " \t\n") {
				return "", false
			}
			return id, true
		}
	}
	if idLike.MatchString(t) {
		return t, true
	}
	return "", false
}

type linkKind int

const (
	linkNone linkKind = iota
	linkAccount
	linkEmail
)

// linkTarget recognizes "start link_<accountId>" and "link <email>".
func linkTarget(text string) (linkKind, string) {
	t := strings.TrimSpace(text)
	lower := strings.ToLower(t)
	for _, p := range []string{"/start link_", "start link_"} {
		if strings.HasPrefix(lower, p) {
			if id := strings.TrimSpace(t[len(p):]); id != "" {
				return linkAccount, id
			}
			return linkNone, ""
		}
	}
	for _, p := range []string{"/link ", "link "} {
		if strings.HasPrefix(lower, p) {
			email := strings.TrimSpace(t[len(p):])
			if strings.Contains(email, "@") && !strings.ContainsAny(email, " \t\n") {
				return linkEmail, strings.ToLower(email)
			}
			return linkNone, ""
		}
	}
	return linkNone, ""
}

func isRestart(text string) bool {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "/start", "/reset":
		return true
	}
	return false
}
