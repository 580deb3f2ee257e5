package core

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	minNicknameLen = 3
	maxNicknameLen = 20

	// FallbackNickname is the base used when a requested nickname is unusable.
	FallbackNickname = "Guest"
)

// NormalizeNickname collapses whitespace runs into single spaces and trims the ends.
func NormalizeNickname(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ValidNickname reports whether an already normalized nickname may be claimed as-is.
func ValidNickname(s string) bool {
	n := utf8.RuneCountInString(s)
	if n < minNicknameLen || n > maxNicknameLen {
		return false
	}
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
		case r == ' ', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// nicknameBase returns the name the claim loop starts from.
func nicknameBase(requested string) string {
	name := NormalizeNickname(requested)
	if !ValidNickname(name) {
		return FallbackNickname
	}
	return name
}

// nicknameCandidate returns base for n == 0 and base+n otherwise, cutting the
// base so the result stays within the length limit.
func nicknameCandidate(base string, n int) string {
	if n == 0 {
		return base
	}
	suffix := strconv.Itoa(n)
	runes := []rune(base)
	if limit := maxNicknameLen - len(suffix); len(runes) > limit {
		runes = runes[:limit]
	}
	return strings.TrimRight(string(runes), " ") + suffix
}
