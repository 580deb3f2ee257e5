package client

import "strings"

const whisperPrefix = "/w "

// WhisperUsage describes the private message command.
const WhisperUsage = "Usage: /w <user> <message> or /w {<user>} <message>"

// ParseWhisper splits "/w user message" or "/w {user with spaces} message".
// It reports false when the input is not a complete command.
func ParseWhisper(input string) (to, text string, ok bool) {
	rest, found := strings.CutPrefix(input, whisperPrefix)
	if !found {
		return "", "", false
	}
	rest = strings.TrimSpace(rest)

	if strings.HasPrefix(rest, "{") {
		end := strings.IndexByte(rest[1:], '}')
		if end < 0 {
			return "", "", false
		}
		to = strings.TrimSpace(rest[1 : end+1])
		text = strings.TrimSpace(rest[end+2:])
	} else {
		var hasText bool
		to, text, hasText = strings.Cut(rest, " ")
		if !hasText {
			return "", "", false
		}
		text = strings.TrimSpace(text)
	}

	if to == "" || text == "" {
		return "", "", false
	}
	return to, text, true
}

// IsWhisper reports whether input starts the private message command.
func IsWhisper(input string) bool {
	return strings.HasPrefix(input, whisperPrefix)
}
