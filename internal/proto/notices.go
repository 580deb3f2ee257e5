package proto

import (
	"fmt"
	"strings"
)

// Clients match these sys texts literally to maintain their presence lists,
// so the wording must not drift.
const (
	usersOnlinePrefix = "Users online:"
	joinedSuffix      = " joined the chat"
	leftSuffix        = " left the chat"
	firstUserMarker   = "You are the first user online"
)

// UsersOnlineText renders the presence list notice.
func UsersOnlineText(nicknames []string) string {
	return usersOnlinePrefix + " " + strings.Join(nicknames, ", ")
}

// JoinedText renders the join notice.
func JoinedText(nickname string) string {
	return nickname + joinedSuffix
}

// LeftText renders the leave notice.
func LeftText(nickname string) string {
	return nickname + leftSuffix
}

// FirstUserText renders the welcome sent when nobody else is online.
func FirstUserText(nickname string) string {
	return fmt.Sprintf("Welcome %s! %s.", nickname, firstUserMarker)
}

// ConfirmationText renders the username_confirmed text. It differs when the
// requested nickname could not be granted as-is.
func ConfirmationText(requested, assigned string) string {
	if requested == assigned {
		return "Joined as " + assigned
	}
	return fmt.Sprintf("Nickname %q is unavailable, joined as %s", requested, assigned)
}

// ParseUsersOnline extracts the nicknames from a presence list notice.
func ParseUsersOnline(text string) ([]string, bool) {
	rest, ok := strings.CutPrefix(text, usersOnlinePrefix)
	if !ok {
		return nil, false
	}
	var names []string
	for _, part := range strings.Split(rest, ",") {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names, true
}

// ParseJoined extracts the nickname from a join notice.
func ParseJoined(text string) (string, bool) {
	name, ok := strings.CutSuffix(text, joinedSuffix)
	name = strings.TrimSpace(name)
	return name, ok && name != ""
}

// ParseLeft extracts the nickname from a leave notice.
func ParseLeft(text string) (string, bool) {
	name, ok := strings.CutSuffix(text, leftSuffix)
	name = strings.TrimSpace(name)
	return name, ok && name != ""
}

// IsFirstUser reports whether text is the first-user welcome.
func IsFirstUser(text string) bool {
	return strings.Contains(text, firstUserMarker)
}
