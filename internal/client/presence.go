package client

import (
	"slices"
	"sync"
	"time"

	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

// DefaultTypingTimeout is how long a typing signal stays visible without a refresh.
const DefaultTypingTimeout = 5 * time.Second

// Presence tracks who is online from the server's sys notices.
// The local user is always listed first.
type Presence struct {
	mu    sync.Mutex
	self  string
	users []string
}

// NewPresence starts a tracker for the local nickname.
func NewPresence(self string) *Presence {
	return &Presence{self: self}
}

// Apply updates the list from one envelope and reports whether it changed.
func (p *Presence) Apply(env proto.Envelope) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch env.Type {
	case proto.TypeUsernameConfirmed:
		if env.From == "" || env.From == p.self {
			return false
		}
		p.users = slices.DeleteFunc(p.users, func(u string) bool { return u == env.From })
		p.self = env.From
		return true
	case proto.TypeMsg, proto.TypePM:
		return p.addLocked(env.From)
	case proto.TypeSys:
	default:
		return false
	}

	if names, ok := proto.ParseUsersOnline(env.Text); ok {
		next := make([]string, 0, len(names))
		for _, n := range names {
			if n != p.self && !slices.Contains(next, n) {
				next = append(next, n)
			}
		}
		changed := !slices.Equal(next, p.users)
		p.users = next
		return changed
	}
	if name, ok := proto.ParseJoined(env.Text); ok {
		return p.addLocked(name)
	}
	if name, ok := proto.ParseLeft(env.Text); ok {
		before := len(p.users)
		p.users = slices.DeleteFunc(p.users, func(u string) bool { return u == name })
		return len(p.users) != before
	}
	if proto.IsFirstUser(env.Text) {
		changed := len(p.users) > 0
		p.users = nil
		return changed
	}
	return false
}

// Users returns the local user followed by everyone else in arrival order.
func (p *Presence) Users() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.users)+1)
	if p.self != "" {
		out = append(out, p.self)
	}
	return append(out, p.users...)
}

func (p *Presence) addLocked(name string) bool {
	if name == "" || name == p.self || slices.Contains(p.users, name) {
		return false
	}
	p.users = append(p.users, name)
	return true
}

// TypingSet remembers who is typing and expires stale signals.
type TypingSet struct {
	mu      sync.Mutex
	timeout time.Duration
	seen    map[string]time.Time
}

// NewTypingSet builds a set. A non-positive timeout uses DefaultTypingTimeout.
func NewTypingSet(timeout time.Duration) *TypingSet {
	if timeout <= 0 {
		timeout = DefaultTypingTimeout
	}
	return &TypingSet{timeout: timeout, seen: make(map[string]time.Time)}
}

// Mark records a typing signal from nickname.
func (t *TypingSet) Mark(nickname string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen[nickname] = at
}

// Clear removes nickname after a stop_typing signal or a message from them.
func (t *TypingSet) Clear(nickname string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.seen, nickname)
}

// Prune drops signals older than the timeout and returns the expired nicknames sorted.
func (t *TypingSet) Prune(now time.Time) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var expired []string
	for nick, at := range t.seen {
		if now.Sub(at) >= t.timeout {
			delete(t.seen, nick)
			expired = append(expired, nick)
		}
	}
	slices.Sort(expired)
	return expired
}

// Active returns the nicknames currently typing, sorted.
func (t *TypingSet) Active() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.seen))
	for nick := range t.seen {
		out = append(out, nick)
	}
	slices.Sort(out)
	return out
}
