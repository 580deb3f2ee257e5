package core

import (
	"cmp"
	"slices"
	"sync"

	"golang.org/x/text/cases"
)

type claim struct {
	nickname string
	seq      uint64
}

// Registry is the authoritative store of live sessions and claimed nicknames.
// All three collections change together under mu, and no I/O happens while
// mu is held.
type Registry struct {
	mu        sync.Mutex
	fold      cases.Caser // stateful, only used under mu
	seq       uint64
	sessions  map[*Session]struct{}
	nicknames map[*Session]claim
	taken     map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		fold:      cases.Fold(),
		sessions:  make(map[*Session]struct{}),
		nicknames: make(map[*Session]claim),
		taken:     make(map[string]*Session),
	}
}

// Add records a newly accepted session. Returns false if it is already present.
func (r *Registry) Add(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[s]; exists {
		return false
	}
	r.sessions[s] = struct{}{}
	return true
}

// Claim assigns a nickname to s. Invalid requests fall back to FallbackNickname;
// taken names get the smallest free numeric suffix. The search and the
// reservation happen in one critical section, so concurrent claimants never
// receive the same name. A session that already holds a nickname keeps it.
func (r *Registry) Claim(s *Session, requested string) string {
	base := nicknameBase(requested)

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.nicknames[s]; ok {
		return c.nickname
	}
	r.sessions[s] = struct{}{}

	for n := 0; ; n++ {
		candidate := nicknameCandidate(base, n)
		key := r.fold.String(candidate)
		if _, inUse := r.taken[key]; inUse {
			continue
		}
		r.seq++
		r.taken[key] = s
		r.nicknames[s] = claim{nickname: candidate, seq: r.seq}
		return candidate
	}
}

// Release removes s and frees its nickname. ok is false if s never claimed one.
func (r *Registry) Release(s *Session) (nickname string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, s)
	c, ok := r.nicknames[s]
	if !ok {
		return "", false
	}
	delete(r.nicknames, s)
	delete(r.taken, r.fold.String(c.nickname))
	return c.nickname, true
}

// Lookup finds the session holding nickname, ignoring case.
func (r *Registry) Lookup(nickname string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.taken[r.fold.String(NormalizeNickname(nickname))]
	return s, ok
}

// SnapshotOthers returns every claimed nickname except the one held by s, in join order.
func (r *Registry) SnapshotOthers(s *Session) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	claims := r.claimsLocked(s)
	names := make([]string, len(claims))
	for i, c := range claims {
		names[i] = c.nickname
	}
	return names
}

// Nicknames returns all claimed nicknames in join order.
func (r *Registry) Nicknames() []string {
	return r.SnapshotOthers(nil)
}

// Recipients returns a point-in-time copy of the sessions holding a nickname,
// except exclude, in join order.
func (r *Registry) Recipients(exclude *Session) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Session, 0, len(r.nicknames))
	for s := range r.nicknames {
		if s != exclude {
			out = append(out, s)
		}
	}
	slices.SortFunc(out, func(a, b *Session) int {
		return cmp.Compare(r.nicknames[a].seq, r.nicknames[b].seq)
	})
	return out
}

// All returns every live session, with or without a nickname.
func (r *Registry) All() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) claimsLocked(exclude *Session) []claim {
	claims := make([]claim, 0, len(r.nicknames))
	for s, c := range r.nicknames {
		if s != exclude {
			claims = append(claims, c)
		}
	}
	slices.SortFunc(claims, func(a, b claim) int {
		return cmp.Compare(a.seq, b.seq)
	})
	return claims
}
