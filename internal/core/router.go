package core

import (
	"errors"
	"sync"

	"github.com/vovakirdan/wirechat-relay/internal/proto"
	"github.com/vovakirdan/wirechat-relay/internal/store"
)

// dispatch runs on the sender's reader goroutine.
func (r *Relay) dispatch(s *Session, env proto.Envelope) {
	switch s.State() {
	case StateHandshaking:
		if env.Type != proto.TypeJoin {
			s.log.Debug().Str("type", string(env.Type)).Msg("ignoring message before join")
			return
		}
		r.join(s, env.From)
		return
	case StateActive:
	default:
		return
	}

	nickname := s.Nickname()
	switch env.Type {
	case proto.TypeJoin:
		s.log.Debug().Msg("ignoring repeated join")
	case proto.TypeMsg:
		r.broadcast(s, proto.Envelope{Type: proto.TypeMsg, From: nickname, Text: env.Text, TS: r.timestamp()})
	case proto.TypePM:
		r.deliver(s, env.To, proto.Envelope{Type: proto.TypePM, From: nickname, Text: env.Text, TS: r.timestamp()})
	case proto.TypeTyping, proto.TypeStopTyping:
		out := proto.Envelope{Type: env.Type, From: nickname, TS: r.timestamp()}
		if env.Targeted() {
			r.deliver(s, env.To, out)
		} else {
			r.broadcast(s, out)
		}
	case proto.TypeSys, proto.TypeUsernameConfirmed:
		s.log.Warn().Str("type", string(env.Type)).Msg("client sent a server-only message type")
	default:
		s.log.Warn().Str("type", string(env.Type)).Msg("unknown message type")
	}
}

// join claims a nickname and greets the new session. The session's write lock
// is held from the claim until the greeting is written, so routed traffic
// cannot reach the client before its username_confirmed.
func (r *Relay) join(s *Session, requested string) {
	s.writeMu.Lock()
	nickname := r.registry.Claim(s, requested)
	s.nickname.Store(nickname)
	if !s.transition(StateHandshaking, StateActive) {
		s.writeMu.Unlock()
		return
	}

	others := r.registry.SnapshotOthers(s)
	greeting := proto.FirstUserText(nickname)
	if len(others) > 0 {
		greeting = proto.UsersOnlineText(others)
	}
	ts := r.timestamp()
	confirmation := proto.ConfirmationText(NormalizeNickname(requested), nickname)
	err := s.writeEnvelopeLocked(proto.Confirmed(nickname, confirmation, ts))
	if err == nil {
		err = s.writeEnvelopeLocked(proto.System(greeting, ts))
	}
	s.writeMu.Unlock()

	s.log = s.log.With().Str("nickname", nickname).Logger()
	if err != nil {
		s.Close(&DeliveryError{SessionID: s.ID, Nickname: nickname, Err: err})
		return
	}
	s.log.Info().Str("requested", requested).Int("online", len(others)+1).Msg("nickname claimed")

	s.announced = true
	r.broadcastText(s, proto.JoinedText(nickname))
	r.broadcastPresence(s)
	r.record(s, nickname, store.PresenceJoin)
}

// announceLeave finishes the leave notice on every recipient before the
// presence refresh starts; clients rebuild presence from the notice text.
func (r *Relay) announceLeave(nickname string) {
	r.broadcastText(nil, proto.LeftText(nickname))
	r.broadcastPresence(nil)
}

func (r *Relay) broadcastText(exclude *Session, text string) {
	r.broadcast(exclude, proto.System(text, r.timestamp()))
}

// broadcastPresence sends the full nickname list to everyone except exclude.
// Refreshes are serialized so the last list a peer receives is the newest one.
func (r *Relay) broadcastPresence(exclude *Session) {
	r.presenceMu.Lock()
	defer r.presenceMu.Unlock()
	r.broadcastText(exclude, proto.UsersOnlineText(r.registry.Nicknames()))
}

// broadcast writes env to every active session except sender. It returns once
// every write has finished or failed.
func (r *Relay) broadcast(sender *Session, env proto.Envelope) {
	payload, err := proto.Encode(env)
	if err != nil {
		r.log.Error().Err(err).Str("type", string(env.Type)).Msg("failed to encode broadcast")
		return
	}
	r.fanOut(r.registry.Recipients(sender), payload)
}

func (r *Relay) fanOut(recipients []*Session, payload []byte) {
	if len(recipients) == 1 {
		r.write(recipients[0], payload)
		return
	}
	var wg sync.WaitGroup
	for _, target := range recipients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.write(target, payload)
		}()
	}
	wg.Wait()
}

// deliver sends env to the session holding nickname to. Unknown recipients
// are dropped without telling the sender.
func (r *Relay) deliver(sender *Session, to string, env proto.Envelope) {
	target, ok := r.registry.Lookup(to)
	if !ok {
		sender.log.Debug().Str("to", to).Str("type", string(env.Type)).Msg("recipient not online, dropping")
		return
	}
	env.To = target.Nickname()
	payload, err := proto.Encode(env)
	if err != nil {
		sender.log.Error().Err(err).Msg("failed to encode private message")
		return
	}
	r.write(target, payload)
}

// write delivers one frame. A failure closes the recipient only.
func (r *Relay) write(target *Session, payload []byte) bool {
	err := target.sendPayload(payload)
	if err == nil {
		return true
	}
	if errors.Is(err, ErrSessionClosed) {
		return false
	}
	derr := &DeliveryError{SessionID: target.ID, Nickname: target.Nickname(), Err: err}
	r.log.Warn().Err(derr).Msg("delivery failed, closing recipient")
	target.Close(derr)
	return false
}

func (r *Relay) timestamp() int64 {
	return r.now().Unix()
}
