package client

import (
	"fmt"
	"time"

	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

// Render formats an envelope as one terminal line. Typing signals and
// unknown types render as the empty string.
func Render(env proto.Envelope) string {
	stamp := time.Unix(env.TS, 0).Format("15:04")
	switch env.Type {
	case proto.TypeMsg:
		return fmt.Sprintf("[%s] %s: %s", stamp, env.From, env.Text)
	case proto.TypePM:
		return fmt.Sprintf("[%s] (private) %s: %s", stamp, env.From, env.Text)
	case proto.TypeSys, proto.TypeUsernameConfirmed:
		return fmt.Sprintf("[%s] * %s", stamp, env.Text)
	default:
		return ""
	}
}
