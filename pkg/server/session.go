package server

import (
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/openlore/chatserver/pkg/protocol"
	"github.com/openlore/chatserver/pkg/storage"
	"github.com/openlore/chatserver/pkg/transport"
)

// MaxJoinedChannels is the per-session channel slot cap. The client
// displays slots 1 through 10.
const MaxJoinedChannels = 10

// ConnectionKind distinguishes chat-only links from combined
// chat-and-mail links, which additionally receive friend and ignore
// list pushes at login.
type ConnectionKind int

const (
	KindUnknown ConnectionKind = iota
	KindChat
	KindCombined
)

func (k ConnectionKind) String() string {
	switch k {
	case KindChat:
		return "chat"
	case KindCombined:
		return "combined"
	default:
		return "unknown"
	}
}

// Session is one client connection, authenticated or not. All fields
// are mutated only from the manager's tick loop.
type Session struct {
	conn transport.PacketConn
	log  zerolog.Logger

	accountID  int64
	charID     int64
	name       string
	characters []storage.Character
	kind       ConnectionKind

	// Channel slots. Occupied slots are contiguous from 0; slots
	// compact downward on leave.
	channels [MaxJoinedChannels]string

	karma   int
	revoked bool
	status  int

	attemptedMessages int
	limiter           *pollTimer
	accountRefresh    *pollTimer

	forceDisconnect bool
	invalid         bool
	evictReason     string

	announce     bool
	allowInvites bool
}

func newSession(conn transport.PacketConn, log zerolog.Logger, limiterInterval, refreshInterval time.Duration) *Session {
	return &Session{
		conn:           conn,
		log:            log.With().Str("remote", conn.RemoteAddr()).Logger(),
		limiter:        newPollTimer(limiterInterval),
		accountRefresh: newPollTimer(refreshInterval),
		allowInvites:   true,
	}
}

// Name returns the authenticated character name, empty before login.
func (s *Session) Name() string {
	return s.name
}

// Authenticated reports whether login completed.
func (s *Session) Authenticated() bool {
	return s.accountID != 0
}

// Notice sends a general chat notice to this session.
func (s *Session) Notice(text string) {
	msg := protocol.Notice{Text: text}
	s.conn.Send(protocol.OpChannelMessage, encodePayload(&msg))
}

// encodePayload encodes an outbound message. Encoding writes to an
// in-memory buffer and cannot fail for the message types we build.
func encodePayload(m interface{ Encode() ([]byte, error) }) []byte {
	payload, err := m.Encode()
	if err != nil {
		return nil
	}
	return payload
}

// SendKeepalive sends an empty keepalive control packet.
func (s *Session) SendKeepalive() {
	s.conn.Send(protocol.OpSessionReady, nil)
}

// characterLevel returns the level of this session's own character
// from the login summaries, 0 if unknown.
func (s *Session) characterLevel() int {
	for _, c := range s.characters {
		if c.Name == s.name {
			return c.Level
		}
	}
	return 0
}

// channelCount returns the number of occupied slots.
func (s *Session) channelCount() int {
	n := 0
	for _, name := range s.channels {
		if name != "" {
			n++
		}
	}
	return n
}

// addChannel records a joined channel in the first free slot.
func (s *Session) addChannel(name string) bool {
	for i := range s.channels {
		if s.channels[i] == "" {
			s.channels[i] = name
			s.log.Debug().Str("channel", name).Int("slot", i+1).Msg("joined channel")
			return true
		}
	}
	return false
}

// removeChannel drops a channel from the slot table, shuffling later
// slots down so occupied slots stay contiguous.
func (s *Session) removeChannel(name string) {
	for i := range s.channels {
		if s.channels[i] == name {
			copy(s.channels[i:], s.channels[i+1:])
			s.channels[MaxJoinedChannels-1] = ""
			return
		}
	}
}

// slotName resolves a 1-based slot number to a channel name, empty if
// out of range or unoccupied.
func (s *Session) slotName(slot int) string {
	if slot < 1 || slot > MaxJoinedChannels {
		return ""
	}
	return s.channels[slot-1]
}

// resolveChannelName turns a channel reference into a channel name. A
// reference with a leading digit is a slot number; anything else is a
// name, normalized.
func (s *Session) resolveChannelName(ref string) string {
	name := CapitaliseName(ref)
	if len(name) > 0 && name[0] >= '0' && name[0] <= '9' {
		slot := 0
		for _, r := range name {
			if !unicode.IsDigit(r) {
				break
			}
			slot = slot*10 + int(r-'0')
		}
		return s.slotName(slot)
	}
	return name
}

// CapitaliseName normalizes a player or channel name: first letter
// upper case, rest lower.
func CapitaliseName(name string) string {
	if name == "" {
		return ""
	}
	return strings.ToUpper(name[:1]) + strings.ToLower(name[1:])
}
