package server

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/openlore/chatserver/pkg/protocol"
	"github.com/openlore/chatserver/pkg/transport"
)

// SessionManager owns every session and drives all state mutation
// from its periodic tick. Sessions are kept in insertion order.
type SessionManager struct {
	sessions []*Session
	registry *ChannelRegistry
	store    Storage
	metrics  *Metrics
	log      zerolog.Logger
	config   TOMLConfig

	startTime    time.Time
	messagesSent uint64
}

func NewSessionManager(config TOMLConfig, store Storage, registry *ChannelRegistry, metrics *Metrics, log zerolog.Logger) *SessionManager {
	return &SessionManager{
		registry:  registry,
		store:     store,
		metrics:   metrics,
		log:       log,
		config:    config,
		startTime: time.Now(),
	}
}

// OnNewConnection registers a session for a fresh transport
// connection. The session starts unauthenticated.
func (m *SessionManager) OnNewConnection(conn transport.PacketConn) {
	s := newSession(conn, m.log,
		time.Duration(m.config.Limits.IntervalSeconds)*time.Second,
		time.Duration(m.config.Chat.AccountRefreshSeconds)*time.Second)

	m.sessions = append(m.sessions, s)
	m.metrics.RecordSessionCreated()

	s.log.Info().Msg("new client connection")
}

// SessionCount returns the number of live sessions.
func (m *SessionManager) SessionCount() int {
	return len(m.sessions)
}

// Tick processes every session once: account refresh, closed-link
// teardown, inbound packet drain, forced teardown. Sessions removed
// mid-scan must not desynchronize the in-order walk.
func (m *SessionManager) Tick() {
	for i := 0; i < len(m.sessions); {
		s := m.sessions[i]

		if s.Authenticated() && s.accountRefresh.Check() {
			m.refreshAccountStatus(s)
		}

		if s.invalid || s.conn.IsClosed() || s.conn.IsStale() {
			m.teardown(s)
			m.sessions = append(m.sessions[:i], m.sessions[i+1:]...)
			continue
		}

		for !s.invalid && !s.forceDisconnect {
			pkt := s.conn.PopPacket()
			if pkt == nil {
				break
			}
			m.handlePacket(s, pkt)
		}

		if s.invalid || s.forceDisconnect {
			m.teardown(s)
			m.sessions = append(m.sessions[:i], m.sessions[i+1:]...)
			continue
		}

		i++
	}
}

func (m *SessionManager) refreshAccountStatus(s *Session) {
	st, err := m.store.FetchAccountStatus(s.accountID)
	if err != nil {
		s.log.Error().Err(err).Msg("account status refresh failed")
		return
	}
	s.karma = st.Karma
	s.revoked = st.Revoked
	s.status = st.Status
}

func (m *SessionManager) teardown(s *Session) {
	reason := s.evictReason
	if reason == "" {
		switch {
		case s.forceDisconnect:
			reason = "forced"
		case s.invalid:
			reason = "auth"
		default:
			reason = "closed"
		}
	}

	s.log.Info().Str("reason", reason).Msg("session closed")

	m.LeaveAllChannels(s, false)
	s.conn.Close()
	m.metrics.RecordSessionEvicted(reason)
}

func (m *SessionManager) handlePacket(s *Session, pkt *protocol.Packet) {
	m.metrics.RecordPacketReceived(fmt.Sprintf("0x%02x", byte(pkt.Op)))

	switch pkt.Op {
	case protocol.OpChatLogin:
		m.handleLogin(s, pkt.Payload)

	case protocol.OpChat:
		var cmd protocol.ChatCommand
		if err := cmd.Decode(pkt.Payload); err != nil {
			s.log.Debug().Err(err).Msg("empty chat command")
			return
		}
		m.DispatchCommand(s, cmd.Text)

	case protocol.OpSessionReady:
		// keepalive ack, nothing to do

	default:
		s.log.Info().Uint8("opcode", uint8(pkt.Op)).Msg("unhandled chat opcode")
	}
}

func (m *SessionManager) handleLogin(s *Session, payload []byte) {
	var req protocol.LoginRequest
	if err := req.Decode(payload); err != nil {
		if errors.Is(err, protocol.ErrBadKeyLength) {
			s.log.Info().Msg("session key is the wrong size, closing connection")
		} else {
			s.log.Info().Err(err).Msg("malformed login payload")
		}
		s.invalid = true
		return
	}

	switch req.Kind {
	case protocol.KindCombined:
		s.kind = KindCombined
	case protocol.KindChat:
		s.kind = KindChat
	default:
		s.kind = KindUnknown
	}

	name := CapitaliseName(req.CharacterName())

	s.log.Info().Str("character", name).Str("kind", s.kind.String()).Msg("received login")

	if !m.store.VerifyKey(name, s.conn.RemoteAddr(), req.Key) {
		s.log.Info().Str("character", name).Msg("session key does not match, closing connection")
		s.invalid = true
		return
	}

	accountID, characters, err := m.store.ResolveAccount(name)
	if err != nil {
		s.log.Info().Err(err).Str("character", name).Msg("account lookup failed, closing connection")
		s.invalid = true
		return
	}

	s.accountID = accountID
	s.name = name
	s.characters = characters
	s.log = s.log.With().Str("character", name).Logger()

	for _, c := range characters {
		if c.Name == name {
			s.charID = c.ID
			break
		}
	}

	m.refreshAccountStatus(s)

	if s.kind == KindCombined {
		m.SendFriends(s)
	}

	m.sendLoginReply(s)

	m.CheckForStaleDuplicates(s)
}

func (m *SessionManager) sendLoginReply(s *Session) {
	names := make([]string, len(s.characters))
	for i, c := range s.characters {
		names[i] = c.Name
	}

	reply := protocol.LoginReply{CharacterNames: names}
	s.conn.Send(protocol.OpChatLogin, encodePayload(&reply))
}

// SendFriends pushes the friend and ignore lists to a combined-kind
// session. Ignore entries go out realm qualified.
func (m *SessionManager) SendFriends(s *Session) {
	friends, ignored, err := m.store.FriendsAndIgnored(s.charID)
	if err != nil {
		s.log.Error().Err(err).Msg("friend list lookup failed")
		return
	}

	for _, name := range friends {
		entry := protocol.ListUpdate{Action: protocol.ListActionAdd, Name: name}
		s.conn.Send(protocol.OpBuddy, encodePayload(&entry))
	}

	for _, name := range ignored {
		entry := protocol.ListUpdate{
			Action: protocol.ListActionRemove,
			Name:   m.config.Chat.Realm + "." + name,
		}
		s.conn.Send(protocol.OpIgnore, encodePayload(&entry))
	}
}

// CheckForStaleDuplicates closes any other session logged in with the
// same character name and connection kind. A reconnect supersedes the
// older login.
func (m *SessionManager) CheckForStaleDuplicates(s *Session) {
	for _, other := range m.sessions {
		if other == s || other.name != s.name || other.kind != s.kind {
			continue
		}

		other.log.Info().Msg("removing old connection")
		other.invalid = true
		other.evictReason = "duplicate"
		other.conn.Close()
	}
}

// FindByCharacterName returns the session for an online character,
// nil if not connected. A superseded duplicate awaiting sweep is not
// a match.
func (m *SessionManager) FindByCharacterName(name string) *Session {
	for _, s := range m.sessions {
		if s.name == name && !s.invalid {
			return s
		}
	}
	return nil
}

// BroadcastKeepalive sends a keepalive packet to every session. Run
// on a slower cadence than the tick.
func (m *SessionManager) BroadcastKeepalive() {
	for _, s := range m.sessions {
		s.SendKeepalive()
	}
}

// CloseAll closes every session's transport, used at shutdown.
func (m *SessionManager) CloseAll() {
	for _, s := range m.sessions {
		s.log.Info().Msg("closing client connection")
		s.conn.Close()
	}
}

// JoinChannels joins a session to a comma or space separated list of
// channels, up to the slot cap. The client sends '%' where it means
// '/'. After the batch the session receives both the compact slot
// list and a readable summary.
func (m *SessionManager) JoinChannels(s *Session, list string) {
	list = strings.ReplaceAll(list, "%", "/")

	s.log.Info().Str("channels", list).Msg("joining channels")

	joinLFG := false
	count := s.channelCount()

	for _, request := range splitNameList(list) {
		if count == MaxJoinedChannels {
			s.Notice("You have joined the maximum number of channels. /leave one before trying to join another.")
			break
		}

		channel, lfg := m.registry.AddClientToChannel(request, s)
		if lfg {
			joinLFG = true
			continue
		}
		if channel != nil && !contains(s.channels[:], channel.Name()) {
			s.addChannel(channel.Name())
			count++
		}
	}

	if joinLFG && count < MaxJoinedChannels {
		channel := m.registry.joinChannel("Lfg", "", s)
		if channel != nil && !contains(s.channels[:], channel.Name()) {
			s.addChannel(channel.Name())
		}
	}

	m.sendChannelMemberships(s)
}

// LeaveChannels removes a session from a comma or space separated
// list of channels, then sends the updated memberships.
func (m *SessionManager) LeaveChannels(s *Session, list string) {
	s.log.Info().Str("channels", list).Msg("leaving channels")

	for _, request := range splitNameList(list) {
		name := s.resolveChannelName(request)
		if name == "" {
			continue
		}
		if channel := m.registry.RemoveClientFromChannel(name, s); channel != nil {
			s.removeChannel(channel.Name())
		}
	}

	m.sendChannelMemberships(s)
}

// LeaveAllChannels removes the session from every joined channel.
func (m *SessionManager) LeaveAllChannels(s *Session, sendUpdatedList bool) {
	for i := range s.channels {
		if s.channels[i] != "" {
			m.registry.RemoveClientFromChannel(s.channels[i], s)
			s.channels[i] = ""
		}
	}

	if sendUpdatedList {
		m.SendChannelList(s)
	}
}

// sendChannelMemberships sends the compact slot list and the readable
// membership summary after a join or leave batch.
func (m *SessionManager) sendChannelMemberships(s *Session) {
	var names []string
	for _, name := range s.channels {
		if name != "" {
			names = append(names, name)
		}
	}

	slots := protocol.SlotList{Channels: names}
	s.conn.Send(protocol.OpChat, encodePayload(&slots))

	m.SendChannelList(s)
}

// SendChannelList sends the readable slot summary, "1=Name(count)"
// per occupied slot.
func (m *SessionManager) SendChannelList(s *Session) {
	var b strings.Builder
	b.WriteString("Channels: ")

	count := 0
	for i, name := range s.channels {
		if name == "" {
			continue
		}
		if count > 0 {
			b.WriteString(",")
		}
		members := 0
		if channel := m.registry.FindChannel(name); channel != nil {
			members = channel.MemberCount()
		}
		fmt.Fprintf(&b, "%d=%s(%d)", i+1, name, members)
		count++
	}

	if count == 0 {
		s.Notice("You are not on any channels.")
		return
	}

	s.Notice(b.String())
}

// SendUptime reports process uptime and the messages-sent counter.
func (m *SessionManager) SendUptime(s *Session) {
	up := time.Since(m.startTime)

	d := int(up.Hours()) / 24
	h := int(up.Hours()) % 24
	mi := int(up.Minutes()) % 60
	sec := int(up.Seconds()) % 60

	s.Notice(fmt.Sprintf("Chat server has been up for %02dd %02dh %02dm %02ds", d, h, mi, sec))
	s.Notice(fmt.Sprintf("Chat Messages Sent: %d", m.messagesSent))
}

// splitNameList splits a comma or space separated list of names.
func splitNameList(list string) []string {
	return strings.FieldsFunc(list, func(r rune) bool {
		return r == ',' || r == ' '
	})
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
