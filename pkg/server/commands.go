package server

import (
	"strconv"
	"strings"

	"github.com/openlore/chatserver/pkg/protocol"
	"github.com/openlore/chatserver/pkg/storage"
)

// commandTable maps a lower-cased keyword to its handler. Parameter
// strings are passed verbatim; each handler applies its own shape.
var commandTable = map[string]func(*SessionManager, *Session, string){
	"join":             (*SessionManager).cmdJoin,
	"leave":            (*SessionManager).cmdLeave,
	"leaveall":         (*SessionManager).cmdLeaveAll,
	"list":             (*SessionManager).cmdList,
	"listall":          (*SessionManager).cmdListAll,
	"set":              (*SessionManager).cmdSet,
	"announce":         (*SessionManager).cmdAnnounce,
	"setowner":         (*SessionManager).cmdSetOwner,
	"oplist":           (*SessionManager).cmdOPList,
	"invite":           (*SessionManager).cmdInvite,
	"grant":            (*SessionManager).cmdGrant,
	"moderate":         (*SessionManager).cmdModerate,
	"voice":            (*SessionManager).cmdVoice,
	"kick":             (*SessionManager).cmdKick,
	"password":         (*SessionManager).cmdPassword,
	"toggleinvites":    (*SessionManager).cmdToggleInvites,
	"afk":              (*SessionManager).cmdAFK,
	"uptime":           (*SessionManager).cmdUptime,
	"setmessagestatus": (*SessionManager).cmdSetMessageStatus,
	"buddy":            (*SessionManager).cmdBuddy,
	"ignoreplayer":     (*SessionManager).cmdIgnore,
}

// DispatchCommand routes one chat command line. A leading digit is a
// slot-addressed message, a leading '#' a name-addressed message,
// anything else a keyword command. Unknown keywords get the help
// listing.
func (m *SessionManager) DispatchCommand(s *Session, line string) {
	if line == "" {
		return
	}

	if line[0] >= '0' && line[0] <= '9' {
		m.sendMessageBySlot(s, line)
		return
	}

	if line[0] == '#' {
		m.sendMessageByName(s, line)
		return
	}

	keyword := line
	params := ""
	if space := strings.IndexByte(line, ' '); space >= 0 {
		keyword = line[:space]
		params = strings.TrimLeft(line[space:], " ")
	}

	handler, ok := commandTable[strings.ToLower(keyword)]
	if !ok {
		m.sendHelp(s)
		s.log.Info().Str("command", line).Msg("unhandled chat command")
		return
	}

	handler(m, s, params)
}

// sendMessageByName handles "#channel text".
func (m *SessionManager) sendMessageByName(s *Session, line string) {
	space := strings.IndexByte(line, ' ')
	if space < 0 {
		return
	}

	name := CapitaliseName(line[1:space])
	text := line[space+1:]

	s.log.Info().Str("channel", name).Msg("channel message")

	channel := m.registry.FindChannel(name)
	if channel == nil {
		return
	}

	m.deliverChannelMessage(s, channel, text)
}

// sendMessageBySlot handles "N text" where N is a 1-based slot.
func (m *SessionManager) sendMessageBySlot(s *Session, line string) {
	space := strings.IndexByte(line, ' ')
	if space < 0 {
		return
	}

	slot, err := strconv.Atoi(line[:space])
	if err != nil || slot < 1 || slot > MaxJoinedChannels {
		s.Notice("Invalid channel name/number specified.")
		return
	}

	name := s.slotName(slot)
	if name == "" {
		s.Notice("Invalid channel name/number specified.")
		return
	}

	channel := m.registry.FindChannel(name)
	if channel == nil {
		s.Notice("Invalid channel name/number specified.")
		return
	}

	m.deliverChannelMessage(s, channel, line[space+1:])
}

func (m *SessionManager) cmdJoin(s *Session, params string) {
	m.JoinChannels(s, params)
}

func (m *SessionManager) cmdLeave(s *Session, params string) {
	m.LeaveChannels(s, params)
}

func (m *SessionManager) cmdLeaveAll(s *Session, params string) {
	m.LeaveAllChannels(s, true)
}

func (m *SessionManager) cmdList(s *Session, params string) {
	params = strings.TrimSpace(params)
	if params == "" {
		m.SendChannelList(s)
		return
	}

	name := s.resolveChannelName(params)

	channel := m.registry.FindChannel(name)
	if channel == nil {
		s.Notice("Channel " + params + " not found.")
		return
	}

	channel.SendChannelMembers(s)
}

func (m *SessionManager) cmdListAll(s *Session, params string) {
	m.registry.SendAllChannels(s)
}

func (m *SessionManager) cmdSet(s *Session, params string) {
	m.LeaveAllChannels(s, false)
	m.JoinChannels(s, params)
}

func (m *SessionManager) cmdAnnounce(s *Session, params string) {
	switch strings.TrimSpace(params) {
	case "":
		s.announce = !s.announce
	case "on":
		s.announce = true
	default:
		s.announce = false
	}

	if s.announce {
		s.Notice("Announcing now on")
	} else {
		s.Notice("Announcing now off")
	}
}

func (m *SessionManager) cmdSetOwner(s *Session, params string) {
	player, channelRef, ok := splitPlayerChannel(params)
	if !ok {
		s.Notice("Incorrect syntax: /chat setowner <player> <channel>")
		return
	}

	newOwner := CapitaliseName(player)
	channelName := s.resolveChannelName(channelRef)

	s.log.Info().Str("channel", channelName).Str("owner", newOwner).Msg("set channel owner")

	channel := m.registry.FindChannel(channelName)
	if channel == nil {
		s.Notice("Channel " + channelName + " not found.")
		return
	}

	if !channel.IsOwner(s.name) && !m.isChannelAdmin(s) {
		s.Notice("You do not own channel " + channelName)
		return
	}

	if _, err := m.store.FindCharacter(newOwner); err != nil {
		s.Notice("Player " + newOwner + " does not exist.")
		return
	}

	channel.SetOwner(newOwner)

	if channel.IsModerator(newOwner) {
		channel.RemoveModerator(newOwner)
	}

	if err := m.store.SetChannelOwner(channel.Name(), newOwner); err != nil {
		s.log.Error().Err(err).Msg("failed to mirror channel owner")
	}

	s.Notice("Channel owner changed.")
}

func (m *SessionManager) cmdOPList(s *Session, params string) {
	params = strings.TrimSpace(params)
	if params == "" {
		s.Notice("Incorrect syntax: /chat oplist <channel>")
		return
	}

	channelName := s.resolveChannelName(params)

	channel := m.registry.FindChannel(channelName)
	if channel == nil {
		s.Notice("Channel " + channelName + " not found.")
		return
	}

	channel.SendOPList(s)
}

func (m *SessionManager) cmdInvite(s *Session, params string) {
	player, channelRef, ok := splitPlayerChannel(params)
	if !ok {
		s.Notice("Incorrect syntax: /chat invite <player> <channel>")
		return
	}

	invitee := CapitaliseName(player)
	channelName := s.resolveChannelName(channelRef)

	s.log.Info().Str("invitee", invitee).Str("channel", channelName).Msg("channel invite")

	target := m.FindByCharacterName(invitee)
	if target == nil {
		s.Notice(invitee + " is not online.")
		return
	}

	if target == s {
		s.Notice("You cannot invite yourself to a channel.")
		return
	}

	if !target.allowInvites {
		s.Notice("That player is not currently accepting channel invitations.")
		return
	}

	channel := m.registry.FindChannel(channelName)
	if channel == nil {
		s.Notice("Channel " + channelName + " not found.")
		return
	}

	if !channel.IsOwner(s.name) && !channel.IsModerator(s.name) {
		s.Notice("You do not own or have moderator rights to channel " + channelName)
		return
	}

	if channel.HasMember(target) {
		s.Notice(invitee + " is already in that channel")
		return
	}

	channel.AddInvitee(invitee)

	target.Notice(s.name + " has invited you to join channel " + channelName)
	s.Notice("Invitation sent to " + invitee + " to join channel " + channelName)
}

func (m *SessionManager) cmdGrant(s *Session, params string) {
	player, channelRef, ok := splitPlayerChannel(params)
	if !ok {
		s.Notice("Incorrect syntax: /chat grant <player> <channel>")
		return
	}

	moderator := CapitaliseName(player)
	channelName := s.resolveChannelName(channelRef)

	s.log.Info().Str("moderator", moderator).Str("channel", channelName).Msg("grant moderator")

	target := m.FindByCharacterName(moderator)

	if target == nil {
		if _, err := m.store.FindCharacter(moderator); err != nil {
			s.Notice("Player " + moderator + " does not exist.")
			return
		}
	}

	if target == s {
		s.Notice("You cannot grant yourself moderator rights to a channel.")
		return
	}

	channel := m.registry.FindChannel(channelName)
	if channel == nil {
		s.Notice("Channel " + channelName + " not found.")
		return
	}

	if !channel.IsOwner(s.name) && !m.isChannelAdmin(s) {
		s.Notice("You do not own channel " + channelName)
		return
	}

	if channel.IsModerator(moderator) {
		channel.RemoveModerator(moderator)

		if target != nil {
			target.Notice(s.name + " has removed your moderator rights to channel " + channelName)
		}
		s.Notice("Removing moderator rights from " + moderator + " to channel " + channelName)
	} else {
		channel.AddModerator(moderator)

		if target != nil {
			target.Notice(s.name + " has made you a moderator of channel " + channelName)
		}
		s.Notice(moderator + " is now a moderator on channel " + channelName)
	}
}

func (m *SessionManager) cmdModerate(s *Session, params string) {
	params = strings.TrimSpace(params)
	if params == "" {
		s.Notice("Incorrect syntax: /chat moderate <channel>")
		return
	}

	channelName := s.resolveChannelName(params)

	channel := m.registry.FindChannel(channelName)
	if channel == nil {
		s.Notice("Channel " + channelName + " not found.")
		return
	}

	if !channel.IsOwner(s.name) && !channel.IsModerator(s.name) && !m.isChannelAdmin(s) {
		s.Notice("You do not own or have moderator rights to channel " + channelName)
		return
	}

	channel.SetModerated(!channel.IsModerated())

	if !channel.HasMember(s) {
		if channel.IsModerated() {
			s.Notice("Channel " + channelName + " is now moderated.")
		} else {
			s.Notice("Channel " + channelName + " is no longer moderated.")
		}
	}
}

func (m *SessionManager) cmdVoice(s *Session, params string) {
	player, channelRef, ok := splitPlayerChannel(params)
	if !ok {
		s.Notice("Incorrect syntax: /chat voice <player> <channel>")
		return
	}

	voicee := CapitaliseName(player)
	channelName := s.resolveChannelName(channelRef)

	s.log.Info().Str("voicee", voicee).Str("channel", channelName).Msg("grant voice")

	target := m.FindByCharacterName(voicee)

	if target == nil {
		if _, err := m.store.FindCharacter(voicee); err != nil {
			s.Notice("Player " + voicee + " does not exist.")
			return
		}
	}

	if target == s {
		s.Notice("You cannot grant yourself voice to a channel.")
		return
	}

	channel := m.registry.FindChannel(channelName)
	if channel == nil {
		s.Notice("Channel " + channelName + " not found.")
		return
	}

	if !channel.IsOwner(s.name) && !channel.IsModerator(s.name) && !m.isChannelAdmin(s) {
		s.Notice("You do not own or have moderator rights to channel " + channelName)
		return
	}

	if channel.IsOwner(voicee) || channel.IsModerator(voicee) {
		s.Notice("The channel owner and moderators automatically have voice.")
		return
	}

	if channel.HasVoice(voicee) {
		channel.RemoveVoice(voicee)

		if target != nil {
			target.Notice(s.name + " has removed your voice rights to channel " + channelName)
		}
		s.Notice("Removing voice from " + voicee + " in channel " + channelName)
	} else {
		channel.AddVoice(voicee)

		if target != nil {
			target.Notice(s.name + " has given you voice in channel " + channelName)
		}
		s.Notice(voicee + " now has voice in channel " + channelName)
	}
}

func (m *SessionManager) cmdKick(s *Session, params string) {
	player, channelRef, ok := splitPlayerChannel(params)
	if !ok {
		s.Notice("Incorrect syntax: /chat kick <player> <channel>")
		return
	}

	kickee := CapitaliseName(player)
	channelName := s.resolveChannelName(channelRef)

	s.log.Info().Str("kickee", kickee).Str("channel", channelName).Msg("channel kick")

	target := m.FindByCharacterName(kickee)
	if target == nil {
		s.Notice("Player " + kickee + " is not online.")
		return
	}

	if target == s {
		s.Notice("You cannot kick yourself out of a channel.")
		return
	}

	channel := m.registry.FindChannel(channelName)
	if channel == nil {
		s.Notice("Channel " + channelName + " not found.")
		return
	}

	if !channel.IsOwner(s.name) && !channel.IsModerator(s.name) && !m.isChannelAdmin(s) {
		s.Notice("You do not own or have moderator rights to channel " + channelName)
		return
	}

	if channel.IsOwner(kickee) {
		s.Notice("You cannot kick the owner out of the channel.")
		return
	}

	if channel.IsModerator(kickee) && !channel.IsOwner(s.name) {
		s.Notice("Only the channel owner can kick a moderator out of the channel.")
		return
	}

	if channel.IsModerator(kickee) {
		channel.RemoveModerator(kickee)

		target.Notice(s.name + " has removed your moderator rights to channel " + channelName)
		s.Notice("Removing moderator rights from " + kickee + " to channel " + channelName)
	}

	target.Notice(s.name + " has kicked you from channel " + channelName)
	s.Notice("Kicked " + kickee + " from channel " + channelName)

	m.LeaveChannels(target, channelName)
}

func (m *SessionManager) cmdPassword(s *Session, params string) {
	password, channelRef, ok := splitPlayerChannel(params)
	if !ok {
		s.Notice("Incorrect syntax: /chat password <new password> <channel name>")
		return
	}

	channelName := s.resolveChannelName(channelRef)

	var notice string
	if strings.EqualFold(password, "remove") {
		password = ""
		notice = "Password REMOVED on channel " + channelName
	} else {
		notice = "Password change on channel " + channelName
	}

	s.log.Info().Str("channel", channelName).Msg("set channel password")

	channel := m.registry.FindChannel(channelName)
	if channel == nil {
		s.Notice("Channel not found.")
		return
	}

	if !channel.IsOwner(s.name) && !channel.IsModerator(s.name) && !m.isChannelAdmin(s) {
		s.Notice("You do not own or have moderator rights on channel " + channelName)
		return
	}

	channel.SetPassword(password)

	if err := m.store.SetChannelPassword(channel.Name(), password); err != nil {
		s.log.Error().Err(err).Msg("failed to mirror channel password")
	}

	s.Notice(notice)
}

func (m *SessionManager) cmdToggleInvites(s *Session, params string) {
	s.allowInvites = !s.allowInvites

	if s.allowInvites {
		s.Notice("You will now receive channel invitations.")
	} else {
		s.Notice("You will no longer receive channel invitations.")
	}
}

func (m *SessionManager) cmdAFK(s *Session, params string) {
	// accepted for client compatibility, nothing to do server-side
}

func (m *SessionManager) cmdUptime(s *Session, params string) {
	m.SendUptime(s)
}

// cmdSetMessageStatus marks stored mail messages read, trashed or
// deleted: a leading R means read, T trash, anything else delete,
// followed by message numbers.
func (m *SessionManager) cmdSetMessageStatus(s *Session, params string) {
	if params == "" {
		return
	}

	status := storage.MessageStatusDeleted
	switch params[0] {
	case 'R':
		status = storage.MessageStatusRead
	case 'T':
		status = storage.MessageStatusTrash
	}

	for _, field := range strings.Fields(params) {
		start := strings.IndexAny(field, "123456789")
		if start < 0 {
			continue
		}

		end := start
		for end < len(field) && field[end] >= '0' && field[end] <= '9' {
			end++
		}

		id, err := strconv.ParseInt(field[start:end], 10, 64)
		if err != nil {
			continue
		}

		if err := m.store.SetMessageStatus(id, status); err != nil {
			s.log.Error().Err(err).Int64("message", id).Msg("failed to set message status")
		}
	}
}

// cmdBuddy adds a name to the friend list, or removes one when the
// name carries a leading '-'. The change is echoed back as a buddy
// packet.
func (m *SessionManager) cmdBuddy(s *Session, params string) {
	buddy := strings.ReplaceAll(params, "'", "")
	if buddy == "" {
		return
	}

	s.Notice("Buddy list modified")

	if strings.HasPrefix(buddy, "-") {
		buddy = buddy[1:]
		if err := m.store.RemoveFriendOrIgnore(s.charID, storage.ListKindFriend, buddy); err != nil {
			s.log.Error().Err(err).Msg("failed to remove friend")
		}

		entry := protocol.ListUpdate{Action: protocol.ListActionRemove, Name: buddy}
		s.conn.Send(protocol.OpBuddy, encodePayload(&entry))
		return
	}

	if err := m.store.AddFriendOrIgnore(s.charID, storage.ListKindFriend, buddy); err != nil {
		s.log.Error().Err(err).Msg("failed to add friend")
	}

	entry := protocol.ListUpdate{Action: protocol.ListActionAdd, Name: buddy}
	s.conn.Send(protocol.OpBuddy, encodePayload(&entry))
}

// cmdIgnore maintains the ignore list. Additions go out realm
// qualified; removals arrive realm qualified and are stripped back to
// the bare character name for storage.
func (m *SessionManager) cmdIgnore(s *Session, params string) {
	ignoree := strings.ReplaceAll(params, "'", "")
	if ignoree == "" {
		return
	}

	s.Notice("Ignore list modified")

	if strings.HasPrefix(ignoree, "-") {
		ignoree = ignoree[1:]

		name := ignoree
		if dot := strings.LastIndexByte(ignoree, '.'); dot >= 0 {
			name = ignoree[dot+1:]
		}

		if err := m.store.RemoveFriendOrIgnore(s.charID, storage.ListKindIgnore, name); err != nil {
			s.log.Error().Err(err).Msg("failed to remove ignore")
		}

		entry := protocol.ListUpdate{Action: protocol.ListActionAdd, Name: ignoree}
		s.conn.Send(protocol.OpIgnore, encodePayload(&entry))
		return
	}

	if err := m.store.AddFriendOrIgnore(s.charID, storage.ListKindIgnore, ignoree); err != nil {
		s.log.Error().Err(err).Msg("failed to add ignore")
	}

	entry := protocol.ListUpdate{
		Action: protocol.ListActionRemove,
		Name:   m.config.Chat.Realm + "." + ignoree,
	}
	s.conn.Send(protocol.OpIgnore, encodePayload(&entry))
}

func (m *SessionManager) sendHelp(s *Session) {
	s.Notice("Chat Channel Commands:")
	s.Notice("/join, /leave, /leaveall, /list, /announce, /autojoin, ;set")
	s.Notice(";oplist, ;grant, ;invite, ;kick, ;moderate, ;password, ;voice")
	s.Notice(";setowner, ;toggleinvites")
}

// splitPlayerChannel splits a "<first> <rest>" parameter pair,
// trimming surrounding spaces. The rest may itself contain spaces.
func splitPlayerChannel(params string) (first, rest string, ok bool) {
	params = strings.TrimLeft(params, " ")

	space := strings.IndexByte(params, ' ')
	if space < 0 {
		return "", "", false
	}

	first = params[:space]
	rest = strings.Trim(params[space:], " ")

	if first == "" || rest == "" {
		return "", "", false
	}

	return first, rest, true
}
