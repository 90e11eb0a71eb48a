package server

import (
	"fmt"
	"strings"

	"github.com/openlore/chatserver/pkg/protocol"
)

// Channel is a transient named chat group. Roles are keyed by
// character name, not by live session, so grants survive reconnects
// for as long as the channel exists.
type Channel struct {
	name string

	members []*Session

	owner      string
	moderators map[string]struct{}
	voiced     map[string]struct{}
	invitees   map[string]struct{}

	password  string
	moderated bool
}

func newChannel(name, owner, password string) *Channel {
	return &Channel{
		name:       name,
		owner:      owner,
		password:   password,
		moderators: make(map[string]struct{}),
		voiced:     make(map[string]struct{}),
		invitees:   make(map[string]struct{}),
	}
}

// Name returns the channel name, the case-sensitive unique key.
func (c *Channel) Name() string {
	return c.name
}

func (c *Channel) IsOwner(name string) bool {
	return c.owner == name
}

func (c *Channel) IsModerator(name string) bool {
	_, ok := c.moderators[name]
	return ok
}

func (c *Channel) HasVoice(name string) bool {
	_, ok := c.voiced[name]
	return ok
}

func (c *Channel) AddModerator(name string) {
	c.moderators[name] = struct{}{}
}

func (c *Channel) RemoveModerator(name string) {
	delete(c.moderators, name)
}

func (c *Channel) AddVoice(name string) {
	c.voiced[name] = struct{}{}
}

func (c *Channel) RemoveVoice(name string) {
	delete(c.voiced, name)
}

// SetOwner reassigns ownership. Callers that want owner and moderator
// to stay mutually exclusive must strip the new owner's moderator
// role themselves.
func (c *Channel) SetOwner(name string) {
	c.owner = name
}

func (c *Channel) SetPassword(password string) {
	c.password = password
}

func (c *Channel) SetModerated(moderated bool) {
	c.moderated = moderated
}

func (c *Channel) IsModerated() bool {
	return c.moderated
}

func (c *Channel) AddInvitee(name string) {
	c.invitees[name] = struct{}{}
}

func (c *Channel) IsInvited(name string) bool {
	_, ok := c.invitees[name]
	return ok
}

func (c *Channel) RemoveInvitee(name string) {
	delete(c.invitees, name)
}

// MemberCount returns the number of live member sessions.
func (c *Channel) MemberCount() int {
	return len(c.members)
}

// HasMember reports whether a session is currently in the channel.
func (c *Channel) HasMember(s *Session) bool {
	for _, m := range c.members {
		if m == s {
			return true
		}
	}
	return false
}

// addMember adds a session to the channel, announcing the join to
// members that have announcements enabled. Duplicate adds are no-ops.
func (c *Channel) addMember(s *Session) {
	if c.HasMember(s) {
		return
	}

	announce := protocol.Announcement{Channel: c.name, Character: s.name}
	payload := encodePayload(&announce)
	for _, m := range c.members {
		if m.announce {
			m.conn.Send(protocol.OpChannelAnnounceJoin, payload)
		}
	}

	c.members = append(c.members, s)
}

// removeMember drops a session from the channel, announcing the leave
// to remaining members with announcements enabled. Returns false if
// the session was not a member.
func (c *Channel) removeMember(s *Session) bool {
	for i, m := range c.members {
		if m == s {
			c.members = append(c.members[:i], c.members[i+1:]...)

			announce := protocol.Announcement{Channel: c.name, Character: s.name}
			payload := encodePayload(&announce)
			for _, m := range c.members {
				if m.announce {
					m.conn.Send(protocol.OpChannelAnnounceLeave, payload)
				}
			}
			return true
		}
	}
	return false
}

// SendMessageToChannel delivers a message from sender to every member.
// Sender names on the wire are realm qualified. Delivery is
// fire-and-forget.
func (c *Channel) SendMessageToChannel(text string, sender *Session, realm string) {
	msg := protocol.ChannelMessage{
		Channel: c.name,
		Sender:  realm + "." + sender.name,
		Text:    text,
	}
	payload := encodePayload(&msg)

	for _, m := range c.members {
		m.conn.Send(protocol.OpChannelMessage, payload)
	}
}

// SendChannelMembers sends a formatted membership summary to one
// session.
func (c *Channel) SendChannelMembers(requester *Session) {
	var b strings.Builder
	fmt.Fprintf(&b, "Channel %s has %d members: ", c.name, len(c.members))
	for i, m := range c.members {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(m.name)
	}
	requester.Notice(b.String())
}

// SendOPList sends the channel's role summary to one session.
func (c *Channel) SendOPList(requester *Session) {
	requester.Notice("Channel " + c.name + " owner: " + c.owner)

	var b strings.Builder
	b.WriteString("Moderators: ")
	first := true
	for name := range c.moderators {
		if !first {
			b.WriteString(", ")
		}
		b.WriteString(name)
		first = false
	}
	requester.Notice(b.String())

	b.Reset()
	b.WriteString("Voiced: ")
	first = true
	for name := range c.voiced {
		if !first {
			b.WriteString(", ")
		}
		b.WriteString(name)
		first = false
	}
	requester.Notice(b.String())
}
