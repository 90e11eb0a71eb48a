package server

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// ChannelRegistry owns every live channel. Channels are created on
// first join and destroyed when the last member leaves; nothing here
// survives a restart.
type ChannelRegistry struct {
	channels map[string]*Channel
	store    Storage
	metrics  *Metrics
	log      zerolog.Logger
}

func NewChannelRegistry(store Storage, metrics *Metrics, log zerolog.Logger) *ChannelRegistry {
	return &ChannelRegistry{
		channels: make(map[string]*Channel),
		store:    store,
		metrics:  metrics,
		log:      log,
	}
}

// FindChannel returns the channel with the exact name, nil if absent.
func (r *ChannelRegistry) FindChannel(name string) *Channel {
	return r.channels[name]
}

// ChannelCount returns the number of live channels.
func (r *ChannelRegistry) ChannelCount() int {
	return len(r.channels)
}

// AddClientToChannel joins a session to a channel, creating it on
// first join. The request may carry a password after a colon; on
// creation it becomes the channel password with the creator as owner.
// A request for the looking-for-group channel sets lfg instead of
// joining directly.
//
// A password-protected channel refuses the join, with a notice, when
// the supplied password is wrong and the session holds no pending
// invitation. An invitation bypasses the password once.
func (r *ChannelRegistry) AddClientToChannel(request string, s *Session) (ch *Channel, lfg bool) {
	name := request
	password := ""
	if colon := strings.IndexByte(request, ':'); colon >= 0 {
		name = request[:colon]
		password = request[colon+1:]
	}

	if strings.EqualFold(name, "lfg") {
		return nil, true
	}

	return r.joinChannel(name, password, s), false
}

// joinChannel is the join path proper, without the looking-for-group
// interception. The manager calls it directly for the deferred LFG
// join.
func (r *ChannelRegistry) joinChannel(name, password string, s *Session) *Channel {
	name = CapitaliseName(name)
	if name == "" {
		return nil
	}

	channel, ok := r.channels[name]
	if !ok {
		channel = newChannel(name, s.name, password)
		r.channels[name] = channel
		r.metrics.RecordChannelCreated()
		r.log.Info().Str("channel", name).Str("owner", s.name).Msg("channel created")

		if err := r.store.SetChannelOwner(name, s.name); err != nil {
			r.log.Error().Err(err).Str("channel", name).Msg("failed to mirror channel owner")
		}
		if password != "" {
			if err := r.store.SetChannelPassword(name, password); err != nil {
				r.log.Error().Err(err).Str("channel", name).Msg("failed to mirror channel password")
			}
		}
	}

	if channel.password != "" && channel.password != password && !channel.IsOwner(s.name) {
		if channel.IsInvited(s.name) {
			channel.RemoveInvitee(s.name)
		} else {
			s.Notice("Incorrect password for channel " + name + ".")
			return nil
		}
	} else if channel.IsInvited(s.name) {
		channel.RemoveInvitee(s.name)
	}

	channel.addMember(s)

	return channel
}

// RemoveClientFromChannel removes a session from a channel, destroying
// the channel when it empties. Returns nil if the session was not a
// member.
func (r *ChannelRegistry) RemoveClientFromChannel(name string, s *Session) *Channel {
	name = CapitaliseName(name)

	channel, ok := r.channels[name]
	if !ok {
		return nil
	}

	if !channel.removeMember(s) {
		return nil
	}

	if channel.MemberCount() == 0 {
		delete(r.channels, name)
		r.metrics.RecordChannelDestroyed()
		r.log.Info().Str("channel", name).Msg("empty channel destroyed")
	}

	return channel
}

// SendAllChannels sends the names and member counts of every live
// channel to the requester.
func (r *ChannelRegistry) SendAllChannels(s *Session) {
	if len(r.channels) == 0 {
		s.Notice("No channels exist.")
		return
	}

	names := make([]string, 0, len(r.channels))
	for name := range r.channels {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("Channels: ")
	for i, name := range names {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s(%d)", name, r.channels[name].MemberCount())
	}
	s.Notice(b.String())
}
