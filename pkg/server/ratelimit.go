package server

import "fmt"

// deliverChannelMessage runs the voice, reputation and anti-spam
// checks for one message attempt and delivers it if they all pass.
// Escalation order: suppression with a throttle notice, then forced
// disconnect with a persisted timed revocation once the kick
// threshold is crossed.
func (m *SessionManager) deliverChannelMessage(s *Session, channel *Channel, text string) {
	if channel.Name() != m.config.Chat.NewcomerChannel {
		if s.revoked {
			s.Notice("You are Revoked, you cannot chat in global channels.")
			return
		}

		if s.karma < m.config.Chat.KarmaThreshold && s.characterLevel() < m.config.Chat.LevelThreshold {
			s.Notice("You are either not high enough level or high enough karma to talk in this channel right now.")
			return
		}
	}

	if channel.IsModerated() && !channel.HasVoice(s.name) && !channel.IsOwner(s.name) &&
		!channel.IsModerator(s.name) && !m.isChannelAdmin(s) {
		s.Notice("Channel " + channel.Name() + " is moderated and you have not been granted a voice.")
		return
	}

	if !m.config.Limits.AntiSpamEnabled {
		m.send(s, channel, text)
		return
	}

	if s.limiter.Check() {
		s.attemptedMessages = 0
	}

	allowed := m.config.Limits.MinMessagesPerInterval + s.karma
	if allowed > m.config.Limits.MaxMessagesPerInterval {
		allowed = m.config.Limits.MaxMessagesPerInterval
	}
	if s.status >= m.config.Limits.BypassStatus {
		allowed = 10000
	}

	s.attemptedMessages++

	if s.attemptedMessages <= allowed {
		m.send(s, channel, text)
		return
	}

	if s.attemptedMessages > m.config.Limits.KickThreshold {
		s.forceDisconnect = true

		if !s.revoked {
			if err := m.store.RecordRevocation(s.accountID, m.config.Limits.MuteSeconds); err != nil {
				s.log.Error().Err(err).Msg("failed to persist revocation")
			}
			s.revoked = true
			m.metrics.RecordRevocation()
			s.log.Warn().Int("attempted", s.attemptedMessages).Msg("session revoked for message flooding")
		}
	}

	m.metrics.RecordMessageSuppressed()
	s.Notice(fmt.Sprintf("You are currently rate limited, you cannot send more messages for %d seconds.",
		int(s.limiter.Remaining().Seconds())))
}

func (m *SessionManager) send(s *Session, channel *Channel, text string) {
	channel.SendMessageToChannel(text, s, m.config.Chat.Realm)
	m.messagesSent++
	m.metrics.RecordMessageSent()
}

// isChannelAdmin reports whether the session's account status grants
// blanket channel moderation rights.
func (m *SessionManager) isChannelAdmin(s *Session) bool {
	return s.status >= m.config.Limits.BypassStatus
}
