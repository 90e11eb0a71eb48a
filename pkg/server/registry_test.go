package server

import (
	"strings"
	"testing"

	"github.com/openlore/chatserver/pkg/protocol"
)

func TestJoinCreatesChannelWithOwner(t *testing.T) {
	m, store := newTestManager(t, testConfig())
	store.addCharacter("Thalien", 1, 10, 20)

	s, _ := login(t, m, "Thalien", "10.0.0.5")

	m.JoinChannels(s, "General")

	channel := m.registry.FindChannel("General")
	if channel == nil {
		t.Fatal("channel General not created")
	}
	if !channel.IsOwner("Thalien") {
		t.Error("creator should own the channel")
	}
	if !channel.HasMember(s) {
		t.Error("creator should be a member")
	}
	if store.channelOwners["General"] != "Thalien" {
		t.Error("owner not mirrored to storage")
	}
}

func TestJoinNormalizesChannelName(t *testing.T) {
	m, store := newTestManager(t, testConfig())
	store.addCharacter("Thalien", 1, 10, 20)

	s, _ := login(t, m, "Thalien", "10.0.0.5")

	m.JoinChannels(s, "gENERAL")

	if m.registry.FindChannel("General") == nil {
		t.Error("channel name should be normalized to General")
	}
}

func TestJoinIsIdempotent(t *testing.T) {
	m, store := newTestManager(t, testConfig())
	store.addCharacter("Thalien", 1, 10, 20)

	s, _ := login(t, m, "Thalien", "10.0.0.5")

	m.JoinChannels(s, "General")
	m.JoinChannels(s, "General")

	channel := m.registry.FindChannel("General")
	if channel.MemberCount() != 1 {
		t.Errorf("member count = %d, want 1", channel.MemberCount())
	}
	if s.channelCount() != 1 {
		t.Errorf("slot count = %d, want 1", s.channelCount())
	}
}

func TestSlotCapAndContiguity(t *testing.T) {
	m, store := newTestManager(t, testConfig())
	store.addCharacter("Thalien", 1, 10, 20)

	s, conn := login(t, m, "Thalien", "10.0.0.5")

	m.JoinChannels(s, "C1,C2,C3,C4,C5,C6,C7,C8,C9,C10,C11")

	if s.channelCount() != MaxJoinedChannels {
		t.Errorf("slot count = %d, want %d", s.channelCount(), MaxJoinedChannels)
	}
	if m.registry.FindChannel("C11") != nil {
		t.Error("channel past the cap should not have been created")
	}

	found := false
	for _, text := range conn.notices(t) {
		if strings.Contains(text, "maximum number of channels") {
			found = true
		}
	}
	if !found {
		t.Error("capacity notice not sent")
	}

	// Leaving from the middle compacts the table
	m.LeaveChannels(s, "C3")

	if s.channelCount() != MaxJoinedChannels-1 {
		t.Errorf("slot count = %d, want %d", s.channelCount(), MaxJoinedChannels-1)
	}
	for i := 0; i < s.channelCount(); i++ {
		if s.channels[i] == "" {
			t.Fatalf("gap at slot %d after leave", i)
		}
	}
	if s.channels[1] != "C2" || s.channels[2] != "C4" {
		t.Errorf("slots not shuffled down: %v", s.channels)
	}
}

func TestJoinLfgResolvesToChannel(t *testing.T) {
	m, store := newTestManager(t, testConfig())
	store.addCharacter("Thalien", 1, 10, 20)

	s, _ := login(t, m, "Thalien", "10.0.0.5")

	m.JoinChannels(s, "lfg")

	channel := m.registry.FindChannel("Lfg")
	if channel == nil {
		t.Fatal("channel Lfg not created")
	}
	if !channel.HasMember(s) {
		t.Error("session should be a member of Lfg")
	}
	if s.channelCount() != 1 || s.slotName(1) != "Lfg" {
		t.Errorf("slots = %v, want Lfg in slot 1", s.channels)
	}
}

func TestJoinLfgOrderedAfterBatch(t *testing.T) {
	m, store := newTestManager(t, testConfig())
	store.addCharacter("Thalien", 1, 10, 20)

	s, _ := login(t, m, "Thalien", "10.0.0.5")

	m.JoinChannels(s, "General,LFG,Trade")

	if s.slotName(1) != "General" || s.slotName(2) != "Trade" || s.slotName(3) != "Lfg" {
		t.Errorf("slots = %v, want General,Trade,Lfg", s.channels)
	}
}

func TestJoinAnnouncedToMembersWithAnnounceOn(t *testing.T) {
	m, store := newTestManager(t, testConfig())
	store.addCharacter("Thalien", 1, 10, 20)
	store.addCharacter("Mirwen", 2, 11, 20)
	store.addCharacter("Kodo", 3, 12, 20)

	listening, listenConn := login(t, m, "Thalien", "10.0.0.5")
	quiet, quietConn := login(t, m, "Mirwen", "10.0.0.6")
	mover, _ := login(t, m, "Kodo", "10.0.0.7")

	m.JoinChannels(listening, "General")
	m.JoinChannels(quiet, "General")
	command(m, listening, "announce on")

	m.JoinChannels(mover, "General")

	joins := listenConn.announcements(t, protocol.OpChannelAnnounceJoin)
	if len(joins) != 1 {
		t.Fatalf("got %d join announcements, want 1", len(joins))
	}
	if joins[0].Channel != "General" || joins[0].Character != "Kodo" {
		t.Errorf("announcement = %+v, want General/Kodo", joins[0])
	}
	if got := quietConn.announcements(t, protocol.OpChannelAnnounceJoin); len(got) != 0 {
		t.Errorf("announce-off member received %d join announcements", len(got))
	}

	m.LeaveChannels(mover, "General")

	leaves := listenConn.announcements(t, protocol.OpChannelAnnounceLeave)
	if len(leaves) != 1 || leaves[0].Character != "Kodo" {
		t.Errorf("leave announcements = %v, want one for Kodo", leaves)
	}
	if got := quietConn.announcements(t, protocol.OpChannelAnnounceLeave); len(got) != 0 {
		t.Errorf("announce-off member received %d leave announcements", len(got))
	}
}

func TestEmptyChannelIsDestroyed(t *testing.T) {
	m, store := newTestManager(t, testConfig())
	store.addCharacter("Thalien", 1, 10, 20)

	s, _ := login(t, m, "Thalien", "10.0.0.5")

	m.JoinChannels(s, "General")
	m.LeaveChannels(s, "General")

	if m.registry.FindChannel("General") != nil {
		t.Error("empty channel should be destroyed")
	}
}

func TestPasswordBlocksJoin(t *testing.T) {
	m, store := newTestManager(t, testConfig())
	store.addCharacter("Thalien", 1, 10, 20)
	store.addCharacter("Mirwen", 2, 11, 20)

	owner, _ := login(t, m, "Thalien", "10.0.0.5")
	other, otherConn := login(t, m, "Mirwen", "10.0.0.6")

	m.JoinChannels(owner, "Private:sekrit")
	m.JoinChannels(other, "Private")

	channel := m.registry.FindChannel("Private")
	if channel.HasMember(other) {
		t.Error("join without password should be refused")
	}
	if !strings.Contains(otherConn.lastNotice(t), "not on any channels") {
		// the summary still arrives; the refusal notice came earlier
		t.Errorf("expected empty channel summary, got %q", otherConn.lastNotice(t))
	}

	m.JoinChannels(other, "Private:sekrit")
	if !channel.HasMember(other) {
		t.Error("join with correct password should succeed")
	}
}

func TestInviteBypassesPasswordOnce(t *testing.T) {
	m, store := newTestManager(t, testConfig())
	store.addCharacter("Thalien", 1, 10, 20)
	store.addCharacter("Mirwen", 2, 11, 20)

	owner, _ := login(t, m, "Thalien", "10.0.0.5")
	other, _ := login(t, m, "Mirwen", "10.0.0.6")

	m.JoinChannels(owner, "Private:sekrit")

	command(m, owner, "invite Mirwen Private")

	channel := m.registry.FindChannel("Private")
	if !channel.IsInvited("Mirwen") {
		t.Fatal("invite not recorded")
	}

	m.JoinChannels(other, "Private")
	if !channel.HasMember(other) {
		t.Error("invited session should join without the password")
	}
	if channel.IsInvited("Mirwen") {
		t.Error("invitation should be cleared on join")
	}

	m.LeaveChannels(other, "Private")
	m.JoinChannels(other, "Private")
	if channel.HasMember(other) {
		t.Error("second join without password should be refused")
	}
}

func TestListAllChannels(t *testing.T) {
	m, store := newTestManager(t, testConfig())
	store.addCharacter("Thalien", 1, 10, 20)

	s, conn := login(t, m, "Thalien", "10.0.0.5")

	m.JoinChannels(s, "General,Trade")

	command(m, s, "listall")

	last := conn.lastNotice(t)
	if !strings.Contains(last, "General(1)") || !strings.Contains(last, "Trade(1)") {
		t.Errorf("listall summary = %q", last)
	}
}

func TestChannelListSummaryFormat(t *testing.T) {
	m, store := newTestManager(t, testConfig())
	store.addCharacter("Thalien", 1, 10, 20)

	s, conn := login(t, m, "Thalien", "10.0.0.5")

	m.JoinChannels(s, "General,Trade")

	last := conn.lastNotice(t)
	if last != "Channels: 1=General(1),2=Trade(1)" {
		t.Errorf("summary = %q", last)
	}

	m.LeaveAllChannels(s, true)

	if conn.lastNotice(t) != "You are not on any channels." {
		t.Errorf("empty summary = %q", conn.lastNotice(t))
	}
}
