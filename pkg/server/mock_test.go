package server

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/openlore/chatserver/pkg/protocol"
	"github.com/openlore/chatserver/pkg/storage"
)

// mockConn is an in-memory transport.PacketConn.
type mockConn struct {
	remote  string
	inbound []*protocol.Packet
	sent    []protocol.Packet
	closed  bool
	stale   bool
}

func newMockConn(remote string) *mockConn {
	return &mockConn{remote: remote}
}

func (c *mockConn) PopPacket() *protocol.Packet {
	if len(c.inbound) == 0 {
		return nil
	}
	pkt := c.inbound[0]
	c.inbound = c.inbound[1:]
	return pkt
}

func (c *mockConn) Send(op protocol.Opcode, payload []byte) {
	c.sent = append(c.sent, protocol.Packet{Op: op, Payload: payload})
}

func (c *mockConn) IsClosed() bool     { return c.closed }
func (c *mockConn) IsStale() bool      { return c.stale }
func (c *mockConn) Close()             { c.closed = true }
func (c *mockConn) RemoteAddr() string { return c.remote }

func (c *mockConn) push(op protocol.Opcode, payload []byte) {
	c.inbound = append(c.inbound, &protocol.Packet{Op: op, Payload: payload})
}

// notices decodes every general notice sent so far.
func (c *mockConn) notices(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, pkt := range c.sent {
		if pkt.Op != protocol.OpChannelMessage {
			continue
		}
		if len(pkt.Payload) < 2 || pkt.Payload[0] != 0 || pkt.Payload[1] != 0 {
			continue
		}
		var n protocol.Notice
		if err := n.Decode(pkt.Payload); err != nil {
			t.Fatalf("bad notice payload: %v", err)
		}
		out = append(out, n.Text)
	}
	return out
}

func (c *mockConn) lastNotice(t *testing.T) string {
	t.Helper()
	all := c.notices(t)
	if len(all) == 0 {
		t.Fatal("no notices sent")
	}
	return all[len(all)-1]
}

// announcements decodes every join or leave announcement sent so far
// under the given opcode.
func (c *mockConn) announcements(t *testing.T, op protocol.Opcode) []protocol.Announcement {
	t.Helper()
	var out []protocol.Announcement
	for _, pkt := range c.sent {
		if pkt.Op != op {
			continue
		}
		var a protocol.Announcement
		if err := a.Decode(pkt.Payload); err != nil {
			t.Fatalf("bad announcement payload: %v", err)
		}
		out = append(out, a)
	}
	return out
}

// channelMessages decodes every channel message sent so far.
func (c *mockConn) channelMessages(t *testing.T) []protocol.ChannelMessage {
	t.Helper()
	var out []protocol.ChannelMessage
	for _, pkt := range c.sent {
		if pkt.Op != protocol.OpChannelMessage {
			continue
		}
		if len(pkt.Payload) >= 2 && pkt.Payload[0] == 0 && pkt.Payload[1] == 0 {
			continue
		}
		var m protocol.ChannelMessage
		if err := m.Decode(pkt.Payload); err != nil {
			t.Fatalf("bad channel message payload: %v", err)
		}
		out = append(out, m)
	}
	return out
}

// mockStorage is an in-memory Storage.
type mockStorage struct {
	keys       map[string]string // name|addr -> key
	accounts   map[string]int64  // character name -> account id
	characters map[string][]storage.Character
	status     map[int64]storage.AccountStatus
	friends    map[int64]map[string]bool
	ignored    map[int64]map[string]bool

	revocations   []int64
	messageStatus map[int64]int
	channelOwners map[string]string
	channelPWs    map[string]string
}

func newMockStorage() *mockStorage {
	return &mockStorage{
		keys:          make(map[string]string),
		accounts:      make(map[string]int64),
		characters:    make(map[string][]storage.Character),
		status:        make(map[int64]storage.AccountStatus),
		friends:       make(map[int64]map[string]bool),
		ignored:       make(map[int64]map[string]bool),
		messageStatus: make(map[int64]int),
		channelOwners: make(map[string]string),
		channelPWs:    make(map[string]string),
	}
}

// addCharacter registers an account with one character and a valid
// key for any source address.
func (ms *mockStorage) addCharacter(name string, accountID, charID int64, level int) {
	ms.accounts[name] = accountID
	ms.characters[name] = []storage.Character{{ID: charID, Name: name, Level: level}}
	ms.keys[name] = "Key12345"
	if _, ok := ms.status[accountID]; !ok {
		ms.status[accountID] = storage.AccountStatus{}
	}
}

func (ms *mockStorage) VerifyKey(name, sourceAddress, key string) bool {
	return ms.keys[name] == key
}

func (ms *mockStorage) ResolveAccount(name string) (int64, []storage.Character, error) {
	id, ok := ms.accounts[name]
	if !ok {
		return 0, nil, storage.ErrNotFound
	}
	return id, ms.characters[name], nil
}

func (ms *mockStorage) FetchAccountStatus(accountID int64) (storage.AccountStatus, error) {
	return ms.status[accountID], nil
}

func (ms *mockStorage) FriendsAndIgnored(charID int64) ([]string, []string, error) {
	var friends, ignored []string
	for name := range ms.friends[charID] {
		friends = append(friends, name)
	}
	for name := range ms.ignored[charID] {
		ignored = append(ignored, name)
	}
	return friends, ignored, nil
}

func (ms *mockStorage) AddFriendOrIgnore(charID int64, kind int, name string) error {
	target := ms.friends
	if kind == storage.ListKindIgnore {
		target = ms.ignored
	}
	if target[charID] == nil {
		target[charID] = make(map[string]bool)
	}
	target[charID][name] = true
	return nil
}

func (ms *mockStorage) RemoveFriendOrIgnore(charID int64, kind int, name string) error {
	target := ms.friends
	if kind == storage.ListKindIgnore {
		target = ms.ignored
	}
	delete(target[charID], name)
	return nil
}

func (ms *mockStorage) SetMessageStatus(messageID int64, status int) error {
	ms.messageStatus[messageID] = status
	return nil
}

func (ms *mockStorage) FindCharacter(name string) (int64, error) {
	for _, chars := range ms.characters {
		for _, c := range chars {
			if c.Name == name {
				return c.ID, nil
			}
		}
	}
	return 0, storage.ErrNotFound
}

func (ms *mockStorage) RecordRevocation(accountID int64, durationSeconds int) error {
	ms.revocations = append(ms.revocations, accountID)
	return nil
}

func (ms *mockStorage) SetChannelOwner(channel, owner string) error {
	ms.channelOwners[channel] = owner
	return nil
}

func (ms *mockStorage) SetChannelPassword(channel, password string) error {
	ms.channelPWs[channel] = password
	return nil
}

// testConfig returns a config with short limits suitable for tests.
func testConfig() TOMLConfig {
	config := DefaultTOMLConfig()
	config.Limits.MinMessagesPerInterval = 2
	config.Limits.MaxMessagesPerInterval = 4
	config.Limits.KickThreshold = 6
	config.Limits.IntervalSeconds = 60
	return config
}

func newTestManager(t *testing.T, config TOMLConfig) (*SessionManager, *mockStorage) {
	t.Helper()

	store := newMockStorage()
	log := zerolog.Nop()
	registry := NewChannelRegistry(store, nil, log)

	return NewSessionManager(config, store, registry, nil, log), store
}

// connect creates a session for a fresh mock connection.
func connect(m *SessionManager, remote string) *mockConn {
	conn := newMockConn(remote)
	m.OnNewConnection(conn)
	return conn
}

// login connects and authenticates a character that already exists in
// the mock storage.
func login(t *testing.T, m *SessionManager, name, remote string) (*Session, *mockConn) {
	t.Helper()

	conn := connect(m, remote)

	req := protocol.LoginRequest{
		Kind:       protocol.KindChat,
		Identifier: "loreworld." + name,
		Key:        "Key12345",
	}
	payload, err := req.Encode()
	if err != nil {
		t.Fatalf("encoding login request: %v", err)
	}
	conn.push(protocol.OpChatLogin, payload)

	m.Tick()

	s := m.FindByCharacterName(name)
	if s == nil {
		t.Fatalf("session for %s not found after login", name)
	}
	return s, conn
}

// command runs one chat command line for a session.
func command(m *SessionManager, s *Session, line string) {
	m.DispatchCommand(s, line)
}
