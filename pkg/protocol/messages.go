package protocol

import (
	"bytes"
	"errors"
	"strings"
)

// Opcode identifies the kind of a packet. The transport is responsible
// for mapping opcodes onto its wire numbering; the core only ever sees
// these symbolic values.
type Opcode uint8

const (
	OpSessionReady         Opcode = 0x01 // keepalive, empty payload
	OpChatLogin            Opcode = 0x02 // login request / character-list ack
	OpChat                 Opcode = 0x03 // command text / compact slot list
	OpChannelMessage       Opcode = 0x04
	OpChannelAnnounceJoin  Opcode = 0x05
	OpChannelAnnounceLeave Opcode = 0x06
	OpBuddy                Opcode = 0x07
	OpIgnore               Opcode = 0x08
)

// Packet is one opcode-tagged payload as handed over by the transport.
type Packet struct {
	Op      Opcode
	Payload []byte
}

// KeyLength is the exact length of the one-time session key carried in
// a login request. Anything else means the world server that issued the
// key speaks an incompatible version.
const KeyLength = 8

// Connection kind indicators carried in the first byte of a login
// request.
const (
	KindChat     = 'C'
	KindCombined = 'M'
)

var ErrBadKeyLength = errors.New("session key is the wrong length")

// LoginRequest (OpChatLogin, inbound) carries a connection kind byte, a
// dotted client identifier whose last segment is the character name,
// and the one-time session key.
type LoginRequest struct {
	Kind       byte
	Identifier string
	Key        string
}

func (m *LoginRequest) EncodeTo(w *bytes.Buffer) error {
	if err := WriteUint8(w, m.Kind); err != nil {
		return err
	}
	if err := WriteCString(w, m.Identifier); err != nil {
		return err
	}
	return WriteCString(w, m.Key)
}

func (m *LoginRequest) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *LoginRequest) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	kind, err := ReadUint8(buf)
	if err != nil {
		return ErrShortPayload
	}
	identifier, err := ReadCString(buf)
	if err != nil {
		return err
	}
	key, err := ReadCString(buf)
	if err != nil {
		return err
	}
	if len(key) != KeyLength {
		return ErrBadKeyLength
	}

	m.Kind = kind
	m.Identifier = identifier
	m.Key = key
	return nil
}

// CharacterName strips the dotted prefix from the identifier.
func (m *LoginRequest) CharacterName() string {
	if i := strings.LastIndexByte(m.Identifier, '.'); i >= 0 {
		return m.Identifier[i+1:]
	}
	return m.Identifier
}

// LoginReply (OpChatLogin, outbound) acknowledges a login with the
// comma-separated list of character names known for the account.
type LoginReply struct {
	CharacterNames []string
}

func (m *LoginReply) EncodeTo(w *bytes.Buffer) error {
	if err := WriteUint8(w, 1); err != nil {
		return err
	}
	if err := WriteUint32(w, uint32(len(m.CharacterNames))); err != nil {
		return err
	}
	if err := WriteUint32(w, 0); err != nil {
		return err
	}
	if err := WriteCString(w, strings.Join(m.CharacterNames, ",")); err != nil {
		return err
	}
	return WriteUint8(w, 0)
}

func (m *LoginReply) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *LoginReply) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	if _, err := ReadUint8(buf); err != nil {
		return ErrShortPayload
	}
	count, err := ReadUint32(buf)
	if err != nil {
		return err
	}
	if _, err := ReadUint32(buf); err != nil {
		return err
	}
	list, err := ReadCString(buf)
	if err != nil {
		return err
	}

	if list == "" {
		m.CharacterNames = nil
	} else {
		m.CharacterNames = strings.Split(list, ",")
	}
	if uint32(len(m.CharacterNames)) != count {
		return errors.New("character count does not match name list")
	}
	return nil
}

// Notice (OpChannelMessage, outbound) is the general chat-style notice
// envelope: two reserved bytes, then the text.
type Notice struct {
	Text string
}

func (m *Notice) EncodeTo(w *bytes.Buffer) error {
	if err := WriteUint8(w, 0); err != nil {
		return err
	}
	if err := WriteUint8(w, 0); err != nil {
		return err
	}
	return WriteCString(w, m.Text)
}

func (m *Notice) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *Notice) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	if _, err := ReadUint8(buf); err != nil {
		return ErrShortPayload
	}
	if _, err := ReadUint8(buf); err != nil {
		return ErrShortPayload
	}
	text, err := ReadCString(buf)
	if err != nil {
		return err
	}
	m.Text = text
	return nil
}

// ChannelMessage (OpChannelMessage, outbound) delivers channel chat:
// channel name, realm-qualified sender, message text.
type ChannelMessage struct {
	Channel string
	Sender  string
	Text    string
}

func (m *ChannelMessage) EncodeTo(w *bytes.Buffer) error {
	if err := WriteCString(w, m.Channel); err != nil {
		return err
	}
	if err := WriteCString(w, m.Sender); err != nil {
		return err
	}
	return WriteCString(w, m.Text)
}

func (m *ChannelMessage) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *ChannelMessage) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	channel, err := ReadCString(buf)
	if err != nil {
		return err
	}
	sender, err := ReadCString(buf)
	if err != nil {
		return err
	}
	text, err := ReadCString(buf)
	if err != nil {
		return err
	}

	m.Channel = channel
	m.Sender = sender
	m.Text = text
	return nil
}

// ChatCommand (OpChat, inbound) carries raw command text after a
// reserved leading byte.
type ChatCommand struct {
	Text string
}

func (m *ChatCommand) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := WriteUint8(buf, 0); err != nil {
		return nil, err
	}
	if err := WriteCString(buf, m.Text); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *ChatCommand) Decode(payload []byte) error {
	if len(payload) < 1 {
		return ErrShortPayload
	}
	text := payload[1:]
	if i := bytes.IndexByte(text, 0); i >= 0 {
		text = text[:i]
	}
	m.Text = string(text)
	return nil
}

// SlotList (OpChat, outbound) is the compact machine-readable list of
// joined channel names, in slot order.
type SlotList struct {
	Channels []string
}

func (m *SlotList) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := WriteCString(buf, strings.Join(m.Channels, ",")); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *SlotList) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	list, err := ReadCString(buf)
	if err != nil {
		return err
	}
	if list == "" {
		m.Channels = nil
	} else {
		m.Channels = strings.Split(list, ",")
	}
	return nil
}

// Announcement (OpChannelAnnounceJoin / OpChannelAnnounceLeave,
// outbound) reports a membership change to remaining members.
type Announcement struct {
	Channel   string
	Character string
}

func (m *Announcement) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := WriteCString(buf, m.Channel); err != nil {
		return nil, err
	}
	if err := WriteCString(buf, m.Character); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *Announcement) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	channel, err := ReadCString(buf)
	if err != nil {
		return err
	}
	character, err := ReadCString(buf)
	if err != nil {
		return err
	}
	m.Channel = channel
	m.Character = character
	return nil
}

// List update actions for OpBuddy and OpIgnore packets.
const (
	ListActionRemove = 0
	ListActionAdd    = 1
)

// ListUpdate (OpBuddy / OpIgnore, outbound) pushes one friend or ignore
// entry: action byte, then the (possibly realm-qualified) name.
type ListUpdate struct {
	Action uint8
	Name   string
}

func (m *ListUpdate) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := WriteUint8(buf, m.Action); err != nil {
		return nil, err
	}
	if err := WriteCString(buf, m.Name); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *ListUpdate) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	action, err := ReadUint8(buf)
	if err != nil {
		return ErrShortPayload
	}
	name, err := ReadCString(buf)
	if err != nil {
		return err
	}
	m.Action = action
	m.Name = name
	return nil
}
