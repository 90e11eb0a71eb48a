package server

import "github.com/openlore/chatserver/pkg/storage"

// Storage is the persistence collaborator. The SQLite implementation
// in pkg/storage satisfies it; tests use an in-memory mock.
type Storage interface {
	// VerifyKey checks the one-time session key handed to the client
	// by the world server, keyed by character name and source address.
	VerifyKey(name, sourceAddress, key string) bool

	// ResolveAccount maps a character name to its account id and the
	// account's character summaries.
	ResolveAccount(name string) (int64, []storage.Character, error)

	// FetchAccountStatus returns karma, revocation and admin level.
	FetchAccountStatus(accountID int64) (storage.AccountStatus, error)

	// FriendsAndIgnored returns the friend and ignore lists for a
	// character.
	FriendsAndIgnored(charID int64) ([]string, []string, error)

	AddFriendOrIgnore(charID int64, kind int, name string) error
	RemoveFriendOrIgnore(charID int64, kind int, name string) error

	// SetMessageStatus updates the status of one stored mail message.
	SetMessageStatus(messageID int64, status int) error

	// FindCharacter returns storage.ErrNotFound for unknown names.
	FindCharacter(name string) (int64, error)

	// RecordRevocation persists a timed chat revocation.
	RecordRevocation(accountID int64, durationSeconds int) error

	// SetChannelOwner and SetChannelPassword mirror transient channel
	// state for reference; failures are logged, never user-visible.
	SetChannelOwner(channel, owner string) error
	SetChannelPassword(channel, password string) error
}
