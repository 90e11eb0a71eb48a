// Package storage persists the account-side state the chat service
// consults: session keys, account standing, characters, friend and
// ignore lists, mail message status, and timed chat revocations.
package storage

import "errors"

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// List kinds for friend/ignore entries.
const (
	ListKindIgnore = 0
	ListKindFriend = 1
)

// Character is one character summary attached to an account.
type Character struct {
	ID    int64
	Name  string
	Level int
	Race  int
	Class int
}

// AccountStatus is the chat-relevant standing of an account.
type AccountStatus struct {
	Karma   int
	Revoked bool
	Status  int
}

// Mail message status values written by the setmsgstatus command.
const (
	MessageStatusDeleted = 0
	MessageStatusRead    = 3
	MessageStatusTrash   = 4
)
