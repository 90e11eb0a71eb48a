package storage

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "chat.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedAccount(t *testing.T, s *Store, account string, characters ...string) int64 {
	t.Helper()
	id, err := s.CreateAccount(account)
	if err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	for _, name := range characters {
		if _, err := s.CreateCharacter(id, name, 20, 1, 1); err != nil {
			t.Fatalf("CreateCharacter failed: %v", err)
		}
	}
	return id
}

func TestVerifyKey(t *testing.T) {
	s := openTestStore(t)

	if err := s.SetKey("Thalien", "10.0.0.5", "AbCd1234"); err != nil {
		t.Fatalf("SetKey failed: %v", err)
	}

	if !s.VerifyKey("Thalien", "10.0.0.5", "AbCd1234") {
		t.Error("expected key to verify")
	}
	if s.VerifyKey("Thalien", "10.0.0.5", "WrongKey") {
		t.Error("wrong key should not verify")
	}
	if s.VerifyKey("Thalien", "10.0.0.6", "AbCd1234") {
		t.Error("key should be bound to source address")
	}
	if s.VerifyKey("Mirwen", "10.0.0.5", "AbCd1234") {
		t.Error("key should be bound to character name")
	}
}

func TestSetKeyReplacesPrevious(t *testing.T) {
	s := openTestStore(t)

	if err := s.SetKey("Thalien", "10.0.0.5", "FirstKey"); err != nil {
		t.Fatalf("SetKey failed: %v", err)
	}
	if err := s.SetKey("Thalien", "10.0.0.5", "Other999"); err != nil {
		t.Fatalf("SetKey replace failed: %v", err)
	}

	if s.VerifyKey("Thalien", "10.0.0.5", "FirstKey") {
		t.Error("replaced key should no longer verify")
	}
	if !s.VerifyKey("Thalien", "10.0.0.5", "Other999") {
		t.Error("new key should verify")
	}
}

func TestResolveAccount(t *testing.T) {
	s := openTestStore(t)
	accountID := seedAccount(t, s, "acct1", "Thalien", "Mirwen", "Kodo")

	id, characters, err := s.ResolveAccount("Mirwen")
	if err != nil {
		t.Fatalf("ResolveAccount failed: %v", err)
	}
	if id != accountID {
		t.Errorf("account id = %d, want %d", id, accountID)
	}
	if len(characters) != 3 {
		t.Fatalf("got %d characters, want 3", len(characters))
	}
	if characters[0].Name != "Thalien" {
		t.Errorf("first character = %q, want Thalien", characters[0].Name)
	}

	if _, _, err := s.ResolveAccount("Nobody"); err != ErrNotFound {
		t.Errorf("unknown character: err = %v, want ErrNotFound", err)
	}
}

func TestAccountStatusAndRevocation(t *testing.T) {
	s := openTestStore(t)
	accountID := seedAccount(t, s, "acct1", "Thalien")

	st, err := s.FetchAccountStatus(accountID)
	if err != nil {
		t.Fatalf("FetchAccountStatus failed: %v", err)
	}
	if st.Revoked || st.Karma != 0 || st.Status != 0 {
		t.Errorf("fresh account status = %+v, want zero values", st)
	}

	if err := s.SetAccountStanding(accountID, 5, 100); err != nil {
		t.Fatalf("SetAccountStanding failed: %v", err)
	}
	if err := s.RecordRevocation(accountID, 60); err != nil {
		t.Fatalf("RecordRevocation failed: %v", err)
	}

	st, err = s.FetchAccountStatus(accountID)
	if err != nil {
		t.Fatalf("FetchAccountStatus failed: %v", err)
	}
	if !st.Revoked {
		t.Error("expected account to be revoked")
	}
	if st.Karma != 5 || st.Status != 100 {
		t.Errorf("karma/status = %d/%d, want 5/100", st.Karma, st.Status)
	}
}

func TestExpiredRevocationClears(t *testing.T) {
	s := openTestStore(t)
	accountID := seedAccount(t, s, "acct1", "Thalien")

	// Backdated expiry so the revocation is already over
	if _, err := s.conn.Exec(
		`UPDATE accounts SET revoked = 1, revoked_until = 1 WHERE id = ?`, accountID); err != nil {
		t.Fatalf("seeding revocation failed: %v", err)
	}

	st, err := s.FetchAccountStatus(accountID)
	if err != nil {
		t.Fatalf("FetchAccountStatus failed: %v", err)
	}
	if st.Revoked {
		t.Error("expired revocation should be cleared on read")
	}

	st, err = s.FetchAccountStatus(accountID)
	if err != nil {
		t.Fatalf("second FetchAccountStatus failed: %v", err)
	}
	if st.Revoked {
		t.Error("revocation should stay cleared")
	}
}

func TestFriendsAndIgnored(t *testing.T) {
	s := openTestStore(t)
	seedAccount(t, s, "acct1", "Thalien")
	charID, err := s.FindCharacter("Thalien")
	if err != nil {
		t.Fatalf("FindCharacter failed: %v", err)
	}

	for _, name := range []string{"Mirwen", "Kodo"} {
		if err := s.AddFriendOrIgnore(charID, ListKindFriend, name); err != nil {
			t.Fatalf("AddFriendOrIgnore failed: %v", err)
		}
	}
	if err := s.AddFriendOrIgnore(charID, ListKindIgnore, "Gristle"); err != nil {
		t.Fatalf("AddFriendOrIgnore failed: %v", err)
	}
	// Duplicate add is a no-op
	if err := s.AddFriendOrIgnore(charID, ListKindFriend, "Mirwen"); err != nil {
		t.Fatalf("duplicate AddFriendOrIgnore failed: %v", err)
	}

	friends, ignored, err := s.FriendsAndIgnored(charID)
	if err != nil {
		t.Fatalf("FriendsAndIgnored failed: %v", err)
	}
	if len(friends) != 2 {
		t.Errorf("got %d friends, want 2", len(friends))
	}
	if len(ignored) != 1 || ignored[0] != "Gristle" {
		t.Errorf("ignored = %v, want [Gristle]", ignored)
	}

	if err := s.RemoveFriendOrIgnore(charID, ListKindFriend, "Kodo"); err != nil {
		t.Fatalf("RemoveFriendOrIgnore failed: %v", err)
	}
	friends, _, err = s.FriendsAndIgnored(charID)
	if err != nil {
		t.Fatalf("FriendsAndIgnored failed: %v", err)
	}
	if len(friends) != 1 || friends[0] != "Mirwen" {
		t.Errorf("friends = %v, want [Mirwen]", friends)
	}
}

func TestFindCharacter(t *testing.T) {
	s := openTestStore(t)
	seedAccount(t, s, "acct1", "Thalien")

	if _, err := s.FindCharacter("Thalien"); err != nil {
		t.Errorf("FindCharacter failed: %v", err)
	}
	if _, err := s.FindCharacter("Nobody"); err != ErrNotFound {
		t.Errorf("unknown name: err = %v, want ErrNotFound", err)
	}
}

func TestChannelMirror(t *testing.T) {
	s := openTestStore(t)

	if err := s.SetChannelOwner("Trade", "Thalien"); err != nil {
		t.Fatalf("SetChannelOwner failed: %v", err)
	}
	if err := s.SetChannelPassword("Trade", "sekrit"); err != nil {
		t.Fatalf("SetChannelPassword failed: %v", err)
	}

	var owner, password string
	err := s.conn.QueryRow(
		`SELECT owner, password FROM channels WHERE name = ?`, "Trade").Scan(&owner, &password)
	if err != nil {
		t.Fatalf("channel row read failed: %v", err)
	}
	if owner != "Thalien" || password != "sekrit" {
		t.Errorf("channel mirror = %q/%q, want Thalien/sekrit", owner, password)
	}
}
