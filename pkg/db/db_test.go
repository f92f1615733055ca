package db

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
)

func TestAccessRightContains(t *testing.T) {
	tests := []struct {
		held, asked AccessRight
		exp         bool
	}{
		{ReadWrite, Read, true},
		{ReadWrite, Write, true},
		{ReadWrite, ReadWrite, true},
		{Read, Read, true},
		{Read, Write, false},
		{Read, ReadWrite, false},
		{Write, Read, false},
		{NoAccess, Read, false},
		{NoAccess, NoAccess, true},
	}

	for _, test := range tests {
		assert.Equal(t, test.exp, test.held.Contains(test.asked),
			"%v contains %v", test.held, test.asked)
	}
}

func TestParseAccessRight(t *testing.T) {
	assert.Equal(t, ReadWrite, ParseAccessRight("READ_WRITE"))
	assert.Equal(t, Read, ParseAccessRight("READ"))
	assert.Equal(t, NoAccess, ParseAccessRight("read"))
	assert.Equal(t, NoAccess, ParseAccessRight("EXECUTE"))
}

func TestFileRights(t *testing.T) {
	f := NewFile("docs/readme.txt")
	assert.False(t, f.Test("devs", Read))

	f.AddRight("devs", Read)
	assert.True(t, f.Test("devs", Read))
	assert.False(t, f.Test("devs", Write))

	f.AddRight("devs", Write)
	assert.True(t, f.Test("devs", ReadWrite))

	f.RemoveRight("devs", Write)
	assert.True(t, f.Test("devs", Read))
	assert.False(t, f.Test("devs", ReadWrite))

	f.SetRight("devs", NoAccess)
	assert.False(t, f.Test("devs", Read))
}

func TestCreateNewFileDefaultRights(t *testing.T) {
	db := NewServerDB(NewStore("/state"))
	assert.True(t, db.CreateNewGroup("devs", Read, true))
	assert.True(t, db.CreateNewGroup("ops", NoAccess, false))

	devs, _ := db.TryGetGroup("devs")
	now := time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)
	f := db.CreateNewFile("src/main.go", devs, now)

	assert.True(t, f.Test("devs", ReadWrite))
	assert.False(t, f.Test("ops", Read))
	assert.True(t, now.Equal(f.DateModified))

	// Creating again returns the existing record untouched.
	again := db.CreateNewFile("src/main.go", nil, now.Add(time.Hour))
	assert.Same(t, f, again)
	assert.True(t, now.Equal(again.DateModified))
}

func TestNewGroupStampsDefaultRightOnFiles(t *testing.T) {
	db := NewServerDB(NewStore("/state"))
	f := db.CreateNewFile("a.txt", nil, time.Now())

	assert.True(t, db.CreateNewGroup("readers", Read, false))
	assert.True(t, f.Test("readers", Read))
}

func TestMoveUserToGroup(t *testing.T) {
	db := NewServerDB(NewStore("/state"))
	db.EnsureDefaultGroup()
	assert.True(t, db.CreateNewGroup("devs", Read, true))
	assert.True(t, db.AddUser(NewUser("alice", "digest")))

	db.MoveUserToGroup("alice", "devs")

	alice, _ := db.TryGetUser("alice")
	assert.Equal(t, "devs", alice.Group)

	devs, _ := db.TryGetGroup("devs")
	assert.True(t, devs.HasMember("alice"))
	def, _ := db.TryGetGroup(DefaultGroupName)
	assert.False(t, def.HasMember("alice"))

	// Unknown targets are ignored.
	db.MoveUserToGroup("alice", "nope")
	assert.Equal(t, "devs", alice.Group)
}

func TestEnsureDefaultGroup(t *testing.T) {
	db := NewServerDB(NewStore("/state"))
	f := db.CreateNewFile("a.txt", nil, time.Now())
	db.users["bob"] = NewUser("bob", "digest")

	db.EnsureDefaultGroup()

	def, ok := db.TryGetGroup(DefaultGroupName)
	assert.True(t, ok)
	assert.False(t, def.CanCreateFiles)
	assert.True(t, def.HasMember("bob"))
	assert.True(t, f.Test(DefaultGroupName, Read))
}

func TestAuthentication(t *testing.T) {
	transport := Digest("hunter2")
	u := NewUser("alice", SaltedDigest("alice", transport))

	assert.True(t, u.Authenticate(transport))
	assert.False(t, u.Authenticate(Digest("hunter3")))

	// Same password, different name, different stored digest.
	other := NewUser("bob", SaltedDigest("bob", transport))
	assert.NotEqual(t, u.PasswordDigest, other.PasswordDigest)
}

func TestServerSnapshotRoundTrip(t *testing.T) {
	fs = afero.NewMemMapFs()

	store := NewStore("/state")
	db := NewServerDB(store)
	db.EnsureDefaultGroup()
	assert.True(t, db.CreateNewGroup("devs", Read, true))
	assert.True(t, db.AddUser(NewUser("alice", "digest")))
	db.MoveUserToGroup("alice", "devs")

	alice, _ := db.TryGetUser("alice")
	alice.ListenAddress = "10.0.0.7"
	alice.ListenPort = 4242

	devs, _ := db.TryGetGroup("devs")
	db.CreateNewFile("src/main.go", devs, time.Now())
	db.Save()

	loaded := NewServerDB(store)
	assert.NoError(t, loaded.Load())

	f, ok := loaded.TryGetFile("src/main.go")
	assert.True(t, ok)
	assert.True(t, f.Test("devs", ReadWrite))

	// Listen endpoints are session-scoped and must not survive a reload.
	alice2, ok := loaded.TryGetUser("alice")
	assert.True(t, ok)
	assert.Equal(t, "", alice2.ListenAddress)
	assert.Equal(t, UnknownListenPort, alice2.ListenPort)

	// Membership back-references are rebuilt from the user records.
	devs2, _ := loaded.TryGetGroup("devs")
	assert.True(t, devs2.HasMember("alice"))
}

func TestClientSnapshotRoundTrip(t *testing.T) {
	fs = afero.NewMemMapFs()

	store := NewStore("/state")
	db := NewClientDB(store)
	assert.False(t, db.HasSnapshot())

	f := NewFile("notes.txt")
	f.Touch(time.Date(2021, 6, 1, 9, 0, 0, 0, time.UTC))
	db.Add(f)
	db.Save()
	assert.True(t, db.HasSnapshot())

	loaded := NewClientDB(store)
	assert.NoError(t, loaded.Load())
	got, ok := loaded.TryGet("notes.txt")
	assert.True(t, ok)
	assert.True(t, f.DateModified.Equal(got.DateModified))
}

func TestLoadRefusesNewerSnapshot(t *testing.T) {
	fs = afero.NewMemMapFs()

	assert.NoError(t, afero.WriteFile(fs, "/state/catalog.yaml",
		[]byte("version: 99.0.0\n"), 0644))

	db := NewServerDB(NewStore("/state"))
	assert.Error(t, db.Load())
}

func TestLoadMissingSnapshot(t *testing.T) {
	fs = afero.NewMemMapFs()

	db := NewServerDB(NewStore("/state"))
	assert.NoError(t, db.Load())
	assert.Empty(t, db.FilesSnapshot())
}
