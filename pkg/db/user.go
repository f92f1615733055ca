package db

import (
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// UnknownListenPort marks a user whose push listener endpoint hasn't been
// registered this session.
const UnknownListenPort = -1

// User is one account. The listen endpoint is session-scoped: it is set by
// the NEW_CONNECTION handshake and deliberately not serialized, so a
// reloaded catalog starts with every user unreachable for pushes.
type User struct {
	Name           string `json:"name"`
	PasswordDigest string `json:"passwordDigest"`
	Group          string `json:"group"`

	ListenAddress string `json:"-"`
	ListenPort    int    `json:"-"`
}

// NewUser creates an account in the default group with no reachable
// listener.
func NewUser(name, passwordDigest string) *User {
	return &User{
		Name:           name,
		PasswordDigest: passwordDigest,
		Group:          DefaultGroupName,
		ListenPort:     UnknownListenPort,
	}
}

// Authenticate checks a transport digest against the stored credential.
func (u *User) Authenticate(digest string) bool {
	return u.PasswordDigest == SaltedDigest(u.Name, digest)
}

// Reachable reports whether the user registered a push listener endpoint
// this session.
func (u *User) Reachable() bool {
	return u.ListenAddress != "" && u.ListenPort != UnknownListenPort
}

// Digest hashes a password for transport. The cleartext never crosses the
// wire; clients send this digest instead.
func Digest(password string) string {
	sum := sha3.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// SaltedDigest derives the stored credential from the user name and the
// transport digest, so identical passwords don't share stored digests.
func SaltedDigest(name, digest string) string {
	return Digest(name + digest)
}
