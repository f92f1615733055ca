package db

// AccessRight is a bitmask of the operations a group may perform on a file.
type AccessRight int

const (
	// NoAccess grants nothing. It is also the implied right for groups with
	// no entry on a file's access list.
	NoAccess AccessRight = 0

	// Write allows changing and deleting the file.
	Write AccessRight = 1

	// Read allows reading the file and receiving pushes for it.
	Read AccessRight = 2

	// ReadWrite grants both.
	ReadWrite AccessRight = Read | Write
)

var rightNames = map[string]AccessRight{
	"NONE":       NoAccess,
	"READ":       Read,
	"WRITE":      Write,
	"READ_WRITE": ReadWrite,
}

// ParseAccessRight decodes a right name. Unrecognized input yields NoAccess
// rather than an error so that admin console typos deny instead of crash.
func ParseAccessRight(name string) AccessRight {
	if right, ok := rightNames[name]; ok {
		return right
	}
	return NoAccess
}

func (r AccessRight) String() string {
	switch r {
	case Read:
		return "READ"
	case Write:
		return "WRITE"
	case ReadWrite:
		return "READ_WRITE"
	}
	return "NONE"
}

// Contains reports whether r includes every bit of asked. The check is exact
// containment: asking for READ_WRITE is only satisfied by both bits.
func (r AccessRight) Contains(asked AccessRight) bool {
	return r&asked == asked
}
