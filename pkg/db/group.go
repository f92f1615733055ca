package db

// DefaultGroupName is the group new registrations land in. It is created on
// server start if the loaded catalog lacks it.
const DefaultGroupName = "default"

// Group is a named set of users sharing file rights. Members is a
// back-reference kept for administration; the authoritative user→group edge
// lives on the User record, and Load repairs any drift between the two.
type Group struct {
	Name           string      `json:"name"`
	CanCreateFiles bool        `json:"canCreateFiles"`
	DefaultRight   AccessRight `json:"defaultRight"`
	Members        []string    `json:"members,omitempty"`
}

// NewGroup creates an empty group.
func NewGroup(name string) *Group {
	return &Group{Name: name}
}

// AddMember records the user as a member. Duplicates are ignored.
func (g *Group) AddMember(user string) {
	if g.HasMember(user) {
		return
	}
	g.Members = append(g.Members, user)
}

// RemoveMember drops the user from the member list.
func (g *Group) RemoveMember(user string) {
	for i, member := range g.Members {
		if member == user {
			g.Members = append(g.Members[:i], g.Members[i+1:]...)
			return
		}
	}
}

// HasMember reports whether user is on the member list.
func (g *Group) HasMember(user string) bool {
	for _, member := range g.Members {
		if member == user {
			return true
		}
	}
	return false
}
