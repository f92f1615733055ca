package db

import (
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// ServerDB is the server's catalog: files, users and groups. The table
// structure (adding and removing records) is guarded by one lock; the
// contents of an individual File record are additionally serialized by the
// server's per-path locks during mutations.
type ServerDB struct {
	lock   sync.RWMutex
	files  map[string]*File
	users  map[string]*User
	groups map[string]*Group

	store *Store
}

// NewServerDB creates an empty catalog persisted through store.
func NewServerDB(store *Store) *ServerDB {
	return &ServerDB{
		files:  map[string]*File{},
		users:  map[string]*User{},
		groups: map[string]*Group{},
		store:  store,
	}
}

// TryGetFile looks up a file record by path.
func (db *ServerDB) TryGetFile(path string) (*File, bool) {
	db.lock.RLock()
	defer db.lock.RUnlock()

	f, ok := db.files[path]
	return f, ok
}

// FileTracked reports whether a record exists for path.
func (db *ServerDB) FileTracked(path string) bool {
	_, ok := db.TryGetFile(path)
	return ok
}

// RemoveFile drops the record for path.
func (db *ServerDB) RemoveFile(path string) {
	db.lock.Lock()
	defer db.lock.Unlock()

	delete(db.files, path)
}

// FilesSnapshot returns the current file records. The slice is a copy; the
// records are the live ones.
func (db *ServerDB) FilesSnapshot() []*File {
	db.lock.RLock()
	defer db.lock.RUnlock()

	files := make([]*File, 0, len(db.files))
	for _, f := range db.files {
		files = append(files, f)
	}
	return files
}

// CreateNewFile materializes a record for path, granting READ_WRITE to the
// creating group and every other group its default right. If a record
// already exists it is returned unchanged. A nil-name creator (admin
// console) grants only defaults.
func (db *ServerDB) CreateNewFile(path string, creator *Group, now time.Time) *File {
	db.lock.Lock()
	defer db.lock.Unlock()

	if f, ok := db.files[path]; ok {
		return f
	}

	f := NewFile(path)
	f.DateModified = now
	for _, g := range db.groups {
		if creator != nil && g.Name == creator.Name {
			f.AddRight(g.Name, ReadWrite)
		} else {
			f.AddRight(g.Name, g.DefaultRight)
		}
	}
	db.files[path] = f
	return f
}

// TryGetUser looks up an account by name.
func (db *ServerDB) TryGetUser(name string) (*User, bool) {
	db.lock.RLock()
	defer db.lock.RUnlock()

	u, ok := db.users[name]
	return u, ok
}

// AddUser inserts an account. It returns false when the name is taken.
func (db *ServerDB) AddUser(u *User) bool {
	db.lock.Lock()
	defer db.lock.Unlock()

	if _, taken := db.users[u.Name]; taken {
		return false
	}
	db.users[u.Name] = u
	if g, ok := db.groups[u.Group]; ok {
		g.AddMember(u.Name)
	}
	return true
}

// UsersSnapshot returns the current accounts. The slice is a copy; the
// records are the live ones.
func (db *ServerDB) UsersSnapshot() []*User {
	db.lock.RLock()
	defer db.lock.RUnlock()

	users := make([]*User, 0, len(db.users))
	for _, u := range db.users {
		users = append(users, u)
	}
	return users
}

// TryGetGroup looks up a group by name.
func (db *ServerDB) TryGetGroup(name string) (*Group, bool) {
	db.lock.RLock()
	defer db.lock.RUnlock()

	g, ok := db.groups[name]
	return g, ok
}

// GroupOf resolves the group of a user.
func (db *ServerDB) GroupOf(u *User) (*Group, bool) {
	if u == nil {
		return nil, false
	}
	return db.TryGetGroup(u.Group)
}

// CreateNewGroup creates a group and stamps its default right onto every
// tracked file. It returns false when the name is taken.
func (db *ServerDB) CreateNewGroup(name string, defaultRight AccessRight, canCreateFiles bool) bool {
	db.lock.Lock()
	defer db.lock.Unlock()

	if _, taken := db.groups[name]; taken {
		return false
	}

	g := NewGroup(name)
	g.DefaultRight = defaultRight
	g.CanCreateFiles = canCreateFiles
	db.groups[name] = g

	for _, f := range db.files {
		f.AddRight(name, defaultRight)
	}
	return true
}

// MoveUserToGroup re-homes a user, fixing both member lists. Unknown user
// or group names are ignored.
func (db *ServerDB) MoveUserToGroup(userName, groupName string) {
	db.lock.Lock()
	defer db.lock.Unlock()

	u, ok := db.users[userName]
	if !ok {
		return
	}
	target, ok := db.groups[groupName]
	if !ok {
		return
	}

	if old, ok := db.groups[u.Group]; ok {
		old.RemoveMember(userName)
	}
	u.Group = target.Name
	target.AddMember(userName)
}

// AddRightToGroup grants a right on one file. Granting NONE replaces the
// entry instead, so an admin can revoke everything in one step.
func (db *ServerDB) AddRightToGroup(path, group string, right AccessRight) bool {
	f, ok := db.TryGetFile(path)
	if !ok {
		return false
	}
	if _, ok := db.TryGetGroup(group); !ok {
		return false
	}

	if right == NoAccess {
		f.SetRight(group, right)
	} else {
		f.AddRight(group, right)
	}
	return true
}

// RemoveRightFromGroup withdraws a right on one file.
func (db *ServerDB) RemoveRightFromGroup(path, group string, right AccessRight) bool {
	f, ok := db.TryGetFile(path)
	if !ok {
		return false
	}
	if _, ok := db.TryGetGroup(group); !ok {
		return false
	}

	f.RemoveRight(group, right)
	return true
}

// AddRightToSubtree grants a right on every tracked file under the given
// path prefix.
func (db *ServerDB) AddRightToSubtree(group string, right AccessRight, prefix string) {
	db.lock.RLock()
	defer db.lock.RUnlock()

	for _, f := range db.files {
		if strings.HasPrefix(f.Path, prefix) {
			f.AddRight(group, right)
		}
	}
}

// EnsureDefaultGroup creates the default group if the loaded catalog lacks
// it (e.g. after snapshot corruption) and repairs membership
// back-references for users that point at it.
func (db *ServerDB) EnsureDefaultGroup() {
	db.lock.Lock()
	if _, ok := db.groups[DefaultGroupName]; !ok {
		g := NewGroup(DefaultGroupName)
		g.CanCreateFiles = false
		g.DefaultRight = NoAccess
		db.groups[DefaultGroupName] = g

		for _, f := range db.files {
			f.AddRight(DefaultGroupName, Read)
		}
		for _, u := range db.users {
			if u.Group == DefaultGroupName {
				g.AddMember(u.Name)
			}
		}
	}
	db.lock.Unlock()
}

// Save persists the catalog. Failures are logged rather than propagated:
// the catalog stays authoritative in memory and the next periodic save will
// retry. A nil store keeps the catalog in memory only.
func (db *ServerDB) Save() {
	if db.store == nil {
		return
	}
	db.lock.RLock()
	snapshot := serverSnapshot{
		Version: SnapshotVersion,
		Files:   sortedFiles(db.files),
		Users:   sortedUsers(db.users),
		Groups:  sortedGroups(db.groups),
	}
	db.lock.RUnlock()

	if err := db.store.save(serverSnapshotFile, snapshot); err != nil {
		log.WithError(err).Error("Failed to save catalog")
	}
}

// Load replaces the in-memory tables with the persisted snapshot. A missing
// snapshot leaves the catalog empty. Group membership back-references are
// repaired from the authoritative user records.
func (db *ServerDB) Load() error {
	if db.store == nil {
		return nil
	}
	var snapshot serverSnapshot
	found, err := db.store.load(serverSnapshotFile, &snapshot)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	db.lock.Lock()
	defer db.lock.Unlock()

	db.files = map[string]*File{}
	for _, f := range snapshot.Files {
		db.files[f.Path] = f
	}
	db.groups = map[string]*Group{}
	for _, g := range snapshot.Groups {
		g.Members = nil
		db.groups[g.Name] = g
	}
	db.users = map[string]*User{}
	for _, u := range snapshot.Users {
		u.ListenAddress = ""
		u.ListenPort = UnknownListenPort
		db.users[u.Name] = u
		if g, ok := db.groups[u.Group]; ok {
			g.AddMember(u.Name)
		}
	}
	return nil
}
