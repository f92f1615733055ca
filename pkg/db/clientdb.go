package db

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// ClientDB is the client's catalog. It tracks only the files under the
// synchronized subtree; groups and users are a server concept.
type ClientDB struct {
	lock  sync.RWMutex
	files map[string]*File

	store *Store
}

// NewClientDB creates an empty client catalog persisted through store.
func NewClientDB(store *Store) *ClientDB {
	return &ClientDB{
		files: map[string]*File{},
		store: store,
	}
}

// TryGet looks up a file record by path.
func (db *ClientDB) TryGet(path string) (*File, bool) {
	db.lock.RLock()
	defer db.lock.RUnlock()

	f, ok := db.files[path]
	return f, ok
}

// Tracked reports whether a record exists for path.
func (db *ClientDB) Tracked(path string) bool {
	_, ok := db.TryGet(path)
	return ok
}

// Add inserts or replaces a record.
func (db *ClientDB) Add(f *File) {
	db.lock.Lock()
	defer db.lock.Unlock()

	db.files[f.Path] = f
}

// Remove untracks a path.
func (db *ClientDB) Remove(path string) {
	db.lock.Lock()
	defer db.lock.Unlock()

	delete(db.files, path)
}

// Paths returns every tracked path.
func (db *ClientDB) Paths() []string {
	db.lock.RLock()
	defer db.lock.RUnlock()

	paths := make([]string, 0, len(db.files))
	for path := range db.files {
		paths = append(paths, path)
	}
	return paths
}

// Count returns the number of tracked paths.
func (db *ClientDB) Count() int {
	db.lock.RLock()
	defer db.lock.RUnlock()

	return len(db.files)
}

// Touch bumps the record's timestamp if the path is tracked.
func (db *ClientDB) Touch(path string, t time.Time) {
	if f, ok := db.TryGet(path); ok {
		f.Touch(t)
	}
}

// Save persists the catalog, logging rather than propagating failures. A
// nil store keeps the catalog in memory only.
func (db *ClientDB) Save() {
	if db.store == nil {
		return
	}
	db.lock.RLock()
	snapshot := clientSnapshot{
		Version: SnapshotVersion,
		Files:   sortedFiles(db.files),
	}
	db.lock.RUnlock()

	if err := db.store.save(clientSnapshotFile, snapshot); err != nil {
		log.WithError(err).Error("Failed to save catalog")
	}
}

// HasSnapshot reports whether a persisted snapshot exists, so the caller
// can decide between loading it and seeding with a directory scan.
func (db *ClientDB) HasSnapshot() bool {
	return db.store != nil && db.store.exists(clientSnapshotFile)
}

// Load replaces the in-memory table with the persisted snapshot.
func (db *ClientDB) Load() error {
	if db.store == nil {
		return nil
	}
	var snapshot clientSnapshot
	found, err := db.store.load(clientSnapshotFile, &snapshot)
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
		// Access lists mean nothing on the client; drop any that leaked in.
		f.Access = nil
		db.files[f.Path] = f
	}
	return nil
}
