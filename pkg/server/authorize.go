package server

import (
	"time"

	"github.com/treeshare/treeshare/pkg/db"
	"github.com/treeshare/treeshare/pkg/proto"
)

// Authorize decides whether a group may perform op on path and returns the
// catalog record the operation targets. The only mutation it performs is
// materializing a new record for a permitted FILE_CREATED on an untracked
// path; a denied request never changes the catalog.
func Authorize(catalog *db.ServerDB, op proto.Command, group *db.Group,
	path string, now time.Time) (*db.File, bool) {

	file, tracked := catalog.TryGetFile(path)

	switch op {
	case proto.FileCreated:
		if tracked || !group.CanCreateFiles {
			return nil, false
		}
		return catalog.CreateNewFile(path, group, now), true
	case proto.FileChanged, proto.FileDeleted:
		if !tracked || !file.Test(group.Name, db.Write) {
			return nil, false
		}
		return file, true
	case proto.RequestFileContents:
		if !tracked || !file.Test(group.Name, db.Read) {
			return nil, false
		}
		return file, true
	}
	return nil, false
}
