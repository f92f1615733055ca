package server

import (
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/treeshare/treeshare/pkg/db"
	"github.com/treeshare/treeshare/pkg/fsutil"
	"github.com/treeshare/treeshare/pkg/proto"
)

// cleanPath normalizes a client-supplied path and rejects anything that
// would escape the shared tree.
func cleanPath(path string) (string, bool) {
	if path == "" {
		return "", false
	}
	rel := filepath.Clean(filepath.FromSlash(path))
	if filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// deleteFile removes a tracked file from disk and from the catalog. If the
// disk removal fails the catalog record is kept so the file stays visible
// and a later delete can retry.
func (s *Server) deleteFile(file *db.File) {
	s.locks.Lock(file.Path)
	defer s.locks.Unlock(file.Path)

	abs := s.absPath(file.Path)
	if _, err := fsutil.Backup(s.fs, s.clock, s.cfg.BackupDirectory,
		file.Path, abs); err != nil {
		log.WithError(err).WithField("path", file.Path).Warn("Backup before delete failed")
	}

	if err := fsutil.Delete(s.fs, abs); err != nil {
		log.WithError(err).WithField("path", file.Path).Error("Failed to delete tracked file")
		return
	}
	s.db.RemoveFile(file.Path)
}

// receiveFile shovels an incoming content block into the tracked file. The
// payload lands in a temporary sibling first so a failed transfer never
// clobbers the live file, and the record is stamped with the server clock
// only once the swap succeeds.
func (sess *session) receiveFile(file *db.File, op proto.Command) bool {
	s := sess.server
	s.locks.Lock(file.Path)
	defer s.locks.Unlock(file.Path)

	abs := s.absPath(file.Path)
	if op == proto.FileChanged {
		if _, err := fsutil.Backup(s.fs, s.clock, s.cfg.BackupDirectory,
			file.Path, abs); err != nil {
			sess.log.WithError(err).WithField("path", file.Path).
				Warn("Backup before overwrite failed")
		}
	}

	tmp := abs + ".tmp"
	if err := s.fs.MkdirAll(filepath.Dir(tmp), 0755); err != nil {
		sess.log.WithError(err).WithField("path", file.Path).Error("Failed to make parent")
		return false
	}
	dst, err := s.fs.Create(tmp)
	if err != nil {
		sess.log.WithError(err).WithField("path", file.Path).Error("Failed to stage transfer")
		return false
	}

	if err := sess.conn.ReceiveContents(dst); err != nil {
		dst.Close()
		fsutil.Delete(s.fs, tmp)
		sess.log.WithError(err).WithField("path", file.Path).Warn("Transfer failed")
		return false
	}
	dst.Close()

	if err := fsutil.AtomicReplace(s.fs, tmp, abs); err != nil {
		fsutil.Delete(s.fs, tmp)
		sess.log.WithError(err).WithField("path", file.Path).Error("Failed to swap in transfer")
		return false
	}

	file.Touch(s.clock.Now())
	return true
}
