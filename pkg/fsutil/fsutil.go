// Package fsutil provides the small filesystem capability surface the sync
// protocol relies on: existence and mtime checks, atomic replacement,
// timestamped backups, and a best-effort in-use probe.
package fsutil

import (
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"

	"github.com/treeshare/treeshare/pkg/errors"
)

// Exists reports whether path names an existing file.
func Exists(fs afero.Fs, path string) bool {
	exists, err := afero.Exists(fs, path)
	return err == nil && exists
}

// ModTime returns the file's modification time.
func ModTime(fs afero.Fs, path string) (time.Time, error) {
	fi, err := fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, errors.FileNotFound{Path: path}
		}
		return time.Time{}, errors.WithContext(err, "stat")
	}
	return fi.ModTime(), nil
}

// Delete removes a file if it exists. A missing file is not an error.
func Delete(fs afero.Fs, path string) error {
	if err := fs.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.WithContext(err, "remove")
	}
	return nil
}

// AtomicReplace moves tmp over real. The live file is only replaced once
// tmp holds complete contents; callers write the full payload to tmp first.
func AtomicReplace(fs afero.Fs, tmp, real string) error {
	if err := fs.MkdirAll(filepath.Dir(real), 0755); err != nil {
		return errors.WithContext(err, "make parent")
	}

	// Remove the destination first: not every filesystem renames over an
	// existing file.
	if err := Delete(fs, real); err != nil {
		return err
	}
	if err := fs.Rename(tmp, real); err != nil {
		return errors.WithContext(err, "rename")
	}
	return nil
}

// CreateEmpty creates an empty file (and any missing parent directories)
// and returns its modification time.
func CreateEmpty(fs afero.Fs, path string) (time.Time, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := fs.MkdirAll(dir, 0755); err != nil {
			return time.Time{}, errors.WithContext(err, "make parent")
		}
	}

	f, err := fs.Create(path)
	if err != nil {
		return time.Time{}, errors.WithContext(err, "create")
	}
	f.Close()

	return ModTime(fs, path)
}

// InUse reports whether another process appears to hold the file open for
// writing. The probe is best-effort: it tries to open the file for writing
// and reports in-use if that fails for any reason other than the file not
// existing.
func InUse(fs afero.Fs, path string) bool {
	f, err := fs.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return !os.IsNotExist(err)
	}
	f.Close()
	return false
}

const backupStampFormat = "2006-01-02_15_04_05"

// Backup copies src to backupRoot, preserving the tracked-relative layout
// given by rel and appending a timestamp, and returns the backup path. The
// caller treats failures as non-fatal; a failed backup must not block the
// mutation it precedes.
func Backup(fs afero.Fs, clock clockwork.Clock, backupRoot, rel, src string) (string, error) {
	backupPath := filepath.Join(backupRoot,
		rel+".bckp_"+clock.Now().Format(backupStampFormat))
	if err := fs.MkdirAll(filepath.Dir(backupPath), 0755); err != nil {
		return "", errors.WithContext(err, "make backup dir")
	}

	contents, err := afero.ReadFile(fs, src)
	if err != nil {
		return "", errors.WithContext(err, "read original")
	}
	if err := afero.WriteFile(fs, backupPath, contents, 0644); err != nil {
		return "", errors.WithContext(err, "write backup")
	}
	return backupPath, nil
}
