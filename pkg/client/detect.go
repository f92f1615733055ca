package client

import (
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/treeshare/treeshare/pkg/db"
	"github.com/treeshare/treeshare/pkg/fsutil"
)

// ignored reports whether the detector should pretend a path does not
// exist. Staging files are always ignored so a half-received push is never
// reported back to the server.
func (c *Client) ignored(path string) bool {
	if strings.HasSuffix(path, ".tmp") {
		return true
	}
	for _, suffix := range c.cfg.IgnoredSuffixes {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return false
}

// walkTree calls visit with the tracked-relative path and mtime of every
// non-ignored file under the tracked directory. The directory is created
// if it doesn't exist yet.
func (c *Client) walkTree(visit func(rel string, info os.FileInfo)) error {
	root := c.cfg.TrackedDirectory
	if err := c.fs.MkdirAll(root, 0755); err != nil {
		return err
	}

	return afero.Walk(c.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || c.ignored(path) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		visit(filepath.ToSlash(rel), info)
		return nil
	})
}

// seed fills an empty catalog from a full scan of the tracked directory.
// Nothing is queued for reporting: on first contact the server's catalog
// wins and reconciliation sorts out the difference.
func (c *Client) seed() error {
	count := 0
	err := c.walkTree(func(rel string, info os.FileInfo) {
		f := db.NewFile(rel)
		f.DateModified = info.ModTime()
		c.db.Add(f)
		count++
	})
	if err != nil {
		return err
	}
	log.WithField("files", count).Info("Seeded catalog from directory scan")
	return nil
}

// detectChanges scans the tracked directory and refreshes the change lists.
// A file that is open for writing elsewhere is counted as seen but not
// reported; it will be picked up once the writer lets go.
func (c *Client) detectChanges() {
	checked := map[string]struct{}{}

	err := c.walkTree(func(rel string, info os.FileInfo) {
		checked[rel] = struct{}{}

		c.locks.Lock(rel)
		defer c.locks.Unlock(rel)

		record, tracked := c.db.TryGet(rel)
		if !tracked {
			if !c.creationAllowed() {
				return
			}
			if fsutil.InUse(c.fs, c.localPath(rel)) {
				return
			}
			f := db.NewFile(rel)
			f.DateModified = info.ModTime()
			c.db.Add(f)
			c.queue(&c.created, rel)
			return
		}

		if record.OlderThan(info.ModTime()) {
			if fsutil.InUse(c.fs, c.localPath(rel)) {
				return
			}
			record.Touch(info.ModTime())
			c.queue(&c.changed, rel)
		}
	})
	if err != nil {
		log.WithError(err).Warn("Directory scan failed")
		return
	}

	// Anything tracked that the scan didn't see is gone.
	for _, path := range c.db.Paths() {
		if _, seen := checked[path]; !seen {
			c.queue(&c.deleted, path)
		}
	}
}

func (c *Client) creationAllowed() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.canCreate
}

// queue appends a path to a change list unless it is already queued.
func (c *Client) queue(list *[]string, path string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	for _, queued := range *list {
		if queued == path {
			return
		}
	}
	*list = append(*list, path)
}
