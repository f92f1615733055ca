package client

import (
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/treeshare/treeshare/pkg/db"
	"github.com/treeshare/treeshare/pkg/errors"
	"github.com/treeshare/treeshare/pkg/fsutil"
	"github.com/treeshare/treeshare/pkg/proto"
)

// reconcile aligns the local tree with the server's catalog at startup. The
// server streams every readable file with its timestamp; anything missing
// or older locally is pulled, and any local record the server no longer
// advertises is deleted. The server's catalog is authoritative here.
func (c *Client) reconcile(conn *proto.Conn) error {
	conn.SetDeadline(time.Now().Add(requestTimeout))
	if err := conn.WriteCommand(proto.RequestInitialInfo); err != nil {
		return errors.WithContext(err, "request initial info")
	}
	reply, err := conn.ReadCommand()
	if err != nil {
		return errors.WithContext(err, "read initial info reply")
	}

	advertised := map[string]struct{}{}
	var pulls []string
	switch reply {
	case proto.TransmissionEnd:
		// A bare terminator is an empty listing: this account can read
		// nothing right now. The purge below still applies.
	case proto.Success:
		for {
			conn.SetDeadline(time.Now().Add(requestTimeout))
			line, err := conn.ReadLine()
			if err != nil {
				return errors.WithContext(err, "read advertised path")
			}
			if proto.ParseCommand(line) == proto.TransmissionEnd {
				break
			}

			stampLine, err := conn.ReadLine()
			if err != nil {
				return errors.WithContext(err, "read advertised timestamp")
			}
			stamp, err := proto.ParseTime(stampLine)
			if err != nil {
				return errors.WithContext(err, "parse advertised timestamp")
			}

			advertised[line] = struct{}{}
			record, tracked := c.db.TryGet(line)
			if !tracked || record.OlderThan(stamp) {
				pulls = append(pulls, line)
			}
		}
	default:
		return errors.FramingError{Token: string(reply)}
	}

	for _, path := range pulls {
		if err := c.pull(conn, path); err != nil {
			log.WithError(err).WithField("path", path).Warn("Pull failed")
		}
	}

	// Local records the server didn't advertise are stale; the server's
	// catalog decides what this client keeps.
	for _, path := range c.db.Paths() {
		if _, ok := advertised[path]; ok {
			continue
		}
		c.locks.Lock(path)
		if err := fsutil.Delete(c.fs, c.localPath(path)); err != nil {
			log.WithError(err).WithField("path", path).Warn("Failed to delete stale file")
		}
		c.db.Remove(path)
		c.locks.Unlock(path)
	}
	return nil
}

// pull fetches one file's contents within the reconciliation session.
func (c *Client) pull(conn *proto.Conn, path string) error {
	conn.SetDeadline(time.Now().Add(requestTimeout))
	if err := conn.WriteCommand(proto.RequestFileContents); err != nil {
		return errors.WithContext(err, "request contents")
	}
	if err := conn.WriteLine(path); err != nil {
		return errors.WithContext(err, "send path")
	}
	reply, err := conn.ReadCommand()
	if err != nil {
		return errors.WithContext(err, "read verdict")
	}
	if reply != proto.Success {
		return errors.ErrAccessDenied
	}
	return c.receiveToFile(conn, path)
}

// receiveToFile shovels an incoming content block into the local file via a
// staging sibling, then stamps the record with the resulting disk mtime so
// the next scan doesn't mistake the write for a local edit.
func (c *Client) receiveToFile(conn *proto.Conn, path string) error {
	c.locks.Lock(path)
	defer c.locks.Unlock(path)

	local := c.localPath(path)
	tmp := local + ".tmp"

	if err := c.fs.MkdirAll(filepath.Dir(tmp), 0755); err != nil {
		return errors.WithContext(err, "make parent")
	}
	dst, err := c.fs.Create(tmp)
	if err != nil {
		return errors.WithContext(err, "stage transfer")
	}
	if err := conn.ReceiveContents(dst); err != nil {
		dst.Close()
		fsutil.Delete(c.fs, tmp)
		return errors.WithContext(err, "receive contents")
	}
	dst.Close()

	if err := fsutil.AtomicReplace(c.fs, tmp, local); err != nil {
		fsutil.Delete(c.fs, tmp)
		return errors.WithContext(err, "swap in transfer")
	}

	mtime, err := fsutil.ModTime(c.fs, local)
	if err != nil {
		return err
	}
	record, tracked := c.db.TryGet(path)
	if !tracked {
		record = db.NewFile(path)
		c.db.Add(record)
	}
	record.Touch(mtime)
	return nil
}
