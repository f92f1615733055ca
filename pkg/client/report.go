package client

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/treeshare/treeshare/pkg/errors"
	"github.com/treeshare/treeshare/pkg/proto"
)

// takeChanges drains the change lists under the list lock.
func (c *Client) takeChanges() (created, changed, deleted []string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	created, changed, deleted = c.created, c.changed, c.deleted
	c.created, c.changed, c.deleted = nil, nil, nil
	return
}

// reportChanges opens one session and reports every queued change. When
// nothing is queued no session is opened at all. A session failure drops
// the remaining queue; the next scan rebuilds whatever still differs from
// disk.
func (c *Client) reportChanges() error {
	created, changed, deleted := c.takeChanges()
	if len(created)+len(changed)+len(deleted) == 0 {
		return nil
	}

	conn, err := c.dial()
	if err != nil {
		return err
	}
	defer conn.Close()

	for i, path := range created {
		if !c.creationAllowed() {
			// A refusal earlier in this batch applies to the rest of it.
			for _, rest := range created[i:] {
				c.db.Remove(rest)
			}
			break
		}
		if err := c.reportCreated(conn, path); err != nil {
			return err
		}
	}
	for _, path := range changed {
		if err := c.reportChanged(conn, path); err != nil {
			return err
		}
	}
	for _, path := range deleted {
		if err := c.reportDeleted(conn, path); err != nil {
			return err
		}
	}

	return conn.WriteCommand(proto.TransmissionEnd)
}

// reportCreated announces a new file. If the server refuses, this client's
// account evidently may not create files, so creation reporting is switched
// off and the provisional records are dropped.
func (c *Client) reportCreated(conn *proto.Conn, path string) error {
	verdict, err := c.announce(conn, proto.FileCreated, path)
	if err != nil {
		return err
	}
	if verdict != proto.Success {
		log.WithField("path", path).Info("Create refused, disabling creation reporting")
		c.disableCreation()
		c.db.Remove(path)
		return nil
	}
	return c.sendContents(conn, path)
}

func (c *Client) reportChanged(conn *proto.Conn, path string) error {
	verdict, err := c.announce(conn, proto.FileChanged, path)
	if err != nil {
		return err
	}
	if verdict != proto.Success {
		// No write access. Stop tracking the file so the denial isn't
		// repeated every cycle; a future push from the server re-tracks it.
		log.WithField("path", path).Info("Change refused, untracking")
		c.db.Remove(path)
		return nil
	}
	return c.sendContents(conn, path)
}

// reportDeleted announces a deletion and untracks the record without
// consulting the verdict. A refused delete therefore stays deleted locally
// while the server keeps the file; the server's copy comes back through the
// next reconciliation rather than through this session.
func (c *Client) reportDeleted(conn *proto.Conn, path string) error {
	if _, err := c.announce(conn, proto.FileDeleted, path); err != nil {
		return err
	}
	c.db.Remove(path)
	return nil
}

// announce sends op and path, then returns the server's verdict.
func (c *Client) announce(conn *proto.Conn, op proto.Command, path string) (proto.Command, error) {
	conn.SetDeadline(time.Now().Add(requestTimeout))
	if err := conn.WriteCommand(op); err != nil {
		return proto.None, errors.WithContext(err, "send command")
	}
	if err := conn.WriteLine(path); err != nil {
		return proto.None, errors.WithContext(err, "send path")
	}
	verdict, err := conn.ReadCommand()
	if err != nil {
		return proto.None, errors.WithContext(err, "read verdict")
	}
	return verdict, nil
}

func (c *Client) sendContents(conn *proto.Conn, path string) error {
	c.locks.Lock(path)
	defer c.locks.Unlock(path)

	src, err := c.fs.Open(c.localPath(path))
	if err != nil {
		// The file vanished between scan and report. Abort the block so
		// the server keeps its current contents.
		conn.WriteCommand(proto.Fail)
		return errors.WithContext(err, "open for report")
	}
	defer src.Close()

	if err := conn.SendContents(src); err != nil {
		return errors.WithContext(err, "send contents")
	}
	return nil
}

func (c *Client) disableCreation() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.canCreate = false

	// Drop any other provisional creations still queued; they would only
	// be refused one by one.
	for _, path := range c.created {
		c.db.Remove(path)
	}
	c.created = nil
}
