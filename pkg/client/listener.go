package client

import (
	"io/ioutil"
	"net"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/treeshare/treeshare/pkg/fsutil"
	"github.com/treeshare/treeshare/pkg/proto"
)

// acceptLoop serves pushed changes from the server. Each notification
// arrives on its own short-lived connection.
func (c *Client) acceptLoop(listener net.Listener) {
	for {
		raw, err := listener.Accept()
		if err != nil {
			select {
			case <-c.stop:
			default:
				log.WithError(err).Error("Push listener accept failed")
			}
			return
		}
		go c.handlePush(proto.NewConn(raw))
	}
}

// acceptable rejects pushed paths that would land outside the tracked
// directory.
func acceptable(path string) bool {
	return path != "" && !strings.HasPrefix(path, "/") &&
		path != ".." && !strings.HasPrefix(path, "../") &&
		!strings.Contains(path, "/../")
}

func (c *Client) handlePush(conn *proto.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(requestTimeout))

	op, err := conn.ReadCommand()
	if err != nil {
		return
	}
	path, err := conn.ReadLine()
	if err != nil {
		return
	}

	pushLog := log.WithFields(log.Fields{
		"command": string(op),
		"path":    path,
	})

	switch op {
	case proto.FileCreated, proto.FileChanged:
		if !acceptable(path) {
			// A declined push sends no contents; the server drops the
			// connection after reading the verdict.
			pushLog.Warn("Declining push outside tracked tree")
			conn.WriteCommand(proto.Fail)
			return
		}
		if err := conn.WriteCommand(proto.Success); err != nil {
			return
		}
		if err := c.receiveToFile(conn, path); err != nil {
			pushLog.WithError(err).Warn("Failed to apply pushed contents")
			return
		}
		pushLog.Info("Applied pushed change")
	case proto.FileDeleted:
		// The trailing TRANSMISSION_END is drained so the server never
		// sees a half-read connection.
		conn.ReceiveContents(ioutil.Discard)
		if !acceptable(path) {
			pushLog.Warn("Declining delete outside tracked tree")
			return
		}
		c.applyPushedDelete(path)
		pushLog.Info("Applied pushed delete")
	default:
		pushLog.Warn("Unrecognized push token")
	}

	c.db.Save()
}

func (c *Client) applyPushedDelete(path string) {
	c.locks.Lock(path)
	defer c.locks.Unlock(path)

	if err := fsutil.Delete(c.fs, c.localPath(path)); err != nil {
		log.WithError(err).WithField("path", path).Warn("Failed to delete pushed file")
	}
	c.db.Remove(path)
}
