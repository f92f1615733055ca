package server

import (
	"net"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/treeshare/treeshare/pkg/db"
	"github.com/treeshare/treeshare/pkg/errors"
	"github.com/treeshare/treeshare/pkg/proto"
)

var notifyDialTimeout = 5 * time.Second

// informAll pushes an accepted change to every registered client other than
// the one that reported it. Delivery is best effort: an unreachable or
// failing recipient is logged and skipped, never retried, and never blocks
// the others.
func (s *Server) informAll(actor *db.User, op proto.Command, path string) {
	var file *db.File
	if op != proto.FileDeleted {
		var tracked bool
		file, tracked = s.db.TryGetFile(path)
		if !tracked {
			return
		}
	}

	for _, user := range s.db.UsersSnapshot() {
		if actor != nil && user.Name == actor.Name {
			continue
		}
		if !user.Reachable() {
			continue
		}
		if file != nil {
			group, ok := s.db.GroupOf(user)
			if !ok || !file.Test(group.Name, db.Read) {
				continue
			}
		}

		if err := s.notifyOne(user, op, path); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"user": user.Name,
				"path": path,
			}).Warn("Failed to deliver notification")
		}
	}
}

func (s *Server) notifyOne(user *db.User, op proto.Command, path string) error {
	addr := net.JoinHostPort(user.ListenAddress, strconv.Itoa(user.ListenPort))
	raw, err := net.DialTimeout("tcp", addr, notifyDialTimeout)
	if err != nil {
		return errors.WithContext(err, "dial listener")
	}
	conn := proto.NewConn(raw)
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(s.sessionTimeout()))

	if err := conn.WriteCommand(op); err != nil {
		return errors.WithContext(err, "send command")
	}
	if err := conn.WriteLine(path); err != nil {
		return errors.WithContext(err, "send path")
	}

	if op == proto.FileDeleted {
		return conn.WriteCommand(proto.TransmissionEnd)
	}

	ack, err := conn.ReadCommand()
	if err != nil {
		return errors.WithContext(err, "read ack")
	}
	if ack != proto.Success {
		// The recipient declined, typically because the path is outside
		// its tracked subtree. Not an error.
		return nil
	}

	s.locks.Lock(path)
	defer s.locks.Unlock(path)

	src, err := s.fs.Open(s.absPath(path))
	if err != nil {
		conn.WriteCommand(proto.Fail)
		return errors.WithContext(err, "open tracked file")
	}
	defer src.Close()

	if err := conn.SendContents(src); err != nil {
		return errors.WithContext(err, "send contents")
	}
	return nil
}
