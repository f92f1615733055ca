package server

import (
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/treeshare/treeshare/pkg/db"
	"github.com/treeshare/treeshare/pkg/proto"
)

// handoff leases a private port, tells the client where to find it, and runs
// the session on the private connection. The rendezvous socket only ever
// carries the single handoff line.
func (s *Server) handoff(raw net.Conn) {
	rendezvous := proto.NewConn(raw)
	defer rendezvous.Close()

	port, err := s.pool.Lease()
	if err != nil {
		log.WithError(err).Warn("Turning client away, no free ports")
		rendezvous.WriteLine(proto.FormatHandoff(proto.HandoffFailure))
		return
	}
	defer s.pool.Release(port)

	private, err := net.Listen("tcp",
		net.JoinHostPort(s.cfg.Address, strconv.Itoa(port)))
	if err != nil {
		log.WithError(err).WithField("port", port).Error("Failed to bind leased port")
		rendezvous.WriteLine(proto.FormatHandoff(proto.HandoffFailure))
		return
	}

	if err := rendezvous.WriteLine(proto.FormatHandoff(port)); err != nil {
		private.Close()
		return
	}

	// The client is expected to redial promptly. If it doesn't, release the
	// lease rather than holding the port forever.
	if tcp, ok := private.(*net.TCPListener); ok {
		tcp.SetDeadline(time.Now().Add(s.sessionTimeout()))
	}
	sessionRaw, err := private.Accept()
	private.Close()
	if err != nil {
		log.WithError(err).WithField("port", port).Debug("Client never redialed")
		return
	}
	rendezvous.Close()

	conn := proto.NewConn(sessionRaw)
	defer conn.Close()

	sess := &session{
		server: s,
		conn:   conn,
		log: log.WithFields(log.Fields{
			"session": uuid.New().String(),
			"remote":  conn.RemoteAddr().String(),
		}),
	}
	sess.run()
}

type session struct {
	server *Server
	conn   *proto.Conn
	user   *db.User
	log    *log.Entry
}

// run drives one client session. Handlers return false to drop the session,
// which is the only recovery from a framing violation: once reader and
// writer disagree about where a message ends there is nothing left to parse.
func (sess *session) run() {
	for {
		sess.conn.SetDeadline(time.Now().Add(sess.server.sessionTimeout()))
		cmd, err := sess.conn.ReadCommand()
		if err != nil {
			sess.log.WithError(err).Debug("Session closed")
			return
		}

		if sess.user == nil && cmd != proto.Authenticate && cmd != proto.Register {
			sess.log.WithField("command", string(cmd)).
				Warn("Command before authentication, dropping session")
			return
		}

		ok := false
		switch cmd {
		case proto.Authenticate:
			ok = sess.handleAuthenticate()
		case proto.Register:
			ok = sess.handleRegister()
		case proto.FileCreated, proto.FileChanged, proto.FileDeleted:
			ok = sess.handleFileUpdate(cmd)
		case proto.RequestInitialInfo:
			ok = sess.sendInitialInfo()
		case proto.RequestFileContents:
			ok = sess.handleFileRequest()
		case proto.NewConnection:
			ok = sess.handleNewConnection()
		case proto.TransmissionEnd:
			sess.log.Debug("Session ended by client")
			return
		default:
			sess.log.Warn("Unrecognized token, dropping session")
			return
		}
		if !ok {
			return
		}
	}
}

func (sess *session) handleAuthenticate() bool {
	name, err := sess.conn.ReadLine()
	if err != nil {
		return false
	}
	digest, err := sess.conn.ReadLine()
	if err != nil {
		return false
	}

	user, ok := sess.server.db.TryGetUser(name)
	if !ok || !user.Authenticate(digest) {
		sess.log.WithField("user", name).Info("Authentication failed")
		sess.conn.WriteCommand(proto.Fail)
		return false
	}

	sess.bindUser(user)
	sess.log.Info("Authenticated")
	return sess.conn.WriteCommand(proto.Success) == nil
}

func (sess *session) handleRegister() bool {
	name, err := sess.conn.ReadLine()
	if err != nil {
		return false
	}
	digest, err := sess.conn.ReadLine()
	if err != nil {
		return false
	}

	user := db.NewUser(name, db.SaltedDigest(name, digest))
	if !sess.server.db.AddUser(user) {
		sess.log.WithField("user", name).Info("Registration refused, name taken")
		sess.conn.WriteCommand(proto.Fail)
		return false
	}

	sess.bindUser(user)
	sess.server.db.Save()
	sess.log.Info("Registered new user")
	return sess.conn.WriteCommand(proto.Success) == nil
}

// bindUser attaches the session to a user and records where that user can
// be reached for push notifications. The port half arrives separately via
// NEW_CONNECTION.
func (sess *session) bindUser(user *db.User) {
	sess.user = user
	if host, _, err := net.SplitHostPort(sess.conn.RemoteAddr().String()); err == nil {
		user.ListenAddress = host
	}
	sess.log = sess.log.WithField("user", user.Name)
}

func (sess *session) handleNewConnection() bool {
	line, err := sess.conn.ReadLine()
	if err != nil {
		return false
	}
	port, err := strconv.Atoi(line)
	if err != nil {
		sess.log.WithField("line", line).Warn("Bad listen port, dropping session")
		return false
	}
	if port <= 0 {
		// Not a dialable port. Leave the endpoint unknown so broadcasts
		// don't waste a dial timeout on it.
		sess.log.WithField("port", port).Warn("Undialable listen port, ignoring")
		sess.user.ListenPort = db.UnknownListenPort
		return true
	}
	sess.user.ListenPort = port
	return true
}

// sendInitialInfo streams the path and modification time of every file the
// session's group may read, so the client can reconcile its local tree. A
// user whose group cannot be resolved can read nothing, which is conveyed
// as a bare terminator rather than a dead session.
func (sess *session) sendInitialInfo() bool {
	group, ok := sess.server.db.GroupOf(sess.user)
	if !ok {
		sess.log.Warn("User has no resolvable group, sending empty listing")
		return sess.conn.WriteCommand(proto.TransmissionEnd) == nil
	}

	if sess.conn.WriteCommand(proto.Success) != nil {
		return false
	}
	for _, f := range sess.server.db.FilesSnapshot() {
		if !f.Test(group.Name, db.Read) {
			continue
		}
		if sess.conn.WriteLine(f.Path) != nil ||
			sess.conn.WriteLine(proto.FormatTime(f.DateModified)) != nil {
			return false
		}
	}
	return sess.conn.WriteCommand(proto.TransmissionEnd) == nil
}

// handleFileRequest serves one file's contents to a client that is pulling
// during reconciliation.
func (sess *session) handleFileRequest() bool {
	path, err := sess.conn.ReadLine()
	if err != nil {
		return false
	}

	group, ok := sess.server.db.GroupOf(sess.user)
	if !ok {
		sess.log.Warn("User has no resolvable group, refusing read")
		return sess.conn.WriteCommand(proto.Fail) == nil
	}

	rel, ok := cleanPath(path)
	if !ok {
		sess.log.WithField("path", path).Warn("Refusing path outside tree")
		return sess.conn.WriteCommand(proto.Fail) == nil
	}

	file, allowed := Authorize(sess.server.db, proto.RequestFileContents,
		group, rel, time.Time{})
	if !allowed {
		sess.log.WithField("path", rel).Info("Read denied")
		return sess.conn.WriteCommand(proto.Fail) == nil
	}

	if sess.conn.WriteCommand(proto.Success) != nil {
		return false
	}
	return sess.sendFile(file.Path)
}

func (sess *session) sendFile(path string) bool {
	sess.server.locks.Lock(path)
	defer sess.server.locks.Unlock(path)

	src, err := sess.server.fs.Open(sess.server.absPath(path))
	if err != nil {
		sess.log.WithError(err).WithField("path", path).Error("Failed to open tracked file")
		return sess.conn.WriteCommand(proto.Fail) == nil
	}
	defer src.Close()

	if err := sess.conn.SendContents(src); err != nil {
		sess.log.WithError(err).WithField("path", path).Warn("Transfer failed")
		return false
	}
	return true
}

// handleFileUpdate applies a client-reported create, change, or delete to
// the shared tree and fans the accepted change out to the other clients.
func (sess *session) handleFileUpdate(op proto.Command) bool {
	path, err := sess.conn.ReadLine()
	if err != nil {
		return false
	}

	group, ok := sess.server.db.GroupOf(sess.user)
	if !ok {
		sess.log.Warn("User has no resolvable group, refusing update")
		return sess.conn.WriteCommand(proto.Fail) == nil
	}

	rel, ok := cleanPath(path)
	if !ok {
		sess.log.WithField("path", path).Warn("Refusing path outside tree")
		return sess.conn.WriteCommand(proto.Fail) == nil
	}

	file, allowed := Authorize(sess.server.db, op, group, rel,
		sess.server.clock.Now())
	if !allowed {
		sess.log.WithFields(log.Fields{
			"command": string(op),
			"path":    rel,
		}).Info("Update denied")
		return sess.conn.WriteCommand(proto.Fail) == nil
	}

	if sess.conn.WriteCommand(proto.Success) != nil {
		return false
	}

	switch op {
	case proto.FileDeleted:
		sess.server.deleteFile(file)
	default:
		if !sess.receiveFile(file, op) {
			return false
		}
	}

	sess.server.informAll(sess.user, op, rel)
	sess.server.db.Save()
	return true
}
