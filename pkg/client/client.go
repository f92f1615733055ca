// Package client implements the tracking client: it watches a local
// directory, reports changes to the server on a periodic cycle, and accepts
// pushed changes from the server on a listener socket.
package client

import (
	"net"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/treeshare/treeshare/pkg/config"
	"github.com/treeshare/treeshare/pkg/db"
	"github.com/treeshare/treeshare/pkg/errors"
	"github.com/treeshare/treeshare/pkg/fswatch"
	"github.com/treeshare/treeshare/pkg/pathlock"
	"github.com/treeshare/treeshare/pkg/proto"
)

// requestTimeout bounds every blocking read and write on a session socket.
var requestTimeout = 10 * time.Second

// Client drives one synchronized directory. The periodic sync cycle and
// the push listener run concurrently and share the catalog, the change
// lists, and the per-path locks.
type Client struct {
	cfg   config.Client
	db    *db.ClientDB
	clock clockwork.Clock
	fs    afero.Fs
	locks *pathlock.Table

	name   string
	digest string

	// The change lists accumulate between sync cycles. canCreate starts
	// optimistic and is switched off for good the first time the server
	// refuses a create, so the client stops re-reporting files it may
	// never push.
	lock      sync.Mutex
	created   []string
	changed   []string
	deleted   []string
	canCreate bool

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a client for the given configuration and catalog.
func New(cfg config.Client, catalog *db.ClientDB) *Client {
	return &Client{
		cfg:       cfg,
		db:        catalog,
		clock:     clockwork.NewRealClock(),
		fs:        afero.NewOsFs(),
		locks:     pathlock.NewTable(),
		canCreate: true,
		stop:      make(chan struct{}),
	}
}

// Credentials sets the account name and password digest used for every
// session with the server.
func (c *Client) Credentials(name, digest string) {
	c.name = name
	c.digest = digest
}

// Stop shuts the client down. Safe to call more than once.
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

// dial opens a session with the server, following the port handoff and
// authenticating before returning the connection.
func (c *Client) dial() (*proto.Conn, error) {
	conn, err := proto.Dial(c.cfg.ServerAddress, c.cfg.ServerPort)
	if err != nil {
		return nil, errors.WithContext(err, "dial server")
	}
	conn.SetDeadline(time.Now().Add(requestTimeout))

	if err := conn.WriteCommand(proto.Authenticate); err != nil {
		conn.Close()
		return nil, errors.WithContext(err, "send authenticate")
	}
	if err := conn.WriteLine(c.name); err != nil {
		conn.Close()
		return nil, err
	}
	if err := conn.WriteLine(c.digest); err != nil {
		conn.Close()
		return nil, err
	}

	reply, err := conn.ReadCommand()
	if err != nil {
		conn.Close()
		return nil, errors.WithContext(err, "read authenticate reply")
	}
	if reply != proto.Success {
		conn.Close()
		return nil, errors.ErrAuthFailed
	}
	return conn, nil
}

// Login verifies the configured credentials with a short throwaway session.
// It returns errors.ErrAuthFailed when the server rejects them.
func (c *Client) Login() error {
	conn, err := c.dial()
	if err != nil {
		return err
	}
	conn.WriteCommand(proto.TransmissionEnd)
	conn.Close()
	return nil
}

// RegisterAccount creates a new account on the server using the configured
// credentials. It runs a single short session.
func (c *Client) RegisterAccount() error {
	conn, err := proto.Dial(c.cfg.ServerAddress, c.cfg.ServerPort)
	if err != nil {
		return errors.WithContext(err, "dial server")
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(requestTimeout))

	if err := conn.WriteCommand(proto.Register); err != nil {
		return errors.WithContext(err, "send register")
	}
	if err := conn.WriteLine(c.name); err != nil {
		return err
	}
	if err := conn.WriteLine(c.digest); err != nil {
		return err
	}

	reply, err := conn.ReadCommand()
	if err != nil {
		return errors.WithContext(err, "read register reply")
	}
	if reply != proto.Success {
		return errors.NewFriendlyError(
			"The server refused the registration. The account name %q is "+
				"probably already taken.", c.name)
	}
	conn.WriteCommand(proto.TransmissionEnd)
	return nil
}

// Run seeds or loads the catalog, starts the push listener, reconciles with
// the server, and then drives the periodic sync cycle until Stop is called.
func (c *Client) Run() error {
	if c.db.HasSnapshot() {
		if err := c.db.Load(); err != nil {
			return errors.WithContext(err, "load catalog")
		}
	} else if err := c.seed(); err != nil {
		return errors.WithContext(err, "seed catalog")
	}

	listener, err := c.listen()
	if err != nil {
		return err
	}
	defer listener.Close()
	go c.acceptLoop(listener)

	if err := c.bootstrap(listener.Addr().(*net.TCPAddr).Port); err != nil {
		return err
	}
	c.db.Save()

	watchChanges, err := fswatch.Watch(c.cfg.TrackedDirectory)
	if err != nil {
		// The periodic scan still catches everything; the watcher only
		// shortens the latency.
		log.WithError(err).Warn("Failed to watch the tracked directory, polling only")
		watchChanges = make(chan struct{})
	}
	period := time.Duration(c.cfg.CheckPeriodSeconds) * time.Second

	for {
		select {
		case <-c.clock.After(period):
		case <-watchChanges:
		case <-c.stop:
			c.db.Save()
			return nil
		}
		c.syncCycle()
	}
}

// bootstrap runs the session that announces the push listener and performs
// the initial reconciliation against the server's catalog.
func (c *Client) bootstrap(listenPort int) error {
	conn, err := c.dial()
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.WriteCommand(proto.NewConnection); err != nil {
		return errors.WithContext(err, "announce listener")
	}
	if err := conn.WriteLine(proto.FormatHandoff(listenPort)); err != nil {
		return errors.WithContext(err, "announce listener")
	}

	if err := c.reconcile(conn); err != nil {
		return errors.WithContext(err, "initial reconciliation")
	}

	conn.WriteCommand(proto.TransmissionEnd)
	return nil
}

// syncCycle scans the tracked directory and reports what changed. Session
// failures are logged and retried next cycle.
func (c *Client) syncCycle() {
	c.detectChanges()
	if err := c.reportChanges(); err != nil {
		log.WithError(err).Warn("Sync cycle failed")
	}
	c.db.Save()
}

func (c *Client) localPath(rel string) string {
	return filepath.Join(c.cfg.TrackedDirectory, rel)
}

func (c *Client) listen() (net.Listener, error) {
	addr := net.JoinHostPort("", strconv.Itoa(c.cfg.ListenPort))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.WithContext(err, "bind push listener")
	}
	log.WithField("address", listener.Addr().String()).Info("Listening for pushes")
	return listener, nil
}
