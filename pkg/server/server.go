// Package server implements the tracking server: it leases a private port to
// each incoming client, authenticates the session, applies file updates to
// the shared tree, and pushes accepted changes to every other registered
// client.
package server

import (
	"io"
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
	"github.com/treeshare/treeshare/pkg/pathlock"
	"github.com/treeshare/treeshare/pkg/ports"
)

// Server owns the shared tree and the catalog describing it. All sessions
// and the admin console operate through a single Server so that catalog
// access stays consistent.
type Server struct {
	cfg   config.Server
	db    *db.ServerDB
	pool  *ports.Pool
	locks *pathlock.Table
	clock clockwork.Clock
	fs    afero.Fs

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a server for the given configuration and catalog.
func New(cfg config.Server, catalog *db.ServerDB) *Server {
	return &Server{
		cfg:   cfg,
		db:    catalog,
		pool:  ports.NewPool(cfg.PortLow, cfg.PortHigh),
		locks: pathlock.NewTable(),
		clock: clockwork.NewRealClock(),
		fs:    afero.NewOsFs(),
		stop:  make(chan struct{}),
	}
}

// Run binds the rendezvous address and serves sessions until Stop is called.
// If console is non-nil an admin console is read from it; typing "exit" there
// also stops the server.
func (s *Server) Run(console io.Reader) error {
	s.db.EnsureDefaultGroup()

	addr := net.JoinHostPort(s.cfg.Address, strconv.Itoa(s.cfg.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.WithContext(err, "bind rendezvous address")
	}

	log.WithField("address", addr).Info("Serving")

	go s.saveLoop()
	go s.acceptLoop(listener)
	if console != nil {
		go s.RunConsole(console)
	}

	<-s.stop
	listener.Close()
	s.db.Save()
	return nil
}

// Stop shuts the server down. Safe to call more than once.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
}

func (s *Server) acceptLoop(listener net.Listener) {
	for {
		raw, err := listener.Accept()
		if err != nil {
			select {
			case <-s.stop:
			default:
				log.WithError(err).Error("Rendezvous accept failed")
			}
			return
		}
		go s.handoff(raw)
	}
}

// saveLoop persists the catalog periodically so an unclean shutdown loses at
// most one save period of bookkeeping.
func (s *Server) saveLoop() {
	period := time.Duration(s.cfg.SavePeriodSeconds) * time.Second
	for {
		select {
		case <-s.clock.After(period):
			s.db.Save()
		case <-s.stop:
			return
		}
	}
}

func (s *Server) sessionTimeout() time.Duration {
	return time.Duration(s.cfg.SessionTimeoutSeconds) * time.Second
}

func (s *Server) absPath(rel string) string {
	return filepath.Join(s.cfg.RootDirectory, rel)
}
