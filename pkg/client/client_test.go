package client

import (
	"net"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"

	"github.com/treeshare/treeshare/pkg/config"
	"github.com/treeshare/treeshare/pkg/db"
	"github.com/treeshare/treeshare/pkg/pathlock"
	"github.com/treeshare/treeshare/pkg/proto"
)

func testClient() *Client {
	return &Client{
		cfg: config.Client{
			TrackedDirectory:   "/home/alice/tree",
			CheckPeriodSeconds: 10,
			IgnoredSuffixes:    []string{".swp"},
		},
		db:        db.NewClientDB(nil),
		clock:     clockwork.NewFakeClock(),
		fs:        afero.NewMemMapFs(),
		locks:     pathlock.NewTable(),
		canCreate: true,
		stop:      make(chan struct{}),
	}
}

func write(t *testing.T, c *Client, rel, contents string) {
	assert.NoError(t, afero.WriteFile(c.fs, c.localPath(rel), []byte(contents), 0644))
}

func TestIgnored(t *testing.T) {
	c := testClient()
	assert.True(t, c.ignored("a.tmp"))
	assert.True(t, c.ignored("notes.swp"))
	assert.False(t, c.ignored("a.txt"))
}

func TestSeed(t *testing.T) {
	c := testClient()
	write(t, c, "a.txt", "one")
	write(t, c, "docs/b.txt", "two")
	write(t, c, "scratch.tmp", "ignored")

	assert.NoError(t, c.seed())
	assert.Equal(t, 2, c.db.Count())
	assert.True(t, c.db.Tracked("a.txt"))
	assert.True(t, c.db.Tracked("docs/b.txt"))
	assert.False(t, c.db.Tracked("scratch.tmp"))
}

func TestDetectCreated(t *testing.T) {
	c := testClient()
	write(t, c, "docs/new.txt", "x")

	c.detectChanges()

	assert.Equal(t, []string{"docs/new.txt"}, c.created)
	assert.True(t, c.db.Tracked("docs/new.txt"))

	// A second scan must not queue the same path again.
	c.detectChanges()
	assert.Equal(t, []string{"docs/new.txt"}, c.created)
}

func TestDetectCreatedDisabled(t *testing.T) {
	c := testClient()
	c.canCreate = false
	write(t, c, "docs/new.txt", "x")

	c.detectChanges()
	assert.Empty(t, c.created)
	assert.False(t, c.db.Tracked("docs/new.txt"))
}

func TestDetectChanged(t *testing.T) {
	c := testClient()
	write(t, c, "a.txt", "x")
	record := db.NewFile("a.txt")
	record.DateModified = time.Now().Add(-time.Hour)
	c.db.Add(record)

	c.detectChanges()
	assert.Equal(t, []string{"a.txt"}, c.changed)
	assert.Empty(t, c.created)

	// The record was bumped to the disk mtime, so the next scan is quiet.
	c.changed = nil
	c.detectChanges()
	assert.Empty(t, c.changed)
}

func TestDetectDeleted(t *testing.T) {
	c := testClient()
	record := db.NewFile("gone.txt")
	c.db.Add(record)

	c.detectChanges()
	assert.Equal(t, []string{"gone.txt"}, c.deleted)
}

func pipeConns() (*proto.Conn, *proto.Conn) {
	a, b := net.Pipe()
	return proto.NewConn(a), proto.NewConn(b)
}

func TestReportCreated(t *testing.T) {
	c := testClient()
	write(t, c, "docs/new.txt", "payload")
	c.db.Add(db.NewFile("docs/new.txt"))

	conn, server := pipeConns()
	defer conn.Close()
	defer server.Close()

	done := make(chan error)
	go func() {
		done <- c.reportCreated(conn, "docs/new.txt")
	}()

	cmd, err := server.ReadCommand()
	assert.NoError(t, err)
	assert.Equal(t, proto.FileCreated, cmd)
	path, err := server.ReadLine()
	assert.NoError(t, err)
	assert.Equal(t, "docs/new.txt", path)
	assert.NoError(t, server.WriteCommand(proto.Success))

	var got []string
	for {
		line, err := server.ReadLine()
		assert.NoError(t, err)
		if proto.ParseCommand(line) == proto.TransmissionEnd {
			break
		}
		got = append(got, line)
	}
	assert.Equal(t, []string{"payload"}, got)
	assert.NoError(t, <-done)
}

func TestReportCreatedRefusedDisablesCreation(t *testing.T) {
	c := testClient()
	write(t, c, "docs/new.txt", "payload")
	c.db.Add(db.NewFile("docs/new.txt"))

	conn, server := pipeConns()
	defer conn.Close()
	defer server.Close()

	done := make(chan error)
	go func() {
		done <- c.reportCreated(conn, "docs/new.txt")
	}()

	server.ReadCommand()
	server.ReadLine()
	assert.NoError(t, server.WriteCommand(proto.Fail))

	assert.NoError(t, <-done)
	assert.False(t, c.creationAllowed())
	assert.False(t, c.db.Tracked("docs/new.txt"))
}

func TestReportChangedRefusedUntracks(t *testing.T) {
	c := testClient()
	write(t, c, "a.txt", "payload")
	c.db.Add(db.NewFile("a.txt"))

	conn, server := pipeConns()
	defer conn.Close()
	defer server.Close()

	done := make(chan error)
	go func() {
		done <- c.reportChanged(conn, "a.txt")
	}()

	server.ReadCommand()
	server.ReadLine()
	assert.NoError(t, server.WriteCommand(proto.Fail))

	assert.NoError(t, <-done)
	assert.False(t, c.db.Tracked("a.txt"))
	assert.True(t, c.creationAllowed())
}

func TestReportDeletedUntracksRegardlessOfVerdict(t *testing.T) {
	c := testClient()
	c.db.Add(db.NewFile("gone.txt"))

	conn, server := pipeConns()
	defer conn.Close()
	defer server.Close()

	done := make(chan error)
	go func() {
		done <- c.reportDeleted(conn, "gone.txt")
	}()

	cmd, err := server.ReadCommand()
	assert.NoError(t, err)
	assert.Equal(t, proto.FileDeleted, cmd)
	server.ReadLine()
	assert.NoError(t, server.WriteCommand(proto.Fail))

	assert.NoError(t, <-done)
	assert.False(t, c.db.Tracked("gone.txt"))
}

func TestHandlePushChange(t *testing.T) {
	c := testClient()

	conn, server := pipeConns()
	defer server.Close()

	done := make(chan struct{})
	go func() {
		c.handlePush(conn)
		close(done)
	}()

	assert.NoError(t, server.WriteCommand(proto.FileChanged))
	assert.NoError(t, server.WriteLine("docs/pushed.txt"))
	ack, err := server.ReadCommand()
	assert.NoError(t, err)
	assert.Equal(t, proto.Success, ack)
	assert.NoError(t, server.WriteLine("pushed contents"))
	assert.NoError(t, server.WriteCommand(proto.TransmissionEnd))
	<-done

	got, err := afero.ReadFile(c.fs, c.localPath("docs/pushed.txt"))
	assert.NoError(t, err)
	assert.Equal(t, "pushed contents\n", string(got))
	assert.True(t, c.db.Tracked("docs/pushed.txt"))

	// The record carries the disk mtime, so a scan stays quiet.
	c.detectChanges()
	assert.Empty(t, c.changed)
	assert.Empty(t, c.created)
}

func TestHandlePushEscapeDeclined(t *testing.T) {
	c := testClient()

	conn, server := pipeConns()
	defer server.Close()

	done := make(chan struct{})
	go func() {
		c.handlePush(conn)
		close(done)
	}()

	assert.NoError(t, server.WriteCommand(proto.FileChanged))
	assert.NoError(t, server.WriteLine("../outside.txt"))
	ack, err := server.ReadCommand()
	assert.NoError(t, err)
	assert.Equal(t, proto.Fail, ack)
	<-done
}

func TestHandlePushDelete(t *testing.T) {
	c := testClient()
	write(t, c, "gone.txt", "x")
	c.db.Add(db.NewFile("gone.txt"))

	conn, server := pipeConns()
	defer server.Close()

	done := make(chan struct{})
	go func() {
		c.handlePush(conn)
		close(done)
	}()

	assert.NoError(t, server.WriteCommand(proto.FileDeleted))
	assert.NoError(t, server.WriteLine("gone.txt"))
	assert.NoError(t, server.WriteCommand(proto.TransmissionEnd))
	<-done

	exists, _ := afero.Exists(c.fs, c.localPath("gone.txt"))
	assert.False(t, exists)
	assert.False(t, c.db.Tracked("gone.txt"))
}

func TestReconcile(t *testing.T) {
	c := testClient()
	write(t, c, "stale.txt", "kept locally only")
	c.db.Add(db.NewFile("stale.txt"))
	current := db.NewFile("current.txt")
	current.DateModified = time.Now()
	c.db.Add(current)
	write(t, c, "current.txt", "already up to date")

	conn, server := pipeConns()
	defer server.Close()
	defer conn.Close()

	done := make(chan error)
	go func() {
		done <- c.reconcile(conn)
	}()

	// Serve the initial listing: one file to pull, one already current.
	cmd, err := server.ReadCommand()
	assert.NoError(t, err)
	assert.Equal(t, proto.RequestInitialInfo, cmd)
	assert.NoError(t, server.WriteCommand(proto.Success))
	assert.NoError(t, server.WriteLine("docs/new.txt"))
	assert.NoError(t, server.WriteLine(proto.FormatTime(time.Now())))
	assert.NoError(t, server.WriteLine("current.txt"))
	assert.NoError(t, server.WriteLine(proto.FormatTime(current.DateModified.Add(-time.Hour))))
	assert.NoError(t, server.WriteCommand(proto.TransmissionEnd))

	// The client pulls only the missing file.
	cmd, err = server.ReadCommand()
	assert.NoError(t, err)
	assert.Equal(t, proto.RequestFileContents, cmd)
	path, err := server.ReadLine()
	assert.NoError(t, err)
	assert.Equal(t, "docs/new.txt", path)
	assert.NoError(t, server.WriteCommand(proto.Success))
	assert.NoError(t, server.WriteLine("fetched"))
	assert.NoError(t, server.WriteCommand(proto.TransmissionEnd))

	assert.NoError(t, <-done)

	got, err := afero.ReadFile(c.fs, c.localPath("docs/new.txt"))
	assert.NoError(t, err)
	assert.Equal(t, "fetched\n", string(got))
	assert.True(t, c.db.Tracked("docs/new.txt"))

	// The unadvertised local file is gone.
	exists, _ := afero.Exists(c.fs, c.localPath("stale.txt"))
	assert.False(t, exists)
	assert.False(t, c.db.Tracked("stale.txt"))

	// The current file was left alone.
	gotCurrent, err := afero.ReadFile(c.fs, c.localPath("current.txt"))
	assert.NoError(t, err)
	assert.Equal(t, "already up to date", string(gotCurrent))
}

func TestReconcileEmptyListing(t *testing.T) {
	c := testClient()
	write(t, c, "stale.txt", "kept locally only")
	c.db.Add(db.NewFile("stale.txt"))

	conn, server := pipeConns()
	defer server.Close()
	defer conn.Close()

	done := make(chan error)
	go func() {
		done <- c.reconcile(conn)
	}()

	// A bare terminator instead of SUCCESS means this account can read
	// nothing. That's an empty listing, not a protocol error, and the
	// purge of unadvertised local records still runs.
	cmd, err := server.ReadCommand()
	assert.NoError(t, err)
	assert.Equal(t, proto.RequestInitialInfo, cmd)
	assert.NoError(t, server.WriteCommand(proto.TransmissionEnd))

	assert.NoError(t, <-done)

	exists, _ := afero.Exists(c.fs, c.localPath("stale.txt"))
	assert.False(t, exists)
	assert.Equal(t, 0, c.db.Count())
}

func TestReconcileRefusedIsFatal(t *testing.T) {
	c := testClient()

	conn, server := pipeConns()
	defer server.Close()
	defer conn.Close()

	done := make(chan error)
	go func() {
		done <- c.reconcile(conn)
	}()

	_, err := server.ReadCommand()
	assert.NoError(t, err)
	assert.NoError(t, server.WriteCommand(proto.Fail))

	assert.Error(t, <-done)
}

func TestCredentialsRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()

	_, ok := LoadCredentials(fs, "/state")
	assert.False(t, ok)

	saved := Credentials{Name: "alice", Digest: db.Digest("hunter2")}
	assert.NoError(t, SaveCredentials(fs, "/state", saved))

	loaded, ok := LoadCredentials(fs, "/state")
	assert.True(t, ok)
	assert.Equal(t, saved, loaded)
}
