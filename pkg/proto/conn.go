package proto

import (
	"bufio"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/treeshare/treeshare/pkg/errors"
)

// HandoffFailure is the port number sent during the connection bootstrap
// when the server has no free port to lease. Clients must treat it as a
// connection failure.
const HandoffFailure = -1

// FormatHandoff renders the bootstrap handoff line for a leased port.
func FormatHandoff(port int) string {
	return strconv.Itoa(port)
}

// Timestamps travel as RFC 3339 with nanoseconds so that they round-trip
// exactly between the two catalogs.
const timeFormat = time.RFC3339Nano

// FormatTime renders a timestamp for the wire.
func FormatTime(t time.Time) string {
	return t.Format(timeFormat)
}

// ParseTime decodes a wire timestamp.
func ParseTime(line string) (time.Time, error) {
	t, err := time.Parse(timeFormat, line)
	if err != nil {
		return time.Time{}, errors.WithContext(err, "parse timestamp")
	}
	return t, nil
}

// Conn wraps a network connection with the line-level framing used by the
// protocol. All reads are blocking; timeouts are applied via SetDeadline
// and surface as read errors that unwind the session.
type Conn struct {
	raw net.Conn
	r   *bufio.Reader
	w   *bufio.Writer
}

// NewConn wraps an established network connection.
func NewConn(raw net.Conn) *Conn {
	return &Conn{
		raw: raw,
		r:   bufio.NewReader(raw),
		w:   bufio.NewWriter(raw),
	}
}

// ReadLine reads one line, stripping the trailing newline.
func (c *Conn) ReadLine() (string, error) {
	line, err := c.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// ReadCommand reads one line and decodes it as a command token.
func (c *Conn) ReadCommand() (Command, error) {
	line, err := c.ReadLine()
	if err != nil {
		return None, err
	}
	return ParseCommand(line), nil
}

// WriteLine writes one line and flushes it.
func (c *Conn) WriteLine(line string) error {
	if _, err := c.w.WriteString(line + "\n"); err != nil {
		return err
	}
	return c.w.Flush()
}

// WriteCommand writes a command token as its own line.
func (c *Conn) WriteCommand(cmd Command) error {
	return c.WriteLine(string(cmd))
}

// SendContents streams src as a content block: every line of src followed
// by the TRANSMISSION_END terminator.
func (c *Conn) SendContents(src io.Reader) error {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if _, err := c.w.WriteString(scanner.Text() + "\n"); err != nil {
			return errors.WithContext(err, "write content line")
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.WithContext(err, "read source")
	}
	return c.WriteCommand(TransmissionEnd)
}

// ReceiveContents reads a content block into dst. It returns nil once the
// TRANSMISSION_END terminator arrives. A FAIL line means the sender aborted
// the transfer mid-block; the bytes written so far must be discarded by the
// caller.
func (c *Conn) ReceiveContents(dst io.Writer) error {
	for {
		line, err := c.ReadLine()
		if err != nil {
			return errors.WithContext(err, "read content line")
		}
		switch ParseCommand(line) {
		case TransmissionEnd:
			return nil
		case Fail:
			return errors.New("transfer aborted by sender")
		}
		if _, err := io.WriteString(dst, line+"\n"); err != nil {
			return errors.WithContext(err, "write content line")
		}
	}
}

// SetDeadline sets the read/write deadline on the underlying connection.
func (c *Conn) SetDeadline(t time.Time) error {
	return c.raw.SetDeadline(t)
}

// RemoteAddr returns the remote endpoint of the connection.
func (c *Conn) RemoteAddr() net.Addr {
	return c.raw.RemoteAddr()
}

// Close closes the underlying connection. Buffered but unflushed writes are
// dropped, matching the protocol's treatment of a dying session.
func (c *Conn) Close() error {
	return c.raw.Close()
}

// Dial performs the connection bootstrap: connect to the well-known port,
// read the single handoff line holding a leased port number, and reconnect
// to that port. The rendezvous connection is closed either way.
func Dial(address string, port int) (*Conn, error) {
	raw, err := net.Dial("tcp", net.JoinHostPort(address, strconv.Itoa(port)))
	if err != nil {
		return nil, errors.WithContext(err, "dial rendezvous port")
	}

	rendezvous := NewConn(raw)
	line, err := rendezvous.ReadLine()
	rendezvous.Close()
	if err != nil {
		return nil, errors.WithContext(err, "read handoff")
	}

	leased, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || leased <= 0 {
		return nil, errors.ErrBadHandoff
	}

	session, err := net.Dial("tcp", net.JoinHostPort(address, strconv.Itoa(leased)))
	if err != nil {
		return nil, errors.WithContext(err, "dial leased port")
	}
	return NewConn(session), nil
}
