package snileak

import (
	"context"
	"fmt"
	"net"
	"slices"
	"time"
)

var _ net.Conn = (*Conn)(nil)

// Option is a argument passed to NewConn.
type Option func(*Conn)

// WithDebug enables debugging.
func WithDebug(f func(format string, arg ...any)) Option {
	return func(c *Conn) {
		c.debugf = f
	}
}

// NewConn returns a [Conn] that transparently inspects the TLS handshake on a
// server-side connection. The first ClientHello message is read and parsed
// before any byte is consumed by the TLS stack, so the Server Name Indication
// value actually present on the wire can be recorded independently of
// whatever the TLS library later reports.
//
// When NewConn returns, the ClientHello has already been processed. Reads
// replay the buffered handshake bytes first, then pass through to the
// underlying connection.
//
// The ctx is used while reading the initial ClientHello only. It is not used
// after NewConn returns.
func NewConn(ctx context.Context, conn net.Conn, options ...Option) (outConn *Conn, err error) {
	defer func() {
		convertErrorsToAlerts(conn, err)
	}()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-done:
		case <-ctx.Done():
			conn.SetDeadline(time.Now())
		}
	}()
	record, err := readRecord(conn)
	if err != nil {
		return nil, err
	}
	if record[0] != 22 { // TLS Handshake
		return nil, fmt.Errorf("%w: content type %s(%d) != handshake(22)", ErrUnexpectedMessage, contentType(record[0]), record[0])
	}
	outConn = &Conn{
		Conn: conn,
	}
	for _, opt := range options {
		opt(outConn)
	}
	if outConn.debugf == nil {
		outConn.debugf = func(string, ...any) {}
	}
	if outConn.hello, err = parseClientHello(record[5:]); err != nil {
		return outConn, err
	}
	outConn.debugf("ClientHello: server_name=%q present=%v\n", outConn.hello.ServerName, outConn.hello.HasServerName)
	outConn.readBuf = record
	return outConn, nil
}

// Conn is a server-side [net.Conn] that has inspected the initial ClientHello
// of a TLS connection. It is handed to [tls.Server] after inspection, which
// then re-reads the buffered handshake bytes.
type Conn struct {
	net.Conn
	hello *clientHello

	debugf  func(string, ...any)
	readBuf []byte
}

// ServerName returns the SNI value extracted from the ClientHello, and
// whether the server_name extension was present at all. An absent extension
// is distinct from an empty name.
func (c *Conn) ServerName() (string, bool) {
	if c == nil || c.hello == nil {
		return "", false
	}
	return c.hello.ServerName, c.hello.HasServerName
}

// ALPNProtos returns the ALPN protocol values extracted from the ClientHello.
func (c *Conn) ALPNProtos() []string {
	if c == nil || c.hello == nil {
		return nil
	}
	return slices.Clone(c.hello.ALPNProtos)
}

func (c *Conn) Read(b []byte) (int, error) {
	if len(c.readBuf) > 0 {
		n := copy(b, c.readBuf)
		c.readBuf = c.readBuf[n:]
		return n, nil
	}
	return c.Conn.Read(b)
}
