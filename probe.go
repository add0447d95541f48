package snileak

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrHandshake wraps any failure to complete a TLS connection. It is
// recoverable: the orchestrator records it and moves on.
var ErrHandshake = errors.New("handshake failed")

// ProbeResult is the outcome of one probing connection.
type ProbeResult struct {
	// Ack is the single acknowledgment byte read from the server.
	Ack byte
	// LocalAddr is the client side of the TCP connection. It is set as
	// soon as the dial succeeds, even when the handshake later fails,
	// and stays empty when the server never saw the connection at all.
	LocalAddr string
	// State is the connection state after the handshake.
	State tls.ConnectionState
}

// Connect opens one TLS connection to addr using handle and the default
// [Prober]. sni nil means the server_name extension is omitted entirely.
func Connect(ctx context.Context, handle *Handle, addr string, sni *string) (ProbeResult, error) {
	return NewProber().Connect(ctx, handle, addr, sni)
}

// Prober opens TLS connections that optionally declare an SNI hostname,
// complete the handshake, and read the one-byte acknowledgment.
type Prober struct {
	// Timeout bounds a single connection attempt, dial through ack read.
	// The default is 30s.
	Timeout time.Duration
	// Logger receives per-connection trace lines.
	Logger *log.Entry
}

// NewProber returns a Prober with defaults.
func NewProber() *Prober {
	return &Prober{
		Timeout: 30 * time.Second,
		Logger:  log.WithField("component", "prober"),
	}
}

// Connect opens a TCP connection to addr, wraps it with TLS using the
// per-connection configuration derived from handle, performs the handshake,
// reads exactly one acknowledgment byte, and closes the connection. The
// socket is closed on every exit path, including handshake failure.
//
// sni selects the requested SNI hostname; nil requests none. Note that the
// handle, not the request, has the final say: a reused handle serves its
// pinned value (see [Handle]).
func (p *Prober) Connect(ctx context.Context, handle *Handle, addr string, sni *string) (ProbeResult, error) {
	var name string
	var has bool
	if sni != nil {
		name = *sni
		has = true
	}
	tc := handle.SessionConfig(name, has)
	if has {
		p.Logger.Infof("connecting to %s; server name %q", addr, name)
	} else {
		p.Logger.Infof("connecting to %s; no server name", addr)
	}
	if tc.ServerName != name {
		p.Logger.Warnf("context overrides server name: %q", tc.ServerName)
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var res ProbeResult
	netDialer := &net.Dialer{}
	conn, err := netDialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	defer conn.Close()
	res.LocalAddr = conn.LocalAddr().String()

	tlsConn := tls.Client(conn, tc)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return res, fmt.Errorf("%w: %v", ErrHandshake, err)
	}

	var ack [1]byte
	if _, err := io.ReadFull(tlsConn, ack[:]); err != nil {
		return res, fmt.Errorf("%w: reading ack: %v", ErrHandshake, err)
	}
	res.Ack = ack[0]
	res.State = tlsConn.ConnectionState()
	tlsConn.Close()
	return res, nil
}
