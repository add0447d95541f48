package snileak

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/snileak/snileak/credentials"
)

var (
	ErrBind   = errors.New("bind failed")
	ErrAccept = errors.New("accept failed")
)

// ackByte is the single application-layer byte sent to the client once the
// handshake has completed.
const ackByte = 0xFF

// Record is one SNI observation. The server creates exactly one Record per
// accepted connection, in accept order.
type Record struct {
	// Index is the position of the connection in accept order.
	Index int
	// RemoteAddr identifies the accepted connection.
	RemoteAddr string
	// ServerName is the SNI hostname reported by the TLS stack's
	// per-connection observer. HasSNI is false when the client presented
	// no server_name extension.
	ServerName string
	HasSNI     bool
	// WireServerName is the hostname read directly off the ClientHello
	// record before the TLS stack saw it. It is the control value: the
	// two observations must agree unless the TLS stack itself mangles
	// per-connection state.
	WireServerName string
	WireHasSNI     bool
	// HandshakeDone reports whether the handshake completed and the ack
	// byte was due.
	HandshakeDone bool
	Time          time.Time
	// Err is the per-connection failure, if any. It never aborts the
	// accept loop.
	Err error
}

// observation is a single-resolution future, scoped to one accepted
// connection. It resolves exactly once: either with the presented hostname
// or with "no SNI seen".
type observation struct {
	once sync.Once
	done chan struct{}
	name string
	has  bool
}

func newObservation() *observation {
	return &observation{done: make(chan struct{})}
}

func (o *observation) resolve(name string, has bool) {
	o.once.Do(func() {
		o.name = name
		o.has = has
		close(o.done)
	})
}

func (o *observation) wait(ctx context.Context) (string, bool, error) {
	select {
	case <-o.done:
		return o.name, o.has, nil
	case <-ctx.Done():
		return "", false, ctx.Err()
	}
}

// Server accepts TLS connections on a loopback port and records which SNI
// hostname, if any, each connection presented. It installs a fresh observer
// per connection and holds no TLS state across connections: it is the
// reference side the client behavior is measured against.
type Server struct {
	// HandshakeTimeout bounds the per-connection handshake. Default 10s.
	HandshakeTimeout time.Duration
	// Logger receives accept-loop and per-connection trace lines.
	Logger *log.Entry

	bundle *credentials.Bundle
	ln     net.Listener

	mu      sync.Mutex
	records []Record
	updated chan struct{}
}

// NewServer returns a Server using the bundle's identity.
func NewServer(bundle *credentials.Bundle) *Server {
	return &Server{
		HandshakeTimeout: 10 * time.Second,
		Logger:           log.WithField("component", "observer"),
		bundle:           bundle,
		updated:          make(chan struct{}),
	}
}

// Start binds a listening socket on the loopback interface with an
// OS-assigned port and returns the bound port. It does not accept
// connections; call Serve next.
func (s *Server) Start() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBind, err)
	}
	s.ln = ln
	s.Logger.Infof("listening on %s", ln.Addr())
	return ln.Addr().(*net.TCPAddr).Port, nil
}

// Addr returns the bound address. It is valid after Start.
func (s *Server) Addr() *net.TCPAddr {
	return s.ln.Addr().(*net.TCPAddr)
}

// Serve runs the accept loop until the listener is closed. Per-connection
// failures are logged and recorded; they never stop the loop.
func (s *Server) Serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.Logger.Errorf("%v: %v", ErrAccept, err)
			continue
		}
		go s.handle(conn)
	}
}

// Close stops the listener, ending Serve.
func (s *Server) Close() error {
	if s.ln == nil {
		return nil
	}
	return s.ln.Close()
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	ctx, cancel := context.WithTimeout(context.Background(), s.HandshakeTimeout)
	defer cancel()

	rec := Record{
		RemoteAddr: conn.RemoteAddr().String(),
		Time:       time.Now(),
	}

	inConn, err := NewConn(ctx, conn)
	if err != nil {
		rec.Err = fmt.Errorf("%w: %v", ErrHandshake, err)
		s.Logger.Errorf("inspect: %v", rec.Err)
		s.append(rec)
		return
	}
	rec.WireServerName, rec.WireHasSNI = inConn.ServerName()

	// The observer is scoped to this connection only: a fresh closure
	// over a fresh future, installed on a fresh clone of the server
	// config. Unknown hostnames are accepted by returning a nil config.
	obs := newObservation()
	cfg := s.bundle.ServerConfig()
	cfg.GetConfigForClient = func(chi *tls.ClientHelloInfo) (*tls.Config, error) {
		obs.resolve(chi.ServerName, chi.ServerName != "")
		return nil, nil
	}

	tlsConn := tls.Server(inConn, cfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		obs.resolve("", false)
		rec.Err = fmt.Errorf("%w: %v", ErrHandshake, err)
		s.Logger.Errorf("handshake: %v", rec.Err)
		s.append(rec)
		return
	}
	// Handshake completion without the observer firing means no SNI.
	obs.resolve("", false)
	name, has, _ := obs.wait(ctx)
	rec.ServerName = name
	rec.HasSNI = has
	rec.HandshakeDone = true
	if has {
		s.Logger.Infof("received SNI server name: %q", name)
	} else {
		s.Logger.Info("did not receive SNI server name")
	}

	// The record is published before the ack byte so that a client that
	// has read the ack can immediately pair its connection with an
	// observation.
	s.append(rec)
	if _, err := tlsConn.Write([]byte{ackByte}); err != nil {
		s.Logger.Errorf("ack: %v", err)
		return
	}
	tlsConn.Close()
}

func (s *Server) append(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Index = len(s.records)
	s.records = append(s.records, rec)
	close(s.updated)
	s.updated = make(chan struct{})
}

// Records returns a copy of the observation log, in accept order.
func (s *Server) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// WaitRecord blocks until the observation log holds a record at the given
// index, then returns it.
func (s *Server) WaitRecord(ctx context.Context, index int) (Record, error) {
	for {
		s.mu.Lock()
		if index < len(s.records) {
			rec := s.records[index]
			s.mu.Unlock()
			return rec, nil
		}
		updated := s.updated
		s.mu.Unlock()
		select {
		case <-updated:
		case <-ctx.Done():
			return Record{}, ctx.Err()
		}
	}
}
