package snileak

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"golang.org/x/crypto/cryptobyte"
)

func newFakeConn(in []byte) *fakeConn {
	return &fakeConn{
		Reader: bytes.NewBuffer(in),
		Writer: bytes.NewBuffer(nil),
	}
}

type fakeConn struct {
	io.Reader
	io.Writer
}

func (fakeConn) Close() error {
	return nil
}

func (fakeConn) SetReadDeadline(t time.Time) error {
	return nil
}

func (fakeConn) SetWriteDeadline(t time.Time) error {
	return nil
}

func (fakeConn) SetDeadline(t time.Time) error {
	return nil
}

func (fakeConn) LocalAddr() net.Addr {
	return &net.TCPAddr{}
}

func (fakeConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{}
}

type testClientHello struct {
	*clientHello
}

func newTestClientHello(opts ...string) *testClientHello {
	h := &testClientHello{
		clientHello: &clientHello{
			LegacyVersion:            0x0303,
			Random:                   []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23, 24, 25, 26, 27, 28, 29, 30, 31, 32},
			LegacySessionID:          []byte{1, 2, 3, 4},
			CipherSuite:              []byte{0x13, 0x01, 0x13, 0x02, 0x13, 0x03},
			LegacyCompressionMethods: []byte{0},
			Extensions:               []extension{},
		},
	}
	for _, opt := range opts {
		switch opt {
		case "tls1.3":
			h.addSupportedVersionTLS13()
		default:
			h.addServerName(opt)
		}
	}
	h.parse()
	return h
}

func (h *testClientHello) bytes() []byte {
	m, err := h.Marshal()
	if err != nil {
		panic(err)
	}
	return m
}

func (h *testClientHello) parse() {
	hello, err := parseClientHello(h.bytes()[5:])
	if err != nil {
		panic(err)
	}
	h.clientHello = hello
}

func (h *testClientHello) addServerName(name string) {
	b := cryptobyte.NewBuilder(nil)
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddUint8(0x00) // name_type
		b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
			b.AddBytes([]byte(name))
		})
	})
	data, err := b.Bytes()
	if err != nil {
		panic(err)
	}
	h.clientHello.Extensions = append(h.clientHello.Extensions, extension{
		0, data,
	})
}

func (h *testClientHello) addSupportedVersionTLS13() {
	h.clientHello.Extensions = append(h.clientHello.Extensions, extension{
		43, []byte{0x02, 0x03, 0x04}, // supported_versions: TLS 1.3
	})
}

// testContext backports testing.T.Context (Go 1.24) for the Go 1.21
// toolchain: a context canceled before the test's cleanup functions run.
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
