package snileak

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
)

func TestConnObservesServerName(t *testing.T) {
	h := newTestClientHello("alpha.example", "tls1.3")
	raw := h.bytes()
	fc := newFakeConn(raw)

	conn, err := NewConn(testContext(t), fc)
	if err != nil {
		t.Fatalf("NewConn: %v", err)
	}
	name, ok := conn.ServerName()
	if !ok {
		t.Fatal("ServerName not present")
	}
	if got, want := name, "alpha.example"; got != want {
		t.Errorf("ServerName = %q, want %q", got, want)
	}

	// The handshake bytes must be replayed unmodified.
	replayed := make([]byte, len(raw))
	if _, err := io.ReadFull(conn, replayed); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(replayed, raw) {
		t.Errorf("replayed bytes differ from the original record")
	}
}

func TestConnObservesAbsentServerName(t *testing.T) {
	h := newTestClientHello("tls1.3")
	conn, err := NewConn(testContext(t), newFakeConn(h.bytes()))
	if err != nil {
		t.Fatalf("NewConn: %v", err)
	}
	if name, ok := conn.ServerName(); ok {
		t.Errorf("ServerName = %q, want absent", name)
	}
}

func TestConnRejectsNonHandshake(t *testing.T) {
	fc := newFakeConn([]byte{0x17, 0x03, 0x03, 0x00, 0x01, 0x00}) // application_data
	if _, err := NewConn(testContext(t), fc); !errors.Is(err, ErrUnexpectedMessage) {
		t.Fatalf("NewConn error = %v, want ErrUnexpectedMessage", err)
	}
	// A fatal alert must have been sent back.
	sent := fc.Writer.(*bytes.Buffer).Bytes()
	if len(sent) == 0 || sent[0] != 0x15 {
		t.Errorf("no alert sent, got % x", sent)
	}
}

func TestConnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(testContext(t))
	cancel()
	if _, err := NewConn(ctx, newFakeConn(nil)); err == nil {
		t.Fatal("NewConn succeeded with canceled context and no data")
	}
}
