package snileak

import (
	"errors"
	"fmt"
	"io"
	"net"
)

var (
	ErrInvalidFormat     = errors.New("invalid format")
	ErrUnexpectedMessage = errors.New("unexpected message")
	ErrIllegalParameter  = errors.New("illegal parameter")
	ErrDecodeError       = errors.New("decode error")

	contentTypes = map[uint8]string{
		0:  "invalid",
		20: "change_cipher_spec",
		21: "alert",
		22: "handshake",
		23: "application_data",
	}
)

func contentType(t uint8) string {
	if v, ok := contentTypes[t]; ok {
		return v
	}
	return "unknown"
}

func readRecord(conn net.Conn) ([]byte, error) {
	record := make([]byte, 16389)
	n, err := io.ReadFull(conn, record[:5])
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	if err != nil {
		return record[:n], err
	}
	length := uint32(record[3])<<8 | uint32(record[4])
	if length > 16384 {
		return record[:n], fmt.Errorf("%w: record length %d > 16384", ErrDecodeError, length)
	}
	nn, err := io.ReadFull(conn, record[n:n+int(length)])
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	return record[:n+nn], err
}

func convertErrorsToAlerts(conn net.Conn, err error) {
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidFormat):
		sendAlert(conn, 0x2 /* fatal */, 0x2F /* Illegal parameter */)
	case errors.Is(err, ErrUnexpectedMessage):
		sendAlert(conn, 0x2 /* fatal */, 0x0a /* Unexpected message */)
	case errors.Is(err, ErrIllegalParameter):
		sendAlert(conn, 0x2 /* fatal */, 0x2F /* Illegal parameter */)
	case errors.Is(err, ErrDecodeError):
		sendAlert(conn, 0x2 /* fatal */, 0x32 /* Decode error */)
	default:
		sendAlert(conn, 0x2 /* fatal */, 0x28 /* Handshake failure */)
	}
}

func sendAlert(w io.WriteCloser, level, description uint8) {
	// https://en.wikipedia.org/wiki/Transport_Layer_Security
	w.Write([]byte{
		0x15,       // alert
		0x03, 0x03, // version TLS 1.2
		0x00, 0x02, // length
		level, description,
	})
	if level == 0x2 {
		w.Close()
	}
}
