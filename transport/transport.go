// Package transport abstracts the byte-stream connection an association
// runs over, so the assoc package can drive negotiation and PDU exchange
// without depending directly on net.Conn. The default (and only shipped)
// implementation is TCP, grounded on the dialing and deadline handling the
// teacher's client association code did inline.
package transport

import (
	"context"
	"io"
	"net"
	"time"
)

// Transport is a bidirectional byte stream with DICOM-appropriate lifecycle
// controls: per-operation deadlines and an abrupt Abort distinct from a
// graceful Close (PS3.8 draws this distinction between A-RELEASE and
// A-ABORT).
type Transport interface {
	io.Reader
	io.Writer

	// SetReadDeadline and SetWriteDeadline bound the next read/write call,
	// used to enforce the ARTIM timer and DIMSE response timeouts.
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error

	// Close performs a graceful shutdown (used after A-RELEASE-RP).
	Close() error

	// Abort tears the connection down immediately without waiting for
	// buffered writes (used after sending or receiving A-ABORT).
	Abort() error

	RemoteAddr() net.Addr
}

// tcpTransport wraps a net.Conn to satisfy Transport.
type tcpTransport struct {
	conn net.Conn
}

// DialTCP opens a TCP connection to address, the transport layer beneath an
// association's A-ASSOCIATE-RQ.
func DialTCP(ctx context.Context, address string) (Transport, error) {
	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	return &tcpTransport{conn: conn}, nil
}

// WrapConn adapts an already-established net.Conn (as handed to an Accept
// loop) into a Transport.
func WrapConn(conn net.Conn) Transport {
	return &tcpTransport{conn: conn}
}

func (t *tcpTransport) Read(p []byte) (int, error)  { return t.conn.Read(p) }
func (t *tcpTransport) Write(p []byte) (int, error) { return t.conn.Write(p) }

func (t *tcpTransport) SetReadDeadline(d time.Time) error  { return t.conn.SetReadDeadline(d) }
func (t *tcpTransport) SetWriteDeadline(d time.Time) error { return t.conn.SetWriteDeadline(d) }

func (t *tcpTransport) Close() error { return t.conn.Close() }

// Abort closes the underlying TCP connection immediately. Unlike a TCP
// FIN-based graceful close, callers that need RST-on-close semantics should
// set Linger(0) before calling Abort; this default implementation performs
// a plain close since most peers treat either as connection loss.
func (t *tcpTransport) Abort() error { return t.conn.Close() }

func (t *tcpTransport) RemoteAddr() net.Addr { return t.conn.RemoteAddr() }
