package objproxy

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
)

// maxFrameSize guards against a corrupt or hostile length prefix causing
// an unbounded allocation.
const maxFrameSize = 64 * 1024 * 1024

// netTransport is a Transport built directly on a net.Conn (used for
// both the "tcp" and "inproc" schemes, since net.Pipe() also returns a
// net.Conn). Framing is a 4-byte big-endian length prefix followed by
// the payload — message boundaries are the one thing Transport must
// guarantee on top of a net.Conn, and the underlying net.Conn gives us
// everything else (best-effort in-order delivery, disconnect surfaced as
// a Read/Write error).
type netTransport struct {
	conn       net.Conn
	remoteAddr string
	logger     Logger
	stats      ConnStats

	sendMu sync.Mutex
	recvMu sync.Mutex
}

func newNetTransport(conn net.Conn, remoteAddr string, logger Logger) *netTransport {
	t := &netTransport{conn: conn, remoteAddr: remoteAddr, logger: logger}
	t.stats.New()
	t.stats.Open()
	return t
}

func (t *netTransport) Send(msg []byte) error {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	if len(msg) > maxFrameSize {
		return fmt.Errorf("objproxy: outgoing frame of %d bytes exceeds max %d", len(msg), maxFrameSize)
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(msg)))
	if _, err := t.conn.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := t.conn.Write(msg); err != nil {
		return err
	}
	t.stats.AddSent(len(msg) + 4)
	return nil
}

func (t *netTransport) Recv() ([]byte, error) {
	t.recvMu.Lock()
	defer t.recvMu.Unlock()

	var hdr [4]byte
	if _, err := io.ReadFull(t.conn, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxFrameSize {
		return nil, fmt.Errorf("objproxy: incoming frame of %d bytes exceeds max %d", n, maxFrameSize)
	}
	msg := make([]byte, n)
	if _, err := io.ReadFull(t.conn, msg); err != nil {
		return nil, err
	}
	t.stats.AddRecvd(len(msg) + 4)
	return msg, nil
}

func (t *netTransport) Close() error {
	t.stats.Close()
	return t.conn.Close()
}

func (t *netTransport) RemoteAddress() string {
	return t.remoteAddr
}

func (t *netTransport) Stats() *ConnStats {
	return &t.stats
}
