package objproxy

import (
	"fmt"
	"net"
	"time"

	"github.com/jpillora/backoff"
)

// tcpListener accepts "tcp://" connections. Transient Accept() errors
// (e.g. a momentary file-descriptor exhaustion) are paced with
// jpillora/backoff rather than spinning the accept loop.
type tcpListener struct {
	ln      net.Listener
	address string
	logger  Logger
}

func newTCPListener(bindAddr, fullAddr string, logger Logger) (*tcpListener, error) {
	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, err
	}
	return &tcpListener{ln: ln, address: fullAddr, logger: logger}, nil
}

func (l *tcpListener) Accept() (Transport, error) {
	b := &backoff.Backoff{Min: 5 * time.Millisecond, Max: time.Second}
	for {
		conn, err := l.ln.Accept()
		if err == nil {
			remote := fmt.Sprintf("tcp://%s", conn.RemoteAddr().String())
			return newNetTransport(conn, remote, l.logger), nil
		}
		if ne, ok := err.(net.Error); ok && ne.Temporary() {
			d := b.Duration()
			l.logger.DLogf("objproxy: transient accept error on %s: %s (retry in %s)", l.address, err, d)
			time.Sleep(d)
			continue
		}
		return nil, err
	}
}

func (l *tcpListener) Close() error {
	return l.ln.Close()
}

func (l *tcpListener) Address() string {
	return l.address
}
