package objproxy

import (
	"fmt"
	"net"
	"strings"
)

// Transport is a connected, bidirectional message channel between two
// peers. Each call to Send transmits one atomic frame;
// each call to Recv returns exactly one frame in the order it was sent.
// A Transport never reconnects: once Send or Recv returns an error, the
// session is over and the owning Client/Server must treat it as
// CONNECTION_LOST.
type Transport interface {
	// Send transmits one opaque message. It is safe to call concurrently
	// with Recv but not with another Send.
	Send(msg []byte) error

	// Recv blocks until the next message arrives, or returns an error on
	// disconnect. It is safe to call concurrently with Send but not with
	// another Recv.
	Recv() ([]byte, error)

	// Close releases the underlying connection. Recv/Send in progress
	// unblock with an error.
	Close() error

	// RemoteAddress is the address of the peer at the other end, in the
	// same scheme as was dialed/accepted.
	RemoteAddress() string

	// Stats returns the byte/connection counters for this Transport.
	Stats() *ConnStats
}

// ParseAddress splits an address of the form "scheme://rest" into its
// scheme and remainder ("tcp://host:port" or "inproc://name").
func ParseAddress(address string) (scheme, rest string, err error) {
	parts := strings.SplitN(address, "://", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("objproxy: invalid address %q, expected scheme://...", address)
	}
	return parts[0], parts[1], nil
}

// Dial connects to address, returning a Transport for either the "tcp"
// or "inproc" scheme.
func Dial(address string, logger Logger) (Transport, error) {
	scheme, rest, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}
	switch scheme {
	case "tcp":
		conn, err := net.Dial("tcp", rest)
		if err != nil {
			return nil, err
		}
		return newNetTransport(conn, address, logger), nil
	case "inproc":
		return dialInproc(rest, address, logger)
	default:
		return nil, fmt.Errorf("objproxy: unsupported address scheme %q", scheme)
	}
}

// Listener accepts incoming Transports for one bound address.
type Listener interface {
	// Accept blocks until a peer connects, or the Listener is closed.
	Accept() (Transport, error)
	// Close stops accepting new connections.
	Close() error
	// Address is the address this Listener is bound to.
	Address() string
}

// Listen binds address ("tcp://host:port" or "inproc://name") and
// returns a Listener.
func Listen(address string, logger Logger) (Listener, error) {
	scheme, rest, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}
	switch scheme {
	case "tcp":
		return newTCPListener(rest, address, logger)
	case "inproc":
		return newInprocListener(rest, address, logger)
	default:
		return nil, fmt.Errorf("objproxy: unsupported address scheme %q", scheme)
	}
}
