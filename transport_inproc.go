package objproxy

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
)

// inprocDirectory is the per-process registry of live "inproc://name"
// listeners. dialInproc looks a name up here and hands the dialer one
// end of a net.Pipe() — Go's own broker-less socket pair — while the
// other end is delivered to the listener's Accept().
var inprocDirectory = struct {
	mu        sync.Mutex
	listeners map[string]*inprocListener
}{listeners: make(map[string]*inprocListener)}

type inprocListener struct {
	name    string
	address string
	logger  Logger
	conns   chan net.Conn
	closeCh chan struct{}
	closeMu sync.Mutex
	closed  bool

	// nextConn gives each accepted connection a distinct RemoteAddress,
	// the same way a real listener's Accept gets a distinct ephemeral
	// peer address per connection. Without this every client dialing the
	// same inproc name would share one peer key in the ObjectRegistry,
	// so one client's disconnect would release another's references.
	nextConn int64
}

func newInprocListener(name, fullAddr string, logger Logger) (*inprocListener, error) {
	inprocDirectory.mu.Lock()
	defer inprocDirectory.mu.Unlock()
	if _, exists := inprocDirectory.listeners[name]; exists {
		return nil, fmt.Errorf("objproxy: inproc address %q already in use", fullAddr)
	}
	l := &inprocListener{
		name:    name,
		address: fullAddr,
		logger:  logger,
		conns:   make(chan net.Conn),
		closeCh: make(chan struct{}),
	}
	inprocDirectory.listeners[name] = l
	return l, nil
}

func (l *inprocListener) Accept() (Transport, error) {
	select {
	case conn, ok := <-l.conns:
		if !ok {
			return nil, fmt.Errorf("objproxy: inproc listener %q closed", l.address)
		}
		n := atomic.AddInt64(&l.nextConn, 1)
		peer := fmt.Sprintf("%s#%d", l.address, n)
		return newNetTransport(conn, peer, l.logger), nil
	case <-l.closeCh:
		return nil, fmt.Errorf("objproxy: inproc listener %q closed", l.address)
	}
}

func (l *inprocListener) Close() error {
	l.closeMu.Lock()
	defer l.closeMu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	close(l.closeCh)

	inprocDirectory.mu.Lock()
	delete(inprocDirectory.listeners, l.name)
	inprocDirectory.mu.Unlock()
	return nil
}

func (l *inprocListener) Address() string {
	return l.address
}

func dialInproc(name, fullAddr string, logger Logger) (Transport, error) {
	inprocDirectory.mu.Lock()
	l, ok := inprocDirectory.listeners[name]
	inprocDirectory.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("objproxy: no inproc listener for %q", fullAddr)
	}

	clientEnd, serverEnd := net.Pipe()
	select {
	case l.conns <- serverEnd:
	case <-l.closeCh:
		clientEnd.Close()
		serverEnd.Close()
		return nil, fmt.Errorf("objproxy: inproc listener %q closed", fullAddr)
	}
	return newNetTransport(clientEnd, fullAddr, logger), nil
}
