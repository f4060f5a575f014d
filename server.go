package objproxy

import (
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// Server listens on one address, owns an ObjectRegistry of the values it
// has exported by reference, and dispatches opcodes against them. Every
// accepted connection becomes one session; because a session is
// bidirectional, opcode execution on a Server may itself issue nested
// requests back over the very session a call arrived on.
type Server struct {
	ShutdownHelper

	address  string
	config   Config
	codec    *Codec
	listener Listener
	registry *ObjectRegistry

	// proxyTable caches proxies a Server itself holds back into a peer —
	// the reentrancy case where an argument handed to this Server is
	// itself a callback into the caller.
	proxyTable *ProxyTable

	exportsMu sync.Mutex
	exports   map[string]interface{}

	sessMu   sync.Mutex
	sessions map[*session]struct{}
}

// NewServer binds address ("tcp://host:port" or "inproc://name") and
// starts accepting connections.
func NewServer(address string, cfg Config) (*Server, error) {
	cfg = cfg.withDefaults()
	logger := cfg.Logger.Fork("server/%s", address)

	ln, err := Listen(address, logger)
	if err != nil {
		return nil, err
	}

	srv := &Server{
		address:    address,
		config:     cfg,
		codec:      NewCodec(cfg.AutoProxyThreshold, cfg.ArraySerializer),
		listener:   ln,
		exports:    make(map[string]interface{}),
		sessions:   make(map[*session]struct{}),
		proxyTable: NewProxyTable(),
	}
	srv.registry = NewObjectRegistry(logger)
	srv.proxyTable.OnFinalized = func(desc *ProxyDescriptor, s *session) {
		s.scheduleRelease(desc.ObjectID, 1)
	}
	srv.InitShutdownHelper(logger, srv)

	go srv.acceptLoop()
	return srv, nil
}

// Address returns the address this Server is bound to.
func (srv *Server) Address() string {
	return srv.address
}

// Export publishes value under name, reachable by any Client via
// IMPORT(name) against ObjectID 0.
func (srv *Server) Export(name string, value interface{}) {
	srv.exportsMu.Lock()
	srv.exports[name] = value
	srv.exportsMu.Unlock()
}

func (srv *Server) lookupExport(name string) (interface{}, bool) {
	srv.exportsMu.Lock()
	defer srv.exportsMu.Unlock()
	v, ok := srv.exports[name]
	return v, ok
}

func (srv *Server) acceptLoop() {
	for {
		t, err := srv.listener.Accept()
		if err != nil {
			srv.DLogf("server: accept loop ending: %s", err)
			return
		}
		srv.addSession(t)
	}
}

func (srv *Server) addSession(t Transport) *session {
	s := newSession(t, srv.codec, srv.Logger.Fork("peer/%s", t.RemoteAddress()), srv.config, srv.handleFrame)
	s.onNotice = func(f *Frame) { srv.handleNotice(s, f) }
	s.onClose = func(s *session) {
		srv.registry.ReleaseAllFrom(s.RemoteAddress())
		srv.removeSession(s)
	}
	srv.sessMu.Lock()
	srv.sessions[s] = struct{}{}
	srv.sessMu.Unlock()
	return s
}

// handleNotice applies a RELEASE notice sent by the peer on s, decref'ing
// every pair attributed to that peer. Other notice names carry nothing a
// Server needs to act on.
func (srv *Server) handleNotice(s *session, f *Frame) {
	if f.Notice != NoticeRelease {
		return
	}
	pairs, err := decodeReleasePairs(f.Payload)
	if err != nil {
		srv.DLogf("server: malformed RELEASE notice from %s: %s", s.RemoteAddress(), err)
		return
	}
	for _, p := range pairs {
		srv.registry.Decref(p.ID, s.RemoteAddress(), p.N)
	}
}

func (srv *Server) removeSession(s *session) {
	srv.sessMu.Lock()
	delete(srv.sessions, s)
	srv.sessMu.Unlock()
}

// HandleOnceShutdown implements OnceShutdownHandler: it stops accepting
// new connections, closes every live session, and releases every
// ObjectEntry still outstanding.
func (srv *Server) HandleOnceShutdown(completionErr error) error {
	var errs *multierror.Error
	if err := srv.listener.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}

	srv.sessMu.Lock()
	sessions := make([]*session, 0, len(srv.sessions))
	for s := range srv.sessions {
		sessions = append(sessions, s)
	}
	srv.sessMu.Unlock()
	for _, s := range sessions {
		s.sendNotice(&Frame{Notice: NoticeServerClosed})
		if err := s.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	srv.registry.DrainAll()

	if completionErr != nil {
		errs = multierror.Append(errs, completionErr)
	}
	return errs.ErrorOrNil()
}

// handleFrame is the requestHandler for every session this Server
// accepts: it resolves the target, applies the opcode, and builds the
// reply Frame (or nil, for fire-and-forget). Once shutdown has started,
// requests are answered with SHUTTING_DOWN instead of being executed.
func (srv *Server) handleFrame(s *session, f *Frame) *Frame {
	srv.Lock.Lock()
	closing := srv.isStartedShutdown
	srv.Lock.Unlock()
	if closing {
		if f.Mode == ModeOff {
			return nil
		}
		return &Frame{Status: ErrShuttingDown}
	}

	if s.takeCancelled(f.ID) {
		if f.Mode == ModeOff {
			return nil
		}
		return &Frame{Status: ErrCancelled}
	}

	res := &serverSessionResolver{server: srv, session: s}

	result, err := srv.execute(s, f, res)
	if f.Mode == ModeOff {
		return nil
	}
	if err != nil {
		return errorFrame(err)
	}

	payload, err := dehydrate(result, f.ReturnMode, srv.config.AutoProxyThreshold, &serverOwner{srv: srv, peerAddr: s.RemoteAddress()}, srv.config.ArraySerializer)
	if err != nil {
		return errorFrame(err)
	}
	return &Frame{Payload: payload}
}

func (srv *Server) execute(s *session, f *Frame, res resolver) (interface{}, error) {
	args, err := hydrateList(f.Args, res)
	if err != nil {
		return nil, err
	}
	kwargs, err := hydrateMap(f.Kwargs, res)
	if err != nil {
		return nil, err
	}

	if f.Target == ServerObjectID {
		return srv.executeBuiltin(f, args, kwargs, s)
	}

	entry, err := srv.registry.Get(f.Target)
	if err != nil {
		return nil, err
	}
	receiver, err := resolvePath(entry.Value, f.Path)
	if err != nil {
		return nil, err
	}

	switch f.Op {
	case OpCall:
		return callValue(receiver, args, kwargs)
	case OpGetAttr:
		name := ""
		if len(args) > 0 {
			name, _ = args[0].(string)
		}
		return getAttr(receiver, name)
	case OpSetAttr:
		if len(args) < 2 {
			return nil, newWireError(ErrUnsupportedOp, "SETATTR requires a name and a value")
		}
		name, _ := args[0].(string)
		return nil, setAttr(receiver, name, args[1])
	case OpGetItem:
		if len(args) < 1 {
			return nil, newWireError(ErrUnsupportedOp, "GETITEM requires a key")
		}
		return getItem(receiver, args[0])
	case OpSetItem:
		if len(args) < 2 {
			return nil, newWireError(ErrUnsupportedOp, "SETITEM requires a key and a value")
		}
		return nil, setItem(receiver, args[0], args[1])
	case OpDelItem:
		if len(args) < 1 {
			return nil, newWireError(ErrUnsupportedOp, "DELITEM requires a key")
		}
		return nil, delItem(receiver, args[0])
	case OpLen:
		n, err := lenValue(receiver)
		return n, err
	case OpCmp:
		if len(args) < 1 {
			return nil, newWireError(ErrUnsupportedOp, "CMP requires a comparand")
		}
		return compareValues(receiver, args[0], f.CmpOp)
	case OpPing:
		return "pong", nil
	case OpGetID:
		if len(f.Path) == 0 {
			return int64(f.Target), nil
		}
		id := srv.registry.Own(receiver, s.RemoteAddress())
		return int64(id), nil
	default:
		return nil, newWireError(ErrUnsupportedOp, fmt.Sprintf("unknown opcode %q", f.Op))
	}
}

func errorFrame(err error) *Frame {
	if we, ok := err.(*WireError); ok {
		return &Frame{Status: we.Kind, Remote: we.Remote}
	}
	re := NewRemoteError(err)
	return &Frame{Status: ErrRemoteRaised, Remote: re}
}

// serverOwner implements valueOwner for values a Server is about to
// dehydrate, attributing the new reference to the peer the reply is
// headed to.
type serverOwner struct {
	srv      *Server
	peerAddr string
}

func (o *serverOwner) ownValue(value interface{}) (*ObjectEntry, error) {
	id := o.srv.registry.Own(value, o.peerAddr)
	return o.srv.registry.Get(id)
}

func (o *serverOwner) localAddress() string {
	return o.srv.address
}

// serverSessionResolver implements resolver for hydrating the Args/Kwargs
// of one incoming request. A non-local ProxyDescriptor is assumed to
// denote an object on the peer this session is connected to (the only
// process that could legally have embedded it as an argument), so the
// resulting Proxy is bound directly to the current session and marked
// reentrant.
type serverSessionResolver struct {
	server  *Server
	session *session
}

func (r *serverSessionResolver) localAddress() string {
	return r.server.address
}

func (r *serverSessionResolver) resolveLocal(id ObjectID, path []AttributePathElement) (interface{}, error) {
	e, err := r.server.registry.Get(id)
	if err != nil {
		return nil, err
	}
	return resolvePath(e.Value, path)
}

func (r *serverSessionResolver) resolveRemote(desc *ProxyDescriptor) (*Proxy, error) {
	var fresh *Proxy
	p := r.server.proxyTable.GetOrCreate(desc, func() *Proxy {
		fresh = newProxy(r.session, true, r, desc, r.server.config.DefaultTimeout, r.server.config.AutoProxyThreshold, r.server.config.ArraySerializer, r.server.proxyTable)
		return fresh
	})
	if p != fresh {
		r.session.scheduleRelease(desc.ObjectID, 1)
	}
	return p, nil
}

// ownValueFor registers value by reference on this Server, attributing
// the reference to peerAddr (see proxyArgOwner in proxy.go).
func (r *serverSessionResolver) ownValueFor(value interface{}, peerAddr string) (*ObjectEntry, error) {
	id := r.server.registry.Own(value, peerAddr)
	return r.server.registry.Get(id)
}
