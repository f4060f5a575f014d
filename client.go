package objproxy

import (
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// Client issues requests to one or more remote Servers. A session to a
// given address is created lazily on first use and
// persists until the Client is closed or the session fails; the same
// Client transparently reuses a session if a Proxy returned from one
// call happens to live at an address it has already dialed.
type Client struct {
	ShutdownHelper

	config      Config
	codec       *Codec
	localServer *LocalServer
	proxyTable  *ProxyTable

	mu       sync.Mutex
	sessions map[string]*session
}

// ClientOption configures optional Client behavior.
type ClientOption func(*Client)

// WithLocalServer pairs c with a LocalServer so that values c sends by
// reference (most commonly callback functions) have somewhere to live,
// and so that a remote peer's nested call back into one of them can be
// serviced.
func WithLocalServer(ls *LocalServer) ClientOption {
	return func(c *Client) { c.localServer = ls }
}

// NewClient creates a Client. No connection is made until the first
// call that names a target address.
func NewClient(cfg Config, opts ...ClientOption) *Client {
	cfg = cfg.withDefaults()
	c := &Client{
		config:     cfg,
		codec:      NewCodec(cfg.AutoProxyThreshold, cfg.ArraySerializer),
		proxyTable: NewProxyTable(),
		sessions:   make(map[string]*session),
	}
	for _, opt := range opts {
		opt(c)
	}
	// A root proxy garbage collected without an explicit Release() still
	// owes the remote Server a decref; the table's finalizer callback is
	// the only place that loss would otherwise go unnoticed. The
	// finalizer hands back the exact session the proxy was bound to, so
	// this never depends on the Client's sessions map still holding an
	// entry under the descriptor's address.
	c.proxyTable.OnFinalized = func(desc *ProxyDescriptor, s *session) {
		s.scheduleRelease(desc.ObjectID, 1)
	}
	c.InitShutdownHelper(cfg.Logger.Fork("client"), c)
	return c
}

// Connect eagerly dials address, returning any error immediately rather
// than deferring it to the first call.
func (c *Client) Connect(address string) error {
	_, err := c.sessionFor(address)
	return err
}

func (c *Client) sessionFor(address string) (*session, error) {
	c.mu.Lock()
	if s, ok := c.sessions[address]; ok {
		c.mu.Unlock()
		return s, nil
	}
	c.mu.Unlock()

	t, err := Dial(address, c.Logger)
	if err != nil {
		return nil, err
	}

	var handler requestHandler
	if c.localServer != nil {
		handler = c.localServer.handleFrame
	}
	s := newSession(t, c.codec, c.Logger.Fork("peer/%s", address), c.config, handler)
	s.onNotice = func(f *Frame) { c.handleNotice(s, f) }
	s.onClose = func(s *session) {
		if c.localServer != nil {
			c.localServer.registry.ReleaseAllFrom(s.RemoteAddress())
		}
		c.removeSession(address, s)
	}

	c.mu.Lock()
	if existing, ok := c.sessions[address]; ok {
		c.mu.Unlock()
		s.Close()
		return existing, nil
	}
	c.sessions[address] = s
	c.mu.Unlock()
	return s, nil
}

// handleNotice applies a RELEASE notice sent by the peer at address,
// decref'ing against this Client's paired LocalServer registry (the only
// place this Client could have handed out references to that peer). A
// Client with no LocalServer never owns anything by reference, so there
// is nothing to do.
func (c *Client) handleNotice(s *session, f *Frame) {
	if f.Notice != NoticeRelease || c.localServer == nil {
		return
	}
	pairs, err := decodeReleasePairs(f.Payload)
	if err != nil {
		c.DLogf("client: malformed RELEASE notice from %s: %s", s.RemoteAddress(), err)
		return
	}
	for _, p := range pairs {
		c.localServer.registry.Decref(p.ID, s.RemoteAddress(), p.N)
	}
}

func (c *Client) removeSession(address string, s *session) {
	c.mu.Lock()
	if c.sessions[address] == s {
		delete(c.sessions, address)
	}
	c.mu.Unlock()
}

// Import fetches the value a remote Server published under name.
func (c *Client) Import(address, name string, mode InvocationMode, returnMode ReturnMode) (interface{}, error) {
	s, err := c.sessionFor(address)
	if err != nil {
		return nil, err
	}
	f := &Frame{
		Kind:       KindRequest,
		Op:         OpImport,
		Target:     ServerObjectID,
		Args:       []interface{}{name},
		Mode:       mode,
		ReturnMode: returnMode,
		ID:         s.nextRequestID(),
	}
	reply, err := s.sendRequest(f, c.config.DefaultTimeout)
	if err != nil {
		return nil, err
	}
	if mode == ModeOff {
		return nil, nil
	}
	if !reply.isOK() {
		return nil, wireErrorFromFrame(reply)
	}
	return hydrate(reply.Payload, &clientResolver{client: c})
}

// Ping sends a PING to address and waits for the "pong" reply, mainly
// useful for liveness checks and tests.
func (c *Client) Ping(address string) error {
	s, err := c.sessionFor(address)
	if err != nil {
		return err
	}
	f := &Frame{Kind: KindRequest, Op: OpPing, Mode: ModeSync, ID: s.nextRequestID()}
	reply, err := s.sendRequest(f, c.config.DefaultTimeout)
	if err != nil {
		return err
	}
	if !reply.isOK() {
		return wireErrorFromFrame(reply)
	}
	return nil
}

// HandleOnceShutdown implements OnceShutdownHandler: it closes every
// session this Client has opened.
func (c *Client) HandleOnceShutdown(completionErr error) error {
	c.mu.Lock()
	sessions := make([]*session, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.mu.Unlock()

	var errs *multierror.Error
	for _, s := range sessions {
		if err := s.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if completionErr != nil {
		errs = multierror.Append(errs, completionErr)
	}
	return errs.ErrorOrNil()
}

// clientResolver implements resolver for hydrating a reply's Payload,
// and valueOwner for dehydrating values this Client sends as request
// arguments.
type clientResolver struct {
	client *Client
}

func (r *clientResolver) localAddress() string {
	if r.client.localServer != nil {
		return r.client.localServer.Address()
	}
	return ""
}

func (r *clientResolver) resolveLocal(id ObjectID, path []AttributePathElement) (interface{}, error) {
	if r.client.localServer == nil {
		return nil, kindSentinel(ErrNoLocalServer)
	}
	e, err := r.client.localServer.registry.Get(id)
	if err != nil {
		return nil, err
	}
	return resolvePath(e.Value, path)
}

// resolveRemote decodes desc into a live Proxy, deduplicating against any
// proxy this Client already holds for the same (address, object, path)
// via ProxyTable. The Server incref'd one fresh reference for every
// descriptor it dehydrated, independent of whether this end already had
// one; when GetOrCreate hands back an existing proxy instead of the one
// just constructed, that extra reference is immediately balanced with a
// decref so the registry's refcount still matches exactly one live Go
// Proxy.
func (r *clientResolver) resolveRemote(desc *ProxyDescriptor) (*Proxy, error) {
	s, err := r.client.sessionFor(desc.ServerAddress)
	if err != nil {
		return nil, err
	}
	var fresh *Proxy
	p := r.client.proxyTable.GetOrCreate(desc, func() *Proxy {
		fresh = newProxy(s, false, r, desc, r.client.config.DefaultTimeout, r.client.config.AutoProxyThreshold, r.client.config.ArraySerializer, r.client.proxyTable)
		return fresh
	})
	if p != fresh {
		s.scheduleRelease(desc.ObjectID, 1)
	}
	return p, nil
}

// ownValueFor registers value by reference on behalf of this Client's
// paired LocalServer, attributing the new reference to peerAddr — the
// session a Proxy is about to send value over (see proxyArgOwner in
// proxy.go).
func (r *clientResolver) ownValueFor(value interface{}, peerAddr string) (*ObjectEntry, error) {
	if r.client.localServer == nil {
		return nil, fmt.Errorf("objproxy: %s (no LocalServer paired with this Client)", ErrNoLocalServer)
	}
	id := r.client.localServer.registry.Own(value, peerAddr)
	return r.client.localServer.registry.Get(id)
}
