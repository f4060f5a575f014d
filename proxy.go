package objproxy

import (
	"fmt"
	"time"
)

// ownerForPeer is implemented by the two concrete resolver types
// (clientResolver, serverSessionResolver); it registers a value by
// reference attributed to a specific peer, which a Proxy only knows at
// the moment it sends a request over a particular session.
type ownerForPeer interface {
	ownValueFor(value interface{}, peerAddr string) (*ObjectEntry, error)
}

// proxyArgOwner adapts a resolver + a concrete session into the
// valueOwner a single outbound dehydrate() call needs.
type proxyArgOwner struct {
	res      resolver
	peerAddr string
}

func (o *proxyArgOwner) localAddress() string { return o.res.localAddress() }

func (o *proxyArgOwner) ownValue(v interface{}) (*ObjectEntry, error) {
	owner, ok := o.res.(ownerForPeer)
	if !ok {
		return nil, fmt.Errorf("objproxy: this resolver cannot own values by reference")
	}
	return owner.ownValueFor(v, o.peerAddr)
}

// Proxy is a transparent handle to a value that lives in another
// process. Attribute and index access compose
// lazily, without a round trip; a terminal operation (Call, GetItem,
// SetItem, DelItem, Len, Compare) sends exactly one
// request carrying the whole accumulated path.
type Proxy struct {
	desc *ProxyDescriptor

	session   *session
	reentrant bool
	res       resolver
	timeout   time.Duration
	threshold int
	arrays    bool

	// table is the ProxyTable this proxy was registered in, if it is a
	// root proxy (one obtained by decoding a ProxyDescriptor off the
	// wire). Derived proxies produced by
	// Attr/Index have a nil table: composing a lazy path never mints a
	// new remote reference, so they have nothing of their own to forget.
	table *ProxyTable

	// parent keeps a root proxy reachable for as long as any proxy
	// derived from it (via Attr/Index) is reachable, so the Go garbage
	// collector cannot finalize — and release — the root out from under
	// a live derived handle.
	parent *Proxy

	released bool
}

func newProxy(s *session, reentrant bool, res resolver, desc *ProxyDescriptor, timeout time.Duration, threshold int, arrays bool, table *ProxyTable) *Proxy {
	return &Proxy{desc: desc, session: s, reentrant: reentrant, res: res, timeout: timeout, threshold: threshold, arrays: arrays, table: table}
}

// isRoot reports whether this proxy itself owns a remote reference that
// must eventually be released — true for any proxy obtained by decoding
// a wire descriptor, false for one produced locally by Attr/Index.
func (p *Proxy) isRoot() bool {
	return p.parent == nil
}

// Descriptor returns the wire identity of this proxy, used when
// dehydrating it as an argument or return value — a Proxy is never
// dereferenced while being serialized.
func (p *Proxy) Descriptor() *ProxyDescriptor {
	return p.desc
}

// Attr composes a further attribute-access step without a round trip.
func (p *Proxy) Attr(name string) *Proxy {
	child := newProxy(p.session, p.reentrant, p.res, p.desc.withAttr(AttributePathElement{Name: name}), p.timeout, p.threshold, p.arrays, nil)
	child.parent = p
	return child
}

// Index composes a further item-access step without a round trip.
func (p *Proxy) Index(key interface{}) *Proxy {
	child := newProxy(p.session, p.reentrant, p.res, p.desc.withAttr(AttributePathElement{Index: key, IsIndex: true}), p.timeout, p.threshold, p.arrays, nil)
	child.parent = p
	return child
}

// Value resolves the path composed so far and returns the remote value
// itself, via a terminal GETATTR with no further name.
func (p *Proxy) Value(mode InvocationMode) (interface{}, error) {
	return p.invoke(&Frame{Op: OpGetAttr}, mode)
}

// Call invokes the proxy's target.
func (p *Proxy) Call(args []interface{}, kwargs map[string]interface{}, mode InvocationMode, returnMode ReturnMode) (interface{}, error) {
	return p.invoke(&Frame{Op: OpCall, Args: args, Kwargs: kwargs, ReturnMode: returnMode}, mode)
}

// GetAttr fetches a named attribute of the proxy's current path.
func (p *Proxy) GetAttr(name string, mode InvocationMode, returnMode ReturnMode) (interface{}, error) {
	return p.invoke(&Frame{Op: OpGetAttr, Args: []interface{}{name}, ReturnMode: returnMode}, mode)
}

// SetAttr sets a named attribute.
func (p *Proxy) SetAttr(name string, value interface{}, mode InvocationMode) error {
	_, err := p.invoke(&Frame{Op: OpSetAttr, Args: []interface{}{name, value}}, mode)
	return err
}

// GetItem fetches an item by key/index.
func (p *Proxy) GetItem(key interface{}, mode InvocationMode, returnMode ReturnMode) (interface{}, error) {
	return p.invoke(&Frame{Op: OpGetItem, Args: []interface{}{key}, ReturnMode: returnMode}, mode)
}

// SetItem sets an item by key/index.
func (p *Proxy) SetItem(key interface{}, value interface{}, mode InvocationMode) error {
	_, err := p.invoke(&Frame{Op: OpSetItem, Args: []interface{}{key, value}}, mode)
	return err
}

// DelItem removes an item by key/index.
func (p *Proxy) DelItem(key interface{}, mode InvocationMode) error {
	_, err := p.invoke(&Frame{Op: OpDelItem, Args: []interface{}{key}}, mode)
	return err
}

// GetID returns the ObjectID the proxy's current path resolves to on its
// owning Server, for identity checks: the same underlying value always
// yields the same ID regardless of the path used to reach it.
func (p *Proxy) GetID() (ObjectID, error) {
	v, err := p.invoke(&Frame{Op: OpGetID}, ModeSync)
	if err != nil {
		return 0, err
	}
	n, _ := v.(int64)
	return ObjectID(n), nil
}

// Len returns len() of the proxy's current path.
func (p *Proxy) Len() (int, error) {
	v, err := p.invoke(&Frame{Op: OpLen}, ModeSync)
	if err != nil {
		return 0, err
	}
	n, _ := toInt(v)
	return n, nil
}

// Compare performs a structural CMP.
func (p *Proxy) Compare(op CmpOp, other interface{}) (bool, error) {
	v, err := p.invoke(&Frame{Op: OpCmp, CmpOp: op, Args: []interface{}{other}}, ModeSync)
	if err != nil {
		return false, err
	}
	b, _ := v.(bool)
	return b, nil
}

// AsyncCall returns a Future for a CALL, without blocking the caller.
func (p *Proxy) AsyncCall(args []interface{}, kwargs map[string]interface{}, returnMode ReturnMode) (*Future, error) {
	f := &Frame{Op: OpCall, Args: args, Kwargs: kwargs, ReturnMode: returnMode, Mode: ModeAsync}
	return p.invokeAsync(f)
}

func (p *Proxy) invoke(f *Frame, mode InvocationMode) (interface{}, error) {
	f.Mode = mode
	f.Kind = KindRequest
	f.Target = p.desc.ObjectID
	f.Path = p.desc.AttributesPath

	if err := p.dehydrateArgs(f); err != nil {
		return nil, err
	}

	reply, err := p.roundTrip(f)
	if err != nil {
		return nil, err
	}
	if mode == ModeOff {
		return nil, nil
	}
	if !reply.isOK() {
		return nil, wireErrorFromFrame(reply)
	}
	return hydrate(reply.Payload, p.res)
}

// dehydrateArgs replaces any complex value in f.Args/f.Kwargs with an
// OpaqueBlob or a freshly owned ProxyDescriptor, attributing any new
// by-reference ownership to the peer this Proxy's session talks to. A
// *Proxy argument is left to dehydrate as its own ProxyDescriptor
// regardless of mode, per dehydrate's existing handling.
func (p *Proxy) dehydrateArgs(f *Frame) error {
	owner := &proxyArgOwner{res: p.res, peerAddr: p.session.RemoteAddress()}
	args, err := dehydrateList(f.Args, ReturnAuto, p.threshold, owner, p.arrays)
	if err != nil {
		return err
	}
	kwargs, err := dehydrateMap(f.Kwargs, ReturnAuto, p.threshold, owner, p.arrays)
	if err != nil {
		return err
	}
	f.Args = args
	f.Kwargs = kwargs
	return nil
}

func (p *Proxy) roundTrip(f *Frame) (*Frame, error) {
	f.ID = p.session.nextRequestID()
	if p.reentrant {
		if f.Mode == ModeOff {
			return nil, p.session.send(f)
		}
		return p.session.sendRequestReentrant(f)
	}
	return p.session.sendRequest(f, p.timeout)
}

func (p *Proxy) invokeAsync(f *Frame) (*Future, error) {
	f.Kind = KindRequest
	f.Target = p.desc.ObjectID
	f.Path = p.desc.AttributesPath

	if err := p.dehydrateArgs(f); err != nil {
		return nil, err
	}

	f.ID = p.session.nextRequestID()

	ch := p.session.registerPending(f.ID)
	if err := p.session.send(f); err != nil {
		p.session.unregisterPending(f.ID)
		return nil, err
	}
	return newFuture(p.session, f.ID, ch, p.res), nil
}

// Release drops this proxy's reference to the remote object, scheduling
// a RELEASE notice through the owning session's batcher. Safe to call
// more than once. A proxy derived from another via
// Attr/Index never minted its own remote reference, so releasing it is a
// local no-op — the underlying reference is dropped when the root proxy
// it was derived from is released or garbage collected.
func (p *Proxy) Release() {
	if p.released {
		return
	}
	p.released = true
	if !p.isRoot() {
		return
	}
	if p.table != nil {
		p.table.Forget(p.desc, p)
	}
	p.session.scheduleRelease(p.desc.ObjectID, 1)
}

func wireErrorFromFrame(f *Frame) error {
	return &WireError{Kind: f.Status, Remote: f.Remote}
}
