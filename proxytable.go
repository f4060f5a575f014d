package objproxy

import (
	"runtime"
	"sync"
)

// proxyKey is the ProxyTable lookup key: (server_address, object_id,
// attributes_path).
type proxyKey struct {
	serverAddress string
	objectID      ObjectID
	attrPath      string
}

// ProxyTable is a per-Client weak cache of live Proxy handles. While any
// live proxy for a given descriptor exists, looking up the same
// descriptor again returns the same handle. "Weak" is realized with
// runtime.SetFinalizer, the idiomatic Go stand-in
// for a native weak-reference map: once nothing else holds the Proxy, the
// GC may collect it, the finalizer fires, the table entry is dropped, and
// a RELEASE is scheduled for the underlying ObjectEntry.
type ProxyTable struct {
	mu      sync.Mutex
	entries map[proxyKey]*Proxy

	// OnFinalized is called (outside the table's lock) when a Proxy with
	// the given descriptor is garbage collected, so the owning Client or
	// Server can schedule its RELEASE notification over the exact session
	// the proxy was bound to — not re-derived by matching addresses,
	// since a proxy's descriptor names the value's owning address (e.g. a
	// paired LocalServer), which need not equal any session's
	// RemoteAddress().
	OnFinalized func(desc *ProxyDescriptor, s *session)
}

// NewProxyTable creates an empty ProxyTable.
func NewProxyTable() *ProxyTable {
	return &ProxyTable{entries: make(map[proxyKey]*Proxy)}
}

// GetOrCreate returns the live Proxy for desc if one exists, else calls
// create() to make one, registers it for weak tracking, and returns it.
func (t *ProxyTable) GetOrCreate(desc *ProxyDescriptor, create func() *Proxy) *Proxy {
	key := desc.key()

	t.mu.Lock()
	if p, ok := t.entries[key]; ok {
		t.mu.Unlock()
		return p
	}
	t.mu.Unlock()

	p := create()

	t.mu.Lock()
	// Another goroutine may have raced us; prefer whichever was stored
	// first so identity is preserved for any holder of the loser.
	if existing, ok := t.entries[key]; ok {
		t.mu.Unlock()
		return existing
	}
	t.entries[key] = p
	t.mu.Unlock()

	runtime.SetFinalizer(p, func(p *Proxy) {
		t.mu.Lock()
		if t.entries[key] == p {
			delete(t.entries, key)
		}
		t.mu.Unlock()
		if t.OnFinalized != nil {
			t.OnFinalized(desc, p.session)
		}
	})

	return p
}

// Forget removes a proxy from the table without running its finalizer
// logic (used when the Proxy is explicitly released rather than
// garbage collected).
func (t *ProxyTable) Forget(desc *ProxyDescriptor, p *Proxy) {
	key := desc.key()
	t.mu.Lock()
	if t.entries[key] == p {
		delete(t.entries, key)
	}
	t.mu.Unlock()
	runtime.SetFinalizer(p, nil)
}

// Len reports the number of live proxies currently tracked, for tests.
func (t *ProxyTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
