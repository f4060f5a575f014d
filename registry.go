package objproxy

import (
	"fmt"
	"reflect"
	"sync"
)

// ObjectEntry is the Server-side record of a value that has left the
// Server by reference. capabilities is precomputed once, at creation, so
// a Proxy can be constructed on the caller without a follow-up round
// trip.
type ObjectEntry struct {
	ID           ObjectID
	Value        interface{}
	TypeName     string
	Capabilities Capability

	mu       sync.Mutex
	refcount int
	byPeer   map[string]int
}

func (e *ObjectEntry) String() string {
	return fmt.Sprintf("ObjectEntry#%d(%s)", e.ID, e.TypeName)
}

// ObjectRegistry is a per-Server table mapping ObjectIDs to owned values,
// with refcount bookkeeping attributed to the peer that holds each
// reference, and GC hooks for when the last reference is released.
type ObjectRegistry struct {
	Logger

	mu         sync.Mutex
	ids        idGenerator
	byID       map[ObjectID]*ObjectEntry
	byValueKey map[interface{}]*ObjectEntry

	// OnRelease, if set, is called synchronously after an ObjectEntry's
	// refcount reaches zero and it has been removed from the registry.
	OnRelease func(*ObjectEntry)
}

// NewObjectRegistry creates an empty registry.
func NewObjectRegistry(logger Logger) *ObjectRegistry {
	return &ObjectRegistry{
		Logger:     logger,
		byID:       make(map[ObjectID]*ObjectEntry),
		byValueKey: make(map[interface{}]*ObjectEntry),
	}
}

// pointerKey is the identity key for a reference type (map, slice, func,
// chan) that can never be a Go map key directly: its reflect.Value.Pointer
// names the same underlying backing store/code pointer for every copy of
// the same header, which is exactly the notion of "same object" Own
// needs to be idempotent over (e.g. exporting the same large mapping, or
// the same callback func, twice).
type pointerKey struct {
	kind reflect.Kind
	ptr  uintptr
}

// valueKey returns a key Own can use to recognize "the same value again".
// Directly comparable values (structs of comparable fields, pointers,
// scalars) use themselves as the key. Maps, slices, funcs, and chans are
// never Go-comparable, but they do carry a header pointer identifying
// their backing store, so those use a pointerKey instead — without this,
// exporting a mapping or a callback twice would mint a fresh ObjectEntry
// and a fresh ObjectID every time, handing out two different IDs for
// what should be recognized as the same object and letting GET_ID
// disagree with itself across calls. A nil reference-typed value, or
// some other genuinely incomparable type (e.g. a struct embedding a
// slice), still falls back to minting a fresh entry per Own call.
func valueKey(value interface{}) (key interface{}, comparable bool) {
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if rv.IsNil() {
			return nil, false
		}
		return pointerKey{kind: rv.Kind(), ptr: rv.Pointer()}, true
	}

	defer func() {
		if recover() != nil {
			comparable = false
		}
	}()
	m := map[interface{}]struct{}{value: {}}
	_ = m
	return value, true
}

// Own registers value (if not already registered) and attributes one
// reference to peerAddr, returning its ObjectID. Own is idempotent by
// value identity: the same comparable value returns the same id and
// bumps its refcount.
func (r *ObjectRegistry) Own(value interface{}, peerAddr string) ObjectID {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, comparable := valueKey(value)
	if comparable {
		if e, ok := r.byValueKey[key]; ok {
			e.incref(peerAddr, 1)
			return e.ID
		}
	}

	e := &ObjectEntry{
		ID:           r.ids.nextObjectID(),
		Value:        value,
		TypeName:     fmt.Sprintf("%T", value),
		Capabilities: computeCapabilities(value),
		byPeer:       make(map[string]int),
	}
	e.incref(peerAddr, 1)
	r.byID[e.ID] = e
	if comparable {
		r.byValueKey[key] = e
	}
	r.DLogf("registry: own %s for peer %s", e, peerAddr)
	return e.ID
}

func (e *ObjectEntry) incref(peerAddr string, n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.refcount += n
	e.byPeer[peerAddr] += n
}

// Get resolves id to its owned value, or returns ErrUnknownObject if the
// entry is not present or has already been released.
func (r *ObjectRegistry) Get(id ObjectID) (*ObjectEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok {
		return nil, newWireError(ErrUnknownObject, fmt.Sprintf("object %d not found", id))
	}
	return e, nil
}

// Incref adds n references to id, attributed to peerAddr.
func (r *ObjectRegistry) Incref(id ObjectID, peerAddr string, n int) error {
	r.mu.Lock()
	e, ok := r.byID[id]
	r.mu.Unlock()
	if !ok {
		return newWireError(ErrUnknownObject, fmt.Sprintf("object %d not found", id))
	}
	e.incref(peerAddr, n)
	return nil
}

// Decref removes n references to id contributed by peerAddr. Once an
// entry's refcount reaches zero it is retired: removed from the
// registry (its ID is never reused) and OnRelease is invoked.
func (r *ObjectRegistry) Decref(id ObjectID, peerAddr string, n int) error {
	r.mu.Lock()
	e, ok := r.byID[id]
	r.mu.Unlock()
	if !ok {
		// Already released; decref of an unknown object is not an error,
		// since RELEASE notices may race with a registry drain.
		return nil
	}

	e.mu.Lock()
	e.refcount -= n
	e.byPeer[peerAddr] -= n
	if e.byPeer[peerAddr] <= 0 {
		delete(e.byPeer, peerAddr)
	}
	done := e.refcount <= 0
	e.mu.Unlock()

	if done {
		r.retire(e)
	}
	return nil
}

// ReleaseAllFrom atomically drops every reference contributed by
// peerAddr across the whole registry, e.g. on peer disconnect.
func (r *ObjectRegistry) ReleaseAllFrom(peerAddr string) {
	r.mu.Lock()
	entries := make([]*ObjectEntry, 0, len(r.byID))
	for _, e := range r.byID {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	for _, e := range entries {
		e.mu.Lock()
		n := e.byPeer[peerAddr]
		if n == 0 {
			e.mu.Unlock()
			continue
		}
		e.refcount -= n
		delete(e.byPeer, peerAddr)
		done := e.refcount <= 0
		e.mu.Unlock()
		if done {
			r.retire(e)
		}
	}
}

func (r *ObjectRegistry) retire(e *ObjectEntry) {
	r.mu.Lock()
	delete(r.byID, e.ID)
	if key, comparable := valueKey(e.Value); comparable {
		delete(r.byValueKey, key)
	}
	r.mu.Unlock()
	r.DLogf("registry: retire %s", e)
	if r.OnRelease != nil {
		r.OnRelease(e)
	}
}

// DrainAll retires every entry still in the registry, as happens when a
// Server closes.
func (r *ObjectRegistry) DrainAll() {
	r.mu.Lock()
	entries := make([]*ObjectEntry, 0, len(r.byID))
	for _, e := range r.byID {
		entries = append(entries, e)
	}
	r.mu.Unlock()
	for _, e := range entries {
		r.retire(e)
	}
}
