package objproxy

import "reflect"

// Capability is one bit of the closed enumeration of polymorphic
// operations a value may support: CALL, GETITEM, SETITEM, ITER, LEN,
// CMP_EQ, CMP_ORD, GETATTR, CONTEXT, BUFFER.
type Capability uint16

const (
	CapCall Capability = 1 << iota
	CapGetItem
	CapSetItem
	CapIter
	CapLen
	CapCmpEq
	CapCmpOrd
	CapGetAttr
	CapContext
	CapBuffer
)

var capabilityNames = map[Capability]string{
	CapCall:    "CALL",
	CapGetItem: "GETITEM",
	CapSetItem: "SETITEM",
	CapIter:    "ITER",
	CapLen:     "LEN",
	CapCmpEq:   "CMP_EQ",
	CapCmpOrd:  "CMP_ORD",
	CapGetAttr: "GETATTR",
	CapContext: "CONTEXT",
	CapBuffer:  "BUFFER",
}

// Has reports whether c includes bit.
func (c Capability) Has(bit Capability) bool {
	return c&bit != 0
}

func (c Capability) String() string {
	s := ""
	for bit, name := range capabilityNames {
		if c.Has(bit) {
			if s != "" {
				s += "|"
			}
			s += name
		}
	}
	if s == "" {
		return "NONE"
	}
	return s
}

// Caller is implemented by values that want to define their own CALL
// semantics rather than rely on reflect-based function invocation.
type Caller interface {
	Call(args []interface{}, kwargs map[string]interface{}) (interface{}, error)
}

// AttributeHolder is implemented by values that want to define their own
// GETATTR/SETATTR semantics rather than rely on reflect-based field and
// method lookup.
type AttributeHolder interface {
	GetAttr(name string) (interface{}, error)
	SetAttr(name string, value interface{}) error
}

// Indexable is implemented by values that want to define their own
// GETITEM/SETITEM/DELITEM semantics rather than rely on reflect-based map
// and slice indexing.
type Indexable interface {
	GetItem(key interface{}) (interface{}, error)
	SetItem(key interface{}, value interface{}) error
	DelItem(key interface{}) error
}

// Lener is implemented by values that want to define their own LEN
// semantics rather than rely on reflect.Value.Len.
type Lener interface {
	Len() int
}

// Comparer is implemented by values that want to define their own CMP
// semantics. Compare returns <0, 0, or >0 for ordering comparisons;
// CMP_EQ is satisfied by any type (falls back to reflect.DeepEqual), but
// CMP_ORD requires Comparer.
type Comparer interface {
	Compare(other interface{}) (int, error)
}

// computeCapabilities inspects value once, at the moment it is first
// registered by reference, and returns the full capability set it
// supports. This lets a Proxy be constructed client-side without a
// round trip to ask "can I call this?" for every operation.
func computeCapabilities(value interface{}) Capability {
	var caps Capability
	if value == nil {
		return caps
	}

	if _, ok := value.(Caller); ok {
		caps |= CapCall
	}
	if _, ok := value.(AttributeHolder); ok {
		caps |= CapGetAttr
	}
	if _, ok := value.(Indexable); ok {
		caps |= CapGetItem | CapSetItem
	}
	if _, ok := value.(Lener); ok {
		caps |= CapLen
	}
	if _, ok := value.(Comparer); ok {
		caps |= CapCmpEq | CapCmpOrd
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Func:
		caps |= CapCall
	case reflect.Map, reflect.Slice, reflect.Array:
		caps |= CapGetItem | CapLen
		if rv.Kind() == reflect.Map || rv.Kind() == reflect.Slice {
			caps |= CapSetItem
		}
	case reflect.String:
		caps |= CapGetItem | CapLen
	case reflect.Chan:
		caps |= CapIter
	}
	if rv.Kind() != reflect.Invalid && rv.Kind() != reflect.Func && rv.Kind() != reflect.Chan {
		caps |= CapCmpEq
	}
	if rv.Kind() == reflect.Struct || rv.Kind() == reflect.Ptr {
		caps |= CapGetAttr
	}
	return caps
}
