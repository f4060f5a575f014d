package objproxy

// valueOwner is implemented by whichever side of a connection is
// encoding an outgoing value tree. It knows how to register a complex
// value by reference and what its own address is.
type valueOwner interface {
	ownValue(value interface{}) (*ObjectEntry, error)
	localAddress() string
}

// resolver is implemented by whichever side is decoding an incoming
// value tree. It resolves a ProxyDescriptor to either the already-owned
// local value, or to a Proxy via a Client to the descriptor's server.
type resolver interface {
	localAddress() string
	resolveLocal(id ObjectID, path []AttributePathElement) (interface{}, error)
	resolveRemote(desc *ProxyDescriptor) (*Proxy, error)
}

// dehydrate walks v, replacing any *Proxy with its ProxyDescriptor
// (never dereferencing it, so identity is preserved across the wire),
// and any other non-primitive value with either an OpaqueBlob
// (by-value) or a freshly owned ProxyDescriptor (by-reference),
// according to mode. When arrays is true, a value satisfying the
// numeric-array codec plug-in is encoded as an NDArray ahead of the
// opaque-blob/proxy fallback.
//
// A []interface{}/map[string]interface{} container recurses
// element-wise under VALUE/AUTO, since containers are meant to be
// recursed into rather than treated as opaque. Under PROXY the
// container itself is what the caller asked to reference — e.g.
// creating a proxy to a large mapping — so it is owned whole, the same
// as any other non-primitive value, rather than flattened into an
// inline structure.
func dehydrate(v interface{}, mode ReturnMode, threshold int, owner valueOwner, arrays bool) (interface{}, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case *Proxy:
		return x.Descriptor(), nil
	case []interface{}:
		if mode != ReturnProxy {
			out := make([]interface{}, len(x))
			for i, e := range x {
				d, err := dehydrate(e, mode, threshold, owner, arrays)
				if err != nil {
					return nil, err
				}
				out[i] = d
			}
			return out, nil
		}
	case map[string]interface{}:
		if mode != ReturnProxy {
			out := make(map[string]interface{}, len(x))
			for k, e := range x {
				d, err := dehydrate(e, mode, threshold, owner, arrays)
				if err != nil {
					return nil, err
				}
				out[k] = d
			}
			return out, nil
		}
	}

	if isPrimitive(v) {
		return v, nil
	}

	if arrays && mode != ReturnProxy {
		if nd, ok := EncodeArray(v); ok {
			return nd, nil
		}
	}

	switch mode {
	case ReturnValue:
		blob, err := NewOpaqueBlob(v)
		if err != nil {
			return nil, newWireError(ErrUnserializable, err.Error())
		}
		return blob, nil
	case ReturnProxy:
		e, err := owner.ownValue(v)
		if err != nil {
			return nil, err
		}
		return descriptorFor(e, owner.localAddress()), nil
	default: // ReturnAuto
		blob, err := NewOpaqueBlob(v)
		if err == nil && len(blob.Data) <= threshold {
			return blob, nil
		}
		e, err := owner.ownValue(v)
		if err != nil {
			return nil, newWireError(ErrUnserializable, err.Error())
		}
		return descriptorFor(e, owner.localAddress()), nil
	}
}

func descriptorFor(e *ObjectEntry, localAddr string) *ProxyDescriptor {
	return &ProxyDescriptor{
		ServerAddress: localAddr,
		ObjectID:      e.ID,
		TypeName:      e.TypeName,
		Capabilities:  e.Capabilities,
	}
}

// hydrate walks v, replacing any ProxyDescriptor or OpaqueBlob with its
// materialized Go value.
func hydrate(v interface{}, res resolver) (interface{}, error) {
	switch x := v.(type) {
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, e := range x {
			h, err := hydrate(e, res)
			if err != nil {
				return nil, err
			}
			out[i] = h
		}
		return out, nil
	case map[string]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, e := range x {
			h, err := hydrate(e, res)
			if err != nil {
				return nil, err
			}
			out[k] = h
		}
		return out, nil
	case *OpaqueBlob:
		val, err := x.Materialize()
		if err != nil {
			return nil, newWireError(ErrUnserializable, err.Error())
		}
		return val, nil
	case *NDArray:
		return DecodeArray(x)
	case *ProxyDescriptor:
		if x.ServerAddress == res.localAddress() {
			return res.resolveLocal(x.ObjectID, x.AttributesPath)
		}
		return res.resolveRemote(x)
	default:
		return v, nil
	}
}

// hydrateList/hydrateMap are convenience wrappers used when decoding a
// Frame's Args/Kwargs, which are statically typed slices/maps rather
// than a bare interface{}.
func hydrateList(args []interface{}, res resolver) ([]interface{}, error) {
	if args == nil {
		return nil, nil
	}
	h, err := hydrate([]interface{}(args), res)
	if err != nil {
		return nil, err
	}
	return h.([]interface{}), nil
}

func hydrateMap(kwargs map[string]interface{}, res resolver) (map[string]interface{}, error) {
	if kwargs == nil {
		return nil, nil
	}
	h, err := hydrate(map[string]interface{}(kwargs), res)
	if err != nil {
		return nil, err
	}
	return h.(map[string]interface{}), nil
}

func dehydrateList(args []interface{}, mode ReturnMode, threshold int, owner valueOwner, arrays bool) ([]interface{}, error) {
	if args == nil {
		return nil, nil
	}
	d, err := dehydrate([]interface{}(args), mode, threshold, owner, arrays)
	if err != nil {
		return nil, err
	}
	return d.([]interface{}), nil
}

func dehydrateMap(kwargs map[string]interface{}, mode ReturnMode, threshold int, owner valueOwner, arrays bool) (map[string]interface{}, error) {
	if kwargs == nil {
		return nil, nil
	}
	d, err := dehydrate(map[string]interface{}(kwargs), mode, threshold, owner, arrays)
	if err != nil {
		return nil, err
	}
	return d.(map[string]interface{}), nil
}
