package objproxy

import (
	"fmt"
	"reflect"
)

// resolvePath walks path against receiver, applying each element as a
// GETATTR or GETITEM step, and returns the value the proxy's lazily
// composed chain denotes. An empty path returns receiver unchanged.
func resolvePath(receiver interface{}, path []AttributePathElement) (interface{}, error) {
	cur := receiver
	for _, e := range path {
		var err error
		if e.IsIndex {
			cur, err = getItem(cur, e.Index)
		} else {
			cur, err = getAttr(cur, e.Name)
		}
		if err != nil {
			return nil, err
		}
	}
	return cur, nil
}

// getAttr implements GETATTR for a resolved receiver: an empty name asks
// for the receiver itself (the terminal case of a lazily composed
// attribute chain with no further step).
func getAttr(v interface{}, name string) (interface{}, error) {
	if name == "" {
		return v, nil
	}
	if ah, ok := v.(AttributeHolder); ok {
		return ah.GetAttr(name)
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, newWireError(ErrUnsupportedOp, "nil pointer has no attributes")
		}
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Struct {
		if f := rv.FieldByName(name); f.IsValid() && f.CanInterface() {
			return f.Interface(), nil
		}
	}
	if mv := reflect.ValueOf(v).MethodByName(name); mv.IsValid() {
		return mv.Interface(), nil
	}
	return nil, newWireError(ErrUnsupportedOp, fmt.Sprintf("no attribute %q on %T", name, v))
}

// setAttr implements SETATTR. Only addressable struct fields reached
// through a pointer receiver can be set — a documented limitation, since
// Go (unlike the dynamic languages this protocol originated with) does
// not allow mutating a field through an unaddressable copy.
func setAttr(v interface{}, name string, value interface{}) error {
	if ah, ok := v.(AttributeHolder); ok {
		return ah.SetAttr(name, value)
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return newWireError(ErrUnsupportedOp, "nil pointer has no attributes")
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct || !rv.CanAddr() {
		return newWireError(ErrUnsupportedOp, fmt.Sprintf("%T is not an addressable struct", v))
	}
	f := rv.FieldByName(name)
	if !f.IsValid() || !f.CanSet() {
		return newWireError(ErrUnsupportedOp, fmt.Sprintf("no settable attribute %q on %T", name, v))
	}
	fv := reflect.ValueOf(value)
	if !fv.Type().AssignableTo(f.Type()) {
		if !fv.Type().ConvertibleTo(f.Type()) {
			return newWireError(ErrUnsupportedOp, fmt.Sprintf("cannot assign %T to field %q of type %s", value, name, f.Type()))
		}
		fv = fv.Convert(f.Type())
	}
	f.Set(fv)
	return nil
}

// getItem implements GETITEM.
func getItem(v interface{}, key interface{}) (interface{}, error) {
	if ix, ok := v.(Indexable); ok {
		return ix.GetItem(key)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		kv, err := convertKey(key, rv.Type().Key())
		if err != nil {
			return nil, err
		}
		mv := rv.MapIndex(kv)
		if !mv.IsValid() {
			return nil, newWireError(ErrUnknownObject, fmt.Sprintf("key %v not found", key))
		}
		return mv.Interface(), nil
	case reflect.Slice, reflect.Array, reflect.String:
		idx, ok := toInt(key)
		if !ok || idx < 0 || idx >= rv.Len() {
			return nil, newWireError(ErrUnsupportedOp, "index out of range")
		}
		return rv.Index(idx).Interface(), nil
	}
	return nil, newWireError(ErrUnsupportedOp, fmt.Sprintf("%T is not indexable", v))
}

// setItem implements SETITEM.
func setItem(v interface{}, key interface{}, value interface{}) error {
	if ix, ok := v.(Indexable); ok {
		return ix.SetItem(key, value)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.IsNil() {
			return newWireError(ErrUnsupportedOp, "cannot set item on a nil map")
		}
		kv, err := convertKey(key, rv.Type().Key())
		if err != nil {
			return err
		}
		vv := reflect.ValueOf(value)
		if !vv.Type().AssignableTo(rv.Type().Elem()) {
			if !vv.Type().ConvertibleTo(rv.Type().Elem()) {
				return newWireError(ErrUnsupportedOp, fmt.Sprintf("cannot assign %T into map of %s", value, rv.Type().Elem()))
			}
			vv = vv.Convert(rv.Type().Elem())
		}
		rv.SetMapIndex(kv, vv)
		return nil
	case reflect.Slice:
		idx, ok := toInt(key)
		if !ok || idx < 0 || idx >= rv.Len() {
			return newWireError(ErrUnsupportedOp, "index out of range")
		}
		elem := rv.Index(idx)
		vv := reflect.ValueOf(value)
		if !vv.Type().AssignableTo(elem.Type()) {
			return newWireError(ErrUnsupportedOp, fmt.Sprintf("cannot assign %T into slice of %s", value, elem.Type()))
		}
		elem.Set(vv)
		return nil
	}
	return newWireError(ErrUnsupportedOp, fmt.Sprintf("%T does not support item assignment", v))
}

// delItem implements DELITEM. Only maps support deletion; Go slices have
// no in-place "remove and shift" that preserves identity for other
// holders, so deleting a slice element is out of scope.
func delItem(v interface{}, key interface{}) error {
	if ix, ok := v.(Indexable); ok {
		return ix.DelItem(key)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map {
		return newWireError(ErrUnsupportedOp, fmt.Sprintf("%T does not support item deletion", v))
	}
	kv, err := convertKey(key, rv.Type().Key())
	if err != nil {
		return err
	}
	rv.SetMapIndex(kv, reflect.Value{})
	return nil
}

// lenValue implements LEN.
func lenValue(v interface{}) (int, error) {
	if l, ok := v.(Lener); ok {
		return l.Len(), nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.String, reflect.Chan:
		return rv.Len(), nil
	}
	return 0, newWireError(ErrUnsupportedOp, fmt.Sprintf("%T has no len", v))
}

// compareValues implements CMP. CMP_EQ/CMP_NE fall back to
// reflect.DeepEqual for any type; ordering comparisons require Comparer.
func compareValues(a, b interface{}, op CmpOp) (bool, error) {
	if op == CmpEq || op == CmpNe {
		eq := reflect.DeepEqual(a, b)
		if cmp, ok := a.(Comparer); ok {
			n, err := cmp.Compare(b)
			if err == nil {
				eq = n == 0
			}
		}
		if op == CmpEq {
			return eq, nil
		}
		return !eq, nil
	}
	cmp, ok := a.(Comparer)
	if !ok {
		return false, newWireError(ErrUnsupportedOp, fmt.Sprintf("%T does not support ordering comparisons", a))
	}
	n, err := cmp.Compare(b)
	if err != nil {
		return false, err
	}
	switch op {
	case CmpLt:
		return n < 0, nil
	case CmpLe:
		return n <= 0, nil
	case CmpGt:
		return n > 0, nil
	case CmpGe:
		return n >= 0, nil
	}
	return false, newWireError(ErrUnsupportedOp, fmt.Sprintf("unknown comparison %q", op))
}

// callValue implements CALL. A Caller gets first refusal; otherwise a
// plain reflect.Func is invoked positionally (kwargs are not supported
// for plain functions, since Go has no named-parameter calling
// convention). Panics inside the target (e.g. a convertibility mismatch)
// are recovered and reported as UNSUPPORTED_OP rather than killing the
// session's executor goroutine.
func callValue(v interface{}, args []interface{}, kwargs map[string]interface{}) (result interface{}, err error) {
	if c, ok := v.(Caller); ok {
		return c.Call(args, kwargs)
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Func {
		return nil, newWireError(ErrUnsupportedOp, fmt.Sprintf("%T is not callable", v))
	}
	if len(kwargs) > 0 {
		return nil, newWireError(ErrUnsupportedOp, "keyword arguments are not supported for plain functions")
	}

	defer func() {
		if r := recover(); r != nil {
			err = newWireError(ErrUnsupportedOp, fmt.Sprintf("call failed: %v", r))
		}
	}()

	rt := rv.Type()
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		if rt.IsVariadic() && i >= rt.NumIn()-1 {
			in[i] = reflect.ValueOf(a)
			continue
		}
		if i < rt.NumIn() {
			want := rt.In(i)
			av := reflect.ValueOf(a)
			if a == nil {
				in[i] = reflect.Zero(want)
			} else if av.Type().AssignableTo(want) {
				in[i] = av
			} else if av.Type().ConvertibleTo(want) {
				in[i] = av.Convert(want)
			} else {
				in[i] = av
			}
		} else {
			in[i] = reflect.ValueOf(a)
		}
	}

	out := rv.Call(in)
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		return unwrapResult(out[0])
	default:
		last := out[len(out)-1]
		if isErrorType(last.Type()) {
			vals := make([]interface{}, len(out)-1)
			for i := 0; i < len(out)-1; i++ {
				vals[i] = out[i].Interface()
			}
			var callErr error
			if !last.IsNil() {
				callErr = last.Interface().(error)
			}
			if len(vals) == 1 {
				return vals[0], wrapIfErr(callErr)
			}
			return vals, wrapIfErr(callErr)
		}
		vals := make([]interface{}, len(out))
		for i := range out {
			vals[i] = out[i].Interface()
		}
		return vals, nil
	}
}

func unwrapResult(v reflect.Value) (interface{}, error) {
	if isErrorType(v.Type()) {
		if v.IsNil() {
			return nil, nil
		}
		return nil, wrapIfErr(v.Interface().(error))
	}
	return v.Interface(), nil
}

func wrapIfErr(err error) error {
	if err == nil {
		return nil
	}
	return newWireError(ErrRemoteRaised, err.Error())
}

var errorInterfaceType = reflect.TypeOf((*error)(nil)).Elem()

func isErrorType(t reflect.Type) bool {
	return t.Implements(errorInterfaceType)
}

func convertKey(key interface{}, want reflect.Type) (reflect.Value, error) {
	kv := reflect.ValueOf(key)
	if kv.Type().AssignableTo(want) {
		return kv, nil
	}
	if kv.Type().ConvertibleTo(want) {
		return kv.Convert(want), nil
	}
	return reflect.Value{}, newWireError(ErrUnsupportedOp, fmt.Sprintf("key %T not assignable to %s", key, want))
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	default:
		return 0, false
	}
}
