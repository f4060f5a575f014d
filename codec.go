package objproxy

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
)

// Extension type IDs for the tagged records the Codec knows how to
// thread through an otherwise generic msgpack value tree. These are
// reserved markers distinct from any user payload.
const (
	extProxyDescriptor int8 = 1
	extOpaqueBlob      int8 = 2
	extNDArray         int8 = 3
)

func init() {
	msgpack.RegisterExt(extProxyDescriptor, (*ProxyDescriptor)(nil))
	msgpack.RegisterExt(extOpaqueBlob, (*OpaqueBlob)(nil))
	msgpack.RegisterExt(extNDArray, (*NDArray)(nil))
}

// MarshalMsgpack implements msgpack's CustomEncoder.
func (nd *NDArray) MarshalMsgpack() ([]byte, error) {
	type wire NDArray
	return msgpack.Marshal((*wire)(nd))
}

// UnmarshalMsgpack implements msgpack's CustomDecoder.
func (nd *NDArray) UnmarshalMsgpack(b []byte) error {
	type wire NDArray
	return msgpack.Unmarshal(b, (*wire)(nd))
}

// MarshalMsgpack implements msgpack's CustomEncoder so a ProxyDescriptor
// embedded anywhere in a value tree (including inside interface{} slots)
// round-trips as itself rather than decoding back into a generic map.
func (d *ProxyDescriptor) MarshalMsgpack() ([]byte, error) {
	type wire ProxyDescriptor
	return msgpack.Marshal((*wire)(d))
}

// UnmarshalMsgpack implements msgpack's CustomDecoder.
func (d *ProxyDescriptor) UnmarshalMsgpack(b []byte) error {
	type wire ProxyDescriptor
	return msgpack.Unmarshal(b, (*wire)(d))
}

// OpaqueBlob is the Codec's fallback representation for a value with no
// primitive or Proxy representation: a purely value-copying encoding
// that preserves identity through a second round trip but captures no
// reference to the sender's process. TypeName is informational only;
// Data is a gob-encoded snapshot of the value.
type OpaqueBlob struct {
	TypeName string
	Data     []byte
}

// MarshalMsgpack implements msgpack's CustomEncoder.
func (o *OpaqueBlob) MarshalMsgpack() ([]byte, error) {
	type wire OpaqueBlob
	return msgpack.Marshal((*wire)(o))
}

// UnmarshalMsgpack implements msgpack's CustomDecoder.
func (o *OpaqueBlob) UnmarshalMsgpack(b []byte) error {
	type wire OpaqueBlob
	return msgpack.Unmarshal(b, (*wire)(o))
}

// NewOpaqueBlob gob-encodes value into an OpaqueBlob. It returns an error
// if value cannot be gob-encoded (e.g. a struct with no exported fields,
// a channel, or a func); callers fall back to by-reference on error. value's
// concrete type is registered with gob on the fly: gob refuses to encode
// an interface{} at all, not just decode one, unless the dynamic type
// behind it has been registered, and a Server has no opportunity to
// pre-register every type its exported values might ever hold.
func NewOpaqueBlob(value interface{}) (*OpaqueBlob, error) {
	if value != nil {
		gob.Register(value)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&value); err != nil {
		return nil, err
	}
	return &OpaqueBlob{
		TypeName: fmt.Sprintf("%T", value),
		Data:     buf.Bytes(),
	}, nil
}

// Materialize attempts to gob-decode the blob back into a Go value. If
// decoding fails (e.g. the receiving process never registered the
// concrete type with gob), it returns the error; hydrate reports that as
// UNSERIALIZABLE. No by-reference proxy is produced in its place.
func (o *OpaqueBlob) Materialize() (interface{}, error) {
	var value interface{}
	if err := gob.NewDecoder(bytes.NewReader(o.Data)).Decode(&value); err != nil {
		return nil, err
	}
	return value, nil
}

// Codec encodes/decodes Frames and the value trees nested within them.
// The wire encoding itself is delegated to vmihailenco/msgpack; this
// type additionally implements the by-value/by-reference policy for
// values that are not already a *Proxy or a primitive.
type Codec struct {
	// AutoProxyThreshold is the byte size above which AUTO return mode
	// prefers by-reference over by-value.
	AutoProxyThreshold int

	// ArraySerializer enables the optional numeric-array codec plug-in
	// (see codec_array.go). Off by default.
	ArraySerializer bool
}

// NewCodec creates a Codec with the given auto-proxy threshold and
// array-serializer setting.
func NewCodec(autoProxyThreshold int, arraySerializer bool) *Codec {
	return &Codec{AutoProxyThreshold: autoProxyThreshold, ArraySerializer: arraySerializer}
}

// EncodeFrame serializes f to bytes. Frames must already have had their
// value trees dehydrated (Proxies turned into ProxyDescriptors, opaque
// values turned into OpaqueBlobs or left to fail) by dehydrate.
func (c *Codec) EncodeFrame(f *Frame) ([]byte, error) {
	return msgpack.Marshal(f)
}

// DecodeFrame deserializes bytes into a Frame. Callers must run hydrate
// over the result before handing Args/Kwargs/Payload to application code.
func (c *Codec) DecodeFrame(data []byte) (*Frame, error) {
	f := &Frame{}
	if err := msgpack.Unmarshal(data, f); err != nil {
		return nil, err
	}
	return f, nil
}

// isPrimitive reports whether v is already one of the Codec's primitive
// types (null, bool, integer, float, string, or binary) and therefore
// never needs by-reference or opaque-blob handling.
func isPrimitive(v interface{}) bool {
	switch v.(type) {
	case nil, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64,
		string, []byte:
		return true
	default:
		return false
	}
}

// isScalarKind reports whether v's reflect.Kind is a simple, immutable
// scalar — the Codec is biased toward copying these by value even under
// AUTO when wrapped in a container.
func isScalarKind(v interface{}) bool {
	if isPrimitive(v) {
		return true
	}
	k := reflect.ValueOf(v).Kind()
	switch k {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}
