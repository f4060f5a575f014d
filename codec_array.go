package objproxy

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"reflect"
)

// NDArray is the codec plug-in representation of optional numeric-array
// support: "{dtype, shape, strides, bytes}". It is only produced when
// ArraySerializer is enabled. With the plug-in off, a numeric slice is
// dehydrated like any other non-primitive value (an OpaqueBlob or a
// ProxyDescriptor, per return mode); it is not forced to by-reference.
//
// Only flat (1-d) slices of fixed-width numeric element types are
// supported ([]float64, []float32, []int32, []int64, []uint8, ...);
// nested slices such as [][]float64 are not. A value that is not
// representable goes through that same OpaqueBlob/ProxyDescriptor path.
type NDArray struct {
	Dtype   string `msgpack:"dtype"`
	Shape   []int  `msgpack:"shape"`
	Strides []int  `msgpack:"strides"`
	Bytes   []byte `msgpack:"bytes"`
}

var dtypeSizes = map[string]int{
	"float32": 4, "float64": 8,
	"int8": 1, "int16": 2, "int32": 4, "int64": 8,
	"uint8": 1, "uint16": 2, "uint32": 4, "uint64": 8,
}

// EncodeArray attempts to encode v (expected to be a flat numeric slice,
// e.g. []float64) as an NDArray. ok is false if v does not satisfy the
// buffer protocol this plug-in supports, in which case dehydrate falls
// back to its OpaqueBlob/ProxyDescriptor handling.
func EncodeArray(v interface{}) (nd *NDArray, ok bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, false
	}
	elemKind := rv.Type().Elem().Kind()
	dtype := elemKind.String()
	size, known := dtypeSizes[dtype]
	if !known {
		return nil, false
	}

	n := rv.Len()
	buf := new(bytes.Buffer)
	buf.Grow(n * size)
	for i := 0; i < n; i++ {
		if err := binary.Write(buf, binary.LittleEndian, rv.Index(i).Interface()); err != nil {
			return nil, false
		}
	}

	return &NDArray{
		Dtype:   dtype,
		Shape:   []int{n},
		Strides: []int{size},
		Bytes:   buf.Bytes(),
	}, true
}

// DecodeArray reconstructs a Go slice of the appropriate element type
// from nd.
func DecodeArray(nd *NDArray) (interface{}, error) {
	size, known := dtypeSizes[nd.Dtype]
	if !known {
		return nil, fmt.Errorf("objproxy: unknown array dtype %q", nd.Dtype)
	}
	if len(nd.Shape) != 1 {
		return nil, fmt.Errorf("objproxy: only 1-d arrays are supported, got shape %v", nd.Shape)
	}
	n := nd.Shape[0]
	if len(nd.Bytes) != n*size {
		return nil, fmt.Errorf("objproxy: array byte length %d does not match shape %v", len(nd.Bytes), nd.Shape)
	}

	r := bytes.NewReader(nd.Bytes)
	switch nd.Dtype {
	case "float64":
		out := make([]float64, n)
		return out, binary.Read(r, binary.LittleEndian, &out)
	case "float32":
		out := make([]float32, n)
		return out, binary.Read(r, binary.LittleEndian, &out)
	case "int64":
		out := make([]int64, n)
		return out, binary.Read(r, binary.LittleEndian, &out)
	case "int32":
		out := make([]int32, n)
		return out, binary.Read(r, binary.LittleEndian, &out)
	case "int16":
		out := make([]int16, n)
		return out, binary.Read(r, binary.LittleEndian, &out)
	case "int8":
		out := make([]int8, n)
		return out, binary.Read(r, binary.LittleEndian, &out)
	case "uint64":
		out := make([]uint64, n)
		return out, binary.Read(r, binary.LittleEndian, &out)
	case "uint32":
		out := make([]uint32, n)
		return out, binary.Read(r, binary.LittleEndian, &out)
	case "uint16":
		out := make([]uint16, n)
		return out, binary.Read(r, binary.LittleEndian, &out)
	case "uint8":
		out := make([]uint8, n)
		return out, binary.Read(r, binary.LittleEndian, &out)
	default:
		return nil, fmt.Errorf("objproxy: unsupported array dtype %q", nd.Dtype)
	}
}
