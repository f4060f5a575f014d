package objproxy

import (
	"reflect"
	"testing"
)

func TestEncodeDecodeArrayRoundTrip(t *testing.T) {
	cases := []interface{}{
		[]float64{1, 2, 3.25},
		[]float32{1, 2, 3.25},
		[]int64{-5, 0, 5},
		[]int32{-5, 0, 5},
		[]int16{-5, 0, 5},
		[]int8{-5, 0, 5},
		[]uint64{0, 1, 2},
		[]uint32{0, 1, 2},
		[]uint16{0, 1, 2},
	}
	for _, v := range cases {
		nd, ok := EncodeArray(v)
		if !ok {
			t.Errorf("EncodeArray(%T) refused to encode", v)
			continue
		}
		back, err := DecodeArray(nd)
		if err != nil {
			t.Errorf("DecodeArray(%T) failed: %s", v, err)
			continue
		}
		if !reflect.DeepEqual(back, v) {
			t.Errorf("round trip of %T: got %v, want %v", v, back, v)
		}
	}
}

func TestEncodeArrayRejectsNonSlice(t *testing.T) {
	if _, ok := EncodeArray(42); ok {
		t.Errorf("EncodeArray(42) should refuse a non-slice value")
	}
	if _, ok := EncodeArray(struct{}{}); ok {
		t.Errorf("EncodeArray(struct{}{}) should refuse a non-slice value")
	}
}

func TestEncodeArrayRejectsSliceOfUnsupportedElement(t *testing.T) {
	if _, ok := EncodeArray([]string{"a", "b"}); ok {
		t.Errorf("EncodeArray([]string) should refuse a non-numeric element type")
	}
}

func TestDecodeArrayRejectsShapeMismatch(t *testing.T) {
	nd := &NDArray{Dtype: "float64", Shape: []int{3}, Strides: []int{8}, Bytes: []byte{1, 2, 3}}
	if _, err := DecodeArray(nd); err == nil {
		t.Errorf("DecodeArray should reject a byte length that does not match shape")
	}
}

func TestDecodeArrayRejectsMultiDimShape(t *testing.T) {
	nd := &NDArray{Dtype: "float64", Shape: []int{2, 2}}
	if _, err := DecodeArray(nd); err == nil {
		t.Errorf("DecodeArray should reject a multi-dimensional shape")
	}
}
