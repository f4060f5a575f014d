package objproxy

import (
	"errors"
	"testing"
)

type opsWidget struct {
	N int
}

func (w *opsWidget) Double() int { return w.N * 2 }

func (w *opsWidget) Fail() (int, error) { return 0, errors.New("boom") }

type opsAttrHolder struct{ seen map[string]interface{} }

func (h *opsAttrHolder) GetAttr(name string) (interface{}, error) {
	if name == "missing" {
		return nil, newWireError(ErrUnsupportedOp, "no such attribute")
	}
	return "custom:" + name, nil
}

func (h *opsAttrHolder) SetAttr(name string, value interface{}) error {
	h.seen[name] = value
	return nil
}

func TestResolvePathEmptyReturnsReceiver(t *testing.T) {
	got, err := resolvePath(42, nil)
	if err != nil || got != 42 {
		t.Fatalf("resolvePath(42, nil) = %v, %v, want 42, nil", got, err)
	}
}

func TestResolvePathWalksAttrsAndIndexes(t *testing.T) {
	receiver := map[string]interface{}{"items": []interface{}{"a", "b", "c"}}
	path := []AttributePathElement{
		{Name: "items"},
		{Index: 1, IsIndex: true},
	}
	got, err := resolvePath(receiver, path)
	if err != nil {
		t.Fatalf("resolvePath: %s", err)
	}
	if got != "b" {
		t.Errorf("resolvePath = %v, want %q", got, "b")
	}
}

func TestGetAttrStructField(t *testing.T) {
	w := opsWidget{N: 3}
	got, err := getAttr(w, "N")
	if err != nil || got != 3 {
		t.Fatalf("getAttr(w, N) = %v, %v, want 3, nil", got, err)
	}
}

func TestGetAttrMethod(t *testing.T) {
	w := &opsWidget{N: 4}
	got, err := getAttr(w, "Double")
	if err != nil {
		t.Fatalf("getAttr(w, Double): %s", err)
	}
	if _, ok := got.(func() int); !ok {
		t.Errorf("getAttr(w, Double) = %T, want func() int", got)
	}
}

func TestGetAttrUnknownNameErrors(t *testing.T) {
	w := opsWidget{N: 1}
	if _, err := getAttr(w, "Nope"); err == nil {
		t.Errorf("getAttr(w, Nope) should fail")
	}
}

func TestGetAttrUsesAttributeHolderEscapeHatch(t *testing.T) {
	h := &opsAttrHolder{seen: map[string]interface{}{}}
	got, err := getAttr(h, "color")
	if err != nil {
		t.Fatalf("getAttr: %s", err)
	}
	if got != "custom:color" {
		t.Errorf("getAttr via AttributeHolder = %v, want custom:color", got)
	}
	if _, err := getAttr(h, "missing"); err == nil {
		t.Errorf("getAttr(h, missing) should surface the holder's error")
	}
}

func TestSetAttrRequiresAddressableStruct(t *testing.T) {
	w := opsWidget{N: 1}
	if err := setAttr(w, "N", 2); err == nil {
		t.Errorf("setAttr on a non-pointer struct should fail (unaddressable)")
	}
}

func TestSetAttrOnPointerStruct(t *testing.T) {
	w := &opsWidget{N: 1}
	if err := setAttr(w, "N", 9); err != nil {
		t.Fatalf("setAttr: %s", err)
	}
	if w.N != 9 {
		t.Errorf("w.N = %d, want 9", w.N)
	}
}

func TestSetAttrUsesAttributeHolderEscapeHatch(t *testing.T) {
	h := &opsAttrHolder{seen: map[string]interface{}{}}
	if err := setAttr(h, "color", "red"); err != nil {
		t.Fatalf("setAttr: %s", err)
	}
	if h.seen["color"] != "red" {
		t.Errorf("holder did not record SetAttr: %v", h.seen)
	}
}

func TestGetItemMapAndSlice(t *testing.T) {
	m := map[string]int{"a": 1}
	got, err := getItem(m, "a")
	if err != nil || got != 1 {
		t.Fatalf("getItem(map, a) = %v, %v, want 1, nil", got, err)
	}
	s := []int{10, 20, 30}
	got, err = getItem(s, 1)
	if err != nil || got != 20 {
		t.Fatalf("getItem(slice, 1) = %v, %v, want 20, nil", got, err)
	}
	if _, err := getItem(s, 99); err == nil {
		t.Errorf("getItem(slice, 99) should report out of range")
	}
}

func TestSetItemMapAndSlice(t *testing.T) {
	m := map[string]int{"a": 1}
	if err := setItem(m, "a", 2); err != nil {
		t.Fatalf("setItem(map): %s", err)
	}
	if m["a"] != 2 {
		t.Errorf("m[a] = %d, want 2", m["a"])
	}
	s := []int{1, 2, 3}
	if err := setItem(s, 0, 99); err != nil {
		t.Fatalf("setItem(slice): %s", err)
	}
	if s[0] != 99 {
		t.Errorf("s[0] = %d, want 99", s[0])
	}
}

func TestDelItemMapOnly(t *testing.T) {
	m := map[string]int{"a": 1, "b": 2}
	if err := delItem(m, "a"); err != nil {
		t.Fatalf("delItem(map): %s", err)
	}
	if _, ok := m["a"]; ok {
		t.Errorf("delItem did not remove key a")
	}
	if err := delItem([]int{1, 2}, 0); err == nil {
		t.Errorf("delItem(slice) should be unsupported")
	}
}

func TestLenValue(t *testing.T) {
	if n, err := lenValue([]int{1, 2, 3}); err != nil || n != 3 {
		t.Fatalf("lenValue(slice) = %d, %v, want 3, nil", n, err)
	}
	if n, err := lenValue("hello"); err != nil || n != 5 {
		t.Fatalf("lenValue(string) = %d, %v, want 5, nil", n, err)
	}
	if _, err := lenValue(42); err == nil {
		t.Errorf("lenValue(42) should be unsupported")
	}
}

func TestCompareValuesEqAndNe(t *testing.T) {
	eq, err := compareValues(5, 5, CmpEq)
	if err != nil || !eq {
		t.Fatalf("compareValues(5,5,EQ) = %v, %v, want true, nil", eq, err)
	}
	ne, err := compareValues(5, 6, CmpNe)
	if err != nil || !ne {
		t.Fatalf("compareValues(5,6,NE) = %v, %v, want true, nil", ne, err)
	}
}

func TestCompareValuesOrderingRequiresComparer(t *testing.T) {
	if _, err := compareValues(5, 6, CmpLt); err == nil {
		t.Errorf("compareValues(int,int,LT) should fail without a Comparer")
	}
}

func TestCallValuePlainFunc(t *testing.T) {
	add := func(a, b int64) int64 { return a + b }
	got, err := callValue(add, []interface{}{int64(2), int64(3)}, nil)
	if err != nil {
		t.Fatalf("callValue: %s", err)
	}
	if got != int64(5) {
		t.Errorf("callValue(add, 2, 3) = %v, want 5", got)
	}
}

func TestCallValueFuncReturningError(t *testing.T) {
	w := &opsWidget{}
	_, err := callValue(w.Fail, nil, nil)
	if err == nil {
		t.Fatalf("callValue(w.Fail) should propagate the error")
	}
	we, ok := err.(*WireError)
	if !ok || we.Kind != ErrRemoteRaised {
		t.Errorf("callValue(w.Fail) error = %#v, want *WireError{Kind: REMOTE_RAISED}", err)
	}
}

func TestCallValueRejectsKwargsForPlainFunc(t *testing.T) {
	add := func(a int64) int64 { return a }
	_, err := callValue(add, []interface{}{int64(1)}, map[string]interface{}{"x": 1})
	if err == nil {
		t.Errorf("callValue should reject kwargs for a plain function")
	}
}

func TestCallValueNonCallableErrors(t *testing.T) {
	if _, err := callValue(42, nil, nil); err == nil {
		t.Errorf("callValue(42) should fail, not callable")
	}
}

func TestCallValueRecoversPanic(t *testing.T) {
	panics := func(a []int) int { return a[5] }
	_, err := callValue(panics, []interface{}{[]int{1, 2}}, nil)
	if err == nil {
		t.Errorf("callValue should recover a panic from the target and report it as an error")
	}
}
