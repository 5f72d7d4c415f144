package vm

import "testing"

// ---------------------------------------------------------------------------
// Array operations
// ---------------------------------------------------------------------------

func intArray(ns ...int64) *ArrayObject {
	a := NewArrayCap(len(ns))
	for _, n := range ns {
		a.Push(MakeInt(n))
	}
	return a
}

func intsOf(t *testing.T, a *ArrayObject) []int64 {
	t.Helper()
	out := make([]int64, a.Count())
	for i := range out {
		v, err := a.Get(i)
		if err != nil {
			t.Fatalf("Get(%d): %v", i, err)
		}
		if !v.IsInt() {
			t.Fatalf("element %d is %s, want int", i, v.TypeName())
		}
		out[i] = v.Int()
	}
	return out
}

func sameInts(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestArrayGetSetBounds(t *testing.T) {
	a := intArray(10, 20, 30)
	defer ReleaseObject(a)

	if _, err := a.Get(3); err == nil {
		t.Error("Get past the end should fail")
	}
	if _, err := a.Get(-1); err == nil {
		t.Error("Get(-1) should fail")
	}
	if err := a.Set(3, MakeInt(0)); err == nil {
		t.Error("Set past the end should fail")
	}
	// failed operations leave the array untouched
	if got := intsOf(t, a); !sameInts(got, []int64{10, 20, 30}) {
		t.Errorf("array changed after failed ops: %v", got)
	}
}

func TestArrayInsertRemove(t *testing.T) {
	a := intArray(1, 3)
	defer ReleaseObject(a)

	if err := a.Insert(1, MakeInt(2)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if got := intsOf(t, a); !sameInts(got, []int64{1, 2, 3}) {
		t.Fatalf("after insert: %v", got)
	}
	if err := a.Insert(3, MakeInt(4)); err != nil {
		t.Fatalf("Insert at end: %v", err)
	}
	if err := a.Insert(5, MakeInt(9)); err == nil {
		t.Error("Insert past the end should fail")
	}
	if err := a.Remove(0); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if got := intsOf(t, a); !sameInts(got, []int64{2, 3, 4}) {
		t.Fatalf("after remove: %v", got)
	}
}

func TestArrayPop(t *testing.T) {
	a := intArray(1, 2)
	defer ReleaseObject(a)

	v, err := a.Pop()
	if err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if v.Int() != 2 {
		t.Errorf("Pop = %d, want 2", v.Int())
	}
	v.Release()
	if _, err := a.Pop(); err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if _, err := a.Pop(); err == nil {
		t.Error("Pop from empty array should fail")
	}
}

func TestArraySwapAliasing(t *testing.T) {
	// the swapped slots may hold the only references to their objects
	a := NewArray()
	defer ReleaseObject(a)

	x := MakeString("x")
	y := MakeString("y")
	a.Push(x)
	a.Push(y)
	x.Release()
	y.Release()

	if err := a.Swap(0, 1); err != nil {
		t.Fatalf("Swap: %v", err)
	}
	v0, _ := a.Get(0)
	v1, _ := a.Get(1)
	if v0.String().Content != "y" || v1.String().Content != "x" {
		t.Error("swap did not exchange the elements")
	}

	// i == j must be a no-op, not a lost reference
	if err := a.Swap(0, 0); err != nil {
		t.Fatalf("Swap(0,0): %v", err)
	}
	v0, _ = a.Get(0)
	if v0.String().Content != "y" {
		t.Error("self-swap corrupted the element")
	}

	if err := a.Swap(0, 2); err == nil {
		t.Error("Swap out of bounds should fail")
	}
}

func TestArraySort(t *testing.T) {
	a := intArray(5, 3, 1, 4, 1, 5, 9, 2, 6)
	defer ReleaseObject(a)

	if err := a.Sort(); err != nil {
		t.Fatalf("Sort: %v", err)
	}
	want := []int64{1, 1, 2, 3, 4, 5, 5, 6, 9}
	if got := intsOf(t, a); !sameInts(got, want) {
		t.Errorf("Sort = %v, want %v", got, want)
	}
}

func TestArraySortDescending(t *testing.T) {
	a := intArray(2, 7, 4, 1)
	defer ReleaseObject(a)

	err := a.SortFunc(func(x, y Value) (bool, error) {
		return x.Int() > y.Int(), nil
	})
	if err != nil {
		t.Fatalf("SortFunc: %v", err)
	}
	if got := intsOf(t, a); !sameInts(got, []int64{7, 4, 2, 1}) {
		t.Errorf("descending sort = %v", got)
	}
}

func TestArraySortComparatorShrinksArray(t *testing.T) {
	a := intArray(5, 2, 9, 1, 7)
	defer ReleaseObject(a)

	err := a.SortFunc(func(x, y Value) (bool, error) {
		v, popErr := a.Pop()
		if popErr != nil {
			return false, popErr
		}
		v.Release()
		return x.Int() < y.Int(), nil
	})
	if err == nil {
		t.Fatal("sorting while the comparator shrinks the array should fail")
	}
	if got := a.Count(); got == 0 || got >= 5 {
		t.Errorf("Count after aborted sort = %d, want a partial shrink", got)
	}
}

func TestArraySortUncomparable(t *testing.T) {
	a := NewArray()
	defer ReleaseObject(a)
	a.Push(MakeInt(1))
	s := MakeString("one")
	a.Push(s)
	s.Release()

	if err := a.Sort(); err == nil {
		t.Fatal("sorting mixed int and string should fail")
	}
	if a.Count() != 2 {
		t.Error("failed sort must not lose elements")
	}
}

func TestArrayEqualsAndHash(t *testing.T) {
	a := intArray(1, 2, 3)
	b := intArray(1, 2, 3)
	c := intArray(3, 2, 1)
	defer ReleaseObject(a)
	defer ReleaseObject(b)
	defer ReleaseObject(c)

	if !a.Equals(b) {
		t.Error("arrays with equal elements should be equal")
	}
	if a.Hash() != b.Hash() {
		t.Error("equal arrays must hash equal")
	}
	if a.Equals(c) {
		t.Error("order matters for array equality")
	}
}

func TestArraySliceAndInject(t *testing.T) {
	a := intArray(1, 2, 3, 4)
	defer ReleaseObject(a)

	s, err := a.Slice(1, 2)
	if err != nil {
		t.Fatalf("Slice: %v", err)
	}
	defer ReleaseObject(s)
	if got := intsOf(t, s); !sameInts(got, []int64{2, 3}) {
		t.Fatalf("Slice = %v", got)
	}

	b := intArray(8, 9)
	defer ReleaseObject(b)
	if err := a.Inject(1, b); err != nil {
		t.Fatalf("Inject: %v", err)
	}
	if got := intsOf(t, a); !sameInts(got, []int64{1, 8, 9, 2, 3, 4}) {
		t.Fatalf("Inject = %v", got)
	}
}
