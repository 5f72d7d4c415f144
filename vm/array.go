package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// ArrayObject: ordered, 0-indexed, dynamically sized sequence of Values
// ---------------------------------------------------------------------------

// ArrayObject is an ordered sequence of Values. The array owns a
// reference to every element: mutation paths retain incoming values
// before releasing displaced ones, so aliasing mutations (swap, self
// assignment) can never drop the last reference prematurely.
//
// Getters return non-owning views: callers that store a returned Value
// beyond the next mutation of the array must Retain it themselves.
type ArrayObject struct {
	object
	elems []Value
}

// NewArray creates an empty array with a reference count of one.
func NewArray() *ArrayObject {
	return &ArrayObject{object: newObject()}
}

// NewArrayCap creates an empty array with preallocated capacity.
func NewArrayCap(capacity int) *ArrayObject {
	return &ArrayObject{object: newObject(), elems: make([]Value, 0, capacity)}
}

// Count returns the number of elements.
func (a *ArrayObject) Count() int {
	return len(a.elems)
}

// Get returns the element at index i as a non-owning view.
func (a *ArrayObject) Get(i int) (Value, error) {
	if i < 0 || i >= len(a.elems) {
		return MakeNil(), fmt.Errorf("array index %d out of bounds [0, %d)", i, len(a.elems))
	}
	return a.elems[i], nil
}

// Set replaces the element at index i. The new value is retained before
// the old one is released, so v may alias the current occupant.
func (a *ArrayObject) Set(i int, v Value) error {
	if i < 0 || i >= len(a.elems) {
		return fmt.Errorf("array index %d out of bounds [0, %d)", i, len(a.elems))
	}
	v.Retain()
	old := a.elems[i]
	a.elems[i] = v
	old.Release()
	return nil
}

// Push appends v, retaining it.
func (a *ArrayObject) Push(v Value) {
	v.Retain()
	a.elems = append(a.elems, v)
}

// Pop removes and returns the last element. Ownership of the returned
// value transfers to the caller, who must Release it when done.
func (a *ArrayObject) Pop() (Value, error) {
	n := len(a.elems)
	if n == 0 {
		return MakeNil(), fmt.Errorf("pop from an empty array")
	}
	v := a.elems[n-1]
	a.elems[n-1] = MakeNil()
	a.elems = a.elems[:n-1]
	return v, nil
}

// Insert places v at index i (0 <= i <= count), shifting subsequent
// elements right. The value is retained.
func (a *ArrayObject) Insert(i int, v Value) error {
	if i < 0 || i > len(a.elems) {
		return fmt.Errorf("array index %d out of bounds [0, %d]", i, len(a.elems))
	}
	v.Retain()
	a.elems = append(a.elems, MakeNil())
	copy(a.elems[i+1:], a.elems[i:])
	a.elems[i] = v
	return nil
}

// Remove deletes the element at index i, releasing it and shifting
// subsequent elements left.
func (a *ArrayObject) Remove(i int) error {
	if i < 0 || i >= len(a.elems) {
		return fmt.Errorf("array index %d out of bounds [0, %d)", i, len(a.elems))
	}
	old := a.elems[i]
	copy(a.elems[i:], a.elems[i+1:])
	n := len(a.elems)
	a.elems[n-1] = MakeNil()
	a.elems = a.elems[:n-1]
	old.Release()
	return nil
}

// RemoveRange deletes length elements starting at index i.
func (a *ArrayObject) RemoveRange(i, length int) error {
	if i < 0 || i > len(a.elems) {
		return fmt.Errorf("array index %d out of bounds [0, %d]", i, len(a.elems))
	}
	if length < 0 {
		return fmt.Errorf("length must be non-negative (was %d)", length)
	}
	if i+length > len(a.elems) {
		return fmt.Errorf("upper bound %d (%d + %d) exceeds array length %d",
			i+length, i, length, len(a.elems))
	}
	for k := i; k < i+length; k++ {
		a.elems[k].Release()
	}
	copy(a.elems[i:], a.elems[i+length:])
	n := len(a.elems)
	for k := n - length; k < n; k++ {
		a.elems[k] = MakeNil()
	}
	a.elems = a.elems[:n-length]
	return nil
}

// Inject splices every element of other into a starting at index i
// (0 <= i <= count), retaining each. Splicing an array into itself works
// because other's elements are snapshotted before the gap is opened.
func (a *ArrayObject) Inject(i int, other *ArrayObject) error {
	if i < 0 || i > len(a.elems) {
		return fmt.Errorf("array index %d out of bounds [0, %d]", i, len(a.elems))
	}
	incoming := make([]Value, len(other.elems))
	copy(incoming, other.elems)
	for _, v := range incoming {
		v.Retain()
	}
	a.elems = append(a.elems, incoming...)
	copy(a.elems[i+len(incoming):], a.elems[i:len(a.elems)-len(incoming)])
	copy(a.elems[i:], incoming)
	return nil
}

// Slice returns a new array holding length elements starting at index i.
// Elements are retained by the new array; the caller owns the result.
func (a *ArrayObject) Slice(i, length int) (*ArrayObject, error) {
	if length < 0 {
		return nil, fmt.Errorf("length must be non-negative (was %d)", length)
	}
	if i < 0 || i+length > len(a.elems) {
		return nil, fmt.Errorf("slice [%d, %d) out of bounds [0, %d)", i, i+length, len(a.elems))
	}
	out := NewArrayCap(length)
	for _, v := range a.elems[i : i+length] {
		out.Push(v)
	}
	return out, nil
}

// Swap exchanges the elements at indices i and j. Safe when i == j and
// when either element holds the last reference to its object: neither
// value is released, only moved.
func (a *ArrayObject) Swap(i, j int) error {
	if i < 0 || i >= len(a.elems) {
		return fmt.Errorf("array index %d out of bounds [0, %d)", i, len(a.elems))
	}
	if j < 0 || j >= len(a.elems) {
		return fmt.Errorf("array index %d out of bounds [0, %d)", j, len(a.elems))
	}
	a.elems[i], a.elems[j] = a.elems[j], a.elems[i]
	return nil
}

// Reverse reverses the array in place.
func (a *ArrayObject) Reverse() {
	for i, j := 0, len(a.elems)-1; i < j; i, j = i+1, j-1 {
		a.elems[i], a.elems[j] = a.elems[j], a.elems[i]
	}
}

// ---------------------------------------------------------------------------
// Sorting
// ---------------------------------------------------------------------------

// LessFunc orders two values for SortFunc. Returning an error aborts the
// sort immediately; the array is left in a valid (possibly partially
// sorted) state with every element intact.
type LessFunc func(x, y Value) (bool, error)

// NaturalLess orders values by their built-in ordering and fails on
// uncomparable pairs.
func NaturalLess(x, y Value) (bool, error) {
	if !x.Comparable(y) {
		return false, fmt.Errorf("attempt to sort uncomparable values of type %s and %s",
			x.TypeName(), y.TypeName())
	}
	return x.Compare(y) < 0, nil
}

// Sort sorts the array in place by natural ordering.
func (a *ArrayObject) Sort() error {
	return a.SortFunc(NaturalLess)
}

// SortFunc sorts the array in place with the supplied ordering.
// Quicksort with a positional middle pivot; comparator failures unwind
// without touching the array further.
func (a *ArrayObject) SortFunc(less LessFunc) error {
	return a.quicksort(0, len(a.elems)-1, less)
}

func (a *ArrayObject) quicksort(left, right int, less LessFunc) error {
	if left >= right {
		return nil
	}
	// a comparator callback may have shrunk the array under us
	if right >= len(a.elems) {
		return fmt.Errorf("array was resized during sort")
	}
	pivot, err := a.partition(left, right, less)
	if err != nil {
		return err
	}
	if err := a.quicksort(left, pivot-1, less); err != nil {
		return err
	}
	return a.quicksort(pivot+1, right, less)
}

// partition moves everything ordered before the middle element to its
// left and returns the pivot's final index. The length is re-checked
// around every comparator call: the callback can mutate the array, and
// a shrink aborts the sort instead of indexing past the new end.
func (a *ArrayObject) partition(left, right int, less LessFunc) (int, error) {
	store := left
	pivotIdx := left + (right-left)/2
	a.elems[pivotIdx], a.elems[right] = a.elems[right], a.elems[pivotIdx]

	for i := left; i < right; i++ {
		if right >= len(a.elems) {
			return 0, fmt.Errorf("array was resized during sort")
		}
		lt, err := less(a.elems[i], a.elems[right])
		if err != nil {
			return 0, err
		}
		if right >= len(a.elems) {
			return 0, fmt.Errorf("array was resized during sort")
		}
		if lt {
			a.elems[i], a.elems[store] = a.elems[store], a.elems[i]
			store++
		}
	}
	if right >= len(a.elems) {
		return 0, fmt.Errorf("array was resized during sort")
	}
	a.elems[store], a.elems[right] = a.elems[right], a.elems[store]
	return store, nil
}

// ---------------------------------------------------------------------------
// Object interface
// ---------------------------------------------------------------------------

// Tag implements Object.
func (a *ArrayObject) Tag() TypeTag { return TagArray }

// Equals implements Object: element-wise equality in order.
func (a *ArrayObject) Equals(other Object) bool {
	o, ok := other.(*ArrayObject)
	if !ok || len(a.elems) != len(o.elems) {
		return false
	}
	for i := range a.elems {
		if !a.elems[i].Equals(o.elems[i]) {
			return false
		}
	}
	return true
}

// Hash implements Object: order-sensitive fold of element hashes.
func (a *ArrayObject) Hash() uint64 {
	h := uint64(len(a.elems))
	for _, v := range a.elems {
		h = hashUint(h ^ v.Hash())
	}
	return h
}

// Describe implements Object.
func (a *ArrayObject) Describe(debug bool) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range a.elems {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(v.describe(true))
	}
	sb.WriteByte(']')
	return sb.String()
}

// destroy implements Object: every element is released.
func (a *ArrayObject) destroy() {
	for i := range a.elems {
		a.elems[i].Release()
		a.elems[i] = MakeNil()
	}
	a.elems = nil
}
