package vm

import "strconv"

// ---------------------------------------------------------------------------
// StringObject: immutable byte strings
// ---------------------------------------------------------------------------

// StringObject is an immutable byte sequence. The content never changes
// after construction, so the hash is computed once and cached.
//
// Go strings are already immutable shared buffers, which subsumes the
// original zero-copy "take ownership of this malloc'd buffer"
// constructor: NewStringFromBytes converts without retaining the caller's
// slice, and plain NewString shares the backing storage outright.
type StringObject struct {
	object
	Content string

	hash   uint64
	hashed bool
}

// NewString creates a string object sharing s's backing storage.
// The returned object has a reference count of one.
func NewString(s string) *StringObject {
	return &StringObject{object: newObject(), Content: s}
}

// NewStringFromBytes creates a string object from a scratch buffer built
// by the caller. The caller must not reuse b afterwards.
func NewStringFromBytes(b []byte) *StringObject {
	return &StringObject{object: newObject(), Content: string(b)}
}

// Len returns the length of the string in bytes.
func (s *StringObject) Len() int {
	return len(s.Content)
}

// Tag implements Object.
func (s *StringObject) Tag() TypeTag { return TagString }

// Equals implements Object: byte-wise comparison.
func (s *StringObject) Equals(other Object) bool {
	o, ok := other.(*StringObject)
	return ok && s.Content == o.Content
}

// Compare implements Comparer: lexicographic byte order.
func (s *StringObject) Compare(other Object) int {
	o := other.(*StringObject)
	switch {
	case s.Content < o.Content:
		return -1
	case s.Content > o.Content:
		return 1
	}
	return 0
}

// Hash implements Object. The hash is cached after the first call.
func (s *StringObject) Hash() uint64 {
	if !s.hashed {
		s.hash = hashString(s.Content)
		s.hashed = true
	}
	return s.hash
}

// Describe implements Object.
func (s *StringObject) Describe(debug bool) string {
	if debug {
		return strconv.Quote(s.Content)
	}
	return s.Content
}

// destroy implements Object. Strings own no Values.
func (s *StringObject) destroy() {}
