package vm

// ---------------------------------------------------------------------------
// Object: the reference-counted heap entity behind object-kind Values
// ---------------------------------------------------------------------------

// TypeTag identifies the concrete kind of a heap object.
type TypeTag uint8

const (
	TagString TypeTag = iota
	TagArray
	TagHashMap
	TagFunction
	TagUserInfo
)

// Object is the behavior set shared by every heap-allocated kind.
// Concrete kinds embed object (the common header) and implement the
// per-kind hooks. Ordering is deliberately absent: only kinds that are
// ordered additionally implement Comparer.
type Object interface {
	// Tag returns the concrete kind of the object.
	Tag() TypeTag

	// Equals reports deep value equality against another object.
	// Objects of different tags are never equal.
	Equals(other Object) bool

	// Hash returns a hash consistent with Equals.
	Hash() uint64

	// Describe renders the object for printing; debug requests the
	// quoted/diagnostic form.
	Describe(debug bool) string

	// destroy releases every Value the object owns and tears down any
	// native resources. Invoked exactly once, when the reference count
	// reaches zero.
	destroy()

	// header exposes the embedded common header to the refcount helpers.
	header() *object
}

// Comparer is implemented by object kinds with a defined ordering
// (strings). Compare returns -1, 0, or +1.
type Comparer interface {
	Compare(other Object) int
}

// object is the common header embedded by every concrete object kind.
// Reference counts are not atomic: a Context and everything reachable
// from it belong to a single goroutine.
type object struct {
	refcount int
}

func (o *object) header() *object { return o }

// RetainObject increments o's reference count.
func RetainObject(o Object) {
	o.header().refcount++
}

// ReleaseObject decrements o's reference count, destroying the object
// when the count reaches zero. Releasing below zero is a caller bug and
// panics rather than corrupting memory silently.
func ReleaseObject(o Object) {
	h := o.header()
	h.refcount--
	switch {
	case h.refcount == 0:
		o.destroy()
	case h.refcount < 0:
		panic("ReleaseObject: refcount underflow (double release)")
	}
}

// RefCount returns o's current reference count. Intended for tests and
// diagnostics.
func RefCount(o Object) int {
	return o.header().refcount
}

// newObject returns a header with the initial reference count of one,
// owned by the constructor's caller.
func newObject() object {
	return object{refcount: 1}
}

var serialCounter uint64

// nextSerial hands out identity hashes for objects whose equality is
// pointer identity (functions, userinfo).
func nextSerial() uint64 {
	serialCounter++
	return serialCounter
}
