package vm

import (
	"fmt"
	"math"
	"strconv"
)

// ---------------------------------------------------------------------------
// Value: the tagged dynamic value
// ---------------------------------------------------------------------------

// Kind discriminates the variants a Value can hold.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindInt
	KindFloat
	KindObject       // reference-counted heap object
	KindWeakUserInfo // opaque host pointer, no ownership
)

// Value is a fixed-size tagged variant representing any language-level
// datum: nil, a boolean, a 64-bit signed integer, a double-precision
// float, a reference-counted heap object, or an opaque host pointer.
//
// Values are copied freely, but copies of object-kind Values share the
// underlying Object: callers that store such a Value into a long-lived
// slot must Retain it, and must Release it when the slot is overwritten
// or dropped. Strong user-info values are Object-kind Values wrapping a
// *UserInfoObject; weak user-info values carry no ownership at all.
type Value struct {
	kind Kind
	b    bool
	n    int64
	f    float64
	obj  Object
	ptr  any
}

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

// MakeNil returns the nil value.
func MakeNil() Value {
	return Value{kind: KindNil}
}

// MakeBool returns a boolean value.
func MakeBool(b bool) Value {
	return Value{kind: KindBool, b: b}
}

// MakeInt returns an integer value.
func MakeInt(n int64) Value {
	return Value{kind: KindInt, n: n}
}

// MakeFloat returns a float value.
func MakeFloat(f float64) Value {
	return Value{kind: KindFloat, f: f}
}

// MakeObject wraps a heap object in a Value. Ownership transfers to the
// returned Value: the object's reference count is not incremented, so
// wrapping a freshly constructed object (refcount 1) yields an owning
// Value without further ado.
func MakeObject(o Object) Value {
	return Value{kind: KindObject, obj: o}
}

// MakeString returns an owning Value wrapping a new string object.
func MakeString(s string) Value {
	return MakeObject(NewString(s))
}

// MakeWeakUserInfo wraps an opaque host pointer without taking ownership.
// The host remains responsible for the pointee's lifetime.
func MakeWeakUserInfo(p any) Value {
	return Value{kind: KindWeakUserInfo, ptr: p}
}

// MakeStrongUserInfo wraps an opaque host pointer in a reference-counted
// user-info object. The optional finalizer runs when the last reference
// is released.
func MakeStrongUserInfo(p any, finalizer func(any)) Value {
	return MakeObject(NewUserInfo(p, finalizer))
}

// ---------------------------------------------------------------------------
// Kind predicates
// ---------------------------------------------------------------------------

// Kind returns the value's kind tag.
func (v Value) Kind() Kind { return v.kind }

// IsNil reports whether the value is nil.
func (v Value) IsNil() bool { return v.kind == KindNil }

// IsBool reports whether the value is a boolean.
func (v Value) IsBool() bool { return v.kind == KindBool }

// IsInt reports whether the value is an integer.
func (v Value) IsInt() bool { return v.kind == KindInt }

// IsFloat reports whether the value is a float.
func (v Value) IsFloat() bool { return v.kind == KindFloat }

// IsNumber reports whether the value is an integer or a float.
func (v Value) IsNumber() bool { return v.kind == KindInt || v.kind == KindFloat }

// IsObject reports whether the value wraps a heap object.
func (v Value) IsObject() bool { return v.kind == KindObject }

// IsWeakUserInfo reports whether the value is a non-owning host pointer.
func (v Value) IsWeakUserInfo() bool { return v.kind == KindWeakUserInfo }

// IsUserInfo reports whether the value is a host pointer of either flavor.
func (v Value) IsUserInfo() bool {
	if v.kind == KindWeakUserInfo {
		return true
	}
	return v.kind == KindObject && v.obj.Tag() == TagUserInfo
}

// IsString reports whether the value wraps a string object.
func (v Value) IsString() bool {
	return v.kind == KindObject && v.obj.Tag() == TagString
}

// IsArray reports whether the value wraps an array object.
func (v Value) IsArray() bool {
	return v.kind == KindObject && v.obj.Tag() == TagArray
}

// IsHashMap reports whether the value wraps a hashmap object.
func (v Value) IsHashMap() bool {
	return v.kind == KindObject && v.obj.Tag() == TagHashMap
}

// IsFunction reports whether the value wraps a function object.
func (v Value) IsFunction() bool {
	return v.kind == KindObject && v.obj.Tag() == TagFunction
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// Bool returns the boolean payload. Panics on other kinds.
func (v Value) Bool() bool {
	if v.kind != KindBool {
		panic("Value.Bool: not a boolean")
	}
	return v.b
}

// Int returns the integer payload. Panics on other kinds.
func (v Value) Int() int64 {
	if v.kind != KindInt {
		panic("Value.Int: not an integer")
	}
	return v.n
}

// Float returns the float payload. Panics on other kinds.
func (v Value) Float() float64 {
	if v.kind != KindFloat {
		panic("Value.Float: not a float")
	}
	return v.f
}

// Number returns the value as a float64, converting integers.
// Panics on non-numeric kinds.
func (v Value) Number() float64 {
	switch v.kind {
	case KindInt:
		return float64(v.n)
	case KindFloat:
		return v.f
	}
	panic("Value.Number: not a number")
}

// Object returns the wrapped heap object. Panics on other kinds.
func (v Value) Object() Object {
	if v.kind != KindObject {
		panic("Value.Object: not an object")
	}
	return v.obj
}

// String returns the wrapped string object. Panics if not a string.
func (v Value) String() *StringObject {
	return v.Object().(*StringObject)
}

// Array returns the wrapped array object. Panics if not an array.
func (v Value) Array() *ArrayObject {
	return v.Object().(*ArrayObject)
}

// HashMap returns the wrapped hashmap object. Panics if not a hashmap.
func (v Value) HashMap() *HashMapObject {
	return v.Object().(*HashMapObject)
}

// Function returns the wrapped function object. Panics if not a function.
func (v Value) Function() *FunctionObject {
	return v.Object().(*FunctionObject)
}

// UserInfo returns the opaque host pointer of a user-info value of either
// flavor. Panics on other kinds.
func (v Value) UserInfo() any {
	if v.kind == KindWeakUserInfo {
		return v.ptr
	}
	if v.kind == KindObject {
		if u, ok := v.obj.(*UserInfoObject); ok {
			return u.Payload
		}
	}
	panic("Value.UserInfo: not a user-info value")
}

// ---------------------------------------------------------------------------
// Reference counting
// ---------------------------------------------------------------------------

// Retain increments the reference count of the wrapped object.
// It is a no-op for non-object kinds.
func (v Value) Retain() {
	if v.kind == KindObject {
		RetainObject(v.obj)
	}
}

// Release decrements the reference count of the wrapped object, freeing
// it when the count reaches zero. It is a no-op for non-object kinds.
func (v Value) Release() {
	if v.kind == KindObject {
		ReleaseObject(v.obj)
	}
}

// ---------------------------------------------------------------------------
// Truthiness, equality, ordering, hashing
// ---------------------------------------------------------------------------

// IsTruthy reports the boolean interpretation of a value in conditions:
// only false and nil are falsy.
func (v Value) IsTruthy() bool {
	switch v.kind {
	case KindNil:
		return false
	case KindBool:
		return v.b
	default:
		return true
	}
}

// Equals reports value equality. Numbers compare across int/float by
// numeric value; objects delegate to their equality behavior; weak
// user-info pointers compare by identity.
func (v Value) Equals(other Value) bool {
	if v.IsNumber() && other.IsNumber() {
		if v.kind == KindInt && other.kind == KindInt {
			return v.n == other.n
		}
		return v.Number() == other.Number()
	}
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNil:
		return true
	case KindBool:
		return v.b == other.b
	case KindObject:
		return v.obj.Equals(other.obj)
	case KindWeakUserInfo:
		return v.ptr == other.ptr
	}
	return false
}

// Comparable reports whether an ordering is defined between two values:
// numbers order against numbers, and objects of the same kind when that
// kind implements Comparer (strings do).
func (v Value) Comparable(other Value) bool {
	if v.IsNumber() && other.IsNumber() {
		return true
	}
	if v.kind == KindObject && other.kind == KindObject && v.obj.Tag() == other.obj.Tag() {
		_, ok := v.obj.(Comparer)
		return ok
	}
	return false
}

// Compare returns -1, 0, or +1 ordering v against other.
// Callers must check Comparable first; Compare panics otherwise.
func (v Value) Compare(other Value) int {
	if v.IsNumber() && other.IsNumber() {
		if v.kind == KindInt && other.kind == KindInt {
			switch {
			case v.n < other.n:
				return -1
			case v.n > other.n:
				return 1
			}
			return 0
		}
		a, b := v.Number(), other.Number()
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
		return 0
	}
	if v.kind == KindObject && other.kind == KindObject && v.obj.Tag() == other.obj.Tag() {
		if c, ok := v.obj.(Comparer); ok {
			return c.Compare(other.obj)
		}
	}
	panic("Value.Compare: values are not comparable")
}

// Hash returns a hash consistent with Equals: equal values hash equal,
// including across the int/float divide and for deep object equality.
func (v Value) Hash() uint64 {
	switch v.kind {
	case KindNil:
		return 0
	case KindBool:
		if v.b {
			return 0x9e3779b97f4a7c15
		}
		return 0xc2b2ae3d27d4eb4f
	case KindInt:
		return hashInt(v.n)
	case KindFloat:
		// Integral floats must hash like the equal integer.
		if v.f == math.Trunc(v.f) && v.f >= math.MinInt64 && v.f < math.MaxInt64 {
			return hashInt(int64(v.f))
		}
		return hashUint(math.Float64bits(v.f))
	case KindObject:
		return v.obj.Hash()
	case KindWeakUserInfo:
		// Consistent with interface equality in Equals.
		return hashString(fmt.Sprintf("%T:%v", v.ptr, v.ptr))
	}
	return 0
}

// hashInt hashes a signed integer.
func hashInt(n int64) uint64 {
	return hashUint(uint64(n))
}

// hashUint is a splitmix64-style finalizer mix.
func hashUint(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// hashString hashes a byte string with FNV-1a.
func hashString(s string) uint64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}

// ---------------------------------------------------------------------------
// Printing
// ---------------------------------------------------------------------------

// TypeName returns the human-readable name of the value's type.
func (v Value) TypeName() string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindWeakUserInfo:
		return "userinfo"
	case KindObject:
		switch v.obj.Tag() {
		case TagString:
			return "string"
		case TagArray:
			return "array"
		case TagHashMap:
			return "hashmap"
		case TagFunction:
			return "function"
		case TagUserInfo:
			return "userinfo"
		}
	}
	return "unknown"
}

// Describe renders the value for print(): strings appear verbatim,
// containers recursively.
func (v Value) Describe() string {
	return v.describe(false)
}

// DebugDescribe renders the value for dbgprint(): strings are quoted.
func (v Value) DebugDescribe() string {
	return v.describe(true)
}

func (v Value) describe(debug bool) string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindInt:
		return strconv.FormatInt(v.n, 10)
	case KindFloat:
		return formatFloat(v.f)
	case KindWeakUserInfo:
		return fmt.Sprintf("<userinfo %T>", v.ptr)
	case KindObject:
		return v.obj.Describe(debug)
	}
	return "<?>"
}

// formatFloat renders a float; NaN and infinities get readable names.
func formatFloat(f float64) string {
	if math.IsInf(f, 1) {
		return "inf"
	}
	if math.IsInf(f, -1) {
		return "-inf"
	}
	if math.IsNaN(f) {
		return "nan"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
