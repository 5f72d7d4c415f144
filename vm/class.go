package vm

// ---------------------------------------------------------------------------
// Classes: per-kind method tables
// ---------------------------------------------------------------------------

// ClassID identifies the method table a value dispatches against.
// Every value belongs to exactly one class, derived from its kind (and
// type tag for objects).
type ClassID uint8

const (
	ClassNil ClassID = iota
	ClassBool
	ClassInt
	ClassFloat
	ClassString
	ClassArray
	ClassHashMap
	ClassFunction
	ClassUserInfo

	numClasses
)

var classNames = [numClasses]string{
	ClassNil:      "nil",
	ClassBool:     "bool",
	ClassInt:      "int",
	ClassFloat:    "float",
	ClassString:   "string",
	ClassArray:    "array",
	ClassHashMap:  "hashmap",
	ClassFunction: "function",
	ClassUserInfo: "userinfo",
}

// String returns the class's name.
func (c ClassID) String() string {
	if int(c) < len(classNames) {
		return classNames[c]
	}
	return "unknown"
}

// ClassOf returns the class a value dispatches against.
func ClassOf(v Value) ClassID {
	switch v.Kind() {
	case KindNil:
		return ClassNil
	case KindBool:
		return ClassBool
	case KindInt:
		return ClassInt
	case KindFloat:
		return ClassFloat
	case KindWeakUserInfo:
		return ClassUserInfo
	case KindObject:
		switch v.Object().Tag() {
		case TagString:
			return ClassString
		case TagArray:
			return ClassArray
		case TagHashMap:
			return ClassHashMap
		case TagFunction:
			return ClassFunction
		case TagUserInfo:
			return ClassUserInfo
		}
	}
	panic("ClassOf: unhandled value kind")
}

// classRegistry maps each class to its method table. Tables are created
// lazily on first registration; a missing table means no methods.
type classRegistry struct {
	tables [numClasses]*HashMapObject
}

// methods returns the method table for class, creating it on demand.
func (r *classRegistry) methods(class ClassID) *HashMapObject {
	if r.tables[class] == nil {
		r.tables[class] = NewHashMap()
	}
	return r.tables[class]
}

// lookup resolves a method by name for class, returning nil when the
// class has no such method.
func (r *classRegistry) lookup(class ClassID, name Value) Value {
	t := r.tables[class]
	if t == nil {
		return MakeNil()
	}
	return t.Get(name)
}

func (r *classRegistry) destroy() {
	for i, t := range r.tables {
		if t != nil {
			ReleaseObject(t)
			r.tables[i] = nil
		}
	}
}
