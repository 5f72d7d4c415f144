package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// HashMapObject: unordered map from non-nil Values to non-nil Values
// ---------------------------------------------------------------------------

const (
	hashMapInitialBuckets = 8
	hashMapMaxLoadNum     = 3 // rehash when count > buckets * 3/4
	hashMapMaxLoadDen     = 4

	// cursor layout: ((bucket << cursorBucketShift) | slot) + 1, so the
	// zero cursor always means "start over / done".
	cursorBucketShift = 20
	cursorSlotMask    = (1 << cursorBucketShift) - 1
)

type hashMapEntry struct {
	key  Value
	val  Value
	hash uint64
}

// HashMapObject is an associative container keyed by arbitrary non-nil
// Values. Keys that compare equal (including Int/Float cross-kind
// equality) occupy one slot. The map owns a reference to every stored
// key and value; Get returns non-owning views.
type HashMapObject struct {
	object
	buckets [][]hashMapEntry
	count   int
}

// NewHashMap creates an empty hashmap with a reference count of one.
func NewHashMap() *HashMapObject {
	return &HashMapObject{
		object:  newObject(),
		buckets: make([][]hashMapEntry, hashMapInitialBuckets),
	}
}

// Count returns the number of key-value pairs.
func (m *HashMapObject) Count() int {
	return m.count
}

func (m *HashMapObject) locate(key Value) (bucket int, slot int) {
	h := key.Hash()
	bucket = int(h % uint64(len(m.buckets)))
	for i, e := range m.buckets[bucket] {
		if e.hash == h && e.key.Equals(key) {
			return bucket, i
		}
	}
	return bucket, -1
}

// Get returns the value stored under key, or nil when absent. The
// returned value is a non-owning view. A nil key always maps to nil.
func (m *HashMapObject) Get(key Value) Value {
	if key.IsNil() {
		return MakeNil()
	}
	bucket, slot := m.locate(key)
	if slot < 0 {
		return MakeNil()
	}
	return m.buckets[bucket][slot].val
}

// GetStr is a convenience lookup with a string key.
func (m *HashMapObject) GetStr(key string) Value {
	k := MakeString(key)
	v := m.Get(k)
	k.Release()
	return v
}

// Set stores val under key, retaining both and releasing any displaced
// value. Setting nil deletes the entry. A nil key is an error.
func (m *HashMapObject) Set(key, val Value) error {
	if key.IsNil() {
		return fmt.Errorf("hashmap keys must not be nil")
	}
	if val.IsNil() {
		m.Delete(key)
		return nil
	}
	bucket, slot := m.locate(key)
	if slot >= 0 {
		val.Retain()
		old := m.buckets[bucket][slot].val
		m.buckets[bucket][slot].val = val
		old.Release()
		return nil
	}
	if (m.count+1)*hashMapMaxLoadDen > len(m.buckets)*hashMapMaxLoadNum {
		m.rehash(len(m.buckets) * 2)
		bucket = int(key.Hash() % uint64(len(m.buckets)))
	}
	key.Retain()
	val.Retain()
	m.buckets[bucket] = append(m.buckets[bucket], hashMapEntry{key: key, val: val, hash: key.Hash()})
	m.count++
	return nil
}

// SetStr is a convenience store with a string key.
func (m *HashMapObject) SetStr(key string, val Value) error {
	k := MakeString(key)
	err := m.Set(k, val)
	k.Release()
	return err
}

// Delete removes the entry stored under key, if any, releasing both the
// stored key and value. Reports whether an entry was removed.
func (m *HashMapObject) Delete(key Value) bool {
	if key.IsNil() {
		return false
	}
	bucket, slot := m.locate(key)
	if slot < 0 {
		return false
	}
	b := m.buckets[bucket]
	e := b[slot]
	copy(b[slot:], b[slot+1:])
	b[len(b)-1] = hashMapEntry{}
	m.buckets[bucket] = b[:len(b)-1]
	m.count--
	e.key.Release()
	e.val.Release()
	return true
}

func (m *HashMapObject) rehash(n int) {
	old := m.buckets
	m.buckets = make([][]hashMapEntry, n)
	for _, b := range old {
		for _, e := range b {
			i := int(e.hash % uint64(n))
			m.buckets[i] = append(m.buckets[i], e)
		}
	}
}

// ---------------------------------------------------------------------------
// Cursor iteration
// ---------------------------------------------------------------------------

// Next advances an iteration over the map. Start with cursor 0; each
// call stores one key-value pair through key and val (non-owning views)
// and returns the cursor for the next call. A zero return means the
// iteration is complete and nothing was stored.
//
// Iteration visits every entry exactly once provided the map is not
// mutated in between. Cursors only ever move forward through the bucket
// table, so a stale cursor after mutation can skip or repeat entries but
// always terminates.
func (m *HashMapObject) Next(cursor uint64, key, val *Value) uint64 {
	bucket := 0
	slot := 0
	if cursor != 0 {
		c := cursor - 1
		bucket = int(c >> cursorBucketShift)
		slot = int(c & cursorSlotMask)
	}
	for ; bucket < len(m.buckets); bucket, slot = bucket+1, 0 {
		b := m.buckets[bucket]
		if slot < len(b) {
			*key = b[slot].key
			*val = b[slot].val
			return (uint64(bucket)<<cursorBucketShift | uint64(slot+1)) + 1
		}
	}
	return 0
}

// ---------------------------------------------------------------------------
// Object interface
// ---------------------------------------------------------------------------

// Tag implements Object.
func (m *HashMapObject) Tag() TypeTag { return TagHashMap }

// Equals implements Object: same entry set regardless of iteration
// order or bucket layout.
func (m *HashMapObject) Equals(other Object) bool {
	o, ok := other.(*HashMapObject)
	if !ok || m.count != o.count {
		return false
	}
	for _, b := range m.buckets {
		for _, e := range b {
			if !o.Get(e.key).Equals(e.val) {
				return false
			}
		}
	}
	return true
}

// Hash implements Object: XOR of per-entry hashes, so equal maps hash
// equal regardless of layout.
func (m *HashMapObject) Hash() uint64 {
	h := uint64(m.count)
	for _, b := range m.buckets {
		for _, e := range b {
			h ^= hashUint(e.hash ^ hashUint(e.val.Hash()))
		}
	}
	return h
}

// Describe implements Object.
func (m *HashMapObject) Describe(debug bool) string {
	if m.count == 0 {
		return "{}"
	}
	var sb strings.Builder
	sb.WriteByte('{')
	first := true
	for _, b := range m.buckets {
		for _, e := range b {
			if !first {
				sb.WriteString(", ")
			}
			first = false
			sb.WriteString(e.key.describe(true))
			sb.WriteString(": ")
			sb.WriteString(e.val.describe(true))
		}
	}
	sb.WriteByte('}')
	return sb.String()
}

// destroy implements Object: every stored key and value is released.
func (m *HashMapObject) destroy() {
	for _, b := range m.buckets {
		for i := range b {
			b[i].key.Release()
			b[i].val.Release()
		}
	}
	m.buckets = nil
	m.count = 0
}
