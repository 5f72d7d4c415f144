package vm

import "testing"

// ---------------------------------------------------------------------------
// HashMap operations
// ---------------------------------------------------------------------------

func TestHashMapSetGetDelete(t *testing.T) {
	m := NewHashMap()
	defer ReleaseObject(m)

	if err := m.SetStr("a", MakeInt(1)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := m.GetStr("a"); got.Int() != 1 {
		t.Errorf("Get = %s, want 1", got.DebugDescribe())
	}
	if !m.GetStr("missing").IsNil() {
		t.Error("missing key should yield nil")
	}
	if m.Count() != 1 {
		t.Errorf("Count = %d, want 1", m.Count())
	}

	// overwriting keeps the count
	if err := m.SetStr("a", MakeInt(2)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if m.Count() != 1 || m.GetStr("a").Int() != 2 {
		t.Error("overwrite failed")
	}

	k := MakeString("a")
	defer k.Release()
	if !m.Delete(k) {
		t.Error("Delete should report removal")
	}
	if m.Count() != 0 {
		t.Errorf("Count after delete = %d, want 0", m.Count())
	}
	if m.Delete(k) {
		t.Error("deleting a missing key should report false")
	}
}

func TestHashMapNilKeyAndValue(t *testing.T) {
	m := NewHashMap()
	defer ReleaseObject(m)

	if err := m.Set(MakeNil(), MakeInt(1)); err == nil {
		t.Error("nil keys should be rejected")
	}
	if !m.Get(MakeNil()).IsNil() {
		t.Error("looking up nil should yield nil")
	}

	// storing nil deletes
	if err := m.SetStr("a", MakeInt(1)); err != nil {
		t.Fatal(err)
	}
	if err := m.SetStr("a", MakeNil()); err != nil {
		t.Fatal(err)
	}
	if m.Count() != 0 {
		t.Error("storing nil should remove the entry")
	}
}

func TestHashMapCrossKindKeys(t *testing.T) {
	m := NewHashMap()
	defer ReleaseObject(m)

	// Int(2) and Float(2.0) are equal, so they are the same key
	if err := m.Set(MakeInt(2), MakeString("int")); err != nil {
		t.Fatal(err)
	}
	v := MakeString("float")
	if err := m.Set(MakeFloat(2.0), v); err != nil {
		t.Fatal(err)
	}
	v.Release()
	if m.Count() != 1 {
		t.Fatalf("Count = %d, want 1", m.Count())
	}
	got := m.Get(MakeInt(2))
	if !got.IsString() || got.String().Content != "float" {
		t.Errorf("Get = %s, want \"float\"", got.DebugDescribe())
	}
}

func TestHashMapCursorVisitsEveryEntryOnce(t *testing.T) {
	m := NewHashMap()
	defer ReleaseObject(m)

	const n = 100
	for i := int64(0); i < n; i++ {
		if err := m.Set(MakeInt(i), MakeInt(i*i)); err != nil {
			t.Fatal(err)
		}
	}

	seen := make(map[int64]bool)
	var k, v Value
	steps := 0
	for c := m.Next(0, &k, &v); c != 0; c = m.Next(c, &k, &v) {
		steps++
		if steps > n {
			t.Fatal("cursor did not terminate")
		}
		if seen[k.Int()] {
			t.Fatalf("key %d visited twice", k.Int())
		}
		seen[k.Int()] = true
		if v.Int() != k.Int()*k.Int() {
			t.Errorf("value mismatch for key %d", k.Int())
		}
	}
	if len(seen) != n {
		t.Errorf("visited %d entries, want %d", len(seen), n)
	}
}

func TestHashMapCursorEmpty(t *testing.T) {
	m := NewHashMap()
	defer ReleaseObject(m)
	var k, v Value
	if c := m.Next(0, &k, &v); c != 0 {
		t.Errorf("empty map cursor = %d, want 0", c)
	}
}

func TestHashMapEqualsOrderIndependent(t *testing.T) {
	a := NewHashMap()
	b := NewHashMap()
	defer ReleaseObject(a)
	defer ReleaseObject(b)

	for i := int64(0); i < 10; i++ {
		if err := a.Set(MakeInt(i), MakeInt(i)); err != nil {
			t.Fatal(err)
		}
	}
	for i := int64(9); i >= 0; i-- {
		if err := b.Set(MakeInt(i), MakeInt(i)); err != nil {
			t.Fatal(err)
		}
	}
	if !a.Equals(b) {
		t.Error("maps with the same entries should be equal regardless of insertion order")
	}
	if a.Hash() != b.Hash() {
		t.Error("equal maps must hash equal")
	}

	if err := b.SetStr("extra", MakeInt(1)); err != nil {
		t.Fatal(err)
	}
	if a.Equals(b) {
		t.Error("maps with different sizes should not be equal")
	}
}

func TestHashMapRehashKeepsEntries(t *testing.T) {
	m := NewHashMap()
	defer ReleaseObject(m)

	const n = 1000
	for i := int64(0); i < n; i++ {
		if err := m.Set(MakeInt(i), MakeInt(-i)); err != nil {
			t.Fatal(err)
		}
	}
	if m.Count() != n {
		t.Fatalf("Count = %d, want %d", m.Count(), n)
	}
	for i := int64(0); i < n; i += 97 {
		if got := m.Get(MakeInt(i)); got.Int() != -i {
			t.Fatalf("Get(%d) = %s", i, got.DebugDescribe())
		}
	}
}
