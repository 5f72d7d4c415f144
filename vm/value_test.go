package vm

import (
	"math"
	"testing"
)

// ---------------------------------------------------------------------------
// Value basics
// ---------------------------------------------------------------------------

func TestValueKinds(t *testing.T) {
	tests := []struct {
		v    Value
		kind Kind
		name string
	}{
		{MakeNil(), KindNil, "nil"},
		{MakeBool(true), KindBool, "bool"},
		{MakeInt(7), KindInt, "int"},
		{MakeFloat(2.5), KindFloat, "float"},
	}
	for _, tt := range tests {
		if tt.v.Kind() != tt.kind {
			t.Errorf("Kind() = %v, want %v", tt.v.Kind(), tt.kind)
		}
		if tt.v.TypeName() != tt.name {
			t.Errorf("TypeName() = %q, want %q", tt.v.TypeName(), tt.name)
		}
	}
}

func TestValueTruthiness(t *testing.T) {
	falsy := []Value{MakeNil(), MakeBool(false)}
	for _, v := range falsy {
		if v.IsTruthy() {
			t.Errorf("%s should be falsy", v.DebugDescribe())
		}
	}
	truthy := []Value{
		MakeBool(true),
		MakeInt(0),
		MakeFloat(0),
		MakeString(""),
	}
	for _, v := range truthy {
		if !v.IsTruthy() {
			t.Errorf("%s should be truthy", v.DebugDescribe())
		}
		v.Release()
	}
}

func TestNumericCrossKindEquality(t *testing.T) {
	a := MakeInt(2)
	b := MakeFloat(2.0)
	if !a.Equals(b) {
		t.Error("Int(2) should equal Float(2.0)")
	}
	if !b.Equals(a) {
		t.Error("equality should be symmetric")
	}
	if a.Hash() != b.Hash() {
		t.Errorf("equal values must hash equal: %d vs %d", a.Hash(), b.Hash())
	}

	c := MakeFloat(2.5)
	if a.Equals(c) {
		t.Error("Int(2) should not equal Float(2.5)")
	}
}

func TestStringEqualityAndHash(t *testing.T) {
	a := MakeString("hello")
	b := MakeString("hello")
	c := MakeString("world")
	defer a.Release()
	defer b.Release()
	defer c.Release()

	if !a.Equals(b) {
		t.Error("identical strings should be equal")
	}
	if a.Hash() != b.Hash() {
		t.Error("equal strings must hash equal")
	}
	if a.Equals(c) {
		t.Error("different strings should not be equal")
	}
}

func TestNaNEquality(t *testing.T) {
	nan := MakeFloat(math.NaN())
	if nan.Equals(nan) {
		t.Error("NaN must not equal itself")
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b Value
		want int
	}{
		{MakeInt(1), MakeInt(2), -1},
		{MakeInt(2), MakeInt(2), 0},
		{MakeInt(3), MakeFloat(2.5), 1},
		{MakeFloat(1.5), MakeInt(2), -1},
	}
	for _, tt := range tests {
		if got := tt.a.Compare(tt.b); got != tt.want {
			t.Errorf("Compare(%s, %s) = %d, want %d",
				tt.a.DebugDescribe(), tt.b.DebugDescribe(), got, tt.want)
		}
	}

	s1 := MakeString("apple")
	s2 := MakeString("banana")
	defer s1.Release()
	defer s2.Release()
	if s1.Compare(s2) >= 0 {
		t.Error("apple should order before banana")
	}
	if s1.Comparable(MakeInt(1)) {
		t.Error("strings and ints are not ordered")
	}
	if !s1.Comparable(s2) {
		t.Error("strings should order against strings")
	}
	a1 := MakeObject(NewArray())
	a2 := MakeObject(NewArray())
	defer a1.Release()
	defer a2.Release()
	if a1.Comparable(a2) {
		t.Error("arrays define no ordering")
	}
	if !MakeNil().Equals(MakeNil()) {
		t.Error("nil should equal nil")
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{MakeNil(), "nil"},
		{MakeBool(true), "true"},
		{MakeInt(-3), "-3"},
		{MakeFloat(math.Inf(1)), "inf"},
	}
	for _, tt := range tests {
		if got := tt.v.Describe(); got != tt.want {
			t.Errorf("Describe() = %q, want %q", got, tt.want)
		}
	}

	s := MakeString("hi")
	defer s.Release()
	if s.Describe() != "hi" {
		t.Errorf("string Describe() = %q, want %q", s.Describe(), "hi")
	}
	if s.DebugDescribe() != `"hi"` {
		t.Errorf("string DebugDescribe() = %q, want %q", s.DebugDescribe(), `"hi"`)
	}
}
