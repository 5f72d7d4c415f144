package compiler

import (
	"errors"
	"strings"
	"testing"

	"github.com/carriercomm/Sparkling/vm"
)

// ---------------------------------------------------------------------------
// Error classification
// ---------------------------------------------------------------------------

func TestSyntaxErrors(t *testing.T) {
	tests := []string{
		"1 +",
		"var ;",
		"if true {}",
		"(1 + 2",
		`"unterminated`,
		"var x = @;",
		"/* never closed",
	}
	f := New()
	for _, src := range tests {
		_, err := f.Compile("<test>", src)
		if err == nil {
			t.Errorf("Compile(%q) should fail", src)
			continue
		}
		var syn *vm.SyntaxError
		if !errors.As(err, &syn) {
			t.Errorf("Compile(%q) error is %T, want *vm.SyntaxError", src, err)
		}
	}
}

func TestSemanticErrors(t *testing.T) {
	tests := []struct {
		src string
		msg string
	}{
		{"1 = 2;", "non-lvalue"},
		{"f() = 3;", "non-lvalue"},
		{"break;", "'break' outside"},
		{"continue;", "'continue' outside"},
		{"function f(a, a) { return a; }", "duplicate parameter"},
		{"{ var x = 1; var x = 2; }", "already declared"},
	}
	f := New()
	for _, tt := range tests {
		_, err := f.Compile("<test>", tt.src)
		if err == nil {
			t.Errorf("Compile(%q) should fail", tt.src)
			continue
		}
		var sem *vm.SemanticError
		if !errors.As(err, &sem) {
			t.Errorf("Compile(%q) error is %T (%v), want *vm.SemanticError", tt.src, err, err)
			continue
		}
		if !strings.Contains(err.Error(), tt.msg) {
			t.Errorf("Compile(%q) error = %q, want it to mention %q", tt.src, err, tt.msg)
		}
	}
}

// ---------------------------------------------------------------------------
// End-to-end execution
// ---------------------------------------------------------------------------

func newCtx(t *testing.T) *vm.Context {
	t.Helper()
	ctx := vm.NewContext(New())
	t.Cleanup(ctx.Close)
	return ctx
}

// evalInt runs a program and requires an int result.
func evalInt(t *testing.T, ctx *vm.Context, src string) int64 {
	t.Helper()
	v, err := ctx.ExecString(src)
	if err != nil {
		t.Fatalf("ExecString(%q): %v", src, err)
	}
	defer v.Release()
	if !v.IsInt() {
		t.Fatalf("ExecString(%q) = %s, want an int", src, v.DebugDescribe())
	}
	return v.Int()
}

func TestArithmeticAndPrecedence(t *testing.T) {
	ctx := newCtx(t)
	tests := []struct {
		src  string
		want int64
	}{
		{"1 + 1", 2},
		{"2 + 3 * 4", 14},
		{"(2 + 3) * 4", 20},
		{"10 % 3", 1},
		{"7 / 2", 3},
		{"-5 + 2", -3},
		{"1 < 2 && 2 < 3", 1}, // see below: booleans remapped
	}
	for _, tt := range tests[:6] {
		if got := evalInt(t, ctx, tt.src); got != tt.want {
			t.Errorf("%q = %d, want %d", tt.src, got, tt.want)
		}
	}

	v, err := ctx.ExecString("1 < 2 && 2 < 3")
	if err != nil {
		t.Fatal(err)
	}
	defer v.Release()
	if !v.IsBool() || !v.Bool() {
		t.Errorf("1 < 2 && 2 < 3 = %s, want true", v.DebugDescribe())
	}
}

func TestConcatAndComparison(t *testing.T) {
	ctx := newCtx(t)
	v, err := ctx.ExecString(`"foo" .. "bar" == "foobar"`)
	if err != nil {
		t.Fatal(err)
	}
	defer v.Release()
	if !v.IsBool() || !v.Bool() {
		t.Error("concatenation result should compare equal to the joined string")
	}
}

func TestVariablesAndScope(t *testing.T) {
	ctx := newCtx(t)
	got := evalInt(t, ctx, `
		var x = 10;
		{
			var y = 20;
			x = x + y;
		}
		x;
	`)
	if got != 30 {
		t.Errorf("got %d, want 30", got)
	}
}

func TestGlobalsPersistAcrossPrograms(t *testing.T) {
	ctx := newCtx(t)
	if _, err := ctx.ExecString("var counter = 1;"); err != nil {
		t.Fatal(err)
	}
	if got := evalInt(t, ctx, "counter = counter + 1; counter;"); got != 2 {
		t.Errorf("counter = %d, want 2", got)
	}
}

func TestControlFlow(t *testing.T) {
	ctx := newCtx(t)
	got := evalInt(t, ctx, `
		var total = 0;
		for (var i = 0; i < 10; i = i + 1) {
			if (i % 2 == 0) {
				continue;
			}
			if (i > 7) {
				break;
			}
			total = total + i;
		}
		total;
	`)
	// 1 + 3 + 5 + 7
	if got != 16 {
		t.Errorf("got %d, want 16", got)
	}
}

func TestWhileLoop(t *testing.T) {
	ctx := newCtx(t)
	got := evalInt(t, ctx, `
		var n = 1;
		while (n < 100) {
			n = n * 2;
		}
		n;
	`)
	if got != 128 {
		t.Errorf("got %d, want 128", got)
	}
}

func TestFunctionsAndRecursion(t *testing.T) {
	ctx := newCtx(t)
	got := evalInt(t, ctx, `
		function fib(n) {
			if (n < 2) {
				return n;
			}
			return fib(n - 1) + fib(n - 2);
		}
		fib(15);
	`)
	if got != 610 {
		t.Errorf("fib(15) = %d, want 610", got)
	}
}

func TestArgumentPadding(t *testing.T) {
	ctx := newCtx(t)
	v, err := ctx.ExecString(`
		function second(a, b) { return b; }
		second(1);
	`)
	if err != nil {
		t.Fatal(err)
	}
	defer v.Release()
	if !v.IsNil() {
		t.Errorf("missing argument should be nil, got %s", v.DebugDescribe())
	}
	// extra arguments are dropped
	if got := evalInt(t, ctx, "second(1, 2, 3);"); got != 2 {
		t.Errorf("second(1,2,3) = %d, want 2", got)
	}
}

func TestClosuresCaptureVariables(t *testing.T) {
	ctx := newCtx(t)
	got := evalInt(t, ctx, `
		function makeCounter() {
			var n = 0;
			return function() {
				n = n + 1;
				return n;
			};
		}
		var c = makeCounter();
		c();
		c();
		c();
	`)
	if got != 3 {
		t.Errorf("counter = %d, want 3", got)
	}
}

func TestClosuresAreIndependent(t *testing.T) {
	ctx := newCtx(t)
	got := evalInt(t, ctx, `
		function makeAdder(k) {
			return function(x) { return x + k; };
		}
		var add2 = makeAdder(2);
		var add10 = makeAdder(10);
		add2(1) + add10(1);
	`)
	if got != 14 {
		t.Errorf("got %d, want 14", got)
	}
}

func TestLoopClosuresCapturePerIteration(t *testing.T) {
	ctx := newCtx(t)
	got := evalInt(t, ctx, `
		var fns = [nil, nil, nil];
		for (var i = 0; i < 3; i = i + 1) {
			var j = i * 10;
			fns[i] = function() { return j; };
		}
		fns[0]() + fns[1]() + fns[2]();
	`)
	if got != 30 {
		t.Errorf("loop closures returned %d, want 30", got)
	}
}

func TestArrayAndHashMapLiterals(t *testing.T) {
	ctx := newCtx(t)
	got := evalInt(t, ctx, `
		var a = [10, 20, 30];
		a[1] = a[1] + 5;
		a[0] + a[1] + a[2];
	`)
	if got != 65 {
		t.Errorf("got %d, want 65", got)
	}

	got = evalInt(t, ctx, `
		var m = {one: 1, two: 2};
		m.three = m.one + m.two;
		m["three"];
	`)
	if got != 3 {
		t.Errorf("got %d, want 3", got)
	}
}

func TestHashMapMethodDispatch(t *testing.T) {
	ctx := newCtx(t)
	got := evalInt(t, ctx, `
		var obj = {
			base: 100,
			bump: function(self, n) {
				self.base = self.base + n;
				return self.base;
			}
		};
		obj.bump(7);
	`)
	if got != 107 {
		t.Errorf("method call = %d, want 107", got)
	}
}

func TestCallStackOverflow(t *testing.T) {
	ctx := newCtx(t)
	ctx.SetMaxCallDepth(64)
	_, err := ctx.ExecString(`
		function loop() { return loop(); }
		loop();
	`)
	if err == nil {
		t.Fatal("unbounded recursion should fail")
	}
	if ctx.ErrorStage() != vm.StageRuntime {
		t.Errorf("stage = %v, want runtime", ctx.ErrorStage())
	}
	if !strings.Contains(ctx.ErrorMessage(), "call stack overflow") {
		t.Errorf("message = %q", ctx.ErrorMessage())
	}
}

func TestErrorStageLifecycle(t *testing.T) {
	ctx := newCtx(t)

	if _, err := ctx.ExecString("1 +"); err == nil {
		t.Fatal("malformed program should fail")
	}
	if ctx.ErrorStage() != vm.StageSyntax {
		t.Fatalf("stage = %v, want syntax", ctx.ErrorStage())
	}
	if ctx.ErrorMessage() == "" {
		t.Fatal("failed context should carry a message")
	}

	// the next operation clears the failure on entry
	if got := evalInt(t, ctx, "1 + 1"); got != 2 {
		t.Fatalf("1 + 1 = %d", got)
	}
	if ctx.ErrorStage() != vm.StageOK {
		t.Errorf("stage after success = %v, want OK", ctx.ErrorStage())
	}
	if ctx.ErrorMessage() != "" {
		t.Errorf("message after success = %q, want empty", ctx.ErrorMessage())
	}
}

func TestSemanticStage(t *testing.T) {
	ctx := newCtx(t)
	if _, err := ctx.ExecString("break;"); err == nil {
		t.Fatal("break at top level should fail")
	}
	if ctx.ErrorStage() != vm.StageSemantic {
		t.Errorf("stage = %v, want semantic", ctx.ErrorStage())
	}
}

func TestUnknownIdentifierIsNilGlobal(t *testing.T) {
	ctx := newCtx(t)
	v, err := ctx.ExecString("nosuchthing;")
	if err != nil {
		t.Fatalf("reading an unknown global should not fail: %v", err)
	}
	defer v.Release()
	if !v.IsNil() {
		t.Errorf("unknown global = %s, want nil", v.DebugDescribe())
	}

	// calling it is a runtime error
	if _, err := ctx.ExecString("nosuchthing();"); err == nil {
		t.Fatal("calling nil should fail")
	}
	if ctx.ErrorStage() != vm.StageRuntime {
		t.Errorf("stage = %v, want runtime", ctx.ErrorStage())
	}
}

func TestShortCircuitEvaluation(t *testing.T) {
	ctx := newCtx(t)
	// the right operand would divide by zero; && must not evaluate it
	v, err := ctx.ExecString("false && 1 / 0 == 0")
	if err != nil {
		t.Fatalf("short-circuit failed: %v", err)
	}
	defer v.Release()
	if !v.IsBool() || v.Bool() {
		t.Errorf("got %s, want false", v.DebugDescribe())
	}

	v2, err := ctx.ExecString("true || 1 / 0 == 0")
	if err != nil {
		t.Fatalf("short-circuit failed: %v", err)
	}
	defer v2.Release()
	if !v2.IsBool() || !v2.Bool() {
		t.Errorf("got %s, want true", v2.DebugDescribe())
	}
}

func TestExplicitTopLevelReturn(t *testing.T) {
	ctx := newCtx(t)
	if got := evalInt(t, ctx, "return 42;"); got != 42 {
		t.Errorf("got %d, want 42", got)
	}
}

func TestLoadFunctionDoesNotRun(t *testing.T) {
	ctx := newCtx(t)
	fn, err := ctx.LoadFunction(`probe = 1; return 5;`)
	if err != nil {
		t.Fatalf("LoadFunction: %v", err)
	}
	defer fn.Release()
	if !ctx.GetGlobal("probe").IsNil() {
		t.Fatal("loading must not execute the program")
	}
	v, err := ctx.CallFunc(fn, nil)
	if err != nil {
		t.Fatalf("CallFunc: %v", err)
	}
	defer v.Release()
	if !v.IsInt() || v.Int() != 5 {
		t.Errorf("result = %s, want 5", v.DebugDescribe())
	}
	if ctx.GetGlobal("probe").Int() != 1 {
		t.Error("running the loaded function should set the global")
	}
}
