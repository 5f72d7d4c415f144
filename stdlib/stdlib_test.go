package stdlib

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/carriercomm/Sparkling/vm"
)

// ---------------------------------------------------------------------------
// Standard library end-to-end tests
// ---------------------------------------------------------------------------

func newCtx(t *testing.T) *vm.Context {
	t.Helper()
	ctx := NewContext()
	t.Cleanup(ctx.Close)
	return ctx
}

func eval(t *testing.T, ctx *vm.Context, src string) vm.Value {
	t.Helper()
	v, err := ctx.ExecString(src)
	if err != nil {
		t.Fatalf("ExecString(%q): %v\n  stage: %v, message: %s",
			src, err, ctx.ErrorStage(), ctx.ErrorMessage())
	}
	return v
}

func evalInt(t *testing.T, ctx *vm.Context, src string) int64 {
	t.Helper()
	v := eval(t, ctx, src)
	defer v.Release()
	if !v.IsInt() {
		t.Fatalf("ExecString(%q) = %s, want an int", src, v.DebugDescribe())
	}
	return v.Int()
}

func evalStr(t *testing.T, ctx *vm.Context, src string) string {
	t.Helper()
	v := eval(t, ctx, src)
	defer v.Release()
	if !v.IsString() {
		t.Fatalf("ExecString(%q) = %s, want a string", src, v.DebugDescribe())
	}
	return v.String().Content
}

func TestSortScript(t *testing.T) {
	ctx := newCtx(t)
	got := evalStr(t, ctx, `
		var a = [5, 3, 1, 4, 1, 5, 9, 2, 6];
		a.sort();
		a.map(function(x, i) { return tostring(x); }).join(",");
	`)
	if got != "1,1,2,3,4,5,5,6,9" {
		t.Errorf("sorted = %q", got)
	}
}

func TestSortWithComparator(t *testing.T) {
	ctx := newCtx(t)
	got := evalStr(t, ctx, `
		var a = [2, 7, 4, 1];
		a.sort(function(x, y) { return x > y; });
		a.map(function(x, i) { return tostring(x); }).join(",");
	`)
	if got != "7,4,2,1" {
		t.Errorf("descending sort = %q", got)
	}
}

func TestSortComparatorShrinksArray(t *testing.T) {
	ctx := newCtx(t)
	_, err := ctx.ExecString(`
		var a = [5, 2, 9, 1, 7];
		sort(a, function(x, y) { pop(a); return x < y; });
	`)
	if err == nil {
		t.Fatal("a comparator that shrinks the array should fail the sort")
	}
	if !strings.Contains(ctx.ErrorMessage(), "resized during sort") {
		t.Errorf("message = %q", ctx.ErrorMessage())
	}
	if ctx.ErrorStage() != vm.StageRuntime {
		t.Errorf("stage = %v, want runtime", ctx.ErrorStage())
	}
}

func TestSortComparatorMustReturnBoolean(t *testing.T) {
	ctx := newCtx(t)
	_, err := ctx.ExecString(`
		var a = [2, 1];
		a.sort(function(x, y) { return 42; });
	`)
	if err == nil {
		t.Fatal("non-boolean comparator should fail")
	}
	if !strings.Contains(ctx.ErrorMessage(), "must return a Boolean") {
		t.Errorf("message = %q", ctx.ErrorMessage())
	}
	if ctx.ErrorStage() != vm.StageRuntime {
		t.Errorf("stage = %v, want runtime", ctx.ErrorStage())
	}
}

func TestSortUncomparableValues(t *testing.T) {
	ctx := newCtx(t)
	_, err := ctx.ExecString(`sort([1, "one"]);`)
	if err == nil {
		t.Fatal("sorting mixed types should fail")
	}
	if !strings.Contains(ctx.ErrorMessage(), "uncomparable") {
		t.Errorf("message = %q", ctx.ErrorMessage())
	}
}

func TestStringLibrary(t *testing.T) {
	ctx := newCtx(t)
	tests := []struct {
		src  string
		want string
	}{
		{`"Hello".toupper();`, "HELLO"},
		{`"Hello".tolower();`, "hello"},
		{`tolower("MiXeD");`, "mixed"},
		{`substr("sparkling", 0, 5);`, "spark"},
		{`"  padded  ".trim();`, "padded"},
		{`repeat("ab", 3);`, "ababab"},
		{`split("a,b,c", ",").join("-");`, "a-b-c"},
	}
	for _, tt := range tests {
		if got := evalStr(t, ctx, tt.src); got != tt.want {
			t.Errorf("%q = %q, want %q", tt.src, got, tt.want)
		}
	}

	if got := evalInt(t, ctx, `"hello".length();`); got != 5 {
		t.Errorf("length = %d, want 5", got)
	}
	if got := evalInt(t, ctx, `indexof("hello", "ll");`); got != 2 {
		t.Errorf("indexof = %d, want 2", got)
	}
}

func TestArrayHigherOrderFunctions(t *testing.T) {
	ctx := newCtx(t)

	got := evalStr(t, ctx, `
		[1, 2, 3].map(function(x, i) { return tostring(x * 10); }).join(",");
	`)
	if got != "10,20,30" {
		t.Errorf("map = %q", got)
	}

	got = evalStr(t, ctx, `
		[1, 2, 3, 4, 5]
			.filter(function(x, i) { return x % 2 == 1; })
			.map(function(x, i) { return tostring(x); })
			.join(",");
	`)
	if got != "1,3,5" {
		t.Errorf("filter = %q", got)
	}

	if got := evalInt(t, ctx, `[1, 2, 3, 4].reduce(function(acc, x) { return acc + x; });`); got != 10 {
		t.Errorf("reduce = %d, want 10", got)
	}

	v := eval(t, ctx, `[].reduce(function(acc, x) { return acc; });`)
	defer v.Release()
	if !v.IsNil() {
		t.Error("reducing an empty array should yield nil")
	}

	got2 := evalInt(t, ctx, `
		var sum = 0;
		[1, 2, 3, 4].foreach(function(x, i) {
			sum = sum + x;
			return x < 3;
		});
		sum;
	`)
	// stops after seeing 3
	if got2 != 6 {
		t.Errorf("foreach with early stop = %d, want 6", got2)
	}
}

func TestArrayMutators(t *testing.T) {
	ctx := newCtx(t)
	got := evalStr(t, ctx, `
		var a = [1, 2, 3];
		a.push(4);
		a.insert(0, 0);
		a.erase(-1);
		a.reverse();
		a.map(function(x, i) { return tostring(x); }).join(",");
	`)
	if got != "3,2,1,0" {
		t.Errorf("mutators = %q", got)
	}
	if got := evalInt(t, ctx, `count([7, 8, 9]);`); got != 3 {
		t.Errorf("count = %d", got)
	}
	if got := evalInt(t, ctx, `find([5, 6, 7], 6);`); got != 1 {
		t.Errorf("find = %d", got)
	}
}

func TestHashMapLibrary(t *testing.T) {
	ctx := newCtx(t)

	got := evalStr(t, ctx, `
		var m = {b: 2, a: 1, c: 3};
		var ks = m.keys();
		ks.sort();
		ks.join(",");
	`)
	if got != "a,b,c" {
		t.Errorf("keys = %q", got)
	}

	v := eval(t, ctx, `haskey({x: 1}, "x");`)
	defer v.Release()
	if !v.IsBool() || !v.Bool() {
		t.Error("haskey should find the key")
	}

	got2 := evalInt(t, ctx, `
		var m = {a: 1, b: 2, c: 3};
		m.erase("b");
		m.count();
	`)
	if got2 != 2 {
		t.Errorf("count after erase = %d, want 2", got2)
	}

	got2 = evalInt(t, ctx, `
		var total = 0;
		{x: 1, y: 2, z: 3}.foreach(function(k, v) { total = total + v; });
		total;
	`)
	if got2 != 6 {
		t.Errorf("hashmap foreach sum = %d, want 6", got2)
	}
}

func TestMathLibrary(t *testing.T) {
	ctx := newCtx(t)
	if got := evalInt(t, ctx, `abs(-7);`); got != 7 {
		t.Errorf("abs = %d", got)
	}
	if got := evalInt(t, ctx, `min(3, 1, 2);`); got != 1 {
		t.Errorf("min = %d", got)
	}
	if got := evalInt(t, ctx, `max(3, 1, 2);`); got != 3 {
		t.Errorf("max = %d", got)
	}

	v := eval(t, ctx, `sqrt(9.0);`)
	defer v.Release()
	if !v.IsFloat() || v.Float() != 3.0 {
		t.Errorf("sqrt(9) = %s", v.DebugDescribe())
	}

	v2 := eval(t, ctx, `M_PI > 3.14 && M_PI < 3.15;`)
	defer v2.Release()
	if !v2.IsBool() || !v2.Bool() {
		t.Error("M_PI should be defined")
	}
}

func TestSysLibrary(t *testing.T) {
	ctx := newCtx(t)
	tests := []struct {
		src  string
		want string
	}{
		{`typeof(1);`, "int"},
		{`typeof("x");`, "string"},
		{`typeof([]);`, "array"},
		{`typeof(nil);`, "nil"},
		{`tostring(42);`, "42"},
	}
	for _, tt := range tests {
		if got := evalStr(t, ctx, tt.src); got != tt.want {
			t.Errorf("%q = %q, want %q", tt.src, got, tt.want)
		}
	}

	if got := evalInt(t, ctx, `toint("0x10");`); got != 16 {
		t.Errorf("toint = %d, want 16", got)
	}
	if got := evalInt(t, ctx, `toint(3.9);`); got != 3 {
		t.Errorf("toint(3.9) = %d, want 3", got)
	}

	_, err := ctx.ExecString(`assert(false, "boom");`)
	if err == nil {
		t.Fatal("failed assertion should error")
	}
	if !strings.Contains(ctx.ErrorMessage(), "boom") {
		t.Errorf("message = %q", ctx.ErrorMessage())
	}
}

func TestSysCompileAndCall(t *testing.T) {
	ctx := newCtx(t)
	got := evalInt(t, ctx, `
		var f = compile("return 2 + 3;");
		f();
	`)
	if got != 5 {
		t.Errorf("compiled function = %d, want 5", got)
	}

	got = evalInt(t, ctx, `
		function add3(a, b, c) { return a + b + c; }
		call(add3, [1, 2, 3]);
	`)
	if got != 6 {
		t.Errorf("call = %d, want 6", got)
	}
}

func TestFmtStr(t *testing.T) {
	ctx := newCtx(t)
	tests := []struct {
		src  string
		want string
	}{
		{`fmtstr("%d apples", 3);`, "3 apples"},
		{`fmtstr("%04d", 42);`, "0042"},
		{`fmtstr("%x", 255);`, "ff"},
		{`fmtstr("%.2f", 3.14159);`, "3.14"},
		{`fmtstr("%s and %s", "salt", "pepper");`, "salt and pepper"},
		{`fmtstr("%q", "hi");`, "\"hi\""},
		{`fmtstr("100%%");`, "100%"},
		{`"%d-%d".fmtstr(1, 2);`, "1-2"},
	}
	for _, tt := range tests {
		if got := evalStr(t, ctx, tt.src); got != tt.want {
			t.Errorf("%q = %q, want %q", tt.src, got, tt.want)
		}
	}

	_, err := ctx.ExecString(`fmtstr("%d", "nope");`)
	if err == nil {
		t.Error("an integer conversion with a string argument should fail")
	}
	_, err = ctx.ExecString(`fmtstr("%d %d", 1);`)
	if err == nil {
		t.Error("missing arguments should fail")
	}
}

func TestSubstrVariants(t *testing.T) {
	ctx := newCtx(t)
	if got := evalStr(t, ctx, `substrto("sparkling", 5);`); got != "spark" {
		t.Errorf("substrto = %q", got)
	}
	if got := evalStr(t, ctx, `substrfrom("sparkling", 5);`); got != "ling" {
		t.Errorf("substrfrom = %q", got)
	}
	if _, err := ctx.ExecString(`substrto("ab", 5);`); err == nil {
		t.Error("out-of-bounds substrto should fail")
	}
}

func TestToNumber(t *testing.T) {
	ctx := newCtx(t)
	if got := evalInt(t, ctx, `tonumber("42");`); got != 42 {
		t.Errorf("tonumber int = %d", got)
	}
	v := eval(t, ctx, `tonumber("2.5");`)
	defer v.Release()
	if !v.IsFloat() || v.Float() != 2.5 {
		t.Errorf("tonumber float = %s", v.DebugDescribe())
	}
}

func TestRange(t *testing.T) {
	ctx := newCtx(t)
	if got := evalInt(t, ctx, `range(5).count();`); got != 5 {
		t.Errorf("range(5).count() = %d", got)
	}
	if got := evalInt(t, ctx, `range(2, 8, 3).reduce(function(a, x) { return a + x; });`); got != 7 {
		t.Errorf("range(2,8,3) sum = %d, want 7", got)
	}
	if got := evalInt(t, ctx, `range(3, 0, -1).count();`); got != 3 {
		t.Errorf("descending range count = %d", got)
	}
	if _, err := ctx.ExecString(`range(1, 5, 0);`); err == nil {
		t.Error("zero step should fail")
	}
}

func TestAnyAll(t *testing.T) {
	ctx := newCtx(t)
	cases := []struct {
		src  string
		want bool
	}{
		{`[1, 2, 3].any(function(x, i) { return x > 2; });`, true},
		{`[1, 2, 3].any(function(x, i) { return x > 5; });`, false},
		{`[1, 2, 3].all(function(x, i) { return x > 0; });`, true},
		{`[1, 2, 3].all(function(x, i) { return x > 1; });`, false},
		{`[].any(function(x, i) { return true; });`, false},
		{`[].all(function(x, i) { return false; });`, true},
	}
	for _, tt := range cases {
		v := eval(t, ctx, tt.src)
		if !v.IsBool() || v.Bool() != tt.want {
			t.Errorf("%q = %s, want %v", tt.src, v.DebugDescribe(), tt.want)
		}
		v.Release()
	}
}

func TestBsearch(t *testing.T) {
	ctx := newCtx(t)
	if got := evalInt(t, ctx, `bsearch([1, 3, 5, 7, 9], 7);`); got != 3 {
		t.Errorf("bsearch hit = %d, want 3", got)
	}
	if got := evalInt(t, ctx, `bsearch([1, 3, 5, 7, 9], 4);`); got != -1 {
		t.Errorf("bsearch miss = %d, want -1", got)
	}
	if got := evalInt(t, ctx, `bsearch([], 4);`); got != -1 {
		t.Errorf("bsearch empty = %d, want -1", got)
	}
}

func TestPfind(t *testing.T) {
	ctx := newCtx(t)
	if got := evalInt(t, ctx, `pfind([4, 8, 15, 16], function(x) { return x > 10; });`); got != 2 {
		t.Errorf("pfind hit = %d, want 2", got)
	}
	if got := evalInt(t, ctx, `pfind([4, 8], function(x) { return x > 10; });`); got != -1 {
		t.Errorf("pfind miss = %d, want -1", got)
	}
	if _, err := ctx.ExecString(`pfind([1], function(x) { return 0; });`); err == nil {
		t.Error("a predicate returning a non-boolean should fail")
	}
}

func TestConcatAndInject(t *testing.T) {
	ctx := newCtx(t)
	if got := evalInt(t, ctx, `concat([1, 2], [3, 4]).count();`); got != 4 {
		t.Errorf("concat count = %d", got)
	}
	got := evalStr(t, ctx, `
		var a = ["a", "d"];
		a.inject(["b", "c"], 1);
		a.join("");
	`)
	if got != "abcd" {
		t.Errorf("inject = %q", got)
	}
}

func TestCombine(t *testing.T) {
	ctx := newCtx(t)
	got := evalInt(t, ctx, `
		var m = combine(["x", "y"], [10, 20]);
		m["x"] + m["y"];
	`)
	if got != 30 {
		t.Errorf("combine = %d, want 30", got)
	}
	if _, err := ctx.ExecString(`combine(["x"], [1, 2]);`); err == nil {
		t.Error("length mismatch should fail")
	}
}

func TestMathExtras(t *testing.T) {
	ctx := newCtx(t)
	if got := evalInt(t, ctx, `sgn(-3.5);`); got != -1 {
		t.Errorf("sgn = %d", got)
	}
	if got := evalInt(t, ctx, `fact(10);`); got != 3628800 {
		t.Errorf("fact(10) = %d", got)
	}
	if got := evalInt(t, ctx, `binom(10, 3);`); got != 120 {
		t.Errorf("binom(10,3) = %d", got)
	}
	if _, err := ctx.ExecString(`fact(21);`); err == nil {
		t.Error("fact(21) should overflow")
	}

	v0 := eval(t, ctx, `cbrt(27.0);`)
	defer v0.Release()
	if !v0.IsFloat() || v0.Float() != 3.0 {
		t.Errorf("cbrt(27.0) = %s, want 3", v0.DebugDescribe())
	}
	v1 := eval(t, ctx, `exp2(10.0);`)
	defer v1.Release()
	if !v1.IsFloat() || v1.Float() != 1024.0 {
		t.Errorf("exp2(10.0) = %s, want 1024", v1.DebugDescribe())
	}

	v := eval(t, ctx, `isfin(M_INF);`)
	defer v.Release()
	if !v.IsBool() || v.Bool() {
		t.Error("isfin(M_INF) should be false")
	}
	v2 := eval(t, ctx, `isint(3) && isfloat(3.0) && !isint(3.0);`)
	defer v2.Release()
	if !v2.IsBool() || !v2.Bool() {
		t.Error("isint/isfloat misclassify")
	}
}

func TestSeededRandomIsReproducible(t *testing.T) {
	ctx := newCtx(t)
	a := eval(t, ctx, `seed(7); random();`)
	b := eval(t, ctx, `seed(7); random();`)
	defer a.Release()
	defer b.Release()
	if !a.IsFloat() || !b.IsFloat() || a.Float() != b.Float() {
		t.Errorf("seeded draws differ: %s vs %s", a.DebugDescribe(), b.DebugDescribe())
	}
}

func TestSystem(t *testing.T) {
	ctx := newCtx(t)
	if got := evalInt(t, ctx, `system("exit 7");`); got != 7 {
		t.Errorf("system exit code = %d, want 7", got)
	}
	if got := evalInt(t, ctx, `system("true");`); got != 0 {
		t.Errorf("system exit code = %d, want 0", got)
	}
}

func TestExprToFn(t *testing.T) {
	ctx := newCtx(t)
	if got := evalInt(t, ctx, `
		var f = exprtofn("6 * 7");
		f();
	`); got != 42 {
		t.Errorf("exprtofn = %d, want 42", got)
	}
}

func TestBacktrace(t *testing.T) {
	ctx := newCtx(t)
	got := evalStr(t, ctx, `
		function inner() { return backtrace().join(" < "); }
		function outer() { return inner(); }
		outer();
	`)
	if !strings.HasPrefix(got, "inner < outer") {
		t.Errorf("backtrace = %q, want it to start with inner < outer", got)
	}
}

func TestFileHandles(t *testing.T) {
	ctx := newCtx(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")

	setPath := vm.MakeString(path)
	ctx.SetGlobal("PATH", setPath)
	setPath.Release()

	eval(t, ctx, `
		var f = fopen(PATH, "w");
		fwrite(f, "first line\nsecond line\n");
		fclose(f);
	`).Release()

	got := evalStr(t, ctx, `
		var f = fopen(PATH, "r");
		var first = fgetline(f);
		var second = fgetline(f);
		fclose(f);
		first .. "|" .. second;
	`)
	if got != "first line|second line" {
		t.Errorf("read back = %q", got)
	}

	got = evalStr(t, ctx, `
		var f = fopen(PATH, "r");
		fseek(f, 6, "set");
		var rest = fread(f, 4);
		var pos = ftell(f);
		fclose(f);
		fmtstr("%s@%d", rest, pos);
	`)
	if got != "line@10" {
		t.Errorf("seek/read = %q", got)
	}

	if _, err := ctx.ExecString(`fclose(stdout);`); err == nil {
		t.Error("closing a standard stream should fail")
	}
	if _, err := ctx.ExecString(`fopen(PATH, "rw");`); err == nil {
		t.Error("bad mode should fail")
	}
}

func TestFprintf(t *testing.T) {
	ctx := newCtx(t)
	path := filepath.Join(t.TempDir(), "report.txt")

	p := vm.MakeString(path)
	ctx.SetGlobal("PATH", p)
	p.Release()

	eval(t, ctx, `
		var f = fopen(PATH, "w");
		fprintf(f, "%s scored %04d\n", "alice", 42);
		fclose(f);
	`).Release()

	if got := evalStr(t, ctx, `readfile(PATH);`); got != "alice scored 0042\n" {
		t.Errorf("fprintf wrote %q", got)
	}

	if _, err := ctx.ExecString(`fprintf("not a handle", "%d", 1);`); err == nil {
		t.Error("fprintf without a file handle should fail")
	}
}

func TestRequire(t *testing.T) {
	ctx := newCtx(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "answer.spn"), []byte("21 * 2;"), 0o644); err != nil {
		t.Fatal(err)
	}
	SetRequirePaths([]string{dir})
	t.Cleanup(func() { SetRequirePaths(nil) })

	if got := evalInt(t, ctx, `require("answer.spn");`); got != 42 {
		t.Errorf("require = %d, want 42", got)
	}
	if _, err := ctx.ExecString(`require("missing.spn");`); err == nil {
		t.Error("missing file should fail")
	}
}

func TestRequireSurfacesSyntaxError(t *testing.T) {
	ctx := newCtx(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "broken.spn"), []byte("1 +"), 0o644); err != nil {
		t.Fatal(err)
	}
	SetRequirePaths([]string{dir})
	t.Cleanup(func() { SetRequirePaths(nil) })

	_, err := ctx.ExecString(`require("broken.spn");`)
	if err == nil {
		t.Fatal("requiring a file with a syntax error should fail")
	}
	if !strings.Contains(ctx.ErrorMessage(), "expected an expression") {
		t.Errorf("message = %q, want the underlying syntax message", ctx.ErrorMessage())
	}
	if strings.Contains(ctx.ErrorMessage(), "native function") {
		t.Errorf("message = %q, must not be the generic native failure", ctx.ErrorMessage())
	}
}

func TestCompileReportsBadSource(t *testing.T) {
	ctx := newCtx(t)
	_, err := ctx.ExecString(`compile("1 +");`)
	if err == nil {
		t.Fatal("compiling bad source should fail")
	}
	if ctx.ErrorStage() != vm.StageRuntime {
		t.Errorf("stage = %v, want runtime (failure of the compile call)", ctx.ErrorStage())
	}
}
