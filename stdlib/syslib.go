package stdlib

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/carriercomm/Sparkling/vm"
)

// ---------------------------------------------------------------------------
// System library
// ---------------------------------------------------------------------------

func loadSys(ctx *vm.Context) {
	ctx.RegisterNativeFns(map[string]vm.NativeFn{
		"typeof":    sysTypeof,
		"tostring":  sysToString,
		"toint":     sysToInt,
		"tofloat":   sysToFloat,
		"assert":    sysAssert,
		"getenv":    sysGetenv,
		"system":    sysSystem,
		"time":      sysTime,
		"utctime":   sysUTCTime,
		"localtime": sysLocalTime,
		"fmtdate":   sysFmtDate,
		"difftime":  sysDiffTime,
		"compile":   sysCompile,
		"exprtofn":  sysExprToFn,
		"call":      sysCall,
		"backtrace": sysBacktrace,
		"require":   sysRequire,
		"exit":      sysExit,
	})
}

// requirePaths lists the directories require searches, in order. The
// CLI fills it from the manifest's [source] dirs; the current directory
// is always tried first.
var requirePaths []string

// SetRequirePaths configures the search path of the require function.
func SetRequirePaths(paths []string) {
	requirePaths = paths
}

func sysTypeof(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "typeof", argv, 1) {
		return -1
	}
	*ret = vm.MakeString(argv[0].TypeName())
	return 0
}

func sysToString(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "tostring", argv, 1) {
		return -1
	}
	*ret = vm.MakeString(argv[0].Describe())
	return 0
}

func sysToInt(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "toint", argv, 1) {
		return -1
	}
	switch v := argv[0]; {
	case v.IsInt():
		v.Retain()
		*ret = v
	case v.IsFloat():
		*ret = vm.MakeInt(int64(v.Float()))
	case v.IsString():
		n, err := strconv.ParseInt(strings.TrimSpace(v.String().Content), 0, 64)
		if err != nil {
			return fail(ctx, "toint: cannot parse %q as an integer", v.String().Content)
		}
		*ret = vm.MakeInt(n)
	default:
		return fail(ctx, "toint: cannot convert a %s", v.TypeName())
	}
	return 0
}

func sysToFloat(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "tofloat", argv, 1) {
		return -1
	}
	switch v := argv[0]; {
	case v.IsNumber():
		*ret = vm.MakeFloat(v.Number())
	case v.IsString():
		f, err := strconv.ParseFloat(strings.TrimSpace(v.String().Content), 64)
		if err != nil {
			return fail(ctx, "tofloat: cannot parse %q as a float", v.String().Content)
		}
		*ret = vm.MakeFloat(f)
	default:
		return fail(ctx, "tofloat: cannot convert a %s", v.TypeName())
	}
	return 0
}

func sysAssert(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgcRange(ctx, "assert", argv, 1, 2) {
		return -1
	}
	if argv[0].IsTruthy() {
		return 0
	}
	msg := "assertion failed"
	if len(argv) == 2 && argv[1].IsString() {
		msg = "assertion failed: " + argv[1].String().Content
	}
	return fail(ctx, "%s", msg)
}

func sysGetenv(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "getenv", argv, 1) {
		return -1
	}
	name, ok := wantString(ctx, "getenv", argv, 0)
	if !ok {
		return -1
	}
	if val, found := os.LookupEnv(name.Content); found {
		*ret = vm.MakeString(val)
	}
	return 0
}

// sysTime returns the current Unix timestamp in seconds.
func sysTime(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	*ret = vm.MakeInt(time.Now().Unix())
	return 0
}

func sysUTCTime(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	return timeParts(ret, argv, ctx, "utctime", time.UTC)
}

func sysLocalTime(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	return timeParts(ret, argv, ctx, "localtime", time.Local)
}

// timeParts breaks a timestamp into a hashmap of calendar fields.
func timeParts(ret *vm.Value, argv []vm.Value, ctx *vm.Context, fn string, loc *time.Location) int {
	if !wantArgc(ctx, fn, argv, 1) {
		return -1
	}
	ts, ok := wantInt(ctx, fn, argv, 0)
	if !ok {
		return -1
	}
	t := time.Unix(ts, 0).In(loc)
	out := vm.NewHashMap()
	put := func(key string, n int) {
		v := vm.MakeInt(int64(n))
		_ = out.SetStr(key, v)
	}
	put("sec", t.Second())
	put("min", t.Minute())
	put("hour", t.Hour())
	put("mday", t.Day())
	put("mon", int(t.Month()))
	put("year", t.Year())
	put("wday", int(t.Weekday()))
	put("yday", t.YearDay())
	*ret = vm.MakeObject(out)
	return 0
}

// sysFmtDate formats a timestamp with a Go reference layout.
func sysFmtDate(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "fmtdate", argv, 2) {
		return -1
	}
	layout, ok := wantString(ctx, "fmtdate", argv, 0)
	if !ok {
		return -1
	}
	ts, ok := wantInt(ctx, "fmtdate", argv, 1)
	if !ok {
		return -1
	}
	*ret = vm.MakeString(time.Unix(ts, 0).Format(layout.Content))
	return 0
}

func sysDiffTime(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "difftime", argv, 2) {
		return -1
	}
	a, ok := wantInt(ctx, "difftime", argv, 0)
	if !ok {
		return -1
	}
	b, ok := wantInt(ctx, "difftime", argv, 1)
	if !ok {
		return -1
	}
	*ret = vm.MakeInt(a - b)
	return 0
}

// sysCompile compiles a source string into a function without running
// it. Errors surface as runtime failures of the compile call itself.
func sysCompile(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "compile", argv, 1) {
		return -1
	}
	src, ok := wantString(ctx, "compile", argv, 0)
	if !ok {
		return -1
	}
	fn, err := ctx.LoadFunction(src.Content)
	if err != nil {
		return fail(ctx, "compile: %v", err)
	}
	*ret = fn
	return 0
}

// sysSystem runs a shell command and returns its exit code.
func sysSystem(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "system", argv, 1) {
		return -1
	}
	cmdLine, ok := wantString(ctx, "system", argv, 0)
	if !ok {
		return -1
	}
	cmd := exec.Command("/bin/sh", "-c", cmdLine.Content)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	err := cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		*ret = vm.MakeInt(0)
	case errors.As(err, &exitErr):
		*ret = vm.MakeInt(int64(exitErr.ExitCode()))
	default:
		return fail(ctx, "system: %v", err)
	}
	return 0
}

// sysExprToFn compiles a single expression into a function returning
// its value.
func sysExprToFn(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "exprtofn", argv, 1) {
		return -1
	}
	src, ok := wantString(ctx, "exprtofn", argv, 0)
	if !ok {
		return -1
	}
	fn, err := ctx.LoadFunction("return (" + src.Content + ");")
	if err != nil {
		return fail(ctx, "exprtofn: %v", err)
	}
	*ret = fn
	return 0
}

// sysBacktrace returns the names of the active script functions,
// innermost first.
func sysBacktrace(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	names := ctx.Backtrace()
	out := vm.NewArrayCap(len(names))
	for _, name := range names {
		v := vm.MakeString(name)
		out.Push(v)
		v.Release()
	}
	*ret = vm.MakeObject(out)
	return 0
}

// sysRequire loads and runs a source file found on the configured
// search path, returning the file's program result.
func sysRequire(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "require", argv, 1) {
		return -1
	}
	name, ok := wantString(ctx, "require", argv, 0)
	if !ok {
		return -1
	}

	candidates := append([]string{"."}, requirePaths...)
	for _, dir := range candidates {
		path := filepath.Join(dir, name.Content)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		v, err := ctx.ExecSrcFile(path)
		if err != nil {
			// re-record on the machine so the caller sees the real
			// message instead of a generic native-call failure
			return fail(ctx, "require: %v", err)
		}
		*ret = v
		return 0
	}
	return fail(ctx, "require: cannot find %q on the search path", name.Content)
}

// sysExit terminates the process with the given status (0 by default).
func sysExit(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	status := int64(0)
	if len(argv) > 1 {
		ctx.RuntimeError("exit: expecting at most one argument, got %d", len(argv))
		return -1
	}
	if len(argv) == 1 {
		if !argv[0].IsInt() {
			ctx.RuntimeError("exit: status must be an integer (got %s)", argv[0].TypeName())
			return -1
		}
		status = argv[0].Int()
	}
	os.Exit(int(status))
	return 0
}

// sysCall applies a function to an array of arguments.
func sysCall(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "call", argv, 2) {
		return -1
	}
	fn, ok := wantFunction(ctx, "call", argv, 0)
	if !ok {
		return -1
	}
	arr, ok := wantArray(ctx, "call", argv, 1)
	if !ok {
		return -1
	}
	args := make([]vm.Value, arr.Count())
	for i := range args {
		args[i], _ = arr.Get(i)
	}
	res, err := ctx.CallFunc(fn, args)
	if err != nil {
		return -1
	}
	*ret = res
	return 0
}
