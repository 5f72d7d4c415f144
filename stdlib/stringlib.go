package stdlib

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/carriercomm/Sparkling/vm"
)

// ---------------------------------------------------------------------------
// String library
// ---------------------------------------------------------------------------

func loadString(ctx *vm.Context) {
	fns := map[string]vm.NativeFn{
		"length":     strLength,
		"indexof":    strIndexOf,
		"substr":     strSubstr,
		"substrto":   strSubstrTo,
		"substrfrom": strSubstrFrom,
		"split":      strSplit,
		"repeat":     strRepeat,
		"tolower":    strToLower,
		"toupper":    strToUpper,
		"trim":       strTrim,
		"startswith": strStartsWith,
		"endswith":   strEndsWith,
		"fmtstr":     strFmtStr,
		"tonumber":   strToNumber,
	}
	ctx.RegisterNativeFns(fns)
	ctx.RegisterMethods(vm.ClassString, fns)
}

func strLength(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "length", argv, 1) {
		return -1
	}
	s, ok := wantString(ctx, "length", argv, 0)
	if !ok {
		return -1
	}
	*ret = vm.MakeInt(int64(s.Len()))
	return 0
}

// strIndexOf returns the byte offset of the first occurrence of the
// needle, or -1.
func strIndexOf(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "indexof", argv, 2) {
		return -1
	}
	s, ok := wantString(ctx, "indexof", argv, 0)
	if !ok {
		return -1
	}
	needle, ok := wantString(ctx, "indexof", argv, 1)
	if !ok {
		return -1
	}
	*ret = vm.MakeInt(int64(strings.Index(s.Content, needle.Content)))
	return 0
}

func strSubstr(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "substr", argv, 3) {
		return -1
	}
	s, ok := wantString(ctx, "substr", argv, 0)
	if !ok {
		return -1
	}
	begin, ok := wantInt(ctx, "substr", argv, 1)
	if !ok {
		return -1
	}
	length, ok := wantInt(ctx, "substr", argv, 2)
	if !ok {
		return -1
	}
	if begin < 0 || length < 0 || begin+length > int64(s.Len()) {
		return fail(ctx, "substr: range [%d, %d) out of bounds [0, %d)",
			begin, begin+length, s.Len())
	}
	*ret = vm.MakeString(s.Content[begin : begin+length])
	return 0
}

func strSplit(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "split", argv, 2) {
		return -1
	}
	s, ok := wantString(ctx, "split", argv, 0)
	if !ok {
		return -1
	}
	sep, ok := wantString(ctx, "split", argv, 1)
	if !ok {
		return -1
	}
	parts := strings.Split(s.Content, sep.Content)
	arr := vm.NewArrayCap(len(parts))
	for _, p := range parts {
		pv := vm.MakeString(p)
		arr.Push(pv)
		pv.Release()
	}
	*ret = vm.MakeObject(arr)
	return 0
}

func strRepeat(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "repeat", argv, 2) {
		return -1
	}
	s, ok := wantString(ctx, "repeat", argv, 0)
	if !ok {
		return -1
	}
	n, ok := wantInt(ctx, "repeat", argv, 1)
	if !ok {
		return -1
	}
	if n < 0 {
		return fail(ctx, "repeat: count must be non-negative (was %d)", n)
	}
	*ret = vm.MakeString(strings.Repeat(s.Content, int(n)))
	return 0
}

func strToLower(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "tolower", argv, 1) {
		return -1
	}
	s, ok := wantString(ctx, "tolower", argv, 0)
	if !ok {
		return -1
	}
	*ret = vm.MakeString(strings.ToLower(s.Content))
	return 0
}

func strToUpper(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "toupper", argv, 1) {
		return -1
	}
	s, ok := wantString(ctx, "toupper", argv, 0)
	if !ok {
		return -1
	}
	*ret = vm.MakeString(strings.ToUpper(s.Content))
	return 0
}

func strTrim(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "trim", argv, 1) {
		return -1
	}
	s, ok := wantString(ctx, "trim", argv, 0)
	if !ok {
		return -1
	}
	*ret = vm.MakeString(strings.TrimSpace(s.Content))
	return 0
}

func strStartsWith(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "startswith", argv, 2) {
		return -1
	}
	s, ok := wantString(ctx, "startswith", argv, 0)
	if !ok {
		return -1
	}
	prefix, ok := wantString(ctx, "startswith", argv, 1)
	if !ok {
		return -1
	}
	*ret = vm.MakeBool(strings.HasPrefix(s.Content, prefix.Content))
	return 0
}

func strEndsWith(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "endswith", argv, 2) {
		return -1
	}
	s, ok := wantString(ctx, "endswith", argv, 0)
	if !ok {
		return -1
	}
	suffix, ok := wantString(ctx, "endswith", argv, 1)
	if !ok {
		return -1
	}
	*ret = vm.MakeBool(strings.HasSuffix(s.Content, suffix.Content))
	return 0
}

// strSubstrTo returns the prefix of the first n bytes.
func strSubstrTo(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "substrto", argv, 2) {
		return -1
	}
	s, ok := wantString(ctx, "substrto", argv, 0)
	if !ok {
		return -1
	}
	n, ok := wantInt(ctx, "substrto", argv, 1)
	if !ok {
		return -1
	}
	if n < 0 || n > int64(s.Len()) {
		return fail(ctx, "substrto: length %d out of bounds [0, %d]", n, s.Len())
	}
	*ret = vm.MakeString(s.Content[:n])
	return 0
}

// strSubstrFrom returns the suffix starting at byte offset n.
func strSubstrFrom(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "substrfrom", argv, 2) {
		return -1
	}
	s, ok := wantString(ctx, "substrfrom", argv, 0)
	if !ok {
		return -1
	}
	n, ok := wantInt(ctx, "substrfrom", argv, 1)
	if !ok {
		return -1
	}
	if n < 0 || n > int64(s.Len()) {
		return fail(ctx, "substrfrom: offset %d out of bounds [0, %d]", n, s.Len())
	}
	*ret = vm.MakeString(s.Content[n:])
	return 0
}

func strFmtStr(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if len(argv) < 1 {
		return fail(ctx, "fmtstr: expecting at least 1 argument")
	}
	format, ok := wantString(ctx, "fmtstr", argv, 0)
	if !ok {
		return -1
	}
	out, err := formatString(format.Content, argv[1:])
	if err != nil {
		return fail(ctx, "fmtstr: %v", err)
	}
	*ret = vm.MakeString(out)
	return 0
}

// strToNumber parses a string as an integer when possible, otherwise as
// a float.
func strToNumber(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "tonumber", argv, 1) {
		return -1
	}
	if argv[0].IsNumber() {
		argv[0].Retain()
		*ret = argv[0]
		return 0
	}
	s, ok := wantString(ctx, "tonumber", argv, 0)
	if !ok {
		return -1
	}
	text := strings.TrimSpace(s.Content)
	if n, err := strconv.ParseInt(text, 0, 64); err == nil {
		*ret = vm.MakeInt(n)
		return 0
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return fail(ctx, "tonumber: cannot parse %q as a number", s.Content)
	}
	*ret = vm.MakeFloat(f)
	return 0
}

// formatString expands a printf-style format with script values. Verbs:
// %d %i %x %X %o %b (integers), %f %e %g (floats, integer-promoting),
// %c (character from an integer), %s (natural description), %q (debug
// description), %%. Width, precision and the usual flags pass through.
func formatString(format string, args []vm.Value) (string, error) {
	var sb strings.Builder
	next := 0
	take := func() (vm.Value, error) {
		if next >= len(args) {
			return vm.MakeNil(), fmt.Errorf("not enough arguments for format %q", format)
		}
		v := args[next]
		next++
		return v, nil
	}

	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' {
			sb.WriteByte(c)
			continue
		}
		// scan %[flags][width][.precision]verb
		start := i
		i++
		for i < len(format) && strings.IndexByte("+-# 0123456789.", format[i]) >= 0 {
			i++
		}
		if i >= len(format) {
			return "", fmt.Errorf("truncated conversion at end of format %q", format)
		}
		spec := format[start:i] // "%" plus flags
		verb := format[i]

		switch verb {
		case '%':
			sb.WriteByte('%')
		case 'd', 'i', 'x', 'X', 'o', 'b':
			v, err := take()
			if err != nil {
				return "", err
			}
			if !v.IsInt() {
				return "", fmt.Errorf("%%%c expects an integer, got a %s", verb, v.TypeName())
			}
			goVerb := verb
			if verb == 'i' {
				goVerb = 'd'
			}
			fmt.Fprintf(&sb, spec+string(goVerb), v.Int())
		case 'f', 'e', 'g':
			v, err := take()
			if err != nil {
				return "", err
			}
			if !v.IsNumber() {
				return "", fmt.Errorf("%%%c expects a number, got a %s", verb, v.TypeName())
			}
			fmt.Fprintf(&sb, spec+string(verb), v.Number())
		case 'c':
			v, err := take()
			if err != nil {
				return "", err
			}
			if !v.IsInt() {
				return "", fmt.Errorf("%%c expects an integer, got a %s", v.TypeName())
			}
			fmt.Fprintf(&sb, spec+"c", rune(v.Int()))
		case 's':
			v, err := take()
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&sb, spec+"s", v.Describe())
		case 'q':
			v, err := take()
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&sb, spec+"s", v.DebugDescribe())
		default:
			return "", fmt.Errorf("unknown conversion %%%c", verb)
		}
	}
	if next < len(args) {
		return "", fmt.Errorf("%d extra arguments for format %q", len(args)-next, format)
	}
	return sb.String(), nil
}
