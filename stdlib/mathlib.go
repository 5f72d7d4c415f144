package stdlib

import (
	"math"
	"math/rand"
	"time"

	"github.com/carriercomm/Sparkling/vm"
)

// ---------------------------------------------------------------------------
// Math library
// ---------------------------------------------------------------------------

var rng = rand.New(rand.NewSource(time.Now().UnixNano()))

func loadMath(ctx *vm.Context) {
	ctx.RegisterNativeFns(map[string]vm.NativeFn{
		"abs":     mathAbs,
		"min":     mathMin,
		"max":     mathMax,
		"sgn":     mathSgn,
		"floor":   math1(math.Floor),
		"ceil":    math1(math.Ceil),
		"round":   math1(math.Round),
		"sqrt":    math1(math.Sqrt),
		"cbrt":    math1(math.Cbrt),
		"exp":     math1(math.Exp),
		"exp2":    math1(math.Exp2),
		"log":     math1(math.Log),
		"log2":    math1(math.Log2),
		"log10":   math1(math.Log10),
		"sin":     math1(math.Sin),
		"cos":     math1(math.Cos),
		"tan":     math1(math.Tan),
		"sinh":    math1(math.Sinh),
		"cosh":    math1(math.Cosh),
		"tanh":    math1(math.Tanh),
		"asin":    math1(math.Asin),
		"acos":    math1(math.Acos),
		"atan":    math1(math.Atan),
		"asinh":   math1(math.Asinh),
		"acosh":   math1(math.Acosh),
		"atanh":   math1(math.Atanh),
		"atan2":   math2(math.Atan2),
		"hypot":   math2(math.Hypot),
		"pow":     math2(math.Pow),
		"deg2rad": math1(func(d float64) float64 { return d * math.Pi / 180 }),
		"rad2deg": math1(func(r float64) float64 { return r * 180 / math.Pi }),
		"random":  mathRandom,
		"seed":    mathSeed,
		"isnan":   mathIsNaN,
		"isinf":   mathIsInf,
		"isfin":   mathIsFin,
		"isint":   mathIsInt,
		"isfloat": mathIsFloat,
		"fact":    mathFact,
		"binom":   mathBinom,
	})
	ctx.RegisterConstants(map[string]vm.Value{
		"M_PI":    vm.MakeFloat(math.Pi),
		"M_E":     vm.MakeFloat(math.E),
		"M_SQRT2": vm.MakeFloat(math.Sqrt2),
		"M_LN2":   vm.MakeFloat(math.Ln2),
		"M_LN10":  vm.MakeFloat(math.Ln10),
		"M_PHI":   vm.MakeFloat(math.Phi),
		"M_INF":   vm.MakeFloat(math.Inf(1)),
		"M_NAN":   vm.MakeFloat(math.NaN()),
	})
}

// math1 adapts a unary float function to the native calling convention.
func math1(f func(float64) float64) vm.NativeFn {
	return func(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
		if !wantArgc(ctx, "math", argv, 1) {
			return -1
		}
		x, ok := wantNumber(ctx, "math", argv, 0)
		if !ok {
			return -1
		}
		*ret = vm.MakeFloat(f(x))
		return 0
	}
}

func math2(f func(float64, float64) float64) vm.NativeFn {
	return func(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
		if !wantArgc(ctx, "math", argv, 2) {
			return -1
		}
		x, ok := wantNumber(ctx, "math", argv, 0)
		if !ok {
			return -1
		}
		y, ok := wantNumber(ctx, "math", argv, 1)
		if !ok {
			return -1
		}
		*ret = vm.MakeFloat(f(x, y))
		return 0
	}
}

// mathAbs preserves integerness: abs of an int is an int.
func mathAbs(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "abs", argv, 1) {
		return -1
	}
	switch {
	case argv[0].IsInt():
		n := argv[0].Int()
		if n < 0 {
			n = -n
		}
		*ret = vm.MakeInt(n)
	case argv[0].IsFloat():
		*ret = vm.MakeFloat(math.Abs(argv[0].Float()))
	default:
		return fail(ctx, "abs: argument 1 must be a number")
	}
	return 0
}

// mathSgn returns -1, 0 or 1 as an int regardless of the input kind.
func mathSgn(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "sgn", argv, 1) {
		return -1
	}
	x, ok := wantNumber(ctx, "sgn", argv, 0)
	if !ok {
		return -1
	}
	switch {
	case x > 0:
		*ret = vm.MakeInt(1)
	case x < 0:
		*ret = vm.MakeInt(-1)
	default:
		*ret = vm.MakeInt(0)
	}
	return 0
}

func mathMin(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	return minMax(ret, argv, ctx, "min", func(c int) bool { return c < 0 })
}

func mathMax(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	return minMax(ret, argv, ctx, "max", func(c int) bool { return c > 0 })
}

func minMax(ret *vm.Value, argv []vm.Value, ctx *vm.Context, name string, pick func(int) bool) int {
	if len(argv) == 0 {
		return fail(ctx, "%s: expecting at least 1 argument", name)
	}
	best := argv[0]
	for _, v := range argv[1:] {
		if !best.Comparable(v) {
			return fail(ctx, "%s: values of type %s and %s are not ordered",
				name, best.TypeName(), v.TypeName())
		}
		if pick(v.Compare(best)) {
			best = v
		}
	}
	best.Retain()
	*ret = best
	return 0
}

// mathRandom returns a uniform float in [0, 1).
func mathRandom(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	*ret = vm.MakeFloat(rng.Float64())
	return 0
}

// mathSeed reseeds the generator, for reproducible runs.
func mathSeed(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "seed", argv, 1) {
		return -1
	}
	n, ok := wantInt(ctx, "seed", argv, 0)
	if !ok {
		return -1
	}
	rng = rand.New(rand.NewSource(n))
	return 0
}

func mathIsNaN(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "isnan", argv, 1) {
		return -1
	}
	*ret = vm.MakeBool(argv[0].IsFloat() && math.IsNaN(argv[0].Float()))
	return 0
}

func mathIsInf(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "isinf", argv, 1) {
		return -1
	}
	*ret = vm.MakeBool(argv[0].IsFloat() && math.IsInf(argv[0].Float(), 0))
	return 0
}

// mathIsFin reports whether the number is finite. Integers always are.
func mathIsFin(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "isfin", argv, 1) {
		return -1
	}
	switch {
	case argv[0].IsInt():
		*ret = vm.MakeBool(true)
	case argv[0].IsFloat():
		f := argv[0].Float()
		*ret = vm.MakeBool(!math.IsNaN(f) && !math.IsInf(f, 0))
	default:
		*ret = vm.MakeBool(false)
	}
	return 0
}

func mathIsInt(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "isint", argv, 1) {
		return -1
	}
	*ret = vm.MakeBool(argv[0].IsInt())
	return 0
}

func mathIsFloat(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "isfloat", argv, 1) {
		return -1
	}
	*ret = vm.MakeBool(argv[0].IsFloat())
	return 0
}

// mathFact computes n! in integer arithmetic. 20! is the largest value
// that fits in an int64.
func mathFact(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "fact", argv, 1) {
		return -1
	}
	n, ok := wantInt(ctx, "fact", argv, 0)
	if !ok {
		return -1
	}
	if n < 0 {
		return fail(ctx, "fact: argument must be non-negative (was %d)", n)
	}
	if n > 20 {
		return fail(ctx, "fact: %d! overflows an integer", n)
	}
	acc := int64(1)
	for i := int64(2); i <= n; i++ {
		acc *= i
	}
	*ret = vm.MakeInt(acc)
	return 0
}

// mathBinom computes the binomial coefficient C(n, k) with the
// multiplicative formula, dividing at every step to delay overflow.
func mathBinom(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "binom", argv, 2) {
		return -1
	}
	n, ok := wantInt(ctx, "binom", argv, 0)
	if !ok {
		return -1
	}
	k, ok := wantInt(ctx, "binom", argv, 1)
	if !ok {
		return -1
	}
	if n < 0 || k < 0 {
		return fail(ctx, "binom: arguments must be non-negative")
	}
	if k > n {
		*ret = vm.MakeInt(0)
		return 0
	}
	if k > n-k {
		k = n - k
	}
	acc := int64(1)
	for i := int64(1); i <= k; i++ {
		next := acc * (n - k + i)
		if next/(n-k+i) != acc {
			return fail(ctx, "binom: C(%d, %d) overflows an integer", n, k)
		}
		acc = next / i
	}
	*ret = vm.MakeInt(acc)
	return 0
}
