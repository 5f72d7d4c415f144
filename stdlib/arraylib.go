package stdlib

import (
	"strings"

	"github.com/carriercomm/Sparkling/vm"
)

// ---------------------------------------------------------------------------
// Array library
// ---------------------------------------------------------------------------

func loadArray(ctx *vm.Context) {
	fns := map[string]vm.NativeFn{
		"count":    arrCount,
		"push":     arrPush,
		"pop":      arrPop,
		"insert":   arrInsert,
		"inject":   arrInject,
		"erase":    arrErase,
		"swap":     arrSwap,
		"reverse":  arrReverse,
		"sort":     arrSort,
		"bsearch":  arrBsearch,
		"join":     arrJoin,
		"contains": arrContains,
		"find":     arrFind,
		"pfind":    arrPfind,
		"slice":    arrSlice,
		"concat":   arrConcat,
		"foreach":  arrForeach,
		"map":      arrMap,
		"filter":   arrFilter,
		"reduce":   arrReduce,
		"any":      arrAny,
		"all":      arrAll,
	}
	ctx.RegisterNativeFns(fns)
	ctx.RegisterMethods(vm.ClassArray, fns)

	// range builds arrays, it is not a method on them
	ctx.RegisterNativeFns(map[string]vm.NativeFn{"range": arrRange})
}

// normalizeIndex maps indices in [-size, size] onto [0, size], counting
// negative indices from the end.
func normalizeIndex(idx int64, size int) (int, bool) {
	if idx < int64(-size) || idx > int64(size) {
		return 0, false
	}
	if idx < 0 {
		idx += int64(size)
	}
	return int(idx), true
}

func arrCount(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "count", argv, 1) {
		return -1
	}
	switch {
	case argv[0].IsArray():
		*ret = vm.MakeInt(int64(argv[0].Array().Count()))
	case argv[0].IsHashMap():
		*ret = vm.MakeInt(int64(argv[0].HashMap().Count()))
	default:
		return fail(ctx, "count: argument 1 must be an array or a hashmap")
	}
	return 0
}

func arrPush(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "push", argv, 2) {
		return -1
	}
	arr, ok := wantArray(ctx, "push", argv, 0)
	if !ok {
		return -1
	}
	arr.Push(argv[1])
	return 0
}

func arrPop(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "pop", argv, 1) {
		return -1
	}
	arr, ok := wantArray(ctx, "pop", argv, 0)
	if !ok {
		return -1
	}
	v, err := arr.Pop()
	if err != nil {
		return fail(ctx, "pop: %v", err)
	}
	*ret = v
	return 0
}

func arrInsert(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "insert", argv, 3) {
		return -1
	}
	arr, ok := wantArray(ctx, "insert", argv, 0)
	if !ok {
		return -1
	}
	rawIdx, ok := wantInt(ctx, "insert", argv, 2)
	if !ok {
		return -1
	}
	idx, ok := normalizeIndex(rawIdx, arr.Count())
	if !ok {
		return fail(ctx, "insert: index %d out of bounds [%d, %d]",
			rawIdx, -arr.Count(), arr.Count())
	}
	if err := arr.Insert(idx, argv[1]); err != nil {
		return fail(ctx, "insert: %v", err)
	}
	return 0
}

func arrErase(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "erase", argv, 2) {
		return -1
	}
	arr, ok := wantArray(ctx, "erase", argv, 0)
	if !ok {
		return -1
	}
	rawIdx, ok := wantInt(ctx, "erase", argv, 1)
	if !ok {
		return -1
	}
	idx, ok := normalizeIndex(rawIdx, arr.Count())
	if !ok || idx == arr.Count() {
		return fail(ctx, "erase: index %d out of bounds [%d, %d)",
			rawIdx, -arr.Count(), arr.Count())
	}
	if err := arr.Remove(idx); err != nil {
		return fail(ctx, "erase: %v", err)
	}
	return 0
}

func arrSwap(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "swap", argv, 3) {
		return -1
	}
	arr, ok := wantArray(ctx, "swap", argv, 0)
	if !ok {
		return -1
	}
	i, ok := wantInt(ctx, "swap", argv, 1)
	if !ok {
		return -1
	}
	j, ok := wantInt(ctx, "swap", argv, 2)
	if !ok {
		return -1
	}
	if err := arr.Swap(int(i), int(j)); err != nil {
		return fail(ctx, "swap: %v", err)
	}
	return 0
}

func arrReverse(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "reverse", argv, 1) {
		return -1
	}
	arr, ok := wantArray(ctx, "reverse", argv, 0)
	if !ok {
		return -1
	}
	arr.Reverse()
	return 0
}

// arrSort sorts in place, by natural order or with a comparator. The
// comparator receives two elements and must return a boolean telling
// whether the first is ordered before the second.
func arrSort(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgcRange(ctx, "sort", argv, 1, 2) {
		return -1
	}
	arr, ok := wantArray(ctx, "sort", argv, 0)
	if !ok {
		return -1
	}

	var err error
	if len(argv) == 2 {
		cmp, ok := wantFunction(ctx, "sort", argv, 1)
		if !ok {
			return -1
		}
		err = arr.SortFunc(func(x, y vm.Value) (bool, error) {
			res, callErr := ctx.CallFunc(cmp, []vm.Value{x, y})
			if callErr != nil {
				return false, callErr
			}
			defer res.Release()
			if !res.IsBool() {
				ctx.RuntimeError("sort: comparator function must return a Boolean")
				return false, &vm.RuntimeError{Msg: "sort: comparator function must return a Boolean"}
			}
			return res.Bool(), nil
		})
	} else {
		err = arr.Sort()
	}
	if err != nil {
		return fail(ctx, "%v", err)
	}
	return 0
}

func arrJoin(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "join", argv, 2) {
		return -1
	}
	arr, ok := wantArray(ctx, "join", argv, 0)
	if !ok {
		return -1
	}
	sep, ok := wantString(ctx, "join", argv, 1)
	if !ok {
		return -1
	}
	var sb strings.Builder
	for i := 0; i < arr.Count(); i++ {
		v, _ := arr.Get(i)
		if !v.IsString() {
			return fail(ctx, "join: element %d is of type %s, want string", i, v.TypeName())
		}
		if i > 0 {
			sb.WriteString(sep.Content)
		}
		sb.WriteString(v.String().Content)
	}
	*ret = vm.MakeString(sb.String())
	return 0
}

func arrContains(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "contains", argv, 2) {
		return -1
	}
	arr, ok := wantArray(ctx, "contains", argv, 0)
	if !ok {
		return -1
	}
	for i := 0; i < arr.Count(); i++ {
		v, _ := arr.Get(i)
		if v.Equals(argv[1]) {
			*ret = vm.MakeBool(true)
			return 0
		}
	}
	*ret = vm.MakeBool(false)
	return 0
}

// arrFind returns the index of the first element equal to the needle,
// or -1.
func arrFind(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "find", argv, 2) {
		return -1
	}
	arr, ok := wantArray(ctx, "find", argv, 0)
	if !ok {
		return -1
	}
	for i := 0; i < arr.Count(); i++ {
		v, _ := arr.Get(i)
		if v.Equals(argv[1]) {
			*ret = vm.MakeInt(int64(i))
			return 0
		}
	}
	*ret = vm.MakeInt(-1)
	return 0
}

// arrPfind returns the index of the first element the predicate accepts,
// -1 when none does.
func arrPfind(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "pfind", argv, 2) {
		return -1
	}
	arr, ok := wantArray(ctx, "pfind", argv, 0)
	if !ok {
		return -1
	}
	pred, ok := wantFunction(ctx, "pfind", argv, 1)
	if !ok {
		return -1
	}
	for i := 0; i < arr.Count(); i++ {
		v, _ := arr.Get(i)
		res, err := ctx.CallFunc(pred, []vm.Value{v})
		if err != nil {
			return -1
		}
		if !res.IsBool() {
			res.Release()
			return fail(ctx, "pfind: predicate must return a boolean")
		}
		hit := res.Bool()
		res.Release()
		if hit {
			*ret = vm.MakeInt(int64(i))
			return 0
		}
	}
	*ret = vm.MakeInt(-1)
	return 0
}

func arrSlice(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "slice", argv, 3) {
		return -1
	}
	arr, ok := wantArray(ctx, "slice", argv, 0)
	if !ok {
		return -1
	}
	begin, ok := wantInt(ctx, "slice", argv, 1)
	if !ok {
		return -1
	}
	length, ok := wantInt(ctx, "slice", argv, 2)
	if !ok {
		return -1
	}
	out, err := arr.Slice(int(begin), int(length))
	if err != nil {
		return fail(ctx, "slice: %v", err)
	}
	*ret = vm.MakeObject(out)
	return 0
}

// arrForeach calls the callback with each element and its index. The
// callback must return a boolean (continue while true) or nil.
func arrForeach(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "foreach", argv, 2) {
		return -1
	}
	arr, ok := wantArray(ctx, "foreach", argv, 0)
	if !ok {
		return -1
	}
	cb, ok := wantFunction(ctx, "foreach", argv, 1)
	if !ok {
		return -1
	}
	for i := 0; i < arr.Count(); i++ {
		v, _ := arr.Get(i)
		iv := vm.MakeInt(int64(i))
		res, err := ctx.CallFunc(cb, []vm.Value{v, iv})
		if err != nil {
			return -1
		}
		if res.IsBool() {
			stop := !res.Bool()
			res.Release()
			if stop {
				break
			}
			continue
		}
		if !res.IsNil() {
			res.Release()
			return fail(ctx, "foreach: callback must return a boolean or nil")
		}
	}
	return 0
}

func arrMap(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "map", argv, 2) {
		return -1
	}
	arr, ok := wantArray(ctx, "map", argv, 0)
	if !ok {
		return -1
	}
	cb, ok := wantFunction(ctx, "map", argv, 1)
	if !ok {
		return -1
	}
	out := vm.NewArrayCap(arr.Count())
	for i := 0; i < arr.Count(); i++ {
		v, _ := arr.Get(i)
		iv := vm.MakeInt(int64(i))
		res, err := ctx.CallFunc(cb, []vm.Value{v, iv})
		if err != nil {
			vm.ReleaseObject(out)
			return -1
		}
		out.Push(res)
		res.Release()
	}
	*ret = vm.MakeObject(out)
	return 0
}

func arrFilter(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "filter", argv, 2) {
		return -1
	}
	arr, ok := wantArray(ctx, "filter", argv, 0)
	if !ok {
		return -1
	}
	cb, ok := wantFunction(ctx, "filter", argv, 1)
	if !ok {
		return -1
	}
	out := vm.NewArray()
	for i := 0; i < arr.Count(); i++ {
		v, _ := arr.Get(i)
		iv := vm.MakeInt(int64(i))
		res, err := ctx.CallFunc(cb, []vm.Value{v, iv})
		if err != nil {
			vm.ReleaseObject(out)
			return -1
		}
		if !res.IsBool() {
			res.Release()
			vm.ReleaseObject(out)
			return fail(ctx, "filter: predicate must return a boolean")
		}
		if res.Bool() {
			out.Push(v)
		}
		res.Release()
	}
	*ret = vm.MakeObject(out)
	return 0
}

// arrReduce folds the array left to right. The first element seeds the
// accumulator; reducing an empty array yields nil.
func arrReduce(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "reduce", argv, 2) {
		return -1
	}
	arr, ok := wantArray(ctx, "reduce", argv, 0)
	if !ok {
		return -1
	}
	cb, ok := wantFunction(ctx, "reduce", argv, 1)
	if !ok {
		return -1
	}
	if arr.Count() == 0 {
		*ret = vm.MakeNil()
		return 0
	}
	acc, _ := arr.Get(0)
	acc.Retain()
	for i := 1; i < arr.Count(); i++ {
		v, _ := arr.Get(i)
		res, err := ctx.CallFunc(cb, []vm.Value{acc, v})
		acc.Release()
		if err != nil {
			return -1
		}
		acc = res
	}
	*ret = acc
	return 0
}

func arrInject(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "inject", argv, 3) {
		return -1
	}
	arr, ok := wantArray(ctx, "inject", argv, 0)
	if !ok {
		return -1
	}
	other, ok := wantArray(ctx, "inject", argv, 1)
	if !ok {
		return -1
	}
	rawIdx, ok := wantInt(ctx, "inject", argv, 2)
	if !ok {
		return -1
	}
	idx, ok := normalizeIndex(rawIdx, arr.Count())
	if !ok {
		return fail(ctx, "inject: index %d out of bounds [%d, %d]",
			rawIdx, -arr.Count(), arr.Count())
	}
	if err := arr.Inject(idx, other); err != nil {
		return fail(ctx, "inject: %v", err)
	}
	return 0
}

// arrBsearch finds the needle's index in a naturally sorted array, or
// returns -1.
func arrBsearch(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "bsearch", argv, 2) {
		return -1
	}
	arr, ok := wantArray(ctx, "bsearch", argv, 0)
	if !ok {
		return -1
	}
	needle := argv[1]

	lo, hi := 0, arr.Count()
	for lo < hi {
		mid := lo + (hi-lo)/2
		v, _ := arr.Get(mid)
		if v.Equals(needle) {
			*ret = vm.MakeInt(int64(mid))
			return 0
		}
		if !v.Comparable(needle) {
			return fail(ctx, "bsearch: values of type %s and %s are not ordered",
				v.TypeName(), needle.TypeName())
		}
		if v.Compare(needle) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	*ret = vm.MakeInt(-1)
	return 0
}

// arrConcat returns a new array holding the elements of both operands.
func arrConcat(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "concat", argv, 2) {
		return -1
	}
	a, ok := wantArray(ctx, "concat", argv, 0)
	if !ok {
		return -1
	}
	b, ok := wantArray(ctx, "concat", argv, 1)
	if !ok {
		return -1
	}
	out := vm.NewArrayCap(a.Count() + b.Count())
	for i := 0; i < a.Count(); i++ {
		v, _ := a.Get(i)
		out.Push(v)
	}
	for i := 0; i < b.Count(); i++ {
		v, _ := b.Get(i)
		out.Push(v)
	}
	*ret = vm.MakeObject(out)
	return 0
}

func arrAny(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	return anyAll(ret, argv, ctx, "any", false)
}

func arrAll(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	return anyAll(ret, argv, ctx, "all", true)
}

// anyAll short-circuits as soon as the predicate yields !want.
func anyAll(ret *vm.Value, argv []vm.Value, ctx *vm.Context, name string, want bool) int {
	if !wantArgc(ctx, name, argv, 2) {
		return -1
	}
	arr, ok := wantArray(ctx, name, argv, 0)
	if !ok {
		return -1
	}
	cb, ok := wantFunction(ctx, name, argv, 1)
	if !ok {
		return -1
	}
	for i := 0; i < arr.Count(); i++ {
		v, _ := arr.Get(i)
		iv := vm.MakeInt(int64(i))
		res, err := ctx.CallFunc(cb, []vm.Value{v, iv})
		if err != nil {
			return -1
		}
		if !res.IsBool() {
			res.Release()
			return fail(ctx, "%s: predicate must return a boolean", name)
		}
		hit := res.Bool()
		res.Release()
		if hit != want {
			*ret = vm.MakeBool(!want)
			return 0
		}
	}
	*ret = vm.MakeBool(want)
	return 0
}

// arrRange builds [0, n) or [start, end) with an optional step.
func arrRange(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgcRange(ctx, "range", argv, 1, 3) {
		return -1
	}
	var start, end, step int64
	step = 1
	switch len(argv) {
	case 1:
		n, ok := wantInt(ctx, "range", argv, 0)
		if !ok {
			return -1
		}
		end = n
	default:
		var ok bool
		if start, ok = wantInt(ctx, "range", argv, 0); !ok {
			return -1
		}
		if end, ok = wantInt(ctx, "range", argv, 1); !ok {
			return -1
		}
		if len(argv) == 3 {
			if step, ok = wantInt(ctx, "range", argv, 2); !ok {
				return -1
			}
			if step == 0 {
				return fail(ctx, "range: step must not be zero")
			}
		}
	}

	out := vm.NewArray()
	if step > 0 {
		for i := start; i < end; i += step {
			v := vm.MakeInt(i)
			out.Push(v)
		}
	} else {
		for i := start; i > end; i += step {
			v := vm.MakeInt(i)
			out.Push(v)
		}
	}
	*ret = vm.MakeObject(out)
	return 0
}
