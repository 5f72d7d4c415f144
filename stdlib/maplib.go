package stdlib

import (
	"github.com/carriercomm/Sparkling/vm"
)

// ---------------------------------------------------------------------------
// HashMap library
// ---------------------------------------------------------------------------

func loadHashMap(ctx *vm.Context) {
	ctx.RegisterNativeFns(map[string]vm.NativeFn{
		"keys":    hmKeys,
		"values":  hmValues,
		"haskey":  hmHasKey,
		"combine": hmCombine,
	})
	// methods shadow the array versions of the shared names for hashmap
	// receivers; remove is a method only, the global remove deletes files
	ctx.RegisterMethods(vm.ClassHashMap, map[string]vm.NativeFn{
		"keys":    hmKeys,
		"values":  hmValues,
		"haskey":  hmHasKey,
		"erase":   hmErase,
		"remove":  hmErase,
		"count":   arrCount,
		"foreach": hmForeach,
	})
}

func hmKeys(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "keys", argv, 1) {
		return -1
	}
	hm, ok := wantHashMap(ctx, "keys", argv, 0)
	if !ok {
		return -1
	}
	out := vm.NewArrayCap(hm.Count())
	var k, v vm.Value
	for c := hm.Next(0, &k, &v); c != 0; c = hm.Next(c, &k, &v) {
		out.Push(k)
	}
	*ret = vm.MakeObject(out)
	return 0
}

func hmValues(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "values", argv, 1) {
		return -1
	}
	hm, ok := wantHashMap(ctx, "values", argv, 0)
	if !ok {
		return -1
	}
	out := vm.NewArrayCap(hm.Count())
	var k, v vm.Value
	for c := hm.Next(0, &k, &v); c != 0; c = hm.Next(c, &k, &v) {
		out.Push(v)
	}
	*ret = vm.MakeObject(out)
	return 0
}

func hmHasKey(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "haskey", argv, 2) {
		return -1
	}
	hm, ok := wantHashMap(ctx, "haskey", argv, 0)
	if !ok {
		return -1
	}
	*ret = vm.MakeBool(!hm.Get(argv[1]).IsNil())
	return 0
}

// hmCombine zips a key array and a value array into a new hashmap.
func hmCombine(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "combine", argv, 2) {
		return -1
	}
	keys, ok := wantArray(ctx, "combine", argv, 0)
	if !ok {
		return -1
	}
	vals, ok := wantArray(ctx, "combine", argv, 1)
	if !ok {
		return -1
	}
	if keys.Count() != vals.Count() {
		return fail(ctx, "combine: key and value arrays differ in length (%d vs %d)",
			keys.Count(), vals.Count())
	}
	out := vm.NewHashMap()
	for i := 0; i < keys.Count(); i++ {
		k, _ := keys.Get(i)
		v, _ := vals.Get(i)
		if err := out.Set(k, v); err != nil {
			vm.ReleaseObject(out)
			return fail(ctx, "combine: %v", err)
		}
	}
	*ret = vm.MakeObject(out)
	return 0
}

func hmErase(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "erase", argv, 2) {
		return -1
	}
	hm, ok := wantHashMap(ctx, "erase", argv, 0)
	if !ok {
		return -1
	}
	*ret = vm.MakeBool(hm.Delete(argv[1]))
	return 0
}

// hmForeach calls the callback with each key and value. The callback
// must return a boolean (continue while true) or nil. The map must not
// be mutated during the iteration.
func hmForeach(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "foreach", argv, 2) {
		return -1
	}
	hm, ok := wantHashMap(ctx, "foreach", argv, 0)
	if !ok {
		return -1
	}
	cb, ok := wantFunction(ctx, "foreach", argv, 1)
	if !ok {
		return -1
	}
	var k, v vm.Value
	for c := hm.Next(0, &k, &v); c != 0; c = hm.Next(c, &k, &v) {
		res, err := ctx.CallFunc(cb, []vm.Value{k, v})
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
