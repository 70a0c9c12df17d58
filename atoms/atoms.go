// Package atoms is the host binding of the atoms interface:
//
//	int_float_args(an_int: u32, an_float: f32) -> expected<_, errno>
//	double_int_return_float(an_int: u32) -> expected<alias_to_float, errno>
//
// Host code implements Atoms and reads its state through the accessor it
// is handed. The glue functions lower raw guest arguments, write results
// into guest memory and produce the errno.
package atoms

import (
	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	hoststate "github.com/wippyai/wasm-hoststate"
	"github.com/wippyai/wasm-hoststate/errors"
	"github.com/wippyai/wasm-hoststate/future"
	"github.com/wippyai/wasm-hoststate/hostmod"
)

// Namespace is the module name guests import the atoms functions from.
const Namespace = "atoms"

// Atoms is implemented by host code.
type Atoms[T any] interface {
	IntFloatArgs(s hoststate.State[T], anInt uint32, anFloat float32) future.Future[future.Result[struct{}]]
	DoubleIntReturnFloat(s hoststate.State[T], anInt uint32) future.Future[future.Result[AliasToFloat]]
}

// IntFloatArgs calls impl with the guest's arguments and completes with the
// errno.
func IntFloatArgs[T any](impl Atoms[T], s hoststate.State[T], _ hoststate.Memory, anInt int32, anFloat float32) future.Future[future.Result[int32]] {
	return future.Map(impl.IntFloatArgs(s, uint32(anInt), anFloat), func(r future.Result[struct{}]) future.Result[int32] {
		return errnoResult(r.Err)
	})
}

// DoubleIntReturnFloat calls impl and stores its result at resultPtr in
// guest memory. A result that cannot be stored yields ErrnoFault.
func DoubleIntReturnFloat[T any](impl Atoms[T], s hoststate.State[T], mem hoststate.Memory, anInt int32, resultPtr int32) future.Future[future.Result[int32]] {
	return future.Map(impl.DoubleIntReturnFloat(s, uint32(anInt)), func(r future.Result[AliasToFloat]) future.Result[int32] {
		if r.Err != nil {
			return errnoResult(r.Err)
		}
		if mem == nil {
			return future.Fail[int32](errors.NotInitialized(errors.PhaseMemory, "guest memory"))
		}
		if err := hoststate.WriteF32(mem, uint32(resultPtr), r.Value); err != nil {
			return errnoResult(err)
		}
		return future.Ok(int32(ErrnoOk))
	})
}

func errnoResult(err error) future.Result[int32] {
	e, ok := ErrnoOf(err)
	if !ok {
		return future.Fail[int32](err)
	}
	return future.Ok(int32(e))
}

// Funcs returns the host function descriptors for impl, ready to register
// under Namespace.
func Funcs[T any](impl Atoms[T]) []hostmod.Func[T] {
	return []hostmod.Func[T]{
		{
			Name:      "int_float_args",
			Params:    []api.ValueType{api.ValueTypeI32, api.ValueTypeF32},
			Results:   []api.ValueType{api.ValueTypeI32},
			WitParams: []wit.Type{wit.U32{}, wit.F32{}},
			Call: func(s hoststate.State[T], mem hoststate.Memory, params []uint64) future.Future[future.Result[[]uint64]] {
				return lift(IntFloatArgs(impl, s, mem, api.DecodeI32(params[0]), api.DecodeF32(params[1])))
			},
		},
		{
			Name:       "double_int_return_float",
			Params:     []api.ValueType{api.ValueTypeI32, api.ValueTypeI32},
			Results:    []api.ValueType{api.ValueTypeI32},
			WitParams:  []wit.Type{wit.U32{}},
			WitResults: []wit.Type{wit.F32{}},
			Call: func(s hoststate.State[T], mem hoststate.Memory, params []uint64) future.Future[future.Result[[]uint64]] {
				return lift(DoubleIntReturnFloat(impl, s, mem, api.DecodeI32(params[0]), api.DecodeI32(params[1])))
			},
		},
	}
}

func lift(f future.Future[future.Result[int32]]) future.Future[future.Result[[]uint64]] {
	return future.Map(f, func(r future.Result[int32]) future.Result[[]uint64] {
		if r.Err != nil {
			return future.Fail[[]uint64](r.Err)
		}
		return future.Ok([]uint64{api.EncodeI32(r.Value)})
	})
}

// Register adds the atoms functions for impl to reg.
func Register[T any](reg *hostmod.Registry[T], impl Atoms[T]) error {
	for _, f := range Funcs(impl) {
		if err := reg.Register(Namespace, f); err != nil {
			return err
		}
	}
	return nil
}
