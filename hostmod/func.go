package hostmod

import (
	"fmt"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	hoststate "github.com/wippyai/wasm-hoststate"
	"github.com/wippyai/wasm-hoststate/errors"
	"github.com/wippyai/wasm-hoststate/future"
)

// Call builds the body of one invocation from the raw core parameters.
// The returned future completes with the raw core results.
type Call[T any] func(st hoststate.State[T], mem hoststate.Memory, params []uint64) future.Future[future.Result[[]uint64]]

// Func describes one host function as generated from an interface
// definition.
//
// Params must start with the flattening of WitParams. Every WitResults entry
// is returned through a trailing i32 pointer parameter.
type Func[T any] struct {
	Name       string `validate:"required,excludesall=#"`
	Params     []api.ValueType
	Results    []api.ValueType `validate:"max=1"`
	WitParams  []wit.Type
	WitResults []wit.Type
	Call       Call[T] `validate:"required"`
}

// validate checks the core signature against the WIT one.
func (f *Func[T]) validate() error {
	if err := checkStruct(errors.PhaseHost, []string{f.Name}, f); err != nil {
		return err
	}

	var flat []api.ValueType
	for i, t := range f.WitParams {
		vt, ok := CoreType(t)
		if !ok {
			return errors.New(errors.PhaseHost, errors.KindTypeMismatch).
				Path(f.Name, fmt.Sprintf("param[%d]", i)).
				GoType(fmt.Sprintf("%T", t)).
				Detail("only primitive WIT types are supported").
				Build()
		}
		flat = append(flat, vt)
	}
	for range f.WitResults {
		flat = append(flat, api.ValueTypeI32)
	}

	if len(flat) != len(f.Params) {
		return errors.New(errors.PhaseHost, errors.KindTypeMismatch).
			Path(f.Name).
			Detail("core signature has %d params, WIT signature flattens to %d", len(f.Params), len(flat)).
			Build()
	}
	for i := range flat {
		if flat[i] != f.Params[i] {
			return errors.New(errors.PhaseHost, errors.KindTypeMismatch).
				Path(f.Name, fmt.Sprintf("param[%d]", i)).
				Detail("core type %s, WIT type flattens to %s",
					api.ValueTypeName(f.Params[i]), api.ValueTypeName(flat[i])).
				Build()
		}
	}
	for i, t := range f.WitResults {
		if _, ok := CoreType(t); !ok {
			return errors.New(errors.PhaseHost, errors.KindTypeMismatch).
				Path(f.Name, fmt.Sprintf("result[%d]", i)).
				GoType(fmt.Sprintf("%T", t)).
				Detail("only primitive WIT types are supported").
				Build()
		}
	}
	return nil
}

// CoreType returns the core wasm type a primitive WIT type flattens to.
func CoreType(t wit.Type) (api.ValueType, bool) {
	switch t.(type) {
	case wit.Bool, wit.U8, wit.U16, wit.U32, wit.S8, wit.S16, wit.S32, wit.Char:
		return api.ValueTypeI32, true
	case wit.U64, wit.S64:
		return api.ValueTypeI64, true
	case wit.F32:
		return api.ValueTypeF32, true
	case wit.F64:
		return api.ValueTypeF64, true
	default:
		return 0, false
	}
}

// TypeName renders a WIT type the way it is written in an interface file.
func TypeName(t wit.Type) string {
	switch v := t.(type) {
	case wit.Bool:
		return "bool"
	case wit.U8:
		return "u8"
	case wit.S8:
		return "s8"
	case wit.U16:
		return "u16"
	case wit.S16:
		return "s16"
	case wit.U32:
		return "u32"
	case wit.S32:
		return "s32"
	case wit.U64:
		return "u64"
	case wit.S64:
		return "s64"
	case wit.F32:
		return "f32"
	case wit.F64:
		return "f64"
	case wit.Char:
		return "char"
	case wit.String:
		return "string"
	case *wit.TypeDef:
		if v.Name != nil {
			return *v.Name
		}
		return "typedef"
	default:
		return fmt.Sprintf("%T", t)
	}
}

// Signature renders f's WIT signature, e.g. "f(u32, f32) -> f32".
func (f *Func[T]) Signature() string {
	s := f.Name + "("
	for i, t := range f.WitParams {
		if i > 0 {
			s += ", "
		}
		s += TypeName(t)
	}
	s += ")"
	switch len(f.WitResults) {
	case 0:
	case 1:
		s += " -> " + TypeName(f.WitResults[0])
	default:
		s += " -> ("
		for i, t := range f.WitResults {
			if i > 0 {
				s += ", "
			}
			s += TypeName(t)
		}
		s += ")"
	}
	return s
}
