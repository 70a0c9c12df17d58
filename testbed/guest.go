package testbed

import (
	"github.com/tetratelabs/wazero/api"
)

// GuestFunc describes one function a forwarding guest imports and
// re-exports under the same name.
type GuestFunc struct {
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
}

const (
	secType     = 1
	secImport   = 2
	secFunction = 3
	secMemory   = 5
	secExport   = 7
	secCode     = 10

	kindFunc   = 0x00
	kindMemory = 0x02

	opLocalGet = 0x20
	opCall     = 0x10
	opEnd      = 0x0b
)

// ForwardingGuest encodes a core wasm module that imports every function in
// funcs from module and exports a function of the same name and signature
// that calls the import with its own arguments. The module also exports a
// one-page memory named "memory".
func ForwardingGuest(module string, funcs []GuestFunc) []byte {
	n := uint32(len(funcs))

	var types, imports, functions, exports, code [][]byte
	for i, f := range funcs {
		idx := uint32(i)

		t := []byte{0x60}
		t = append(t, valTypes(f.Params)...)
		t = append(t, valTypes(f.Results)...)
		types = append(types, t)

		imp := append(name(module), name(f.Name)...)
		imp = append(imp, kindFunc)
		imports = append(imports, append(imp, uleb(idx)...))

		functions = append(functions, uleb(idx))

		exp := append(name(f.Name), kindFunc)
		exports = append(exports, append(exp, uleb(n+idx)...))

		body := []byte{0x00} // no locals
		for p := range f.Params {
			body = append(body, opLocalGet)
			body = append(body, uleb(uint32(p))...)
		}
		body = append(body, opCall)
		body = append(body, uleb(idx)...)
		body = append(body, opEnd)
		code = append(code, append(uleb(uint32(len(body))), body...))
	}
	exports = append(exports, append(name("memory"), kindMemory, 0x00))

	out := []byte{0x00, 'a', 's', 'm', 0x01, 0x00, 0x00, 0x00}
	out = append(out, section(secType, vec(types))...)
	out = append(out, section(secImport, vec(imports))...)
	out = append(out, section(secFunction, vec(functions))...)
	out = append(out, section(secMemory, vec([][]byte{{0x00, 0x01}}))...)
	out = append(out, section(secExport, vec(exports))...)
	out = append(out, section(secCode, vec(code))...)
	return out
}

// AtomsFuncs is the core signature of the atoms imports.
var AtomsFuncs = []GuestFunc{
	{
		Name:    "int_float_args",
		Params:  []api.ValueType{api.ValueTypeI32, api.ValueTypeF32},
		Results: []api.ValueType{api.ValueTypeI32},
	},
	{
		Name:    "double_int_return_float",
		Params:  []api.ValueType{api.ValueTypeI32, api.ValueTypeI32},
		Results: []api.ValueType{api.ValueTypeI32},
	},
}

// AtomsGuest returns a guest forwarding both atoms functions.
func AtomsGuest() []byte {
	return ForwardingGuest("atoms", AtomsFuncs)
}

func valTypes(ts []api.ValueType) []byte {
	out := uleb(uint32(len(ts)))
	for _, t := range ts {
		out = append(out, t)
	}
	return out
}

func name(s string) []byte {
	return append(uleb(uint32(len(s))), s...)
}

func vec(items [][]byte) []byte {
	out := uleb(uint32(len(items)))
	for _, it := range items {
		out = append(out, it...)
	}
	return out
}

func section(id byte, content []byte) []byte {
	return append(append([]byte{id}, uleb(uint32(len(content)))...), content...)
}

func uleb(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}
