// Package testbed provides fixtures for exercising host-state bindings end
// to end: a host context that records what host functions observed, an
// atoms implementation over it, and a guest module encoder producing wasm
// modules that forward their exports to host imports.
package testbed
