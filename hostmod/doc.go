// Package hostmod exposes bound host functions to wasm guests through
// wazero.
//
// A Registry collects Func descriptors per namespace. Each descriptor pairs
// the core wasm signature the guest imports with the WIT signature it was
// generated from, and a Call that builds the suspendable body for one
// invocation.
//
//	reg := hostmod.NewRegistry(binding)
//	for _, f := range atoms.Funcs[Host](impl) {
//	    if err := reg.Register("atoms", f); err != nil {
//	        return err
//	    }
//	}
//	mods, err := reg.Instantiate(ctx, rt, host, nil)
//
// Every guest call wraps the body with hoststate.Enter and drives it to
// completion with a future.Scheduler on the calling goroutine, so host
// state is installed only while the body is being stepped. A body that
// fails, or a scheduler that gives up, aborts the guest call with an
// *errors.Error of kind KindTrap.
//
// Descriptors and Config are checked with struct tags before use. Setting
// Config.Metrics records each call's outcome and step count in prometheus.
//
// CheckImports reports guest imports the registry cannot satisfy before a
// module is instantiated, and NewMemory adapts a guest's exported memory to
// hoststate.Memory.
package hostmod
