package testbed

import (
	"context"
	"fmt"
	"sync"

	hoststate "github.com/wippyai/wasm-hoststate"
	"github.com/wippyai/wasm-hoststate/atoms"
	"github.com/wippyai/wasm-hoststate/future"
)

// Ctx is host state that records a log line per host call.
type Ctx struct {
	Name string

	mu  sync.Mutex
	log []string
}

// NewCtx creates an empty context.
func NewCtx(name string) *Ctx {
	return &Ctx{Name: name}
}

// Log appends an entry.
func (c *Ctx) Log(entry string) {
	c.mu.Lock()
	c.log = append(c.log, entry)
	c.mu.Unlock()
}

// Entries returns a copy of the log.
func (c *Ctx) Entries() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.log...)
}

// Reset clears the log.
func (c *Ctx) Reset() {
	c.mu.Lock()
	c.log = nil
	c.mu.Unlock()
}

// Atoms implements atoms.Atoms over Ctx. Each call first suspends Delay
// times on a Tick operation, then logs through the accessor.
type Atoms struct {
	Delay int
	// Fail, when set, is returned by every call after logging.
	Fail error
}

func (a *Atoms) IntFloatArgs(s hoststate.State[Ctx], anInt uint32, anFloat float32) future.Future[future.Result[struct{}]] {
	return future.Then(a.wait(), func(struct{}) future.Future[future.Result[struct{}]] {
		return future.Lazy(func(context.Context) future.Result[struct{}] {
			s.Do(func(c *Ctx) { c.Log(fmt.Sprintf("int_float_args: %d %v", anInt, anFloat)) })
			if a.Fail != nil {
				return future.Fail[struct{}](a.Fail)
			}
			return future.Ok(struct{}{})
		})
	})
}

func (a *Atoms) DoubleIntReturnFloat(s hoststate.State[Ctx], anInt uint32) future.Future[future.Result[atoms.AliasToFloat]] {
	return future.Then(a.wait(), func(struct{}) future.Future[future.Result[atoms.AliasToFloat]] {
		return future.Lazy(func(context.Context) future.Result[atoms.AliasToFloat] {
			s.Do(func(c *Ctx) { c.Log(fmt.Sprintf("double_int_return_float: %d", anInt)) })
			if a.Fail != nil {
				return future.Fail[atoms.AliasToFloat](a.Fail)
			}
			return future.Ok(atoms.AliasToFloat(anInt) * 2)
		})
	})
}

// wait suspends on Delay consecutive Tick operations.
func (a *Atoms) wait() future.Future[struct{}] {
	var f future.Future[struct{}] = future.Value(struct{}{})
	for i := 0; i < a.Delay; i++ {
		f = future.Then(f, func(struct{}) future.Future[struct{}] {
			return future.Map(future.Await(Tick{}), func(future.YieldResult) struct{} { return struct{}{} })
		})
	}
	return f
}

// Tick is a pending operation that completes immediately when executed.
type Tick struct{}

const CmdTick future.CommandID = 1

func (Tick) CmdID() future.CommandID                 { return CmdTick }
func (Tick) Execute(context.Context) (uint64, error) { return 0, nil }

var _ atoms.Atoms[Ctx] = (*Atoms)(nil)
