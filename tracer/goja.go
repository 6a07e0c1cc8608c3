package tracer

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/young-rocks/aptos-core/core/types"
	"github.com/young-rocks/aptos-core/log"
)

// ScriptTracer runs a user-supplied JavaScript source against one goja.Runtime
// per transaction, the same embedding shape geth's JS tracer uses: the script
// defines whichever of onModuleLoad/onResourceRead/onResourceWrite/onEventEmit
// it cares about as top-level functions, and Hooks() exposes only the ones
// actually present so TraceChangeSet's nil checks skip the rest.
type ScriptTracer struct {
	vm *goja.Runtime
}

// NewScriptTracer compiles source once; reuse the returned tracer across
// transactions within one block, and build a fresh one per block so a
// script's state (if it keeps any in JS-global scope) never leaks across
// block boundaries.
func NewScriptTracer(source string) (*ScriptTracer, error) {
	vm := goja.New()
	if _, err := vm.RunString(source); err != nil {
		return nil, fmt.Errorf("compiling tracer script: %w", err)
	}
	return &ScriptTracer{vm: vm}, nil
}

func (t *ScriptTracer) jsFunc(name string) (goja.Callable, bool) {
	v := t.vm.Get(name)
	if v == nil || goja.IsUndefined(v) {
		return nil, false
	}
	fn, ok := goja.AssertFunction(v)
	return fn, ok
}

// Hooks builds a Hooks struct wired to whichever callback functions the
// script defined. A script that never defines onEventEmit, say, leaves that
// field nil, so TraceChangeSet's guard skips calling into goja for it.
func (t *ScriptTracer) Hooks() *Hooks {
	h := &Hooks{}

	if fn, ok := t.jsFunc("onModuleLoad"); ok {
		h.OnModuleLoad = func(module types.ModuleId) {
			t.call(fn, "onModuleLoad", hexAddr(module.Address), module.Name)
		}
	}
	if fn, ok := t.jsFunc("onResourceRead"); ok {
		h.OnResourceRead = func(key types.StateKey) {
			t.call(fn, "onResourceRead", hexAddr(key.Address), key.Tag)
		}
	}
	if fn, ok := t.jsFunc("onResourceWrite"); ok {
		h.OnResourceWrite = func(key types.StateKey, op types.WriteOp) {
			t.call(fn, "onResourceWrite", hexAddr(key.Address), key.Tag, writeOpKindString(op.Kind))
		}
	}
	if fn, ok := t.jsFunc("onEventEmit"); ok {
		h.OnEventEmit = func(event types.Event) {
			t.call(fn, "onEventEmit", event.TypeTag, len(event.Data))
		}
	}
	return h
}

// call invokes fn and logs (rather than propagates) any script error — a
// tracer script's own bug must never fail the transaction it is observing
// (spec.md §4.9 "wired for operators debugging ... without recompiling the
// binary", never a correctness-affecting path).
func (t *ScriptTracer) call(fn goja.Callable, name string, args ...interface{}) {
	jsArgs := make([]goja.Value, len(args))
	for i, a := range args {
		jsArgs[i] = t.vm.ToValue(a)
	}
	if _, err := fn(goja.Undefined(), jsArgs...); err != nil {
		log.Warn("tracer script callback failed", "callback", name, "err", err)
	}
}

func hexAddr(addr [32]byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, 64)
	for i, b := range addr {
		out[i*2] = hextable[b>>4]
		out[i*2+1] = hextable[b&0x0f]
	}
	return "0x" + string(out)
}

func writeOpKindString(k types.WriteOpKind) string {
	switch k {
	case types.WriteCreation:
		return "creation"
	case types.WriteModification:
		return "modification"
	case types.WriteDeletion:
		return "deletion"
	default:
		return "unknown"
	}
}
