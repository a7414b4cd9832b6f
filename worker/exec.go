// Package worker runs the two background loops: script execution and
// block streaming. Each worker owns its resource exclusively (the engine
// scope, the streaming client) and talks to the rest of the system only
// through bus queues, one request at a time in FIFO order.
package worker

import (
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/tliron/commonlog"

	"github.com/avgusev/streamline-studio/bus"
	"github.com/avgusev/streamline-studio/script"
)

var execLog = commonlog.GetLogger("worker.exec")

// Exec owns the scripting engine's persistent scope and the accumulated
// compiled units. Handlers run synchronously with no timeout; only the
// next queued request waits on a long evaluation.
type Exec struct {
	engine script.Engine
	scope  script.Scope
	units  []script.Unit

	in  *bus.Queue[bus.ExecRequest]
	out *bus.Queue[bus.Notification]
}

// NewExec creates the worker with a fresh scope. Call Run on its own
// goroutine to start draining requests.
func NewExec(engine script.Engine, in *bus.Queue[bus.ExecRequest], out *bus.Queue[bus.Notification]) (*Exec, error) {
	scope, err := engine.NewScope()
	if err != nil {
		return nil, fmt.Errorf("worker: create scope: %w", err)
	}
	return &Exec{engine: engine, scope: scope, in: in, out: out}, nil
}

// Run drains the request queue until it is closed. The receive blocks,
// so an idle worker sleeps.
func (w *Exec) Run() {
	for req := range w.in.Receive() {
		w.handle(req)
	}
}

func (w *Exec) handle(req bus.ExecRequest) {
	switch r := req.(type) {
	case bus.Evaluate:
		w.evaluate(r)
	case bus.EvaluateFunction:
		w.evaluateFunction(r)
	case bus.ResetScope:
		w.reset(r)
	case bus.Build:
		w.build()
	default:
		execLog.Errorf("unknown request %T", req)
	}
}

// evaluate compiles the source, merges the unit into the accumulated
// units and runs it under the persistent scope. A compile failure leaves
// both the scope and the accumulated units untouched.
func (w *Exec) evaluate(r bus.Evaluate) {
	unit, err := w.engine.Compile(r.Source)
	if err != nil {
		w.out.Send(bus.TextMessage{Text: "Result: " + err.Error()})
		return
	}
	w.units = append(w.units, unit)

	v, err := w.scope.Run(unit)
	if err != nil {
		w.out.Send(bus.TextMessage{Text: "Result: " + err.Error()})
		return
	}
	w.out.Send(bus.TextMessage{Text: "Result: " + render(v)})
}

// evaluateFunction calls a named function with positional arguments.
// Each argument deserializes independently; one that does not parse is
// reported and dropped from the call.
func (w *Exec) evaluateFunction(r bus.EvaluateFunction) {
	args := make([]any, 0, len(r.Args))
	for i, raw := range r.Args {
		var v any
		if err := sonic.UnmarshalString(raw, &v); err != nil {
			w.out.Send(bus.TextMessage{
				Text: fmt.Sprintf("Warning: dropping argument %d of %s: %v", i+1, r.Name, err),
			})
			continue
		}
		args = append(args, v)
	}

	v, err := w.scope.Call(r.Name, args)
	if err != nil {
		w.out.Send(bus.TextMessage{Text: "Error: " + err.Error()})
		return
	}
	w.out.Send(bus.JsonMessage{Value: v})
}

// reset applies the requested clearing. With the scope cleared and the
// units retained, every accumulated unit is replayed into the fresh
// scope so previously built definitions stay callable.
func (w *Exec) reset(r bus.ResetScope) {
	if r.ClearUnits {
		w.units = nil
	}
	if r.ClearScope {
		scope, err := w.engine.NewScope()
		if err != nil {
			w.out.Send(bus.TextMessage{Text: "Error: reset failed: " + err.Error()})
			return
		}
		w.scope = scope
		for _, unit := range w.units {
			if _, err := w.scope.Run(unit); err != nil {
				w.out.Send(bus.TextMessage{Text: "Error: replay failed: " + err.Error()})
				break
			}
		}
	}
	w.out.Send(bus.MessagesCleared{})
}

// build invokes the runtime's zero-argument codegen entry point.
func (w *Exec) build() {
	v, err := w.scope.Call("codegen", nil)
	if err != nil {
		w.out.Send(bus.TextMessage{Text: "Build result: " + err.Error()})
		return
	}
	w.out.Send(bus.TextMessage{Text: "Build result: " + render(v)})
}

// render formats a script value for the message log.
func render(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	}
	s, err := sonic.MarshalString(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return s
}
