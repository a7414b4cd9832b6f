package worker

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/avgusev/streamline-studio/bus"
	"github.com/avgusev/streamline-studio/script"
)

// stubEngine records compiles and scope creations.
type stubEngine struct {
	compileErr error
	scopes     []*stubScope
}

func (e *stubEngine) Compile(source string) (script.Unit, error) {
	if e.compileErr != nil {
		return nil, e.compileErr
	}
	return stubUnit{source: source}, nil
}

func (e *stubEngine) NewScope() (script.Scope, error) {
	s := &stubScope{callResults: map[string]any{}}
	e.scopes = append(e.scopes, s)
	return s, nil
}

type stubUnit struct{ source string }

func (u stubUnit) Source() string { return u.source }

type stubCall struct {
	name string
	args []any
}

// stubScope records every run and call made against it.
type stubScope struct {
	runs        []string
	calls       []stubCall
	runErr      error
	callErr     error
	callResults map[string]any
}

func (s *stubScope) Run(unit script.Unit) (any, error) {
	s.runs = append(s.runs, unit.(stubUnit).source)
	if s.runErr != nil {
		return nil, s.runErr
	}
	return "ok", nil
}

func (s *stubScope) Call(name string, args []any) (any, error) {
	s.calls = append(s.calls, stubCall{name: name, args: args})
	if s.callErr != nil {
		return nil, s.callErr
	}
	return s.callResults[name], nil
}

func newExecHarness(t *testing.T) (*Exec, *stubEngine, *bus.Queue[bus.Notification]) {
	t.Helper()
	engine := &stubEngine{}
	in := bus.NewQueue[bus.ExecRequest]()
	out := bus.NewQueue[bus.Notification]()
	t.Cleanup(in.Close)
	w, err := NewExec(engine, in, out)
	if err != nil {
		t.Fatalf("NewExec: %v", err)
	}
	return w, engine, out
}

// drain closes the out queue and collects everything sent so far.
func drain(out *bus.Queue[bus.Notification]) []bus.Notification {
	out.Close()
	var got []bus.Notification
	for n := range out.Receive() {
		got = append(got, n)
	}
	return got
}

func TestEvaluateSuccess(t *testing.T) {
	w, engine, out := newExecHarness(t)

	w.handle(bus.Evaluate{Source: "1 + 1"})

	got := drain(out)
	if len(got) != 1 {
		t.Fatalf("got %d notifications, want 1", len(got))
	}
	text, ok := got[0].(bus.TextMessage)
	if !ok || !strings.HasPrefix(text.Text, "Result: ") {
		t.Errorf("notification = %#v, want Result text", got[0])
	}
	if scope := engine.scopes[0]; len(scope.runs) != 1 || scope.runs[0] != "1 + 1" {
		t.Errorf("scope runs = %v", scope.runs)
	}
}

func TestEvaluateCompileErrorLeavesScopeUntouched(t *testing.T) {
	w, engine, out := newExecHarness(t)
	engine.compileErr = errors.New("unexpected token")

	w.handle(bus.Evaluate{Source: "bogus syntax"})

	got := drain(out)
	if len(got) != 1 {
		t.Fatalf("got %d notifications, want exactly 1", len(got))
	}
	text, ok := got[0].(bus.TextMessage)
	if !ok || !strings.Contains(text.Text, "unexpected token") {
		t.Errorf("notification = %#v, want error text", got[0])
	}
	if scope := engine.scopes[0]; len(scope.runs) != 0 {
		t.Errorf("scope was touched: %v", scope.runs)
	}
	if len(w.units) != 0 {
		t.Errorf("compile failure accumulated %d units", len(w.units))
	}
}

func TestEvaluateRuntimeError(t *testing.T) {
	w, engine, out := newExecHarness(t)
	engine.scopes[0].runErr = errors.New("boom")

	w.handle(bus.Evaluate{Source: "explode()"})

	got := drain(out)
	if len(got) != 1 {
		t.Fatalf("got %d notifications, want 1", len(got))
	}
	if text := got[0].(bus.TextMessage).Text; !strings.Contains(text, "boom") {
		t.Errorf("text = %q, want boom", text)
	}
}

func TestEvaluateFunction(t *testing.T) {
	w, engine, out := newExecHarness(t)
	engine.scopes[0].callResults["handler"] = map[string]any{"n": 1}

	w.handle(bus.EvaluateFunction{Name: "handler", Args: []string{`{"number":100}`, `7`}})

	got := drain(out)
	if len(got) != 1 {
		t.Fatalf("got %d notifications, want 1", len(got))
	}
	jm, ok := got[0].(bus.JsonMessage)
	if !ok {
		t.Fatalf("notification = %#v, want JsonMessage", got[0])
	}
	if !reflect.DeepEqual(jm.Value, map[string]any{"n": 1}) {
		t.Errorf("value = %v", jm.Value)
	}

	calls := engine.scopes[0].calls
	if len(calls) != 1 || calls[0].name != "handler" {
		t.Fatalf("calls = %v", calls)
	}
	want := []any{map[string]any{"number": float64(100)}, float64(7)}
	if !reflect.DeepEqual(calls[0].args, want) {
		t.Errorf("args = %#v, want %#v", calls[0].args, want)
	}
}

func TestEvaluateFunctionDropsMalformedArgWithWarning(t *testing.T) {
	w, engine, out := newExecHarness(t)

	w.handle(bus.EvaluateFunction{Name: "handler", Args: []string{`{broken`, `1`}})

	got := drain(out)
	if len(got) != 2 {
		t.Fatalf("got %d notifications, want warning + result", len(got))
	}
	warning, ok := got[0].(bus.TextMessage)
	if !ok || !strings.HasPrefix(warning.Text, "Warning: dropping argument 1") {
		t.Errorf("first notification = %#v, want warning", got[0])
	}
	if _, ok := got[1].(bus.JsonMessage); !ok {
		t.Errorf("second notification = %#v, want JsonMessage", got[1])
	}

	calls := engine.scopes[0].calls
	if len(calls) != 1 || len(calls[0].args) != 1 {
		t.Fatalf("calls = %v, want one call with the single parsed arg", calls)
	}
}

func TestEvaluateFunctionError(t *testing.T) {
	w, engine, out := newExecHarness(t)
	engine.scopes[0].callErr = errors.New("no such function")

	w.handle(bus.EvaluateFunction{Name: "nope", Args: nil})

	got := drain(out)
	if len(got) != 1 {
		t.Fatalf("got %d notifications, want 1", len(got))
	}
	text, ok := got[0].(bus.TextMessage)
	if !ok || !strings.HasPrefix(text.Text, "Error: ") {
		t.Errorf("notification = %#v, want Error text", got[0])
	}
}

func TestBuildCallsCodegen(t *testing.T) {
	w, engine, out := newExecHarness(t)
	engine.scopes[0].callResults["codegen"] = "generated 2 modules"

	w.handle(bus.Build{})

	got := drain(out)
	if len(got) != 1 {
		t.Fatalf("got %d notifications, want 1", len(got))
	}
	text := got[0].(bus.TextMessage).Text
	if text != "Build result: generated 2 modules" {
		t.Errorf("text = %q", text)
	}
	calls := engine.scopes[0].calls
	if len(calls) != 1 || calls[0].name != "codegen" || len(calls[0].args) != 0 {
		t.Errorf("calls = %v, want one zero-arg codegen call", calls)
	}
}

func TestResetClearScopeReplaysUnits(t *testing.T) {
	w, engine, out := newExecHarness(t)

	w.handle(bus.Evaluate{Source: "function a() {}"})
	w.handle(bus.Evaluate{Source: "function b() {}"})
	w.handle(bus.ResetScope{ClearScope: true})

	if len(engine.scopes) != 2 {
		t.Fatalf("created %d scopes, want 2", len(engine.scopes))
	}
	replayed := engine.scopes[1].runs
	if !reflect.DeepEqual(replayed, []string{"function a() {}", "function b() {}"}) {
		t.Errorf("replayed units = %v", replayed)
	}

	got := drain(out)
	if _, ok := got[len(got)-1].(bus.MessagesCleared); !ok {
		t.Errorf("last notification = %#v, want MessagesCleared", got[len(got)-1])
	}
}

func TestResetClearUnitsOnly(t *testing.T) {
	w, engine, out := newExecHarness(t)

	w.handle(bus.Evaluate{Source: "function a() {}"})
	w.handle(bus.ResetScope{ClearUnits: true})

	if len(engine.scopes) != 1 {
		t.Errorf("created %d scopes, want 1 (scope retained)", len(engine.scopes))
	}
	if len(w.units) != 0 {
		t.Errorf("units = %d, want 0", len(w.units))
	}

	got := drain(out)
	if _, ok := got[len(got)-1].(bus.MessagesCleared); !ok {
		t.Errorf("last notification = %#v, want MessagesCleared", got[len(got)-1])
	}
}

func TestResetClearBothDropsEverything(t *testing.T) {
	w, engine, out := newExecHarness(t)

	w.handle(bus.Evaluate{Source: "function a() {}"})
	w.handle(bus.ResetScope{ClearScope: true, ClearUnits: true})
	defer drain(out)

	if len(engine.scopes) != 2 {
		t.Fatalf("created %d scopes, want 2", len(engine.scopes))
	}
	if runs := engine.scopes[1].runs; len(runs) != 0 {
		t.Errorf("fresh scope replayed %v, want nothing", runs)
	}
}

func TestRenderValues(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, "null"},
		{"plain", "plain"},
		{int64(42), "42"},
		{map[string]any{"n": float64(1)}, `{"n":1}`},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v", tt.in), func(t *testing.T) {
			if got := render(tt.in); got != tt.want {
				t.Errorf("render(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
