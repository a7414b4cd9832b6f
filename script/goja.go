package script

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/dop251/goja"
)

// ErrForeignUnit is returned when a unit compiled by one engine is run
// on a scope belonging to another.
var ErrForeignUnit = errors.New("script: unit was not compiled by this engine")

// GojaEngine evaluates module scripts on the goja JavaScript runtime.
// Each scope is one goja runtime preloaded with the module registration
// builtins (add_mfn, add_sfn) and the codegen entry point.
type GojaEngine struct{}

// NewGojaEngine creates the engine.
func NewGojaEngine() *GojaEngine {
	return &GojaEngine{}
}

type gojaUnit struct {
	prog   *goja.Program
	source string
}

func (u *gojaUnit) Source() string { return u.source }

// Compile parses and compiles source without running it.
func (e *GojaEngine) Compile(source string) (Unit, error) {
	prog, err := goja.Compile("modules", source, false)
	if err != nil {
		return nil, fmt.Errorf("script: compile: %w", err)
	}
	return &gojaUnit{prog: prog, source: source}, nil
}

// NewScope creates a fresh runtime with the registration builtins bound.
func (e *GojaEngine) NewScope() (Scope, error) {
	s := &gojaScope{rt: goja.New()}
	if err := s.installBuiltins(); err != nil {
		return nil, err
	}
	return s, nil
}

type gojaScope struct {
	rt *goja.Runtime

	// registered accumulates every registration statement run in this
	// scope, in execution order. codegen() renders it.
	registered []registration
}

type registration struct {
	Kind    string `json:"kind"`
	Name    string `json:"name"`
	Inputs  []any  `json:"inputs"`
	Handler string `json:"handler"`
}

func (s *gojaScope) installBuiltins() error {
	register := func(kind string) func(spec map[string]any) {
		return func(spec map[string]any) {
			r := registration{Kind: kind}
			r.Name, _ = spec["name"].(string)
			r.Handler, _ = spec["handler"].(string)
			r.Inputs, _ = spec["inputs"].([]any)
			s.registered = append(s.registered, r)
		}
	}
	if err := s.rt.Set("add_mfn", register("map")); err != nil {
		return fmt.Errorf("script: bind add_mfn: %w", err)
	}
	if err := s.rt.Set("add_sfn", register("store")); err != nil {
		return fmt.Errorf("script: bind add_sfn: %w", err)
	}
	if err := s.rt.Set("codegen", s.codegen); err != nil {
		return fmt.Errorf("script: bind codegen: %w", err)
	}
	return nil
}

// codegen is the zero-argument Build entry point: it renders the
// manifest of every module registered in this scope.
func (s *gojaScope) codegen() string {
	manifest, err := sonic.MarshalString(s.registered)
	if err != nil {
		return fmt.Sprintf("codegen failed: %v", err)
	}
	return fmt.Sprintf("generated %d modules: %s", len(s.registered), manifest)
}

func (s *gojaScope) Run(unit Unit) (any, error) {
	u, ok := unit.(*gojaUnit)
	if !ok {
		return nil, ErrForeignUnit
	}
	v, err := s.rt.RunProgram(u.prog)
	if err != nil {
		return nil, fmt.Errorf("script: eval: %w", err)
	}
	return export(v), nil
}

func (s *gojaScope) Call(name string, args []any) (any, error) {
	target := s.rt.Get(name)
	if target == nil || goja.IsUndefined(target) {
		return nil, fmt.Errorf("script: function %q is not defined", name)
	}
	fn, ok := goja.AssertFunction(target)
	if !ok {
		return nil, fmt.Errorf("script: %q is not a function", name)
	}

	callArgs := make([]goja.Value, len(args))
	for i, a := range args {
		callArgs[i] = s.rt.ToValue(a)
	}

	v, err := fn(goja.Undefined(), callArgs...)
	if err != nil {
		return nil, fmt.Errorf("script: call %q: %w", name, err)
	}
	return export(v), nil
}

func export(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return v.Export()
}
