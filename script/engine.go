// Package script defines the contract the execution worker drives a
// scripting runtime through, and provides the goja-backed engine used in
// production. The worker only ever compiles source to units, runs units
// against a scope, and calls named functions with positional arguments.
package script

// Unit is one compiled piece of script, opaque to callers. Units are
// engine-specific; running a unit on a scope from another engine fails.
type Unit interface {
	// Source returns the text the unit was compiled from.
	Source() string
}

// Scope holds one runtime instance's persistent state: accumulated
// variable bindings plus every function definition run into it so far.
type Scope interface {
	// Run executes a compiled unit, merging its definitions into the
	// scope, and returns the unit's result value.
	Run(unit Unit) (any, error)

	// Call invokes the named function defined in the scope with the
	// given positional arguments and returns its result.
	Call(name string, args []any) (any, error)
}

// Engine compiles script source and creates scopes.
type Engine interface {
	Compile(source string) (Unit, error)
	NewScope() (Scope, error)
}
