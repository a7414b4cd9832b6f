// Package graph owns the module dependency graph: the set of named map
// and store modules a user assembles, keyed by a generated numeric id so
// renaming a module never invalidates references to it.
package graph

// Kind distinguishes the two module variants.
type Kind string

const (
	// KindMap is a pure per-record transform.
	KindMap Kind = "map"
	// KindStore is a stateful accumulator with an update policy.
	KindStore Kind = "store"
)

// UpdatePolicy controls how a store module folds new values in.
type UpdatePolicy string

const (
	PolicySet     UpdatePolicy = "set"
	PolicySetOnce UpdatePolicy = "setOnce"
)

// SourceInput is the reserved input identifier for the raw streamed
// block, as opposed to another module's output.
const SourceInput = "BLOCK"

// Module is one named processing unit in the graph. Inputs name other
// modules (by their current name) or SourceInput, in the order the
// module's handler expects its arguments.
type Module struct {
	ID      int64        `json:"id" cbor:"1,keyasint"`
	Kind    Kind         `json:"kind" cbor:"2,keyasint"`
	Name    string       `json:"name" cbor:"3,keyasint"`
	Code    string       `json:"code" cbor:"4,keyasint"`
	Inputs  []string     `json:"inputs" cbor:"5,keyasint"`
	Policy  UpdatePolicy `json:"policy,omitempty" cbor:"6,keyasint,omitempty"`
	Editing bool         `json:"editing,omitempty" cbor:"7,keyasint,omitempty"`
}

// clone returns a deep copy so snapshots never alias store-owned state.
func (m Module) clone() Module {
	c := m
	c.Inputs = append([]string(nil), m.Inputs...)
	return c
}
