// Package codegen renders a module graph to script text: one
// registration call plus the raw code body per module.
package codegen

import (
	"fmt"
	"os"
	"strings"

	"github.com/avgusev/streamline-studio/graph"
)

// UnresolvedInputError reports a declared input that names neither
// another module nor the block source sentinel. Generation aborts whole;
// no partial script is ever produced.
type UnresolvedInputError struct {
	Module string
	Input  string
}

func (e *UnresolvedInputError) Error() string {
	return fmt.Sprintf("codegen: module %q: unknown input %q", e.Module, e.Input)
}

// Generate renders the snapshot to script text. Deterministic: the
// snapshot is id-ordered and each module contributes its registration
// call followed by its code body verbatim. Modules are not topologically
// sorted; the runtime resolves handler calls by name at evaluation time.
func Generate(snap graph.Snapshot) (string, error) {
	var b strings.Builder
	for _, m := range snap.Modules {
		reg, err := registration(m, snap)
		if err != nil {
			return "", err
		}
		b.WriteString(reg)
		b.WriteString(m.Code)
		b.WriteString("\n")
	}
	return b.String(), nil
}

// WriteFile generates the snapshot's script and writes it to path.
func WriteFile(path string, snap graph.Snapshot) error {
	source, err := Generate(snap)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(source), 0o644); err != nil {
		return fmt.Errorf("codegen: write %s: %w", path, err)
	}
	return nil
}

func registration(m graph.Module, snap graph.Snapshot) (string, error) {
	register := "add_mfn"
	if m.Kind == graph.KindStore {
		register = "add_sfn"
	}

	descriptors := make([]string, len(m.Inputs))
	for i, input := range m.Inputs {
		d, err := descriptor(m, input, snap)
		if err != nil {
			return "", err
		}
		descriptors[i] = d
	}

	return fmt.Sprintf(`
%s({
    name: %q,
    inputs: [%s],
    handler: %q
});
`, register, m.Name, strings.Join(descriptors, ","), m.Name), nil
}

// descriptor resolves one declared input to its registration literal:
// the producing module's kind and name, or the bare source kind for the
// block sentinel.
func descriptor(m graph.Module, input string, snap graph.Snapshot) (string, error) {
	if src, ok := snap.Lookup(input); ok {
		return fmt.Sprintf(`{kind: %q, name: %q}`, src.Kind, src.Name), nil
	}
	if input == graph.SourceInput {
		return `{kind: "source"}`, nil
	}
	return "", &UnresolvedInputError{Module: m.Name, Input: input}
}
