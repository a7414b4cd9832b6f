package workspace

import (
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"

	"github.com/avgusev/streamline-studio/graph"
)

// cborEncMode holds CBOR encoding options with canonical mode for
// deterministic encoding.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("workspace: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// snapshotEnvelope is the on-disk form of an exported graph.
type snapshotEnvelope struct {
	Version int            `cbor:"1,keyasint"`
	Modules []graph.Module `cbor:"2,keyasint"`
}

const snapshotVersion = 1

// MarshalSnapshot serializes a graph snapshot to CBOR bytes.
func MarshalSnapshot(snap graph.Snapshot) ([]byte, error) {
	return cborEncMode.Marshal(&snapshotEnvelope{
		Version: snapshotVersion,
		Modules: snap.Modules,
	})
}

// UnmarshalSnapshot deserializes a graph snapshot from CBOR bytes.
func UnmarshalSnapshot(data []byte) (graph.Snapshot, error) {
	var env snapshotEnvelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return graph.Snapshot{}, fmt.Errorf("workspace: unmarshal snapshot: %w", err)
	}
	if env.Version != snapshotVersion {
		return graph.Snapshot{}, fmt.Errorf("workspace: unsupported snapshot version %d", env.Version)
	}
	return graph.Snapshot{Modules: env.Modules}, nil
}

// Export writes a graph snapshot to path as a CBOR file.
func Export(path string, snap graph.Snapshot) error {
	data, err := MarshalSnapshot(snap)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Import reads a graph snapshot from a CBOR file at path.
func Import(path string) (graph.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return graph.Snapshot{}, err
	}
	return UnmarshalSnapshot(data)
}
