package graph

import (
	"reflect"
	"testing"
)

func TestInsertGet(t *testing.T) {
	s := NewStore()
	defer s.Close()

	id := s.Insert(Module{
		Kind:   KindMap,
		Name:   "blocks",
		Code:   "function blocks(BLOCK) { return BLOCK; }",
		Inputs: []string{SourceInput},
	})

	m, ok := s.Get(id)
	if !ok {
		t.Fatalf("Get(%d) not found", id)
	}
	if m.Name != "blocks" || m.Kind != KindMap {
		t.Errorf("got %+v, want name=blocks kind=map", m)
	}
	if m.ID != id {
		t.Errorf("module id = %d, want %d", m.ID, id)
	}
}

func TestInsertAssignsDistinctIDs(t *testing.T) {
	s := NewStore()
	defer s.Close()

	seen := make(map[int64]bool)
	for i := 0; i < 10; i++ {
		id := s.Insert(Module{Kind: KindMap, Name: "m"})
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = true
	}
}

func TestRemove(t *testing.T) {
	s := NewStore()
	defer s.Close()

	id := s.Insert(Module{Kind: KindMap, Name: "gone"})
	s.Remove(id)
	if _, ok := s.Get(id); ok {
		t.Errorf("Get(%d) found after Remove", id)
	}
}

func TestRenameKeepsIDAndRewritesReferents(t *testing.T) {
	s := NewStore()
	defer s.Close()

	mapID := s.Insert(Module{Kind: KindMap, Name: "foo", Inputs: []string{SourceInput}})
	storeID := s.Insert(Module{Kind: KindStore, Name: "acc", Inputs: []string{"foo"}, Policy: PolicySet})

	if !s.Rename(mapID, "bar") {
		t.Fatal("Rename returned false for known id")
	}

	m, ok := s.Get(mapID)
	if !ok {
		t.Fatal("renamed module lost")
	}
	if m.Name != "bar" {
		t.Errorf("name = %q, want bar", m.Name)
	}

	acc, _ := s.Get(storeID)
	if !reflect.DeepEqual(acc.Inputs, []string{"bar"}) {
		t.Errorf("dependent inputs = %v, want [bar]", acc.Inputs)
	}

	if s.Rename(mapID+storeID+1, "nope") {
		t.Error("Rename returned true for unknown id")
	}
}

func TestSettersAndPolicyOnMapModule(t *testing.T) {
	s := NewStore()
	defer s.Close()

	id := s.Insert(Module{Kind: KindMap, Name: "m"})
	if !s.SetCode(id, "function m() {}") {
		t.Error("SetCode failed")
	}
	if !s.SetInputs(id, []string{SourceInput}) {
		t.Error("SetInputs failed")
	}
	if s.SetPolicy(id, PolicySetOnce) {
		t.Error("SetPolicy succeeded on a map module")
	}

	m, _ := s.Get(id)
	if m.Code != "function m() {}" || !reflect.DeepEqual(m.Inputs, []string{SourceInput}) {
		t.Errorf("unexpected module after edits: %+v", m)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	s := NewStore()
	defer s.Close()

	id := s.Insert(Module{Kind: KindMap, Name: "before", Inputs: []string{SourceInput}})
	snap := s.Snapshot()

	s.Rename(id, "after")
	s.Insert(Module{Kind: KindMap, Name: "extra"})

	if len(snap.Modules) != 1 {
		t.Fatalf("snapshot has %d modules, want 1", len(snap.Modules))
	}
	if snap.Modules[0].Name != "before" {
		t.Errorf("snapshot saw rename: %q", snap.Modules[0].Name)
	}
}

func TestSnapshotOrderedByID(t *testing.T) {
	s := NewStore()
	defer s.Close()

	for i := 0; i < 5; i++ {
		s.Insert(Module{Kind: KindMap, Name: "m"})
	}
	snap := s.Snapshot()
	for i := 1; i < len(snap.Modules); i++ {
		if snap.Modules[i-1].ID >= snap.Modules[i].ID {
			t.Fatalf("snapshot not id-ordered: %d before %d", snap.Modules[i-1].ID, snap.Modules[i].ID)
		}
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	s := NewStoreWithDefaults()
	defer s.Close()
	snap := s.Snapshot()

	fresh := NewStore()
	defer fresh.Close()
	fresh.Restore(snap)

	got := fresh.Snapshot()
	if !reflect.DeepEqual(got, snap) {
		t.Errorf("restored snapshot differs:\n got %+v\nwant %+v", got, snap)
	}

	// The counter must not recycle restored ids.
	id := fresh.Insert(Module{Kind: KindMap, Name: "new"})
	for _, m := range snap.Modules {
		if m.ID == id {
			t.Fatalf("new id %d collides with restored module", id)
		}
	}
}

func TestDefaults(t *testing.T) {
	s := NewStoreWithDefaults()
	defer s.Close()

	snap := s.Snapshot()
	if len(snap.Modules) != 2 {
		t.Fatalf("default graph has %d modules, want 2", len(snap.Modules))
	}
	foo, ok := snap.Lookup("foo")
	if !ok || foo.Kind != KindMap || foo.Inputs[0] != SourceInput {
		t.Errorf("default foo module wrong: %+v", foo)
	}
	ts, ok := snap.Lookup("test_store")
	if !ok || ts.Kind != KindStore || ts.Policy != PolicySet || ts.Inputs[0] != "foo" {
		t.Errorf("default test_store module wrong: %+v", ts)
	}
}
