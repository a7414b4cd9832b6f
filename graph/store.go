package graph

import (
	"math/rand"
	"sort"
)

// Store owns the module graph. All access goes through a single
// goroutine so edits from the presentation layer and snapshots taken for
// code generation never observe each other mid-mutation.
type Store struct {
	requests chan storeRequest
	quit     chan struct{}
}

type storeRequest struct {
	fn   func(*storeState)
	done chan struct{}
}

type storeState struct {
	modules map[int64]Module
	nextID  int64
}

// NewStore creates an empty store and starts its owner goroutine.
func NewStore() *Store {
	s := &Store{
		requests: make(chan storeRequest),
		quit:     make(chan struct{}),
	}
	go s.loop()
	return s
}

// NewStoreWithDefaults creates a store seeded with the starter modules: a
// map over the raw block and a store folding that map's output.
func NewStoreWithDefaults() *Store {
	s := NewStore()
	s.Insert(Module{
		Kind:    KindMap,
		Name:    "foo",
		Code:    "function foo(BLOCK) {\n  return BLOCK.number;\n}",
		Inputs:  []string{SourceInput},
		Editing: true,
	})
	s.Insert(Module{
		Kind:    KindStore,
		Name:    "test_store",
		Code:    "function test_store(foo, s) {\n  s.set(foo);\n}",
		Inputs:  []string{"foo"},
		Policy:  PolicySet,
		Editing: true,
	})
	return s
}

func (s *Store) loop() {
	state := &storeState{
		modules: make(map[int64]Module),
		nextID:  rand.Int63n(1 << 62),
	}
	for {
		select {
		case req := <-s.requests:
			req.fn(state)
			close(req.done)
		case <-s.quit:
			return
		}
	}
}

// do runs fn on the owner goroutine and blocks until it completes.
func (s *Store) do(fn func(*storeState)) {
	req := storeRequest{fn: fn, done: make(chan struct{})}
	s.requests <- req
	<-req.done
}

// Close stops the owner goroutine. The store must not be used afterward.
func (s *Store) Close() {
	close(s.quit)
}

// Insert adds a module and returns its generated id. Any id already set
// on the argument is ignored.
func (s *Store) Insert(m Module) int64 {
	var id int64
	s.do(func(st *storeState) {
		id = st.nextID
		st.nextID++
		m.ID = id
		st.modules[id] = m.clone()
	})
	return id
}

// Remove deletes the module with the given id, if present.
func (s *Store) Remove(id int64) {
	s.do(func(st *storeState) {
		delete(st.modules, id)
	})
}

// Get returns a copy of the module with the given id.
func (s *Store) Get(id int64) (Module, bool) {
	var (
		m  Module
		ok bool
	)
	s.do(func(st *storeState) {
		var cur Module
		cur, ok = st.modules[id]
		if ok {
			m = cur.clone()
		}
	})
	return m, ok
}

// Rename changes a module's name, leaving its id (and therefore every
// reference held by the caller) intact. Returns false if the id is
// unknown. Input lists naming the old name are rewritten to the new one
// so dependency resolution survives the rename.
func (s *Store) Rename(id int64, newName string) bool {
	var ok bool
	s.do(func(st *storeState) {
		m, found := st.modules[id]
		if !found {
			return
		}
		oldName := m.Name
		m.Name = newName
		st.modules[id] = m
		for mid, other := range st.modules {
			changed := false
			for i, input := range other.Inputs {
				if input == oldName {
					other.Inputs[i] = newName
					changed = true
				}
			}
			if changed {
				st.modules[mid] = other
			}
		}
		ok = true
	})
	return ok
}

// SetCode replaces a module's code body.
func (s *Store) SetCode(id int64, code string) bool {
	var ok bool
	s.do(func(st *storeState) {
		m, found := st.modules[id]
		if !found {
			return
		}
		m.Code = code
		st.modules[id] = m
		ok = true
	})
	return ok
}

// SetInputs replaces a module's declared input list.
func (s *Store) SetInputs(id int64, inputs []string) bool {
	var ok bool
	s.do(func(st *storeState) {
		m, found := st.modules[id]
		if !found {
			return
		}
		m.Inputs = append([]string(nil), inputs...)
		st.modules[id] = m
		ok = true
	})
	return ok
}

// SetPolicy replaces a store module's update policy. Fails on map modules.
func (s *Store) SetPolicy(id int64, policy UpdatePolicy) bool {
	var ok bool
	s.do(func(st *storeState) {
		m, found := st.modules[id]
		if !found || m.Kind != KindStore {
			return
		}
		m.Policy = policy
		st.modules[id] = m
		ok = true
	})
	return ok
}

// All returns copies of every module. No ordering guarantee.
func (s *Store) All() []Module {
	var out []Module
	s.do(func(st *storeState) {
		out = make([]Module, 0, len(st.modules))
		for _, m := range st.modules {
			out = append(out, m.clone())
		}
	})
	return out
}

// Snapshot returns an immutable, id-ordered copy of the graph suitable
// for code generation. Later edits to the store are invisible to it.
func (s *Store) Snapshot() Snapshot {
	modules := s.All()
	sort.Slice(modules, func(i, j int) bool { return modules[i].ID < modules[j].ID })
	return Snapshot{Modules: modules}
}

// Restore replaces the whole graph with the snapshot's modules, keeping
// their recorded ids, and bumps the id counter past the highest of them.
func (s *Store) Restore(snap Snapshot) {
	s.do(func(st *storeState) {
		st.modules = make(map[int64]Module, len(snap.Modules))
		for _, m := range snap.Modules {
			st.modules[m.ID] = m.clone()
			if m.ID >= st.nextID {
				st.nextID = m.ID + 1
			}
		}
	})
}

// Snapshot is an id-ordered copy of the graph at one instant.
type Snapshot struct {
	Modules []Module
}

// Lookup finds a module by name. Names are unique within a graph.
func (s Snapshot) Lookup(name string) (Module, bool) {
	for _, m := range s.Modules {
		if m.Name == name {
			return m, true
		}
	}
	return Module{}, false
}
