package persistence

// Persistence bundles the store interfaces so the engine
// can depend on a single abstraction.
type Persistence struct {
	Workflows WorkflowStore
	Runs      RunStore
	Events    EventStore
}

// NewInMemoryPersistence returns a Persistence whose stores all live in a
// single InMemoryStore.
func NewInMemoryPersistence() Persistence {
	s := NewInMemoryStore()
	return Persistence{Workflows: s, Runs: s, Events: s}
}
