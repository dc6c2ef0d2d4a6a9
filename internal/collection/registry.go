// internal/collection/registry.go
//
// Collection registry (cycle-free).
//
// Each concrete record type lives under components/<name> and calls
// collection.Register() in an init() function.  main mounts every
// registered collection at /<name> after the store is online, binding
// the descriptor and schema to a generic controller.
package collection

import (
	"sort"
	"sync"

	"github.com/yanizio/recordapi/internal/controller"
	"github.com/yanizio/recordapi/internal/schema"
	"github.com/yanizio/recordapi/internal/store"
)

// Binding is everything the bootstrap needs to serve one collection.
type Binding struct {
	Descriptor *store.Descriptor
	Schema     *schema.Schema
	Options    []controller.Option
}

var (
	mu       sync.RWMutex
	registry = map[string]Binding{}
)

// Register is invoked from component init() functions.  Registering
// the same collection twice keeps the last binding.
func Register(b Binding) {
	mu.Lock()
	registry[b.Descriptor.Collection] = b
	mu.Unlock()
}

// All returns every registered binding, ordered by collection name so
// route mounting is deterministic.
func All() []Binding {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Binding, 0, len(registry))
	for _, b := range registry {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Descriptor.Collection < out[j].Descriptor.Collection
	})
	return out
}
