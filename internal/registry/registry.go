// Package registry implements the Tool Registry (spec §4.3): a static,
// immutable-after-load table of ToolDescriptors (spec §3), answering
// tools/list with the subset gated available by the Feature Manager.
//
// ToolDescriptor generalizes
// brennhill-gasoline-mcp-ai-devtools/internal/mcp/types.go's MCPTool
// (Name/Description/InputSchema) with the category, required-features,
// and timeout fields spec §3 adds.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dshield-mcp/dshield-mcp-server/internal/feature"
)

// Category is one of the five tool categories spec §3 names.
type Category string

const (
	CategoryQuery      Category = "query"
	CategoryAnalysis   Category = "analysis"
	CategoryEnrichment Category = "enrichment"
	CategoryMonitoring Category = "monitoring"
	CategoryReporting  Category = "reporting"
)

// Descriptor is the spec §3 ToolDescriptor. Immutable after
// registration — Register rejects a duplicate name as a configuration
// error.
type Descriptor struct {
	Name             string
	Description      string
	Category         Category
	ParameterSchema  map[string]any
	RequiredFeatures []feature.Tag
	TimeoutSeconds   float64
}

// Registry holds the static set of tool descriptors.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]Descriptor
	order       []string
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{descriptors: make(map[string]Descriptor)}
}

// Register adds a descriptor. Two descriptors with the same name is a
// configuration error (spec §3) and returns an error rather than
// silently overwriting.
func (r *Registry) Register(d Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.descriptors[d.Name]; exists {
		return fmt.Errorf("tool %q registered twice", d.Name)
	}
	r.descriptors[d.Name] = d
	r.order = append(r.order, d.Name)
	return nil
}

// Get looks up a descriptor by name.
func (r *Registry) Get(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[name]
	return d, ok
}

// ListAvailable returns descriptors whose required features are all
// satisfied, sorted by name — the tools/list gating predicate and the
// byte-identical-modulo-ordering invariant from spec §8 both land here.
func (r *Registry) ListAvailable(features *feature.Manager) []Descriptor {
	r.mu.RLock()
	names := append([]string(nil), r.order...)
	r.mu.RUnlock()
	sort.Strings(names)

	out := make([]Descriptor, 0, len(names))
	for _, name := range names {
		r.mu.RLock()
		d := r.descriptors[name]
		r.mu.RUnlock()
		if features.AllSatisfied(d.RequiredFeatures) {
			out = append(out, d)
		}
	}
	return out
}

// ByCategory returns every registered descriptor in the given category,
// sorted by name.
func (r *Registry) ByCategory(cat Category) []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Descriptor
	for _, name := range r.order {
		if d := r.descriptors[name]; d.Category == cat {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
