package policy

import (
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
)

const defaultCategory = "general"

// Registry maps policy type ids to their descriptors.
type Registry struct {
	mu     sync.RWMutex
	types  map[TypeID]Descriptor
	logger *slog.Logger
}

// NewRegistry creates an empty registry. A nil logger uses slog.Default().
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		types:  make(map[TypeID]Descriptor),
		logger: logger.With("component", "policy.registry"),
	}
}

// Register adds a policy type. A second registration of the same id is
// rejected with ErrDuplicatePolicyType and the first one is kept.
func (r *Registry) Register(d Descriptor) error {
	if err := d.validate(); err != nil {
		r.logger.Error("rejected policy type", "type", d.ID, "error", err)
		return err
	}
	if d.Name == "" {
		d.Name = string(d.ID)
	}
	if d.Category == "" {
		d.Category = defaultCategory
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.types[d.ID]; ok {
		err := fmt.Errorf("register %q: %w", d.ID, ErrDuplicatePolicyType)
		r.logger.Error("rejected policy type", "type", d.ID, "error", err)
		return err
	}
	r.types[d.ID] = d
	r.logger.Debug("policy type registered", "type", d.ID, "kind", d.Kind, "category", d.Category)
	return nil
}

// Lookup returns the descriptor for id.
func (r *Registry) Lookup(id TypeID) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.types[id]
	if !ok {
		return Descriptor{}, fmt.Errorf("policy type %q: %w", id, ErrUnknownPolicyType)
	}
	return d, nil
}

// Classify returns the kind of a registered type.
func (r *Registry) Classify(id TypeID) (Kind, error) {
	d, err := r.Lookup(id)
	if err != nil {
		return 0, err
	}
	return d.Kind, nil
}

// Has reports whether id is registered.
func (r *Registry) Has(id TypeID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.types[id]
	return ok
}

// Len returns the number of registered types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.types)
}

// Types returns every registered id in sorted order.
func (r *Registry) Types() []TypeID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]TypeID, 0, len(r.types))
	for id := range r.types {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Descriptors returns every descriptor sorted by id.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.types))
	for _, d := range r.types {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Categories returns the distinct categories in sorted order.
func (r *Registry) Categories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var cats []string
	for _, d := range r.types {
		if !seen[d.Category] {
			seen[d.Category] = true
			cats = append(cats, d.Category)
		}
	}
	slices.Sort(cats)
	return cats
}

// InCategory returns the descriptors of one category sorted by display name.
func (r *Registry) InCategory(category string) []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Descriptor
	for _, d := range r.types {
		if d.Category == category {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}
