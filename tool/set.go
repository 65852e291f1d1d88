package tool

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/aiflow-go/aiflow/internal/registry"
)

// Set is a concurrent collection of tool definitions keyed by name. Names
// are unique for the lifetime of the set; a second registration under the
// same name is rejected rather than replacing the first.
type Set struct {
	tools registry.Registry[*Definition]
	count atomic.Int64
}

func NewSet() *Set {
	return &Set{tools: registry.New[*Definition]()}
}

// Add registers def. It returns ErrDuplicate when a tool with the same name
// is already present.
func (s *Set) Add(def Definition) error {
	if def.Name == "" {
		return &BuildError{Reason: "tool name is required"}
	}
	if !s.tools.Add(def.Name, &def) {
		return fmt.Errorf("%w: %s", ErrDuplicate, def.Name)
	}
	s.count.Add(1)
	return nil
}

func (s *Set) Get(name string) (*Definition, bool) {
	return s.tools.Get(name)
}

func (s *Set) Len() int {
	return int(s.count.Load())
}

// Definitions returns the registered tools ordered by name, for stable
// request payloads.
func (s *Set) Definitions() []*Definition {
	defs := make([]*Definition, 0, s.count.Load())
	s.tools.ForEach(func(_ string, def *Definition) bool {
		defs = append(defs, def)
		return true
	})
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}
