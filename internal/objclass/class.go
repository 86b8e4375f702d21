// Package objclass resolves object class names to their redundancy
// geometry: how many shards form a redundancy group and how many groups an
// object is striped over.
package objclass

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/klauspost/reedsolomon"

	zerrors "github.com/zzenonn/zplace/internal/errors"
)

const (
	// MaxGroupSize places one shard in every fault domain.
	MaxGroupSize = 0
	// MaxGroupCount stripes over as many groups as the pool can hold.
	MaxGroupCount = 0
)

// Attr is the geometry of one object class.
type Attr struct {
	Name       string `json:"name" yaml:"name" mapstructure:"name" dynamodbav:"name"`
	GroupSize  int    `json:"group_size" yaml:"group_size" mapstructure:"group_size" dynamodbav:"group_size"`
	GroupCount int    `json:"group_count" yaml:"group_count" mapstructure:"group_count" dynamodbav:"group_count"`
	// DataShards and ParityShards are set for erasure coded classes; the
	// group size is then their sum.
	DataShards   int `json:"data_shards,omitempty" yaml:"data_shards,omitempty" mapstructure:"data_shards" dynamodbav:"data_shards,omitempty"`
	ParityShards int `json:"parity_shards,omitempty" yaml:"parity_shards,omitempty" mapstructure:"parity_shards" dynamodbav:"parity_shards,omitempty"`
}

// IsErasureCoded reports whether the class stripes data and parity shards.
func (a Attr) IsErasureCoded() bool {
	return a.DataShards > 0
}

// Validate checks that the attributes describe a usable class. Erasure coded
// geometries are checked by building an encoder for them.
func (a Attr) Validate() error {
	if a.Name == "" {
		return zerrors.InvalidArgumentError("object class without a name")
	}
	if a.GroupSize < 0 || a.GroupCount < 0 {
		return zerrors.InvalidArgumentError("class %s: negative geometry %d/%d", a.Name, a.GroupSize, a.GroupCount)
	}
	if !a.IsErasureCoded() {
		if a.ParityShards > 0 {
			return zerrors.InvalidArgumentError("class %s: parity without data shards", a.Name)
		}
		return nil
	}
	if a.GroupSize != a.DataShards+a.ParityShards {
		return zerrors.InvalidArgumentError("class %s: group size %d is not %d+%d", a.Name, a.GroupSize, a.DataShards, a.ParityShards)
	}
	if _, err := reedsolomon.New(a.DataShards, a.ParityShards); err != nil {
		return zerrors.InvalidArgumentError("class %s: %v", a.Name, err)
	}
	return nil
}

// GroupSizeFor resolves MaxGroupSize against the number of fault domains.
func (a Attr) GroupSizeFor(domains int) int {
	if a.GroupSize == MaxGroupSize {
		return domains
	}
	return a.GroupSize
}

func (a Attr) String() string {
	size := fmt.Sprint(a.GroupSize)
	if a.GroupSize == MaxGroupSize {
		size = "X"
	}
	count := fmt.Sprint(a.GroupCount)
	if a.GroupCount == MaxGroupCount {
		count = "X"
	}
	if a.IsErasureCoded() {
		return fmt.Sprintf("%s (ec %d+%d, %s groups)", a.Name, a.DataShards, a.ParityShards, count)
	}
	return fmt.Sprintf("%s (%s shards, %s groups)", a.Name, size, count)
}

// builtin classes, named the way operators usually spell them.
var builtin = []Attr{
	{Name: "S1", GroupSize: 1, GroupCount: 1},
	{Name: "S2", GroupSize: 1, GroupCount: 2},
	{Name: "S4", GroupSize: 1, GroupCount: 4},
	{Name: "SX", GroupSize: 1, GroupCount: MaxGroupCount},
	{Name: "RP_2G1", GroupSize: 2, GroupCount: 1},
	{Name: "RP_2G2", GroupSize: 2, GroupCount: 2},
	{Name: "RP_2GX", GroupSize: 2, GroupCount: MaxGroupCount},
	{Name: "RP_3G1", GroupSize: 3, GroupCount: 1},
	{Name: "RP_3GX", GroupSize: 3, GroupCount: MaxGroupCount},
	{Name: "RP_XSF", GroupSize: MaxGroupSize, GroupCount: 1},
	{Name: "EC_2P1G1", GroupSize: 3, GroupCount: 1, DataShards: 2, ParityShards: 1},
	{Name: "EC_4P2G1", GroupSize: 6, GroupCount: 1, DataShards: 4, ParityShards: 2},
	{Name: "EC_4P2GX", GroupSize: 6, GroupCount: MaxGroupCount, DataShards: 4, ParityShards: 2},
	{Name: "EC_8P2G1", GroupSize: 10, GroupCount: 1, DataShards: 8, ParityShards: 2},
}

// Registry is a concurrency-safe class table.
type Registry struct {
	mu      sync.RWMutex
	classes map[string]Attr
}

// NewRegistry returns a registry preloaded with the builtin classes.
func NewRegistry() *Registry {
	r := &Registry{classes: make(map[string]Attr, len(builtin))}
	for _, a := range builtin {
		r.classes[a.Name] = a
	}
	return r
}

// Register adds or replaces a class after validating it.
func (r *Registry) Register(a Attr) error {
	a.Name = strings.ToUpper(strings.TrimSpace(a.Name))
	if err := a.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classes[a.Name] = a
	return nil
}

// Lookup resolves a class name, case insensitive.
func (r *Registry) Lookup(name string) (Attr, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.classes[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return Attr{}, zerrors.InvalidArgumentError("unknown object class %q", name)
	}
	return a, nil
}

// List returns every class sorted by name.
func (r *Registry) List() []Attr {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Attr, 0, len(r.classes))
	for _, a := range r.classes {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
