// Package placement maps object identifiers to ordered sets of storage
// targets and recomputes those sets when targets fail, drain, or come back.
//
// Key Concepts:
//   - Layout: the ordered shard list of one object, GroupSize slots per group
//   - Fault domain: the tree level at which shards of one group must not share a parent
//   - Remap list: unavailable shard slots sorted by (failure sequence, shard index)
//   - Spare: the target a failed slot moves to; every node derives the same spare
//   - Extension: extra slots appended to each group while targets are mid-transition
//
// Architecture Role:
// The package sits between the service layer (caching, metrics, class lookup)
// and the topology package (the read-only pool map). It never mutates the map
// and keeps no state between calls, so a Strategy can be shared by any number
// of goroutines.
//
// Usage Flow:
//  1. The service builds a Strategy from a topology snapshot
//  2. Place computes the layout of an object, with spares already resolved
//  3. FindRebuild lists the shards a rebuild pass has to recreate
//  4. FindReintegration and FindAddition diff two layouts to find shards that
//     move onto returning or new targets
//
// Example:
//
//	s, _ := placement.New(placement.KindJump, m, placement.Options{Classes: objclass.NewRegistry()})
//	layout, _ := s.Place(md, nil, 0)
//	work, _ := s.FindRebuild(md, nil, m.Version(), 16)
package placement

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/zplace/internal/domain"
	zerrors "github.com/zzenonn/zplace/internal/errors"
	"github.com/zzenonn/zplace/internal/objclass"
	"github.com/zzenonn/zplace/internal/topology"
)

// Mode alters how Place builds a layout.
type Mode uint8

const (
	// ModeReadOnly never extends a layout with mid-transition targets.
	ModeReadOnly Mode = 1 << iota
)

// Strategy kinds accepted by New.
const (
	KindJump = "jump"
	KindRing = "ring"
)

// DefaultMaxBits bounds the per-call bitmaps and layouts when Options leaves
// MaxBits unset.
const DefaultMaxBits = 1 << 20

// Info summarises a strategy and the map it was built from.
type Info struct {
	Strategy    string          `json:"strategy"`
	DomainCount int             `json:"domain_count"`
	TargetCount int             `json:"target_count"`
	FaultDomain domain.CompType `json:"fault_domain"`
	MapVersion  uint32          `json:"map_version"`
}

// Strategy places objects over one pool map snapshot.
//
// Implementations must be deterministic: the same map, metadata and
// arguments always produce the same output, on any node.
type Strategy interface {
	// Place returns the layout of an object. When shard is non-nil only the
	// group holding that shard is computed.
	Place(md domain.ObjectMetadata, shard *domain.ShardMetadata, mode Mode) (*domain.Layout, error)

	// FindRebuild lists the (shard, spare) pairs whose failure happened at or
	// before rebuildVersion.
	FindRebuild(md domain.ObjectMetadata, shard *domain.ShardMetadata, rebuildVersion uint32, capacity int) ([]domain.WorkItem, error)

	// FindReintegration lists the shards that move onto reintegrating targets.
	FindReintegration(md domain.ObjectMetadata, shard *domain.ShardMetadata, reintVersion uint32, capacity int) ([]domain.WorkItem, error)

	// FindAddition lists the shards that move onto newly added targets.
	FindAddition(md domain.ObjectMetadata, shard *domain.ShardMetadata, version uint32, capacity int) ([]domain.WorkItem, error)

	Query() Info

	// Map returns the snapshot the strategy was built from.
	Map() *topology.Map
}

// ClassResolver looks up the geometry of an object class.
type ClassResolver interface {
	Lookup(name string) (objclass.Attr, error)
}

// Options configure a strategy.
type Options struct {
	// FaultDomain is the level at which shards of a group are kept apart.
	// Defaults to CompNode.
	FaultDomain domain.CompType
	Classes     ClassResolver
	Logger      log.FieldLogger
	// MaxBits caps bitmap and layout sizes; larger requests fail with
	// ErrOutOfMemory.
	MaxBits int
	// RingCount is the number of rings built by the ring strategy.
	RingCount int
}

func (o Options) withDefaults() Options {
	if o.FaultDomain == domain.CompUnknown {
		o.FaultDomain = domain.CompNode
	}
	if o.Classes == nil {
		o.Classes = objclass.NewRegistry()
	}
	if o.Logger == nil {
		o.Logger = log.StandardLogger()
	}
	if o.MaxBits <= 0 {
		o.MaxBits = DefaultMaxBits
	}
	if o.RingCount <= 0 {
		o.RingCount = 1
	}
	return o
}

// New builds a strategy of the given kind over m.
func New(kind string, m *topology.Map, opts Options) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindJump:
		return NewJumpMap(m, opts)
	case KindRing:
		return NewRingMap(m, opts)
	}
	return nil, zerrors.InvalidArgumentError("unknown placement strategy %q", kind)
}
