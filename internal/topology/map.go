// Package topology holds the read-only, versioned fault-domain tree that the
// placement engine consumes.
//
// Domains are stored breadth first in a single arena, so the children of any
// domain, and every level of the tree, occupy a contiguous index range.
// Targets are stored in leaf order, so the targets below any domain are
// contiguous as well. Placement bitmaps are indexed by these positions.
package topology

import (
	"fmt"

	"github.com/zzenonn/zplace/internal/domain"
	zerrors "github.com/zzenonn/zplace/internal/errors"
)

// Level describes one depth of the domain arena.
type Level struct {
	Type  domain.CompType
	Start int
	Count int
}

// Map is an immutable pool map snapshot.
type Map struct {
	version    uint32
	domains    []Domain
	targets    []Target
	levels     []Level
	targetByID map[uint32]int
}

func (m *Map) Version() uint32 {
	return m.version
}

// Root returns the root domain.
func (m *Map) Root() (*Domain, error) {
	if len(m.domains) == 0 || m.domains[0].Type != domain.CompRoot {
		return nil, zerrors.NotFoundError("domain", domain.CompRoot)
	}
	return &m.domains[0], nil
}

// Domain returns the domain at arena position i.
func (m *Map) Domain(i int) *Domain {
	return &m.domains[i]
}

// Domains returns the whole domain arena.
func (m *Map) Domains() []Domain {
	return m.domains
}

func (m *Map) DomainCount() int {
	return len(m.domains)
}

// Children returns the child domains of d.
func (m *Map) Children(d *Domain) []Domain {
	return m.domains[d.FirstChild : d.FirstChild+d.ChildCount]
}

// Target returns the target at arena position i.
func (m *Map) Target(i int) *Target {
	return &m.targets[i]
}

// Targets returns the whole target arena.
func (m *Map) Targets() []Target {
	return m.targets
}

// SubtreeTargets returns every target below d.
func (m *Map) SubtreeTargets(d *Domain) []Target {
	return m.targets[d.FirstTarget : d.FirstTarget+d.TargetCount]
}

func (m *Map) TargetCount() int {
	return len(m.targets)
}

// Levels returns the per-depth layout of the domain arena, root first.
func (m *Map) Levels() []Level {
	return m.levels
}

// FindTarget looks a target up by id.
func (m *Map) FindTarget(id uint32) (*Target, error) {
	i, ok := m.targetByID[id]
	if !ok {
		return nil, zerrors.NotFoundError("target", id)
	}
	return &m.targets[i], nil
}

// FindDomains returns every domain of type t. The result is nil when the
// tree has no such level.
func (m *Map) FindDomains(t domain.CompType) []Domain {
	for _, l := range m.levels {
		if l.Type == t {
			return m.domains[l.Start : l.Start+l.Count]
		}
	}
	return nil
}

// HasLevel reports whether the tree has domains of type t.
func (m *Map) HasLevel(t domain.CompType) bool {
	return m.FindDomains(t) != nil
}

// IsAdding reports whether any component is being added or reintegrated.
func (m *Map) IsAdding() bool {
	for i := range m.domains {
		if s := m.domains[i].Status; s == domain.StatusUp || s == domain.StatusNew {
			return true
		}
	}
	for i := range m.targets {
		if s := m.targets[i].Status; s == domain.StatusUp || s == domain.StatusNew {
			return true
		}
	}
	return false
}

// HasStatus reports whether any target currently has status s.
func (m *Map) HasStatus(s domain.Status) bool {
	for i := range m.targets {
		if m.targets[i].Status&s != 0 {
			return true
		}
	}
	return false
}

func (m *Map) String() string {
	return fmt.Sprintf("pool map v%d: %d domains, %d targets, %d levels",
		m.version, len(m.domains), len(m.targets), len(m.levels))
}

// TargetUpdate changes the state of one target.
type TargetUpdate struct {
	ID        uint32
	Status    domain.Status
	Fseq      uint32
	InVersion uint32
}

// Apply returns a copy of the map at the given version with the updates
// applied. The receiver is left untouched.
func (m *Map) Apply(version uint32, updates ...TargetUpdate) (*Map, error) {
	if version < m.version {
		return nil, zerrors.InvalidArgumentError("map version %d is older than %d", version, m.version)
	}
	next := &Map{
		version:    version,
		domains:    append([]Domain(nil), m.domains...),
		targets:    append([]Target(nil), m.targets...),
		levels:     m.levels,
		targetByID: m.targetByID,
	}
	for _, u := range updates {
		i, ok := next.targetByID[u.ID]
		if !ok {
			return nil, zerrors.NotFoundError("target", u.ID)
		}
		t := &next.targets[i]
		t.Status = u.Status
		if u.Fseq != 0 {
			t.Fseq = u.Fseq
		}
		if u.InVersion != 0 {
			t.InVersion = u.InVersion
		}
	}
	if err := checkFseq(next.targets); err != nil {
		return nil, err
	}
	return next, nil
}

func checkFseq(targets []Target) error {
	seen := make(map[uint32]uint32)
	for i := range targets {
		t := &targets[i]
		switch t.Status {
		case domain.StatusDown, domain.StatusDownOut, domain.StatusDrain:
		default:
			continue
		}
		if t.Fseq == 0 {
			continue
		}
		if other, ok := seen[t.Fseq]; ok {
			return zerrors.InvalidArgumentError("targets %d and %d share failure sequence %d", other, t.ID, t.Fseq)
		}
		seen[t.Fseq] = t.ID
	}
	return nil
}
