package topology

import (
	"github.com/zzenonn/zplace/internal/domain"
	zerrors "github.com/zzenonn/zplace/internal/errors"
)

// DomainSpec describes a domain and its subtree. A spec holds either
// children or targets, never both.
type DomainSpec struct {
	Type      domain.CompType
	ID        uint32
	Status    domain.Status
	Fseq      uint32
	InVersion uint32
	Version   uint32
	Children  []DomainSpec
	Targets   []TargetSpec
}

type TargetSpec struct {
	ID        uint32
	Rank      uint32
	Status    domain.Status
	Fseq      uint32
	InVersion uint32
	Version   uint32
}

// Build lays the tree out in arena form and validates it: every level has a
// single component type, all leaves sit at the same depth, target ids are
// unique and failed targets carry distinct failure sequences.
func Build(version uint32, root DomainSpec) (*Map, error) {
	if root.Type == domain.CompUnknown {
		root.Type = domain.CompRoot
	}
	if root.Type != domain.CompRoot {
		return nil, zerrors.InvalidArgumentError("top of the tree must be a root domain, got %s", root.Type)
	}

	m := &Map{
		version:    version,
		targetByID: make(map[uint32]int),
	}

	level := []*DomainSpec{&root}
	for depth := 0; len(level) > 0; depth++ {
		lt := level[0].Type
		leaf := len(level[0].Children) == 0
		l := Level{Type: lt, Start: len(m.domains), Count: len(level)}
		if depth > 0 && lt >= m.levels[depth-1].Type {
			return nil, zerrors.InvalidArgumentError("level %d type %s is not below %s", depth, lt, m.levels[depth-1].Type)
		}
		if lt <= domain.CompTarget {
			return nil, zerrors.InvalidArgumentError("level %d has non-domain type %s", depth, lt)
		}

		var next []*DomainSpec
		seen := make(map[uint32]bool, len(level))
		for _, spec := range level {
			if spec.Type != lt {
				return nil, zerrors.InvalidArgumentError("level %d mixes %s and %s domains", depth, lt, spec.Type)
			}
			if (len(spec.Children) == 0) != leaf {
				return nil, zerrors.InvalidArgumentError("domain %s %d: leaves must all be at the same depth", spec.Type, spec.ID)
			}
			if len(spec.Children) > 0 && len(spec.Targets) > 0 {
				return nil, zerrors.InvalidArgumentError("domain %s %d has both children and targets", spec.Type, spec.ID)
			}
			if leaf && len(spec.Targets) == 0 {
				return nil, zerrors.InvalidArgumentError("leaf domain %s %d has no targets", spec.Type, spec.ID)
			}
			if seen[spec.ID] {
				return nil, zerrors.InvalidArgumentError("duplicate %s id %d", spec.Type, spec.ID)
			}
			seen[spec.ID] = true

			d := Domain{
				Component: component(spec.Type, spec.ID, spec.Status, spec.Fseq, spec.InVersion, spec.Version),
				Index:     len(m.domains),
				Level:     depth,
			}
			if !leaf {
				d.FirstChild = l.Start + l.Count + len(next)
				d.ChildCount = len(spec.Children)
				for i := range spec.Children {
					next = append(next, &spec.Children[i])
				}
			}
			m.domains = append(m.domains, d)
		}
		m.levels = append(m.levels, l)

		if leaf {
			for i, spec := range level {
				d := &m.domains[l.Start+i]
				d.FirstTarget = len(m.targets)
				d.TargetCount = len(spec.Targets)
				for _, ts := range spec.Targets {
					if _, dup := m.targetByID[ts.ID]; dup {
						return nil, zerrors.InvalidArgumentError("duplicate target id %d", ts.ID)
					}
					t := Target{
						Component: component(domain.CompTarget, ts.ID, ts.Status, ts.Fseq, ts.InVersion, ts.Version),
						Rank:      ts.Rank,
						Index:     len(m.targets),
						Domain:    d.Index,
					}
					m.targetByID[ts.ID] = t.Index
					m.targets = append(m.targets, t)
				}
			}
		}
		level = next
	}

	// Inner domains cover the target range of their children.
	for depth := len(m.levels) - 2; depth >= 0; depth-- {
		l := m.levels[depth]
		for i := l.Start; i < l.Start+l.Count; i++ {
			d := &m.domains[i]
			first := &m.domains[d.FirstChild]
			last := &m.domains[d.FirstChild+d.ChildCount-1]
			d.FirstTarget = first.FirstTarget
			d.TargetCount = last.FirstTarget + last.TargetCount - first.FirstTarget
		}
	}

	if err := checkFseq(m.targets); err != nil {
		return nil, err
	}
	return m, nil
}

func component(t domain.CompType, id uint32, st domain.Status, fseq, inVer, ver uint32) Component {
	if st == domain.StatusUnknown {
		st = domain.StatusUpIn
	}
	return Component{Type: t, ID: id, Status: st, Fseq: fseq, InVersion: inVer, Version: ver}
}

// Uniform builds a balanced healthy tree. The last fan-out value is the
// number of targets per leaf domain and the ones before it are domain
// fan-outs from the root down; the leaf level is made of nodes, a level
// above them is made of performance domains and a level below them of
// ranks. Domain and target ids are assigned sequentially per level.
func Uniform(version uint32, fanout ...int) (*Map, error) {
	if len(fanout) < 2 || len(fanout) > 4 {
		return nil, zerrors.InvalidArgumentError("uniform tree needs 2 to 4 fan-out values, got %d", len(fanout))
	}
	var types []domain.CompType
	switch len(fanout) {
	case 2:
		types = []domain.CompType{domain.CompNode}
	case 3:
		types = []domain.CompType{domain.CompPerfDomain, domain.CompNode}
	case 4:
		types = []domain.CompType{domain.CompPerfDomain, domain.CompNode, domain.CompRank}
	}

	ids := make(map[domain.CompType]uint32)
	var targetID uint32
	var build func(depth int) DomainSpec
	build = func(depth int) DomainSpec {
		t := types[depth]
		spec := DomainSpec{Type: t, ID: ids[t]}
		ids[t]++
		if depth == len(types)-1 {
			for i := 0; i < fanout[depth+1]; i++ {
				spec.Targets = append(spec.Targets, TargetSpec{ID: targetID, Rank: spec.ID})
				targetID++
			}
			return spec
		}
		for i := 0; i < fanout[depth+1]; i++ {
			spec.Children = append(spec.Children, build(depth+1))
		}
		return spec
	}

	root := DomainSpec{Type: domain.CompRoot}
	for i := 0; i < fanout[0]; i++ {
		root.Children = append(root.Children, build(0))
	}
	return Build(version, root)
}
