package topology

import "github.com/zzenonn/zplace/internal/domain"

// Component is the state shared by domains and targets.
type Component struct {
	Type   domain.CompType
	ID     uint32
	Status domain.Status
	// Fseq is stamped whenever the status changes in a placement-relevant way.
	Fseq uint32
	// InVersion is the map version at which an Up component becomes UpIn.
	InVersion uint32
	// Version is the map version at which the component joined the pool.
	Version uint32
}

// IsNewlyAdded reports whether the component has never been part of a
// layout: it is New, or Up without any failure history.
func (c *Component) IsNewlyAdded() bool {
	return (c.Status == domain.StatusUp && c.Fseq <= 1) || c.Status == domain.StatusNew
}

// Excluded reports whether the component is hidden from child counts.
func (c *Component) Excluded(excludeNew bool) bool {
	return excludeNew && c.IsNewlyAdded()
}

// EffectiveStatus returns the status the component had as of allowVersion.
// A failure stamped after allowVersion has not happened yet, and an Up
// component whose transition completes after allowVersion is still in its
// previous state.
func (c *Component) EffectiveStatus(allowVersion uint32) domain.Status {
	switch c.Status {
	case domain.StatusDown, domain.StatusDrain:
		if c.Fseq > allowVersion {
			return domain.StatusUpIn
		}
	case domain.StatusUp:
		if c.InVersion > allowVersion {
			if c.Fseq <= 1 {
				return domain.StatusNew
			}
			return domain.StatusDownOut
		}
	}
	return c.Status
}

// Available reports whether the component may hold a shard under the given
// allow mask and version cutoff.
func (c *Component) Available(allowStatus domain.Status, allowVersion uint32) bool {
	return c.EffectiveStatus(allowVersion)&allowStatus != 0
}

// TransitionVersion is the version at which the component's current status
// took effect.
func (c *Component) TransitionVersion() uint32 {
	if (c.Status == domain.StatusUp || c.Status == domain.StatusNew) && c.InVersion != 0 {
		return c.InVersion
	}
	return c.Fseq
}

// Domain is an inner node of the fault-domain tree. Children and targets are
// referenced by position in the owning Map's arenas.
type Domain struct {
	Component
	Index       int
	Level       int
	FirstChild  int
	ChildCount  int
	FirstTarget int
	TargetCount int
}

// IsLeaf reports whether the domain holds targets directly.
func (d *Domain) IsLeaf() bool {
	return d.ChildCount == 0
}

// Target is a leaf of the tree.
type Target struct {
	Component
	Rank   uint32
	Index  int
	Domain int
}
