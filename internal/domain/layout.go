package domain

import (
	"fmt"
	"strings"
)

// Shard is one slot of an object layout. Target is -1 when no target could be
// assigned; Index is -1 when the slot holds nothing.
type Shard struct {
	Index         int    `json:"index"`
	Target        int    `json:"target"`
	Fseq          uint32 `json:"fseq"`
	Rebuilding    bool   `json:"rebuilding,omitempty"`
	Reintegrating bool   `json:"reintegrating,omitempty"`
}

// Layout is the ordered shard list of one object. Shards are grouped
// contiguously, GroupSize slots per group.
type Layout struct {
	Version    uint32  `json:"version"`
	GroupSize  int     `json:"group_size"`
	GroupCount int     `json:"group_count"`
	Shards     []Shard `json:"shards"`
}

// NewLayout allocates a layout with every slot unplaced.
func NewLayout(version uint32, groupSize, groupCount int) *Layout {
	l := &Layout{
		Version:    version,
		GroupSize:  groupSize,
		GroupCount: groupCount,
		Shards:     make([]Shard, groupSize*groupCount),
	}
	for i := range l.Shards {
		l.Shards[i] = Shard{Index: -1, Target: -1}
	}
	return l
}

// Group returns the slots of group g.
func (l *Layout) Group(g int) []Shard {
	return l.Shards[g*l.GroupSize : (g+1)*l.GroupSize]
}

// Targets returns the target of every slot in order.
func (l *Layout) Targets() []int {
	out := make([]int, len(l.Shards))
	for i, s := range l.Shards {
		out[i] = s.Target
	}
	return out
}

func (l *Layout) Clone() *Layout {
	if l == nil {
		return nil
	}
	c := *l
	c.Shards = append([]Shard(nil), l.Shards...)
	return &c
}

func (l *Layout) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ver %d grp_size %d grp_nr %d:", l.Version, l.GroupSize, l.GroupCount)
	for i, s := range l.Shards {
		fmt.Fprintf(&b, " [%d]%d@%d", i, s.Index, s.Target)
		if s.Rebuilding {
			b.WriteString("(rb)")
		}
		if s.Reintegrating {
			b.WriteString("(ri)")
		}
	}
	return b.String()
}

// WorkKind tells a rebuild driver why a shard has to move.
type WorkKind uint8

const (
	WorkRebuild WorkKind = iota
	WorkReintegration
	WorkAddition
)

func (k WorkKind) String() string {
	switch k {
	case WorkRebuild:
		return "rebuild"
	case WorkReintegration:
		return "reintegration"
	case WorkAddition:
		return "addition"
	}
	return "unknown"
}

// WorkItem is one (target, shard) pair that a rebuild or reintegration pass
// has to materialise.
type WorkItem struct {
	Shard  int      `json:"shard"`
	Target int      `json:"target"`
	Kind   WorkKind `json:"kind"`
}

func (k WorkKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *WorkKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "rebuild":
		*k = WorkRebuild
	case "reintegration":
		*k = WorkReintegration
	case "addition":
		*k = WorkAddition
	default:
		return fmt.Errorf("unknown work kind %q", text)
	}
	return nil
}
