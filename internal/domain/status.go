package domain

import (
	"fmt"
	"strings"
)

// Status is the placement-relevant state of a pool component. Values are
// bit flags so that callers can build allow masks by OR-ing them together.
type Status uint8

const (
	StatusUnknown Status = 0
	StatusNew     Status = 1 << 0
	StatusUp      Status = 1 << 1
	StatusUpIn    Status = 1 << 2
	StatusDown    Status = 1 << 3
	StatusDownOut Status = 1 << 4
	StatusDrain   Status = 1 << 5
)

var statusNames = map[Status]string{
	StatusUnknown: "unknown",
	StatusNew:     "new",
	StatusUp:      "up",
	StatusUpIn:    "upin",
	StatusDown:    "down",
	StatusDownOut: "downout",
	StatusDrain:   "drain",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	var parts []string
	for bit := StatusNew; bit <= StatusDrain; bit <<= 1 {
		if s&bit != 0 {
			parts = append(parts, statusNames[bit])
		}
	}
	return strings.Join(parts, "|")
}

// ParseStatus accepts a single status name, case insensitive. "up_in" and
// "down_out" are accepted as aliases.
func ParseStatus(name string) (Status, error) {
	n := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "")
	if n == "" {
		return StatusUpIn, nil
	}
	for s, sn := range statusNames {
		if sn == n {
			return s, nil
		}
	}
	return StatusUnknown, fmt.Errorf("unknown component status %q", name)
}

// CompType is the level of a component in the fault-domain tree. Larger
// values sit higher in the tree.
type CompType uint8

const (
	CompUnknown CompType = iota
	CompTarget
	CompRank
	CompNode
	CompPerfDomain
	CompRoot
)

var compTypeNames = map[CompType]string{
	CompUnknown:    "unknown",
	CompTarget:     "target",
	CompRank:       "rank",
	CompNode:       "node",
	CompPerfDomain: "pd",
	CompRoot:       "root",
}

func (t CompType) String() string {
	if name, ok := compTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

func ParseCompType(name string) (CompType, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "perf_domain", "perfdomain", "performance_domain":
		return CompPerfDomain, nil
	case "engine":
		return CompRank, nil
	}
	for t, tn := range compTypeNames {
		if tn == n && t != CompUnknown {
			return t, nil
		}
	}
	return CompUnknown, fmt.Errorf("unknown component type %q", name)
}
