package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// ObjectID is a 128-bit object identifier.
type ObjectID struct {
	Hi uint64 `json:"hi" yaml:"hi"`
	Lo uint64 `json:"lo" yaml:"lo"`
}

// Key folds the identifier into the 64-bit seed used by the placement hashes.
func (o ObjectID) Key() uint64 {
	return o.Hi ^ o.Lo
}

func (o ObjectID) String() string {
	return fmt.Sprintf("%x.%x", o.Hi, o.Lo)
}

// ParseObjectID parses the "hi.lo" hexadecimal form produced by String.
func ParseObjectID(s string) (ObjectID, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ".", 2)
	if len(parts) != 2 {
		return ObjectID{}, fmt.Errorf("object id %q: expected hi.lo", s)
	}
	hi, err := strconv.ParseUint(strings.TrimPrefix(parts[0], "0x"), 16, 64)
	if err != nil {
		return ObjectID{}, fmt.Errorf("object id %q: %w", s, err)
	}
	lo, err := strconv.ParseUint(strings.TrimPrefix(parts[1], "0x"), 16, 64)
	if err != nil {
		return ObjectID{}, fmt.Errorf("object id %q: %w", s, err)
	}
	return ObjectID{Hi: hi, Lo: lo}, nil
}

// ObjectMetadata describes an object to be placed.
type ObjectMetadata struct {
	ID    ObjectID `json:"id" yaml:"id"`
	Class string   `json:"class" yaml:"class"`
	// Version is the pool map version the metadata was generated against.
	Version uint32 `json:"version" yaml:"version"`
	// PDA is the number of consecutive shards kept in one performance
	// domain. Zero means one redundancy group per performance domain.
	PDA uint32 `json:"pda" yaml:"pda"`
	// LayoutVersion selects the target selection algorithm (0 legacy, 1 current).
	LayoutVersion uint32 `json:"layout_version" yaml:"layout_version"`
}

// ShardMetadata restricts a computation to a single redundancy group.
type ShardMetadata struct {
	GroupIndex uint32 `json:"group_index" yaml:"group_index"`
}
