package placement

import (
	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/zplace/internal/bitmap"
	"github.com/zzenonn/zplace/internal/domain"
	"github.com/zzenonn/zplace/internal/topology"
)

// maxStack bounds the descent from the root to the fault-domain level.
const maxStack = 5

// maxPicks bounds the reset-and-retry rounds of a single target pick. A pick
// that still fails afterwards leaves the shard unplaced.
const maxPicks = 64

// maxJumps bounds the retries of jump hash over one sibling range before
// falling back to a linear scan.
const maxJumps = 1 << 12

// bits is the per-call bookkeeping of one layout computation. Domain maps
// are indexed by arena position, tgtsUsed by target position.
type bits struct {
	domUsed  *bitmap.Bitmap
	domFull  *bitmap.Bitmap
	grpUsed  *bitmap.Bitmap
	grpReal  *bitmap.Bitmap
	tgtsUsed *bitmap.Bitmap
}

func newBits(domains, targets int) *bits {
	return &bits{
		domUsed:  bitmap.New(domains),
		domFull:  bitmap.New(domains),
		grpUsed:  bitmap.New(domains),
		grpReal:  bitmap.New(domains),
		tgtsUsed: bitmap.New(targets),
	}
}

// forGroup returns a view sharing the object-wide maps but using the group
// maps of g.
func (b *bits) forGroup(g *groupBits) *bits {
	return &bits{
		domUsed:  b.domUsed,
		domFull:  b.domFull,
		grpUsed:  g.used,
		grpReal:  g.real,
		tgtsUsed: b.tgtsUsed,
	}
}

// groupBits is a snapshot of the group maps of one redundancy group, shared
// by every remap record of that group.
type groupBits struct {
	used *bitmap.Bitmap
	real *bitmap.Bitmap
}

func (b *bits) snapshotGroup() *groupBits {
	return &groupBits{used: b.grpUsed.Clone(), real: b.grpReal.Clone()}
}

// selector picks one target per shard. It holds everything that stays fixed
// for the duration of a layout computation.
type selector struct {
	m             *topology.Map
	fdom          domain.CompType
	layoutVersion uint32
	allow         domain.Status
	allowVersion  uint32
	groupSize     int
	log           log.FieldLogger
}

// pick returns the arena position of the target chosen for shard and of the
// fault domain it sits in. Both are -1 when nothing could be found.
func (s *selector) pick(b *bits, pd int, key uint64, shard int) (int, int) {
	if s.layoutVersion == 0 {
		return s.pickV0(b, key, shard), -1
	}
	return s.pickV1(b, pd, key, shard)
}

// numDomains returns the number of children (or targets, at the fault
// domain) of d with trailing newly added ones trimmed when excludeNew is set.
func (s *selector) numDomains(d *topology.Domain, excludeNew bool) int {
	if d.IsLeaf() || d.Type == s.fdom {
		n := d.TargetCount
		for n > 1 && s.m.Target(d.FirstTarget+n-1).Excluded(excludeNew) {
			n--
		}
		return n
	}
	n := d.ChildCount
	for n > 1 && s.m.Domain(d.FirstChild+n-1).Excluded(excludeNew) {
		n--
	}
	return n
}

// targetsUsed reports whether every target in [start, end] that is not
// excluded is marked used.
func (s *selector) targetsUsed(used *bitmap.Bitmap, start, end int, excludeNew bool) bool {
	for i := start; i <= end; i++ {
		if s.m.Target(i).Excluded(excludeNew) {
			continue
		}
		if !used.IsSet(i) {
			return false
		}
	}
	return true
}

// domainsSet reports whether every domain in [start, end] that is not
// excluded has its bit set.
func (s *selector) domainsSet(set *bitmap.Bitmap, start, end int, excludeNew bool) bool {
	for i := start; i <= end; i++ {
		if s.m.Domain(i).Excluded(excludeNew) {
			continue
		}
		if !set.IsSet(i) {
			return false
		}
	}
	return true
}

// domainsSet2 is domainsSet over the union of two maps.
func (s *selector) domainsSet2(a, b *bitmap.Bitmap, start, end int, excludeNew bool) bool {
	for i := start; i <= end; i++ {
		if s.m.Domain(i).Excluded(excludeNew) {
			continue
		}
		if !a.IsSet(i) && !b.IsSet(i) {
			return false
		}
	}
	return true
}

// chooseChild draws children of d by jump hash until one is not taken.
// The returned index is relative to d's first child.
func (s *selector) chooseChild(key uint64, avail int, d *topology.Domain, taken func(int) bool) int {
	var fail uint32
	for n := 0; n < maxJumps; n++ {
		sel := jumpHash(key, avail)
		key = crc(key, fail)
		fail++
		if !taken(d.FirstChild + sel) {
			return sel
		}
	}
	for sel := 0; sel < avail; sel++ {
		if !taken(d.FirstChild + sel) {
			return sel
		}
	}
	return 0
}
