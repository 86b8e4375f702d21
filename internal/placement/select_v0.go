package placement

import (
	"github.com/zzenonn/zplace/internal/bitmap"
	"github.com/zzenonn/zplace/internal/domain"
)

// maxStepsV0 bounds the legacy descent. The walk normally ends within a few
// passes over the tree.
const maxStepsV0 = 1 << 16

// pickV0 is the legacy selection algorithm, kept so that layouts of objects
// created with layout version 0 stay reproducible. It ignores performance
// domains, and domFull stands for the "occupied" map.
//
// Layout version 0 hides newly added components when the allow mask
// contains Up, the reverse of version 1. Existing layouts depend on it.
func (s *selector) pickV0(b *bits, key uint64, shard int) int {
	var stack [maxStack]int
	top := -1
	excludeNew := s.allow&domain.StatusUp != 0
	occupied := b.domFull

	key = crc(key, uint32(shard))
	curr := 0
	for step := 0; step < maxStepsV0; step++ {
		d := s.m.Domain(curr)
		num := s.numDomains(d, excludeNew)

		if d.IsLeaf() || d.Type == s.fdom {
			start := d.FirstTarget
			end := start + num - 1
			if b.tgtsUsed.IsSetRange(start, end) {
				if top == -1 {
					return -1
				}
				curr = stack[top]
				top--
				continue
			}

			key = crc(key, 0)
			sel := jumpHash(key, num)
			idx := start
			for {
				sel %= num
				idx = start + sel
				sel++
				if !b.tgtsUsed.IsSet(idx) {
					break
				}
			}

			b.tgtsUsed.Set(idx)
			b.grpUsed.Set(curr)
			if b.tgtsUsed.IsSetRange(start, end) {
				occupied.Set(curr)
				s.log.Debugf("dom %d used up", curr)
			}
			return idx
		}

		start := d.FirstChild
		end := start + num - 1

		if occupied.IsSetRange(start, end) {
			if top == -1 {
				return -1
			}
			occupied.Set(curr)
			b.grpUsed.Set(curr)
			curr = stack[top]
			top--
			continue
		}

		if b.grpUsed.IsSetRange(start, end) {
			if top == -1 {
				// Every domain holds a shard of this group already, so
				// shards of the group may now share domains.
				resetGroupV0(b.grpUsed, occupied, s.m.DomainCount())
				continue
			}
			b.grpUsed.Set(curr)
			curr = stack[top]
			top--
			continue
		}

		if b.domUsed.IsSetRange(start, end) {
			resetUsed := false
			for i := start; i <= end; i++ {
				switch {
				case occupied.IsSet(i):
					b.grpUsed.Set(i)
				case !b.grpUsed.IsSet(i):
					b.domUsed.Clear(i)
					resetUsed = true
				}
			}
			if curr != 0 {
				b.domUsed.Set(curr)
				if top == -1 {
					curr = 0
					continue
				}
				curr = stack[top]
				top--
				continue
			}
			if !resetUsed {
				resetGroupV0(b.grpUsed, occupied, s.m.DomainCount())
			}
			continue
		}

		sel := s.chooseChild(key, num, d, b.domUsed.IsSet)
		b.domUsed.Set(start + sel)
		if top == maxStack-1 {
			s.log.Errorf("domain tree deeper than %d levels", maxStack)
			return -1
		}
		top++
		stack[top] = curr
		curr = start + sel
		key = crc(key, s.m.Domain(curr).ID)
	}
	s.log.WithField("shard", shard).Warn("legacy descent did not converge")
	return -1
}

// resetGroupV0 lets the current group reuse every domain that still has a
// free target.
func resetGroupV0(grpUsed, occupied *bitmap.Bitmap, n int) {
	for i := 0; i < n; i++ {
		if occupied.IsSet(i) {
			grpUsed.Set(i)
		} else {
			grpUsed.Clear(i)
		}
	}
}
