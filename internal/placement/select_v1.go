package placement

import (
	"github.com/zzenonn/zplace/internal/bitmap"
	"github.com/zzenonn/zplace/internal/domain"
)

// pickV1 runs the current selection algorithm. When a descent finds every
// candidate exhausted it resets the group bookkeeping and tries again.
func (s *selector) pickV1(b *bits, pd int, key uint64, shard int) (int, int) {
	// Newly added components only count when the caller allows Up.
	excludeNew := s.allow&domain.StatusUp == 0

	for round := 0; round < maxPicks; round++ {
		tgt, dom, pdIgnored := s.descendV1(b, pd, key, shard, excludeNew)
		if tgt >= 0 {
			return tgt, dom
		}
		if pdIgnored {
			s.resetGroupV1(b, 0, excludeNew)
		} else {
			s.resetGroupV1(b, pd, excludeNew)
		}
	}
	s.log.WithField("shard", shard).Warn("no target left after resetting group bookkeeping")
	return -1, -1
}

// descendV1 walks from pd down to the fault-domain level with an explicit
// stack so it can climb back up when a subtree is exhausted. If pd itself is
// exhausted the walk restarts from the root and pdIgnored is reported.
func (s *selector) descendV1(b *bits, pd int, key uint64, shard int, excludeNew bool) (tgt, dom int, pdIgnored bool) {
	var stack [maxStack]int
	top := -1

	key = crc(key, uint32(shard))
	curr := pd
	for {
		d := s.m.Domain(curr)
		avail := s.numDomains(d, excludeNew)

		if d.Type == s.fdom || d.IsLeaf() {
			start, end := d.FirstTarget, d.FirstTarget+d.TargetCount-1
			if s.targetsUsed(b.tgtsUsed, start, end, excludeNew) {
				if top == -1 {
					return -1, -1, pdIgnored
				}
				curr = stack[top]
				top--
				continue
			}

			key = crc(key, 0)
			sel := jumpHash(key, avail)
			idx := start
			for {
				sel %= avail
				idx = start + sel
				sel++
				if !b.tgtsUsed.IsSet(idx) {
					break
				}
			}

			b.tgtsUsed.Set(idx)
			s.log.Debugf("selected tgt %d", idx)
			if s.targetsUsed(b.tgtsUsed, start, end, excludeNew) {
				b.domFull.Set(curr)
				s.log.Debugf("dom %d used up", curr)
				for ; top != -1; top-- {
					if s.isFull(stack[top], b.domFull, excludeNew) {
						b.domFull.Set(stack[top])
					}
				}
			}
			return idx, curr, pdIgnored
		}

		start, end := d.FirstChild, d.FirstChild+d.ChildCount-1

		// Every target below is taken: climb, or widen a PD to the root.
		if s.domainsSet(b.domFull, start, end, excludeNew) {
			if top == -1 {
				if pd != 0 {
					s.log.Debugf("PD[%d] all doms are full, dropping the PD restriction", curr)
					pd, curr, pdIgnored = 0, 0, true
					continue
				}
				return -1, -1, pdIgnored
			}
			b.domFull.Set(curr)
			b.grpUsed.Set(curr)
			curr = stack[top]
			top--
			continue
		}

		// Every child is full or already holds a shard of this group.
		if s.domainsSet2(b.domFull, b.grpUsed, start, end, excludeNew) {
			if top == -1 {
				// Single-shard groups keep the PD until it is really full.
				if pd != 0 && s.groupSize > 1 {
					s.log.Debugf("PD[%d] used by the group, dropping the PD restriction", curr)
					pd, curr, pdIgnored = 0, 0, true
					continue
				}
				return -1, -1, pdIgnored
			}
			b.grpUsed.Set(curr)
			curr = stack[top]
			top--
			continue
		}

		// Every child is used by the object or the group: forget the object
		// usage of the ones that still have room.
		if s.domainsSet2(b.domUsed, b.grpUsed, start, end, excludeNew) {
			for i := start; i <= end; i++ {
				if !b.domFull.IsSet(i) {
					b.domUsed.Clear(i)
				}
			}
			if top == -1 {
				curr = pd
			} else {
				curr = stack[top]
				top--
			}
			continue
		}

		sel := s.chooseChild(key, avail, d, func(i int) bool {
			return b.domUsed.IsSet(i) || b.grpUsed.IsSet(i)
		})
		if curr == pd && pd != 0 {
			b.domUsed.Set(curr)
		}
		b.domUsed.Set(start + sel)
		b.grpUsed.Set(start + sel)
		if top == maxStack-1 {
			s.log.Errorf("domain tree deeper than %d levels", maxStack)
			return -1, -1, pdIgnored
		}
		top++
		stack[top] = curr
		curr = start + sel
		key = crc(key, s.m.Domain(curr).ID)
	}
}

// isFull reports whether every child of the domain at position i is full.
func (s *selector) isFull(i int, full *bitmap.Bitmap, excludeNew bool) bool {
	d := s.m.Domain(i)
	if d.IsLeaf() {
		return full.IsSet(i)
	}
	return s.domainsSet(full, d.FirstChild, d.FirstChild+d.ChildCount-1, excludeNew)
}

// resetGroupV1 relaxes the bookkeeping below pd so that the next descent can
// succeed. Levels above the fault domain are cleared outright; at the fault
// domain the least disruptive reset that frees a candidate wins, in order:
// full domains not used by the group, group bits of domains whose pick was
// unavailable, and finally every group bit.
func (s *selector) resetGroupV1(b *bits, pd int, excludeNew bool) {
	s.log.Debugf("bitmap resetting, curr_pd at dom[%d]", pd)

	start, n := pd, 1
	for n > 0 && start < s.m.DomainCount() {
		first := s.m.Domain(start)
		if first.Type < s.fdom {
			return
		}
		end := start + n - 1

		if first.Type > s.fdom {
			next := 0
			for i := start; i <= end; i++ {
				if d := s.m.Domain(i); !d.IsLeaf() {
					next += d.ChildCount
				}
				b.grpUsed.Clear(i)
				b.domFull.Clear(i)
			}
			if first.IsLeaf() {
				return
			}
			start, n = first.FirstChild, next
			continue
		}

		if !s.domainsSet2(b.domFull, b.grpUsed, start, end, excludeNew) {
			return
		}

		// Some domain never got a shard of this group: make full ones
		// usable again, at the price of sharing targets within the object.
		if !s.domainsSet(b.grpUsed, start, end, excludeNew) {
			for i := start; i <= end; i++ {
				if !b.grpUsed.IsSet(i) && b.domFull.IsSet(i) {
					s.resetFull(i, b, excludeNew)
				}
			}
			return
		}

		reset := false
		for i := start; i <= end; i++ {
			d := s.m.Domain(i)
			if b.grpReal.IsSet(i) {
				continue
			}
			if !s.targetsUsed(b.tgtsUsed, d.FirstTarget, d.FirstTarget+d.TargetCount-1, excludeNew) {
				s.resetBit(i, b.grpUsed, excludeNew)
				reset = true
			}
		}
		if reset {
			return
		}

		for i := start; i <= end; i++ {
			if !b.grpReal.IsSet(i) && s.hasAvailableTarget(i) {
				s.resetFull(i, b, excludeNew)
				s.resetBit(i, b.grpUsed, excludeNew)
				reset = true
			}
		}
		if reset {
			return
		}

		// Last resort: shards of the same group may share a domain.
		resetFull := s.domainsSet(b.domFull, start, end, excludeNew)
		for i := start; i <= end; i++ {
			if resetFull {
				s.resetFull(i, b, excludeNew)
			}
			s.resetBit(i, b.grpUsed, excludeNew)
		}
		return
	}
}

// resetBit clears the bit of the domain at position i and, level by level,
// of its descendants, stopping at the first level that is not fully set.
// The width of each lower level is the child count of i times the width of
// the level above.
func (s *selector) resetBit(i int, set *bitmap.Bitmap, excludeNew bool) {
	fanout := s.m.Domain(i).ChildCount
	start, n := i, 1
	for n > 0 && start < s.m.DomainCount() {
		tree := s.m.Domain(start)
		end := start + n - 1
		if end >= s.m.DomainCount() {
			end = s.m.DomainCount() - 1
		}
		if tree.IsLeaf() {
			set.Clear(start)
			return
		}
		if !s.domainsSet(set, start, end, excludeNew) {
			return
		}
		set.ClearRange(start, end)
		start, n = tree.FirstChild, n*fanout
	}
}

// resetFull clears the full bits below the domain at position i and, when
// all of its targets are used, releases them as well.
func (s *selector) resetFull(i int, b *bits, excludeNew bool) {
	s.resetBit(i, b.domFull, excludeNew)

	d := s.m.Domain(i)
	start, end := d.FirstTarget, d.FirstTarget+d.TargetCount-1
	if !b.tgtsUsed.IsSetRange(start, end) {
		return
	}
	b.tgtsUsed.ClearRange(start, end)
}

// hasAvailableTarget reports whether a target below the domain at position i
// is usable under the selector's allow mask and version.
func (s *selector) hasAvailableTarget(i int) bool {
	d := s.m.Domain(i)
	for _, t := range s.m.SubtreeTargets(d) {
		status := t.Status
		switch {
		case t.Status == domain.StatusDown && t.Fseq > s.allowVersion:
			status = domain.StatusUpIn
		case t.Status == domain.StatusUp && t.InVersion > s.allowVersion:
			status = domain.StatusDownOut
		}
		if status&s.allow != 0 {
			return true
		}
	}
	return false
}
