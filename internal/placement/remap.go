package placement

import (
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/zplace/internal/domain"
)

// failedShard is one layout slot waiting for a spare.
type failedShard struct {
	// slot is the position in the layout, shard the global shard number.
	slot  int
	shard int
	fseq  uint32
	// status of the target that failed the slot, updated on promotion.
	status domain.Status
	// origTarget is the arena position of the target first picked.
	origTarget int
	// tgtID is the id of the accepted spare, -1 until one is found.
	tgtID int
	group *groupBits
}

func (f *failedShard) less(o *failedShard) bool {
	if f.fseq != o.fseq {
		return f.fseq < o.fseq
	}
	return f.shard < o.shard
}

// remapList keeps failed shards sorted by (failure sequence, shard). Every
// node walks the list in this order and so agrees on the spares.
type remapList struct {
	items []*failedShard
}

func (l *remapList) Len() int {
	return len(l.items)
}

// insert adds f at its sorted position.
func (l *remapList) insert(f *failedShard) {
	i := sort.Search(len(l.items), func(i int) bool { return f.less(l.items[i]) })
	l.items = append(l.items, nil)
	copy(l.items[i+1:], l.items[i:])
	l.items[i] = f
}

// remove drops the entry at position i.
func (l *remapList) remove(i int) *failedShard {
	f := l.items[i]
	l.items = append(l.items[:i], l.items[i+1:]...)
	return f
}

func (l *remapList) dump(logger log.FieldLogger, oid domain.ObjectID, comment string) {
	if !isDebug(logger) {
		return
	}
	logger.Debugf("remap list for %s, %s", oid, comment)
	for _, f := range l.items {
		logger.Debugf("fseq:%d, shard_idx:%d status:%s orig %d tgt %d", f.fseq, f.shard, f.status, f.origTarget, f.tgtID)
	}
}

// isDebug reports whether debug output would be emitted, so callers can
// skip building dumps.
func isDebug(logger log.FieldLogger) bool {
	switch l := logger.(type) {
	case *log.Logger:
		return l.IsLevelEnabled(log.DebugLevel)
	case *log.Entry:
		return l.Logger.IsLevelEnabled(log.DebugLevel)
	}
	return true
}
