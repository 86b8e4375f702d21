package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/zzenonn/zplace/internal/domain"
	"github.com/zzenonn/zplace/internal/metrics"
	"github.com/zzenonn/zplace/internal/placement"
	"github.com/zzenonn/zplace/internal/poolcache"
	"github.com/zzenonn/zplace/internal/repository/objectstore"
	"github.com/zzenonn/zplace/internal/topology"
)

// DocumentStore reads and writes whole documents by location.
type DocumentStore interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
	Locate(ctx context.Context, uri string) (objectstore.StoredDocument, error)
	Store(ctx context.Context, uri string, data []byte) (objectstore.StoredDocument, error)
	Delete(ctx context.Context, uri string) error
}

// Options configure a PlacementService.
type Options struct {
	// Strategy is placement.KindJump or placement.KindRing.
	Strategy  string
	Placement placement.Options
	// CacheLayouts is the capacity of the layout cache; zero disables it.
	CacheLayouts int
	// ScanWorkers bounds the objects computed concurrently by Scan.
	ScanWorkers int
}

// layoutKey identifies one cached layout. Layouts are immutable for a given
// map version, so the version is part of the key and no invalidation is
// needed.
type layoutKey struct {
	pool          uuid.UUID
	version       uint32
	oid           domain.ObjectID
	class         string
	mode          placement.Mode
	layoutVersion uint32
	pda           uint32
	group         int64
}

// PlacementService serves placement computations for many pools.
type PlacementService struct {
	docs    DocumentStore
	cache   *poolcache.Cache
	layouts *lru.Cache[layoutKey, *domain.Layout]
	metrics *metrics.Metrics
	log     log.FieldLogger
	opts    Options
}

// NewPlacementService creates a new PlacementService instance
func NewPlacementService(docs DocumentStore, m *metrics.Metrics, logger log.FieldLogger, opts Options) (*PlacementService, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if m == nil {
		m = metrics.New(nil)
	}
	if opts.ScanWorkers <= 0 {
		opts.ScanWorkers = 4
	}
	opts.Placement.Logger = logger

	s := &PlacementService{
		docs:    docs,
		cache:   poolcache.New(logger),
		metrics: m,
		log:     logger,
		opts:    opts,
	}
	if opts.CacheLayouts > 0 {
		layouts, err := lru.New[layoutKey, *domain.Layout](opts.CacheLayouts)
		if err != nil {
			return nil, fmt.Errorf("failed to create layout cache: %w", err)
		}
		s.layouts = layouts
	}
	return s, nil
}

// LoadTopology fetches a topology document and installs it for pool.
func (s *PlacementService) LoadTopology(ctx context.Context, pool uuid.UUID, uri string) (placement.Info, bool, error) {
	data, err := s.docs.Fetch(ctx, uri)
	if err != nil {
		return placement.Info{}, false, err
	}
	m, err := topology.Parse(data)
	if err != nil {
		return placement.Info{}, false, fmt.Errorf("topology %s: %w", uri, err)
	}
	return s.InstallMap(pool, m)
}

// InstallMap builds a strategy over m and makes it current for pool unless
// a snapshot at least as new is cached. It returns the info of the snapshot
// that is current afterwards.
func (s *PlacementService) InstallMap(pool uuid.UUID, m *topology.Map) (placement.Info, bool, error) {
	strategy, err := placement.New(s.opts.Strategy, m, s.opts.Placement)
	s.metrics.Observe("install", err)
	if err != nil {
		return placement.Info{}, false, err
	}

	swapped := s.cache.Update(pool, strategy)
	s.metrics.Snapshots.Set(float64(s.cache.Len()))
	if !swapped {
		info, err := s.Query(pool)
		return info, false, err
	}
	return strategy.Query(), true, nil
}

// Evict forgets the snapshot of pool.
func (s *PlacementService) Evict(pool uuid.UUID) error {
	err := s.cache.Evict(pool)
	s.metrics.Snapshots.Set(float64(s.cache.Len()))
	return err
}

// withStrategy runs fn against a borrowed snapshot of pool.
func (s *PlacementService) withStrategy(pool uuid.UUID, op string, fn func(placement.Strategy) error) error {
	h, err := s.cache.Acquire(pool)
	if err != nil {
		s.log.WithError(err).Errorf("%s: no placement map cached for pool %s", op, pool)
		s.metrics.Observe(op, err)
		return err
	}
	defer h.Release()

	err = fn(h.Strategy())
	s.metrics.Observe(op, err)
	return err
}

// Query describes the current snapshot of pool.
func (s *PlacementService) Query(pool uuid.UUID) (placement.Info, error) {
	var info placement.Info
	err := s.withStrategy(pool, "query", func(st placement.Strategy) error {
		info = st.Query()
		return nil
	})
	return info, err
}

// Place returns the layout of an object on pool. Returned layouts are
// copies and may be modified by the caller.
func (s *PlacementService) Place(ctx context.Context, pool uuid.UUID, md domain.ObjectMetadata, shard *domain.ShardMetadata, mode placement.Mode) (*domain.Layout, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var layout *domain.Layout
	err := s.withStrategy(pool, "place", func(st placement.Strategy) error {
		key := layoutKey{
			pool:          pool,
			version:       st.Map().Version(),
			oid:           md.ID,
			class:         md.Class,
			mode:          mode,
			layoutVersion: md.LayoutVersion,
			pda:           md.PDA,
			group:         -1,
		}
		if shard != nil {
			key.group = int64(shard.GroupIndex)
		}

		if s.layouts != nil {
			if cached, ok := s.layouts.Get(key); ok {
				s.metrics.CacheHits.Inc()
				layout = cached.Clone()
				return nil
			}
			s.metrics.CacheMisses.Inc()
		}

		computed, err := st.Place(md, shard, mode)
		if err != nil {
			return err
		}
		s.metrics.LayoutShards.Observe(float64(len(computed.Shards)))
		if s.layouts != nil {
			s.layouts.Add(key, computed.Clone())
		}
		layout = computed
		return nil
	})
	return layout, err
}

// FindRebuild lists the rebuild work of an object up to version.
func (s *PlacementService) FindRebuild(ctx context.Context, pool uuid.UUID, md domain.ObjectMetadata, shard *domain.ShardMetadata, version uint32, capacity int) ([]domain.WorkItem, error) {
	return s.find(ctx, pool, "rebuild", func(st placement.Strategy) ([]domain.WorkItem, error) {
		return st.FindRebuild(md, shard, version, capacity)
	})
}

// FindReintegration lists the shards moving back onto reintegrated targets.
func (s *PlacementService) FindReintegration(ctx context.Context, pool uuid.UUID, md domain.ObjectMetadata, shard *domain.ShardMetadata, version uint32, capacity int) ([]domain.WorkItem, error) {
	return s.find(ctx, pool, "reintegration", func(st placement.Strategy) ([]domain.WorkItem, error) {
		return st.FindReintegration(md, shard, version, capacity)
	})
}

// FindAddition lists the shards moving onto newly added targets.
func (s *PlacementService) FindAddition(ctx context.Context, pool uuid.UUID, md domain.ObjectMetadata, shard *domain.ShardMetadata, version uint32, capacity int) ([]domain.WorkItem, error) {
	return s.find(ctx, pool, "addition", func(st placement.Strategy) ([]domain.WorkItem, error) {
		return st.FindAddition(md, shard, version, capacity)
	})
}

func (s *PlacementService) find(ctx context.Context, pool uuid.UUID, op string, fn func(placement.Strategy) ([]domain.WorkItem, error)) ([]domain.WorkItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var items []domain.WorkItem
	err := s.withStrategy(pool, op, func(st placement.Strategy) error {
		var err error
		items, err = fn(st)
		return err
	})
	return items, err
}

// ScanResult is the rebuild work of one object.
type ScanResult struct {
	Object domain.ObjectID   `json:"object"`
	Class  string            `json:"class"`
	Items  []domain.WorkItem `json:"items,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// ScanReport summarises a Scan.
type ScanReport struct {
	Pool           uuid.UUID    `json:"pool"`
	MapVersion     uint32       `json:"map_version"`
	RebuildVersion uint32       `json:"rebuild_version"`
	Items          int          `json:"items"`
	Failed         int          `json:"failed"`
	Objects        []ScanResult `json:"objects"`
	// Sink is where the report was stored; empty until StoreReport.
	Sink *objectstore.StoredDocument `json:"sink,omitempty"`
}

// Clean reports whether the scan found neither work nor failures.
func (r *ScanReport) Clean() bool {
	return r.Items == 0 && r.Failed == 0
}

// Scan computes the rebuild work of every object against one snapshot of
// pool. Objects are computed concurrently; progress is called once per
// object, in input order, from a single goroutine. Per-object errors are
// recorded in the report; a cancelled ctx stops the scan.
func (s *PlacementService) Scan(ctx context.Context, pool uuid.UUID, objects []domain.ObjectMetadata, version uint32, capacity int, progress func(ScanResult)) (*ScanReport, error) {
	h, err := s.cache.Acquire(pool)
	if err != nil {
		s.metrics.Observe("scan", err)
		return nil, err
	}
	defer h.Release()
	st := h.Strategy()

	results := make([]ScanResult, len(objects))
	done := make([]chan struct{}, len(objects))
	for i := range done {
		done[i] = make(chan struct{})
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < s.opts.ScanWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				md := objects[i]
				items, err := st.FindRebuild(md, nil, version, capacity)
				s.metrics.Observe("rebuild", err)
				results[i] = ScanResult{Object: md.ID, Class: md.Class, Items: items}
				if err != nil {
					results[i].Error = err.Error()
				}
				close(done[i])
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := range objects {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	report := &ScanReport{Pool: pool, MapVersion: h.Version(), RebuildVersion: version}
	var scanErr error
	for i := range objects {
		if scanErr = ctx.Err(); scanErr != nil {
			break
		}
		select {
		case <-done[i]:
		case <-ctx.Done():
			scanErr = ctx.Err()
		}
		if scanErr != nil {
			break
		}
		r := results[i]
		report.Objects = append(report.Objects, r)
		report.Items += len(r.Items)
		if r.Error != "" {
			report.Failed++
		}
		if progress != nil {
			progress(r)
		}
	}
	wg.Wait()

	s.metrics.Observe("scan", scanErr)
	if scanErr != nil {
		return report, scanErr
	}
	s.log.Infof("scanned %d objects of pool %s: %d moves, %d failures", len(objects), pool, report.Items, report.Failed)
	return report, nil
}

// LoadObjects reads a YAML list of object metadata.
func (s *PlacementService) LoadObjects(ctx context.Context, uri string) ([]domain.ObjectMetadata, error) {
	data, err := s.docs.Fetch(ctx, uri)
	if err != nil {
		return nil, err
	}
	var objects []domain.ObjectMetadata
	if err := yaml.Unmarshal(data, &objects); err != nil {
		return nil, fmt.Errorf("object list %s: %w", uri, err)
	}
	return objects, nil
}

// StoreReport writes report as JSON to uri and records the destination in
// the report.
func (s *PlacementService) StoreReport(ctx context.Context, uri string, report *ScanReport) (objectstore.StoredDocument, error) {
	sink, err := s.docs.Locate(ctx, uri)
	if err != nil {
		return objectstore.StoredDocument{}, err
	}
	report.Sink = &sink

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return objectstore.StoredDocument{}, err
	}
	stored, err := s.docs.Store(ctx, uri, data)
	if err != nil {
		return objectstore.StoredDocument{}, err
	}
	s.log.Infof("scan report of pool %s stored on %s %s", report.Pool, stored.Storage, stored.Location)
	return stored, nil
}

// DeleteReport removes a previously stored report. A missing report is not
// an error.
func (s *PlacementService) DeleteReport(ctx context.Context, uri string) error {
	sink, err := s.docs.Locate(ctx, uri)
	if err != nil {
		return err
	}
	if err := s.docs.Delete(ctx, uri); err != nil {
		return err
	}
	s.log.Infof("removed stale scan report %s from %s", sink.Location, sink.Storage)
	return nil
}
