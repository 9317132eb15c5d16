// Package router defines the boundary with the external DTN router, and
// a reference in-memory implementation suitable for a single-process
// ION-DTN-class router binding or for tests. The split mirrors
// p2p/discover/udp.go's *udp/*Table split between a transport-facing
// object and the longer-lived table/db object it drives: here Adapter is
// the interface the engine depends on, and MemoryRouter is one concrete
// implementation of it.
package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// Region, XmitRate, Confidence and OWLT are the fixed parameters used
// for every installed edge.
const (
	Region          = 1
	XmitRateBytesPS = 100000
	Confidence      = 1.0
	DefaultOWLT     = time.Second
)

// NeighborCacheTTL is the caching window for Neighbors(), around 20
// seconds so a router that recomputes its plan lazily isn't hammered on
// every broadcast tick.
const NeighborCacheTTL = 20 * time.Second

// Plan is a read-only neighbor snapshot.
type Plan struct {
	Neighbor   uint64
	ObservedAt time.Time
}

// InsertResult is the three-way outcome of an edge insertion.
type InsertResult int

const (
	InsertOK InsertResult = iota
	InsertAlreadyExists
	InsertDuplicate
)

func (r InsertResult) String() string {
	switch r {
	case InsertOK:
		return "ok"
	case InsertAlreadyExists:
		return "already_exists"
	case InsertDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// ErrRouterGone signals the router is unreachable or in an invalid
// state; the engine escalates this to the supervisor.
var ErrRouterGone = errors.New("router: unavailable")

// ContactRecord is one entry from ListContacts, used only for diagnostics.
type ContactRecord struct {
	Src, Dst       uint64
	FromTime, ToTime time.Time
}

// Adapter is the six-operation surface the protocol engine depends on.
// Any router exposing this surface is acceptable.
type Adapter interface {
	LocalNodeID() uint64
	Neighbors(ctx context.Context) ([]Plan, error)
	InsertContact(ctx context.Context, region int, fromTime, toTime time.Time, src, dst uint64, xmitRate int, confidence float64) (InsertResult, error)
	InsertRange(ctx context.Context, fromTime, toTime time.Time, src, dst uint64, owlt time.Duration) (InsertResult, error)
	IsAvailable() bool
	ListContacts(ctx context.Context) ([]ContactRecord, error)
}

type contactKey struct{ src, dst uint64 }

type contactEdge struct {
	fromTime, toTime time.Time
	xmitRate          int
	confidence        float64
}

type rangeKey struct{ src, dst uint64 }

type rangeEdge struct {
	fromTime, toTime time.Time
	owlt              time.Duration
}

// MemoryRouter is a reference Adapter backed by in-process maps. It models
// an ION-DTN-class contact/range plan without requiring one to be present,
// and is what cmd/dtnexd runs against until wired to a real router binding.
type MemoryRouter struct {
	mu       sync.Mutex
	localID  uint64
	lookup   func() []uint64
	cache    *gocache.Cache
	contacts map[contactKey]contactEdge
	ranges   map[rangeKey]rangeEdge
	diag     *diagRing
	available bool
	log      logrus.FieldLogger
}

// NewMemoryRouter builds a MemoryRouter reporting localID as its own id
// and calling lookup() to enumerate neighbors (excluding localID) on
// every cache miss.
func NewMemoryRouter(localID uint64, lookup func() []uint64, log logrus.FieldLogger) *MemoryRouter {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &MemoryRouter{
		localID:   localID,
		lookup:    lookup,
		cache:     gocache.New(NeighborCacheTTL, NeighborCacheTTL),
		contacts:  make(map[contactKey]contactEdge),
		ranges:    make(map[rangeKey]rangeEdge),
		diag:      newDiagRing(64),
		available: true,
		log:       log,
	}
}

const neighborsCacheKey = "neighbors"

func (m *MemoryRouter) LocalNodeID() uint64 { return m.localID }

func (m *MemoryRouter) Neighbors(ctx context.Context) ([]Plan, error) {
	if !m.IsAvailable() {
		return nil, ErrRouterGone
	}
	if cached, ok := m.cache.Get(neighborsCacheKey); ok {
		return cached.([]Plan), nil
	}
	ids := m.lookup()
	now := time.Now()
	plans := make([]Plan, 0, len(ids))
	for _, id := range ids {
		if id == m.localID {
			continue
		}
		plans = append(plans, Plan{Neighbor: id, ObservedAt: now})
	}
	m.cache.Set(neighborsCacheKey, plans, gocache.DefaultExpiration)
	return plans, nil
}

// InvalidateNeighborCache forces the next Neighbors call to re-query
// lookup(). The engine does not call it; without it, a neighbor-set
// change shows up once the cached snapshot expires.
func (m *MemoryRouter) InvalidateNeighborCache() {
	m.cache.Delete(neighborsCacheKey)
}

func (m *MemoryRouter) InsertContact(ctx context.Context, region int, fromTime, toTime time.Time, src, dst uint64, xmitRate int, confidence float64) (InsertResult, error) {
	if !m.IsAvailable() {
		return InsertResult(0), ErrRouterGone
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	k := contactKey{src, dst}
	edge := contactEdge{fromTime: fromTime, toTime: toTime, xmitRate: xmitRate, confidence: confidence}
	existing, ok := m.contacts[k]
	m.contacts[k] = edge
	m.diag.record(fmt.Sprintf("contact %d->%d [%s,%s]", src, dst, fromTime.Format(time.RFC3339), toTime.Format(time.RFC3339)))
	if !ok {
		return InsertOK, nil
	}
	if existing == edge {
		return InsertAlreadyExists, nil
	}
	return InsertDuplicate, nil
}

func (m *MemoryRouter) InsertRange(ctx context.Context, fromTime, toTime time.Time, src, dst uint64, owlt time.Duration) (InsertResult, error) {
	if !m.IsAvailable() {
		return InsertResult(0), ErrRouterGone
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	k := rangeKey{src, dst}
	edge := rangeEdge{fromTime: fromTime, toTime: toTime, owlt: owlt}
	existing, ok := m.ranges[k]
	m.ranges[k] = edge
	if !ok {
		return InsertOK, nil
	}
	if existing == edge {
		return InsertAlreadyExists, nil
	}
	return InsertDuplicate, nil
}

func (m *MemoryRouter) IsAvailable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.available
}

// SetAvailable flips the router's liveness, used by tests to simulate
// router loss.
func (m *MemoryRouter) SetAvailable(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.available = v
}

func (m *MemoryRouter) ListContacts(ctx context.Context) ([]ContactRecord, error) {
	if !m.IsAvailable() {
		return nil, ErrRouterGone
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ContactRecord, 0, len(m.contacts))
	for k, e := range m.contacts {
		out = append(out, ContactRecord{Src: k.src, Dst: k.dst, FromTime: e.fromTime, ToTime: e.toTime})
	}
	return out, nil
}

// RecentInstalls returns the diagnostics ring's contents, oldest first;
// surfaced by the operator-facing health log in cmd/dtnexd.
func (m *MemoryRouter) RecentInstalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.diag.snapshot()
}
