package engine

import (
	"context"
	"sync"
	"time"

	"github.com/samograsic/ion-dtn-dtnex/internal/router"
	"github.com/samograsic/ion-dtn-dtnex/internal/transport"
)

// fakeRouter is a minimal router.Adapter recording every insertion call,
// used so engine tests can assert on exactly what the protocol engine
// asked the router to do without a real ION-DTN-class backend.
type fakeRouter struct {
	mu        sync.Mutex
	local     uint64
	neighbors []uint64
	available bool

	contactCalls []contactCall
	rangeCalls   []rangeCall
}

type contactCall struct {
	fromTime, toTime time.Time
	src, dst         uint64
}

type rangeCall struct {
	fromTime, toTime time.Time
	src, dst         uint64
}

func newFakeRouter(local uint64, neighbors []uint64) *fakeRouter {
	return &fakeRouter{local: local, neighbors: neighbors, available: true}
}

func (f *fakeRouter) LocalNodeID() uint64 { return f.local }

func (f *fakeRouter) Neighbors(ctx context.Context) ([]router.Plan, error) {
	if !f.available {
		return nil, router.ErrRouterGone
	}
	plans := make([]router.Plan, len(f.neighbors))
	for i, n := range f.neighbors {
		plans[i] = router.Plan{Neighbor: n, ObservedAt: time.Now()}
	}
	return plans, nil
}

func (f *fakeRouter) InsertContact(ctx context.Context, region int, fromTime, toTime time.Time, src, dst uint64, xmitRate int, confidence float64) (router.InsertResult, error) {
	if !f.available {
		return router.InsertResult(0), router.ErrRouterGone
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contactCalls = append(f.contactCalls, contactCall{fromTime, toTime, src, dst})
	return router.InsertOK, nil
}

func (f *fakeRouter) InsertRange(ctx context.Context, fromTime, toTime time.Time, src, dst uint64, owlt time.Duration) (router.InsertResult, error) {
	if !f.available {
		return router.InsertResult(0), router.ErrRouterGone
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rangeCalls = append(f.rangeCalls, rangeCall{fromTime, toTime, src, dst})
	return router.InsertOK, nil
}

func (f *fakeRouter) IsAvailable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.available
}

func (f *fakeRouter) ListContacts(ctx context.Context) ([]router.ContactRecord, error) {
	return nil, nil
}

// fakeTransport records every Send call; Receive is unused by these tests
// since they call HandleInbound/OriginateBroadcast directly rather than
// running Engine.Run's loops.
type fakeTransport struct {
	mu   sync.Mutex
	sent []sentMessage
}

type sentMessage struct {
	dst     transport.Endpoint
	payload []byte
}

func newFakeTransport() *fakeTransport { return &fakeTransport{} }

func (f *fakeTransport) Send(ctx context.Context, dst transport.Endpoint, payload []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := append([]byte(nil), payload...)
	f.sent = append(f.sent, sentMessage{dst: dst, payload: cp})
	return nil
}

func (f *fakeTransport) Receive(ctx context.Context) (transport.Inbound, error) {
	<-ctx.Done()
	return transport.Inbound{}, ctx.Err()
}

func (f *fakeTransport) Close() error { return nil }

func (f *fakeTransport) sentTo(node uint64) []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentMessage
	for _, m := range f.sent {
		if m.dst.Node == node {
			out = append(out, m)
		}
	}
	return out
}
