package engine

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samograsic/ion-dtn-dtnex/internal/config"
	"github.com/samograsic/ion-dtn-dtnex/internal/wireproto"
)

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(noopWriter{})
	return l
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }

func fixedClockAt(unix int64) Clock {
	return func() time.Time { return time.Unix(unix, 0) }
}

func newTestEngine(t *testing.T, local uint64, neighbors []uint64, now int64) (*Engine, *fakeRouter, *fakeTransport) {
	t.Helper()
	cfg := config.Default()
	cfg.ContactLifetime = 3600
	cfg.UpdateInterval = 600

	r := newFakeRouter(local, neighbors)
	tp := newFakeTransport()

	e, err := New(cfg, r, tp, Options{Clock: fixedClockAt(now), Logger: testLogger()})
	require.NoError(t, err)
	return e, r, tp
}

// TestOriginateBroadcastFanOut checks that the originate broadcast tells
// every neighbor about every neighbor, including itself.
func TestOriginateBroadcastFanOut(t *testing.T) {
	e, _, tp := newTestEngine(t, 268484800, []uint64{268484801, 268484802}, 1000)

	require.NoError(t, e.OriginateBroadcast(context.Background()))

	to801 := tp.sentTo(268484801)
	to802 := tp.sentTo(268484802)
	require.Len(t, to801, 2)
	require.Len(t, to802, 2)

	seenB := map[uint64]bool{}
	for _, m := range to801 {
		env, err := wireproto.Decode(m.payload, wireproto.DecodeOptions{})
		require.NoError(t, err)
		assert.Equal(t, wireproto.TypeContact, env.Type)
		assert.Equal(t, uint64(268484800), env.Origin)
		assert.Equal(t, uint64(268484800), env.From)
		assert.Equal(t, int64(1000), env.Timestamp)
		assert.Equal(t, int64(1000+3600), env.ExpireTime)
		c := env.Payload.(wireproto.ContactPayload)
		assert.Equal(t, uint16(60), c.DurationMinutes)
		assert.True(t, wireproto.Verify(m.payload, []byte("open")))
		seenB[c.NodeB] = true
	}
	assert.True(t, seenB[268484801] && seenB[268484802], "each neighbor must hear about both neighbors as potential contacts")
}

func buildContactEnvelope(t *testing.T, origin, from uint64, nonce wireproto.Nonce, nodeA, nodeB uint64, durationMin uint16, ts, expire int64, key string) []byte {
	t.Helper()
	fields := wireproto.NewOriginEnvelope(wireproto.TypeContact, ts, expire, origin, nonce, nil)
	fields.From = from
	b, err := wireproto.EncodeContact(fields, wireproto.ContactPayload{NodeA: nodeA, NodeB: nodeB, DurationMinutes: durationMin}, []byte(key))
	require.NoError(t, err)
	return b
}

// TestHandleInboundInstallsBothDirections checks that a Contact payload
// installs edges in both directions.
func TestHandleInboundInstallsBothDirections(t *testing.T) {
	e, r, _ := newTestEngine(t, 1, nil, 100)
	nonce := wireproto.Nonce{0xA1, 0xB2, 0xC3}
	b := buildContactEnvelope(t, 268484900, 268484900, nonce, 268484900, 268484901, 60, 100, 100+3600, "open")

	require.NoError(t, e.HandleInbound(context.Background(), b))

	require.Len(t, r.contactCalls, 2)
	require.Len(t, r.rangeCalls, 2)
	assert.Equal(t, contactCall{time.Unix(100, 0), time.Unix(100+3600, 0), 268484900, 268484901}, r.contactCalls[0])
	assert.Equal(t, contactCall{time.Unix(100, 0), time.Unix(100+3600, 0), 268484901, 268484900}, r.contactCalls[1])
}

// TestHandleInboundDropsReplay checks that redelivering the same
// (origin, nonce) produces no additional router calls.
func TestHandleInboundDropsReplay(t *testing.T) {
	e, r, _ := newTestEngine(t, 1, nil, 100)
	nonce := wireproto.Nonce{0xA1, 0xB2, 0xC3}
	b := buildContactEnvelope(t, 268484900, 268484900, nonce, 268484900, 268484901, 60, 100, 100+3600, "open")

	require.NoError(t, e.HandleInbound(context.Background(), b))
	require.NoError(t, e.HandleInbound(context.Background(), b))

	assert.Len(t, r.contactCalls, 2, "the redelivery must produce no additional router calls")
	assert.Equal(t, int64(1), e.counters.ReplayHits.Count())
}

// TestHandleInboundDropsTamperedMAC checks that a bit flip inside the
// MAC-covered range fails verification and is dropped before any router
// call.
func TestHandleInboundDropsTamperedMAC(t *testing.T) {
	e, r, _ := newTestEngine(t, 1, nil, 100)
	nonce := wireproto.Nonce{0xA1, 0xB2, 0xC3}
	b := buildContactEnvelope(t, 268484900, 268484900, nonce, 268484900, 268484901, 60, 100, 100+3600, "open")
	b[10] ^= 0x01

	require.NoError(t, e.HandleInbound(context.Background(), b))
	assert.Empty(t, r.contactCalls)
	assert.Empty(t, r.rangeCalls)
}

// TestForwardExcludesOriginFromAndLocal: neighbors={900,901,902}, envelope
// arrives with origin=from=900. The filter excludes only origin, from,
// and local_id (850); 901 is node_b of the payload but still a neighbor
// distinct from origin/from/local, so it must receive the forward too.
func TestForwardExcludesOriginFromAndLocal(t *testing.T) {
	e, _, tp := newTestEngine(t, 268484850, []uint64{268484900, 268484901, 268484902}, 100)
	nonce := wireproto.Nonce{0xA1, 0xB2, 0xC3}
	b := buildContactEnvelope(t, 268484900, 268484900, nonce, 268484900, 268484901, 60, 100, 100+3600, "open")

	require.NoError(t, e.HandleInbound(context.Background(), b))

	assert.Empty(t, tp.sentTo(268484900), "origin/from (268484900) must never receive the forward")

	for _, dst := range []uint64{268484901, 268484902} {
		msgs := tp.sentTo(dst)
		require.Len(t, msgs, 1)
		env, err := wireproto.Decode(msgs[0].payload, wireproto.DecodeOptions{})
		require.NoError(t, err)
		assert.Equal(t, uint64(268484900), env.Origin)
		assert.Equal(t, nonce, env.Nonce())
		assert.Equal(t, uint64(268484850), env.From)
	}
}

// TestForwardFilterCount checks that forward produces exactly
// |N \ {origin, from, local}| messages.
func TestForwardFilterCount(t *testing.T) {
	e, _, tp := newTestEngine(t, 1, []uint64{2, 3, 4, 5}, 100)
	nonce := wireproto.Nonce{1, 1, 1}
	b := buildContactEnvelope(t, 2, 3, nonce, 10, 11, 60, 100, 100+3600, "open")

	require.NoError(t, e.HandleInbound(context.Background(), b))

	var total int
	for _, n := range []uint64{2, 3, 4, 5} {
		total += len(tp.sentTo(n))
	}
	assert.Equal(t, 2, total, "neighbors {4,5}: |N \\ {origin=2, from=3, local=1}| == 2")
}

// TestHandleInboundMetadataGPS checks a GPS-bearing Metadata payload
// round-trips through HandleInbound into the metadata store.
func TestHandleInboundMetadataGPS(t *testing.T) {
	e, _, _ := newTestEngine(t, 1, nil, 100)
	nonce := wireproto.Nonce{1, 2, 3}
	fields := wireproto.NewOriginEnvelope(wireproto.TypeMetadata, 100, 100+3600, 268484800, nonce, nil)
	m := wireproto.MetadataPayload{NodeID: 268484800, Name: "Gateway", Contact: "ops@x", HasGPS: true, LatMicro: 59334591, LonMicro: 18063240}
	b, err := wireproto.EncodeMetadata(fields, m, []byte("open"))
	require.NoError(t, err)

	require.NoError(t, e.HandleInbound(context.Background(), b))

	got, ok := e.Metadata().Get(268484800)
	require.True(t, ok)
	assert.InDelta(t, 59.334591, got.LatitudeDegrees(), 1e-9)
	assert.InDelta(t, 18.063240, got.LongitudeDegrees(), 1e-9)
}

// TestExpiryBoundary checks the expiry acceptance boundary: a message is
// well-formed as long as now <= expire_time, so expire_time == now is
// still accepted and only expire_time < now is discarded (see DESIGN.md
// for why this boundary was chosen over the alternative reading).
func TestExpiryBoundary(t *testing.T) {
	nonce := wireproto.Nonce{1, 2, 3}

	e, r, _ := newTestEngine(t, 1, nil, 100)
	atExpiry := buildContactEnvelope(t, 2, 2, nonce, 10, 11, 60, 0, 100, "open")
	require.NoError(t, e.HandleInbound(context.Background(), atExpiry))
	assert.NotEmpty(t, r.contactCalls, "expire_time == now is still well-formed (now <= expire_time)")

	e2, r2, _ := newTestEngine(t, 1, nil, 100)
	alreadyExpired := buildContactEnvelope(t, 2, 2, nonce, 10, 11, 60, 0, 99, "open")
	require.NoError(t, e2.HandleInbound(context.Background(), alreadyExpired))
	assert.Empty(t, r2.contactCalls, "expire_time == now - 1 must be discarded")
}

// SelfOrigin: the node must never process a copy of its own message past
// the self-origin check.
func TestHandleInboundDropsSelfOrigin(t *testing.T) {
	e, r, tp := newTestEngine(t, 268484800, []uint64{268484801}, 100)
	nonce := wireproto.Nonce{9, 9, 9}
	b := buildContactEnvelope(t, 268484800, 268484801, nonce, 10, 11, 60, 100, 100+3600, "open")

	require.NoError(t, e.HandleInbound(context.Background(), b))
	assert.Empty(t, r.contactCalls)
	assert.Empty(t, tp.sentTo(268484801))
}

// TestHandleInboundEscalatesRouterGone checks that a RouterGone failure
// from the router adapter escalates to Fatal() and returns an error.
func TestHandleInboundEscalatesRouterGone(t *testing.T) {
	e, r, _ := newTestEngine(t, 1, nil, 100)
	r.available = false
	nonce := wireproto.Nonce{1, 2, 3}
	b := buildContactEnvelope(t, 2, 2, nonce, 10, 11, 60, 100, 100+3600, "open")

	err := e.HandleInbound(context.Background(), b)
	assert.ErrorIs(t, err, errRouterGone)

	select {
	case got := <-e.Fatal():
		assert.ErrorIs(t, got, errRouterGone)
	default:
		t.Fatal("expected a fatal signal on RouterGone")
	}
}
