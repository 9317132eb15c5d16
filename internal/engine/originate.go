package engine

import (
	"context"

	"github.com/samograsic/ion-dtn-dtnex/internal/transport"
	"github.com/samograsic/ion-dtn-dtnex/internal/wireproto"
)

// OriginateBroadcast is the originate-broadcast step: a pairwise Contact
// fan-out seeding every neighbor's one-hop view, followed by an optional
// Metadata fan-out of the local descriptor. Called at engine start and on
// every timer tick (run.go); a neighbor-set change is picked up
// implicitly since every tick re-snapshots the neighbor list from the
// router.
func (e *Engine) OriginateBroadcast(ctx context.Context) error {
	local := e.router.LocalNodeID()
	plans, err := e.router.Neighbors(ctx)
	if err != nil {
		e.counters.RouterErrors.Inc(1)
		if isRouterGone(err) {
			e.reportFatal(err)
		}
		return err
	}

	ids := make([]uint64, len(plans))
	for i, p := range plans {
		ids[i] = p.Neighbor
	}

	now := e.clock().Unix()
	expire := now + int64(e.cfg.ContactLifetime)
	durationMin := uint16(e.cfg.ContactLifetime / 60)

	for _, j := range ids {
		for _, i := range ids {
			e.sendContact(ctx, local, j, i, durationMin, now, expire)
		}
	}

	if e.cfg.HasLocalMetadata() && !e.cfg.DisableMetadataExchange {
		record, ok := e.meta.Get(local)
		if ok {
			for _, j := range ids {
				e.sendMetadata(ctx, local, j, record, now, expire)
			}
		}
	}

	return nil
}

func (e *Engine) sendContact(ctx context.Context, local, dst, nodeB uint64, durationMin uint16, now, expire int64) {
	nonce, err := wireproto.GenerateNonce()
	if err != nil {
		e.log.WithError(err).Warn("nonce generation failed, skipping contact send")
		return
	}
	fields := wireproto.NewOriginEnvelope(wireproto.TypeContact, now, expire, local, nonce, nil)
	contact := wireproto.ContactPayload{NodeA: local, NodeB: nodeB, DurationMinutes: durationMin}
	b, err := wireproto.EncodeContact(fields, contact, []byte(e.cfg.SharedKey))
	if err != nil {
		e.log.WithError(err).Warn("contact envelope too large, skipping")
		return
	}
	e.send(ctx, dst, b)
}

func (e *Engine) sendMetadata(ctx context.Context, local, dst uint64, record wireproto.MetadataPayload, now, expire int64) {
	nonce, err := wireproto.GenerateNonce()
	if err != nil {
		e.log.WithError(err).Warn("nonce generation failed, skipping metadata send")
		return
	}
	fields := wireproto.NewOriginEnvelope(wireproto.TypeMetadata, now, expire, local, nonce, nil)
	b, err := wireproto.EncodeMetadata(fields, record, []byte(e.cfg.SharedKey))
	if err != nil {
		e.log.WithError(err).Warn("metadata envelope too large, skipping")
		return
	}
	e.send(ctx, dst, b)
}

// send is the common tail of every outbound message: a transport send
// failure is logged and skipped, never aborting the surrounding fan-out.
// It reports whether the send succeeded so forward.go can count forwards
// only for destinations actually reached.
func (e *Engine) send(ctx context.Context, dst uint64, b []byte) bool {
	ep := transport.Endpoint{Node: dst, Service: e.serviceNumber()}
	if err := e.transport.Send(ctx, ep, b, e.bundleTTL()); err != nil {
		e.log.WithError(err).WithField("dst", ep.String()).Warn("transport send failed")
		return false
	}
	e.counters.Sent.Inc(1)
	return true
}
