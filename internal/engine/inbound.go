package engine

import (
	"context"
	"time"

	"github.com/samograsic/ion-dtn-dtnex/internal/router"
	"github.com/samograsic/ion-dtn-dtnex/internal/wireproto"
)

// HandleInbound processes one inbound envelope: decode, expiry check, MAC
// verification, replay check, self-origin check, dispatch, then forward.
// Every rejection up through the self-origin check is silent (no error
// bubbles up for a malformed, expired, unauthenticated, replayed, or
// self-originated message); HandleInbound returns nil for all of them,
// reserving a non-nil return for RouterGone escalation.
func (e *Engine) HandleInbound(ctx context.Context, raw []byte) error {
	env, err := wireproto.Decode(raw, e.decodeOpt)
	if err != nil {
		e.counters.Dropped.Inc(1)
		e.log.WithError(err).Debug("dropped: malformed")
		return nil
	}

	now := e.clock().Unix()
	if now > env.ExpireTime {
		e.counters.Dropped.Inc(1)
		e.log.Debug("dropped: expired")
		return nil
	}

	if !wireproto.Verify(raw, []byte(e.cfg.SharedKey)) {
		e.counters.Dropped.Inc(1)
		e.log.Debug("dropped: auth failed")
		return nil
	}

	if e.replayC.Contains(env.Origin, env.Nonce()) {
		e.counters.Dropped.Inc(1)
		e.counters.ReplayHits.Inc(1)
		e.log.Debug("dropped: replay")
		return nil
	}
	e.replayC.Insert(env.Origin, env.Nonce())

	local := e.router.LocalNodeID()
	if env.Origin == local {
		e.counters.Dropped.Inc(1)
		e.log.Debug("dropped: self origin")
		return nil
	}

	switch p := env.Payload.(type) {
	case wireproto.ContactPayload:
		if err := e.installContact(ctx, env, p); err != nil {
			return err
		}
	case wireproto.MetadataPayload:
		e.meta.Put(p)
	}

	return e.forward(ctx, env, raw)
}

// installContact installs a Contact payload in both directions: two
// InsertContact calls and two InsertRange calls. A transient failure
// (anything but ErrRouterGone) is logged and does not abort the
// remaining calls or the subsequent forward; RouterGone is escalated
// immediately.
func (e *Engine) installContact(ctx context.Context, env wireproto.Envelope, c wireproto.ContactPayload) error {
	fromTime := time.Unix(env.Timestamp, 0)
	toTime := fromTime.Add(time.Duration(c.DurationMinutes) * time.Minute)

	pairs := [2][2]uint64{{c.NodeA, c.NodeB}, {c.NodeB, c.NodeA}}
	for _, pair := range pairs {
		src, dst := pair[0], pair[1]
		res, err := e.router.InsertContact(ctx, router.Region, fromTime, toTime, src, dst, router.XmitRateBytesPS, router.Confidence)
		if err != nil {
			if isRouterGone(err) {
				e.reportFatal(err)
				return err
			}
			e.counters.RouterErrors.Inc(1)
			e.log.WithError(err).WithField("edge", [2]uint64{src, dst}).Warn("router transient error inserting contact")
		} else if res != router.InsertOK {
			e.log.WithField("edge", [2]uint64{src, dst}).WithField("result", res.String()).Debug("contact insert idempotent")
		}

		rres, err := e.router.InsertRange(ctx, fromTime, toTime, src, dst, router.DefaultOWLT)
		if err != nil {
			if isRouterGone(err) {
				e.reportFatal(err)
				return err
			}
			e.counters.RouterErrors.Inc(1)
			e.log.WithError(err).WithField("edge", [2]uint64{src, dst}).Warn("router transient error inserting range")
		} else if rres != router.InsertOK {
			e.log.WithField("edge", [2]uint64{src, dst}).WithField("result", rres.String()).Debug("range insert idempotent")
		}
	}
	return nil
}
