package engine

import (
	"context"

	"github.com/samograsic/ion-dtn-dtnex/internal/wireproto"
)

// forward re-emits env to every neighbor except its origin, its
// immediate sender, and the local node, with from rewritten to the local
// id and the MAC recomputed. raw is not used; the re-encode always starts
// from the decoded Envelope so the nonce can never be touched.
func (e *Engine) forward(ctx context.Context, env wireproto.Envelope, raw []byte) error {
	local := e.router.LocalNodeID()
	plans, err := e.router.Neighbors(ctx)
	if err != nil {
		e.counters.RouterErrors.Inc(1)
		if isRouterGone(err) {
			e.reportFatal(err)
			return err
		}
		e.log.WithError(err).Warn("neighbor snapshot unavailable, forward skipped this round")
		return nil
	}

	fwd := wireproto.Forward(env, local)
	var encoded []byte

	for _, p := range plans {
		n := p.Neighbor
		if n == env.Origin || n == env.From || n == local {
			continue
		}
		if encoded == nil {
			encoded, err = wireproto.Encode(fwd, []byte(e.cfg.SharedKey))
			if err != nil {
				e.log.WithError(err).Warn("re-encode for forward failed")
				return nil
			}
		}
		if e.send(ctx, n, encoded) {
			e.counters.Forwarded.Inc(1)
		}
	}
	return nil
}
