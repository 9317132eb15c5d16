package engine

import (
	"context"
	"errors"
	"time"

	"github.com/samograsic/ion-dtn-dtnex/internal/transport"
)

// Run drives the engine's two tasks: a timer task calling
// OriginateBroadcast on every update_interval tick, and an inbound task
// blocking on transport.Receive and running HandleInbound+forward
// synchronously per bundle. Run blocks until ctx is cancelled or the
// transport closes; it returns the error that ended the inbound task, or
// nil on a clean ctx cancellation.
func (e *Engine) Run(ctx context.Context) error {
	go e.broadcastLoop(ctx)
	return e.inboundLoop(ctx)
}

func (e *Engine) broadcastLoop(ctx context.Context) {
	if err := e.OriginateBroadcast(ctx); err != nil {
		e.log.WithError(err).Warn("initial originate-broadcast failed")
	}

	interval := time.Duration(e.cfg.UpdateInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.OriginateBroadcast(ctx); err != nil {
				e.log.WithError(err).Warn("originate-broadcast failed")
				if isRouterGone(err) {
					// Already reported on e.fatal; stop ticking, the
					// supervisor will tear this engine down.
					return
				}
			}
		}
	}
}

func (e *Engine) inboundLoop(ctx context.Context) error {
	for {
		in, err := e.transport.Receive(ctx)
		if err != nil {
			if errors.Is(err, transport.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			e.log.WithError(err).Warn("transport receive error")
			continue
		}
		if err := e.HandleInbound(ctx, in.Payload); err != nil {
			return err
		}
	}
}
