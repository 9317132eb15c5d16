package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/samograsic/ion-dtn-dtnex/internal/engine"
	"github.com/samograsic/ion-dtn-dtnex/internal/metrics"
	"github.com/samograsic/ion-dtn-dtnex/internal/transport"
)

// RetryConnected and RetryDisconnected are the two retry cadences: 10s
// while the router's process is still believed to exist, 300s once it
// isn't.
const (
	RetryConnected    = 10 * time.Second
	RetryDisconnected = 300 * time.Second
)

// Build constructs one engine + its transport from scratch. A supervisor
// restart calls Build again; the prior Engine value and transport are
// simply discarded, so a restart is dropping that value and
// reconstructing it rather than re-executing the process.
type Build func(ctx context.Context) (*engine.Engine, transport.Adapter, error)

// RouterProcessCheck reports whether the external router's process still
// exists. This is an implementation detail of whatever router adapter is
// in use, not something the supervisor itself can determine; a nil check
// is treated as "always true" (RetryConnected cadence throughout).
type RouterProcessCheck func() bool

// Supervisor owns the Disconnected -> Connecting -> Connected ->
// Disconnected -> ... state machine and the ShuttingDown terminal state.
type Supervisor struct {
	build      Build
	routerUp   RouterProcessCheck
	log        logrus.FieldLogger

	mu            sync.Mutex
	state         State
	lastConnected time.Time
	restarts      int
	counters      *metrics.Counters
}

// New builds a Supervisor. log may be nil (defaults to the standard
// logger); routerUp may be nil (defaults to always-true).
func New(build Build, routerUp RouterProcessCheck, log logrus.FieldLogger) *Supervisor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Supervisor{
		build:    build,
		routerUp: routerUp,
		log:      log,
		state:    Disconnected,
	}
}

func (s *Supervisor) setState(v State) {
	s.mu.Lock()
	s.state = v
	s.mu.Unlock()
}

// Health returns a snapshot suitable for periodic logging.
func (s *Supervisor) Health() Health {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := Health{State: s.state, LastConnected: s.lastConnected, RestartCount: s.restarts}
	if s.counters != nil {
		h.Counters = s.counters.Snapshot()
	}
	return h
}

func (s *Supervisor) retryCadence() time.Duration {
	if s.routerUp == nil || s.routerUp() {
		return RetryConnected
	}
	return RetryDisconnected
}

// Run drives the state machine until ctx is cancelled (graceful shutdown
// on a termination signal), at which point it moves to ShuttingDown,
// closes the transport, and returns nil.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			s.setState(ShuttingDown)
			return nil
		}

		s.setState(Connecting)
		eng, tp, err := s.build(ctx)
		if err != nil {
			s.log.WithError(err).Warn("connect failed, retrying")
			if !s.sleep(ctx, s.retryCadence()) {
				s.setState(ShuttingDown)
				return nil
			}
			continue
		}

		s.mu.Lock()
		s.state = Connected
		s.lastConnected = time.Now()
		s.counters = eng.Counters()
		s.mu.Unlock()
		s.log.Info("connected, engine running")

		if err := s.runOnce(ctx, eng, tp); err != nil {
			s.log.WithError(err).Warn("engine run ended, restarting")
		}

		if ctx.Err() != nil {
			s.setState(ShuttingDown)
			return nil
		}

		s.mu.Lock()
		s.restarts++
		s.mu.Unlock()
		s.setState(Disconnected)
	}
}

// runOnce runs one engine instance to completion: either ctx is
// cancelled, the engine's inbound task exits (transport closed or a
// decode-path RouterGone), or the engine reports a fatal condition from
// its broadcast task. Either fatal path tears the transport down so the
// inbound task unblocks and the engine can be rebuilt from scratch.
func (s *Supervisor) runOnce(ctx context.Context, eng *engine.Engine, tp transport.Adapter) error {
	runErr := make(chan error, 1)
	go func() { runErr <- eng.Run(ctx) }()

	select {
	case <-ctx.Done():
		tp.Close()
		<-runErr
		return nil
	case err := <-runErr:
		tp.Close()
		return err
	case ferr := <-eng.Fatal():
		tp.Close()
		<-runErr
		return ferr
	}
}

// sleep waits for d or ctx cancellation, returning false if ctx ended the
// wait.
func (s *Supervisor) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
