// Package engine implements the authenticated epidemic protocol engine:
// originate-broadcast, handle-inbound, and forward, wired to the router,
// transport, replay cache and metadata store. Grounded on
// p2p/discover/udp.go's loop()/readLoop() split: one task owns timing,
// one task owns the blocking receive, and both drive handlers that are
// otherwise plain synchronous functions.
package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/samograsic/ion-dtn-dtnex/internal/config"
	"github.com/samograsic/ion-dtn-dtnex/internal/metastore"
	"github.com/samograsic/ion-dtn-dtnex/internal/metrics"
	"github.com/samograsic/ion-dtn-dtnex/internal/replay"
	"github.com/samograsic/ion-dtn-dtnex/internal/router"
	"github.com/samograsic/ion-dtn-dtnex/internal/transport"
	"github.com/samograsic/ion-dtn-dtnex/internal/wireproto"
)

// Clock is the time source the engine uses for message timestamps; tests
// substitute a fixed clock to pin down expiry-boundary behavior.
// Production uses time.Now.
type Clock func() time.Time

// Engine holds the replay cache, metadata store, and adapters explicitly
// instead of behind module-level singletons, so a supervisor restart is
// just discarding one Engine value and constructing another.
type Engine struct {
	cfg       config.Config
	router    router.Adapter
	transport transport.Adapter
	replayC   *replay.Cache
	meta      *metastore.Store
	counters  *metrics.Counters
	log       logrus.FieldLogger
	clock     Clock
	decodeOpt wireproto.DecodeOptions

	fatal chan error
}

// Options carries the few constructor knobs tests need beyond Config.
type Options struct {
	Clock              Clock
	ReplayCapacity     int
	CompatLegacyMeta   bool
	Logger             logrus.FieldLogger
}

// New builds an Engine. If cfg.HasLocalMetadata(), the local descriptor is
// seeded into the metadata store under the router's local node id.
func New(cfg config.Config, r router.Adapter, tp transport.Adapter, opts Options) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	replayC, err := replay.New(opts.ReplayCapacity)
	if err != nil {
		return nil, err
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	e := &Engine{
		cfg:       cfg,
		router:    r,
		transport: tp,
		replayC:   replayC,
		meta:      metastore.New(),
		counters:  metrics.New(),
		log:       log,
		clock:     clock,
		decodeOpt: wireproto.DecodeOptions{CompatLegacyMetadata: opts.CompatLegacyMeta},
		fatal:     make(chan error, 1),
	}

	if cfg.HasLocalMetadata() {
		e.meta.Put(e.localMetadataRecord())
	}

	return e, nil
}

func (e *Engine) localMetadataRecord() wireproto.MetadataPayload {
	m := wireproto.MetadataPayload{
		NodeID:  e.router.LocalNodeID(),
		Name:    e.cfg.LocalMetadataName,
		Contact: e.cfg.LocalMetadataContact,
	}
	if e.cfg.HasGPS() {
		m.HasGPS = true
		m.LatMicro = int32(*e.cfg.LocalGPSLat * 1e6)
		m.LonMicro = int32(*e.cfg.LocalGPSLon * 1e6)
	}
	return m
}

// Metadata returns the engine's metadata store, for diagnostics and tests.
func (e *Engine) Metadata() *metastore.Store { return e.meta }

// Counters returns the engine's operational counters.
func (e *Engine) Counters() *metrics.Counters { return e.counters }

// Fatal delivers RouterGone escalations to whatever owns the engine's
// lifecycle (the supervisor in production, a test in isolation). It is
// buffered by one: the engine only needs to signal that *a* fatal
// condition occurred, not queue every occurrence.
func (e *Engine) Fatal() <-chan error { return e.fatal }

func (e *Engine) reportFatal(err error) {
	select {
	case e.fatal <- err:
	default:
	}
}

// bundleTTL returns the configured bundle TTL as a duration.
func (e *Engine) bundleTTL() time.Duration {
	return time.Duration(e.cfg.BundleTTL) * time.Second
}

// serviceNumber is the configured DTNEX service, defaulting to 12160.
func (e *Engine) serviceNumber() int {
	if e.cfg.ServiceNumber == 0 {
		return config.ServiceDTNEX
	}
	return e.cfg.ServiceNumber
}

var errRouterGone = router.ErrRouterGone

func isRouterGone(err error) bool {
	return errors.Is(err, errRouterGone)
}
