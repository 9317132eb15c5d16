// Package metrics exposes lightweight engine counters via
// github.com/rcrowley/go-metrics, surfaced through periodic log lines
// rather than an HTTP exporter.
package metrics

import gometrics "github.com/rcrowley/go-metrics"

// Counters holds the engine's operational counters. One Counters value is
// created per engine instance so a supervisor restart starts a clean set.
type Counters struct {
	registry gometrics.Registry

	Sent        gometrics.Counter
	Forwarded   gometrics.Counter
	Dropped     gometrics.Counter
	RouterErrors gometrics.Counter
	ReplayHits  gometrics.Counter
}

// New builds a fresh, independently-registered Counters set.
func New() *Counters {
	r := gometrics.NewRegistry()
	c := &Counters{
		registry:     r,
		Sent:         gometrics.NewCounter(),
		Forwarded:    gometrics.NewCounter(),
		Dropped:      gometrics.NewCounter(),
		RouterErrors: gometrics.NewCounter(),
		ReplayHits:   gometrics.NewCounter(),
	}
	r.Register("dtnex.sent", c.Sent)
	r.Register("dtnex.forwarded", c.Forwarded)
	r.Register("dtnex.dropped", c.Dropped)
	r.Register("dtnex.router_errors", c.RouterErrors)
	r.Register("dtnex.replay_hits", c.ReplayHits)
	return c
}

// Snapshot is a point-in-time read of every counter, convenient for
// logging or the supervisor's health snapshot.
type Snapshot struct {
	Sent, Forwarded, Dropped, RouterErrors, ReplayHits int64
}

func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Sent:         c.Sent.Count(),
		Forwarded:    c.Forwarded.Count(),
		Dropped:      c.Dropped.Count(),
		RouterErrors: c.RouterErrors.Count(),
		ReplayHits:   c.ReplayHits.Count(),
	}
}
