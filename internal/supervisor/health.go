package supervisor

import (
	"time"

	"github.com/samograsic/ion-dtn-dtnex/internal/metrics"
)

// Health is a point-in-time snapshot of the supervisor's state, suitable
// for cmd/dtnexd to log periodically.
type Health struct {
	State         State
	LastConnected time.Time
	RestartCount  int
	Counters      metrics.Snapshot
}
