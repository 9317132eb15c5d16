package router

import "container/ring"

// diagRing is a small bounded history of recent contact installations for
// operator visibility, adapted from the bounded-ring bookkeeping in
// miner/unconfirmed.go (there: recently mined blocks awaiting canonical
// confirmation; here: recently installed contact edges). Callers must
// hold MemoryRouter's mutex, since diagRing has no lock of its own.
type diagRing struct {
	depth int
	r     *ring.Ring
	n     int
}

func newDiagRing(depth int) *diagRing {
	return &diagRing{depth: depth}
}

func (d *diagRing) record(entry string) {
	item := ring.New(1)
	item.Value = entry
	if d.r == nil {
		d.r = item
		d.n = 1
		return
	}
	d.r.Move(-1).Link(item)
	d.n++
	for d.n > d.depth {
		oldest := d.r
		d.r = d.r.Move(1)
		oldest.Prev().Unlink(1)
		d.n--
	}
}

// snapshot returns entries oldest-to-newest.
func (d *diagRing) snapshot() []string {
	if d.r == nil {
		return nil
	}
	out := make([]string, 0, d.n)
	d.r.Do(func(v interface{}) {
		if v != nil {
			out = append(out, v.(string))
		}
	})
	return out
}
