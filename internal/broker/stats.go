package broker

import "sync/atomic"

// Stats is a snapshot of broker link counters
type Stats struct {
	Received  uint64 `json:"received"`
	Malformed uint64 `json:"malformed"`
	Dropped   uint64 `json:"dropped"`
	Ingested  uint64 `json:"ingested"`
	Rejected  uint64 `json:"rejected"`
	Failed    uint64 `json:"failed"`
}

type counters struct {
	received  atomic.Uint64
	malformed atomic.Uint64
	dropped   atomic.Uint64
	ingested  atomic.Uint64
	rejected  atomic.Uint64
	failed    atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Received:  c.received.Load(),
		Malformed: c.malformed.Load(),
		Dropped:   c.dropped.Load(),
		Ingested:  c.ingested.Load(),
		Rejected:  c.rejected.Load(),
		Failed:    c.failed.Load(),
	}
}
