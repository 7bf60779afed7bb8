package serialmux

import (
	"context"
	"sync/atomic"

	"github.com/banshee-data/tracker/internal/track"
)

// Processor consumes measurement groups. The tracker service implements it.
type Processor interface {
	Process(ctx context.Context, group track.MeasurementGroup) (track.TrackGroup, error)
}

// IngestStats counts what an Ingester has seen.
type IngestStats struct {
	Lines        uint64 `json:"lines"`
	Groups       uint64 `json:"groups"`
	Measurements uint64 `json:"measurements"`
	Rejected     uint64 `json:"rejected"`
}

// Ingester turns serial lines into measurement groups. Consecutive
// measurements with the same timestamp form one group; a blank line or a
// new timestamp closes the group.
type Ingester struct {
	proc Processor

	lines        atomic.Uint64
	groups       atomic.Uint64
	measurements atomic.Uint64
	rejected     atomic.Uint64
}

// NewIngester returns an Ingester feeding proc.
func NewIngester(proc Processor) *Ingester {
	return &Ingester{proc: proc}
}

// Run reads lines until the channel closes or ctx is done. The pending group
// is flushed when the channel closes.
func (in *Ingester) Run(ctx context.Context, lines <-chan string) error {
	var pending track.MeasurementGroup
	flush := func() {
		if len(pending) == 0 {
			return
		}
		group := pending
		pending = nil
		in.groups.Add(1)
		in.measurements.Add(uint64(len(group)))
		if _, err := in.proc.Process(ctx, group); err != nil {
			logf("group at t=%.3f: %v", group[0].Time, err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				flush()
				return nil
			}
			in.lines.Add(1)

			switch ClassifyLine(line) {
			case LineSeparator:
				flush()
				continue
			case LineComment:
				continue
			}

			m, err := ParseMeasurement(line)
			if err != nil {
				in.rejected.Add(1)
				logf("rejected line %q: %v", line, err)
				continue
			}
			if len(pending) > 0 && pending[0].Time != m.Time {
				flush()
			}
			pending = append(pending, m)
		}
	}
}

// Stats returns a snapshot of the counters.
func (in *Ingester) Stats() IngestStats {
	return IngestStats{
		Lines:        in.lines.Load(),
		Groups:       in.groups.Load(),
		Measurements: in.measurements.Load(),
		Rejected:     in.rejected.Load(),
	}
}
