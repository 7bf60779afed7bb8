package simulator

import (
	"context"
	"time"

	"github.com/banshee-data/tracker/internal/timeutil"
	"github.com/banshee-data/tracker/internal/track"
)

// SendFunc delivers one measurement group, typically to the tracker
// service over gRPC.
type SendFunc func(ctx context.Context, group track.MeasurementGroup) error

// StreamConfig controls Stream.
type StreamConfig struct {
	Interval   time.Duration // between successful sends
	RetryDelay time.Duration // after a failed send
	Duration   time.Duration // total run time; zero runs until ctx is done
	Clock      timeutil.Clock
	Record     *CSVWriter // optional; receives every successfully sent sample
}

// DefaultStreamConfig sends every 2 s for two minutes and retries after 5 s.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Interval:   2 * time.Second,
		RetryDelay: 5 * time.Second,
		Duration:   120 * time.Second,
	}
}

// StreamStats summarises a Stream run.
type StreamStats struct {
	Sent   int
	Failed int
}

// Stream samples the targets at the elapsed time since the call and sends
// each group until the configured duration passes or ctx is cancelled.
// Send failures are logged and retried after RetryDelay. Measurement times
// are seconds since the stream started, rounded to milliseconds.
func (s *Simulator) Stream(ctx context.Context, send SendFunc, cfg StreamConfig) (StreamStats, error) {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	var stats StreamStats
	start := clock.Now()
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		elapsed := clock.Now().Sub(start)
		if cfg.Duration > 0 && elapsed >= cfg.Duration {
			logf("stream finished: %d sent, %d failed", stats.Sent, stats.Failed)
			return stats, nil
		}

		samples := s.Step(round(elapsed.Seconds(), measuredDecimals))
		wait := cfg.Interval
		if err := send(ctx, Measurements(samples)); err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			stats.Failed++
			logf("failed to send measurement group, retry in %v: %v", cfg.RetryDelay, err)
			wait = cfg.RetryDelay
		} else {
			stats.Sent++
			if cfg.Record != nil {
				if err := cfg.Record.Write(samples); err != nil {
					return stats, err
				}
			}
		}

		if err := sleep(ctx, clock, wait); err != nil {
			return stats, err
		}
	}
}

func sleep(ctx context.Context, clock timeutil.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := clock.NewTicker(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C():
		return nil
	}
}
