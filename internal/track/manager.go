package track

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// IDCounter hands out track identifiers starting at 1. It is safe for
// concurrent use, so several Managers may share one counter.
type IDCounter struct {
	next atomic.Uint32
}

// NewIDCounter returns a counter whose first identifier is 1.
func NewIDCounter() *IDCounter {
	c := &IDCounter{}
	c.next.Store(1)
	return c
}

// Next returns the next identifier and advances the counter.
func (c *IDCounter) Next() uint32 {
	return c.next.Add(1) - 1
}

// Peek returns the identifier the next call to Next will return.
func (c *IDCounter) Peek() uint32 {
	return c.next.Load()
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	FilterType FilterType
	Kalman     KalmanConfig

	// Counter supplies track identifiers. A nil Counter gets a fresh one.
	Counter *IDCounter
}

// DefaultManagerConfig returns a Kalman manager with default parameters.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		FilterType: FilterKalman,
		Kalman:     DefaultKalmanConfig(),
	}
}

// Stats is a point-in-time view of a Manager's counters.
type Stats struct {
	FilterType        FilterType `json:"filter_type"`
	Groups            uint64     `json:"groups"`
	Measurements      uint64     `json:"measurements"`
	TracksCreated     uint64     `json:"tracks_created"`
	OrderingAnomalies uint64     `json:"ordering_anomalies"`
	NumericalFaults   uint64     `json:"numerical_faults"`
	NextTrackID       uint32     `json:"next_track_id"`
}

// trackLine binds one estimator to the bookkeeping the manager keeps for it.
type trackLine struct {
	estimator Estimator
	lastTime  float64
	seen      bool
}

// observe records m's time and reports whether it arrived before the
// previous measurement, returning that previous time.
func (l *trackLine) observe(m Measurement) (prev float64, outOfOrder bool) {
	prev, outOfOrder = l.lastTime, l.seen && m.Time < l.lastTime
	l.lastTime = m.Time
	l.seen = true
	return prev, outOfOrder
}

// Manager feeds measurement groups through a single track line and stamps
// identifiers on newly created tracks. It is safe for concurrent use;
// groups are processed one at a time.
type Manager struct {
	filterType FilterType
	counter    *IDCounter

	mu    sync.Mutex
	line  trackLine
	stats Stats
}

// NewManager validates cfg and builds the estimator it selects.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	est, err := NewEstimator(cfg.FilterType, cfg.Kalman)
	if err != nil {
		return nil, fmt.Errorf("failed to create estimator: %w", err)
	}
	counter := cfg.Counter
	if counter == nil {
		counter = NewIDCounter()
	}
	opsf("manager: using %s estimator (%s)", cfg.FilterType.Description(), cfg.FilterType)
	return &Manager{
		filterType: cfg.FilterType,
		counter:    counter,
		line:       trackLine{estimator: est},
	}, nil
}

// FilterType returns the estimator strategy bound to this manager.
func (m *Manager) FilterType() FilterType {
	return m.filterType
}

// ProcessMeasurementGroup folds each measurement into the track line in
// order and returns one snapshot per measurement. The first snapshot of a
// new track carries a freshly assigned TrackID; later snapshots leave it
// unset.
//
// Numerical faults never abort the group. The returned TrackGroup is always
// complete, and the error joins every *NumericalError reported on the way.
func (m *Manager) ProcessMeasurementGroup(group MeasurementGroup) (TrackGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(TrackGroup, 0, len(group))
	var errs []error
	for _, meas := range group {
		if prev, late := m.line.observe(meas); late {
			m.stats.OrderingAnomalies++
			diagf("manager: out-of-order measurement at t=%.3f after t=%.3f", meas.Time, prev)
		}

		trk, err := m.line.estimator.AddMeasurement(meas)
		m.stats.Measurements++
		if err != nil {
			m.stats.NumericalFaults++
			errs = append(errs, err)
		}

		if trk.IsNew() {
			trk.TrackID = m.counter.Next()
			m.stats.TracksCreated++
			opsf("manager: created track %d at t=%.3f", trk.TrackID, meas.Time)
		}
		out = append(out, trk)
	}
	m.stats.Groups++

	diagf("manager: processed group of %d measurements (%d faults)", len(group), len(errs))
	return out, errors.Join(errs...)
}

// Stats returns a copy of the manager's counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	s.FilterType = m.filterType
	s.NextTrackID = m.counter.Peek()
	return s
}
