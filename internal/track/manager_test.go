package track

import (
	"bytes"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T, ft FilterType) *Manager {
	t.Helper()
	cfg := DefaultManagerConfig()
	cfg.FilterType = ft
	m, err := NewManager(cfg)
	require.NoError(t, err)
	return m
}

func sampleGroups() []MeasurementGroup {
	return []MeasurementGroup{
		{NewMeasurement(0, 1, 2, 0), NewMeasurement(1, 3, 2.5, 1)},
		{NewMeasurement(2, 5, 3, 2)},
		{NewMeasurement(3, 7, 3.5, 3), NewMeasurement(4, 9, 4, 4), NewMeasurement(5, 11, 4.5, 5)},
	}
}

func TestNewManager_UnknownFilterType(t *testing.T) {
	_, err := NewManager(ManagerConfig{FilterType: "ekf", Kalman: DefaultKalmanConfig()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownFilterType))
}

func TestNewManager_InvalidKalmanConfig(t *testing.T) {
	cfg := DefaultManagerConfig()
	cfg.Kalman.Observation = "bogus"
	_, err := NewManager(cfg)
	assert.Error(t, err)

	// The Kalman settings are irrelevant to the instantaneous estimator.
	cfg.FilterType = FilterInstantVelocity
	_, err = NewManager(cfg)
	assert.NoError(t, err)
}

func TestParseFilterType(t *testing.T) {
	ft, err := ParseFilterType(" KFT ")
	require.NoError(t, err)
	assert.Equal(t, FilterKalman, ft)

	ft, err = ParseFilterType("ivt")
	require.NoError(t, err)
	assert.Equal(t, FilterInstantVelocity, ft)

	_, err = ParseFilterType("particle")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownFilterType))
	assert.Contains(t, err.Error(), "particle")
}

func TestManager_HistoryAppendOnly(t *testing.T) {
	for _, ft := range FilterTypes {
		t.Run(string(ft), func(t *testing.T) {
			t.Parallel()
			m := newManager(t, ft)

			var submitted []Measurement
			var last Track
			for _, g := range sampleGroups() {
				out, err := m.ProcessMeasurementGroup(g)
				require.NoError(t, err)
				require.Len(t, out, len(g))
				for i, trk := range out {
					submitted = append(submitted, g[i])
					require.Len(t, trk.Measurements, len(submitted))
				}
				last = out[len(out)-1]
			}

			if diff := cmp.Diff(submitted, last.Measurements); diff != "" {
				t.Errorf("history mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestManager_TrackIDOnlyOnCreation(t *testing.T) {
	m := newManager(t, FilterKalman)

	out, err := m.ProcessMeasurementGroup(sampleGroups()[0])
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, uint32(1), out[0].TrackID)
	assert.True(t, out[0].IsNew())
	assert.Equal(t, uint32(0), out[1].TrackID)

	out, err = m.ProcessMeasurementGroup(sampleGroups()[1])
	require.NoError(t, err)
	assert.Equal(t, uint32(0), out[0].TrackID)

	stats := m.Stats()
	assert.Equal(t, uint64(1), stats.TracksCreated)
	assert.Equal(t, uint32(2), stats.NextTrackID)
}

func TestManager_SharedCounterIdentifiersIncrease(t *testing.T) {
	counter := NewIDCounter()
	var ids []uint32
	for i := 0; i < 5; i++ {
		ft := FilterTypes[i%len(FilterTypes)]
		m, err := NewManager(ManagerConfig{FilterType: ft, Kalman: DefaultKalmanConfig(), Counter: counter})
		require.NoError(t, err)
		for _, g := range sampleGroups() {
			out, err := m.ProcessMeasurementGroup(g)
			require.NoError(t, err)
			for _, trk := range out {
				if trk.TrackID != 0 {
					ids = append(ids, trk.TrackID)
				}
			}
		}
	}

	require.Len(t, ids, 5)
	for i := 1; i < len(ids); i++ {
		assert.Greater(t, ids[i], ids[i-1])
	}
	assert.Equal(t, uint32(1), ids[0])
	assert.Equal(t, uint32(6), counter.Peek())
}

func TestIDCounter_Concurrent(t *testing.T) {
	c := NewIDCounter()
	const workers, per = 8, 100

	var mu sync.Mutex
	seen := make(map[uint32]bool)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < per; i++ {
				id := c.Next()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*per)
	assert.False(t, seen[0])
	assert.Equal(t, uint32(workers*per+1), c.Peek())
}

func TestManager_StrategySubstitutability(t *testing.T) {
	kft := newManager(t, FilterKalman)
	ivt := newManager(t, FilterInstantVelocity)

	// Everything except the velocity and position estimate must match.
	ignoreEstimate := cmp.FilterPath(func(p cmp.Path) bool {
		switch p.Last().String() {
		case ".Velocity", ".Position":
			return true
		}
		return false
	}, cmp.Ignore())

	for _, g := range sampleGroups() {
		a, err := kft.ProcessMeasurementGroup(g)
		require.NoError(t, err)
		b, err := ivt.ProcessMeasurementGroup(g)
		require.NoError(t, err)

		if diff := cmp.Diff(a, b, ignoreEstimate); diff != "" {
			t.Errorf("track groups differ beyond the estimate (-kft +ivt):\n%s", diff)
		}
	}

	ks, is := kft.Stats(), ivt.Stats()
	assert.Equal(t, FilterKalman, ks.FilterType)
	assert.Equal(t, FilterInstantVelocity, is.FilterType)
	ks.FilterType, is.FilterType = "", ""
	assert.Equal(t, ks, is)
}

func TestManager_OrderingAnomaliesCounted(t *testing.T) {
	var diag bytes.Buffer
	SetLogWriters(nil, &diag, nil)
	t.Cleanup(func() { SetLogWriters(nil, nil, nil) })

	m := newManager(t, FilterInstantVelocity)
	out, err := m.ProcessMeasurementGroup(MeasurementGroup{
		NewMeasurement(0, 0, 0, 5),
		NewMeasurement(1, 1, 1, 3),
		NewMeasurement(2, 2, 2, 3),
		NewMeasurement(3, 3, 3, 1),
	})
	require.NoError(t, err)
	assert.Len(t, out, 4)

	stats := m.Stats()
	assert.Equal(t, uint64(2), stats.OrderingAnomalies)
	assert.Equal(t, uint64(4), stats.Measurements)
	assert.Contains(t, diag.String(), "out-of-order")
}

func TestManager_NumericalFaultsJoined(t *testing.T) {
	m := newManager(t, FilterKalman)
	out, err := m.ProcessMeasurementGroup(MeasurementGroup{
		NewMeasurement(0, 0, 0, 0),
		NewMeasurement(math.NaN(), 0, 0, 1),
		NewMeasurement(1, 1, 1, 2),
		NewMeasurement(0, math.Inf(1), 0, 3),
	})

	require.Error(t, err)
	require.Len(t, out, 4, "faults never shorten the group")
	assert.True(t, errors.Is(err, ErrNonFiniteState))
	for _, trk := range out {
		assert.True(t, trk.Velocity.IsFinite())
	}

	stats := m.Stats()
	assert.Equal(t, uint64(2), stats.NumericalFaults)
	assert.Equal(t, uint64(1), stats.Groups)
}

func TestManager_ConcurrentGroups(t *testing.T) {
	m := newManager(t, FilterKalman)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				ti := float64(w*10 + i)
				_, _ = m.ProcessMeasurementGroup(MeasurementGroup{NewMeasurement(ti, ti, ti, ti)})
			}
		}(w)
	}
	wg.Wait()

	stats := m.Stats()
	assert.Equal(t, uint64(40), stats.Measurements)
	assert.Equal(t, uint64(40), stats.Groups)
	assert.Equal(t, uint64(1), stats.TracksCreated)
}
