// Package chart renders track output as a static PNG (gonum/plot) or an
// interactive 3-D HTML page (go-echarts).
package chart

import (
	"errors"

	"github.com/banshee-data/tracker/internal/track"
)

// ErrNoData is returned when there is nothing to draw.
var ErrNoData = errors.New("no track data to plot")

// Series holds the point sets a track plot draws.
type Series struct {
	Title string

	// Predicted is the estimator position of every snapshot, in order.
	Predicted []track.Vector3
	// Measured is the latest measurement of every snapshot.
	Measured []track.Vector3
	// Truth is the simulated truth of those measurements, when present.
	Truth []track.Vector3
}

// FromTracks collects the series from a sequence of track snapshots.
func FromTracks(title string, tracks track.TrackGroup) Series {
	s := Series{Title: title}
	for _, t := range tracks {
		s.Predicted = append(s.Predicted, t.Position)
		m, ok := t.Latest()
		if !ok {
			continue
		}
		s.Measured = append(s.Measured, m.Position)
		if m.HasTruth {
			s.Truth = append(s.Truth, m.Truth)
		}
	}
	return s
}

// Empty reports whether there are no points at all.
func (s Series) Empty() bool {
	return len(s.Predicted) == 0 && len(s.Measured) == 0 && len(s.Truth) == 0
}
