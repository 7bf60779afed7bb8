package serialmux

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/banshee-data/tracker/internal/track"
)

const (
	LineMeasurement = "measurement"
	LineSeparator   = "separator"
	LineComment     = "comment"
	LineUnknown     = "unknown"
)

// ErrNotMeasurement is returned by ParseMeasurement for lines that carry no
// measurement.
var ErrNotMeasurement = errors.New("not a measurement line")

// ClassifyLine inspects a line read from the port. Blank lines separate
// measurement groups and lines starting with '#' are comments.
func ClassifyLine(line string) string {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return LineSeparator
	case strings.HasPrefix(line, "#"):
		return LineComment
	case strings.ContainsAny(line[:1], "+-.0123456789"):
		return LineMeasurement
	}
	return LineUnknown
}

// ParseMeasurement parses "x,y,z,time" with an optional ",true_x,true_y,true_z"
// suffix. Fields may be separated by commas or whitespace.
func ParseMeasurement(line string) (track.Measurement, error) {
	if ClassifyLine(line) != LineMeasurement {
		return track.Measurement{}, ErrNotMeasurement
	}
	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\r'
	})
	if len(fields) != 4 && len(fields) != 7 {
		return track.Measurement{}, fmt.Errorf("measurement needs 4 or 7 fields, got %d", len(fields))
	}

	v := make([]float64, len(fields))
	for i, f := range fields {
		var err error
		if v[i], err = strconv.ParseFloat(f, 64); err != nil {
			return track.Measurement{}, fmt.Errorf("invalid number %q: %w", f, err)
		}
	}

	m := track.NewMeasurement(v[0], v[1], v[2], v[3])
	if len(v) == 7 {
		m = m.WithTruth(track.Vector3{X: v[4], Y: v[5], Z: v[6]})
	}
	return m, nil
}
