// Package trackfile reads and writes the plain-text track log produced by
// the track consumer. Each track snapshot is a "trk" line followed by one
// "meas" line per measurement in its history:
//
//	#trk x_pred_pos y_pred_pos z_pred_pos vel_x vel_y vel_z track_id
//	#meas x y z true_x true_y true_z
//	trk 1.2 2.8 2.9 0.8 1.2 0.6 0
//	meas 0 1 2 0 0 0
//	meas 1 3 2.5 0 0 0
package trackfile

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/banshee-data/tracker/internal/track"
)

const header = "#trk x_pred_pos y_pred_pos z_pred_pos vel_x vel_y vel_z track_id\n" +
	"#meas x y z true_x true_y true_z\n"

// Writer appends track groups to a track file. It is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	w      *bufio.Writer
	closer io.Closer
	tracks int
}

// NewWriter writes the header to w and returns a Writer appending to it.
func NewWriter(w io.Writer) (*Writer, error) {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(header); err != nil {
		return nil, fmt.Errorf("failed to write track file header: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return nil, fmt.Errorf("failed to write track file header: %w", err)
	}
	return &Writer{w: bw}, nil
}

// Create truncates path and returns a Writer for it. Close releases the file.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create track file: %w", err)
	}
	w, err := NewWriter(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.closer = f
	return w, nil
}

// WriteGroup appends every track in group and flushes.
func (w *Writer) WriteGroup(group track.TrackGroup) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, t := range group {
		fmt.Fprintf(w.w, "trk %s %s %s %s %s %s %d\n",
			ftoa(t.Position.X), ftoa(t.Position.Y), ftoa(t.Position.Z),
			ftoa(t.Velocity.X), ftoa(t.Velocity.Y), ftoa(t.Velocity.Z),
			t.TrackID)
		for _, m := range t.Measurements {
			fmt.Fprintf(w.w, "meas %s %s %s %s %s %s\n",
				ftoa(m.Position.X), ftoa(m.Position.Y), ftoa(m.Position.Z),
				ftoa(m.Truth.X), ftoa(m.Truth.Y), ftoa(m.Truth.Z))
		}
		w.tracks++
	}
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("failed to write track group: %w", err)
	}
	return nil
}

// ProcessTrack lets a Writer act as a consumer sink.
func (w *Writer) ProcessTrack(_ context.Context, group track.TrackGroup) error {
	return w.WriteGroup(group)
}

// Tracks returns the number of track snapshots written.
func (w *Writer) Tracks() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tracks
}

// Close flushes and closes the underlying file, if the Writer owns one.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.w.Flush(); err != nil {
		return err
	}
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}

// Read parses a track file. Measurements carry their ground truth; times
// are not recorded in the file and read back as zero.
func Read(r io.Reader) (track.TrackGroup, error) {
	var out track.TrackGroup
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "trk":
			t, err := parseTrack(fields[1:])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			out = append(out, t)
		case "meas":
			if len(out) == 0 {
				return nil, fmt.Errorf("line %d: meas before any trk line", lineNo)
			}
			m, err := parseMeasurement(fields[1:])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			last := &out[len(out)-1]
			last.Measurements = append(last.Measurements, m)
		default:
			return nil, fmt.Errorf("line %d: unknown record %q", lineNo, fields[0])
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read track file: %w", err)
	}
	return out, nil
}

// ReadFile opens and parses path.
func ReadFile(path string) (track.TrackGroup, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open track file: %w", err)
	}
	defer f.Close()
	return Read(f)
}

func parseTrack(f []string) (track.Track, error) {
	if len(f) != 7 {
		return track.Track{}, fmt.Errorf("trk record needs 7 fields, got %d", len(f))
	}
	v, err := parseFloats(f[:6])
	if err != nil {
		return track.Track{}, err
	}
	id, err := strconv.ParseUint(f[6], 10, 32)
	if err != nil {
		return track.Track{}, fmt.Errorf("invalid track id %q: %w", f[6], err)
	}
	return track.Track{
		TrackID:  uint32(id),
		Position: track.Vector3{X: v[0], Y: v[1], Z: v[2]},
		Velocity: track.Vector3{X: v[3], Y: v[4], Z: v[5]},
	}, nil
}

func parseMeasurement(f []string) (track.Measurement, error) {
	if len(f) != 6 {
		return track.Measurement{}, fmt.Errorf("meas record needs 6 fields, got %d", len(f))
	}
	v, err := parseFloats(f)
	if err != nil {
		return track.Measurement{}, err
	}
	return track.NewMeasurement(v[0], v[1], v[2], 0).WithTruth(track.Vector3{X: v[3], Y: v[4], Z: v[5]}), nil
}

func parseFloats(f []string) ([]float64, error) {
	out := make([]float64, len(f))
	for i, s := range f {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", s, err)
		}
		out[i] = v
	}
	return out, nil
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
