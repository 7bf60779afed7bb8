package simulator

import (
	"encoding/csv"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/banshee-data/tracker/internal/track"
)

// CSVHeader is the comment line that opens every scenario file.
const CSVHeader = "# Measurement time, meas_x, meas_y, meas_z, true_x, true_y, true_z, " +
	"true_velx, true_vely, true_velz, true_accx, true_accy, true_accz\n"

const csvFields = 13

// CSVWriter records samples one row per measurement.
type CSVWriter struct {
	mu     sync.Mutex
	w      *csv.Writer
	closer io.Closer
	rows   int
}

// NewCSVWriter writes the header to w and returns a writer for samples.
func NewCSVWriter(w io.Writer) (*CSVWriter, error) {
	if _, err := io.WriteString(w, CSVHeader); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	return &CSVWriter{w: csv.NewWriter(w)}, nil
}

// CreateCSV creates (truncating) the file at path.
func CreateCSV(path string) (*CSVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	cw, err := NewCSVWriter(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	cw.closer = f
	return cw, nil
}

// Write appends samples and flushes.
func (c *CSVWriter) Write(samples []Sample) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, s := range samples {
		m := s.Measurement
		rec := formatFloats(
			m.Time,
			m.Position.X, m.Position.Y, m.Position.Z,
			m.Truth.X, m.Truth.Y, m.Truth.Z,
			s.Velocity.X, s.Velocity.Y, s.Velocity.Z,
			s.Acceleration.X, s.Acceleration.Y, s.Acceleration.Z,
		)
		if err := c.w.Write(rec); err != nil {
			return err
		}
		c.rows++
	}
	c.w.Flush()
	return c.w.Error()
}

// Rows returns the number of rows written.
func (c *CSVWriter) Rows() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rows
}

// Close flushes and closes the underlying file when there is one.
func (c *CSVWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.w.Flush()
	err := c.w.Error()
	if c.closer != nil {
		if cerr := c.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// ReadCSV parses a scenario file back into samples.
func ReadCSV(r io.Reader) ([]Sample, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = csvFields
	cr.TrimLeadingSpace = true

	var out []Sample
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		v := make([]float64, csvFields)
		for i, f := range rec {
			if v[i], err = strconv.ParseFloat(f, 64); err != nil {
				line, _ := cr.FieldPos(i)
				return nil, fmt.Errorf("line %d: invalid number %q: %w", line, f, err)
			}
		}
		out = append(out, Sample{
			Measurement:  track.NewMeasurement(v[1], v[2], v[3], v[0]).WithTruth(track.Vector3{X: v[4], Y: v[5], Z: v[6]}),
			Velocity:     track.Vector3{X: v[7], Y: v[8], Z: v[9]},
			Acceleration: track.Vector3{X: v[10], Y: v[11], Z: v[12]},
		})
	}
}

// ReadCSVFile reads the scenario file at path.
func ReadCSVFile(path string) ([]Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	samples, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return samples, nil
}

// Groups splits samples into measurement groups of consecutive rows sharing
// a timestamp.
func Groups(samples []Sample) []track.MeasurementGroup {
	var out []track.MeasurementGroup
	for i := 0; i < len(samples); {
		j := i + 1
		for j < len(samples) && samples[j].Measurement.Time == samples[i].Measurement.Time {
			j++
		}
		out = append(out, Measurements(samples[i:j]))
		i = j
	}
	return out
}

// ScenarioConfig controls WriteScenarioFiles.
type ScenarioConfig struct {
	Dir      string
	BaseName string // files are named BaseName0.csv, BaseName1.csv, ...
	Tracks   int
	Duration float64 // seconds of simulated time per file
	Interval float64 // seconds between samples
	Seed     uint64
}

// DefaultScenarioConfig returns one 120 s track sampled every 2 s.
func DefaultScenarioConfig() ScenarioConfig {
	return ScenarioConfig{
		Dir:      ".",
		BaseName: "track",
		Tracks:   1,
		Duration: 120,
		Interval: 2,
		Seed:     1,
	}
}

// WriteScenarioFiles writes one CSV file per random target without touching
// the network, and returns the paths written.
func WriteScenarioFiles(cfg ScenarioConfig) ([]string, error) {
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %v", cfg.Interval)
	}
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))

	paths := make([]string, 0, cfg.Tracks)
	for i := 0; i < cfg.Tracks; i++ {
		sim := New([]Target{RandomTarget(rng, 0)}, WithSeed(cfg.Seed+uint64(i)+1))
		path := filepath.Join(cfg.Dir, fmt.Sprintf("%s%d.csv", cfg.BaseName, i))
		if err := writeScenario(path, sim, cfg); err != nil {
			return paths, err
		}
		logf("wrote scenario %s", path)
		paths = append(paths, path)
	}
	return paths, nil
}

func writeScenario(path string, sim *Simulator, cfg ScenarioConfig) error {
	w, err := CreateCSV(path)
	if err != nil {
		return err
	}
	for t := 0.0; t < cfg.Duration; t += cfg.Interval {
		if err := w.Write(sim.Step(t)); err != nil {
			w.Close()
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return w.Close()
}

func formatFloats(vs ...float64) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return out
}
