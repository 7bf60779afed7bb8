package serialmux

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/banshee-data/tracker/internal/track"
)

func TestClassifyLine(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"", LineSeparator},
		{"   \r", LineSeparator},
		{"# header", LineComment},
		{"1,2,3,4", LineMeasurement},
		{"-1 2 3 4", LineMeasurement},
		{".5,2,3,4", LineMeasurement},
		{"OK", LineUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyLine(tt.line))
		})
	}
}

func TestParseMeasurement(t *testing.T) {
	m, err := ParseMeasurement("1.5, 2, -3, 10.25")
	require.NoError(t, err)
	assert.Equal(t, track.NewMeasurement(1.5, 2, -3, 10.25), m)

	m, err = ParseMeasurement("1 2 3 4 1.1 2.1 3.1\r")
	require.NoError(t, err)
	assert.True(t, m.HasTruth)
	assert.Equal(t, track.Vector3{X: 1.1, Y: 2.1, Z: 3.1}, m.Truth)
}

func TestParseMeasurement_Errors(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		errMsg string
	}{
		{"too few", "1,2,3", "4 or 7 fields"},
		{"five fields", "1,2,3,4,5", "4 or 7 fields"},
		{"bad number", "1,2,x3,4", "invalid number"},
		{"not numeric", "1,2,3,abc", "invalid number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMeasurement(tt.line)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	_, err := ParseMeasurement("# comment")
	assert.True(t, errors.Is(err, ErrNotMeasurement))
}

type recordingProcessor struct {
	mu     sync.Mutex
	groups []track.MeasurementGroup
	err    error
}

func (p *recordingProcessor) Process(_ context.Context, g track.MeasurementGroup) (track.TrackGroup, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.groups = append(p.groups, g)
	return nil, p.err
}

func feed(lines ...string) <-chan string {
	ch := make(chan string, len(lines))
	for _, l := range lines {
		ch <- l
	}
	close(ch)
	return ch
}

func TestIngester_Groups(t *testing.T) {
	proc := &recordingProcessor{}
	in := NewIngester(proc)

	err := in.Run(context.Background(), feed(
		"# x,y,z,time",
		"1,1,1,0",
		"2,2,2,0",
		"3,3,3,1", // new time closes the group
		"",
		"garbage",
		"4,4,4,1", // same time but after a separator
	))
	require.NoError(t, err)

	require.Len(t, proc.groups, 3)
	assert.Len(t, proc.groups[0], 2)
	assert.Len(t, proc.groups[1], 1)
	assert.Equal(t, 4.0, proc.groups[2][0].Position.X)

	assert.Equal(t, IngestStats{Lines: 7, Groups: 3, Measurements: 4, Rejected: 1}, in.Stats())
}

func TestIngester_ProcessErrorsDoNotStop(t *testing.T) {
	proc := &recordingProcessor{err: errors.New("numerical fault")}
	in := NewIngester(proc)
	require.NoError(t, in.Run(context.Background(), feed("1,1,1,0", "", "2,2,2,1")))
	assert.Len(t, proc.groups, 2)
}

func TestIngester_StopsOnCancel(t *testing.T) {
	in := NewIngester(&recordingProcessor{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := in.Run(ctx, make(chan string))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIngester_FromSerialMux(t *testing.T) {
	mux := NewSerialMux(newTestPort("0,0,0,0\n1,1,1,1\n2,2,2,2\n"))
	_, lines := mux.Subscribe()
	proc := &recordingProcessor{}
	in := NewIngester(proc)

	require.NoError(t, mux.Monitor(context.Background()))
	require.NoError(t, mux.Close())
	require.NoError(t, in.Run(context.Background(), lines))

	require.Len(t, proc.groups, 3)
	for i, g := range proc.groups {
		assert.Equal(t, float64(i), g[0].Time)
	}
}

func TestPortOptions_Normalise(t *testing.T) {
	got, err := PortOptions{}.Normalise()
	require.NoError(t, err)
	assert.Equal(t, PortOptions{BaudRate: DefaultBaudRate, DataBits: 8, StopBits: 1, Parity: "N"}, got)

	got, err = PortOptions{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: "even"}.Normalise()
	require.NoError(t, err)
	assert.Equal(t, PortOptions{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: "E"}, got)

	for _, bad := range []PortOptions{
		{BaudRate: 12345},
		{DataBits: 9},
		{StopBits: 3},
		{Parity: "mark"},
	} {
		_, err := bad.Normalise()
		assert.Error(t, err, "%+v", bad)
	}
}

func TestPortOptions_Equal(t *testing.T) {
	assert.True(t, PortOptions{}.Equal(PortOptions{BaudRate: DefaultBaudRate, Parity: "none"}))
	assert.False(t, PortOptions{}.Equal(PortOptions{BaudRate: 9600}))
	assert.False(t, PortOptions{DataBits: 9}.Equal(PortOptions{DataBits: 9}))
}

func TestPortOptions_SerialMode(t *testing.T) {
	mode, err := PortOptions{StopBits: 2, Parity: "O"}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, &serial.Mode{
		BaudRate: DefaultBaudRate,
		DataBits: 8,
		StopBits: serial.TwoStopBits,
		Parity:   serial.OddParity,
	}, mode)

	mode, err = PortOptions{}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, serial.OneStopBit, mode.StopBits)
	assert.Equal(t, serial.NoParity, mode.Parity)

	_, err = PortOptions{StopBits: 5}.SerialMode()
	assert.Error(t, err)
}
