// Package network receives measurement groups as UDP datagrams, either live
// from a socket or replayed from a packet capture. Each datagram carries one
// protobuf-encoded MeasurementGroup.
package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/tracker/internal/monitoring"
	"github.com/banshee-data/tracker/internal/track"
	"github.com/banshee-data/tracker/internal/wire"
)

var logf = monitoring.Component("network")

// MaxDatagramSize is the largest payload the listener will read.
const MaxDatagramSize = 65507

// Processor consumes measurement groups. The tracker service implements it.
type Processor interface {
	Process(ctx context.Context, group track.MeasurementGroup) (track.TrackGroup, error)
}

// Stats counts datagrams seen by a listener or replay.
type Stats struct {
	Packets      uint64 `json:"packets"`
	Bytes        uint64 `json:"bytes"`
	Groups       uint64 `json:"groups"`
	Measurements uint64 `json:"measurements"`
	Dropped      uint64 `json:"dropped"` // undecodable payloads
}

type counters struct {
	packets      atomic.Uint64
	bytes        atomic.Uint64
	groups       atomic.Uint64
	measurements atomic.Uint64
	dropped      atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Packets:      c.packets.Load(),
		Bytes:        c.bytes.Load(),
		Groups:       c.groups.Load(),
		Measurements: c.measurements.Load(),
		Dropped:      c.dropped.Load(),
	}
}

// handlePayload decodes one datagram and hands the group to proc. Empty
// groups are counted but not processed.
func handlePayload(ctx context.Context, proc Processor, c *counters, payload []byte) error {
	c.packets.Add(1)
	c.bytes.Add(uint64(len(payload)))

	group, err := wire.UnmarshalMeasurementGroup(payload)
	if err != nil {
		c.dropped.Add(1)
		return fmt.Errorf("decode measurement group: %w", err)
	}
	c.groups.Add(1)
	c.measurements.Add(uint64(len(group)))
	if len(group) == 0 {
		return nil
	}
	if _, err := proc.Process(ctx, group); err != nil {
		return err
	}
	return nil
}

// UDPListenerConfig contains configuration options for the UDP listener.
type UDPListenerConfig struct {
	Address     string
	RcvBuf      int
	LogInterval time.Duration
	Processor   Processor
}

// UDPListener receives measurement group datagrams and feeds a Processor.
type UDPListener struct {
	address     string
	rcvBuf      int
	logInterval time.Duration
	proc        Processor

	mu   sync.Mutex
	conn *net.UDPConn

	counters
}

// NewUDPListener creates a new UDP listener with the provided configuration.
func NewUDPListener(config UDPListenerConfig) *UDPListener {
	logInterval := config.LogInterval
	if logInterval == 0 {
		logInterval = time.Minute
	}
	return &UDPListener{
		address:     config.Address,
		rcvBuf:      config.RcvBuf,
		logInterval: logInterval,
		proc:        config.Processor,
	}
}

// Listen binds the socket. Serve must be called afterwards.
func (l *UDPListener) Listen() error {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			logf("warning: failed to set UDP receive buffer size to %d: %v", l.rcvBuf, err)
		}
	}

	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
	logf("UDP listener started on %s", conn.LocalAddr())
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (l *UDPListener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// Start binds the socket and serves until ctx is done.
func (l *UDPListener) Start(ctx context.Context) error {
	if err := l.Listen(); err != nil {
		return err
	}
	return l.Serve(ctx)
}

// Serve reads datagrams until ctx is done. The socket is closed on return.
func (l *UDPListener) Serve(ctx context.Context) error {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return errors.New("UDP listener is not bound")
	}
	defer conn.Close()

	go l.startStatsLogging(ctx)

	buffer := make([]byte, MaxDatagramSize)
	for {
		select {
		case <-ctx.Done():
			logf("UDP listener stopping: %v", ctx.Err())
			return ctx.Err()
		default:
		}

		// Read deadline lets the loop observe cancellation.
		conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, addr, err := conn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logf("UDP read error: %v", err)
			continue
		}

		if err := handlePayload(ctx, l.proc, &l.counters, buffer[:n]); err != nil {
			logf("error handling datagram from %v: %v", addr, err)
		}
	}
}

// Stats returns a snapshot of the listener counters.
func (l *UDPListener) Stats() Stats {
	return l.snapshot()
}

func (l *UDPListener) startStatsLogging(ctx context.Context) {
	ticker := time.NewTicker(l.logInterval)
	defer ticker.Stop()

	var last uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := l.snapshot()
			if s.Packets == last {
				continue
			}
			last = s.Packets
			logf("UDP stats: %d packets, %d bytes, %d measurements, %d dropped",
				s.Packets, s.Bytes, s.Measurements, s.Dropped)
		}
	}
}
