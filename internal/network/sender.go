package network

import (
	"context"
	"fmt"
	"net"

	"github.com/banshee-data/tracker/internal/track"
	"github.com/banshee-data/tracker/internal/wire"
)

// Sender writes measurement groups as UDP datagrams to a listener.
type Sender struct {
	conn    *net.UDPConn
	address string
}

// NewSender dials address ("host:port").
func NewSender(address string) (*Sender, error) {
	raddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve send address: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("failed to create send connection: %w", err)
	}
	logf("sending measurement groups to %s", address)
	return &Sender{conn: conn, address: address}, nil
}

// Send encodes group into one datagram. ctx is only checked before writing.
func (s *Sender) Send(ctx context.Context, group track.MeasurementGroup) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b := wire.MarshalMeasurementGroup(group)
	if len(b) > MaxDatagramSize {
		return fmt.Errorf("measurement group of %d bytes exceeds datagram size", len(b))
	}
	if _, err := s.conn.Write(b); err != nil {
		return fmt.Errorf("send to %s: %w", s.address, err)
	}
	return nil
}

// Close closes the UDP connection.
func (s *Sender) Close() error {
	return s.conn.Close()
}
