package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// ReplayPCAP reads a classic pcap stream and feeds the UDP payloads addressed
// to udpPort through proc. A udpPort of zero accepts every UDP datagram.
func ReplayPCAP(ctx context.Context, r io.Reader, udpPort int, proc Processor) (Stats, error) {
	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read pcap header: %w", err)
	}

	var c counters
	frames := 0
	start := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			logf("PCAP replay stopping after %d frames: %v", frames, err)
			return c.snapshot(), err
		}

		data, _, err := reader.ReadPacketData()
		if errors.Is(err, io.EOF) {
			logf("PCAP replay complete: %d frames, %d groups in %v", frames, c.groups.Load(), time.Since(start))
			return c.snapshot(), nil
		}
		if err != nil {
			return c.snapshot(), fmt.Errorf("failed to read pcap frame %d: %w", frames+1, err)
		}
		frames++

		packet := gopacket.NewPacket(data, reader.LinkType(), gopacket.DecodeOptions{Lazy: true, NoCopy: true})
		payload, ok := udpPayload(packet, udpPort)
		if !ok {
			continue
		}
		if err := handlePayload(ctx, proc, &c, payload); err != nil {
			logf("PCAP frame %d: %v", frames, err)
		}
	}
}

// ReplayPCAPFile opens path and replays it with ReplayPCAP.
func ReplayPCAPFile(ctx context.Context, path string, udpPort int, proc Processor) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to open PCAP file %s: %w", path, err)
	}
	defer f.Close()
	return ReplayPCAP(ctx, f, udpPort, proc)
}

// udpPayload extracts the UDP payload of packet when it is addressed to
// udpPort (any port when zero).
func udpPayload(packet gopacket.Packet, udpPort int) ([]byte, bool) {
	udpLayer := packet.Layer(layers.LayerTypeUDP)
	if udpLayer == nil {
		return nil, false
	}
	udp, ok := udpLayer.(*layers.UDP)
	if !ok {
		return nil, false
	}
	if udpPort != 0 && int(udp.DstPort) != udpPort {
		return nil, false
	}
	return udp.Payload, true
}
