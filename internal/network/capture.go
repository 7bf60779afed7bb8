//go:build pcap

package network

import (
	"context"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
)

// CaptureLive sniffs UDP datagrams for udpPort on iface with libpcap and feeds
// them through proc until ctx is done. It needs capture privileges.
// This function is only available when building with the 'pcap' build tag.
func CaptureLive(ctx context.Context, iface string, udpPort int, proc Processor) (Stats, error) {
	handle, err := pcap.OpenLive(iface, MaxDatagramSize+64, false, pcap.BlockForever)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to open %s for capture: %w", iface, err)
	}
	defer handle.Close()

	filter := fmt.Sprintf("udp port %d", udpPort)
	if err := handle.SetBPFFilter(filter); err != nil {
		return Stats{}, fmt.Errorf("failed to set BPF filter %q: %w", filter, err)
	}
	logf("capturing %s on %s", filter, iface)

	var c counters
	source := gopacket.NewPacketSource(handle, handle.LinkType())
	for {
		select {
		case <-ctx.Done():
			return c.snapshot(), ctx.Err()
		case packet, ok := <-source.Packets():
			if !ok || packet == nil {
				return c.snapshot(), nil
			}
			payload, ok := udpPayload(packet, udpPort)
			if !ok {
				continue
			}
			if err := handlePayload(ctx, proc, &c, payload); err != nil {
				logf("captured packet: %v", err)
			}
		}
	}
}
