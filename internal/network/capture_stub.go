//go:build !pcap

package network

import (
	"context"
	"fmt"
)

// CaptureLive is a stub implementation when PCAP support is disabled.
// Build with -tags=pcap to enable live capture.
func CaptureLive(ctx context.Context, iface string, udpPort int, proc Processor) (Stats, error) {
	return Stats{}, fmt.Errorf("live capture not enabled: rebuild with -tags=pcap")
}
