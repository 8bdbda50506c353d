// Package ble defines the narrow transport capability the engine consumes
// and implements discovery on top of it. The engine never touches a radio
// directly; everything goes through Transport so tests can substitute fakes.
package ble

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Advertisement is one device seen during a scan round.
type Advertisement struct {
	MAC  string
	Name string
	RSSI int
}

// Handle is an established connection to one fixture. A handle is exclusively
// owned by the single session driving that light; it is never shared.
type Handle interface {
	// Write sends one packet to the light's control characteristic.
	Write(ctx context.Context, data []byte, withResponse bool) error
	// Disconnect releases the radio resource. Safe to call more than once.
	Disconnect() error
}

// Notifier is the optional capability for transports that support GATT
// notifications; the status query needs it. Handles that do not implement it
// make status queries fail as unsupported rather than crash.
type Notifier interface {
	// Subscribe registers a callback for notify payloads from the light.
	Subscribe(fn func(data []byte)) error
}

// Transport is the abstract radio capability: scan, connect, write (via the
// returned Handle), disconnect. Implementations must be safe for concurrent
// Connect calls on distinct MACs.
type Transport interface {
	// Scan collects advertising devices for roughly the given duration.
	Scan(ctx context.Context, timeout time.Duration) ([]Advertisement, error)
	// Connect establishes a connection to the given address.
	Connect(ctx context.Context, mac string, timeout time.Duration) (Handle, error)
}

// AddressScanner is the reduced legacy scan shape: addresses only, no
// advertisement metadata. Discovery falls back to it when the full scan
// reports ErrScanUnsupported.
type AddressScanner interface {
	ScanAddresses(ctx context.Context, timeout time.Duration) ([]string, error)
}

// ErrScanUnsupported marks a transport whose full-metadata scan path is
// unavailable; discovery retries through AddressScanner when present.
var ErrScanUnsupported = errors.New("ble: full-metadata scan unsupported")

// DiscoveryError reports targets that never advertised within the scan
// budget. Per-light, never fatal to the batch.
type DiscoveryError struct {
	MAC string
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("%s: not found within scan budget", e.MAC)
}
