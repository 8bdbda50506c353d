package ble

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"tinygo.org/x/bluetooth"
)

// Neewer GATT UUIDs.
const (
	serviceUUID = "69400001-b5a3-f393-e0a9-e50e24dcca99"
	controlUUID = "69400002-b5a3-f393-e0a9-e50e24dcca99"
	notifyUUID  = "69400003-b5a3-f393-e0a9-e50e24dcca99"
)

// Adapter implements Transport on top of the system BLE stack via
// tinygo.org/x/bluetooth (BlueZ on Linux).
type Adapter struct {
	adapter *bluetooth.Adapter

	enableOnce sync.Once
	enableErr  error

	// The underlying stack serializes scans; guard against overlap.
	scanMu sync.Mutex
}

// NewAdapter wraps the default system adapter. The radio is enabled lazily on
// first use.
func NewAdapter() *Adapter {
	return &Adapter{adapter: bluetooth.DefaultAdapter}
}

func (a *Adapter) enable() error {
	a.enableOnce.Do(func() {
		a.enableErr = a.adapter.Enable()
	})
	if a.enableErr != nil {
		return fmt.Errorf("enable BLE adapter: %w", a.enableErr)
	}
	return nil
}

// Scan collects advertisements for roughly timeout, or until ctx is done.
func (a *Adapter) Scan(ctx context.Context, timeout time.Duration) ([]Advertisement, error) {
	if err := a.enable(); err != nil {
		return nil, err
	}
	a.scanMu.Lock()
	defer a.scanMu.Unlock()

	var (
		mu   sync.Mutex
		advs []Advertisement
	)

	stop := time.AfterFunc(timeout, func() {
		if err := a.adapter.StopScan(); err != nil {
			log.Debug().Err(err).Msg("StopScan after timeout failed")
		}
	})
	defer stop.Stop()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = a.adapter.StopScan()
		case <-done:
		}
	}()

	err := a.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		mu.Lock()
		advs = append(advs, Advertisement{
			MAC:  result.Address.String(),
			Name: result.LocalName(),
			RSSI: int(result.RSSI),
		})
		mu.Unlock()
	})
	if err != nil {
		return nil, fmt.Errorf("ble scan: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return advs, err
	}
	return advs, nil
}

// Connect establishes a connection and resolves the Neewer control and notify
// characteristics.
func (a *Adapter) Connect(ctx context.Context, mac string, timeout time.Duration) (Handle, error) {
	if err := a.enable(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	parsed, err := bluetooth.ParseMAC(mac)
	if err != nil {
		return nil, fmt.Errorf("parse address %q: %w", mac, err)
	}
	addr := bluetooth.Address{MACAddress: bluetooth.MACAddress{MAC: parsed}}

	device, err := a.adapter.Connect(addr, bluetooth.ConnectionParams{
		ConnectionTimeout: bluetooth.NewDuration(timeout),
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", mac, err)
	}

	handle, err := resolveCharacteristics(device)
	if err != nil {
		_ = device.Disconnect()
		return nil, fmt.Errorf("resolve characteristics on %s: %w", mac, err)
	}
	return handle, nil
}

func resolveCharacteristics(device bluetooth.Device) (*deviceHandle, error) {
	svcUUID, err := bluetooth.ParseUUID(serviceUUID)
	if err != nil {
		return nil, err
	}
	ctlUUID, err := bluetooth.ParseUUID(controlUUID)
	if err != nil {
		return nil, err
	}
	ntfUUID, err := bluetooth.ParseUUID(notifyUUID)
	if err != nil {
		return nil, err
	}

	services, err := device.DiscoverServices([]bluetooth.UUID{svcUUID})
	if err != nil {
		return nil, fmt.Errorf("discover services: %w", err)
	}
	if len(services) == 0 {
		return nil, fmt.Errorf("light control service not found")
	}

	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{ctlUUID, ntfUUID})
	if err != nil {
		return nil, fmt.Errorf("discover characteristics: %w", err)
	}

	handle := &deviceHandle{device: device}
	for _, char := range chars {
		switch char.UUID().String() {
		case controlUUID:
			c := char
			handle.control = &c
		case notifyUUID:
			c := char
			handle.notify = &c
		}
	}
	if handle.control == nil {
		return nil, fmt.Errorf("control characteristic not found")
	}
	return handle, nil
}

// deviceHandle is one live connection. Owned by exactly one session.
type deviceHandle struct {
	device  bluetooth.Device
	control *bluetooth.DeviceCharacteristic
	notify  *bluetooth.DeviceCharacteristic

	mu           sync.Mutex
	disconnected bool
}

// Write sends one packet. The central API exposes unacknowledged writes
// only; withResponse has no wire effect on this backend.
func (h *deviceHandle) Write(ctx context.Context, data []byte, withResponse bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := h.control.WriteWithoutResponse(data); err != nil {
		return fmt.Errorf("gatt write: %w", err)
	}
	return nil
}

// Subscribe implements Notifier.
func (h *deviceHandle) Subscribe(fn func(data []byte)) error {
	if h.notify == nil {
		return fmt.Errorf("notify characteristic not available")
	}
	return h.notify.EnableNotifications(fn)
}

// Disconnect releases the connection. Safe to call more than once.
func (h *deviceHandle) Disconnect() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.disconnected {
		return nil
	}
	h.disconnected = true
	return h.device.Disconnect()
}
