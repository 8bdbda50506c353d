package ble

import (
	"context"
	"testing"
	"time"
)

// fakeTransport scripts scan rounds: each Scan call pops the next round.
type fakeTransport struct {
	rounds    [][]Advertisement
	scanCalls int
	scanErr   error
}

func (f *fakeTransport) Scan(ctx context.Context, timeout time.Duration) ([]Advertisement, error) {
	f.scanCalls++
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	if len(f.rounds) == 0 {
		return nil, nil
	}
	round := f.rounds[0]
	f.rounds = f.rounds[1:]
	return round, nil
}

func (f *fakeTransport) Connect(ctx context.Context, mac string, timeout time.Duration) (Handle, error) {
	panic("discovery never connects")
}

// legacyTransport only supports the reduced address scan.
type legacyTransport struct {
	fakeTransport
	addresses []string
}

func (l *legacyTransport) Scan(ctx context.Context, timeout time.Duration) ([]Advertisement, error) {
	l.scanCalls++
	return nil, ErrScanUnsupported
}

func (l *legacyTransport) ScanAddresses(ctx context.Context, timeout time.Duration) ([]string, error) {
	return l.addresses, nil
}

func targets(macs ...string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, mac := range macs {
		out[mac] = struct{}{}
	}
	return out
}

func TestDiscoverStopsEarlyWhenAllTargetsFound(t *testing.T) {
	ft := &fakeTransport{rounds: [][]Advertisement{
		{{MAC: "aa:aa:aa:aa:aa:01", Name: "NEEWER-RGB660", RSSI: -40}},
		{{MAC: "aa:aa:aa:aa:aa:02", Name: "NEEWER-SL90", RSSI: -50}},
	}}
	d := NewDiscovery(ft)

	found, missing, err := d.Discover(context.Background(), targets("AA:AA:AA:AA:AA:01"), 3, time.Millisecond, false)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(missing) != 0 {
		t.Errorf("missing = %v", missing)
	}
	if ft.scanCalls != 1 {
		t.Errorf("expected early stop after 1 round, scanned %d times", ft.scanCalls)
	}
	if _, ok := found["AA:AA:AA:AA:AA:01"]; !ok {
		t.Error("target address must be normalized and present")
	}
}

func TestDiscoverRetriesAndReportsMissing(t *testing.T) {
	ft := &fakeTransport{rounds: [][]Advertisement{
		nil,
		{{MAC: "AA:AA:AA:AA:AA:01", Name: "NEEWER-RGB660", RSSI: -40}},
		nil,
	}}
	d := NewDiscovery(ft)

	found, missing, err := d.Discover(context.Background(),
		targets("AA:AA:AA:AA:AA:01", "AA:AA:AA:AA:AA:02"), 3, time.Millisecond, false)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if ft.scanCalls != 3 {
		t.Errorf("expected all 3 attempts, got %d", ft.scanCalls)
	}
	if len(found) != 1 {
		t.Errorf("found = %v", found)
	}
	if len(missing) != 1 || missing[0] != "AA:AA:AA:AA:AA:02" {
		t.Errorf("missing = %v", missing)
	}
}

func TestDiscoverFiltersNonNeewerWithoutTargets(t *testing.T) {
	ft := &fakeTransport{rounds: [][]Advertisement{{
		{MAC: "AA:AA:AA:AA:AA:01", Name: "NEEWER-RGB660", RSSI: -40},
		{MAC: "BB:BB:BB:BB:BB:01", Name: "JBL Speaker", RSSI: -30},
	}}}
	d := NewDiscovery(ft)

	found, _, err := d.Discover(context.Background(), nil, 1, time.Millisecond, false)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("found = %v, want only the Neewer device", found)
	}
	if _, ok := found["AA:AA:AA:AA:AA:01"]; !ok {
		t.Error("Neewer device missing from results")
	}
}

func TestDiscoverKeepsStrongestRSSI(t *testing.T) {
	ft := &fakeTransport{rounds: [][]Advertisement{{
		{MAC: "AA:AA:AA:AA:AA:01", Name: "NEEWER-RGB660", RSSI: -80},
		{MAC: "AA:AA:AA:AA:AA:01", Name: "NEEWER-RGB660", RSSI: -45},
		{MAC: "AA:AA:AA:AA:AA:01", Name: "NEEWER-RGB660", RSSI: -60},
	}}}
	d := NewDiscovery(ft)

	found, _, err := d.Discover(context.Background(), targets("AA:AA:AA:AA:AA:01"), 1, time.Millisecond, false)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if got := found["AA:AA:AA:AA:AA:01"].RSSI; got != -45 {
		t.Errorf("RSSI = %d, want strongest sighting -45", got)
	}
}

func TestDiscoverLegacyFallback(t *testing.T) {
	lt := &legacyTransport{addresses: []string{"AA:AA:AA:AA:AA:01", "BB:BB:BB:BB:BB:01"}}
	d := NewDiscovery(lt)

	found, missing, err := d.Discover(context.Background(), targets("AA:AA:AA:AA:AA:01"), 1, time.Millisecond, false)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(missing) != 0 {
		t.Errorf("missing = %v", missing)
	}
	adv, ok := found["AA:AA:AA:AA:AA:01"]
	if !ok {
		t.Fatal("legacy fallback lost the target")
	}
	if adv.RSSI != -127 {
		t.Errorf("legacy advertisements should floor RSSI, got %d", adv.RSSI)
	}
}

func TestDiscoverHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ft := &fakeTransport{}
	d := NewDiscovery(ft)

	_, _, err := d.Discover(ctx, targets("AA:AA:AA:AA:AA:01"), 3, time.Millisecond, false)
	if err == nil {
		t.Fatal("Discover must surface context cancellation")
	}
	if ft.scanCalls != 0 {
		t.Errorf("cancelled discover still scanned %d times", ft.scanCalls)
	}
}

func TestResolveBestEffort(t *testing.T) {
	d := NewDiscovery(&fakeTransport{scanErr: ErrScanUnsupported})
	if got := d.Resolve(context.Background(), targets("AA:AA:AA:AA:AA:01"), time.Millisecond); got != nil {
		t.Errorf("failed resolve scan must return nil, got %v", got)
	}

	if got := d.Resolve(context.Background(), nil, time.Millisecond); got != nil {
		t.Errorf("resolve with no targets must be a no-op, got %v", got)
	}
}
