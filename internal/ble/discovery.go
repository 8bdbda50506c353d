package ble

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/neewerctl/internal/light"
)

// Discovery maps target MACs to live advertisements with bounded scan
// retries. It owns no connections; it only answers "who is out there".
type Discovery struct {
	transport Transport
}

// NewDiscovery wraps a transport with retrying discovery.
func NewDiscovery(transport Transport) *Discovery {
	return &Discovery{transport: transport}
}

// scanOnce runs one scan round and filters it down to relevant devices.
// With explicit targets only those addresses are kept; without targets any
// Neewer-looking advertisement counts. Duplicate sightings keep the
// strongest RSSI.
func (d *Discovery) scanOnce(ctx context.Context, timeout time.Duration, targets map[string]struct{}) (map[string]Advertisement, error) {
	advs, err := d.transport.Scan(ctx, timeout)
	if errors.Is(err, ErrScanUnsupported) {
		advs, err = d.legacyScan(ctx, timeout)
	}
	if err != nil {
		return nil, err
	}

	found := map[string]Advertisement{}
	for _, adv := range advs {
		mac := light.NormalizeMAC(adv.MAC)
		if targets != nil {
			if _, want := targets[mac]; !want {
				continue
			}
		} else if !light.IsNeewerName(adv.Name) {
			continue
		}
		existing, seen := found[mac]
		if !seen || adv.RSSI > existing.RSSI {
			adv.MAC = mac
			found[mac] = adv
		}
	}
	return found, nil
}

// legacyScan normalizes the reduced address-only scan into the same shape the
// full scan produces. Names are unknown, RSSI floors out.
func (d *Discovery) legacyScan(ctx context.Context, timeout time.Duration) ([]Advertisement, error) {
	scanner, ok := d.transport.(AddressScanner)
	if !ok {
		return nil, ErrScanUnsupported
	}
	log.Debug().Msg("Full-metadata scan unavailable, using legacy address scan")
	addrs, err := scanner.ScanAddresses(ctx, timeout)
	if err != nil {
		return nil, err
	}
	advs := make([]Advertisement, 0, len(addrs))
	for _, addr := range addrs {
		advs = append(advs, Advertisement{MAC: addr, RSSI: -127})
	}
	return advs, nil
}

// Discover runs up to attempts scan rounds, stopping early once every target
// has been seen. It returns the advertisements found and the sorted list of
// targets that never appeared. With nil targets (list mode), collectAll keeps
// scanning through all attempts to build a full picture.
func (d *Discovery) Discover(
	ctx context.Context,
	targets map[string]struct{},
	attempts int,
	timeout time.Duration,
	collectAll bool,
) (map[string]Advertisement, []string, error) {
	if attempts < 1 {
		attempts = 1
	}
	collected := map[string]Advertisement{}

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return collected, missingFrom(targets, collected), err
		}
		log.Info().
			Int("attempt", attempt).
			Int("attempts", attempts).
			Dur("timeout", timeout).
			Msg("Scanning for BLE devices")

		found, err := d.scanOnce(ctx, timeout, targets)
		if err != nil {
			return collected, missingFrom(targets, collected), err
		}
		for mac, adv := range found {
			existing, seen := collected[mac]
			if !seen || adv.RSSI > existing.RSSI {
				collected[mac] = adv
			}
		}

		if targets != nil {
			missing := missingFrom(targets, collected)
			if len(missing) == 0 {
				break
			}
			if attempt < attempts {
				log.Info().Int("missing", len(missing)).Msg("Still missing target device(s), retrying")
			}
		} else if len(collected) > 0 && !collectAll {
			break
		}
	}

	return collected, missingFrom(targets, collected), nil
}

// Resolve runs one short bounded scan used only to warm handle caches before
// skip-discovery connects. Best effort: unresolved targets connect by raw
// address.
func (d *Discovery) Resolve(ctx context.Context, targets map[string]struct{}, timeout time.Duration) map[string]Advertisement {
	if len(targets) == 0 || timeout <= 0 {
		return nil
	}
	log.Debug().Dur("timeout", timeout).Msg("Resolving BLE handles for configured lights")
	found, err := d.scanOnce(ctx, timeout, targets)
	if err != nil {
		log.Debug().Err(err).Msg("Resolve scan failed, connecting by raw address")
		return nil
	}
	log.Debug().Int("resolved", len(found)).Int("targets", len(targets)).Msg("Resolve scan finished")
	return found
}

func missingFrom(targets map[string]struct{}, collected map[string]Advertisement) []string {
	if targets == nil {
		return nil
	}
	var missing []string
	for mac := range targets {
		if _, ok := collected[mac]; !ok {
			missing = append(missing, mac)
		}
	}
	sort.Strings(missing)
	return missing
}
