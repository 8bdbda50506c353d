package app

import (
	"context"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/neewerctl/internal/ble"
	"github.com/dokzlo13/neewerctl/internal/config"
	"github.com/dokzlo13/neewerctl/internal/light"
)

// gatherLights produces the working light set: via BLE discovery, or straight
// from config when skip-discovery is set. Returned missing addresses were
// requested but never seen on air; unconfigured addresses were requested with
// skip-discovery but have no config metadata.
func (a *App) gatherLights(ctx context.Context, targets map[string]struct{}) (lights []*light.Descriptor, missing, unconfigured []string, err error) {
	skip := a.Opts.SkipDiscovery
	if skip && len(a.Cfg.Lights) == 0 && targets == nil {
		// Keep --list usable when skip-discovery is configured by default.
		skip = false
		log.Debug().Msg("skip-discovery requested but no configured lights exist; falling back to BLE scan")
	}

	if skip {
		lights, unconfigured, err = a.staticLights(targets)
		if err != nil {
			return nil, nil, nil, err
		}
		log.Debug().Int("lights", len(lights)).Msg("Skipping BLE discovery, using configured addresses")
		a.warmScan(ctx, lights)
		return lights, nil, unconfigured, nil
	}

	discovery := ble.NewDiscovery(a.Transport)
	advs, missing, err := discovery.Discover(
		ctx,
		targets,
		a.Opts.ScanAttempts,
		secondsToDuration(a.Opts.ScanTimeout),
		a.Opts.List,
	)
	if err != nil && ctx.Err() == nil {
		return nil, nil, nil, err
	}

	lights = make([]*light.Descriptor, 0, len(advs))
	for _, adv := range advs {
		lights = append(lights, descriptorFromAdvertisement(adv))
	}
	sort.Slice(lights, func(i, j int) bool { return lights[i].MAC < lights[j].MAC })

	for _, l := range lights {
		if meta, ok := a.Cfg.Lights[l.MAC]; ok {
			meta.Merge(l)
		}
	}
	return lights, missing, nil, nil
}

// descriptorFromAdvertisement builds a descriptor from what the light
// advertises, inferring capabilities from the corrected model name.
func descriptorFromAdvertisement(adv ble.Advertisement) *light.Descriptor {
	corrected := light.CorrectedName(adv.Name)
	tempMin, tempMax, cctOnly, variant := light.Capabilities(corrected)
	return &light.Descriptor{
		MAC:      adv.MAC,
		Name:     corrected,
		RealName: adv.Name,
		RSSI:     adv.RSSI,
		Variant:  variant,
		CCTOnly:  cctOnly,
		TempMin:  tempMin,
		TempMax:  tempMax,
	}
}

// staticLights materializes descriptors from config without scanning. A nil
// target set means every configured light.
func (a *App) staticLights(targets map[string]struct{}) ([]*light.Descriptor, []string, error) {
	if targets == nil && len(a.Cfg.Lights) == 0 {
		return nil, nil, config.Errorf("--skip-discovery with --light ALL requires configured lights in the config file")
	}

	var addrs []string
	if targets == nil {
		for mac := range a.Cfg.Lights {
			addrs = append(addrs, mac)
		}
	} else {
		for mac := range targets {
			addrs = append(addrs, mac)
		}
	}
	sort.Strings(addrs)

	lights := make([]*light.Descriptor, 0, len(addrs))
	var unconfigured []string
	for _, mac := range addrs {
		meta, ok := a.Cfg.Lights[mac]
		if !ok {
			unconfigured = append(unconfigured, mac)
			meta = config.LightMeta{}
		}
		lights = append(lights, meta.Descriptor(mac))
	}
	return lights, unconfigured, nil
}

// warmScan runs one short scan so the host's BLE stack caches the targets
// before direct connects. Best effort; raw-address connects still work.
func (a *App) warmScan(ctx context.Context, lights []*light.Descriptor) {
	timeout := secondsToDuration(a.Opts.ResolveTimeout)
	if len(lights) == 0 || timeout <= 0 {
		return
	}
	targets := make(map[string]struct{}, len(lights))
	for _, l := range lights {
		targets[l.MAC] = struct{}{}
	}
	found := ble.NewDiscovery(a.Transport).Resolve(ctx, targets, timeout)
	for _, l := range lights {
		if adv, ok := found[l.MAC]; ok && adv.RSSI > -127 {
			l.RSSI = adv.RSSI
		}
	}
}
