package selector

import (
	"strings"

	"github.com/dokzlo13/neewerctl/internal/config"
	"github.com/dokzlo13/neewerctl/internal/light"
	"github.com/dokzlo13/neewerctl/internal/protocol"
)

// Resolve expands a selector expression into target addresses. A nil slice
// with all=true means "every known light" (empty selector, ALL or *).
// Addresses keep first-appearance order with duplicates removed.
func Resolve(selector string, groups map[string][]string) (addrs []string, all bool, err error) {
	trimmed := strings.TrimSpace(selector)
	if trimmed == "" || strings.EqualFold(trimmed, "ALL") || trimmed == "*" {
		return nil, true, nil
	}

	seen := map[string]bool{}
	add := func(mac string) {
		if !seen[mac] {
			seen[mac] = true
			addrs = append(addrs, mac)
		}
	}

	for _, token := range strings.Split(trimmed, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		if name, ok := cutGroupPrefix(token); ok {
			members, found := groups[name]
			if !found {
				return nil, false, config.Errorf("unknown group %q in light selector", name)
			}
			for _, mac := range members {
				add(light.NormalizeMAC(mac))
			}
			continue
		}
		mac, err := light.ValidateMAC(token, "light selector address")
		if err != nil {
			return nil, false, config.Errorf("%v", err)
		}
		add(mac)
	}
	return addrs, false, nil
}

func cutGroupPrefix(token string) (string, bool) {
	if len(token) > 6 && strings.EqualFold(token[:6], "group:") {
		return token[6:], true
	}
	return "", false
}

// BuildCommand lowers the effective options into one logical command.
// --on/--off short-circuit the color mode.
func (o *Options) BuildCommand() (protocol.Command, error) {
	if o.On || o.Off {
		return protocol.Command{Mode: protocol.ModePower, PowerOn: o.On}, nil
	}

	switch strings.ToUpper(strings.TrimSpace(o.Mode)) {
	case "CCT", "":
		return protocol.Command{
			Mode: protocol.ModeCCT,
			Temp: o.Temp,
			Bri:  o.Bri,
			GM:   o.GM,
		}, nil
	case "HSI":
		return protocol.Command{
			Mode: protocol.ModeHSI,
			Hue:  o.Hue,
			Sat:  o.Sat,
			Bri:  o.Bri,
		}, nil
	case "ANM", "SCENE":
		return protocol.Command{
			Mode:      protocol.ModeScene,
			Effect:    o.Scene,
			Bri:       o.Bri,
			Extended:  o.EnableExtendedScene,
			BrightMin: o.SceneBrightMin,
			BrightMax: o.SceneBrightMax,
			TempMin:   o.SceneTempMin,
			TempMax:   o.SceneTempMax,
			HueMin:    o.SceneHueMin,
			HueMax:    o.SceneHueMax,
			Speed:     o.SceneSpeed,
			Sparks:    o.SceneSparks,
			Special:   o.SceneSpecial,
		}, nil
	}
	return protocol.Command{}, config.Errorf("unsupported mode %q", o.Mode)
}

// CommandFor builds the command that results from layering one per-light
// override set over these options.
func (o *Options) CommandFor(overrides map[string]any) (protocol.Command, error) {
	return o.applyOverrides(overrides).BuildCommand()
}

// Commands builds the effective per-light command map: the base command for
// every address, with per-light preset overrides layered on top where given.
func (o *Options) Commands(addrs []string, perLight map[string]map[string]any) (map[string]protocol.Command, error) {
	base, err := o.BuildCommand()
	if err != nil {
		return nil, err
	}
	commands := make(map[string]protocol.Command, len(addrs))
	for _, mac := range addrs {
		overrides, ok := perLight[mac]
		if !ok {
			commands[mac] = base
			continue
		}
		cmd, err := o.applyOverrides(overrides).BuildCommand()
		if err != nil {
			return nil, config.Errorf("per_light[%s]: %v", mac, err)
		}
		commands[mac] = cmd
	}
	return commands, nil
}
