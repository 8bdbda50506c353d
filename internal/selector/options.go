// Package selector turns user-level input (light selectors, presets, config
// defaults, CLI flags) into a concrete set of target addresses and effective
// per-light commands.
package selector

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dokzlo13/neewerctl/internal/config"
	"github.com/dokzlo13/neewerctl/internal/light"
)

// Options is the merged option surface: command fields, selection fields and
// transport tuning, all sharing one precedence chain. Built-in defaults lose
// to config defaults, which lose to preset values, which lose to anything the
// user set explicitly on the command line.
type Options struct {
	Light  string
	Preset string
	Mode   string
	On     bool
	Off    bool

	List          bool
	Status        bool
	Serve         bool
	SkipDiscovery bool

	Temp  int
	Hue   int
	Sat   int
	Bri   int
	GM    int
	Scene int

	SceneBrightMin int
	SceneBrightMax int
	SceneTempMin   int
	SceneTempMax   int
	SceneHueMin    int
	SceneHueMax    int
	SceneSpeed     int
	SceneSparks    int
	SceneSpecial   int

	ScanTimeout    float64
	ScanAttempts   int
	ResolveTimeout float64
	StatusTimeout  float64
	ConnectTimeout float64
	ConnectRetries int
	WriteRetries   int
	Passes         int
	Parallel       int
	SettleMS       int

	NoResponse          bool
	EnableStatusQuery   bool
	EnableExtendedScene bool
	Debug               bool

	explicit map[string]bool
}

// NewOptions returns the built-in defaults, the bottom of the precedence
// chain.
func NewOptions() *Options {
	return &Options{
		Mode:           "CCT",
		Temp:           56,
		Hue:            240,
		Sat:            100,
		Bri:            100,
		Scene:          1,
		SceneBrightMax: 100,
		SceneTempMin:   3200,
		SceneTempMax:   5600,
		SceneHueMax:    360,
		SceneSpeed:     5,
		SceneSpecial:   1,
		ScanTimeout:    8.0,
		ScanAttempts:   3,
		ResolveTimeout: 2.0,
		StatusTimeout:  1.0,
		ConnectTimeout: 12.0,
		ConnectRetries: 3,
		WriteRetries:   2,
		Passes:         2,
		Parallel:       2,
		SettleMS:       50,
		explicit:       map[string]bool{},
	}
}

// Clone copies the options with the explicit-flag marks cleared, so presets
// and overrides applied to the clone win unconditionally. Serve mode derives
// per-line options this way.
func (o *Options) Clone() *Options {
	clone := *o
	clone.explicit = map[string]bool{}
	return &clone
}

// MarkExplicit records that the user set a flag on the command line, pinning
// it against config defaults and presets. Flag names use dashes or
// underscores interchangeably.
func (o *Options) MarkExplicit(name string) {
	if o.explicit == nil {
		o.explicit = map[string]bool{}
	}
	o.explicit[canonicalKey(name)] = true
}

func (o *Options) isExplicit(key string) bool {
	return o.explicit[key]
}

// aliasMap maps the friendlier preset/config spellings onto flag names.
var aliasMap = map[string]string{
	"lights":          "light",
	"brightness":      "bri",
	"saturation":      "sat",
	"temperature":     "temp",
	"effect":          "scene",
	"power":           "on",
	"bright_min":      "scene_bright_min",
	"bright_max":      "scene_bright_max",
	"temp_min":        "scene_temp_min",
	"temp_max":        "scene_temp_max",
	"hue_min":         "scene_hue_min",
	"hue_max":         "scene_hue_max",
	"speed":           "scene_speed",
	"sparks":          "scene_sparks",
	"special_options": "scene_special",
	"specialoptions":  "scene_special",
}

func canonicalKey(raw string) string {
	key := strings.ReplaceAll(strings.TrimSpace(raw), "-", "_")
	if mapped, ok := aliasMap[key]; ok {
		return mapped
	}
	return key
}

// apply sets one option by canonical key, coercing the value the way config
// files deliver it. Unknown keys are ignored and reported false.
func (o *Options) apply(key string, value any) bool {
	switch key {
	case "light", "lights":
		if list, ok := value.([]any); ok {
			parts := make([]string, 0, len(list))
			for _, entry := range list {
				parts = append(parts, fmt.Sprint(entry))
			}
			o.Light = strings.Join(parts, ",")
		} else {
			o.Light = fmt.Sprint(value)
		}
	case "preset":
		o.Preset = fmt.Sprint(value)
	case "mode":
		o.Mode = fmt.Sprint(value)
	case "on":
		o.applyPower(value)
	case "off":
		o.Off = toBool(value, o.Off)
	case "list":
		o.List = toBool(value, o.List)
	case "status":
		o.Status = toBool(value, o.Status)
	case "serve":
		o.Serve = toBool(value, o.Serve)
	case "skip_discovery":
		o.SkipDiscovery = toBool(value, o.SkipDiscovery)
	case "temp":
		o.Temp = toInt(value, o.Temp)
	case "hue":
		o.Hue = toInt(value, o.Hue)
	case "sat":
		o.Sat = toInt(value, o.Sat)
	case "bri":
		o.Bri = toInt(value, o.Bri)
	case "gm":
		o.GM = toInt(value, o.GM)
	case "scene":
		o.Scene = toInt(value, o.Scene)
	case "scene_bright_min":
		o.SceneBrightMin = toInt(value, o.SceneBrightMin)
	case "scene_bright_max":
		o.SceneBrightMax = toInt(value, o.SceneBrightMax)
	case "scene_temp_min":
		o.SceneTempMin = toInt(value, o.SceneTempMin)
	case "scene_temp_max":
		o.SceneTempMax = toInt(value, o.SceneTempMax)
	case "scene_hue_min":
		o.SceneHueMin = toInt(value, o.SceneHueMin)
	case "scene_hue_max":
		o.SceneHueMax = toInt(value, o.SceneHueMax)
	case "scene_speed":
		o.SceneSpeed = toInt(value, o.SceneSpeed)
	case "scene_sparks":
		o.SceneSparks = toInt(value, o.SceneSparks)
	case "scene_special":
		o.SceneSpecial = toInt(value, o.SceneSpecial)
	case "scan_timeout":
		o.ScanTimeout = toFloat(value, o.ScanTimeout)
	case "scan_attempts":
		o.ScanAttempts = toInt(value, o.ScanAttempts)
	case "resolve_timeout":
		o.ResolveTimeout = toFloat(value, o.ResolveTimeout)
	case "status_timeout":
		o.StatusTimeout = toFloat(value, o.StatusTimeout)
	case "connect_timeout":
		o.ConnectTimeout = toFloat(value, o.ConnectTimeout)
	case "connect_retries":
		o.ConnectRetries = toInt(value, o.ConnectRetries)
	case "write_retries":
		o.WriteRetries = toInt(value, o.WriteRetries)
	case "passes":
		o.Passes = toInt(value, o.Passes)
	case "parallel":
		o.Parallel = toInt(value, o.Parallel)
	case "settle_ms":
		o.SettleMS = toInt(value, o.SettleMS)
	case "no_response":
		o.NoResponse = toBool(value, o.NoResponse)
	case "enable_status_query":
		o.EnableStatusQuery = toBool(value, o.EnableStatusQuery)
	case "enable_extended_scene":
		o.EnableExtendedScene = toBool(value, o.EnableExtendedScene)
	case "debug":
		o.Debug = toBool(value, o.Debug)
	default:
		return false
	}
	return true
}

// applyPower accepts the power spellings presets use: booleans, 0/1 and the
// strings ON/OFF/TRUE/FALSE. It keeps On and Off mutually consistent.
func (o *Options) applyPower(value any) {
	if s, ok := value.(string); ok {
		switch strings.ToUpper(strings.TrimSpace(s)) {
		case "ON", "1", "TRUE":
			o.On, o.Off = true, false
		case "OFF", "0", "FALSE":
			o.On, o.Off = false, true
		}
		return
	}
	o.On = toBool(value, false)
	o.Off = !o.On
}

// ApplyDefaults layers the config file's defaults block under whatever the
// user set explicitly.
func (o *Options) ApplyDefaults(defaults map[string]any) {
	for rawKey, value := range defaults {
		key := canonicalKey(rawKey)
		if key == "on" || key == "off" {
			if o.isExplicit("on") || o.isExplicit("off") {
				continue
			}
		} else if o.isExplicit(key) {
			continue
		}
		o.apply(key, value)
	}
}

// ApplyPreset merges a named preset into the options and returns its
// per-light command overrides (MAC -> field map). When the preset carries
// per_light entries and the user gave no explicit --light, the per_light
// keys become the effective selector.
func (o *Options) ApplyPreset(cfg *config.Config) (map[string]map[string]any, error) {
	if o.Preset == "" {
		return nil, nil
	}
	preset, ok := cfg.Presets[o.Preset]
	if !ok {
		return nil, config.Errorf("preset %q not found in config", o.Preset)
	}

	perLight := map[string]map[string]any{}
	if rawPerLight, ok := preset["per_light"]; ok {
		table, ok := rawPerLight.(map[string]any)
		if !ok {
			return nil, config.Errorf("preset %q: per_light must be an object", o.Preset)
		}
		for address, commandInfo := range table {
			fields, ok := commandInfo.(map[string]any)
			if !ok {
				return nil, config.Errorf("preset %q: per_light[%s] must be an object", o.Preset, address)
			}
			normalized, err := light.ValidateMAC(address, "preset per_light address")
			if err != nil {
				return nil, config.Errorf("preset %q: %v", o.Preset, err)
			}
			perLight[normalized] = fields
		}
		if !o.isExplicit("light") && len(perLight) > 0 {
			macs := make([]string, 0, len(perLight))
			for mac := range perLight {
				macs = append(macs, mac)
			}
			sort.Strings(macs)
			o.Light = strings.Join(macs, ",")
		}
	}

	for rawKey, value := range preset {
		if rawKey == "per_light" {
			continue
		}
		key := canonicalKey(rawKey)
		if key == "on" {
			if o.isExplicit("on") || o.isExplicit("off") {
				continue
			}
		} else if o.isExplicit(key) {
			continue
		}
		o.apply(key, value)
	}
	return perLight, nil
}

// applyOverrides layers per-light preset fields over a copy of the options.
// Overrides always win; explicitness does not apply inside per_light.
func (o *Options) applyOverrides(overrides map[string]any) *Options {
	clone := *o
	for rawKey, value := range overrides {
		clone.apply(canonicalKey(rawKey), value)
	}
	return &clone
}

func toBool(value any, fallback bool) bool {
	switch v := value.(type) {
	case bool:
		return v
	case int:
		return v != 0
	case float64:
		return v != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func toInt(value any, fallback int) int {
	switch v := value.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case bool:
		if v {
			return 1
		}
		return 0
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return fallback
}

func toFloat(value any, fallback float64) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return fallback
}
