// Package config loads and normalizes the neewerctl config file: engine
// defaults, the known-lights table, named groups and presets. YAML and JSON
// are both accepted; the engine consumes the normalized in-memory structure.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dokzlo13/neewerctl/internal/light"
)

// Error is a user-level configuration problem: bad selector, malformed
// config shape, unknown preset. Always recoverable at the batch level.
type Error struct {
	Msg string
}

func (e *Error) Error() string {
	return e.Msg
}

// Errorf builds a config error.
func Errorf(format string, args ...any) *Error {
	return &Error{Msg: fmt.Sprintf(format, args...)}
}

// LightMeta is the per-light metadata block from the config file. All fields
// are optional; missing capabilities are inferred from the model name.
type LightMeta struct {
	Name          string `yaml:"name" json:"name"`
	Variant       string `yaml:"protocol_variant" json:"protocol_variant"`
	CCTOnly       *bool  `yaml:"cct_only" json:"cct_only"`
	HardwareMAC   string `yaml:"hw_mac" json:"hw_mac"`
	StatusQuery   *bool  `yaml:"supports_status_query" json:"supports_status_query"`
	ExtendedScene *bool  `yaml:"supports_extended_scene" json:"supports_extended_scene"`
	RSSI          int    `yaml:"rssi" json:"rssi"`
}

// Config is the normalized configuration consumed by the engine.
type Config struct {
	// Defaults overlays built-in option defaults; keys accept the same
	// aliases presets do.
	Defaults map[string]any

	// Lights maps canonical MAC -> metadata.
	Lights map[string]LightMeta

	// Groups maps group name -> member MACs.
	Groups map[string][]string

	// Presets maps preset name -> raw command fields (plus optional
	// "lights" selector and "per_light" overrides).
	Presets map[string]map[string]any
}

// rawConfig matches the on-disk shape before normalization. Lights and groups
// accept more than one spelling, so they unmarshal into any.
type rawConfig struct {
	Defaults map[string]any            `yaml:"defaults" json:"defaults"`
	Lights   any                       `yaml:"lights" json:"lights"`
	Groups   map[string]any            `yaml:"groups" json:"groups"`
	Presets  map[string]map[string]any `yaml:"presets" json:"presets"`
}

// Load reads, parses and normalizes a config file. optional marks the path as
// the default location that may legitimately be absent, in which case the
// engine runs config-free.
func Load(path string, optional bool) (*Config, error) {
	if path == "" {
		return empty(), nil
	}
	expanded := expandHome(path)
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) && optional {
			return empty(), nil
		}
		return nil, Errorf("unable to read config file %q: %v", path, err)
	}

	text := expandEnvVars(string(data))

	var raw rawConfig
	switch strings.ToLower(filepath.Ext(expanded)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal([]byte(text), &raw); err != nil {
			return nil, Errorf("invalid YAML config %q: %v", path, err)
		}
	default:
		if err := json.Unmarshal([]byte(text), &raw); err != nil {
			return nil, Errorf("invalid JSON config %q: %v", path, err)
		}
	}

	cfg := empty()
	if raw.Defaults != nil {
		defaults, err := normalizeDefaults(raw.Defaults)
		if err != nil {
			return nil, err
		}
		cfg.Defaults = defaults
	}
	if raw.Presets != nil {
		cfg.Presets = raw.Presets
	}

	lights, err := normalizeLights(raw.Lights)
	if err != nil {
		return nil, err
	}
	cfg.Lights = lights

	groups, err := normalizeGroups(raw.Groups)
	if err != nil {
		return nil, err
	}
	cfg.Groups = groups

	return cfg, nil
}

func empty() *Config {
	return &Config{
		Defaults: map[string]any{},
		Lights:   map[string]LightMeta{},
		Groups:   map[string][]string{},
		Presets:  map[string]map[string]any{},
	}
}

// normalizeLights accepts either a MAC-keyed map or a list of entries with an
// "address" field and produces the canonical MAC-keyed table.
func normalizeLights(raw any) (map[string]LightMeta, error) {
	out := map[string]LightMeta{}
	if raw == nil {
		return out, nil
	}

	decode := func(value any, context string) (LightMeta, error) {
		var meta LightMeta
		node, err := yaml.Marshal(value)
		if err != nil {
			return meta, Errorf("%s must be an object with metadata fields", context)
		}
		if err := yaml.Unmarshal(node, &meta); err != nil {
			return meta, Errorf("%s must be an object with metadata fields: %v", context, err)
		}
		return meta, nil
	}

	switch typed := raw.(type) {
	case map[string]any:
		for key, value := range typed {
			mac, err := light.ValidateMAC(key, "light address key")
			if err != nil {
				return nil, &Error{Msg: err.Error()}
			}
			meta, err := decode(value, fmt.Sprintf("lights.%s", key))
			if err != nil {
				return nil, err
			}
			out[mac] = meta
		}
	case []any:
		for idx, row := range typed {
			entry, ok := row.(map[string]any)
			if !ok {
				return nil, Errorf("lights[%d] must be an object", idx)
			}
			address, _ := entry["address"].(string)
			if address == "" {
				return nil, Errorf("lights[%d] is missing required field 'address'", idx)
			}
			mac, err := light.ValidateMAC(address, fmt.Sprintf("lights[%d].address", idx))
			if err != nil {
				return nil, &Error{Msg: err.Error()}
			}
			meta, err := decode(entry, fmt.Sprintf("lights[%d]", idx))
			if err != nil {
				return nil, err
			}
			out[mac] = meta
		}
	default:
		return nil, Errorf("'lights' must be an object or array")
	}
	return out, nil
}

// durationDefaultUnits lists the defaults keys that accept human-readable
// duration strings ("8s", "250ms") and the numeric unit each one normalizes
// to: timeouts become float seconds, settle_ms becomes milliseconds.
var durationDefaultUnits = map[string]time.Duration{
	"scan_timeout":    time.Second,
	"resolve_timeout": time.Second,
	"status_timeout":  time.Second,
	"connect_timeout": time.Second,
	"settle_ms":       time.Millisecond,
}

// normalizeDefaults converts duration-string defaults into the numbers the
// option layer consumes. Plain numeric values pass through untouched.
func normalizeDefaults(raw map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(raw))
	for key, value := range raw {
		canon := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(key)), "-", "_")
		unit, isDuration := durationDefaultUnits[canon]
		text, isString := value.(string)
		if !isDuration || !isString {
			out[key] = value
			continue
		}
		if _, err := strconv.ParseFloat(strings.TrimSpace(text), 64); err == nil {
			// Bare numbers keep their historical meaning in the key's unit.
			out[key] = value
			continue
		}
		var d Duration
		if err := yaml.Unmarshal([]byte(text), &d); err != nil {
			return nil, Errorf("defaults.%s: invalid duration %q", key, text)
		}
		out[key] = float64(d.Duration()) / float64(unit)
	}
	return out, nil
}

// normalizeGroups accepts members as a list or as a comma-separated string.
func normalizeGroups(raw map[string]any) (map[string][]string, error) {
	out := map[string][]string{}
	for name, members := range raw {
		var tokens []string
		switch typed := members.(type) {
		case string:
			for _, tok := range strings.Split(typed, ",") {
				if tok = strings.TrimSpace(tok); tok != "" {
					tokens = append(tokens, tok)
				}
			}
		case []any:
			for idx, member := range typed {
				text := strings.TrimSpace(fmt.Sprint(member))
				if text == "" {
					return nil, Errorf("groups.%s[%d] must not be empty", name, idx)
				}
				tokens = append(tokens, text)
			}
		default:
			return nil, Errorf("groups.%s must be a list or comma-separated string", name)
		}

		parsed := make([]string, 0, len(tokens))
		for idx, tok := range tokens {
			mac, err := light.ValidateMAC(tok, fmt.Sprintf("groups.%s[%d]", name, idx))
			if err != nil {
				return nil, &Error{Msg: err.Error()}
			}
			parsed = append(parsed, mac)
		}
		out[name] = parsed
	}
	return out, nil
}

// Descriptor materializes a light descriptor from config metadata, inferring
// unset capabilities from the model table.
func (m LightMeta) Descriptor(mac string) *light.Descriptor {
	name := strings.TrimSpace(m.Name)
	if name == "" {
		name = "Configured Light"
	}

	tempMin, tempMax, inferredCCTOnly, inferredVariant := light.Capabilities(name)

	cctOnly := inferredCCTOnly
	if m.CCTOnly != nil {
		cctOnly = *m.CCTOnly
	}
	variant := inferredVariant
	if m.Variant != "" {
		if parsed, err := light.ParseVariant(m.Variant); err == nil {
			variant = parsed
		}
	}

	rssi := m.RSSI
	if rssi == 0 {
		rssi = -127
	}

	d := &light.Descriptor{
		MAC:           mac,
		Name:          name,
		RealName:      name,
		RSSI:          rssi,
		Variant:       variant,
		CCTOnly:       cctOnly,
		TempMin:       tempMin,
		TempMax:       tempMax,
		StatusQuery:   m.StatusQuery,
		ExtendedScene: m.ExtendedScene,
	}
	if m.HardwareMAC != "" {
		d.HardwareMAC = light.NormalizeMAC(m.HardwareMAC)
	}
	return d
}

// Merge overlays config metadata onto a descriptor built from discovery.
func (m LightMeta) Merge(d *light.Descriptor) {
	if name := strings.TrimSpace(m.Name); name != "" {
		d.Name = name
		d.RealName = name
	}
	if m.CCTOnly != nil {
		d.CCTOnly = *m.CCTOnly
	}
	if m.Variant != "" {
		if parsed, err := light.ParseVariant(m.Variant); err == nil {
			d.Variant = parsed
		}
	}
	if m.HardwareMAC != "" {
		d.HardwareMAC = light.NormalizeMAC(m.HardwareMAC)
	}
	if m.StatusQuery != nil {
		d.StatusQuery = m.StatusQuery
	}
	if m.ExtendedScene != nil {
		d.ExtendedScene = m.ExtendedScene
	}
}

// Duration is a wrapper around time.Duration for YAML/JSON unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") || path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
