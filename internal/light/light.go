// Package light models Neewer BLE fixtures: addresses, protocol variants and
// per-model capabilities. Descriptors are constructed once per run and treated
// as read-only by everything downstream.
package light

import (
	"fmt"
	"strconv"
	"strings"
)

// Variant selects the wire dialect a fixture speaks.
type Variant int

const (
	// VariantClassic is the original command path: no embedded addressing.
	VariantClassic Variant = iota
	// VariantInfinity embeds the hardware MAC in every payload and needs a
	// power cycle around scene changes.
	VariantInfinity
	// VariantHybrid uses Infinity payload tagging without the full Infinity
	// behavior (no power-cycle wrapping).
	VariantHybrid
)

// String returns a human-readable name for the variant.
func (v Variant) String() string {
	switch v {
	case VariantClassic:
		return "classic"
	case VariantInfinity:
		return "infinity"
	case VariantHybrid:
		return "hybrid"
	default:
		return "unknown"
	}
}

// ParseVariant accepts the config spellings for a protocol variant: the
// canonical names and the legacy numeric infinity_mode values 0/1/2.
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "classic", "0", "":
		return VariantClassic, nil
	case "infinity", "1":
		return VariantInfinity, nil
	case "hybrid", "2":
		return VariantHybrid, nil
	}
	return VariantClassic, fmt.Errorf("unknown protocol variant %q", s)
}

// Descriptor is one physical fixture. The MAC is immutable once constructed;
// capability flags are read-only during a run. Runtime state (radio handle,
// error trail) lives in the session that owns the light, never here.
type Descriptor struct {
	MAC      string // canonical BLE address, unique key for the run
	Name     string // corrected model name, or a human label from config
	RealName string // raw advertised name
	RSSI     int

	Variant Variant
	CCTOnly bool

	// Kelvin bounds from the model table; zero means unknown (no validation).
	TempMin int
	TempMax int

	// HardwareMAC overrides the address embedded in Infinity payloads.
	// Falls back to MAC when empty.
	HardwareMAC string

	// Capability overrides from config; nil means infer from the model name.
	StatusQuery   *bool
	ExtendedScene *bool
}

// DisplayName returns the human label, defaulting to the MAC.
func (d *Descriptor) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.MAC
}

// InfinityMAC returns the address to embed in Infinity/hybrid payloads.
func (d *Descriptor) InfinityMAC() (string, error) {
	if d.HardwareMAC != "" {
		return d.HardwareMAC, nil
	}
	if strings.Count(d.MAC, ":") == 5 {
		return d.MAC, nil
	}
	return "", fmt.Errorf("infinity command requires a MAC address, device address is %q", d.MAC)
}

// SupportsStatusQuery reports whether the notify-based status protocol is
// expected to work on this light, honoring the per-light override first.
func (d *Descriptor) SupportsStatusQuery() bool {
	if d.StatusQuery != nil {
		return *d.StatusQuery
	}
	name := strings.ToUpper(d.Name)
	if name == "" {
		return false
	}
	for _, prefix := range statusUnsupportedPrefixes {
		if strings.HasPrefix(name, prefix) {
			return false
		}
	}
	for _, prefix := range statusSupportedPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// SupportsExtendedScene reports whether extended scene payloads may be sent.
func (d *Descriptor) SupportsExtendedScene() bool {
	if d.ExtendedScene != nil {
		return *d.ExtendedScene
	}
	return d.Variant != VariantClassic && !d.CCTOnly
}

// CorrectedName resolves project-number advertisements to real model names.
func CorrectedName(raw string) string {
	if raw == "" {
		return "Unknown"
	}
	for _, entry := range nameNeedles {
		if strings.Contains(raw, entry.needle) {
			return entry.model
		}
	}
	return raw
}

// SpecFor looks up the model table entry matching a light name. Later table
// entries win so specific names shadow generic prefixes.
func SpecFor(name string) (Spec, bool) {
	for i := len(masterSpecs) - 1; i >= 0; i-- {
		if strings.Contains(name, masterSpecs[i].Model) {
			return masterSpecs[i], true
		}
	}
	return Spec{}, false
}

// Capabilities infers protocol traits from a model name. Unknown models get
// the conservative classic defaults.
func Capabilities(name string) (tempMin, tempMax int, cctOnly bool, variant Variant) {
	spec, ok := SpecFor(name)
	if !ok {
		return 3200, 5600, false, VariantClassic
	}
	return spec.TempMin, spec.TempMax, spec.CCTOnly, spec.Variant
}

// IsNeewerName reports whether an advertised device name looks like a Neewer
// fixture. Used only when scanning without explicit target addresses.
func IsNeewerName(name string) bool {
	if name == "" {
		return false
	}
	upper := strings.ToUpper(name)
	for _, prefix := range acceptedNamePrefixes {
		if strings.HasPrefix(upper, prefix) {
			return true
		}
	}
	return false
}

// NormalizeMAC canonicalizes an address for map keys and comparisons.
func NormalizeMAC(addr string) string {
	return strings.ToUpper(strings.TrimSpace(addr))
}

// ValidateMAC normalizes and validates a BLE address. The context string
// names the config location for error messages.
func ValidateMAC(addr, context string) (string, error) {
	normalized := NormalizeMAC(addr)
	parts := strings.Split(normalized, ":")
	if len(parts) != 6 {
		return "", fmt.Errorf("invalid %s %q: expected 6 octets", context, addr)
	}
	for _, part := range parts {
		if len(part) != 2 {
			return "", fmt.Errorf("invalid %s %q: octets must be 2 hex chars", context, addr)
		}
		if _, err := strconv.ParseUint(part, 16, 8); err != nil {
			return "", fmt.Errorf("invalid %s %q: non-hex octet %q", context, addr, part)
		}
	}
	return normalized, nil
}

// SplitMAC converts a validated MAC into the six payload bytes embedded in
// Infinity packets.
func SplitMAC(mac string) ([]byte, error) {
	parts := strings.Split(mac, ":")
	if len(parts) != 6 {
		return nil, fmt.Errorf("expected MAC address with 6 octets, got %q", mac)
	}
	out := make([]byte, 6)
	for i, part := range parts {
		v, err := strconv.ParseUint(part, 16, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid MAC octet %q in %q", part, mac)
		}
		out[i] = byte(v)
	}
	return out, nil
}
