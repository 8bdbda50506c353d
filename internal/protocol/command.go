// Package protocol lowers logical light commands into the Neewer BLE wire
// format. Everything here is pure: descriptors and commands in, checksummed
// packets out, no transport and no mutation.
package protocol

import (
	"fmt"
	"time"
)

// Mode is the logical command kind, independent of wire encoding.
type Mode int

const (
	ModePower Mode = iota
	ModeCCT
	ModeHSI
	ModeScene
	ModeStatus
)

// String returns a human-readable name for the mode.
func (m Mode) String() string {
	switch m {
	case ModePower:
		return "power"
	case ModeCCT:
		return "cct"
	case ModeHSI:
		return "hsi"
	case ModeScene:
		return "scene"
	case ModeStatus:
		return "status"
	default:
		return "unknown"
	}
}

// Command is one logical instruction for a light. Temperatures accept either
// protocol scale (roughly 0-100) or Kelvin-like values (5600); NormalizeTemp
// folds the latter into protocol scale before encoding.
type Command struct {
	Mode Mode

	// ModePower
	PowerOn bool

	// ModeCCT (Temp, Bri, GM) and scene tuning reuse
	Temp int
	Bri  int
	GM   int // -50..50, shifted by +50 on the wire

	// ModeHSI
	Hue int // 0-360
	Sat int // 0-100

	// ModeScene
	Effect   int  // 1-29
	Extended bool // use the extended per-effect payload layout

	// Extended scene tuning, only consulted when Extended is set.
	BrightMin int
	BrightMax int
	TempMin   int
	TempMax   int
	HueMin    int
	HueMax    int
	Speed     int
	Sparks    int
	Special   int
}

// Describe renders a command the way batch logs report it.
func (c Command) Describe() string {
	switch c.Mode {
	case ModePower:
		if c.PowerOn {
			return "Power ON"
		}
		return "Power OFF"
	case ModeCCT:
		return fmt.Sprintf("CCT temp=%d00K bri=%d gm=%d", NormalizeTemp(c.Temp), c.Bri, c.GM)
	case ModeHSI:
		return fmt.Sprintf("HSI hue=%d sat=%d bri=%d", c.Hue, c.Sat, c.Bri)
	case ModeScene:
		return fmt.Sprintf("SCENE effect=%d bri=%d", c.Effect, c.Bri)
	case ModeStatus:
		return "Status query"
	default:
		return fmt.Sprintf("RAW mode=%d", int(c.Mode))
	}
}

// Packet is one checksummed write, plus its delivery hints: whether the GATT
// write should request a response, and how long to settle before the next
// packet in the sequence.
type Packet struct {
	Data         []byte
	WithResponse bool
	SettleAfter  time.Duration
}

// Options tune encoding behavior that is configuration, not command, level.
type Options struct {
	// PowerWithResponse requests acknowledged writes for power packets.
	PowerWithResponse bool
}
