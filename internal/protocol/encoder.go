package protocol

import (
	"fmt"
	"math"
	"time"

	"github.com/dokzlo13/neewerctl/internal/light"
)

// Wire constants. Every packet starts with the prefix byte, followed by a
// command-type byte, a payload length byte, the payload, and a one-byte
// truncated sum checksum.
const (
	prefixByte = 120

	cmdPower     = 129
	cmdBriOnly   = 130
	cmdTempOnly  = 131
	cmdChQuery   = 132
	cmdPwrQuery  = 133
	cmdHSI       = 134
	cmdCCT       = 135
	cmdScene     = 136
	cmdSceneTag  = 139 // infinity/hybrid scene payload tag
	cmdInfPower  = 141
	cmdInfHSI    = 143
	cmdInfCCT    = 144
	cmdInfScene  = 145
)

// Settle pause after the packets that Neewer firmware needs a beat to absorb
// (first half of a split CCT write, each leg of a scene power cycle).
const firmwareSettle = 50 * time.Millisecond

// Checksum computes the 8-bit truncated sum over a packet body.
func Checksum(body []byte) byte {
	var sum int
	for _, b := range body {
		sum += int(b)
	}
	return byte(sum & 0xFF)
}

// AppendChecksum returns body with its checksum byte appended.
func AppendChecksum(body []byte) []byte {
	out := make([]byte, 0, len(body)+1)
	out = append(out, body...)
	return append(out, Checksum(body))
}

// VerifyChecksum reports whether the trailing byte of a packet matches the
// checksum of everything before it.
func VerifyChecksum(packet []byte) bool {
	if len(packet) < 2 {
		return false
	}
	return Checksum(packet[:len(packet)-1]) == packet[len(packet)-1]
}

// NormalizeTemp folds Kelvin-like temperatures (>= 100) into the protocol's
// 0-100 scale. Already-normalized values pass through unchanged, so the
// function is idempotent.
func NormalizeTemp(v int) int {
	if v >= 100 {
		return int(math.Round(float64(v) / 100.0))
	}
	return v
}

func clamp(v, low, high int) int {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}

func splitHue(v int) (lo, hi byte) {
	hue := clamp(v, 0, 360)
	return byte(hue & 0xFF), byte((hue & 0xFF00) >> 8)
}

// UnsupportedCommandError reports a command incompatible with a light's
// capabilities. It aborts only that light, never the batch.
type UnsupportedCommandError struct {
	Light  string
	Reason string
}

func (e *UnsupportedCommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Light, e.Reason)
}

// Encode lowers a logical command into the ordered packet sequence for one
// light. The result is deterministic; callers regenerate it per send attempt.
func Encode(d *light.Descriptor, cmd Command, opts Options) ([]Packet, error) {
	if d.CCTOnly && (cmd.Mode == ModeHSI || cmd.Mode == ModeScene) {
		return nil, &UnsupportedCommandError{
			Light:  d.DisplayName(),
			Reason: fmt.Sprintf("%s only supports CCT mode", d.DisplayName()),
		}
	}

	switch cmd.Mode {
	case ModePower:
		return encodePower(d, cmd, opts)
	case ModeCCT:
		if err := validateCCTRange(d, cmd); err != nil {
			return nil, err
		}
		return encodeCCT(d, cmd)
	case ModeHSI:
		return encodeHSI(d, cmd)
	case ModeScene:
		return encodeScene(d, cmd)
	case ModeStatus:
		if !d.SupportsStatusQuery() {
			return nil, &UnsupportedCommandError{
				Light:  d.DisplayName(),
				Reason: "status query not supported by this model",
			}
		}
		return []Packet{PowerStatusQuery(), ChannelStatusQuery()}, nil
	}
	return nil, fmt.Errorf("unsupported command mode %d", int(cmd.Mode))
}

// validateCCTRange rejects temperatures outside the model's known bounds.
func validateCCTRange(d *light.Descriptor, cmd Command) error {
	if d.TempMin == 0 && d.TempMax == 0 {
		return nil
	}
	minTemp := clamp(NormalizeTemp(d.TempMin), 25, 100)
	maxTemp := clamp(NormalizeTemp(d.TempMax), 25, 100)
	if maxTemp < minTemp {
		minTemp, maxTemp = maxTemp, minTemp
	}
	temp := clamp(NormalizeTemp(cmd.Temp), 25, 100)
	if temp >= minTemp && temp <= maxTemp {
		return nil
	}
	supported := fmt.Sprintf("%d00K-%d00K", minTemp, maxTemp)
	if minTemp == maxTemp {
		supported = fmt.Sprintf("%d00K", minTemp)
	}
	return &UnsupportedCommandError{
		Light:  d.DisplayName(),
		Reason: fmt.Sprintf("supports CCT %s, got %d00K", supported, temp),
	}
}

func encodePower(d *light.Descriptor, cmd Command, opts Options) ([]Packet, error) {
	if d.Variant == light.VariantInfinity {
		mac, err := d.InfinityMAC()
		if err != nil {
			return nil, err
		}
		body, err := infinityPowerBody(cmd.PowerOn, mac)
		if err != nil {
			return nil, err
		}
		return []Packet{{Data: AppendChecksum(body), WithResponse: opts.PowerWithResponse}}, nil
	}

	state := byte(2)
	if cmd.PowerOn {
		state = 1
	}
	body := []byte{prefixByte, cmdPower, 1, state}
	return []Packet{{Data: AppendChecksum(body), WithResponse: opts.PowerWithResponse}}, nil
}

func infinityPowerBody(on bool, mac string) ([]byte, error) {
	octets, err := light.SplitMAC(mac)
	if err != nil {
		return nil, err
	}
	state := byte(0)
	if on {
		state = 1
	}
	body := []byte{prefixByte, cmdInfPower, 8}
	body = append(body, octets...)
	return append(body, cmdPower, state), nil
}

func encodeCCT(d *light.Descriptor, cmd Command) ([]Packet, error) {
	bri := byte(clamp(cmd.Bri, 0, 100))
	temp := byte(clamp(NormalizeTemp(cmd.Temp), 25, 100))
	gm := byte(clamp(cmd.GM+50, 0, 100))

	if d.CCTOnly {
		// Split write: brightness first, then temperature. GM is dropped,
		// these panels have no green-magenta channel.
		briPkt := AppendChecksum([]byte{prefixByte, cmdBriOnly, 1, bri})
		tempPkt := AppendChecksum([]byte{prefixByte, cmdTempOnly, 1, temp})
		return []Packet{
			{Data: briPkt, SettleAfter: firmwareSettle},
			{Data: tempPkt},
		}, nil
	}

	switch d.Variant {
	case light.VariantInfinity:
		mac, err := d.InfinityMAC()
		if err != nil {
			return nil, err
		}
		octets, err := light.SplitMAC(mac)
		if err != nil {
			return nil, err
		}
		body := []byte{prefixByte, cmdInfCCT, 11}
		body = append(body, octets...)
		body = append(body, cmdCCT, bri, temp, gm, 4)
		return []Packet{{Data: AppendChecksum(body)}}, nil
	case light.VariantHybrid:
		body := []byte{prefixByte, cmdCCT, 3, bri, temp, gm}
		return []Packet{{Data: AppendChecksum(body)}}, nil
	default:
		// Classic lights ignore GM in CCT; the channel is silently dropped.
		body := []byte{prefixByte, cmdCCT, 2, bri, temp}
		return []Packet{{Data: AppendChecksum(body)}}, nil
	}
}

func encodeHSI(d *light.Descriptor, cmd Command) ([]Packet, error) {
	hueLo, hueHi := splitHue(cmd.Hue)
	sat := byte(clamp(cmd.Sat, 0, 100))
	bri := byte(clamp(cmd.Bri, 0, 100))

	if d.Variant == light.VariantInfinity {
		mac, err := d.InfinityMAC()
		if err != nil {
			return nil, err
		}
		octets, err := light.SplitMAC(mac)
		if err != nil {
			return nil, err
		}
		body := []byte{prefixByte, cmdInfHSI, 11}
		body = append(body, octets...)
		body = append(body, cmdHSI, hueLo, hueHi, sat, bri)
		return []Packet{{Data: AppendChecksum(body)}}, nil
	}

	body := []byte{prefixByte, cmdHSI, 4, hueLo, hueHi, sat, bri}
	return []Packet{{Data: AppendChecksum(body)}}, nil
}

func encodeScene(d *light.Descriptor, cmd Command) ([]Packet, error) {
	if cmd.Extended && !d.SupportsExtendedScene() {
		return nil, &UnsupportedCommandError{
			Light:  d.DisplayName(),
			Reason: "extended scene arguments not supported by this model",
		}
	}

	effect := clamp(cmd.Effect, 1, 29)
	var scenePayload []byte // payload after the scene tag: effect plus tuning
	if cmd.Extended {
		scenePayload = extendedScenePayload(effect, cmd)
	} else {
		scenePayload = []byte{byte(effect), byte(clamp(cmd.Bri, 0, 100))}
	}

	switch d.Variant {
	case light.VariantInfinity:
		mac, err := d.InfinityMAC()
		if err != nil {
			return nil, err
		}
		octets, err := light.SplitMAC(mac)
		if err != nil {
			return nil, err
		}
		body := []byte{prefixByte, cmdInfScene, byte(7 + len(scenePayload))}
		body = append(body, octets...)
		body = append(body, cmdSceneTag, byte(ConvertFXIndex(d.Variant, int(scenePayload[0]))))
		body = append(body, scenePayload[1:]...)

		// These models only apply scene changes reliably across an explicit
		// power cycle.
		powerOff, err := infinityPowerBody(false, mac)
		if err != nil {
			return nil, err
		}
		powerOn, err := infinityPowerBody(true, mac)
		if err != nil {
			return nil, err
		}
		return []Packet{
			{Data: AppendChecksum(powerOff), SettleAfter: firmwareSettle},
			{Data: AppendChecksum(powerOn), SettleAfter: firmwareSettle},
			{Data: AppendChecksum(body)},
		}, nil
	case light.VariantHybrid:
		body := []byte{prefixByte, cmdSceneTag, byte(len(scenePayload))}
		body = append(body, scenePayload...)
		return []Packet{{Data: AppendChecksum(body)}}, nil
	default:
		// Classic layout flips the operand order and remaps effect indexes.
		bri := byte(clamp(cmd.Bri, 0, 100))
		body := []byte{prefixByte, cmdScene, 2, bri, byte(ConvertFXIndex(d.Variant, effect))}
		return []Packet{{Data: AppendChecksum(body)}}, nil
	}
}

// ConvertFXIndex translates a logical effect number into the index the given
// dialect expects. The two effect tables diverged when Infinity firmware
// renumbered built-in scenes.
func ConvertFXIndex(variant light.Variant, effect int) int {
	if variant != light.VariantClassic {
		if effect > 20 {
			if mapped, ok := map[int]int{
				21: 10, 22: 8, 23: 12, 24: 12, 25: 17, 26: 11, 27: 1, 28: 2, 29: 15,
			}[effect]; ok {
				return mapped
			}
		}
		return effect
	}

	if effect < 20 {
		if mapped, ok := map[int]int{
			10: 1, 16: 4, 17: 5, 11: 6, 1: 7, 2: 8, 15: 9,
		}[effect]; ok {
			return mapped
		}
		return 10
	}
	return effect - 20
}
