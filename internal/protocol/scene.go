package protocol

// extendedScenePayload builds the per-effect tuning payload for lights that
// accept the long scene layout. Each effect has its own operand list; the
// layouts were captured from Infinity firmware traffic and are not uniform.
func extendedScenePayload(effect int, cmd Command) []byte {
	bri := byte(clamp(cmd.Bri, 0, 100))
	briMin := byte(clamp(cmd.BrightMin, 0, 100))
	briMax := byte(clamp(cmd.BrightMax, 0, 100))
	temp := byte(clamp(NormalizeTemp(cmd.Temp), 25, 100))
	tempMin := byte(clamp(NormalizeTemp(cmd.TempMin), 25, 100))
	tempMax := byte(clamp(NormalizeTemp(cmd.TempMax), 25, 100))
	gm := byte(clamp(cmd.GM+50, 0, 100))
	hueLo, hueHi := splitHue(cmd.Hue)
	hueMinLo, hueMinHi := splitHue(cmd.HueMin)
	hueMaxLo, hueMaxHi := splitHue(cmd.HueMax)
	sat := byte(clamp(cmd.Sat, 0, 100))
	speed := byte(clamp(cmd.Speed, 1, 10))
	sparks := byte(clamp(cmd.Sparks, 0, 10))
	special := byte(clamp(cmd.Special, 0, 10))

	fx := byte(effect)
	switch effect {
	case 1:
		return []byte{fx, bri, temp, speed}
	case 2, 3, 6, 8:
		return []byte{fx, bri, temp, gm, speed}
	case 4:
		return []byte{fx, bri, temp, gm, speed, sparks}
	case 5:
		return []byte{fx, briMin, briMax, temp, gm, speed}
	case 7, 9:
		return []byte{fx, bri, hueLo, hueHi, sat, speed}
	case 10:
		return []byte{fx, bri, special, speed}
	case 11:
		return []byte{fx, briMin, briMax, temp, gm, speed, sparks}
	case 12:
		return []byte{fx, bri, hueMinLo, hueMinHi, hueMaxLo, hueMaxHi, speed}
	case 13:
		return []byte{fx, bri, tempMin, tempMax, speed}
	case 14:
		return []byte{14, 0, briMin, briMax, 0, 0, temp, speed}
	case 15:
		return []byte{14, 1, briMin, briMax, hueLo, hueHi, 0, speed}
	case 16:
		return []byte{15, briMin, briMax, temp, gm, speed}
	case 17:
		return []byte{16, bri, special, speed, sparks}
	case 18:
		return []byte{17, bri, special, speed}
	case 21:
		return []byte{fx, bri, 2, 5}
	case 22:
		return []byte{fx, bri, 75, 50, 5}
	case 23:
		return []byte{fx, bri, 0, 0, 55, 0, 10}
	case 24:
		return []byte{fx, bri, 49, 0, 20, 1, 8}
	case 25:
		return []byte{fx, bri, 1, 10}
	case 26:
		return []byte{fx, 2, bri, 32, 50, 10, 4}
	case 27:
		return []byte{fx, bri, 75, 10}
	case 28:
		return []byte{fx, bri, 75, 50, 10}
	case 29:
		return []byte{fx, 2, bri, 75, 50, 10}
	default:
		return []byte{fx, bri}
	}
}
