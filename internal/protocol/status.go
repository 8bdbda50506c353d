package protocol

// Notify payload type bytes the light answers status queries with.
const (
	NotifyTypeChannel = 1
	NotifyTypePower   = 2
)

// PowerStatusQuery builds the query packet a light answers with a power
// notify payload (type 2).
func PowerStatusQuery() Packet {
	return Packet{Data: AppendChecksum([]byte{prefixByte, cmdPwrQuery, 0})}
}

// ChannelStatusQuery builds the query packet a light answers with a channel
// notify payload (type 1).
func ChannelStatusQuery() Packet {
	return Packet{Data: AppendChecksum([]byte{prefixByte, cmdChQuery, 0})}
}

// PowerState is the reported power state of a light.
type PowerState string

const (
	PowerOn      PowerState = "ON"
	PowerStandby PowerState = "STBY"
	PowerUnknown PowerState = "UNKNOWN"
)

// Status is the decoded result of a status query round-trip.
type Status struct {
	Power      PowerState
	Channel    int // -1 when the channel payload was absent or malformed
	PowerRaw   []byte
	ChannelRaw []byte
}

// ParseStatus decodes the notify payloads answering the two status queries.
// Either payload may be nil when the light never answered that query.
func ParseStatus(powerPayload, channelPayload []byte) Status {
	status := Status{Power: PowerUnknown, Channel: -1}

	if len(powerPayload) > 3 {
		switch powerPayload[3] {
		case 1:
			status.Power = PowerOn
		case 2:
			status.Power = PowerStandby
		}
		status.PowerRaw = append([]byte(nil), powerPayload...)
	}

	if len(channelPayload) > 3 {
		status.Channel = int(channelPayload[3])
		status.ChannelRaw = append([]byte(nil), channelPayload...)
	}

	return status
}
