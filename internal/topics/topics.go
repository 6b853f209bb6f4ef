// Package topics maps room/device commands to broker topics and classifies
// inbound topics. The topic set is static; the broker side is pre-provisioned.
package topics

import (
	"errors"
	"fmt"

	"github.com/sweeney/smart-house/internal/house"
)

// Prefix is the root of every smart-house topic.
const Prefix = "smarthouseJLR"

// Inbound topics.
const (
	SalaSensor    = Prefix + "/sala/lerSensor"
	SalaStatus    = Prefix + "/sala/status"
	GaragemSocial = Prefix + "/garagem/social"
	GaragemMotion = Prefix + "/garagem"
)

// ErrInvalidDevice is returned for a room/device pair with no topic.
var ErrInvalidDevice = errors.New("invalid device")

// Kind classifies an inbound topic.
type Kind int

const (
	KindUnknown Kind = iota
	KindSensor
	KindRoomStatus
	KindGateFeedback
	KindMotion
)

func (k Kind) String() string {
	switch k {
	case KindSensor:
		return "sensor"
	case KindRoomStatus:
		return "room_status"
	case KindGateFeedback:
		return "gate_feedback"
	case KindMotion:
		return "motion"
	}
	return "unknown"
}

var commandTopics = map[house.Room]map[string]string{
	house.RoomQuarto: {
		house.DeviceLuz:     Prefix + "/quarto/luz",
		house.DeviceTomada:  Prefix + "/quarto/tomada",
		house.DeviceCortina: Prefix + "/quarto/cortina",
	},
	house.RoomSala: {
		house.DeviceLed:          Prefix + "/sala/led1",
		house.DeviceAr:           Prefix + "/sala/arCondicionado",
		house.DeviceUmidificador: Prefix + "/sala/umidificador",
	},
	house.RoomGaragem: {
		house.DeviceLed:      Prefix + "/garagem/led",
		house.DeviceBascular: Prefix + "/garagem/bascular",
		house.DeviceSocial:   GaragemSocial,
	},
}

var inbound = []struct {
	topic string
	kind  Kind
}{
	{SalaSensor, KindSensor},
	{SalaStatus, KindRoomStatus},
	{GaragemSocial, KindGateFeedback},
	{GaragemMotion, KindMotion},
}

// Resolve returns the command topic for device in room.
func Resolve(room house.Room, device string) (string, error) {
	topic, ok := commandTopics[room][device]
	if !ok {
		return "", fmt.Errorf("%w: %s/%s", ErrInvalidDevice, room, device)
	}
	return topic, nil
}

// Classify returns the kind of an inbound topic.
func Classify(topic string) Kind {
	for _, in := range inbound {
		if in.topic == topic {
			return in.kind
		}
	}
	return KindUnknown
}

// Inbound returns the topics the session subscribes to, in subscription order.
func Inbound() []string {
	out := make([]string, len(inbound))
	for i, in := range inbound {
		out[i] = in.topic
	}
	return out
}
