// Package house contains the domain model of the smart house: rooms, devices,
// the values they accept and the sensor readings reported by the living room.
// This package has NO external dependencies (no MQTT, storage or OS access).
package house

import "time"

// Room identifies a room of the house by the name used on the broker.
type Room string

const (
	RoomQuarto  Room = "quarto"  // bedroom
	RoomSala    Room = "sala"    // living room
	RoomGaragem Room = "garagem" // garage
)

// Rooms lists every room in display order.
var Rooms = []Room{RoomQuarto, RoomSala, RoomGaragem}

// Device names, as accepted by the command functions.
const (
	DeviceLuz          = "luz"
	DeviceTomada       = "tomada"
	DeviceCortina      = "cortina"
	DeviceLed          = "led"
	DeviceAr           = "arCondicionado"
	DeviceUmidificador = "umidificador"
	DeviceBascular     = "portaoBascular"
	DeviceSocial       = "portaoSocial"
	DeviceMovimento    = "movimento"
)

// Status-feed only fields reported by the living room controller.
const (
	FieldAutoAr           = "autoAr"
	FieldAutoUmidificador = "autoUmidificador"
)

// State values carried in command and status payloads.
const (
	StateOn      = "ON"
	StateOff     = "OFF"
	StateAutoOn  = "AUTO_ON"
	StateAutoOff = "AUTO_OFF"
	StateAbrir   = "abrir"
	StateParar   = "parar"
	StateFechar  = "fechar"
)

var (
	onOff     = []string{StateOn, StateOff}
	autoModes = []string{StateOn, StateOff, StateAutoOn, StateAutoOff}
	gate      = []string{StateAbrir, StateFechar}
)

// Commands maps every controllable device to the states it accepts.
var Commands = map[Room]map[string][]string{
	RoomQuarto: {
		DeviceLuz:     onOff,
		DeviceTomada:  onOff,
		DeviceCortina: {StateAbrir, StateParar, StateFechar},
	},
	RoomSala: {
		DeviceLed:          onOff,
		DeviceAr:           autoModes,
		DeviceUmidificador: autoModes,
	},
	RoomGaragem: {
		DeviceLed:      onOff,
		DeviceBascular: gate,
		DeviceSocial:   gate,
	},
}

// AcceptsState reports whether device in room accepts the given command state.
func AcceptsState(room Room, device, state string) bool {
	for _, s := range Commands[room][device] {
		if s == state {
			return true
		}
	}
	return false
}

// HasFeedback reports whether the device's real state is reported back by the
// broker. Devices without feedback are updated optimistically from commands.
func HasFeedback(room Room, device string) bool {
	switch room {
	case RoomSala:
		return true
	case RoomGaragem:
		return device == DeviceSocial
	}
	return false
}

// Reading is one temperature/humidity sample from the living-room sensor.
type Reading struct {
	Temperature float64   `json:"temperatura"`
	Humidity    float64   `json:"umidade"`
	Timestamp   time.Time `json:"timestamp"`
}

// IsZero reports whether r carries no data.
func (r Reading) IsZero() bool {
	return r.Temperature == 0 && r.Humidity == 0 && r.Timestamp.IsZero()
}

// DeviceStatus maps room -> device -> last known state.
type DeviceStatus map[Room]map[string]string

// Get returns the state of device in room, defaulting to OFF.
func (d DeviceStatus) Get(room Room, device string) string {
	if v, ok := d[room][device]; ok && v != "" {
		return v
	}
	return StateOff
}

// Clone returns a deep copy of d.
func (d DeviceStatus) Clone() DeviceStatus {
	out := make(DeviceStatus, len(d))
	for room, devices := range d {
		m := make(map[string]string, len(devices))
		for k, v := range devices {
			m[k] = v
		}
		out[room] = m
	}
	return out
}
