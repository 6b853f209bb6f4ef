package house

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedPayload is returned when a sensor or status payload is not a JSON object.
var ErrMalformedPayload = errors.New("malformed payload")

// StatusFields lists the fields of the living-room status feed.
var StatusFields = []string{DeviceLed, DeviceAr, DeviceUmidificador, FieldAutoAr, FieldAutoUmidificador}

// ParseSensorPayload decodes a {temperatura, umidade} payload.
// Missing or non-numeric fields read as 0; numeric strings are accepted.
func ParseSensorPayload(payload []byte, at time.Time) (Reading, error) {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Reading{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if raw == nil {
		return Reading{}, fmt.Errorf("%w: not an object", ErrMalformedPayload)
	}
	return Reading{
		Temperature: toFloat(raw["temperatura"]),
		Humidity:    toFloat(raw["umidade"]),
		Timestamp:   at,
	}, nil
}

// ParseRoomStatus decodes the living-room status feed. Every field in
// StatusFields is present in the result; missing or empty ones read as OFF.
func ParseRoomStatus(payload []byte) (map[string]string, error) {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: not an object", ErrMalformedPayload)
	}

	out := make(map[string]string, len(StatusFields))
	for _, f := range StatusFields {
		out[f] = StateOff
		if s, ok := raw[f].(string); ok && strings.TrimSpace(s) != "" {
			out[f] = strings.TrimSpace(s)
		}
	}
	return out, nil
}

func toFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}
