package mqtt

import (
	"fmt"

	"github.com/sweeney/smart-house/internal/house"
	"github.com/sweeney/smart-house/internal/msglog"
	"github.com/sweeney/smart-house/internal/topics"
)

// ControlQuarto sends state to a bedroom device (luz, tomada, cortina).
func (s *Session) ControlQuarto(device, state string) error {
	return s.Control(house.RoomQuarto, device, state)
}

// ControlSala sends state to a living room device (led, arCondicionado,
// umidificador).
func (s *Session) ControlSala(device, state string) error {
	return s.Control(house.RoomSala, device, state)
}

// ControlGaragem sends state to a garage device (led, portaoBascular,
// portaoSocial).
func (s *Session) ControlGaragem(device, state string) error {
	return s.Control(house.RoomGaragem, device, state)
}

// Control sends state to device in room.
//
// Unknown devices and states are logged and never published. Commands
// issued while disconnected are dropped, not queued. Devices whose real
// state is not reported back are updated in the store once published.
func (s *Session) Control(room house.Room, device, state string) error {
	topic, err := topics.Resolve(room, device)
	if err != nil {
		s.logger.Errorw("invalid device", "room", room, "device", device)
		return err
	}
	if !house.AcceptsState(room, device, state) {
		s.logger.Errorw("invalid state", "room", room, "device", device, "state", state)
		return fmt.Errorf("%w: %s/%s %q", ErrInvalidState, room, device, state)
	}
	if err := s.checkAutoMode(room, device, state); err != nil {
		s.logger.Warnw("manual command refused", "room", room, "device", device, "state", state)
		return err
	}

	if err := s.publish(topic, state); err != nil {
		return err
	}

	if !house.HasFeedback(room, device) {
		s.store.UpdateDeviceStatus(room, device, state)
	}
	return nil
}

// checkAutoMode refuses manual ON/OFF for living room appliances whose
// automatic mode is active.
func (s *Session) checkAutoMode(room house.Room, device, state string) error {
	if room != house.RoomSala || (state != house.StateOn && state != house.StateOff) {
		return nil
	}
	var field string
	switch device {
	case house.DeviceAr:
		field = house.FieldAutoAr
	case house.DeviceUmidificador:
		field = house.FieldAutoUmidificador
	default:
		return nil
	}
	if s.store.CurrentDeviceStatus().Get(room, field) == house.StateOn {
		return fmt.Errorf("%w: %s", ErrAutoMode, device)
	}
	return nil
}

// publish sends payload to topic if connected. At most once: nothing is
// retried or queued.
func (s *Session) publish(topic, payload string) error {
	s.mu.RLock()
	conn := s.conn
	connected := s.state == StateConnected && conn != nil
	s.mu.RUnlock()

	if !connected {
		s.logger.Warnw("not connected, command dropped", "topic", topic, "payload", payload)
		s.log.Add(msglog.AuthorSystem, fmt.Sprintf("%s%s → %s", TextDroppedPrefix, topic, payload), msglog.KindError)
		return ErrNotConnected
	}

	if err := conn.Publish(topic, []byte(payload)); err != nil {
		s.logger.Errorw("publish failed", "topic", topic, "err", err)
		s.log.Add(msglog.AuthorSystem, fmt.Sprintf("Falha ao enviar para %s: %s", topic, err), msglog.KindError)
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	s.logger.Infow("command sent", "topic", topic, "payload", payload)
	s.log.Add(topic, payload, msglog.KindSent)
	return nil
}
