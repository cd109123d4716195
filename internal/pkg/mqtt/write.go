package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anicoll/solarlog-integration/internal/pkg/model"
)

var errPublishTimeout = errors.New("mqtt: publish timed out")

func (s *service) Write(ctx context.Context, data []map[string]any) error {
	for _, d := range data {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.PublishData(d); err != nil {
			return err
		}
	}
	return nil
}

// RegisterDevice publishes a retained Home Assistant discovery config for
// every sensor of device that was not announced before.
func (s *service) RegisterDevice(device *model.Device, statuses []model.DeviceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, status := range statuses {
		id := sensorID(device.ID, status.Slug)
		if _, exists := s.configuredSensors[id]; exists {
			continue
		}
		payload, err := json.Marshal(s.registerMsg(device, status))
		if err != nil {
			return err
		}
		topic := fmt.Sprintf("%s/sensor/%s/config", s.discoveryPrefix, id)
		if err := s.publish(topic, 1, true, payload, 5*time.Second); err != nil {
			return err
		}
		s.configuredSensors[id] = struct{}{}
	}
	return nil
}

func (s *service) PublishData(data map[string]any) error {
	slug := data["slug"].(string)
	identifier := data["identifier"].(string)
	isTextSensor := model.TextSensors.HasSlug(slug)

	payload := map[string]string{
		"value": data["value"].(string),
	}
	if unit, ok := data["unit_of_measurement"].(string); ok && !isTextSensor && unit != "" {
		payload["unit_of_measurement"] = unit
	}
	if ts, ok := data["timestamp"].(time.Time); ok && !ts.IsZero() {
		payload["timestamp"] = ts.Format(time.RFC3339)
	}

	publishData, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.publish(s.stateTopic(identifier, slug), 0, false, publishData, 10*time.Second)
}

func (s *service) publish(topic string, qos byte, retained bool, payload []byte, timeout time.Duration) error {
	token := s.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%w: %s", errPublishTimeout, topic)
	}
	return token.Error()
}

func (s *service) stateTopic(identifier, slug string) string {
	return fmt.Sprintf("%s/%s/%s/state", s.baseTopic, identifier, slug)
}

func (s *service) registerMsg(device *model.Device, status model.DeviceStatus) model.RegisterMessage {
	msg := model.RegisterMessage{
		Name:          status.Name,
		ID:            strings.ToLower(sensorID(device.ID, status.Slug)),
		StateTopic:    s.stateTopic(device.ID, status.Slug),
		ValueTemplate: "{{ value_json.value }}",
		Device: model.RegisterDevice{
			Name:         device.Name,
			Identifiers:  []string{device.ID},
			Model:        "Solar-Log",
			Manufacturer: "Solare Datensysteme",
			ViaDevice:    device.Parent,
		},
	}
	if model.TextSensors.HasSlug(status.Slug) {
		return msg
	}
	msg.UnitOfMeasurement = string(status.Unit.Published())
	msg.StateClass = "measurement"
	switch status.Unit.Published() {
	case model.NumericUnitWatt:
		msg.DeviceClass = "power"
	case model.NumericUnitKiloWattHour:
		msg.DeviceClass = "energy"
		msg.StateClass = "total_increasing"
	case model.NumericUnitVolt:
		msg.DeviceClass = "voltage"
	case model.NumericUnitAmp:
		msg.DeviceClass = "current"
	case model.NumericUnitDegreeC:
		msg.DeviceClass = "temperature"
	}
	return msg
}

func sensorID(deviceID, slug string) string {
	return deviceID + "_" + slug
}
