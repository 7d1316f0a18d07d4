package coordinator

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/inkblue/inkblue-core/internal/registry"
)

// MQTT topics for lifecycle publication.
const (
	topicSubsystemState = "inkblue/bluetooth/state"
	topicDeviceEvent    = "inkblue/bluetooth/event"
)

const lifecycleQoS byte = 1

// Publisher is the broker surface the state publisher needs. Satisfied by
// the mqtt infrastructure client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// StatePublisher mirrors subsystem lifecycle onto the local MQTT broker:
// retained subsystem state plus one event message per connect/disconnect.
// Implements EventSink.
type StatePublisher struct {
	broker Publisher
	logger Logger
}

// NewStatePublisher wraps a broker connection.
func NewStatePublisher(broker Publisher, logger Logger) *StatePublisher {
	if logger == nil {
		logger = noopLogger{}
	}
	return &StatePublisher{broker: broker, logger: logger}
}

type statePayload struct {
	Enabled   bool      `json:"enabled"`
	Timestamp time.Time `json:"timestamp"`
}

type eventPayload struct {
	EventID   string    `json:"event_id"`
	Kind      string    `json:"kind"`
	Address   string    `json:"address"`
	Name      string    `json:"name,omitempty"`
	RSSI      *int      `json:"rssi,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SubsystemState implements EventSink. Retained so late subscribers see the
// current state immediately.
func (p *StatePublisher) SubsystemState(enabled bool) {
	p.publish(topicSubsystemState, statePayload{Enabled: enabled, Timestamp: time.Now().UTC()}, true)
}

// DeviceConnected implements EventSink.
func (p *StatePublisher) DeviceConnected(device registry.Peripheral) {
	p.publishDeviceEvent("connected", device)
}

// DeviceDisconnected implements EventSink.
func (p *StatePublisher) DeviceDisconnected(device registry.Peripheral) {
	p.publishDeviceEvent("disconnected", device)
}

func (p *StatePublisher) publishDeviceEvent(kind string, device registry.Peripheral) {
	p.publish(topicDeviceEvent, eventPayload{
		EventID:   uuid.NewString(),
		Kind:      kind,
		Address:   device.Address,
		Name:      device.Name,
		RSSI:      device.RSSI,
		Timestamp: time.Now().UTC(),
	}, false)
}

// publish is best-effort: broker trouble is logged, never surfaced to the
// dispatch path.
func (p *StatePublisher) publish(topic string, payload any, retained bool) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("marshalling lifecycle payload", "topic", topic, "error", err)
		return
	}
	if err := p.broker.Publish(topic, data, lifecycleQoS, retained); err != nil {
		p.logger.Warn("publishing lifecycle event failed", "topic", topic, "error", err)
	}
}
