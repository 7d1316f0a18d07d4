package coordinator

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/inkblue/inkblue-core/internal/registry"
)

type fakeBroker struct {
	topics   []string
	payloads [][]byte
	retained []bool
	err      error
}

func (f *fakeBroker) Publish(topic string, payload []byte, _ byte, retained bool) error {
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, payload)
	f.retained = append(f.retained, retained)
	return f.err
}

func TestSubsystemStateIsRetained(t *testing.T) {
	broker := &fakeBroker{}
	pub := NewStatePublisher(broker, nil)

	pub.SubsystemState(true)

	if len(broker.topics) != 1 || broker.topics[0] != topicSubsystemState {
		t.Fatalf("topics = %v", broker.topics)
	}
	if !broker.retained[0] {
		t.Error("subsystem state not retained")
	}
	var payload statePayload
	if err := json.Unmarshal(broker.payloads[0], &payload); err != nil {
		t.Fatalf("unmarshalling payload: %v", err)
	}
	if !payload.Enabled {
		t.Error("Enabled = false, want true")
	}
}

func TestDeviceEventsCarryUniqueIDs(t *testing.T) {
	broker := &fakeBroker{}
	pub := NewStatePublisher(broker, nil)
	device := registry.Peripheral{Address: "AA:BB:CC:DD:EE:FF", Name: "Clicker"}

	pub.DeviceConnected(device)
	pub.DeviceDisconnected(device)

	if len(broker.payloads) != 2 {
		t.Fatalf("events = %d, want 2", len(broker.payloads))
	}
	var first, second eventPayload
	if err := json.Unmarshal(broker.payloads[0], &first); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(broker.payloads[1], &second); err != nil {
		t.Fatal(err)
	}
	if first.Kind != "connected" || second.Kind != "disconnected" {
		t.Errorf("kinds = %q, %q", first.Kind, second.Kind)
	}
	if first.EventID == "" || first.EventID == second.EventID {
		t.Error("event IDs missing or not unique")
	}
	if broker.retained[0] || broker.retained[1] {
		t.Error("device events must not be retained")
	}
}

func TestPublishFailureIsSwallowed(t *testing.T) {
	broker := &fakeBroker{err: errors.New("broker down")}
	pub := NewStatePublisher(broker, nil)

	// Must not panic or propagate.
	pub.SubsystemState(false)
	pub.DeviceConnected(registry.Peripheral{Address: "AA:BB:CC:DD:EE:FF"})
}
