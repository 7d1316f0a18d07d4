package mqtt

import (
	"errors"
	"strings"
	"testing"

	"github.com/inkblue/inkblue-core/internal/infrastructure/config"
)

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "localhost",
			Port:     1883,
			ClientID: "inkblue-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     60,
		},
	}
}

// disconnectedClient returns a client that was never connected, for
// exercising validation paths without a broker.
func disconnectedClient() *Client {
	return &Client{
		cfg:           testConfig(),
		subscriptions: make(map[string]subscription),
	}
}

func TestValidateTopic(t *testing.T) {
	tests := []struct {
		name  string
		topic string
		valid bool
	}{
		{"system status", TopicSystemStatus, true},
		{"device event", TopicDeviceEvent, true},
		{"empty", "", false},
		{"single wildcard", "inkblue/+/state", false},
		{"multi wildcard", "inkblue/#", false},
		{"empty level", "inkblue//state", false},
		{"trailing slash", "inkblue/bluetooth/", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTopic(tt.topic)
			if tt.valid && err != nil {
				t.Errorf("ValidateTopic(%q) = %v, want nil", tt.topic, err)
			}
			if !tt.valid && !errors.Is(err, ErrInvalidTopic) {
				t.Errorf("ValidateTopic(%q) = %v, want ErrInvalidTopic", tt.topic, err)
			}
		})
	}
}

func TestDeviceTopic(t *testing.T) {
	got := DeviceTopic("E4:17:D8:EC:04:1E")
	want := "inkblue/bluetooth/device/E4-17-D8-EC-04-1E"
	if got != want {
		t.Errorf("DeviceTopic = %q, want %q", got, want)
	}
	if strings.Contains(got, ":") {
		t.Error("DeviceTopic should not contain colons")
	}
}

func TestPublishValidation(t *testing.T) {
	c := disconnectedClient()

	if err := c.Publish("", []byte("x"), 1, false); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic: got %v, want ErrInvalidTopic", err)
	}
	if err := c.Publish("inkblue/test", []byte("x"), 3, false); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("qos 3: got %v, want ErrInvalidQoS", err)
	}

	big := make([]byte, maxPayloadSize+1)
	if err := c.Publish("inkblue/test", big, 1, false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("oversized payload: got %v, want ErrPublishFailed", err)
	}
}

func TestSubscribeValidation(t *testing.T) {
	c := disconnectedClient()
	handler := func(topic string, payload []byte) error { return nil }

	if err := c.Subscribe("", 1, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic: got %v, want ErrInvalidTopic", err)
	}
	if err := c.Subscribe("inkblue/test", 3, handler); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("qos 3: got %v, want ErrInvalidQoS", err)
	}
	if err := c.Subscribe("inkblue/test", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler: got %v, want ErrSubscribeFailed", err)
	}
	if c.SubscriptionCount() != 0 {
		t.Errorf("failed subscribes must not be tracked, count = %d", c.SubscriptionCount())
	}
}

func TestUnsubscribeValidation(t *testing.T) {
	c := disconnectedClient()

	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic: got %v, want ErrInvalidTopic", err)
	}
}

func TestSubscriptionTracking(t *testing.T) {
	c := disconnectedClient()

	c.subMu.Lock()
	c.subscriptions["inkblue/bluetooth/event"] = subscription{
		topic: "inkblue/bluetooth/event",
		qos:   1,
	}
	c.subMu.Unlock()

	if !c.HasSubscription("inkblue/bluetooth/event") {
		t.Error("HasSubscription = false for tracked topic")
	}
	if c.HasSubscription("inkblue/bluetooth/state") {
		t.Error("HasSubscription = true for untracked topic")
	}
	if got := c.SubscriptionCount(); got != 1 {
		t.Errorf("SubscriptionCount = %d, want 1", got)
	}
}

func TestCloseWithoutConnect(t *testing.T) {
	c := disconnectedClient()
	if err := c.Close(); err != nil {
		t.Errorf("Close on never-connected client = %v, want nil", err)
	}
}

func TestBuildStatusPayloads(t *testing.T) {
	online := buildOnlinePayload("inkblue-test")
	if !strings.Contains(online, `"status":"online"`) {
		t.Errorf("online payload missing status: %s", online)
	}
	if !strings.Contains(online, `"client_id":"inkblue-test"`) {
		t.Errorf("online payload missing client id: %s", online)
	}

	offline := buildOfflinePayload("inkblue-test")
	if !strings.Contains(offline, `"reason":"graceful_shutdown"`) {
		t.Errorf("offline payload missing reason: %s", offline)
	}
}

func TestBuildClientOptionsAuth(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "reader"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)
	if opts.Username != "reader" {
		t.Errorf("Username = %q, want %q", opts.Username, "reader")
	}
	if opts.ClientID != "inkblue-test" {
		t.Errorf("ClientID = %q, want %q", opts.ClientID, "inkblue-test")
	}
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://localhost:1883" {
		t.Errorf("Servers = %v, want tcp://localhost:1883", opts.Servers)
	}
}
