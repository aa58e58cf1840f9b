package mqtt

import (
	"errors"
	"strings"
	"testing"

	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for testing.
// Connection-dependent tests live in integration_test.go and require a
// running Mosquitto broker at 127.0.0.1:1883.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "trazo-test",
			TLS:      false,
		},
		Auth: config.MQTTAuthConfig{
			Username: "",
			Password: "",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// =============================================================================
// Lifecycle Tests
// =============================================================================

func TestCloseNil(t *testing.T) {
	client := &Client{}
	err := client.Close()
	if err != nil {
		t.Errorf("Close() on nil client error = %v, want nil", err)
	}
}

func TestIsConnected_InitialState(t *testing.T) {
	client := &Client{}
	if client.IsConnected() {
		t.Error("IsConnected() = true for fresh client, want false")
	}
}

// =============================================================================
// Publish Validation Tests
// =============================================================================

func TestPublishEmptyTopic(t *testing.T) {
	client := &Client{}

	err := client.Publish("", []byte("test"), 1, false)
	if !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Publish() error = %v, want ErrInvalidTopic", err)
	}
}

func TestPublishInvalidQoS(t *testing.T) {
	client := &Client{}

	err := client.Publish(Topics{}.SystemStatus(), []byte("test"), 3, false)
	if !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Publish() error = %v, want ErrInvalidQoS", err)
	}
}

func TestPublishDisconnected(t *testing.T) {
	client := &Client{}

	topic := Topics{}.SetpointTarget("pod", "pod-a", "temperature")
	err := client.Publish(topic, []byte(`{"value":23.5}`), 1, false)
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}

func TestPublishOversizedPayload(t *testing.T) {
	client := &Client{}

	payload := make([]byte, maxPayloadSize+1)
	err := client.Publish(Topics{}.SystemStatus(), payload, 1, false)
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("Publish() error = %v, want ErrPublishFailed", err)
	}
}

// =============================================================================
// Subscribe Validation Tests
// =============================================================================

func TestSubscribeEmptyTopic(t *testing.T) {
	client := &Client{}

	err := client.Subscribe("", 1, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe() error = %v, want ErrInvalidTopic", err)
	}
}

func TestSubscribeInvalidQoS(t *testing.T) {
	client := &Client{}

	err := client.Subscribe(Topics{}.AllSafetySignals(), 5, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Subscribe() error = %v, want ErrInvalidQoS", err)
	}
}

func TestSubscribeNilHandler(t *testing.T) {
	client := &Client{}

	err := client.Subscribe(Topics{}.AllSafetySignals(), 1, nil)
	if !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe() error = %v, want ErrSubscribeFailed", err)
	}
}

func TestSubscribeDisconnected(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}

	err := client.Subscribe(Topics{}.AllEStopSignals(), 1, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() error = %v, want ErrNotConnected", err)
	}
}

func TestUnsubscribeEmptyTopic(t *testing.T) {
	client := &Client{}

	err := client.Unsubscribe("")
	if !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe() error = %v, want ErrInvalidTopic", err)
	}
}

func TestSubscriptionCount_Empty(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}

	if got := client.SubscriptionCount(); got != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", got)
	}
}

func TestHasSubscription_NotSubscribed(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}

	if client.HasSubscription(Topics{}.AllTelemetry()) {
		t.Error("HasSubscription() = true for fresh client, want false")
	}
}

// =============================================================================
// Topics Tests
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	tests := []struct {
		name     string
		builder  func() string
		expected string
	}{
		{
			name: "SafetySignal",
			builder: func() string {
				return Topics{}.SafetySignal("pod", "pod-a")
			},
			expected: "trazo/signal/safety/pod/pod-a",
		},
		{
			name: "EStopSignal",
			builder: func() string {
				return Topics{}.EStopSignal("room", "veg-1")
			},
			expected: "trazo/signal/estop/room/veg-1",
		},
		{
			name: "DemandResponse",
			builder: func() string {
				return Topics{}.DemandResponse("site", "main")
			},
			expected: "trazo/signal/dr/site/main",
		},
		{
			name: "Telemetry",
			builder: func() string {
				return Topics{}.Telemetry("pod", "pod-a", "temperature")
			},
			expected: "trazo/telemetry/pod/pod-a/temperature",
		},
		{
			name: "SetpointTarget",
			builder: func() string {
				return Topics{}.SetpointTarget("pod", "pod-a", "co2")
			},
			expected: "trazo/core/target/pod/pod-a/co2",
		},
		{
			name: "CoreEvent",
			builder: func() string {
				return Topics{}.CoreEvent("override_event")
			},
			expected: "trazo/core/event/override_event",
		},
		{
			name: "SystemStatus",
			builder: func() string {
				return Topics{}.SystemStatus()
			},
			expected: "trazo/system/status",
		},
		{
			name: "SystemShutdown",
			builder: func() string {
				return Topics{}.SystemShutdown()
			},
			expected: "trazo/system/shutdown",
		},
		{
			name: "AllSafetySignals",
			builder: func() string {
				return Topics{}.AllSafetySignals()
			},
			expected: "trazo/signal/safety/+/+",
		},
		{
			name: "AllEStopSignals",
			builder: func() string {
				return Topics{}.AllEStopSignals()
			},
			expected: "trazo/signal/estop/+/+",
		},
		{
			name: "AllDemandResponse",
			builder: func() string {
				return Topics{}.AllDemandResponse()
			},
			expected: "trazo/signal/dr/+/+",
		},
		{
			name: "AllTelemetry",
			builder: func() string {
				return Topics{}.AllTelemetry()
			},
			expected: "trazo/telemetry/+/+/+",
		},
		{
			name: "AllSetpointTargets",
			builder: func() string {
				return Topics{}.AllSetpointTargets()
			},
			expected: "trazo/core/target/+/+/+",
		},
		{
			name: "AllCoreEvents",
			builder: func() string {
				return Topics{}.AllCoreEvents()
			},
			expected: "trazo/core/event/+",
		},
		{
			name: "AllTopics",
			builder: func() string {
				return Topics{}.AllTopics()
			},
			expected: "trazo/#",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.builder()
			if result != tt.expected {
				t.Errorf("%s() = %q, want %q", tt.name, result, tt.expected)
			}
		})
	}
}

// =============================================================================
// Payload Tests
// =============================================================================

func TestStatusPayloads(t *testing.T) {
	online := buildOnlinePayload("trazo-core")
	if !strings.Contains(online, `"status":"online"`) {
		t.Errorf("online payload missing status: %s", online)
	}
	if !strings.Contains(online, `"client_id":"trazo-core"`) {
		t.Errorf("online payload missing client_id: %s", online)
	}

	offline := buildOfflinePayload("trazo-core")
	if !strings.Contains(offline, `"status":"offline"`) {
		t.Errorf("offline payload missing status: %s", offline)
	}
	if !strings.Contains(offline, `"reason":"graceful_shutdown"`) {
		t.Errorf("offline payload missing reason: %s", offline)
	}
}
