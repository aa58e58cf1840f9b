package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/arbiter"
	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/control"
	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/infrastructure/influxdb"
	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/infrastructure/logging"
	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/infrastructure/mqtt"
)

// targetQoS is the QoS level for published setpoint targets. At-least-
// once: actuator controllers deduplicate on (scope, parameter, value).
const targetQoS = 1

// targetPublisher adapts the infrastructure MQTT client to the
// arbitration engine's Publisher interface. Each winner change is
// published retained so late-joining controllers pick up the current
// target immediately.
type targetPublisher struct {
	client *mqtt.Client
}

// PublishTarget implements arbiter.Publisher.
func (p *targetPublisher) PublishTarget(_ context.Context, d arbiter.Decision) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshalling decision: %w", err)
	}
	topic := mqtt.Topics{}.SetpointTarget(string(d.Scope.Kind), d.Scope.ID, string(d.Parameter))
	return p.client.Publish(topic, payload, targetQoS, true)
}

// telemetryReader adapts the InfluxDB client to the arbitration
// engine's TelemetryReader interface. A missing reading opens the
// deadband gate; only transport failures are logged.
type telemetryReader struct {
	client *influxdb.Client
	log    *logging.Logger
}

// LastMeasured implements arbiter.TelemetryReader.
func (t *telemetryReader) LastMeasured(ctx context.Context, scope control.Scope, p control.Parameter) (float64, bool) {
	v, err := t.client.LastValue(ctx, scope.Key(), string(p))
	if err != nil {
		if !errors.Is(err, influxdb.ErrNoData) {
			t.log.Warn("telemetry read failed", "scope", scope.Key(), "parameter", p, "error", err)
		}
		return 0, false
	}
	return v, true
}
