package influxdb

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// telemetryMeasurement is the measurement name the sensor pipeline
// writes measured values under.
const telemetryMeasurement = "telemetry"

// defaultLookback bounds how far back a reading may be and still count
// as the current measured value.
const defaultLookback = 5 * time.Minute

// LastValue returns the most recent measured value for a scope and
// parameter within the lookback window.
//
// Points are expected with measurement "telemetry", tags "scope" (the
// canonical scope key, e.g. "pod:pod-a") and "parameter", and a float
// field "value".
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - scopeKey: Canonical scope key the reading is tagged with
//   - parameter: Parameter name the reading is tagged with
//
// Returns:
//   - float64: The last measured value
//   - error: ErrNoData if no point exists in the window
func (c *Client) LastValue(ctx context.Context, scopeKey, parameter string) (float64, error) {
	if c == nil || !c.IsConnected() {
		return 0, ErrNotConnected
	}

	flux := fmt.Sprintf(`
from(bucket: %q)
  |> range(start: -%s)
  |> filter(fn: (r) => r._measurement == %q)
  |> filter(fn: (r) => r.scope == %q and r.parameter == %q)
  |> filter(fn: (r) => r._field == "value")
  |> last()`,
		c.cfg.Bucket,
		formatLookback(defaultLookback),
		telemetryMeasurement,
		scopeKey,
		parameter,
	)

	result, err := c.queryAPI.Query(ctx, flux)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	defer result.Close()

	for result.Next() {
		if v, ok := result.Record().Value().(float64); ok {
			return v, nil
		}
	}
	if err := result.Err(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}

	return 0, ErrNoData
}

// formatLookback renders a duration as a Flux duration literal.
func formatLookback(d time.Duration) string {
	s := d.String()
	// Flux rejects fractional units that time.Duration.String can emit
	// for sub-minute remainders; trim a trailing zero-second component.
	s = strings.TrimSuffix(s, "0s")
	if s == "" {
		s = "0s"
	}
	return s
}
