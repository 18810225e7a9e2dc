package events

import (
	"context"
	"time"

	"github.com/nerrad567/claimd/internal/claim"
)

// MeasurementClaimOperations is the measurement every operation is recorded in.
const MeasurementClaimOperations = "claim_operations"

// PointWriter is the non-blocking write surface of the influxdb client.
type PointWriter interface {
	WritePoint(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time)
}

// MetricsRecorder writes one point per service operation, tagged by op and
// outcome. Device identifiers are not tags, to keep series cardinality flat.
type MetricsRecorder struct {
	writer PointWriter
}

// NewMetricsRecorder creates a recorder writing to w.
func NewMetricsRecorder(w PointWriter) *MetricsRecorder {
	return &MetricsRecorder{writer: w}
}

// Observe implements claim.Observer.
func (m *MetricsRecorder) Observe(_ context.Context, ev claim.Event) {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	m.writer.WritePoint(MeasurementClaimOperations,
		map[string]string{
			"op":      string(ev.Op),
			"outcome": string(ev.Outcome),
		},
		map[string]interface{}{
			"count": 1,
		},
		at,
	)
}
