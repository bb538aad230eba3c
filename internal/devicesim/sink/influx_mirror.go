package sink

import (
	"context"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/elid/devicesim/internal/devicesim/types"
)

const transactionMeasurement = "device_transactions"

// PointWriter queues points for an InfluxDB bucket.
type PointWriter interface {
	WritePoint(p *write.Point) error
}

// InfluxMirror writes one point per transaction, keeping numeric payload
// values as fields so confidence and processing time can be charted.
type InfluxMirror struct {
	w PointWriter
}

func NewInfluxMirror(w PointWriter) *InfluxMirror {
	return &InfluxMirror{w: w}
}

func (m *InfluxMirror) Name() string { return "influxdb" }

func (m *InfluxMirror) Mirror(ctx context.Context, tx types.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.w.WritePoint(TransactionPoint(tx))
}

// TransactionPoint maps tx onto the device_transactions measurement.
func TransactionPoint(tx types.Transaction) *write.Point {
	tags := map[string]string{
		"device_id":  tx.DeviceID,
		"event_type": tx.EventType,
		"username":   tx.Username,
	}
	fields := map[string]any{"count": 1}
	for k, v := range tx.Payload {
		switch n := v.(type) {
		case int, int32, int64, float32, float64:
			fields[k] = n
		}
	}
	return write.NewPoint(transactionMeasurement, tags, fields, tx.Timestamp)
}
