package sink

import (
	"context"

	json "github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/elid/devicesim/internal/devicesim/types"
)

// Publisher is the slice of the MQTT client the mirror needs.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// MQTTMirror publishes each transaction as JSON on
// <prefix>/transactions/<device_id>/<event_type>.
type MQTTMirror struct {
	pub   Publisher
	topic func(deviceID, eventType string) string
	qos   byte
}

func NewMQTTMirror(pub Publisher, topic func(deviceID, eventType string) string, qos byte) *MQTTMirror {
	return &MQTTMirror{pub: pub, topic: topic, qos: qos}
}

func (m *MQTTMirror) Name() string { return "mqtt" }

func (m *MQTTMirror) Mirror(ctx context.Context, tx types.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(tx)
	if err != nil {
		return errors.Wrap(err, "encode transaction")
	}
	return m.pub.Publish(m.topic(tx.DeviceID, tx.EventType), body, m.qos, false)
}
