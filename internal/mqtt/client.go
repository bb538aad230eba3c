package mqtt

import (
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/elid/devicesim/internal/config"
)

// Client is a publish-only wrapper around paho with auto-reconnect and a
// retained online/offline status topic. Safe for concurrent use.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig
	topics Topics
	logger zerolog.Logger

	connected bool
	connMu    sync.RWMutex
}

// Connect dials the broker and waits up to defaultConnectTimeout for the
// first connection.
func Connect(cfg config.MQTTConfig, logger zerolog.Logger) (*Client, error) {
	c := &Client{
		cfg:    cfg,
		topics: Topics{Prefix: cfg.TopicPrefix},
		logger: logger.With().Str("component", "mqtt").Logger(),
	}

	opts := buildClientOptions(cfg)
	configureLWT(opts, c.topics, cfg.Broker.ClientID)
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleDisconnect(err) })

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		c.client.Disconnect(0)
		return nil, errors.Wrapf(ErrConnectionFailed, "timeout after %v", defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, errors.Wrapf(ErrConnectionFailed, "%v", err)
	}

	// The OnConnect handler runs asynchronously; mark connected now so
	// IsConnected is true as soon as Connect returns.
	c.setConnected(true)
	return c, nil
}

func (c *Client) Topics() Topics { return c.topics }

func (c *Client) QoS() byte { return byte(c.cfg.QoS) }

func (c *Client) handleConnect() {
	c.setConnected(true)
	c.logger.Info().Msg("connected to broker")
	c.client.Publish(c.topics.Status(), c.QoS(), true, statusPayload("online", c.cfg.Broker.ClientID, ""))
}

func (c *Client) handleDisconnect(err error) {
	c.setConnected(false)
	c.logger.Warn().Err(err).Msg("broker connection lost")
}

func (c *Client) setConnected(v bool) {
	c.connMu.Lock()
	c.connected = v
	c.connMu.Unlock()
}

func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client != nil && c.client.IsConnected()
}

// Publish sends payload to topic and waits for the broker acknowledgement
// dictated by qos.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return errors.Wrapf(ErrPublishFailed, "payload size %d exceeds maximum %d bytes", len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return errors.Wrapf(ErrPublishFailed, "timeout after %v", defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return errors.Wrapf(ErrPublishFailed, "%v", err)
	}
	return nil
}

// Close publishes a graceful offline status and disconnects. Safe on a nil
// or never-connected client.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	if c.IsConnected() {
		token := c.client.Publish(c.topics.Status(), c.QoS(), true,
			statusPayload("offline", c.cfg.Broker.ClientID, "graceful_shutdown"))
		token.WaitTimeout(defaultPublishTimeout)
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	c.setConnected(false)
	return nil
}
