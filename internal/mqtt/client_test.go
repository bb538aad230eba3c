package mqtt

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elid/devicesim/internal/config"
)

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "devicesim-test",
		},
		Auth:        config.MQTTAuthConfig{Username: "sim", Password: "pw"},
		QoS:         1,
		TopicPrefix: "site-a/",
		Reconnect:   config.MQTTReconnectConfig{InitialDelay: 1, MaxDelay: 5},
	}
}

// =============================================================================
// Options
// =============================================================================

func TestBuildClientOptions(t *testing.T) {
	opts := buildClientOptions(testConfig())

	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "tcp://127.0.0.1:1883", opts.Servers[0].String())
	assert.Equal(t, "devicesim-test", opts.ClientID)
	assert.Equal(t, "sim", opts.Username)
	assert.True(t, opts.AutoReconnect)
	assert.True(t, opts.CleanSession)
}

func TestBuildClientOptions_TLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883

	opts := buildClientOptions(cfg)
	assert.Equal(t, "ssl://127.0.0.1:8883", opts.Servers[0].String())
	require.NotNil(t, opts.TLSConfig)
	assert.EqualValues(t, 0x0303, opts.TLSConfig.MinVersion)
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(testConfig())
	configureLWT(opts, Topics{Prefix: "site-a"}, "devicesim-test")

	assert.True(t, opts.WillEnabled)
	assert.Equal(t, "site-a/status", opts.WillTopic)
	assert.True(t, opts.WillRetained)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(opts.WillPayload, &payload))
	assert.Equal(t, "offline", payload["status"])
	assert.Equal(t, "unexpected_disconnect", payload["reason"])
}

// =============================================================================
// Topics
// =============================================================================

func TestTopics(t *testing.T) {
	topics := Topics{Prefix: "site-a/"}
	assert.Equal(t, "site-a/transactions/anpr-01/plate_read", topics.Transaction("anpr-01", "plate_read"))
	assert.Equal(t, "site-a/status", topics.Status())

	assert.Equal(t, "devicesim/transactions/a_b/_", Topics{}.Transaction("a/b", " "))
	assert.Equal(t, "devicesim/transactions/x__/y", Topics{}.Transaction("x+#", "y"))
}

// =============================================================================
// Publish validation (no broker required)
// =============================================================================

func TestPublish_Validation(t *testing.T) {
	c := &Client{cfg: testConfig()}

	assert.True(t, errors.Is(c.Publish("", []byte("x"), 0, false), ErrInvalidTopic))
	assert.True(t, errors.Is(c.Publish("t", []byte("x"), 3, false), ErrInvalidQoS))
	assert.True(t, errors.Is(c.Publish("t", make([]byte, maxPayloadSize+1), 0, false), ErrPublishFailed))
	assert.True(t, errors.Is(c.Publish("t", []byte("x"), 1, false), ErrNotConnected))
}

func TestClose_NilAndUnconnected(t *testing.T) {
	var nilClient *Client
	assert.NoError(t, nilClient.Close())
	assert.NoError(t, (&Client{}).Close())
	assert.False(t, (&Client{}).IsConnected())
}
