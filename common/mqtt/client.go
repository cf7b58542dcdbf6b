package mqtt

import (
	"fmt"
	"time"

	"voto-alerts/common/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Client wraps a paho MQTT client.
type Client struct {
	client  mqtt.Client
	config  *config.MQTTConfig
	timeout time.Duration
}

// NewClient connects to the broker.
func NewClient(cfg *config.MQTTConfig, timeout time.Duration) (*Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(false)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(timeout)

	client := mqtt.NewClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("timed out connecting to MQTT broker %s", cfg.Broker)
	}
	if token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &Client{
		client:  client,
		config:  cfg,
		timeout: timeout,
	}, nil
}

// Publish sends payload to topic with the configured QoS.
func (c *Client) Publish(topic string, retained bool, payload []byte) error {
	token := c.client.Publish(topic, c.config.QoS, retained, payload)
	if !token.WaitTimeout(c.timeout) {
		return fmt.Errorf("timed out publishing to topic %s", topic)
	}
	if token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
	}

	return nil
}

// Disconnect closes the connection.
func (c *Client) Disconnect() {
	c.client.Disconnect(250)
}
