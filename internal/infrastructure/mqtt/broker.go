package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/claimd/internal/infrastructure/config"
)

var (
	ErrOffline       = errors.New("mqtt: broker connection is down")
	ErrConnectFailed = errors.New("mqtt: connect failed")
)

// Logger receives connection state changes. *logging.Logger satisfies it.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Client is a publish-only broker session. It announces itself on the
// retained status topic and reconnects on its own after a drop.
type Client struct {
	paho   pahomqtt.Client
	cfg    config.MQTTConfig
	topics Topics

	up atomic.Bool

	logMu sync.RWMutex
	log   Logger
}

// Connect dials the broker and waits up to connectTimeout for the session.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{cfg: cfg, topics: NewTopics(cfg.TopicPrefix)}

	opts := buildClientOptions(cfg)
	configureLWT(opts, c.topics, cfg.Broker.ClientID)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.onUp() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.onDown(err) })

	c.paho = pahomqtt.NewClient(opts)
	tok := c.paho.Connect()
	if !tok.WaitTimeout(connectTimeout) {
		// stop the background retry loop
		c.paho.Disconnect(0)
		return nil, fmt.Errorf("%w: no CONNACK within %v", ErrConnectFailed, connectTimeout)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	// onUp runs on paho's goroutine and may still be pending.
	c.up.Store(true)
	return c, nil
}

// Topics is the topic builder for the configured prefix.
func (c *Client) Topics() Topics { return c.topics }

// QoS is the configured default delivery level.
func (c *Client) QoS() byte {
	return byte(c.cfg.QoS) //nolint:gosec // config validation bounds this to 0..2
}

func (c *Client) onUp() {
	c.up.Store(true)
	c.paho.Publish(c.topics.SystemStatus(), c.QoS(), true, onlinePayload(c.cfg.Broker.ClientID))
	if l := c.logger(); l != nil {
		l.Info("mqtt connected", "broker", c.cfg.Broker.Host)
	}
}

func (c *Client) onDown(err error) {
	c.up.Store(false)
	if l := c.logger(); l != nil {
		l.Warn("mqtt connection lost", "error", err)
	}
}

// Close publishes a graceful offline status, then disconnects. The status
// differs from the will so consumers can tell a shutdown from a crash.
func (c *Client) Close() error {
	if c.paho == nil {
		return nil
	}
	if c.IsConnected() {
		c.paho.Publish(c.topics.SystemStatus(), c.QoS(), true, offlinePayload(c.cfg.Broker.ClientID)).
			WaitTimeout(publishTimeout)
	}
	c.paho.Disconnect(quiesceMillis)
	c.up.Store(false)
	return nil
}

// HealthCheck fails with ErrOffline while the session is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrOffline
	}
	return nil
}

// IsConnected combines our view with paho's own.
func (c *Client) IsConnected() bool {
	return c.paho != nil && c.up.Load() && c.paho.IsConnected()
}

// SetLogger attaches a logger for connect and disconnect notices.
func (c *Client) SetLogger(l Logger) {
	c.logMu.Lock()
	c.log = l
	c.logMu.Unlock()
}

func (c *Client) logger() Logger {
	c.logMu.RLock()
	defer c.logMu.RUnlock()
	return c.log
}
