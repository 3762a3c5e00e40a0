package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/autopeer-io/crossway/pkg/log"
)

// ErrNotStarted is returned by operations issued before Start.
var ErrNotStarted = errors.New("mqtt client not started")

type pahoClient struct {
	cfg    *ClientConfig
	cm     *autopaho.ConnectionManager
	logger log.Logger

	// ctx is the context handed to Start; handlers run under it.
	ctx context.Context

	connected atomic.Bool
	subs      *registry
}

// NewClient creates a new MQTT client implementing the Client interface.
func NewClient(cfg *ClientConfig) (Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("mqtt config is required")
	}

	setDefaultConfig(cfg)

	// Basic validation using the config's own logic
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mqtt config: %w", err)
	}

	return &pahoClient{
		cfg:    cfg,
		logger: log.WithName("mqtt").WithValues("clientID", cfg.ClientID),
		subs:   newRegistry(),
	}, nil
}

func (c *pahoClient) Start(ctx context.Context) error {
	brokerURL, _ := url.Parse(c.cfg.BrokerURL) // Already validated
	c.ctx = ctx

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{brokerURL},
		KeepAlive:                     c.cfg.KeepAlive,
		CleanStartOnInitialConnection: c.cfg.CleanStart,
		SessionExpiryInterval:         c.cfg.SessionExpiry,
		ReconnectBackoff:              autopaho.NewConstantBackoff(c.cfg.ReconnectBackoff),
		ConnectTimeout:                c.cfg.ConnectTimeout,
		ConnectUsername:               c.cfg.Username,
		ConnectPassword:               []byte(c.cfg.Password),
		TlsCfg: &tls.Config{
			InsecureSkipVerify: c.cfg.InsecureSkipVerify,
		},
		WillMessage: c.willMessage(),
		ClientConfig: paho.ClientConfig{
			ClientID:           c.cfg.ClientID,
			OnClientError:      c.onClientError,
			OnServerDisconnect: c.onServerDisconnect,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				c.router,
			},
		},
		OnConnectionUp: c.onConnectionUp,
		OnConnectError: c.onConnectError,
	}

	c.logger.Info("Starting MQTT client", "broker", c.cfg.BrokerURL)

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return err
	}
	c.cm = cm
	return nil
}

func (c *pahoClient) Disconnect(ctx context.Context) {
	if c.cm != nil {
		_ = c.cm.Disconnect(ctx)
		c.connected.Store(false)
		c.logger.Info("MQTT Client disconnected")
	}
}

func (c *pahoClient) Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error {
	if c.cm == nil {
		return ErrNotStarted
	}

	// For QoS 1 this returns once the broker has sent PUBACK.
	_, err := c.cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     byte(qos),
		Retain:  retain,
		Payload: payload,
	})

	return err
}

func (c *pahoClient) Subscribe(ctx context.Context, filter string, qos int, handler MessageHandler) error {
	if c.cm == nil {
		return ErrNotStarted
	}

	// Registered before the packet goes out so a reconnect replays it even
	// when this SUBSCRIBE is lost.
	c.subs.put(subscription{filter: filter, qos: byte(qos), handler: handler})

	if _, err := c.cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: filter, QoS: byte(qos)}},
	}); err != nil {
		return fmt.Errorf("subscribe %s: %w", filter, err)
	}
	c.logger.Debug("Subscribed", "filter", filter, "qos", qos)
	return nil
}

func (c *pahoClient) Unsubscribe(ctx context.Context, filter string) error {
	if c.cm == nil {
		return ErrNotStarted
	}
	c.subs.remove(filter)
	if _, err := c.cm.Unsubscribe(ctx, &paho.Unsubscribe{Topics: []string{filter}}); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", filter, err)
	}
	return nil
}

func (c *pahoClient) AwaitConnection(ctx context.Context) error {
	if c.cm == nil {
		return ErrNotStarted
	}
	return c.cm.AwaitConnection(ctx)
}

// IsConnected reports the last connection state observed through the
// connection callbacks.
func (c *pahoClient) IsConnected() bool {
	return c.connected.Load()
}

// onConnectionUp replays every registered filter in a single SUBSCRIBE,
// since a clean session forgets them.
func (c *pahoClient) onConnectionUp(cm *autopaho.ConnectionManager, _ *paho.Connack) {
	c.connected.Store(true)
	opts := c.subs.options()
	c.logger.Info("MQTT connection up", "subscriptions", len(opts))
	if len(opts) == 0 {
		return
	}
	if _, err := cm.Subscribe(c.handlerContext(), &paho.Subscribe{Subscriptions: opts}); err != nil {
		c.logger.Error(err, "Failed to restore subscriptions")
	}
}

func (c *pahoClient) onConnectError(err error) {
	c.logger.Error(err, "MQTT Connection failed, retrying...")
}

func (c *pahoClient) onClientError(err error) {
	c.connected.Store(false)
	c.logger.Error(err, "MQTT Client internal error")
}

func (c *pahoClient) onServerDisconnect(d *paho.Disconnect) {
	c.connected.Store(false)
	reason := ""
	if d.Properties != nil {
		reason = d.Properties.ReasonString
	}
	c.logger.Warn("MQTT Server requested disconnect", "reason", reason)
}

// router hands each publish to every matching handler on its own
// goroutine so the paho reader loop never blocks.
func (c *pahoClient) router(p paho.PublishReceived) (bool, error) {
	name := p.Packet.Topic
	handlers := c.subs.handlers(name)
	if len(handlers) == 0 {
		c.logger.Debug("No handler for topic", "topic", name)
		return true, nil
	}
	ctx := c.handlerContext()
	for _, h := range handlers {
		go h(ctx, name, p.Packet.Payload)
	}
	return true, nil
}

func (c *pahoClient) handlerContext() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

func (c *pahoClient) willMessage() *paho.WillMessage {
	if c.cfg.WillTopic == "" {
		return nil
	}
	return &paho.WillMessage{
		Topic:   c.cfg.WillTopic,
		Payload: c.cfg.WillPayload,
		QoS:     c.cfg.WillQoS,
		Retain:  c.cfg.WillRetain,
	}
}
