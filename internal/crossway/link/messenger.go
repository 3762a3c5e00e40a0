// Package link carries the centralized protocol over MQTT.
//
// A vehicle publishes to {root}/request/{id} and {root}/exiting/{id} and
// listens on {root}/grant/{id}. Publishes use QoS 1; the broker's PUBACK is
// the acknowledgement the reliable channel waits for.
package link

import (
	"context"
	"fmt"
	"time"

	"github.com/autopeer-io/crossway/internal/crossway/codec"
	"github.com/autopeer-io/crossway/internal/crossway/core"
	"github.com/autopeer-io/crossway/internal/pkg/mqtt/paths"
	"github.com/autopeer-io/crossway/pkg/log"
	pkgmqtt "github.com/autopeer-io/crossway/pkg/mqtt"
	"github.com/autopeer-io/crossway/pkg/mqtt/topic"
)

const qos = 1

// Presence payloads on the retained online topic.
var (
	PayloadOnline  = []byte("1")
	PayloadOffline = []byte("0")
)

// Messenger is the vehicle side core.Messenger.
type Messenger struct {
	client pkgmqtt.Client
	topics *topic.Builder
	self   core.PeerID
	logger log.Logger
}

var _ core.Messenger = (*Messenger)(nil)

// NewMessenger creates a messenger for vehicle self.
func NewMessenger(client pkgmqtt.Client, builder *topic.Builder, self core.PeerID, logger log.Logger) *Messenger {
	return &Messenger{
		client: client,
		topics: builder,
		self:   self,
		logger: logger.WithName("link"),
	}
}

// WillConfig sets cfg's last will so the broker clears the vehicle's
// presence flag when the connection is lost.
func WillConfig(cfg *pkgmqtt.ClientConfig, builder *topic.Builder, self core.PeerID) {
	cfg.WillTopic = builder.Build(paths.Online, string(self))
	cfg.WillPayload = PayloadOffline
	cfg.WillQoS = qos
	cfg.WillRetain = true
}

// Start connects to the broker, announces presence and keeps the
// connection until ctx is done.
func (m *Messenger) Start(ctx context.Context) error {
	if err := m.client.Start(ctx); err != nil {
		return err
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.client.Publish(shutdownCtx, m.topics.Build(paths.Online, string(m.self)), qos, true, PayloadOffline)
		m.client.Disconnect(shutdownCtx)
	}()

	m.logger.Info("Waiting for MQTT connection...")
	if err := m.client.AwaitConnection(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	if err := m.client.Publish(ctx, m.topics.Build(paths.Online, string(m.self)), qos, true, PayloadOnline); err != nil {
		m.logger.Warn("Failed to publish presence", "error", err.Error())
	}

	<-ctx.Done()
	return nil
}

// Send publishes msg on its upstream topic and returns once the broker
// acknowledged it.
func (m *Messenger) Send(ctx context.Context, msg core.Message) error {
	var segment string
	switch msg.(type) {
	case *core.RequestAccess:
		segment = paths.Request
	case *core.Exiting:
		segment = paths.Exiting
	default:
		return fmt.Errorf("%w: %s is not sent to the arbiter", core.ErrProtocolViolation, msg.Kind())
	}

	payload, err := codec.Encode(msg)
	if err != nil {
		return err
	}
	return m.client.Publish(ctx, m.topics.Build(segment, string(m.self)), qos, false, payload)
}

// Listen subscribes to the vehicle's grant topic and hands decoded messages
// to fn until ctx is done. fn may be called from several goroutines.
func (m *Messenger) Listen(ctx context.Context, fn func(core.Message)) error {
	if err := m.client.AwaitConnection(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	grantTopic := m.topics.Build(paths.Grant, string(m.self))
	if err := m.client.Subscribe(ctx, grantTopic, qos, func(_ context.Context, t string, payload []byte) {
		msg, err := codec.Decode(payload)
		if err != nil {
			m.logger.Warn("Dropping undecodable message", "topic", t, "error", err.Error())
			return
		}
		fn(msg)
	}); err != nil {
		return fmt.Errorf("failed to subscribe to topic: %s, err: %w", grantTopic, err)
	}

	<-ctx.Done()

	unsubCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = m.client.Unsubscribe(unsubCtx, grantTopic)
	return nil
}
