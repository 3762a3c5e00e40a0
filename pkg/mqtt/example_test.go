package mqtt_test

import (
	"context"
	"fmt"
	"time"

	"github.com/autopeer-io/crossway/pkg/log"
	"github.com/autopeer-io/crossway/pkg/mqtt"
)

// ExampleClient shows the lifecycle shared by the agent link and the arbiter:
// create, start, subscribe, wait for the broker, publish, disconnect.
func ExampleClient() {
	cfg := &mqtt.ClientConfig{
		BrokerURL:      "tcp://localhost:1883",
		ClientID:       "crossway-agent-veh-1",
		KeepAlive:      30,
		ConnectTimeout: 5 * time.Second,
		CleanStart:     true,
	}

	client, err := mqtt.NewClient(cfg)
	if err != nil {
		log.Error(err, "Failed to create MQTT client")
		return
	}

	// Start returns immediately; connecting and reconnecting happen in the background.
	ctx := context.Background()
	if err := client.Start(ctx); err != nil {
		log.Error(err, "Failed to start MQTT client")
		return
	}

	// Handlers run on their own goroutine and are re-subscribed after a reconnect.
	onGrant := func(ctx context.Context, topic string, payload []byte) {
		fmt.Printf("grant on %s (%d bytes)\n", topic, len(payload))
	}
	if err := client.Subscribe(ctx, "crossway/v1/grant/veh-1", 1, onGrant); err != nil {
		log.Error(err, "Failed to subscribe")
	}

	if err := client.AwaitConnection(ctx); err != nil {
		log.Error(err, "Connection timed out")
		return
	}

	// QoS 1: Publish returns once the broker acknowledged the message.
	if err := client.Publish(ctx, "crossway/v1/request/veh-1", 1, false, []byte{0x08, 0x02}); err != nil {
		log.Error(err, "Failed to publish message")
	}

	client.Disconnect(ctx)
}
