package mqtt

import (
	"context"
	"fmt"
	"time"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/crossway/internal/crossway/arbiter"
	"github.com/autopeer-io/crossway/internal/crossway/codec"
	"github.com/autopeer-io/crossway/internal/crossway/core"
	"github.com/autopeer-io/crossway/internal/pkg/mqtt/paths"
	"github.com/autopeer-io/crossway/pkg/log"
	pkgmqtt "github.com/autopeer-io/crossway/pkg/mqtt"
	"github.com/autopeer-io/crossway/pkg/mqtt/topic"
)

const qos = 1

// Server is the arbiter's MQTT ingress: it feeds requests and exits into
// the arbiter and publishes the resulting grants.
type Server struct {
	client  pkgmqtt.Client
	topics  *topic.Builder
	group   string
	arbiter *arbiter.Arbiter
	clock   clock.Clock
	onReady func(bool)
}

// NewServer creates the MQTT server. onReady is told when subscriptions are
// in place and when the server stops. clk drives time-based policies.
func NewServer(client pkgmqtt.Client, builder *topic.Builder, group string, a *arbiter.Arbiter, clk clock.Clock, onReady func(bool)) *Server {
	if onReady == nil {
		onReady = func(bool) {}
	}
	return &Server{
		client:  client,
		topics:  builder,
		group:   group,
		arbiter: a,
		clock:   clk,
		onReady: onReady,
	}
}

// Start connects to the broker and subscribes to topics.
func (s *Server) Start(ctx context.Context) error {
	if err := s.client.Start(ctx); err != nil {
		return err
	}

	defer func() {
		s.onReady(false)
		log.Info("Disconnecting MQTT client...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.client.Disconnect(shutdownCtx)
	}()

	log.Info("Waiting for MQTT connection...")
	if err := s.client.AwaitConnection(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	log.Info("MQTT Connected")

	if err := s.initMQTTSubscriptions(ctx); err != nil {
		return err
	}
	s.onReady(true)

	return s.arbiter.Run(ctx, s.clock, s.grant)
}

func (s *Server) initMQTTSubscriptions(ctx context.Context) error {
	subscriptions := map[string]pkgmqtt.MessageHandler{
		s.topics.Shared(s.group).BuildWildcard(paths.Request): s.handleRequest,
		s.topics.Shared(s.group).BuildWildcard(paths.Exiting): s.handleExiting,
		s.topics.BuildWildcard(paths.Online):                  s.handleOnline,
	}

	for fullTopic, handler := range subscriptions {
		if err := s.client.Subscribe(ctx, fullTopic, qos, handler); err != nil {
			return fmt.Errorf("failed to subscribe to topic: %s, err: %w", fullTopic, err)
		}
	}
	return nil
}

func (s *Server) handleRequest(ctx context.Context, t string, payload []byte) {
	msg, id, err := s.decode(paths.Request, t, payload)
	if err != nil {
		log.Warn("Dropping request", "topic", t, "error", err.Error())
		return
	}
	req, ok := msg.(*core.RequestAccess)
	if !ok {
		log.Warn("Dropping request", "topic", t, "error", fmt.Sprintf("%v: %s on request topic", core.ErrProtocolViolation, msg.Kind()))
		return
	}
	if req.VehicleID != id {
		log.Warn("Dropping request", "topic", t, "error", fmt.Sprintf("%v: vehicle %s publishing as %s", core.ErrProtocolViolation, req.VehicleID, id))
		return
	}
	s.grant(ctx, s.arbiter.Request(req))
}

func (s *Server) handleExiting(ctx context.Context, t string, payload []byte) {
	msg, id, err := s.decode(paths.Exiting, t, payload)
	if err != nil {
		log.Warn("Dropping exit", "topic", t, "error", err.Error())
		return
	}
	if _, ok := msg.(*core.Exiting); !ok {
		log.Warn("Dropping exit", "topic", t, "error", fmt.Sprintf("%v: %s on exiting topic", core.ErrProtocolViolation, msg.Kind()))
		return
	}
	granted, err := s.arbiter.Exit(id)
	if err != nil {
		log.Warn("Ignoring exit", "vehicleID", string(id), "error", err.Error())
	}
	s.grant(ctx, granted)
}

// handleOnline drops a waiting vehicle whose connection was lost. It will
// request again after reconnecting.
func (s *Server) handleOnline(ctx context.Context, t string, payload []byte) {
	id, ok := s.topics.VehicleID(paths.Online, t)
	if !ok {
		return
	}
	online := string(payload) == "1"
	log.Info("Vehicle presence changed", "vehicleID", id, "online", online)
	if !online {
		s.grant(ctx, s.arbiter.Forget(core.PeerID(id)))
	}
}

func (s *Server) decode(segment, t string, payload []byte) (core.Message, core.PeerID, error) {
	id, ok := s.topics.VehicleID(segment, t)
	if !ok {
		return nil, "", fmt.Errorf("%w: unexpected topic", core.ErrProtocolViolation)
	}
	msg, err := codec.Decode(payload)
	if err != nil {
		return nil, "", err
	}
	return msg, core.PeerID(id), nil
}

func (s *Server) grant(ctx context.Context, grants arbiter.Grants) {
	for i := range grants {
		g := &grants[i]
		id := string(g.VehicleID)
		payload, err := codec.Encode(g)
		if err != nil {
			log.Error(err, "Failed to encode grant", "vehicleID", id)
			continue
		}
		// A lost grant is recovered by the vehicle's next retry.
		if err := s.client.Publish(ctx, s.topics.Build(paths.Grant, id), qos, false, payload); err != nil {
			log.Error(err, "Failed to publish grant", "vehicleID", id)
		}
	}
}
