package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/autopeer-io/crossway/internal/crossway/arbiter"
	"github.com/autopeer-io/crossway/internal/crossway/arbiter/server/grpc"
	"github.com/autopeer-io/crossway/internal/crossway/arbiter/server/mqtt"
	httpserver "github.com/autopeer-io/crossway/internal/pkg/server/http"
	"github.com/autopeer-io/crossway/pkg/log"
	pkgmqtt "github.com/autopeer-io/crossway/pkg/mqtt"
	"github.com/autopeer-io/crossway/pkg/mqtt/topic"
)

// Server defines the common interface for all sub-servers (grpc, mqtt, http).
type Server interface {
	Start(ctx context.Context) error
}

// Manager manages the lifecycle of all protocol servers.
type Manager struct {
	servers []Server
}

// NewManager creates a new server manager and initializes all sub-servers.
func NewManager(cfg *Config, a *arbiter.Arbiter, clk clock.Clock) (*Manager, error) {
	var ready atomic.Bool

	// 1. gRPC health, flipped by the MQTT server.
	grpcSrv := grpc.NewServer(cfg.GrpcOptions)

	// 2. MQTT Server (The Data Plane Gateway)
	mqttConfig := cfg.MqttOptions.ToClientConfig()
	if mqttConfig.ClientID == "" {
		hostname, _ := os.Hostname()
		mqttConfig.ClientID = fmt.Sprintf("crossway-arbiter-%s", hostname)
	}
	client, err := pkgmqtt.NewClient(mqttConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to init mqtt client: %w", err)
	}
	mqttSrv := mqtt.NewServer(client, topic.NewBuilder(cfg.MqttOptions.TopicRoot), cfg.ArbiterOptions.Group, a, clk, func(ok bool) {
		ready.Store(ok)
		grpcSrv.SetReady(ok)
	})

	// 3. HTTP Server (Health, Metrics, Occupancy)
	httpSrv := httpserver.NewServer(cfg.HttpOptions, ready.Load)
	httpSrv.Router().HandleFunc("/v1/occupancy", func(w http.ResponseWriter, _ *http.Request) {
		httpserver.WriteJSON(w, http.StatusOK, a.Snapshot())
	}).Methods(http.MethodGet)

	return &Manager{
		servers: []Server{mqttSrv, grpcSrv, httpSrv},
	}, nil
}

// Start launches all servers in parallel and waits for termination.
func (m *Manager) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, srv := range m.servers {
		g.Go(func() error {
			return srv.Start(ctx)
		})
	}

	log.Info("All servers starting...")
	return g.Wait()
}
