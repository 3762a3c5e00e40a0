package agent

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/crossway/internal/crossway/adhoc"
	"github.com/autopeer-io/crossway/internal/crossway/beacon"
	"github.com/autopeer-io/crossway/internal/crossway/centralized"
	"github.com/autopeer-io/crossway/internal/crossway/core"
	"github.com/autopeer-io/crossway/internal/crossway/daemon"
	"github.com/autopeer-io/crossway/internal/crossway/hal"
	"github.com/autopeer-io/crossway/internal/crossway/journal"
	"github.com/autopeer-io/crossway/internal/crossway/link"
	"github.com/autopeer-io/crossway/internal/crossway/neighbor"
	"github.com/autopeer-io/crossway/internal/crossway/reliable"
	httpserver "github.com/autopeer-io/crossway/internal/pkg/server/http"
	"github.com/autopeer-io/crossway/pkg/log"
	pkgmqtt "github.com/autopeer-io/crossway/pkg/mqtt"
	"github.com/autopeer-io/crossway/pkg/mqtt/topic"
	"github.com/autopeer-io/crossway/pkg/options"
)

type Config struct {
	VehicleOptions      *options.VehicleOptions
	CoordinationOptions *options.CoordinationOptions
	BeaconOptions       *options.BeaconOptions
	MqttOptions         *options.MqttOptions
	HttpOptions         *options.HttpOptions
	JournalOptions      *options.JournalOptions
	S3Options           *options.S3Options
}

// NewAgent assembles the coordinator selected by the coordination mode and
// everything around it. Nothing touches the network until Run.
func (cfg *Config) NewAgent() (*Agent, error) {
	id := core.PeerID(cfg.VehicleOptions.ID)
	lane := core.LaneSpec{EntryPoint: cfg.VehicleOptions.EntryPoint, ExitPoint: cfg.VehicleOptions.ExitPoint}
	logger := log.WithValues("vehicleID", id)
	clk := clock.RealClock{}

	conflicts, err := core.LoadConflictTable(cfg.VehicleOptions.ConflictFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load conflict table: %w", err)
	}

	a := &Agent{
		id:     id,
		mode:   cfg.CoordinationOptions.Mode,
		lane:   lane,
		logger: logger,
	}

	var (
		coord   core.Coordinator
		retries func() int
	)
	switch cfg.CoordinationOptions.Mode {
	case options.ModeAdHoc:
		coord, err = cfg.initAdHoc(a, lane, conflicts, clk, logger)
	case options.ModeCentralized:
		var c *centralized.Coordinator
		c, err = cfg.initCentralized(a, lane, clk, logger)
		coord, retries = c, c.Retries
	default:
		err = fmt.Errorf("unknown coordination mode %q", cfg.CoordinationOptions.Mode)
	}
	if err != nil {
		a.close()
		return nil, err
	}

	var daemonOpts []daemon.Option
	if cfg.JournalOptions.Path != "" {
		recorder, err := cfg.initJournal(a, lane, retries, logger)
		if err != nil {
			a.close()
			return nil, err
		}
		daemonOpts = append(daemonOpts, daemon.WithObserver(func(c daemon.StatusChange) {
			recorder.Observe(c.To, c.At)
		}))
	}

	a.daemon = daemon.New(daemon.Config{
		CycleTime: cfg.CoordinationOptions.CycleTime,
		ExitDwell: cfg.CoordinationOptions.ExitDwell,
	}, coord, hal.NewLoggingMotion(logger), clk, logger, daemonOpts...)
	a.add("daemon", a.daemon.Run)

	if path := cfg.VehicleOptions.ConflictFile; path != "" {
		a.add("conflict-watch", func(ctx context.Context) error {
			return core.WatchConflictFile(ctx, path, conflicts, logger)
		})
	}

	if script := cfg.VehicleOptions.Script; script != "" {
		steps, err := hal.ParseScript(script)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to parse detector script: %w", err)
		}
		detector := hal.NewScriptedDetector(steps, cfg.VehicleOptions.ScriptRepeat, clk, logger)
		a.add("detector", func(ctx context.Context) error {
			return detector.Run(ctx, a.daemon.Emit)
		})
	}

	a.http = httpserver.NewServer(cfg.HttpOptions, a.ready)
	a.routes().register(a.http.Router())
	a.add("http", a.http.Start)

	return a, nil
}

func (cfg *Config) initAdHoc(a *Agent, lane core.LaneSpec, conflicts core.ConflictChecker, clk clock.Clock, logger log.Logger) (*adhoc.Coordinator, error) {
	bo := cfg.BeaconOptions
	transport, err := beacon.NewUDPTransport(bo.Group, bo.Interface)
	if err != nil {
		return nil, fmt.Errorf("failed to join beacon group %s: %w", bo.Group, err)
	}
	a.closers = append(a.closers, transport.Close)

	var (
		host string
		port int
	)
	if addr := transport.LocalAddr(); addr != nil {
		port = addr.Port
		if addr.IP != nil {
			host = addr.IP.String()
		}
	}

	ch := beacon.NewChannel(transport, a.id, logger, beacon.WithClock(clk))
	table := neighbor.NewTable(clk)
	coord := adhoc.New(adhoc.Config{
		Self:            a.id,
		Address:         host,
		Port:            port,
		Lane:            lane,
		MinSafeDuration: cfg.CoordinationOptions.MinSafeDuration,
		EvictAfter:      bo.EvictionThreshold(),
	}, table, ch, conflicts, clk, logger)
	ch.SetListener(coord.OnBeacon)

	a.neighbors = table.Snapshot
	a.add("beacon", func(ctx context.Context) error {
		if err := ch.Start(ctx, bo.MinPeriod, bo.MaxPeriod); err != nil {
			return err
		}
		<-ctx.Done()
		ch.Stop()
		return nil
	})
	return coord, nil
}

func (cfg *Config) initCentralized(a *Agent, lane core.LaneSpec, clk clock.PassiveClock, logger log.Logger) (*centralized.Coordinator, error) {
	builder := topic.NewBuilder(cfg.MqttOptions.TopicRoot)

	mqttConfig := cfg.MqttOptions.ToClientConfig()
	if mqttConfig.ClientID == "" {
		mqttConfig.ClientID = fmt.Sprintf("crossway-agent-%s", a.id)
	}
	link.WillConfig(mqttConfig, builder, a.id)

	client, err := pkgmqtt.NewClient(mqttConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to init mqtt client: %w", err)
	}

	messenger := link.NewMessenger(client, builder, a.id, logger)
	channel := reliable.New(messenger, cfg.CoordinationOptions.SendTimeout, logger)

	host, port := splitHostPort(cfg.HttpOptions.Addr)
	coord := centralized.New(centralized.Config{
		Self:           a.id,
		Address:        host,
		Port:           port,
		Lane:           lane,
		RequestTimeout: cfg.CoordinationOptions.RequestTimeout,
	}, channel, clk, logger)

	a.add("mqtt", messenger.Start)
	a.add("grant-listener", func(ctx context.Context) error {
		return messenger.Listen(ctx, coord.OnMessage)
	})
	a.add("reliable", channel.Run)
	return coord, nil
}

func (cfg *Config) initJournal(a *Agent, lane core.LaneSpec, retries func() int, logger log.Logger) (*journal.Recorder, error) {
	store, err := journal.Open(cfg.JournalOptions.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	a.closers = append(a.closers, store.Close)
	a.episodes = store

	recorder := journal.NewRecorder(store, a.id, a.mode, lane, retries, logger)
	a.add("journal", recorder.Run)

	if cfg.S3Options.Enabled() {
		uploader, err := journal.NewMinIO(cfg.S3Options)
		if err != nil {
			return nil, fmt.Errorf("failed to init object storage: %w", err)
		}
		archiver := journal.NewArchiver(store, uploader, "episodes/"+string(a.id), cfg.S3Options.ArchiveInterval, logger)
		a.add("archiver", archiver.Run)
	}
	return recorder, nil
}

// splitHostPort extracts the advertised address from a bind address. An
// unparsable address yields empty values, which are only informational.
func splitHostPort(addr string) (string, int) {
	host, p, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0
	}
	port, _ := strconv.Atoi(p)
	return host, port
}
