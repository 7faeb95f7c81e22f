// Package run implements the run command: the session controller with its
// control API and publishers.
package run

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/sigscope/sigscope/internal/analyzer/sim"
	"github.com/sigscope/sigscope/internal/api"
	"github.com/sigscope/sigscope/internal/buildinfo"
	"github.com/sigscope/sigscope/internal/conf"
	"github.com/sigscope/sigscope/internal/errors"
	"github.com/sigscope/sigscope/internal/events"
	"github.com/sigscope/sigscope/internal/logger"
	"github.com/sigscope/sigscope/internal/monitor"
	"github.com/sigscope/sigscope/internal/mqtt"
	"github.com/sigscope/sigscope/internal/notification"
	"github.com/sigscope/sigscope/internal/observability"
	"github.com/sigscope/sigscope/internal/session"
	"github.com/sigscope/sigscope/internal/telemetry"
)

const (
	busShutdownTimeout   = 5 * time.Second
	telemetryFlushWindow = 2 * time.Second
)

// Command creates the run command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the capture session controller",
		Long: "Start the session controller with the simulated analyzer, the control API " +
			"and, when enabled, the MQTT publisher. Runs until SIGINT or SIGTERM.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return Run(ctx, settings)
		},
	}

	cmd.Flags().Bool("autostart", viper.GetBool("main.autostart"), "Start capture as soon as the controller is up")
	cmd.Flags().String("listen", viper.GetString("api.listen"), "Control API listen address")
	cmd.Flags().Bool("mqtt", viper.GetBool("mqtt.enabled"), "Enable the MQTT publisher")
	for key, flag := range map[string]string{
		"main.autostart": "autostart",
		"api.listen":     "listen",
		"mqtt.enabled":   "mqtt",
	} {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			panic("error binding flag " + flag + ": " + err.Error())
		}
	}

	return cmd
}

// Run wires every service around the session controller and blocks until
// ctx is cancelled or a service fails.
func Run(ctx context.Context, settings *conf.Settings) error {
	log := logger.Global().Module("main")
	build := buildinfo.Current()
	log.Info("starting sigscope",
		logger.String("version", build.Version()),
		logger.String("commit", build.Commit()),
		logger.String("instance", settings.Main.Name))

	defer initTelemetry(settings, build, log)()

	m, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	bus := events.New(events.Config{
		BufferSize: settings.Events.BufferSize,
		Workers:    settings.Events.Workers,
	}, log.Module("events"))
	defer func() {
		if err := bus.Shutdown(busShutdownTimeout); err != nil {
			log.Warn("event bus did not drain", logger.Error(err))
		}
	}()
	if err := m.RegisterEventBus(bus); err != nil {
		return err
	}

	notifications := notification.NewService(notification.ServiceConfig{
		Logger:  log.Module("notification"),
		Metrics: m.Notification,
	})
	defer notifications.Stop()

	consumers := []events.Consumer{
		events.TelemetryConsumer{},
		notification.NewConsumer(notifications),
	}

	sessCfg, err := session.ConfigFromSettings(settings)
	if err != nil {
		return err
	}
	ctrl, err := session.New(sessCfg,
		sim.NewFactory(sim.WithLogger(log.Module("analyzer.sim"))),
		session.WithPublisher(bus),
		session.WithLogTail(logger.Global()),
		session.WithLogger(log.Module("session")),
		session.WithMetrics(session.Metrics{
			Session:   m.Session,
			Inspector: m.Inspector,
			Saver:     m.Saver,
		}),
	)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ctrl.Run(ctx) })

	if settings.API.Enabled {
		srv, err := api.New(api.ConfigFromSettings(settings), ctrl,
			api.WithLogger(log.Module("api")),
			api.WithNotifications(notifications),
			api.WithMetrics(m),
			api.WithVersion(build.Version()),
		)
		if err != nil {
			return err
		}
		consumers = append(consumers, srv.Hub())
		g.Go(func() error { return srv.Run(ctx) })
	}

	if settings.Monitor.Enabled {
		mon := monitor.New(monitor.ConfigFromSettings(settings), recordDir(ctrl), notifications,
			monitor.WithLogger(log.Module("monitor")))
		g.Go(func() error { return mon.Run(ctx) })
	}

	if settings.MQTT.Enabled {
		cfg := mqtt.ConfigFromSettings(settings)
		client, err := mqtt.NewClient(cfg, m.MQTT, log.Module("mqtt"))
		if err != nil {
			return err
		}
		pub := mqtt.NewPublisher(client, mqtt.PublisherConfig{
			TopicPrefix: cfg.TopicPrefix,
			Logger:      log.Module("mqtt"),
		})
		consumers = append(consumers, pub)
		g.Go(func() error { return pub.Run(ctx) })
	}

	for _, c := range consumers {
		if err := bus.RegisterConsumer(c); err != nil {
			return err
		}
	}
	errors.SetEventPublisher(events.NewErrorPublisher(bus))
	defer errors.SetEventPublisher(nil)

	if settings.Main.Autostart {
		g.Go(func() error {
			if err := ctrl.Start(ctx); err != nil && ctx.Err() == nil {
				log.Warn("autostart failed", logger.Error(err))
			}
			return nil
		})
	}

	err = g.Wait()
	log.Info("sigscope stopped")
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// recordDir reports the directory the saver writes to, following runtime changes.
func recordDir(ctrl *session.Controller) monitor.PathFunc {
	return func(ctx context.Context) (string, error) {
		snap, err := ctrl.Snapshot(ctx)
		if err != nil {
			return "", err
		}
		return snap.Source.RecordDir, nil
	}
}

// initTelemetry enables Sentry reporting when configured and returns the
// flush to run at exit.
func initTelemetry(settings *conf.Settings, build *buildinfo.Context, log logger.Logger) func() {
	if !settings.Telemetry.Enabled {
		return func() {}
	}

	var systemID string
	if used := viper.ConfigFileUsed(); used != "" {
		id, err := telemetry.LoadOrCreateSystemID(filepath.Dir(used))
		if err != nil {
			log.Warn("failed to load system id", logger.Error(err))
		}
		systemID = id
	}

	if _, err := telemetry.Init(telemetry.Config{
		Enabled:  settings.Telemetry.Enabled,
		DSN:      settings.Telemetry.SentryDSN,
		Release:  build.Version(),
		SystemID: systemID,
	}); err != nil {
		log.Warn("error telemetry disabled", logger.Error(err))
		return func() {}
	}
	return func() { telemetry.Flush(telemetryFlushWindow) }
}
