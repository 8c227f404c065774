// Command simulator runs the rover platform simulator: it stands in for the
// physical base and the scan-matching pipeline, consuming velocity commands
// from the message bus and publishing distance measurements and poses.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/signalsfoundry/rover-simulator/config"
	"github.com/signalsfoundry/rover-simulator/core"
	"github.com/signalsfoundry/rover-simulator/internal/logging"
	"github.com/signalsfoundry/rover-simulator/internal/observability"
	"github.com/signalsfoundry/rover-simulator/internal/transport"
	"github.com/signalsfoundry/rover-simulator/model"
)

func main() {
	configPath := flag.String("config", "configs/simulator.yaml", "Path to the YAML configuration file")
	duration := flag.Duration("duration", 0, "Run for a fixed duration then stop (0 = run until interrupted)")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error(ctx, "failed to load configuration", logging.String("error", err.Error()))
		os.Exit(1)
	}

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.String("error", err.Error()))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(ctx, shutdownTracing, log)

	collector, err := observability.NewSimCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise metrics collector", logging.String("error", err.Error()))
		os.Exit(1)
	}
	metricsSrv := serveMetrics(cfg.Metrics.Listen, collector, log)

	bus, err := transport.Dial(transport.Options{
		Broker:           cfg.MQTT.Broker,
		ClientID:         cfg.MQTT.ClientID,
		Username:         cfg.MQTT.Username,
		Password:         cfg.MQTT.Password,
		ControlTopic:     cfg.MQTT.ControlTopic,
		MeasurementTopic: cfg.MQTT.MeasurementTopic,
		PoseTopic:        cfg.MQTT.PoseTopic,
		QoS:              cfg.MQTT.QoS,
		ConnectTimeout:   cfg.MQTT.ConnectTimeout.Std(),
		PublishTimeout:   cfg.MQTT.PublishTimeout.Std(),
	}, log)
	if err != nil {
		log.Error(ctx, "failed to connect to message bus", logging.String("error", err.Error()))
		os.Exit(1)
	}
	defer bus.Close()

	sim := core.New(bus, bus,
		core.WithLogger(log),
		core.WithMetrics(collector),
	)
	if err := sim.Configure(ctx, cfg.Simulation.Core()); err != nil {
		log.Error(ctx, "configuration rejected", logging.String("error", err.Error()))
		os.Exit(1)
	}
	if err := bus.SubscribeControl(func(cmd model.Twist) {
		// Invalid commands are logged and skipped inside ReceiveControl.
		_ = sim.ReceiveControl(ctx, cmd)
	}); err != nil {
		log.Error(ctx, "failed to subscribe to control topic", logging.String("error", err.Error()))
		os.Exit(1)
	}
	if err := sim.Start(ctx); err != nil {
		log.Error(ctx, "failed to start simulator", logging.String("error", err.Error()))
		os.Exit(1)
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		select {
		case <-stopCtx.Done():
		case <-time.After(*duration):
		}
	} else {
		<-stopCtx.Done()
	}

	log.Info(ctx, "shutting down simulator")
	if err := sim.Stop(ctx); err != nil {
		log.Warn(ctx, "stop failed", logging.String("error", err.Error()))
	}
	if err := sim.Cleanup(ctx); err != nil {
		log.Warn(ctx, "cleanup failed", logging.String("error", err.Error()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
}

func serveMetrics(addr string, collector *observability.SimCollector, log logging.Logger) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.String("error", err.Error()))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
