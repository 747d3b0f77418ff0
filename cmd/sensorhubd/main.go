// Command sensorhubd is the sensor manager daemon: it loads a hub
// configuration, wires one driver per declared sensor, and serves the
// manager's public API until told to stop.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sensorhub/internal/config"
	"sensorhub/internal/dispatch"
	"sensorhub/internal/domain"
	"sensorhub/internal/drivers/envsensor"
	"sensorhub/internal/drivers/modbussensor"
	"sensorhub/internal/eventrt"
	"sensorhub/internal/manager"
	"sensorhub/internal/telemetry"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "hub.yaml", "path to the hub configuration file")
	development := flag.Bool("dev", false, "use a human-readable development logger instead of JSON")
	flag.Parse()

	log, err := newLogger(*development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sensorhubd: logger setup: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(*configPath, log); err != nil {
		log.Error("sensorhubd exiting with error", zap.Error(err))
		os.Exit(1)
	}
}

func newLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(configPath string, log *zap.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(&cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	log.Info("configuration loaded", zap.String("path", configPath), zap.Int("sensors", len(cfg.Sensors)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt := eventrt.NewGoroutine(256)
	defer rt.Close()

	tel := telemetry.New()

	modbusSink := modbussensor.NewSink(nil, 4, 64, log)
	defer modbusSink.Close()

	mgr := manager.New(manager.Config{
		SensorCapacity:        cfg.MaxSensors,
		RequestCapacity:       cfg.MaxSensors * 8,
		InternalEventCapacity: cfg.MaxSensors * 4,
	}, modbusSink, rt, tel, log)
	modbusSink.SetManager(mgr)

	closers, err := wireSensors(cfg, mgr, modbusSink, log)
	for _, c := range closers {
		defer c()
	}
	if err != nil {
		return fmt.Errorf("wire sensors: %w", err)
	}

	log.Info("sensorhubd ready", zap.Int("sensors", len(cfg.Sensors)))
	<-ctx.Done()
	log.Info("shutdown signal received, draining drivers")
	return nil
}

// wireSensors registers one driver per configured sensor and returns a
// slice of cleanup functions the caller should defer, in order, even
// when wiring later sensors fails — drivers already opened must still
// be closed.
func wireSensors(cfg config.HubConfig, mgr *manager.Manager, sink *modbussensor.Sink, log *zap.Logger) ([]func(), error) {
	var closers []func()
	for _, spec := range cfg.Sensors {
		switch spec.Driver {
		case "envsensor":
			closeFn, err := wireEnvSensor(spec, mgr, log)
			if err != nil {
				return closers, fmt.Errorf("sensor %q: %w", spec.Name, err)
			}
			closers = append(closers, closeFn)

		case "modbussensor":
			wireModbusSensor(spec, mgr, sink)

		default:
			return closers, fmt.Errorf("sensor %q: unknown driver %q", spec.Name, spec.Driver)
		}
	}
	return closers, nil
}

func wireEnvSensor(spec config.SensorSpec, mgr *manager.Manager, log *zap.Logger) (func(), error) {
	bus := spec.I2CBus
	if bus == 0 {
		bus = 1
	}
	i2c, err := openLinuxI2C(bus)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %d: %w", bus, err)
	}

	rates := spec.Rates()
	baseRate := domain.RateOnDemand
	if len(rates) > 0 {
		baseRate = rates[0]
	}

	ad := envsensor.New(i2c, baseRate, mgr, log)
	info := domain.Info{Type: domain.SensorType(spec.Type), Name: spec.Name, SupportedRates: rates}
	handle := mgr.Register(info, dispatch.InProc(ad))
	ad.Bind(handle)

	return func() { _ = i2c.Close() }, nil
}

func wireModbusSensor(spec config.SensorSpec, mgr *manager.Manager, sink *modbussensor.Sink) {
	rates := spec.Rates()
	baseRate := domain.RateOnDemand
	if len(rates) > 0 {
		baseRate = rates[0]
	}

	id := sink.Register(modbussensor.Config{
		Endpoint: spec.Endpoint,
		UnitID:   spec.UnitID,
		Register: spec.Register,
		Timeout:  2 * time.Second,
		BaseRate: baseRate,
	})
	info := domain.Info{Type: domain.SensorType(spec.Type), Name: spec.Name, SupportedRates: rates}
	handle := mgr.Register(info, dispatch.OutOfProc(id))
	sink.Bind(id, handle)
}
