package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"FlightCheck/internal/config"
	"FlightCheck/internal/drone"
	"FlightCheck/internal/logging"
	"FlightCheck/internal/mission"
	"FlightCheck/internal/storage"
)

// loadConfig reads the config file and applies command line overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}

	if c.IsSet("address") {
		cfg.Connection.Address = c.String("address")
	}
	if c.IsSet("variant") {
		cfg.Mission.Variant = c.String("variant")
	}
	if c.IsSet("db") {
		cfg.Recorder.Path = c.String("db")
	}
	return cfg, cfg.Validate()
}

func droneOptions(cfg *config.Config, logger *zap.SugaredLogger) []drone.Option {
	opts := []drone.Option{
		drone.WithSystemID(byte(cfg.Connection.SystemID)),
		drone.WithCommandTimeout(cfg.Connection.CommandTimeout.Std()),
		drone.WithCommandRetries(cfg.Connection.CommandRetries),
		drone.WithHeartbeatTimeout(cfg.Connection.HeartbeatTimeout.Std()),
		drone.WithLogger(logger.Named("drone")),
	}
	if cfg.Connection.MavlinkVersion == 1 {
		opts = append(opts, drone.WithMavlinkV1())
	}
	return opts
}

func runnerTimeouts(t config.TimeoutsConfig) mission.Timeouts {
	return mission.Timeouts{
		Connect:     t.Connect.Std(),
		Battery:     t.Battery.Std(),
		Calibration: t.Calibration.Std(),
		GPSFix:      t.GPSFix.Std(),
		Home:        t.Home.Std(),
		Airborne:    t.Airborne.Std(),
		Landed:      t.Landed.Std(),
		Position:    t.Position.Std(),
	}
}

func doRun(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer logger.Sync()

	plan, err := mission.NewPlan(cfg.Mission.Variant, cfg.Mission.Steps)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Infof("Connecting to %s", cfg.Connection.Address)
	d, err := drone.Dial(cfg.Connection.Address, droneOptions(cfg, logger)...)
	if err != nil {
		return err
	}
	defer d.Close()

	opts := []func(*mission.Runner){
		mission.WithLogger(logger.Named("mission")),
		mission.WithTimeouts(runnerTimeouts(cfg.Timeouts)),
		mission.WithBatteryWindow(cfg.BatteryCheck.Window.Std()),
		mission.WithRequireInAir(cfg.Home.RequireInAir),
		mission.WithPositionSamples(cfg.PositionReport.Samples),
	}

	if cfg.Recorder.Path != "" {
		store := storage.NewSqliteStore(cfg.Recorder.Path)
		defer func() {
			if err := store.Close(); err != nil {
				logger.Warnf("Closing flight recorder: %v", err)
			}
		}()
		opts = append(opts, mission.WithRecorder(store, cfg.Connection.Address, cfg))
	}

	err = mission.NewRunner(d, plan, opts...).Run(ctx)
	if mission.IsLowBattery(err) {
		logger.Warn("Mission stopped on low battery, vehicle commanded to land")
	}
	if err != nil && ctx.Err() == context.Canceled {
		return fmt.Errorf("mission interrupted: %w", err)
	}
	return err
}
