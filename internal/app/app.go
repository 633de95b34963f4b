package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/SteveOnorato/moat-temp-hum-ble/internal/ble"
	"github.com/SteveOnorato/moat-temp-hum-ble/internal/config"
	"github.com/SteveOnorato/moat-temp-hum-ble/internal/db"
	"github.com/SteveOnorato/moat-temp-hum-ble/internal/httpapi"
	"github.com/SteveOnorato/moat-temp-hum-ble/internal/mqtt"
	"github.com/SteveOnorato/moat-temp-hum-ble/internal/registry"
	"github.com/SteveOnorato/moat-temp-hum-ble/internal/report"
	"github.com/SteveOnorato/moat-temp-hum-ble/internal/sensor"
	"github.com/SteveOnorato/moat-temp-hum-ble/internal/store"
	"github.com/SteveOnorato/moat-temp-hum-ble/internal/types"
)

func Run(ctx context.Context, cfg config.Config) error {
	logger := slog.Default()
	logger.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"sensorsFile", cfg.SensorsFile,
		"httpAddr", cfg.HTTPAddr,
		"sqlitePath", cfg.SQLitePath,
		"mqttEnabled", cfg.MQTTEnabled,
		"mqttBroker", cfg.MQTTBroker,
		"mqttPort", cfg.MQTTPort,
		"mqttTopicPrefix", cfg.MQTTTopicPrefix,
		"bleEnabled", cfg.BLEEnabled,
		"bleAdapter", cfg.BLEAdapter,
	)

	sensors, err := config.LoadSensors(cfg.SensorsFile)
	if err != nil {
		return err
	}
	settings := sensors.Settings
	logger.Info("sensors loaded",
		"devices", len(sensors.Devices),
		"period", settings.Period,
		"unit", settings.Unit().String(),
	)
	reg := registry.New(sensors.Devices, time.Now())

	dbConn, err := db.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(dbConn); closeErr != nil {
			logger.Error("db close", "error", closeErr)
		}
	}()
	if err := db.Migrate(ctx, dbConn, logger); err != nil {
		return err
	}
	repo := store.NewRepository(dbConn)
	for _, d := range reg.Devices() {
		if err := repo.UpsertDevice(d.Config); err != nil {
			return err
		}
	}
	history := store.Sink{Repo: repo, Logger: logger}

	sinks := report.MultiSink{report.LogSink{Logger: logger}, history}
	rejectFns := []func(types.Rejection){history.OnRejection}

	var publisher *mqtt.Publisher
	if cfg.MQTTEnabled {
		publisher = mqtt.NewPublisher(cfg, logger)
		// A broker that is down must not block startup; paho keeps retrying.
		connectCtx, connectCancel := context.WithTimeout(ctx, 5*time.Second)
		err = publisher.Connect(connectCtx)
		connectCancel()
		if err != nil {
			logger.Warn("mqtt connection failed (continuing, will retry)", "error", err)
		}
		sinks = append(sinks, publisher)
		rejectFns = append(rejectFns, publisher.OnRejection)
	}

	pipeline := sensor.NewPipeline(reg, settings, fanOut(rejectFns...), logger)

	if cfg.BLEEnabled {
		addrs := make([]string, 0, len(sensors.Devices))
		for _, d := range reg.Devices() {
			addrs = append(addrs, d.Config.MAC)
		}
		listener := ble.NewListener(ble.Options{
			Adapter: cfg.BLEAdapter,
			Filter: ble.Filter{
				CompanyIDs: []uint16{ble.CompanyMoat, ble.CompanyGovee, ble.CompanyGoveeH5102},
				Addresses:  addrs,
			},
		}, logger)
		ble.NewFrameHandler(pipeline.OnFrame, logger).StartListener(ctx, listener)
	} else {
		logger.Info("ble disabled; no readings will be collected")
	}

	scheduler := report.NewScheduler(reg, settings, sinks, logger)
	ticker := time.NewTicker(settings.Period)
	defer ticker.Stop()

	errCh := make(chan error, 2)
	go func() {
		errCh <- scheduler.Run(ctx, ticker.C)
	}()

	var srv *http.Server
	if cfg.HTTPAddr != "" {
		srv = httpapi.NewServer(cfg.HTTPAddr, httpapi.NewMux(dbConn, reg, repo))
		go func() {
			logger.Info("http listening", "addr", cfg.HTTPAddr)
			errCh <- srv.ListenAndServe()
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, context.Canceled) {
			shutdown(srv, publisher, logger)
			return err
		}
	}

	return shutdown(srv, publisher, logger)
}

func shutdown(srv *http.Server, publisher *mqtt.Publisher, logger *slog.Logger) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if publisher != nil {
		logger.Info("mqtt disconnecting")
		publisher.Disconnect()
	}

	if srv != nil {
		logger.Info("http shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	logger.Info("gateway stopped")
	return nil
}

// fanOut calls every fn with each rejection, in order.
func fanOut(fns ...func(types.Rejection)) func(types.Rejection) {
	return func(rej types.Rejection) {
		for _, fn := range fns {
			fn(rej)
		}
	}
}
