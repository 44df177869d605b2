package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/plus-control/plusd/internal/audit"
	"github.com/plus-control/plusd/internal/command"
	"github.com/plus-control/plusd/internal/config"
	"github.com/plus-control/plusd/internal/device"
	"github.com/plus-control/plusd/internal/device/bkoem"
	"github.com/plus-control/plusd/internal/monitoring"
	"github.com/plus-control/plusd/internal/telemetry"
	"github.com/plus-control/plusd/internal/tracing"
)

// app is the wired server: devices, the command processor and the ambient
// services they report to.
type app struct {
	cfg       *config.Config
	hub       *telemetry.Hub
	devices   *device.Collection
	processor *command.Processor

	logCloser      io.Closer
	tracerShutdown func(context.Context) error
	auditLog       *audit.Logger
	journal        *audit.Journal
}

// newApp loads the configuration and builds every component. Nothing is
// connected or started yet.
func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}

	// Step 1: process log
	if a.logCloser, err = monitoring.Setup(cfg.Logging); err != nil {
		return nil, fmt.Errorf("set up logging: %w", err)
	}

	// Step 2: tracing
	if a.tracerShutdown, err = tracing.Setup(ctx, cfg.Tracing); err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("set up tracing: %w", err)
	}

	// Step 3: audit trail
	if a.auditLog, err = audit.NewLogger(cfg.Audit); err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	sinks := []audit.Sink{a.auditLog}
	if cfg.Audit.Journal != "" {
		if a.journal, err = audit.OpenJournal(cfg.Audit.Journal); err != nil {
			a.close(ctx)
			return nil, fmt.Errorf("open journal: %w", err)
		}
		sinks = append(sinks, a.journal)
	}

	// Step 4: telemetry hub and devices
	a.hub = telemetry.NewHub(telemetry.DefaultBufferSize)
	if a.devices, err = buildDevices(cfg.Devices, a.hub); err != nil {
		a.close(ctx)
		return nil, err
	}

	// Step 5: command processor
	registry := command.NewRegistry()
	if err := command.RegisterDefaults(registry); err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("register commands: %w", err)
	}
	a.processor = command.NewProcessor(registry, a.devices, cfg.Processor,
		command.WithAuditLogger(audit.Multi(sinks...)),
		command.WithPublisher(a.hub),
	)

	return a, nil
}

// buildDevices creates the configured devices in order.
func buildDevices(configs []config.DeviceConfig, hub *telemetry.Hub) (*device.Collection, error) {
	devices := device.NewCollection()
	for _, dc := range configs {
		var d device.Device
		switch dc.Type {
		case config.DeviceTypeBKOEM:
			sc, err := bkoem.New(dc, bkoem.WithPublisher(hub))
			if err != nil {
				return nil, err
			}
			d = sc
		default:
			return nil, fmt.Errorf("device %q: unsupported type %q", dc.ID, dc.Type)
		}
		if err := devices.Add(d); err != nil {
			return nil, err
		}
	}
	return devices, nil
}

// start connects the devices and starts the worker. Devices that fail to
// connect are reported but do not stop the server; their commands fail.
func (a *app) start(ctx context.Context) {
	if err := a.devices.Connect(ctx, 0); err != nil {
		log.Printf("Some devices failed to connect: %v", err)
	}
	a.processor.Start()
	log.Printf("plusd %s started with %d device(s)", command.Version, a.devices.Len())
	for _, s := range a.devices.Status() {
		if !s.Connected {
			log.Printf("Device %s (%s) unavailable: %s", s.ID, s.Type, s.LastError)
		}
	}
}

// shutdown stops the worker and releases everything newApp acquired.
func (a *app) shutdown() {
	ctx := context.Background()
	if t := a.cfg.Processor.ShutdownTimeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	if a.processor != nil {
		a.processor.Stop()
	}
	if a.devices != nil {
		if err := a.devices.Disconnect(ctx); err != nil {
			log.Printf("Error disconnecting devices: %v", err)
		}
	}
	a.close(ctx)
}

func (a *app) close(ctx context.Context) {
	var errs []error
	if a.hub != nil {
		a.hub.Stop()
	}
	if a.journal != nil {
		errs = append(errs, a.journal.Close())
	}
	if a.auditLog != nil {
		errs = append(errs, a.auditLog.Close())
	}
	if a.tracerShutdown != nil {
		errs = append(errs, a.tracerShutdown(ctx))
	}
	if err := errors.Join(errs...); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
	if a.logCloser != nil {
		_ = a.logCloser.Close()
	}
}
