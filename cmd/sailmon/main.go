// cmd/sailmon/main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/glidertools/sailbus/internal/config"
	"github.com/glidertools/sailbus/internal/dispatch"
	"github.com/glidertools/sailbus/internal/export"
	"github.com/glidertools/sailbus/internal/poller"
	"github.com/glidertools/sailbus/internal/registry"
	"github.com/glidertools/sailbus/internal/sail"
	"github.com/glidertools/sailbus/internal/transport"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: sailmon <config.yaml>")
	}

	// --------------------
	// Load + validate config
	// --------------------

	_ = godotenv.Load()

	cfg, err := config.Load(os.Args[1])
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	// Host-specific overrides without editing the device table.
	if port := os.Getenv("SAIL_PORT"); port != "" {
		cfg.Serial.Port = port
	}
	if broker := os.Getenv("SAIL_MQTT_BROKER"); broker != "" {
		cfg.Export.Broker = broker
	}

	if err := config.Validate(cfg); err != nil {
		log.Fatalf("config validation failed: %v", err)
	}
	config.Normalize(cfg)

	// --------------------
	// Device registry
	// --------------------

	reg := registry.New()
	for _, d := range cfg.Devices {
		dev := registry.Device{
			ID:           sail.DeviceID(d.ID),
			Address:      d.Address,
			BatteryCount: d.Batteries,
			Channels: sail.SupplyChannels{
				Voltage: d.Channels.Voltage,
				Current: d.Channels.Current,
				Load:    d.Channels.Load,
			},
			Calibration: sail.Calibration{
				VoltageGain:   d.Calibration.VoltageGain,
				VoltageOffset: d.Calibration.VoltageOffset,
				CurrentGain:   d.Calibration.CurrentGain,
				CurrentOffset: d.Calibration.CurrentOffset,
				MaxVoltage:    d.Calibration.MaxVoltage,
				MaxCurrent:    d.Calibration.MaxCurrent,
			},
		}
		if d.Capability == "power-supply" {
			dev.Capability = sail.CapPowerSupply
		}
		if err := reg.Register(dev); err != nil {
			log.Fatalf("registry: %v", err)
		}
	}
	log.Printf("session %s: %d devices registered", reg.Log().SessionID(), len(cfg.Devices))

	// --------------------
	// Bus + access queue
	// --------------------

	bus, err := transport.Connect(transport.Config{
		Port:   cfg.Serial.Port,
		Baud:   cfg.Serial.Baud,
		Settle: time.Duration(cfg.Serial.SettleMs) * time.Millisecond,
	})
	if err != nil {
		log.Fatalf("bus connect failed: %v", err)
	}
	defer func() {
		if err := bus.Disconnect(); err != nil {
			log.Printf("bus disconnect: %v", err)
		}
	}()
	log.Printf("connected to %s at %d baud", cfg.Serial.Port, cfg.Serial.Baud)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queue := transport.NewQueue(bus)
	go queue.Run(ctx)

	// --------------------
	// Poller + dispatcher
	// --------------------

	questions := make([]sail.Question, 0, len(cfg.Poll.Questions))
	for _, q := range cfg.Poll.Questions {
		questions = append(questions, sail.Question(q))
	}
	timeout := time.Duration(cfg.Poll.TimeoutMs) * time.Millisecond

	p, err := poller.New(reg, queue, poller.Config{
		Questions: questions,
		Timeout:   timeout,
	}, log.New(os.Stdout, "[poller] ", log.LstdFlags))
	if err != nil {
		log.Fatalf("poller build failed: %v", err)
	}

	disp := dispatch.New(reg, queue, p, timeout, log.New(os.Stdout, "[dispatch] ", log.LstdFlags))

	// --------------------
	// Telemetry export (opt-in)
	// --------------------

	if cfg.Export.Broker != "" {
		pub, err := export.New(cfg.Export, log.New(os.Stdout, "[export] ", log.LstdFlags))
		if err != nil {
			log.Fatalf("export connect failed: %v", err)
		}
		defer pub.Close()
		reg.Subscribe(pub.Publish)
		log.Printf("exporting snapshots to %s:%d under %s", cfg.Export.Broker, cfg.Export.Port, cfg.Export.TopicPrefix)
	}

	// --------------------
	// Push configured scan times to the packs, then poll
	// --------------------

	for _, d := range cfg.Devices {
		if d.Capability != "battery-pack" || d.ScanSeconds <= 0 {
			continue
		}
		if err := disp.SetScanTime(ctx, sail.DeviceID(d.ID), d.ScanSeconds); err != nil {
			log.Printf("scan time for %s failed: %v", d.ID, err)
		}
	}

	p.Run(ctx)
	log.Print("shutting down")
}
