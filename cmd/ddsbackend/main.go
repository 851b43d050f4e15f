package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/openfsae/dds-backend/internal/canbus"
	"github.com/openfsae/dds-backend/internal/config"
	"github.com/openfsae/dds-backend/internal/ddsio"
	"github.com/openfsae/dds-backend/internal/device"
	"github.com/openfsae/dds-backend/internal/gps"
	"github.com/openfsae/dds-backend/internal/i2c"
	"github.com/openfsae/dds-backend/internal/monitor"
	"github.com/openfsae/dds-backend/internal/pcc"
	"github.com/openfsae/dds-backend/internal/server"
	"github.com/openfsae/dds-backend/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "/etc/dds-backend/config.yaml", "Path to config file")
	demo := flag.Bool("demo", false, "Run with simulated sensor data")
	listenAddr := flag.String("listen", "", "Override listen address (e.g. :8080)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[main] %v", err)
	}
	if *demo {
		cfg.Demo = true
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}

	tlog, err := telemetry.New(cfg.Logging)
	if err != nil {
		log.Fatalf("[main] %v", err)
	}
	defer tlog.Close()
	tlog.Infof("main", "dds-backend starting")

	rules, err := loadRules(cfg.RulesPath, tlog)
	if err != nil {
		log.Fatalf("[main] %v", err)
	}
	mon := monitor.New(tlog, rules)

	io := ddsio.New(tlog, mon, cfg.Demo)
	if !cfg.Demo {
		if err := registerInterfaces(cfg, tlog, io); err != nil {
			log.Fatalf("[main] %v", err)
		}
	}

	// Create context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		tlog.Infof("main", "received %v, shutting down", sig)
		cancel()
	}()

	io.Initialize()
	defer io.Shutdown()

	if cfg.PCC.Enabled {
		client := pcc.New(tlog, cfg.PCC, io.GetDeviceData)
		client.Start()
		defer client.Stop()
	}

	srv := server.New(cfg.Server, io, tlog)
	if err := srv.Run(ctx); err != nil {
		tlog.Errorf("main", "server exited: %v", err)
	}
}

// loadRules reads the parameter limit table. A missing file only disables
// validation; a malformed file is fatal.
func loadRules(path string, tlog *telemetry.Logger) (map[string]*monitor.Rule, error) {
	if _, err := os.Stat(path); err != nil {
		tlog.Warnf("main", "no limit table at %s, validation disabled", path)
		return nil, nil
	}
	return monitor.LoadRules(path)
}

// registerInterfaces builds and registers every enabled hardware interface.
func registerInterfaces(cfg *config.Config, tlog *telemetry.Logger, io *ddsio.IO) error {
	if cfg.CAN.Enabled {
		db := canbus.NewDatabase()
		for _, path := range cfg.CAN.Databases {
			if err := db.LoadFile(path); err != nil {
				return err
			}
		}
		ch := canbus.NewSocketCANChannel(cfg.CAN.Channel)
		if err := io.Register(canbus.NewInterface(tlog, cfg.CAN, ch, db)); err != nil {
			return err
		}
	}

	if cfg.I2C.Enabled {
		bus, err := i2c.Open(cfg.I2C.BusPath)
		if err != nil {
			return err
		}

		var devices []device.Device
		if cfg.I2C.ADC.Enabled {
			channels, err := cfg.I2C.ADC.BuildChannels()
			if err != nil {
				return err
			}
			reader := i2c.NewADS1015(bus, cfg.I2C.ADC.Address, len(channels))
			devices = append(devices, device.NewADC(cfg.I2C.ADC.Name, tlog, reader, channels))
		}
		if cfg.I2C.Accelerometer.Enabled {
			acc := cfg.I2C.Accelerometer
			reader, err := i2c.NewADXL343(bus, acc.Address, acc.GRange, acc.SampleRate)
			if err != nil {
				return err
			}
			devices = append(devices, device.NewAccelerometer(acc.Name, tlog, reader))
		}
		if err := io.Register(i2c.NewInterface("i2c", tlog, bus, devices)); err != nil {
			return err
		}
	}

	if cfg.GPS.Enabled {
		receiver := gps.NewNMEAReceiver(cfg.GPS.PortPath, cfg.GPS.BaudRate)
		if err := io.Register(gps.NewInterface(cfg.GPS.Name, tlog, receiver)); err != nil {
			return err
		}
	}
	return nil
}
