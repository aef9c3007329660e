/*
Copyright (c) BlueBridge contributors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/miniwinwm/bluebridge/internal/atmodem"
	"github.com/miniwinwm/bluebridge/internal/boatdata"
	"github.com/miniwinwm/bluebridge/internal/clock"
	"github.com/miniwinwm/bluebridge/internal/collaborators"
	"github.com/miniwinwm/bluebridge/internal/filepersist"
	"github.com/miniwinwm/bluebridge/internal/metrics"
	"github.com/miniwinwm/bluebridge/internal/mqtt"
	"github.com/miniwinwm/bluebridge/internal/nmea"
	"github.com/miniwinwm/bluebridge/internal/orchestrator"
	"github.com/miniwinwm/bluebridge/internal/publisher"
	"github.com/miniwinwm/bluebridge/internal/serialport"
	"github.com/miniwinwm/bluebridge/internal/settings"
	"github.com/miniwinwm/bluebridge/internal/statusdump"
)

// chartPlotterTransmitTypes is every sentence type C5's encoders
// support, each on its own nominal period; the orchestrator's 1s tick
// is what actually turns a slot's Enabled bit on or off based on the
// snapshot's freshness, so registering a type here only reserves it a
// transmit slot.
var chartPlotterTransmitTypes = []struct {
	typ       string
	nominalMs int64
}{
	{"RMC", 1000},
	{"GGA", 1000},
	{"VTG", 1000},
	{"DPT", 1000},
	{"VHW", 1000},
	{"MTW", 2000},
	{"VLW", 5000},
	{"HDT", 1000},
	{"HDM", 1000},
	{"MWV", 1000},
	{"MWD", 2000},
	{"XDR", 2000},
	{"MDA", 2000},
}

// instrumentBusReceiveTypes is the instrument bus port's 6-slot
// receive table (nmea.maxReceiveTypes): position/time, speed over
// ground, depth, boat speed and wind, the set a single NMEA-0183
// instrument feed most commonly carries.
var instrumentBusReceiveTypes = []string{"RMC", "GGA", "VTG", "DPT", "VHW", "MWV"}

var configPath string

func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "path to a yaml config file layered over the defaults")
	RootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the gateway until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := DefaultConfig()
		if configPath != "" {
			loaded, err := ReadConfig(configPath)
			if err != nil {
				return fmt.Errorf("read config: %w", err)
			}
			cfg = loaded
		}
		if err := cfg.EvalAndValidate(); err != nil {
			return err
		}
		return runGateway(cfg)
	},
}

func runGateway(cfg *Config) error {
	logger := log.StandardLogger()
	clk := clock.System{}
	metricsReg := metrics.New()

	modemPort, err := serialport.OpenTTY(cfg.ModemDevice, cfg.ModemBaud)
	if err != nil {
		return fmt.Errorf("open modem device: %w", err)
	}
	defer modemPort.Close()

	var chartPlotterPort serialport.Port
	if cfg.ChartPlotterBluetooth {
		// The SPP acceptor/pairing stack is an out-of-scope external
		// collaborator (DESIGN.md); the fake stands in so the transmit
		// table still has somewhere real to write bytes.
		chartPlotterPort = newBTPort(&collaborators.FakeBluetoothAcceptor{})
	} else {
		chartPlotterPort, err = serialport.OpenTTY(cfg.ChartPlotterDevice, cfg.ChartPlotterBaud)
		if err != nil {
			return fmt.Errorf("open chart plotter device: %w", err)
		}
	}
	defer chartPlotterPort.Close()

	instrumentBusPort, err := serialport.OpenTTY(cfg.InstrumentBusDevice, cfg.InstrumentBusBaud)
	if err != nil {
		return fmt.Errorf("open instrument bus device: %w", err)
	}
	defer instrumentBusPort.Close()

	persist := filepersist.New(cfg.SettingsPath)
	store := settings.New(persist)
	snap := boatdata.New()
	led := &collaborators.FakeLED{}
	smsCodec := collaborators.FakeSMSCodec{}
	pressure := &collaborators.FakePressureSensor{}
	wmm := &collaborators.FakeWMMCalculator{}
	canWriter := &collaborators.FakeCANWriter{}

	var controller *publisher.Controller
	engine := atmodem.NewEngine(modemPort, clk, logger, func(id int) {
		if controller != nil {
			controller.NotifySMS(id)
		}
	})
	if err := engine.Init(nil); err != nil {
		return fmt.Errorf("modem init: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		engine.Run()
		return nil
	})
	g.Go(func() error {
		// Engine.Run blocks until Close is called; tie that to the
		// group's shared context so cancellation unblocks it instead
		// of g.Wait() deadlocking on a goroutine nothing ever stops.
		<-gctx.Done()
		engine.Close()
		return nil
	})

	metered := newMeteredEngine(engine, metricsReg)
	mqttClient := mqtt.NewClient(engine)

	controller = publisher.New(metered, mqttClient, store, snap, smsCodec, led, clk, logger)
	controller.Metrics = metricsReg
	controller.Restart = func(reason string) {
		logger.Warnf("gateway: restart requested: %s", reason)
		stop()
	}
	if err := controller.Init(); err != nil {
		return fmt.Errorf("publisher init: %w", err)
	}

	scheduler := nmea.NewScheduler(snap, clk, logger)
	scheduler.Metrics = metricsReg

	chartPlotterPS := scheduler.AddPort("chartplotter", "GP", chartPlotterPort)
	for _, t := range chartPlotterTransmitTypes {
		if err := chartPlotterPS.EnableTransmit(t.typ, t.nominalMs); err != nil {
			return fmt.Errorf("register chart plotter transmit type %s: %w", t.typ, err)
		}
	}

	instrumentBusPS := scheduler.AddPort("instrumentbus", "GP", instrumentBusPort)
	forwardToChartPlotter := func(sentence nmea.ParsedSentence) {
		chartPlotterPS.TriggerTransmit(sentence.Type)
	}
	for _, typ := range instrumentBusReceiveTypes {
		if err := instrumentBusPS.EnableReceive(typ, forwardToChartPlotter); err != nil {
			return fmt.Errorf("register instrument bus receive type %s: %w", typ, err)
		}
	}

	orch := orchestrator.New(snap, scheduler, store, pressure, canWriter, wmm, led, clk, logger)

	g.Go(func() error { controller.Run(gctx); return nil })
	g.Go(func() error { return orch.Run(gctx) })
	g.Go(func() error {
		err := scheduler.ReadLoop(gctx, instrumentBusPS)
		if gctx.Err() != nil {
			return nil
		}
		return err
	})
	g.Go(func() error { return metricsReg.Start(gctx, cfg.MonitoringPort, logger) })
	g.Go(func() error { return serveStatus(gctx, cfg.StatusPort, snap, clk, logger) })
	g.Go(func() error {
		// instrumentBusPort.Read has no deadline, so ReadLoop's own
		// ctx check between reads isn't enough to unblock it; closing
		// the port on cancellation forces the in-flight Read to return.
		<-gctx.Done()
		instrumentBusPort.Close()
		return nil
	})

	return g.Wait()
}

// serveStatus mounts the JSON status dump on its own port, separate
// from the Prometheus /metrics endpoint the monitoring port serves.
func serveStatus(ctx context.Context, port int, snap *boatdata.Snapshot, clk clock.Clock, logger *log.Logger) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", statusdump.Handler(snap, clk.NowMs))
	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("status: listening on %s", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
