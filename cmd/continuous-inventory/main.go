//
// Copyright (C) 2023 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

// continuous-inventory runs the reader stack as a small HTTP service. By
// default it drives the device simulator: continuous inventory starts
// immediately, tag reads flow into the inventory snapshot, and the API allows
// stopping and restarting runs. With the simulator disabled it instead
// monitors the chip's IRQ line as a hardware diagnostic.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edgexfoundry/go-mod-core-contracts/v2/clients/logger"

	"github.impcloud.net/RSP-Inventory-Suite/ex10-reader-sdk/internal/config"
	"github.impcloud.net/RSP-Inventory-Suite/ex10-reader-sdk/internal/ex10"
	"github.impcloud.net/RSP-Inventory-Suite/ex10-reader-sdk/internal/ex10/ex10sim"
	"github.impcloud.net/RSP-Inventory-Suite/ex10-reader-sdk/internal/ex10/gpiodriver"
	"github.impcloud.net/RSP-Inventory-Suite/ex10-reader-sdk/internal/inventory"
	"github.impcloud.net/RSP-Inventory-Suite/ex10-reader-sdk/internal/regulatory"
	"github.impcloud.net/RSP-Inventory-Suite/ex10-reader-sdk/routes"
)

const (
	serviceKey = "ex10-continuous-inventory"
	// pollInterval paces the event queue consumer when the queue is empty.
	pollInterval = 5 * time.Millisecond
)

func main() {
	configPath := flag.String("config", "", "path to a TOML configuration file")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	lc := logger.NewClient(serviceKey, cfg.Service.LogLevel)

	if err := run(lc, cfg); err != nil && err != context.Canceled {
		lc.Error("Service exited with error.", "cause", err.Error())
		os.Exit(1)
	}
}

func run(lc logger.LoggingClient, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !cfg.Hardware.UseSimulator {
		return monitorIrqLine(ctx, lc, cfg)
	}

	region, err := regulatory.Lookup(cfg.Reader.Region)
	if err != nil {
		return err
	}

	// The active region's millisecond clock is the simulated device clock.
	var sim *ex10sim.Simulator
	activeRegion, err := regulatory.NewActiveRegion(region,
		func() uint32 { return sim.GetDeviceTime() / 1000 },
		time.Now().UnixNano())
	if err != nil {
		return err
	}

	sim = ex10sim.New(lc, activeRegion, makePopulation(cfg.Hardware.TagPopulation))
	reader := ex10.NewReader(lc, sim.Device())
	dispatcher := ex10.NewDispatcher(reader)
	sim.SetDispatcher(dispatcher, reader.AllocateFifoBuffer)

	go func() {
		if err := sim.Run(ctx); err != nil && err != context.Canceled {
			lc.Error("Simulator stopped.", "cause", err.Error())
		}
	}()

	tags := inventory.NewTagProcessor(lc)
	go consumeEvents(ctx, lc, reader, tags)

	params := func() ex10.InventoryParams {
		return ex10.InventoryParams{
			Antenna:     cfg.Reader.Antenna,
			RfMode:      ex10.RfMode(cfg.Reader.RfMode),
			TxPowerCdbm: cfg.Reader.TxPowerCdbm,
			Config: ex10.InventoryRoundControl{
				InitialQ: cfg.Reader.InitialQ,
				MaxQ:     15,
				Session:  cfg.Reader.Session,
				Target:   ex10.TargetA,
			},
			SendSelects: cfg.Reader.SendSelects,
			DualTarget:  cfg.Reader.DualTarget,
			StopConditions: ex10.StopConditions{
				MaxNumberOfRounds: cfg.StopConditions.MaxNumberOfRounds,
				MaxNumberOfTags:   cfg.StopConditions.MaxNumberOfTags,
				MaxDurationUs:     cfg.StopConditions.MaxDurationUs,
			},
		}
	}

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Service.Host, cfg.Service.Port),
		Handler: routes.NewServer(lc, reader, tags, params).Router(),
	}
	go func() {
		lc.Info("HTTP API listening.", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			lc.Error("HTTP server stopped.", "cause", err.Error())
		}
	}()

	if err := reader.ContinuousInventory(params()); err != nil {
		lc.Error("Initial continuous inventory failed to start.", "cause", err.Error())
	}

	<-ctx.Done()
	lc.Info("Shutting down.")

	if err := reader.StopTransmitting(); err != nil {
		lc.Warn("Ramp-down on shutdown failed.", "cause", err.Error())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		lc.Warn("HTTP shutdown did not finish cleanly.", "cause", err.Error())
	}

	// After Unregister returns no callback is running; the queue can be
	// drained or abandoned safely.
	dispatcher.Unregister()
	return ctx.Err()
}

// consumeEvents is the client-side poll loop: it drains the reader's event
// queue, feeds tag reads to the tag processor, and logs run summaries.
func consumeEvents(ctx context.Context, lc logger.LoggingClient, reader *ex10.Reader,
	tags *inventory.TagProcessor) {

	for {
		if ctx.Err() != nil {
			return
		}

		p := reader.PacketPeek()
		if p == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollInterval):
			}
			continue
		}

		switch p.Type {
		case ex10.PacketTagRead:
			if tag, isNew := tags.ProcessTagRead(p); isNew {
				lc.Info("New tag.", "epc", tag.EPC, "rssi", tag.LastRSSI)
			}
		case ex10.PacketContinuousInvSummary:
			d := p.ContinuousInventorySummary()
			lc.Info("Continuous inventory summary.",
				"reason", d.Reason.String(),
				"rounds", d.NumberOfInventoryRounds,
				"tags", d.NumberOfTags,
				"durationUs", d.DurationUs)
		case ex10.PacketEx10Result:
			lc.Warn("Reader reported a failure.", "packet", p.String())
		default:
			lc.Debug(p.String())
		}

		reader.PacketRemove()
	}
}

// monitorIrqLine is the hardware diagnostic mode: it watches the chip's
// IRQ_N line and logs every assertion. The SPI transport that would drain
// the event FIFO plugs in behind the Protocol interface and is not part of
// this service.
func monitorIrqLine(ctx context.Context, lc logger.LoggingClient, cfg config.Config) error {
	mon, err := gpiodriver.NewMonitor(lc, cfg.Hardware.GpioChip, cfg.Hardware.IrqLine)
	if err != nil {
		return err
	}
	defer mon.Close()

	lc.Info("Monitoring IRQ line.", "chip", cfg.Hardware.GpioChip, "line", cfg.Hardware.IrqLine)
	return mon.Run(ctx, func(ts time.Time) {
		lc.Info("IRQ_N asserted.", "timestamp", ts.Format(time.RFC3339Nano))
	})
}

// makePopulation fabricates n distinct 96-bit EPCs for the simulator.
func makePopulation(n int) [][]byte {
	epcs := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		epc := []byte{0xE2, 0x80, 0x11, 0x60, 0x60, 0x00, 0x02, 0x05, 0x00, 0x00, 0x00, 0x00}
		epc[10] = byte(i >> 8)
		epc[11] = byte(i)
		epcs = append(epcs, epc)
	}
	return epcs
}
