//
// Copyright (C) 2023 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

// Package ex10sim is a software stand-in for the reader chip and its
// transport. It implements the device collaborator interfaces, fabricates
// TagRead and InventoryRoundSummary event traffic for a configurable tag
// population, and delivers it through a Dispatcher the way the hardware
// interrupt monitor would. It exists so the demo binary and integration-style
// tests run without hardware.
package ex10sim

import (
	"context"
	"sync"

	"github.com/edgexfoundry/go-mod-core-contracts/v2/clients/logger"
	"github.com/pkg/errors"

	"github.impcloud.net/RSP-Inventory-Suite/ex10-reader-sdk/internal/ex10"
	"github.impcloud.net/RSP-Inventory-Suite/ex10-reader-sdk/internal/regulatory"
)

const (
	// roundDurationUs is how much simulated device time one round consumes.
	roundDurationUs = 50000
	// tempAdcReading is the fixed fake ADC temperature.
	tempAdcReading = 450
)

// simTag is one simulated tag: its EPC and its per-session inventoried flag.
type simTag struct {
	epc  []byte
	flag uint8
}

// Simulator implements every collaborator in ex10.Device plus the interrupt
// delivery side. Attach it to a Reader via Device and SetDispatcher, then
// Run its delivery loop.
type Simulator struct {
	lc     logger.LoggingClient
	region *regulatory.ActiveRegion

	mu         sync.Mutex
	dispatcher *ex10.Dispatcher
	alloc      func() (*ex10.FifoBuffer, error)

	timeUs    uint32
	cwOn      bool
	opRunning bool
	rfMode    ex10.RfMode

	adcStored      uint16
	preRampAntenna uint8
	postRampPower  int16
	postRampKHz    uint32

	tags []simTag

	// failNextSelect, when set, makes the next RunInventory fail with the
	// TX-ramped-down-during-select race error and clears the flag.
	failNextSelect bool

	jobs chan func()
}

// New builds a simulator over the given regulatory tracker with the given
// tag population (one entry per EPC).
func New(lc logger.LoggingClient, region *regulatory.ActiveRegion, epcs [][]byte) *Simulator {
	s := &Simulator{
		lc:     lc,
		region: region,
		jobs:   make(chan func(), 16),
	}
	for _, epc := range epcs {
		s.tags = append(s.tags, simTag{epc: epc, flag: ex10.TargetA})
	}
	return s
}

// SetDispatcher registers the event delivery target and the buffer allocator,
// normally Reader.AllocateFifoBuffer.
func (s *Simulator) SetDispatcher(d *ex10.Dispatcher, alloc func() (*ex10.FifoBuffer, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispatcher = d
	s.alloc = alloc
}

// Device returns the collaborator bundle backed by this simulator.
func (s *Simulator) Device() ex10.Device {
	return ex10.Device{
		Protocol:  s,
		Ops:       s,
		RfPower:   s,
		Inventory: s,
		Region:    s.region,
		Ramp:      s,
		Board:     s,
	}
}

// Run executes the delivery loop until ctx is canceled. Round results and
// injected FIFO events reach the handler from this goroutine, never from the
// caller of RunInventory, matching the hardware's interrupt monitor context.
func (s *Simulator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case job := <-s.jobs:
			job()
		}
	}
}

// FailNextSelect arms a one-shot TX-state race failure on the next round.
func (s *Simulator) FailNextSelect() {
	s.mu.Lock()
	s.failNextSelect = true
	s.mu.Unlock()
}

// IsOpCurrentlyRunning implements ex10.Protocol.
func (s *Simulator) IsOpCurrentlyRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opRunning
}

// InsertFifoEvent implements ex10.Protocol: the packet is framed into a
// fresh buffer and echoed back through the dispatcher asynchronously, like
// the chip appending it to its event FIFO.
func (s *Simulator) InsertFifoEvent(triggerIrq bool, packet *ex10.Packet) error {
	if packet == nil {
		return nil
	}

	s.mu.Lock()
	d, alloc := s.dispatcher, s.alloc
	s.mu.Unlock()
	if d == nil || alloc == nil {
		return errors.New("simulator has no dispatcher attached")
	}

	buf, err := alloc()
	if err != nil {
		return err
	}
	if err := buf.AppendPacket(packet); err != nil {
		return err
	}

	s.jobs <- func() {
		if triggerIrq {
			d.DispatchInterrupt(ex10.InterruptStatus{EventFifoAboveThresh: true})
		}
		d.DispatchFifoData(buf)
	}
	return nil
}

// ReadRxGainControl implements ex10.Protocol with fixed plausible gains.
func (s *Simulator) ReadRxGainControl() (ex10.RxGainControl, error) {
	return ex10.RxGainControl{RxAtten: 3, Pga1Gain: 2, Pga2Gain: 2, Pga3Gain: 2, MixerGain: 1}, nil
}

// WaitOpCompletion implements ex10.Ops; simulated ops finish instantly.
func (s *Simulator) WaitOpCompletion() error { return nil }

// GetDeviceTime implements ex10.Ops. The counter wraps at 32 bits like the
// device's.
func (s *Simulator) GetDeviceTime() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeUs
}

// SetRfMode implements ex10.RfPower.
func (s *Simulator) SetRfMode(mode ex10.RfMode) error {
	s.mu.Lock()
	s.rfMode = mode
	s.mu.Unlock()
	return nil
}

// GetCwIsOn implements ex10.RfPower.
func (s *Simulator) GetCwIsOn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cwOn
}

// MeasureAndReadAdcTemperature implements ex10.RfPower.
func (s *Simulator) MeasureAndReadAdcTemperature() (uint16, error) {
	return tempAdcReading, nil
}

// BuildCwConfigs implements ex10.RfPower, folding in the regulatory timers
// for the upcoming channel.
func (s *Simulator) BuildCwConfigs(antenna uint8, mode ex10.RfMode, txPowerCdbm int16,
	temperatureAdc uint16, tempCompEnabled bool) (*ex10.CwConfig, error) {
	return &ex10.CwConfig{
		Antenna:         antenna,
		RfMode:          mode,
		TxPowerCdbm:     txPowerCdbm,
		TemperatureAdc:  temperatureAdc,
		TempCompEnabled: tempCompEnabled,
		Timer:           s.region.TimersForNextRamp(),
	}, nil
}

// GetDroopCompensationDefaults implements ex10.RfPower.
func (s *Simulator) GetDroopCompensationDefaults() ex10.PowerDroopCompensation {
	return ex10.PowerDroopCompensation{Enable: true, IntervalMs: 25, CompensationCdB: 6}
}

// CwOn implements ex10.RfPower. Ramping up after an off period decays every
// session-0 inventoried flag back to A, like real tags losing persistence.
func (s *Simulator) CwOn(cfg *ex10.CwConfig, droop *ex10.PowerDroopCompensation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cwOn {
		for i := range s.tags {
			s.tags[i].flag = ex10.TargetA
		}
	}
	s.cwOn = true
	return nil
}

// StopOpAndRampDown implements ex10.RfPower.
func (s *Simulator) StopOpAndRampDown() error {
	s.mu.Lock()
	s.cwOn = false
	s.opRunning = false
	s.mu.Unlock()
	return nil
}

// StoreAdcTemperature implements ex10.RampModuleManager.
func (s *Simulator) StoreAdcTemperature(adc uint16) {
	s.mu.Lock()
	s.adcStored = adc
	s.mu.Unlock()
}

// RetrieveAdcTemperature implements ex10.RampModuleManager.
func (s *Simulator) RetrieveAdcTemperature() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adcStored
}

// StorePreRampVariables implements ex10.RampModuleManager.
func (s *Simulator) StorePreRampVariables(antenna uint8) {
	s.mu.Lock()
	s.preRampAntenna = antenna
	s.mu.Unlock()
}

// StorePostRampVariables implements ex10.RampModuleManager.
func (s *Simulator) StorePostRampVariables(txPowerCdbm int16, frequencyKHz uint32) {
	s.mu.Lock()
	s.postRampPower = txPowerCdbm
	s.postRampKHz = frequencyKHz
	s.mu.Unlock()
}

// TemperatureCompensationEnabled implements ex10.BoardSpec: readings at or
// above 1000 counts are off-scale and disable compensation.
func (s *Simulator) TemperatureCompensationEnabled(adc uint16) bool {
	return adc < 1000
}

// RunInventory implements ex10.InventoryOps. The round itself executes on
// the delivery goroutine: responding tags flip their inventoried flag and
// produce TagRead packets, then the round summary closes the buffer.
func (s *Simulator) RunInventory(control *ex10.InventoryRoundControl,
	control2 *ex10.InventoryRoundControl2, sendSelects bool) error {

	s.mu.Lock()
	if !s.cwOn {
		s.mu.Unlock()
		return ex10.NewOpError(ex10.ModuleOps, ex10.OpStartInventoryRnd, ex10.OpErrorInvalidTxState)
	}
	if s.failNextSelect {
		s.failNextSelect = false
		s.cwOn = false
		s.mu.Unlock()
		return ex10.NewOpError(ex10.ModuleOps, ex10.OpSendSelect, ex10.OpErrorInvalidTxState)
	}
	s.opRunning = true
	target := control.Target
	finalQ := control.InitialQ

	d, alloc := s.dispatcher, s.alloc
	s.mu.Unlock()

	if d == nil || alloc == nil {
		return errors.New("simulator has no dispatcher attached")
	}

	s.jobs <- func() { s.completeRound(d, alloc, target, finalQ) }
	return nil
}

// completeRound fabricates one round's event traffic and hands it to the
// dispatcher.
func (s *Simulator) completeRound(d *ex10.Dispatcher,
	alloc func() (*ex10.FifoBuffer, error), target uint8, finalQ uint8) {

	buf, err := alloc()
	if err != nil {
		s.lc.Warn("No free event buffer; dropping simulated round.", "cause", err.Error())
		s.mu.Lock()
		s.opRunning = false
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	for i := range s.tags {
		if s.tags[i].flag != target {
			continue
		}
		s.tags[i].flag ^= 1
		s.timeUs += roundDurationUs / 8

		pkt := ex10.NewTagReadPacket(s.timeUs, ex10.TagReadData{RSSI: 620}, s.tags[i].epc)
		if err := buf.AppendPacket(&pkt); err != nil {
			s.lc.Warn("Simulated round overflowed its buffer.", "cause", err.Error())
			break
		}
	}

	s.timeUs += roundDurationUs
	summary := ex10.NewInventoryRoundSummaryPacket(s.timeUs, ex10.InventoryRoundSummaryData{
		DurationUs: roundDurationUs,
		FinalQ:     finalQ,
		Reason:     ex10.SummaryDone,
	})
	if err := buf.AppendPacket(&summary); err != nil {
		s.lc.Error("Simulated round summary did not fit its buffer.", "cause", err.Error())
	}
	s.opRunning = false
	s.mu.Unlock()

	d.DispatchInterrupt(ex10.InterruptStatus{InventoryRoundDone: true})
	d.DispatchFifoData(buf)
}
