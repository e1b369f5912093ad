//
// Copyright (C) 2023 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

// Package ex10 is the host-side control core for the Ex10 RFID reader chip
// family. It drives inventory rounds, decodes the chip's binary event FIFO
// stream into typed packets, and runs the continuous inventory state machine
// that keeps rounds going until a stop condition is met.
//
// Two execution contexts touch a Reader: the interrupt monitor context
// (HandleInterrupt/HandleFifoData, invoked by the transport layer whenever
// the chip raises IRQ_N) and the client context (everything else). The state
// machine runs entirely inside the interrupt monitor context so the next
// round starts with minimal latency; client calls only queue work for it or
// poll the event queue.
package ex10

import (
	"math"
	"sync"

	"github.com/edgexfoundry/go-mod-core-contracts/v2/clients/logger"
	"github.com/pkg/errors"

	"github.impcloud.net/RSP-Inventory-Suite/ex10-reader-sdk/internal/regulatory"
)

// StopConditions bounds a continuous inventory run. A zero value means
// unbounded on that axis; at least one must be non-zero.
type StopConditions struct {
	MaxNumberOfRounds uint32
	MaxNumberOfTags   uint32
	MaxDurationUs     uint32
}

// InventoryParams is the client-supplied configuration for a continuous
// inventory run. It is copied at ContinuousInventory time and never written
// by the client afterward.
type InventoryParams struct {
	Antenna        uint8
	RfMode         RfMode
	TxPowerCdbm    int16
	Config         InventoryRoundControl
	Config2        InventoryRoundControl2
	SendSelects    bool
	StopConditions StopConditions
	DualTarget     bool
	RemainOn       bool
}

type inventoryState int

const (
	invIdle inventoryState = iota
	invOngoing
	invStopRequested
)

func (s inventoryState) String() string {
	switch s {
	case invIdle:
		return "Idle"
	case invOngoing:
		return "Ongoing"
	case invStopRequested:
		return "StopRequested"
	}
	return "Unknown"
}

// continuousInventoryState is the engine's bookkeeping. Only the interrupt
// monitor context mutates it while a run is ongoing; the client entry points
// touch it only to start a run or request a stop.
type continuousInventoryState struct {
	state      inventoryState
	doneReason InventorySummaryReason

	// initialConfig is the snapshot taken at ContinuousInventory time, used
	// to reset Q when the target flips.
	initialConfig        InventoryRoundControl
	previousQ            uint8
	minQCount            uint8
	queriesSinceValidEpc uint8

	stopReason StopReason
	roundCount uint32
	tagCount   uint32
	target     uint8
}

// ContinuousInventorySnapshot is a read-only copy of the engine state for
// diagnostics.
type ContinuousInventorySnapshot struct {
	State      string
	StopReason StopReason
	RoundCount uint32
	TagCount   uint32
	Target     uint8
}

// Reader is the continuous inventory engine for one device handle. Create it
// with NewReader, register it (via a Dispatcher) as the transport's event
// handler, and drive it from the client with ContinuousInventory /
// StopTransmitting / PacketPeek.
type Reader struct {
	lc    logger.LoggingClient
	dev   Device
	queue *EventQueue

	// mu serializes the interrupt monitor context against the client entry
	// points. It is held across a whole HandleFifoData pass, including any
	// next-round start, preserving the single-writer model of the C SDK.
	mu          sync.Mutex
	params      InventoryParams
	startTimeUs uint32
	state       continuousInventoryState

	// storedAnalogRx caches the RX gain register read back after ramp-up,
	// for later RSSI compensation.
	storedAnalogRx RxGainControl
}

// NewReader builds a Reader over the given collaborators with a default
// event FIFO buffer pool.
func NewReader(lc logger.LoggingClient, dev Device) *Reader {
	return &Reader{
		lc:    lc,
		dev:   dev,
		queue: NewEventQueue(lc, DefaultBufferCount, DefaultBufferSize),
	}
}

// AllocateFifoBuffer hands the transport a free buffer to drain FIFO bytes
// into. Ownership passes back via HandleFifoData.
func (r *Reader) AllocateFifoBuffer() (*FifoBuffer, error) {
	return r.queue.Allocate()
}

// PacketPeek returns the next undelivered event packet without removing it,
// or nil when none is pending. Non-blocking.
func (r *Reader) PacketPeek() *Packet { return r.queue.Peek() }

// PacketRemove advances past the packet returned by the last PacketPeek.
func (r *Reader) PacketRemove() { r.queue.Remove() }

// PacketsAvailable reports whether PacketPeek would return a packet.
func (r *Reader) PacketsAvailable() bool { return r.queue.PacketsAvailable() }

// DroppedBuffers reports how many event buffers were discarded because of
// malformed packets.
func (r *Reader) DroppedBuffers() uint64 { return r.queue.DroppedBuffers() }

// InsertFifoEvent injects a host-built packet into the device's event FIFO
// stream, or with a nil packet just requests a FIFO interrupt. Injected
// packets come back through the normal FIFO path with framing identical to
// firmware-originated packets.
func (r *Reader) InsertFifoEvent(triggerIrq bool, packet *Packet) error {
	return r.dev.Protocol.InsertFifoEvent(triggerIrq, packet)
}

// StoredAnalogRxFields returns the analog RX gain settings cached at the
// last ramp-up.
func (r *Reader) StoredAnalogRxFields() RxGainControl {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.storedAnalogRx
}

// ContinuousInventoryState returns a diagnostic snapshot of the engine.
func (r *Reader) ContinuousInventoryState() ContinuousInventorySnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ContinuousInventorySnapshot{
		State:      r.state.state.String(),
		StopReason: r.state.stopReason,
		RoundCount: r.state.roundCount,
		TagCount:   r.state.tagCount,
		Target:     r.state.target,
	}
}

// ContinuousInventory starts a continuous inventory run: inventory rounds
// are restarted from the interrupt monitor context until a stop condition is
// met, then a ContinuousInventorySummary packet is published. Any previous
// run's state is discarded.
func (r *Reader) ContinuousInventory(p InventoryParams) error {
	if p.StopConditions == (StopConditions{}) {
		return errors.Wrap(newSDKError(ModuleReader, SdkInventoryInvalidParam),
			"at least one stop condition must be non-zero")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.state = continuousInventoryState{
		state:         invOngoing,
		doneReason:    SummaryNone,
		initialConfig: p.Config,
		target:        p.Config.Target,
	}
	r.params = p
	r.startTimeUs = r.dev.Ops.GetDeviceTime()

	r.lc.Debug("Continuous inventory starting.",
		"antenna", p.Antenna, "rfMode", p.RfMode, "txPowerCdbm", p.TxPowerCdbm,
		"dualTarget", p.DualTarget,
		"maxRounds", p.StopConditions.MaxNumberOfRounds,
		"maxTags", p.StopConditions.MaxNumberOfTags,
		"maxDurationUs", p.StopConditions.MaxDurationUs)

	cfg, cfg2 := p.Config, p.Config2
	if err := r.startInventoryLocked(p.Antenna, p.RfMode, p.TxPowerCdbm,
		&cfg, &cfg2, p.SendSelects, p.RemainOn); err != nil {
		r.state.state = invIdle
		return err
	}
	return nil
}

// Inventory runs a single inventory round with the same driver continuous
// inventory uses. The round's completion arrives as an
// InventoryRoundSummary packet.
func (r *Reader) Inventory(antenna uint8, mode RfMode, txPowerCdbm int16,
	cfg *InventoryRoundControl, cfg2 *InventoryRoundControl2, sendSelects, remainOn bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startInventoryLocked(antenna, mode, txPowerCdbm, cfg, cfg2, sendSelects, remainOn)
}

// StopTransmitting requests a stop. If a continuous inventory run is
// ongoing, its next round summary is treated as the host-requested stop; on
// an idle reader only the ramp-down happens.
func (r *Reader) StopTransmitting() error {
	r.mu.Lock()
	if r.state.state != invIdle {
		r.state.state = invStopRequested
	}
	r.mu.Unlock()

	return r.dev.RfPower.StopOpAndRampDown()
}

// HandleInterrupt is invoked from the interrupt monitor context for every
// device interrupt. Returning true tells the monitor to drain the event
// FIFO.
func (r *Reader) HandleInterrupt(status InterruptStatus) bool {
	if status.EventFifoFull {
		r.lc.Warn("Device event FIFO reported full; packets may have been lost.")
	}
	return true
}

// HandleFifoData processes one drained FIFO buffer inside the interrupt
// monitor context: it feeds the continuous inventory state machine, starts
// the next round when warranted, and then publishes the buffer for the
// client. Buffer ownership transfers to the queue.
func (r *Reader) HandleFifoData(buf *FifoBuffer) {
	r.mu.Lock()

	span := buf.Bytes()
	for len(span) > 0 {
		p, err := ParseNext(&span)
		if err != nil {
			// Invalid packets cannot be processed and would only confuse
			// the state machine. Stop processing this buffer; do not guess.
			r.lc.Error("Invalid packet in event FIFO data; discarding remainder of buffer.",
				"cause", err.Error(), "remainingBytes", len(span))
			break
		}

		if r.state.state == invIdle {
			continue
		}

		switch p.Type {
		case PacketTagRead:
			r.state.tagCount++
		case PacketInventoryRoundSum:
			r.handleRoundSummaryLocked(&p)
		}
	}

	r.mu.Unlock()

	// The buffer is published after the state machine has run, so the
	// client never observes a round summary before its consequences.
	r.queue.Publish(buf, false)
}

// handleRoundSummaryLocked is the engine's core decision point, run once per
// InventoryRoundSummary packet.
func (r *Reader) handleRoundSummaryLocked(p *Packet) {
	rs := p.InventoryRoundSummary()

	r.state.minQCount = rs.MinQCount
	r.state.queriesSinceValidEpc = rs.QueriesSinceValidEPC
	r.state.doneReason = rs.Reason

	var fatal error
	switch rs.Reason {
	case SummaryDone, SummaryHost:
		// Only a round the LMAC finished, or one the host ended, counts as
		// complete. Other reasons may still continue the run.
		r.state.roundCount++
	case SummaryRegulatory:
		// Remember where the Q search left off so the next round resumes
		// rather than restarting it.
		r.state.previousQ = rs.FinalQ
	case SummaryUnsupported, SummaryTxNotRampedUp:
		// Informational; continue.
	case SummaryEventFifoFull:
		fatal = newSDKError(ModuleReader, SdkEventFifoFull)
	case SummaryInvalidParam:
		fatal = newSDKError(ModuleReader, SdkInventoryInvalidParam)
	case SummaryLmacOverload:
		fatal = newSDKError(ModuleReader, SdkLmacOverload)
	default:
		fatal = newSDKError(ModuleReader, SdkInventorySummaryReasonInvalid)
	}

	if fatal != nil {
		r.handleContinuousInventoryErrorLocked(fatal, p)
		return
	}

	if r.checkStopConditionsLocked(p.UsCounter) {
		r.state.state = invIdle
		r.lc.Debug("Continuous inventory stopped.",
			"reason", r.state.stopReason.String(),
			"rounds", r.state.roundCount, "tags", r.state.tagCount)
		r.pushContinuousInventorySummaryLocked(p.UsCounter, nil)
		return
	}

	if err := r.continueContinuousInventoryLocked(); err != nil {
		r.handleContinuousInventoryErrorLocked(err, p)
	}
}

// checkStopConditionsLocked evaluates the stop conditions first-match-wins.
// The stop reason latches: once set it is never overwritten.
func (r *Reader) checkStopConditionsLocked(timestampUs uint32) bool {
	if r.state.stopReason != SRNone {
		return true
	}

	sc := r.params.StopConditions
	if sc.MaxNumberOfRounds > 0 && r.state.roundCount >= sc.MaxNumberOfRounds {
		r.state.stopReason = SRMaxNumberOfRounds
		return true
	}
	if sc.MaxNumberOfTags > 0 && r.state.tagCount >= sc.MaxNumberOfTags {
		r.state.stopReason = SRMaxNumberOfTags
		return true
	}
	if sc.MaxDurationUs > 0 {
		// The device timestamp wraps at 32 bits; a current value below the
		// start time means the counter rolled over since the run began.
		var elapsedUs uint32
		if timestampUs < r.startTimeUs {
			elapsedUs = (math.MaxUint32 - r.startTimeUs) + timestampUs + 1
		} else {
			elapsedUs = timestampUs - r.startTimeUs
		}
		if elapsedUs >= sc.MaxDurationUs {
			r.state.stopReason = SRMaxDuration
			return true
		}
	}
	if r.state.state == invStopRequested {
		r.state.stopReason = SRHost
		return true
	}
	return false
}

// continueContinuousInventoryLocked computes the next round's target and Q
// state, then starts the round.
func (r *Reader) continueContinuousInventoryLocked() error {
	resetQ := false
	if r.params.DualTarget {
		// Flip target when the round completed; not for regulatory ends or
		// errors.
		if r.state.doneReason == SummaryDone {
			r.state.target ^= 1
			resetQ = true
		}

		// With CW off and session 0 the tags' inventoried flags have decayed
		// to A, so searching B would find nothing. Force the target back.
		// This check deliberately runs after the flip above.
		if !r.dev.RfPower.GetCwIsOn() && r.params.Config.Session == 0 {
			resetQ = true
			r.state.target = TargetA
		}
	} else if r.state.doneReason == SummaryDone {
		resetQ = true
	}

	cfg := r.params.Config
	cfg.Target = r.state.target
	cfg2 := r.params.Config2

	if resetQ {
		cfg.InitialQ = r.state.initialConfig.InitialQ
		cfg2.StartingMinQCount = 0
		cfg2.StartingMaxQueriesSinceValidEpcCount = 0
	} else if r.state.doneReason == SummaryRegulatory {
		// Preserve Q and the LMAC query counters across the channel hop.
		cfg.InitialQ = r.state.previousQ
		cfg2.StartingMinQCount = r.state.minQCount
		cfg2.StartingMaxQueriesSinceValidEpcCount = r.state.queriesSinceValidEpc
	}

	return r.startInventoryLocked(r.params.Antenna, r.params.RfMode, r.params.TxPowerCdbm,
		&cfg, &cfg2, r.params.SendSelects, r.params.RemainOn)
}

// handleContinuousInventoryErrorLocked stops the run on a fatal error: an
// Ex10Result packet with the full failure details is queued, followed by the
// error-tagged summary.
func (r *Reader) handleContinuousInventoryErrorLocked(cause error, p *Packet) {
	resultPkt := NewEx10ResultPacket(p.UsCounter, cause)
	if err := r.queue.PublishPacket(&resultPkt, false); err != nil {
		r.lc.Error("Failed to queue Ex10Result packet.", "cause", err.Error())
	}

	r.state.state = invIdle
	r.state.stopReason = stopReasonForError(cause)

	r.lc.Error("Continuous inventory stopped on error.",
		"cause", cause.Error(), "stopReason", r.state.stopReason.String())

	r.pushContinuousInventorySummaryLocked(p.UsCounter, cause)
}

// pushContinuousInventorySummaryLocked synthesizes the run's summary packet
// and injects it into the event stream with the interrupt-trigger hint set,
// so the client sees it like any other event.
func (r *Reader) pushContinuousInventorySummaryLocked(timestampUs uint32, cause error) {
	d := ContinuousInventorySummaryData{
		DurationUs:              timestampUs - r.startTimeUs,
		NumberOfInventoryRounds: r.state.roundCount,
		NumberOfTags:            r.state.tagCount,
		Reason:                  r.state.stopReason,
	}
	if cause != nil {
		d.LastOpID, d.LastOpError = lastOpDetails(cause)
	}

	pkt := NewContinuousInventorySummaryPacket(timestampUs, d)
	if err := r.dev.Protocol.InsertFifoEvent(true, &pkt); err != nil {
		r.lc.Error("Failed to publish continuous inventory summary.", "cause", err.Error())
	}
}

// startInventoryLocked issues one inventory round: RF mode, ramp-up if CW is
// off, then the round operation itself, with a single retry for the
// ramp-down race during select.
func (r *Reader) startInventoryLocked(antenna uint8, mode RfMode, txPowerCdbm int16,
	cfg *InventoryRoundControl, cfg2 *InventoryRoundControl2, sendSelects, remainOn bool) error {

	// Guard against an accidental double start: if an op is already in
	// flight, the round is already running.
	if r.dev.Protocol.IsOpCurrentlyRunning() {
		return nil
	}

	// continueContinuousInventoryLocked derives the next target from here.
	r.state.target = cfg.Target

	// Cache antenna and mode for RSSI compensation; for continuous
	// inventory these always match the stored params.
	r.params.Antenna = antenna
	r.params.RfMode = mode

	droop := r.dev.RfPower.GetDroopCompensationDefaults()

	if err := r.dev.RfPower.SetRfMode(mode); err != nil {
		return err
	}

	if !r.dev.RfPower.GetCwIsOn() {
		if err := r.rampForInventoryLocked(antenna, mode, txPowerCdbm, remainOn, &droop); err != nil {
			return err
		}
	}

	err := r.dev.Inventory.RunInventory(cfg, cfg2, sendSelects)

	// The device can ramp itself down between our CW check and the select
	// that precedes the round. Ramp up and retry exactly once; any other
	// error, or a second failure, propagates unmodified.
	if err != nil && isSelectTxRaceError(err) {
		r.lc.Debug("TX ramped down during select; ramping up and retrying the round once.")
		if rampErr := r.rampForInventoryLocked(antenna, mode, txPowerCdbm, remainOn, &droop); rampErr != nil {
			return rampErr
		}
		err = r.dev.Inventory.RunInventory(cfg, cfg2, sendSelects)
	}
	return err
}

// rampForInventoryLocked ramps the transmitter up for an inventory round and
// caches the analog RX gain settings read back afterward.
func (r *Reader) rampForInventoryLocked(antenna uint8, mode RfMode, txPowerCdbm int16,
	remainOn bool, droop *PowerDroopCompensation) error {

	// Update channel time tracking before the ramp so the regulatory timers
	// reflect time already spent on this channel.
	if err := r.dev.Region.UpdateChannelTimeTracking(); err != nil {
		return err
	}

	cw, err := r.buildCwConfigLocked(antenna, mode, txPowerCdbm, 0, remainOn)
	if err != nil {
		return err
	}

	r.dev.Ramp.StorePreRampVariables(antenna)
	r.dev.Ramp.StorePostRampVariables(txPowerCdbm, r.dev.Region.GetNextChannelKHz())

	if err := r.dev.RfPower.CwOn(cw, droop); err != nil {
		return err
	}

	// All ops must be done before a select goes out.
	if err := r.dev.Ops.WaitOpCompletion(); err != nil {
		return err
	}

	rx, err := r.dev.Protocol.ReadRxGainControl()
	if err != nil {
		return err
	}
	r.storedAnalogRx = rx
	return nil
}

// buildCwConfigLocked assembles the CW ramp configuration, measuring the ADC
// temperature first unless CW is already on.
func (r *Reader) buildCwConfigLocked(antenna uint8, mode RfMode, txPowerCdbm int16,
	frequencyKHz uint32, remainOn bool) (*CwConfig, error) {

	temperatureAdc := r.dev.Ramp.RetrieveAdcTemperature()
	if !r.dev.RfPower.GetCwIsOn() {
		adc, err := r.dev.RfPower.MeasureAndReadAdcTemperature()
		if err != nil {
			return nil, err
		}
		temperatureAdc = adc
		r.dev.Ramp.StoreAdcTemperature(adc)
	}

	tempComp := r.dev.Board.TemperatureCompensationEnabled(temperatureAdc)

	if frequencyKHz != 0 {
		r.dev.Region.SetSingleFrequency(frequencyKHz)
	}

	cw, err := r.dev.RfPower.BuildCwConfigs(antenna, mode, txPowerCdbm, temperatureAdc, tempComp)
	if err != nil {
		return nil, err
	}
	if remainOn {
		cw.Timer = regulatory.Timers{}
	}
	return cw, nil
}
