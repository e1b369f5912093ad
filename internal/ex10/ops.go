//
// Copyright (C) 2023 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package ex10

import (
	"github.impcloud.net/RSP-Inventory-Suite/ex10-reader-sdk/internal/regulatory"
)

// RfMode selects one of the chip's modulation/backscatter link profiles.
type RfMode uint16

// Gen2 inventoried-flag targets.
const (
	TargetA uint8 = 0
	TargetB uint8 = 1
)

// InventoryRoundControl is the register image controlling one inventory
// round's anti-collision search.
type InventoryRoundControl struct {
	InitialQ          uint8
	MaxQ              uint8
	MinQ              uint8
	NumMinQCycles     uint8
	FixedQMode        bool
	QIncreaseUseQuery bool
	QDecreaseUseQuery bool
	Session           uint8
	Select            uint8
	Target            uint8
	HaltOnAllTags     bool
	FastIDEnable      bool
	TagFocusEnable    bool
}

// InventoryRoundControl2 is the second control register image: the LMAC query
// counters that let a round resume where a regulatory-interrupted one left
// off.
type InventoryRoundControl2 struct {
	MaxQueriesSinceValidEpc              uint8
	StartingMinQCount                    uint8
	StartingMaxQueriesSinceValidEpcCount uint8
}

// RxGainControl is the analog RX gain register image cached after ramp-up for
// later RSSI compensation.
type RxGainControl struct {
	RxAtten   uint8
	Pga1Gain  uint8
	Pga2Gain  uint8
	Pga3Gain  uint8
	MixerGain uint8
}

// PowerDroopCompensation configures the periodic TX power nudge that offsets
// thermal droop during long transmissions.
type PowerDroopCompensation struct {
	Enable          bool
	IntervalMs      uint8
	CompensationCdB uint8
}

// CwConfig is the assembled continuous-wave ramp configuration produced by
// the RF power collaborator. The engine treats everything but the regulatory
// timer as opaque.
type CwConfig struct {
	Antenna         uint8
	RfMode          RfMode
	TxPowerCdbm     int16
	TemperatureAdc  uint16
	TempCompEnabled bool
	Timer           regulatory.Timers
}

// InterruptStatus is the decoded device interrupt status delivered to the
// registered handler.
type InterruptStatus struct {
	OpDone               bool
	Halted               bool
	EventFifoAboveThresh bool
	EventFifoFull        bool
	InventoryRoundDone   bool
	CommandError         bool
}

// Protocol is the command/register transport surface consumed by the reader.
// Implementations own the SPI byte level; the reader never sees raw
// registers beyond the few it needs.
type Protocol interface {
	// IsOpCurrentlyRunning reports whether a device operation is in flight.
	IsOpCurrentlyRunning() bool

	// InsertFifoEvent asks the device to append a host-built packet to its
	// event FIFO stream (or, with a nil packet, just to raise the FIFO
	// interrupt). The packet must come back through the normal FIFO path
	// with framing byte-identical to firmware packets.
	InsertFifoEvent(triggerIrq bool, packet *Packet) error

	// ReadRxGainControl reads back the analog RX gain register.
	ReadRxGainControl() (RxGainControl, error)
}

// Ops is the op-level operation surface.
type Ops interface {
	WaitOpCompletion() error
	// GetDeviceTime returns the device's free-running microsecond counter,
	// which wraps at 32 bits.
	GetDeviceTime() uint32
}

// RfPower drives CW ramp state and TX power configuration.
type RfPower interface {
	SetRfMode(mode RfMode) error
	GetCwIsOn() bool
	MeasureAndReadAdcTemperature() (uint16, error)
	BuildCwConfigs(antenna uint8, mode RfMode, txPowerCdbm int16, temperatureAdc uint16, tempCompEnabled bool) (*CwConfig, error)
	GetDroopCompensationDefaults() PowerDroopCompensation
	CwOn(cfg *CwConfig, droop *PowerDroopCompensation) error
	StopOpAndRampDown() error
}

// InventoryOps issues the inventory round operation.
type InventoryOps interface {
	RunInventory(control *InventoryRoundControl, control2 *InventoryRoundControl2, sendSelects bool) error
}

// ActiveRegion is the regulatory collaborator: channel hopping and transmit
// timer bookkeeping for the configured region.
type ActiveRegion interface {
	UpdateChannelTimeTracking() error
	GetNextChannelKHz() uint32
	SetSingleFrequency(frequencyKHz uint32)
}

// RampModuleManager caches the pre/post ramp variables shared with ramp
// callback modules.
type RampModuleManager interface {
	StoreAdcTemperature(adc uint16)
	RetrieveAdcTemperature() uint16
	StorePreRampVariables(antenna uint8)
	StorePostRampVariables(txPowerCdbm int16, frequencyKHz uint32)
}

// BoardSpec answers board-level policy questions.
type BoardSpec interface {
	// TemperatureCompensationEnabled reports whether the given ADC reading
	// is usable for temperature-compensated power calculations.
	TemperatureCompensationEnabled(adc uint16) bool
}

// Device bundles the collaborator interfaces a Reader drives. All fields are
// required.
type Device struct {
	Protocol  Protocol
	Ops       Ops
	RfPower   RfPower
	Inventory InventoryOps
	Region    ActiveRegion
	Ramp      RampModuleManager
	Board     BoardSpec
}
