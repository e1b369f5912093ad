//
// Copyright (C) 2023 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

// Package regulatory holds the per-region RF regulatory data: channel plans,
// transmit dwell timers, and the channel-time bookkeeping that decides how
// long a transmitter may stay on a channel and when it may return to one.
package regulatory

import (
	"strings"

	"github.com/pkg/errors"
)

// RegionID identifies a regulatory region.
type RegionID uint8

const (
	RegionUnknown RegionID = iota
	RegionFCC
	RegionETSILower
)

func (r RegionID) String() string {
	switch r {
	case RegionFCC:
		return "FCC"
	case RegionETSILower:
		return "ETSI_LOWER"
	}
	return "UNKNOWN"
}

// Timers are a region's transmit dwell limits, in milliseconds. A zero value
// means the corresponding timer is disabled.
type Timers struct {
	// NominalMs is the dwell after which the device should hop voluntarily.
	NominalMs uint32
	// ExtendedMs is the dwell after which an in-progress round is cut short.
	ExtendedMs uint32
	// RegulatoryMs is the hard legal limit; TX must be off by this point.
	RegulatoryMs uint32
	// OffSameChannelMs is the minimum off time before the same channel's
	// dwell clock resets. Shorter gaps count toward on-time.
	OffSameChannelMs uint32
}

// RFFilter selects the board's SAW filter band.
type RFFilter uint8

const (
	LowerBand RFFilter = iota
	UpperBand
)

// Channels is a region's channel plan. When Usable is non-empty only those
// 1-based channel indices may be used; otherwise all Count channels are.
type Channels struct {
	StartFreqKHz uint32
	SpacingKHz   uint32
	Count        uint16
	Usable       []uint16
	RandomHop    bool
}

// Region is one regulatory region's complete static description.
type Region struct {
	ID           RegionID
	Timers       Timers
	Channels     Channels
	PllDivider   uint32
	RFFilter     RFFilter
	MaxPowerCdbm int16
}

var etsiLower = Region{
	ID: RegionETSILower,
	Timers: Timers{
		NominalMs:        3800,
		ExtendedMs:       3980,
		RegulatoryMs:     4000,
		OffSameChannelMs: 100,
	},
	Channels: Channels{
		StartFreqKHz: 865100,
		SpacingKHz:   200,
		Count:        4,
		Usable:       []uint16{4, 7, 10, 13},
		RandomHop:    false,
	},
	PllDivider:   60,
	RFFilter:     LowerBand,
	MaxPowerCdbm: 3000,
}

var fcc = Region{
	ID: RegionFCC,
	Timers: Timers{
		NominalMs:        200,
		ExtendedMs:       380,
		RegulatoryMs:     400,
		OffSameChannelMs: 0,
	},
	Channels: Channels{
		StartFreqKHz: 902750,
		SpacingKHz:   500,
		Count:        50,
		RandomHop:    true,
	},
	PllDivider:   24,
	RFFilter:     UpperBand,
	MaxPowerCdbm: 3000,
}

// Lookup returns the region for a configuration name such as "FCC" or
// "ETSI_LOWER". The returned Region is a copy the caller may adjust.
func Lookup(name string) (Region, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "FCC":
		return fcc, nil
	case "ETSI_LOWER", "ETSI LOWER":
		return etsiLower, nil
	}
	return Region{}, errors.Errorf("unknown regulatory region %q", name)
}

// ChannelIndices returns the region's hop sequence as 1-based channel
// indices, in plan order.
func (r *Region) ChannelIndices() []uint16 {
	if len(r.Channels.Usable) > 0 {
		out := make([]uint16, len(r.Channels.Usable))
		copy(out, r.Channels.Usable)
		return out
	}
	out := make([]uint16, r.Channels.Count)
	for i := range out {
		out[i] = uint16(i) + 1
	}
	return out
}

// ChannelKHz converts a 1-based channel index to its center frequency.
func (r *Region) ChannelKHz(channel uint16) uint32 {
	return r.Channels.StartFreqKHz + uint32(channel-1)*r.Channels.SpacingKHz
}
