//
// Copyright (C) 2023 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package regulatory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupKnownRegions(t *testing.T) {
	etsi, err := Lookup("etsi_lower")
	require.NoError(t, err)
	assert.Equal(t, RegionETSILower, etsi.ID)
	assert.Equal(t, uint32(3800), etsi.Timers.NominalMs)
	assert.Equal(t, []uint16{4, 7, 10, 13}, etsi.ChannelIndices())

	fcc, err := Lookup("FCC")
	require.NoError(t, err)
	assert.Equal(t, RegionFCC, fcc.ID)
	assert.True(t, fcc.Channels.RandomHop)
	assert.Len(t, fcc.ChannelIndices(), 50)

	_, err = Lookup("NOWHERE")
	assert.Error(t, err)
}

func TestChannelFrequencies(t *testing.T) {
	etsi, err := Lookup("ETSI_LOWER")
	require.NoError(t, err)

	// Channel 4 is the first usable ETSI lower channel: 865.7 MHz.
	assert.Equal(t, uint32(865700), etsi.ChannelKHz(4))
	assert.Equal(t, uint32(866300), etsi.ChannelKHz(7))
}

func TestActiveRegionHopsThroughUsableChannels(t *testing.T) {
	etsi, err := Lookup("ETSI_LOWER")
	require.NoError(t, err)

	var clock uint32
	a, err := NewActiveRegion(etsi, func() uint32 { return clock }, 1)
	require.NoError(t, err)

	var seen []uint32
	for i := 0; i < 5; i++ {
		require.NoError(t, a.UpdateChannelTimeTracking())
		seen = append(seen, a.GetNextChannelKHz())
		clock += 4000
	}
	assert.Equal(t, []uint32{865700, 866300, 866900, 867500, 865700}, seen,
		"the plan must cycle through the usable channels in order")
}

func TestShortOffTimeCountsTowardOnTime(t *testing.T) {
	etsi, err := Lookup("ETSI_LOWER")
	require.NoError(t, err)

	var clock uint32
	a, err := NewActiveRegion(etsi, func() uint32 { return clock }, 1)
	require.NoError(t, err)

	// Dwell 500ms on channel 4.
	require.NoError(t, a.UpdateChannelTimeTracking())
	clock += 500

	// Hop through the other three channels quickly, 10ms apart: channel 4's
	// off time when we return is 30ms, under the 100ms minimum, so the
	// earlier 500ms (plus the off gap) still counts against its dwell.
	for i := 0; i < 3; i++ {
		require.NoError(t, a.UpdateChannelTimeTracking())
		clock += 10
	}
	require.NoError(t, a.UpdateChannelTimeTracking())

	timers := a.TimersForNextRamp()
	assert.Less(t, timers.NominalMs, etsi.Timers.NominalMs,
		"a too-short off time must shorten the next dwell")
}

func TestLongOffTimeResetsChannelClock(t *testing.T) {
	etsi, err := Lookup("ETSI_LOWER")
	require.NoError(t, err)

	var clock uint32
	a, err := NewActiveRegion(etsi, func() uint32 { return clock }, 1)
	require.NoError(t, err)

	require.NoError(t, a.UpdateChannelTimeTracking())
	clock += 3800

	// Visit the rest of the plan slowly enough that channel 4 gets a full
	// off period before we return to it.
	for i := 0; i < 3; i++ {
		require.NoError(t, a.UpdateChannelTimeTracking())
		clock += 200
	}
	require.NoError(t, a.UpdateChannelTimeTracking())

	timers := a.TimersForNextRamp()
	assert.Equal(t, etsi.Timers, timers, "a full off period restores the full dwell")
}

func TestSetSingleFrequencyPinsTheChannel(t *testing.T) {
	etsi, err := Lookup("ETSI_LOWER")
	require.NoError(t, err)

	var clock uint32
	a, err := NewActiveRegion(etsi, func() uint32 { return clock }, 1)
	require.NoError(t, err)

	a.SetSingleFrequency(866900)
	for i := 0; i < 3; i++ {
		assert.Equal(t, uint32(866900), a.GetNextChannelKHz())
		require.NoError(t, a.UpdateChannelTimeTracking())
		clock += 1000
	}

	a.SetSingleFrequency(0)
	assert.Equal(t, uint32(865700), a.GetNextChannelKHz())
}
