//
// Copyright (C) 2023 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package regulatory

import (
	"math/rand"
	"sync"

	"github.com/pkg/errors"
)

// ActiveRegion tracks which channel the transmitter is on, hops through the
// region's channel plan, and keeps the per-channel dwell clocks that feed the
// regulatory timers. All per-channel time is device milliseconds from the
// injected clock.
type ActiveRegion struct {
	mu     sync.Mutex
	region Region
	nowMs  func() uint32

	// sequence is the hop order as 1-based channel indices; next points at
	// the channel the upcoming ramp will use.
	sequence []uint16
	next     int
	rng      *rand.Rand

	// active is the channel the transmitter most recently ramped on; zero
	// before the first ramp.
	active uint16

	lastStartMs map[uint16]uint32
	lastEndMs   map[uint16]uint32
	totalTimeMs map[uint16]uint32

	singleKHz uint32
}

// NewActiveRegion builds channel tracking for region. nowMs supplies the
// device time in milliseconds; seed drives the hop order for random-hop
// regions.
func NewActiveRegion(region Region, nowMs func() uint32, seed int64) (*ActiveRegion, error) {
	if region.Channels.Count == 0 {
		return nil, errors.Errorf("region %s has no channels", region.ID)
	}
	a := &ActiveRegion{
		region:      region,
		nowMs:       nowMs,
		sequence:    region.ChannelIndices(),
		rng:         rand.New(rand.NewSource(seed)),
		lastStartMs: make(map[uint16]uint32),
		lastEndMs:   make(map[uint16]uint32),
		totalTimeMs: make(map[uint16]uint32),
	}
	if region.Channels.RandomHop {
		a.shuffleLocked()
	}
	return a, nil
}

// Region returns the static region description being tracked.
func (a *ActiveRegion) Region() Region { return a.region }

// UpdateChannelTimeTracking closes out the dwell on the current channel and
// selects the next one. The engine calls this before every ramp-up.
func (a *ActiveRegion) UpdateChannelTimeTracking() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.nowMs()
	if a.active != 0 {
		a.timerSetEndLocked(a.active, now)
	}

	ch := a.sequence[a.next]
	a.next++
	if a.next == len(a.sequence) {
		a.next = 0
		if a.region.Channels.RandomHop {
			a.shuffleLocked()
		}
	}

	a.timerSetStartLocked(ch, now)
	a.active = ch
	return nil
}

// GetNextChannelKHz returns the frequency the upcoming ramp transmits on:
// the channel selected by the last UpdateChannelTimeTracking, or the head of
// the plan before the first update.
func (a *ActiveRegion) GetNextChannelKHz() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.singleKHz != 0 {
		return a.singleKHz
	}
	return a.region.ChannelKHz(a.upcomingChannelLocked())
}

// SetSingleFrequency pins the region to one frequency, for test and
// diagnostic transmissions. A zero frequency restores the channel plan.
func (a *ActiveRegion) SetSingleFrequency(frequencyKHz uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.singleKHz = frequencyKHz
	a.active = 0
	if frequencyKHz == 0 {
		a.sequence = a.region.ChannelIndices()
		a.next = 0
		return
	}
	ch := a.channelForKHzLocked(frequencyKHz)
	a.sequence = []uint16{ch}
	a.next = 0
}

// upcomingChannelLocked is the channel the next ramp uses.
func (a *ActiveRegion) upcomingChannelLocked() uint16 {
	if a.active != 0 {
		return a.active
	}
	return a.sequence[a.next]
}

// TimersForNextRamp returns the region's dwell timers reduced by the time
// already accumulated on the upcoming channel, so a return to a channel that
// was not off long enough gets a correspondingly shorter dwell.
func (a *ActiveRegion) TimersForNextRamp() Timers {
	a.mu.Lock()
	defer a.mu.Unlock()

	t := a.region.Timers
	used := a.totalTimeMs[a.upcomingChannelLocked()]
	t.NominalMs = subtractSaturating(t.NominalMs, used)
	t.ExtendedMs = subtractSaturating(t.ExtendedMs, used)
	t.RegulatoryMs = subtractSaturating(t.RegulatoryMs, used)
	return t
}

// ClearChannelTimeTracking zeroes all per-channel dwell clocks.
func (a *ActiveRegion) ClearChannelTimeTracking() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.lastStartMs = make(map[uint16]uint32)
	a.lastEndMs = make(map[uint16]uint32)
	a.totalTimeMs = make(map[uint16]uint32)
	a.active = 0
}

// timerSetStartLocked records a dwell start. Off time shorter than the
// region's off_same_channel minimum counts toward on-time, because the
// channel was never properly relinquished; a long enough gap resets the
// channel's clock.
func (a *ActiveRegion) timerSetStartLocked(channel uint16, timeMs uint32) {
	a.lastStartMs[channel] = timeMs

	timeSinceOff := timeMs - a.lastEndMs[channel]
	if timeSinceOff < a.region.Timers.OffSameChannelMs {
		a.totalTimeMs[channel] += timeSinceOff
	} else {
		a.totalTimeMs[channel] = 0
	}
}

// timerSetEndLocked records a dwell end and accumulates the elapsed on-time.
func (a *ActiveRegion) timerSetEndLocked(channel uint16, timeMs uint32) {
	a.lastEndMs[channel] = timeMs
	a.totalTimeMs[channel] += timeMs - a.lastStartMs[channel]
}

func (a *ActiveRegion) shuffleLocked() {
	a.rng.Shuffle(len(a.sequence), func(i, j int) {
		a.sequence[i], a.sequence[j] = a.sequence[j], a.sequence[i]
	})
}

// channelForKHzLocked maps a frequency to the nearest channel index. Usable
// indices may run past Count (ETSI lower's plan does), so no upper clamp.
func (a *ActiveRegion) channelForKHzLocked(khz uint32) uint16 {
	c := a.region.Channels
	if khz <= c.StartFreqKHz || c.SpacingKHz == 0 {
		return 1
	}
	return uint16((khz-c.StartFreqKHz+c.SpacingKHz/2)/c.SpacingKHz) + 1
}

func subtractSaturating(a, b uint32) uint32 {
	if b >= a {
		return 0
	}
	return a - b
}
