//
// Copyright (C) 2023 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

// Package inventory tracks the unique tag population observed by a reader. It
// consumes TagRead event packets and maintains a per-EPC record of read
// counts, signal strength and sighting times.
package inventory

import (
	"encoding/hex"
	"sort"
	"strings"
	"sync"

	"github.com/edgexfoundry/go-mod-core-contracts/v2/clients/logger"

	"github.impcloud.net/RSP-Inventory-Suite/ex10-reader-sdk/internal/ex10"
)

// Tag is one unique EPC's accumulated state.
type Tag struct {
	// EPC is the tag's EPC as uppercase hex.
	EPC string
	// PC is the protocol-control word read alongside the EPC.
	PC uint16

	ReadCount uint64
	// BestRSSI is the strongest signal seen, in the device's RSSI units.
	BestRSSI uint16
	LastRSSI uint16

	FirstSeenUs uint32
	LastSeenUs  uint32
}

// TagProcessor holds the current inventory data and processes incoming tag
// read packets.
type TagProcessor struct {
	lc logger.LoggingClient

	mu        sync.Mutex
	inventory map[string]*Tag
}

// NewTagProcessor creates an empty tag processor.
func NewTagProcessor(lc logger.LoggingClient) *TagProcessor {
	return &TagProcessor{
		lc:        lc,
		inventory: make(map[string]*Tag),
	}
}

// ProcessTagRead folds one TagRead packet into the inventory and returns the
// updated record along with whether this EPC is new. Packets with an empty
// EPC are counted against no tag and return nil.
func (tp *TagProcessor) ProcessTagRead(p *ex10.Packet) (tag *Tag, isNew bool) {
	epcBytes := p.EPC()
	if len(epcBytes) == 0 {
		tp.lc.Debug("Ignoring tag read with empty EPC.")
		return nil, false
	}
	epc := strings.ToUpper(hex.EncodeToString(epcBytes))
	d := p.TagRead()

	tp.mu.Lock()
	defer tp.mu.Unlock()

	t, ok := tp.inventory[epc]
	if !ok {
		t = &Tag{
			EPC:         epc,
			PC:          p.PC(),
			BestRSSI:    d.RSSI,
			FirstSeenUs: p.UsCounter,
		}
		tp.inventory[epc] = t
	}

	t.ReadCount++
	t.LastRSSI = d.RSSI
	t.LastSeenUs = p.UsCounter
	if d.RSSI > t.BestRSSI {
		t.BestRSSI = d.RSSI
	}

	return t, !ok
}

// Snapshot returns a copy of every tracked tag, ordered by EPC.
func (tp *TagProcessor) Snapshot() []Tag {
	tp.mu.Lock()
	defer tp.mu.Unlock()

	out := make([]Tag, 0, len(tp.inventory))
	for _, t := range tp.inventory {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EPC < out[j].EPC })
	return out
}

// UniqueCount returns how many unique EPCs have been observed.
func (tp *TagProcessor) UniqueCount() int {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	return len(tp.inventory)
}

// Reset drops all tracked tags.
func (tp *TagProcessor) Reset() {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	tp.inventory = make(map[string]*Tag)
}
