//
// Copyright (C) 2023 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package ex10

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingHandler struct {
	entered chan struct{}
	release chan struct{}
	fifoCnt int32
}

func (h *blockingHandler) HandleInterrupt(InterruptStatus) bool { return true }

func (h *blockingHandler) HandleFifoData(*FifoBuffer) {
	atomic.AddInt32(&h.fifoCnt, 1)
	h.entered <- struct{}{}
	<-h.release
}

func TestUnregisterWaitsForInFlightCallback(t *testing.T) {
	h := &blockingHandler{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	d := NewDispatcher(h)

	go d.DispatchFifoData(&FifoBuffer{data: make([]byte, 0, 64)})

	select {
	case <-h.entered:
	case <-time.After(time.Second):
		t.Fatal("handler was never invoked")
	}

	unregistered := make(chan struct{})
	go func() {
		d.Unregister()
		close(unregistered)
	}()

	select {
	case <-unregistered:
		t.Fatal("Unregister returned while a callback was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(h.release)

	select {
	case <-unregistered:
	case <-time.After(time.Second):
		t.Fatal("Unregister did not return after the callback finished")
	}

	// Nothing reaches the handler once Unregister has returned.
	assert.False(t, d.DispatchInterrupt(InterruptStatus{}))
	d.DispatchFifoData(&FifoBuffer{data: make([]byte, 0, 64)})
	require.Equal(t, int32(1), atomic.LoadInt32(&h.fifoCnt))
}

func TestDispatchInterruptForwardsDecision(t *testing.T) {
	h := &blockingHandler{entered: make(chan struct{}, 1), release: make(chan struct{})}
	d := NewDispatcher(h)
	assert.True(t, d.DispatchInterrupt(InterruptStatus{InventoryRoundDone: true}))
}
