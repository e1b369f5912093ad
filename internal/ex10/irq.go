//
// Copyright (C) 2023 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package ex10

import (
	"sync"
)

// EventHandler is implemented by the Reader and invoked from the interrupt
// monitor context. HandleInterrupt is called for every device interrupt and
// returns whether the monitor should drain the event FIFO; HandleFifoData
// receives each drained buffer.
type EventHandler interface {
	HandleInterrupt(status InterruptStatus) bool
	HandleFifoData(buf *FifoBuffer)
}

// Dispatcher routes interrupt-context callbacks to a single registered
// EventHandler. It replaces the C SDK's register/unregister function-pointer
// pairs: one handler, registered at construction, with a teardown that waits
// for in-flight callbacks instead of trylock games.
type Dispatcher struct {
	mu       sync.RWMutex
	handler  EventHandler
	inFlight sync.WaitGroup
}

// NewDispatcher returns a dispatcher with h registered.
func NewDispatcher(h EventHandler) *Dispatcher {
	return &Dispatcher{handler: h}
}

// DispatchInterrupt delivers a non-FIFO interrupt. It reports whether the
// monitor should read FIFO data; with no handler registered it reports false.
func (d *Dispatcher) DispatchInterrupt(status InterruptStatus) bool {
	d.mu.RLock()
	h := d.handler
	if h == nil {
		d.mu.RUnlock()
		return false
	}
	d.inFlight.Add(1)
	d.mu.RUnlock()

	defer d.inFlight.Done()
	return h.HandleInterrupt(status)
}

// DispatchFifoData delivers a filled FIFO buffer, transferring its ownership
// to the handler. With no handler registered the buffer is dropped.
func (d *Dispatcher) DispatchFifoData(buf *FifoBuffer) {
	d.mu.RLock()
	h := d.handler
	if h == nil {
		d.mu.RUnlock()
		return
	}
	d.inFlight.Add(1)
	d.mu.RUnlock()

	defer d.inFlight.Done()
	h.HandleFifoData(buf)
}

// Unregister detaches the handler and returns once no callback is in flight.
// After it returns, the handler will never be invoked again.
func (d *Dispatcher) Unregister() {
	d.mu.Lock()
	d.handler = nil
	d.mu.Unlock()

	d.inFlight.Wait()
}
