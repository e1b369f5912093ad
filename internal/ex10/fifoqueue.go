//
// Copyright (C) 2023 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package ex10

import (
	"sync"

	"github.com/edgexfoundry/go-mod-core-contracts/v2/clients/logger"
	"github.com/pkg/errors"
)

const (
	// DefaultBufferCount is the number of buffers in the event FIFO pool.
	DefaultBufferCount = 8
	// DefaultBufferSize matches the device-side event FIFO capacity, so a
	// single buffer can always hold a full FIFO drain.
	DefaultBufferSize = 4096
)

// FifoBuffer is a fixed-capacity byte region holding zero or more encoded
// packets back to back. Every buffer is owned by exactly one of: the queue's
// free pool, the producer filling it, or the pending queue. No two contexts
// ever hold the same buffer.
type FifoBuffer struct {
	data    []byte
	n       int
	readOff int
}

// Append copies raw packet bytes into the buffer.
func (b *FifoBuffer) Append(p []byte) error {
	if b.n+len(p) > cap(b.data) {
		return errors.Wrapf(newSDKError(ModuleFifoBufferList, SdkErrorBadParamLength),
			"%d bytes exceed remaining buffer capacity %d", len(p), cap(b.data)-b.n)
	}
	b.data = b.data[:b.n+len(p)]
	copy(b.data[b.n:], p)
	b.n += len(p)
	return nil
}

// AppendPacket encodes a host-built packet into the buffer using the wire
// framing, so injected packets are indistinguishable from firmware ones.
func (b *FifoBuffer) AppendPacket(p *Packet) error {
	if b.n+EncodedLen(len(p.Static), len(p.Dynamic)) > cap(b.data) {
		return errors.Wrap(newSDKError(ModuleFifoBufferList, SdkErrorBadParamLength),
			"encoded packet exceeds buffer capacity")
	}
	encoded, err := appendEncoded(b.data[:b.n], p)
	if err != nil {
		return err
	}
	b.data = encoded
	b.n = len(encoded)
	return nil
}

// Bytes returns the filled portion of the buffer.
func (b *FifoBuffer) Bytes() []byte { return b.data[:b.n] }

func (b *FifoBuffer) reset() {
	b.data = b.data[:0]
	b.n = 0
	b.readOff = 0
}

// EventQueue is the bounded producer/consumer FIFO between the interrupt
// monitor context and the client. The producer allocates a buffer from the
// free pool, fills it, and publishes it; the client consumes packets one at a
// time with Peek/Remove. No operation blocks.
type EventQueue struct {
	lc logger.LoggingClient

	mu      sync.Mutex
	free    []*FifoBuffer
	pending []*FifoBuffer

	// peeked caches the packet view returned by Peek so repeated calls are
	// stable until Remove advances past it. peekedLen is the encoded length
	// to advance by.
	peeked    *Packet
	peekedLen int

	droppedBuffers uint64

	// irqHint, when set, receives the trigger-interrupt hint passed to
	// Publish. It belongs to the transport collaborator, not the queue.
	irqHint func(triggerIrq bool)
}

// NewEventQueue builds a queue with bufferCount buffers of bufferSize bytes.
func NewEventQueue(lc logger.LoggingClient, bufferCount, bufferSize int) *EventQueue {
	q := &EventQueue{
		lc:   lc,
		free: make([]*FifoBuffer, 0, bufferCount),
	}
	for i := 0; i < bufferCount; i++ {
		q.free = append(q.free, &FifoBuffer{data: make([]byte, 0, bufferSize)})
	}
	return q
}

// SetIrqHint registers the transport callback that consumes Publish's
// trigger-interrupt hint. Must be called before the producer starts.
func (q *EventQueue) SetIrqHint(f func(bool)) { q.irqHint = f }

// Allocate transfers a buffer from the free pool to the producer. It fails
// with SdkNoFreeEventFifoBuffers when the client has fallen too far behind.
func (q *EventQueue) Allocate() (*FifoBuffer, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.free) == 0 {
		return nil, newSDKError(ModuleFifoBufferList, SdkNoFreeEventFifoBuffers)
	}
	b := q.free[len(q.free)-1]
	q.free = q.free[:len(q.free)-1]
	b.reset()
	return b, nil
}

// Publish appends a filled buffer to the tail of the pending queue,
// transferring ownership from the producer. Insertion order is delivery
// order.
func (q *EventQueue) Publish(b *FifoBuffer, triggerIrq bool) {
	q.mu.Lock()
	q.pending = append(q.pending, b)
	q.mu.Unlock()

	if q.irqHint != nil {
		q.irqHint(triggerIrq)
	}
}

// PublishPacket encodes a single host-built packet into a fresh buffer and
// publishes it.
func (q *EventQueue) PublishPacket(p *Packet, triggerIrq bool) error {
	b, err := q.Allocate()
	if err != nil {
		return err
	}
	if err := b.AppendPacket(p); err != nil {
		q.release(b)
		return err
	}
	q.Publish(b, triggerIrq)
	return nil
}

// Peek returns the next undelivered packet without removing it, or nil when
// the queue is empty. The view is stable across repeated calls until Remove.
// A buffer whose remaining bytes fail to parse is dropped whole; parsing
// resumes at the next buffer.
func (q *EventQueue) Peek() *Packet {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.peekLocked()
}

func (q *EventQueue) peekLocked() *Packet {
	for {
		if q.peeked != nil {
			return q.peeked
		}
		if len(q.pending) == 0 {
			return nil
		}

		head := q.pending[0]
		span := head.data[head.readOff:head.n]
		if len(span) == 0 {
			q.recycleHeadLocked()
			continue
		}

		remaining := span
		p, err := ParseNext(&remaining)
		if err != nil {
			// Cannot resynchronize mid-buffer; drop the rest of this
			// buffer and surface a diagnostic, not a reader error.
			q.droppedBuffers++
			if q.lc != nil {
				q.lc.Warn("Dropping remainder of event FIFO buffer.",
					"cause", err.Error(), "discardedBytes", len(span))
			}
			q.recycleHeadLocked()
			continue
		}

		q.peekedLen = len(span) - len(remaining)
		q.peeked = &p
		return q.peeked
	}
}

// Remove advances past the packet returned by the last Peek. When the head
// buffer is fully consumed it returns to the free pool.
func (q *EventQueue) Remove() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.peeked == nil && q.peekLocked() == nil {
		return
	}

	head := q.pending[0]
	head.readOff += q.peekedLen
	q.peeked = nil
	q.peekedLen = 0

	if head.readOff >= head.n {
		q.recycleHeadLocked()
	}
}

// PacketsAvailable reports whether Peek would return a packet.
func (q *EventQueue) PacketsAvailable() bool {
	return q.Peek() != nil
}

// recycleHeadLocked returns the head pending buffer to the free pool.
func (q *EventQueue) recycleHeadLocked() {
	head := q.pending[0]
	q.pending = q.pending[1:]
	head.reset()
	q.free = append(q.free, head)
	q.peeked = nil
	q.peekedLen = 0
}

// release returns a producer-held buffer that was never published.
func (q *EventQueue) release(b *FifoBuffer) {
	q.mu.Lock()
	b.reset()
	q.free = append(q.free, b)
	q.mu.Unlock()
}

// FreeBuffers returns the current free pool size.
func (q *EventQueue) FreeBuffers() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.free)
}

// DroppedBuffers returns how many buffers were discarded due to parse
// failures.
func (q *EventQueue) DroppedBuffers() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.droppedBuffers
}
