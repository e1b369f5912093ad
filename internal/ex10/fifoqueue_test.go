//
// Copyright (C) 2023 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package ex10

import (
	"testing"

	"github.com/edgexfoundry/go-mod-core-contracts/v2/clients/logger"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getTestingLogger() logger.LoggingClient {
	if testing.Verbose() {
		return logger.NewClient("test", "DEBUG")
	}
	return logger.NewMockClient()
}

func fillBuffer(t *testing.T, b *FifoBuffer, packets ...Packet) {
	t.Helper()
	for i := range packets {
		require.NoError(t, b.AppendPacket(&packets[i]))
	}
}

func TestQueueDeliversInFifoOrder(t *testing.T) {
	q := NewEventQueue(getTestingLogger(), 4, 256)

	b1, err := q.Allocate()
	require.NoError(t, err)
	fillBuffer(t, b1,
		NewHelloWorldPacket(1, HelloWorldData{SKU: 0xE710}),
		NewInventoryRoundSummaryPacket(2, InventoryRoundSummaryData{Reason: SummaryDone}),
	)
	q.Publish(b1, false)

	b2, err := q.Allocate()
	require.NoError(t, err)
	fillBuffer(t, b2, NewHelloWorldPacket(3, HelloWorldData{SKU: 0xE510}))
	q.Publish(b2, false)

	var seen []uint32
	for q.PacketsAvailable() {
		seen = append(seen, q.Peek().UsCounter)
		q.Remove()
	}
	assert.Equal(t, []uint32{1, 2, 3}, seen)
}

func TestQueuePeekIsStableUntilRemove(t *testing.T) {
	q := NewEventQueue(getTestingLogger(), 2, 256)

	b, err := q.Allocate()
	require.NoError(t, err)
	fillBuffer(t, b,
		NewHelloWorldPacket(10, HelloWorldData{}),
		NewHelloWorldPacket(11, HelloWorldData{}),
	)
	q.Publish(b, false)

	first := q.Peek()
	require.NotNil(t, first)
	assert.Same(t, first, q.Peek(), "peek must not advance")
	assert.Equal(t, uint32(10), first.UsCounter)

	q.Remove()
	second := q.Peek()
	require.NotNil(t, second)
	assert.Equal(t, uint32(11), second.UsCounter)
}

func TestQueueRemoveWithoutPeek(t *testing.T) {
	q := NewEventQueue(getTestingLogger(), 2, 256)

	b, err := q.Allocate()
	require.NoError(t, err)
	fillBuffer(t, b,
		NewHelloWorldPacket(20, HelloWorldData{}),
		NewHelloWorldPacket(21, HelloWorldData{}),
	)
	q.Publish(b, false)

	// Remove performs the implicit peek.
	q.Remove()
	require.NotNil(t, q.Peek())
	assert.Equal(t, uint32(21), q.Peek().UsCounter)

	q.Remove()
	assert.Nil(t, q.Peek())

	// Removing from an empty queue is a no-op.
	q.Remove()
}

func TestQueueBufferConservation(t *testing.T) {
	const count = 3
	q := NewEventQueue(getTestingLogger(), count, 256)

	var held []*FifoBuffer
	for i := 0; i < count; i++ {
		b, err := q.Allocate()
		require.NoError(t, err)
		held = append(held, b)
	}

	_, err := q.Allocate()
	require.Error(t, err)
	var se *SDKError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, SdkNoFreeEventFifoBuffers, se.Code)

	// Publishing and draining returns every buffer to the pool.
	for i, b := range held {
		fillBuffer(t, b, NewHelloWorldPacket(uint32(i), HelloWorldData{}))
		q.Publish(b, false)
	}
	for q.PacketsAvailable() {
		q.Remove()
	}
	assert.Equal(t, count, q.FreeBuffers())

	_, err = q.Allocate()
	assert.NoError(t, err)
}

func TestQueueDropsCorruptBufferAndContinues(t *testing.T) {
	q := NewEventQueue(getTestingLogger(), 4, 256)

	b1, err := q.Allocate()
	require.NoError(t, err)
	fillBuffer(t, b1, NewHelloWorldPacket(1, HelloWorldData{}))
	// Garbage after a valid packet: an unknown discriminant.
	require.NoError(t, b1.Append([]byte{0x03, 0xFF, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}))
	q.Publish(b1, false)

	b2, err := q.Allocate()
	require.NoError(t, err)
	fillBuffer(t, b2, NewHelloWorldPacket(2, HelloWorldData{}))
	q.Publish(b2, false)

	p := q.Peek()
	require.NotNil(t, p)
	assert.Equal(t, uint32(1), p.UsCounter)
	q.Remove()

	// The corrupt remainder is dropped whole; delivery resumes with the
	// next buffer.
	p = q.Peek()
	require.NotNil(t, p)
	assert.Equal(t, uint32(2), p.UsCounter)
	q.Remove()

	assert.Nil(t, q.Peek())
	assert.Equal(t, uint64(1), q.DroppedBuffers())
	assert.Equal(t, 4, q.FreeBuffers())
}

func TestQueuePublishPacketForwardsIrqHint(t *testing.T) {
	q := NewEventQueue(getTestingLogger(), 2, 256)

	var hints []bool
	q.SetIrqHint(func(trigger bool) { hints = append(hints, trigger) })

	pkt := NewHelloWorldPacket(5, HelloWorldData{})
	require.NoError(t, q.PublishPacket(&pkt, true))
	pkt2 := NewHelloWorldPacket(6, HelloWorldData{})
	require.NoError(t, q.PublishPacket(&pkt2, false))

	assert.Equal(t, []bool{true, false}, hints)
}

func TestBufferRejectsOverflow(t *testing.T) {
	q := NewEventQueue(getTestingLogger(), 1, 16)

	b, err := q.Allocate()
	require.NoError(t, err)

	// 12 encoded bytes fit; a second packet would need 24.
	pkt := NewHelloWorldPacket(1, HelloWorldData{})
	require.NoError(t, b.AppendPacket(&pkt))

	pkt2 := NewHelloWorldPacket(2, HelloWorldData{})
	err = b.AppendPacket(&pkt2)
	require.Error(t, err)
	var se *SDKError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, SdkErrorBadParamLength, se.Code)

	// The failed append must not corrupt the buffer contents.
	span := b.Bytes()
	p, err := ParseNext(&span)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), p.UsCounter)
	assert.Empty(t, span)
}
