//
// Copyright (C) 2023 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package ex10

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHelloWorldGolden(t *testing.T) {
	// 12 bytes total: 3 words, type 0x05, us counter 0x04030201, SKU 0xE710.
	raw := []byte{
		0x03, 0x05, 0x00, 0x00,
		0x01, 0x02, 0x03, 0x04,
		0x10, 0xE7, 0x00, 0x00,
	}

	span := raw
	p, err := ParseNext(&span)
	require.NoError(t, err)
	assert.Empty(t, span, "a single packet should be consumed whole")

	assert.Equal(t, PacketHelloWorld, p.Type)
	assert.Equal(t, uint32(0x04030201), p.UsCounter)
	assert.Equal(t, uint16(0xE710), p.HelloWorld().SKU)
}

func TestParseConsumesPacketsInOrder(t *testing.T) {
	var raw []byte
	var err error

	raw, err = AppendPacket(raw, PacketTxRampUp, 100,
		TxRampUpData{CarrierFrequencyKHz: 865700}.appendStatic(nil), nil)
	require.NoError(t, err)

	tagRead := NewTagReadPacket(200, TagReadData{RSSI: 612},
		[]byte{0x30, 0x08, 0x33, 0xB2, 0xDD, 0xD9, 0x01, 0x40, 0x00, 0x00, 0x00, 0x00})
	raw, err = AppendPacket(raw, tagRead.Type, tagRead.UsCounter, tagRead.Static, tagRead.Dynamic)
	require.NoError(t, err)

	raw, err = AppendPacket(raw, PacketTxRampDown, 300,
		TxRampDownData{Reason: 1}.appendStatic(nil), nil)
	require.NoError(t, err)

	span := raw

	p1, err := ParseNext(&span)
	require.NoError(t, err)
	assert.Equal(t, PacketTxRampUp, p1.Type)
	assert.Equal(t, uint32(865700), p1.TxRampUp().CarrierFrequencyKHz)

	p2, err := ParseNext(&span)
	require.NoError(t, err)
	assert.Equal(t, PacketTagRead, p2.Type)
	assert.Equal(t, uint16(612), p2.TagRead().RSSI)
	assert.Equal(t, []byte{0x30, 0x08, 0x33, 0xB2, 0xDD, 0xD9, 0x01, 0x40, 0x00, 0x00, 0x00, 0x00}, p2.EPC())

	p3, err := ParseNext(&span)
	require.NoError(t, err)
	assert.Equal(t, PacketTxRampDown, p3.Type)
	assert.Equal(t, uint8(1), p3.TxRampDown().Reason)

	assert.Empty(t, span)
}

func TestParseTagReadOddEPCKeepsPaddingOut(t *testing.T) {
	// A 6-word EPC means 2 PC bytes + 12 EPC bytes = 14 dynamic payload
	// bytes, forcing 2 alignment padding bytes the accessor must not return.
	epc := []byte{0xE2, 0x80, 0x11, 0x60, 0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07}
	pkt := NewTagReadPacket(42, TagReadData{RSSI: 700}, epc)

	raw, err := AppendPacket(nil, pkt.Type, pkt.UsCounter, pkt.Static, pkt.Dynamic)
	require.NoError(t, err)
	assert.Zero(t, len(raw)%4, "encoded packets must stay 32-bit aligned")

	span := raw
	p, err := ParseNext(&span)
	require.NoError(t, err)

	assert.Equal(t, epc, p.EPC())
	assert.Equal(t, uint16(6)<<11, p.PC())
}

func TestParseInvalidDiscriminantLeavesSpan(t *testing.T) {
	raw := []byte{
		0x03, 0x5A, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
	}

	span := raw
	_, err := ParseNext(&span)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidPacket))
	assert.Len(t, span, len(raw), "a failed parse must not consume bytes")
}

func TestParseCorruptPadding(t *testing.T) {
	// A HelloWorld packet declaring a full extra word past its static
	// payload: no type-0x05 packet carries dynamic data, so this stream is
	// corrupt no matter what the extra bytes hold.
	raw := []byte{
		0x04, 0x05, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x10, 0xE7, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
	}

	span := raw
	_, err := ParseNext(&span)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorruptPadding))
}

func TestParseTruncatedPacket(t *testing.T) {
	raw := []byte{
		0x04, 0x05, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x10, 0xE7, 0x00, 0x00,
	}

	span := raw
	_, err := ParseNext(&span)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTruncatedPacket))

	short := raw[:5]
	_, err = ParseNext(&short)
	assert.True(t, errors.Is(err, ErrTruncatedPacket))
}

func TestEncodedLenAlignment(t *testing.T) {
	assert.Equal(t, 12, EncodedLen(4, 0))
	assert.Equal(t, 24, EncodedLen(12, 3))
	assert.Equal(t, 24, EncodedLen(12, 4))
	assert.Equal(t, 28, EncodedLen(12, 5))
}

func TestEx10ResultPacketCarriesErrorDetails(t *testing.T) {
	opErr := NewOpError(ModuleOps, OpStartInventoryRnd, OpErrorInvalidTxState)
	pkt := NewEx10ResultPacket(77, opErr)

	d := pkt.Ex10Result()
	assert.True(t, d.FromDevice)
	assert.Equal(t, ModuleOps, d.Module)
	assert.Equal(t, uint8(DeviceErrorOps), d.Code)
	assert.Equal(t, uint8(OpStartInventoryRnd), d.OpID)
	assert.Equal(t, uint8(OpErrorInvalidTxState), d.OpError)

	sdkErr := newSDKError(ModuleReader, SdkEventFifoFull)
	pkt = NewEx10ResultPacket(78, sdkErr)
	d = pkt.Ex10Result()
	assert.False(t, d.FromDevice)
	assert.Equal(t, ModuleReader, d.Module)
	assert.Equal(t, uint8(SdkEventFifoFull), d.Code)
}
