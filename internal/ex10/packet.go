//
// Copyright (C) 2023 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package ex10

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// PacketType is the event FIFO packet discriminant, the second byte of each
// packet's wire header.
type PacketType uint8

const (
	PacketInvalid              PacketType = 0x00
	PacketTxRampUp             PacketType = 0x01
	PacketTxRampDown           PacketType = 0x02
	PacketInventoryRoundSum    PacketType = 0x03
	PacketTagRead              PacketType = 0x04
	PacketHelloWorld           PacketType = 0x05
	PacketCustom               PacketType = 0x06
	PacketContinuousInvSummary PacketType = 0x07
	PacketEx10Result           PacketType = 0x08
)

func (t PacketType) String() string {
	switch t {
	case PacketTxRampUp:
		return "TxRampUp"
	case PacketTxRampDown:
		return "TxRampDown"
	case PacketInventoryRoundSum:
		return "InventoryRoundSummary"
	case PacketTagRead:
		return "TagRead"
	case PacketHelloWorld:
		return "HelloWorld"
	case PacketCustom:
		return "Custom"
	case PacketContinuousInvSummary:
		return "ContinuousInventorySummary"
	case PacketEx10Result:
		return "Ex10Result"
	}
	return fmt.Sprintf("PacketType(0x%02X)", uint8(t))
}

// staticLengths holds the fixed static-payload length of each known packet
// type. A type missing from this table is an invalid discriminant.
var staticLengths = map[PacketType]int{
	PacketTxRampUp:             4,
	PacketTxRampDown:           4,
	PacketInventoryRoundSum:    8,
	PacketTagRead:              12,
	PacketHelloWorld:           4,
	PacketCustom:               4,
	PacketContinuousInvSummary: 16,
	PacketEx10Result:           8,
}

// StaticLength returns the static payload length of a packet type and whether
// the type is a known discriminant.
func StaticLength(t PacketType) (int, bool) {
	n, ok := staticLengths[t]
	return n, ok
}

// hasDynamicPayload reports whether a packet type legitimately carries bytes
// beyond its static payload. For every other type the post-static span must
// be nothing but zero padding.
func hasDynamicPayload(t PacketType) bool {
	switch t {
	case PacketTagRead, PacketCustom:
		return true
	}
	return false
}

// InventorySummaryReason is the reason field of an InventoryRoundSummary
// packet, i.e. why the LMAC ended the round.
type InventorySummaryReason uint8

const (
	SummaryNone InventorySummaryReason = iota
	SummaryDone
	SummaryHost
	SummaryRegulatory
	SummaryEventFifoFull
	SummaryTxNotRampedUp
	SummaryInvalidParam
	SummaryLmacOverload
	SummaryUnsupported
)

// StopReason is why a continuous inventory run ended. It is latched on first
// set and reported in the synthesized ContinuousInventorySummary packet.
type StopReason uint8

const (
	SRNone StopReason = iota
	SRHost
	SRMaxNumberOfRounds
	SRMaxNumberOfTags
	SRMaxDuration
	SROpError
	SRSdkTimeoutError
	SRDeviceCommandError
	SRDeviceAggregateBufferOverflow
	SRDeviceRampCallbackError
	SRDeviceEventFifoFull
	SRDeviceInventoryInvalidParam
	SRDeviceLmacOverload
	SRDeviceInventorySummaryReasonInvalid
	SRReasonUnknown
)

func (r StopReason) String() string {
	switch r {
	case SRNone:
		return "None"
	case SRHost:
		return "Host"
	case SRMaxNumberOfRounds:
		return "MaxNumberOfRounds"
	case SRMaxNumberOfTags:
		return "MaxNumberOfTags"
	case SRMaxDuration:
		return "MaxDuration"
	case SROpError:
		return "OpError"
	case SRSdkTimeoutError:
		return "SdkTimeoutError"
	case SRDeviceCommandError:
		return "DeviceCommandError"
	case SRDeviceAggregateBufferOverflow:
		return "DeviceAggregateBufferOverflow"
	case SRDeviceRampCallbackError:
		return "DeviceRampCallbackError"
	case SRDeviceEventFifoFull:
		return "DeviceEventFifoFull"
	case SRDeviceInventoryInvalidParam:
		return "DeviceInventoryInvalidParam"
	case SRDeviceLmacOverload:
		return "DeviceLmacOverload"
	case SRDeviceInventorySummaryReasonInvalid:
		return "DeviceInventorySummaryReasonInvalid"
	}
	return "ReasonUnknown"
}

// Packet is a decoded view of one event FIFO packet. Static and Dynamic alias
// the buffer the packet was parsed from; a Packet does not own its bytes and
// is only valid until that buffer is released (for queued packets, until
// PacketRemove).
type Packet struct {
	Type      PacketType
	UsCounter uint32

	// Static is the fixed-size payload; its length is StaticLength(Type).
	Static []byte
	// Dynamic is everything between the static payload and the end of the
	// packet: the variable payload, if the type has one, plus up to three
	// zero bytes of alignment padding.
	Dynamic []byte
}

// TxRampUpData is the static payload of a TxRampUp packet.
type TxRampUpData struct {
	CarrierFrequencyKHz uint32
}

// TxRampDownData is the static payload of a TxRampDown packet.
type TxRampDownData struct {
	Reason uint8
}

// InventoryRoundSummaryData is the static payload of an InventoryRoundSummary
// packet: the firmware's account of why a round ended and the query state the
// host needs to resume it.
type InventoryRoundSummaryData struct {
	DurationUs           uint32
	FinalQ               uint8
	MinQCount            uint8
	QueriesSinceValidEPC uint8
	Reason               InventorySummaryReason
}

// TagReadData is the static payload of a TagRead packet. The EPC (and PC
// word) ride in the packet's dynamic payload.
type TagReadData struct {
	RSSI            uint16
	RFPhaseBegin    uint16
	RFPhaseEnd      uint16
	Type            uint8
	HaltedOnTag     bool
	MemoryParityErr bool
}

// ContinuousInventorySummaryData is the static payload of the host-synthesized
// ContinuousInventorySummary packet.
type ContinuousInventorySummaryData struct {
	DurationUs              uint32
	NumberOfInventoryRounds uint32
	NumberOfTags            uint32
	Reason                  StopReason
	LastOpID                uint8
	LastOpError             uint8
}

// HelloWorldData is the static payload of the HelloWorld packet the device
// emits once after reset.
type HelloWorldData struct {
	SKU uint16
}

// CustomData is the static payload of a Custom packet; the payload itself is
// dynamic data.
type CustomData struct {
	PayloadLen uint32
}

// Ex10ResultData is the static payload of the host-synthesized Ex10Result
// packet pushed ahead of an error-tagged summary so the client can see the
// full failure details.
type Ex10ResultData struct {
	Module     Module
	FromDevice bool
	Code       uint8
	OpID       uint8
	OpError    uint8
}

// TxRampUp decodes the static payload of a TxRampUp packet.
func (p *Packet) TxRampUp() TxRampUpData {
	return TxRampUpData{CarrierFrequencyKHz: binary.LittleEndian.Uint32(p.Static[0:4])}
}

// TxRampDown decodes the static payload of a TxRampDown packet.
func (p *Packet) TxRampDown() TxRampDownData {
	return TxRampDownData{Reason: p.Static[0]}
}

// InventoryRoundSummary decodes the static payload of an
// InventoryRoundSummary packet.
func (p *Packet) InventoryRoundSummary() InventoryRoundSummaryData {
	return InventoryRoundSummaryData{
		DurationUs:           binary.LittleEndian.Uint32(p.Static[0:4]),
		FinalQ:               p.Static[4],
		MinQCount:            p.Static[5],
		QueriesSinceValidEPC: p.Static[6],
		Reason:               InventorySummaryReason(p.Static[7]),
	}
}

// TagRead decodes the static payload of a TagRead packet.
func (p *Packet) TagRead() TagReadData {
	return TagReadData{
		RSSI:            binary.LittleEndian.Uint16(p.Static[0:2]),
		RFPhaseBegin:    binary.LittleEndian.Uint16(p.Static[2:4]),
		RFPhaseEnd:      binary.LittleEndian.Uint16(p.Static[4:6]),
		Type:            p.Static[6],
		HaltedOnTag:     p.Static[7] != 0,
		MemoryParityErr: p.Static[8] != 0,
	}
}

// ContinuousInventorySummary decodes the static payload of a
// ContinuousInventorySummary packet.
func (p *Packet) ContinuousInventorySummary() ContinuousInventorySummaryData {
	return ContinuousInventorySummaryData{
		DurationUs:              binary.LittleEndian.Uint32(p.Static[0:4]),
		NumberOfInventoryRounds: binary.LittleEndian.Uint32(p.Static[4:8]),
		NumberOfTags:            binary.LittleEndian.Uint32(p.Static[8:12]),
		Reason:                  StopReason(p.Static[12]),
		LastOpID:                p.Static[13],
		LastOpError:             p.Static[14],
	}
}

// HelloWorld decodes the static payload of a HelloWorld packet.
func (p *Packet) HelloWorld() HelloWorldData {
	return HelloWorldData{SKU: binary.LittleEndian.Uint16(p.Static[0:2])}
}

// Custom decodes the static payload of a Custom packet.
func (p *Packet) Custom() CustomData {
	return CustomData{PayloadLen: binary.LittleEndian.Uint32(p.Static[0:4])}
}

// Ex10Result decodes the static payload of an Ex10Result packet.
func (p *Packet) Ex10Result() Ex10ResultData {
	return Ex10ResultData{
		Module:     Module(p.Static[0]),
		FromDevice: p.Static[1] != 0,
		Code:       p.Static[2],
		OpID:       p.Static[3],
		OpError:    p.Static[4],
	}
}

// PC returns the Gen2 protocol-control word carried in the first two bytes
// of a TagRead packet's dynamic payload.
func (p *Packet) PC() uint16 {
	if p.Type != PacketTagRead || len(p.Dynamic) < 2 {
		return 0
	}
	return binary.LittleEndian.Uint16(p.Dynamic[0:2])
}

// EPC returns the tag EPC from a TagRead packet's dynamic payload. The PC
// word's length field (EPC length in 16-bit words) distinguishes payload
// bytes from the trailing alignment padding.
func (p *Packet) EPC() []byte {
	if p.Type != PacketTagRead || len(p.Dynamic) < 2 {
		return nil
	}
	n := int(p.PC()>>11) * 2
	if n > len(p.Dynamic)-2 {
		n = len(p.Dynamic) - 2
	}
	return p.Dynamic[2 : 2+n]
}

func (p *Packet) String() string {
	switch p.Type {
	case PacketTagRead:
		tr := p.TagRead()
		return fmt.Sprintf("TagRead us=%d rssi=%d epc=%s",
			p.UsCounter, tr.RSSI, hex.EncodeToString(p.EPC()))
	case PacketInventoryRoundSum:
		rs := p.InventoryRoundSummary()
		return fmt.Sprintf("InventoryRoundSummary us=%d reason=%d finalQ=%d duration=%dus",
			p.UsCounter, rs.Reason, rs.FinalQ, rs.DurationUs)
	case PacketContinuousInvSummary:
		cs := p.ContinuousInventorySummary()
		return fmt.Sprintf("ContinuousInventorySummary us=%d reason=%s rounds=%d tags=%d duration=%dus",
			p.UsCounter, cs.Reason, cs.NumberOfInventoryRounds, cs.NumberOfTags, cs.DurationUs)
	case PacketEx10Result:
		er := p.Ex10Result()
		return fmt.Sprintf("Ex10Result us=%d module=%d code=%d op=0x%02X opError=%d",
			p.UsCounter, er.Module, er.Code, er.OpID, er.OpError)
	case PacketHelloWorld:
		return fmt.Sprintf("HelloWorld us=%d sku=0x%04X", p.UsCounter, p.HelloWorld().SKU)
	}
	return fmt.Sprintf("%s us=%d", p.Type, p.UsCounter)
}

func (d TxRampUpData) appendStatic(b []byte) []byte {
	return binary.LittleEndian.AppendUint32(b, d.CarrierFrequencyKHz)
}

func (d TxRampDownData) appendStatic(b []byte) []byte {
	return append(b, d.Reason, 0, 0, 0)
}

func (d InventoryRoundSummaryData) appendStatic(b []byte) []byte {
	b = binary.LittleEndian.AppendUint32(b, d.DurationUs)
	return append(b, d.FinalQ, d.MinQCount, d.QueriesSinceValidEPC, uint8(d.Reason))
}

func (d TagReadData) appendStatic(b []byte) []byte {
	b = binary.LittleEndian.AppendUint16(b, d.RSSI)
	b = binary.LittleEndian.AppendUint16(b, d.RFPhaseBegin)
	b = binary.LittleEndian.AppendUint16(b, d.RFPhaseEnd)
	return append(b, d.Type, boolByte(d.HaltedOnTag), boolByte(d.MemoryParityErr), 0, 0, 0)
}

func (d ContinuousInventorySummaryData) appendStatic(b []byte) []byte {
	b = binary.LittleEndian.AppendUint32(b, d.DurationUs)
	b = binary.LittleEndian.AppendUint32(b, d.NumberOfInventoryRounds)
	b = binary.LittleEndian.AppendUint32(b, d.NumberOfTags)
	return append(b, uint8(d.Reason), d.LastOpID, d.LastOpError, 0)
}

func (d HelloWorldData) appendStatic(b []byte) []byte {
	b = binary.LittleEndian.AppendUint16(b, d.SKU)
	return append(b, 0, 0)
}

func (d CustomData) appendStatic(b []byte) []byte {
	return binary.LittleEndian.AppendUint32(b, d.PayloadLen)
}

func (d Ex10ResultData) appendStatic(b []byte) []byte {
	return append(b, uint8(d.Module), boolByte(d.FromDevice), d.Code, d.OpID, d.OpError, 0, 0, 0)
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
