//
// Copyright (C) 2023 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package ex10

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Wire framing, little-endian, every packet 32-bit aligned:
//
//	u8  packet length in 32-bit words (header + static + dynamic + padding)
//	u8  packet type
//	u16 reserved (zero)
//	u32 device microsecond counter
//	static payload, fixed length per type
//	dynamic payload, immediately after the static payload
//	zero padding (< 4 bytes) up to the next 32-bit boundary
const (
	packetHeaderLen = 8
	packetAlignment = 4
	// MaxPacketLen is the largest encodable packet: 255 32-bit words.
	MaxPacketLen = 255 * packetAlignment
)

var (
	// ErrInvalidPacket reports a discriminant outside the known set. The
	// caller must discard the remainder of the buffer being parsed; there is
	// no way to resynchronize mid-stream.
	ErrInvalidPacket = errors.New("invalid event packet")

	// ErrCorruptPadding reports non-zero bytes where a packet's alignment
	// padding should be. Treated the same as an invalid discriminant.
	ErrCorruptPadding = errors.New("non-zero bytes in event packet padding")

	// ErrTruncatedPacket reports a packet whose declared length runs past
	// the bytes actually available.
	ErrTruncatedPacket = errors.New("truncated event packet")
)

// ParseNext consumes exactly one encoded packet from the front of *span,
// advancing it, and returns a Packet whose Static and Dynamic fields alias
// the original backing array. On error *span is left unchanged and the
// caller must stop parsing the buffer.
func ParseNext(span *[]byte) (Packet, error) {
	b := *span
	if len(b) < packetHeaderLen {
		return Packet{}, errors.Wrapf(ErrTruncatedPacket, "%d bytes remaining", len(b))
	}

	total := int(b[0]) * packetAlignment
	ptype := PacketType(b[1])

	staticLen, known := StaticLength(ptype)
	if !known {
		return Packet{}, errors.Wrapf(ErrInvalidPacket, "discriminant 0x%02X", uint8(ptype))
	}
	if total < packetHeaderLen+staticLen {
		return Packet{}, errors.Wrapf(ErrInvalidPacket,
			"%s declares %d bytes, static payload needs %d", ptype, total, packetHeaderLen+staticLen)
	}
	if total > len(b) {
		return Packet{}, errors.Wrapf(ErrTruncatedPacket,
			"%s declares %d bytes, %d available", ptype, total, len(b))
	}

	p := Packet{
		Type:      ptype,
		UsCounter: binary.LittleEndian.Uint32(b[4:8]),
		Static:    b[packetHeaderLen : packetHeaderLen+staticLen : packetHeaderLen+staticLen],
		Dynamic:   b[packetHeaderLen+staticLen : total : total],
	}

	if err := checkPadding(&p); err != nil {
		return Packet{}, err
	}

	*span = b[total:]
	return p, nil
}

// checkPadding enforces the alignment contract: a packet type with no dynamic
// payload may only carry up to three zero bytes past its static payload.
// Anything else means the stream is corrupt and the buffer must be dropped.
func checkPadding(p *Packet) error {
	if hasDynamicPayload(p.Type) {
		return nil
	}
	if len(p.Dynamic) >= packetAlignment {
		return errors.Wrapf(ErrCorruptPadding,
			"%s carries %d bytes past its static payload", p.Type, len(p.Dynamic))
	}
	for _, v := range p.Dynamic {
		if v != 0 {
			return errors.Wrapf(ErrCorruptPadding, "%s padding byte 0x%02X", p.Type, v)
		}
	}
	return nil
}

// EncodedLen returns the wire length of a packet with the given static and
// dynamic payload sizes, including header and alignment padding.
func EncodedLen(staticLen, dynamicLen int) int {
	n := packetHeaderLen + staticLen + dynamicLen
	if rem := n % packetAlignment; rem != 0 {
		n += packetAlignment - rem
	}
	return n
}

// AppendPacket encodes one packet onto dst in the firmware's wire framing.
// static must be exactly StaticLength(ptype) bytes; dynamic may be nil. This
// is the same encoder used for host-injected packets, so the output is
// byte-identical to firmware-originated framing.
func AppendPacket(dst []byte, ptype PacketType, usCounter uint32, static, dynamic []byte) ([]byte, error) {
	staticLen, known := StaticLength(ptype)
	if !known {
		return dst, errors.Wrapf(ErrInvalidPacket, "discriminant 0x%02X", uint8(ptype))
	}
	if len(static) != staticLen {
		return dst, errors.Errorf("%s static payload must be %d bytes, got %d",
			ptype, staticLen, len(static))
	}

	total := EncodedLen(staticLen, len(dynamic))
	if total > MaxPacketLen {
		return dst, errors.Errorf("%s packet of %d bytes exceeds the %d byte limit",
			ptype, total, MaxPacketLen)
	}

	dst = append(dst, uint8(total/packetAlignment), uint8(ptype), 0, 0)
	dst = binary.LittleEndian.AppendUint32(dst, usCounter)
	dst = append(dst, static...)
	dst = append(dst, dynamic...)
	for pad := total - packetHeaderLen - staticLen - len(dynamic); pad > 0; pad-- {
		dst = append(dst, 0)
	}
	return dst, nil
}

// appendEncoded re-encodes a parsed Packet view. Used when a host-built
// packet has to be placed into a FIFO buffer.
func appendEncoded(dst []byte, p *Packet) ([]byte, error) {
	return AppendPacket(dst, p.Type, p.UsCounter, p.Static, p.Dynamic)
}

// NewTagReadPacket builds a host-owned TagRead packet; the EPC is stored in
// the dynamic payload behind a PC word describing its length.
func NewTagReadPacket(usCounter uint32, d TagReadData, epc []byte) Packet {
	pc := uint16(len(epc)/2) << 11
	dynamic := binary.LittleEndian.AppendUint16(make([]byte, 0, 2+len(epc)), pc)
	dynamic = append(dynamic, epc...)
	return Packet{
		Type:      PacketTagRead,
		UsCounter: usCounter,
		Static:    d.appendStatic(nil),
		Dynamic:   dynamic,
	}
}

// NewInventoryRoundSummaryPacket builds a host-owned InventoryRoundSummary
// packet.
func NewInventoryRoundSummaryPacket(usCounter uint32, d InventoryRoundSummaryData) Packet {
	return Packet{
		Type:      PacketInventoryRoundSum,
		UsCounter: usCounter,
		Static:    d.appendStatic(nil),
	}
}

// NewContinuousInventorySummaryPacket builds the host-synthesized summary
// packet published when continuous inventory stops.
func NewContinuousInventorySummaryPacket(usCounter uint32, d ContinuousInventorySummaryData) Packet {
	return Packet{
		Type:      PacketContinuousInvSummary,
		UsCounter: usCounter,
		Static:    d.appendStatic(nil),
	}
}

// NewHelloWorldPacket builds the packet the device emits once after reset.
func NewHelloWorldPacket(usCounter uint32, d HelloWorldData) Packet {
	return Packet{
		Type:      PacketHelloWorld,
		UsCounter: usCounter,
		Static:    d.appendStatic(nil),
	}
}

// NewCustomPacket builds a host-owned Custom packet wrapping payload.
func NewCustomPacket(usCounter uint32, payload []byte) Packet {
	return Packet{
		Type:      PacketCustom,
		UsCounter: usCounter,
		Static:    CustomData{PayloadLen: uint32(len(payload))}.appendStatic(nil),
		Dynamic:   payload,
	}
}

// NewEx10ResultPacket builds the host-synthesized error packet that precedes
// an error-tagged continuous inventory summary.
func NewEx10ResultPacket(usCounter uint32, err error) Packet {
	d := Ex10ResultData{}

	var de *DeviceError
	var se *SDKError
	if errors.As(err, &de) {
		d.Module = de.Module
		d.FromDevice = true
		d.Code = uint8(de.Code)
		d.OpID = uint8(de.Status.OpID)
		d.OpError = uint8(de.Status.Error)
	} else if errors.As(err, &se) {
		d.Module = se.Module
		d.Code = uint8(se.Code)
	}

	return Packet{
		Type:      PacketEx10Result,
		UsCounter: usCounter,
		Static:    d.appendStatic(nil),
	}
}
