//
// Copyright (C) 2023 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package ex10

import (
	"fmt"

	"github.com/pkg/errors"
)

// Module identifies which layer of the SDK produced an error.
type Module uint8

const (
	ModuleUndefined Module = iota
	ModuleDevice
	ModuleCommandTransactor
	ModuleCommands
	ModuleProtocol
	ModuleOps
	ModuleRfPower
	ModuleInventory
	ModuleReader
	ModuleFifoBufferList
	ModuleRegion
)

// DeviceResultCode classifies failures reported by the device itself.
type DeviceResultCode uint8

const (
	DeviceSuccess DeviceResultCode = iota
	DeviceErrorCommandsNoResponse
	DeviceErrorCommandsWithResponse
	DeviceErrorOps
	DeviceErrorOpsTimeout
)

// SdkResultCode classifies failures detected on the host side.
type SdkResultCode uint8

const (
	SdkSuccess SdkResultCode = iota
	SdkErrorBadParamValue
	SdkErrorBadParamLength
	SdkErrorBadParamAlignment
	SdkErrorNullPointer
	SdkErrorTimeout
	SdkErrorAggBufferOverflow
	SdkErrorOpRunning
	SdkErrorInvalidState
	SdkEventFifoFull
	SdkNoFreeEventFifoBuffers
	SdkLmacOverload
	SdkInventoryInvalidParam
	SdkInventorySummaryReasonInvalid
	SdkInvalidEventFifoPacket
	SdkAboveThreshold
)

// OpID identifies a device operation issued via the Protocol layer.
type OpID uint8

const (
	OpIdle              OpID = 0xA0
	OpSetRfMode         OpID = 0xA4
	OpTxRampUp          OpID = 0xA5
	OpTxRampDown        OpID = 0xA6
	OpSendSelect        OpID = 0xAE
	OpStartInventoryRnd OpID = 0xB0
)

// OpErrorCode is the error field of the device's OpsStatus register.
type OpErrorCode uint8

const (
	OpErrorNone OpErrorCode = iota
	OpErrorUnknownOp
	OpErrorTimeout
	OpErrorInvalidTxState
)

// OpsStatus mirrors the device OpsStatus register contents captured when an
// operation fails or times out.
type OpsStatus struct {
	OpID  OpID
	Busy  bool
	Error OpErrorCode
}

// DeviceError is a chip-reported failure: a command with no/bad response, or
// an operation that finished with an error or never finished at all. It
// carries the op status so callers can identify the failing operation.
type DeviceError struct {
	Module Module
	Code   DeviceResultCode
	Status OpsStatus
}

func (e *DeviceError) Error() string {
	switch e.Code {
	case DeviceErrorOps, DeviceErrorOpsTimeout:
		return fmt.Sprintf("device error %d in module %d: op 0x%02X failed with error %d",
			e.Code, e.Module, e.Status.OpID, e.Status.Error)
	default:
		return fmt.Sprintf("device error %d in module %d", e.Code, e.Module)
	}
}

// SDKError is a host-detected failure: malformed packets, exhausted buffer
// pools, invalid parameters and the like.
type SDKError struct {
	Module Module
	Code   SdkResultCode
}

func (e *SDKError) Error() string {
	return fmt.Sprintf("sdk error %d in module %d", e.Code, e.Module)
}

func newDeviceError(m Module, code DeviceResultCode, status OpsStatus) error {
	return &DeviceError{Module: m, Code: code, Status: status}
}

func newSDKError(m Module, code SdkResultCode) error {
	return &SDKError{Module: m, Code: code}
}

// NewOpError builds the DeviceError a Protocol implementation should return
// when an operation completes with a non-zero error field.
func NewOpError(m Module, op OpID, opErr OpErrorCode) error {
	return newDeviceError(m, DeviceErrorOps, OpsStatus{OpID: op, Error: opErr})
}

// NewOpTimeout builds the DeviceError a Protocol implementation should return
// when waiting on an operation exceeds its deadline.
func NewOpTimeout(m Module, op OpID) error {
	return newDeviceError(m, DeviceErrorOpsTimeout, OpsStatus{OpID: op, Busy: true, Error: OpErrorTimeout})
}

// isSelectTxRaceError reports whether err is the transient failure produced
// when the device ramps itself down between the host's CW check and the
// select that precedes an inventory round. The round driver retries this
// case exactly once; see startInventory.
func isSelectTxRaceError(err error) bool {
	var de *DeviceError
	if !errors.As(err, &de) {
		return false
	}
	return de.Status.OpID == OpSendSelect && de.Status.Error == OpErrorInvalidTxState
}

// stopReasonForError converts a round-driver or summary-handling error into
// the stop reason reported in the synthesized ContinuousInventorySummary.
func stopReasonForError(err error) StopReason {
	var de *DeviceError
	if errors.As(err, &de) {
		switch de.Code {
		case DeviceErrorCommandsNoResponse, DeviceErrorCommandsWithResponse:
			return SRDeviceCommandError
		case DeviceErrorOps:
			return SROpError
		case DeviceErrorOpsTimeout:
			return SRSdkTimeoutError
		}
		return SRReasonUnknown
	}

	var se *SDKError
	if errors.As(err, &se) {
		switch se.Code {
		case SdkErrorAggBufferOverflow:
			return SRDeviceAggregateBufferOverflow
		case SdkAboveThreshold:
			return SRDeviceRampCallbackError
		case SdkEventFifoFull:
			return SRDeviceEventFifoFull
		case SdkInventoryInvalidParam:
			return SRDeviceInventoryInvalidParam
		case SdkLmacOverload:
			return SRDeviceLmacOverload
		case SdkInventorySummaryReasonInvalid:
			return SRDeviceInventorySummaryReasonInvalid
		}
		return SRReasonUnknown
	}

	return SRReasonUnknown
}

// lastOpDetails extracts the failing op id and error code for the summary
// packet. For host-side errors the SDK result code is reported in the error
// field so the client can distinguish stop causes without another channel.
func lastOpDetails(err error) (opID uint8, opErr uint8) {
	var de *DeviceError
	if errors.As(err, &de) {
		return uint8(de.Status.OpID), uint8(de.Status.Error)
	}

	var se *SDKError
	if errors.As(err, &se) {
		return 0, uint8(se.Code)
	}
	return 0, 0
}
