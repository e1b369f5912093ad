//
// Copyright (C) 2023 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package gpiodriver

import (
	"context"
	"os"
	"time"
	"unsafe"

	"github.com/edgexfoundry/go-mod-core-contracts/v2/clients/logger"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// pollIntervalMs bounds how long a blocked wait goes without checking for
// cancellation.
const pollIntervalMs = 100

// Monitor watches the reader chip's IRQ_N line through the Linux GPIO
// character device and invokes a callback on every asserted edge. IRQ_N is
// active low, so the interesting transition is the falling edge.
type Monitor struct {
	lc      logger.LoggingClient
	eventFd int
	line    uint32
}

// NewMonitor opens the GPIO chip device (such as /dev/gpiochip0) and requests
// falling-edge events on the given line offset.
func NewMonitor(lc logger.LoggingClient, chipPath string, line uint32) (*Monitor, error) {
	chip, err := os.OpenFile(chipPath, os.O_RDWR, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open GPIO chip %s", chipPath)
	}
	defer chip.Close()

	req := unix.GpioeventRequest{
		Lineoffset:  line,
		Handleflags: unix.GPIOHANDLE_REQUEST_INPUT,
		Eventflags:  unix.GPIOEVENT_REQUEST_FALLING_EDGE,
	}
	copy(req.Consumer_label[:], "ex10-irq-n")

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, chip.Fd(),
		uintptr(unix.GPIO_GET_LINEEVENT_IOCTL), uintptr(unsafe.Pointer(&req)))
	if errno != 0 {
		return nil, errors.Wrapf(errno, "failed to request line events for %s line %d", chipPath, line)
	}

	return &Monitor{lc: lc, eventFd: int(req.Fd), line: line}, nil
}

// Run blocks delivering edge events to onEdge until ctx is canceled. onEdge
// receives the kernel's event timestamp. Run always returns ctx.Err() on a
// clean shutdown.
func (m *Monitor) Run(ctx context.Context, onEdge func(timestamp time.Time)) error {
	fds := []unix.PollFd{{Fd: int32(m.eventFd), Events: unix.POLLIN}}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		fds[0].Revents = 0
		n, err := unix.Poll(fds, pollIntervalMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return errors.Wrap(err, "poll on GPIO event descriptor failed")
		}
		if n == 0 {
			continue
		}

		var ev unix.GpioeventData
		buf := (*[unsafe.Sizeof(ev)]byte)(unsafe.Pointer(&ev))[:]
		if _, err := unix.Read(m.eventFd, buf); err != nil {
			return errors.Wrap(err, "read of GPIO event data failed")
		}

		onEdge(time.Unix(0, int64(ev.Timestamp)))
	}
}

// Close releases the event line.
func (m *Monitor) Close() error {
	if err := unix.Close(m.eventFd); err != nil {
		return errors.Wrapf(err, "failed to close GPIO event descriptor for line %d", m.line)
	}
	return nil
}
