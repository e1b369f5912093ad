//
// Copyright (C) 2023 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package gpiodriver

import (
	"context"
	"time"

	"github.com/edgexfoundry/go-mod-core-contracts/v2/clients/logger"
	"github.com/pkg/errors"
)

// Monitor is only available on Linux, where the GPIO character device lives.
type Monitor struct{}

// NewMonitor always fails off Linux.
func NewMonitor(logger.LoggingClient, string, uint32) (*Monitor, error) {
	return nil, errors.New("GPIO line monitoring requires linux")
}

func (m *Monitor) Run(context.Context, func(time.Time)) error {
	return errors.New("GPIO line monitoring requires linux")
}

func (m *Monitor) Close() error { return nil }
