//
// Copyright (C) 2023 Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

// Package config loads the service's TOML configuration.
package config

import (
	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
)

// ServiceInfo configures the HTTP surface and logging.
type ServiceInfo struct {
	Host     string
	Port     int
	LogLevel string
}

// ReaderInfo configures the inventory runs the service issues.
type ReaderInfo struct {
	Region      string
	Antenna     uint8
	RfMode      uint16
	TxPowerCdbm int16
	InitialQ    uint8
	Session     uint8
	DualTarget  bool
	SendSelects bool
}

// StopConditionsInfo bounds continuous inventory runs; zero means unbounded
// on that axis.
type StopConditionsInfo struct {
	MaxNumberOfRounds uint32
	MaxNumberOfTags   uint32
	MaxDurationUs     uint32
}

// HardwareInfo selects the event source: the simulator, or a real IRQ line.
type HardwareInfo struct {
	UseSimulator  bool
	TagPopulation int
	GpioChip      string
	IrqLine       uint32
}

// Config is the service's full configuration tree.
type Config struct {
	Service        ServiceInfo
	Reader         ReaderInfo
	StopConditions StopConditionsInfo
	Hardware       HardwareInfo
}

// Default returns the configuration used when no file is supplied: the
// simulator, ETSI lower, a dual-target session-0 run bounded at 25 rounds.
func Default() Config {
	return Config{
		Service: ServiceInfo{
			Host:     "0.0.0.0",
			Port:     48086,
			LogLevel: "INFO",
		},
		Reader: ReaderInfo{
			Region:      "ETSI_LOWER",
			Antenna:     1,
			RfMode:      13,
			TxPowerCdbm: 3000,
			InitialQ:    4,
			Session:     0,
			DualTarget:  true,
		},
		StopConditions: StopConditionsInfo{
			MaxNumberOfRounds: 25,
		},
		Hardware: HardwareInfo{
			UseSimulator:  true,
			TagPopulation: 20,
			GpioChip:      "/dev/gpiochip0",
			IrqLine:       10,
		},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	tree, err := toml.LoadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "failed to load config file %s", path)
	}
	if err := tree.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrapf(err, "failed to parse config file %s", path)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the reader would refuse at run time.
func (c *Config) Validate() error {
	if c.Service.Port <= 0 || c.Service.Port > 65535 {
		return errors.Errorf("invalid service port %d", c.Service.Port)
	}
	if c.Reader.Session > 3 {
		return errors.Errorf("invalid Gen2 session %d", c.Reader.Session)
	}
	sc := c.StopConditions
	if sc.MaxNumberOfRounds == 0 && sc.MaxNumberOfTags == 0 && sc.MaxDurationUs == 0 {
		return errors.New("at least one stop condition must be non-zero")
	}
	if !c.Hardware.UseSimulator && c.Hardware.GpioChip == "" {
		return errors.New("hardware mode requires a GPIO chip device path")
	}
	return nil
}
