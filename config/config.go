// Package config loads the clock configuration embedded in firmware images
// or passed to host tools.
package config

import (
	"encoding/json"
	"errors"

	"wdtclock/core"
)

var (
	ErrToleranceTooWide = errors.New("tolerance_us must be smaller than nominal_us")
	ErrHighWaterTooLow  = errors.New("high_water_us must be at least one second")
	ErrHighWaterTooHigh = errors.New("high_water_us must be at most one hour and leave room for one tick")
)

// BoardConfig holds the peripheral wiring of a clock board
type BoardConfig struct {
	DisplayAddress uint16 `json:"display_address"` // SSD1306 I2C address
	DisplayWidth   int16  `json:"display_width"`
	DisplayHeight  int16  `json:"display_height"`
	EEPROMAddress  uint16 `json:"eeprom_address"` // AT24Cx I2C address
	EEPROMOffset   int64  `json:"eeprom_offset"`  // snapshot location inside the EEPROM
	TickMillis     uint32 `json:"tick_ms"`        // nominal tick period of the board timer
	Debug          bool   `json:"debug"`
}

// ClockConfig is the full configuration file
type ClockConfig struct {
	Clock core.Config `json:"clock"`
	Board BoardConfig `json:"board"`
}

// LoadConfig parses a JSON configuration and fills in defaults
func LoadConfig(jsonData []byte) (*ClockConfig, error) {
	// Absent fields keep their defaults; explicit zeros are handled below
	config := ClockConfig{Clock: core.DefaultConfig()}

	err := json.Unmarshal(jsonData, &config)
	if err != nil {
		return nil, err
	}

	applyDefaults(&config)

	if err := Validate(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// applyDefaults replaces zero values that cannot be meant literally
func applyDefaults(config *ClockConfig) {
	def := core.DefaultConfig()
	c := &config.Clock

	if c.NominalMicros == 0 {
		c.NominalMicros = def.NominalMicros
	}
	if c.ToleranceMicros == 0 {
		// Keep the default +/-2% relative to whatever nominal was chosen
		c.ToleranceMicros = c.NominalMicros / 50
	}
	if c.MinSamples == 0 {
		c.MinSamples = def.MinSamples
	}
	if c.HighWaterMicros == 0 {
		c.HighWaterMicros = def.HighWaterMicros
	}
	if c.EpochFloor == 0 {
		c.EpochFloor = def.EpochFloor
	}
	if c.TuneInterval == 0 {
		c.TuneInterval = def.TuneInterval
	}
	// An explicit zero CheckpointInterval disables checkpoints

	b := &config.Board
	if b.DisplayAddress == 0 {
		b.DisplayAddress = 0x3C
	}
	if b.DisplayWidth == 0 {
		b.DisplayWidth = 128
	}
	if b.DisplayHeight == 0 {
		b.DisplayHeight = 32
	}
	if b.EEPROMAddress == 0 {
		b.EEPROMAddress = 0x50
	}
	if b.TickMillis == 0 {
		b.TickMillis = c.NominalMicros / 1000
	}
}

// Validate rejects configurations the clock cannot run with
func Validate(config *ClockConfig) error {
	c := config.Clock
	if c.ToleranceMicros >= c.NominalMicros {
		return ErrToleranceTooWide
	}
	if c.HighWaterMicros < core.MicrosPerSecond {
		return ErrHighWaterTooLow
	}
	if c.HighWaterMicros > core.MaxHighWaterMicros {
		return ErrHighWaterTooHigh
	}
	// The tick that crosses the mark must still fit in 32 bits
	if uint64(c.HighWaterMicros)+uint64(c.NominalMicros)+uint64(c.ToleranceMicros) > 0xFFFFFFFF {
		return ErrHighWaterTooHigh
	}
	return nil
}

// DefaultConfig returns the configuration used when no file is present
func DefaultConfig() *ClockConfig {
	config := &ClockConfig{Clock: core.DefaultConfig()}
	applyDefaults(config)
	return config
}
