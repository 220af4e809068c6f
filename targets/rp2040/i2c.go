//go:build rp2040

package main

import (
	"machine"
)

// InitI2C configures I2C0 on its default pins (SDA=GP4, SCL=GP5) for the
// display and the EEPROM, which share the bus
func InitI2C() (*machine.I2C, error) {
	bus := machine.I2C0
	err := bus.Configure(machine.I2CConfig{
		Frequency: 400 * machine.KHz,
	})
	if err != nil {
		return nil, err
	}
	return bus, nil
}
