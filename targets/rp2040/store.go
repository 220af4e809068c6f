//go:build rp2040

package main

import (
	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/at24cx"

	"wdtclock/config"
)

// eepromStore places the clock snapshot at a fixed offset in an AT24Cx
type eepromStore struct {
	dev  at24cx.Device
	base int64
}

func newEEPROMStore(bus drivers.I2C, board config.BoardConfig) *eepromStore {
	s := &eepromStore{
		dev:  at24cx.New(bus),
		base: board.EEPROMOffset,
	}
	s.dev.Address = board.EEPROMAddress
	s.dev.Configure(at24cx.Config{})
	return s
}

func (s *eepromStore) ReadAt(p []byte, off int64) (int, error) {
	return s.dev.ReadAt(p, s.base+off)
}

func (s *eepromStore) WriteAt(p []byte, off int64) (int, error) {
	return s.dev.WriteAt(p, s.base+off)
}
