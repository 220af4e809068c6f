//go:build rp2040

package main

import (
	"device/rp"
	"errors"
	"machine"

	"wdtclock/core"
)

const (
	// On a Pico, GPIO29/ADC3 reads VSYS through a 1:3 divider
	vsysChannel core.ADCChannelID = 3
	tempChannel core.ADCChannelID = 4

	adcRefMilliVolt = 3300
	adcMax          = 4095
)

// rpAdcDriver implements core.ADCDriver for the supply and die temperature
type rpAdcDriver struct {
	vsys machine.ADC
}

func newRPAdcDriver() *rpAdcDriver {
	machine.InitADC()
	d := &rpAdcDriver{vsys: machine.ADC{Pin: machine.ADC3}}
	d.vsys.Configure(machine.ADCConfig{})
	return d
}

// rawInternalTemp returns the 12-bit raw ADC value from the internal temp sensor
func rawInternalTemp() uint16 {
	if rp.ADC.CS.Get()&rp.ADC_CS_EN == 0 {
		machine.InitADC()
	}

	rp.ADC.CS.SetBits(rp.ADC_CS_TS_EN)
	rp.ADC.CS.ReplaceBits(
		uint32(tempChannel)<<rp.ADC_CS_AINSEL_Pos,
		rp.ADC_CS_AINSEL_Msk,
		0,
	)
	rp.ADC.CS.SetBits(rp.ADC_CS_START_ONCE)
	for !rp.ADC.CS.HasBits(rp.ADC_CS_READY) {
	}

	return uint16(rp.ADC.RESULT.Get())
}

func (d *rpAdcDriver) ReadRaw(ch core.ADCChannelID) (core.ADCValue, error) {
	switch ch {
	case tempChannel:
		return core.ADCValue(rawInternalTemp()), nil
	case vsysChannel:
		// machine.ADC scales to 16 bits
		return core.ADCValue(d.vsys.Get() >> 4), nil
	default:
		return 0, errors.New("unsupported ADC channel")
	}
}

func rawToMillivolts(raw core.ADCValue) uint32 {
	return uint32(raw) * adcRefMilliVolt / adcMax
}

// newSensorMonitor wires the RP2040 conversions: VSYS is divided by three
// and the sensor reads 706mV at 27C, falling 1.721mV per degree
func newSensorMonitor() *core.SensorMonitor {
	m := core.NewSensorMonitor(newRPAdcDriver(), vsysChannel, tempChannel)
	m.ToMillivolts = func(raw core.ADCValue) uint32 {
		return rawToMillivolts(raw) * 3
	}
	m.ToMilliC = func(raw core.ADCValue, _ uint32) int32 {
		mv := int32(rawToMillivolts(raw))
		return 27000 - (mv-706)*100000/1721*10
	}
	return m
}
