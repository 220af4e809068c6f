package core

// Supply voltage and die temperature are an optional input to calibration.
// The calibrator records them next to accepted estimates; it does not yet
// compensate for them.

// ADCChannelID identifies a logical ADC channel
type ADCChannelID uint8

// ADCValue is a raw ADC reading
type ADCValue uint16

// ADCDriver is the abstract ADC interface that core code uses.
type ADCDriver interface {
	// ReadRaw performs a one-shot sample from the given channel.
	ReadRaw(ch ADCChannelID) (ADCValue, error)
}

// Environment is one smoothed supply/temperature reading
type Environment struct {
	VccMillivolts uint32
	TempMilliC    int32
}

// EnvironmentSource returns the latest reading, or false when none is available
type EnvironmentSource func() (Environment, bool)

// Smoother is a 64-sample exponential moving average kept as a running sum,
// so no sample history is stored
type Smoother struct {
	sum uint32
}

const smootherShift = 6 // 64 samples

// Add folds one raw sample in. The first sample seeds the whole window.
func (s *Smoother) Add(v ADCValue) {
	if s.sum == 0 {
		s.sum = uint32(v) << smootherShift
		return
	}
	s.sum -= s.sum >> smootherShift
	s.sum += uint32(v)
}

// Value returns the averaged sample
func (s *Smoother) Value() ADCValue {
	return ADCValue(s.sum >> smootherShift)
}

// Sum returns the running sum, 64 times the average, for extra resolution
func (s *Smoother) Sum() uint32 {
	return s.sum
}

// Reset forgets all samples
func (s *Smoother) Reset() {
	s.sum = 0
}

// SensorMonitor samples supply and temperature channels through an ADCDriver
type SensorMonitor struct {
	adc         ADCDriver
	vccChannel  ADCChannelID
	tempChannel ADCChannelID
	vcc         Smoother
	temp        Smoother

	// ToMillivolts and ToMilliC convert smoothed raw values; board specific
	ToMillivolts func(raw ADCValue) uint32
	ToMilliC     func(raw ADCValue, vccMillivolts uint32) int32
}

// NewSensorMonitor creates a monitor over two ADC channels
func NewSensorMonitor(adc ADCDriver, vccChannel, tempChannel ADCChannelID) *SensorMonitor {
	return &SensorMonitor{
		adc:         adc,
		vccChannel:  vccChannel,
		tempChannel: tempChannel,
	}
}

// Sample reads both channels once. A failed read leaves that average untouched.
func (m *SensorMonitor) Sample() error {
	v, err := m.adc.ReadRaw(m.vccChannel)
	if err != nil {
		return err
	}
	m.vcc.Add(v)

	t, err := m.adc.ReadRaw(m.tempChannel)
	if err != nil {
		return err
	}
	m.temp.Add(t)
	return nil
}

// Environment converts the current averages. It satisfies EnvironmentSource.
func (m *SensorMonitor) Environment() (Environment, bool) {
	if m.vcc.Sum() == 0 || m.ToMillivolts == nil || m.ToMilliC == nil {
		return Environment{}, false
	}
	vcc := m.ToMillivolts(m.vcc.Value())
	return Environment{
		VccMillivolts: vcc,
		TempMilliC:    m.ToMilliC(m.temp.Value(), vcc),
	}, true
}
