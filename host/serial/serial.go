// Package serial opens the USB serial link to a clock board.
package serial

import (
	"io"
	"time"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"
	"github.com/tarm/serial"
)

var log = logger.GetGoI2PLogger()

// Port is a serial connection. Tests substitute an in-memory pipe.
type Port interface {
	io.ReadWriteCloser

	// Flush discards anything buffered but not yet read or written
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string

	// Baud rate; USB CDC ignores it but the OS driver still wants one
	Baud int

	// ReadTimeout bounds each read so the reader can notice Close
	ReadTimeout time.Duration
}

// DefaultConfig returns the settings used for the board's USB CDC port
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 100 * time.Millisecond,
	}
}

// NativePort wraps a tarm/serial port
type NativePort struct {
	port *serial.Port
	cfg  *Config
}

// Open opens a native serial port
func Open(cfg *Config) (Port, error) {
	if cfg == nil {
		return nil, oops.Errorf("serial config cannot be nil")
	}
	if cfg.Device == "" {
		return nil, oops.Errorf("no serial device given")
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, oops.Wrapf(err, "failed to open serial port %s", cfg.Device)
	}

	log.WithFields(logger.Fields{
		"device": cfg.Device,
		"baud":   cfg.Baud,
	}).Debug("serial port opened")

	return &NativePort{port: port, cfg: cfg}, nil
}

func (p *NativePort) Read(b []byte) (int, error) {
	return p.port.Read(b)
}

func (p *NativePort) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

func (p *NativePort) Close() error {
	if p.port == nil {
		return nil
	}
	err := p.port.Close()
	p.port = nil
	return err
}

func (p *NativePort) Flush() error {
	if p.port == nil {
		return oops.Errorf("serial port %s is closed", p.cfg.Device)
	}
	return p.port.Flush()
}

// DiscardStale drops whatever the board sent before this host attached, so
// the first frame read belongs to this session. The port is closed on failure.
func DiscardStale(p Port) (Port, error) {
	if err := p.Flush(); err != nil {
		if cerr := p.Close(); cerr != nil {
			log.WithError(cerr).Debug("closing serial port after failed flush")
		}
		return nil, oops.Wrapf(err, "discarding stale serial input")
	}
	return p, nil
}
