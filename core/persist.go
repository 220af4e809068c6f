package core

import (
	"encoding/binary"
	"errors"
	"io"
)

// Persisted layout: little-endian, fixed offsets
const (
	SnapshotEpochOffset       = 0
	SnapshotCalibrationOffset = 4
	SnapshotSize              = 8
)

var (
	ErrNoStore    = errors.New("no snapshot store configured")
	ErrShortRead  = errors.New("short snapshot read")
	ErrShortWrite = errors.New("short snapshot write")
)

// Store is the byte-addressed medium holding the snapshot (EEPROM, flash page, file)
type Store interface {
	io.ReaderAt
	io.WriterAt
}

// Snapshot is the only clock state that survives a reset
type Snapshot struct {
	Epoch              Epoch
	MicrosPerInterrupt uint32
}

// Sanitize replaces an implausible epoch or calibration with defaults,
// each independently
func (s Snapshot) Sanitize(cfg Config) Snapshot {
	if uint32(s.Epoch) < cfg.EpochFloor {
		s.Epoch = Epoch(cfg.EpochFloor)
	}
	if !cfg.InBand(uint64(s.MicrosPerInterrupt)) {
		s.MicrosPerInterrupt = cfg.NominalMicros
	}
	return s
}

// LoadSnapshot reads and sanitizes the persisted snapshot. On a read error
// it still returns usable defaults along with the error.
func LoadSnapshot(store Store, cfg Config) (Snapshot, error) {
	if store == nil {
		return Snapshot{}.Sanitize(cfg), ErrNoStore
	}

	var buf [SnapshotSize]byte
	n, err := store.ReadAt(buf[:], SnapshotEpochOffset)
	if n < len(buf) {
		if err == nil {
			err = ErrShortRead
		}
		return Snapshot{}.Sanitize(cfg), err
	}

	s := Snapshot{
		Epoch:              Epoch(binary.LittleEndian.Uint32(buf[SnapshotEpochOffset:])),
		MicrosPerInterrupt: binary.LittleEndian.Uint32(buf[SnapshotCalibrationOffset:]),
	}
	return s.Sanitize(cfg), nil
}

// SaveSnapshot writes both fields in one store write
func SaveSnapshot(store Store, s Snapshot) error {
	if store == nil {
		return ErrNoStore
	}

	var buf [SnapshotSize]byte
	binary.LittleEndian.PutUint32(buf[SnapshotEpochOffset:], uint32(s.Epoch))
	binary.LittleEndian.PutUint32(buf[SnapshotCalibrationOffset:], s.MicrosPerInterrupt)

	n, err := store.WriteAt(buf[:], SnapshotEpochOffset)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return ErrShortWrite
	}
	return nil
}

// MemoryStore is a RAM-backed Store for hosts and tests
type MemoryStore struct {
	buf []byte
}

// NewMemoryStore creates a zero-filled store of the given size
func NewMemoryStore(size int) *MemoryStore {
	return &MemoryStore{buf: make([]byte, size)}
}

func (m *MemoryStore) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *MemoryStore) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(m.buf)) {
		return 0, ErrShortWrite
	}
	n := copy(m.buf[off:], p)
	if n < len(p) {
		return n, ErrShortWrite
	}
	return n, nil
}

// Bytes exposes the backing array
func (m *MemoryStore) Bytes() []byte {
	return m.buf
}
