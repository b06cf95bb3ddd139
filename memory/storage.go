package memory

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrUnmapped is returned when reading memory that no segment backs.
	ErrUnmapped = errors.New("address is not backed by any loaded segment")

	// ErrOutOfRange is returned when an access wraps around the end of the
	// 64-bit address space.
	ErrOutOfRange = errors.New("access wraps around the address space")
)

// A Storage keeps a sparse image of the inspected memory.
//
// The storage manages the data in units of 4 KiB, the size of a page. A unit
// only exists once a Write touches it, so a few tables can be placed
// anywhere in the 64-bit address space, including the recursively mapped
// region at its top. Reading a unit that does not exist fails with
// ErrUnmapped instead of returning zeros.
type Storage struct {
	sync.RWMutex

	unitSize uint64
	data     map[uint64][]byte
}

// NewStorage creates an empty storage.
func NewStorage() *Storage {
	return &Storage{
		unitSize: 4096,
		data:     make(map[uint64][]byte),
	}
}

func (s *Storage) parseAddress(addr uint64) (baseAddr, inUnitAddr uint64) {
	inUnitAddr = addr % s.unitSize
	baseAddr = addr - inUnitAddr

	return
}

func (s *Storage) checkRange(address, length uint64) error {
	if length > 0 && address+length-1 < address {
		return fmt.Errorf("%w: %#x + %#x", ErrOutOfRange, address, length)
	}

	return nil
}

// NumUnits returns the number of 4 KiB units that hold data.
func (s *Storage) NumUnits() int {
	s.RLock()
	defer s.RUnlock()

	return len(s.data)
}

// Mapped reports whether the unit containing addr holds data.
func (s *Storage) Mapped(addr uint64) bool {
	s.RLock()
	defer s.RUnlock()

	baseAddr, _ := s.parseAddress(addr)
	_, ok := s.data[baseAddr]

	return ok
}

// Read returns length bytes starting at address.
func (s *Storage) Read(address uint64, length uint64) ([]byte, error) {
	if err := s.checkRange(address, length); err != nil {
		return nil, err
	}

	s.RLock()
	defer s.RUnlock()

	res := make([]byte, length)
	currAddr := address
	dataOffset := uint64(0)

	for dataOffset < length {
		baseAddr, inUnitAddr := s.parseAddress(currAddr)

		unit, ok := s.data[baseAddr]
		if !ok {
			return nil, fmt.Errorf("%w: %#x", ErrUnmapped, currAddr)
		}

		lenToRead := min(length-dataOffset, s.unitSize-inUnitAddr)
		copy(res[dataOffset:dataOffset+lenToRead],
			unit[inUnitAddr:inUnitAddr+lenToRead])

		dataOffset += lenToRead
		currAddr += lenToRead
	}

	return res, nil
}

// Write stores data at address, creating the units it touches.
func (s *Storage) Write(address uint64, data []byte) error {
	if err := s.checkRange(address, uint64(len(data))); err != nil {
		return err
	}

	s.Lock()
	defer s.Unlock()

	currAddr := address
	dataOffset := uint64(0)

	for dataOffset < uint64(len(data)) {
		baseAddr, inUnitAddr := s.parseAddress(currAddr)

		unit, ok := s.data[baseAddr]
		if !ok {
			unit = make([]byte, s.unitSize)
			s.data[baseAddr] = unit
		}

		lenToWrite := min(uint64(len(data))-dataOffset, s.unitSize-inUnitAddr)
		copy(unit[inUnitAddr:inUnitAddr+lenToWrite],
			data[dataOffset:dataOffset+lenToWrite])

		dataOffset += lenToWrite
		currAddr += lenToWrite
	}

	return nil
}

// ReadUint64 returns the little-endian 8-byte value at addr.
func (s *Storage) ReadUint64(addr uint64) (uint64, error) {
	buf, err := s.Read(addr, 8)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint64(buf), nil
}

// WriteUint64 stores v at addr in little-endian order.
func (s *Storage) WriteUint64(addr uint64, v uint64) error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)

	return s.Write(addr, buf)
}
