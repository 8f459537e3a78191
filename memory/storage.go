// Package memory provides the byte storage that backs simulated physical RAM.
package memory

import (
	"errors"
	"sync"
)

// ErrOutOfRange is returned when an access reaches beyond the capacity of the
// storage.
var ErrOutOfRange = errors.New("accessing physical address beyond the storage capacity")

// A Storage keeps the data of the simulated machine.
//
// The storage manages its data in units of one page. For the units that are
// not touched by Read, Write, or Copy, no memory is allocated, so a machine
// with a large RAM only costs what the workload actually touches.
type Storage struct {
	sync.Mutex
	unitSize uint64
	capacity uint64
	data     map[uint64][]byte
}

// NewStorage creates a storage object with the specified capacity.
func NewStorage(capacity uint64) *Storage {
	storage := new(Storage)

	storage.unitSize = 4096
	storage.capacity = capacity
	storage.data = make(map[uint64][]byte)

	return storage
}

// Capacity returns the number of bytes the storage can hold.
func (s *Storage) Capacity() uint64 {
	return s.capacity
}

// NumAllocatedUnits returns how many units have been materialized.
func (s *Storage) NumAllocatedUnits() int {
	s.Lock()
	defer s.Unlock()

	return len(s.data)
}

func (s *Storage) mustBeInRange(address, length uint64) error {
	if address >= s.capacity || length > s.capacity-address {
		return ErrOutOfRange
	}

	return nil
}

// createOrGetStorageUnit retrieves a storage unit if the unit has been created
// before. Otherwise it initializes a storage unit in the storage object.
func (s *Storage) createOrGetStorageUnit(address uint64) []byte {
	baseAddr, _ := s.parseAddress(address)

	unit, ok := s.data[baseAddr]
	if !ok {
		unit = make([]byte, s.unitSize)
		s.data[baseAddr] = unit
	}

	return unit
}

func (s *Storage) parseAddress(addr uint64) (baseAddr, inUnitAddr uint64) {
	inUnitAddr = addr % s.unitSize
	baseAddr = addr - inUnitAddr

	return
}

func (s *Storage) lenInUnit(currAddr, lenLeft uint64) uint64 {
	baseAddr, _ := s.parseAddress(currAddr)
	lenLeftInUnit := baseAddr + s.unitSize - currAddr

	if lenLeft < lenLeftInUnit {
		return lenLeft
	}

	return lenLeftInUnit
}

// Read returns a copy of length bytes starting at address.
func (s *Storage) Read(address uint64, length uint64) ([]byte, error) {
	if err := s.mustBeInRange(address, length); err != nil {
		return nil, err
	}

	s.Lock()
	defer s.Unlock()

	res := make([]byte, length)
	s.read(address, res)

	return res, nil
}

func (s *Storage) read(address uint64, res []byte) {
	currAddr := address
	dataOffset := uint64(0)
	length := uint64(len(res))

	for dataOffset < length {
		_, inUnitAddr := s.parseAddress(currAddr)
		lenToRead := s.lenInUnit(currAddr, length-dataOffset)

		unit, ok := s.data[currAddr-inUnitAddr]
		if ok {
			copy(res[dataOffset:dataOffset+lenToRead],
				unit[inUnitAddr:inUnitAddr+lenToRead])
		} else {
			clear(res[dataOffset : dataOffset+lenToRead])
		}

		dataOffset += lenToRead
		currAddr += lenToRead
	}
}

// Write stores data starting at address.
func (s *Storage) Write(address uint64, data []byte) error {
	if err := s.mustBeInRange(address, uint64(len(data))); err != nil {
		return err
	}

	s.Lock()
	defer s.Unlock()

	s.write(address, data)

	return nil
}

func (s *Storage) write(address uint64, data []byte) {
	currAddr := address
	dataOffset := uint64(0)

	for dataOffset < uint64(len(data)) {
		unit := s.createOrGetStorageUnit(currAddr)
		_, inUnitAddr := s.parseAddress(currAddr)
		lenToWrite := s.lenInUnit(currAddr, uint64(len(data))-dataOffset)

		copy(unit[inUnitAddr:inUnitAddr+lenToWrite],
			data[dataOffset:dataOffset+lenToWrite])
		dataOffset += lenToWrite
		currAddr += lenToWrite
	}
}

// Zero fills length bytes starting at address with zeros. Whole units that
// become zero are released.
func (s *Storage) Zero(address uint64, length uint64) error {
	if err := s.mustBeInRange(address, length); err != nil {
		return err
	}

	s.Lock()
	defer s.Unlock()

	currAddr := address
	lenLeft := length

	for lenLeft > 0 {
		baseAddr, inUnitAddr := s.parseAddress(currAddr)
		lenToZero := s.lenInUnit(currAddr, lenLeft)

		if inUnitAddr == 0 && lenToZero == s.unitSize {
			delete(s.data, baseAddr)
		} else if unit, ok := s.data[baseAddr]; ok {
			clear(unit[inUnitAddr : inUnitAddr+lenToZero])
		}

		lenLeft -= lenToZero
		currAddr += lenToZero
	}

	return nil
}

// Copy moves length bytes from src to dst. Overlapping ranges are handled as
// memmove does.
func (s *Storage) Copy(dst, src, length uint64) error {
	if err := s.mustBeInRange(src, length); err != nil {
		return err
	}

	if err := s.mustBeInRange(dst, length); err != nil {
		return err
	}

	s.Lock()
	defer s.Unlock()

	buf := make([]byte, length)
	s.read(src, buf)
	s.write(dst, buf)

	return nil
}
