// Package platform models the machine the virtual memory system runs on. It
// provides the services the VM system needs before and while paging is live:
// the RAM size, the end of the kernel image, the early page stealer and the
// physical memory itself.
package platform

import (
	"sync"

	"github.com/sarchlab/demandvm/mem/vm"
	"github.com/sarchlab/demandvm/memory"
)

// Platform is what the VM system consumes from the machine.
type Platform interface {
	// RAMSize returns the size of the physical memory in bytes.
	RAMSize() uint64

	// FirstFree returns the first physical address not used by the kernel
	// image or by early allocations. After it is called, StealMem fails:
	// the remaining RAM belongs to the frame table.
	FirstFree() uint64

	// StealMem takes npages contiguous pages from the unused RAM. It
	// returns the physical address of the first page, or 0 on failure.
	StealMem(npages uint64) uint64
}

// Machine is a simulated machine with a flat physical memory.
type Machine struct {
	lock       sync.Mutex
	ramSize    uint64
	firstPAddr uint64
	handedOver bool
	memory     *memory.Storage
}

// RAMSize returns the size of the physical memory.
func (m *Machine) RAMSize() uint64 {
	return m.ramSize
}

// Memory returns the storage that holds the bytes of the physical memory.
func (m *Machine) Memory() *memory.Storage {
	return m.memory
}

// StealMem bumps the first free address by npages pages.
func (m *Machine) StealMem(npages uint64) uint64 {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.handedOver || npages == 0 {
		return 0
	}

	size := npages * vm.PageSize
	if size/vm.PageSize != npages || m.firstPAddr+size > m.ramSize {
		return 0
	}

	paddr := m.firstPAddr
	m.firstPAddr += size

	return paddr
}

// FirstFree returns the first free physical address and hands the rest of the
// RAM over to the caller.
func (m *Machine) FirstFree() uint64 {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.handedOver = true

	return m.firstPAddr
}
