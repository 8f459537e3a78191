// Package vmsys wires the frame table, the page table and the address space
// manager into the virtual memory system of a machine.
package vmsys

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sarchlab/demandvm/mem/vm"
	"github.com/sarchlab/demandvm/mem/vm/addrspace"
	"github.com/sarchlab/demandvm/mem/vm/frametable"
	"github.com/sarchlab/demandvm/mem/vm/mmu"
	"github.com/sarchlab/demandvm/mem/vm/tlb"
	"github.com/sarchlab/demandvm/memory"
	"github.com/sarchlab/demandvm/platform"
)

var (
	// ErrAlreadyInitialized is returned by a second Init.
	ErrAlreadyInitialized = errors.New("vm system already initialized")

	// ErrAddressSpacesLive is returned when shutting down while address
	// spaces still hold frames.
	ErrAddressSpacesLive = errors.New("address spaces still live")
)

// bucketHeadSize is what one bucket head of the page table costs in the
// kernel heap.
const bucketHeadSize = 4

// System is the virtual memory system of one machine.
type System struct {
	Platform  platform.Platform
	Memory    *memory.Storage
	PageTable *vm.HashedPageTable
	Frames    *frametable.FrameTable
	Manager   *addrspace.Manager

	lock  sync.Mutex
	cores []*mmu.Comp
}

// Bootstrap brings up the VM system. The page table is created first, with
// two buckets per frame, and its storage is stolen from the early allocator.
// The frame table is bootstrapped next and takes over the rest of the RAM.
func Bootstrap(p platform.Platform, mem *memory.Storage) (*System, error) {
	numFrames := p.RAMSize() / vm.PageSize
	numBuckets := 2 * numFrames

	hptPages := vm.AlignUp(numBuckets*bucketHeadSize) / vm.PageSize
	if p.StealMem(hptPages) == 0 {
		return nil, fmt.Errorf("allocating page table: %w", vm.ErrOutOfMemory)
	}

	pageTable := vm.NewHashedPageTable(int(numBuckets))

	frames := frametable.New(p, mem)
	if err := frames.Bootstrap(); err != nil {
		return nil, err
	}

	s := &System{
		Platform:  p,
		Memory:    mem,
		PageTable: pageTable,
		Frames:    frames,
		Manager:   addrspace.NewManager(pageTable, frames, mem),
	}

	return s, nil
}

// NewCore creates the MMU of a new core with a TLB of tlbEntries slots.
func (s *System) NewCore(name string, tlbEntries int) *mmu.Comp {
	s.lock.Lock()
	defer s.lock.Unlock()

	t := tlb.MakeBuilder().
		WithNumEntries(tlbEntries).
		WithSeed(uint64(len(s.cores)) + 1).
		Build(name + ".TLB")

	core := mmu.MakeBuilder().
		WithPageTable(s.PageTable).
		WithFrameAllocator(s.Frames).
		WithMemory(s.Memory).
		WithTLB(t).
		Build(name)

	s.cores = append(s.cores, core)

	return core
}

// Cores returns the MMUs created so far.
func (s *System) Cores() []*mmu.Comp {
	s.lock.Lock()
	defer s.lock.Unlock()

	return append([]*mmu.Comp(nil), s.cores...)
}

// Shutdown deactivates every core. It fails if any address space is still
// live or if the page table still maps pages.
func (s *System) Shutdown() error {
	if n := s.Manager.NumLive(); n > 0 {
		return fmt.Errorf("%d remaining: %w", n, ErrAddressSpacesLive)
	}

	for _, core := range s.Cores() {
		core.Deactivate()
	}

	if n := s.PageTable.Len(); n > 0 {
		return fmt.Errorf("%d page table entries remaining: %w",
			n, ErrAddressSpacesLive)
	}

	return nil
}

var (
	globalLock sync.Mutex
	global     *System
)

// Init bootstraps the system-wide VM system.
func Init(p platform.Platform, mem *memory.Storage) error {
	globalLock.Lock()
	defer globalLock.Unlock()

	if global != nil {
		return ErrAlreadyInitialized
	}

	s, err := Bootstrap(p, mem)
	if err != nil {
		return err
	}

	global = s

	return nil
}

// Get returns the system-wide VM system, or nil before Init.
func Get() *System {
	globalLock.Lock()
	defer globalLock.Unlock()

	return global
}

// Teardown shuts down the system-wide VM system so that Init can be called
// again.
func Teardown() error {
	globalLock.Lock()
	defer globalLock.Unlock()

	if global == nil {
		return nil
	}

	if err := global.Shutdown(); err != nil {
		return err
	}

	global = nil

	return nil
}
