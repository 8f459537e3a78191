// Package mmu provides the page fault handler of a processor core.
package mmu

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sarchlab/demandvm/mem/vm"
	"github.com/sarchlab/demandvm/mem/vm/addrspace"
	"github.com/sarchlab/demandvm/mem/vm/tlb"
	"github.com/sarchlab/demandvm/memory"
	"github.com/sarchlab/demandvm/sim/hooking"
)

// Hook positions of the fault handler. The item is a vm.FaultRecord.
var (
	HookPosFaultStart = &hooking.HookPos{Name: "FaultStart"}
	HookPosFaultEnd   = &hooking.HookPos{Name: "FaultEnd"}
)

// Stats counts what the fault handler has done.
type Stats struct {
	Faults      uint64
	Allocations uint64
	TLBLoads    uint64
	Failures    uint64
}

// Comp is the MMU of one core. It owns the core's TLB and resolves the
// misses of the address space that is active on the core.
type Comp struct {
	hooking.HookableBase

	name      string
	pageTable vm.PageTable
	frames    vm.FrameAllocator
	memory    *memory.Storage
	tlb       tlb.TLB

	lock    sync.Mutex
	current *addrspace.AddressSpace

	numFaults      atomic.Uint64
	numAllocations atomic.Uint64
	numTLBLoads    atomic.Uint64
	numFailures    atomic.Uint64
}

// Name returns the name of the MMU.
func (c *Comp) Name() string {
	return c.name
}

// TLB returns the TLB of the core.
func (c *Comp) TLB() tlb.TLB {
	return c.tlb
}

// Current returns the active address space, or nil if there is none.
func (c *Comp) Current() *addrspace.AddressSpace {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.current
}

// Activate switches the core to as and flushes the TLB. Activating nil
// keeps the prior address space, as a kernel thread does.
func (c *Comp) Activate(as *addrspace.AddressSpace) {
	if as == nil {
		return
	}

	c.lock.Lock()
	c.current = as
	c.lock.Unlock()

	c.tlb.InvalidateAll()
}

// Deactivate leaves the active address space and flushes the TLB.
func (c *Comp) Deactivate() {
	c.lock.Lock()
	hadAS := c.current != nil
	c.current = nil
	c.lock.Unlock()

	if hadAS {
		c.tlb.InvalidateAll()
	}
}

// HandleFault resolves a translation miss at vaddr. The page gets a frame on
// first touch and its translation is loaded into the TLB.
func (c *Comp) HandleFault(kind vm.FaultKind, vaddr uint64) error {
	_, err := c.handleFault(kind, vaddr)
	return err
}

func (c *Comp) handleFault(kind vm.FaultKind, vaddr uint64) (vm.PTE, error) {
	as := c.Current()

	rec := vm.FaultRecord{Kind: kind, VAddr: vaddr}
	if as != nil {
		rec.ASID = as.ID()
		rec.HasASID = true
	}

	c.numFaults.Add(1)
	c.InvokeHook(hooking.HookCtx{
		Domain: c,
		Pos:    HookPosFaultStart,
		Item:   rec,
	})

	pte, err := c.resolve(as, &rec)
	if err != nil {
		c.numFailures.Add(1)
		rec.Err = err
	}

	c.InvokeHook(hooking.HookCtx{
		Domain: c,
		Pos:    HookPosFaultEnd,
		Item:   rec,
	})

	return pte, err
}

func (c *Comp) resolve(
	as *addrspace.AddressSpace,
	rec *vm.FaultRecord,
) (vm.PTE, error) {
	if as == nil {
		return vm.PTE{}, vm.ErrInvalidAddressSpace
	}

	switch rec.Kind {
	case vm.FaultRead, vm.FaultWrite:
	case vm.FaultReadOnly:
		return vm.PTE{}, fmt.Errorf("write to read-only page at %#x: %w",
			rec.VAddr, vm.ErrAccessViolation)
	default:
		return vm.PTE{}, fmt.Errorf("%v: %w", rec.Kind, vm.ErrUnsupportedFaultKind)
	}

	region, found := as.FindRegion(rec.VAddr)
	if !found {
		return vm.PTE{}, fmt.Errorf("no region contains %#x: %w",
			rec.VAddr, vm.ErrAccessViolation)
	}

	vpn := vm.VPNOf(rec.VAddr)

	pte, created, err := c.pageTable.LookupOrInsert(
		as.ID(), vpn, region.Writable, c.frames.AllocFrame)
	if err != nil {
		return vm.PTE{}, fmt.Errorf("fault at %#x: %w", rec.VAddr, err)
	}

	if created {
		c.numAllocations.Add(1)
	}

	c.tlb.WriteRandom(vpn, pte)
	c.numTLBLoads.Add(1)

	rec.Frame = pte.Frame
	rec.Dirty = pte.Dirty()
	rec.AllocatedFrame = created

	return pte, nil
}

// Translate returns the physical address of vaddr as the hardware would. A
// miss raises a fault of the given kind. A write through a translation that
// is not dirty raises a read-only fault.
func (c *Comp) Translate(kind vm.FaultKind, vaddr uint64) (uint64, error) {
	pte, found := c.tlb.Lookup(vm.VPNOf(vaddr))
	if !found {
		var err error

		pte, err = c.handleFault(kind, vaddr)
		if err != nil {
			return 0, err
		}
	}

	if kind == vm.FaultWrite && !pte.Dirty() {
		_, err := c.handleFault(vm.FaultReadOnly, vaddr)
		return 0, err
	}

	return pte.PAddr(vaddr), nil
}

// ReadUser reads n bytes of the active address space starting at vaddr.
func (c *Comp) ReadUser(vaddr uint64, n uint64) ([]byte, error) {
	data := make([]byte, 0, n)

	for n > 0 {
		chunk := min(n, vm.PageSize-vm.PageOffset(vaddr))

		paddr, err := c.Translate(vm.FaultRead, vaddr)
		if err != nil {
			return nil, err
		}

		bytes, err := c.memory.Read(paddr, chunk)
		if err != nil {
			return nil, err
		}

		data = append(data, bytes...)
		vaddr += chunk
		n -= chunk
	}

	return data, nil
}

// WriteUser writes data into the active address space starting at vaddr.
func (c *Comp) WriteUser(vaddr uint64, data []byte) error {
	for len(data) > 0 {
		chunk := min(uint64(len(data)), vm.PageSize-vm.PageOffset(vaddr))

		paddr, err := c.Translate(vm.FaultWrite, vaddr)
		if err != nil {
			return err
		}

		err = c.memory.Write(paddr, data[:chunk])
		if err != nil {
			return err
		}

		vaddr += chunk
		data = data[chunk:]
	}

	return nil
}

// Stats returns the counters of the fault handler.
func (c *Comp) Stats() Stats {
	return Stats{
		Faults:      c.numFaults.Load(),
		Allocations: c.numAllocations.Load(),
		TLBLoads:    c.numTLBLoads.Load(),
		Failures:    c.numFailures.Load(),
	}
}
