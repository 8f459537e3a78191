package mmu

import (
	"github.com/sarchlab/demandvm/mem/vm"
	"github.com/sarchlab/demandvm/mem/vm/tlb"
	"github.com/sarchlab/demandvm/memory"
)

// A Builder can build MMUs.
type Builder struct {
	pageTable  vm.PageTable
	frames     vm.FrameAllocator
	memory     *memory.Storage
	tlb        tlb.TLB
	numEntries int
}

// MakeBuilder creates a new builder. Unless a TLB is given, the MMU gets a
// new 64-entry TLB.
func MakeBuilder() Builder {
	return Builder{
		numEntries: 64,
	}
}

// WithPageTable sets the page table that the MMU resolves faults with.
func (b Builder) WithPageTable(pageTable vm.PageTable) Builder {
	b.pageTable = pageTable
	return b
}

// WithFrameAllocator sets where the MMU gets frames for new pages.
func (b Builder) WithFrameAllocator(frames vm.FrameAllocator) Builder {
	b.frames = frames
	return b
}

// WithMemory sets the physical memory that user accesses go to.
func (b Builder) WithMemory(mem *memory.Storage) Builder {
	b.memory = mem
	return b
}

// WithTLB sets the TLB of the core.
func (b Builder) WithTLB(t tlb.TLB) Builder {
	b.tlb = t
	return b
}

// WithNumTLBEntries sets the size of the TLB that the builder creates when
// no TLB is given.
func (b Builder) WithNumTLBEntries(n int) Builder {
	b.numEntries = n
	return b
}

// Build returns a newly created MMU.
func (b Builder) Build(name string) *Comp {
	if b.pageTable == nil {
		panic("MMU requires a page table")
	}

	if b.frames == nil {
		panic("MMU requires a frame allocator")
	}

	c := &Comp{
		name:      name,
		pageTable: b.pageTable,
		frames:    b.frames,
		memory:    b.memory,
		tlb:       b.tlb,
	}

	if c.tlb == nil {
		c.tlb = tlb.MakeBuilder().
			WithNumEntries(b.numEntries).
			Build(name + ".TLB")
	}

	return c
}
