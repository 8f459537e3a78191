package platform

import (
	"github.com/sarchlab/demandvm/mem/vm"
	"github.com/sarchlab/demandvm/memory"
)

// A Builder can build simulated machines.
type Builder struct {
	ramSize         uint64
	kernelImageSize uint64
}

// MakeBuilder creates a builder with 4 MiB of RAM and a 512 KiB kernel image.
func MakeBuilder() Builder {
	return Builder{
		ramSize:         4 << 20,
		kernelImageSize: 512 << 10,
	}
}

// WithRAMSize sets the size of the physical memory. It is rounded down to a
// whole number of pages.
func (b Builder) WithRAMSize(size uint64) Builder {
	b.ramSize = size
	return b
}

// WithKernelImageSize sets how many bytes at the bottom of the RAM are taken
// by the loaded kernel. It is rounded up to a whole number of pages.
func (b Builder) WithKernelImageSize(size uint64) Builder {
	b.kernelImageSize = size
	return b
}

func (b Builder) parametersMustBeValid() {
	ram := vm.AlignDown(b.ramSize)

	if ram == 0 {
		panic("RAM must hold at least one page")
	}

	if b.kernelImageSize == 0 {
		panic("kernel image cannot be empty")
	}

	if vm.AlignUp(b.kernelImageSize) > ram {
		panic("kernel image does not fit in RAM")
	}
}

// Build creates a machine.
func (b Builder) Build() *Machine {
	b.parametersMustBeValid()

	ram := vm.AlignDown(b.ramSize)

	return &Machine{
		ramSize:    ram,
		firstPAddr: vm.AlignUp(b.kernelImageSize),
		memory:     memory.NewStorage(ram),
	}
}
