// Package vm provides the shared types of the virtual memory system and the
// hashed page table that maps virtual pages to physical frames.
package vm

const (
	// Log2PageSize is the log2 of the size of a page and of a frame.
	Log2PageSize = 12

	// PageSize is the size of a page and of a frame in bytes.
	PageSize uint64 = 1 << Log2PageSize

	// PageFrameMask clears the in-page offset of an address.
	PageFrameMask = ^(PageSize - 1)
)

// ASID identifies an address space. Page table entries of different address
// spaces are told apart by their ASID.
type ASID uint32

// VPN is a virtual page number.
type VPN uint64

// Frame is the index of a physical page frame.
type Frame uint64

// InvalidFrame is returned when no frame can be provided.
const InvalidFrame = Frame(^uint64(0))

// Valid returns true if this is a valid frame.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns the physical address of the first byte of the frame.
func (f Frame) Address() uint64 {
	return uint64(f) << Log2PageSize
}

// FrameOf returns the frame that contains the physical address.
func FrameOf(paddr uint64) Frame {
	return Frame(paddr >> Log2PageSize)
}

// VPNOf returns the virtual page number that contains the virtual address.
func VPNOf(vaddr uint64) VPN {
	return VPN(vaddr >> Log2PageSize)
}

// Address returns the virtual address of the first byte of the page.
func (v VPN) Address() uint64 {
	return uint64(v) << Log2PageSize
}

// AlignDown rounds addr down to a page boundary.
func AlignDown(addr uint64) uint64 {
	return addr & PageFrameMask
}

// AlignUp rounds addr up to a page boundary.
func AlignUp(addr uint64) uint64 {
	return (addr + PageSize - 1) & PageFrameMask
}

// PageOffset returns the offset of addr inside its page.
func PageOffset(addr uint64) uint64 {
	return addr & (PageSize - 1)
}
