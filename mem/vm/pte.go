package vm

// PTEFlags holds the status bits of a page table entry.
type PTEFlags uint8

// Status bits of a page table entry.
const (
	PTEValid PTEFlags = 1 << iota
	PTEDirty
	PTENoCache
)

// A PTE is an entry of the hashed page table. It maps the page VPN of the
// address space ASID to a physical frame.
type PTE struct {
	ASID  ASID
	VPN   VPN
	Frame Frame
	Flags PTEFlags
}

// Valid tells if the entry denotes a live mapping.
func (e PTE) Valid() bool {
	return e.Flags&PTEValid != 0
}

// Dirty tells if the page may be written through this mapping.
func (e PTE) Dirty() bool {
	return e.Flags&PTEDirty != 0
}

// NoCache tells if the page must bypass the cache.
func (e PTE) NoCache() bool {
	return e.Flags&PTENoCache != 0
}

// PAddr returns the physical address that vaddr translates to through this
// entry.
func (e PTE) PAddr(vaddr uint64) uint64 {
	return e.Frame.Address() | PageOffset(vaddr)
}

func makeFlags(dirty bool) PTEFlags {
	flags := PTEValid
	if dirty {
		flags |= PTEDirty
	}

	return flags
}
