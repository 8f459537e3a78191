package addrspace

import "github.com/sarchlab/demandvm/mem/vm"

// A Region is a page-aligned range of virtual addresses with access
// permissions.
type Region struct {
	Base       uint64
	NumPages   uint64
	Readable   bool
	Writable   bool
	Executable bool

	// SavedWritable is the writable flag to restore when loading completes.
	SavedWritable bool
}

// End returns the first address after the region.
func (r Region) End() uint64 {
	return r.Base + r.NumPages*vm.PageSize
}

// Contains tells if vaddr falls into the region.
func (r Region) Contains(vaddr uint64) bool {
	return vaddr >= r.Base && vaddr < r.End()
}

// Overlaps tells if two regions share at least one page.
func (r Region) Overlaps(other Region) bool {
	return r.Base < other.End() && other.Base < r.End()
}
