// Package addrspace manages the per-process address spaces and their regions.
package addrspace

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sarchlab/demandvm/mem/vm"
)

// Top of the user stack and the number of pages reserved for it.
const (
	UserStack      uint64 = 0x80000000
	UserStackPages uint64 = 16
)

// An AddressSpace is the set of regions of one process. Its pages are mapped
// lazily, by the fault handler, in the page table shared by all the address
// spaces.
//
// An address space is owned by a single process. The lock only lets
// observers read the regions while the owner changes them.
type AddressSpace struct {
	lock    sync.RWMutex
	id      vm.ASID
	regions []Region
	manager *Manager
}

// ID returns the ASID that tags the page table entries of the address space.
func (as *AddressSpace) ID() vm.ASID {
	return as.id
}

// Regions returns a copy of the regions, sorted by base address.
func (as *AddressSpace) Regions() []Region {
	as.lock.RLock()
	defer as.lock.RUnlock()

	return append([]Region(nil), as.regions...)
}

// FindRegion returns the region that contains vaddr.
func (as *AddressSpace) FindRegion(vaddr uint64) (Region, bool) {
	as.lock.RLock()
	defer as.lock.RUnlock()

	for _, r := range as.regions {
		if r.Contains(vaddr) {
			return r, true
		}
	}

	return Region{}, false
}

// NumMappedPages returns how many pages of the address space have a frame.
func (as *AddressSpace) NumMappedPages() int {
	return len(as.manager.pageTable.EntriesOf(as.id))
}

func (as *AddressSpace) insertRegion(r Region) error {
	as.lock.Lock()
	defer as.lock.Unlock()

	for _, existing := range as.regions {
		if existing.Overlaps(r) {
			return fmt.Errorf("%w: [%#x, %#x) and [%#x, %#x)",
				vm.ErrRegionOverlap,
				r.Base, r.End(), existing.Base, existing.End())
		}
	}

	i := sort.Search(len(as.regions), func(i int) bool {
		return as.regions[i].Base >= r.Base
	})

	as.regions = append(as.regions, Region{})
	copy(as.regions[i+1:], as.regions[i:])
	as.regions[i] = r

	return nil
}

func (as *AddressSpace) setLoading(loading bool) {
	as.lock.Lock()
	defer as.lock.Unlock()

	for i := range as.regions {
		r := &as.regions[i]

		if loading {
			if !r.Writable {
				r.SavedWritable = false
				r.Writable = true
			}

			continue
		}

		if !r.SavedWritable {
			r.Writable = false
		}
	}
}

func (as *AddressSpace) clearRegions() {
	as.lock.Lock()
	defer as.lock.Unlock()

	as.regions = nil
}
