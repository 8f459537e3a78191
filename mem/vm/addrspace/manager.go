package addrspace

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sarchlab/demandvm/mem/vm"
	"github.com/sarchlab/demandvm/memory"
	"github.com/sarchlab/demandvm/sim/hooking"
)

// Hook positions of the manager. The hook item is the *AddressSpace.
var (
	HookPosCreate  = &hooking.HookPos{Name: "AddressSpaceCreate"}
	HookPosCopy    = &hooking.HookPos{Name: "AddressSpaceCopy"}
	HookPosDestroy = &hooking.HookPos{Name: "AddressSpaceDestroy"}
)

// Manager creates, copies and destroys address spaces. All the address
// spaces of a manager share one page table, one frame allocator and one
// physical memory.
type Manager struct {
	hooking.HookableBase

	pageTable vm.PageTable
	frames    vm.FrameAllocator
	memory    *memory.Storage

	lock   sync.Mutex
	nextID vm.ASID
	live   map[vm.ASID]*AddressSpace
}

// NewManager creates a new Manager.
func NewManager(
	pageTable vm.PageTable,
	frames vm.FrameAllocator,
	mem *memory.Storage,
) *Manager {
	return &Manager{
		pageTable: pageTable,
		frames:    frames,
		memory:    mem,
		nextID:    1,
		live:      make(map[vm.ASID]*AddressSpace),
	}
}

// PageTable returns the page table shared by the address spaces.
func (m *Manager) PageTable() vm.PageTable {
	return m.pageTable
}

// Create returns an empty address space with a fresh ASID.
func (m *Manager) Create() *AddressSpace {
	m.lock.Lock()
	as := &AddressSpace{
		id:      m.nextID,
		manager: m,
	}
	m.nextID++
	m.live[as.id] = as
	m.lock.Unlock()

	m.InvokeHook(hooking.HookCtx{
		Domain: m,
		Pos:    HookPosCreate,
		Item:   as,
	})

	return as
}

// Get returns the live address space with the given ASID.
func (m *Manager) Get(id vm.ASID) (*AddressSpace, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()

	as, ok := m.live[id]

	return as, ok
}

// Live returns the address spaces that are not destroyed, sorted by ASID.
func (m *Manager) Live() []*AddressSpace {
	m.lock.Lock()
	defer m.lock.Unlock()

	spaces := make([]*AddressSpace, 0, len(m.live))
	for _, as := range m.live {
		spaces = append(spaces, as)
	}

	sort.Slice(spaces, func(i, j int) bool {
		return spaces[i].id < spaces[j].id
	})

	return spaces
}

// NumLive returns the number of address spaces that are not destroyed.
func (m *Manager) NumLive() int {
	m.lock.Lock()
	defer m.lock.Unlock()

	return len(m.live)
}

// DefineRegion adds a region that covers [vaddr, vaddr+size). The base is
// rounded down and the end rounded up to page boundaries.
func (m *Manager) DefineRegion(
	as *AddressSpace,
	vaddr, size uint64,
	readable, writable, executable bool,
) error {
	if as == nil {
		return vm.ErrInvalidAddressSpace
	}

	if size == 0 {
		return fmt.Errorf("%w: empty region at %#x", vm.ErrInvalidRegion, vaddr)
	}

	size += vm.PageOffset(vaddr)
	base := vm.AlignDown(vaddr)

	if size > ^uint64(0)-vm.PageSize || base+vm.AlignUp(size) < base {
		return fmt.Errorf("%w: region at %#x wraps around",
			vm.ErrInvalidRegion, vaddr)
	}

	r := Region{
		Base:          base,
		NumPages:      vm.AlignUp(size) / vm.PageSize,
		Readable:      readable,
		Writable:      writable,
		Executable:    executable,
		SavedWritable: writable,
	}

	return as.insertRegion(r)
}

// PrepareLoad makes every region writable so that the loader can fill
// read-only pages.
func (m *Manager) PrepareLoad(as *AddressSpace) error {
	if as == nil {
		return vm.ErrInvalidAddressSpace
	}

	as.setLoading(true)

	return nil
}

// CompleteLoad restores the writable flags saved by PrepareLoad. Pages of
// read-only regions that the loader faulted in lose their dirty flag, so
// they can no longer be written. Cores running the address space must be
// activated again to drop the translations they cached while loading.
func (m *Manager) CompleteLoad(as *AddressSpace) error {
	if as == nil {
		return vm.ErrInvalidAddressSpace
	}

	as.setLoading(false)

	var errs []error

	for _, pte := range m.pageTable.EntriesOf(as.id) {
		r, found := as.FindRegion(pte.VPN.Address())
		if !found || r.Writable || !pte.Dirty() {
			continue
		}

		if err := m.pageTable.SetDirty(as.id, pte.VPN, false); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("complete load of address space %d: %w",
			as.id, errors.Join(errs...))
	}

	return nil
}

// DefineStack adds the stack region right below UserStack and returns the
// initial stack pointer.
func (m *Manager) DefineStack(as *AddressSpace) (uint64, error) {
	size := UserStackPages * vm.PageSize

	err := m.DefineRegion(as, UserStack-size, size, true, true, true)
	if err != nil {
		return 0, fmt.Errorf("define stack: %w", err)
	}

	return UserStack, nil
}

// Copy creates a new address space with the same regions as old. Every page
// that is mapped in old gets a new frame holding a copy of its bytes. If the
// frames run out, the partial copy is destroyed.
func (m *Manager) Copy(old *AddressSpace) (*AddressSpace, error) {
	if old == nil {
		return nil, vm.ErrInvalidAddressSpace
	}

	newAS := m.Create()

	newAS.lock.Lock()
	newAS.regions = old.Regions()
	newAS.lock.Unlock()

	err := m.copyPages(old, newAS)
	if err != nil {
		destroyErr := m.Destroy(newAS)
		return nil, errors.Join(
			fmt.Errorf("copy address space %d: %w", old.id, err),
			destroyErr)
	}

	m.InvokeHook(hooking.HookCtx{
		Domain: m,
		Pos:    HookPosCopy,
		Item:   newAS,
		Detail: old,
	})

	return newAS, nil
}

// copyPages copies the mapped pages of old that fall into one of its
// regions. The copies are writable if their region is.
func (m *Manager) copyPages(old, newAS *AddressSpace) error {
	for _, pte := range m.pageTable.EntriesOf(old.id) {
		r, found := old.FindRegion(pte.VPN.Address())
		if !found {
			continue
		}

		frame, err := m.frames.AllocFrame()
		if err != nil {
			return err
		}

		err = m.memory.Copy(frame.Address(), pte.Frame.Address(), vm.PageSize)
		if err != nil {
			return errors.Join(err, m.frames.Free(frame.Address()))
		}

		m.pageTable.Insert(newAS.id, pte.VPN, frame, r.Writable)
	}

	return nil
}

// Destroy frees every frame mapped by the address space, removes its page
// table entries and drops its regions. Pages that were never touched are
// skipped. Each entry is deleted before its frame is freed.
func (m *Manager) Destroy(as *AddressSpace) error {
	if as == nil {
		return vm.ErrInvalidAddressSpace
	}

	var errs []error

	as.clearRegions()

	for _, pte := range m.pageTable.EntriesOf(as.id) {
		if err := m.pageTable.Delete(as.id, pte.VPN); err != nil {
			errs = append(errs, err)
			continue
		}

		if err := m.frames.Free(pte.Frame.Address()); err != nil {
			errs = append(errs, err)
		}
	}

	m.lock.Lock()
	delete(m.live, as.id)
	m.lock.Unlock()

	m.InvokeHook(hooking.HookCtx{
		Domain: m,
		Pos:    HookPosDestroy,
		Item:   as,
	})

	if len(errs) > 0 {
		return fmt.Errorf("destroy address space %d: %w",
			as.id, errors.Join(errs...))
	}

	return nil
}
