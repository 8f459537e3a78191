// Package frametable manages the physical page frames of the machine.
package frametable

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sarchlab/demandvm/mem/vm"
	"github.com/sarchlab/demandvm/memory"
	"github.com/sarchlab/demandvm/platform"
	"github.com/sarchlab/demandvm/sim/hooking"
)

// Hook positions of the frame table. The hook item is the vm.Frame.
var (
	HookPosFrameAlloc = &hooking.HookPos{Name: "FrameAlloc"}
	HookPosFrameFree  = &hooking.HookPos{Name: "FrameFree"}
)

var (
	// ErrNotBootstrapped is returned when freeing frames before the table
	// exists.
	ErrNotBootstrapped = errors.New("frame table not bootstrapped")

	// ErrAlreadyBootstrapped is returned by a second Bootstrap.
	ErrAlreadyBootstrapped = errors.New("frame table already bootstrapped")
)

// entrySize is what one frame entry costs in the kernel heap. The table is
// charged to the early allocator with this size.
const entrySize = 16

const noFrame = -1

type entry struct {
	used     bool
	refCount uint32
	next     int
}

// FrameInfo describes the state of one frame.
type FrameInfo struct {
	Frame    vm.Frame
	Used     bool
	RefCount uint32
}

// FrameTable tracks which physical frames are free. Free frames are chained
// into a singly linked list threaded through the entry array.
//
// Before Bootstrap, AllocPages falls back to the platform's page stealer.
type FrameTable struct {
	hooking.HookableBase

	lock      sync.Mutex
	platform  platform.Platform
	memory    *memory.Storage
	entries   []entry
	firstFree int
	numFree   int
	live      bool
}

// New creates a frame table that is not yet bootstrapped.
func New(p platform.Platform, mem *memory.Storage) *FrameTable {
	return &FrameTable{
		platform:  p,
		memory:    mem,
		firstFree: noFrame,
	}
}

// Bootstrap builds the table. The table storage is stolen from the early
// allocator, then every frame below the first free address is marked as used
// by the kernel and the rest is chained, in ascending order, into the free
// list.
func (ft *FrameTable) Bootstrap() error {
	ft.lock.Lock()
	defer ft.lock.Unlock()

	if ft.live {
		return ErrAlreadyBootstrapped
	}

	numFrames := int(ft.platform.RAMSize() / vm.PageSize)
	tablePages := (uint64(numFrames)*entrySize + vm.PageSize - 1) / vm.PageSize

	if ft.platform.StealMem(tablePages) == 0 {
		return fmt.Errorf("allocating frame table: %w", vm.ErrOutOfMemory)
	}

	used := int(vm.AlignUp(ft.platform.FirstFree()) / vm.PageSize)
	if used > numFrames {
		used = numFrames
	}

	ft.entries = make([]entry, numFrames)
	for i := range ft.entries {
		if i < used {
			ft.entries[i] = entry{used: true, refCount: 1, next: noFrame}
			continue
		}

		next := i + 1
		if next == numFrames {
			next = noFrame
		}

		ft.entries[i] = entry{next: next}
	}

	ft.firstFree = noFrame
	if used < numFrames {
		ft.firstFree = used
	}

	ft.numFree = numFrames - used
	ft.live = true

	return nil
}

// Live tells if Bootstrap has completed.
func (ft *FrameTable) Live() bool {
	ft.lock.Lock()
	defer ft.lock.Unlock()

	return ft.live
}

// AllocFrame pops the head of the free list. The frame content is zeroed
// before it is returned.
func (ft *FrameTable) AllocFrame() (vm.Frame, error) {
	frame, err := ft.popFreeFrame()
	if err != nil {
		return vm.InvalidFrame, err
	}

	err = ft.memory.Zero(frame.Address(), vm.PageSize)
	if err != nil {
		panic(err)
	}

	ft.InvokeHook(hooking.HookCtx{
		Domain: ft,
		Pos:    HookPosFrameAlloc,
		Item:   frame,
	})

	return frame, nil
}

func (ft *FrameTable) popFreeFrame() (vm.Frame, error) {
	ft.lock.Lock()
	defer ft.lock.Unlock()

	if !ft.live || ft.firstFree == noFrame {
		return vm.InvalidFrame, vm.ErrOutOfMemory
	}

	index := ft.firstFree
	e := &ft.entries[index]

	ft.firstFree = e.next
	e.used = true
	e.refCount = 1
	e.next = noFrame
	ft.numFree--

	return vm.Frame(index), nil
}

// AllocPages allocates npages contiguous pages and returns the physical
// address of the first one. Before the table is bootstrapped, the pages are
// stolen from the platform. Afterwards only single pages can be allocated.
func (ft *FrameTable) AllocPages(npages uint64) (uint64, error) {
	if !ft.Live() {
		paddr := ft.platform.StealMem(npages)
		if paddr == 0 {
			return 0, vm.ErrOutOfMemory
		}

		return paddr, nil
	}

	if npages != 1 {
		return 0, vm.ErrMultiPageAlloc
	}

	frame, err := ft.AllocFrame()
	if err != nil {
		return 0, err
	}

	return frame.Address(), nil
}

// Free returns the frame holding paddr to the head of the free list. Freeing
// a frame that is not in use returns vm.ErrAlreadyFree and changes nothing.
func (ft *FrameTable) Free(paddr uint64) error {
	frame := vm.FrameOf(paddr)

	if err := ft.pushFreeFrame(frame); err != nil {
		return err
	}

	ft.InvokeHook(hooking.HookCtx{
		Domain: ft,
		Pos:    HookPosFrameFree,
		Item:   frame,
	})

	return nil
}

func (ft *FrameTable) pushFreeFrame(frame vm.Frame) error {
	ft.lock.Lock()
	defer ft.lock.Unlock()

	if !ft.live {
		return ErrNotBootstrapped
	}

	if uint64(frame) >= uint64(len(ft.entries)) {
		return fmt.Errorf("freeing frame %d: %w", frame, vm.ErrInvalidFrame)
	}

	e := &ft.entries[frame]
	if !e.used || e.refCount == 0 {
		return fmt.Errorf("freeing frame %d: %w", frame, vm.ErrAlreadyFree)
	}

	e.used = false
	e.refCount = 0
	e.next = ft.firstFree
	ft.firstFree = int(frame)
	ft.numFree++

	return nil
}

// NumFrames returns the number of frames in the machine.
func (ft *FrameTable) NumFrames() int {
	ft.lock.Lock()
	defer ft.lock.Unlock()

	return len(ft.entries)
}

// NumFree returns the length of the free list.
func (ft *FrameTable) NumFree() int {
	ft.lock.Lock()
	defer ft.lock.Unlock()

	return ft.numFree
}

// FreeList returns the frames of the free list, head first.
func (ft *FrameTable) FreeList() []vm.Frame {
	ft.lock.Lock()
	defer ft.lock.Unlock()

	list := make([]vm.Frame, 0, ft.numFree)
	for i := ft.firstFree; i != noFrame; i = ft.entries[i].next {
		list = append(list, vm.Frame(i))
	}

	return list
}

// Snapshot returns the state of every frame.
func (ft *FrameTable) Snapshot() []FrameInfo {
	ft.lock.Lock()
	defer ft.lock.Unlock()

	infos := make([]FrameInfo, len(ft.entries))
	for i, e := range ft.entries {
		infos[i] = FrameInfo{
			Frame:    vm.Frame(i),
			Used:     e.used,
			RefCount: e.refCount,
		}
	}

	return infos
}
