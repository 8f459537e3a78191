package vm

import (
	"sort"
	"sync"
)

// A PageTable maps (address space, virtual page) pairs to physical frames.
type PageTable interface {
	// Lookup returns the valid entry of the page, if there is one.
	Lookup(asid ASID, vpn VPN) (PTE, bool)

	// Insert adds a valid entry. It does not check for duplicates; use
	// LookupOrInsert when the page may already be mapped.
	Insert(asid ASID, vpn VPN, frame Frame, dirty bool) PTE

	// Delete removes the entry of the page.
	Delete(asid ASID, vpn VPN) error

	// SetDirty sets or clears the dirty flag of the page's entry.
	SetDirty(asid ASID, vpn VPN, dirty bool) error

	// EntriesOf returns the valid entries of the address space, sorted by
	// VPN.
	EntriesOf(asid ASID) []PTE

	// LookupOrInsert returns the valid entry of the page. If there is none,
	// it calls alloc for a frame and inserts a new entry, all while holding
	// the table lock. The bool result reports whether an entry was created.
	LookupOrInsert(
		asid ASID,
		vpn VPN,
		dirty bool,
		alloc func() (Frame, error),
	) (PTE, bool, error)
}

const noEntry int32 = -1

type hptEntry struct {
	pte  PTE
	next int32
}

// HashedPageTable is a global page table shared by all the address spaces.
// Buckets are selected by hashing the ASID together with the VPN and
// collisions are chained. The entries live in an arena of slots and chains
// link slots by index.
//
// A single mutex protects the whole table.
type HashedPageTable struct {
	sync.Mutex

	buckets    []int32
	slots      []hptEntry
	freeSlots  []int32
	numEntries int
}

// NewHashedPageTable creates a page table with numBuckets buckets.
func NewHashedPageTable(numBuckets int) *HashedPageTable {
	if numBuckets <= 0 {
		panic("page table must have at least one bucket")
	}

	pt := &HashedPageTable{
		buckets: make([]int32, numBuckets),
	}

	for i := range pt.buckets {
		pt.buckets[i] = noEntry
	}

	return pt
}

// NumBuckets returns the number of hash buckets.
func (pt *HashedPageTable) NumBuckets() int {
	return len(pt.buckets)
}

func (pt *HashedPageTable) hash(asid ASID, vpn VPN) int {
	return int((uint64(asid) ^ uint64(vpn)) % uint64(len(pt.buckets)))
}

// Lookup returns the valid entry for the page of the address space.
func (pt *HashedPageTable) Lookup(asid ASID, vpn VPN) (PTE, bool) {
	pt.Lock()
	defer pt.Unlock()

	return pt.lookup(asid, vpn)
}

func (pt *HashedPageTable) lookup(asid ASID, vpn VPN) (PTE, bool) {
	for i := pt.buckets[pt.hash(asid, vpn)]; i != noEntry; i = pt.slots[i].next {
		pte := pt.slots[i].pte
		if pte.ASID == asid && pte.VPN == vpn && pte.Valid() {
			return pte, true
		}
	}

	return PTE{}, false
}

// Insert appends a new valid entry to the end of the bucket chain. The entry
// is dirty, and thus writable, if dirty is set.
func (pt *HashedPageTable) Insert(
	asid ASID,
	vpn VPN,
	frame Frame,
	dirty bool,
) PTE {
	pt.Lock()
	defer pt.Unlock()

	return pt.insert(asid, vpn, frame, dirty)
}

func (pt *HashedPageTable) insert(
	asid ASID,
	vpn VPN,
	frame Frame,
	dirty bool,
) PTE {
	pte := PTE{
		ASID:  asid,
		VPN:   vpn,
		Frame: frame,
		Flags: makeFlags(dirty),
	}

	slot := pt.allocSlot()
	pt.slots[slot] = hptEntry{pte: pte, next: noEntry}

	bucket := pt.hash(asid, vpn)
	if pt.buckets[bucket] == noEntry {
		pt.buckets[bucket] = slot
	} else {
		tail := pt.buckets[bucket]
		for pt.slots[tail].next != noEntry {
			tail = pt.slots[tail].next
		}

		pt.slots[tail].next = slot
	}

	pt.numEntries++

	return pte
}

func (pt *HashedPageTable) allocSlot() int32 {
	if n := len(pt.freeSlots); n > 0 {
		slot := pt.freeSlots[n-1]
		pt.freeSlots = pt.freeSlots[:n-1]

		return slot
	}

	pt.slots = append(pt.slots, hptEntry{})

	return int32(len(pt.slots) - 1)
}

// Delete unlinks every entry of the page from its bucket. It returns
// ErrNotFound if the page has no entry, including when the bucket is empty.
func (pt *HashedPageTable) Delete(asid ASID, vpn VPN) error {
	pt.Lock()
	defer pt.Unlock()

	bucket := pt.hash(asid, vpn)
	removed := 0
	prev := noEntry

	for curr := pt.buckets[bucket]; curr != noEntry; {
		next := pt.slots[curr].next
		pte := pt.slots[curr].pte

		if pte.ASID != asid || pte.VPN != vpn {
			prev = curr
			curr = next

			continue
		}

		if prev == noEntry {
			pt.buckets[bucket] = next
		} else {
			pt.slots[prev].next = next
		}

		pt.slots[curr] = hptEntry{next: noEntry}
		pt.freeSlots = append(pt.freeSlots, curr)
		pt.numEntries--
		removed++
		curr = next
	}

	if removed == 0 {
		return ErrNotFound
	}

	return nil
}

// LookupOrInsert resolves the page in one critical section. Two threads
// faulting on the same page cannot both allocate a frame.
func (pt *HashedPageTable) LookupOrInsert(
	asid ASID,
	vpn VPN,
	dirty bool,
	alloc func() (Frame, error),
) (PTE, bool, error) {
	pt.Lock()
	defer pt.Unlock()

	if pte, found := pt.lookup(asid, vpn); found {
		return pte, false, nil
	}

	frame, err := alloc()
	if err != nil {
		return PTE{}, false, err
	}

	return pt.insert(asid, vpn, frame, dirty), true, nil
}

// Len returns the number of entries in the table.
func (pt *HashedPageTable) Len() int {
	pt.Lock()
	defer pt.Unlock()

	return pt.numEntries
}

// Entries returns a copy of all the entries, in bucket order.
func (pt *HashedPageTable) Entries() []PTE {
	pt.Lock()
	defer pt.Unlock()

	entries := make([]PTE, 0, pt.numEntries)
	for _, head := range pt.buckets {
		for i := head; i != noEntry; i = pt.slots[i].next {
			entries = append(entries, pt.slots[i].pte)
		}
	}

	return entries
}

// EntriesOf returns a copy of the entries that belong to the address space,
// sorted by VPN. It walks the slot arena, so its cost follows the number of
// mapped pages rather than the size of the regions.
func (pt *HashedPageTable) EntriesOf(asid ASID) []PTE {
	pt.Lock()

	var entries []PTE

	for _, slot := range pt.slots {
		if slot.pte.Valid() && slot.pte.ASID == asid {
			entries = append(entries, slot.pte)
		}
	}

	pt.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].VPN < entries[j].VPN
	})

	return entries
}

// SetDirty sets or clears the dirty flag of every entry of the page. It
// returns ErrNotFound if the page has no entry.
func (pt *HashedPageTable) SetDirty(asid ASID, vpn VPN, dirty bool) error {
	pt.Lock()
	defer pt.Unlock()

	found := false

	for i := pt.buckets[pt.hash(asid, vpn)]; i != noEntry; i = pt.slots[i].next {
		pte := &pt.slots[i].pte
		if pte.ASID != asid || pte.VPN != vpn || !pte.Valid() {
			continue
		}

		if dirty {
			pte.Flags |= PTEDirty
		} else {
			pte.Flags &^= PTEDirty
		}

		found = true
	}

	if !found {
		return ErrNotFound
	}

	return nil
}

// A FrameAllocator hands out and takes back single physical frames.
type FrameAllocator interface {
	// AllocFrame returns a zero-filled frame or ErrOutOfMemory.
	AllocFrame() (Frame, error)

	// Free returns the frame that holds paddr to the allocator.
	Free(paddr uint64) error
}
