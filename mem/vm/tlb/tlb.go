// Package tlb models the software-loaded translation lookaside buffer of one
// processor core.
package tlb

import (
	"sync"

	"github.com/sarchlab/demandvm/mem/vm"
	"github.com/sarchlab/demandvm/mem/vm/tlb/internal"
	"github.com/sarchlab/demandvm/sim/hooking"
)

// Hook positions of the TLB. The item of HookPosWrite is the vm.PTE written.
var (
	HookPosWrite      = &hooking.HookPos{Name: "TLBWrite"}
	HookPosInvalidate = &hooking.HookPos{Name: "TLBInvalidate"}
)

// TLB is the driver interface the fault handler uses.
type TLB interface {
	// WriteRandom loads the translation of vpn into a random slot.
	WriteRandom(vpn vm.VPN, pte vm.PTE)

	// InvalidateAll drops every translation.
	InvalidateAll()

	// Lookup returns the translation of vpn if the TLB holds it.
	Lookup(vpn vm.VPN) (vm.PTE, bool)

	// Shootdown invalidates translations on other cores. It is not
	// supported and panics.
	Shootdown()
}

// Comp is a fully associative TLB with random replacement.
type Comp struct {
	hooking.HookableBase

	name string

	// spl stands for the interrupt priority level. Holding it means
	// interrupts are off on this core.
	spl sync.Mutex
	set internal.Set

	numWrites        uint64
	numInvalidations uint64
}

// Name returns the name of the TLB.
func (c *Comp) Name() string {
	return c.name
}

// WriteRandom loads one translation with interrupts disabled.
func (c *Comp) WriteRandom(vpn vm.VPN, pte vm.PTE) {
	c.spl.Lock()

	wayID := c.set.Victim(vpn)
	c.set.Update(wayID, internal.Entry{VPN: vpn, PTE: pte, Valid: true})
	c.numWrites++

	c.spl.Unlock()

	c.InvokeHook(hooking.HookCtx{
		Domain: c,
		Pos:    HookPosWrite,
		Item:   pte,
	})
}

// InvalidateAll writes an invalid entry into every slot.
func (c *Comp) InvalidateAll() {
	c.spl.Lock()

	c.set.InvalidateAll()
	c.numInvalidations++

	c.spl.Unlock()

	c.InvokeHook(hooking.HookCtx{
		Domain: c,
		Pos:    HookPosInvalidate,
	})
}

// Lookup searches the TLB.
func (c *Comp) Lookup(vpn vm.VPN) (vm.PTE, bool) {
	c.spl.Lock()
	defer c.spl.Unlock()

	_, entry, found := c.set.Lookup(vpn)
	if !found {
		return vm.PTE{}, false
	}

	return entry.PTE, true
}

// Shootdown panics. Only single-core TLB maintenance is implemented; a
// silent no-op would leave stale translations on other cores.
func (c *Comp) Shootdown() {
	panic("vm tried to do tlb shootdown")
}

// Len returns the number of valid slots.
func (c *Comp) Len() int {
	c.spl.Lock()
	defer c.spl.Unlock()

	return c.set.NumValid()
}

// NumEntries returns the number of slots.
func (c *Comp) NumEntries() int {
	return c.set.NumWays()
}

// Stats returns how many writes and invalidations the TLB has served.
func (c *Comp) Stats() (writes, invalidations uint64) {
	c.spl.Lock()
	defer c.spl.Unlock()

	return c.numWrites, c.numInvalidations
}
