// Package internal provides the slot array of the TLB.
package internal

import (
	"math/rand/v2"

	"github.com/sarchlab/demandvm/mem/vm"
)

// An Entry is one TLB slot. It maps a virtual page to a page table entry.
type Entry struct {
	VPN   vm.VPN
	PTE   vm.PTE
	Valid bool
}

// A Set holds a fixed number of slots.
type Set interface {
	Lookup(vpn vm.VPN) (wayID int, entry Entry, found bool)
	Update(wayID int, entry Entry)
	Victim(vpn vm.VPN) (wayID int)
	InvalidateAll()
	NumWays() int
	NumValid() int
}

// NewSet creates a new set with numWays slots. Victims are picked at random
// from rng.
func NewSet(numWays int, rng *rand.Rand) Set {
	s := &setImpl{
		blocks:   make([]Entry, numWays),
		vpnToWay: make(map[vm.VPN]int),
		rng:      rng,
	}

	return s
}

type setImpl struct {
	blocks   []Entry
	vpnToWay map[vm.VPN]int
	rng      *rand.Rand
}

func (s *setImpl) NumWays() int {
	return len(s.blocks)
}

func (s *setImpl) NumValid() int {
	return len(s.vpnToWay)
}

func (s *setImpl) Lookup(vpn vm.VPN) (wayID int, entry Entry, found bool) {
	wayID, ok := s.vpnToWay[vpn]
	if !ok {
		return 0, Entry{}, false
	}

	return wayID, s.blocks[wayID], true
}

// Update overwrites a slot, keeping the VPN index in sync.
func (s *setImpl) Update(wayID int, entry Entry) {
	old := s.blocks[wayID]
	if old.Valid {
		delete(s.vpnToWay, old.VPN)
	}

	s.blocks[wayID] = entry

	if entry.Valid {
		if otherWay, dup := s.vpnToWay[entry.VPN]; dup && otherWay != wayID {
			s.blocks[otherWay] = Entry{}
		}

		s.vpnToWay[entry.VPN] = wayID
	}
}

// Victim returns the slot that already holds vpn, or a random slot.
func (s *setImpl) Victim(vpn vm.VPN) int {
	if wayID, ok := s.vpnToWay[vpn]; ok {
		return wayID
	}

	return s.rng.IntN(len(s.blocks))
}

func (s *setImpl) InvalidateAll() {
	clear(s.blocks)
	clear(s.vpnToWay)
}
