package internal

import (
	"math/rand/v2"

	"github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/demandvm/mem/vm"
)

var _ = ginkgo.Describe("Set", func() {
	var s Set

	ginkgo.BeforeEach(func() {
		s = NewSet(4, rand.New(rand.NewPCG(1, 2)))
	})

	ginkgo.It("should miss when empty", func() {
		_, _, found := s.Lookup(1)

		Expect(found).To(BeFalse())
		Expect(s.NumWays()).To(Equal(4))
		Expect(s.NumValid()).To(Equal(0))
	})

	ginkgo.It("should find updated entries", func() {
		entry := Entry{VPN: 7, PTE: vm.PTE{VPN: 7, Frame: 3}, Valid: true}
		s.Update(2, entry)

		wayID, found, ok := s.Lookup(7)

		Expect(ok).To(BeTrue())
		Expect(wayID).To(Equal(2))
		Expect(found).To(Equal(entry))
	})

	ginkgo.It("should drop the old mapping when a slot is overwritten", func() {
		s.Update(1, Entry{VPN: 7, Valid: true})
		s.Update(1, Entry{VPN: 8, Valid: true})

		_, _, found := s.Lookup(7)
		Expect(found).To(BeFalse())
		Expect(s.NumValid()).To(Equal(1))
	})

	ginkgo.It("should never hold a page twice", func() {
		s.Update(0, Entry{VPN: 7, Valid: true})
		s.Update(3, Entry{VPN: 7, Valid: true})

		wayID, _, _ := s.Lookup(7)
		Expect(wayID).To(Equal(3))
		Expect(s.NumValid()).To(Equal(1))
	})

	ginkgo.It("should reuse the slot of the same page as victim", func() {
		s.Update(3, Entry{VPN: 7, Valid: true})

		Expect(s.Victim(7)).To(Equal(3))
	})

	ginkgo.It("should pick victims within range", func() {
		for i := 0; i < 100; i++ {
			way := s.Victim(vm.VPN(i))
			Expect(way).To(BeNumerically(">=", 0))
			Expect(way).To(BeNumerically("<", 4))
		}
	})

	ginkgo.It("should invalidate all slots", func() {
		s.Update(0, Entry{VPN: 1, Valid: true})
		s.Update(1, Entry{VPN: 2, Valid: true})

		s.InvalidateAll()

		Expect(s.NumValid()).To(Equal(0))
		_, _, found := s.Lookup(1)
		Expect(found).To(BeFalse())
	})
})
