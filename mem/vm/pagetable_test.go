package vm

import (
	"errors"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("HashedPageTable", func() {
	var pt *HashedPageTable

	BeforeEach(func() {
		pt = NewHashedPageTable(8)
	})

	It("should panic without buckets", func() {
		Expect(func() { NewHashedPageTable(0) }).To(Panic())
	})

	It("should insert and lookup", func() {
		pte := pt.Insert(1, 0x10, 5, true)

		Expect(pte.Valid()).To(BeTrue())
		Expect(pte.Dirty()).To(BeTrue())
		Expect(pte.NoCache()).To(BeFalse())

		found, ok := pt.Lookup(1, 0x10)
		Expect(ok).To(BeTrue())
		Expect(found).To(Equal(pte))
		Expect(pt.Len()).To(Equal(1))
	})

	It("should clear the dirty bit for read-only pages", func() {
		pte := pt.Insert(1, 0x10, 5, false)

		Expect(pte.Valid()).To(BeTrue())
		Expect(pte.Dirty()).To(BeFalse())
	})

	It("should miss for unknown pages", func() {
		_, ok := pt.Lookup(1, 0x10)

		Expect(ok).To(BeFalse())
	})

	It("should not return entries of another owner on collision", func() {
		Expect(pt.hash(1, 0)).To(Equal(pt.hash(2, 3)))

		pt.Insert(1, 0, 10, true)
		pt.Insert(2, 3, 20, false)

		pte, ok := pt.Lookup(1, 0)
		Expect(ok).To(BeTrue())
		Expect(pte.Frame).To(Equal(Frame(10)))

		pte, ok = pt.Lookup(2, 3)
		Expect(ok).To(BeTrue())
		Expect(pte.Frame).To(Equal(Frame(20)))

		_, ok = pt.Lookup(2, 0)
		Expect(ok).To(BeFalse())
		_, ok = pt.Lookup(1, 3)
		Expect(ok).To(BeFalse())
	})

	It("should append to the end of the chain", func() {
		pt.Insert(1, 0, 10, true)
		pt.Insert(2, 3, 20, true)
		pt.Insert(3, 2, 30, true)

		bucket := pt.hash(1, 0)
		var frames []Frame
		for i := pt.buckets[bucket]; i != noEntry; i = pt.slots[i].next {
			frames = append(frames, pt.slots[i].pte.Frame)
		}

		Expect(frames).To(Equal([]Frame{10, 20, 30}))
	})

	Context("delete", func() {
		It("should return ErrNotFound on an empty bucket", func() {
			err := pt.Delete(1, 0x10)

			Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
		})

		It("should return ErrNotFound when no entry matches", func() {
			pt.Insert(1, 0, 10, true)

			Expect(pt.Delete(2, 3)).To(MatchError(ErrNotFound))
			Expect(pt.Len()).To(Equal(1))
		})

		It("should delete the sole entry", func() {
			pt.Insert(1, 0, 10, true)

			Expect(pt.Delete(1, 0)).To(Succeed())

			_, ok := pt.Lookup(1, 0)
			Expect(ok).To(BeFalse())
			Expect(pt.buckets[pt.hash(1, 0)]).To(Equal(noEntry))
			Expect(pt.Len()).To(Equal(0))
		})

		It("should delete the head of a chain", func() {
			pt.Insert(1, 0, 10, true)
			pt.Insert(2, 3, 20, true)
			pt.Insert(3, 2, 30, true)

			Expect(pt.Delete(1, 0)).To(Succeed())

			_, ok := pt.Lookup(2, 3)
			Expect(ok).To(BeTrue())
			_, ok = pt.Lookup(3, 2)
			Expect(ok).To(BeTrue())
			Expect(pt.Len()).To(Equal(2))
		})

		It("should delete the middle and the tail of a chain", func() {
			pt.Insert(1, 0, 10, true)
			pt.Insert(2, 3, 20, true)
			pt.Insert(3, 2, 30, true)

			Expect(pt.Delete(2, 3)).To(Succeed())
			Expect(pt.Delete(3, 2)).To(Succeed())

			pte, ok := pt.Lookup(1, 0)
			Expect(ok).To(BeTrue())
			Expect(pte.Frame).To(Equal(Frame(10)))
			Expect(pt.Entries()).To(HaveLen(1))
		})

		It("should reuse freed slots", func() {
			pt.Insert(1, 0, 10, true)
			Expect(pt.Delete(1, 0)).To(Succeed())

			pt.Insert(1, 1, 11, true)

			Expect(pt.slots).To(HaveLen(1))
		})
	})

	Context("entries of an address space", func() {
		It("should list only valid entries of the owner, sorted by VPN", func() {
			pt.Insert(1, 9, 90, true)
			pt.Insert(2, 3, 30, true)
			pt.Insert(1, 2, 20, false)
			pt.Insert(1, 5, 50, true)
			Expect(pt.Delete(1, 5)).To(Succeed())

			entries := pt.EntriesOf(1)

			Expect(entries).To(HaveLen(2))
			Expect(entries[0].VPN).To(Equal(VPN(2)))
			Expect(entries[1].VPN).To(Equal(VPN(9)))
			Expect(pt.EntriesOf(3)).To(BeEmpty())
		})
	})

	Context("set dirty", func() {
		It("should clear and set the dirty flag", func() {
			pt.Insert(1, 4, 40, true)

			Expect(pt.SetDirty(1, 4, false)).To(Succeed())
			pte, _ := pt.Lookup(1, 4)
			Expect(pte.Dirty()).To(BeFalse())
			Expect(pte.Valid()).To(BeTrue())
			Expect(pte.Frame).To(Equal(Frame(40)))

			Expect(pt.SetDirty(1, 4, true)).To(Succeed())
			pte, _ = pt.Lookup(1, 4)
			Expect(pte.Dirty()).To(BeTrue())
		})

		It("should return ErrNotFound for an unmapped page", func() {
			pt.Insert(2, 4, 40, true)

			Expect(pt.SetDirty(1, 4, false)).To(MatchError(ErrNotFound))
		})
	})

	Context("lookup or insert", func() {
		It("should reuse an existing entry without allocating", func() {
			pt.Insert(1, 4, 40, true)

			pte, created, err := pt.LookupOrInsert(1, 4, true,
				func() (Frame, error) {
					Fail("should not allocate")
					return InvalidFrame, nil
				})

			Expect(err).NotTo(HaveOccurred())
			Expect(created).To(BeFalse())
			Expect(pte.Frame).To(Equal(Frame(40)))
		})

		It("should allocate and insert when missing", func() {
			pte, created, err := pt.LookupOrInsert(1, 4, false,
				func() (Frame, error) { return 41, nil })

			Expect(err).NotTo(HaveOccurred())
			Expect(created).To(BeTrue())
			Expect(pte.Frame).To(Equal(Frame(41)))
			Expect(pte.Dirty()).To(BeFalse())
			Expect(pt.Len()).To(Equal(1))
		})

		It("should not insert when allocation fails", func() {
			_, created, err := pt.LookupOrInsert(1, 4, true,
				func() (Frame, error) { return InvalidFrame, ErrOutOfMemory })

			Expect(err).To(MatchError(ErrOutOfMemory))
			Expect(created).To(BeFalse())
			Expect(pt.Len()).To(Equal(0))
		})

		It("should keep one entry per page under concurrent faults", func() {
			var (
				wg     sync.WaitGroup
				mu     sync.Mutex
				allocs int
			)

			for i := 0; i < 32; i++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					_, _, err := pt.LookupOrInsert(7, 9, true,
						func() (Frame, error) {
							mu.Lock()
							defer mu.Unlock()
							allocs++
							return Frame(100 + allocs), nil
						})
					Expect(err).NotTo(HaveOccurred())
				}()
			}
			wg.Wait()

			Expect(allocs).To(Equal(1))
			Expect(pt.EntriesOf(7)).To(HaveLen(1))
		})
	})
})
