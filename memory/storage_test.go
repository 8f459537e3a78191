package memory_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/demandvm/memory"
)

var _ = Describe("Storage", func() {
	It("should read and write in single unit", func() {
		storage := memory.NewStorage(4096)
		Expect(storage.Write(0, []byte{1, 2, 3, 4})).To(Succeed())

		res, _ := storage.Read(0, 2)
		Expect(res).To(Equal([]byte{1, 2}))

		res, _ = storage.Read(1, 2)
		Expect(res).To(Equal([]byte{2, 3}))
	})

	It("should read and write across units", func() {
		storage := memory.NewStorage(8192)
		Expect(storage.Write(4094, []byte{1, 2, 3, 4})).To(Succeed())

		res, _ := storage.Read(4094, 4)
		Expect(res).To(Equal([]byte{1, 2, 3, 4}))
	})

	It("should read zeros from untouched units without allocating", func() {
		storage := memory.NewStorage(8192)

		res, err := storage.Read(100, 8)

		Expect(err).NotTo(HaveOccurred())
		Expect(res).To(Equal(make([]byte, 8)))
		Expect(storage.NumAllocatedUnits()).To(Equal(0))
	})

	It("should return error if accessing over the capacity", func() {
		storage := memory.NewStorage(4096)
		err := storage.Write(4097, []byte{1})
		Expect(err).To(MatchError(memory.ErrOutOfRange))

		_, err = storage.Read(4097, 1)
		Expect(err).To(MatchError(memory.ErrOutOfRange))

		_, err = storage.Read(4095, 2)
		Expect(err).To(MatchError(memory.ErrOutOfRange))
	})

	It("should zero a partial range", func() {
		storage := memory.NewStorage(8192)
		Expect(storage.Write(0, []byte{1, 2, 3, 4})).To(Succeed())

		Expect(storage.Zero(1, 2)).To(Succeed())

		res, _ := storage.Read(0, 4)
		Expect(res).To(Equal([]byte{1, 0, 0, 4}))
	})

	It("should release whole units when zeroing them", func() {
		storage := memory.NewStorage(8192)
		Expect(storage.Write(4096, []byte{9})).To(Succeed())
		Expect(storage.NumAllocatedUnits()).To(Equal(1))

		Expect(storage.Zero(4096, 4096)).To(Succeed())

		Expect(storage.NumAllocatedUnits()).To(Equal(0))
	})

	It("should copy between units", func() {
		storage := memory.NewStorage(3 * 4096)
		Expect(storage.Write(10, []byte{7, 8, 9})).To(Succeed())

		Expect(storage.Copy(8192+10, 10, 3)).To(Succeed())

		res, _ := storage.Read(8192+10, 3)
		Expect(res).To(Equal([]byte{7, 8, 9}))
	})

	It("should handle overlapping copies", func() {
		storage := memory.NewStorage(4096)
		Expect(storage.Write(0, []byte{1, 2, 3, 4})).To(Succeed())

		Expect(storage.Copy(1, 0, 3)).To(Succeed())

		res, _ := storage.Read(0, 4)
		Expect(res).To(Equal([]byte{1, 1, 2, 3}))
	})
})
