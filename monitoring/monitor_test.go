package monitoring

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/demandvm/mem/vm"
	"github.com/sarchlab/demandvm/mem/vm/addrspace"
	"github.com/sarchlab/demandvm/mem/vm/mmu"
	"github.com/sarchlab/demandvm/mem/vm/vmsys"
	"github.com/sarchlab/demandvm/platform"
)

var _ = Describe("Monitor", func() {
	var (
		system *vmsys.System
		core   *mmu.Comp
		as     *addrspace.AddressSpace
		m      *Monitor
		server *httptest.Server
	)

	get := func(path string) *http.Response {
		rsp, err := http.Get(server.URL + path)
		Expect(err).NotTo(HaveOccurred())

		return rsp
	}

	getJSON := func(path string, v any) {
		rsp := get(path)
		defer rsp.Body.Close()

		Expect(rsp.StatusCode).To(Equal(http.StatusOK))
		Expect(json.NewDecoder(rsp.Body).Decode(v)).To(Succeed())
	}

	BeforeEach(func() {
		machine := platform.MakeBuilder().
			WithRAMSize(64 * vm.PageSize).
			WithKernelImageSize(8 * vm.PageSize).
			Build()

		var err error
		system, err = vmsys.Bootstrap(machine, machine.Memory())
		Expect(err).NotTo(HaveOccurred())

		core = system.NewCore("Core0", 8)
		as = system.Manager.Create()
		Expect(system.Manager.DefineRegion(as, 0x1000, 0x2000, true, true, false)).
			To(Succeed())
		core.Activate(as)
		Expect(core.WriteUser(0x1000, []byte("hi"))).To(Succeed())

		m = NewMonitor().WithProfileTime(10 * time.Millisecond)
		m.RegisterSystem(system)
		server = httptest.NewServer(m.Router())
	})

	AfterEach(func() {
		server.Close()
	})

	It("should fall back to a random port", func() {
		Expect(NewMonitor().WithPortNumber(80).portNumber).To(BeZero())
		Expect(NewMonitor().WithPortNumber(8080).portNumber).To(Equal(8080))
	})

	It("should list frames", func() {
		var rsp frameRsp
		getJSON("/api/frames", &rsp)

		Expect(rsp.NumFrames).To(Equal(64))
		Expect(rsp.NumFree).To(Equal(system.Frames.NumFree()))
		Expect(rsp.Used).To(HaveLen(64 - rsp.NumFree))
	})

	It("should list page table entries", func() {
		var rsp pageTableRsp
		getJSON("/api/pagetable", &rsp)

		Expect(rsp.NumBuckets).To(Equal(128))
		Expect(rsp.Entries).To(HaveLen(1))
		Expect(rsp.Entries[0].ASID).To(Equal(uint32(as.ID())))
		Expect(rsp.Entries[0].VPN).To(Equal(uint64(1)))
		Expect(rsp.Entries[0].Dirty).To(BeTrue())
	})

	It("should filter page table entries by address space", func() {
		var rsp pageTableRsp
		getJSON("/api/pagetable?asid=999", &rsp)

		Expect(rsp.Entries).To(BeEmpty())

		bad := get("/api/pagetable?asid=abc")
		defer bad.Body.Close()
		Expect(bad.StatusCode).To(Equal(http.StatusBadRequest))
	})

	It("should list address spaces", func() {
		var rsp []addressSpaceRsp
		getJSON("/api/address_spaces", &rsp)

		Expect(rsp).To(Equal([]addressSpaceRsp{{
			ID:          uint32(as.ID()),
			NumRegions:  1,
			MappedPages: 1,
		}}))
	})

	It("should serialize one address space", func() {
		rsp := get("/api/address_space/1")
		defer rsp.Body.Close()

		Expect(rsp.StatusCode).To(Equal(http.StatusOK))

		var body any
		Expect(json.NewDecoder(rsp.Body).Decode(&body)).To(Succeed())
	})

	It("should report unknown address spaces", func() {
		rsp := get("/api/address_space/42")
		defer rsp.Body.Close()

		Expect(rsp.StatusCode).To(Equal(http.StatusNotFound))
	})

	It("should list cores", func() {
		var rsp []coreRsp
		getJSON("/api/cores", &rsp)

		Expect(rsp).To(HaveLen(1))
		Expect(rsp[0].Name).To(Equal("Core0"))
		Expect(rsp[0].Active).To(BeTrue())
		Expect(rsp[0].Faults).To(Equal(uint64(1)))
		Expect(rsp[0].Allocations).To(Equal(uint64(1)))
	})

	It("should report unknown cores", func() {
		rsp := get("/api/core/Core9")
		defer rsp.Body.Close()

		Expect(rsp.StatusCode).To(Equal(http.StatusNotFound))
	})

	It("should list progress bars", func() {
		bar := m.CreateProgressBar("faults", 10)
		bar.IncrementFinished(3)

		var rsp []map[string]any
		getJSON("/api/progress", &rsp)

		Expect(rsp).To(HaveLen(1))
		Expect(rsp[0]["name"]).To(Equal("faults"))
		Expect(rsp[0]["finished"]).To(BeNumerically("==", 3))

		m.CompleteProgressBar(bar)
		getJSON("/api/progress", &rsp)
		Expect(rsp).To(BeEmpty())
	})

	It("should report resources", func() {
		var rsp resourceRsp
		getJSON("/api/resource", &rsp)

		Expect(rsp.MemorySize).To(BeNumerically(">", 0))
	})

	It("should serve the page", func() {
		rsp := get("/")
		defer rsp.Body.Close()

		Expect(rsp.StatusCode).To(Equal(http.StatusOK))
	})
})

var _ = Describe("ProgressBar", func() {
	It("should move items to finished", func() {
		bar := &ProgressBar{Total: 4}

		bar.IncrementInProgress(3)
		bar.MoveInProgressToFinished(2)

		finished, total := bar.Snapshot()
		Expect(finished).To(Equal(uint64(2)))
		Expect(total).To(Equal(uint64(4)))
		Expect(bar.InProgress).To(Equal(uint64(1)))
	})
})
