// Package trace provides hooks that record the activity of the virtual
// memory system.
package trace

import (
	"log"
	"sync"
	"time"

	"github.com/sarchlab/demandvm/datarecording"
	"github.com/sarchlab/demandvm/mem/vm"
	"github.com/sarchlab/demandvm/mem/vm/addrspace"
	"github.com/sarchlab/demandvm/mem/vm/frametable"
	"github.com/sarchlab/demandvm/mem/vm/mmu"
	"github.com/sarchlab/demandvm/sim/hooking"
	"github.com/sarchlab/demandvm/sim/id"
)

// A TimeTeller tells the time, in seconds, at which an event is recorded.
type TimeTeller interface {
	CurrentTime() float64
}

type wallClock struct {
	start time.Time
}

// NewWallClock returns a TimeTeller that counts seconds from now.
func NewWallClock() TimeTeller {
	return wallClock{start: time.Now()}
}

func (c wallClock) CurrentTime() float64 {
	return time.Since(c.start).Seconds()
}

type named interface {
	Name() string
}

func locationOf(domain hooking.Hookable) string {
	if n, ok := domain.(named); ok {
		return n.Name()
	}

	return ""
}

// faultEntry represents one page fault in the database
type faultEntry struct {
	ID        string
	Location  string
	Kind      string
	VAddr     uint64
	ASID      uint32
	Frame     uint64
	Allocated bool
	Dirty     bool
	Status    int
	StartTime float64
	EndTime   float64
}

// frameEntry represents a frame allocation or release in the database
type frameEntry struct {
	ID    string
	What  string
	Frame uint64
	Time  float64
}

// addressSpaceEntry represents an address space event in the database
type addressSpaceEntry struct {
	ID     string
	What   string
	ASID   uint32
	Parent uint32
	Time   float64
}

// A tracer is a hook that prints the activity of the VM system as lines of
// comma-separated values.
type tracer struct {
	timeTeller TimeTeller
	logger     *log.Logger
}

// NewTracer creates a new Tracer.
func NewTracer(logger *log.Logger, timeTeller TimeTeller) hooking.Hook {
	t := new(tracer)
	t.logger = logger
	t.timeTeller = timeTeller

	return t
}

// Func prints one line per event.
func (t *tracer) Func(ctx hooking.HookCtx) {
	now := t.timeTeller.CurrentTime()

	switch ctx.Pos {
	case mmu.HookPosFaultStart:
		rec := ctx.Item.(vm.FaultRecord)
		t.logger.Printf("fault_start, %.9f, %s, %s, 0x%x\n",
			now, locationOf(ctx.Domain), rec.Kind, rec.VAddr)
	case mmu.HookPosFaultEnd:
		rec := ctx.Item.(vm.FaultRecord)
		t.logger.Printf("fault_end, %.9f, %s, %s, 0x%x, %d, %d, %d\n",
			now, locationOf(ctx.Domain), rec.Kind, rec.VAddr,
			rec.ASID, rec.Frame, vm.Status(rec.Err))
	case frametable.HookPosFrameAlloc:
		t.logger.Printf("frame_alloc, %.9f, %d\n", now, ctx.Item.(vm.Frame))
	case frametable.HookPosFrameFree:
		t.logger.Printf("frame_free, %.9f, %d\n", now, ctx.Item.(vm.Frame))
	case addrspace.HookPosCreate,
		addrspace.HookPosCopy,
		addrspace.HookPosDestroy:
		as := ctx.Item.(*addrspace.AddressSpace)
		t.logger.Printf("%s, %.9f, %d\n", ctx.Pos.Name, now, as.ID())
	}
}

// A DBTracer is a hook that records the activity of the VM system into a
// database using the data recorder.
type DBTracer struct {
	timeTeller   TimeTeller
	dataRecorder datarecording.DataRecorder
	idGenerator  id.IDGenerator

	lock          sync.Mutex
	pendingFaults map[hooking.Hookable]*faultEntry
}

// Table names used by the DBTracer.
const (
	FaultTable        = "faults"
	FrameTable        = "frame_events"
	AddressSpaceTable = "address_space_events"
)

// NewDBTracer creates a new database-based tracer.
func NewDBTracer(
	dataRecorder datarecording.DataRecorder,
	timeTeller TimeTeller,
) *DBTracer {
	t := &DBTracer{
		timeTeller:    timeTeller,
		dataRecorder:  dataRecorder,
		idGenerator:   id.NewIDGenerator(),
		pendingFaults: make(map[hooking.Hookable]*faultEntry),
	}

	t.dataRecorder.CreateTable(FaultTable, faultEntry{})
	t.dataRecorder.CreateTable(FrameTable, frameEntry{})
	t.dataRecorder.CreateTable(AddressSpaceTable, addressSpaceEntry{})

	return t
}

// Func records the event.
func (t *DBTracer) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case mmu.HookPosFaultStart:
		t.startFault(ctx)
	case mmu.HookPosFaultEnd:
		t.endFault(ctx)
	case frametable.HookPosFrameAlloc:
		t.recordFrame("alloc", ctx.Item.(vm.Frame))
	case frametable.HookPosFrameFree:
		t.recordFrame("free", ctx.Item.(vm.Frame))
	case addrspace.HookPosCreate:
		t.recordAddressSpace("create", ctx.Item.(*addrspace.AddressSpace), nil)
	case addrspace.HookPosDestroy:
		t.recordAddressSpace("destroy", ctx.Item.(*addrspace.AddressSpace), nil)
	case addrspace.HookPosCopy:
		parent, _ := ctx.Detail.(*addrspace.AddressSpace)
		t.recordAddressSpace("copy", ctx.Item.(*addrspace.AddressSpace), parent)
	}
}

// A core handles one fault at a time, so pending faults are keyed by the
// core that raised them.
func (t *DBTracer) startFault(ctx hooking.HookCtx) {
	rec := ctx.Item.(vm.FaultRecord)

	entry := &faultEntry{
		ID:        t.idGenerator.Generate(),
		Location:  locationOf(ctx.Domain),
		Kind:      rec.Kind.String(),
		VAddr:     rec.VAddr,
		ASID:      uint32(rec.ASID),
		StartTime: t.timeTeller.CurrentTime(),
	}

	t.lock.Lock()
	t.pendingFaults[ctx.Domain] = entry
	t.lock.Unlock()
}

func (t *DBTracer) endFault(ctx hooking.HookCtx) {
	rec := ctx.Item.(vm.FaultRecord)

	t.lock.Lock()
	entry, exists := t.pendingFaults[ctx.Domain]
	delete(t.pendingFaults, ctx.Domain)
	t.lock.Unlock()

	if !exists {
		return
	}

	entry.EndTime = t.timeTeller.CurrentTime()
	entry.Status = vm.Status(rec.Err)

	if rec.Succeeded() {
		entry.Frame = uint64(rec.Frame)
		entry.Allocated = rec.AllocatedFrame
		entry.Dirty = rec.Dirty
	}

	t.dataRecorder.InsertData(FaultTable, *entry)
}

func (t *DBTracer) recordFrame(what string, frame vm.Frame) {
	t.dataRecorder.InsertData(FrameTable, frameEntry{
		ID:    t.idGenerator.Generate(),
		What:  what,
		Frame: uint64(frame),
		Time:  t.timeTeller.CurrentTime(),
	})
}

func (t *DBTracer) recordAddressSpace(
	what string,
	as, parent *addrspace.AddressSpace,
) {
	entry := addressSpaceEntry{
		ID:   t.idGenerator.Generate(),
		What: what,
		ASID: uint32(as.ID()),
		Time: t.timeTeller.CurrentTime(),
	}

	if parent != nil {
		entry.Parent = uint32(parent.ID())
	}

	t.dataRecorder.InsertData(AddressSpaceTable, entry)
}
