package trace

import (
	"sync"

	"github.com/sarchlab/demandvm/mem/vm"
	"github.com/sarchlab/demandvm/mem/vm/mmu"
	"github.com/sarchlab/demandvm/sim/hooking"
)

// FaultFilter selects the faults a LatencyTracer measures.
type FaultFilter func(rec vm.FaultRecord) bool

// LatencyTracer collects the total and average time the fault handler spends
// on the selected faults. Faults on different cores may overlap, in which
// case their times are simply added.
type LatencyTracer struct {
	timeTeller TimeTeller
	filter     FaultFilter

	lock       sync.Mutex
	inflight   map[hooking.Hookable]float64
	totalTime  float64
	faultCount uint64
}

// NewLatencyTracer creates a LatencyTracer. A nil filter measures every
// fault.
func NewLatencyTracer(timeTeller TimeTeller, filter FaultFilter) *LatencyTracer {
	return &LatencyTracer{
		timeTeller: timeTeller,
		filter:     filter,
		inflight:   make(map[hooking.Hookable]float64),
	}
}

// Func records the start and the end of a fault.
func (t *LatencyTracer) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case mmu.HookPosFaultStart:
		t.startFault(ctx.Domain, ctx.Item.(vm.FaultRecord))
	case mmu.HookPosFaultEnd:
		t.endFault(ctx.Domain)
	}
}

func (t *LatencyTracer) startFault(core hooking.Hookable, rec vm.FaultRecord) {
	if t.filter != nil && !t.filter(rec) {
		return
	}

	now := t.timeTeller.CurrentTime()

	t.lock.Lock()
	t.inflight[core] = now
	t.lock.Unlock()
}

func (t *LatencyTracer) endFault(core hooking.Hookable) {
	t.lock.Lock()
	defer t.lock.Unlock()

	start, ok := t.inflight[core]
	if !ok {
		return
	}

	t.totalTime += t.timeTeller.CurrentTime() - start
	t.faultCount++

	delete(t.inflight, core)
}

// TotalTime returns the time spent on the measured faults.
func (t *LatencyTracer) TotalTime() float64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.totalTime
}

// AverageTime returns the average time of a measured fault, or 0 if none
// has completed.
func (t *LatencyTracer) AverageTime() float64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.faultCount == 0 {
		return 0
	}

	return t.totalTime / float64(t.faultCount)
}

// TotalCount returns the number of measured faults.
func (t *LatencyTracer) TotalCount() uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.faultCount
}
