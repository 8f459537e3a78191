package cmd

import (
	"bytes"
	"context"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/sarchlab/demandvm/mem/vm"
	"github.com/sarchlab/demandvm/mem/vm/addrspace"
	"github.com/sarchlab/demandvm/mem/vm/mmu"
	"github.com/sarchlab/demandvm/mem/vm/vmsys"
	"github.com/sarchlab/demandvm/monitoring"
)

// Where the regions of every process start.
const (
	textBase uint64 = 0x400000
	dataBase uint64 = 0x10000000
)

type process struct {
	pid int
	as  *addrspace.AddressSpace
	sp  uint64
}

// A workload spawns processes on the cores of a VM system, forks them and
// tears everything down.
type workload struct {
	cfg    config
	system *vmsys.System
	cores  []*mmu.Comp
	logger *log.Logger
	bar    *monitoring.ProgressBar
}

// coreReport is what one core did during the run.
type coreReport struct {
	Name  string
	Stats mmu.Stats
}

// report summarizes a run.
type report struct {
	NumFrames        int
	FreeBefore       int
	FreeAfter        int
	PageTableEntries int
	Cores            []coreReport
}

// Leaked tells if the run did not give back every frame and mapping.
func (r report) Leaked() bool {
	return r.FreeAfter != r.FreeBefore || r.PageTableEntries != 0
}

func newWorkload(
	cfg config,
	system *vmsys.System,
	logger *log.Logger,
) *workload {
	w := &workload{
		cfg:    cfg,
		system: system,
		logger: logger,
	}

	for i := 0; i < cfg.numCores; i++ {
		w.cores = append(w.cores,
			system.NewCore(fmt.Sprintf("Core%d", i), cfg.tlbEntries))
	}

	return w
}

// numSteps returns the number of steps the progress bar counts.
func (w *workload) numSteps() uint64 {
	return uint64(w.cfg.numProcs * (w.cfg.numForks + 2))
}

func (w *workload) step() {
	if w.bar != nil {
		w.bar.IncrementFinished(1)
	}
}

func (w *workload) run(ctx context.Context) (report, error) {
	r := report{
		NumFrames:  w.system.Frames.NumFrames(),
		FreeBefore: w.system.Frames.NumFree(),
	}

	procs := make([]*process, w.cfg.numProcs)

	err := w.onEachCore(ctx, func(core *mmu.Comp, pid int) error {
		p, err := w.spawn(core, pid)
		procs[pid] = p

		return err
	})

	if err == nil {
		err = w.faultShared(ctx, procs[0])
	}

	if err == nil {
		err = w.onEachCore(ctx, func(core *mmu.Comp, pid int) error {
			return w.forkAll(core, procs[pid])
		})
	}

	for _, p := range procs {
		if p == nil {
			continue
		}

		if destroyErr := w.system.Manager.Destroy(p.as); destroyErr != nil &&
			err == nil {
			err = destroyErr
		}

		w.step()
	}

	r.FreeAfter = w.system.Frames.NumFree()
	r.PageTableEntries = w.system.PageTable.Len()

	for _, core := range w.cores {
		r.Cores = append(r.Cores, coreReport{
			Name:  core.Name(),
			Stats: core.Stats(),
		})
	}

	return r, err
}

// onEachCore runs the processes in parallel, one goroutine per core. Process
// pid runs on core pid modulo the number of cores.
func (w *workload) onEachCore(
	ctx context.Context,
	f func(core *mmu.Comp, pid int) error,
) error {
	g, ctx := errgroup.WithContext(ctx)

	for i, core := range w.cores {
		g.Go(func() error {
			defer core.Deactivate()

			for pid := i; pid < w.cfg.numProcs; pid += len(w.cores) {
				if err := ctx.Err(); err != nil {
					return err
				}

				if err := f(core, pid); err != nil {
					return fmt.Errorf("%s, process %d: %w", core.Name(), pid, err)
				}
			}

			return nil
		})
	}

	return g.Wait()
}

func pattern(pid int, tag byte, n uint64) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(pid*31+i) ^ tag
	}

	return data
}

// spawn loads a process the way exec does: define the regions, fill the
// read-only text while loading, then touch the data and the stack.
func (w *workload) spawn(core *mmu.Comp, pid int) (*process, error) {
	m := w.system.Manager
	size := w.cfg.numPages * vm.PageSize

	as := m.Create()
	p := &process{pid: pid, as: as}

	if err := m.DefineRegion(as, textBase, size, true, false, true); err != nil {
		return p, err
	}

	if err := m.DefineRegion(as, dataBase, size, true, true, false); err != nil {
		return p, err
	}

	sp, err := m.DefineStack(as)
	if err != nil {
		return p, err
	}

	p.sp = sp

	core.Activate(as)

	if err := m.PrepareLoad(as); err != nil {
		return p, err
	}

	if err := core.WriteUser(textBase, pattern(pid, 't', size)); err != nil {
		return p, err
	}

	if err := m.CompleteLoad(as); err != nil {
		return p, err
	}

	core.Activate(as)

	if err := core.WriteUser(dataBase, pattern(pid, 'd', size)); err != nil {
		return p, err
	}

	if err := core.WriteUser(sp-8, pattern(pid, 's', 8)); err != nil {
		return p, err
	}

	w.logger.Printf("process %d spawned on %s with ASID %d, %d pages mapped",
		pid, core.Name(), as.ID(), as.NumMappedPages())
	w.step()

	return p, nil
}

// faultShared makes every core read the data of one process at the same
// time. Each page must end up with a single frame.
func (w *workload) faultShared(ctx context.Context, p *process) error {
	before := w.system.Frames.NumFree()
	size := w.cfg.numPages * vm.PageSize

	g, ctx := errgroup.WithContext(ctx)

	for _, core := range w.cores {
		g.Go(func() error {
			defer core.Deactivate()

			if err := ctx.Err(); err != nil {
				return err
			}

			core.Activate(p.as)

			data, err := core.ReadUser(dataBase, size)
			if err != nil {
				return err
			}

			if !bytes.Equal(data, pattern(p.pid, 'd', size)) {
				return fmt.Errorf("%s read corrupted data of process %d",
					core.Name(), p.pid)
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	if after := w.system.Frames.NumFree(); after != before {
		return fmt.Errorf("reading mapped pages took %d frames", before-after)
	}

	return nil
}

func (w *workload) forkAll(core *mmu.Comp, parent *process) error {
	for i := 0; i < w.cfg.numForks; i++ {
		if err := w.fork(core, parent); err != nil {
			return err
		}

		w.step()
	}

	return nil
}

// fork copies the parent, checks that the child sees the same bytes, lets
// the child write its data and checks that the parent does not see it.
func (w *workload) fork(core *mmu.Comp, parent *process) (err error) {
	m := w.system.Manager
	size := w.cfg.numPages * vm.PageSize

	child, err := m.Copy(parent.as)
	if err != nil {
		return err
	}

	defer func() {
		core.Deactivate()

		if destroyErr := m.Destroy(child); destroyErr != nil && err == nil {
			err = destroyErr
		}
	}()

	core.Activate(child)

	if err = expectUser(core, textBase, pattern(parent.pid, 't', size)); err != nil {
		return err
	}

	if err = expectUser(core, dataBase, pattern(parent.pid, 'd', size)); err != nil {
		return err
	}

	if err = core.WriteUser(dataBase, pattern(parent.pid, 'c', size)); err != nil {
		return err
	}

	core.Activate(parent.as)

	return expectUser(core, dataBase, pattern(parent.pid, 'd', size))
}

func expectUser(core *mmu.Comp, vaddr uint64, expected []byte) error {
	data, err := core.ReadUser(vaddr, uint64(len(expected)))
	if err != nil {
		return err
	}

	if !bytes.Equal(data, expected) {
		return fmt.Errorf("unexpected bytes at %#x", vaddr)
	}

	return nil
}
