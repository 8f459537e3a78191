package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/sarchlab/demandvm/datarecording"
	"github.com/sarchlab/demandvm/mem/trace"
	"github.com/sarchlab/demandvm/mem/vm"
	"github.com/sarchlab/demandvm/mem/vm/vmsys"
	"github.com/sarchlab/demandvm/monitoring"
	"github.com/sarchlab/demandvm/platform"
	"github.com/sarchlab/demandvm/sim/hooking"
)

// errLeak is returned when a run ends with frames or mappings left behind.
var errLeak = errors.New("frames or page table entries leaked")

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Boot the VM system and run processes on it.",
	Long: `run boots a machine, brings up the VM system and runs a set of ` +
		`processes on every core. Each process loads its text, writes its ` +
		`data, forks and exits. The run fails if any frame or page table ` +
		`entry is left behind.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd.Flags())
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		cmd.SilenceUsage = true

		return execute(ctx, cfg, cmd.OutOrStdout())
	},
}

func init() {
	registerFlags(runCmd.Flags())
	rootCmd.AddCommand(runCmd)
}

// A session is one booted machine with everything attached to it.
type session struct {
	cfg      config
	logger   *log.Logger
	system   *vmsys.System
	recorder datarecording.DataRecorder
	monitor  *monitoring.Monitor
	counts   *hooking.CountTracer
	latency  *trace.LatencyTracer
}

func boot(cfg config, out io.Writer) (*session, error) {
	logger := log.New(out, "", 0)

	machine := platform.MakeBuilder().
		WithRAMSize(cfg.ramSize).
		WithKernelImageSize(cfg.kernelSize).
		Build()

	system, err := vmsys.Bootstrap(machine, machine.Memory())
	if err != nil {
		return nil, fmt.Errorf("booting: %w", err)
	}

	if system.Frames.NumFree() == 0 {
		return nil, fmt.Errorf("booting: no frame left for processes: %w",
			vm.ErrOutOfMemory)
	}

	logger.Printf("vm: %d frames (%d KiB of RAM), %d free, first free frame %d",
		system.Frames.NumFrames(), cfg.ramSize>>10,
		system.Frames.NumFree(), system.Frames.FreeList()[0])
	logger.Printf("vm: hashed page table with %d buckets",
		system.PageTable.NumBuckets())

	return &session{cfg: cfg, logger: logger, system: system}, nil
}

// attach adds a hook to every component that has hooks.
func (s *session) attach(hook hooking.Hook, w *workload) {
	s.system.Frames.AcceptHook(hook)
	s.system.Manager.AcceptHook(hook)

	for _, core := range w.cores {
		core.AcceptHook(hook)
	}
}

func (s *session) instrument(w *workload) {
	s.counts = hooking.NewCountTracer(nil)
	s.attach(s.counts, w)

	s.latency = trace.NewLatencyTracer(trace.NewWallClock(), nil)
	s.attach(s.latency, w)

	if s.cfg.verbose {
		s.attach(trace.NewTracer(
			log.New(os.Stderr, "", 0), trace.NewWallClock()), w)
	}

	if s.cfg.record != "" {
		s.recorder = datarecording.New(s.cfg.record)
		s.attach(trace.NewDBTracer(s.recorder, trace.NewWallClock()), w)
	}

	if s.cfg.monitor {
		s.monitor = monitoring.NewMonitor().WithPortNumber(s.cfg.monitorPort)
		s.monitor.RegisterSystem(s.system)
		w.bar = s.monitor.CreateProgressBar("Workload", w.numSteps())

		port := s.monitor.StartServer()
		if s.cfg.openBrowser {
			url := fmt.Sprintf("http://localhost:%d", port)
			if err := browser.OpenURL(url); err != nil {
				s.logger.Printf("cannot open %s: %v", url, err)
			}
		}
	}
}

func (s *session) close() error {
	if s.recorder == nil {
		return nil
	}

	return s.recorder.Close()
}

func execute(ctx context.Context, cfg config, out io.Writer) error {
	s, err := boot(cfg, out)
	if err != nil {
		return err
	}

	w := newWorkload(cfg, s.system, s.logger)
	s.instrument(w)

	r, err := w.run(ctx)
	printReport(out, r)
	s.printEvents(out)

	err = errors.Join(err, s.close())
	if err == nil && r.Leaked() {
		err = errLeak
	}

	if err == nil {
		err = s.system.Shutdown()
	}

	if s.monitor != nil {
		s.monitor.CompleteProgressBar(w.bar)

		if cfg.hold {
			s.logger.Printf("monitor is up, press Ctrl+C to exit")
			<-ctx.Done()
		}
	}

	return err
}

func printReport(out io.Writer, r report) {
	fmt.Fprintf(out, "frames: %d total, %d free before, %d free after\n",
		r.NumFrames, r.FreeBefore, r.FreeAfter)
	fmt.Fprintf(out, "page table entries left: %d\n", r.PageTableEntries)

	for _, c := range r.Cores {
		fmt.Fprintf(out, "%s: %d faults, %d frames allocated, "+
			"%d TLB loads, %d failed (%d KiB faulted in)\n",
			c.Name, c.Stats.Faults, c.Stats.Allocations,
			c.Stats.TLBLoads, c.Stats.Failures,
			c.Stats.Allocations*vm.PageSize>>10)
	}
}

func (s *session) printEvents(out io.Writer) {
	for _, name := range s.counts.PosNames() {
		fmt.Fprintf(out, "%s: %d\n", name, s.counts.CountByName(name))
	}

	fmt.Fprintf(out, "fault handling: %d faults, %.3f us on average\n",
		s.latency.TotalCount(), s.latency.AverageTime()*1e6)
}
