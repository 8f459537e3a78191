package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/pflag"
)

// config holds the parameters of one run.
type config struct {
	ramSize     uint64
	kernelSize  uint64
	tlbEntries  int
	numCores    int
	numProcs    int
	numPages    uint64
	numForks    int
	record      string
	verbose     bool
	monitor     bool
	monitorPort int
	openBrowser bool
	hold        bool
}

// Environment variables that override the defaults of the flags.
const (
	envRAM        = "VMSIM_RAM"
	envKernel     = "VMSIM_KERNEL"
	envTLBEntries = "VMSIM_TLB_ENTRIES"
	envCores      = "VMSIM_CORES"
)

func defaultConfig() config {
	return config{
		ramSize:     4 << 20,
		kernelSize:  512 << 10,
		tlbEntries:  64,
		numCores:    4,
		numProcs:    8,
		numPages:    8,
		numForks:    2,
		monitorPort: 0,
	}
}

func registerFlags(flags *pflag.FlagSet) {
	d := defaultConfig()

	flags.Uint64("ram", d.ramSize, "RAM size in bytes [$"+envRAM+"]")
	flags.Uint64("kernel", d.kernelSize,
		"size of the kernel image in bytes [$"+envKernel+"]")
	flags.Int("tlb", d.tlbEntries,
		"number of TLB entries per core [$"+envTLBEntries+"]")
	flags.Int("cores", d.numCores, "number of cores [$"+envCores+"]")
	flags.Int("procs", d.numProcs, "number of processes")
	flags.Uint64("pages", d.numPages, "pages in the text and data regions")
	flags.Int("forks", d.numForks, "times each process forks")
	flags.String("record", "", "record the run into this SQLite file")
	flags.Bool("verbose", false, "print every fault and frame event")
	flags.Bool("monitor", false, "serve the state of the run over HTTP")
	flags.Int("monitor-port", d.monitorPort, "port of the monitor")
	flags.Bool("open", false, "open the monitor in a browser")
	flags.Bool("hold", false, "keep the monitor up after the run")
}

// loadConfig reads the flags. A flag that is not set on the command line
// takes its value from the environment, if there is one.
func loadConfig(flags *pflag.FlagSet) (config, error) {
	r := flagReader{flags: flags}

	c := config{
		ramSize:     r.getUint64("ram", envRAM),
		kernelSize:  r.getUint64("kernel", envKernel),
		tlbEntries:  r.getInt("tlb", envTLBEntries),
		numCores:    r.getInt("cores", envCores),
		numProcs:    r.getInt("procs", ""),
		numPages:    r.getUint64("pages", ""),
		numForks:    r.getInt("forks", ""),
		record:      r.getString("record"),
		verbose:     r.getBool("verbose"),
		monitor:     r.getBool("monitor"),
		monitorPort: r.getInt("monitor-port", ""),
		openBrowser: r.getBool("open"),
		hold:        r.getBool("hold"),
	}

	if r.err != nil {
		return config{}, r.err
	}

	return c, c.validate()
}

// flagReader keeps the first error so that flags can be read in one go.
type flagReader struct {
	flags *pflag.FlagSet
	err   error
}

func (r *flagReader) keep(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *flagReader) env(name, env string) (string, bool) {
	if env == "" || r.flags.Changed(name) {
		return "", false
	}

	return os.LookupEnv(env)
}

func (r *flagReader) getUint64(name, env string) uint64 {
	if s, ok := r.env(name, env); ok {
		v, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			r.keep(fmt.Errorf("parsing $%s: %w", env, err))
		}

		return v
	}

	v, err := r.flags.GetUint64(name)
	r.keep(err)

	return v
}

func (r *flagReader) getInt(name, env string) int {
	if s, ok := r.env(name, env); ok {
		v, err := strconv.Atoi(s)
		if err != nil {
			r.keep(fmt.Errorf("parsing $%s: %w", env, err))
		}

		return v
	}

	v, err := r.flags.GetInt(name)
	r.keep(err)

	return v
}

func (r *flagReader) getString(name string) string {
	v, err := r.flags.GetString(name)
	r.keep(err)

	return v
}

func (r *flagReader) getBool(name string) bool {
	v, err := r.flags.GetBool(name)
	r.keep(err)

	return v
}

func (c config) validate() error {
	switch {
	case c.kernelSize == 0 || c.kernelSize >= c.ramSize:
		return fmt.Errorf("kernel image of %d bytes does not fit in %d bytes of RAM",
			c.kernelSize, c.ramSize)
	case c.tlbEntries <= 0:
		return fmt.Errorf("TLB needs at least one entry, got %d", c.tlbEntries)
	case c.numCores <= 0:
		return fmt.Errorf("need at least one core, got %d", c.numCores)
	case c.numProcs <= 0:
		return fmt.Errorf("need at least one process, got %d", c.numProcs)
	case c.numPages == 0:
		return errors.New("regions need at least one page")
	case c.numForks < 0:
		return errors.New("number of forks cannot be negative")
	}

	return nil
}
