// Package monitoring serves the state of a running VM system over HTTP.
package monitoring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/sarchlab/demandvm/mem/vm"
	"github.com/sarchlab/demandvm/mem/vm/addrspace"
	"github.com/sarchlab/demandvm/mem/vm/vmsys"
	"github.com/sarchlab/demandvm/monitoring/web"
	"github.com/sarchlab/demandvm/sim/id"
)

// Monitor turns a VM system into a server that reports the frames, the page
// table, the address spaces and the cores.
type Monitor struct {
	system      *vmsys.System
	portNumber  int
	profileTime time.Duration
	idGenerator id.IDGenerator

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{
		profileTime: time.Second,
		idGenerator: id.NewIDGenerator(),
	}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithProfileTime sets how long /api/profile samples the CPU.
func (m *Monitor) WithProfileTime(d time.Duration) *Monitor {
	m.profileTime = d
	return m
}

// RegisterSystem sets the VM system to be monitored.
func (m *Monitor) RegisterSystem(s *vmsys.System) {
	m.system = s
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        m.idGenerator.Generate(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar to be shown on the webpage.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

// Router returns the handler of all the monitor routes.
func (m *Monitor) Router() http.Handler {
	r := mux.NewRouter()

	fs := web.GetAssets()
	fServer := http.FileServer(fs)
	r.HandleFunc("/api/frames", m.listFrames)
	r.HandleFunc("/api/pagetable", m.listPageTable)
	r.HandleFunc("/api/address_spaces", m.listAddressSpaces)
	r.HandleFunc("/api/address_space/{id}", m.addressSpaceDetails)
	r.HandleFunc("/api/cores", m.listCores)
	r.HandleFunc("/api/core/{name}", m.coreDetails)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.PathPrefix("/").Handler(fServer)

	return r
}

// StartServer starts the monitor as a web server and returns the port it
// listens on.
func (m *Monitor) StartServer() int {
	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	port := listener.Addr().(*net.TCPAddr).Port

	fmt.Fprintf(
		os.Stderr,
		"Monitoring simulation with http://localhost:%d\n",
		port)

	handler := m.Router()

	go func() {
		err := http.Serve(listener, handler)
		dieOnErr(err)
	}()

	return port
}

type frameRsp struct {
	NumFrames int            `json:"num_frames"`
	NumFree   int            `json:"num_free"`
	Used      []frameInfoRsp `json:"used"`
}

type frameInfoRsp struct {
	Frame    uint64 `json:"frame"`
	RefCount uint32 `json:"ref_count"`
}

func (m *Monitor) listFrames(w http.ResponseWriter, _ *http.Request) {
	ft := m.system.Frames

	rsp := frameRsp{
		NumFrames: ft.NumFrames(),
		NumFree:   ft.NumFree(),
		Used:      []frameInfoRsp{},
	}

	for _, info := range ft.Snapshot() {
		if info.Used {
			rsp.Used = append(rsp.Used, frameInfoRsp{
				Frame:    uint64(info.Frame),
				RefCount: info.RefCount,
			})
		}
	}

	writeJSON(w, rsp)
}

type pteRsp struct {
	ASID  uint32 `json:"asid"`
	VPN   uint64 `json:"vpn"`
	Frame uint64 `json:"frame"`
	Dirty bool   `json:"dirty"`
}

type pageTableRsp struct {
	NumBuckets int      `json:"num_buckets"`
	NumEntries int      `json:"num_entries"`
	Entries    []pteRsp `json:"entries"`
}

func (m *Monitor) listPageTable(w http.ResponseWriter, r *http.Request) {
	entries := m.system.PageTable.Entries()

	if asidStr := r.URL.Query().Get("asid"); asidStr != "" {
		asid, err := strconv.ParseUint(asidStr, 10, 32)
		if err != nil {
			http.Error(w, "Invalid asid", http.StatusBadRequest)
			return
		}

		entries = m.system.PageTable.EntriesOf(vm.ASID(asid))
	}

	rsp := pageTableRsp{
		NumBuckets: m.system.PageTable.NumBuckets(),
		NumEntries: len(entries),
		Entries:    make([]pteRsp, 0, len(entries)),
	}

	for _, pte := range entries {
		rsp.Entries = append(rsp.Entries, pteRsp{
			ASID:  uint32(pte.ASID),
			VPN:   uint64(pte.VPN),
			Frame: uint64(pte.Frame),
			Dirty: pte.Dirty(),
		})
	}

	writeJSON(w, rsp)
}

type addressSpaceRsp struct {
	ID          uint32 `json:"id"`
	NumRegions  int    `json:"num_regions"`
	MappedPages int    `json:"mapped_pages"`
}

func (m *Monitor) listAddressSpaces(w http.ResponseWriter, _ *http.Request) {
	rsp := []addressSpaceRsp{}

	for _, as := range m.system.Manager.Live() {
		rsp = append(rsp, addressSpaceRsp{
			ID:          uint32(as.ID()),
			NumRegions:  len(as.Regions()),
			MappedPages: as.NumMappedPages(),
		})
	}

	writeJSON(w, rsp)
}

// addressSpaceView is what goseth serializes for one address space.
type addressSpaceView struct {
	ID          vm.ASID
	Regions     []addrspace.Region
	MappedPages int
}

func (m *Monitor) addressSpaceDetails(w http.ResponseWriter, r *http.Request) {
	idStr := mux.Vars(r)["id"]

	asid, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		http.Error(w, "Invalid address space ID", http.StatusBadRequest)
		return
	}

	as, found := m.system.Manager.Get(vm.ASID(asid))
	if !found {
		http.Error(w, "Address space not found", http.StatusNotFound)
		return
	}

	view := &addressSpaceView{
		ID:          as.ID(),
		Regions:     as.Regions(),
		MappedPages: as.NumMappedPages(),
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(view)
	serializer.SetMaxDepth(3)
	err = serializer.Serialize(w)

	dieOnErr(err)
}

type coreRsp struct {
	Name        string `json:"name"`
	ASID        uint32 `json:"asid"`
	Active      bool   `json:"active"`
	Faults      uint64 `json:"faults"`
	Allocations uint64 `json:"allocations"`
	TLBLoads    uint64 `json:"tlb_loads"`
	Failures    uint64 `json:"failures"`
}

func (m *Monitor) listCores(w http.ResponseWriter, _ *http.Request) {
	rsp := []coreRsp{}

	for _, core := range m.system.Cores() {
		stats := core.Stats()
		c := coreRsp{
			Name:        core.Name(),
			Faults:      stats.Faults,
			Allocations: stats.Allocations,
			TLBLoads:    stats.TLBLoads,
			Failures:    stats.Failures,
		}

		if as := core.Current(); as != nil {
			c.Active = true
			c.ASID = uint32(as.ID())
		}

		rsp = append(rsp, c)
	}

	writeJSON(w, rsp)
}

func (m *Monitor) coreDetails(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	for _, core := range m.system.Cores() {
		if core.Name() != name {
			continue
		}

		serializer := goseth.NewSerializer()
		serializer.SetRoot(core.TLB())
		serializer.SetMaxDepth(1)

		if fields := r.URL.Query().Get("field"); fields != "" {
			err := serializer.SetEntryPoint(strings.Split(fields, "."))
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}

		err := serializer.Serialize(w)
		dieOnErr(err)

		return
	}

	http.Error(w, "Core not found", http.StatusNotFound)
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	bars := m.progressBars
	if bars == nil {
		bars = []*ProgressBar{}
	}

	writeJSON(w, bars)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	rsp := resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	}

	writeJSON(w, rsp)
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	time.Sleep(m.profileTime)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
