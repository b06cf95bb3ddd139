// Package monitoring serves decoded page tables over HTTP.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/sarchlab/ptdump/datarecording"
	"github.com/sarchlab/ptdump/paging"
)

// Monitor turns a memory reader into a server that decodes page tables on
// request.
type Monitor struct {
	reader     paging.Reader
	hooks      []paging.Hook
	logger     *slog.Logger
	portNumber int

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar

	server *http.Server
}

// NewMonitor creates a new Monitor that reads tables from reader.
func NewMonitor(reader paging.Reader) *Monitor {
	return &Monitor{
		reader: reader,
		logger: slog.Default(),
	}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithHook registers a hook that is attached to every walk the monitor
// performs.
func (m *Monitor) WithHook(hook paging.Hook) *Monitor {
	m.hooks = append(m.hooks, hook)
	return m
}

// WithLogger sets the logger used by the monitor and its walkers.
func (m *Monitor) WithLogger(logger *slog.Logger) *Monitor {
	m.logger = logger
	return m
}

// Router returns the HTTP routes of the monitor.
func (m *Monitor) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/walk/{base}", m.walkTable).Methods(http.MethodGet)
	r.HandleFunc("/api/entry/{base}/{slot:[0-9]+}", m.entryDetails).
		Methods(http.MethodGet)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)

	return r
}

// StartServer starts serving in the background and returns the URL of the
// server.
func (m *Monitor) StartServer() (string, error) {
	listener, err := net.Listen("tcp", ":"+strconv.Itoa(m.portNumber))
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(os.Stderr, "Serving page tables with %s\n", url)

	m.server = &http.Server{
		Handler:           m.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		err := m.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("monitoring server stopped", "error", err)
		}
	}()

	return url, nil
}

// Shutdown stops the server started by StartServer.
func (m *Monitor) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}

	return m.server.Shutdown(ctx)
}

func (m *Monitor) createProgressBar(name string) *ProgressBar {
	bar := newProgressBar(name, paging.EntriesPerTable)

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

func (m *Monitor) completeProgressBar(pb *ProgressBar) {
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

func (m *Monitor) parseTableParams(
	w http.ResponseWriter,
	r *http.Request,
) (base uint64, level paging.Level, ok bool) {
	base, err := paging.ParseAddress(mux.Vars(r)["base"])
	if err != nil {
		httpError(w, http.StatusBadRequest, err)
		return 0, 0, false
	}

	level, err = paging.ParseLevel(r.URL.Query().Get("level"))
	if err != nil {
		httpError(w, http.StatusBadRequest, err)
		return 0, 0, false
	}

	return base, level, true
}

type walkRsp struct {
	Walk    datarecording.WalkRow    `json:"walk"`
	Entries []datarecording.EntryRow `json:"entries"`
}

func (m *Monitor) walkTable(w http.ResponseWriter, r *http.Request) {
	base, level, ok := m.parseTableParams(w, r)
	if !ok {
		return
	}

	bar := m.createProgressBar(fmt.Sprintf("%#x", base))
	b := paging.MakeBuilder().
		WithReader(m.reader).
		WithLevel(level).
		WithLogger(m.logger).
		WithHook(&progressHook{monitor: m, bar: bar})

	for _, h := range m.hooks {
		b = b.WithHook(h)
	}

	t, err := b.Build().Walk(r.Context(), base)
	if err != nil && !errors.Is(err, paging.ErrCancelled) {
		httpError(w, http.StatusInternalServerError, err)
		return
	}

	records := t.NonEmpty()
	if r.URL.Query().Get("all") == "true" {
		records = t.Records
	}

	rsp := walkRsp{
		Walk:    datarecording.MakeWalkRow(t),
		Entries: make([]datarecording.EntryRow, 0, len(records)),
	}

	for i := range records {
		rsp.Entries = append(rsp.Entries,
			datarecording.MakeEntryRow(t.ID, &records[i]))
	}

	writeJSON(w, rsp)
}

type entryView struct {
	Entry   paging.Entry
	Addr    uint64
	Mapping paging.Mapping
	Error   string
}

func (m *Monitor) entryDetails(w http.ResponseWriter, r *http.Request) {
	base, level, ok := m.parseTableParams(w, r)
	if !ok {
		return
	}

	slot, err := strconv.Atoi(mux.Vars(r)["slot"])
	if err != nil || slot >= paging.EntriesPerTable {
		httpError(w, http.StatusBadRequest,
			fmt.Errorf("slot must be between 0 and %d", paging.EntriesPerTable-1))
		return
	}

	base, _ = paging.AlignBase(base)
	if level == 0 {
		level, _ = paging.InferLevel(base)
	}

	addr := base + uint64(slot)*paging.EntrySize
	raw, err := m.reader.ReadUint64(addr)
	if err != nil {
		httpError(w, http.StatusNotFound, &paging.ReadError{Addr: addr, Err: err})
		return
	}

	entry := paging.DecodeEntry(raw, slot, level)
	view := entryView{Entry: entry, Addr: addr}

	view.Mapping, err = paging.ComputeMapping(level, base, entry)
	if err != nil {
		view.Error = err.Error()
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(&view)
	serializer.SetMaxDepth(2)

	if err := serializer.Serialize(w); err != nil {
		m.logger.Error("serializing entry failed", "error", err)
	}
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()

	bars := make([]progressBarRsp, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		bars = append(bars, b.snapshot())
	}

	m.progressBarsLock.Unlock()

	writeJSON(w, bars)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		httpError(w, http.StatusInternalServerError, err)
		return
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		httpError(w, http.StatusInternalServerError, err)
		return
	}

	memorySize, err := proc.MemoryInfo()
	if err != nil {
		httpError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, r *http.Request) {
	duration := time.Second
	if s := r.URL.Query().Get("seconds"); s != "" {
		seconds, err := strconv.ParseFloat(s, 64)
		if err != nil || seconds <= 0 {
			httpError(w, http.StatusBadRequest,
				fmt.Errorf("invalid profile duration %q", s))
			return
		}

		duration = time.Duration(seconds * float64(time.Second))
	}

	buf := bytes.NewBuffer(nil)

	if err := pprof.StartCPUProfile(buf); err != nil {
		httpError(w, http.StatusConflict, err)
		return
	}

	time.Sleep(duration)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	if err != nil {
		httpError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		httpError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func httpError(w http.ResponseWriter, status int, err error) {
	w.WriteHeader(status)
	fmt.Fprintf(w, "Error: %s", err)
}
