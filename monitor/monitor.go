/*Package monitor keeps rolling health histories of a DMA channel.

A Monitor samples the channel on a fixed cadence into ring buffers of
temperature, ready queue depth, and dropped packet counts, and can serve
the series over HTTP.  Shifter tooling polls it to spot a card drifting hot
or a consumer falling behind without scraping the full status endpoint.
*/
package monitor

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/brandondube/ringo"
	"github.com/go-chi/chi"

	"github.com/daqline/readoutcard/roc"
)

// Monitor samples a DMA channel and stores ring buffers of the results
type Monitor struct {
	mu sync.Mutex

	Temp    ringo.CircleF64
	Ready   ringo.CircleF64
	Dropped ringo.CircleF64
	Time    ringo.CircleTime

	ch     roc.DmaChannel
	tempOK bool
	ticker *time.Ticker
	stop   chan struct{}
}

type history struct {
	Temp    *[]float64   `json:"temp"`
	Ready   *[]float64   `json:"ready"`
	Dropped *[]float64   `json:"dropped"`
	Time    *[]time.Time `json:"timestamp"`
}

// New creates a new Monitor over a channel and initializes the internal
// machinery.  capacity samples are retained per series.
func New(ch roc.DmaChannel, tick time.Duration, capacity int) *Monitor {
	m := &Monitor{
		ch:     ch,
		ticker: time.NewTicker(tick),
		stop:   make(chan struct{}),
	}
	m.Temp.Init(capacity)
	m.Ready.Init(capacity)
	m.Dropped.Init(capacity)
	m.Time.Init(capacity)
	// probe once so unsupported firmware is skipped instead of logged
	// every tick
	_, err := ch.Temperature()
	m.tempOK = err == nil
	return m
}

// Start triggers operation of the monitor
func (m *Monitor) Start() {
	go m.runner()
}

// Stop kills the monitor.  It may be restarted.
func (m *Monitor) Stop() {
	m.stop <- struct{}{}
}

// Sample takes one sample immediately.  The runner calls it on each tick;
// tests call it directly.
func (m *Monitor) Sample() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Time.Append(time.Now())
	m.Ready.Append(float64(m.ch.ReadyQueueSize()))
	m.Dropped.Append(float64(m.ch.DroppedPackets()))
	if m.tempOK {
		if t, err := m.ch.Temperature(); err == nil {
			m.Temp.Append(t)
		}
	}
}

func (m *Monitor) runner() {
	for {
		select {
		case <-m.ticker.C:
			m.Sample()
		case <-m.stop:
			return
		}
	}
}

func (m *Monitor) snapshot() history {
	m.mu.Lock()
	defer m.mu.Unlock()
	bufTemp := m.Temp.Contiguous()
	bufReady := m.Ready.Contiguous()
	bufDropped := m.Dropped.Contiguous()
	bufTime := m.Time.Contiguous()
	return history{
		Temp:    &bufTemp,
		Ready:   &bufReady,
		Dropped: &bufDropped,
		Time:    &bufTime,
	}
}

// HTTPYield returns every series over HTTP as one JSON object
func (m *Monitor) HTTPYield(w http.ResponseWriter, r *http.Request) {
	s := m.snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	err := json.NewEncoder(w).Encode(s)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HTTPSeries returns a single series chosen by the {series} URL parameter,
// one of temp, ready, dropped
func (m *Monitor) HTTPSeries(w http.ResponseWriter, r *http.Request) {
	series := chi.URLParam(r, "series")
	m.mu.Lock()
	var buf []float64
	switch series {
	case "temp":
		buf = m.Temp.Contiguous()
	case "ready":
		buf = m.Ready.Contiguous()
	case "dropped":
		buf = m.Dropped.Contiguous()
	default:
		m.mu.Unlock()
		http.Error(w, "series must be a member of {temp, ready, dropped}, got "+series, http.StatusBadRequest)
		return
	}
	m.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	err := json.NewEncoder(w).Encode(buf)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// Router returns a router serving the history routes
func (m *Monitor) Router() chi.Router {
	r := chi.NewRouter()
	r.Get("/", m.HTTPYield)
	r.Get("/{series}", m.HTTPSeries)
	return r
}
