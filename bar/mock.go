package bar

import (
	"sync"

	"github.com/daqline/readoutcard/roc"
)

// mockFifoEntries is the depth of the mock's ready FIFO, matching the
// legacy card's firmware.
const mockFifoEntries = 128

// Descriptor records one superpage descriptor pushed to the mock firmware.
type Descriptor struct {
	Link       int
	Pages      int
	BusAddress uintptr
}

// Mock is an in-memory register file implementing Bar and FreeFifoBar.
// Tests drive firmware progress through CompleteSuperpage and AdvanceCount;
// setting AutoComplete instead makes the mock complete every descriptor the
// moment it is pushed, which turns a channel over a Mock into a fully
// functional emulated card.
//
// Unlike the channels, the Mock locks internally: it stands in for hardware,
// which is allowed to make progress concurrently with the driver.
type Mock struct {
	mu sync.Mutex

	// AutoComplete completes descriptors as soon as they are pushed,
	// provided the emulator is armed.
	AutoComplete bool

	// Features is the firmware feature bitset reported to channels.
	// Populate it before handing the Mock to a channel; channels snapshot
	// it at construction.
	Features FirmwareFeatures

	// MockSerial, MockTemperature, MockFirmware, and MockCardID are the
	// telemetry values served by the corresponding reads.
	MockSerial      int32
	MockTemperature float64
	MockFirmware    string
	MockCardID      string

	counts      map[int]uint32
	outstanding map[int]int
	descriptors []Descriptor

	emulator   bool
	dataTaking bool
	debugMode  bool
	dataSource uint32

	cardResets      int
	generatorResets int
	injectedErrors  int
	dropped         int32

	generatorPattern  roc.GeneratorPattern
	generatorDataSize int
	generatorSeed     uint32

	freeFifo  [mockFifoEntries]uintptr
	readyLen  [mockFifoEntries]int32
	readyStat [mockFifoEntries]int32
	fifoPages int
}

// NewMock returns a mock register file with every firmware feature enabled
// and plausible telemetry values.
func NewMock() *Mock {
	m := &Mock{
		Features: FirmwareFeatures{
			FirmwareInfo:  true,
			Serial:        true,
			Temperature:   true,
			DataSelection: true,
			ChipID:        true,
		},
		MockSerial:      11225,
		MockTemperature: 41.5,
		MockFirmware:    "mock-firmware 0.1.0",
		MockCardID:      "mock-0000",
		counts:          make(map[int]uint32),
		outstanding:     make(map[int]int),
	}
	m.ResetReadyFifo()
	return m
}

// SuperpageCount implements Bar.
func (m *Mock) SuperpageCount(link int) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[link]
}

// PushSuperpageDescriptor implements Bar.
func (m *Mock) PushSuperpageDescriptor(link, pages int, busAddress uintptr) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.descriptors = append(m.descriptors, Descriptor{Link: link, Pages: pages, BusAddress: busAddress})
	m.outstanding[link]++
	if m.AutoComplete && m.emulator {
		m.counts[link]++
		m.outstanding[link]--
	}
}

// CompleteSuperpage advances the completion counter of a link by one,
// consuming one outstanding descriptor.  It returns false if the link has
// no outstanding descriptors, so tests notice when their bookkeeping and
// the mock's disagree.
func (m *Mock) CompleteSuperpage(link int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outstanding[link] == 0 {
		return false
	}
	m.outstanding[link]--
	m.counts[link]++
	return true
}

// AdvanceCount moves a link's completion counter without regard for
// outstanding descriptors.  Tests use it to simulate a misbehaving firmware.
func (m *Mock) AdvanceCount(link int, n uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[link] += n
}

// Descriptors returns a copy of every descriptor pushed so far.
func (m *Mock) Descriptors() []Descriptor {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Descriptor, len(m.descriptors))
	copy(out, m.descriptors)
	return out
}

// SetDataGeneratorPattern implements Bar.
func (m *Mock) SetDataGeneratorPattern(pattern roc.GeneratorPattern, dataSize int, seed uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generatorPattern = pattern
	m.generatorDataSize = dataSize
	m.generatorSeed = seed
}

// GeneratorConfig returns the last generator configuration written.
func (m *Mock) GeneratorConfig() (roc.GeneratorPattern, int, uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generatorPattern, m.generatorDataSize, m.generatorSeed
}

// ResetDataGeneratorCounter implements Bar.
func (m *Mock) ResetDataGeneratorCounter() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generatorResets++
}

// DataGeneratorInjectError implements Bar.
func (m *Mock) DataGeneratorInjectError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.injectedErrors++
}

// InjectedErrors returns how many error injections were requested.
func (m *Mock) InjectedErrors() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.injectedErrors
}

// SetDataSource implements Bar.
func (m *Mock) SetDataSource(source uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dataSource = source
}

// DataSource returns the last data source selection written.
func (m *Mock) DataSource() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dataSource
}

// SetDataEmulatorEnabled implements Bar.  With AutoComplete set, arming the
// emulator completes descriptors pushed before it was armed.
func (m *Mock) SetDataEmulatorEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emulator = enabled
	if enabled && m.AutoComplete {
		m.sweepOutstanding()
	}
}

// EmulatorEnabled returns the armed state of the data path.
func (m *Mock) EmulatorEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.emulator
}

// EnableDataTaking implements Bar.
func (m *Mock) EnableDataTaking() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dataTaking = true
}

// sweepOutstanding completes every outstanding descriptor.  Callers hold mu.
func (m *Mock) sweepOutstanding() {
	for link, n := range m.outstanding {
		m.counts[link] += uint32(n)
		m.outstanding[link] = 0
	}
}

// DisableDataTaking implements Bar.
func (m *Mock) DisableDataTaking() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dataTaking = false
}

// DataTaking returns the state of the data-taking gate.
func (m *Mock) DataTaking() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dataTaking
}

// ResetCard implements Bar.  It zeroes the completion counters and forgets
// outstanding descriptors, as a hardware reset does.
func (m *Mock) ResetCard() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cardResets++
	m.counts = make(map[int]uint32)
	m.outstanding = make(map[int]int)
}

// CardResets returns how many card resets were issued.
func (m *Mock) CardResets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cardResets
}

// GeneratorResets returns how many generator counter resets were issued.
func (m *Mock) GeneratorResets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generatorResets
}

// DebugModeEnabled implements Bar.
func (m *Mock) DebugModeEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.debugMode
}

// SetDebugModeEnabled implements Bar.
func (m *Mock) SetDebugModeEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.debugMode = enabled
}

// FirmwareFeatures implements Bar.
func (m *Mock) FirmwareFeatures() FirmwareFeatures {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Features
}

// Serial implements Bar.
func (m *Mock) Serial() int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.MockSerial
}

// Temperature implements Bar.
func (m *Mock) Temperature() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.MockTemperature
}

// FirmwareInfo implements Bar.
func (m *Mock) FirmwareInfo() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.MockFirmware
}

// CardID implements Bar.
func (m *Mock) CardID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.MockCardID
}

// SetDroppedPackets sets the dropped packet counter served to channels.
func (m *Mock) SetDroppedPackets(n int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped = n
}

// DroppedPackets implements Bar.
func (m *Mock) DroppedPackets() int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}

// PushFreeFifoPage implements FreeFifoBar.
func (m *Mock) PushFreeFifoPage(index int, busAddress uintptr) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.freeFifo[index%mockFifoEntries] = busAddress
	m.fifoPages++
	if m.AutoComplete && m.emulator && m.dataTaking {
		m.readyLen[index%mockFifoEntries] = 0
		m.readyStat[index%mockFifoEntries] = ReadyFifoStatusDone
	}
}

// ReadyFifoEntry implements FreeFifoBar.
func (m *Mock) ReadyFifoEntry(index int) (int32, int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := index % mockFifoEntries
	return m.readyLen[i], m.readyStat[i]
}

// ResetReadyFifo implements FreeFifoBar.
func (m *Mock) ResetReadyFifo() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.readyStat {
		m.readyStat[i] = ReadyFifoStatusNone
		m.readyLen[i] = 0
	}
}

// ResetReadyFifoEntry implements FreeFifoBar.
func (m *Mock) ResetReadyFifoEntry(index int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := index % mockFifoEntries
	m.readyStat[i] = ReadyFifoStatusNone
	m.readyLen[i] = 0
}

// MarkPageArrived sets a ready FIFO entry to the whole-arrived state.
func (m *Mock) MarkPageArrived(index int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readyStat[index%mockFifoEntries] = ReadyFifoStatusDone
}

// MarkPagePartial sets a ready FIFO entry to a partial arrival of the given
// byte count.
func (m *Mock) MarkPagePartial(index int, bytes int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readyStat[index%mockFifoEntries] = 1
	m.readyLen[index%mockFifoEntries] = bytes
}
