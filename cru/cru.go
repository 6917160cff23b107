/*Package cru drives the DMA channel of the multi-link readout card.

The card exposes up to 32 links, each an independent sub-channel that fills
superpages asynchronously.  The driver keeps one bounded transfer queue per
link mirroring the firmware's descriptor FIFO, plus one global ready queue
of completed superpages.  Reconciliation is pull-based: the client calls
FillSuperpages on its poll cycle, the channel compares the firmware's
cumulative completion counter per link against its own, and drains the
difference from the link queues into the ready queue.  Within a link,
superpages complete strictly in the order they were pushed; across links no
order is promised.

All methods are single-goroutine; the hardware is observed only through the
polled counters of the bar.Bar collaborator.
*/
package cru

import (
	"fmt"
	"log"
	"time"

	"github.com/daqline/readoutcard/bar"
	"github.com/daqline/readoutcard/dmabuf"
	"github.com/daqline/readoutcard/roc"
	"github.com/daqline/readoutcard/util"
)

const (
	// MaxLinks is the number of links the card supports
	MaxLinks = 32

	// LinkQueueCapacity is the depth of the firmware's per-link
	// descriptor FIFO
	LinkQueueCapacity = 32

	// ReadyQueueCapacity is the depth of the driver's ready queue
	ReadyQueueCapacity = 32

	// emulatorSettle is the wait after arming the data path
	emulatorSettle = 10 * time.Millisecond

	// resetSettle is the wait after each step of the reset sequence
	resetSettle = 100 * time.Millisecond
)

type channelState int

const (
	stateIdle channelState = iota
	stateRunning
)

// link is one hardware sub-channel: its own transfer queue plus the
// driver's count of superpages it believes the link has completed since
// DMA start.  The counter only increases and never exceeds the firmware's.
type link struct {
	id               int
	queue            *roc.SuperpageQueue
	superpageCounter uint32
}

// Channel is a DMA channel on the multi-link card.  Use New to create one;
// the zero value is not usable.
type Channel struct {
	bar    bar.Bar
	region *dmabuf.Region

	links                    []link
	readyQueue               *roc.SuperpageQueue
	linkQueuesTotalAvailable int
	linkQueueCapacity        int

	features bar.FirmwareFeatures
	state    channelState

	loopback          roc.LoopbackMode
	generatorEnabled  bool
	generatorPattern  roc.GeneratorPattern
	generatorDataSize int
	generatorSeed     uint32
	initialResetLevel roc.ResetLevel
	pageSize          int
	dataSource        uint32

	// debugRegisterReset is true only if this channel flipped the debug
	// mode register on, so Close does not clobber state set by another
	// owner.
	debugRegisterReset bool

	sleep func(time.Duration)
}

// New creates a channel over the given register access and DMA region.
// Invalid parameter combinations fail here; the channel is never created.
func New(b bar.Bar, region *dmabuf.Region, params roc.Parameters) (*Channel, error) {
	mode, err := roc.ValidateLoopbackMode(params.LoopbackMode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", roc.ErrConfiguration, err)
	}
	if mode == roc.LoopbackDiu || mode == roc.LoopbackSiu {
		return nil, fmt.Errorf("%w: CRU does not support %s loopback", roc.ErrConfiguration, roc.FormatLoopbackMode(mode))
	}
	pattern, err := roc.ValidateGeneratorPattern(params.GeneratorPattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", roc.ErrConfiguration, err)
	}
	resetLevel, err := roc.ValidateResetLevel(params.InitialResetLevel)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", roc.ErrConfiguration, err)
	}
	if params.DmaPageSize != 0 && params.DmaPageSize != region.PageSize() {
		return nil, fmt.Errorf("%w: configured DMA page size %d does not match the region's %d", roc.ErrConfiguration, params.DmaPageSize, region.PageSize())
	}
	if region.PageSize() != roc.DefaultDmaPageSize {
		log.Printf("cru: DMA page size %d is not the firmware default %d; behaviour undefined", region.PageSize(), roc.DefaultDmaPageSize)
	}

	generatorEnabled := !params.GeneratorDisabled
	dataSource, err := selectDataSource(generatorEnabled, mode)
	if err != nil {
		return nil, err
	}

	ids, err := params.Links(MaxLinks)
	if err != nil {
		return nil, err
	}

	linkCap := params.LinkQueueCapacity
	if linkCap == 0 {
		linkCap = LinkQueueCapacity
	}
	readyCap := params.ReadyQueueCapacity
	if readyCap == 0 {
		readyCap = ReadyQueueCapacity
	}

	c := &Channel{
		bar:                b,
		region:             region,
		readyQueue:         roc.NewSuperpageQueue(readyCap),
		linkQueueCapacity:  linkCap,
		features:           b.FirmwareFeatures(),
		loopback:           mode,
		generatorEnabled:   generatorEnabled,
		generatorPattern:   pattern,
		generatorDataSize:  params.GeneratorDataSize,
		generatorSeed:      params.GeneratorSeed,
		initialResetLevel:  resetLevel,
		pageSize:           region.PageSize(),
		dataSource:         dataSource,
		sleep:              time.Sleep,
	}
	if c.generatorDataSize == 0 {
		c.generatorDataSize = c.pageSize
	}

	c.links = make([]link, len(ids))
	for i, id := range ids {
		c.links[i] = link{id: id, queue: roc.NewSuperpageQueue(linkCap)}
	}
	c.linkQueuesTotalAvailable = linkCap * len(c.links)

	if c.features.Standalone {
		logMissingFeatures(c.features)
	}
	log.Printf("cru: enabled links: %s", util.IntSliceToCSV(ids))
	log.Printf("cru: generator enabled: %t | loopback mode: %s", c.generatorEnabled, roc.FormatLoopbackMode(mode))

	if resetLevel != roc.ResetNothing {
		c.resetCard()
	}
	return c, nil
}

// selectDataSource maps the generator/loopback combination onto the data
// source selection register, rejecting combinations the card cannot do.
func selectDataSource(generatorEnabled bool, mode roc.LoopbackMode) (uint32, error) {
	if generatorEnabled {
		switch mode {
		case roc.LoopbackInternal:
			return bar.DataSourceInternal, nil
		case roc.LoopbackDdg:
			return bar.DataSourceGBT, nil
		default:
			return 0, fmt.Errorf("%w: CRU only supports internal or ddg loopback with the data generator", roc.ErrConfiguration)
		}
	}
	if mode != roc.LoopbackNone {
		return 0, fmt.Errorf("%w: CRU only supports loopback mode none without the data generator", roc.ErrConfiguration)
	}
	return bar.DataSourceGBT, nil
}

func logMissingFeatures(f bar.FirmwareFeatures) {
	missing := ""
	if !f.FirmwareInfo {
		missing += " firmware-info"
	}
	if !f.Serial {
		missing += " serial-number"
	}
	if !f.Temperature {
		missing += " temperature"
	}
	if !f.DataSelection {
		missing += " data-selection"
	}
	if missing != "" {
		log.Printf("cru: standalone firmware features disabled:%s", missing)
	}
}

// CardType implements roc.DmaChannel.
func (c *Channel) CardType() roc.CardType {
	return roc.CardCru
}

// StartDma arms the data path and begins a DMA session: the generator and
// data source are configured, the card is reset, every queue and counter is
// reinitialized, the data emulator is enabled (with a settle wait), and the
// data-taking gate is opened.
func (c *Channel) StartDma() error {
	if c.state != stateIdle {
		return fmt.Errorf("%w: DMA already started", roc.ErrInvalidState)
	}

	if c.generatorEnabled {
		c.bar.SetDataGeneratorPattern(c.generatorPattern, c.generatorDataSize, c.generatorSeed)
		if c.loopback == roc.LoopbackInternal {
			c.enableDebugMode()
		}
	}

	if c.features.DataSelection {
		c.bar.SetDataSource(c.dataSource)
	} else {
		log.Print("cru: did not set data source, feature not supported by firmware")
	}

	// reset after the link mask and data source are in place
	c.resetCard()

	for i := range c.links {
		c.links[i].queue.Clear()
		c.links[i].superpageCounter = 0
	}
	c.readyQueue.Clear()
	c.linkQueuesTotalAvailable = c.linkQueueCapacity * len(c.links)

	c.setBufferReady()

	if c.dataSource == bar.DataSourceGBT {
		// make sure we don't start from a bad state
		c.bar.DisableDataTaking()
		c.bar.EnableDataTaking()
	}

	c.state = stateRunning
	return nil
}

// setBufferReady arms the data path.  The settle wait is a deliberate
// hardware-settling delay; register operations are not valid before it
// completes.
func (c *Channel) setBufferReady() {
	c.bar.SetDataEmulatorEnabled(true)
	c.sleep(emulatorSettle)
}

func (c *Channel) setBufferNonReady() {
	c.bar.SetDataEmulatorEnabled(false)
}

// StopDma closes the data-taking gate, then drains every link one final
// time: all firmware-confirmed completions plus one extra, possibly partly
// filled superpage, bounded by ready queue capacity.  Afterward every link
// queue must be empty and the full push capacity must be advertised again.
func (c *Channel) StopDma() error {
	if c.state != stateRunning {
		return fmt.Errorf("%w: DMA not started", roc.ErrInvalidState)
	}
	c.setBufferNonReady()
	c.bar.DisableDataTaking()

	moved := 0
	for i := range c.links {
		l := &c.links[i]
		count := c.bar.SuperpageCount(l.id)
		amount := count - l.superpageCounter
		// one extra iteration for a possibly partly filled superpage
		for j := uint32(0); j < amount+1; j++ {
			if c.readyQueue.Full() {
				break
			}
			if l.queue.Empty() {
				break
			}
			c.transferToReady(l, j < amount)
			moved++
		}
		if !l.queue.Empty() {
			return fmt.Errorf("%w: link %d transfer queue not empty after stop drain (%d left)", roc.ErrInternalConsistency, l.id, l.queue.Len())
		}
	}
	if c.linkQueuesTotalAvailable != c.linkQueueCapacity*len(c.links) {
		return fmt.Errorf("%w: %d transfer slots advertised after stop drain, want %d", roc.ErrInternalConsistency, c.linkQueuesTotalAvailable, c.linkQueueCapacity*len(c.links))
	}
	log.Printf("cru: moved %d remaining superpage(s) to ready queue", moved)
	c.state = stateIdle
	return nil
}

// ResetChannel re-issues the hardware reset sequence.  It is a no-op for
// ResetNothing and not allowed while DMA is running.
func (c *Channel) ResetChannel(level roc.ResetLevel) error {
	if c.state != stateIdle {
		return fmt.Errorf("%w: cannot reset while DMA is running", roc.ErrInvalidState)
	}
	if level == roc.ResetNothing {
		return nil
	}
	c.resetCard()
	return nil
}

// resetCard issues the reset sequence: generator counter reset, settle,
// card reset, settle.
func (c *Channel) resetCard() {
	c.bar.ResetDataGeneratorCounter()
	c.sleep(resetSettle)
	c.bar.ResetCard()
	c.sleep(resetSettle)
}

// Close releases the channel.  The data path is disarmed, remaining ready
// superpages are reported, and the debug register is restored if this
// channel set it.
func (c *Channel) Close() error {
	c.setBufferNonReady()
	if n := c.readyQueue.Len(); n > 0 {
		log.Printf("cru: remaining superpages in the ready queue: %d", n)
	}
	if c.loopback == roc.LoopbackInternal {
		c.resetDebugMode()
	}
	return nil
}

func (c *Channel) enableDebugMode() {
	if !c.bar.DebugModeEnabled() {
		c.bar.SetDebugModeEnabled(true)
		c.debugRegisterReset = true
	}
}

func (c *Channel) resetDebugMode() {
	if c.debugRegisterReset {
		c.bar.SetDebugModeEnabled(false)
	}
}

// DroppedPackets implements roc.DmaChannel.
func (c *Channel) DroppedPackets() int32 {
	return c.bar.DroppedPackets()
}

// InjectError makes the data generator corrupt one word.  It returns false
// if the generator is not active.
func (c *Channel) InjectError() bool {
	if c.generatorEnabled {
		c.bar.DataGeneratorInjectError()
		return true
	}
	return false
}

// Serial returns the card serial number.  The error is roc.ErrNotSupported
// if the firmware feature bit captured at construction is unset.
func (c *Channel) Serial() (int32, error) {
	if !c.features.Serial {
		return 0, roc.ErrNotSupported
	}
	return c.bar.Serial(), nil
}

// Temperature returns the card temperature in Celsius, gated like Serial.
func (c *Channel) Temperature() (float64, error) {
	if !c.features.Temperature {
		return 0, roc.ErrNotSupported
	}
	return c.bar.Temperature(), nil
}

// FirmwareInfo returns the firmware description, gated like Serial.
func (c *Channel) FirmwareInfo() (string, error) {
	if !c.features.FirmwareInfo {
		return "", roc.ErrNotSupported
	}
	return c.bar.FirmwareInfo(), nil
}

// CardID returns the card identifier, gated like Serial.
func (c *Channel) CardID() (string, error) {
	if !c.features.ChipID {
		return "", roc.ErrNotSupported
	}
	return c.bar.CardID(), nil
}
