/*Package crorc drives the DMA channel of the legacy single-link readout card.

The card has no links to schedule across: one transfer queue and one ready
queue play the roles they do on the multi-link card.  What it adds is a
lower level of bookkeeping: superpages are offered to the firmware one DMA
page at a time through a fixed-depth free FIFO, and the driver must track
that FIFO's circular front/back index pair itself.  Page arrival is
reported per free FIFO entry in a parallel ready FIFO, which is what allows
the stop drain to account partially delivered bytes instead of assuming
full superpages.

DMA does not actually start until the first superpage is pushed; the card
needs at least one page in its free FIFO before the engine may be armed.
*/
package crorc

import (
	"fmt"
	"log"
	"time"

	"github.com/daqline/readoutcard/bar"
	"github.com/daqline/readoutcard/dmabuf"
	"github.com/daqline/readoutcard/roc"
)

const (
	// SuperpageSize is the superpage size supported by the CRORC backend
	SuperpageSize = 1 * 1024 * 1024

	// ReadyFifoEntries is the depth of the firmware FIFO pair, one entry
	// per DMA page
	ReadyFifoEntries = 128

	// TransferQueueCapacity is the number of superpages whose pages fit
	// the firmware FIFO at the default page size
	TransferQueueCapacity = SuperpageSize / (ReadyFifoEntries * roc.DefaultDmaPageSize)

	// ReadyQueueCapacity is the depth of the ready queue.  An arbitrary
	// size, easily increased if more headroom is needed.
	ReadyQueueCapacity = TransferQueueCapacity

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

// Channel is a DMA channel on the legacy single-link card.  Use New to
// create one; the zero value is not usable.
type Channel struct {
	bar    bar.FreeFifoBar
	region *dmabuf.Region

	transferQueue *roc.SuperpageQueue
	readyQueue    *roc.SuperpageQueue

	// circular index pair of the firmware free FIFO: back is the oldest
	// occupied slot, size the number of occupied slots
	freeFifoBack int
	freeFifoSize int

	superpageCounter uint32

	// pendingDmaStart is true between StartDma and the first push; the
	// engine is armed only once a superpage is available to fill
	pendingDmaStart bool

	state    channelState
	features bar.FirmwareFeatures

	loopback          roc.LoopbackMode
	generatorEnabled  bool
	generatorPattern  roc.GeneratorPattern
	generatorDataSize int
	generatorSeed     uint32
	pageSize          int

	sleep func(time.Duration)
}

// New creates a channel over the given register access and DMA region.
// Invalid parameter combinations fail here; the channel is never created.
func New(b bar.FreeFifoBar, region *dmabuf.Region, params roc.Parameters) (*Channel, error) {
	mode, err := roc.ValidateLoopbackMode(params.LoopbackMode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", roc.ErrConfiguration, err)
	}
	if mode == roc.LoopbackDdg {
		return nil, fmt.Errorf("%w: CRORC does not support ddg loopback", roc.ErrConfiguration)
	}
	pattern, err := roc.ValidateGeneratorPattern(params.GeneratorPattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", roc.ErrConfiguration, err)
	}
	if len(params.LinkMask) > 1 || (len(params.LinkMask) == 1 && params.LinkMask[0] != 0) {
		return nil, fmt.Errorf("%w: CRORC has a single link, link mask must be empty or {0}", roc.ErrConfiguration)
	}
	if params.DmaPageSize != 0 && params.DmaPageSize != region.PageSize() {
		return nil, fmt.Errorf("%w: configured DMA page size %d does not match the region's %d", roc.ErrConfiguration, params.DmaPageSize, region.PageSize())
	}

	transferCap := params.LinkQueueCapacity
	if transferCap == 0 {
		transferCap = TransferQueueCapacity
	}
	readyCap := params.ReadyQueueCapacity
	if readyCap == 0 {
		readyCap = ReadyQueueCapacity
	}

	c := &Channel{
		bar:               b,
		region:            region,
		transferQueue:     roc.NewSuperpageQueue(transferCap),
		readyQueue:        roc.NewSuperpageQueue(readyCap),
		features:          b.FirmwareFeatures(),
		loopback:          mode,
		generatorEnabled:  !params.GeneratorDisabled,
		generatorPattern:  pattern,
		generatorDataSize: params.GeneratorDataSize,
		generatorSeed:     params.GeneratorSeed,
		pageSize:          region.PageSize(),
		sleep:             time.Sleep,
	}
	if c.generatorDataSize == 0 {
		c.generatorDataSize = c.pageSize
	}
	log.Printf("crorc: generator enabled: %t | loopback mode: %s", c.generatorEnabled, roc.FormatLoopbackMode(mode))
	return c, nil
}

// CardType implements roc.DmaChannel.
func (c *Channel) CardType() roc.CardType {
	return roc.CardCrorc
}

// StartDma prepares a DMA session.  The engine itself is not armed until
// the first superpage is pushed; the card requires a page in its free FIFO
// before data receiving may begin.
func (c *Channel) StartDma() error {
	if c.state != stateIdle {
		return fmt.Errorf("%w: DMA already started", roc.ErrInvalidState)
	}

	c.resetCard()
	c.bar.ResetReadyFifo()
	c.transferQueue.Clear()
	c.readyQueue.Clear()
	c.freeFifoBack = 0
	c.freeFifoSize = 0
	c.superpageCounter = 0

	if c.generatorEnabled {
		c.bar.SetDataGeneratorPattern(c.generatorPattern, c.generatorDataSize, c.generatorSeed)
	}

	c.pendingDmaStart = true
	c.state = stateRunning
	log.Print("crorc: DMA start deferred until a superpage is pushed")
	return nil
}

// startPendingDma arms the engine once the first superpage is in the FIFO.
func (c *Channel) startPendingDma() {
	c.bar.SetDataEmulatorEnabled(true)
	c.sleep(emulatorSettle)
	c.bar.EnableDataTaking()
	c.pendingDmaStart = false
	log.Print("crorc: DMA started")
}

// StopDma closes the data-taking gate and drains all available completions
// plus one extra, possibly partly filled superpage, preserving its received
// byte accounting from the ready FIFO.
func (c *Channel) StopDma() error {
	if c.state != stateRunning {
		return fmt.Errorf("%w: DMA not started", roc.ErrInvalidState)
	}
	c.bar.DisableDataTaking()
	c.bar.SetDataEmulatorEnabled(false)
	c.pendingDmaStart = false

	count := c.bar.SuperpageCount(0)
	amount := count - c.superpageCounter
	moved := 0
	// one extra iteration for a possibly partly filled superpage
	for j := uint32(0); j < amount+1; j++ {
		if c.readyQueue.Full() {
			break
		}
		if c.transferQueue.Empty() {
			break
		}
		c.transferToReady(j < amount)
		moved++
	}
	if !c.transferQueue.Empty() {
		return fmt.Errorf("%w: transfer queue not empty after stop drain (%d left)", roc.ErrInternalConsistency, c.transferQueue.Len())
	}
	log.Printf("crorc: moved %d remaining superpage(s) to ready queue", moved)
	c.state = stateIdle
	return nil
}

// ResetChannel re-issues the reset sequence.  External levels additionally
// reset the DIU/SIU path.  It is a no-op for ResetNothing and not allowed
// while DMA is running.
func (c *Channel) ResetChannel(level roc.ResetLevel) error {
	if c.state != stateIdle {
		return fmt.Errorf("%w: cannot reset while DMA is running", roc.ErrInvalidState)
	}
	if level == roc.ResetNothing {
		return nil
	}
	if level.IncludesExternal() {
		log.Printf("crorc: resetting with external level %s", roc.FormatResetLevel(level))
	}
	c.resetCard()
	return nil
}

func (c *Channel) resetCard() {
	c.bar.ResetDataGeneratorCounter()
	c.sleep(resetSettle)
	c.bar.ResetCard()
	c.sleep(resetSettle)
}

// Close releases the channel, disarming the data path.
func (c *Channel) Close() error {
	c.bar.SetDataEmulatorEnabled(false)
	if n := c.readyQueue.Len(); n > 0 {
		log.Printf("crorc: remaining superpages in the ready queue: %d", n)
	}
	return nil
}

// PushSuperpage validates a superpage, pushes its pages into the firmware
// free FIFO one at a time, and appends it to the transfer queue.  The first
// push after StartDma arms the DMA engine.
func (c *Channel) PushSuperpage(sp roc.Superpage) error {
	if c.state != stateRunning {
		return fmt.Errorf("%w: DMA not started", roc.ErrInvalidState)
	}
	if err := c.region.CheckSuperpage(sp); err != nil {
		return err
	}
	pages := c.region.Pages(sp.Size)
	if pages > ReadyFifoEntries {
		return fmt.Errorf("%w: superpage spans %d pages, the firmware FIFO holds %d", roc.ErrInvalidSuperpage, pages, ReadyFifoEntries)
	}
	if c.transferQueue.Full() {
		return fmt.Errorf("%w: could not push superpage, transfer queue was full", roc.ErrQueueFull)
	}
	if c.freeFifoSize+pages > ReadyFifoEntries {
		return fmt.Errorf("%w: could not push superpage, free FIFO has %d of %d slots occupied", roc.ErrQueueFull, c.freeFifoSize, ReadyFifoEntries)
	}

	front := c.freeFifoFront()
	for i := 0; i < pages; i++ {
		c.bar.PushFreeFifoPage((front+i)%ReadyFifoEntries, c.region.BusAddress(sp.Offset+i*c.pageSize))
	}
	c.freeFifoSize += pages
	// cannot fail, fullness was checked above
	c.transferQueue.Push(sp)

	if c.pendingDmaStart {
		c.startPendingDma()
	}
	return nil
}

// freeFifoFront returns the index of the next free FIFO slot to write.
func (c *Channel) freeFifoFront() int {
	return (c.freeFifoBack + c.freeFifoSize) % ReadyFifoEntries
}

// transferToReady moves the front superpage to the ready queue, retiring
// its pages from the free FIFO.  complete marks it fully received; the
// stop drain passes false for the trailing superpage and keeps whatever
// byte count the ready FIFO reports.
func (c *Channel) transferToReady(complete bool) {
	sp, err := c.transferQueue.Pop()
	if err != nil {
		// unreachable; callers check for emptiness
		panic("crorc: transfer from empty queue")
	}
	pages := c.region.Pages(sp.Size)
	if complete {
		sp.Received = sp.Size
		sp.Ready = true
	} else {
		sp.Received = c.receivedBytes(pages)
		if sp.Received > sp.Size {
			sp.Received = sp.Size
		}
	}
	for i := 0; i < pages; i++ {
		c.bar.ResetReadyFifoEntry((c.freeFifoBack + i) % ReadyFifoEntries)
	}
	c.freeFifoBack = (c.freeFifoBack + pages) % ReadyFifoEntries
	c.freeFifoSize -= pages
	c.superpageCounter++
	c.readyQueue.Push(sp)
}

// receivedBytes sums the ready FIFO accounting for the front superpage's
// pages: whole pages count fully, a partial page counts its reported
// length, and scanning stops at the first page that has not arrived.
func (c *Channel) receivedBytes(pages int) int {
	total := 0
	for i := 0; i < pages; i++ {
		length, status := c.bar.ReadyFifoEntry((c.freeFifoBack + i) % ReadyFifoEntries)
		switch status {
		case bar.ReadyFifoStatusNone:
			return total
		case bar.ReadyFifoStatusDone:
			total += c.pageSize
		default:
			return total + int(length)
		}
	}
	return total
}

// FillSuperpages reconciles the firmware completion counter against the
// driver's, draining newly completed superpages into the ready queue
// oldest first.  See the cru package for the shared contract; the single
// link makes this the degenerate case.
func (c *Channel) FillSuperpages() error {
	if c.pendingDmaStart {
		return nil
	}
	count := c.bar.SuperpageCount(0)
	amount := count - c.superpageCounter
	if amount > uint32(c.transferQueue.Len()) {
		log.Printf("crorc: FATAL: firmware reported more superpages available (%d) than present in FIFO (%d); %d received according to driver, %d according to firmware",
			amount, c.transferQueue.Len(), c.superpageCounter, count)
		return fmt.Errorf("%w: %d available with %d outstanding (driver count %d, firmware count %d)",
			roc.ErrProtocolViolation, amount, c.transferQueue.Len(), c.superpageCounter, count)
	}
	for j := uint32(0); j < amount; j++ {
		if c.readyQueue.Full() {
			break
		}
		c.transferToReady(true)
	}
	return nil
}

// GetSuperpage peeks the front of the ready queue without removing it.
func (c *Channel) GetSuperpage() (roc.Superpage, error) {
	sp, err := c.readyQueue.Front()
	if err != nil {
		return roc.Superpage{}, fmt.Errorf("could not get superpage: %w", err)
	}
	return sp, nil
}

// PopSuperpage removes and returns the front of the ready queue.
func (c *Channel) PopSuperpage() (roc.Superpage, error) {
	sp, err := c.readyQueue.Pop()
	if err != nil {
		return roc.Superpage{}, fmt.Errorf("could not pop superpage: %w", err)
	}
	return sp, nil
}

// TransferQueueAvailable returns the remaining push capacity.
func (c *Channel) TransferQueueAvailable() int {
	return c.transferQueue.Available()
}

// IsTransferQueueEmpty returns true when no superpages are in flight.
func (c *Channel) IsTransferQueueEmpty() bool {
	return c.transferQueue.Empty()
}

// ReadyQueueSize returns the number of superpages awaiting a pop.
func (c *Channel) ReadyQueueSize() int {
	return c.readyQueue.Len()
}

// IsReadyQueueFull returns true when the ready queue is at capacity.
func (c *Channel) IsReadyQueueFull() bool {
	return c.readyQueue.Full()
}

// DroppedPackets implements roc.DmaChannel.
func (c *Channel) DroppedPackets() int32 {
	return c.bar.DroppedPackets()
}

// InjectError implements roc.DmaChannel.  The CRORC generator has no error
// injection, so it always returns false.
func (c *Channel) InjectError() bool {
	return false
}

// Serial returns the card serial number.
func (c *Channel) Serial() (int32, error) {
	if !c.features.Serial {
		return 0, roc.ErrNotSupported
	}
	return c.bar.Serial(), nil
}

// Temperature is not readable on this card; the error is always
// roc.ErrNotSupported.
func (c *Channel) Temperature() (float64, error) {
	return 0, roc.ErrNotSupported
}

// FirmwareInfo returns the firmware description.
func (c *Channel) FirmwareInfo() (string, error) {
	if !c.features.FirmwareInfo {
		return "", roc.ErrNotSupported
	}
	return c.bar.FirmwareInfo(), nil
}

// CardID is not readable on this card; the error is always
// roc.ErrNotSupported.
func (c *Channel) CardID() (string, error) {
	return "", roc.ErrNotSupported
}
