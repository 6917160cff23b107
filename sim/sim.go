/*Package sim provides a simulated DMA channel.

It exists so the readout stack can be built and exercised on machines
without a card installed: the client surface is identical to the hardware
variants, but superpages are "filled" by the host itself.  Every superpage
in the transfer queue completes on the next FillSuperpages call, with its
payload produced by the generator package so downstream consumers can
verify the data path end to end.
*/
package sim

import (
	"fmt"
	"log"

	"github.com/daqline/readoutcard/dmabuf"
	"github.com/daqline/readoutcard/generator"
	"github.com/daqline/readoutcard/roc"
)

const (
	// TransferQueueCapacity is the default depth of the transfer queue
	TransferQueueCapacity = 32

	// ReadyQueueCapacity is the default depth of the ready queue
	ReadyQueueCapacity = 32
)

type channelState int

const (
	stateIdle channelState = iota
	stateRunning
)

// Channel is a simulated DMA channel.  Use New to create one; the zero
// value is not usable.
type Channel struct {
	region *dmabuf.Region
	buffer []byte

	transferQueue *roc.SuperpageQueue
	readyQueue    *roc.SuperpageQueue

	state channelState

	generatorEnabled bool
	generatorPattern roc.GeneratorPattern
	generatorSeed    uint32

	// errorPending corrupts one word of the next filled superpage,
	// mimicking the hardware generator's error injection
	errorPending bool
}

// New creates a simulated channel backed by bufferSize bytes of host
// memory standing in for the mapped DMA region.
func New(bufferSize int, params roc.Parameters) (*Channel, error) {
	pattern, err := roc.ValidateGeneratorPattern(params.GeneratorPattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", roc.ErrConfiguration, err)
	}
	region, err := dmabuf.NewRegion(0, bufferSize, params.PageSize())
	if err != nil {
		return nil, err
	}

	transferCap := params.LinkQueueCapacity
	if transferCap == 0 {
		transferCap = TransferQueueCapacity
	}
	readyCap := params.ReadyQueueCapacity
	if readyCap == 0 {
		readyCap = ReadyQueueCapacity
	}

	return &Channel{
		region:           region,
		buffer:           make([]byte, bufferSize),
		transferQueue:    roc.NewSuperpageQueue(transferCap),
		readyQueue:       roc.NewSuperpageQueue(readyCap),
		generatorEnabled: !params.GeneratorDisabled,
		generatorPattern: pattern,
		generatorSeed:    params.GeneratorSeed,
	}, nil
}

// CardType implements roc.DmaChannel.
func (c *Channel) CardType() roc.CardType {
	return roc.CardSim
}

// Region returns the simulated DMA region, for carving superpages out of.
func (c *Channel) Region() *dmabuf.Region {
	return c.region
}

// Bytes returns the simulated buffer contents backing a superpage.  Only
// superpages popped from the ready queue should be read.
func (c *Channel) Bytes(sp roc.Superpage) []byte {
	return c.buffer[sp.Offset : sp.Offset+sp.Size]
}

// StartDma begins a session, clearing both queues.
func (c *Channel) StartDma() error {
	if c.state != stateIdle {
		return fmt.Errorf("%w: DMA already started", roc.ErrInvalidState)
	}
	c.transferQueue.Clear()
	c.readyQueue.Clear()
	c.state = stateRunning
	return nil
}

// StopDma drains whatever remains in the transfer queue into the ready
// queue, bounded by ready queue capacity.
func (c *Channel) StopDma() error {
	if c.state != stateRunning {
		return fmt.Errorf("%w: DMA not started", roc.ErrInvalidState)
	}
	if err := c.FillSuperpages(); err != nil {
		return err
	}
	if !c.transferQueue.Empty() {
		log.Printf("sim: %d superpage(s) left in flight, ready queue full", c.transferQueue.Len())
	}
	c.state = stateIdle
	return nil
}

// ResetChannel implements roc.DmaChannel.  The simulation has no hardware
// to reset.
func (c *Channel) ResetChannel(level roc.ResetLevel) error {
	if c.state != stateIdle {
		return fmt.Errorf("%w: cannot reset while DMA is running", roc.ErrInvalidState)
	}
	return nil
}

// Close implements roc.DmaChannel.
func (c *Channel) Close() error {
	return nil
}

// PushSuperpage validates a superpage and appends it to the transfer queue.
func (c *Channel) PushSuperpage(sp roc.Superpage) error {
	if err := c.region.CheckSuperpage(sp); err != nil {
		return err
	}
	if err := c.transferQueue.Push(sp); err != nil {
		return fmt.Errorf("%w: could not push superpage, transfer queue was full", err)
	}
	return nil
}

// FillSuperpages completes every in-flight superpage, filling its payload
// with the generator pattern, bounded by ready queue capacity.
func (c *Channel) FillSuperpages() error {
	for !c.transferQueue.Empty() && !c.readyQueue.Full() {
		sp, _ := c.transferQueue.Pop()
		if c.generatorEnabled {
			buf := c.buffer[sp.Offset : sp.Offset+sp.Size]
			if err := generator.Fill(buf, c.generatorPattern, c.generatorSeed); err != nil {
				return err
			}
			if c.errorPending {
				buf[0] ^= 0xFF
				c.errorPending = false
			}
		}
		sp.Received = sp.Size
		sp.Ready = true
		c.readyQueue.Push(sp)
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

// DroppedPackets implements roc.DmaChannel.  The simulation never drops.
func (c *Channel) DroppedPackets() int32 {
	return 0
}

// InjectError corrupts one word of the next filled superpage.  It returns
// false if the generator is disabled.
func (c *Channel) InjectError() bool {
	if !c.generatorEnabled {
		return false
	}
	c.errorPending = true
	return true
}

// Serial implements roc.DmaChannel with a fixed simulated value.
func (c *Channel) Serial() (int32, error) {
	return -1, nil
}

// Temperature implements roc.DmaChannel with a fixed simulated value.
func (c *Channel) Temperature() (float64, error) {
	return 30.0, nil
}

// FirmwareInfo implements roc.DmaChannel.
func (c *Channel) FirmwareInfo() (string, error) {
	return "simulated firmware", nil
}

// CardID implements roc.DmaChannel.
func (c *Channel) CardID() (string, error) {
	return "sim-0000", nil
}
