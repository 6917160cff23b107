package cru

import (
	"fmt"
	"log"

	"github.com/daqline/readoutcard/roc"
)

// nextLinkIndex picks the link whose transfer queue holds the fewest
// pending superpages, lowest index winning ties.  This approximates
// round-robin fairness without tracking rotation state and guarantees no
// link starves while another overflows.
func (c *Channel) nextLinkIndex() int {
	smallestIndex := 0
	smallestSize := c.links[0].queue.Len()
	for i := 1; i < len(c.links); i++ {
		if size := c.links[i].queue.Len(); size < smallestSize {
			smallestIndex = i
			smallestSize = size
		}
	}
	return smallestIndex
}

// PushSuperpage validates a superpage, schedules it onto a link, and writes
// its descriptor to the firmware.  After this returns nil the superpage is
// in flight: hardware owns its memory until FillSuperpages reconciles it.
func (c *Channel) PushSuperpage(sp roc.Superpage) error {
	if err := c.region.CheckSuperpage(sp); err != nil {
		return err
	}
	if c.linkQueuesTotalAvailable == 0 {
		return fmt.Errorf("%w: could not push superpage, transfer queue was full", roc.ErrQueueFull)
	}

	l := &c.links[c.nextLinkIndex()]
	if l.queue.Full() {
		// unreachable while the available counter is maintained correctly
		log.Printf("cru: link %d queue full with %d slots advertised", l.id, c.linkQueuesTotalAvailable)
		return fmt.Errorf("%w: could not push superpage, link %d queue was full", roc.ErrInternalConsistency, l.id)
	}

	c.pushToLink(l, sp)
	c.bar.PushSuperpageDescriptor(l.id, c.region.Pages(sp.Size), c.region.BusAddress(sp.Offset))
	return nil
}

func (c *Channel) pushToLink(l *link, sp roc.Superpage) {
	c.linkQueuesTotalAvailable--
	// cannot fail, the caller checked for room
	l.queue.Push(sp)
}

// transferToReady moves the front superpage of a link to the ready queue.
// complete marks it fully received; the stop drain passes false for the
// trailing superpage the firmware never confirmed, preserving its received
// byte accounting instead of assuming full delivery.
func (c *Channel) transferToReady(l *link, complete bool) {
	sp, err := l.queue.Pop()
	if err != nil {
		// unreachable; callers check for emptiness
		panic("cru: transfer from empty link queue")
	}
	if complete {
		sp.Received = sp.Size
		sp.Ready = true
	}
	c.readyQueue.Push(sp)
	l.superpageCounter++
	c.linkQueuesTotalAvailable++
}

// FillSuperpages reconciles the firmware's completion counters against the
// driver's.  For each link it reads the cumulative count, verifies it does
// not exceed the superpages actually outstanding, and drains the newly
// completed ones into the ready queue oldest first.  A full ready queue
// defers the remainder to the next poll.  The call is idempotent when the
// counters have not moved.
//
// The error is non-nil only on a protocol violation, in which case no queue
// has been touched.
func (c *Channel) FillSuperpages() error {
	// validate every link before draining any, so a violation on a later
	// link leaves the channel exactly as it was
	counts := make([]uint32, len(c.links))
	for i := range c.links {
		l := &c.links[i]
		counts[i] = c.bar.SuperpageCount(l.id)
		amount := counts[i] - l.superpageCounter
		if amount > uint32(l.queue.Len()) {
			log.Printf("cru: FATAL: firmware reported more superpages available (%d) than present in FIFO (%d); link %d: %d received according to driver, %d according to firmware",
				amount, l.queue.Len(), l.id, l.superpageCounter, counts[i])
			return fmt.Errorf("%w: link %d reports %d available with %d outstanding (driver count %d, firmware count %d)",
				roc.ErrProtocolViolation, l.id, amount, l.queue.Len(), l.superpageCounter, counts[i])
		}
	}

	for i := range c.links {
		l := &c.links[i]
		amount := counts[i] - l.superpageCounter
		for j := uint32(0); j < amount; j++ {
			if c.readyQueue.Full() {
				break
			}
			c.transferToReady(l, true)
		}
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

// TransferQueueAvailable returns the remaining push capacity across all
// link queues.
func (c *Channel) TransferQueueAvailable() int {
	return c.linkQueuesTotalAvailable
}

// IsTransferQueueEmpty returns true when every transfer slot is available,
// i.e. no superpage is in flight.
func (c *Channel) IsTransferQueueEmpty() bool {
	return c.linkQueuesTotalAvailable == c.linkQueueCapacity*len(c.links)
}

// ReadyQueueSize returns the number of superpages awaiting a pop.
func (c *Channel) ReadyQueueSize() int {
	return c.readyQueue.Len()
}

// IsReadyQueueFull returns true when the card has filled the ready queue.
func (c *Channel) IsReadyQueueFull() bool {
	return c.readyQueue.Full()
}
