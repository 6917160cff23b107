package roc

// DmaChannel is the client surface shared by every card variant.  The cru,
// crorc, and sim packages return concrete channel structs satisfying it.
//
// All methods are to be called from a single goroutine; see the package
// comment for the concurrency model.  FillSuperpages never blocks: it makes
// whatever progress the current hardware counters allow and returns, and it
// is the caller's job to poll it again.
type DmaChannel interface {
	// PushSuperpage hands a superpage to the card for filling.  The
	// superpage is owned by hardware until a later FillSuperpages
	// reconciles it into the ready queue.
	PushSuperpage(Superpage) error

	// GetSuperpage peeks the front of the ready queue without removing it
	GetSuperpage() (Superpage, error)

	// PopSuperpage removes and returns the front of the ready queue
	PopSuperpage() (Superpage, error)

	// FillSuperpages polls the hardware completion counters and moves
	// completed superpages from the transfer side to the ready queue
	FillSuperpages() error

	// TransferQueueAvailable returns the remaining push capacity
	TransferQueueAvailable() int

	// IsTransferQueueEmpty returns true when no superpages are in flight
	IsTransferQueueEmpty() bool

	// ReadyQueueSize returns the number of superpages awaiting a pop
	ReadyQueueSize() int

	// IsReadyQueueFull returns true when the ready queue is at capacity
	IsReadyQueueFull() bool

	// StartDma arms the data path and begins a DMA session
	StartDma() error

	// StopDma stops the data path and drains in-flight superpages
	StopDma() error

	// ResetChannel re-issues the hardware reset sequence at the given level
	ResetChannel(ResetLevel) error

	// DroppedPackets returns the card's dropped packet count
	DroppedPackets() int32

	// InjectError makes the data generator corrupt one word; it returns
	// false if the generator is not active
	InjectError() bool

	// Serial returns the card serial number, if the firmware supports it
	Serial() (int32, error)

	// Temperature returns the card temperature in Celsius, if the firmware
	// supports it
	Temperature() (float64, error)

	// FirmwareInfo returns a firmware description string, if the firmware
	// supports it
	FirmwareInfo() (string, error)

	// CardID returns the card identifier string, if the firmware supports it
	CardID() (string, error)

	// CardType reports which hardware variant this channel drives
	CardType() CardType

	// Close releases the channel, stopping the data path if needed
	Close() error
}
