/*Package bar defines the register access surface a DMA channel drives.

Register bit layouts, PCI enumeration, and BAR mapping belong to the
implementation behind these interfaces.  The channels in cru and crorc
only ever call the narrow methods here, so they can be exercised against
the Mock in this package exactly as against real hardware.
*/
package bar

import "github.com/daqline/readoutcard/roc"

// Data source selection register values.
const (
	// DataSourceGBT selects data arriving from the front-end links
	DataSourceGBT uint32 = 0x0

	// DataSourceInternal selects the card's internal data generator
	DataSourceInternal uint32 = 0x1
)

// FirmwareFeatures is an immutable snapshot of the firmware feature bits.
// Channels capture it once at construction and never re-read it mid-session.
type FirmwareFeatures struct {
	// Standalone is true for standalone firmware builds, which may have
	// optional features compiled out
	Standalone bool

	// FirmwareInfo gates the firmware description query
	FirmwareInfo bool

	// Serial gates the serial number query
	Serial bool

	// Temperature gates the temperature query
	Temperature bool

	// DataSelection gates the data source selection register
	DataSelection bool

	// ChipID gates the card identifier query
	ChipID bool
}

// Bar is the register access surface shared by the card variants.
type Bar interface {
	// SuperpageCount reads the firmware's cumulative count of superpages
	// fully delivered on the given link since the last reset
	SuperpageCount(link int) uint32

	// PushSuperpageDescriptor enqueues a transfer descriptor to the
	// firmware: which link fills the superpage, how many DMA pages it
	// spans, and the bus address it starts at
	PushSuperpageDescriptor(link, pages int, busAddress uintptr)

	// SetDataGeneratorPattern configures the on-card data generator
	SetDataGeneratorPattern(pattern roc.GeneratorPattern, dataSize int, seed uint32)

	// ResetDataGeneratorCounter resets the generator's event counter
	ResetDataGeneratorCounter()

	// DataGeneratorInjectError makes the generator corrupt one word
	DataGeneratorInjectError()

	// SetDataSource writes the data source selection register
	SetDataSource(source uint32)

	// SetDataEmulatorEnabled arms or disarms the DMA data path
	SetDataEmulatorEnabled(enabled bool)

	// EnableDataTaking opens the upstream data-taking gate
	EnableDataTaking()

	// DisableDataTaking closes the upstream data-taking gate
	DisableDataTaking()

	// ResetCard issues a card-level reset
	ResetCard()

	// DebugModeEnabled reads the debug mode register
	DebugModeEnabled() bool

	// SetDebugModeEnabled writes the debug mode register
	SetDebugModeEnabled(enabled bool)

	// FirmwareFeatures reads the firmware feature bitset
	FirmwareFeatures() FirmwareFeatures

	// Serial reads the card serial number
	Serial() int32

	// Temperature reads the card temperature in Celsius
	Temperature() float64

	// FirmwareInfo reads the firmware description
	FirmwareInfo() string

	// CardID reads the card identifier
	CardID() string

	// DroppedPackets reads the dropped packet counter
	DroppedPackets() int32
}

// Ready FIFO entry status words of the legacy single-link card.  Any other
// non-negative status is a partial arrival, with the entry length carrying
// the bytes received so far.
const (
	// ReadyFifoStatusNone marks an entry whose page has not arrived
	ReadyFifoStatusNone int32 = -1

	// ReadyFifoStatusDone marks an entry whose page arrived whole
	ReadyFifoStatusDone int32 = 0
)

// FreeFifoBar extends Bar with the legacy single-link card's page-granular
// FIFO pair: pages are offered to the firmware one at a time through the
// free FIFO, and their arrival is reported per-entry in the ready FIFO.
type FreeFifoBar interface {
	Bar

	// PushFreeFifoPage writes one page's bus address into the free FIFO
	// slot at the given index
	PushFreeFifoPage(index int, busAddress uintptr)

	// ReadyFifoEntry reads the ready FIFO entry at the given index,
	// returning its length in bytes and its status word
	ReadyFifoEntry(index int) (length int32, status int32)

	// ResetReadyFifo clears every ready FIFO entry to the none-arrived state
	ResetReadyFifo()

	// ResetReadyFifoEntry clears one ready FIFO entry after its page has
	// been consumed, so the slot can be reused by a later push
	ResetReadyFifoEntry(index int)
}
