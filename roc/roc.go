/*Package roc contains the shared types and contracts for readout card DMA channels.

A readout card moves data from its optical links into host memory in
fixed-size units called superpages.  The driver hands superpages to the
card by writing DMA descriptors, and the card reports completion through
monotonically increasing per-link counters.  This package holds the value
types and queue machinery common to every card variant; the variants
themselves live in the cru, crorc, and sim packages.

All queue and counter mutation happens synchronously inside calls made by
one client goroutine.  The hardware is the only concurrent actor and it is
only ever observed through polled counters, so none of these types lock.
*/
package roc

import "errors"

// Superpage describes one fixed-size DMA buffer: an offset into the mapped
// DMA region and its total size, plus the driver's accounting of how much
// of it the card has delivered.  Superpages move by value between queues;
// whichever queue holds one owns it.
type Superpage struct {
	// Offset is the byte offset of this superpage in the DMA region
	Offset int

	// Size is the total size of the superpage in bytes
	Size int

	// Received is the number of bytes delivered by the card so far.
	// It never exceeds Size.
	Received int

	// Ready is true once the superpage has been reconciled as complete.
	// It is set exactly once, during reconciliation.
	Ready bool
}

var (
	// ErrQueueFull is generated when a push is attempted on a queue at capacity.
	// The caller should poll for completions and retry.
	ErrQueueFull = errors.New("queue is at capacity")

	// ErrQueueEmpty is generated when a pop or peek is attempted on an empty
	// queue.  It is an expected steady-state condition, not a fault.
	ErrQueueEmpty = errors.New("queue is empty")

	// ErrInvalidSuperpage is generated when a malformed or out-of-range
	// superpage is offered to a channel.
	ErrInvalidSuperpage = errors.New("invalid superpage")

	// ErrProtocolViolation is generated when the firmware reports state that
	// contradicts the driver's bookkeeping, e.g. more completed superpages
	// than the driver has outstanding.  It is unrecoverable for the session.
	ErrProtocolViolation = errors.New("firmware state contradicts driver bookkeeping")

	// ErrNotSupported is generated when a telemetry query is gated off by the
	// firmware feature bits captured at channel construction.
	ErrNotSupported = errors.New("feature not supported by firmware")

	// ErrConfiguration is generated when a channel is constructed with an
	// unsupported combination of parameters.  The channel is never created.
	ErrConfiguration = errors.New("invalid channel configuration")

	// ErrInvalidState is generated when a lifecycle transition is requested
	// from a state that does not allow it, e.g. starting DMA twice.
	ErrInvalidState = errors.New("operation not allowed in current channel state")

	// ErrInternalConsistency signals a logic defect in the driver itself,
	// e.g. a non-empty link queue after the stop drain.  It should never
	// trigger in correct operation.
	ErrInternalConsistency = errors.New("internal consistency fault")
)
