/*Package dmabuf models the mapped DMA buffer a channel reads out into.

The physical mapping itself (hugepage allocation, IOMMU programming) is the
business of an external collaborator; this package only carries the opaque
result of that work: a bus base address and a length.  Channels validate
superpage (offset, size) pairs against a Region and resolve offsets to bus
addresses at the single point where a descriptor is written to hardware.
No raw address ever travels further than that.
*/
package dmabuf

import (
	"fmt"

	"github.com/daqline/readoutcard/roc"
)

// Region is an opaque handle to a mapped DMA buffer.
type Region struct {
	busBase  uintptr
	size     int
	pageSize int
}

// NewRegion describes a mapped DMA buffer starting at the given bus address.
// size must be a positive multiple of pageSize.
func NewRegion(busBase uintptr, size, pageSize int) (*Region, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("%w: DMA page size %d is not positive", roc.ErrConfiguration, pageSize)
	}
	if size <= 0 || size%pageSize != 0 {
		return nil, fmt.Errorf("%w: buffer size %d is not a positive multiple of the %d byte page size", roc.ErrConfiguration, size, pageSize)
	}
	return &Region{busBase: busBase, size: size, pageSize: pageSize}, nil
}

// Size returns the length of the region in bytes.
func (r *Region) Size() int { return r.size }

// PageSize returns the DMA page size in bytes.
func (r *Region) PageSize() int { return r.pageSize }

// CheckSuperpage validates that a superpage lies inside the region, starts
// on a page boundary, and spans a positive whole number of DMA pages.
func (r *Region) CheckSuperpage(sp roc.Superpage) error {
	if sp.Size <= 0 || sp.Size%r.pageSize != 0 {
		return fmt.Errorf("%w: size %d is not a positive multiple of the %d byte page size", roc.ErrInvalidSuperpage, sp.Size, r.pageSize)
	}
	if sp.Offset < 0 || sp.Offset%r.pageSize != 0 {
		return fmt.Errorf("%w: offset %d is not aligned to the %d byte page size", roc.ErrInvalidSuperpage, sp.Offset, r.pageSize)
	}
	if sp.Offset+sp.Size > r.size {
		return fmt.Errorf("%w: offset %d + size %d exceeds the %d byte DMA region", roc.ErrInvalidSuperpage, sp.Offset, sp.Size, r.size)
	}
	return nil
}

// BusAddress resolves an offset inside the region to a bus address.
func (r *Region) BusAddress(offset int) uintptr {
	return r.busBase + uintptr(offset)
}

// Pages returns how many DMA pages a byte count spans.
func (r *Region) Pages(size int) int {
	return size / r.pageSize
}
