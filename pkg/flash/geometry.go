// Package flash defines the shared vocabulary of the flash storage core:
// device geometry, block state and wear records, the wear-leveling policy,
// and the error taxonomy used by the metadata, allocation, and I/O layers.
package flash

import "fmt"

// Geometry is the immutable physical description of a flash device.
//
// The backing medium stores each page as its data area immediately followed
// by its out-of-band (OOB) area, so the per-page stride on the medium is
// PageSize + OOBSize. BlockSize counts data bytes only (pages per block ×
// page size), matching how flash parts are specified.
type Geometry struct {
	// PageSize is the smallest programmable unit, in bytes.
	PageSize uint32

	// OOBSize is the per-page out-of-band area, in bytes. Zero for parts
	// without spare areas (typical NOR).
	OOBSize uint32

	// BlockSize is the smallest erasable unit, in data bytes.
	// Must be a positive multiple of PageSize.
	BlockSize uint32

	// TotalBlocks is the number of erase blocks on the device.
	TotalBlocks uint32
}

// NewGeometry validates and returns a device geometry.
func NewGeometry(pageSize, oobSize, blockSize, totalBlocks uint32) (Geometry, error) {
	if pageSize == 0 || blockSize == 0 || totalBlocks == 0 {
		return Geometry{}, fmt.Errorf("%w: page size %d, block size %d, total blocks %d (all must be non-zero)",
			ErrInvalidGeometry, pageSize, blockSize, totalBlocks)
	}
	if blockSize%pageSize != 0 {
		return Geometry{}, fmt.Errorf("%w: block size %d is not a multiple of page size %d",
			ErrInvalidGeometry, blockSize, pageSize)
	}

	return Geometry{
		PageSize:    pageSize,
		OOBSize:     oobSize,
		BlockSize:   blockSize,
		TotalBlocks: totalBlocks,
	}, nil
}

// PagesPerBlock returns the number of pages in one erase block.
func (g Geometry) PagesPerBlock() uint32 {
	return g.BlockSize / g.PageSize
}

// pageStride is the per-page footprint on the backing medium, OOB included.
func (g Geometry) pageStride() uint64 {
	return uint64(g.PageSize) + uint64(g.OOBSize)
}

// BlockSpan returns the number of medium bytes one erase block occupies,
// OOB areas included.
func (g Geometry) BlockSpan() uint64 {
	return uint64(g.PagesPerBlock()) * g.pageStride()
}

// DeviceSpan returns the total number of medium bytes the device occupies.
func (g Geometry) DeviceSpan() uint64 {
	return uint64(g.TotalBlocks) * g.BlockSpan()
}

// PageOffset returns the medium byte offset of a page's data area.
// Indices are not validated; use Contains first.
func (g Geometry) PageOffset(blockID, pageIndex uint32) uint64 {
	return uint64(blockID)*g.BlockSpan() + uint64(pageIndex)*g.pageStride()
}

// OOBOffset returns the medium byte offset of a page's OOB area.
func (g Geometry) OOBOffset(blockID, pageIndex uint32) uint64 {
	return g.PageOffset(blockID, pageIndex) + uint64(g.PageSize)
}

// BlockOffset returns the medium byte offset of the first page of a block.
func (g Geometry) BlockOffset(blockID uint32) uint64 {
	return uint64(blockID) * g.BlockSpan()
}

// Contains reports whether the block/page pair lies inside the device.
func (g Geometry) Contains(blockID, pageIndex uint32) bool {
	return blockID < g.TotalBlocks && pageIndex < g.PagesPerBlock()
}

// ContainsBlock reports whether the block index lies inside the device.
func (g Geometry) ContainsBlock(blockID uint32) bool {
	return blockID < g.TotalBlocks
}

func (g Geometry) String() string {
	return fmt.Sprintf("geometry{page=%dB oob=%dB block=%dB blocks=%d}",
		g.PageSize, g.OOBSize, g.BlockSize, g.TotalBlocks)
}
