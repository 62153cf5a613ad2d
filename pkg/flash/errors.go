package flash

import "errors"

// ============================================================================
// Flash Core Error Taxonomy
// ============================================================================

// These errors are the contract between the flash core and its callers.
// Callers match them with errors.Is; every layer wraps them with additional
// context (block and page indices, the underlying medium error) via %w.

var (
	// ErrInvalidGeometry indicates the device geometry is inconsistent:
	// a zero size, or a block size that is not a multiple of the page size.
	//
	// Returned only at initialization time.
	ErrInvalidGeometry = errors.New("invalid device geometry")

	// ErrInvalidPolicy indicates the wear-leveling policy is inconsistent:
	// a zero ceiling, or a worn threshold at or above the erase-count ceiling.
	//
	// Returned only at initialization time.
	ErrInvalidPolicy = errors.New("invalid wear-leveling policy")

	// ErrOutOfRange indicates a block or page index outside the device
	// geometry, or a buffer larger than the page/OOB area.
	//
	// This is a caller bug and must never be retried.
	ErrOutOfRange = errors.New("block or page index out of range")

	// ErrBadBlock indicates the operation was refused because the target
	// block is quarantined. The caller must request a different block.
	ErrBadBlock = errors.New("block is marked bad")

	// ErrAlreadyBad indicates a state-mutating operation reached a block
	// that is already quarantined. Callers are expected to check block
	// eligibility before erasing; hitting this error is a caller bug.
	ErrAlreadyBad = errors.New("block is already marked bad")

	// ErrNotErased indicates a write-ordering violation: the target page
	// was already programmed since the last erase, or pages were programmed
	// out of sequential order. The block must be erased before the page can
	// be programmed again.
	//
	// This is a caller bug and must never be retried.
	ErrNotErased = errors.New("page not erased or programmed out of order")

	// ErrBlockFull indicates every page of the block has been programmed
	// since the last erase. The caller must erase before further writes.
	ErrBlockFull = errors.New("block has no writable pages left")

	// ErrEraseFailed indicates a physical erase failure, including erase
	// timeouts (flash offers no safe abort for an in-progress erase).
	//
	// The caller that issued the erase is responsible for quarantining the
	// block via MarkBad before propagating this error.
	ErrEraseFailed = errors.New("physical erase failed")

	// ErrProgramFailed indicates a physical program failure.
	//
	// The facade quarantines the block before propagating this error.
	ErrProgramFailed = errors.New("physical program failed")

	// ErrReadFailed indicates a physical read failure. Reads can fail
	// transiently, so a read failure never condemns a block by itself.
	ErrReadFailed = errors.New("physical read failed")

	// ErrNoEligibleBlock indicates device exhaustion: every block is
	// quarantined. This is fatal for the whole core. It must be surfaced
	// to the top of the call stack and is never retried automatically.
	ErrNoEligibleBlock = errors.New("no eligible block: device exhausted")
)
