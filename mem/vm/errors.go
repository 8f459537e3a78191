package vm

import "errors"

// The errors the virtual memory system surfaces to its callers.
var (
	// ErrOutOfMemory means the frame table is exhausted. It is never retried.
	ErrOutOfMemory = errors.New("out of memory")

	// ErrInvalidAddressSpace means no address space was given or active.
	ErrInvalidAddressSpace = errors.New("invalid address space")

	// ErrAccessViolation means the address is not covered by any region or
	// a write hit a read-only page.
	ErrAccessViolation = errors.New("access violation")

	// ErrUnsupportedFaultKind means the hardware reported an unknown fault.
	ErrUnsupportedFaultKind = errors.New("unsupported fault kind")

	// ErrAlreadyFree is returned when freeing a frame that is not in use.
	ErrAlreadyFree = errors.New("frame already free")

	// ErrInvalidFrame is returned for physical addresses outside of RAM.
	ErrInvalidFrame = errors.New("invalid frame")

	// ErrMultiPageAlloc is returned when more than one contiguous page is
	// requested after the frame table is live.
	ErrMultiPageAlloc = errors.New("multi-page allocation not supported")

	// ErrNotFound is returned when deleting a mapping that does not exist.
	ErrNotFound = errors.New("mapping not found")

	// ErrRegionOverlap is returned when a new region overlaps an existing
	// one in the same address space.
	ErrRegionOverlap = errors.New("region overlaps an existing region")

	// ErrInvalidRegion is returned for empty or wrapping regions.
	ErrInvalidRegion = errors.New("invalid region")
)

// Status codes handed to the trap layer.
const (
	EOK    = 0
	ENOMEM = 3
	EINVAL = 8
	EFAULT = 6
)

// Status converts an error returned by the virtual memory system into the
// status code the trap layer expects.
func Status(err error) int {
	switch {
	case err == nil:
		return EOK
	case errors.Is(err, ErrOutOfMemory):
		return ENOMEM
	case errors.Is(err, ErrAccessViolation):
		return EFAULT
	case errors.Is(err, ErrInvalidAddressSpace),
		errors.Is(err, ErrUnsupportedFaultKind):
		return EINVAL
	default:
		return EFAULT
	}
}
