package vm

import "fmt"

// FaultKind is the kind of translation fault reported by the hardware.
type FaultKind int

// The fault kinds a TLB miss or protection check can raise.
const (
	FaultRead FaultKind = iota
	FaultWrite
	FaultReadOnly
)

func (k FaultKind) String() string {
	switch k {
	case FaultRead:
		return "read"
	case FaultWrite:
		return "write"
	case FaultReadOnly:
		return "readonly"
	default:
		return fmt.Sprintf("FaultKind(%d)", int(k))
	}
}

// A FaultRecord describes one invocation of the fault handler. It is the item
// carried by fault hooks.
type FaultRecord struct {
	Kind    FaultKind
	VAddr   uint64
	ASID    ASID
	HasASID bool

	// Filled when the fault completes.
	Frame          Frame
	Dirty          bool
	AllocatedFrame bool
	Err            error
}

// Succeeded returns true if the fault was resolved.
func (r FaultRecord) Succeeded() bool {
	return r.Err == nil
}
