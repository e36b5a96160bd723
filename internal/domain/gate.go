package domain

import "github.com/ethereum/go-ethereum/common"

// Capability names a privileged ledger action.
type Capability string

const (
	CapPause      Capability = "pause"
	CapModerate   Capability = "moderate"
	CapParameters Capability = "parameters"
)

// AccessGate is the external capability checker consumed by the ledger. The
// ledger never stores roles itself; it asks the gate and fails closed, so an
// erroring or unreachable gate is treated as a denial.
type AccessGate interface {
	HasCapability(actor common.Address, cap Capability) (bool, error)
}
