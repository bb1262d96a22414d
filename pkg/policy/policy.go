package policy

import (
	"fmt"

	"github.com/lumera-labs/near-lockup/pkg/lockup"
)

// Mode selects when the transfers-enabled override is applied.
type Mode string

const (
	// ModeOff never overrides the on-chain transfers information.
	ModeOff Mode = "off"
	// ModeIfDisabled injects the fallback timestamp only for records that still
	// report transfers as disabled.
	ModeIfDisabled Mode = "if-disabled"
	// ModeAlways replaces the on-chain transfers information unconditionally.
	ModeAlways Mode = "always"
)

// Phase2TransfersTimestamp is the mainnet block time (ns) at which the transfers
// vote passed. Lockups whose owners never called check_transfers_vote still record
// transfers as disabled even though they were enabled network-wide at this moment.
const Phase2TransfersTimestamp uint64 = 1602614338293769340

// TransfersOverride substitutes a known transfers-enabled timestamp for lockup
// records that can't report it themselves.
type TransfersOverride struct {
	Mode      Mode   `toml:"mode" json:"mode"`
	Timestamp uint64 `toml:"timestamp" json:"timestamp"`
}

// Default applies the mainnet phase-2 timestamp to records with transfers disabled.
func Default() TransfersOverride {
	return TransfersOverride{Mode: ModeIfDisabled, Timestamp: Phase2TransfersTimestamp}
}

func (p TransfersOverride) Validate() error {
	switch p.Mode {
	case ModeOff:
		return nil
	case ModeIfDisabled, ModeAlways:
		if p.Timestamp == 0 {
			return fmt.Errorf("transfers_override.timestamp is required for mode %q", p.Mode)
		}
		return nil
	default:
		return fmt.Errorf("transfers_override.mode %q: want one of %q, %q, %q", p.Mode, ModeOff, ModeIfDisabled, ModeAlways)
	}
}

// Apply returns the state the engine should evaluate and whether the override changed it.
// A record that already carries a transfers timestamp keeps it unless the mode is ModeAlways.
func (p TransfersOverride) Apply(s lockup.State) (lockup.State, bool) {
	switch p.Mode {
	case ModeAlways:
	case ModeIfDisabled:
		if s.Transfers().Enabled() {
			return s, false
		}
	default:
		return s, false
	}
	if ts, ok := s.Transfers().Timestamp(); ok && ts == p.Timestamp {
		return s, false
	}
	return s.WithTransfers(lockup.TransfersEnabled(p.Timestamp)), true
}
