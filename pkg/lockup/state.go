package lockup

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

var (
	// ErrInvalidSchedule is returned when a vesting schedule violates start <= cliff <= end, start < end.
	ErrInvalidSchedule       = errors.New("invalid vesting schedule")
	// ErrAmountOverflow is returned when an amount does not fit in 128 bits.
	ErrAmountOverflow        = errors.New("amount exceeds 128 bits")
	// ErrUnvestedExceedsLockup is returned when a terminated vesting freezes more than the lockup amount.
	ErrUnvestedExceedsLockup = errors.New("unvested amount exceeds lockup amount")
)

// Schedule is an explicit vesting schedule. All timestamps are in nanoseconds.
// A Schedule obtained from NewSchedule always satisfies start <= cliff <= end and start < end.
type Schedule struct {
	start uint64
	cliff uint64
	end   uint64
}

// NewSchedule validates and returns a vesting schedule.
func NewSchedule(start, cliff, end uint64) (Schedule, error) {
	s := Schedule{start: start, cliff: cliff, end: end}
	if err := s.validate(); err != nil {
		return Schedule{}, err
	}
	return s, nil
}

func (s Schedule) validate() error {
	if s.start > s.cliff {
		return fmt.Errorf("%w: cliff timestamp can't be earlier than vesting start timestamp", ErrInvalidSchedule)
	}
	if s.cliff > s.end {
		return fmt.Errorf("%w: cliff timestamp can't be later than vesting end timestamp", ErrInvalidSchedule)
	}
	if s.start >= s.end {
		return fmt.Errorf("%w: the total vesting time should be positive", ErrInvalidSchedule)
	}
	return nil
}

func (s Schedule) Start() uint64 { return s.start }
func (s Schedule) Cliff() uint64 { return s.cliff }
func (s Schedule) End() uint64   { return s.end }

// TerminationStatus tracks the progress of an administrative vesting termination.
type TerminationStatus uint8

const (
	VestingTerminatedWithDeficit TerminationStatus = iota
	UnstakingInProgress
	EverythingUnstaked
	WithdrawingFromStakingPoolInProgress
	ReadyToWithdraw
	WithdrawingFromAccountInProgress
)

var terminationStatusNames = [...]string{
	"VestingTerminatedWithDeficit",
	"UnstakingInProgress",
	"EverythingUnstaked",
	"WithdrawingFromStakingPoolInProgress",
	"ReadyToWithdraw",
	"WithdrawingFromAccountInProgress",
}

func (s TerminationStatus) String() string {
	if int(s) < len(terminationStatusNames) {
		return terminationStatusNames[s]
	}
	return fmt.Sprintf("TerminationStatus(%d)", uint8(s))
}

func (s TerminationStatus) valid() bool { return int(s) < len(terminationStatusNames) }

// VestingKind discriminates the Vesting union.
type VestingKind uint8

const (
	VestingNone VestingKind = iota
	VestingHash
	VestingScheduled
	VestingTerminating
)

func (k VestingKind) String() string {
	switch k {
	case VestingNone:
		return "none"
	case VestingHash:
		return "hash"
	case VestingScheduled:
		return "schedule"
	case VestingTerminating:
		return "terminating"
	default:
		return fmt.Sprintf("VestingKind(%d)", uint8(k))
	}
}

// Vesting is one of: no vesting, a private schedule known only by its hash,
// an explicit schedule, or a terminated vesting frozen at a fixed unvested amount.
// The zero value is VestingNone.
type Vesting struct {
	kind     VestingKind
	hash     []byte
	schedule Schedule
	unvested uint256.Int
	status   TerminationStatus
}

func NoVesting() Vesting { return Vesting{kind: VestingNone} }

// PrivateVesting returns the hashed variant. The hash is copied.
func PrivateVesting(hash []byte) Vesting {
	return Vesting{kind: VestingHash, hash: bytes.Clone(hash)}
}

func ScheduledVesting(s Schedule) Vesting {
	return Vesting{kind: VestingScheduled, schedule: s}
}

// TerminatingVesting freezes the unvested amount at unvested.
func TerminatingVesting(unvested *uint256.Int, status TerminationStatus) Vesting {
	v := Vesting{kind: VestingTerminating, status: status}
	if unvested != nil {
		v.unvested.Set(unvested)
	}
	return v
}

func (v Vesting) Kind() VestingKind { return v.kind }

// Hash returns a copy of the schedule commitment; ok is false unless Kind is VestingHash.
func (v Vesting) Hash() (hash []byte, ok bool) {
	if v.kind != VestingHash {
		return nil, false
	}
	return bytes.Clone(v.hash), true
}

func (v Vesting) Schedule() (Schedule, bool) {
	return v.schedule, v.kind == VestingScheduled
}

// Termination returns the frozen unvested amount and the termination status.
func (v Vesting) Termination() (unvested uint256.Int, status TerminationStatus, ok bool) {
	if v.kind != VestingTerminating {
		return uint256.Int{}, 0, false
	}
	return v.unvested, v.status, true
}

func (v Vesting) validate() error {
	switch v.kind {
	case VestingNone, VestingHash:
		return nil
	case VestingScheduled:
		return v.schedule.validate()
	case VestingTerminating:
		if !v.status.valid() {
			return fmt.Errorf("unknown termination status %d", v.status)
		}
		return checkAmount("unvested amount", &v.unvested)
	default:
		return fmt.Errorf("unknown vesting kind %d", v.kind)
	}
}

// Transfers records whether transfers are enabled and since when.
// The zero value means transfers are disabled.
type Transfers struct {
	enabled       bool
	timestamp     uint64
	pollAccountID string
}

func TransfersEnabled(timestamp uint64) Transfers {
	return Transfers{enabled: true, timestamp: timestamp}
}

// TransfersDisabled records the poll contract that will eventually enable transfers.
func TransfersDisabled(pollAccountID string) Transfers {
	return Transfers{pollAccountID: pollAccountID}
}

// Timestamp returns the transfers-enabled timestamp; ok is false while transfers are disabled.
func (t Transfers) Timestamp() (timestamp uint64, ok bool) { return t.timestamp, t.enabled }

func (t Transfers) Enabled() bool { return t.enabled }

// PollAccountID is the transfer poll account, set only when transfers are disabled.
func (t Transfers) PollAccountID() string { return t.pollAccountID }

// StateParams carries the raw fields of a lockup record. NewState validates them.
type StateParams struct {
	LockupAmount               *uint256.Int
	TerminationWithdrawnTokens *uint256.Int
	// LockupDuration is counted from the moment transfers are enabled.
	LockupDuration uint64
	// ReleaseDuration, if set, linearly releases the amount after the lockup matures.
	ReleaseDuration *uint64
	// LockupTimestamp, if set, is an absolute timestamp before which nothing unlocks.
	LockupTimestamp *uint64
	Transfers       Transfers
	Vesting         Vesting
}

// State is an immutable snapshot of the lockup and vesting configuration of one account.
type State struct {
	lockupAmount         uint256.Int
	terminationWithdrawn uint256.Int
	lockupDuration       uint64
	releaseDuration      uint64
	hasReleaseDuration   bool
	lockupTimestamp      uint64
	hasLockupTimestamp   bool
	transfers            Transfers
	vesting              Vesting
}

// NewState validates p and builds a State. Amounts must fit in 128 bits, an
// explicit vesting schedule must satisfy its ordering invariant and a terminated
// vesting can't freeze more than the lockup amount.
func NewState(p StateParams) (State, error) {
	var s State
	if p.LockupAmount != nil {
		s.lockupAmount.Set(p.LockupAmount)
	}
	if p.TerminationWithdrawnTokens != nil {
		s.terminationWithdrawn.Set(p.TerminationWithdrawnTokens)
	}
	if err := checkAmount("lockup amount", &s.lockupAmount); err != nil {
		return State{}, err
	}
	if err := checkAmount("termination withdrawn tokens", &s.terminationWithdrawn); err != nil {
		return State{}, err
	}
	if err := p.Vesting.validate(); err != nil {
		return State{}, err
	}
	if p.Vesting.kind == VestingTerminating && s.lockupAmount.Lt(&p.Vesting.unvested) {
		return State{}, fmt.Errorf("%w: %s > %s", ErrUnvestedExceedsLockup, p.Vesting.unvested.Dec(), s.lockupAmount.Dec())
	}
	s.lockupDuration = p.LockupDuration
	if p.ReleaseDuration != nil {
		s.releaseDuration, s.hasReleaseDuration = *p.ReleaseDuration, true
	}
	if p.LockupTimestamp != nil {
		s.lockupTimestamp, s.hasLockupTimestamp = *p.LockupTimestamp, true
	}
	s.transfers = p.Transfers
	s.vesting = p.Vesting
	if s.vesting.kind == VestingHash {
		s.vesting.hash = bytes.Clone(s.vesting.hash)
	}
	return s, nil
}

// LockupAmount returns a copy of the originally locked amount.
func (s State) LockupAmount() uint256.Int { return s.lockupAmount }

func (s State) TerminationWithdrawnTokens() uint256.Int { return s.terminationWithdrawn }

func (s State) LockupDuration() uint64 { return s.lockupDuration }

func (s State) ReleaseDuration() (uint64, bool) { return s.releaseDuration, s.hasReleaseDuration }

func (s State) LockupTimestamp() (uint64, bool) { return s.lockupTimestamp, s.hasLockupTimestamp }

func (s State) Transfers() Transfers { return s.transfers }

func (s State) Vesting() Vesting { return s.vesting }

// WithTransfers returns a copy of s with the transfers information replaced.
func (s State) WithTransfers(t Transfers) State {
	s.transfers = t
	return s
}

func checkAmount(name string, v *uint256.Int) error {
	if v.BitLen() > 128 {
		return fmt.Errorf("%s %s: %w", name, v.Dec(), ErrAmountOverflow)
	}
	return nil
}
