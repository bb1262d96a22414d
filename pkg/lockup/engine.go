package lockup

import (
	"github.com/holiman/uint256"
)

// Engine computes locked and unvested amounts of a lockup State at a block timestamp.
// It reproduces the arithmetic of the on-chain lockup contract: saturating additions,
// 256-bit intermediates for every amount*time product and floor division.
// Engine holds no state and is safe for concurrent use.
type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

// Breakdown is the result of one accrual query.
type Breakdown struct {
	// Locked is the amount that can't be transferred out.
	Locked uint256.Int
	// Unreleased is the amount still held by the lockup release schedule,
	// before termination withdrawals are subtracted.
	Unreleased uint256.Int
	// Unvested is the amount still held by vesting. Private schedules count as zero.
	Unvested uint256.Int
	// Started reports whether the lockup has started releasing at the queried timestamp.
	Started bool
	// LockupStart is the timestamp when release begins; zero while transfers are disabled.
	LockupStart uint64
}

// LockedAmount returns the amount of tokens locked due to lockup or vesting at blockTimestamp.
func (e *Engine) LockedAmount(s State, blockTimestamp uint64) uint256.Int {
	return e.Breakdown(s, blockTimestamp).Locked
}

// Breakdown computes the locked amount together with its components.
func (e *Engine) Breakdown(s State, blockTimestamp uint64) Breakdown {
	var b Breakdown
	whole := saturatingSub(&s.lockupAmount, &s.terminationWithdrawn)

	transfersTimestamp, enabled := s.transfers.Timestamp()
	if !enabled {
		// Everything stays locked until transfers are enabled.
		b.Locked = whole
		b.Unreleased = s.lockupAmount
		b.Unvested = e.vestingComponent(s, blockTimestamp)
		return b
	}

	lockupTimestamp, _ := s.LockupTimestamp()
	b.LockupStart = max(saturatingAdd(transfersTimestamp, s.lockupDuration), lockupTimestamp)
	if blockTimestamp < b.LockupStart {
		b.Locked = whole
		b.Unreleased = s.lockupAmount
		b.Unvested = e.vestingComponent(s, blockTimestamp)
		return b
	}
	b.Started = true

	if releaseDuration, ok := s.ReleaseDuration(); ok {
		endTimestamp := saturatingAdd(b.LockupStart, releaseDuration)
		if blockTimestamp < endTimestamp {
			// time left is smaller than the release duration, so the result fits in 128 bits
			b.Unreleased = mulDiv(&s.lockupAmount, endTimestamp-blockTimestamp, releaseDuration)
		}
	}

	b.Unvested = e.vestingComponent(s, blockTimestamp)

	released := saturatingSub(&b.Unreleased, &s.terminationWithdrawn)
	if released.Lt(&b.Unvested) {
		b.Locked = b.Unvested
	} else {
		b.Locked = released
	}
	return b
}

// vestingComponent is the unvested amount as seen by the locked amount computation.
// A private schedule is assumed to have started before the lockup and never adds to it.
func (e *Engine) vestingComponent(s State, blockTimestamp uint64) uint256.Int {
	switch s.vesting.kind {
	case VestingScheduled:
		return e.UnvestedAmount(s, s.vesting.schedule, blockTimestamp)
	case VestingTerminating:
		return s.vesting.unvested
	default:
		return uint256.Int{}
	}
}

// UnvestedAmount returns the amount still unvested at blockTimestamp. The schedule
// argument is used for private (hashed) vesting where the state itself carries no
// schedule; for an explicit schedule the caller passes the state's own schedule.
// A terminated vesting returns its frozen amount and no vesting returns zero.
func (e *Engine) UnvestedAmount(s State, schedule Schedule, blockTimestamp uint64) uint256.Int {
	switch s.vesting.kind {
	case VestingTerminating:
		return s.vesting.unvested
	case VestingNone:
		return uint256.Int{}
	}
	switch {
	case blockTimestamp < schedule.cliff:
		return s.lockupAmount
	case blockTimestamp >= schedule.end:
		return uint256.Int{}
	default:
		// block timestamp is before the end and total time is positive
		return mulDiv(&s.lockupAmount, schedule.end-blockTimestamp, schedule.end-schedule.start)
	}
}
