package lockup

import (
	"math"
	"math/big"
	"math/rand"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func u64(v uint64) *uint64 { return &v }

func amount(v uint64) *uint256.Int { return uint256.NewInt(v) }

func mustState(t *testing.T, p StateParams) State {
	t.Helper()
	s, err := NewState(p)
	require.NoError(t, err)
	return s
}

func mustSchedule(t *testing.T, start, cliff, end uint64) Schedule {
	t.Helper()
	s, err := NewSchedule(start, cliff, end)
	require.NoError(t, err)
	return s
}

func requireAmount(t *testing.T, want uint64, got uint256.Int) {
	t.Helper()
	require.Equal(t, uint256.NewInt(want).Dec(), got.Dec())
}

func TestLockedAmountTransfersDisabled(t *testing.T) {
	e := NewEngine()
	s := mustState(t, StateParams{
		LockupAmount:               amount(1_000_000),
		TerminationWithdrawnTokens: amount(250_000),
		LockupDuration:             100,
		ReleaseDuration:            u64(1000),
		Transfers:                  TransfersDisabled("transfer-vote.near"),
		Vesting:                    TerminatingVesting(amount(900_000), ReadyToWithdraw),
	})
	for _, ts := range []uint64{0, 1, 100, 1 << 40, math.MaxUint64} {
		requireAmount(t, 750_000, e.LockedAmount(s, ts))
	}
}

func TestLockedAmountWithdrawnExceedsLockupSaturates(t *testing.T) {
	e := NewEngine()
	s := mustState(t, StateParams{
		LockupAmount:               amount(10),
		TerminationWithdrawnTokens: amount(20),
		Transfers:                  TransfersDisabled("vote.near"),
	})
	requireAmount(t, 0, e.LockedAmount(s, 5))
}

func TestLockedAmountScenarios(t *testing.T) {
	e := NewEngine()
	noRelease := mustState(t, StateParams{
		LockupAmount:   amount(1_000_000),
		LockupDuration: 100,
		Transfers:      TransfersEnabled(0),
	})

	t.Run("before lockup matures", func(t *testing.T) {
		requireAmount(t, 1_000_000, e.LockedAmount(noRelease, 50))
	})
	t.Run("after lockup without release", func(t *testing.T) {
		requireAmount(t, 0, e.LockedAmount(noRelease, 150))
	})
	t.Run("at lockup start exactly", func(t *testing.T) {
		requireAmount(t, 0, e.LockedAmount(noRelease, 100))
	})
	t.Run("linear release midway", func(t *testing.T) {
		s := mustState(t, StateParams{
			LockupAmount:    amount(1_000_000),
			ReleaseDuration: u64(1000),
			Transfers:       TransfersEnabled(0),
		})
		b := e.Breakdown(s, 500)
		requireAmount(t, 500_000, b.Unreleased)
		requireAmount(t, 500_000, b.Locked)
		require.True(t, b.Started)
	})
	t.Run("termination overrides schedule", func(t *testing.T) {
		s := mustState(t, StateParams{
			LockupAmount: amount(1_000_000),
			Transfers:    TransfersEnabled(0),
			Vesting:      TerminatingVesting(amount(300_000), UnstakingInProgress),
		})
		for _, ts := range []uint64{0, 10, 1 << 50} {
			b := e.Breakdown(s, ts)
			requireAmount(t, 300_000, b.Unvested)
			requireAmount(t, 300_000, b.Locked)
		}
	})
}

func TestLockedAmountLockupTimestampWins(t *testing.T) {
	e := NewEngine()
	s := mustState(t, StateParams{
		LockupAmount:    amount(1000),
		LockupDuration:  10,
		LockupTimestamp: u64(500),
		Transfers:       TransfersEnabled(100),
	})
	b := e.Breakdown(s, 499)
	require.False(t, b.Started)
	require.Equal(t, uint64(500), b.LockupStart)
	requireAmount(t, 1000, b.Locked)
	requireAmount(t, 0, e.LockedAmount(s, 500))
}

func TestLockedAmountSaturatingLockupStart(t *testing.T) {
	e := NewEngine()
	s := mustState(t, StateParams{
		LockupAmount:    amount(1000),
		LockupDuration:  math.MaxUint64,
		ReleaseDuration: u64(math.MaxUint64),
		Transfers:       TransfersEnabled(10),
	})
	b := e.Breakdown(s, math.MaxUint64-1)
	require.Equal(t, uint64(math.MaxUint64), b.LockupStart)
	require.False(t, b.Started)

	// release end saturates too, so everything is released at the maximum timestamp
	requireAmount(t, 0, e.LockedAmount(s, math.MaxUint64))
}

func TestLockedAmountZeroReleaseDuration(t *testing.T) {
	e := NewEngine()
	s := mustState(t, StateParams{
		LockupAmount:    amount(1000),
		LockupDuration:  10,
		ReleaseDuration: u64(0),
		Transfers:       TransfersEnabled(0),
	})
	requireAmount(t, 1000, e.LockedAmount(s, 9))
	requireAmount(t, 0, e.LockedAmount(s, 10))
}

func TestLockedAmountWithdrawnOnlyReducesRelease(t *testing.T) {
	e := NewEngine()
	sched := mustSchedule(t, 0, 0, 1000)
	s := mustState(t, StateParams{
		LockupAmount:               amount(1000),
		TerminationWithdrawnTokens: amount(400),
		ReleaseDuration:            u64(1000),
		Transfers:                  TransfersEnabled(0),
		Vesting:                    ScheduledVesting(sched),
	})
	// unreleased 900 - 400 = 500, unvested 900
	requireAmount(t, 900, e.LockedAmount(s, 100))

	s = mustState(t, StateParams{
		LockupAmount:               amount(1000),
		TerminationWithdrawnTokens: amount(400),
		ReleaseDuration:            u64(1000),
		Transfers:                  TransfersEnabled(0),
	})
	requireAmount(t, 500, e.LockedAmount(s, 100))
}

func TestLockedAmountPrivateVestingIgnored(t *testing.T) {
	e := NewEngine()
	s := mustState(t, StateParams{
		LockupAmount: amount(1000),
		Transfers:    TransfersEnabled(0),
		Vesting:      PrivateVesting([]byte{1, 2, 3}),
	})
	b := e.Breakdown(s, 1)
	requireAmount(t, 0, b.Unvested)
	requireAmount(t, 0, b.Locked)
}

func TestUnvestedAmount(t *testing.T) {
	e := NewEngine()
	sched := mustSchedule(t, 1000, 2000, 5000)
	s := mustState(t, StateParams{
		LockupAmount: amount(4_000_000),
		Transfers:    TransfersEnabled(0),
		Vesting:      ScheduledVesting(sched),
	})

	requireAmount(t, 4_000_000, e.UnvestedAmount(s, sched, 0))
	requireAmount(t, 4_000_000, e.UnvestedAmount(s, sched, 1500))
	requireAmount(t, 4_000_000, e.UnvestedAmount(s, sched, 1999))
	// at the cliff the linear curve from start applies: 4_000_000 * 3000 / 4000
	requireAmount(t, 3_000_000, e.UnvestedAmount(s, sched, 2000))
	requireAmount(t, 1_000_000, e.UnvestedAmount(s, sched, 4000))
	// 4_000_000 * 1 / 4000
	requireAmount(t, 1_000, e.UnvestedAmount(s, sched, 4999))
	requireAmount(t, 0, e.UnvestedAmount(s, sched, 5000))
	requireAmount(t, 0, e.UnvestedAmount(s, sched, math.MaxUint64))

	// one nanosecond before the end a small lockup floors to a single unit
	small := mustState(t, StateParams{LockupAmount: amount(4000), Vesting: ScheduledVesting(sched)})
	requireAmount(t, 1, e.UnvestedAmount(small, sched, 4999))
	requireAmount(t, 0, e.UnvestedAmount(small, sched, 5000))
}

func TestUnvestedAmountCliffEqualsStart(t *testing.T) {
	e := NewEngine()
	sched := mustSchedule(t, 100, 100, 200)
	s := mustState(t, StateParams{LockupAmount: amount(7), Vesting: ScheduledVesting(sched)})
	requireAmount(t, 7, e.UnvestedAmount(s, sched, 100))
	// 7 * 33 / 100 floors to 2
	requireAmount(t, 2, e.UnvestedAmount(s, sched, 167))
}

func TestUnvestedAmountVariants(t *testing.T) {
	e := NewEngine()
	sched := mustSchedule(t, 0, 10, 100)

	none := mustState(t, StateParams{LockupAmount: amount(100)})
	requireAmount(t, 0, e.UnvestedAmount(none, sched, 5))

	terminating := mustState(t, StateParams{
		LockupAmount: amount(100),
		Vesting:      TerminatingVesting(amount(42), EverythingUnstaked),
	})
	requireAmount(t, 42, e.UnvestedAmount(terminating, sched, 5))
	requireAmount(t, 42, e.UnvestedAmount(terminating, sched, 1000))

	// a private schedule is computed from the revealed schedule argument
	private := mustState(t, StateParams{
		LockupAmount: amount(100),
		Vesting:      PrivateVesting(ScheduleHash(sched, []byte("salt"))),
	})
	requireAmount(t, 100, e.UnvestedAmount(private, sched, 5))
	requireAmount(t, 50, e.UnvestedAmount(private, sched, 50))
}

func TestLockedAmountWideIntermediate(t *testing.T) {
	e := NewEngine()
	maxU128 := new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))
	s := mustState(t, StateParams{
		LockupAmount:    maxU128,
		ReleaseDuration: u64(math.MaxUint64),
		Transfers:       TransfersEnabled(0),
	})
	ts := uint64(math.MaxUint64 / 3)
	got := e.LockedAmount(s, ts)

	want := new(big.Int).Mul(maxU128.ToBig(), new(big.Int).SetUint64(math.MaxUint64-ts))
	want.Quo(want, new(big.Int).SetUint64(math.MaxUint64))
	require.Equal(t, want.String(), got.Dec())
	require.LessOrEqual(t, got.BitLen(), 128)
}

// referenceLocked recomputes the locked amount with math/big.
func referenceLocked(s State, ts uint64) *big.Int {
	lockup := s.lockupAmount.ToBig()
	withdrawn := s.terminationWithdrawn.ToBig()
	subSat := func(a, b *big.Int) *big.Int {
		d := new(big.Int).Sub(a, b)
		if d.Sign() < 0 {
			return new(big.Int)
		}
		return d
	}
	transfers, ok := s.transfers.Timestamp()
	if !ok {
		return subSat(lockup, withdrawn)
	}
	start := new(big.Int).Add(new(big.Int).SetUint64(transfers), new(big.Int).SetUint64(s.lockupDuration))
	if start.Cmp(new(big.Int).SetUint64(math.MaxUint64)) > 0 {
		start.SetUint64(math.MaxUint64)
	}
	if lt, ok := s.LockupTimestamp(); ok && start.Uint64() < lt {
		start.SetUint64(lt)
	}
	if ts < start.Uint64() {
		return subSat(lockup, withdrawn)
	}
	unreleased := new(big.Int)
	if rd, ok := s.ReleaseDuration(); ok {
		end := new(big.Int).Add(start, new(big.Int).SetUint64(rd))
		if end.Cmp(new(big.Int).SetUint64(math.MaxUint64)) > 0 {
			end.SetUint64(math.MaxUint64)
		}
		if ts < end.Uint64() {
			unreleased.Mul(lockup, new(big.Int).SetUint64(end.Uint64()-ts))
			unreleased.Quo(unreleased, new(big.Int).SetUint64(rd))
		}
	}
	unvested := new(big.Int)
	switch v := s.vesting; v.kind {
	case VestingTerminating:
		unvested = v.unvested.ToBig()
	case VestingScheduled:
		sc := v.schedule
		switch {
		case ts < sc.cliff:
			unvested.Set(lockup)
		case ts >= sc.end:
		default:
			unvested.Mul(lockup, new(big.Int).SetUint64(sc.end-ts))
			unvested.Quo(unvested, new(big.Int).SetUint64(sc.end-sc.start))
		}
	}
	released := subSat(unreleased, withdrawn)
	if released.Cmp(unvested) < 0 {
		return unvested
	}
	return released
}

func randomState(t *testing.T, rng *rand.Rand) State {
	t.Helper()
	lockup := new(uint256.Int).SetUint64(rng.Uint64())
	lockup.Lsh(lockup, uint(rng.Intn(65)))
	p := StateParams{
		LockupAmount:               lockup,
		TerminationWithdrawnTokens: new(uint256.Int).Div(lockup, uint256.NewInt(uint64(rng.Intn(10)+1))),
		LockupDuration:             uint64(rng.Intn(1_000_000)),
	}
	if rng.Intn(4) == 0 {
		p.TerminationWithdrawnTokens = nil
	}
	if rng.Intn(2) == 0 {
		p.ReleaseDuration = u64(uint64(rng.Intn(2_000_000)))
	}
	if rng.Intn(3) == 0 {
		p.LockupTimestamp = u64(uint64(rng.Intn(3_000_000)))
	}
	if rng.Intn(5) == 0 {
		p.Transfers = TransfersDisabled("vote.near")
	} else {
		p.Transfers = TransfersEnabled(uint64(rng.Intn(1_000_000)))
	}
	switch rng.Intn(4) {
	case 1:
		p.Vesting = PrivateVesting([]byte{byte(rng.Intn(256))})
	case 2:
		start := uint64(rng.Intn(2_000_000))
		cliff := start + uint64(rng.Intn(500_000))
		end := cliff + uint64(rng.Intn(2_000_000)) + 1
		p.Vesting = ScheduledVesting(mustSchedule(t, start, cliff, end))
	case 3:
		p.Vesting = TerminatingVesting(new(uint256.Int).Div(lockup, uint256.NewInt(3)), WithdrawingFromAccountInProgress)
	}
	return mustState(t, p)
}

func TestLockedAmountProperties(t *testing.T) {
	e := NewEngine()
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 300; i++ {
		s := randomState(t, rng)
		lockup := s.LockupAmount()
		withdrawn := s.TerminationWithdrawnTokens()
		// Withdrawals reduce the pre-release amount but not the vesting component,
		// so a locked amount may step up at lockup start when both are present.
		monotonic := withdrawn.IsZero() || s.Vesting().Kind() == VestingNone || s.Vesting().Kind() == VestingHash
		prev := e.LockedAmount(s, 0)
		for ts := uint64(0); ts <= 6_000_000; ts += 37_501 {
			got := e.LockedAmount(s, ts)
			require.Equal(t, referenceLocked(s, ts).String(), got.Dec(), "state %d ts %d", i, ts)
			require.False(t, got.Gt(&lockup), "locked exceeds lockup amount")
			if monotonic {
				require.False(t, got.Gt(&prev), "locked amount increased at ts %d", ts)
			}
			again := e.LockedAmount(s, ts)
			require.True(t, got.Eq(&again))
			prev = got
		}
	}
}
