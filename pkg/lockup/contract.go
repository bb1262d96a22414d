package lockup

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/lumera-labs/near-lockup/internal/borsh"
)

// ErrDecode wraps every failure to decode a lockup contract record.
var ErrDecode = errors.New("decode lockup contract state")

// StakingStatus reports whether a staking pool transaction is in flight.
type StakingStatus uint8

const (
	StakingIdle StakingStatus = iota
	StakingBusy
)

func (s StakingStatus) String() string {
	switch s {
	case StakingIdle:
		return "Idle"
	case StakingBusy:
		return "Busy"
	default:
		return fmt.Sprintf("StakingStatus(%d)", uint8(s))
	}
}

// StakingInformation describes the selected staking pool.
type StakingInformation struct {
	StakingPoolAccountID string
	Status               StakingStatus
	// DepositAmount is the amount deposited to the pool, excluding rewards.
	DepositAmount uint256.Int
}

// Contract is the full persisted state of a lockup contract account.
type Contract struct {
	OwnerAccountID                string
	State                         State
	StakingPoolWhitelistAccountID string
	// Staking is nil when no staking pool is selected.
	Staking *StakingInformation
	// FoundationAccountID is the account allowed to terminate vesting, if any.
	FoundationAccountID *string
}

const (
	transfersEnabledTag  = 0
	transfersDisabledTag = 1

	vestingNoneTag        = 0
	vestingHashTag        = 1
	vestingScheduleTag    = 2
	vestingTerminatingTag = 3
)

// DecodeContract decodes the Borsh-serialized lockup contract state. It either
// returns a Contract whose State satisfies every construction invariant, or an
// error wrapping ErrDecode. All input bytes must be consumed.
func DecodeContract(raw []byte) (*Contract, error) {
	c, err := decodeContract(borsh.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return c, nil
}

func decodeContract(r *borsh.Reader) (*Contract, error) {
	var (
		c   Contract
		p   StateParams
		err error
	)
	if c.OwnerAccountID, err = r.Str(); err != nil {
		return nil, fmt.Errorf("owner_account_id: %w", err)
	}
	if p.LockupAmount, err = r.U128(); err != nil {
		return nil, fmt.Errorf("lockup_amount: %w", err)
	}
	if p.TerminationWithdrawnTokens, err = r.U128(); err != nil {
		return nil, fmt.Errorf("termination_withdrawn_tokens: %w", err)
	}
	if p.LockupDuration, err = r.U64(); err != nil {
		return nil, fmt.Errorf("lockup_duration: %w", err)
	}
	if p.ReleaseDuration, err = r.OptionU64(); err != nil {
		return nil, fmt.Errorf("release_duration: %w", err)
	}
	if p.LockupTimestamp, err = r.OptionU64(); err != nil {
		return nil, fmt.Errorf("lockup_timestamp: %w", err)
	}
	if p.Transfers, err = decodeTransfers(r); err != nil {
		return nil, fmt.Errorf("transfers_information: %w", err)
	}
	if p.Vesting, err = decodeVesting(r); err != nil {
		return nil, fmt.Errorf("vesting_information: %w", err)
	}
	if c.State, err = NewState(p); err != nil {
		return nil, err
	}
	if c.StakingPoolWhitelistAccountID, err = r.Str(); err != nil {
		return nil, fmt.Errorf("staking_pool_whitelist_account_id: %w", err)
	}
	if c.Staking, err = decodeStaking(r); err != nil {
		return nil, fmt.Errorf("staking_information: %w", err)
	}
	some, err := r.Option()
	if err != nil {
		return nil, fmt.Errorf("foundation_account_id: %w", err)
	}
	if some {
		id, err := r.Str()
		if err != nil {
			return nil, fmt.Errorf("foundation_account_id: %w", err)
		}
		c.FoundationAccountID = &id
	}
	if err := r.Finish(); err != nil {
		return nil, err
	}
	return &c, nil
}

func decodeTransfers(r *borsh.Reader) (Transfers, error) {
	tag, err := r.U8()
	if err != nil {
		return Transfers{}, err
	}
	switch tag {
	case transfersEnabledTag:
		ts, err := r.U64()
		if err != nil {
			return Transfers{}, err
		}
		return TransfersEnabled(ts), nil
	case transfersDisabledTag:
		poll, err := r.Str()
		if err != nil {
			return Transfers{}, err
		}
		return TransfersDisabled(poll), nil
	default:
		return Transfers{}, fmt.Errorf("unknown variant %d", tag)
	}
}

func decodeVesting(r *borsh.Reader) (Vesting, error) {
	tag, err := r.U8()
	if err != nil {
		return Vesting{}, err
	}
	switch tag {
	case vestingNoneTag:
		return NoVesting(), nil
	case vestingHashTag:
		h, err := r.Bytes()
		if err != nil {
			return Vesting{}, err
		}
		return PrivateVesting(h), nil
	case vestingScheduleTag:
		var ts [3]uint64
		for i := range ts {
			if ts[i], err = r.U64(); err != nil {
				return Vesting{}, err
			}
		}
		s, err := NewSchedule(ts[0], ts[1], ts[2])
		if err != nil {
			return Vesting{}, err
		}
		return ScheduledVesting(s), nil
	case vestingTerminatingTag:
		unvested, err := r.U128()
		if err != nil {
			return Vesting{}, err
		}
		status, err := r.U8()
		if err != nil {
			return Vesting{}, err
		}
		if !TerminationStatus(status).valid() {
			return Vesting{}, fmt.Errorf("unknown termination status %d", status)
		}
		return TerminatingVesting(unvested, TerminationStatus(status)), nil
	default:
		return Vesting{}, fmt.Errorf("unknown variant %d", tag)
	}
}

func decodeStaking(r *borsh.Reader) (*StakingInformation, error) {
	some, err := r.Option()
	if err != nil || !some {
		return nil, err
	}
	var info StakingInformation
	if info.StakingPoolAccountID, err = r.Str(); err != nil {
		return nil, err
	}
	status, err := r.U8()
	if err != nil {
		return nil, err
	}
	if status > uint8(StakingBusy) {
		return nil, fmt.Errorf("unknown transaction status %d", status)
	}
	info.Status = StakingStatus(status)
	amount, err := r.U128()
	if err != nil {
		return nil, err
	}
	info.DepositAmount = *amount
	return &info, nil
}

// MarshalBorsh encodes the contract in the same layout DecodeContract reads.
func (c *Contract) MarshalBorsh() []byte {
	var w borsh.Writer
	s := c.State
	w.Str(c.OwnerAccountID)
	w.U128(&s.lockupAmount)
	w.U128(&s.terminationWithdrawn)
	w.U64(s.lockupDuration)
	if d, ok := s.ReleaseDuration(); ok {
		w.OptionU64(&d)
	} else {
		w.OptionU64(nil)
	}
	if ts, ok := s.LockupTimestamp(); ok {
		w.OptionU64(&ts)
	} else {
		w.OptionU64(nil)
	}
	if ts, ok := s.transfers.Timestamp(); ok {
		w.U8(transfersEnabledTag)
		w.U64(ts)
	} else {
		w.U8(transfersDisabledTag)
		w.Str(s.transfers.pollAccountID)
	}
	switch v := s.vesting; v.kind {
	case VestingHash:
		w.U8(vestingHashTag)
		w.ByteVec(v.hash)
	case VestingScheduled:
		w.U8(vestingScheduleTag)
		writeSchedule(&w, v.schedule)
	case VestingTerminating:
		w.U8(vestingTerminatingTag)
		w.U128(&v.unvested)
		w.U8(uint8(v.status))
	default:
		w.U8(vestingNoneTag)
	}
	w.Str(c.StakingPoolWhitelistAccountID)
	if c.Staking == nil {
		w.U8(0)
	} else {
		w.U8(1)
		w.Str(c.Staking.StakingPoolAccountID)
		w.U8(uint8(c.Staking.Status))
		w.U128(&c.Staking.DepositAmount)
	}
	if c.FoundationAccountID == nil {
		w.U8(0)
	} else {
		w.U8(1)
		w.Str(*c.FoundationAccountID)
	}
	return w.Bytes()
}

func writeSchedule(w *borsh.Writer, s Schedule) {
	w.U64(s.start)
	w.U64(s.cliff)
	w.U64(s.end)
}

// ScheduleHash returns the commitment stored in the private vesting variant:
// sha256 over the Borsh encoding of the schedule followed by the salt.
func ScheduleHash(s Schedule, salt []byte) []byte {
	var w borsh.Writer
	writeSchedule(&w, s)
	w.ByteVec(salt)
	sum := sha256.Sum256(w.Bytes())
	return sum[:]
}

// RevealSchedule checks a disclosed schedule and salt against the private vesting
// commitment of st. It returns false for any other vesting kind.
func RevealSchedule(st State, s Schedule, salt []byte) bool {
	h, ok := st.vesting.Hash()
	if !ok {
		return false
	}
	return bytes.Equal(h, ScheduleHash(s, salt))
}
