package types

import "time"

// LockupReport is the evaluated lockup state of one account at one block.
// All amounts are in yoctoNEAR as base-10 integer strings to avoid float rounding.
type LockupReport struct {
	AccountID      string    `json:"account_id"`
	OwnerAccountID string    `json:"owner_account_id"`
	BlockHeight    uint64    `json:"block_height"`
	BlockHash      string    `json:"block_hash"`
	BlockTimestamp uint64    `json:"block_timestamp"`
	BlockTime      time.Time `json:"block_time"`

	LockupAmount               string `json:"lockup_amount"`
	TerminationWithdrawnTokens string `json:"termination_withdrawn_tokens"`
	LockedAmount               string `json:"locked_amount"`
	UnreleasedAmount           string `json:"unreleased_amount"`
	UnvestedAmount             string `json:"unvested_amount"`
	// LiquidAmount is the part of the lockup amount that is no longer locked.
	LiquidAmount string `json:"liquid_amount"`

	// LockupStart is when release begins (ns); omitted while transfers are disabled.
	LockupStart *uint64 `json:"lockup_start,omitempty"`
	// LockupStarted reports whether LockupStart has passed at this block.
	LockupStarted bool `json:"lockup_started"`

	Vesting            string  `json:"vesting"`
	TransfersTimestamp *uint64 `json:"transfers_timestamp,omitempty"`
	// TransfersOverridden is set when the transfers timestamp came from configuration.
	TransfersOverridden bool `json:"transfers_overridden"`

	StakingPoolWhitelistAccountID string `json:"staking_pool_whitelist_account_id,omitempty"`
	StakingPoolAccountID          string `json:"staking_pool_account_id,omitempty"`
	FoundationAccountID           string `json:"foundation_account_id,omitempty"`
}
