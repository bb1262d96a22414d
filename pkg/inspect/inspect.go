package inspect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/holiman/uint256"
	"golang.org/x/sync/errgroup"

	"github.com/lumera-labs/near-lockup/pkg/lockup"
	"github.com/lumera-labs/near-lockup/pkg/metrics"
	"github.com/lumera-labs/near-lockup/pkg/policy"
	"github.com/lumera-labs/near-lockup/pkg/rpc"
	"github.com/lumera-labs/near-lockup/pkg/types"
)

// ErrInvalidAccountID is returned for account IDs that can't exist on NEAR.
var ErrInvalidAccountID = errors.New("invalid account id")

// Fetcher retrieves blocks and raw contract state from a NEAR node.
type Fetcher interface {
	Block(ctx context.Context, height *uint64) (*rpc.BlockHeader, error)
	ViewState(ctx context.Context, accountID string, height uint64) ([]byte, error)
}

type Options struct {
	Override policy.TransfersOverride
	// Retries is the number of extra attempts for a failed RPC fetch.
	Retries    int
	RetryDelay time.Duration
	Logger     *slog.Logger
	Metrics    *metrics.LockupMetrics
}

type Inspector struct {
	rpc     Fetcher
	opt     Options
	engine  *lockup.Engine
	logger  *slog.Logger
	metrics *metrics.LockupMetrics
}

func New(f Fetcher, opt Options) *Inspector {
	if opt.Retries < 0 {
		opt.Retries = 0
	}
	logger := opt.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Inspector{rpc: f, opt: opt, engine: lockup.NewEngine(), logger: logger, metrics: opt.Metrics}
}

// Inspect fetches the lockup contract state of accountID at height (latest final
// block when nil) and evaluates it at that block's timestamp.
func (i *Inspector) Inspect(ctx context.Context, accountID string, height *uint64) (*types.LockupReport, error) {
	report, err := i.inspect(ctx, accountID, height)
	switch {
	case err == nil:
		i.metrics.RecordInspection("ok")
	case errors.Is(err, ErrInvalidAccountID):
		i.metrics.RecordInspection("invalid")
	case errors.Is(err, rpc.ErrAccountNotFound):
		i.metrics.RecordInspection("not_found")
	case errors.Is(err, lockup.ErrDecode):
		i.metrics.RecordInspection("decode_error")
		i.metrics.RecordDecodeFailure()
	default:
		i.metrics.RecordInspection("rpc_error")
	}
	return report, err
}

func (i *Inspector) inspect(ctx context.Context, accountID string, height *uint64) (*types.LockupReport, error) {
	if !rpc.ValidAccountID(accountID) {
		return nil, fmt.Errorf("%w %q", ErrInvalidAccountID, accountID)
	}
	block, raw, err := i.fetch(ctx, accountID, height)
	if err != nil {
		return nil, err
	}
	contract, err := lockup.DecodeContract(raw)
	if err != nil {
		return nil, fmt.Errorf("%s at block %d: %w", accountID, block.Height, err)
	}

	state, overridden := i.opt.Override.Apply(contract.State)
	if overridden {
		i.logger.Info("transfers timestamp overridden",
			"account_id", accountID,
			"mode", i.opt.Override.Mode,
			"timestamp", i.opt.Override.Timestamp)
	}
	return i.report(accountID, block, contract, state, overridden), nil
}

// fetch resolves the block and the contract state. With an explicit height both
// requests are independent and run concurrently.
func (i *Inspector) fetch(ctx context.Context, accountID string, height *uint64) (*rpc.BlockHeader, []byte, error) {
	var (
		block *rpc.BlockHeader
		raw   []byte
	)
	if height == nil {
		err := i.retry(ctx, "block", func(ctx context.Context) (err error) {
			block, err = i.rpc.Block(ctx, nil)
			return err
		})
		if err != nil {
			return nil, nil, err
		}
		err = i.retry(ctx, "view_state", func(ctx context.Context) (err error) {
			raw, err = i.rpc.ViewState(ctx, accountID, block.Height)
			return err
		})
		if err != nil {
			return nil, nil, err
		}
		return block, raw, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return i.retry(gctx, "block", func(ctx context.Context) (err error) {
			block, err = i.rpc.Block(ctx, height)
			return err
		})
	})
	g.Go(func() error {
		return i.retry(gctx, "view_state", func(ctx context.Context) (err error) {
			raw, err = i.rpc.ViewState(ctx, accountID, *height)
			return err
		})
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return block, raw, nil
}

func (i *Inspector) retry(ctx context.Context, op string, fn func(context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = fn(ctx); err == nil || errors.Is(err, rpc.ErrAccountNotFound) {
			return err
		}
		if attempt >= i.opt.Retries || ctx.Err() != nil {
			return err
		}
		i.logger.Warn("rpc fetch failed, retrying", "op", op, "attempt", attempt+1, "error", err)
		select {
		case <-ctx.Done():
			return err
		case <-time.After(i.opt.RetryDelay):
		}
	}
}

func (i *Inspector) report(accountID string, block *rpc.BlockHeader, c *lockup.Contract, s lockup.State, overridden bool) *types.LockupReport {
	b := i.engine.Breakdown(s, block.Timestamp)
	lockupAmount := s.LockupAmount()
	withdrawn := s.TerminationWithdrawnTokens()

	var liquid uint256.Int
	if !lockupAmount.Lt(&b.Locked) {
		liquid.Sub(&lockupAmount, &b.Locked)
	}

	r := &types.LockupReport{
		AccountID:                  accountID,
		OwnerAccountID:             c.OwnerAccountID,
		BlockHeight:                block.Height,
		BlockHash:                  block.Hash,
		BlockTimestamp:             block.Timestamp,
		BlockTime:                  block.Time(),
		LockupAmount:               lockupAmount.Dec(),
		TerminationWithdrawnTokens: withdrawn.Dec(),
		LockedAmount:               b.Locked.Dec(),
		UnreleasedAmount:           b.Unreleased.Dec(),
		UnvestedAmount:             b.Unvested.Dec(),
		LiquidAmount:               liquid.Dec(),
		LockupStarted:              b.Started,
		Vesting:                    s.Vesting().Kind().String(),
		TransfersOverridden:        overridden,
	}
	r.StakingPoolWhitelistAccountID = c.StakingPoolWhitelistAccountID
	if ts, ok := s.Transfers().Timestamp(); ok {
		r.TransfersTimestamp = &ts
		start := b.LockupStart
		r.LockupStart = &start
	}
	if c.Staking != nil {
		r.StakingPoolAccountID = c.Staking.StakingPoolAccountID
	}
	if c.FoundationAccountID != nil {
		r.FoundationAccountID = *c.FoundationAccountID
	}
	return r
}
