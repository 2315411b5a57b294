package coins

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/uhyunpark/suiperp/pkg/crypto"
	"github.com/uhyunpark/suiperp/pkg/sui"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrZeroBalance         = errors.New("zero balance coin not supported")
	ErrNoCreatedCoin       = errors.New("split produced no coin")
)

// InsufficientBalanceError reports the shortfall for a coin type
type InsufficientBalanceError struct {
	Owner     string
	CoinType  string
	Available uint64
	Required  uint64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("%s: %s holds %d of %s, need %d", ErrInsufficientBalance, e.Owner, e.Available, e.CoinType, e.Required)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// ZeroBalancePolicy decides how a zero target is handled
type ZeroBalancePolicy int

const (
	RejectZero ZeroBalancePolicy = iota
	CreateZero
)

// Chain is the node surface used to list, split and merge coins. *sui.Client satisfies it.
type Chain interface {
	GetAllCoins(ctx context.Context, owner, coinType string) ([]sui.Coin, error)
	BuildSplitCoin(ctx context.Context, signer, coinID string, amounts []uint64) (string, error)
	BuildMergeCoins(ctx context.Context, signer, primaryID, coinID string) (string, error)
	BuildMoveCall(ctx context.Context, call sui.MoveCall) (string, error)
}

// TxExecutor signs and executes built bytes. *sui.Submitter satisfies it.
type TxExecutor interface {
	SignAndExecute(ctx context.Context, keys *crypto.KeyMaterial, txBytes string) (*sui.TransactionResult, error)
}

// ZeroCoinBuilder builds the move call that mints an empty coin of a type
type ZeroCoinBuilder func(signer, coinType string) sui.MoveCall

// Recorder observes allocation outcomes
type Recorder interface {
	ObserveAllocation(path string)
}

type Config struct {
	ZeroPolicy ZeroBalancePolicy
	ZeroCoin   ZeroCoinBuilder
	Logger     *zap.Logger
	Recorder   Recorder
}

// Allocator assembles a single coin object holding an exact balance
type Allocator struct {
	chain      Chain
	exec       TxExecutor
	keys       *crypto.KeyMaterial
	zeroPolicy ZeroBalancePolicy
	zeroCoin   ZeroCoinBuilder
	log        *zap.Logger
	rec        Recorder
}

func NewAllocator(chain Chain, exec TxExecutor, keys *crypto.KeyMaterial, cfg Config) *Allocator {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Allocator{
		chain:      chain,
		exec:       exec,
		keys:       keys,
		zeroPolicy: cfg.ZeroPolicy,
		zeroCoin:   cfg.ZeroCoin,
		log:        log,
		rec:        cfg.Recorder,
	}
}

// Allocation paths reported to the Recorder
const (
	PathExact = "exact"
	PathSplit = "split"
	PathMerge = "merge"
	PathZero  = "zero"
)

// CreateCoinWithBalance returns the id of an owned coin of coinType holding exactly balance.
// It reuses an exact coin, splits the smallest sufficient coin, or merges every coin into the
// largest one and splits the result. Merges run one at a time and the first failure aborts.
func (a *Allocator) CreateCoinWithBalance(ctx context.Context, coinType string, balance uint64) (string, error) {
	if coinType == "" {
		return "", errors.New("coin type is required")
	}
	if balance == 0 {
		return a.createZero(ctx, coinType)
	}

	owner := a.keys.Address()
	coins, err := a.chain.GetAllCoins(ctx, owner, coinType)
	if err != nil {
		return "", fmt.Errorf("failed to list %s coins: %w", coinType, err)
	}
	sorted, err := SortAscending(coins)
	if err != nil {
		return "", err
	}

	total, err := SumCoins(sorted)
	if err != nil {
		return "", err
	}
	if total < balance {
		return "", &InsufficientBalanceError{Owner: owner, CoinType: coinType, Available: total, Required: balance}
	}

	coin, exact, err := FindCoinWithBalance(sorted, balance)
	if err != nil {
		return "", err
	}
	if coin != nil {
		if exact {
			a.observe(PathExact)
			return coin.CoinObjectID, nil
		}
		a.observe(PathSplit)
		return a.split(ctx, coin.CoinObjectID, balance)
	}

	largest := sorted[len(sorted)-1]
	rest := sorted[:len(sorted)-1]
	a.log.Info("coin_merge_required",
		zap.String("coin_type", coinType),
		zap.String("primary", largest.CoinObjectID),
		zap.Int("merge_count", len(rest)))

	if _, err := a.MergeCoins(ctx, largest.CoinObjectID, rest); err != nil {
		return "", err
	}
	a.observe(PathMerge)
	if total == balance {
		return largest.CoinObjectID, nil
	}
	return a.split(ctx, largest.CoinObjectID, balance)
}

// MergeCoins merges each coin into primaryID sequentially
func (a *Allocator) MergeCoins(ctx context.Context, primaryID string, coins []sui.Coin) (string, error) {
	for _, c := range coins {
		if c.CoinObjectID == primaryID {
			continue
		}
		txBytes, err := a.chain.BuildMergeCoins(ctx, a.keys.Address(), primaryID, c.CoinObjectID)
		if err != nil {
			return "", fmt.Errorf("failed to build merge of %s: %w", c.CoinObjectID, err)
		}
		if _, err := a.exec.SignAndExecute(ctx, a.keys, txBytes); err != nil {
			return "", fmt.Errorf("failed to merge %s into %s: %w", c.CoinObjectID, primaryID, err)
		}
		a.log.Debug("coin_merged", zap.String("primary", primaryID), zap.String("coin", c.CoinObjectID))
	}
	return primaryID, nil
}

// SplitCoin splits amounts off coinID and returns the execution result
func (a *Allocator) SplitCoin(ctx context.Context, coinID string, amounts []uint64) (*sui.TransactionResult, error) {
	txBytes, err := a.chain.BuildSplitCoin(ctx, a.keys.Address(), coinID, amounts)
	if err != nil {
		return nil, fmt.Errorf("failed to build split of %s: %w", coinID, err)
	}
	res, err := a.exec.SignAndExecute(ctx, a.keys, txBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to split %s: %w", coinID, err)
	}
	return res, nil
}

func (a *Allocator) split(ctx context.Context, coinID string, balance uint64) (string, error) {
	res, err := a.SplitCoin(ctx, coinID, []uint64{balance})
	if err != nil {
		return "", err
	}
	created := res.CreatedIDs()
	if len(created) == 0 {
		return "", fmt.Errorf("%w: tx %s", ErrNoCreatedCoin, res.Digest)
	}
	a.log.Info("coin_split", zap.String("source", coinID), zap.String("created", created[0]), zap.Uint64("balance", balance))
	return created[0], nil
}

func (a *Allocator) createZero(ctx context.Context, coinType string) (string, error) {
	if a.zeroPolicy != CreateZero || a.zeroCoin == nil {
		return "", ErrZeroBalance
	}
	txBytes, err := a.chain.BuildMoveCall(ctx, a.zeroCoin(a.keys.Address(), coinType))
	if err != nil {
		return "", fmt.Errorf("failed to build zero coin: %w", err)
	}
	res, err := a.exec.SignAndExecute(ctx, a.keys, txBytes)
	if err != nil {
		return "", fmt.Errorf("failed to create zero coin: %w", err)
	}
	created := res.CreatedIDs()
	if len(created) == 0 {
		return "", fmt.Errorf("%w: tx %s", ErrNoCreatedCoin, res.Digest)
	}
	a.observe(PathZero)
	return created[0], nil
}

func (a *Allocator) observe(path string) {
	if a.rec != nil {
		a.rec.ObserveAllocation(path)
	}
}

// SortAscending returns a copy of coins ordered by balance. Equal balances keep their order.
func SortAscending(coins []sui.Coin) ([]sui.Coin, error) {
	type entry struct {
		coin sui.Coin
		bal  uint64
	}
	entries := make([]entry, len(coins))
	for i, c := range coins {
		bal, err := c.BalanceValue()
		if err != nil {
			return nil, err
		}
		entries[i] = entry{coin: c, bal: bal}
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].bal < entries[j].bal })

	out := make([]sui.Coin, len(entries))
	for i, e := range entries {
		out[i] = e.coin
	}
	return out, nil
}

// SumCoins totals coin balances, failing on overflow
func SumCoins(coins []sui.Coin) (uint64, error) {
	var total uint64
	for _, c := range coins {
		bal, err := c.BalanceValue()
		if err != nil {
			return 0, err
		}
		if total+bal < total {
			return 0, fmt.Errorf("coin balance total overflows u64")
		}
		total += bal
	}
	return total, nil
}

// FindCoinWithBalance returns the first coin holding at least amount and whether it matches exactly
func FindCoinWithBalance(coins []sui.Coin, amount uint64) (*sui.Coin, bool, error) {
	for i := range coins {
		bal, err := coins[i].BalanceValue()
		if err != nil {
			return nil, false, err
		}
		if bal >= amount {
			return &coins[i], bal == amount, nil
		}
	}
	return nil, false, nil
}
