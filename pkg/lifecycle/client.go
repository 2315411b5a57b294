package lifecycle

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/suiperp/pkg/contracts"
	"github.com/uhyunpark/suiperp/pkg/crypto"
	"github.com/uhyunpark/suiperp/pkg/order"
	"github.com/uhyunpark/suiperp/pkg/storage"
	"github.com/uhyunpark/suiperp/pkg/sui"
	"github.com/uhyunpark/suiperp/pkg/util"
)

// SuiCoinType is the native gas coin
const SuiCoinType = "0x2::sui::SUI"

// leverageSeparator joins tx bytes and signature in a relayed leverage update
const leverageSeparator = "||||"

// Deps are the collaborators a Client drives. Only Calls is required for signing;
// on-chain operations also need Chain and Submitter.
type Deps struct {
	Calls       *contracts.Builder
	Chain       Chain
	Submitter   Submitter
	Allocator   CoinAllocator
	Positions   PositionSource
	Coordinator LeverageCoordinator
}

type Config struct {
	GasBudget uint64
	Journal   storage.Journal
	Recorder  Recorder
	Clock     util.Clock
	Logger    *zap.Logger
}

// Client signs orders and runs settlement operations for one key
type Client struct {
	keys        *crypto.KeyMaterial
	calls       *contracts.Builder
	chain       Chain
	submitter   Submitter
	allocator   CoinAllocator
	positions   PositionSource
	coordinator LeverageCoordinator

	gasBudget uint64
	journal   storage.Journal
	rec       Recorder
	clock     util.Clock
	log       *zap.Logger
}

func New(keys *crypto.KeyMaterial, deps Deps, cfg Config) (*Client, error) {
	if keys == nil {
		return nil, crypto.ErrEmptyKeyMaterial
	}
	journal := cfg.Journal
	if journal == nil {
		journal = storage.NewNopJournal()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = util.RealClock{}
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		keys:        keys,
		calls:       deps.Calls,
		chain:       deps.Chain,
		submitter:   deps.Submitter,
		allocator:   deps.Allocator,
		positions:   deps.Positions,
		coordinator: deps.Coordinator,
		gasBudget:   cfg.GasBudget,
		journal:     journal,
		rec:         cfg.Recorder,
		clock:       clock,
		log:         log,
	}, nil
}

func (c *Client) Address() string { return c.keys.Address() }

// ============================================================================
// Off-chain signatures
// ============================================================================

// CreateSignedOrder builds the order from req and signs it. The returned
// OrderSignature carries the base64 public key after the signature.
func (c *Client) CreateSignedOrder(req order.Request) (*SignedOrder, error) {
	req = req.Normalized()
	o, err := c.buildOrder(req)
	if err != nil {
		return nil, err
	}
	sig, err := o.Sign(c.keys)
	if err != nil {
		return nil, err
	}
	hash, err := o.HashHex()
	if err != nil {
		return nil, err
	}

	signed := &SignedOrder{
		Symbol:         req.Symbol,
		Market:         o.Market,
		Price:          o.Price.Dec(),
		Quantity:       o.Quantity.Dec(),
		Side:           req.Side,
		Leverage:       o.Leverage.Dec(),
		ReduceOnly:     o.ReduceOnly,
		PostOnly:       o.PostOnly,
		CancelOnRevert: req.CancelOnRevert,
		OrderbookOnly:  o.OrderbookOnly,
		Salt:           o.Salt.Dec(),
		Expiration:     o.Expiration,
		OrderSignature: sig + c.keys.PublicKeyBase64(),
		OrderType:      req.Type,
		Maker:          o.Maker,
		TimeInForce:    req.TimeInForce.OrElse(order.TimeInForceGTT),
		ClientID:       req.ClientID.OrEmpty(),
		OrderHash:      hash,
		Order:          o,
	}
	if trigger, ok := req.TriggerPrice.Get(); ok {
		scaled, err := order.ToBase18(trigger)
		if err != nil {
			return nil, fmt.Errorf("%w: trigger price: %v", order.ErrInvalidRequest, err)
		}
		signed.TriggerPrice = scaled.Dec()
	}

	if err := c.record(storage.KindOrder, hash, signed); err != nil {
		return nil, err
	}
	c.observe("order")
	c.log.Debug("order_signed", zap.String("symbol", req.Symbol), zap.String("hash", hash))
	return signed, nil
}

// CreateSignedCancelOrder rebuilds the order described by req and signs its cancellation.
// req must carry the salt and expiration of the original order for the hash to match.
func (c *Client) CreateSignedCancelOrder(req order.Request, parentAddress string) (*CancellationRequest, error) {
	o, err := c.buildOrder(req)
	if err != nil {
		return nil, err
	}
	hash, err := o.HashHex()
	if err != nil {
		return nil, err
	}
	return c.CreateSignedCancelOrders(req.Symbol, []string{hash}, parentAddress)
}

// CreateSignedCancelOrders signs the cancellation of hashes in the given order
func (c *Client) CreateSignedCancelOrders(symbol string, hashes []string, parentAddress string) (*CancellationRequest, error) {
	digest, err := order.EncodeCancellation(hashes)
	if err != nil {
		return nil, err
	}
	sig := c.keys.SignHash(digest[:], "")
	req := &CancellationRequest{
		Symbol:        symbol,
		Hashes:        append([]string(nil), hashes...),
		Signature:     sig + c.keys.PublicKeyBase64(),
		ParentAddress: parentAddress,
	}
	if err := c.record(storage.KindCancel, hex.EncodeToString(digest[:]), req); err != nil {
		return nil, err
	}
	c.observe("cancel")
	return req, nil
}

// OnboardingSignature signs the onboarding message for url, followed by the base64 public key
func (c *Client) OnboardingSignature(url string) (string, error) {
	sig, err := order.SignOnboarding(c.keys, url)
	if err != nil {
		return "", err
	}
	c.observe("onboarding")
	return sig + c.keys.PublicKeyBase64(), nil
}

func (c *Client) buildOrder(req order.Request) (*order.Order, error) {
	if req.Market == "" && req.Symbol != "" && c.calls != nil && c.calls.Addresses() != nil {
		market, err := c.calls.Addresses().PerpetualID(req.Symbol)
		if err != nil {
			return nil, err
		}
		req.Market = market
	}
	return req.Build(c.clock.Now(), c.keys.Address())
}

// ============================================================================
// Positions and leverage
// ============================================================================

// HasOpenPosition asks the position source about symbol for parentAddress, or this key when empty
func (c *Client) HasOpenPosition(ctx context.Context, symbol, parentAddress string) (bool, error) {
	if c.positions == nil {
		return false, ErrNoPositionSource
	}
	open, err := c.positions.HasOpenPosition(ctx, symbol, c.account(parentAddress))
	if err != nil {
		return false, fmt.Errorf("failed to query %s position: %w", symbol, err)
	}
	return open, nil
}

// AdjustLeverage sets leverage for symbol. Without a position the change is recorded
// off-chain only. With one, a signed exchange::adjust_leverage is relayed through the
// coordinator, and executed directly if the coordinator rejects it.
func (c *Client) AdjustLeverage(ctx context.Context, symbol string, leverage decimal.Decimal, parentAddress string) (*LeverageResult, error) {
	lev, err := order.ToBase18(leverage)
	if err != nil {
		return nil, fmt.Errorf("invalid leverage: %w", err)
	}
	open, err := c.HasOpenPosition(ctx, symbol, parentAddress)
	if err != nil {
		return nil, err
	}

	account := c.account(parentAddress)
	req := LeverageRequest{
		Symbol:     symbol,
		Address:    account,
		Leverage:   lev.Dec(),
		MarginType: MarginType,
	}

	if !open {
		if c.coordinator == nil {
			return nil, ErrNoCoordinator
		}
		if err := c.coordinator.AdjustLeverage(ctx, req); err != nil {
			return nil, fmt.Errorf("failed to adjust %s leverage: %w", symbol, err)
		}
		if err := c.record(storage.KindLeverage, c.leverageKey(symbol), req); err != nil {
			return nil, err
		}
		return &LeverageResult{}, nil
	}

	if err := c.requireChain(); err != nil {
		return nil, err
	}
	call, err := c.calls.AdjustLeverage(symbol, account, lev)
	if err != nil {
		return nil, err
	}
	txBytes, sig, err := c.buildAndSign(ctx, call)
	if err != nil {
		return nil, err
	}
	req.SignedTransaction = hex.EncodeToString([]byte(txBytes + leverageSeparator + sig))

	if c.coordinator != nil {
		coordErr := c.coordinator.AdjustLeverage(ctx, req)
		if coordErr == nil {
			if err := c.record(storage.KindLeverage, c.leverageKey(symbol), req); err != nil {
				return nil, err
			}
			return &LeverageResult{OnChain: true}, nil
		}
		c.log.Warn("leverage_coordinator_rejected",
			zap.String("symbol", symbol),
			zap.Error(coordErr))
	}

	res, err := c.execute(ctx, call, txBytes, sig)
	if err != nil {
		return nil, err
	}
	return &LeverageResult{OnChain: true, Direct: true, Tx: res}, nil
}

// AdjustMargin adds or removes margin from an open position on symbol
func (c *Client) AdjustMargin(ctx context.Context, symbol string, op MarginOperation, amount decimal.Decimal, parentAddress string) (*sui.TransactionResult, error) {
	open, err := c.HasOpenPosition(ctx, symbol, parentAddress)
	if err != nil {
		return nil, err
	}
	if !open {
		return nil, fmt.Errorf("%w on market %s", ErrNoOpenPosition, symbol)
	}
	amt, err := order.ToBase18(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid margin amount: %w", err)
	}
	if err := c.requireChain(); err != nil {
		return nil, err
	}

	var call contracts.Call
	switch op {
	case MarginAdd:
		call, err = c.calls.AddMargin(symbol, c.account(parentAddress), amt)
	case MarginRemove:
		call, err = c.calls.RemoveMargin(symbol, c.account(parentAddress), amt)
	default:
		return nil, fmt.Errorf("unknown margin operation %d", op)
	}
	if err != nil {
		return nil, err
	}
	return c.submit(ctx, call)
}

// ============================================================================
// Margin bank and sub accounts
// ============================================================================

// DepositToBank deposits amount USDC into the margin bank. An empty coinID
// makes the allocator assemble a coin holding exactly the amount.
func (c *Client) DepositToBank(ctx context.Context, amount decimal.Decimal, coinID string) (*sui.TransactionResult, error) {
	base, err := usdcBase(amount)
	if err != nil {
		return nil, err
	}
	if err := c.requireChain(); err != nil {
		return nil, err
	}
	if coinID == "" {
		if c.allocator == nil {
			return nil, errors.New("coin allocator not configured")
		}
		coinID, err = c.allocator.CreateCoinWithBalance(ctx, c.calls.Addresses().CurrencyType, base)
		if err != nil {
			return nil, fmt.Errorf("failed to allocate deposit coin: %w", err)
		}
	}
	call, err := c.calls.DepositToBank(c.keys.Address(), base, coinID)
	if err != nil {
		return nil, err
	}
	return c.submit(ctx, call)
}

// WithdrawFromBank withdraws amount USDC from the margin bank
func (c *Client) WithdrawFromBank(ctx context.Context, amount decimal.Decimal) (*sui.TransactionResult, error) {
	base, err := usdcBase(amount)
	if err != nil {
		return nil, err
	}
	if err := c.requireChain(); err != nil {
		return nil, err
	}
	call, err := c.calls.WithdrawFromBank(c.keys.Address(), base)
	if err != nil {
		return nil, err
	}
	return c.submit(ctx, call)
}

func (c *Client) WithdrawAllFromBank(ctx context.Context) (*sui.TransactionResult, error) {
	if err := c.requireChain(); err != nil {
		return nil, err
	}
	call, err := c.calls.WithdrawAllFromBank(c.keys.Address())
	if err != nil {
		return nil, err
	}
	return c.submit(ctx, call)
}

// UpdateSubAccount whitelists sub as a sub account of this key, or revokes it
func (c *Client) UpdateSubAccount(ctx context.Context, sub string, status bool) (*sui.TransactionResult, error) {
	if err := c.requireChain(); err != nil {
		return nil, err
	}
	call, err := c.calls.SetSubAccount(sub, status)
	if err != nil {
		return nil, err
	}
	return c.submit(ctx, call)
}

// USDCCoins lists this key's coins of the exchange currency
func (c *Client) USDCCoins(ctx context.Context) ([]sui.Coin, error) {
	if err := c.requireChain(); err != nil {
		return nil, err
	}
	return c.chain.GetAllCoins(ctx, c.keys.Address(), c.calls.Addresses().CurrencyType)
}

// NativeBalance returns this key's SUI balance in whole units
func (c *Client) NativeBalance(ctx context.Context) (decimal.Decimal, error) {
	if c.chain == nil {
		return decimal.Zero, errors.New("chain client not configured")
	}
	bal, err := c.chain.GetBalance(ctx, c.keys.Address(), SuiCoinType)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get balance: %w", err)
	}
	total, err := uint256.FromDecimal(bal.TotalBalance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid balance %q: %w", bal.TotalBalance, err)
	}
	return order.FromSuiBase(total), nil
}

// ============================================================================
// helpers
// ============================================================================

func (c *Client) submit(ctx context.Context, call contracts.Call) (*sui.TransactionResult, error) {
	txBytes, sig, err := c.buildAndSign(ctx, call)
	if err != nil {
		return nil, err
	}
	return c.execute(ctx, call, txBytes, sig)
}

func (c *Client) buildAndSign(ctx context.Context, call contracts.Call) (string, string, error) {
	txBytes, err := c.chain.BuildMoveCall(ctx, call.MoveCall(c.keys.Address(), c.gasBudget))
	if err != nil {
		return "", "", fmt.Errorf("failed to build %s::%s: %w", call.Kind(), call.Function(), err)
	}
	sig, err := c.keys.SignTransaction(txBytes)
	if err != nil {
		return "", "", err
	}
	c.observe("transaction")
	return txBytes, sig, nil
}

type txRecord struct {
	Module   string `json:"module"`
	Function string `json:"function"`
	Digest   string `json:"digest"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

func (c *Client) execute(ctx context.Context, call contracts.Call, txBytes, sig string) (*sui.TransactionResult, error) {
	res, execErr := c.submitter.Execute(ctx, txBytes, sig)
	if res != nil && res.Digest != "" {
		rec := txRecord{Module: call.Kind().Module(), Function: call.Function(), Digest: res.Digest}
		if res.Effects != nil {
			rec.Status = res.Effects.Status.Status
			rec.Error = res.Effects.Status.Error
		}
		if err := c.record(storage.KindTransaction, res.Digest, rec); err != nil {
			return res, err
		}
	}
	if execErr != nil {
		return res, fmt.Errorf("%s::%s: %w", call.Kind(), call.Function(), execErr)
	}
	c.log.Info("tx_executed",
		zap.String("function", call.Function()),
		zap.String("digest", res.Digest))
	return res, nil
}

// record journals an entry. Re-signing an identical payload is not an error.
func (c *Client) record(kind storage.Kind, key string, payload any) error {
	e, err := storage.NewEntry(kind, key, payload, c.clock.Now())
	if err != nil {
		return err
	}
	if err := c.journal.Record(e); err != nil && !errors.Is(err, storage.ErrEntryExists) {
		return fmt.Errorf("failed to journal %s %s: %w", kind, key, err)
	}
	return nil
}

func (c *Client) leverageKey(symbol string) string {
	return fmt.Sprintf("%s:%d", symbol, c.clock.Now().UnixMilli())
}

func (c *Client) requireChain() error {
	if c.calls == nil || c.calls.Addresses() == nil {
		return errors.New("contract addresses not configured")
	}
	if c.chain == nil || c.submitter == nil {
		return errors.New("chain client not configured")
	}
	return nil
}

func (c *Client) account(parentAddress string) string {
	if parentAddress != "" {
		return parentAddress
	}
	return c.keys.Address()
}

func (c *Client) observe(kind string) {
	if c.rec != nil {
		c.rec.ObserveSignature(kind)
	}
}

func usdcBase(amount decimal.Decimal) (uint64, error) {
	base, err := order.ToUSDCBase(amount)
	if err != nil {
		return 0, fmt.Errorf("invalid USDC amount: %w", err)
	}
	if !base.IsUint64() {
		return 0, fmt.Errorf("USDC amount %s overflows u64", amount)
	}
	return base.Uint64(), nil
}
