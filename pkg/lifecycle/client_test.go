package lifecycle

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/suiperp/pkg/contracts"
	"github.com/uhyunpark/suiperp/pkg/crypto"
	"github.com/uhyunpark/suiperp/pkg/order"
	"github.com/uhyunpark/suiperp/pkg/storage"
	"github.com/uhyunpark/suiperp/pkg/sui"
)

const (
	testMnemonic = "lawsuit pony abuse faint call ship attract slender arrange expire despair orbit"
	ethPerp      = "0x25a869797387e2eaa09c658c83dc0deaba99bb02c94447339c06fdbe8287347e"
	usdcType     = "0xusdc::coin::COIN"
)

const addressDoc = `{
  "auxiliaryContractsAddresses": {
    "objects": {
      "package": {"id": "0xpkg"},
      "Bank": {"id": "0xbank"},
      "SubAccounts": {"id": "0xsubs"},
      "Sequencer": {"id": "0xseq"},
      "Currency": {"id": "0xcur", "dataType": "0xusdc::coin::COIN"}
    }
  },
  "ETH-PERP": {
    "Perpetual": {"id": "0x25a869797387e2eaa09c658c83dc0deaba99bb02c94447339c06fdbe8287347e"},
    "PriceOracle": {"id": "0xoracle"}
  }
}`

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time                       { return c.now }
func (c fixedClock) After(time.Duration) <-chan time.Time { return make(chan time.Time) }

type fakePositions struct {
	open    bool
	err     error
	queried []string
}

func (f *fakePositions) HasOpenPosition(_ context.Context, symbol, account string) (bool, error) {
	f.queried = append(f.queried, symbol+"@"+account)
	return f.open, f.err
}

type fakeCoordinator struct {
	reqs []LeverageRequest
	err  error
}

func (f *fakeCoordinator) AdjustLeverage(_ context.Context, req LeverageRequest) error {
	f.reqs = append(f.reqs, req)
	return f.err
}

type fakeChain struct {
	calls   []sui.MoveCall
	coins   []sui.Coin
	balance string
}

func (f *fakeChain) BuildMoveCall(_ context.Context, call sui.MoveCall) (string, error) {
	f.calls = append(f.calls, call)
	return "dHhieXRlcw==", nil // base64("txbytes")
}

func (f *fakeChain) GetAllCoins(_ context.Context, _, _ string) ([]sui.Coin, error) {
	return f.coins, nil
}

func (f *fakeChain) GetBalance(_ context.Context, _, coinType string) (*sui.Balance, error) {
	return &sui.Balance{CoinType: coinType, TotalBalance: f.balance}, nil
}

type fakeSubmitter struct {
	txs    []string
	sigs   []string
	status string
}

func (f *fakeSubmitter) Execute(_ context.Context, txBytes, signature string) (*sui.TransactionResult, error) {
	f.txs = append(f.txs, txBytes)
	f.sigs = append(f.sigs, signature)
	status := f.status
	if status == "" {
		status = sui.StatusSuccess
	}
	res := &sui.TransactionResult{
		Digest:  "D" + string(rune('0'+len(f.txs))),
		Effects: &sui.Effects{Status: sui.ExecutionStatus{Status: status}},
	}
	return res, res.Err()
}

type fakeAllocator struct {
	coinType string
	balance  uint64
}

func (f *fakeAllocator) CreateCoinWithBalance(_ context.Context, coinType string, balance uint64) (string, error) {
	f.coinType, f.balance = coinType, balance
	return "0xexact", nil
}

type signatureCounter map[string]int

func (s signatureCounter) ObserveSignature(kind string) { s[kind]++ }

type fixture struct {
	client      *Client
	keys        *crypto.KeyMaterial
	positions   *fakePositions
	coordinator *fakeCoordinator
	chain       *fakeChain
	submitter   *fakeSubmitter
	allocator   *fakeAllocator
	journal     *storage.MemJournal
	sigs        signatureCounter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	keys, err := crypto.FromMnemonic(testMnemonic)
	require.NoError(t, err)
	addrs, err := contracts.ParseAddresses([]byte(addressDoc))
	require.NoError(t, err)

	f := &fixture{
		keys:        keys,
		positions:   &fakePositions{},
		coordinator: &fakeCoordinator{},
		chain:       &fakeChain{},
		submitter:   &fakeSubmitter{},
		allocator:   &fakeAllocator{},
		journal:     storage.NewMemJournal(),
		sigs:        signatureCounter{},
	}
	f.client, err = New(keys, Deps{
		Calls:       contracts.NewBuilder(addrs, nil),
		Chain:       f.chain,
		Submitter:   f.submitter,
		Allocator:   f.allocator,
		Positions:   f.positions,
		Coordinator: f.coordinator,
	}, Config{
		Journal:  f.journal,
		Recorder: f.sigs,
		Clock:    fixedClock{now: time.UnixMilli(1700000000000)},
	})
	require.NoError(t, err)
	return f
}

func limitRequest() order.Request {
	return order.Request{
		Symbol:     "ETH-PERP",
		Side:       order.SideBuy,
		Type:       order.TypeLimit,
		Price:      decimal.RequireFromString("1850.5"),
		Quantity:   decimal.RequireFromString("0.1"),
		Leverage:   mo.Some(decimal.NewFromInt(3)),
		Salt:       mo.Some(uint64(42)),
		Expiration: mo.Some(uint64(1700000600000)),
	}
}

func TestCreateSignedOrder(t *testing.T) {
	f := newFixture(t)

	signed, err := f.client.CreateSignedOrder(limitRequest())
	require.NoError(t, err)

	assert.Equal(t, ethPerp, signed.Market)
	assert.Equal(t, "1850500000000000000000", signed.Price)
	assert.Equal(t, "100000000000000000", signed.Quantity)
	assert.Equal(t, "3000000000000000000", signed.Leverage)
	assert.Equal(t, f.keys.Address(), signed.Maker)
	assert.True(t, signed.OrderbookOnly)
	assert.Equal(t, order.TimeInForceGTT, signed.TimeInForce)

	require.True(t, strings.HasSuffix(signed.OrderSignature, f.keys.PublicKeyBase64()))
	sig := strings.TrimSuffix(signed.OrderSignature, f.keys.PublicKeyBase64())
	assert.Len(t, sig, 129)
	assert.True(t, signed.Order.Verify(f.keys.PublicKey(), sig))

	hash, err := signed.Order.HashHex()
	require.NoError(t, err)
	assert.Equal(t, hash, signed.OrderHash)

	entry, err := f.journal.Get(storage.KindOrder, hash)
	require.NoError(t, err)
	assert.Contains(t, string(entry.Payload), hash)
	assert.Equal(t, 1, f.sigs["order"])

	// identical order signs again without a journal conflict
	_, err = f.client.CreateSignedOrder(limitRequest())
	require.NoError(t, err)
}

func TestCreateSignedOrderIOC(t *testing.T) {
	f := newFixture(t)
	req := limitRequest()
	req.TimeInForce = mo.Some(order.TimeInForceIOC)
	req.TriggerPrice = mo.Some(decimal.NewFromInt(1800))

	signed, err := f.client.CreateSignedOrder(req)
	require.NoError(t, err)
	assert.True(t, signed.Order.IOC)
	assert.Equal(t, order.TimeInForceIOC, signed.TimeInForce)
	assert.Equal(t, "1800000000000000000000", signed.TriggerPrice)
}

func TestCreateSignedOrderUnknownMarket(t *testing.T) {
	f := newFixture(t)
	req := limitRequest()
	req.Symbol = "DOGE-PERP"
	_, err := f.client.CreateSignedOrder(req)
	assert.ErrorIs(t, err, contracts.ErrUnknownMarket)
}

func TestCreateSignedCancelOrder(t *testing.T) {
	f := newFixture(t)

	signed, err := f.client.CreateSignedOrder(limitRequest())
	require.NoError(t, err)

	cancel, err := f.client.CreateSignedCancelOrder(limitRequest(), "0xparent")
	require.NoError(t, err)
	assert.Equal(t, []string{signed.OrderHash}, cancel.Hashes)
	assert.Equal(t, "0xparent", cancel.ParentAddress)
	assert.Equal(t, "ETH-PERP", cancel.Symbol)

	want, err := order.SignCancellation(f.keys, []string{signed.OrderHash})
	require.NoError(t, err)
	assert.Equal(t, want+f.keys.PublicKeyBase64(), cancel.Signature)

	digest, err := order.EncodeCancellation(cancel.Hashes)
	require.NoError(t, err)
	_, err = f.journal.Get(storage.KindCancel, hex.EncodeToString(digest[:]))
	assert.NoError(t, err)

	_, err = f.client.CreateSignedCancelOrders("ETH-PERP", nil, "")
	assert.ErrorIs(t, err, order.ErrEmptyCancellation)
}

func TestOnboardingSignature(t *testing.T) {
	f := newFixture(t)
	sig, err := f.client.OnboardingSignature("https://testnet.bluefin.io")
	require.NoError(t, err)

	want, err := order.SignOnboarding(f.keys, "https://testnet.bluefin.io")
	require.NoError(t, err)
	assert.Equal(t, want+f.keys.PublicKeyBase64(), sig)

	_, err = f.client.OnboardingSignature(strings.Repeat("x", 300))
	assert.ErrorIs(t, err, order.ErrEncoding)
}

func TestAdjustLeverageWithoutPosition(t *testing.T) {
	f := newFixture(t)

	res, err := f.client.AdjustLeverage(context.Background(), "ETH-PERP", decimal.NewFromInt(5), "")
	require.NoError(t, err)
	assert.False(t, res.OnChain)

	require.Len(t, f.coordinator.reqs, 1)
	req := f.coordinator.reqs[0]
	assert.Equal(t, "5000000000000000000", req.Leverage)
	assert.Equal(t, f.keys.Address(), req.Address)
	assert.Empty(t, req.SignedTransaction)
	assert.Empty(t, f.chain.calls)
	assert.Empty(t, f.submitter.txs)
}

func TestAdjustLeverageRelayedOnChain(t *testing.T) {
	f := newFixture(t)
	f.positions.open = true

	res, err := f.client.AdjustLeverage(context.Background(), "ETH-PERP", decimal.NewFromInt(5), "0xparent")
	require.NoError(t, err)
	assert.True(t, res.OnChain)
	assert.False(t, res.Direct)
	assert.Equal(t, []string{"ETH-PERP@0xparent"}, f.positions.queried)

	require.Len(t, f.chain.calls, 1)
	assert.Equal(t, "adjust_leverage", f.chain.calls[0].Function)
	assert.Equal(t, "0xparent", f.chain.calls[0].Arguments[6])
	assert.Equal(t, f.keys.Address(), f.chain.calls[0].Signer)

	require.Len(t, f.coordinator.reqs, 1)
	decoded, err := hex.DecodeString(f.coordinator.reqs[0].SignedTransaction)
	require.NoError(t, err)
	parts := strings.Split(string(decoded), "||||")
	require.Len(t, parts, 2)
	assert.Equal(t, "dHhieXRlcw==", parts[0])
	assert.True(t, crypto.VerifyTransaction(parts[0], parts[1], f.keys.Address()))
	assert.Empty(t, f.submitter.txs)
}

func TestAdjustLeverageFallsBackToDirectExecution(t *testing.T) {
	f := newFixture(t)
	f.positions.open = true
	f.coordinator.err = errors.New("service unavailable")

	res, err := f.client.AdjustLeverage(context.Background(), "ETH-PERP", decimal.NewFromInt(5), "")
	require.NoError(t, err)
	assert.True(t, res.Direct)
	require.NotNil(t, res.Tx)

	require.Len(t, f.submitter.txs, 1)
	decoded, err := hex.DecodeString(f.coordinator.reqs[0].SignedTransaction)
	require.NoError(t, err)
	assert.Equal(t, f.submitter.txs[0]+"||||"+f.submitter.sigs[0], string(decoded))

	_, err = f.journal.Get(storage.KindTransaction, res.Tx.Digest)
	assert.NoError(t, err)
}

func TestAdjustMargin(t *testing.T) {
	f := newFixture(t)

	_, err := f.client.AdjustMargin(context.Background(), "ETH-PERP", MarginAdd, decimal.NewFromInt(10), "")
	assert.ErrorIs(t, err, ErrNoOpenPosition)
	assert.Empty(t, f.chain.calls)

	f.positions.open = true
	_, err = f.client.AdjustMargin(context.Background(), "ETH-PERP", MarginAdd, decimal.NewFromInt(10), "")
	require.NoError(t, err)
	_, err = f.client.AdjustMargin(context.Background(), "ETH-PERP", MarginRemove, decimal.NewFromInt(10), "")
	require.NoError(t, err)

	require.Len(t, f.chain.calls, 2)
	assert.Equal(t, "add_margin", f.chain.calls[0].Function)
	assert.Equal(t, "remove_margin", f.chain.calls[1].Function)
	assert.Equal(t, "10000000000000000000", f.chain.calls[0].Arguments[7])
}

func TestAdjustMarginPositionError(t *testing.T) {
	f := newFixture(t)
	f.positions.err = errors.New("api down")
	_, err := f.client.AdjustMargin(context.Background(), "ETH-PERP", MarginAdd, decimal.NewFromInt(1), "")
	assert.ErrorContains(t, err, "api down")
}

func TestDepositToBankAllocatesExactCoin(t *testing.T) {
	f := newFixture(t)

	res, err := f.client.DepositToBank(context.Background(), decimal.RequireFromString("10.5"), "")
	require.NoError(t, err)
	assert.True(t, res.Succeeded())

	assert.Equal(t, usdcType, f.allocator.coinType)
	assert.Equal(t, uint64(10500000), f.allocator.balance)

	require.Len(t, f.chain.calls, 1)
	call := f.chain.calls[0]
	assert.Equal(t, "margin_bank", call.Module)
	assert.Equal(t, "deposit_to_bank", call.Function)
	assert.Equal(t, "10500000", call.Arguments[4])
	assert.Equal(t, "0xexact", call.Arguments[5])
	assert.Equal(t, []string{usdcType}, call.TypeArguments)
}

func TestDepositToBankWithCoin(t *testing.T) {
	f := newFixture(t)
	_, err := f.client.DepositToBank(context.Background(), decimal.NewFromInt(1), "0xmine")
	require.NoError(t, err)
	assert.Zero(t, f.allocator.balance)
	assert.Equal(t, "0xmine", f.chain.calls[0].Arguments[5])

	_, err = f.client.DepositToBank(context.Background(), decimal.RequireFromString("0.0000001"), "0xmine")
	assert.Error(t, err)
}

func TestBankWithdrawalsAndSubAccounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.client.WithdrawFromBank(ctx, decimal.NewFromInt(2))
	require.NoError(t, err)
	_, err = f.client.WithdrawAllFromBank(ctx)
	require.NoError(t, err)
	_, err = f.client.UpdateSubAccount(ctx, "0xsub", true)
	require.NoError(t, err)

	var fns []string
	for _, c := range f.chain.calls {
		fns = append(fns, c.Function)
	}
	assert.Equal(t, []string{"withdraw_from_bank", "withdraw_all_margin_from_bank", "set_sub_account"}, fns)
	assert.Equal(t, "2000000", f.chain.calls[0].Arguments[4])
	assert.Equal(t, []any{"0xsubs", "0xsub", true}, f.chain.calls[2].Arguments)

	txs, err := f.journal.List(storage.KindTransaction, 0)
	require.NoError(t, err)
	assert.Len(t, txs, 3)
}

func TestExecutionFailureSurfaces(t *testing.T) {
	f := newFixture(t)
	f.submitter.status = "failure"

	res, err := f.client.WithdrawAllFromBank(context.Background())
	assert.ErrorIs(t, err, sui.ErrExecutionFailed)
	require.NotNil(t, res)

	entry, err := f.journal.Get(storage.KindTransaction, res.Digest)
	require.NoError(t, err)
	assert.Contains(t, string(entry.Payload), `"status":"failure"`)
}

func TestNativeBalance(t *testing.T) {
	f := newFixture(t)
	f.chain.balance = "1500000000"
	bal, err := f.client.NativeBalance(context.Background())
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("1.5").Equal(bal))

	f.chain.coins = []sui.Coin{{CoinObjectID: "0x1", Balance: "5"}}
	coins, err := f.client.USDCCoins(context.Background())
	require.NoError(t, err)
	assert.Len(t, coins, 1)
}

func TestNewRequiresKeys(t *testing.T) {
	_, err := New(nil, Deps{}, Config{})
	assert.ErrorIs(t, err, crypto.ErrEmptyKeyMaterial)
}

func TestOnChainOperationsNeedChain(t *testing.T) {
	keys, err := crypto.GenerateKey()
	require.NoError(t, err)
	c, err := New(keys, Deps{}, Config{})
	require.NoError(t, err)
	_, err = c.WithdrawAllFromBank(context.Background())
	assert.Error(t, err)
	_, err = c.HasOpenPosition(context.Background(), "ETH-PERP", "")
	assert.Error(t, err)
}
