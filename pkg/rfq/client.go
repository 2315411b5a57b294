package rfq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/suiperp/pkg/contracts"
	"github.com/uhyunpark/suiperp/pkg/crypto"
	"github.com/uhyunpark/suiperp/pkg/sui"
)

// VaultBalanceKeyType is the dynamic field key type vaults index coin balances by
const VaultBalanceKeyType = "0x1::string::String"

var ErrVaultCoinNotFound = errors.New("vault holds no entry for coin")

// Chain is the node surface the RFQ client reads and builds against. *sui.Client satisfies it.
type Chain interface {
	BuildMoveCall(ctx context.Context, call sui.MoveCall) (string, error)
	GetDynamicFieldObject(ctx context.Context, parentID, fieldType string, value any) (json.RawMessage, error)
}

// TxExecutor signs and submits built bytes. *sui.Submitter satisfies it.
type TxExecutor interface {
	SignAndExecute(ctx context.Context, keys *crypto.KeyMaterial, txBytes string) (*sui.TransactionResult, error)
}

// CoinAllocator yields a coin holding an exact balance. *coins.Allocator satisfies it.
type CoinAllocator interface {
	CreateCoinWithBalance(ctx context.Context, coinType string, balance uint64) (string, error)
}

type ClientConfig struct {
	GasBudget uint64
	Logger    *zap.Logger
	Now       func() time.Time
}

// Client signs quotes and manages RFQ vaults for one key
type Client struct {
	keys      *crypto.KeyMaterial
	chain     Chain
	exec      TxExecutor
	allocator CoinAllocator
	calls     *contracts.Builder
	gasBudget uint64
	log       *zap.Logger
	now       func() time.Time
}

func NewClient(keys *crypto.KeyMaterial, chain Chain, exec TxExecutor, allocator CoinAllocator, calls *contracts.Builder, cfg ClientConfig) (*Client, error) {
	if keys == nil {
		return nil, crypto.ErrEmptyKeyMaterial
	}
	if chain == nil || exec == nil || calls == nil {
		return nil, errors.New("rfq client requires chain, executor and call builder")
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Client{
		keys:      keys,
		chain:     chain,
		exec:      exec,
		allocator: allocator,
		calls:     calls,
		gasBudget: cfg.GasBudget,
		log:       log,
		now:       now,
	}, nil
}

// CreateAndSignQuote builds a quote with defaults and returns it with its base64 signature
func (c *Client) CreateAndSignQuote(p QuoteParams) (*Quote, string, error) {
	q, err := NewQuote(p, c.now())
	if err != nil {
		return nil, "", err
	}
	sig, err := q.SignBase64(c.keys)
	if err != nil {
		return nil, "", err
	}
	return q, sig, nil
}

func (c *Client) CreateVault(ctx context.Context, manager string) (*sui.TransactionResult, error) {
	call, err := c.calls.CreateVault(manager)
	if err != nil {
		return nil, err
	}
	return c.submit(ctx, call)
}

// DepositInVault allocates a coin of exactly amount and deposits it into vault
func (c *Client) DepositInVault(ctx context.Context, vault string, amount uint64, coinType string) (*sui.TransactionResult, error) {
	if c.allocator == nil {
		return nil, errors.New("rfq client has no coin allocator")
	}
	coinID, err := c.allocator.CreateCoinWithBalance(ctx, coinType, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate deposit coin: %w", err)
	}
	call, err := c.calls.VaultDeposit(vault, coinID, coinType)
	if err != nil {
		return nil, err
	}
	return c.submit(ctx, call)
}

// WithdrawFromVault withdraws amount of coinType. Only the vault manager may do this.
func (c *Client) WithdrawFromVault(ctx context.Context, vault string, amount uint64, coinType string) (*sui.TransactionResult, error) {
	call, err := c.calls.VaultWithdraw(vault, amount, coinType)
	if err != nil {
		return nil, err
	}
	return c.submit(ctx, call)
}

func (c *Client) UpdateVaultManager(ctx context.Context, vault, newManager string) (*sui.TransactionResult, error) {
	call, err := c.calls.SetVaultManager(vault, newManager)
	if err != nil {
		return nil, err
	}
	return c.submit(ctx, call)
}

func (c *Client) UpdateMinDeposit(ctx context.Context, vault, coinType string, minAmount uint64) (*sui.TransactionResult, error) {
	call, err := c.calls.UpdateMinDeposit(vault, coinType, minAmount)
	if err != nil {
		return nil, err
	}
	return c.submit(ctx, call)
}

func (c *Client) AddCoinSupport(ctx context.Context, vault, coinType string, minAmount uint64) (*sui.TransactionResult, error) {
	call, err := c.calls.SupportCoin(vault, coinType, minAmount)
	if err != nil {
		return nil, err
	}
	return c.submit(ctx, call)
}

type vaultEntry struct {
	Data *struct {
		Content struct {
			Fields struct {
				Value struct {
					Fields struct {
						Swaps json.Number `json:"swaps"`
					} `json:"fields"`
				} `json:"value"`
			} `json:"fields"`
		} `json:"content"`
	} `json:"data"`
}

// GetVaultCoinBalance reads the vault's balance of coinType in base units
func (c *Client) GetVaultCoinBalance(ctx context.Context, vault, coinType string) (uint64, error) {
	key := strings.TrimPrefix(coinType, "0x")
	raw, err := c.chain.GetDynamicFieldObject(ctx, vault, VaultBalanceKeyType, key)
	if err != nil {
		return 0, fmt.Errorf("failed to get vault coin balance: %w", err)
	}
	var entry vaultEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return 0, fmt.Errorf("failed to decode vault entry: %w", err)
	}
	if entry.Data == nil || entry.Data.Content.Fields.Value.Fields.Swaps == "" {
		return 0, fmt.Errorf("%w: %s in %s", ErrVaultCoinNotFound, coinType, vault)
	}
	bal, err := strconv.ParseUint(entry.Data.Content.Fields.Value.Fields.Swaps.String(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid vault balance: %w", err)
	}
	return bal, nil
}

func (c *Client) submit(ctx context.Context, call contracts.Call) (*sui.TransactionResult, error) {
	txBytes, err := c.chain.BuildMoveCall(ctx, call.MoveCall(c.keys.Address(), c.gasBudget))
	if err != nil {
		return nil, fmt.Errorf("failed to build %s::%s: %w", call.Kind(), call.Function(), err)
	}
	res, err := c.exec.SignAndExecute(ctx, c.keys, txBytes)
	if err != nil {
		return res, fmt.Errorf("%s::%s: %w", call.Kind(), call.Function(), err)
	}
	c.log.Info("rfq_vault_call",
		zap.String("function", call.Function()),
		zap.String("digest", res.Digest))
	return res, nil
}
