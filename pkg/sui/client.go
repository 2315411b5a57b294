package sui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

// DefaultGasBudget is used for builder calls that do not set one
const DefaultGasBudget uint64 = 100000000

// coinPageLimit caps one suix_getCoins page
const coinPageLimit = 50

// Caller is the JSON-RPC transport. *rpc.Client satisfies it.
type Caller interface {
	CallContext(ctx context.Context, result any, method string, args ...any) error
}

var _ Caller = (*rpc.Client)(nil)

type ClientConfig struct {
	URL       string
	GasBudget uint64
	Logger    *zap.Logger
}

// Client issues JSON-RPC calls against a fullnode
type Client struct {
	caller    Caller
	closer    func()
	gasBudget uint64
	log       *zap.Logger
}

// Dial connects to cfg.URL over HTTP or WebSocket
func Dial(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("rpc url is required")
	}
	rc, err := rpc.DialContext(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", cfg.URL, err)
	}
	c := NewClient(rc, cfg)
	c.closer = rc.Close
	return c, nil
}

// NewClient wraps an existing transport
func NewClient(caller Caller, cfg ClientConfig) *Client {
	gasBudget := cfg.GasBudget
	if gasBudget == 0 {
		gasBudget = DefaultGasBudget
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{caller: caller, gasBudget: gasBudget, log: log}
}

func (c *Client) Close() {
	if c.closer != nil {
		c.closer()
	}
}

// GetCoins returns one page of coins of coinType owned by owner
func (c *Client) GetCoins(ctx context.Context, owner, coinType string, cursor *string) (*CoinPage, error) {
	var page CoinPage
	if err := c.caller.CallContext(ctx, &page, "suix_getCoins", owner, coinType, cursor, coinPageLimit); err != nil {
		return nil, fmt.Errorf("suix_getCoins: %w", err)
	}
	return &page, nil
}

// GetAllCoins follows pagination until every coin of coinType is fetched
func (c *Client) GetAllCoins(ctx context.Context, owner, coinType string) ([]Coin, error) {
	var (
		out    []Coin
		cursor *string
	)
	for {
		page, err := c.GetCoins(ctx, owner, coinType, cursor)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Data...)
		if !page.HasNextPage || page.NextCursor == nil {
			return out, nil
		}
		cursor = page.NextCursor
	}
}

func (c *Client) GetBalance(ctx context.Context, owner, coinType string) (*Balance, error) {
	var bal Balance
	if err := c.caller.CallContext(ctx, &bal, "suix_getBalance", owner, coinType); err != nil {
		return nil, fmt.Errorf("suix_getBalance: %w", err)
	}
	return &bal, nil
}

// MoveCall describes an entry function invocation built by the node
type MoveCall struct {
	Signer        string
	Package       string
	Module        string
	Function      string
	TypeArguments []string
	Arguments     []any
	Gas           *string
	GasBudget     uint64
}

// BuildMoveCall asks the node to build unsigned transaction bytes (base64)
func (c *Client) BuildMoveCall(ctx context.Context, call MoveCall) (string, error) {
	typeArgs := call.TypeArguments
	if typeArgs == nil {
		typeArgs = []string{}
	}
	args := call.Arguments
	if args == nil {
		args = []any{}
	}
	var out TransactionBlockBytes
	err := c.caller.CallContext(ctx, &out, "unsafe_moveCall",
		call.Signer, call.Package, call.Module, call.Function,
		typeArgs, args, call.Gas, c.budget(call.GasBudget))
	if err != nil {
		return "", fmt.Errorf("unsafe_moveCall %s::%s: %w", call.Module, call.Function, err)
	}
	if out.TxBytes == "" {
		return "", fmt.Errorf("unsafe_moveCall %s::%s: empty txBytes", call.Module, call.Function)
	}
	return out.TxBytes, nil
}

// BuildSplitCoin builds a transaction splitting amounts off coinID
func (c *Client) BuildSplitCoin(ctx context.Context, signer, coinID string, amounts []uint64) (string, error) {
	strAmounts := make([]string, len(amounts))
	for i, a := range amounts {
		strAmounts[i] = strconv.FormatUint(a, 10)
	}
	var out TransactionBlockBytes
	if err := c.caller.CallContext(ctx, &out, "unsafe_splitCoin", signer, coinID, strAmounts, nil, c.budget(0)); err != nil {
		return "", fmt.Errorf("unsafe_splitCoin: %w", err)
	}
	return out.TxBytes, nil
}

// BuildMergeCoins builds a transaction merging coinID into primaryID
func (c *Client) BuildMergeCoins(ctx context.Context, signer, primaryID, coinID string) (string, error) {
	var out TransactionBlockBytes
	if err := c.caller.CallContext(ctx, &out, "unsafe_mergeCoins", signer, primaryID, coinID, nil, c.budget(0)); err != nil {
		return "", fmt.Errorf("unsafe_mergeCoins: %w", err)
	}
	return out.TxBytes, nil
}

type executeOptions struct {
	ShowInput         bool `json:"showInput"`
	ShowEffects       bool `json:"showEffects"`
	ShowEvents        bool `json:"showEvents"`
	ShowObjectChanges bool `json:"showObjectChanges"`
}

// ExecuteTransactionBlock submits signed bytes once and waits for local execution.
// A returned result may still carry a failure status; check Succeeded.
func (c *Client) ExecuteTransactionBlock(ctx context.Context, txBytes, signature string) (*TransactionResult, error) {
	var raw json.RawMessage
	opts := executeOptions{ShowInput: true, ShowEffects: true, ShowEvents: true, ShowObjectChanges: true}
	if err := c.caller.CallContext(ctx, &raw, "sui_executeTransactionBlock", txBytes, []string{signature}, opts, "WaitForLocalExecution"); err != nil {
		return nil, err
	}
	var res TransactionResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("failed to decode transaction result: %w", err)
	}
	res.Raw = raw
	return &res, nil
}

type dynamicFieldName struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// GetDynamicFieldObject reads a dynamic field of parentID
func (c *Client) GetDynamicFieldObject(ctx context.Context, parentID, fieldType string, value any) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.caller.CallContext(ctx, &raw, "suix_getDynamicFieldObject", parentID, dynamicFieldName{Type: fieldType, Value: value}); err != nil {
		return nil, fmt.Errorf("suix_getDynamicFieldObject: %w", err)
	}
	return raw, nil
}

func (c *Client) budget(b uint64) string {
	if b == 0 {
		b = c.gasBudget
	}
	return strconv.FormatUint(b, 10)
}
