package lifecycle

import (
	"context"
	"errors"

	"github.com/uhyunpark/suiperp/pkg/order"
	"github.com/uhyunpark/suiperp/pkg/sui"
)

var (
	ErrNoOpenPosition   = errors.New("no open position")
	ErrNoCoordinator    = errors.New("leverage coordinator not configured")
	ErrNoPositionSource = errors.New("position source not configured")
)

// MarginType is sent with leverage changes; only isolated margin exists
const MarginType = "ISOLATED"

type MarginOperation int

const (
	MarginAdd MarginOperation = iota
	MarginRemove
)

func (op MarginOperation) String() string {
	if op == MarginAdd {
		return "ADD"
	}
	return "REMOVE"
}

// SignedOrder is an order ready for the matching service
type SignedOrder struct {
	Symbol         string            `json:"symbol"`
	Market         string            `json:"market"`
	Price          string            `json:"price"`
	Quantity       string            `json:"quantity"`
	Side           order.Side        `json:"side"`
	Leverage       string            `json:"leverage"`
	ReduceOnly     bool              `json:"reduceOnly"`
	PostOnly       bool              `json:"postOnly"`
	CancelOnRevert bool              `json:"cancelOnRevert"`
	OrderbookOnly  bool              `json:"orderbookOnly"`
	Salt           string            `json:"salt"`
	Expiration     uint64            `json:"expiration"`
	OrderSignature string            `json:"orderSignature"`
	OrderType      order.Type        `json:"orderType"`
	Maker          string            `json:"maker"`
	TimeInForce    order.TimeInForce `json:"timeInForce"`
	TriggerPrice   string            `json:"triggerPrice,omitempty"`
	ClientID       string            `json:"clientId,omitempty"`
	OrderHash      string            `json:"orderHash"`

	Order *order.Order `json:"-"`
}

// CancellationRequest cancels orders by hash. ParentAddress is set only by sub accounts.
type CancellationRequest struct {
	Symbol        string   `json:"symbol"`
	Hashes        []string `json:"orderHashes"`
	Signature     string   `json:"cancelSignature"`
	ParentAddress string   `json:"parentAddress,omitempty"`
}

// LeverageRequest is handed to the matching service. SignedTransaction is
// hex(txBytes || "||||" || signature) when an on-chain update is required.
type LeverageRequest struct {
	Symbol            string `json:"symbol"`
	Address           string `json:"address"`
	Leverage          string `json:"leverage"`
	MarginType        string `json:"marginType"`
	SignedTransaction string `json:"signedTransaction,omitempty"`
}

// LeverageResult reports how a leverage change was applied
type LeverageResult struct {
	OnChain bool                   `json:"onChain"`
	Direct  bool                   `json:"direct"` // executed by the client after the coordinator rejected it
	Tx      *sui.TransactionResult `json:"tx,omitempty"`
}

// PositionSource answers whether an account holds a position. Implemented by the API layer.
type PositionSource interface {
	HasOpenPosition(ctx context.Context, symbol, account string) (bool, error)
}

// LeverageCoordinator records leverage with the matching service and relays signed updates
type LeverageCoordinator interface {
	AdjustLeverage(ctx context.Context, req LeverageRequest) error
}

// Chain is the node surface used by the lifecycle. *sui.Client satisfies it.
type Chain interface {
	BuildMoveCall(ctx context.Context, call sui.MoveCall) (string, error)
	GetAllCoins(ctx context.Context, owner, coinType string) ([]sui.Coin, error)
	GetBalance(ctx context.Context, owner, coinType string) (*sui.Balance, error)
}

// Submitter executes signed transactions. *sui.Submitter satisfies it.
type Submitter interface {
	Execute(ctx context.Context, txBytes, signature string) (*sui.TransactionResult, error)
}

// CoinAllocator yields a coin holding an exact balance. *coins.Allocator satisfies it.
type CoinAllocator interface {
	CreateCoinWithBalance(ctx context.Context, coinType string, balance uint64) (string, error)
}

// Recorder observes produced signatures
type Recorder interface {
	ObserveSignature(kind string)
}
