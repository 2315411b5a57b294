package api

import (
	"fmt"

	"github.com/samber/mo"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/suiperp/pkg/order"
	"github.com/uhyunpark/suiperp/pkg/rfq"
)

// ==============================
// Request Types
// ==============================

// OrderBody is an order in human units. Empty optional fields take exchange defaults.
type OrderBody struct {
	Symbol         string `json:"symbol"`
	Market         string `json:"market,omitempty"`
	Side           string `json:"side"`      // "BUY" or "SELL"
	OrderType      string `json:"orderType"` // "LIMIT", "MARKET", ...
	Price          string `json:"price"`
	Quantity       string `json:"quantity"`
	Leverage       string `json:"leverage,omitempty"`
	Maker          string `json:"maker,omitempty"` // parent account for sub accounts
	ReduceOnly     bool   `json:"reduceOnly"`
	PostOnly       bool   `json:"postOnly"`
	CancelOnRevert bool   `json:"cancelOnRevert"`
	OrderbookOnly  *bool  `json:"orderbookOnly,omitempty"`
	IOC            bool   `json:"ioc"`
	TimeInForce    string `json:"timeInForce,omitempty"`
	Expiration     uint64 `json:"expiration,omitempty"` // unix ms
	Salt           uint64 `json:"salt,omitempty"`
	TriggerPrice   string `json:"triggerPrice,omitempty"`
	ClientID       string `json:"clientId,omitempty"`
}

// ToRequest parses the decimal fields and maps empty values to unset options
func (b OrderBody) ToRequest() (order.Request, error) {
	price, err := parseDecimal("price", b.Price, true)
	if err != nil {
		return order.Request{}, err
	}
	qty, err := parseDecimal("quantity", b.Quantity, false)
	if err != nil {
		return order.Request{}, err
	}
	req := order.Request{
		Symbol:         b.Symbol,
		Market:         b.Market,
		Side:           order.Side(b.Side),
		Type:           order.Type(b.OrderType),
		Price:          price,
		Quantity:       qty,
		ReduceOnly:     b.ReduceOnly,
		PostOnly:       b.PostOnly,
		CancelOnRevert: b.CancelOnRevert,
		IOC:            b.IOC,
	}
	if b.Leverage != "" {
		lev, err := parseDecimal("leverage", b.Leverage, false)
		if err != nil {
			return order.Request{}, err
		}
		req.Leverage = mo.Some(lev)
	}
	if b.TriggerPrice != "" {
		trigger, err := parseDecimal("triggerPrice", b.TriggerPrice, false)
		if err != nil {
			return order.Request{}, err
		}
		req.TriggerPrice = mo.Some(trigger)
	}
	if b.Maker != "" {
		req.Maker = mo.Some(b.Maker)
	}
	if b.OrderbookOnly != nil {
		req.OrderbookOnly = mo.Some(*b.OrderbookOnly)
	}
	if b.TimeInForce != "" {
		req.TimeInForce = mo.Some(order.TimeInForce(b.TimeInForce))
	}
	if b.Expiration != 0 {
		req.Expiration = mo.Some(b.Expiration)
	}
	if b.Salt != 0 {
		req.Salt = mo.Some(b.Salt)
	}
	if b.ClientID != "" {
		req.ClientID = mo.Some(b.ClientID)
	}
	return req, nil
}

func parseDecimal(field, s string, allowEmpty bool) (decimal.Decimal, error) {
	if s == "" {
		if allowEmpty {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("%s is required", field)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %w", field, err)
	}
	return d, nil
}

// CancelBody cancels by hash, or by rebuilding the order when Order is set
type CancelBody struct {
	Symbol        string     `json:"symbol"`
	OrderHashes   []string   `json:"orderHashes,omitempty"`
	Order         *OrderBody `json:"order,omitempty"`
	ParentAddress string     `json:"parentAddress,omitempty"`
}

type OnboardingBody struct {
	URL string `json:"onboardingUrl,omitempty"` // defaults to the network's onboarding url
}

// MessageBody carries a personal message as plain text
type MessageBody struct {
	Message string `json:"message"`
}

type VerifyBody struct {
	Message   string `json:"message"`
	Signature string `json:"signature"` // base64 serialized signature
	Address   string `json:"address"`
}

type QuoteBody struct {
	Vault          string `json:"vault"`
	ID             string `json:"id,omitempty"`
	Taker          string `json:"taker"`
	TokenInAmount  uint64 `json:"tokenInAmount"`
	TokenOutAmount uint64 `json:"tokenOutAmount"`
	TokenInType    string `json:"tokenInType"`
	TokenOutType   string `json:"tokenOutType"`
	CreatedAt      uint64 `json:"createdAt,omitempty"`
	ExpiresAt      uint64 `json:"expiresAt,omitempty"`
}

type LeverageBody struct {
	Symbol        string `json:"symbol"`
	Leverage      string `json:"leverage"`
	ParentAddress string `json:"parentAddress,omitempty"`
}

type MarginBody struct {
	Symbol        string `json:"symbol"`
	Operation     string `json:"operation"` // "ADD" or "REMOVE"
	Amount        string `json:"amount"`
	ParentAddress string `json:"parentAddress,omitempty"`
}

// ==============================
// Response Types
// ==============================

type AccountInfo struct {
	Address   string `json:"address"`
	PublicKey string `json:"publicKey"` // base64
	Scheme    string `json:"scheme"`
}

type SignatureResponse struct {
	Signature string `json:"signature"`
}

type VerifyResponse struct {
	Valid bool `json:"valid"`
}

type SignedQuoteResponse struct {
	Quote     *rfq.Quote `json:"quote"`
	Signature string     `json:"signature"` // base64
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
